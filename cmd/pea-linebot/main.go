// main package for the bot service
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/prakasit008-sys/Pea-linebot/internal/artifact"
	"github.com/prakasit008-sys/Pea-linebot/internal/config"
	"github.com/prakasit008-sys/Pea-linebot/internal/dispatch"
	"github.com/prakasit008-sys/Pea-linebot/internal/minimax"
	"github.com/prakasit008-sys/Pea-linebot/internal/notify"
	"github.com/prakasit008-sys/Pea-linebot/internal/orchestrator"
	"github.com/prakasit008-sys/Pea-linebot/internal/queue"
	"github.com/prakasit008-sys/Pea-linebot/internal/text"
	"github.com/prakasit008-sys/Pea-linebot/internal/transport"
	"github.com/prakasit008-sys/Pea-linebot/internal/voiceconfig"
	"github.com/prakasit008-sys/Pea-linebot/internal/webhook"
	"github.com/prakasit008-sys/Pea-linebot/internal/worker"
)

const (
	readHeaderTimeout      = 10 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "pea-linebot.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	// Bootstrap logger first; the configured log dir is not known yet.
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runService(ctx, cfg, finalLog)
}

// runService wires the components and blocks until shutdown.
func runService(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	providerTransport := transport.New(transport.Options{
		MaxAttempts:    cfg.Provider.MaxAttempts,
		InitialBackoff: 0,
		MaxBackoff:     0,
		CallTimeout:    time.Duration(cfg.Provider.CallTimeoutSeconds) * time.Second,
		TransientCodes: minimax.TransientStatusCodes(),
	})

	synthesizer := minimax.New(providerTransport, minimax.Options{
		BaseURL:       cfg.Provider.BaseURL,
		APIKey:        cfg.Provider.APIKey,
		GroupID:       cfg.Provider.GroupID,
		Model:         cfg.Provider.Model,
		MinAudioBytes: cfg.Provider.MinAudioBytes,
	})

	artifactTTL := time.Duration(cfg.Storage.TTLSeconds) * time.Second

	artifacts, err := artifact.New(cfg.Storage.AudioDir, cfg.Service.PublicBaseURL, artifactTTL, log)
	if err != nil {
		return fmt.Errorf("failed to create artifact store: %w", err)
	}

	sweepInterval := time.Duration(cfg.Storage.SweepIntervalSeconds) * time.Second
	if sweepInterval > 0 {
		artifacts.StartJanitor(ctx, sweepInterval)
	}

	pushTransport := transport.New(transport.Options{
		MaxAttempts:    cfg.Provider.MaxAttempts,
		InitialBackoff: 0,
		MaxBackoff:     0,
		CallTimeout:    time.Duration(cfg.Provider.CallTimeoutSeconds) * time.Second,
		TransientCodes: nil,
	})
	notifier := notify.NewPushClient(pushTransport, cfg.Push.URL, cfg.Push.Token)

	jobs := orchestrator.New(synthesizer, artifacts, notifier, log, orchestrator.Options{
		PollInterval: time.Duration(cfg.Provider.PollIntervalMs) * time.Millisecond,
		JobDeadline:  time.Duration(cfg.Provider.JobDeadlineSeconds) * time.Second,
	})

	natsWorker, err := worker.NewNatsWorker(
		natsConnection,
		cfg.NATS.SynthesisSubject,
		jobs,
		log,
		worker.Options{
			MaxConcurrentJobs: cfg.NATS.MaxConcurrent,
			JobTimeout:        time.Duration(cfg.Provider.JobDeadlineSeconds+60) * time.Second,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	workerDone := make(chan error, 1)

	go func() {
		workerDone <- natsWorker.Run(ctx)
	}()

	jobQueue, err := queue.NewNatsQueue(natsConnection, cfg.NATS.SynthesisSubject)
	if err != nil {
		return fmt.Errorf("failed to create job queue: %w", err)
	}

	voices := voiceconfig.New(cfg.Storage.VoiceStatePath, cfg.Storage.DefaultVoice)

	router := dispatch.NewRouter(
		jobQueue,
		voices,
		notifier,
		text.NewNormalizer(cfg.Service.MaxTextChars),
		log,
		dispatch.Options{
			SynthesisPrefix: cfg.Service.CommandPrefix,
			SetVoicePrefix:  cfg.Service.SetVoicePrefix,
			AdminSenders:    cfg.Service.AdminSenders,
		},
	)

	mux := webhook.NewMux(webhook.NewServer(router, log), artifacts)

	httpServer := &http.Server{
		Addr:              cfg.Service.BindAddress,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serverDone := make(chan error, 1)

	go func() {
		serverDone <- httpServer.ListenAndServe()
	}()

	log.System(
		"Service initialized. Listening on %s, consuming subject %s.",
		cfg.Service.BindAddress, cfg.NATS.SynthesisSubject,
	)

	select {
	case <-ctx.Done():
		log.System("Shutdown signal received.")
	case serveErr := <-serverDone:
		return fmt.Errorf("http server stopped: %w", serveErr)
	}

	shutdownTimeout := defaultShutdownTimeout
	if cfg.Service.ShutdownSeconds > 0 {
		shutdownTimeout = time.Duration(cfg.Service.ShutdownSeconds) * time.Second
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	shutdownErr := httpServer.Shutdown(shutdownCtx)
	if shutdownErr != nil && !errors.Is(shutdownErr, http.ErrServerClosed) {
		log.Error("HTTP server shutdown failed: %v", shutdownErr)
	}

	workerErr := <-workerDone
	if workerErr != nil {
		return fmt.Errorf("worker stopped: %w", workerErr)
	}

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
