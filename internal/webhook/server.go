// Package webhook exposes the HTTP surface of the service: the chat
// platform callback, artifact retrieval, and a health endpoint.
package webhook

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/book-expert/logger"

	"github.com/prakasit008-sys/Pea-linebot/internal/core"
)

// Routes served by the mux.
const (
	PathCallback = "/callback"
	PathAudio    = "/audio/"
	PathHome     = "/"
)

const (
	eventTypeMessage = "message"
	messageTypeText  = "text"

	responseOK = "OK"
)

// EventHandler consumes one inbound chat event.
type EventHandler interface {
	HandleEvent(ctx context.Context, event core.InboundEvent) error
}

// callbackRequest is the platform webhook body: a batch of events.
type callbackRequest struct {
	Events []inboundEvent `json:"events"`
}

type inboundEvent struct {
	Type    string       `json:"type"`
	Source  eventSource  `json:"source"`
	Message eventMessage `json:"message"`
}

type eventSource struct {
	UserID  string `json:"userId"`
	GroupID string `json:"groupId"`
	RoomID  string `json:"roomId"`
}

// target picks the conversation to deliver results to. Group and room chats
// take precedence over the sender's direct chat.
func (s eventSource) target() string {
	switch {
	case s.GroupID != "":
		return s.GroupID
	case s.RoomID != "":
		return s.RoomID
	default:
		return s.UserID
	}
}

type eventMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Server handles platform callbacks and delegates each text message to the
// dispatch layer.
type Server struct {
	handler EventHandler
	log     *logger.Logger
}

// NewServer creates a webhook server over the given event handler.
func NewServer(handler EventHandler, log *logger.Logger) *Server {
	return &Server{
		handler: handler,
		log:     log,
	}
}

// NewMux builds the service routing table: callback handling, artifact
// downloads, and a health probe at the root.
func NewMux(server *Server, artifacts http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(PathCallback, server.handleCallback)
	mux.Handle(PathAudio, artifacts)
	mux.HandleFunc(PathHome, handleHome)

	return mux
}

// handleCallback accepts a batch of platform events. The response is always
// 200 for a decodable batch so the platform does not redeliver; per-event
// failures are already reported to the sender by the dispatch layer.
func (s *Server) handleCallback(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		http.Error(writer, "method not allowed", http.StatusMethodNotAllowed)

		return
	}

	var batch callbackRequest

	err := json.NewDecoder(request.Body).Decode(&batch)
	if err != nil {
		s.log.Warn("Rejected undecodable callback body: %v", err)
		http.Error(writer, "bad request", http.StatusBadRequest)

		return
	}

	for _, event := range batch.Events {
		if event.Type != eventTypeMessage || event.Message.Type != messageTypeText {
			continue
		}

		inbound := core.InboundEvent{
			Text:   event.Message.Text,
			Target: event.Source.target(),
			Sender: event.Source.UserID,
		}

		handleErr := s.handler.HandleEvent(request.Context(), inbound)
		if handleErr != nil {
			s.log.Warn("Event from sender %s not processed: %v", inbound.Sender, handleErr)
		}
	}

	writer.WriteHeader(http.StatusOK)

	_, _ = writer.Write([]byte(responseOK))
}

func handleHome(writer http.ResponseWriter, request *http.Request) {
	if request.URL.Path != PathHome {
		http.NotFound(writer, request)

		return
	}

	writer.WriteHeader(http.StatusOK)

	_, _ = writer.Write([]byte(responseOK))
}
