// Package orchestrator_test tests the synthesis job state machine with
// scripted provider behavior.
package orchestrator_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prakasit008-sys/Pea-linebot/internal/core"
	"github.com/prakasit008-sys/Pea-linebot/internal/orchestrator"
)

var (
	errMockSubmit = errors.New("synthesis request rejected: code 1008: insufficient balance")
	errMockFetch  = errors.New("artifact fetch failed: payload too small")
	errMockStore  = errors.New("disk full")
)

// mockSynthesizer scripts the provider: a submit outcome, a sequence of poll
// results consumed in order, and fetch bytes.
type mockSynthesizer struct {
	mu sync.Mutex

	submitErr   error
	taskID      string
	pollResults []core.PollResult
	pollCount   int
	fetchData   []byte
	fetchErr    error
	fetchedRefs []string
}

func (m *mockSynthesizer) Submit(_ context.Context, _, _ string) (string, error) {
	if m.submitErr != nil {
		return "", m.submitErr
	}

	return m.taskID, nil
}

func (m *mockSynthesizer) Poll(_ context.Context, _ string) (core.PollResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pollCount >= len(m.pollResults) {
		return core.PollResult{Status: core.PollPending}, nil
	}

	result := m.pollResults[m.pollCount]
	m.pollCount++

	return result, nil
}

func (m *mockSynthesizer) PolledTimes() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.pollCount
}

func (m *mockSynthesizer) Fetch(_ context.Context, resultRef string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fetchedRefs = append(m.fetchedRefs, resultRef)

	if m.fetchErr != nil {
		return nil, m.fetchErr
	}

	return m.fetchData, nil
}

// mockStore records puts and can be made to fail.
type mockStore struct {
	mu      sync.Mutex
	putErr  error
	entries [][]byte
}

func (m *mockStore) Put(data []byte) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.putErr != nil {
		return "", "", m.putErr
	}

	m.entries = append(m.entries, data)
	id := fmt.Sprintf("artifact-%d.mp3", len(m.entries))

	return id, "https://bot.example.com/audio/" + id, nil
}

func (m *mockStore) Get(_ string) ([]byte, error) {
	return nil, errors.New("not used")
}

func (m *mockStore) EntryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.entries)
}

// mockNotifier records every notice sent per target, along with the state of
// the delivery context at send time.
type mockNotifier struct {
	mu      sync.Mutex
	targets []string
	notices []core.Notice
	ctxErrs []error
}

func (m *mockNotifier) Send(ctx context.Context, target string, notice core.Notice) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.targets = append(m.targets, target)
	m.notices = append(m.notices, notice)
	m.ctxErrs = append(m.ctxErrs, ctx.Err())

	return nil
}

func (m *mockNotifier) Sent() []core.Notice {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]core.Notice(nil), m.notices...)
}

func newTestOrchestrator(
	t *testing.T,
	synth *mockSynthesizer,
	store *mockStore,
	notifier *mockNotifier,
	deadline time.Duration,
) *orchestrator.Orchestrator {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "orchestrator-test.log")
	require.NoError(t, err)

	return orchestrator.New(synth, store, notifier, testLogger, orchestrator.Options{
		PollInterval: 5 * time.Millisecond,
		JobDeadline:  deadline,
	})
}

func testRequest() core.SynthesisRequest {
	return core.SynthesisRequest{
		Text:         "ทดสอบประกาศ",
		VoiceProfile: "female-alto",
		Target:       "U1234",
	}
}

func TestRun_SucceedsAfterPendingPolls(t *testing.T) {
	t.Parallel()

	audio := bytes.Repeat([]byte{0xAB}, 50000)

	synth := &mockSynthesizer{
		taskID: "T1",
		pollResults: []core.PollResult{
			{Status: core.PollPending},
			{Status: core.PollPending},
			{Status: core.PollSucceeded, ResultRef: "R1"},
		},
		fetchData: audio,
	}
	store := &mockStore{}
	notifier := &mockNotifier{}

	orch := newTestOrchestrator(t, synth, store, notifier, 5*time.Second)

	state := orch.Run(context.Background(), testRequest())

	assert.Equal(t, orchestrator.StateSucceeded, state)
	assert.Equal(t, []string{"R1"}, synth.fetchedRefs)
	assert.Equal(t, 1, store.EntryCount())

	notices := notifier.Sent()
	require.Len(t, notices, 1)

	audioNotice, ok := notices[0].(core.AudioNotice)
	require.True(t, ok, "final notice should be an AudioNotice")

	assert.Contains(t, audioNotice.URL, "/audio/")
	assert.Positive(t, audioNotice.DurationHintMs)
	assert.Equal(t, "U1234", notifier.targets[0])
}

func TestRun_TimesOutWhileStillPending(t *testing.T) {
	t.Parallel()

	synth := &mockSynthesizer{taskID: "T1"} // every poll reports pending
	store := &mockStore{}
	notifier := &mockNotifier{}

	orch := newTestOrchestrator(t, synth, store, notifier, 60*time.Millisecond)

	state := orch.Run(context.Background(), testRequest())

	assert.Equal(t, orchestrator.StateTimedOut, state)
	assert.Equal(t, 0, store.EntryCount(), "no artifact may be created on timeout")

	notices := notifier.Sent()
	require.Len(t, notices, 1, "exactly one failure report per job")

	textNotice, ok := notices[0].(core.TextNotice)
	require.True(t, ok)
	assert.Contains(t, textNotice.Text, "timed out")
}

func TestRun_SubmitRejectedFailsImmediately(t *testing.T) {
	t.Parallel()

	synth := &mockSynthesizer{submitErr: errMockSubmit}
	store := &mockStore{}
	notifier := &mockNotifier{}

	orch := newTestOrchestrator(t, synth, store, notifier, time.Second)

	state := orch.Run(context.Background(), testRequest())

	assert.Equal(t, orchestrator.StateFailed, state)
	assert.Equal(t, 0, synth.PolledTimes(), "no polling after a rejected submit")

	notices := notifier.Sent()
	require.Len(t, notices, 1)

	textNotice, ok := notices[0].(core.TextNotice)
	require.True(t, ok)
	assert.Contains(t, textNotice.Text, "1008")
	assert.Contains(t, textNotice.Text, "insufficient balance")
}

func TestRun_ProviderFailureCarriesReason(t *testing.T) {
	t.Parallel()

	synth := &mockSynthesizer{
		taskID: "T1",
		pollResults: []core.PollResult{
			{Status: core.PollFailed, Reason: "voice not found"},
		},
	}
	store := &mockStore{}
	notifier := &mockNotifier{}

	orch := newTestOrchestrator(t, synth, store, notifier, time.Second)

	state := orch.Run(context.Background(), testRequest())

	assert.Equal(t, orchestrator.StateFailed, state)

	notices := notifier.Sent()
	require.Len(t, notices, 1)

	textNotice, ok := notices[0].(core.TextNotice)
	require.True(t, ok)
	assert.Contains(t, textNotice.Text, "voice not found")
}

func TestRun_ProviderExpiry(t *testing.T) {
	t.Parallel()

	synth := &mockSynthesizer{
		taskID: "T1",
		pollResults: []core.PollResult{
			{Status: core.PollExpired, Reason: "task expired"},
		},
	}
	store := &mockStore{}
	notifier := &mockNotifier{}

	orch := newTestOrchestrator(t, synth, store, notifier, time.Second)

	state := orch.Run(context.Background(), testRequest())

	assert.Equal(t, orchestrator.StateExpired, state)

	notices := notifier.Sent()
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0].(core.TextNotice).Text, "task expired")
}

func TestRun_FetchFailureReported(t *testing.T) {
	t.Parallel()

	synth := &mockSynthesizer{
		taskID: "T1",
		pollResults: []core.PollResult{
			{Status: core.PollSucceeded, ResultRef: "R1"},
		},
		fetchErr: errMockFetch,
	}
	store := &mockStore{}
	notifier := &mockNotifier{}

	orch := newTestOrchestrator(t, synth, store, notifier, time.Second)

	state := orch.Run(context.Background(), testRequest())

	assert.Equal(t, orchestrator.StateFailed, state)
	assert.Equal(t, 0, store.EntryCount())

	notices := notifier.Sent()
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0].(core.TextNotice).Text, "could not be retrieved")
}

func TestRun_StoreFailureReported(t *testing.T) {
	t.Parallel()

	synth := &mockSynthesizer{
		taskID: "T1",
		pollResults: []core.PollResult{
			{Status: core.PollSucceeded, ResultRef: "R1"},
		},
		fetchData: bytes.Repeat([]byte{0x01}, 2048),
	}
	store := &mockStore{putErr: errMockStore}
	notifier := &mockNotifier{}

	orch := newTestOrchestrator(t, synth, store, notifier, time.Second)

	state := orch.Run(context.Background(), testRequest())

	assert.Equal(t, orchestrator.StateFailed, state)

	notices := notifier.Sent()
	require.Len(t, notices, 1)

	textNotice, ok := notices[0].(core.TextNotice)
	require.True(t, ok)
	assert.Contains(t, textNotice.Text, "could not be stored")
	assert.Contains(t, textNotice.Text, "disk full")
}

func TestRun_CancelledContextStillDeliversTimeoutNotice(t *testing.T) {
	t.Parallel()

	synth := &mockSynthesizer{taskID: "T9"}
	store := &mockStore{}
	notifier := &mockNotifier{}

	orch := newTestOrchestrator(t, synth, store, notifier, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state := orch.Run(ctx, testRequest())

	assert.Equal(t, orchestrator.StateTimedOut, state)
	assert.Equal(t, 0, store.EntryCount())

	notices := notifier.Sent()
	require.Len(t, notices, 1)

	textNotice, ok := notices[0].(core.TextNotice)
	require.True(t, ok, "final notice should be a TextNotice")
	assert.Contains(t, textNotice.Text, "timed out")

	// The notice must ride a live context even though the job's is dead.
	require.NoError(t, notifier.ctxErrs[0])
}
