// Package artifact_test tests the filesystem artifact store.
package artifact_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prakasit008-sys/Pea-linebot/internal/artifact"
)

const testBaseURL = "https://bot.example.com"

func newTestStore(t *testing.T, ttl time.Duration) (*artifact.Store, string) {
	t.Helper()

	dir := t.TempDir()

	testLogger, err := logger.New(t.TempDir(), "artifact-test.log")
	require.NoError(t, err)

	store, err := artifact.New(dir, testBaseURL, ttl, testLogger)
	require.NoError(t, err)

	return store, dir
}

func TestPutGet_RoundTrip(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, time.Hour)

	payload := []byte("fake mp3 payload bytes")

	id, url, err := store.Put(payload)
	require.NoError(t, err)

	assert.Equal(t, testBaseURL+"/audio/"+id, url)

	got, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestPut_GeneratesUniqueIDs(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, time.Hour)

	first, _, err := store.Put([]byte("one"))
	require.NoError(t, err)

	second, _, err := store.Put([]byte("two"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestPut_RejectsEmptyData(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, time.Hour)

	_, _, err := store.Put(nil)
	require.ErrorIs(t, err, artifact.ErrEmptyData)
}

func TestGet_RejectsTraversalIDs(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, time.Hour)

	for _, id := range []string{"", "../etc/passwd", "a/../../b.mp3", "sub/dir.mp3", ".tmp-123"} {
		_, err := store.Get(id)
		assert.ErrorIs(t, err, artifact.ErrInvalidID, "id %q should be rejected", id)
	}
}

func TestGet_NotFound(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, time.Hour)

	_, err := store.Get("missing.mp3")
	require.ErrorIs(t, err, artifact.ErrNotFound)
}

func TestEvictExpired_RemovesOldKeepsFresh(t *testing.T) {
	t.Parallel()

	ttl := time.Minute
	store, dir := newTestStore(t, ttl)

	oldID, _, err := store.Put([]byte("old artifact"))
	require.NoError(t, err)

	freshID, _, err := store.Put([]byte("fresh artifact"))
	require.NoError(t, err)

	// Backdate the first artifact past the TTL.
	past := time.Now().Add(-ttl - time.Second)
	require.NoError(t, os.Chtimes(filepath.Join(dir, oldID), past, past))

	removed, err := store.EvictExpired()
	require.NoError(t, err)

	assert.Equal(t, 1, removed)

	_, err = store.Get(oldID)
	assert.ErrorIs(t, err, artifact.ErrNotFound)

	_, err = store.Get(freshID)
	assert.NoError(t, err)
}

func TestEvictExpired_SkipsInFlightTempFiles(t *testing.T) {
	t.Parallel()

	store, dir := newTestStore(t, time.Minute)

	tempPath := filepath.Join(dir, ".tmp-inflight")
	require.NoError(t, os.WriteFile(tempPath, []byte("partial"), 0o600))

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(tempPath, past, past))

	removed, err := store.EvictExpired()
	require.NoError(t, err)

	assert.Equal(t, 0, removed)

	_, statErr := os.Stat(tempPath)
	assert.NoError(t, statErr, "in-flight temp file must survive eviction")
}

func TestEvictExpired_DisabledTTL(t *testing.T) {
	t.Parallel()

	store, dir := newTestStore(t, 0)

	id, _, err := store.Put([]byte("kept forever"))
	require.NoError(t, err)

	past := time.Now().Add(-24 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, id), past, past))

	removed, err := store.EvictExpired()
	require.NoError(t, err)

	assert.Equal(t, 0, removed)
}

func TestServeHTTP_ServesAudio(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, time.Hour)

	payload := []byte("served audio bytes")

	id, _, err := store.Put(payload)
	require.NoError(t, err)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/audio/"+id, nil)

	store.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "audio/mpeg", recorder.Header().Get("Content-Type"))
	assert.Equal(t, payload, recorder.Body.Bytes())
}

func TestServeHTTP_NotFound(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, time.Hour)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/audio/missing.mp3", nil)

	store.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestServeHTTP_RejectsNonGet(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, time.Hour)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodDelete, "/audio/some.mp3", nil)

	store.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
}
