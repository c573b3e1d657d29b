// Package artifact persists finished audio artifacts on the local filesystem,
// serves them over HTTP, and evicts them after a configurable time-to-live.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"
)

// File and directory permissions.
const (
	filePermissions = 0o600
	dirPermissions  = 0o750
)

// Naming and serving constants.
const (
	// tempPrefix marks in-flight writes. Get and EvictExpired skip these,
	// which is what makes eviction safe against concurrent Put calls.
	tempPrefix = ".tmp-"

	audioExtension = ".mp3"
	wavExtension   = ".wav"

	// URLPathPrefix is the public route artifacts are served under.
	URLPathPrefix = "/audio/"

	contentTypeMPEG = "audio/mpeg"
	contentTypeWAV  = "audio/wav"
)

// Static errors.
var (
	// ErrNotFound indicates no artifact exists under the requested id.
	ErrNotFound = errors.New("artifact not found")

	// ErrInvalidID indicates an id that is empty or not a bare filename.
	ErrInvalidID = errors.New("invalid artifact id")

	// ErrEmptyData indicates an attempt to persist an empty artifact.
	ErrEmptyData = errors.New("artifact data cannot be empty")
)

// Store owns one directory of immutable audio artifacts. Writes are atomic
// (temp file then rename), names are uuid-generated so concurrent runs never
// collide, and entries older than the TTL are removed by EvictExpired.
type Store struct {
	dir     string
	baseURL string
	ttl     time.Duration
	log     *logger.Logger
}

// New creates a store rooted at dir, creating the directory if needed. The
// baseURL is the public address artifact URLs are built from. A ttl of zero
// or less disables eviction.
func New(dir, baseURL string, ttl time.Duration, log *logger.Logger) (*Store, error) {
	err := os.MkdirAll(dir, dirPermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact directory '%s': %w", dir, err)
	}

	return &Store{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     ttl,
		log:     log,
	}, nil
}

// Put persists an artifact and returns its generated id and public URL. The
// artifact is written to a temp path and renamed into place, so a partially
// written file is never visible under its final name.
func (s *Store) Put(data []byte) (string, string, error) {
	if len(data) == 0 {
		return "", "", ErrEmptyData
	}

	id := uuid.NewString() + audioExtension

	tempFile, err := os.CreateTemp(s.dir, tempPrefix+"*")
	if err != nil {
		return "", "", fmt.Errorf("failed to create temp file: %w", err)
	}

	tempPath := tempFile.Name()

	_, writeErr := tempFile.Write(data)

	closeErr := tempFile.Close()
	if writeErr != nil {
		_ = os.Remove(tempPath)

		return "", "", fmt.Errorf("failed to write artifact data: %w", writeErr)
	}

	if closeErr != nil {
		_ = os.Remove(tempPath)

		return "", "", fmt.Errorf("failed to close temp file: %w", closeErr)
	}

	err = os.Chmod(tempPath, filePermissions)
	if err != nil {
		_ = os.Remove(tempPath)

		return "", "", fmt.Errorf("failed to set artifact permissions: %w", err)
	}

	err = os.Rename(tempPath, filepath.Join(s.dir, id))
	if err != nil {
		_ = os.Remove(tempPath)

		return "", "", fmt.Errorf("failed to move artifact into place: %w", err)
	}

	return id, s.URL(id), nil
}

// URL builds the public address of an artifact from the configured base
// address and its id alone.
func (s *Store) URL(id string) string {
	return s.baseURL + URLPathPrefix + id
}

// Get returns the stored bytes for an id. Ids that are not bare filenames are
// rejected before touching the filesystem.
func (s *Store) Get(id string) ([]byte, error) {
	err := validateID(id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.dir, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}

		return nil, fmt.Errorf("failed to read artifact '%s': %w", id, err)
	}

	return data, nil
}

// EvictExpired removes artifacts older than the store's TTL and reports how
// many were removed. In-flight temp files are never touched. A disabled TTL
// makes this a no-op.
func (s *Store) EvictExpired() (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to scan artifact directory: %w", err)
	}

	cutoff := time.Now().Add(-s.ttl)
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), tempPrefix) {
			continue
		}

		info, infoErr := entry.Info()
		if infoErr != nil {
			// The entry may have been evicted by a concurrent sweep.
			continue
		}

		if info.ModTime().After(cutoff) {
			continue
		}

		wasRemoved, removeErr := removeIfPresent(filepath.Join(s.dir, entry.Name()))
		if removeErr != nil {
			return removed, fmt.Errorf(
				"failed to evict artifact '%s': %w", entry.Name(), removeErr,
			)
		}

		if wasRemoved {
			removed++
		}
	}

	return removed, nil
}

// removeIfPresent deletes a file and reports whether this call removed it. A
// file already deleted by a concurrent sweep is not an error, but it does not
// count as a removal either.
func removeIfPresent(path string) (bool, error) {
	err := os.Remove(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to remove '%s': %w", path, err)
	}

	return true, nil
}

// StartJanitor runs EvictExpired on a fixed interval until the context is
// cancelled.
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.EvictExpired()
				if err != nil {
					s.log.Error("Artifact eviction sweep failed: %v", err)

					continue
				}

				if removed > 0 {
					s.log.Info("Evicted %d expired artifacts", removed)
				}
			}
		}
	}()
}

// ServeHTTP serves GET /audio/{id}, returning the stored bytes with an audio
// content type, or 404 when the artifact is absent or the id malformed.
func (s *Store) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		http.Error(writer, "method not allowed", http.StatusMethodNotAllowed)

		return
	}

	id := filepath.Base(strings.TrimPrefix(request.URL.Path, URLPathPrefix))

	data, err := s.Get(id)
	if err != nil {
		http.NotFound(writer, request)

		return
	}

	writer.Header().Set("Content-Type", contentTypeFor(id))
	_, _ = writer.Write(data)
}

func contentTypeFor(id string) string {
	if strings.HasSuffix(id, wavExtension) {
		return contentTypeWAV
	}

	return contentTypeMPEG
}

// validateID rejects ids that could escape the storage root or read a file
// that is still being written.
func validateID(id string) error {
	if id == "" || id != filepath.Base(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	if strings.Contains(id, "..") || strings.HasPrefix(id, tempPrefix) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	return nil
}
