package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoveIfPresentCountsOnlyRealRemovals(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.mp3")

	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o600))

	wasRemoved, err := removeIfPresent(path)
	require.NoError(t, err)
	assert.True(t, wasRemoved)

	// A second sweep racing for the same file finds it gone already.
	wasRemoved, err = removeIfPresent(path)
	require.NoError(t, err)
	assert.False(t, wasRemoved)
}
