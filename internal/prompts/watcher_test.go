package prompts

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWatcherReloadsOnWrite verifies an edited template file is picked
// up without a restart.
func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, conversationFile)
	require.NoError(t, os.WriteFile(path, []byte("before"), 0o644))

	l, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "before", l.Conversation())

	w, err := NewWatcher(l)
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("after"), 0o644))

	assert.Eventually(t, func() bool {
		return l.Conversation() == "after"
	}, 5*time.Second, 20*time.Millisecond)
}

// TestWatcherWithoutDirectory verifies a defaults-only library starts
// as a no-op.
func TestWatcherWithoutDirectory(t *testing.T) {
	w, err := NewWatcher(Default())
	require.NoError(t, err)
	assert.NoError(t, w.Start())
	assert.NoError(t, w.Stop())
}

// TestWatcherStopTwice verifies Stop is idempotent.
func TestWatcherStopTwice(t *testing.T) {
	l, err := Load(t.TempDir())
	require.NoError(t, err)

	w, err := NewWatcher(l)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}
