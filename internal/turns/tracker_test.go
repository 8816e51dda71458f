package turns

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestTrackerLifecycle covers mark, resolve and the session sweep.
func TestTrackerLifecycle(t *testing.T) {
	tr := NewTracker()
	assert.Zero(t, tr.Count())
	assert.False(t, tr.Pending("s1", 1))

	tr.Mark("s1", 1)
	tr.Mark("s1", 2)
	tr.Mark("s2", 1)
	assert.Equal(t, 3, tr.Count())
	assert.True(t, tr.Pending("s1", 1))

	tr.Resolve("s1", 1)
	assert.False(t, tr.Pending("s1", 1))
	assert.True(t, tr.Pending("s1", 2))
	assert.Equal(t, 2, tr.Count())

	// Resolving twice is harmless.
	tr.Resolve("s1", 1)
	assert.Equal(t, 2, tr.Count())

	tr.ForgetSession("s1")
	assert.False(t, tr.Pending("s1", 2))
	assert.True(t, tr.Pending("s2", 1))
	assert.Equal(t, 1, tr.Count())
}
