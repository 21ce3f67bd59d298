package logging

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlightRecorderLifecycle(t *testing.T) {
	fr := NewFlightRecorder(WithMinAge(time.Second), WithMaxBytes(1 << 20))

	require.NoError(t, fr.Start())
	assert.True(t, fr.Enabled())

	// Idempotent start
	require.NoError(t, fr.Start())

	path := filepath.Join(t.TempDir(), "snap.trace")
	require.NoError(t, fr.Snapshot(path))

	fr.Stop()
	assert.False(t, fr.Enabled())

	// Snapshot after stop is a no-op
	require.NoError(t, fr.Snapshot(filepath.Join(t.TempDir(), "noop.trace")))
}

func TestSnapshotOnError(t *testing.T) {
	fr := NewFlightRecorder()

	err := assert.AnError
	got := fr.SnapshotOnError(err, filepath.Join(t.TempDir(), "err.trace"))
	assert.Same(t, err, got)

	assert.NoError(t, fr.SnapshotOnError(nil, "unused"))
}
