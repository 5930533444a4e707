package jobfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJob(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDecodesMixedTargetsAndSegments(t *testing.T) {
	path := writeJob(t, `
- to: [10, 0, 0]
- to: [10, 10, 0]
- segment:
    move_id: 3
    start_v: 5
    end_v: 0
    coords: [0, 0, 0]
`)

	job, err := Load(path)
	require.NoError(t, err)
	require.Len(t, job, 3)

	assert.False(t, job[0].IsSegment())
	assert.Equal(t, []float64{10, 0, 0}, job[0].To)

	assert.True(t, job[2].IsSegment())
	assert.Equal(t, uint32(3), job[2].Segment.MoveID)
	assert.Equal(t, 5.0, job[2].Segment.StartV)
}

func TestLoadRejectsAnEntryWithNeitherToNorSegment(t *testing.T) {
	path := writeJob(t, `
- to: [1, 1]
- {}
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsAnEntryWithBothToAndSegment(t *testing.T) {
	path := writeJob(t, `
- to: [1, 1]
  segment:
    move_id: 1
    coords: [0, 0]
`)

	_, err := Load(path)
	require.Error(t, err)
}
