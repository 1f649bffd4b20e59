package rundir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Create_LaysOutTree(t *testing.T) {
	base := t.TempDir()
	m := NewManager(base)
	l, err := m.Create("wf", "1.0.0", "20260101_000000_deadbeef")
	require.NoError(t, err)

	for _, dir := range []string{l.Root, l.Inputs, l.Outputs, l.Logs, l.Tmp} {
		info, statErr := os.Stat(dir)
		require.NoError(t, statErr)
		assert.True(t, info.IsDir())
	}
	assert.Equal(t, filepath.Join(base, "runs", "wf", "1.0.0", "20260101_000000_deadbeef"), l.Root)
}

func TestManager_StageInputs_CopiesGlobMatches(t *testing.T) {
	base := t.TempDir()
	cwd := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cwd, "sample.fastq"), []byte("ACGT"), 0o644))

	m := NewManager(base)
	l, err := m.Create("wf", "1.0.0", "20260101_000000_deadbeef")
	require.NoError(t, err)

	resolved, err := m.StageInputs(l, cwd, map[string]string{"sample": "sample.fastq"})
	require.NoError(t, err)

	staged := resolved["sample"]
	assert.FileExists(t, staged)
	data, _ := os.ReadFile(staged)
	assert.Equal(t, "ACGT", string(data))
}

func TestManager_StageInputs_UnreadablePathErrors(t *testing.T) {
	base := t.TempDir()
	cwd := t.TempDir()
	m := NewManager(base)
	l, err := m.Create("wf", "1.0.0", "20260101_000000_deadbeef")
	require.NoError(t, err)

	_, err = m.StageInputs(l, cwd, map[string]string{"missing": "does-not-exist.fastq"})
	assert.Error(t, err)
}

func TestManager_DiscoverOutputs_FindsNewFilesOnly(t *testing.T) {
	base := t.TempDir()
	m := NewManager(base)
	l, err := m.Create("wf", "1.0.0", "20260101_000000_deadbeef")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(l.Outputs, "before.txt"), []byte("x"), 0o644))
	before := m.SnapshotOutputs(l)

	require.NoError(t, os.WriteFile(filepath.Join(l.Outputs, "after.txt"), []byte("y"), 0o644))
	produced, err := m.DiscoverOutputs(l, before)
	require.NoError(t, err)
	assert.Equal(t, []string{"after.txt"}, produced)
}
