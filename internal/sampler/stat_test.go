package sampler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestStatStoreSampleAndChangedBits(t *testing.T) {
	dir := t.TempDir()
	statLine := "1234 (my proc) S 1 1234 1234 0 -1 4194304 100 0 0 0 10 20 0 0 20 0 1 0 5000 123456 678 18446744073709551615 " +
		"1 1 0 0 0 0 0 0 0 0 0 0 17 2 0 0 0 0 0 0 0 0 0 0 0 0 0\n"
	path := writeFile(t, dir, "stat", statLine)

	store, err := NewStatStore(path)
	require.NoError(t, err)
	defer store.Close()

	res, err := store.Sample("my proc")
	require.NoError(t, err)
	require.Equal(t, Changed, res)
	require.Equal(t, 1234, store.Pid)
	require.Equal(t, "my proc", store.Comm)
	require.Equal(t, byte('S'), store.State)
	require.Equal(t, uint64(10), store.UTime)
	require.Equal(t, uint64(20), store.STime)
	require.True(t, store.Changed.Test(StatFieldUTime))

	// Re-sampling identical content reports Unchanged.
	res, err = store.Sample("my proc")
	require.NoError(t, err)
	require.Equal(t, Unchanged, res)
	require.False(t, store.Changed.Any())
}

func TestStatStoreMalformedLine(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "stat", "not a stat line at all\n")
	store, err := NewStatStore(path)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Sample("x")
	require.Error(t, err)
}

func TestReadComm(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "comm", "bash\n")
	comm, err := ReadComm(path)
	require.NoError(t, err)
	require.Equal(t, "bash", comm)
}
