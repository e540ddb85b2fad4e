package sampler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatmStoreSample(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "statm", "100 50 10 5 0 20 0\n")
	store, err := NewStatmStore(path)
	require.NoError(t, err)
	defer store.Close()

	res, err := store.Sample()
	require.NoError(t, err)
	require.Equal(t, Changed, res)
	require.Equal(t, uint64(100), store.Size)
	require.Equal(t, uint64(50), store.Resident)
	require.Equal(t, uint64(10), store.Shared)
	require.Equal(t, uint64(5), store.Text)
	require.Equal(t, uint64(20), store.Data)
}

func TestIOStoreSample(t *testing.T) {
	dir := t.TempDir()
	content := "rchar: 100\nwchar: 200\nsyscr: 1\nsyscw: 2\nread_bytes: 300\nwrite_bytes: 400\ncancelled_write_bytes: 0\n"
	path := writeFile(t, dir, "io", content)
	store, err := NewIOStore(path)
	require.NoError(t, err)
	defer store.Close()

	res, err := store.Sample()
	require.NoError(t, err)
	require.Equal(t, Changed, res)
	require.Equal(t, uint64(100), store.RChar)
	require.Equal(t, uint64(200), store.WChar)
	require.Equal(t, uint64(300), store.ReadBytes)
	require.Equal(t, uint64(400), store.WriteBytes)
}

func TestCmdlineStoreSample(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cmdline", "ls\x00-la\x00/tmp\x00")
	store, err := NewCmdlineStore(path)
	require.NoError(t, err)
	defer store.Close()

	res, err := store.Sample()
	require.NoError(t, err)
	require.Equal(t, Changed, res)
	require.Equal(t, 3, store.Argc)
	require.Equal(t, []string{"ls", "-la", "/tmp"}, store.Argv)

	res, err = store.Sample()
	require.NoError(t, err)
	require.Equal(t, Unchanged, res)
}

func TestCmdlineStoreEmpty(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cmdline", "")
	store, err := NewCmdlineStore(path)
	require.NoError(t, err)
	defer store.Close()

	res, err := store.Sample()
	require.NoError(t, err)
	require.Equal(t, Unchanged, res)
	require.Equal(t, 0, store.Argc)
}

func TestWchanStoreSample(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "wchan", "poll_schedule_timeout")
	store, err := NewWchanStore(path)
	require.NoError(t, err)
	defer store.Close()

	res, err := store.Sample()
	require.NoError(t, err)
	require.Equal(t, Changed, res)
	require.Equal(t, "poll_schedule_timeout", store.Name)
}

func TestSysStatStoreSample(t *testing.T) {
	dir := t.TempDir()
	content := "cpu  100 10 50 2000 5 0 2 0 0 0\ncpu0 50 5 25 1000 2 0 1 0 0 0\nintr 12345\n"
	path := writeFile(t, dir, "stat", content)
	store, err := NewSysStatStore(path)
	require.NoError(t, err)
	defer store.Close()

	res, err := store.Sample()
	require.NoError(t, err)
	require.Equal(t, Changed, res)
	require.Equal(t, uint64(100), store.User)
	require.Equal(t, uint64(2000), store.Idle)
	require.Greater(t, store.Total(), uint64(0))
}

func TestMemInfoStoreSample(t *testing.T) {
	dir := t.TempDir()
	content := "MemTotal:       16384000 kB\nMemFree:         1000000 kB\nMemAvailable:    8000000 kB\nBuffers:          200000 kB\nCached:          3000000 kB\nSwapTotal:       2000000 kB\nSwapFree:        2000000 kB\n"
	path := writeFile(t, dir, "meminfo", content)
	store, err := NewMemInfoStore(path)
	require.NoError(t, err)
	defer store.Close()

	res, err := store.Sample()
	require.NoError(t, err)
	require.Equal(t, Changed, res)
	require.Equal(t, uint64(16384000), store.MemTotal)
	require.Equal(t, uint64(8000000), store.MemAvailable)
}
