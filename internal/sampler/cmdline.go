package sampler

import (
	"bytes"
	"fmt"
	"os"

	"github.com/vmon-project/vmon/internal/bitmap"
)

const (
	CmdlineFieldArgc = iota
	CmdlineFieldArgv
	NumCmdlineFields
)

// CmdlineStore holds /proc/$pid/cmdline's null-delimited argv: count
// nulls for argc, re-slice argv pointers whenever argc changes, and
// always re-walk the raw bytes since pointers (here, string headers)
// alias the backing allocation.
type CmdlineStore struct {
	Argc int
	Argv []string

	raw []byte

	Changed bitmap.Bitmap

	file *os.File
}

func NewCmdlineStore(path string) (*CmdlineStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &CmdlineStore{Changed: bitmap.New(NumCmdlineFields), file: f}, nil
}

func (s *CmdlineStore) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *CmdlineStore) Sample() (Result, error) {
	if s.file == nil {
		return Error, fmt.Errorf("sampler: cmdline store has no open file")
	}
	if _, err := s.file.Seek(0, 0); err != nil {
		return Unchanged, nil
	}
	buf := make([]byte, 8192)
	n, err := s.file.Read(buf)
	if err != nil && n == 0 {
		return Unchanged, nil
	}
	data := bytes.TrimRight(buf[:n], "\x00")

	s.Changed.ClearAll()

	argc := 0
	if len(data) > 0 {
		argc = bytes.Count(data, []byte{0}) + 1
	}
	setInt(&s.Argc, argc, CmdlineFieldArgc, s.Changed)

	// Re-populate argv by walking the raw bytes; grow s.raw's backing
	// allocation monotonically, reusing its capacity when it already fits.
	if cap(s.raw) < len(data) {
		s.raw = make([]byte, len(data))
	}
	s.raw = s.raw[:len(data)]
	copy(s.raw, data)

	argv := make([]string, 0, argc)
	if len(s.raw) > 0 {
		for _, part := range bytes.Split(s.raw, []byte{0}) {
			argv = append(argv, string(part))
		}
	}
	if !equalStrings(s.Argv, argv) {
		s.Argv = argv
		s.Changed.Set(CmdlineFieldArgv)
	}

	if s.Changed.Any() {
		return Changed, nil
	}
	return Unchanged, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
