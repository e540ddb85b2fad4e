package sampler

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/vmon-project/vmon/internal/bitmap"
)

const (
	IOFieldRChar = iota
	IOFieldWChar
	IOFieldReadBytes
	IOFieldWriteBytes
	NumIOFields
)

// IOStore holds /proc/$pid/io's labeled byte-read/byte-written counters.
// /proc/$pid/io is root-or-owner readable only; a permission error here
// is treated as transient and leaves the store at its previous values.
type IOStore struct {
	RChar      uint64
	WChar      uint64
	ReadBytes  uint64
	WriteBytes uint64

	Changed bitmap.Bitmap

	file *os.File
}

func NewIOStore(path string) (*IOStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &IOStore{Changed: bitmap.New(NumIOFields), file: f}, nil
}

func (s *IOStore) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *IOStore) Sample() (Result, error) {
	if s.file == nil {
		return Error, fmt.Errorf("sampler: io store has no open file")
	}
	if _, err := s.file.Seek(0, 0); err != nil {
		return Unchanged, nil
	}

	s.Changed.ClearAll()
	scan := bufio.NewScanner(s.file)
	for scan.Scan() {
		line := scan.Text()
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		key := line[:idx]
		val, err := strconv.ParseUint(strings.TrimSpace(line[idx+1:]), 10, 64)
		if err != nil {
			continue
		}
		switch key {
		case "rchar":
			setUint64(&s.RChar, val, IOFieldRChar, s.Changed)
		case "wchar":
			setUint64(&s.WChar, val, IOFieldWChar, s.Changed)
		case "read_bytes":
			setUint64(&s.ReadBytes, val, IOFieldReadBytes, s.Changed)
		case "write_bytes":
			setUint64(&s.WriteBytes, val, IOFieldWriteBytes, s.Changed)
		}
	}
	if s.Changed.Any() {
		return Changed, nil
	}
	return Unchanged, nil
}
