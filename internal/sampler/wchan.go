package sampler

import (
	"fmt"
	"os"

	"github.com/vmon-project/vmon/internal/bitmap"
)

const (
	WchanFieldName = iota
	NumWchanFields
)

// WchanStore holds /proc/$pid/wchan, the kernel function a sleeping task
// is blocked in. Empty reads race with process exit; suppressed by a
// truncation-suppression flag.
type WchanStore struct {
	Name string

	Changed bitmap.Bitmap

	file *os.File
}

func NewWchanStore(path string) (*WchanStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &WchanStore{Changed: bitmap.New(NumWchanFields), file: f}, nil
}

func (s *WchanStore) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *WchanStore) Sample() (Result, error) {
	if s.file == nil {
		return Error, fmt.Errorf("sampler: wchan store has no open file")
	}
	if _, err := s.file.Seek(0, 0); err != nil {
		return Unchanged, nil
	}
	buf := make([]byte, 256)
	n, err := s.file.Read(buf)
	if err != nil && n == 0 {
		return Unchanged, nil
	}

	s.Changed.ClearAll()
	setString(&s.Name, string(buf[:n]), WchanFieldName, s.Changed, true)

	if s.Changed.Any() {
		return Changed, nil
	}
	return Unchanged, nil
}
