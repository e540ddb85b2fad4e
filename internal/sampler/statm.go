package sampler

import (
	"fmt"
	"os"

	"github.com/vmon-project/vmon/internal/bitmap"
)

const (
	StatmFieldSize = iota
	StatmFieldResident
	StatmFieldShared
	StatmFieldText
	StatmFieldData
	NumStatmFields
)

// StatmStore holds /proc/$pid/statm's page-count fields (resident and
// virtual page totals).
type StatmStore struct {
	Size     uint64 // total program size, pages
	Resident uint64
	Shared   uint64
	Text     uint64
	Data     uint64

	Changed bitmap.Bitmap

	file *os.File
}

func NewStatmStore(path string) (*StatmStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &StatmStore{Changed: bitmap.New(NumStatmFields), file: f}, nil
}

func (s *StatmStore) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *StatmStore) Sample() (Result, error) {
	if s.file == nil {
		return Error, fmt.Errorf("sampler: statm store has no open file")
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
	sc := newFieldScanner(buf[:n])
	vals := make([]uint64, 0, 7)
	for {
		f, ok := sc.next()
		if !ok {
			break
		}
		vals = append(vals, parseUint64(f))
	}
	if len(vals) < 6 {
		return Error, fmt.Errorf("sampler: statm line too short")
	}
	setUint64(&s.Size, vals[0], StatmFieldSize, s.Changed)
	setUint64(&s.Resident, vals[1], StatmFieldResident, s.Changed)
	setUint64(&s.Shared, vals[2], StatmFieldShared, s.Changed)
	setUint64(&s.Text, vals[3], StatmFieldText, s.Changed)
	setUint64(&s.Data, vals[5], StatmFieldData, s.Changed)

	if s.Changed.Any() {
		return Changed, nil
	}
	return Unchanged, nil
}
