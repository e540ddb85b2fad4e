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
	MemInfoFieldTotal = iota
	MemInfoFieldFree
	MemInfoFieldAvailable
	MemInfoFieldBuffers
	MemInfoFieldCached
	MemInfoFieldSwapTotal
	MemInfoFieldSwapFree
	NumMemInfoFields
)

// MemInfoStore holds the /proc/meminfo fields the header row and capacity
// warnings need. All values are in kB, matching the source file's unit.
type MemInfoStore struct {
	MemTotal, MemFree, MemAvailable uint64
	Buffers, Cached                 uint64
	SwapTotal, SwapFree             uint64

	Changed bitmap.Bitmap

	file *os.File
}

func NewMemInfoStore(path string) (*MemInfoStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &MemInfoStore{Changed: bitmap.New(NumMemInfoFields), file: f}, nil
}

func (s *MemInfoStore) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *MemInfoStore) Sample() (Result, error) {
	if s.file == nil {
		return Error, fmt.Errorf("sampler: meminfo store has no open file")
	}
	if _, err := s.file.Seek(0, 0); err != nil {
		return Error, err
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
		valStr := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line[idx+1:]), "kB"))
		val, err := strconv.ParseUint(strings.TrimSpace(valStr), 10, 64)
		if err != nil {
			continue
		}
		switch key {
		case "MemTotal":
			setUint64(&s.MemTotal, val, MemInfoFieldTotal, s.Changed)
		case "MemFree":
			setUint64(&s.MemFree, val, MemInfoFieldFree, s.Changed)
		case "MemAvailable":
			setUint64(&s.MemAvailable, val, MemInfoFieldAvailable, s.Changed)
		case "Buffers":
			setUint64(&s.Buffers, val, MemInfoFieldBuffers, s.Changed)
		case "Cached":
			setUint64(&s.Cached, val, MemInfoFieldCached, s.Changed)
		case "SwapTotal":
			setUint64(&s.SwapTotal, val, MemInfoFieldSwapTotal, s.Changed)
		case "SwapFree":
			setUint64(&s.SwapFree, val, MemInfoFieldSwapFree, s.Changed)
		}
	}
	if s.Changed.Any() {
		return Changed, nil
	}
	return Unchanged, nil
}
