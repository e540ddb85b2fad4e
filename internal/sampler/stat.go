package sampler

import (
	"bytes"
	"fmt"
	"os"

	"github.com/vmon-project/vmon/internal/bitmap"
)

// Stat field indices into a StatStore's changed bitmap.
const (
	StatFieldPid = iota
	StatFieldComm
	StatFieldState
	StatFieldPPid
	StatFieldUTime
	StatFieldSTime
	StatFieldNumThreads
	StatFieldStartTime
	StatFieldVSize
	StatFieldRSS
	StatFieldProcessor
	StatFieldMinFlt
	StatFieldMajFlt
	NumStatFields
)

// StatStore holds the subset of /proc/$pid/stat (or
// /proc/$pid/task/$tid/stat) fields the chart engine and text columns need:
// pid, comm, state, ppid, CPU times, thread count, start time, memory and
// fault counters, and the last processor. wchan is held by WchanStore.
type StatStore struct {
	Pid        int
	Comm       string
	State      byte
	PPid       int
	UTime      uint64
	STime      uint64
	NumThreads int
	StartTime  uint64
	VSize      uint64
	RSS        int64
	Processor  int
	MinFlt     uint64
	MajFlt     uint64

	Changed bitmap.Bitmap

	file *os.File // kept open across samples, re-pread at offset 0
}

// NewStatStore allocates a store and opens the backing /proc file, kept
// open across samples and re-read from offset 0 each time.
func NewStatStore(path string) (*StatStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &StatStore{Changed: bitmap.New(NumStatFields), file: f}, nil
}

// Close releases the held file descriptor. Called from the sampler
// destructor branch when refcount reaches zero.
func (s *StatStore) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// Sample re-reads the stat line at offset 0 and updates fields in place,
// setting changed bits on difference. comm, read separately from
// /proc/$pid/comm, is what gets stored as Comm; the stat line's own comm
// field is skipped by splitting at its last ')', so a comm containing
// spaces or parentheses does not shift the fields after it.
func (s *StatStore) Sample(comm string) (Result, error) {
	if s.file == nil {
		return Error, fmt.Errorf("sampler: stat store has no open file")
	}
	if _, err := s.file.Seek(0, 0); err != nil {
		return Unchanged, nil // transient: pid likely exited between samples
	}
	buf := make([]byte, 4096)
	n, err := s.file.Read(buf)
	if err != nil && n == 0 {
		return Unchanged, nil
	}
	data := buf[:n]

	open := bytes.IndexByte(data, '(')
	closeParen := bytes.LastIndexByte(data, ')')
	if open < 0 || closeParen < 0 || closeParen < open {
		return Error, fmt.Errorf("sampler: malformed stat line")
	}

	s.Changed.ClearAll()

	pid := parseInt(data[:open])
	setInt(&s.Pid, pid, StatFieldPid, s.Changed)
	setString(&s.Comm, comm, StatFieldComm, s.Changed, true)

	sc := newFieldScanner(data[closeParen+1:])
	fields := make([][]byte, 0, 50)
	for {
		f, ok := sc.next()
		if !ok {
			break
		}
		fields = append(fields, f)
	}
	// Fields after comm, 0-indexed: state=0 ppid=1 ... utime=11 stime=12
	// num_threads=17 starttime=19 vsize=20 rss=21 processor=36 minflt=7 majflt=9.
	if len(fields) < 37 {
		return Error, fmt.Errorf("sampler: stat line too short (%d fields)", len(fields))
	}
	setByte(&s.State, parseChar(fields[0]), StatFieldState, s.Changed)
	setInt(&s.PPid, parseInt(fields[1]), StatFieldPPid, s.Changed)
	setUint64(&s.MinFlt, parseUint64(fields[7]), StatFieldMinFlt, s.Changed)
	setUint64(&s.MajFlt, parseUint64(fields[9]), StatFieldMajFlt, s.Changed)
	setUint64(&s.UTime, parseUint64(fields[11]), StatFieldUTime, s.Changed)
	setUint64(&s.STime, parseUint64(fields[12]), StatFieldSTime, s.Changed)
	setInt(&s.NumThreads, parseInt(fields[17]), StatFieldNumThreads, s.Changed)
	setUint64(&s.StartTime, parseUint64(fields[19]), StatFieldStartTime, s.Changed)
	setUint64(&s.VSize, parseUint64(fields[20]), StatFieldVSize, s.Changed)
	setInt64(&s.RSS, parseInt64(fields[21]), StatFieldRSS, s.Changed)
	setInt(&s.Processor, parseInt(fields[36]), StatFieldProcessor, s.Changed)

	if s.Changed.Any() {
		return Changed, nil
	}
	return Unchanged, nil
}

// ReadComm reads /proc/$pid/comm (or the task variant), trimming the
// trailing newline. Its result is the comm argument to Sample.
func ReadComm(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(bytes.TrimRight(data, "\n")), nil
}
