package sampler

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/vmon-project/vmon/internal/bitmap"
	"golang.org/x/sys/unix"
)

const (
	SysStatFieldUser = iota
	SysStatFieldNice
	SysStatFieldSystem
	SysStatFieldIdle
	SysStatFieldIOWait
	SysStatFieldIRQ
	SysStatFieldSoftIRQ
	SysStatFieldSteal
	SysStatFieldGuest
	SysStatFieldBootTime
	NumSysStatFields
)

// SysStatStore holds the system-wide CPU time fields from /proc/stat's
// "cpu " line, plus a derived boot time used to compute process uptime.
// These feed the total CPU delta and idle/iowait delta used for
// per-process bar scaling, and the boot time is recomputed each tick from
// the monotonic boot clock.
type SysStatStore struct {
	User, Nice, System, Idle, IOWait, IRQ, SoftIRQ, Steal, Guest uint64
	BootTime                                                      uint64 // seconds since epoch

	Changed bitmap.Bitmap

	file *os.File
}

func NewSysStatStore(path string) (*SysStatStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &SysStatStore{Changed: bitmap.New(NumSysStatFields), file: f}, nil
}

func (s *SysStatStore) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// Total returns the sum of all accounted CPU tick buckets.
func (s *SysStatStore) Total() uint64 {
	return s.User + s.Nice + s.System + s.Idle + s.IOWait + s.IRQ + s.SoftIRQ + s.Steal + s.Guest
}

func (s *SysStatStore) Sample() (Result, error) {
	if s.file == nil {
		return Error, fmt.Errorf("sampler: sys stat store has no open file")
	}
	if _, err := s.file.Seek(0, 0); err != nil {
		return Error, err
	}

	s.Changed.ClearAll()
	scan := bufio.NewScanner(s.file)
	found := false
	for scan.Scan() {
		line := scan.Text()
		if len(line) < 4 || line[:3] != "cpu" || line[3] != ' ' {
			continue
		}
		found = true
		sc := newFieldScanner([]byte(line[4:]))
		vals := make([]uint64, 0, 10)
		for {
			f, ok := sc.next()
			if !ok {
				break
			}
			vals = append(vals, parseUint64(f))
		}
		for len(vals) < 8 {
			vals = append(vals, 0)
		}
		setUint64(&s.User, vals[0], SysStatFieldUser, s.Changed)
		setUint64(&s.Nice, vals[1], SysStatFieldNice, s.Changed)
		setUint64(&s.System, vals[2], SysStatFieldSystem, s.Changed)
		setUint64(&s.Idle, vals[3], SysStatFieldIdle, s.Changed)
		setUint64(&s.IOWait, vals[4], SysStatFieldIOWait, s.Changed)
		setUint64(&s.IRQ, vals[5], SysStatFieldIRQ, s.Changed)
		setUint64(&s.SoftIRQ, vals[6], SysStatFieldSoftIRQ, s.Changed)
		setUint64(&s.Steal, vals[7], SysStatFieldSteal, s.Changed)
		if len(vals) > 8 {
			setUint64(&s.Guest, vals[8], SysStatFieldGuest, s.Changed)
		}
		break
	}
	if !found {
		return Error, fmt.Errorf("sampler: no cpu line in /proc/stat")
	}

	boot := computeBootTime()
	setUint64(&s.BootTime, boot, SysStatFieldBootTime, s.Changed)

	if s.Changed.Any() {
		return Changed, nil
	}
	return Unchanged, nil
}

// computeBootTime derives wall-clock boot time from CLOCK_BOOTTIME, the
// monotonic-including-suspend clock.
func computeBootTime() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_BOOTTIME, &ts); err != nil {
		return uint64(time.Now().Unix())
	}
	uptime := time.Duration(ts.Sec)*time.Second + time.Duration(ts.Nsec)
	return uint64(time.Now().Add(-uptime).Unix())
}
