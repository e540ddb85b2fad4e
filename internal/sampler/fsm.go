package sampler

import (
	"bytes"
	"strconv"
)

// fieldScanner walks a byte slice splitting on space or newline: consume
// bytes one at a time, advance to the next field on a delimiter, and hand
// the accumulated span to a field-specific converter.
type fieldScanner struct {
	data []byte
	pos  int
}

func newFieldScanner(data []byte) *fieldScanner {
	return &fieldScanner{data: data}
}

// next returns the next delimited field, or false once the input is
// exhausted. Leading delimiters are skipped (matches /proc's whitespace
// collapsing between stat fields).
func (s *fieldScanner) next() ([]byte, bool) {
	for s.pos < len(s.data) && isDelim(s.data[s.pos]) {
		s.pos++
	}
	if s.pos >= len(s.data) {
		return nil, false
	}
	start := s.pos
	for s.pos < len(s.data) && !isDelim(s.data[s.pos]) {
		s.pos++
	}
	return s.data[start:s.pos], true
}

func isDelim(b byte) bool { return b == ' ' || b == '\n' || b == '\t' }

func parseUint64(b []byte) uint64 {
	v, _ := strconv.ParseUint(string(bytes.TrimSpace(b)), 10, 64)
	return v
}

func parseInt64(b []byte) int64 {
	v, _ := strconv.ParseInt(string(bytes.TrimSpace(b)), 10, 64)
	return v
}

func parseInt(b []byte) int {
	return int(parseInt64(b))
}

func parseChar(b []byte) byte {
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

// setUint64 compares newV against *dst byte-wise; on difference it writes
// the new value and sets bit idx in changed, matching the
// compare-then-write-and-flag discipline.
func setUint64(dst *uint64, newV uint64, idx int, changed bitmapSetter) {
	if *dst != newV {
		*dst = newV
		changed.Set(idx)
	}
}

func setInt64(dst *int64, newV int64, idx int, changed bitmapSetter) {
	if *dst != newV {
		*dst = newV
		changed.Set(idx)
	}
}

func setInt(dst *int, newV int, idx int, changed bitmapSetter) {
	if *dst != newV {
		*dst = newV
		changed.Set(idx)
	}
}

func setByte(dst *byte, newV byte, idx int, changed bitmapSetter) {
	if *dst != newV {
		*dst = newV
		changed.Set(idx)
	}
}

// setString replaces *dst with newV when they differ, setting bit idx, but
// truncation to empty is suppressed when suppressEmpty is true, to survive the race
// where a /proc read observes a momentarily-empty field.
func setString(dst *string, newV string, idx int, changed bitmapSetter, suppressEmpty bool) {
	if newV == "" && suppressEmpty && *dst != "" {
		return
	}
	if *dst != newV {
		*dst = newV
		changed.Set(idx)
	}
}

// bitmapSetter is the minimal surface fsm.go needs from bitmap.Bitmap,
// kept as an interface so field-setters stay agnostic of the concrete
// changed-bitmap representation.
type bitmapSetter interface {
	Set(i int)
}
