package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitLines(t *testing.T) {
	got := splitLines([]byte("a\nbb\nccc\n"))
	assert.Equal(t, []string{"a", "bb", "ccc"}, got)
}

func TestSplitLinesNoTrailingNewline(t *testing.T) {
	got := splitLines([]byte("a\nb"))
	assert.Equal(t, []string{"a"}, got)
}

func TestNumCPUReportsAtLeastOne(t *testing.T) {
	// numCPU reads the real /proc/stat; on any Linux host running this
	// test it should report at least one core.
	assert.GreaterOrEqual(t, numCPU(), 1)
}
