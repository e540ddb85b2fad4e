package tui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmon-project/vmon/internal/backend"
)

func TestDrawTextAndPresentRoundTrips(t *testing.T) {
	b := New(20, 3)
	w := b.DrawText(backend.Text, 2, 1, []string{"hi"})
	assert.Equal(t, 2, w)

	b.Compose()
	var buf bytes.Buffer
	require.NoError(t, b.Present(backend.Source, &buf, 0, 0, 20, 3))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "hi")
}

func TestDrawTextMeasurementOnlyDoesNotTouchGrid(t *testing.T) {
	b := New(10, 2)
	w := b.DrawText(backend.Text, 0, -1, []string{"abc"})
	assert.Equal(t, 3, w)
	b.Compose()
	var buf bytes.Buffer
	require.NoError(t, b.Present(backend.Source, &buf, 0, 0, 10, 2))
	assert.NotContains(t, buf.String(), "abc")
}

func TestDrawBarClampsToRowHeightBound(t *testing.T) {
	b := New(4, 1)
	b.DrawBar(backend.GraphA, 0, 1.0, 0)
	assert.Equal(t, backend.RowHeight-1, b.graphA[0][0])
}

func TestAdvancePhaseWrapsAndClearsColumn(t *testing.T) {
	b := New(3, 1)
	b.DrawBar(backend.GraphA, 0, 1.0, 1)
	b.AdvancePhase(-1)
	assert.Equal(t, 2, b.phase)
	assert.Equal(t, 0, b.graphA[0][2])
}

func TestShiftBelowRowUpOneMovesContentAndClearsLastRow(t *testing.T) {
	b := New(4, 3)
	b.DrawText(backend.Text, 0, 1, []string{"mid"})
	b.ShiftBelowRowUpOne(0)
	assert.Equal(t, 'm', b.text[0][0])
	assert.Equal(t, ' ', b.text[2][0])
}

func TestStashAndUnstashRoundTrip(t *testing.T) {
	b := New(4, 2)
	b.DrawBar(backend.GraphA, 0, 1.0, 1)
	b.StashRow(backend.GraphA, 0)
	b.ClearRow(backend.GraphA, 0, -1, -1)
	assert.Equal(t, 0, b.graphA[0][0])
	b.UnstashRow(backend.GraphA, 1)
	assert.Equal(t, b.graphA[0][0] == 0 && b.graphA[1][0] > 0, true)
}

func TestShadowRowMarksNeighborsOfText(t *testing.T) {
	b := New(5, 1)
	b.DrawText(backend.Text, 2, 0, []string{"x"})
	b.ShadowRow(0)
	assert.True(t, b.shadow[0][1])
	assert.True(t, b.shadow[0][2])
	assert.True(t, b.shadow[0][3])
	assert.False(t, b.shadow[0][0])
}
