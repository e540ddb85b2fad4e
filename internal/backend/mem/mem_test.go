package mem

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmon-project/vmon/internal/backend"
)

func TestPresentEncodesValidPNG(t *testing.T) {
	b := New(8, 2)
	b.DrawBar(backend.GraphA, 0, 1.0, 1)
	b.DrawText(backend.Text, 0, 1, []string{"ok"})

	var buf bytes.Buffer
	require.NoError(t, b.Present(backend.Source, &buf, 0, 0, 8, 2*backend.RowHeight))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	bounds := img.Bounds()
	assert.Equal(t, 8, bounds.Dx())
	assert.Equal(t, 2*backend.RowHeight, bounds.Dy())
}

func TestDrawBarFillsFromRowTopForGraphA(t *testing.T) {
	b := New(1, 1)
	b.DrawBar(backend.GraphA, 0, 1.0, 1)
	b.Compose()
	assert.Equal(t, uint8(idxGraphA), b.pixelIndexAt(0, 0))
}

func TestDrawBarFillsFromRowBottomForGraphB(t *testing.T) {
	b := New(1, 1)
	b.DrawBar(backend.GraphB, 0, 1.0, 1)
	b.Compose()
	assert.Equal(t, uint8(idxGraphB), b.pixelIndexAt(0, backend.RowHeight-1))
}

func TestClearRowResetsGraphAndText(t *testing.T) {
	b := New(4, 1)
	b.DrawBar(backend.GraphA, 0, 1.0, 1)
	b.DrawText(backend.Text, 0, 0, []string{"x"})
	b.ClearRow(backend.GraphA, 0, -1, -1)
	b.ClearRow(backend.Text, 0, -1, -1)
	assert.Equal(t, 0, b.graphA[0][0])
	assert.Equal(t, uint8(idxBackground), b.text[0].ColorIndexAt(0, 0))
}

func TestAdvancePhaseWrapsAndClearsColumn(t *testing.T) {
	b := New(3, 1)
	b.DrawBar(backend.GraphA, 0, 1.0, 1)
	b.AdvancePhase(-1)
	assert.Equal(t, 2, b.phase)
	assert.Equal(t, 0, b.graphA[0][2])
}

func TestDividerRowRendersSeparatorColorByParity(t *testing.T) {
	b := New(4, 4)
	b.DrawBar(backend.GraphA, 2, 1.0, 1)

	b.SetDividerRow(2)
	for x := 0; x < 4; x++ {
		for py := 0; py < backend.RowHeight; py++ {
			assert.Equal(t, uint8(idxSeparatorEven), b.pixelIndexAt(x, 2*backend.RowHeight+py))
		}
	}

	b.SetDividerRow(3)
	assert.Equal(t, uint8(idxSeparatorOdd), b.pixelIndexAt(0, 3*backend.RowHeight))
	// Row 2's content is no longer shadowed by a divider once it moves off it.
	assert.Equal(t, uint8(idxGraphA), b.pixelIndexAt(0, 2*backend.RowHeight))
}

func TestStashUnstashPreservesGraphRow(t *testing.T) {
	b := New(2, 2)
	b.DrawBar(backend.GraphA, 0, 1.0, 1)
	b.StashRow(backend.GraphA, 0)
	b.UnstashRow(backend.GraphA, 1)
	assert.Equal(t, b.graphA[0], b.graphA[1])
}
