// Package mem implements backend.Target headlessly: each layer is a
// per-cell grid (bar heights for the graph layers, one paletted pixel row
// per chart row for text, booleans for shadow), not a packed 4-bit pixel
// buffer, and Present resolves each pixel of the 16-color palette from
// those grids on demand while streaming a PNG; no composed buffer is ever
// built. No example repo in the retrieval pack carries an
// image-encoding library (the pack's only "image" hits are podman/docker's
// unrelated container-image packages), so this backend uses the standard
// library's image/png — the one place in this module stdlib stands in for
// a third-party dependency.
package mem

import (
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/vmon-project/vmon/internal/backend"
)

// palette is the fixed 16-color indexed palette every layer's pixels are
// drawn from.
var palette = color.Palette{
	color.RGBA{0x00, 0x00, 0x00, 0xff}, // 0 background
	color.RGBA{0x44, 0x47, 0x5a, 0xff}, // 1 panel
	color.RGBA{0x62, 0x72, 0xa4, 0xff}, // 2 gray / finish line
	color.RGBA{0xf8, 0xf8, 0xf2, 0xff}, // 3 text
	color.RGBA{0xff, 0xb8, 0x6c, 0xff}, // 4 graphA (system)
	color.RGBA{0x8b, 0xe9, 0xfd, 0xff}, // 5 graphB (user)
	color.RGBA{0x50, 0xfa, 0x7b, 0xff}, // 6 ok
	color.RGBA{0xf1, 0xfa, 0x8c, 0xff}, // 7 warn
	color.RGBA{0xff, 0x55, 0x55, 0xff}, // 8 crit
	color.RGBA{0xff, 0x79, 0xc6, 0xff}, // 9 magenta
	color.RGBA{0x28, 0x2a, 0x36, 0xff}, // 10 shadow
	color.RGBA{0x6d, 0x6d, 0x6d, 0xff}, // 11 separator, even hierarchy_end
	color.RGBA{0x80, 0x80, 0x80, 0xff}, // 12 separator, odd hierarchy_end
	color.RGBA{0x90, 0x90, 0x90, 0xff}, // 13..15 reserved/unused
	color.RGBA{0xa0, 0xa0, 0xa0, 0xff},
	color.RGBA{0xb0, 0xb0, 0xb0, 0xff},
}

const (
	idxBackground    = 0
	idxFinish        = 2
	idxText          = 3
	idxGraphA        = 4
	idxGraphB        = 5
	idxShadow        = 10
	idxSeparatorEven = 11
	idxSeparatorOdd  = 12
)

const finishMarker = backend.RowHeight

// Backend is a headless pixel-plane realization of backend.Target: each
// chart row occupies backend.RowHeight pixel rows, each chart column one
// pixel column. Present encodes the composed plane as a PNG.
type Backend struct {
	cols, rows int // in chart cells, not pixels

	graphA, graphB [][]int // [row][col] bar height 0..RowHeight-1, or finishMarker
	text           []*image.Paletted
	shadow         [][]bool

	phase int

	stashA, stashB []int

	dividerRow int
}

// New creates a Backend sized for w chart columns by h chart rows.
func New(w, h int) *Backend {
	b := &Backend{dividerRow: -1}
	b.ResizeVisible(w, h)
	return b
}

// SetDividerRow marks row as the hierarchy_end divider. A negative row
// clears it.
func (b *Backend) SetDividerRow(row int) { b.dividerRow = row }

func (b *Backend) ResizeVisible(w, h int) bool {
	if w == b.cols && h == b.rows && b.graphA != nil {
		return false
	}
	b.cols, b.rows = w, h
	b.graphA = make([][]int, h)
	b.graphB = make([][]int, h)
	b.shadow = make([][]bool, h)
	b.text = make([]*image.Paletted, h)
	for i := 0; i < h; i++ {
		b.graphA[i] = make([]int, w)
		b.graphB[i] = make([]int, w)
		b.shadow[i] = make([]bool, w)
		b.text[i] = image.NewPaletted(image.Rect(0, 0, w, 1), palette)
	}
	b.phase = 0
	return true
}

func (b *Backend) DrawText(layer backend.Layer, x, row int, strs []string) int {
	width := 0
	for _, s := range strs {
		width += len([]rune(s))
	}
	if row < 0 || row >= b.rows {
		return width
	}
	col := x
	for _, s := range strs {
		for range []rune(s) {
			if col >= 0 && col < b.cols {
				b.text[row].SetColorIndex(col, 0, idxText)
			}
			col++
		}
	}
	return width
}

func (b *Backend) DrawOrthoLine(layer backend.Layer, x1, y1, x2, y2 int) {
	if y1 == y2 && y1 >= 0 && y1 < b.rows {
		lo, hi := x1, x2
		if lo > hi {
			lo, hi = hi, lo
		}
		for x := lo; x <= hi; x++ {
			if x >= 0 && x < b.cols {
				b.text[y1].SetColorIndex(x, 0, idxText)
			}
		}
	} else if x1 == x2 && x1 >= 0 && x1 < b.cols {
		lo, hi := y1, y2
		if lo > hi {
			lo, hi = hi, lo
		}
		for y := lo; y <= hi; y++ {
			if y >= 0 && y < b.rows {
				b.text[y].SetColorIndex(x1, 0, idxText)
			}
		}
	}
}

func (b *Backend) MarkFinishLine(layer backend.Layer, row int) {
	if row < 0 || row >= b.rows || b.phase < 0 || b.phase >= b.cols {
		return
	}
	b.gridFor(layer)[row][b.phase] = finishMarker
}

func (b *Backend) DrawBar(layer backend.Layer, row int, t float64, minHeight int) {
	if row < 0 || row >= b.rows || b.phase < 0 || b.phase >= b.cols {
		return
	}
	grid := b.gridFor(layer)
	if grid == nil {
		return
	}
	if t < 0 {
		t = -t
	}
	h := int(t*float64(backend.RowHeight-1) + 0.5)
	if h < minHeight {
		h = minHeight
	}
	if h > backend.RowHeight-1 {
		h = backend.RowHeight - 1
	}
	grid[row][b.phase] = h
}

func (b *Backend) gridFor(layer backend.Layer) [][]int {
	switch layer {
	case backend.GraphA:
		return b.graphA
	case backend.GraphB:
		return b.graphB
	default:
		return nil
	}
}

func (b *Backend) ClearRow(layer backend.Layer, row, x, width int) {
	if row < 0 || row >= b.rows {
		return
	}
	start, end := 0, b.cols
	if x >= 0 {
		start = x
	}
	if width >= 0 {
		end = start + width
	}
	if end > b.cols {
		end = b.cols
	}
	switch layer {
	case backend.GraphA:
		for c := start; c < end; c++ {
			b.graphA[row][c] = 0
		}
	case backend.GraphB:
		for c := start; c < end; c++ {
			b.graphB[row][c] = 0
		}
	case backend.Text:
		for c := start; c < end; c++ {
			b.text[row].SetColorIndex(c, 0, idxBackground)
		}
	case backend.Shadow:
		for c := start; c < end; c++ {
			b.shadow[row][c] = false
		}
	}
}

func (b *Backend) ShiftBelowRowUpOne(row int) {
	for r := row; r < b.rows-1; r++ {
		b.graphA[r] = b.graphA[r+1]
		b.graphB[r] = b.graphB[r+1]
		b.text[r] = b.text[r+1]
		b.shadow[r] = b.shadow[r+1]
	}
	last := b.rows - 1
	if last >= 0 {
		b.graphA[last] = make([]int, b.cols)
		b.graphB[last] = make([]int, b.cols)
		b.shadow[last] = make([]bool, b.cols)
		b.text[last] = image.NewPaletted(image.Rect(0, 0, b.cols, 1), palette)
	}
}

func (b *Backend) ShiftBelowRowDownOne(row int) {
	for r := b.rows - 1; r > row; r-- {
		b.graphA[r] = b.graphA[r-1]
		b.graphB[r] = b.graphB[r-1]
		b.text[r] = b.text[r-1]
		b.shadow[r] = b.shadow[r-1]
	}
	if row >= 0 && row < b.rows {
		b.graphA[row] = make([]int, b.cols)
		b.graphB[row] = make([]int, b.cols)
		b.shadow[row] = make([]bool, b.cols)
		b.text[row] = image.NewPaletted(image.Rect(0, 0, b.cols, 1), palette)
	}
}

func (b *Backend) ShadowRow(row int) {
	if row < 0 || row >= b.rows {
		return
	}
	shadow := make([]bool, b.cols)
	for c := 0; c < b.cols; c++ {
		if b.text[row].ColorIndexAt(c, 0) == idxBackground {
			continue
		}
		for _, off := range [...]int{-1, 0, 1} {
			nc := c + off
			if nc >= 0 && nc < b.cols {
				shadow[nc] = true
			}
		}
	}
	b.shadow[row] = shadow
}

func (b *Backend) StashRow(layer backend.Layer, row int) {
	if row < 0 || row >= b.rows {
		return
	}
	switch layer {
	case backend.GraphA:
		b.stashA = append([]int(nil), b.graphA[row]...)
	case backend.GraphB:
		b.stashB = append([]int(nil), b.graphB[row]...)
	}
}

func (b *Backend) UnstashRow(layer backend.Layer, row int) {
	if row < 0 || row >= b.rows {
		return
	}
	switch layer {
	case backend.GraphA:
		if b.stashA != nil {
			copy(b.graphA[row], b.stashA)
		}
	case backend.GraphB:
		if b.stashB != nil {
			copy(b.graphB[row], b.stashB)
		}
	}
}

func (b *Backend) AdvancePhase(delta int) {
	if b.cols == 0 {
		return
	}
	b.phase = ((b.phase+delta)%b.cols + b.cols) % b.cols
	for r := 0; r < b.rows; r++ {
		b.graphA[r][b.phase] = 0
		b.graphB[r][b.phase] = 0
	}
}

// Compose is a no-op: this backend resolves layers to pixels lazily in
// Present, so there's nothing to precompute here.
func (b *Backend) Compose() {}

// pixelIndexAt resolves one output pixel's palette index directly from the
// layer buffers, without ever materializing a full rasterized image: row
// = y/RowHeight, py = y%RowHeight within that row. Graph bars fill
// proportionally from the row's top (GraphA) or bottom (GraphB) edge. On
// the row's last pixel line, any non-background text pixel overrides
// whatever graph color sits beneath it, and a shadowed cell without text
// is drawn in the shadow color.
func (b *Backend) pixelIndexAt(x, y int) uint8 {
	row, py := y/backend.RowHeight, y%backend.RowHeight
	if row < 0 || row >= b.rows || x < 0 || x >= b.cols {
		return idxBackground
	}
	if row == b.dividerRow {
		if row%2 == 0 {
			return idxSeparatorEven
		}
		return idxSeparatorOdd
	}
	a, bb := b.graphA[row][x], b.graphB[row][x]
	if a == finishMarker || bb == finishMarker {
		return idxFinish
	}
	idx := uint8(idxBackground)
	if py < a {
		idx = idxGraphA // top-down
	}
	if backend.RowHeight-1-py < bb {
		idx = idxGraphB // bottom-up
	}
	if py == backend.RowHeight-1 {
		if textIdx := b.text[row].ColorIndexAt(x, 0); textIdx != idxBackground {
			idx = textIdx
		} else if b.shadow[row][x] {
			idx = idxShadow
		}
	}
	return idx
}

// paletteView is an image.PalettedImage over a rectangular window of the
// backend's layer buffers, resolving each pixel on demand so Present can
// stream a PNG without allocating a full composed image first.
type paletteView struct {
	b    *Backend
	rect image.Rectangle
}

func (v *paletteView) ColorModel() color.Model     { return palette }
func (v *paletteView) Bounds() image.Rectangle     { return v.rect }
func (v *paletteView) At(x, y int) color.Color     { return palette[v.ColorIndexAt(x, y)] }
func (v *paletteView) ColorIndexAt(x, y int) uint8 { return v.b.pixelIndexAt(x, y) }

// Present encodes the requested sub-rectangle as a PNG and writes it to
// dest. op is accepted for interface symmetry with the windowing backend;
// a freshly encoded PNG has no existing destination content to blend
// against, so Source and Over produce the same bytes.
func (b *Backend) Present(op backend.PresentOp, dest io.Writer, x, y, w, h int) error {
	view := &paletteView{b: b, rect: image.Rect(x, y, x+w, y+h)}
	return png.Encode(dest, view)
}

func (b *Backend) Close() error { return nil }
