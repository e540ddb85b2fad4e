// Package tui implements backend.Target over a live terminal, drawing
// through lipgloss styles the way ui/chart.go's areaChart renders its
// sub-cell bar graphs.
package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/vmon-project/vmon/internal/backend"
	"github.com/vmon-project/vmon/internal/logging"
)

// subBlocks is the same fractional-fill rune ramp ui/chart.go's areaChart
// uses for sub-cell bar resolution.
var subBlocks = []rune{' ', '▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

const levels = len(subBlocks) - 1

var (
	colorGraphA        = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C")) // system time, top-down
	colorGraphB        = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BE9FD")) // user time, bottom-up
	colorFinish        = lipgloss.NewStyle().Foreground(lipgloss.Color("#6272A4"))
	colorShadow        = lipgloss.NewStyle().Faint(true)
	colorText          = lipgloss.NewStyle().Foreground(lipgloss.Color("#F8F8F2"))
	colorSeparatorEven = lipgloss.NewStyle().Foreground(lipgloss.Color("#44475A"))
	colorSeparatorOdd  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6D6D6D"))
)

const finishMarker = backend.RowHeight // sentinel height value meaning "finish line", not a bar

// Backend is a character-grid realization of backend.Target: one terminal
// cell per chart column, with GraphA/GraphB collapsed to a single glyph per
// cell (the dominant of the two series, the same one-value-per-cell
// tradeoff ui/chart.go's own area chart makes) and a text layer with a
// ±1-column shadow mask for legibility over the graph layers.
type Backend struct {
	width, height int

	graphA, graphB [][]int
	text           [][]rune
	shadow         [][]bool

	phase int

	stashA, stashB []int

	dividerRow int

	composed string
	log      zerolog.Logger
}

// New creates a Backend sized for w columns by h rows.
func New(w, h int) *Backend {
	b := &Backend{dividerRow: -1, log: logging.Component("backend.tui")}
	b.ResizeVisible(w, h)
	return b
}

// SetDividerRow marks row as the hierarchy_end divider. A negative row
// clears it.
func (b *Backend) SetDividerRow(row int) { b.dividerRow = row }

func (b *Backend) ResizeVisible(w, h int) bool {
	if w == b.width && h == b.height && b.graphA != nil {
		return false
	}
	b.width, b.height = w, h
	b.graphA = make([][]int, h)
	b.graphB = make([][]int, h)
	b.text = make([][]rune, h)
	b.shadow = make([][]bool, h)
	for i := 0; i < h; i++ {
		b.graphA[i] = make([]int, w)
		b.graphB[i] = make([]int, w)
		b.text[i] = blankRow(w)
		b.shadow[i] = make([]bool, w)
	}
	b.phase = 0
	return true
}

func blankRow(w int) []rune {
	r := make([]rune, w)
	for i := range r {
		r[i] = ' '
	}
	return r
}

func (b *Backend) DrawText(layer backend.Layer, x, row int, strs []string) int {
	joined := strings.Join(strs, "")
	width := len([]rune(joined))
	if row < 0 || row >= b.height {
		return width
	}
	for i, r := range []rune(joined) {
		col := x + i
		if col < 0 || col >= b.width {
			continue
		}
		b.text[row][col] = r
	}
	return width
}

func (b *Backend) DrawOrthoLine(layer backend.Layer, x1, y1, x2, y2 int) {
	if y1 == y2 {
		for x := min(x1, x2); x <= max(x1, x2); x++ {
			if y1 >= 0 && y1 < b.height && x >= 0 && x < b.width {
				b.text[y1][x] = '─'
			}
		}
		return
	}
	for y := min(y1, y2); y <= max(y1, y2); y++ {
		if x1 >= 0 && x1 < b.width && y >= 0 && y < b.height {
			b.text[y][x1] = '│'
		}
	}
}

func (b *Backend) MarkFinishLine(layer backend.Layer, row int) {
	if row < 0 || row >= b.height {
		return
	}
	grid := b.gridFor(layer)
	if grid == nil || b.phase < 0 || b.phase >= b.width {
		return
	}
	grid[row][b.phase] = finishMarker
}

func (b *Backend) DrawBar(layer backend.Layer, row int, t float64, minHeight int) {
	if row < 0 || row >= b.height || b.phase < 0 || b.phase >= b.width {
		return
	}
	grid := b.gridFor(layer)
	if grid == nil {
		return
	}
	if t < 0 {
		t = -t
	}
	h := int(round(t * float64(backend.RowHeight-1)))
	if h < minHeight {
		h = minHeight
	}
	if h > backend.RowHeight-1 {
		h = backend.RowHeight - 1
	}
	grid[row][b.phase] = h
}

func round(f float64) float64 {
	if f < 0 {
		return float64(int(f - 0.5))
	}
	return float64(int(f + 0.5))
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
	if row < 0 || row >= b.height {
		return
	}
	start, end := 0, b.width
	if x >= 0 {
		start = x
	}
	if width >= 0 {
		end = start + width
	}
	if end > b.width {
		end = b.width
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
			b.text[row][c] = ' '
		}
	case backend.Shadow:
		for c := start; c < end; c++ {
			b.shadow[row][c] = false
		}
	}
}

func (b *Backend) ShiftBelowRowUpOne(row int) {
	for r := row; r < b.height-1; r++ {
		b.graphA[r] = b.graphA[r+1]
		b.graphB[r] = b.graphB[r+1]
		b.text[r] = b.text[r+1]
		b.shadow[r] = b.shadow[r+1]
	}
	last := b.height - 1
	if last >= 0 {
		b.graphA[last] = make([]int, b.width)
		b.graphB[last] = make([]int, b.width)
		b.text[last] = blankRow(b.width)
		b.shadow[last] = make([]bool, b.width)
	}
}

func (b *Backend) ShiftBelowRowDownOne(row int) {
	for r := b.height - 1; r > row; r-- {
		b.graphA[r] = b.graphA[r-1]
		b.graphB[r] = b.graphB[r-1]
		b.text[r] = b.text[r-1]
		b.shadow[r] = b.shadow[r-1]
	}
	if row >= 0 && row < b.height {
		b.graphA[row] = make([]int, b.width)
		b.graphB[row] = make([]int, b.width)
		b.text[row] = blankRow(b.width)
		b.shadow[row] = make([]bool, b.width)
	}
}

func (b *Backend) ShadowRow(row int) {
	if row < 0 || row >= b.height {
		return
	}
	shadow := make([]bool, b.width)
	for c := 0; c < b.width; c++ {
		if b.text[row][c] == ' ' {
			continue
		}
		for _, off := range [...]int{-1, 0, 1} {
			nc := c + off
			if nc >= 0 && nc < b.width {
				shadow[nc] = true
			}
		}
	}
	b.shadow[row] = shadow
}

func (b *Backend) StashRow(layer backend.Layer, row int) {
	if row < 0 || row >= b.height {
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
	if row < 0 || row >= b.height {
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
	if b.width == 0 {
		return
	}
	b.phase = ((b.phase+delta)%b.width + b.width) % b.width
	for r := 0; r < b.height; r++ {
		b.graphA[r][b.phase] = 0
		b.graphB[r][b.phase] = 0
	}
}

// cellKind classifies a cell for run-length styling: adjacent cells of the
// same kind render through one Render call so a style's ANSI escapes don't
// fragment a run of plain characters.
type cellKind int

const (
	kindBlank cellKind = iota
	kindText
	kindTextShadowed
	kindFinish
	kindGraphA
	kindGraphB
	kindSeparatorEven
	kindSeparatorOdd
)

func (b *Backend) cellAt(row, col int) (cellKind, rune) {
	if row == b.dividerRow {
		if row%2 == 0 {
			return kindSeparatorEven, '─'
		}
		return kindSeparatorOdd, '─'
	}
	if ch := b.text[row][col]; ch != ' ' {
		if b.shadow[row][col] {
			return kindTextShadowed, ch
		}
		return kindText, ch
	}
	a, bb := b.graphA[row][col], b.graphB[row][col]
	switch {
	case a == finishMarker || bb == finishMarker:
		return kindFinish, '│'
	case a == 0 && bb == 0:
		return kindBlank, ' '
	case a >= bb:
		return kindGraphA, subBlocks[a*levels/(backend.RowHeight-1)]
	default:
		return kindGraphB, subBlocks[bb*levels/(backend.RowHeight-1)]
	}
}

func styleFor(k cellKind) lipgloss.Style {
	switch k {
	case kindTextShadowed:
		return colorText.Bold(true)
	case kindText:
		return colorText
	case kindFinish:
		return colorFinish
	case kindGraphA:
		return colorGraphA
	case kindGraphB:
		return colorGraphB
	case kindSeparatorEven:
		return colorSeparatorEven
	case kindSeparatorOdd:
		return colorSeparatorOdd
	default:
		return lipgloss.NewStyle()
	}
}

// Compose renders the layer stack into one styled string, graph glyphs
// under text, text taking priority wherever it's non-blank. Runs of
// same-kind cells are styled together so multi-character text isn't
// split by per-character escape sequences.
func (b *Backend) Compose() {
	var sb strings.Builder
	for r := 0; r < b.height; r++ {
		var run strings.Builder
		runKind := kindBlank
		flush := func() {
			if run.Len() == 0 {
				return
			}
			if runKind == kindBlank {
				sb.WriteString(run.String())
			} else {
				sb.WriteString(styleFor(runKind).Render(run.String()))
			}
			run.Reset()
		}
		for c := 0; c < b.width; c++ {
			k, ch := b.cellAt(r, c)
			if c > 0 && k != runKind {
				flush()
			}
			runKind = k
			run.WriteRune(ch)
		}
		flush()
		if r < b.height-1 {
			sb.WriteByte('\n')
		}
	}
	b.composed = sb.String()
}

// Present writes the composed rectangle to dest. op is accepted for
// interface symmetry with the mem backend; a terminal has no destination
// alpha to blend against, so Source and Over behave identically.
func (b *Backend) Present(op backend.PresentOp, dest io.Writer, x, y, w, h int) error {
	lines := strings.Split(b.composed, "\n")
	for r := y; r < y+h && r < len(lines); r++ {
		if r < 0 {
			continue
		}
		if _, err := fmt.Fprintln(dest, sliceLine(lines[r], x, w)); err != nil {
			return err
		}
	}
	return nil
}

func sliceLine(line string, x, w int) string {
	runes := []rune(line)
	if x < 0 {
		x = 0
	}
	if x >= len(runes) {
		return ""
	}
	end := x + w
	if end > len(runes) {
		end = len(runes)
	}
	return string(runes[x:end])
}

func (b *Backend) Close() error { return nil }
