// Package backend defines the uniform drawing-primitive surface a chart
// composites through, and the two concrete realizations of it: a live
// terminal "windowing" backend (internal/backend/tui) and a headless
// packed-bit-plane backend that emits PNG snapshots (internal/backend/mem).
package backend

import "io"

// RowHeight is the pixel height of one chart row, used by bar-height
// scaling: round(|t| * (RowHeight-1)).
const RowHeight = 16

// Layer names one of the four (plus composed) planes a chart draws into.
type Layer int

const (
	GraphA Layer = iota
	GraphB
	Text
	Shadow
	// Composed is never drawn into directly; Compose produces it from the
	// other four.
	Composed
)

func (l Layer) String() string {
	switch l {
	case GraphA:
		return "graphA"
	case GraphB:
		return "graphB"
	case Text:
		return "text"
	case Shadow:
		return "shadow"
	case Composed:
		return "composed"
	default:
		return "unknown"
	}
}

// PresentOp selects the compositing operator Present uses to transfer the
// composed layer to its destination.
type PresentOp int

const (
	// Source overwrites the destination outright.
	Source PresentOp = iota
	// Over alpha-blends onto the destination's existing content.
	Over
)

// Target is the complete primitive surface a chart draws through. Every
// backend implements the full set; callers never branch on which one
// they hold.
type Target interface {
	// ResizeVisible grows internal buffers to at least w×h. Allocation
	// never shrinks; a resize to a smaller visible size just narrows what's
	// presented. Returns true when the visible dimensions actually changed.
	ResizeVisible(w, h int) (redrawNeeded bool)

	// DrawText renders every item of strs, concatenated, into layer at
	// pixel x, row and returns the rendered width; the number of items is
	// not capped. row < 0 requests measurement only — no pixels are
	// touched.
	DrawText(layer Layer, x, row int, strs []string) (width int)

	// DrawOrthoLine draws a horizontal or vertical one-pixel line. Not
	// valid against the graph layers.
	DrawOrthoLine(layer Layer, x1, y1, x2, y2 int)

	// MarkFinishLine draws a solid one-pixel-wide column at the current
	// phase on a graph layer for row.
	MarkFinishLine(layer Layer, row int)

	// DrawBar draws a graph-layer bar at the current phase. height =
	// round(|t|·(RowHeight-1)), clamped up to minHeight and down to
	// RowHeight-1. GraphA grows top-down, GraphB grows bottom-up.
	DrawBar(layer Layer, row int, t float64, minHeight int)

	// ClearRow clears a row, or a sub-range of it when width >= 0.
	// Negative x or width means the full row.
	ClearRow(layer Layer, row, x, width int)

	// ShiftBelowRowUpOne moves every row below row up by one, across all
	// four layers, down to the bottom of the visible height, and clears the
	// last row. The shift is not bounded by hierarchy_end: rows below the
	// divider move up too.
	ShiftBelowRowUpOne(row int)

	// ShiftBelowRowDownOne moves row and everything below it down by one,
	// across all four layers, up to the visible height.
	ShiftBelowRowDownOne(row int)

	// ShadowRow recomputes the shadow layer's copy of a text row by OR-ing
	// ±1-pixel offsets of the text row into the shadow layer.
	ShadowRow(row int)

	// StashRow copies a graph-layer row into a one-row scratch buffer.
	StashRow(layer Layer, row int)
	// UnstashRow copies the scratch buffer back into a graph-layer row.
	UnstashRow(layer Layer, row int)

	// AdvancePhase moves the phase cursor by delta (±1) modulo width and
	// clears the newly entered column across the graph layers only.
	AdvancePhase(delta int)

	// SetDividerRow marks row as the chart's hierarchy_end divider, the
	// visual separator between live process rows and snowflake rows.
	// Rendered distinctly from ordinary rows, varying by row parity. A
	// negative row clears it (no divider currently visible).
	SetDividerRow(row int)

	// Compose produces the composed layer from the layer stack. May be a
	// no-op for backends that resolve layers at present time instead.
	Compose()

	// Present transfers the composed output to dest.
	Present(op PresentOp, dest io.Writer, x, y, w, h int) error

	// Close releases any backend-held resources (fonts, connections,
	// fills). Safe to call once the backend is no longer needed.
	Close() error
}
