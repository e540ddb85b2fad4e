// Package chart implements the per-monitored-root chart: a row-oriented
// layered image (two graph layers, a text layer, a shadow layer),
// phase-scrolling bar graphs, a column-driven text renderer, and snowflake
// extraction on process death.
package chart

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmon-project/vmon/internal/backend"
	"github.com/vmon-project/vmon/internal/logging"
	"github.com/vmon-project/vmon/internal/monitor"
	"github.com/vmon-project/vmon/internal/sampler"
)

// phaseDirection is hard-coded to right-to-left scrolling.
const phaseDirection = -1

// snowflakeRecord preserves the condensed metadata of a process that has
// exited, since its Node (and stores) are destroyed shortly after it's
// marked stale.
type snowflakeRecord struct {
	pid   int
	comm  string
	argv  []string
	wchan string
}

// rowCache is the per-node scratch the chart keeps in Node.UserData:
// last-sampled CPU counters (to compute this tick's delta) and the
// generation they were captured at, so a callback re-entry within the same
// sample doesn't recompute.
type rowCache struct {
	gen                    uint64
	lastUTime, lastSTime   uint64
	utimeDelta, stimeDelta uint64
}

// Chart is a per-monitored-root chart: one row per live or snowflaked
// process, composited into the backend it was created with.
type Chart struct {
	Name   string
	Root   *monitor.Node
	Target backend.Target

	Width, Height int
	Phase         int

	HierarchyEnd    int
	SnowflakesCnt   int
	GenLastComposed uint64
	RedrawNeeded    bool

	LiveColumns      []*Column
	SnowflakeColumns []*Column

	numCPU   int
	sysDelta uint64          // system-wide CPU tick delta from the latest SetSysDelta
	rows     []*monitor.Node // row index -> node; rows[0] is always nil (header)

	snowflakes []*snowflakeRecord

	lastMaintainedGen uint64
	overruns          int

	log zerolog.Logger
}

// NewChart creates a chart for root, drawing through target. numCPU scales
// down the bar heights of multi-threaded process rows.
func NewChart(root *monitor.Node, target backend.Target, width, height, numCPU int, name string) *Chart {
	c := &Chart{
		Name:             name,
		Root:             root,
		Target:           target,
		Width:            width,
		Height:           height,
		HierarchyEnd:     1,
		rows:             []*monitor.Node{nil},
		LiveColumns:      DefaultLiveColumns(),
		SnowflakeColumns: DefaultSnowflakeColumns(),
		numCPU:           numCPU,
		log:              logging.Component("chart"),
	}
	if c.numCPU < 1 {
		c.numCPU = 1
	}
	if target.ResizeVisible(width, height) {
		c.RedrawNeeded = true
	}
	target.SetDividerRow(c.HierarchyEnd)
	return c
}

// SetVisibleSize resizes the chart's visible area.
func (c *Chart) SetVisibleSize(w, h int) {
	c.Width, c.Height = w, h
	if c.Target.ResizeVisible(w, h) {
		c.RedrawNeeded = true
	}
}

// Maintain drives the chart through one driver tick. It is idempotent
// with respect to m's generation: a duplicate call for a generation
// already maintained is a no-op. When the driver detects a stall
// (elapsed well past interval), a replay count of steps are performed in
// place of one, each advancing phase by one, to preserve the time axis's
// proportionality through the stall.
func (c *Chart) Maintain(m *monitor.Monitor, elapsed, interval time.Duration) bool {
	if interval > 0 && m.Generation() == c.lastMaintainedGen {
		return false
	}
	c.lastMaintainedGen = m.Generation()

	replay := 1
	if interval > 0 && elapsed >= interval+interval/2 {
		replay = int(math.Round(float64(elapsed) / float64(interval)))
		if replay < 1 {
			replay = 1
		}
	}

	changed := false
	for i := 0; i < replay; i++ {
		if c.step(m) {
			changed = true
		}
		c.Target.AdvancePhase(phaseDirection)
		c.Phase = ((c.Phase+phaseDirection)%c.Width + c.Width) % c.Width
	}
	if changed {
		c.RedrawNeeded = true
	}
	return changed
}

// step performs one sample's worth of row reconciliation (births, deaths)
// and per-row drawing.
func (c *Chart) step(m *monitor.Monitor) bool {
	order := c.liveOrder()
	changed := c.reconcileBirths(order)
	if c.drawLiveRows(order) {
		changed = true
	}
	if c.reconcileDeaths() {
		changed = true
	}
	c.Target.SetDividerRow(c.HierarchyEnd)
	return changed
}

// liveOrder walks the tree under Root in depth-first, threads-before-
// children order (the row discipline), skipping stale nodes —
// they're handled by reconcileDeaths, not drawn as live rows.
func (c *Chart) liveOrder() []*monitor.Node {
	var order []*monitor.Node
	var walk func(n *monitor.Node)
	walk = func(n *monitor.Node) {
		if n.IsStale {
			return
		}
		order = append(order, n)
		for e := n.Threads.Front(); e != nil; e = e.Next() {
			walk(e.Value)
		}
		for e := n.Children.Front(); e != nil; e = e.Next() {
			walk(e.Value)
		}
	}
	if c.Root != nil {
		walk(c.Root)
	}
	return order
}

// reconcileBirths inserts a row for every node in order not yet present in
// c.rows, shifting everything below the insertion point down by one
// across all four layers.
func (c *Chart) reconcileBirths(order []*monitor.Node) bool {
	present := make(map[*monitor.Node]bool, len(c.rows))
	for _, n := range c.rows {
		if n != nil {
			present[n] = true
		}
	}

	changed := false
	pos := 1
	for _, n := range order {
		if pos < len(c.rows) && c.rows[pos] == n {
			pos++
			continue
		}
		if present[n] {
			// Already tracked elsewhere in the row list; this chart's
			// simplified row model doesn't reorder live rows once placed.
			continue
		}
		c.insertRow(pos, n)
		present[n] = true
		changed = true
		pos++
	}
	return changed
}

func (c *Chart) insertRow(pos int, n *monitor.Node) {
	c.Target.ShiftBelowRowDownOne(pos)
	c.rows = append(c.rows, nil)
	copy(c.rows[pos+1:], c.rows[pos:])
	c.rows[pos] = n
	for _, l := range []backend.Layer{backend.GraphA, backend.GraphB, backend.Text, backend.Shadow} {
		c.Target.ClearRow(l, pos, -1, -1)
	}
	c.HierarchyEnd++
}

// reconcileDeaths extracts a snowflake for every row whose node has gone
// stale, leaves-first (highest row index first — stale propagates to a
// whole subtree in one sample, so descendants' rows always sit at or
// below their ancestor's).
func (c *Chart) reconcileDeaths() bool {
	changed := false
	for i := c.HierarchyEnd - 1; i >= 1; i-- {
		if i >= len(c.rows) {
			continue
		}
		n := c.rows[i]
		if n == nil || !n.IsStale {
			continue
		}
		c.snowflake(i, n)
		changed = true
	}
	return changed
}

// snowflake performs the seven-step death extraction: mark a finish line,
// preserve the graph history, shift the dying row out, and render the
// condensed snowflake row at the (pre-decrement) hierarchy_end.
func (c *Chart) snowflake(row int, n *monitor.Node) {
	c.Target.MarkFinishLine(backend.GraphA, row)
	c.Target.MarkFinishLine(backend.GraphB, row)
	c.Target.StashRow(backend.GraphA, row)
	c.Target.StashRow(backend.GraphB, row)
	c.Target.ShiftBelowRowUpOne(row)

	// The up-shift also moved the existing snowflake rows up by one; move
	// them back below slot so slot is a fresh row for this snowflake.
	slot := c.HierarchyEnd
	c.Target.ShiftBelowRowDownOne(slot)
	c.Target.UnstashRow(backend.GraphA, slot)
	c.Target.UnstashRow(backend.GraphB, slot)
	c.Target.ClearRow(backend.Text, slot, -1, -1)
	c.Target.ClearRow(backend.Shadow, slot, -1, -1)

	rec := newSnowflakeRecord(n)
	c.drawSnowflakeRow(slot, rec)
	c.Target.ShadowRow(slot)

	copy(c.rows[row:], c.rows[row+1:])
	c.rows = c.rows[:len(c.rows)-1]
	c.HierarchyEnd--
	c.snowflakes = append([]*snowflakeRecord{rec}, c.snowflakes...)
	c.SnowflakesCnt++
}

// ResetSnowflakes clears the preserved dead-process rows.
func (c *Chart) ResetSnowflakes() {
	for i := range c.snowflakes {
		row := c.HierarchyEnd + 1 + i
		for _, l := range []backend.Layer{backend.GraphA, backend.GraphB, backend.Text, backend.Shadow} {
			c.Target.ClearRow(l, row, -1, -1)
		}
	}
	c.snowflakes = nil
	c.SnowflakesCnt = 0
	c.RedrawNeeded = true
}

func newSnowflakeRecord(n *monitor.Node) *snowflakeRecord {
	rec := &snowflakeRecord{pid: n.Pid}
	if st, ok := n.Store(sampler.KindStat).(*sampler.StatStore); ok {
		rec.comm = st.Comm
	}
	if cl, ok := n.Store(sampler.KindCmdline).(*sampler.CmdlineStore); ok {
		rec.argv = append([]string(nil), cl.Argv...)
	}
	if wc, ok := n.Store(sampler.KindWchan).(*sampler.WchanStore); ok {
		rec.wchan = wc.Name
	}
	return rec
}

// drawLiveRows computes CPU deltas and draws the bar + text content for
// every currently live row.
func (c *Chart) drawLiveRows(order []*monitor.Node) bool {
	changed := false
	for _, n := range order {
		row := c.rowOf(n)
		if row < 0 {
			continue
		}
		if c.drawBars(row, n) {
			changed = true
		}
		c.drawLiveText(row, n)
	}
	return changed
}

func (c *Chart) rowOf(n *monitor.Node) int {
	for i, v := range c.rows {
		if v == n {
			return i
		}
	}
	return -1
}

// drawBars computes stime/utime deltas and draws graphA/graphB bars at the
// current phase.
func (c *Chart) drawBars(row int, n *monitor.Node) bool {
	st, ok := n.Store(sampler.KindStat).(*sampler.StatStore)
	if !ok {
		return false
	}
	rc := rowCacheFor(n)
	if rc.gen != n.Generation {
		udelta := uint64(0)
		sdelta := uint64(0)
		if rc.lastUTime != 0 || rc.lastSTime != 0 {
			if st.UTime >= rc.lastUTime {
				udelta = st.UTime - rc.lastUTime
			}
			if st.STime >= rc.lastSTime {
				sdelta = st.STime - rc.lastSTime
			}
		}
		rc.utimeDelta, rc.stimeDelta = udelta, sdelta
		rc.lastUTime, rc.lastSTime = st.UTime, st.STime
		rc.gen = n.Generation
	}

	if n.IsNew {
		// A new process draws an impossible 100% on both graph layers
		// as a starting line.
		c.Target.DrawBar(backend.GraphA, row, 1.0, 1)
		c.Target.DrawBar(backend.GraphB, row, 1.0, 1)
		return true
	}

	total := c.totalDelta()
	if total == 0 {
		return false
	}
	divisor := total
	if st.NumThreads > 1 && !n.IsThread {
		divisor = total * uint64(c.numCPU)
	}
	sFrac := fraction(rc.stimeDelta, divisor)
	uFrac := fraction(rc.utimeDelta, divisor)
	minHeight := 0
	if rc.stimeDelta > 0 {
		minHeight = 1
	}
	c.Target.DrawBar(backend.GraphA, row, sFrac, minHeight)
	minHeight = 0
	if rc.utimeDelta > 0 {
		minHeight = 1
	}
	c.Target.DrawBar(backend.GraphB, row, uFrac, minHeight)
	return rc.stimeDelta != 0 || rc.utimeDelta != 0
}

func fraction(delta, divisor uint64) float64 {
	if divisor == 0 {
		return 0
	}
	return float64(delta) / float64(divisor)
}

// totalDelta is the system-wide CPU tick delta since the last sample, as
// last handed to SetSysDelta.
func (c *Chart) totalDelta() uint64 {
	return c.sysDelta
}

// SetSysDelta is called once per sample, from the driver's once-per-sample
// system callback, with the system-wide total CPU tick delta, so every
// chart's bar-scaling divisor reflects the same tick.
func (c *Chart) SetSysDelta(delta uint64) {
	c.sysDelta = delta
}

func rowCacheFor(n *monitor.Node) *rowCache {
	rc, ok := n.UserData.(*rowCache)
	if !ok {
		rc = &rowCache{}
		n.UserData = rc
	}
	return rc
}

// drawLiveText renders every enabled live column for row.
func (c *Chart) drawLiveText(row int, n *monitor.Node) {
	c.Target.ClearRow(backend.Text, row, -1, -1)
	leftX, rightX := 0, c.Width
	for _, col := range c.LiveColumns {
		if !col.Enabled {
			continue
		}
		text := c.liveColumnText(col.Kind, row, n)
		if text == "" {
			continue
		}
		strs := []string{text}
		w := c.Target.DrawText(backend.Text, 0, -1, strs)
		if col.grow(w) {
			c.RedrawNeeded = true
		}
		var x int
		if col.Side == SideLeft {
			x = leftX
			leftX += col.Width
		} else {
			rightX -= col.Width
			x = rightX
		}
		c.Target.DrawText(backend.Text, col.justify(x, w), row, strs)
	}
	c.Target.ShadowRow(row)
}

func (c *Chart) liveColumnText(kind ColumnKind, row int, n *monitor.Node) string {
	switch kind {
	case ColumnBanner:
		if row != 0 {
			return ""
		}
		return c.Name
	case ColumnRowIndex:
		return strconv.Itoa(row)
	case ColumnPID:
		return strconv.Itoa(n.Pid)
	case ColumnUserCPU:
		rc := rowCacheFor(n)
		return fmt.Sprintf("%.1f%%", fraction(rc.utimeDelta, c.totalDelta())*100)
	case ColumnSystemCPU:
		rc := rowCacheFor(n)
		return fmt.Sprintf("%.1f%%", fraction(rc.stimeDelta, c.totalDelta())*100)
	case ColumnWallTime:
		if st, ok := n.Store(sampler.KindStat).(*sampler.StatStore); ok {
			return strconv.FormatUint(st.StartTime, 10)
		}
		return ""
	case ColumnTree:
		return treeGlyph(n)
	case ColumnArgv:
		if cl, ok := n.Store(sampler.KindCmdline).(*sampler.CmdlineStore); ok && len(cl.Argv) > 0 {
			return strings.Join(cl.Argv, " ")
		}
		if st, ok := n.Store(sampler.KindStat).(*sampler.StatStore); ok {
			return "[" + st.Comm + "]"
		}
		return ""
	case ColumnWchan:
		if wc, ok := n.Store(sampler.KindWchan).(*sampler.WchanStore); ok {
			return wc.Name
		}
		return ""
	case ColumnState:
		if st, ok := n.Store(sampler.KindStat).(*sampler.StatStore); ok {
			return string(st.State)
		}
		return ""
	default:
		return ""
	}
}

// drawSnowflakeRow renders the condensed post-mortem column set for a
// preserved dead process into the text layer at row.
func (c *Chart) drawSnowflakeRow(row int, rec *snowflakeRecord) {
	leftX, rightX := 0, c.Width
	for _, col := range c.SnowflakeColumns {
		if !col.Enabled {
			continue
		}
		var text string
		switch col.Kind {
		case ColumnPID:
			text = strconv.Itoa(rec.pid)
		case ColumnArgv:
			if len(rec.argv) > 0 {
				text = strings.Join(rec.argv, " ")
			} else {
				text = "[" + rec.comm + "]"
			}
		case ColumnWchan:
			text = rec.wchan
		}
		if text == "" {
			continue
		}
		strs := []string{text}
		w := c.Target.DrawText(backend.Text, 0, -1, strs)
		col.grow(w)
		var x int
		if col.Side == SideLeft {
			x = leftX
			leftX += col.Width
		} else {
			rightX -= col.Width
			x = rightX
		}
		c.Target.DrawText(backend.Text, col.justify(x, w), row, strs)
	}
}

// Compose produces the chart's composed layer.
func (c *Chart) Compose() {
	if c.GenLastComposed == c.lastMaintainedGen && !c.RedrawNeeded {
		return
	}
	c.Target.Compose()
	c.GenLastComposed = c.lastMaintainedGen
	c.RedrawNeeded = false
}

// Render presents the chart's composed output to dest.
func (c *Chart) Render(op backend.PresentOp, dest io.Writer, x, y, w, h int) error {
	if c.Width == 0 || c.Height == 0 {
		return nil
	}
	return c.Target.Present(op, dest, x, y, w, h)
}

// Close releases the chart's backend resources.
func (c *Chart) Close() error {
	return c.Target.Close()
}
