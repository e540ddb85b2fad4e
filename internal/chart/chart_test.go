package chart

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmon-project/vmon/internal/backend"
	"github.com/vmon-project/vmon/internal/monitor"
	"github.com/vmon-project/vmon/internal/sampler"
)

// fakeTarget is a minimal backend.Target double that only records the calls
// a test cares about; every method is a no-op unless noted.
type fakeTarget struct {
	shiftDownCalls []int
	shiftUpCalls   []int
	stashCalls     []backend.Layer
	unstashCalls   []backend.Layer
	markFinish     int
	clearedRows    []int
	phaseAdvances  []int
	composed       int
	dividerRows    []int
}

func (f *fakeTarget) ResizeVisible(w, h int) bool { return true }
func (f *fakeTarget) DrawText(layer backend.Layer, x, row int, strs []string) int {
	n := 0
	for _, s := range strs {
		n += len(s)
	}
	return n
}
func (f *fakeTarget) DrawOrthoLine(layer backend.Layer, x1, y1, x2, y2 int) {}
func (f *fakeTarget) MarkFinishLine(layer backend.Layer, row int)          { f.markFinish++ }
func (f *fakeTarget) DrawBar(layer backend.Layer, row int, t float64, minHeight int) {}
func (f *fakeTarget) ClearRow(layer backend.Layer, row, x, width int) {
	f.clearedRows = append(f.clearedRows, row)
}
func (f *fakeTarget) ShiftBelowRowUpOne(row int)   { f.shiftUpCalls = append(f.shiftUpCalls, row) }
func (f *fakeTarget) ShiftBelowRowDownOne(row int) { f.shiftDownCalls = append(f.shiftDownCalls, row) }
func (f *fakeTarget) ShadowRow(row int)            {}
func (f *fakeTarget) StashRow(layer backend.Layer, row int)   { f.stashCalls = append(f.stashCalls, layer) }
func (f *fakeTarget) UnstashRow(layer backend.Layer, row int) { f.unstashCalls = append(f.unstashCalls, layer) }
func (f *fakeTarget) AdvancePhase(delta int)                  { f.phaseAdvances = append(f.phaseAdvances, delta) }
func (f *fakeTarget) SetDividerRow(row int)                   { f.dividerRows = append(f.dividerRows, row) }
func (f *fakeTarget) Compose()                                { f.composed++ }
func (f *fakeTarget) Present(op backend.PresentOp, dest io.Writer, x, y, w, h int) error {
	return nil
}
func (f *fakeTarget) Close() error { return nil }

func newTestMonitorAndRoot(pid int) (*monitor.Monitor, *monitor.Node) {
	m := monitor.Init(0, 0)
	m.SetProcRoot("/nonexistent-proc-root-for-tests")
	root := m.MonitorProc(nil, pid, sampler.DefaultProcessWants, nil, nil)
	return m, root
}

func setStat(n *monitor.Node, utime, stime uint64, numThreads int) {
	n.SetStore(sampler.KindStat, &sampler.StatStore{
		Comm:       "test",
		UTime:      utime,
		STime:      stime,
		NumThreads: numThreads,
	})
}

func TestNewChartResizesTargetAndSeedsHeaderRow(t *testing.T) {
	_, root := newTestMonitorAndRoot(1)
	ft := &fakeTarget{}
	c := NewChart(root, ft, 80, 24, 4, "test")
	assert.Equal(t, 1, c.HierarchyEnd)
	assert.True(t, c.RedrawNeeded)
}

func TestMaintainIsIdempotentForSameGeneration(t *testing.T) {
	m, root := newTestMonitorAndRoot(1)
	ft := &fakeTarget{}
	c := NewChart(root, ft, 80, 24, 4, "test")

	m.Sample()
	c.Maintain(m, time.Second, time.Second)
	firstAdvances := len(ft.phaseAdvances)
	require.GreaterOrEqual(t, firstAdvances, 1)

	changed := c.Maintain(m, time.Second, time.Second)
	assert.False(t, changed)
	assert.Equal(t, firstAdvances, len(ft.phaseAdvances))
}

func TestReconcileBirthsInsertsNewRowsAndShifts(t *testing.T) {
	m, root := newTestMonitorAndRoot(1)
	child := m.MonitorProc(root, 2, sampler.DefaultProcessWants, nil, nil)
	setStat(child, 0, 0, 1)

	ft := &fakeTarget{}
	c := NewChart(root, ft, 80, 24, 4, "test")

	m.Sample()
	c.Maintain(m, time.Second, time.Second)

	assert.Contains(t, c.rows, root)
	assert.Contains(t, c.rows, child)
	assert.Equal(t, 3, c.HierarchyEnd) // header row 0; root + child at 1,2; end = 3
	assert.NotEmpty(t, ft.shiftDownCalls)
}

func TestSnowflakeExtractionDecrementsHierarchyEndAfterRender(t *testing.T) {
	m, root := newTestMonitorAndRoot(1)
	child := m.MonitorProc(root, 2, sampler.DefaultProcessWants, nil, nil)
	setStat(child, 0, 0, 1)

	ft := &fakeTarget{}
	c := NewChart(root, ft, 80, 24, 4, "test")
	m.Sample()
	c.Maintain(m, time.Second, time.Second)

	endBeforeDeath := c.HierarchyEnd
	child.IsStale = true
	m.Sample()

	c.Maintain(m, time.Second, time.Second)

	assert.Equal(t, endBeforeDeath-1, c.HierarchyEnd)
	assert.Equal(t, 1, c.SnowflakesCnt)
	assert.Equal(t, 1, ft.markFinish/2) // two layers marked per extraction
	assert.NotEmpty(t, ft.stashCalls)
	assert.NotEmpty(t, ft.unstashCalls)
}

func TestResetSnowflakesClearsCountAndRows(t *testing.T) {
	m, root := newTestMonitorAndRoot(1)
	child := m.MonitorProc(root, 2, sampler.DefaultProcessWants, nil, nil)
	setStat(child, 0, 0, 1)

	ft := &fakeTarget{}
	c := NewChart(root, ft, 80, 24, 4, "test")
	m.Sample()
	c.Maintain(m, time.Second, time.Second)
	child.IsStale = true
	m.Sample()
	c.Maintain(m, time.Second, time.Second)
	require.Equal(t, 1, c.SnowflakesCnt)

	c.ResetSnowflakes()
	assert.Equal(t, 0, c.SnowflakesCnt)
	assert.True(t, c.RedrawNeeded)
}

func TestHierarchyEndDividerTracksBirthsAndDeaths(t *testing.T) {
	m, root := newTestMonitorAndRoot(1)
	child := m.MonitorProc(root, 2, sampler.DefaultProcessWants, nil, nil)
	setStat(child, 0, 0, 1)

	ft := &fakeTarget{}
	c := NewChart(root, ft, 80, 24, 4, "test")
	require.NotEmpty(t, ft.dividerRows)
	assert.Equal(t, c.HierarchyEnd, ft.dividerRows[len(ft.dividerRows)-1])

	m.Sample()
	c.Maintain(m, time.Second, time.Second)
	assert.Equal(t, c.HierarchyEnd, ft.dividerRows[len(ft.dividerRows)-1])

	child.IsStale = true
	m.Sample()
	c.Maintain(m, time.Second, time.Second)
	assert.Equal(t, c.HierarchyEnd, ft.dividerRows[len(ft.dividerRows)-1])
}

func TestMaintainReplaysOnStall(t *testing.T) {
	m, root := newTestMonitorAndRoot(1)
	ft := &fakeTarget{}
	c := NewChart(root, ft, 80, 24, 4, "test")

	m.Sample()
	c.Maintain(m, 3500*time.Millisecond, time.Second)
	assert.GreaterOrEqual(t, len(ft.phaseAdvances), 3)
}
