// Package driver implements the clock-driven sampling cadence: drift
// detection against a configured interval, adaptive rate reduction through
// a fixed preset table, and a four-state lifecycle (Uninitialized, Primed,
// Running, Pausing), wrapping a monitor.Monitor and the set of chart.Chart
// instances driven off it.
package driver

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/vmon-project/vmon/internal/backend"
	"github.com/vmon-project/vmon/internal/chart"
	"github.com/vmon-project/vmon/internal/logging"
	"github.com/vmon-project/vmon/internal/monitor"
	"github.com/vmon-project/vmon/internal/sampler"
)

// defaultRootWants is what a driver-created chart's root process is
// sampled for absent a caller-supplied override.
var defaultRootWants = sampler.DefaultProcessWants

// Flags select driver-wide behavior.
type Flags uint8

const (
	// DeferMaintenance collapses per-tick chart layer maintenance until a
	// later ComposeAll call, for callers that only render occasionally
	// (e.g. an on-demand PNG snapshot) and don't want every intervening
	// tick's row bookkeeping paid for upfront.
	DeferMaintenance Flags = 1 << iota
)

// State names one stop on the driver's lifecycle.
type State int

const (
	Uninitialized State = iota
	Primed
	Running
	Pausing
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Primed:
		return "primed"
	case Running:
		return "running"
	case Pausing:
		return "pausing"
	default:
		return "unknown"
	}
}

// ratePresets is the fixed sorted table rate_increase/rate_decrease step
// through, in seconds between samples: 1, 0.1, 0.05, 0.025, 0.0167.
var ratePresets = []time.Duration{
	1 * time.Second,
	100 * time.Millisecond,
	50 * time.Millisecond,
	25 * time.Millisecond,
	16700 * time.Microsecond,
}

// epsilon is the tolerance used to decide "close enough to the configured
// interval to sample now".
const epsilon = time.Millisecond

// consecutiveOverrunsBeforeDecrease is the number of consecutive interval
// overruns that triggers an automatic rate decrease.
const consecutiveOverrunsBeforeDecrease = 3

// Driver is the external-facing "charts" handle: it owns a Monitor and
// every Chart rooted on a pid it was asked to watch, and exposes the
// rate_increase/rate_decrease/rate_set/update API a caller drives its own
// event loop with.
type Driver struct {
	Monitor *monitor.Monitor

	flags    Flags
	charts   map[int]*chart.Chart
	rateIdx  int // index into ratePresets, -1 after an explicit RateSet
	interval time.Duration
	paused   bool

	state          State
	lastSampleTime time.Time
	overruns       int
	pendingElapsed time.Duration
	lastSysTotal   uint64

	now func() time.Time
	log zerolog.Logger
}

// New creates a Driver over m, sampling at the slowest preset (1s) until
// a rate call or RateSet changes it. It installs its own once-per-sample
// system callback on m to feed every chart's bar-scaling divisor; callers
// should not call m.SetOnceSysCallback themselves.
func New(m *monitor.Monitor, flags Flags) *Driver {
	d := &Driver{
		Monitor:  m,
		flags:    flags,
		charts:   make(map[int]*chart.Chart),
		rateIdx:  0,
		interval: ratePresets[0],
		state:    Uninitialized,
		now:      time.Now,
		log:      logging.Component("driver"),
	}
	m.SetOnceSysCallback(d.updateSysDelta)
	return d
}

// updateSysDelta runs once per Monitor.Sample, after the system-wide
// /proc/stat store has refreshed but before any process is sampled. It
// feeds the new total CPU tick delta to every chart so bar heights stay
// scaled against the same system-wide tick for that sample.
func (d *Driver) updateSysDelta(m *monitor.Monitor) {
	stat := m.SysStat()
	if stat == nil {
		return
	}
	total := stat.Total()
	delta := total - d.lastSysTotal
	d.lastSysTotal = total
	for _, c := range d.charts {
		c.SetSysDelta(delta)
	}
}

// CreateChart begins monitoring pid (if not already) and creates a chart
// rooted on it.
func (d *Driver) CreateChart(pid int, target backend.Target, width, height, numCPU int, name string) *chart.Chart {
	root := d.Monitor.MonitorProc(nil, pid, defaultRootWants, nil, nil)
	c := chart.NewChart(root, target, width, height, numCPU, name)
	d.charts[pid] = c
	return c
}

// DestroyChart stops monitoring pid's chart and releases its backend.
func (d *Driver) DestroyChart(pid int) {
	c, ok := d.charts[pid]
	if !ok {
		return
	}
	delete(d.charts, pid)
	d.Monitor.UnmonitorProc(c.Root, nil, nil)
	if err := c.Close(); err != nil {
		d.log.Warn().Err(err).Int("pid", pid).Msg("close chart backend failed")
	}
}

// Chart returns the chart rooted on pid, or nil.
func (d *Driver) Chart(pid int) *chart.Chart { return d.charts[pid] }

// Destroy tears down every chart and the underlying monitor tree.
func (d *Driver) Destroy() {
	for pid := range d.charts {
		d.DestroyChart(pid)
	}
	d.Monitor.Destroy()
}

// RateIncrease steps to the next faster preset, bounded at the table's
// fastest entry.
func (d *Driver) RateIncrease() {
	if d.rateIdx < 0 {
		d.rateIdx = d.closestPresetIndex()
	}
	if d.rateIdx < len(ratePresets)-1 {
		d.rateIdx++
	}
	d.interval = ratePresets[d.rateIdx]
	d.paused = false
}

// RateDecrease steps to the next slower preset, bounded at the table's
// slowest entry.
func (d *Driver) RateDecrease() {
	if d.rateIdx < 0 {
		d.rateIdx = d.closestPresetIndex()
	}
	if d.rateIdx > 0 {
		d.rateIdx--
	}
	d.interval = ratePresets[d.rateIdx]
	d.paused = false
}

// RateSet bypasses the preset table, setting interval = 1/hz directly.
// hz == 0 pauses sampling.
func (d *Driver) RateSet(hz float64) {
	if hz <= 0 {
		d.paused = true
		return
	}
	d.interval = time.Duration(float64(time.Second) / hz)
	d.rateIdx = -1
	d.paused = false
}

// Interval returns the currently configured sampling interval.
func (d *Driver) Interval() time.Duration { return d.interval }

// State returns the driver's current lifecycle state.
func (d *Driver) State() State { return d.state }

func (d *Driver) closestPresetIndex() int {
	best, bestDiff := 0, time.Duration(math.MaxInt64)
	for i, p := range ratePresets {
		diff := d.interval - p
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	return best
}

// Update drives the state machine one tick. It returns whether any
// chart's composed output changed, and a hint (in microseconds) for how
// long the caller may sleep before calling again; -1 means "sleep until
// external event" (only while paused).
func (d *Driver) Update() (changed bool, desiredDelayUs int64) {
	now := d.now()

	switch d.state {
	case Uninitialized:
		d.lastSampleTime = now
		d.state = Primed
		return false, d.interval.Microseconds()

	case Pausing:
		if d.paused {
			return false, -1
		}
		// RateSet/RateIncrease/RateDecrease cleared d.paused: resume as a
		// fresh start, the same way Uninitialized does, so the time spent
		// paused isn't counted as interval overrun on the next tick.
		d.lastSampleTime = now
		d.state = Running
		return false, d.interval.Microseconds()
	}

	if d.paused {
		changed = d.sampleAndMaintain(now.Sub(d.lastSampleTime))
		d.lastSampleTime = now
		d.state = Pausing
		return changed, -1
	}

	thisDelta := now.Sub(d.lastSampleTime)
	if thisDelta+epsilon < d.interval {
		// The exit probe (if attached) reporting a pulse from the previous
		// sample is a hint that a process just left the tree; resample now
		// instead of waiting out the rest of the interval. Poll remains
		// authoritative either way — this only shortens the wait.
		if !d.Monitor.ExitPulsePending() {
			return false, (d.interval - thisDelta).Microseconds()
		}
	}
	d.state = Running

	if thisDelta >= d.interval+d.interval/2 {
		d.overruns++
		if d.overruns >= consecutiveOverrunsBeforeDecrease {
			d.RateDecrease()
			d.overruns = 0
		}
	} else {
		d.overruns = 0
	}

	changed = d.sampleAndMaintain(thisDelta)
	d.lastSampleTime = now
	return changed, d.interval.Microseconds()
}

// sampleAndMaintain runs one monitor sample and, unless DeferMaintenance
// is set, immediately maintains and composes every chart. Under
// DeferMaintenance the elapsed time accumulates in pendingElapsed for a
// later ComposeAll to consume in one shot.
func (d *Driver) sampleAndMaintain(elapsed time.Duration) bool {
	d.Monitor.Sample()

	if d.flags&DeferMaintenance != 0 {
		d.pendingElapsed += elapsed
		return false
	}
	return d.maintainAll(elapsed)
}

func (d *Driver) maintainAll(elapsed time.Duration) bool {
	changed := false
	for _, c := range d.charts {
		if c.Maintain(d.Monitor, elapsed, d.interval) {
			changed = true
		}
		c.Compose()
	}
	return changed
}

// ComposeAll flushes any maintenance deferred by DeferMaintenance,
// returning whether anything changed. It's a no-op when DeferMaintenance
// wasn't set, since Update already kept every chart current.
func (d *Driver) ComposeAll() bool {
	if d.flags&DeferMaintenance == 0 {
		return false
	}
	elapsed := d.pendingElapsed
	d.pendingElapsed = 0
	if elapsed == 0 {
		return false
	}
	return d.maintainAll(elapsed)
}

// ResetSnowflakes clears every chart's preserved dead-process rows.
func (d *Driver) ResetSnowflakes() {
	for _, c := range d.charts {
		c.ResetSnowflakes()
	}
}
