package monitor

import (
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/vmon-project/vmon/internal/ilist"
	"github.com/vmon-project/vmon/internal/logging"
	"github.com/vmon-project/vmon/internal/sampler"
)

// Flags select monitor-wide behavior.
type Flags uint8

const (
	// ProcArray maintains an auxiliary flat array of all monitored nodes.
	ProcArray Flags = 1 << iota
	// ProcAll makes Sample begin by reconciling the root list against a
	// readdir of /proc: every numeric directory becomes a top-level
	// monitor.
	ProcAll
	// TwoPass splits Sample into a sampler pass followed by a callback
	// pass, required when callbacks must observe a fully sampled tree.
	TwoPass
)

type pendingSplice struct {
	child     *Node
	newParent *Node
}

// Monitor is the root of the monitored process tree.
type Monitor struct {
	flags    Flags
	procRoot string
	log      zerolog.Logger

	table *pidTable
	roots *ilist.List[*Node]
	array []*Node // valid when ProcArray is set

	generation uint64

	onceSysCallback func(m *Monitor)

	orphans  []*Node
	splices  []pendingSplice

	sysWants sampler.SysWants
	sysStat  *sampler.SysStatStore
	sysMem   *sampler.MemInfoStore

	exitProbe        *sampler.ExitProbe
	exitPulsePending bool
}

// Init creates a Monitor with the given flags, sampling system-wide stats
// selected by sysWants on every Sample call.
func Init(flags Flags, sysWants sampler.SysWants) *Monitor {
	m := &Monitor{
		flags:    flags,
		procRoot: "/proc",
		log:      logging.Component("monitor"),
		table:    newPidTable(),
		roots:    ilist.New[*Node](),
		sysWants: sysWants,
	}
	if flags&ProcArray != 0 {
		m.array = make([]*Node, 0, 256)
	}
	return m
}

// SetProcRoot overrides the /proc mount point, used by tests to point the
// sampler at a fixture directory tree instead of the real procfs.
func (m *Monitor) SetProcRoot(root string) { m.procRoot = root }

// SetOnceSysCallback installs the callback fired once per sample, after
// system-wide sampling completes.
func (m *Monitor) SetOnceSysCallback(fn func(m *Monitor)) { m.onceSysCallback = fn }

// EnableExitProbe attempts to attach the best-effort eBPF exit notifier.
// It returns the attach error (typically *sampler.ProbeExitUnavailableError
// on a non-root or BTF-less host) so callers can log it, but sampling
// works identically whether or not this succeeds — poll remains
// authoritative regardless.
func (m *Monitor) EnableExitProbe() error {
	p, err := sampler.NewExitProbe()
	if err != nil {
		return err
	}
	m.exitProbe = p
	return nil
}

// ExitPulsePending reports whether the exit probe (if attached) has seen
// at least one process exit since the last call, as a hint a caller may
// use to resample sooner than its configured interval. Always false when
// no exit probe is attached.
func (m *Monitor) ExitPulsePending() bool {
	return m.exitPulsePending
}

// Destroy tears down the tree leaves-first.
func (m *Monitor) Destroy() {
	var destroyTree func(n *Node)
	destroyTree = func(n *Node) {
		for e := n.Threads.Front(); e != nil; {
			next := e.Next()
			destroyTree(e.Value)
			e = next
		}
		for e := n.Children.Front(); e != nil; {
			next := e.Next()
			destroyTree(e.Value)
			e = next
		}
		n.destroyStores()
	}
	for e := m.roots.Front(); e != nil; {
		next := e.Next()
		destroyTree(e.Value)
		e = next
	}
	if m.sysStat != nil {
		m.sysStat.Close()
	}
	if m.sysMem != nil {
		m.sysMem.Close()
	}
	if m.exitProbe != nil {
		if err := m.exitProbe.Close(); err != nil {
			m.log.Warn().Err(err).Msg("close exit probe failed")
		}
	}
}

// Nodes returns the ProcArray flat view, or nil if ProcArray was not
// requested at Init.
func (m *Monitor) Nodes() []*Node { return m.array }

// Generation returns the most recently completed (or in-progress) sample
// generation.
func (m *Monitor) Generation() uint64 { return m.generation }

// MonitorProc begins monitoring pid, optionally under parent. Duplicate
// calls for the same (pid, is_thread) bump the refcount and install an
// additional callback tuple if new.
func (m *Monitor) MonitorProc(parent *Node, pid int, wants sampler.Wants, cb SampleCallback, arg any) *Node {
	return m.monitorProc(parent, pid, false, wants, cb, arg)
}

func (m *Monitor) monitorProc(parent *Node, pid int, isThread bool, wants sampler.Wants, cb SampleCallback, arg any) *Node {
	n := m.table.lookup(pid, isThread)
	if n == nil {
		n = newNode(pid, isThread)
		n.Wants = wants
		n.Generation = m.generation
		m.table.insert(n)
		if m.array != nil {
			n.arrayIdx = len(m.array)
			m.array = append(m.array, n)
		}
		if parent != nil {
			n.Parent = parent
			// The parent's children/threads list owns n; the back-pointer
			// above is non-owning (the "late re-parenting" note).
			n.addRef()
			if isThread {
				n.threadElem = parent.Threads.PushBack(n)
			} else {
				n.childElem = parent.Children.PushBack(n)
			}
		} else {
			n.rootElem = m.roots.PushBack(n)
		}
	} else if parent != nil && n.Parent == nil {
		// Defer the list migration to end-of-sample; a root-list
		// traversal may currently be in flight.
		n.Parent = parent
		n.addRef()
		m.splices = append(m.splices, pendingSplice{child: n, newParent: parent})
	}
	n.addRef()
	n.installCallback(cb, arg)
	return n
}

// UnmonitorProc decrements refcount; when it reaches zero the node is
// unlinked and its stores destroyed.
func (m *Monitor) UnmonitorProc(n *Node, cb SampleCallback, arg any) {
	if n == nil {
		return
	}
	if cb != nil {
		n.removeCallback(cb, arg)
	}
	if n.release() > 0 {
		return
	}
	m.unlinkNode(n)
	n.destroyStores()
}

func (m *Monitor) unlinkNode(n *Node) {
	m.table.remove(n)
	if n.childElem != nil && n.Parent != nil {
		n.Parent.Children.Remove(n.childElem)
		n.childElem = nil
	}
	if n.threadElem != nil && n.Parent != nil {
		n.Parent.Threads.Remove(n.threadElem)
		n.threadElem = nil
	}
	if n.rootElem != nil {
		m.roots.Remove(n.rootElem)
		n.rootElem = nil
	}
	n.Parent = nil
	if m.array != nil && n.arrayIdx >= 0 && n.arrayIdx < len(m.array) {
		m.array[n.arrayIdx] = nil
	}

	// n is being torn down; its children/threads lose the ownership ref
	// their list membership granted them. A survivor (one still held by an
	// external monitor_proc caller) is orphaned back onto the root list
	// rather than destroyed alongside its dying parent // orphan queue.
	for e := n.Children.Front(); e != nil; {
		next := e.Next()
		c := e.Value
		n.Children.Remove(e)
		c.childElem = nil
		c.Parent = nil
		if c.release() <= 0 {
			m.unlinkNode(c)
			c.destroyStores()
		} else {
			m.orphan(c)
		}
		e = next
	}
	for e := n.Threads.Front(); e != nil; {
		next := e.Next()
		t := e.Value
		n.Threads.Remove(e)
		t.threadElem = nil
		t.Parent = nil
		if t.release() <= 0 {
			m.unlinkNode(t)
			t.destroyStores()
		} else {
			m.orphan(t)
		}
		e = next
	}
}

func (m *Monitor) adoptChild(parent *Node, pid int) *Node {
	return m.monitorProc(parent, pid, false, sampler.DefaultProcessWants, nil, nil)
}

func (m *Monitor) adoptThread(parent *Node, tid int) *Node {
	return m.monitorProc(parent, tid, true, sampler.DefaultThreadWants, nil, nil)
}

// orphan queues n to be spliced back onto the root list at end-of-sample,
// for a node whose parent exited mid-sample.
func (m *Monitor) orphan(n *Node) {
	n.Parent = nil
	m.orphans = append(m.orphans, n)
}

// Sample runs one full pass over the tree, numbered by a monotonically
// increasing generation counter.
func (m *Monitor) Sample() {
	m.generation++

	if m.exitProbe != nil {
		m.exitPulsePending = m.exitProbe.Pending()
	}

	if m.flags&ProcAll != 0 {
		m.reconcileProcAll()
	}

	if m.sysWants.Has(sampler.SysKindStat) {
		if m.sysStat == nil {
			var err error
			m.sysStat, err = sampler.NewSysStatStore(m.procRoot + "/stat")
			if err != nil {
				m.log.Warn().Err(err).Msg("open /proc/stat failed")
			}
		}
		if m.sysStat != nil {
			if _, err := m.sysStat.Sample(); err != nil {
				m.log.Warn().Err(err).Msg("sample /proc/stat failed")
			}
		}
	}
	if m.sysWants.Has(sampler.SysKindMemInfo) {
		if m.sysMem == nil {
			var err error
			m.sysMem, err = sampler.NewMemInfoStore(m.procRoot + "/meminfo")
			if err != nil {
				m.log.Warn().Err(err).Msg("open /proc/meminfo failed")
			}
		}
		if m.sysMem != nil {
			if _, err := m.sysMem.Sample(); err != nil {
				m.log.Warn().Err(err).Msg("sample /proc/meminfo failed")
			}
		}
	}

	if m.onceSysCallback != nil {
		m.onceSysCallback(m)
	}

	switch {
	case m.flags&ProcArray != 0:
		m.sampleViaArray()
	case m.flags&TwoPass != 0:
		m.sampleTwoPass()
	default:
		m.sampleSinglePass()
	}

	m.applySplices()
	m.spliceOrphans()
}

// SysStat returns the system-wide CPU accounting store, or nil if
// SysKindStat was not requested in sys_wants.
func (m *Monitor) SysStat() *sampler.SysStatStore { return m.sysStat }

// SysMemInfo returns the system-wide meminfo store, or nil if not
// requested.
func (m *Monitor) SysMemInfo() *sampler.MemInfoStore { return m.sysMem }

func (m *Monitor) reconcileProcAll() {
	entries, err := os.ReadDir(m.procRoot)
	if err != nil {
		m.log.Warn().Err(err).Msg("readdir /proc failed")
		return
	}
	seen := make(map[int]bool, len(entries))
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid <= 0 {
			continue
		}
		seen[pid] = true
		n := m.table.lookup(pid, false)
		if n == nil {
			m.monitorProc(nil, pid, false, sampler.DefaultProcessWants, nil, nil)
			continue
		}
		n.Generation = m.generation
		n.IsNew = false
	}
	for e := m.roots.Front(); e != nil; {
		next := e.Next()
		n := e.Value
		if !seen[n.Pid] {
			m.UnmonitorProc(n, nil, nil)
		}
		e = next
	}
}

func (m *Monitor) sampleNode(n *Node) {
	if n.IsStale {
		// A stale node's per-sampler updates are suppressed in the
		// pass that marks it stale.
		return
	}
	n.Activity.ClearAll()
	sampler.EachWanted(n.Wants, func(k sampler.Kind) {
		if m.runSampler(n, k) == sampler.Changed {
			n.Activity.Set(int(k))
		}
	})
	if n.Generation != m.generation {
		n.Generation = m.generation
	}
}

func (m *Monitor) sampleViaArray() {
	for _, n := range m.array {
		if n == nil {
			continue
		}
		m.sampleNode(n)
		n.fireCallbacks(m)
		n.IsNew = false
	}
}

func (m *Monitor) sampleSinglePass() {
	var walk func(n *Node)
	walk = func(n *Node) {
		m.sampleNode(n)
		n.fireCallbacks(m)
		for e := n.Threads.Front(); e != nil; e = e.Next() {
			walk(e.Value)
		}
		for e := n.Children.Front(); e != nil; e = e.Next() {
			walk(e.Value)
		}
		n.IsNew = false
	}
	for e := m.roots.Front(); e != nil; e = e.Next() {
		walk(e.Value)
	}
}

func (m *Monitor) sampleTwoPass() {
	var pass1 func(n *Node)
	pass1 = func(n *Node) {
		m.sampleNode(n)
		for e := n.Threads.Front(); e != nil; e = e.Next() {
			pass1(e.Value)
		}
		for e := n.Children.Front(); e != nil; e = e.Next() {
			pass1(e.Value)
		}
	}
	for e := m.roots.Front(); e != nil; e = e.Next() {
		pass1(e.Value)
	}

	// Pass 2: recurse first (leaves-first callback order), then invoke
	// callbacks on the way up, so a node's descendants' callbacks always
	// fire before its own.
	var pass2 func(n *Node)
	pass2 = func(n *Node) {
		for e := n.Threads.Front(); e != nil; e = e.Next() {
			pass2(e.Value)
		}
		for e := n.Children.Front(); e != nil; e = e.Next() {
			pass2(e.Value)
		}
		n.fireCallbacks(m)
		n.IsNew = false
	}
	for e := m.roots.Front(); e != nil; e = e.Next() {
		pass2(e.Value)
	}
}

// applySplices moves nodes whose parent was assigned mid-sample from the
// root list to the parent's children list.
func (m *Monitor) applySplices() {
	for _, sp := range m.splices {
		if sp.child.rootElem == nil {
			continue // already moved (or never was root-listed)
		}
		m.roots.Remove(sp.child.rootElem)
		sp.child.rootElem = nil
		sp.child.childElem = sp.newParent.Children.PushBack(sp.child)
	}
	m.splices = m.splices[:0]
}

// spliceOrphans moves nodes whose parent exited mid-sample back onto the
// root list.
func (m *Monitor) spliceOrphans() {
	for _, n := range m.orphans {
		n.rootElem = m.roots.PushBack(n)
	}
	m.orphans = m.orphans[:0]
}
