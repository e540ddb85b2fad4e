package monitor

import (
	"os"
	"strconv"

	"github.com/vmon-project/vmon/internal/sampler"
)

// runThreads implements the thread-following: read directory
// entries of /proc/$pid/task, skipping non-numeric names, otherwise
// identical to children-following against the thread list. Skipped
// entirely when stat reports num_threads <= 1 and the thread list is
// already empty, avoiding a directory read for the common single-threaded
// case.
func (m *Monitor) runThreads(n *Node) sampler.Result {
	if st, ok := n.store(sampler.KindStat).(*sampler.StatStore); ok {
		if st.NumThreads <= 1 && n.Threads.Len() == 0 {
			return sampler.Unchanged
		}
	}

	path := procPath(m.procRoot, n, "task")
	entries, err := os.ReadDir(path)
	if err != nil {
		return sampler.Unchanged
	}

	changed := false
	for _, e := range entries {
		tid, err := strconv.Atoi(e.Name())
		if err != nil || tid <= 0 {
			continue
		}
		if tid == n.Pid {
			continue // the main thread is the process node itself
		}
		th := m.findThreadFrom(n, tid)
		if th == nil {
			m.adoptThread(n, tid)
			changed = true
			n.IsThreaded = true
			continue
		}
		if th.Generation != m.generation {
			th.Generation = m.generation
			th.IsNew = false
		}
	}

	for e := n.Threads.Front(); e != nil; e = e.Next() {
		th := e.Value
		if th.Generation != m.generation && !th.IsStale {
			th.markStaleRecursive()
			changed = true
		}
	}

	if changed {
		n.ThreadsChanged = true
		return sampler.Changed
	}
	n.ThreadsChanged = false
	return sampler.Unchanged
}

func (m *Monitor) findThreadFrom(n *Node, tid int) *Node {
	if n.Threads.Len() == 0 {
		return nil
	}
	start := n.threadCursor
	if start == nil {
		start = n.Threads.Front()
	}
	e := start
	for i := 0; i < n.Threads.Len(); i++ {
		if e == nil {
			e = n.Threads.Front()
		}
		if e.Value.Pid == tid {
			n.threadCursor = e
			return e.Value
		}
		e = e.Next()
	}
	return nil
}
