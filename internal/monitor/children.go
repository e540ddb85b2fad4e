package monitor

import (
	"os"
	"strconv"
	"strings"

	"github.com/vmon-project/vmon/internal/sampler"
)

// runChildren implements the children-following: read
// /proc/$pid/task/$pid/children, adopt unseen pids, advance the
// generation of ones already present, and flag anything untouched this
// pass as stale (two-phase removal, finished on the *next* sample).
func (m *Monitor) runChildren(n *Node) sampler.Result {
	path := procPath(m.procRoot, n, "task/"+strconv.Itoa(n.Pid)+"/children")
	data, err := os.ReadFile(path)
	if err != nil {
		return sampler.Unchanged // transient: pid exited
	}

	changed := false
	for _, tok := range strings.Fields(string(data)) {
		pid, err := strconv.Atoi(tok)
		if err != nil || pid <= 0 {
			continue
		}
		child := m.findChildFrom(n, pid)
		if child == nil {
			m.adoptChild(n, pid)
			changed = true
			continue
		}
		if child.Generation != m.generation {
			child.Generation = m.generation
			child.IsNew = false
		}
	}

	// Two-phase stale detection: anything not touched this generation is
	// marked stale now and reaped on this sampler's next entry.
	for e := n.Children.Front(); e != nil; e = e.Next() {
		c := e.Value
		if c.Generation != m.generation && !c.IsStale {
			c.markStaleRecursive()
			changed = true
		}
	}

	if changed {
		n.ChildrenChanged = true
		return sampler.Changed
	}
	n.ChildrenChanged = false
	return sampler.Unchanged
}

// findChildFrom searches n's children list starting from the rolling
// cursor, wrapping once if it reaches the end without a match.
func (m *Monitor) findChildFrom(n *Node, pid int) *Node {
	if n.Children.Len() == 0 {
		return nil
	}
	start := n.childCursor
	if start == nil {
		start = n.Children.Front()
	}
	e := start
	for i := 0; i < n.Children.Len(); i++ {
		if e == nil {
			e = n.Children.Front()
		}
		if e.Value.Pid == pid {
			n.childCursor = e
			return e.Value
		}
		e = e.Next()
	}
	return nil
}
