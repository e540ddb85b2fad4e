// Package monitor maintains the tree of monitored processes and threads:
// a pid-indexed hash table, parent/child/thread relationships, generation
// numbering, and a two-phase new/stale lifecycle for each node.
package monitor

import (
	"github.com/vmon-project/vmon/internal/bitmap"
	"github.com/vmon-project/vmon/internal/ilist"
	"github.com/vmon-project/vmon/internal/sampler"
)

// SampleCallback is invoked once per sample for every node that installed
// it, after that node's own samplers have run. In TwoPass mode it also
// runs after all of its descendants' callbacks; in single-pass mode it
// runs before the walk descends into the node's threads and children.
type SampleCallback func(m *Monitor, n *Node, arg any)

type callbackEntry struct {
	fn  SampleCallback
	arg any
}

// Node represents one monitored process or thread.
type Node struct {
	Pid    int
	Parent *Node

	Children *ilist.List[*Node]
	Threads  *ilist.List[*Node]

	// childElem/threadElem/rootElem/bucketElem are the Elem handles this
	// node holds for O(1) removal from whichever intrusive list currently
	// contains it.
	childElem  *ilist.Elem[*Node]
	threadElem *ilist.Elem[*Node]
	rootElem   *ilist.Elem[*Node]
	bucketElem *ilist.Elem[*Node]
	arrayIdx   int // index into Monitor.array when ProcArray is enabled, -1 if none

	IsThread        bool
	IsNew           bool
	IsStale         bool
	IsThreaded      bool // true once this process has ever had >1 thread
	ChildrenChanged bool
	ThreadsChanged  bool

	Generation uint64
	refcount   int

	Wants    sampler.Wants
	Activity bitmap.Bitmap // per-sampler-kind "something changed" bits

	stores [numStoreSlots]any // opaque per-sampler-kind store pointers

	callbacks []callbackEntry

	// UserData is opaque per-root data the chart engine (or any other
	// consumer) attaches to the node it owns; the monitor never inspects it.
	UserData any

	// childCursor is the rolling search cursor the children follower uses
	// to resume scanning from where the last pass left off.
	childCursor *ilist.Elem[*Node]
	threadCursor *ilist.Elem[*Node]

	files *fileTable // open-files tracking, populated lazily by the fd sampler
}

const numStoreSlots = int(sampler.KindFDs) + 1

func newNode(pid int, isThread bool) *Node {
	return &Node{
		Pid:      pid,
		IsThread: isThread,
		IsNew:    true,
		Children: ilist.New[*Node](),
		Threads:  ilist.New[*Node](),
		Activity: bitmap.New(numStoreSlots),
		arrayIdx: -1,
	}
}

// Refcount returns the node's current reference count: one per monitor_proc
// call made against it (including the call that first discovered it), plus
// one while it's linked into a parent's children or threads list. The
// parent back-pointer itself is non-owning — losing the list-membership
// ref when a parent is torn down doesn't necessarily free the node if
// some caller still holds it directly.
func (n *Node) Refcount() int { return n.refcount }

func (n *Node) addRef()    { n.refcount++ }
func (n *Node) release() int {
	n.refcount--
	return n.refcount
}

// installCallback appends (fn, arg) if no identical tuple is already
// present, deduplicating by (function pointer, arg) identity.
func (n *Node) installCallback(fn SampleCallback, arg any) {
	if fn == nil {
		return
	}
	for _, e := range n.callbacks {
		if sameCallback(e.fn, fn) && e.arg == arg {
			return
		}
	}
	n.callbacks = append(n.callbacks, callbackEntry{fn: fn, arg: arg})
}

func (n *Node) removeCallback(fn SampleCallback, arg any) {
	out := n.callbacks[:0]
	for _, e := range n.callbacks {
		if sameCallback(e.fn, fn) && e.arg == arg {
			continue
		}
		out = append(out, e)
	}
	n.callbacks = out
}

func (n *Node) fireCallbacks(m *Monitor) {
	for _, e := range n.callbacks {
		e.fn(m, n, e.arg)
	}
}

// store returns the opaque store slot for kind k, or nil if not yet
// allocated.
func (n *Node) store(k sampler.Kind) any      { return n.stores[k] }
func (n *Node) setStore(k sampler.Kind, v any) { n.stores[k] = v }

// Store exposes the opaque store slot for kind k to callers outside the
// package (the chart engine reads StatStore/CmdlineStore/WchanStore
// directly to draw bars and text columns). Returns nil if that sampler
// hasn't run for this node yet.
func (n *Node) Store(k sampler.Kind) any { return n.stores[k] }

// SetStore installs v as the store for kind k. Exported alongside Store so
// a caller that synthesizes or replays sampler output (a test harness, a
// recorded-session player) can seed a node's stores directly.
func (n *Node) SetStore(k sampler.Kind, v any) { n.stores[k] = v }

// markStaleRecursive propagates staleness to every descendant in the same
// sample: once a node goes stale, its whole subtree goes stale with it.
func (n *Node) markStaleRecursive() {
	if n.IsStale {
		return
	}
	n.IsStale = true
	for e := n.Threads.Front(); e != nil; e = e.Next() {
		e.Value.markStaleRecursive()
	}
	for e := n.Children.Front(); e != nil; e = e.Next() {
		e.Value.markStaleRecursive()
	}
}
