package monitor

import "github.com/vmon-project/vmon/internal/ilist"

// pidTable is a fixed-size chained hash table over (pid, isThread),
// giving monitor_proc its O(1) duplicate-detection lookup.
type pidTable struct {
	buckets []*ilist.List[*Node]
}

const pidTableBuckets = 1024

func newPidTable() *pidTable {
	t := &pidTable{buckets: make([]*ilist.List[*Node], pidTableBuckets)}
	for i := range t.buckets {
		t.buckets[i] = ilist.New[*Node]()
	}
	return t
}

func pidHash(pid int, isThread bool) int {
	h := pid * 2654435761
	if isThread {
		h++
	}
	if h < 0 {
		h = -h
	}
	return h % pidTableBuckets
}

func (t *pidTable) lookup(pid int, isThread bool) *Node {
	b := t.buckets[pidHash(pid, isThread)]
	for e := b.Front(); e != nil; e = e.Next() {
		if e.Value.Pid == pid && e.Value.IsThread == isThread {
			return e.Value
		}
	}
	return nil
}

func (t *pidTable) insert(n *Node) {
	b := t.buckets[pidHash(n.Pid, n.IsThread)]
	n.bucketElem = b.PushBack(n)
}

func (t *pidTable) remove(n *Node) {
	if n.bucketElem == nil {
		return
	}
	b := t.buckets[pidHash(n.Pid, n.IsThread)]
	b.Remove(n.bucketElem)
	n.bucketElem = nil
}
