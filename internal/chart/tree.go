package chart

import (
	"strings"

	"github.com/vmon-project/vmon/internal/ilist"
	"github.com/vmon-project/vmon/internal/monitor"
)

const (
	glyphBar    = "│ "
	glyphBlank  = "  "
	glyphTee    = "├─"
	glyphCorner = "└─"
)

// hasLaterNonStaleSibling reports whether n has a following sibling (in
// its parent's children or threads list, whichever n is linked into) that
// is not stale.
func hasLaterNonStaleSibling(n *monitor.Node) bool {
	list, elem := siblingList(n)
	if list == nil || elem == nil {
		return false
	}
	for e := elem.Next(); e != nil; e = e.Next() {
		if !e.Value.IsStale {
			return true
		}
	}
	return false
}

// isLastNonStaleSibling reports whether n is the final non-stale entry of
// its sibling list.
func isLastNonStaleSibling(n *monitor.Node) bool {
	return !hasLaterNonStaleSibling(n)
}

// siblingList returns the list n is linked into (its parent's Children or
// Threads list) and n's own element within it, or (nil, nil) for a root.
func siblingList(n *monitor.Node) (*ilist.List[*monitor.Node], *ilist.Elem[*monitor.Node]) {
	if n.Parent == nil {
		return nil, nil
	}
	var list *ilist.List[*monitor.Node]
	if n.IsThread {
		list = n.Parent.Threads
	} else {
		list = n.Parent.Children
	}
	for e := list.Front(); e != nil; e = e.Next() {
		if e.Value == n {
			return list, e
		}
	}
	return list, nil
}

// treeGlyph builds the tree column's prefix string for n: one two-column
// cell per ancestor (a vertical bar if that ancestor still has a non-stale
// later sibling of its own, blank otherwise), followed by this node's own
// connector for non-root nodes — a corner if it is the last non-stale
// entry in its sibling list, a tee otherwise. Whether its siblings have
// children or threads of their own is not considered.
func treeGlyph(n *monitor.Node) string {
	var ancestors []*monitor.Node
	for p := n.Parent; p != nil; p = p.Parent {
		ancestors = append(ancestors, p)
	}
	var b strings.Builder
	for i := len(ancestors) - 1; i >= 0; i-- {
		if hasLaterNonStaleSibling(ancestors[i]) {
			b.WriteString(glyphBar)
		} else {
			b.WriteString(glyphBlank)
		}
	}
	if n.Parent == nil {
		return b.String()
	}
	if isLastNonStaleSibling(n) {
		b.WriteString(glyphCorner)
	} else {
		b.WriteString(glyphTee)
	}
	return b.String()
}

// siblingHasLiveDescendants reports whether any of n's siblings currently
// has a non-empty children or threads list; stale entries in those lists
// count too. treeGlyph does not call it.
func siblingHasLiveDescendants(n *monitor.Node) bool {
	list, _ := siblingList(n)
	if list == nil {
		return false
	}
	for e := list.Front(); e != nil; e = e.Next() {
		s := e.Value
		if s == n {
			continue
		}
		if s.Children.Len() > 0 || s.Threads.Len() > 0 {
			return true
		}
	}
	return false
}
