package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmon-project/vmon/internal/sampler"
)

func newTestMonitor() *Monitor {
	m := Init(0, 0)
	m.SetProcRoot("/nonexistent-proc-root-for-tests")
	return m
}

func TestMonitorProcRefcountAndDuplicateCalls(t *testing.T) {
	m := newTestMonitor()
	n1 := m.MonitorProc(nil, 100, sampler.DefaultProcessWants, nil, nil)
	require.NotNil(t, n1)
	assert.Equal(t, 1, n1.Refcount())

	n2 := m.MonitorProc(nil, 100, sampler.DefaultProcessWants, nil, nil)
	assert.Same(t, n1, n2, "duplicate monitor_proc on the same pid returns the existing node")
	assert.Equal(t, 2, n1.Refcount())
}

func TestMonitorProcInstallsDistinctCallbackTuplesOnly(t *testing.T) {
	m := newTestMonitor()
	calls := 0
	cb := func(m *Monitor, n *Node, arg any) { calls++ }

	n := m.MonitorProc(nil, 200, sampler.DefaultProcessWants, cb, "a")
	m.MonitorProc(nil, 200, sampler.DefaultProcessWants, cb, "a") // identical tuple, not re-installed
	m.MonitorProc(nil, 200, sampler.DefaultProcessWants, cb, "b") // distinct arg, installed

	require.Len(t, n.callbacks, 2)
}

func TestGenerationIsMonotonicAcrossSamples(t *testing.T) {
	m := newTestMonitor()
	require.EqualValues(t, 0, m.Generation())
	m.Sample()
	g1 := m.Generation()
	m.Sample()
	g2 := m.Generation()
	assert.Greater(t, g2, g1)
}

func TestAdoptChildSetsParentAndOwnershipRef(t *testing.T) {
	m := newTestMonitor()
	parent := m.MonitorProc(nil, 1, sampler.DefaultProcessWants, nil, nil)
	child := m.adoptChild(parent, 2)

	assert.Same(t, parent, child.Parent)
	assert.Equal(t, 1, parent.Children.Len())
	// one ref from list membership, one from monitor_proc's own call
	assert.Equal(t, 2, child.Refcount())
}

func TestMarkStaleRecursivePropagatesToDescendants(t *testing.T) {
	m := newTestMonitor()
	root := m.MonitorProc(nil, 1, sampler.DefaultProcessWants, nil, nil)
	child := m.adoptChild(root, 2)
	grandchild := m.adoptChild(child, 3)

	child.markStaleRecursive()

	assert.True(t, child.IsStale)
	assert.True(t, grandchild.IsStale)
	assert.False(t, root.IsStale)

	// idempotent: a second call on an already-stale node is a no-op, not
	// a re-traversal that could double-toggle anything.
	child.markStaleRecursive()
	assert.True(t, grandchild.IsStale)
}

func TestUnmonitorProcOrphansSurvivingChildren(t *testing.T) {
	m := newTestMonitor()
	parent := m.MonitorProc(nil, 1, sampler.DefaultProcessWants, nil, nil)
	child := m.adoptChild(parent, 2)

	// an external caller holds its own reference to child, independent of
	// the parent's ownership-via-list ref and the discovery call's own ref.
	m.MonitorProc(nil, 2, sampler.DefaultProcessWants, nil, nil)
	require.Equal(t, 3, child.Refcount())

	m.UnmonitorProc(parent, nil, nil)

	assert.Nil(t, m.table.lookup(1, false), "parent is gone from the pid table")
	assert.Equal(t, 2, child.Refcount(), "losing only the parent-list ref leaves the rest intact")
	assert.Nil(t, child.Parent, "orphaned child has no parent")
	require.Len(t, m.orphans, 1)
	assert.Same(t, child, m.orphans[0])

	m.spliceOrphans()
	assert.NotNil(t, child.rootElem)
	assert.Equal(t, 1, m.roots.Len())
	assert.Empty(t, m.orphans)
}

func TestUnmonitorProcDestroysChildWithNoSurvivingRefs(t *testing.T) {
	m := newTestMonitor()
	parent := m.MonitorProc(nil, 1, sampler.DefaultProcessWants, nil, nil)
	child := m.adoptChild(parent, 2)
	require.Equal(t, 2, child.Refcount())

	// drop the discovery call's own ref first, leaving only the
	// ownership-via-list ref; the parent's death then takes it to zero.
	m.UnmonitorProc(child, nil, nil)
	require.Equal(t, 1, child.Refcount())

	m.UnmonitorProc(parent, nil, nil)

	assert.Nil(t, m.table.lookup(2, false), "child with no surviving ref is destroyed, not orphaned")
	assert.Empty(t, m.orphans)
}

func TestUnmonitorProcOrphansGrandchildWhenOnlyChildIsDestroyed(t *testing.T) {
	m := newTestMonitor()
	parent := m.MonitorProc(nil, 1, sampler.DefaultProcessWants, nil, nil)
	child := m.adoptChild(parent, 2)
	grandchild := m.adoptChild(child, 3)

	m.UnmonitorProc(child, nil, nil) // leaves child at refcount 1 (ownership only)

	m.UnmonitorProc(parent, nil, nil)

	assert.Nil(t, m.table.lookup(1, false))
	assert.Nil(t, m.table.lookup(2, false), "child's refcount hit zero alongside parent and was destroyed")
	assert.NotNil(t, m.table.lookup(3, false), "grandchild survives, orphaned rather than destroyed with child")
	assert.Nil(t, grandchild.Parent)
	assert.Equal(t, 1, grandchild.Refcount())
	require.Len(t, m.orphans, 1)
	assert.Same(t, grandchild, m.orphans[0])
}

func TestFindChildFromCursorWrapsAndFinds(t *testing.T) {
	m := newTestMonitor()
	parent := m.MonitorProc(nil, 1, sampler.DefaultProcessWants, nil, nil)
	m.adoptChild(parent, 10)
	m.adoptChild(parent, 20)
	c3 := m.adoptChild(parent, 30)

	found := m.findChildFrom(parent, 30)
	assert.Same(t, c3, found)
	assert.Nil(t, m.findChildFrom(parent, 99))
}

func TestApplySplicesMovesDeferredChild(t *testing.T) {
	m := newTestMonitor()
	parent := m.MonitorProc(nil, 1, sampler.DefaultProcessWants, nil, nil)
	orphanLike := m.MonitorProc(nil, 2, sampler.DefaultProcessWants, nil, nil)

	// simulate monitor_proc discovering a parent for an already-root-listed
	// node mid-sample: the migration is deferred, not applied immediately.
	m.monitorProc(parent, 2, false, sampler.DefaultProcessWants, nil, nil)
	require.NotNil(t, orphanLike.rootElem, "still root-listed until applySplices runs")
	require.Len(t, m.splices, 1)

	m.applySplices()

	assert.Nil(t, orphanLike.rootElem)
	assert.Same(t, parent, orphanLike.Parent)
	assert.Equal(t, 1, parent.Children.Len())
	assert.Empty(t, m.splices)
}

func TestExitPulsePendingFalseWithoutProbe(t *testing.T) {
	m := newTestMonitor()
	assert.False(t, m.ExitPulsePending(), "no exit probe attached, never pending")
	m.Sample()
	assert.False(t, m.ExitPulsePending())
}
