package monitor

import (
	"fmt"

	"github.com/vmon-project/vmon/internal/sampler"
)

// procPath returns the /proc path for leaf (e.g. "stat", "io") belonging
// to n, substituting the task subdirectory for threads.
func procPath(base string, n *Node, leaf string) string {
	if n.IsThread && n.Parent != nil {
		return fmt.Sprintf("%s/%d/task/%d/%s", base, n.Parent.Pid, n.Pid, leaf)
	}
	return fmt.Sprintf("%s/%d/%s", base, n.Pid, leaf)
}

// runSampler dispatches kind k for node n, lazily allocating its store on
// first invocation and opening the /proc file descriptors it needs;
// subsequent invocations seek to offset 0 and re-read.
func (m *Monitor) runSampler(n *Node, k sampler.Kind) sampler.Result {
	switch k {
	case sampler.KindStat:
		return m.runStat(n)
	case sampler.KindStatm:
		return m.runStatm(n)
	case sampler.KindIO:
		return m.runIO(n)
	case sampler.KindCmdline:
		return m.runCmdline(n)
	case sampler.KindWchan:
		return m.runWchan(n)
	case sampler.KindChildren:
		return m.runChildren(n)
	case sampler.KindThreads:
		return m.runThreads(n)
	case sampler.KindFDs:
		return m.runFDs(n)
	}
	return sampler.Unchanged
}

func (m *Monitor) runStat(n *Node) sampler.Result {
	st, _ := n.store(sampler.KindStat).(*sampler.StatStore)
	if st == nil {
		var err error
		st, err = sampler.NewStatStore(procPath(m.procRoot, n, "stat"))
		if err != nil {
			return sampler.Unchanged // transient: exited before we could open it
		}
		n.setStore(sampler.KindStat, st)
	}
	comm, err := sampler.ReadComm(procPath(m.procRoot, n, "comm"))
	if err != nil {
		return sampler.Unchanged
	}
	res, err := st.Sample(comm)
	if err != nil {
		return sampler.Unchanged
	}
	return res
}

func (m *Monitor) runStatm(n *Node) sampler.Result {
	st, _ := n.store(sampler.KindStatm).(*sampler.StatmStore)
	if st == nil {
		var err error
		st, err = sampler.NewStatmStore(procPath(m.procRoot, n, "statm"))
		if err != nil {
			return sampler.Unchanged
		}
		n.setStore(sampler.KindStatm, st)
	}
	res, err := st.Sample()
	if err != nil {
		return sampler.Unchanged
	}
	return res
}

func (m *Monitor) runIO(n *Node) sampler.Result {
	st, _ := n.store(sampler.KindIO).(*sampler.IOStore)
	if st == nil {
		var err error
		st, err = sampler.NewIOStore(procPath(m.procRoot, n, "io"))
		if err != nil {
			return sampler.Unchanged // permission or transient failure
		}
		n.setStore(sampler.KindIO, st)
	}
	res, err := st.Sample()
	if err != nil {
		return sampler.Unchanged
	}
	return res
}

func (m *Monitor) runCmdline(n *Node) sampler.Result {
	st, _ := n.store(sampler.KindCmdline).(*sampler.CmdlineStore)
	if st == nil {
		var err error
		st, err = sampler.NewCmdlineStore(procPath(m.procRoot, n, "cmdline"))
		if err != nil {
			return sampler.Unchanged
		}
		n.setStore(sampler.KindCmdline, st)
	}
	res, err := st.Sample()
	if err != nil {
		return sampler.Unchanged
	}
	return res
}

func (m *Monitor) runWchan(n *Node) sampler.Result {
	st, _ := n.store(sampler.KindWchan).(*sampler.WchanStore)
	if st == nil {
		var err error
		st, err = sampler.NewWchanStore(procPath(m.procRoot, n, "wchan"))
		if err != nil {
			return sampler.Unchanged
		}
		n.setStore(sampler.KindWchan, st)
	}
	res, err := st.Sample()
	if err != nil {
		return sampler.Unchanged
	}
	return res
}

func (m *Monitor) runFDs(n *Node) sampler.Result {
	before := len(n.fdsSnapshot())
	if err := n.sampleFDs(fdDirFor(n, m.procRoot), m.generation); err != nil {
		return sampler.Unchanged
	}
	after := len(n.fdsSnapshot())
	if after != before {
		return sampler.Changed
	}
	return sampler.Unchanged
}

func (n *Node) fdsSnapshot() map[int]*FDRecord {
	if n.files == nil {
		return nil
	}
	return n.files.fds
}

// destroyStores runs every allocated sampler's destructor branch, closing
// held file descriptors once the node's refcount hits zero.
func (n *Node) destroyStores() {
	if st, ok := n.store(sampler.KindStat).(*sampler.StatStore); ok {
		st.Close()
	}
	if st, ok := n.store(sampler.KindStatm).(*sampler.StatmStore); ok {
		st.Close()
	}
	if st, ok := n.store(sampler.KindIO).(*sampler.IOStore); ok {
		st.Close()
	}
	if st, ok := n.store(sampler.KindCmdline).(*sampler.CmdlineStore); ok {
		st.Close()
	}
	if st, ok := n.store(sampler.KindWchan).(*sampler.WchanStore); ok {
		st.Close()
	}
}
