//go:build linux

package sampler

import (
	"fmt"
	"os"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/asm"
	"github.com/cilium/ebpf/link"
)

// ExitProbe is a best-effort accelerant: it counts sched_process_exit
// tracepoint hits in a single-entry map so a caller can detect "at least
// one process exited since I last checked" without waiting out a full
// poll interval. It never identifies which pid exited — the authoritative
// answer to that is still the next /proc poll; this only shortens how
// long the driver waits before taking one.
type ExitProbe struct {
	counters *ebpf.Map
	prog     *ebpf.Program
	tp       link.Link
	lastSeen uint64
}

// ProbeExitUnavailableError explains why NewExitProbe declined to attach,
// e.g. missing BTF or insufficient privilege. Callers should treat it as
// advisory and fall back to plain polling.
type ProbeExitUnavailableError struct {
	Reason string
}

func (e *ProbeExitUnavailableError) Error() string {
	return fmt.Sprintf("exit probe unavailable: %s", e.Reason)
}

// exitProbeAvailable mirrors the capability check the pack's eBPF
// collectors run before attempting to load anything: a tracepoint probe
// needs kernel BTF for type info and root (or CAP_BPF) to load programs.
func exitProbeAvailable() (bool, string) {
	if _, err := os.Stat("/sys/kernel/btf/vmlinux"); err != nil {
		return false, "kernel BTF not available (/sys/kernel/btf/vmlinux missing)"
	}
	if os.Geteuid() != 0 {
		return false, "root privileges required to load the exit-notify program"
	}
	return true, ""
}

// NewExitProbe attaches a minimal eBPF program to sched_process_exit that
// increments a single counter. It is hand-assembled rather than generated
// by bpf2go: the program does nothing but bump counters[0], so there is no
// struct/map layout worth generating bindings for.
func NewExitProbe() (*ExitProbe, error) {
	if ok, reason := exitProbeAvailable(); !ok {
		return nil, &ProbeExitUnavailableError{Reason: reason}
	}

	counters, err := ebpf.NewMap(&ebpf.MapSpec{
		Name:       "vmon_exit_count",
		Type:       ebpf.Array,
		KeySize:    4,
		ValueSize:  8,
		MaxEntries: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("create exit-count map: %w", err)
	}

	prog, err := ebpf.NewProgram(&ebpf.ProgramSpec{
		Name:    "vmon_exit_notify",
		Type:    ebpf.TracePoint,
		License: "GPL",
		Instructions: asm.Instructions{
			// key = 0 on the stack, r2 = &key
			asm.Mov.Imm(asm.R0, 0),
			asm.StoreMem(asm.RFP, -4, asm.R0, asm.Word),
			asm.Mov.Reg(asm.R2, asm.RFP),
			asm.Add.Imm(asm.R2, -4),
			// r1 = &counters
			asm.LoadMapPtr(asm.R1, counters.FD()),
			asm.FnMapLookupElem.Call(),
			asm.JEq.Imm(asm.R0, 0, "skip"),
			asm.LoadMem(asm.R1, asm.R0, 0, asm.DWord),
			asm.Add.Imm(asm.R1, 1),
			asm.StoreMem(asm.R0, 0, asm.R1, asm.DWord),
			asm.Mov.Imm(asm.R0, 0).WithSymbol("skip"),
			asm.Return(),
		},
	})
	if err != nil {
		counters.Close()
		return nil, fmt.Errorf("load exit-notify program: %w", err)
	}

	tp, err := link.Tracepoint("sched", "sched_process_exit", prog, nil)
	if err != nil {
		prog.Close()
		counters.Close()
		return nil, fmt.Errorf("attach sched_process_exit: %w", err)
	}

	return &ExitProbe{counters: counters, prog: prog, tp: tp}, nil
}

// Pending reports whether at least one process has exited since the last
// call to Pending, without saying which one.
func (p *ExitProbe) Pending() bool {
	var count uint64
	if err := p.counters.Lookup(uint32(0), &count); err != nil {
		return false
	}
	pending := count != p.lastSeen
	p.lastSeen = count
	return pending
}

// Close detaches the tracepoint and releases the program and map.
func (p *ExitProbe) Close() error {
	err := p.tp.Close()
	p.prog.Close()
	p.counters.Close()
	return err
}
