// Command vmon samples a process tree and renders it as a scrolling chart,
// either to an interactive terminal or, headless, to a PNG snapshot.
package main

import (
	"bytes"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/vmon-project/vmon/internal/backend"
	"github.com/vmon-project/vmon/internal/backend/mem"
	"github.com/vmon-project/vmon/internal/backend/tui"
	"github.com/vmon-project/vmon/internal/chart"
	"github.com/vmon-project/vmon/internal/config"
	"github.com/vmon-project/vmon/internal/driver"
	"github.com/vmon-project/vmon/internal/logging"
	"github.com/vmon-project/vmon/internal/monitor"
	"github.com/vmon-project/vmon/internal/sampler"
)

// Version is set at build time via ldflags.
var Version = "0.1.0"

func printUsage() {
	fmt.Fprintf(os.Stderr, `vmon v%s — per-process CPU chart over /proc

Usage:
  vmon [OPTIONS] --pid PID

Options:
  --pid PID           Root process to chart (required)
  --interval DUR      Sampling interval, e.g. 1s, 100ms (default from config)
  --rate HZ           Equivalent to --interval 1/HZ; overrides --interval
  --width N           Chart width in columns (default from config)
  --height N          Chart height in rows (default from config)
  --backend NAME      tui (interactive terminal) or mem (headless PNG) (default from config)
  --png-out PATH      Output path when --backend=mem
  --duration DUR      How long to run in mem-backend mode before writing the
                       PNG and exiting (0 = run until SIGINT/SIGTERM)
  --defer-maintenance Collapse per-tick chart maintenance until render time
  --version           Print version and exit

Interactive keys (tui backend):
  q / ctrl+c          Quit
  +/-                 Step the sample rate up/down the preset table
  p                   Pause/resume sampling

Examples:
  vmon --pid 1234
  vmon --pid 1234 --rate 30 --width 120 --height 40
  vmon --pid 1234 --backend mem --png-out /tmp/vmon.png --duration 10s
`, Version)
}

type cliFlags struct {
	pid         int
	interval    time.Duration
	rateHz      float64
	width       int
	height      int
	backendName string
	pngOut      string
	duration    time.Duration
	deferMaint  bool
	exitProbe   bool
	showVersion bool
}

func parseFlags(defaults config.Config) cliFlags {
	var f cliFlags
	flag.IntVar(&f.pid, "pid", 0, "root process to chart")
	flag.DurationVar(&f.interval, "interval", time.Duration(defaults.IntervalMs)*time.Millisecond, "sampling interval")
	flag.Float64Var(&f.rateHz, "rate", 0, "sampling rate in Hz, overrides -interval")
	flag.IntVar(&f.width, "width", defaults.Width, "chart width in columns")
	flag.IntVar(&f.height, "height", defaults.Height, "chart height in rows")
	flag.StringVar(&f.backendName, "backend", string(defaults.Backend), "tui or mem")
	flag.StringVar(&f.pngOut, "png-out", defaults.PNGOutPath, "PNG output path for the mem backend")
	flag.DurationVar(&f.duration, "duration", 0, "mem-backend run duration (0 = until signaled)")
	flag.BoolVar(&f.deferMaint, "defer-maintenance", defaults.DeferDraw, "collapse chart maintenance until render time")
	flag.BoolVar(&f.exitProbe, "exit-probe", false, "attach a best-effort eBPF process-exit notifier (needs root and kernel BTF)")
	flag.BoolVar(&f.showVersion, "version", false, "print version and exit")
	flag.Usage = printUsage
	flag.Parse()
	return f
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "vmon: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	defaults := config.Load()
	f := parseFlags(defaults)

	if f.showVersion {
		fmt.Printf("vmon v%s\n", Version)
		return nil
	}
	if f.pid <= 0 {
		printUsage()
		return fmt.Errorf("--pid is required")
	}

	interval := f.interval
	if f.rateHz > 0 {
		interval = time.Duration(float64(time.Second) / f.rateHz)
	}

	log := logging.Component("cmd")

	m := monitor.Init(monitor.ProcArray, sampler.DefaultSysWants)
	if f.exitProbe {
		if err := m.EnableExitProbe(); err != nil {
			log.Warn().Err(err).Msg("exit probe disabled")
		}
	}
	var flags driver.Flags
	if f.deferMaint {
		flags |= driver.DeferMaintenance
	}
	drv := driver.New(m, flags)
	drv.RateSet(1 / interval.Seconds())

	var target backend.Target
	switch f.backendName {
	case "tui":
		target = tui.New(f.width, f.height)
	case "mem":
		target = mem.New(f.width, f.height)
	default:
		return fmt.Errorf("unknown backend %q (want tui or mem)", f.backendName)
	}

	c := drv.CreateChart(f.pid, target, f.width, f.height, numCPU(), fmt.Sprintf("pid %d", f.pid))
	defer drv.Destroy()

	if f.backendName == "tui" {
		return runTUI(drv, c)
	}
	return runHeadless(drv, c, f.duration, f.pngOut, log)
}

// numCPU counts the per-core "cpuN" lines in /proc/stat, falling back to 1
// when it can't be read (e.g. inside a restrictive container).
func numCPU() int {
	stat, err := os.ReadFile("/proc/stat")
	if err != nil {
		return 1
	}
	n := 0
	for _, line := range splitLines(stat) {
		if len(line) > 3 && line[:3] == "cpu" && line[3] >= '0' && line[3] <= '9' {
			n++
		}
	}
	if n == 0 {
		return 1
	}
	return n
}

func splitLines(b []byte) []string {
	var lines []string
	start := 0
	for i, c := range b {
		if c == '\n' {
			lines = append(lines, string(b[start:i]))
			start = i + 1
		}
	}
	return lines
}

// runHeadless drives the mem backend on the driver's own adaptive delay
// until duration elapses (if nonzero) or SIGINT/SIGTERM arrives, then
// writes one PNG.
func runHeadless(drv *driver.Driver, c *chart.Chart, duration time.Duration, pngOut string, log zerolog.Logger) error {
	if pngOut == "" {
		return fmt.Errorf("--png-out is required with --backend mem")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	var deadline time.Time
	if duration > 0 {
		deadline = time.Now().Add(duration)
	}

runLoop:
	for {
		_, delayUs := drv.Update()
		if !deadline.IsZero() && time.Now().After(deadline) {
			break
		}
		if delayUs < 0 {
			break
		}
		select {
		case <-sig:
			log.Info().Msg("signaled, writing snapshot")
			break runLoop
		case <-time.After(time.Duration(delayUs) * time.Microsecond):
		}
	}
	drv.ComposeAll()

	out, err := os.Create(pngOut)
	if err != nil {
		return fmt.Errorf("create %s: %w", pngOut, err)
	}
	defer out.Close()
	return c.Render(backend.Source, out, 0, 0, c.Width, c.Height)
}

type tickMsg time.Time

// ttModel is the bubbletea wrapper around a Driver/Chart pair: every tick
// it asks the driver to advance, then renders the chart's composed output
// into the terminal.
type ttModel struct {
	drv   *driver.Driver
	chart *chart.Chart
}

func runTUI(drv *driver.Driver, c *chart.Chart) error {
	m := ttModel{drv: drv, chart: c}
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func tickAfter(d time.Duration) tea.Cmd {
	if d < 0 {
		return nil
	}
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m ttModel) Init() tea.Cmd {
	return tickAfter(m.drv.Interval())
}

func (m ttModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "+":
			m.drv.RateIncrease()
		case "-":
			m.drv.RateDecrease()
		case "p":
			if m.drv.State() == driver.Pausing {
				m.drv.RateSet(1 / m.drv.Interval().Seconds())
				// The tick chain ended while paused (Update returned -1);
				// start it again.
				return m, tickAfter(m.drv.Interval())
			}
			m.drv.RateSet(0)
		}
		return m, nil
	case tickMsg:
		_, delayUs := m.drv.Update()
		return m, tickAfter(time.Duration(delayUs) * time.Microsecond)
	}
	return m, nil
}

func (m ttModel) View() string {
	var buf bytes.Buffer
	if err := m.chart.Render(backend.Source, &buf, 0, 0, m.chart.Width, m.chart.Height); err != nil {
		return fmt.Sprintf("render error: %v", err)
	}
	return buf.String()
}
