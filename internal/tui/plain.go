package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"simsweep/internal/broadcast"
	"simsweep/internal/history"
)

const rule = "================================================================================"

// Plain prints a text report for every new snapshot, and a waiting line on
// every interval without one.
type Plain struct {
	out      io.Writer
	file     string
	interval time.Duration
	hist     *history.Ring[broadcast.Snapshot]
	now      func() time.Time
}

// NewPlain creates a plain text monitor of file.
func NewPlain(out io.Writer, file string, interval time.Duration) *Plain {
	if interval <= 0 {
		interval = broadcast.DefaultInterval
	}
	return &Plain{
		out:      out,
		file:     file,
		interval: interval,
		hist:     history.New[broadcast.Snapshot](HistorySize),
		now:      time.Now,
	}
}

// Run consumes sub until ctx is cancelled or the subscription closes. The
// first frame is skipped unless skipFirst is false; it carries the default
// snapshot when no file has been seen yet.
func (p *Plain) Run(ctx context.Context, sub *broadcast.Subscription, skipFirst bool) error {
	fmt.Fprintln(p.out, rule)
	fmt.Fprintln(p.out, "Simulation Performance Monitor")
	fmt.Fprintln(p.out, rule)
	fmt.Fprintf(p.out, "Monitoring: %s\n", p.file)
	fmt.Fprintf(p.out, "Update interval: %s\n", p.interval)
	fmt.Fprintln(p.out, "Press Ctrl+C to exit")
	fmt.Fprintln(p.out, rule)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	fresh := false
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(p.out, "\nMonitoring stopped.")
			return nil
		case frame, ok := <-sub.C():
			if !ok {
				return nil
			}
			if skipFirst {
				skipFirst = false
				continue
			}
			snap, ok := decodeUpdate(frame)
			if !ok {
				continue
			}
			p.hist.Append(snap)
			p.Render(snap)
			fresh = true
		case <-ticker.C:
			if !fresh {
				fmt.Fprintf(p.out, "[%s] Waiting for metrics file...\n", p.now().Format("15:04:05"))
			}
			fresh = false
		}
	}
}

// Render writes the report of snap with the throughput history seen so far.
func (p *Plain) Render(snap broadcast.Snapshot) {
	var b strings.Builder
	s := Summarize(snap)
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Last Update: %s\n", p.now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Simulation Time: %.3f seconds\n", s.SimSeconds)
	fmt.Fprintln(&b, rule)

	section(&b, "PERFORMANCE METRICS")
	fmt.Fprintf(&b, "Throughput:    %10.1f packets/sec\n", s.PacketRate)
	fmt.Fprintf(&b, "Bandwidth:     %10.2f Mbps\n", s.Bandwidth)
	fmt.Fprintf(&b, "Total Packets: %10.0f\n", s.TotalPackets)

	if s.HasCaches {
		section(&b, "CACHE STATISTICS")
		fmt.Fprintf(&b, "Hit Rate:      %10.1f%%\n", s.HitRate())
		fmt.Fprintf(&b, "Total Hits:    %10.0f\n", s.CacheHits)
		fmt.Fprintf(&b, "Total Misses:  %10.0f\n", s.CacheMisses)
		fmt.Fprintf(&b, "Total Access:  %10.0f\n", s.CacheAccesses())
	}
	if s.HasDRAM {
		section(&b, "DRAM STATISTICS")
		fmt.Fprintf(&b, "Row Hit Rate:  %10.1f%%\n", s.RowHitRate())
		fmt.Fprintf(&b, "Total Requests:%10.0f\n", s.DRAMRequests)
		fmt.Fprintf(&b, "Row Hits:      %10.0f\n", s.RowHits)
		fmt.Fprintf(&b, "Bank Conflicts:%10.0f\n", s.BankConflicts)
	}
	if len(s.Components) > 0 {
		section(&b, "COMPONENT ACTIVITY")
		for _, c := range s.Components {
			fmt.Fprintf(&b, "%-20s %10.0f\n", c.Name, c.Count)
		}
	}
	if bars := ThroughputBars(p.hist.Values(20)); len(bars) > 0 {
		section(&b, "THROUGHPUT HISTORY (last 20 points)")
		for _, l := range bars {
			fmt.Fprintln(&b, l)
		}
	}
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, rule)
	io.WriteString(p.out, b.String())
}

func section(b *strings.Builder, title string) {
	fmt.Fprintf(b, "\n%s\n%s\n", title, strings.Repeat("-", 40))
}
