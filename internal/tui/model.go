package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"simsweep/internal/broadcast"
	"simsweep/internal/history"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

type snapshotMsg struct{ broadcast.Snapshot }

// closedMsg reports that the broadcaster went away.
type closedMsg struct{}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	goodStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	badStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

const (
	helpText   = "q quit • w wrap • ↑/↓ scroll components • ? help"
	graphLines = 10
)

type model struct {
	file    string
	hist    *history.Ring[broadcast.Snapshot]
	latest  broadcast.Snapshot
	have    bool
	updated time.Time
	closed  bool

	vp     viewport.Model
	width  int
	height int
	wrap   bool
	help   bool
	now    func() time.Time
}

func newModel(file string) model {
	return model{
		file: file,
		hist: history.New[broadcast.Snapshot](HistorySize),
		vp:   viewport.New(0, 0),
		now:  time.Now,
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.vp.Width = msg.Width
		m.layout()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "Q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
		case "?", "h":
			m.help = !m.help
		default:
			var cmd tea.Cmd
			m.vp, cmd = m.vp.Update(msg)
			return m, cmd
		}
	case snapshotMsg:
		m.hist.Append(msg.Snapshot)
		m.latest = msg.Snapshot
		m.have = true
		m.updated = m.now()
		m.layout()
	case closedMsg:
		m.closed = true
	}
	return m, nil
}

// layout fills the component viewport with whatever height the fixed
// sections leave.
func (m *model) layout() {
	var b strings.Builder
	for _, c := range Summarize(m.latest).Components {
		fmt.Fprintf(&b, "%-20s %10.0f\n", c.Name, c.Count)
	}
	m.vp.SetContent(strings.TrimRight(b.String(), "\n"))
	h := m.height - strings.Count(m.top(), "\n") - strings.Count(m.bottom(), "\n") - 3
	if h < 1 {
		h = 1
	}
	m.vp.Height = h
}

func (m model) top() string {
	var b strings.Builder
	width := m.width
	if width <= 0 {
		width = len(rule)
	}
	b.WriteString(titleStyle.Render("Simulation Performance Monitor") + "\n")
	b.WriteString(titleStyle.Render(strings.Repeat("=", width)) + "\n")
	if !m.have {
		b.WriteString(infoStyle.Render("Waiting for "+m.file+"...") + "\n")
		return b.String()
	}
	s := Summarize(m.latest)
	b.WriteString(infoStyle.Render(fmt.Sprintf("Last Update: %s   Simulation Time: %.3fs",
		m.updated.Format("2006-01-02 15:04:05"), s.SimSeconds)) + "\n\n")

	b.WriteString(sectionStyle.Render("PERFORMANCE") + "\n")
	fmt.Fprintf(&b, "Throughput:    %8.1f pps\n", s.PacketRate)
	fmt.Fprintf(&b, "Bandwidth:     %8.2f Mbps\n", s.Bandwidth)
	fmt.Fprintf(&b, "Total Packets: %8.0f\n", s.TotalPackets)

	if s.HasCaches {
		b.WriteString("\n" + sectionStyle.Render("CACHE") + "\n")
		rate := fmt.Sprintf("Hit Rate:      %8.1f%%", s.HitRate())
		switch {
		case s.HitRate() > 80:
			rate = goodStyle.Render(rate)
		case s.HitRate() < 50:
			rate = badStyle.Render(rate)
		}
		b.WriteString(rate + "\n")
		fmt.Fprintf(&b, "Total Access:  %8.0f\n", s.CacheAccesses())
	}
	if s.HasDRAM {
		b.WriteString("\n" + sectionStyle.Render("DRAM") + "\n")
		fmt.Fprintf(&b, "Row Hit Rate:  %8.1f%%\n", s.RowHitRate())
		fmt.Fprintf(&b, "Bank Conflicts:%8.0f\n", s.BankConflicts)
	}
	if bars := ThroughputBars(m.hist.Values(graphLines)); len(bars) > 0 {
		b.WriteString("\n" + sectionStyle.Render("THROUGHPUT GRAPH") + "\n")
		b.WriteString(strings.Join(bars, "\n") + "\n")
	}
	if len(s.Components) > 0 {
		b.WriteString("\n" + sectionStyle.Render("COMPONENTS") + "\n")
	}
	return b.String()
}

func (m model) bottom() string {
	footer := "Press 'q' to quit | Ctrl+C to exit"
	if m.closed {
		footer = "Monitor stopped. " + footer
	}
	if m.help {
		footer = helpText + "\n" + footer
	}
	if m.wrap && m.width > 0 {
		footer = wordwrap.String(footer, m.width)
	}
	return infoStyle.Render(footer)
}

func (m model) View() string {
	view := m.top()
	if m.have && len(m.latest.Metrics.Components) > 0 {
		view += m.vp.View() + "\n"
	}
	return view + "\n" + m.bottom()
}

// pump forwards snapshots from sub to p until ctx ends or sub closes.
func pump(ctx context.Context, sub *broadcast.Subscription, p teaProgram, skipFirst bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-sub.C():
			if !ok {
				p.Send(closedMsg{})
				return
			}
			if skipFirst {
				skipFirst = false
				continue
			}
			if snap, ok := decodeUpdate(frame); ok {
				p.Send(snapshotMsg{snap})
			}
		}
	}
}
