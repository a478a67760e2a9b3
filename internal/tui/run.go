package tui

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"simsweep/internal/broadcast"
)

// Options select how Run renders.
type Options struct {
	Out      io.Writer
	File     string
	Interval time.Duration
	// Simple forces plain text even on a terminal.
	Simple bool
}

// Interactive reports whether w is a terminal.
func Interactive(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Run subscribes to b and renders until ctx is cancelled, the user quits or
// the broadcaster stops. b must be running.
func Run(ctx context.Context, b *broadcast.Broadcaster, opts Options) error {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	sub := b.Subscribe()
	defer sub.Close()
	// the first frame is the default snapshot until the file has been read
	skipFirst := b.Status().LastUpdate == nil

	if opts.Simple || !Interactive(opts.Out) {
		return NewPlain(opts.Out, opts.File, opts.Interval).Run(ctx, sub, skipFirst)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p := tea.NewProgram(newModel(opts.File), tea.WithAltScreen(), tea.WithOutput(opts.Out), tea.WithContext(ctx))
	go pump(ctx, sub, p, skipFirst)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
