package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/smileynet/countrylookup/internal/country"
)

// DisplayEvent is an event sent to a Display via the update channel.
// Implemented by SearchStartedMsg, SearchDoneMsg, and SearchErrorMsg.
type DisplayEvent interface {
	isDisplayEvent()
}

func (SearchStartedMsg) isDisplayEvent() {}
func (SearchDoneMsg) isDisplayEvent()    {}
func (SearchErrorMsg) isDisplayEvent()   {}

var (
	_ DisplayEvent = SearchStartedMsg{}
	_ DisplayEvent = SearchDoneMsg{}
	_ DisplayEvent = SearchErrorMsg{}
)

// ErrAborted is returned by TUIDisplay.Run when the user quits before a result arrives.
var ErrAborted = errors.New("tui: search aborted")

// Display renders the progress and result of one search.
type Display interface {
	Run(ctx context.Context, events <-chan DisplayEvent) error
}

// DisplayOptions configures display creation.
type DisplayOptions struct {
	Writer     io.Writer          // Output destination (default: os.Stdout).
	ForcePlain bool               // Force plain text even if TTY.
	Kind       string             // Search kind shown before the first event.
	Term       string             // Search term shown before the first event.
	CancelFunc context.CancelFunc // Called by TUI on abort keypress (ignored by PlainDisplay).
}

// NewDisplay returns a TUI display when the writer is a TTY, or a plain text
// display otherwise. ForcePlain overrides TTY detection.
func NewDisplay(opts DisplayOptions) Display {
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}

	if opts.ForcePlain || !isTTY(opts.Writer) {
		return &PlainDisplay{w: opts.Writer}
	}

	return &TUIDisplay{kind: opts.Kind, term: opts.Term, w: opts.Writer, cancelFunc: opts.CancelFunc}
}

// isTTY reports whether w is connected to a terminal.
func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Bridge manages the channel between a search and a Display consumer.
type Bridge struct {
	ch    chan DisplayEvent
	start time.Time
}

// NewBridge creates a Bridge with a buffered event channel.
func NewBridge() *Bridge {
	return &Bridge{ch: make(chan DisplayEvent, 4)}
}

// Events returns the read-only channel for Display.Run() to consume.
func (b *Bridge) Events() <-chan DisplayEvent {
	return b.ch
}

// Started announces the search and starts its clock.
func (b *Bridge) Started(kind, term string) {
	b.start = time.Now()
	b.ch <- SearchStartedMsg{Kind: kind, Term: term}
}

// Done delivers the result and closes the channel.
func (b *Bridge) Done(cs []country.Country) {
	var elapsed time.Duration
	if !b.start.IsZero() {
		elapsed = time.Since(b.start)
	}
	b.ch <- SearchDoneMsg{Countries: cs, Elapsed: elapsed}
	close(b.ch)
}

// Error signals that the search did not complete and closes the channel.
func (b *Bridge) Error(err error) {
	b.ch <- SearchErrorMsg{Err: err}
	close(b.ch)
}

// PlainDisplay renders the search as text lines followed by a plain table.
type PlainDisplay struct {
	w io.Writer
}

// Run loops over events until the search finishes.
// Returns the search error if it failed, or context error if cancelled.
func (d *PlainDisplay) Run(ctx context.Context, events <-chan DisplayEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch msg := ev.(type) {
			case SearchStartedMsg:
				_, _ = fmt.Fprintf(d.w, "searching %s %q...\n", msg.Kind, msg.Term)
			case SearchDoneMsg:
				_, _ = fmt.Fprintf(d.w, "found %d in %.1fs\n", len(msg.Countries), msg.Elapsed.Seconds())
				_, _ = io.WriteString(d.w, FormatTable(msg.Countries, false))
				return nil
			case SearchErrorMsg:
				return msg.Err
			}
		}
	}
}

// TUIDisplay renders the search with a Bubble Tea spinner.
// Falls back to PlainDisplay if the TUI program fails to start.
type TUIDisplay struct {
	kind       string
	term       string
	w          io.Writer
	cancelFunc context.CancelFunc
}

// Run starts the Bubble Tea program and feeds events from the channel.
// If the TUI fails to initialize, it falls back to plain text output.
func (d *TUIDisplay) Run(ctx context.Context, events <-chan DisplayEvent) error {
	var opts []ModelOption
	if d.cancelFunc != nil {
		opts = append(opts, WithCancelFunc(d.cancelFunc))
	}
	p := tea.NewProgram(NewModel(d.kind, d.term, opts...), tea.WithOutput(d.w), tea.WithContext(ctx))

	// Forward events through an intermediate channel so we can stop
	// the goroutine cleanly on TUI failure before falling back.
	fwd := make(chan DisplayEvent, 4)
	stop := make(chan struct{})

	go func() {
		defer close(fwd)
		for ev := range events {
			select {
			case fwd <- ev:
			case <-stop:
				return
			}
		}
	}()

	go func() {
		for ev := range fwd {
			p.Send(ev)
		}
	}()

	final, err := p.Run()
	if err != nil {
		close(stop)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		plain := &PlainDisplay{w: d.w}
		return plain.Run(ctx, events)
	}

	m, ok := final.(Model)
	switch {
	case !ok:
		return nil
	case m.err != nil:
		return m.err
	case m.quit:
		return ErrAborted
	}
	return nil
}
