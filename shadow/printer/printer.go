// Package printer dumps shadow state for debugging.
package printer

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/joshuapare/shadowkit/shadow"
	"github.com/joshuapare/shadowkit/shadow/oracle"
)

// Format specifies the output format for printing.
type Format string

const (
	// FormatText outputs one line per span.
	FormatText Format = "text"

	// FormatJSON outputs a single JSON document.
	FormatJSON Format = "json"
)

// Options controls printing behavior.
type Options struct {
	// Format specifies output format (text, json).
	// Default: FormatText
	Format Format

	// Color styles span states in text output.
	// Default: false
	Color bool

	// ShowUnallocated includes unallocated spans. The stack frame and live
	// allocations are always shown.
	// Default: false
	ShowUnallocated bool
}

// DefaultOptions returns sensible defaults for printing.
func DefaultOptions() Options {
	return Options{Format: FormatText}
}

// Printer writes shadow state to an io.Writer.
type Printer struct {
	w      io.Writer
	opts   Options
	styles map[shadow.State]lipgloss.Style
}

// New creates a printer.
func New(w io.Writer, opts Options) *Printer {
	if opts.Format == "" {
		opts.Format = FormatText
	}
	return &Printer{
		w:    w,
		opts: opts,
		styles: map[shadow.State]lipgloss.Style{
			shadow.Unallocated:      lipgloss.NewStyle().Faint(true),
			shadow.ValidToWrite:     lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
			shadow.ValidToReadWrite: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		},
	}
}

type spanJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Len   uint64 `json:"len"`
	State string `json:"state"`
}

type trackerJSON struct {
	MemSize      uint64     `json:"mem_size"`
	MaxStackSize uint64     `json:"max_stack_size"`
	StackPointer uint64     `json:"stack_pointer"`
	Spans        []spanJSON `json:"spans"`

	Allocations []allocationJSON `json:"allocations,omitempty"`
}

type allocationJSON struct {
	Addr string `json:"addr"`
	Len  uint64 `json:"len"`
}

// PrintTracker prints the layout, the stack pointer and the shadow spans.
func (p *Printer) PrintTracker(t *shadow.Tracker) error {
	if p.opts.Format == FormatJSON {
		return p.encode(p.trackerDoc(t))
	}
	return p.trackerText(t)
}

// PrintState prints the tracker followed by the live allocations. JSON
// output is a single document.
func (p *Printer) PrintState(t *shadow.Tracker, allocs []oracle.Allocation) error {
	if p.opts.Format == FormatJSON {
		doc := p.trackerDoc(t)
		doc.Allocations = allocationDocs(allocs)
		return p.encode(doc)
	}
	if err := p.trackerText(t); err != nil {
		return err
	}
	return p.allocationsText(allocs)
}

func (p *Printer) trackerDoc(t *shadow.Tracker) trackerJSON {
	l := t.Layout()
	spans := p.visible(t.Spans())
	doc := trackerJSON{
		MemSize:      l.MemSize,
		MaxStackSize: l.MaxStackSize,
		StackPointer: t.StackPointer(),
		Spans:        make([]spanJSON, 0, len(spans)),
	}
	for _, sp := range spans {
		doc.Spans = append(doc.Spans, spanJSON{
			Start: fmt.Sprintf("0x%X", sp.Addr),
			End:   fmt.Sprintf("0x%X", sp.End()-1),
			Len:   sp.Len,
			State: sp.State.String(),
		})
	}
	return doc
}

func (p *Printer) trackerText(t *shadow.Tracker) error {
	l := t.Layout()
	if _, err := fmt.Fprintf(p.w, "mem_size=0x%X max_stack_size=0x%X stack_pointer=0x%X\n",
		l.MemSize, l.MaxStackSize, t.StackPointer()); err != nil {
		return err
	}
	for _, sp := range p.visible(t.Spans()) {
		region := "heap"
		if sp.Addr < l.MaxStackSize {
			region = "stack"
		}
		if _, err := fmt.Fprintf(p.w, "  0x%08X-0x%08X  %-5s  %s  %d\n",
			sp.Addr, sp.End()-1, region, p.state(sp.State), sp.Len); err != nil {
			return err
		}
	}
	return nil
}

func allocationDocs(allocs []oracle.Allocation) []allocationJSON {
	out := make([]allocationJSON, 0, len(allocs))
	for _, a := range allocs {
		out = append(out, allocationJSON{Addr: fmt.Sprintf("0x%X", a.Addr), Len: a.Len})
	}
	return out
}

// PrintAllocations prints the oracle's live allocations.
func (p *Printer) PrintAllocations(allocs []oracle.Allocation) error {
	if p.opts.Format == FormatJSON {
		return p.encode(allocationDocs(allocs))
	}
	return p.allocationsText(allocs)
}

func (p *Printer) allocationsText(allocs []oracle.Allocation) error {
	if _, err := fmt.Fprintf(p.w, "allocations: %d\n", len(allocs)); err != nil {
		return err
	}
	for _, a := range allocs {
		if _, err := fmt.Fprintf(p.w, "  0x%08X  %d\n", a.Addr, a.Len); err != nil {
			return err
		}
	}
	return nil
}

func (p *Printer) visible(spans []shadow.Span) []shadow.Span {
	if p.opts.ShowUnallocated {
		return spans
	}
	out := spans[:0:0]
	for _, sp := range spans {
		if sp.State != shadow.Unallocated {
			out = append(out, sp)
		}
	}
	return out
}

func (p *Printer) state(s shadow.State) string {
	name := fmt.Sprintf("%-19s", s)
	if !p.opts.Color {
		return name
	}
	return p.styles[s].Render(name)
}

func (p *Printer) encode(v interface{}) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
