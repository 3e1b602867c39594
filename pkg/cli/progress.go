package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// barWidth is the number of cells in the progress bar.
const barWidth = 30

// ProgressReporter reports progress for batch console operations.
type ProgressReporter interface {
	Start(total int64)
	Update(current int64)
	Finish()
	Error(err error)
}

// SimpleProgress renders a single-line bar, rewritten in place with \r.
type SimpleProgress struct {
	mu      sync.Mutex
	label   string
	total   int64
	current int64
	failed  int64
	writer  io.Writer
}

// NewProgressReporter creates a reporter that writes to w with label in
// front of the bar. A nil w writes to os.Stderr so piped stdout stays clean.
func NewProgressReporter(w io.Writer, label string) ProgressReporter {
	if w == nil {
		w = os.Stderr
	}
	if label == "" {
		label = "Progress"
	}
	return &SimpleProgress{
		label:  label,
		writer: w,
	}
}

// Start initializes the progress reporter with the total number of items.
func (p *SimpleProgress) Start(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.current = 0
	p.failed = 0
	p.render()
}

// Update updates the current progress. Updates never move the bar backwards.
func (p *SimpleProgress) Update(current int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if current > p.total {
		current = p.total
	}
	if current > p.current {
		p.current = current
	}
	p.render()
}

// Finish marks the progress as complete.
func (p *SimpleProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = p.total
	p.render()
	if p.total > 0 {
		fmt.Fprintln(p.writer)
	}
}

// Error reports a failed item. It does not advance the bar.
func (p *SimpleProgress) Error(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failed++
	fmt.Fprintf(p.writer, "\n✗ Error: %v\n", err)
	p.render()
}

func (p *SimpleProgress) render() {
	if p.total <= 0 {
		return
	}

	percent := float64(p.current) / float64(p.total) * 100
	filled := int(float64(barWidth) * percent / 100)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	fmt.Fprintf(p.writer, "\r%s: [%s] %5.1f%% (%d/%d)", p.label, bar, percent, p.current, p.total)
	if p.failed > 0 {
		fmt.Fprintf(p.writer, " %d failed", p.failed)
	}
}
