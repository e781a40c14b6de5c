// Package progress reports how far a batch of listings has got.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const (
	barWidth       = 30
	redrawInterval = 100 * time.Millisecond
)

var spinners = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Indicator draws a progress line for a batch of items. A nil writer
// disables all output. Done may be called from several goroutines.
type Indicator struct {
	out     io.Writer
	message string
	total   int

	mu         sync.Mutex
	succeeded  int
	failed     int
	startTime  time.Time
	lastUpdate time.Time
	now        func() time.Time
}

// New creates an indicator for total items; total 0 shows a spinner
func New(out io.Writer, message string, total int) *Indicator {
	return &Indicator{
		out:     out,
		message: message,
		total:   total,
		now:     time.Now,
	}
}

// Start prints the header line and starts the clock
func (p *Indicator) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = p.now()
	p.lastUpdate = time.Time{}
	if p.out != nil {
		fmt.Fprintf(p.out, "%s...\n", p.message)
	}
}

// Done records one finished item; a non-nil err counts it as failed
func (p *Indicator) Done(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		p.failed++
	} else {
		p.succeeded++
	}
	p.draw()
}

// Counts returns succeeded and failed items so far
func (p *Indicator) Counts() (succeeded, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.succeeded, p.failed
}

func (p *Indicator) draw() {
	if p.out == nil {
		return
	}
	current := p.succeeded + p.failed
	now := p.now()

	// Throttled, except for the last item
	if now.Sub(p.lastUpdate) < redrawInterval && (p.total == 0 || current < p.total) {
		return
	}
	p.lastUpdate = now
	elapsed := now.Sub(p.startTime)

	if p.total <= 0 {
		fmt.Fprintf(p.out, "\r%s %s (%d processed)", p.message, spinner(elapsed), current)
		return
	}

	percentage := float64(current) / float64(p.total) * 100
	var eta string
	if current > 0 && current < p.total && elapsed > 0 {
		rate := float64(current) / elapsed.Seconds()
		remaining := time.Duration(float64(p.total-current)/rate) * time.Second
		eta = " ETA: " + formatDuration(remaining)
	}
	fmt.Fprintf(p.out, "\r%s [%s] %d/%d (%.1f%%)%s", p.message, progressBar(percentage), current, p.total, percentage, eta)
}

// Finish prints the summary line
func (p *Indicator) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.out == nil {
		return
	}
	elapsed := p.now().Sub(p.startTime)
	if p.failed > 0 {
		fmt.Fprintf(p.out, "\r%s ✗ %d ok, %d failed in %s\n", p.message, p.succeeded, p.failed, formatDuration(elapsed))
		return
	}
	fmt.Fprintf(p.out, "\r%s ✓ Completed %d items in %s\n", p.message, p.succeeded, formatDuration(elapsed))
}

func progressBar(percentage float64) string {
	filled := int(percentage / 100.0 * barWidth)

	var bar strings.Builder
	for i := 0; i < barWidth; i++ {
		switch {
		case i < filled:
			bar.WriteString("█")
		case i == filled && percentage < 100:
			bar.WriteString("▓")
		default:
			bar.WriteString("░")
		}
	}
	return bar.String()
}

func spinner(elapsed time.Duration) string {
	return spinners[int(elapsed.Milliseconds()/100)%len(spinners)]
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}
