package progress

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// stepClock advances by step on every reading
type stepClock struct {
	t    time.Time
	step time.Duration
}

func (c *stepClock) now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		percentage float64
		expected   string
	}{
		{0.0, "▓░░░░░░░░░░░░░░░░░░░░░░░░░░░░░"},
		{50.0, "███████████████▓░░░░░░░░░░░░░░"},
		{100.0, "██████████████████████████████"},
	}

	for _, tt := range tests {
		if result := progressBar(tt.percentage); result != tt.expected {
			t.Errorf("progress bar for %.1f%%: expected %q, got %q", tt.percentage, tt.expected, result)
		}
	}
}

func TestProgressBarLength(t *testing.T) {
	for _, percentage := range []float64{0, 0.1, 33.33, 66.67, 99.9, 100} {
		if n := len([]rune(progressBar(percentage))); n != barWidth {
			t.Errorf("progress bar at %.1f%% has %d chars, want %d", percentage, n, barWidth)
		}
	}
}

func TestSpinner(t *testing.T) {
	if spinner(0) == spinner(100*time.Millisecond) {
		t.Error("spinner should change over time")
	}
	if spinner(0) != spinner(time.Second) {
		t.Error("spinner should cycle every ten frames")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{50 * time.Millisecond, "50ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1.5m"},
		{3600 * time.Second, "1.0h"},
	}

	for _, tt := range tests {
		if result := formatDuration(tt.duration); result != tt.expected {
			t.Errorf("formatDuration(%v): expected %q, got %q", tt.duration, tt.expected, result)
		}
	}
}

func TestIndicator_Batch(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, "Importing", 3)
	clock := &stepClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), step: time.Second}
	p.now = clock.now

	p.Start()
	p.Done(nil)
	p.Done(errors.New("404"))
	p.Done(nil)
	p.Finish()

	out := buf.String()
	if !strings.HasPrefix(out, "Importing...\n") {
		t.Errorf("Missing header: %q", out)
	}
	if !strings.Contains(out, "1/3 (33.3%) ETA:") {
		t.Errorf("Missing first progress line with ETA: %q", out)
	}
	if !strings.Contains(out, "3/3 (100.0%)") {
		t.Errorf("Missing final progress line: %q", out)
	}
	if !strings.HasSuffix(out, "Importing ✗ 2 ok, 1 failed in 4.0s\n") {
		t.Errorf("Unexpected summary: %q", out)
	}

	ok, failed := p.Counts()
	if ok != 2 || failed != 1 {
		t.Errorf("Expected 2 ok and 1 failed, got %d and %d", ok, failed)
	}
}

func TestIndicator_Throttled(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, "Refreshing", 100)
	clock := &stepClock{t: time.Now(), step: time.Millisecond}
	p.now = clock.now

	p.Start()
	for i := 0; i < 10; i++ {
		p.Done(nil)
	}

	if lines := strings.Count(buf.String(), "\r"); lines != 1 {
		t.Errorf("Expected one redraw within the throttle window, got %d", lines)
	}
}

func TestIndicator_Spinner(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, "Loading", 0)
	p.Start()
	p.Done(nil)
	p.Finish()

	if !strings.Contains(buf.String(), "(1 processed)") {
		t.Errorf("Expected indeterminate progress, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "✓ Completed 1 items") {
		t.Errorf("Expected success summary, got %q", buf.String())
	}
}

func TestIndicator_Disabled(t *testing.T) {
	p := New(nil, "Quiet", 2)
	p.Start()
	p.Done(nil)
	p.Done(errors.New("x"))
	p.Finish()

	if ok, failed := p.Counts(); ok != 1 || failed != 1 {
		t.Errorf("Counts must be kept without output, got %d and %d", ok, failed)
	}
}

func TestIndicator_Concurrent(t *testing.T) {
	p := New(nil, "Parallel", 50)
	p.Start()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Done(nil)
		}()
	}
	wg.Wait()

	if ok, _ := p.Counts(); ok != 50 {
		t.Errorf("Expected 50, got %d", ok)
	}
}

func BenchmarkProgressBar(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = progressBar(float64(i % 101))
	}
}
