package worker

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestProgress_Update(t *testing.T) {
	p := NewProgress(10, "tiles", false)
	p.Update(5, 10, 0)

	if p.completed != 5 {
		t.Errorf("Expected completed=5, got %d", p.completed)
	}
	if p.total != 10 {
		t.Errorf("Expected total=10, got %d", p.total)
	}
}

func TestProgress_Print(t *testing.T) {
	var buf bytes.Buffer
	clk := clock.NewMock()
	p := newProgress(clk, &buf, 10, "frames", true)
	clk.Add(10 * time.Second)

	p.Update(5, 10, 1)
	output := buf.String()

	for _, want := range []string{"█", "5/10 frames", "(1 failed)", "0.5 frames/sec", "ETA: 10s"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %q in output, got: %s", want, output)
		}
	}
}

func TestProgress_Done(t *testing.T) {
	var buf bytes.Buffer
	clk := clock.NewMock()
	p := newProgress(clk, &buf, 3, "tiles", true)
	clk.Add(3 * time.Second)

	p.Update(3, 3, 0)
	buf.Reset()
	p.Done()

	output := buf.String()
	if !strings.Contains(output, "Done in 3s") {
		t.Errorf("Expected 'Done in 3s' in output, got: %s", output)
	}
	if !strings.HasSuffix(output, "\n") {
		t.Error("Expected output to end with newline")
	}
}

func TestProgress_Summary(t *testing.T) {
	clk := clock.NewMock()
	p := newProgress(clk, io.Discard, 10, "tiles", false)
	clk.Add(10 * time.Second)

	p.Update(10, 10, 2)
	summary := p.Summary()

	if !strings.Contains(summary, "8/10 tiles") {
		t.Errorf("Expected '8/10 tiles' (successful) in summary, got: %s", summary)
	}
	if !strings.Contains(summary, "2 failed") {
		t.Errorf("Expected '2 failed' in summary, got: %s", summary)
	}
	if !strings.Contains(summary, "1.0 tiles/sec") {
		t.Errorf("Expected rate in summary, got: %s", summary)
	}
}

func TestProgress_Disabled(t *testing.T) {
	var buf bytes.Buffer
	p := newProgress(clock.NewMock(), &buf, 10, "tiles", false)

	p.Update(5, 10, 0)
	p.Done()

	if buf.Len() != 0 {
		t.Errorf("Expected no output when disabled, got: %s", buf.String())
	}
}

func TestProgress_Callback(t *testing.T) {
	p := NewProgress(10, "", false)
	p.Callback()(5, 10, 1)

	if p.completed != 5 || p.failed != 1 {
		t.Errorf("Expected completed=5 failed=1, got %d/%d", p.completed, p.failed)
	}
	if p.unit != "items" {
		t.Errorf("default unit = %q, want items", p.unit)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		expected string
		duration time.Duration
	}{
		{duration: 30 * time.Second, expected: "30s"},
		{duration: 90 * time.Second, expected: "1m30s"},
		{duration: 5 * time.Minute, expected: "5m0s"},
		{duration: 65 * time.Minute, expected: "1h5m"},
		{duration: 2*time.Hour + 30*time.Minute, expected: "2h30m"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if result := formatDuration(tt.duration); result != tt.expected {
				t.Errorf("formatDuration(%v) = %s, want %s", tt.duration, result, tt.expected)
			}
		})
	}
}
