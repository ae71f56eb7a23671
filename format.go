package main

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(format string, args ...any) {
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// Size unit constants for human-readable formatting.
const (
	sizeKB = 1024
	sizeMB = 1024 * 1024
	sizeGB = 1024 * 1024 * 1024
)

// formatSize returns a human-readable size string (e.g. "1.2 MB").
func formatSize(bytes int64) string {
	switch {
	case bytes >= sizeGB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(sizeGB))
	case bytes >= sizeMB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(sizeMB))
	case bytes >= sizeKB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(sizeKB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// formatTime returns a compact timestamp for display.
func formatTime(t time.Time) string {
	now := time.Now()

	if t.Year() == now.Year() {
		return t.Format("Jan _2 15:04")
	}

	return t.Format("Jan _2  2006")
}

const progressBarWidth = 30

// progressBar renders batch progress on stderr. On a TTY it redraws in
// place; otherwise it stays silent except for the final newline, so
// piped output is not flooded with partial lines.
type progressBar struct {
	mu    sync.Mutex
	total int64
	done  int64
	tty   bool
}

func newProgressBar(total int64) *progressBar {
	return &progressBar{
		total: total,
		tty:   isatty.IsTerminal(os.Stderr.Fd()) && !flagQuiet,
	}
}

// Advance adds delta transferred bytes and redraws. Progress only ever
// moves forward.
func (p *progressBar) Advance(delta int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done += delta
	if p.done > p.total {
		p.done = p.total
	}

	p.draw()
}

func (p *progressBar) draw() {
	if !p.tty || p.total == 0 {
		return
	}

	frac := float64(p.done) / float64(p.total)
	filled := int(frac * progressBarWidth)

	bar := strings.Repeat("=", filled) + strings.Repeat(" ", progressBarWidth-filled)
	fmt.Fprintf(os.Stderr, "\r[%s] %3.0f%% (%s / %s)",
		bar, frac*100, formatSize(p.done), formatSize(p.total))
}

// Finish terminates the in-place line.
func (p *progressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.tty && p.total > 0 {
		fmt.Fprintln(os.Stderr)
	}
}
