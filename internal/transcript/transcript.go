// Package transcript implements the optional human-readable transfer log
// described in spec.md §6 ("Persisted state: None across sessions. An
// optional transcript is a human-readable log keyed by the transfer epoch
// timestamp."). It is an out-of-scope collaborator given a minimal,
// real home per SPEC_FULL §5.14 — not part of the core engine's
// critical path.
package transcript

import (
	"fmt"
	"io"
	"time"
)

// Writer appends one line per event to an underlying io.Writer, keyed by
// the transfer's epoch timestamp.
type Writer struct {
	out   io.Writer
	epoch uint32
}

// New creates a transcript writer for a transfer with the given epoch.
func New(out io.Writer, epoch uint32) *Writer {
	return &Writer{out: out, epoch: epoch}
}

// Event appends one formatted line: "<epoch> <wall-clock> <message>".
func (w *Writer) Event(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	fmt.Fprintf(w.out, "%d %s %s\n", w.epoch, time.Now().Format(time.RFC3339), line)
}

// Summary appends the final human-readable status line (spec.md §7):
// bytes, duration, throughput, or a not-successful marker.
func (w *Writer) Summary(path string, bytes uint64, duration time.Duration, udpErrors int) {
	if duration <= 0 {
		w.Event("transfer %q: not successful (partial file left on disk)", path)
		return
	}
	mbit := float64(bytes) * 8 / duration.Seconds() / 1e6
	w.Event("transfer %q complete: %d bytes in %s (%.2f Mbit/s, %d udp errors)", path, bytes, duration, mbit, udpErrors)
}
