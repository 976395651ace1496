package bench

import (
	"encoding/csv"
	"fmt"
	"io"
)

// Writer is an append-only CSV sink: the header is written once, on
// the first Append.
type Writer struct {
	w           *csv.Writer
	wroteHeader bool
}

// NewWriter wraps w. If firstWrite is false (the destination already
// has content, e.g. an existing evaluation CSV being appended to),
// the header is not re-emitted.
func NewWriter(w io.Writer, firstWrite bool) *Writer {
	return &Writer{w: csv.NewWriter(w), wroteHeader: !firstWrite}
}

// Append writes r, emitting the header first if this is the first
// call on a fresh destination.
func (bw *Writer) Append(r Row) error {
	if !bw.wroteHeader {
		if err := bw.w.Write(header); err != nil {
			return fmt.Errorf("bench: write csv header: %w", err)
		}
		bw.wroteHeader = true
	}
	if err := bw.w.Write(r.record()); err != nil {
		return fmt.Errorf("bench: write csv row: %w", err)
	}
	bw.w.Flush()
	return bw.w.Error()
}
