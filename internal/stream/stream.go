// Package stream separates the driver's two output channels: a sequence of
// newline-delimited JSON progress records consumed live by the host runtime,
// and exactly one terminal result record. Keeping them distinct lets each be
// tested on its own writer even though in production both target stdout.
package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Emitter writes NDJSON progress records. Safe for concurrent use.
type Emitter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewEmitter returns an Emitter writing to w.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{w: w}
}

// Emit writes v as a single JSON line.
func (e *Emitter) Emit(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal stream record: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write stream record: %w", err)
	}
	return nil
}

// WriteResult writes the single terminal result record, pretty-printed the
// way the host runtime expects the final MCP payload.
func WriteResult(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}
