package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"arbScope/internal/model"
)

const (
	recordSignal = "signal"
	recordHealth = "health"
)

type jsonlRecord struct {
	Type   string                   `json:"type"`
	Signal *model.OpportunitySignal `json:"signal,omitempty"`
	Health *model.PollCycleHealth   `json:"health,omitempty"`
}

// JSONLSink appends one JSON line per signal followed by one health line per cycle.
type JSONLSink struct {
	path string
	w    io.Writer
	mu   sync.Mutex
}

// NewJSONLSink writes to the file at path, creating parent directories as needed.
// A path of "-" writes to stdout.
func NewJSONLSink(path string) *JSONLSink {
	if path == "-" {
		return &JSONLSink{w: os.Stdout}
	}
	return &JSONLSink{path: path}
}

// NewJSONLWriter writes to w.
func NewJSONLWriter(w io.Writer) *JSONLSink {
	return &JSONLSink{w: w}
}

func (s *JSONLSink) Name() string { return "jsonl" }

// Report implements Sink.
func (s *JSONLSink) Report(_ context.Context, report model.CycleReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.w != nil {
		return writeRecords(s.w, report)
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	return writeRecords(file, report)
}

func writeRecords(w io.Writer, report model.CycleReport) error {
	writer := bufio.NewWriter(w)
	write := func(rec jsonlRecord) error {
		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal %s record: %w", rec.Type, err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write %s record: %w", rec.Type, err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
		return nil
	}

	for i := range report.Signals {
		if err := write(jsonlRecord{Type: recordSignal, Signal: &report.Signals[i]}); err != nil {
			return err
		}
	}
	health := report.Health
	if err := write(jsonlRecord{Type: recordHealth, Health: &health}); err != nil {
		return err
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

// Close implements Sink.
func (s *JSONLSink) Close() error { return nil }
