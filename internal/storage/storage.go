package storage

import (
	"context"
	"errors"
	"fmt"

	"arbScope/internal/model"
)

// Sink receives one report per poll cycle.
type Sink interface {
	Report(ctx context.Context, report model.CycleReport) error
	Close() error
}

// Named is implemented by sinks that identify themselves in logs and metrics.
type Named interface {
	Name() string
}

// NameOf returns the sink's name, falling back to its type.
func NameOf(s Sink) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}

// MultiSink fans a report out to every sink. A failing sink does not stop the
// others; errors are joined.
type MultiSink struct {
	sinks   []Sink
	onError func(name string, err error)
}

// Multi builds a MultiSink. onError, if set, is called for every failed sink.
func Multi(onError func(name string, err error), sinks ...Sink) *MultiSink {
	kept := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &MultiSink{sinks: kept, onError: onError}
}

func (m *MultiSink) Name() string { return "multi" }

// Len returns the number of wrapped sinks.
func (m *MultiSink) Len() int { return len(m.sinks) }

// Report implements Sink.
func (m *MultiSink) Report(ctx context.Context, report model.CycleReport) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Report(ctx, report); err != nil {
			name := NameOf(s)
			if m.onError != nil {
				m.onError(name, err)
			}
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink and joins the errors.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", NameOf(s), err))
		}
	}
	return errors.Join(errs...)
}
