package storage

import (
	"context"
	"strings"
	"sync"
	"time"

	"arbScope/internal/model"
)

// DedupSink drops signals already reported within ttl. Health records always pass.
type DedupSink struct {
	next Sink
	ttl  time.Duration
	now  func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

// Dedup wraps next. A non-positive ttl returns next unchanged.
func Dedup(next Sink, ttl time.Duration) Sink {
	if ttl <= 0 {
		return next
	}
	return &DedupSink{next: next, ttl: ttl, now: time.Now, seen: make(map[string]time.Time)}
}

func (d *DedupSink) Name() string { return "dedup(" + NameOf(d.next) + ")" }

// Report implements Sink. Signals are reserved before delivery and released
// again if next fails, so an undelivered signal is retried by the next cycle.
func (d *DedupSink) Report(ctx context.Context, report model.CycleReport) error {
	now := d.now()

	d.mu.Lock()
	for key, at := range d.seen {
		if now.Sub(at) >= d.ttl {
			delete(d.seen, key)
		}
	}
	kept := make([]model.OpportunitySignal, 0, len(report.Signals))
	reserved := make([]string, 0, len(report.Signals))
	for _, sig := range report.Signals {
		key := dedupKey(sig)
		if _, ok := d.seen[key]; ok {
			continue
		}
		d.seen[key] = now
		reserved = append(reserved, key)
		kept = append(kept, sig)
	}
	d.mu.Unlock()

	report.Signals = kept
	err := d.next.Report(ctx, report)
	if err != nil {
		d.release(reserved, now)
	}
	return err
}

// release forgets keys reserved at now, leaving newer reservations alone.
func (d *DedupSink) release(keys []string, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, key := range keys {
		if at, ok := d.seen[key]; ok && at.Equal(now) {
			delete(d.seen, key)
		}
	}
}

// Close implements Sink.
func (d *DedupSink) Close() error { return d.next.Close() }

// dedupKey identifies an opportunity by pair, kind and the venues on each
// leg, so a persisting spread is reported once per ttl even as amounts move.
func dedupKey(sig model.OpportunitySignal) string {
	return strings.Join([]string{
		string(sig.Kind),
		sig.PairKey,
		sig.SellLeg.Source(), sig.SellLeg.RouteKey(),
		sig.BuyLeg.Source(), sig.BuyLeg.RouteKey(),
	}, "|")
}
