package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"arbScope/internal/model"
)

const maxWebhookMessage = 1900

// WebhookSink posts signals to a Discord or Slack compatible webhook. Cycles
// without signals are not posted unless they were partial or had failures.
type WebhookSink struct {
	url    string
	key    string
	client *http.Client
}

// NewWebhookSink targets url. Slack URLs get a "text" payload, everything else "content".
func NewWebhookSink(url string, client *http.Client) *WebhookSink {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	key := "content"
	if strings.Contains(url, "hooks.slack.com") {
		key = "text"
	}
	return &WebhookSink{url: url, key: key, client: client}
}

func (w *WebhookSink) Name() string { return "webhook" }

// Report implements Sink.
func (w *WebhookSink) Report(ctx context.Context, report model.CycleReport) error {
	messages := FormatReport(report)
	for _, msg := range messages {
		if err := w.post(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (w *WebhookSink) post(ctx context.Context, message string) error {
	body, err := json.Marshal(map[string]string{w.key: message})
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Close implements Sink.
func (w *WebhookSink) Close() error { return nil }

// FormatReport renders a report as chat messages, splitting long batches.
func FormatReport(report model.CycleReport) []string {
	h := report.Health
	var lines []string
	for _, sig := range report.Signals {
		lines = append(lines, formatSignal(sig))
	}
	if len(lines) == 0 && h.PairsFailed == 0 && !h.Partial {
		return nil
	}
	summary := fmt.Sprintf("cycle %d: %d/%d pairs ok, %d failed, %d signals", h.Cycle, h.PairsQueried, h.PairsTotal, h.PairsFailed, h.Signals)
	if h.Partial {
		summary += " (partial)"
	}
	if len(h.Unhealthy) > 0 {
		summary += "\nunhealthy: " + strings.Join(h.Unhealthy, ", ")
	}
	lines = append(lines, summary)

	var (
		messages []string
		current  strings.Builder
	)
	for _, line := range lines {
		if current.Len() > 0 && current.Len()+len(line)+1 > maxWebhookMessage {
			messages = append(messages, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		messages = append(messages, current.String())
	}
	return messages
}

func formatSignal(sig model.OpportunitySignal) string {
	return fmt.Sprintf("**%s** %s: sell via %s [%s] @ %s, buy via %s [%s] @ %s, spread %s%%, net %s%% (%s)",
		sig.Pair,
		sig.Kind,
		sig.SellLeg.Source(), sig.SellLeg.RouteString(), sig.SellPrice.StringFixed(6),
		sig.BuyLeg.Source(), sig.BuyLeg.RouteString(), sig.BuyPrice.StringFixed(6),
		sig.Spread.Shift(2).StringFixed(3),
		sig.NetProfitRelative.Shift(2).StringFixed(3),
		sig.NetProfit.StringFixed(4),
	)
}
