package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"arbScope/internal/model"
	"arbScope/internal/venue"
)

const (
	// DefaultJupiterURL is the public Jupiter v6 quote API.
	DefaultJupiterURL = "https://quote-api.jup.ag/v6"

	defaultJupiterTimeout = 10 * time.Second
	maxResponseBytes      = 1 << 20
)

// permanentCodes are aggregator error codes that retrying cannot fix.
var permanentCodes = map[string]struct{}{
	"COULD_NOT_FIND_ANY_ROUTE":       {},
	"NO_ROUTES_FOUND":                {},
	"TOKEN_NOT_TRADABLE":             {},
	"NOT_SUPPORTED":                  {},
	"INVALID_MINT":                   {},
	"CIRCULAR_ARBITRAGE_IS_DISABLED": {},
}

// JupiterConfig configures JupiterSource.
type JupiterConfig struct {
	BaseURL     string
	APIKey      string
	SlippageBps int
	Timeout     time.Duration
	HTTPClient  *http.Client
	Now         func() time.Time
}

// JupiterSource fetches ExactIn quotes from a Jupiter-compatible /quote endpoint.
type JupiterSource struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	slippageBps int
	now         func() time.Time
}

// NewJupiterSource builds a JupiterSource, filling defaults for empty fields.
func NewJupiterSource(cfg JupiterConfig) *JupiterSource {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultJupiterURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultJupiterTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &JupiterSource{
		httpClient:  httpClient,
		baseURL:     baseURL,
		apiKey:      cfg.APIKey,
		slippageBps: cfg.SlippageBps,
		now:         now,
	}
}

// FetchQuote implements Source.
func (s *JupiterSource) FetchQuote(ctx context.Context, pair model.TokenPair, amountIn *big.Int, filter venue.Filter) (model.Quote, error) {
	const op = "jupiter quote"
	if amountIn == nil || amountIn.Sign() <= 0 {
		return model.Quote{}, Permanent(op, fmt.Errorf("amount must be positive"))
	}

	query := url.Values{}
	query.Set("inputMint", pair.Base.Address)
	query.Set("outputMint", pair.Quote.Address)
	query.Set("amount", amountIn.String())
	query.Set("swapMode", "ExactIn")
	if s.slippageBps > 0 {
		query.Set("slippageBps", strconv.Itoa(s.slippageBps))
	}
	restriction := filter.Venues()
	if len(restriction) > 0 {
		query.Set("dexes", filter.String())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/quote?"+query.Encode(), nil)
	if err != nil {
		return model.Quote{}, Permanent(op, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return model.Quote{}, Transient(op, fmt.Errorf("request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return model.Quote{}, Transient(op, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return model.Quote{}, classifyStatus(op, resp.StatusCode, body)
	}

	var parsed jupiterQuoteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return model.Quote{}, Transient(op, fmt.Errorf("decode response: %w", err))
	}
	if parsed.Error != "" || parsed.ErrorCode != "" {
		return model.Quote{}, classifyAggregatorError(op, parsed.ErrorCode, parsed.Error)
	}

	route := routeLabels(parsed.RoutePlan)
	if len(route) == 0 {
		return model.Quote{}, Permanent(op, errors.New("no route"))
	}
	in, ok := new(big.Int).SetString(parsed.InAmount, 10)
	if !ok {
		return model.Quote{}, Transient(op, fmt.Errorf("invalid inAmount %q", parsed.InAmount))
	}
	out, ok := new(big.Int).SetString(parsed.OutAmount, 10)
	if !ok {
		return model.Quote{}, Transient(op, fmt.Errorf("invalid outAmount %q", parsed.OutAmount))
	}

	q := model.Quote{
		Pair:           pair.Key(),
		InputMint:      pair.Base.Address,
		OutputMint:     pair.Quote.Address,
		AmountIn:       in,
		AmountOut:      out,
		Route:          route,
		Restriction:    restriction,
		PriceImpactPct: parsed.PriceImpactPct,
		FetchedAt:      s.now().UTC(),
	}
	if err := q.Validate(); err != nil {
		return model.Quote{}, Transient(op, err)
	}
	return q, nil
}

func classifyStatus(op string, status int, body []byte) error {
	var apiErr jupiterError
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Error
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	err := fmt.Errorf("status %d: %s", status, msg)

	switch {
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return Transient(op, err)
	case status >= 400:
		return Permanent(op, err)
	default:
		return Transient(op, err)
	}
}

func classifyAggregatorError(op, code, msg string) error {
	err := fmt.Errorf("%s: %s", code, msg)
	if _, ok := permanentCodes[code]; ok {
		return Permanent(op, err)
	}
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "route") || strings.Contains(lower, "not tradable") {
		return Permanent(op, err)
	}
	return Transient(op, err)
}

// routeLabels flattens the route plan into venue hops, collapsing consecutive
// hops on the same venue.
func routeLabels(plan []jupiterRoutePlan) []model.Venue {
	route := make([]model.Venue, 0, len(plan))
	for _, step := range plan {
		label := strings.TrimSpace(step.SwapInfo.Label)
		if label == "" {
			continue
		}
		if n := len(route); n > 0 && strings.EqualFold(string(route[n-1]), label) {
			continue
		}
		route = append(route, model.Venue(label))
	}
	return route
}
