package config

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"arbScope/internal/model"
	"arbScope/internal/registry"
)

// PairConfig is one entry of the pairs map. Decimals may be omitted and
// resolved later from chain metadata.
type PairConfig struct {
	Name          string          `mapstructure:"name"`
	BaseAddress   string          `mapstructure:"baseAddress"`
	QuoteAddress  string          `mapstructure:"quoteAddress"`
	DecimalsBase  *uint8          `mapstructure:"decimalsBase"`
	DecimalsQuote *uint8          `mapstructure:"decimalsQuote"`
	InputAmount   string          `mapstructure:"inputAmount"`
	Amount        decimal.Decimal `mapstructure:"-"`
}

// DecimalsResolver looks up token decimals for pairs that omit them.
type DecimalsResolver interface {
	Decimals(ctx context.Context, address string) (uint8, error)
}

// decodePairs reads the pairs map from the config file or a JSON string in
// ARBSCOPE_PAIRS. Map keys become pair names unless an entry sets name.
func decodePairs(v *viper.Viper, defaultAmount decimal.Decimal) ([]PairConfig, error) {
	if !v.IsSet("pairs") {
		return nil, nil
	}

	raw := v.Get("pairs")
	if s, ok := raw.(string); ok {
		var parsed map[string]interface{}
		if err := json.Unmarshal([]byte(s), &parsed); err != nil {
			return nil, invalid("pairs", "invalid JSON: %v", err)
		}
		raw = parsed
	}

	entries := map[string]PairConfig{}
	if err := mapstructure.WeakDecode(raw, &entries); err != nil {
		return nil, invalid("pairs", "%v", err)
	}

	out := make([]PairConfig, 0, len(entries))
	for key, entry := range entries {
		if strings.TrimSpace(entry.Name) == "" {
			entry.Name = strings.ToUpper(key)
		}
		entry.Name = strings.TrimSpace(entry.Name)
		if err := validatePair(&entry, defaultAmount); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func validatePair(p *PairConfig, defaultAmount decimal.Decimal) error {
	field := "pairs." + p.Name

	base, err := registry.NormalizeAddress(p.BaseAddress)
	if err != nil {
		return invalid(field+".baseAddress", "%v", err)
	}
	quote, err := registry.NormalizeAddress(p.QuoteAddress)
	if err != nil {
		return invalid(field+".quoteAddress", "%v", err)
	}
	// Normalized EVM addresses are checksummed and mints are case-sensitive,
	// so exact comparison is correct for both.
	if base == quote {
		return invalid(field, "base and quote must differ")
	}
	p.BaseAddress, p.QuoteAddress = base, quote

	if p.DecimalsBase != nil && *p.DecimalsBase > registry.MaxDecimals {
		return invalid(field+".decimalsBase", "must be at most %d", registry.MaxDecimals)
	}
	if p.DecimalsQuote != nil && *p.DecimalsQuote > registry.MaxDecimals {
		return invalid(field+".decimalsQuote", "must be at most %d", registry.MaxDecimals)
	}

	p.Amount = defaultAmount
	if s := strings.TrimSpace(p.InputAmount); s != "" {
		amount, err := decimal.NewFromString(s)
		if err != nil {
			return invalid(field+".inputAmount", "invalid number %q", s)
		}
		p.Amount = amount
	}
	if !p.Amount.IsPositive() {
		return invalid(field+".inputAmount", "must be greater than zero")
	}
	return nil
}

// ResolvePairs fills missing decimals through resolver and converts the
// entries into registry-ready pairs.
func ResolvePairs(ctx context.Context, pairs []PairConfig, resolver DecimalsResolver) ([]model.TokenPair, error) {
	out := make([]model.TokenPair, 0, len(pairs))
	for _, p := range pairs {
		baseDecimals, err := resolveDecimals(ctx, resolver, p.DecimalsBase, p.BaseAddress)
		if err != nil {
			return nil, fmt.Errorf("pair %s base: %w", p.Name, err)
		}
		quoteDecimals, err := resolveDecimals(ctx, resolver, p.DecimalsQuote, p.QuoteAddress)
		if err != nil {
			return nil, fmt.Errorf("pair %s quote: %w", p.Name, err)
		}
		out = append(out, model.TokenPair{
			Name:        p.Name,
			Base:        model.Token{Address: p.BaseAddress, Decimals: baseDecimals},
			Quote:       model.Token{Address: p.QuoteAddress, Decimals: quoteDecimals},
			InputAmount: p.Amount,
		})
	}
	return out, nil
}

func resolveDecimals(ctx context.Context, resolver DecimalsResolver, configured *uint8, address string) (uint8, error) {
	if configured != nil {
		return *configured, nil
	}
	if resolver == nil {
		return 0, fmt.Errorf("decimals for %s not configured", address)
	}
	return resolver.Decimals(ctx, address)
}
