package registry

import (
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbScope/internal/model"
)

const (
	solMint  = "So11111111111111111111111111111111111111112"
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	bonkMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	weth     = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	usdc     = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
)

func solPair(name, base, quote string) model.TokenPair {
	return model.TokenPair{
		Name:        name,
		Base:        model.Token{Address: base, Decimals: 9},
		Quote:       model.Token{Address: quote, Decimals: 6},
		InputAmount: decimal.NewFromInt(1),
	}
}

func TestRegisterRejectsReversedDuplicate(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(solPair("SOL-USDC", solMint, usdcMint)))

	err := r.Register(solPair("USDC-SOL", usdcMint, solMint))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrDuplicatePair))
	assert.Equal(t, 1, r.Len())
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(solPair("X", solMint, usdcMint)))
	err := r.Register(solPair("x", bonkMint, usdcMint))
	assert.ErrorIs(t, err, model.ErrDuplicatePair)
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name string
		pair model.TokenPair
	}{
		{"same token", solPair("A", solMint, solMint)},
		{"bad base58", solPair("A", "not-a-mint!", usdcMint)},
		{"bad hex", solPair("A", "0x1234", usdc)},
		{"decimals too large", func() model.TokenPair {
			p := solPair("A", solMint, usdcMint)
			p.Base.Decimals = 40
			return p
		}()},
		{"zero amount", func() model.TokenPair {
			p := solPair("A", solMint, usdcMint)
			p.InputAmount = decimal.Zero
			return p
		}()},
		{"amount below one unit", func() model.TokenPair {
			p := solPair("A", solMint, usdcMint)
			p.InputAmount = decimal.RequireFromString("0.0000000001")
			return p
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New().Register(tt.pair)
			assert.ErrorIs(t, err, model.ErrInvalidPair)
		})
	}
}

func TestRegisterNormalizesEVMAddresses(t *testing.T) {
	r := New()
	p := model.TokenPair{
		Name:        "WETH-USDC",
		Base:        model.Token{Address: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", Decimals: 18},
		Quote:       model.Token{Address: usdc, Decimals: 6},
		InputAmount: decimal.NewFromInt(1),
	}
	require.NoError(t, r.Register(p))

	got, ok := r.Get("weth-usdc")
	require.True(t, ok)
	assert.Equal(t, weth, got.Base.Address)

	_, ok = r.Get(usdc + "/" + "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	assert.True(t, ok, "lookup by reversed, lower-case key")
}

func TestDeregister(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(solPair("SOL-USDC", solMint, usdcMint)))
	require.NoError(t, r.Register(solPair("BONK-USDC", bonkMint, usdcMint)))

	removed, err := r.Deregister("SOL-USDC")
	require.NoError(t, err)
	assert.Equal(t, solMint, removed.Base.Address)

	_, err = r.Deregister("SOL-USDC")
	assert.ErrorIs(t, err, model.ErrUnknownPair)

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "BONK-USDC", snap[0].Name)
}

func TestSnapshotIsIsolated(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(solPair("SOL-USDC", solMint, usdcMint)))

	snap := r.Snapshot()
	require.NoError(t, r.Register(solPair("BONK-USDC", bonkMint, usdcMint)))
	_, err := r.Deregister("SOL-USDC")
	require.NoError(t, err)

	require.Len(t, snap, 1)
	assert.Equal(t, "SOL-USDC", snap[0].Name)

	snap[0].Name = "mutated"
	got := r.Snapshot()
	assert.Equal(t, "BONK-USDC", got[0].Name)
}

func TestSnapshotPreservesOrder(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(solPair("B", bonkMint, usdcMint)))
	require.NoError(t, r.Register(solPair("A", solMint, usdcMint)))

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "B", snap[0].Name)
	assert.Equal(t, "A", snap[1].Name)
}

func TestSync(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(solPair("SOL-USDC", solMint, usdcMint)))
	require.NoError(t, r.Register(solPair("BONK-USDC", bonkMint, usdcMint)))

	changed := solPair("BONK-USDC", bonkMint, usdcMint)
	changed.InputAmount = decimal.NewFromInt(5)

	res, err := r.Sync([]model.TokenPair{
		solPair("SOL-USDC", solMint, usdcMint),
		changed,
		solPair("BAD", solMint, solMint),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalidPair)

	bonkKey := changed.Key()
	assert.Equal(t, []string{bonkKey}, res.Removed)
	assert.Equal(t, []string{bonkKey}, res.Added)
	assert.True(t, res.Changed())

	got, ok := r.Get("BONK-USDC")
	require.True(t, ok)
	assert.True(t, got.InputAmount.Equal(decimal.NewFromInt(5)))

	res, err = r.Sync(nil)
	require.NoError(t, err)
	assert.Len(t, res.Removed, 2)
	assert.Equal(t, 0, r.Len())
}

func TestMarkHealth(t *testing.T) {
	r := New()
	p := solPair("SOL-USDC", solMint, usdcMint)
	require.NoError(t, r.Register(p))

	assert.True(t, r.MarkHealth(p.Key(), errors.New("no route")))
	assert.False(t, r.MarkHealth(p.Key(), errors.New("still no route")))
	assert.Equal(t, []string{p.Key()}, r.Unhealthy())
	assert.Equal(t, 1, r.Len(), "unhealthy pairs stay registered")

	assert.True(t, r.MarkHealth(p.Key(), nil))
	assert.Empty(t, r.Unhealthy())
	assert.False(t, r.MarkHealth("missing", errors.New("x")))
}

func TestConcurrentAccess(t *testing.T) {
	r := New()
	mints := []string{solMint, bonkMint}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			p := solPair("", mints[i%2], usdcMint)
			_ = r.Register(p)
			_, _ = r.Deregister(p.Key())
		}(i)
		go func() {
			defer wg.Done()
			for _, p := range r.Snapshot() {
				assert.NotEmpty(t, p.Key())
			}
		}()
	}
	wg.Wait()
}
