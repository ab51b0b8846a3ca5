package quote

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"arbScope/internal/model"
	"arbScope/internal/venue"
)

func countingSource(calls *atomic.Int32, failures int, failWith error) Source {
	return SourceFunc(func(ctx context.Context, pair model.TokenPair, amountIn *big.Int, filter venue.Filter) (model.Quote, error) {
		n := calls.Add(1)
		if int(n) <= failures {
			return model.Quote{}, failWith
		}
		return model.Quote{Pair: pair.Key(), AmountIn: amountIn, AmountOut: big.NewInt(1), Route: []model.Venue{"Raydium"}}, nil
	})
}

func TestRetryingRecoversFromTransient(t *testing.T) {
	var calls atomic.Int32
	src := Retrying(countingSource(&calls, 2, Transient("test", errors.New("503"))), 3, time.Millisecond, zaptest.NewLogger(t))

	q, err := src.FetchQuote(context.Background(), testPair(), big.NewInt(5), venue.Unrestricted())
	require.NoError(t, err)
	assert.Equal(t, "5", q.AmountIn.String())
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryingGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	src := Retrying(countingSource(&calls, 10, Transient("test", errors.New("429"))), 2, time.Millisecond, nil)

	_, err := src.FetchQuote(context.Background(), testPair(), big.NewInt(5), venue.Unrestricted())
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryingSkipsPermanent(t *testing.T) {
	var calls atomic.Int32
	src := Retrying(countingSource(&calls, 10, Permanent("test", errors.New("no route"))), 5, time.Millisecond, nil)

	_, err := src.FetchQuote(context.Background(), testPair(), big.NewInt(5), venue.Unrestricted())
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetryingStopsOnCancel(t *testing.T) {
	var calls atomic.Int32
	src := Retrying(countingSource(&calls, 10, Transient("test", errors.New("timeout"))), 5, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := src.FetchQuote(ctx, testPair(), big.NewInt(5), venue.Unrestricted())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClassifiers(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(errors.New("mystery")))
	assert.False(t, IsTransient(context.Canceled))
	assert.True(t, IsPermanent(Permanent("op", errors.New("x"))))

	wrapped := errors.Join(errors.New("outer"), Permanent("op", errors.New("x")))
	assert.True(t, IsPermanent(wrapped))
	assert.False(t, IsTransient(wrapped))
}
