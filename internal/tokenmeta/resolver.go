// Package tokenmeta resolves token decimals and symbols that a pair
// definition leaves out: ERC-20 calls for EVM tokens, a static table for
// well-known Solana mints.
package tokenmeta

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"arbScope/internal/model"
)

// Caller performs read-only contract calls. *chain.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// knownMints lists decimals of common Solana mints.
var knownMints = map[string]model.TokenMeta{
	"So11111111111111111111111111111111111111112":  {Symbol: "SOL", Decimals: 9},
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": {Symbol: "USDC", Decimals: 6},
	"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB": {Symbol: "USDT", Decimals: 6},
	"DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263": {Symbol: "BONK", Decimals: 5},
	"EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm": {Symbol: "WIF", Decimals: 6},
	"JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN":  {Symbol: "JUP", Decimals: 6},
}

// Resolver looks up token metadata and caches results by address.
type Resolver struct {
	caller Caller
	logger *zap.Logger

	mu   sync.RWMutex
	data map[string]model.TokenMeta
}

// NewResolver builds a Resolver. caller may be nil when no RPC is configured;
// EVM lookups then fail.
func NewResolver(caller Caller, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{caller: caller, logger: logger, data: make(map[string]model.TokenMeta)}
}

func (r *Resolver) get(address string) (model.TokenMeta, bool) {
	r.mu.RLock()
	meta, ok := r.data[address]
	r.mu.RUnlock()
	return meta, ok
}

func (r *Resolver) set(address string, meta model.TokenMeta) {
	r.mu.Lock()
	r.data[address] = meta
	r.mu.Unlock()
}

// Resolve returns metadata for address.
func (r *Resolver) Resolve(ctx context.Context, address string) (model.TokenMeta, error) {
	if meta, ok := r.get(address); ok {
		return meta, nil
	}

	var (
		meta model.TokenMeta
		err  error
	)
	if common.IsHexAddress(address) {
		meta, err = r.fetchERC20(ctx, common.HexToAddress(address))
	} else if known, ok := knownMints[address]; ok {
		meta = known
		meta.Address = address
		meta.Source = model.MetaSourceKnown
	} else {
		err = fmt.Errorf("no metadata source for %s, set decimals explicitly", address)
	}
	if err != nil {
		return model.TokenMeta{Address: address}, err
	}

	r.set(address, meta)
	return meta, nil
}

// Decimals resolves only the token's decimals.
func (r *Resolver) Decimals(ctx context.Context, address string) (uint8, error) {
	meta, err := r.Resolve(ctx, address)
	if err != nil {
		return 0, err
	}
	return meta.Decimals, nil
}

func (r *Resolver) fetchERC20(ctx context.Context, token common.Address) (model.TokenMeta, error) {
	meta := model.TokenMeta{Address: token.Hex(), Source: model.MetaSourceERC20}
	if r.caller == nil {
		return meta, fmt.Errorf("rpc is not configured, cannot resolve %s", token.Hex())
	}
	abis, err := erc20()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 abi: %w", err)
	}

	values, err := r.call(ctx, token, abis.str, "decimals")
	if err != nil {
		return meta, err
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return meta, fmt.Errorf("decimals: unexpected type %T", values[0])
	}
	meta.Decimals = decimals

	meta.Symbol = r.text(ctx, token, abis, "symbol")
	meta.Name = r.text(ctx, token, abis, "name")
	return meta, nil
}

// text reads a string-or-bytes32 metadata field; failures leave it empty.
func (r *Resolver) text(ctx context.Context, token common.Address, abis parsedABIs, method string) string {
	if values, err := r.call(ctx, token, abis.str, method); err == nil {
		if s, ok := values[0].(string); ok {
			return s
		}
	}
	values, err := r.call(ctx, token, abis.bytes32, method)
	if err != nil {
		r.logger.Debug("token metadata call failed", zap.String("token", token.Hex()), zap.String("method", method), zap.Error(err))
		return ""
	}
	if b, ok := values[0].([32]byte); ok {
		return string(bytes.TrimRight(b[:], "\x00"))
	}
	return ""
}

func (r *Resolver) call(ctx context.Context, token common.Address, parsed abi.ABI, method string) ([]interface{}, error) {
	data, err := parsed.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	resp, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: empty result", method)
	}
	return values, nil
}
