package aggregate

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"pairLedger/internal/model"
)

// TokenMetaSource resolves token metadata such as decimals.
type TokenMetaSource interface {
	TokenMeta(ctx context.Context, token common.Address) (model.TokenMeta, error)
}

// TokenDecimalsCache memoizes decimals per token, including lookups that
// failed and fell back to raw units.
type TokenDecimalsCache struct {
	source TokenMetaSource
	logger *zap.Logger
	mu     sync.RWMutex
	data   map[common.Address]uint8
}

func NewTokenDecimalsCache(source TokenMetaSource, logger *zap.Logger) *TokenDecimalsCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenDecimalsCache{source: source, logger: logger, data: make(map[common.Address]uint8)}
}

// Decimals returns the token decimals, or 0 when no source is configured or
// the lookup failed.
func (c *TokenDecimalsCache) Decimals(ctx context.Context, token string) uint8 {
	if c.source == nil || !common.IsHexAddress(token) {
		return 0
	}
	addr := common.HexToAddress(token)

	c.mu.RLock()
	decimals, ok := c.data[addr]
	c.mu.RUnlock()
	if ok {
		return decimals
	}

	meta, err := c.source.TokenMeta(ctx, addr)
	if err != nil {
		c.logger.Warn("token decimals", zap.String("token", token), zap.Error(err))
	} else {
		decimals = meta.Decimals
	}

	c.mu.Lock()
	c.data[addr] = decimals
	c.mu.Unlock()
	return decimals
}

// StaticTokenMeta serves configured decimals and defers everything else to
// Fallback.
type StaticTokenMeta struct {
	Decimals map[common.Address]uint8
	Fallback TokenMetaSource
}

// ParseStaticDecimals builds decimals overrides from address=decimals pairs.
func ParseStaticDecimals(raw map[string]string) (map[common.Address]uint8, error) {
	out := make(map[common.Address]uint8, len(raw))
	for token, value := range raw {
		if !common.IsHexAddress(token) {
			return nil, fmt.Errorf("invalid token address: %s", token)
		}
		decimals, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("decimals for %s: %w", token, err)
		}
		out[common.HexToAddress(token)] = uint8(decimals)
	}
	return out, nil
}

func (s *StaticTokenMeta) TokenMeta(ctx context.Context, token common.Address) (model.TokenMeta, error) {
	if decimals, ok := s.Decimals[token]; ok {
		return model.TokenMeta{Address: token.Hex(), Decimals: decimals}, nil
	}
	if s.Fallback == nil {
		return model.TokenMeta{}, fmt.Errorf("no metadata for %s", token.Hex())
	}
	return s.Fallback.TokenMeta(ctx, token)
}
