package utils

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmtelinfra/sitestock_backend/config"
	"github.com/shopspring/decimal"
)

// NormalizeMaterialCode uppercases and trims a material code. Codes are
// case-insensitive on every write path.
func NormalizeMaterialCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NormalizeUnit lowercases units so "Pcs" and "pcs" key the same contribution.
func NormalizeUnit(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	if u == "" {
		return "pcs"
	}
	return u
}

// ParseDecimal converts a string to a decimal.Decimal value.
func ParseDecimal(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, errors.New("empty decimal string")
	}
	dec, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, err
	}
	return dec, nil
}

// ClampQuantity floors a quantity at zero. The ledger never represents
// negative stock; a clamp firing usually means an upstream bug, so it is
// logged loudly instead of silently swallowed.
func ClampQuantity(qty decimal.Decimal, materialCode string, field string) decimal.Decimal {
	if qty.IsNegative() {
		logger := config.GetLogger()
		if logger != nil {
			config.LogWarn(logger, "helper.go", "ClampQuantity", field, map[string]string{
				"materialCode": materialCode,
				"value":        qty.String(),
			}, "quantity clamped to zero")
		}
		return decimal.Zero
	}
	return qty
}

// ObtainLock obtains a cross-instance redis lock and returns a release func.
// Mutating workflows additionally take a MySQL advisory lock on the posting
// connection; this guards sections that span several posting transactions.
func ObtainLock(ctx context.Context, lockKey string, moduleName string, functionName string) (func(), error) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		// Avoid nil-pointer panics when the redis lock isn't initialized yet.
		config.LogError(logger, moduleName, functionName, "Redis lock not initialized", lockKey, errors.New("redis lock is nil"))
		return nil, errors.New("service not ready (redis lock not initialized)")
	}
	lock, err := locker.Obtain(ctx, lockKey, 30*time.Second, nil)
	if err == redislock.ErrNotObtained {
		config.LogError(logger, moduleName, functionName, "Could not obtain lock", lockKey, err)
		return nil, errors.New("could not obtain lock for " + lockKey)
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining lock", lockKey, err)
		return nil, err
	}
	release := func() {
		_ = lock.Release(ctx)
	}
	return release, nil
}

func UniqueSlice[T comparable](in []T) []T {
	seen := make(map[T]struct{}, len(in))
	out := make([]T, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
