// Package scoring grades article text against the house style: a statistical
// score from the feature model, a rubric score from the language model, and
// their weighted combination with a pass/fail verdict.
package scoring

import (
	"fmt"
	"log/slog"
	"math"
)

// Neutral is substituted for any score that could not be computed.
const Neutral = 0.5

// attempt runs fn once. An error or panic is logged and turned into
// fallback(err); scorers share this so none of them retries or raises.
func attempt[T any](logger *slog.Logger, op string, fallback func(error) T, fn func() (T, error)) (out T) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			logger.Warn("scoring degraded", "op", op, "err", err)
			out = fallback(err)
		}
	}()
	v, err := fn()
	if err != nil {
		logger.Warn("scoring degraded", "op", op, "err", err)
		return fallback(err)
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}
