package retry

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/perseid-labs/txengine"
	"github.com/perseid-labs/txengine/txerrors"
)

// Strategy decides whether, when, and at what fee the next attempt of a
// session runs. attempt arguments are the 1-based number of the upcoming
// attempt. Implementations must be side-effect free.
type Strategy interface {
	Name() string
	ShouldRetry(err *txerrors.CanonicalError, attemptIndex int, cfg Config) bool
	// ComputeDelay returns the unjittered delay before the given attempt;
	// the orchestrator adds jitter when sleeping.
	ComputeDelay(attempt int, cfg Config) time.Duration
	// AdjustFee escalates the session's original fee price for the given
	// attempt, returning the new fee and the applied factor in basis points.
	// Fee arithmetic is integer-only so results are reproducible.
	AdjustFee(originalFee uint64, attempt int, err *txerrors.CanonicalError) (uint64, uint32)
}

const (
	StrategyExponential = "exponential"
	StrategyLinear      = "linear"
	StrategyFixed       = "fixed"
	StrategyImmediate   = "immediate"
)

// ForName resolves a built-in strategy by name.
func ForName(name string) (Strategy, error) {
	switch name {
	case StrategyExponential:
		return exponentialStrategy{}, nil
	case StrategyLinear:
		return linearStrategy{}, nil
	case StrategyFixed:
		return fixedStrategy{}, nil
	case StrategyImmediate:
		return immediateStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown retry strategy: %q", name)
	}
}

type baseStrategy struct{}

func (baseStrategy) ShouldRetry(err *txerrors.CanonicalError, attemptIndex int, cfg Config) bool {
	if err == nil {
		return false
	}
	return err.Retryable && attemptIndex < cfg.MaxRetries
}

type exponentialStrategy struct{ baseStrategy }

func (exponentialStrategy) Name() string { return StrategyExponential }

func (exponentialStrategy) ComputeDelay(attempt int, cfg Config) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		d = time.Duration(uint64(d) * uint64(cfg.DelayMultiplierBps) / txengine.BpsDenominator)
		if d >= cfg.MaxDelay {
			return cfg.MaxDelay
		}
	}
	if d > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return d
}

func (exponentialStrategy) AdjustFee(originalFee uint64, attempt int, _ *txerrors.CanonicalError) (uint64, uint32) {
	factor := uint32(txengine.BpsDenominator + 2_000*attempt)
	return txengine.ApplyBps(originalFee, factor), factor
}

type linearStrategy struct{ baseStrategy }

func (linearStrategy) Name() string { return StrategyLinear }

func (linearStrategy) ComputeDelay(attempt int, cfg Config) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := cfg.BaseDelay * time.Duration(attempt)
	if d > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return d
}

func (linearStrategy) AdjustFee(originalFee uint64, attempt int, _ *txerrors.CanonicalError) (uint64, uint32) {
	factor := uint32(txengine.BpsDenominator + 1_500*attempt)
	return txengine.ApplyBps(originalFee, factor), factor
}

type fixedStrategy struct{ baseStrategy }

func (fixedStrategy) Name() string { return StrategyFixed }

func (fixedStrategy) ComputeDelay(_ int, cfg Config) time.Duration {
	return cfg.BaseDelay
}

func (fixedStrategy) AdjustFee(originalFee uint64, attempt int, _ *txerrors.CanonicalError) (uint64, uint32) {
	factor := uint32(txengine.BpsDenominator + 2_500*attempt)
	return txengine.ApplyBps(originalFee, factor), factor
}

// immediateStrategy retries without delay or fee adjustment. Meant for
// deterministic tests.
type immediateStrategy struct{ baseStrategy }

func (immediateStrategy) Name() string { return StrategyImmediate }

func (immediateStrategy) ComputeDelay(int, Config) time.Duration { return 0 }

func (immediateStrategy) AdjustFee(originalFee uint64, _ int, _ *txerrors.CanonicalError) (uint64, uint32) {
	return originalFee, txengine.BpsDenominator
}

// withJitter adds up to jitterBps of random jitter on top of d. Jitter is
// additive only, so recorded delays stay a lower bound on actual sleeps.
func withJitter(d time.Duration, jitterBps uint32) time.Duration {
	if d <= 0 || jitterBps == 0 {
		return d
	}
	maxExtra := int64(txengine.ApplyBps(uint64(d), jitterBps))
	if maxExtra <= 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(maxExtra+1))
}
