package audio

import (
	"math"
	"sync"
	"sync/atomic"
)

// LimiterConfig configures the soft limiter applied to OS-audio blocks.
type LimiterConfig struct {
	Enabled   bool
	Threshold float64
	Ceiling   float64
	Knee      float64
}

// DefaultLimiterConfig matches the reference curve: samples above 0.9 are
// soft-knee compressed toward a 0.99 ceiling.
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{Enabled: true, Threshold: 0.9, Ceiling: 0.99, Knee: 0.5}
}

// LimiterStats are running counters exposed for observability.
type LimiterStats struct {
	SamplesProcessed int64
	SamplesLimited   int64
	MaxInput         float64
}

// Limiter is a stateless-per-sample block processor: it carries only
// observability counters, never waveform state, across calls.
type Limiter struct {
	cfg LimiterConfig

	processed int64
	limited   int64

	mu       sync.Mutex
	maxInput float64
}

func NewLimiter(cfg LimiterConfig) *Limiter {
	return &Limiter{cfg: cfg}
}

// Process applies the soft limiter in place and returns the same slice.
func (l *Limiter) Process(samples []float32) []float32 {
	if !l.cfg.Enabled {
		return samples
	}
	threshold := l.cfg.Threshold
	ceiling := l.cfg.Ceiling
	knee := l.cfg.Knee

	var localMax float64
	var limitedCount int64
	for i, s := range samples {
		x := float64(s)
		abs := math.Abs(x)
		if abs > localMax {
			localMax = abs
		}
		if abs > threshold {
			sign := 1.0
			if x < 0 {
				sign = -1.0
			}
			excess := abs - threshold
			limited := sign * (threshold + math.Tanh(knee*excess)*(ceiling-threshold))
			samples[i] = float32(limited)
			limitedCount++
		}
	}

	atomic.AddInt64(&l.processed, int64(len(samples)))
	atomic.AddInt64(&l.limited, limitedCount)
	l.mu.Lock()
	if localMax > l.maxInput {
		l.maxInput = localMax
	}
	l.mu.Unlock()

	return samples
}

func (l *Limiter) Stats() LimiterStats {
	l.mu.Lock()
	maxInput := l.maxInput
	l.mu.Unlock()
	return LimiterStats{
		SamplesProcessed: atomic.LoadInt64(&l.processed),
		SamplesLimited:   atomic.LoadInt64(&l.limited),
		MaxInput:         maxInput,
	}
}

// LimitingRatio is the fraction of processed samples that were limited.
func (l *Limiter) LimitingRatio() float64 {
	processed := atomic.LoadInt64(&l.processed)
	if processed == 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&l.limited)) / float64(processed)
}
