package audio

import "testing"

func TestLimiterPassesThroughBelowThreshold(t *testing.T) {
	l := NewLimiter(DefaultLimiterConfig())
	samples := []float32{0.1, -0.5, 0.89, -0.9}
	want := append([]float32{}, samples...)
	l.Process(samples)
	for i := range samples {
		if samples[i] != want[i] {
			t.Fatalf("sample %d: got %v, want unchanged %v", i, samples[i], want[i])
		}
	}
}

func TestLimiterNeverExceedsCeiling(t *testing.T) {
	cfg := DefaultLimiterConfig()
	l := NewLimiter(cfg)
	samples := []float32{1.5, -2.0, 0.95, -0.91, 10.0}
	l.Process(samples)
	for i, s := range samples {
		if float64(s) > cfg.Ceiling+1e-9 || float64(s) < -cfg.Ceiling-1e-9 {
			t.Fatalf("sample %d = %v exceeds ceiling %v", i, s, cfg.Ceiling)
		}
	}
}

func TestLimiterStatsTrackLimitedSamples(t *testing.T) {
	l := NewLimiter(DefaultLimiterConfig())
	l.Process([]float32{0.1, 0.2, 0.95, 0.99})
	stats := l.Stats()
	if stats.SamplesProcessed != 4 {
		t.Fatalf("SamplesProcessed = %d, want 4", stats.SamplesProcessed)
	}
	if stats.SamplesLimited != 2 {
		t.Fatalf("SamplesLimited = %d, want 2", stats.SamplesLimited)
	}
	if ratio := l.LimitingRatio(); ratio != 0.5 {
		t.Fatalf("LimitingRatio = %v, want 0.5", ratio)
	}
}

func TestLimiterDisabled(t *testing.T) {
	cfg := DefaultLimiterConfig()
	cfg.Enabled = false
	l := NewLimiter(cfg)
	samples := []float32{5.0, -5.0}
	l.Process(samples)
	if samples[0] != 5.0 || samples[1] != -5.0 {
		t.Fatalf("disabled limiter modified samples: %v", samples)
	}
}
