package audio

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
)

const (
	peakDecay = 0.9995
	smoothing = 0.3
)

// LevelMeter tracks RMS and peak level over a sliding window, used to drive
// the audio:level event and source-arbitration energy estimates.
type LevelMeter struct {
	mu sync.Mutex

	window      []float64
	windowSize  int
	sumSquared  float64
	peak        float64
	smoothedRMS float64
}

func NewLevelMeter(windowSize int) *LevelMeter {
	if windowSize <= 0 {
		windowSize = 4800 // 100ms at 48kHz
	}
	return &LevelMeter{windowSize: windowSize}
}

// PushSamples folds new samples into the sliding RMS window and updates the
// decaying peak.
func (m *LevelMeter) PushSamples(samples []float32) {
	if len(samples) == 0 {
		return
	}
	f64 := make([]float64, len(samples))
	for i, s := range samples {
		f64[i] = float64(s)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sumSq := floats.Dot(f64, f64)
	m.sumSquared += sumSq
	m.window = append(m.window, f64...)
	for len(m.window) > m.windowSize {
		drop := m.window[0]
		m.sumSquared -= drop * drop
		m.window = m.window[1:]
	}
	if m.sumSquared < 0 {
		m.sumSquared = 0
	}

	localPeak := 0.0
	for _, v := range f64 {
		a := math.Abs(v)
		if a > localPeak {
			localPeak = a
		}
	}
	m.peak *= peakDecay
	if localPeak > m.peak {
		m.peak = localPeak
	}

	rms := m.rmsLocked()
	m.smoothedRMS = m.smoothedRMS*(1-smoothing) + rms*smoothing
}

func (m *LevelMeter) rmsLocked() float64 {
	if len(m.window) == 0 {
		return 0
	}
	return math.Sqrt(m.sumSquared / float64(len(m.window)))
}

func (m *LevelMeter) GetRMS() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rmsLocked()
}

func (m *LevelMeter) GetSmoothedRMS() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.smoothedRMS
}

func dbFromRMS(rms float64) float64 {
	if rms <= 0 {
		return -100
	}
	db := 20 * math.Log10(rms)
	if db < -100 {
		return -100
	}
	return db
}

// GetLevel returns a UI-facing level in [0,1], mapped from dB range [-60,0].
func (m *LevelMeter) GetLevel() float64 {
	db := dbFromRMS(m.GetRMS())
	return clamp01((db + 60) / 60)
}

func (m *LevelMeter) GetSmoothedLevel() float64 {
	db := dbFromRMS(m.GetSmoothedRMS())
	return clamp01((db + 60) / 60)
}

func (m *LevelMeter) GetDB() float64 {
	return dbFromRMS(m.GetRMS())
}

func (m *LevelMeter) GetPeak() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}

func (m *LevelMeter) GetPeakDB() float64 {
	m.mu.Lock()
	peak := m.peak
	m.mu.Unlock()
	return dbFromRMS(peak)
}

func (m *LevelMeter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.window = nil
	m.sumSquared = 0
	m.peak = 0
	m.smoothedRMS = 0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
