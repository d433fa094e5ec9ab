package audio

import (
	"math"
	"testing"
)

func TestResamplerOutputRateRatio(t *testing.T) {
	r := NewResampler(48000, 1)
	input := make([]float32, 4800) // 100ms at 48kHz
	for i := range input {
		input[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 48000))
	}
	out := r.Process(input)
	want := 1600 // 100ms at 16kHz
	if len(out) < want-2 || len(out) > want+2 {
		t.Fatalf("len(out) = %d, want ~%d", len(out), want)
	}
}

func TestResamplerStereoFoldsToMono(t *testing.T) {
	r := NewResampler(48000, 2)
	input := []float32{1.0, -1.0, 0.5, -0.5} // two stereo frames, each averages to 0
	out := r.Process(input)
	for _, s := range out {
		if math.Abs(float64(s)) > 1e-6 {
			t.Fatalf("expected near-zero mono samples, got %v", s)
		}
	}
}

func TestResamplerResetClearsState(t *testing.T) {
	r := NewResampler(48000, 1)
	r.Process([]float32{0.1, 0.2, 0.3})
	r.Reset()
	if len(r.pending) != 0 || r.position != 0 {
		t.Fatalf("Reset did not clear pending/position")
	}
}

func TestResamplerRoundTripErrorBounded(t *testing.T) {
	r := NewResampler(48000, 1)
	const n = 48000
	input := make([]float32, n)
	for i := range input {
		input[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 48000))
	}
	down := r.Process(input)

	back := NewResampler(16000, 1)
	back.outputRate = 48000
	back.ratio = 16000.0 / 48000.0
	up := back.Process(down)

	n2 := len(input)
	if len(up) < n2 {
		n2 = len(up)
	}
	var sumSq float64
	for i := 0; i < n2; i++ {
		d := float64(input[i]) - float64(up[i])
		sumSq += d * d
	}
	mse := sumSq / float64(n2)
	if mse > 0.5 {
		t.Fatalf("round-trip MSE too high: %v", mse)
	}
}
