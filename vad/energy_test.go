package vad

import (
	"math"
	"testing"
)

func toneBurst(durationS float64, amplitude float32) []float32 {
	n := int(durationS * SampleRate)
	out := make([]float32, n)
	for i := range out {
		out[i] = amplitude * float32(math.Sin(2*math.Pi*440*float64(i)/SampleRate))
	}
	return out
}

func silence(durationS float64) []float32 {
	return make([]float32, int(durationS*SampleRate))
}

func TestEnergyDetectorSilenceProducesNoSegments(t *testing.T) {
	d := NewEnergyDetector(0.5)
	segs := d.Process(silence(2.0))
	if len(segs) != 0 {
		t.Fatalf("expected no segments on silence, got %d", len(segs))
	}
	if d.InSpeech() {
		t.Fatalf("detector should not be in speech after silence")
	}
}

func TestEnergyDetectorDetectsBurst(t *testing.T) {
	d := NewEnergyDetector(0.8) // higher sensitivity -> lower threshold, shorter min silence
	samples := append(silence(0.5), toneBurst(1.0, 0.3)...)
	samples = append(samples, silence(2.0)...)

	segs := d.Process(samples)
	if len(segs) == 0 {
		t.Fatalf("expected at least one segment for tone burst")
	}
	seg := segs[0]
	if seg.EndTimeS <= seg.StartTimeS {
		t.Fatalf("segment end %v must be after start %v", seg.EndTimeS, seg.StartTimeS)
	}
}

func TestEnergyDetectorResetClearsState(t *testing.T) {
	d := NewEnergyDetector(0.5)
	d.Process(toneBurst(0.5, 0.3))
	d.Reset()
	if d.InSpeech() {
		t.Fatalf("expected InSpeech false after Reset")
	}
	if len(d.pending) != 0 {
		t.Fatalf("expected pending cleared after Reset")
	}
}

func TestSensitivityResolveBounds(t *testing.T) {
	low := Sensitivity(0).Resolve()
	high := Sensitivity(1).Resolve()
	if low.Threshold <= high.Threshold {
		t.Fatalf("lower sensitivity should yield higher threshold: low=%v high=%v", low.Threshold, high.Threshold)
	}
	if low.Threshold > 0.8 || high.Threshold < 0.2 {
		t.Fatalf("threshold out of documented clamp range: low=%v high=%v", low.Threshold, high.Threshold)
	}
}
