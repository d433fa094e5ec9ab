package session

import (
	"testing"

	"scribecore/audio"
)

func block(level float32) *audio.Block {
	samples := make([]float32, 100)
	for i := range samples {
		samples[i] = level
	}
	return &audio.Block{Samples: samples, SampleRate: 16000, Channels: 1}
}

func TestArbitratorPicksOnlyActiveSource(t *testing.T) {
	a := NewArbitrator()
	_, label := a.Pick(block(0.1), block(0.0))
	if label != SourceMic {
		t.Fatalf("expected mic pick, got %s", label)
	}
}

func TestArbitratorRequiresHysteresisMargin(t *testing.T) {
	a := NewArbitrator()
	// Both active, levels 0.0005 apart (first sys louder, then mic), within
	// the 0.002 dead-band: should not flip away from the default initial pick.
	_, first := a.Pick(block(0.01), block(0.0105))
	_, second := a.Pick(block(0.0105), block(0.01))
	if first != second {
		t.Fatalf("expected dead-band to stick with previous pick, got %s then %s", first, second)
	}
}

func TestArbitratorSwitchesBeyondHysteresis(t *testing.T) {
	a := NewArbitrator()
	_, first := a.Pick(block(0.1), block(0.005))
	if first != SourceMic {
		t.Fatalf("expected initial mic pick, got %s", first)
	}
	_, second := a.Pick(block(0.1), block(0.2))
	if second != SourceSystem {
		t.Fatalf("expected switch to system once margin exceeded, got %s", second)
	}
}

func TestArbitratorDoesNotSwitchMidUtterance(t *testing.T) {
	a := NewArbitrator()
	a.Pick(block(0.1), block(0.0))
	a.SetInUtterance(true)
	_, label := a.Pick(block(0.0), block(0.5))
	if label != SourceMic {
		t.Fatalf("expected pick to stay pinned to mic mid-utterance, got %s", label)
	}
}

func TestMergeForASRAveragesSamples(t *testing.T) {
	mic := &audio.Block{Samples: []float32{1.0, 1.0}, SampleRate: 16000}
	sys := &audio.Block{Samples: []float32{0.0, 0.0}, SampleRate: 16000}
	mixed := MergeForASR(mic, sys)
	for _, s := range mixed.Samples {
		if s != 0.5 {
			t.Fatalf("expected mixed sample 0.5, got %v", s)
		}
	}
}
