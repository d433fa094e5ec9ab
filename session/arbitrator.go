package session

import (
	"math"

	"scribecore/audio"
)

const (
	arbitratorActiveRMS  = 0.005
	arbitratorHysteresis = 0.002
)

// Arbitrator implements the source-arbitration algorithm of §4.6: when a
// session has both a microphone and a system-audio stream and merging
// for ASR is disabled, it must settle on exactly one stream per tick.
type Arbitrator struct {
	picked      SourceLabel
	inUtterance bool
}

// NewArbitrator returns an arbitrator with no source picked yet.
func NewArbitrator() *Arbitrator {
	return &Arbitrator{}
}

// SetInUtterance pins the current pick while the VAD reports an ongoing
// speech segment on it; rule 4 forbids switching mid-utterance.
func (a *Arbitrator) SetInUtterance(v bool) {
	a.inUtterance = v
}

// Pick runs one arbitration tick. mic/sys may be nil when that source
// produced no block this tick. Returns the chosen block and its label,
// or (nil, "") if neither source is active and there is no prior pick.
func (a *Arbitrator) Pick(mic, sys *audio.Block) (*audio.Block, SourceLabel) {
	micRMS, sysRMS := 0.0, 0.0
	if mic != nil {
		micRMS = rms(mic.Samples)
	}
	if sys != nil {
		sysRMS = rms(sys.Samples)
	}
	micActive := mic != nil && micRMS > arbitratorActiveRMS
	sysActive := sys != nil && sysRMS > arbitratorActiveRMS

	if a.inUtterance && a.picked != "" {
		return a.blockFor(a.picked, mic, sys)
	}

	switch {
	case micActive && !sysActive:
		a.picked = SourceMic
	case sysActive && !micActive:
		a.picked = SourceSystem
	case micActive && sysActive:
		diff := micRMS - sysRMS
		switch {
		case diff > arbitratorHysteresis:
			a.picked = SourceMic
		case diff < -arbitratorHysteresis:
			a.picked = SourceSystem
		default:
			// inside the dead-band: stick with the previous pick if any
			if a.picked == "" {
				a.picked = SourceMic
			}
		}
	default:
		// neither active: keep last pick, no-op
	}

	if a.picked == "" {
		return nil, ""
	}
	return a.blockFor(a.picked, mic, sys)
}

func (a *Arbitrator) blockFor(label SourceLabel, mic, sys *audio.Block) (*audio.Block, SourceLabel) {
	switch label {
	case SourceMic:
		if mic == nil {
			return nil, ""
		}
		return mic, SourceMic
	case SourceSystem:
		if sys == nil {
			return nil, ""
		}
		return sys, SourceSystem
	default:
		return nil, ""
	}
}

// Reset clears the remembered pick and the in-utterance flag, forcing the
// next tick to choose fresh. The loop's source-switch path (rule 5) resets
// the recognizer, resampler and VAD but does not call Reset.
func (a *Arbitrator) Reset() {
	a.picked = ""
	a.inUtterance = false
}

// Picked returns the label currently held, or "" if none yet.
func (a *Arbitrator) Picked() SourceLabel {
	return a.picked
}

// MergeForASR mixes two same-rate blocks sample-by-sample by mean, per
// step 5 of the tick loop. Callers must ensure equal sample rates;
// on mismatch the loop falls back to preferring system audio.
func MergeForASR(mic, sys *audio.Block) *audio.Block {
	if mic == nil {
		return sys
	}
	if sys == nil {
		return mic
	}
	n := mic.Samples
	if len(sys.Samples) < len(n) {
		n = n[:len(sys.Samples)]
	}
	mixed := make([]float32, len(n))
	for i := range n {
		mixed[i] = (mic.Samples[i] + sys.Samples[i]) / 2
	}
	return &audio.Block{
		Samples:     mixed,
		SampleRate:  mic.SampleRate,
		Channels:    mic.Channels,
		TimestampMs: mic.TimestampMs,
	}
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
