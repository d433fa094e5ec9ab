package vad

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"
)

const (
	frameSize     = SampleRate * 30 / 1000 // 30ms frames
	frameSecs     = float64(frameSize) / float64(SampleRate)
	noiseFloorMin = 1e-6
	noiseRiseRate = 0.01 // slow rise
	noiseFallRate = 0.2  // fast fall
)

// EnergyDetector is the fallback VAD: RMS-per-frame with an adaptive
// noise floor and an SNR-to-probability sigmoid, used when no neural model
// is available.
type EnergyDetector struct {
	mu sync.Mutex

	params     Params
	noiseFloor float64

	pending []float32
	clockS  float64

	inSpeech     bool
	speechStart  float64
	speechFrames []float32
	speechRun    int
	silenceRun   int
}

func NewEnergyDetector(sensitivity Sensitivity) *EnergyDetector {
	return &EnergyDetector{
		params:     sensitivity.Resolve(),
		noiseFloor: noiseFloorMin,
	}
}

func frameRMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	squares := make([]float64, len(samples))
	for i, s := range samples {
		v := float64(s)
		squares[i] = v * v
	}
	return math.Sqrt(stat.Mean(squares, nil))
}

func snrProbability(snrDB float64) float64 {
	return 1 / (1 + math.Exp(-0.3*(snrDB-10)))
}

func (d *EnergyDetector) Process(samples []float32) []Segment {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = append(d.pending, samples...)
	var out []Segment

	minSilenceFrames := int(d.params.MinSilenceDurationS / frameSecs)
	minSpeechFrames := int(d.params.MinSpeechDurationS / frameSecs)
	maxSpeechFrames := int(d.params.MaxSpeechDurationS / frameSecs)

	for len(d.pending) >= frameSize {
		frame := d.pending[:frameSize]
		d.pending = d.pending[frameSize:]

		energy := frameRMS(frame)

		if energy < d.noiseFloor {
			d.noiseFloor = d.noiseFloor*(1-noiseFallRate) + energy*noiseFallRate
		} else {
			d.noiseFloor = d.noiseFloor*(1-noiseRiseRate) + energy*noiseRiseRate
		}
		if d.noiseFloor < noiseFloorMin {
			d.noiseFloor = noiseFloorMin
		}

		snrDB := 20 * math.Log10((energy+noiseFloorMin)/d.noiseFloor)
		prob := snrProbability(snrDB)
		isSpeech := prob >= d.params.Threshold

		if isSpeech {
			d.silenceRun = 0
			d.speechRun++
			if !d.inSpeech && d.speechRun >= minSpeechFrames {
				d.inSpeech = true
				d.speechStart = d.clockS - float64(d.speechRun-1)*frameSecs
				d.speechFrames = nil
			}
			if d.inSpeech {
				d.speechFrames = append(d.speechFrames, frame...)
				if len(d.speechFrames)/frameSize >= maxSpeechFrames {
					out = append(out, d.closeUtterance(d.clockS+frameSecs))
				}
			}
		} else {
			d.speechRun = 0
			if d.inSpeech {
				d.silenceRun++
				d.speechFrames = append(d.speechFrames, frame...)
				if d.silenceRun >= minSilenceFrames {
					out = append(out, d.closeUtterance(d.clockS+frameSecs-float64(d.silenceRun)*frameSecs))
				}
			}
		}

		d.clockS += frameSecs
	}

	return out
}

func (d *EnergyDetector) closeUtterance(endS float64) Segment {
	seg := Segment{StartTimeS: d.speechStart, EndTimeS: endS, Samples: d.speechFrames}
	d.inSpeech = false
	d.speechFrames = nil
	d.speechRun = 0
	d.silenceRun = 0
	return seg
}

func (d *EnergyDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = nil
	d.inSpeech = false
	d.speechFrames = nil
	d.speechRun = 0
	d.silenceRun = 0
}

func (d *EnergyDetector) InSpeech() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inSpeech
}
