package vad

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	windowSize  = 512 // Silero VAD window at 16kHz
	contextSize = 64
	windowSecs  = float64(windowSize) / float64(SampleRate)
)

// NeuralDetector drives a small ONNX Silero VAD model in streaming mode:
// samples are accumulated into fixed windows, each window is scored, and a
// speech/silence state machine turns the score stream into utterance
// segments.
type NeuralDetector struct {
	mu sync.Mutex

	session *ort.DynamicAdvancedSession
	state   []float32
	context []float32

	params Params

	pending []float32
	clockS  float64

	inSpeech     bool
	speechStart  float64
	speechFrames []float32
	speechRun    int
	silenceRun   int
}

// NewNeuralDetector loads the Silero VAD ONNX model at modelPath. Construction
// runs behind a panic-recovery boundary, since the native ONNX loader may
// abort on a corrupted file; a panic is returned as ErrModelLoad.
func NewNeuralDetector(modelPath string, sensitivity Sensitivity) (det *NeuralDetector, err error) {
	defer func() {
		if r := recover(); r != nil {
			det, err = nil, fmt.Errorf("%w: panic: %v", ErrModelLoad, r)
		}
	}()
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}

	return &NeuralDetector{
		session: session,
		state:   make([]float32, 2*1*128),
		context: make([]float32, contextSize),
		params:  sensitivity.Resolve(),
	}, nil
}

func (d *NeuralDetector) scoreWindow(samples []float32) (float32, error) {
	input := make([]float32, contextSize+len(samples))
	copy(input[:contextSize], d.context)
	copy(input[contextSize:], samples)

	if len(samples) >= contextSize {
		copy(d.context, samples[len(samples)-contextSize:])
	} else {
		copy(d.context, d.context[len(samples):])
		copy(d.context[contextSize-len(samples):], samples)
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(input))), input)
	if err != nil {
		return 0, err
	}
	defer inputTensor.Destroy()

	stateTensor, err := ort.NewTensor(ort.NewShape(2, 1, 128), d.state)
	if err != nil {
		return 0, err
	}
	defer stateTensor.Destroy()

	srTensor, err := ort.NewTensor(ort.NewShape(1), []int64{int64(SampleRate)})
	if err != nil {
		return 0, err
	}
	defer srTensor.Destroy()

	outputs := []ort.Value{nil, nil}
	if err := d.session.Run([]ort.Value{inputTensor, stateTensor, srTensor}, outputs); err != nil {
		return 0, err
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	outTensor := outputs[0].(*ort.Tensor[float32])
	stateNTensor := outputs[1].(*ort.Tensor[float32])
	copy(d.state, stateNTensor.GetData())

	data := outTensor.GetData()
	if len(data) == 0 {
		return 0, nil
	}
	return data[0], nil
}

// Process implements Detector.
func (d *NeuralDetector) Process(samples []float32) []Segment {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = append(d.pending, samples...)
	var out []Segment

	minSilenceFrames := int(d.params.MinSilenceDurationS / windowSecs)
	minSpeechFrames := int(d.params.MinSpeechDurationS / windowSecs)
	maxSpeechFrames := int(d.params.MaxSpeechDurationS / windowSecs)

	for len(d.pending) >= windowSize {
		window := d.pending[:windowSize]
		d.pending = d.pending[windowSize:]

		prob, err := d.scoreWindow(window)
		isSpeech := err == nil && float64(prob) >= d.params.Threshold

		if isSpeech {
			d.silenceRun = 0
			d.speechRun++
			if !d.inSpeech && d.speechRun >= minSpeechFrames {
				d.inSpeech = true
				d.speechStart = d.clockS - float64(d.speechRun-1)*windowSecs
				d.speechFrames = nil
			}
			if d.inSpeech {
				d.speechFrames = append(d.speechFrames, window...)
				if len(d.speechFrames)/windowSize >= maxSpeechFrames {
					out = append(out, d.closeUtterance(d.clockS+windowSecs))
				}
			}
		} else {
			d.speechRun = 0
			if d.inSpeech {
				d.silenceRun++
				d.speechFrames = append(d.speechFrames, window...)
				if d.silenceRun >= minSilenceFrames {
					out = append(out, d.closeUtterance(d.clockS+windowSecs-float64(d.silenceRun)*windowSecs))
				}
			}
		}

		d.clockS += windowSecs
	}

	return out
}

func (d *NeuralDetector) closeUtterance(endS float64) Segment {
	seg := Segment{StartTimeS: d.speechStart, EndTimeS: endS, Samples: d.speechFrames}
	d.inSpeech = false
	d.speechFrames = nil
	d.speechRun = 0
	d.silenceRun = 0
	return seg
}

func (d *NeuralDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.state {
		d.state[i] = 0
	}
	for i := range d.context {
		d.context[i] = 0
	}
	d.pending = nil
	d.inSpeech = false
	d.speechFrames = nil
	d.speechRun = 0
	d.silenceRun = 0
}

func (d *NeuralDetector) InSpeech() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inSpeech
}

func (d *NeuralDetector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != nil {
		d.session.Destroy()
		d.session = nil
	}
}
