package asr

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// LocalConfig locates the on-device streaming model directory (§6 artifact
// layout: files are probed by substring for encoder/decoder/joiner/tokens).
type LocalConfig struct {
	ModelDir   string
	NumThreads int
	Provider   string // cpu, coreml, cuda
	Language   string
}

// LocalRecognizer is the on-device streaming Tier-1 provider: fully
// streaming, sub-300ms partial latency, no fallback target of its own.
type LocalRecognizer struct {
	mu sync.Mutex

	recognizer *sherpa.OnlineRecognizer
	stream     *sherpa.OnlineStream

	processedSamples int64
	sampleRate       int

	lastPartial string
}

var ErrModelLoad = errors.New("asr: model load error")

func probeModelFile(dir, substring string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.Contains(e.Name(), substring) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("%w: no file matching %q in %s", ErrModelLoad, substring, dir)
}

func NewLocalRecognizer(cfg LocalConfig) (recognizer *LocalRecognizer, err error) {
	defer func() {
		if r := recover(); r != nil {
			recognizer = nil
			err = fmt.Errorf("asr: panic constructing local recognizer: %v", r)
		}
	}()

	encoder, err := probeModelFile(cfg.ModelDir, "encoder")
	if err != nil {
		return nil, err
	}
	decoder, err := probeModelFile(cfg.ModelDir, "decoder")
	if err != nil {
		return nil, err
	}
	joiner, err := probeModelFile(cfg.ModelDir, "joiner")
	if err != nil {
		return nil, err
	}
	tokens, err := probeModelFile(cfg.ModelDir, "tokens")
	if err != nil {
		return nil, err
	}

	provider := cfg.Provider
	if provider == "" {
		provider = "cpu"
	}
	numThreads := cfg.NumThreads
	if numThreads <= 0 {
		numThreads = 2
	}

	config := &sherpa.OnlineRecognizerConfig{
		ModelConfig: sherpa.OnlineModelConfig{
			Transducer: sherpa.OnlineTransducerModelConfig{
				Encoder: encoder,
				Decoder: decoder,
				Joiner:  joiner,
			},
			Tokens:     tokens,
			NumThreads: numThreads,
			Provider:   provider,
		},
		DecodingMethod:     "greedy_search",
		EnableEndpoint:     1,
		Rule1MinTrailingSilence: 2.4,
		Rule2MinTrailingSilence: 1.2,
		Rule3MinUtteranceLength: 20,
	}

	rec := sherpa.NewOnlineRecognizer(config)
	if rec == nil {
		return nil, fmt.Errorf("asr: failed to construct local recognizer from %s", cfg.ModelDir)
	}

	stream := sherpa.NewOnlineStream(rec)

	return &LocalRecognizer{
		recognizer: rec,
		stream:     stream,
		sampleRate: vadSampleRate,
	}, nil
}

const vadSampleRate = 16000

func (r *LocalRecognizer) AcceptWaveform(samples []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stream.AcceptWaveform(r.sampleRate, samples)
	for r.recognizer.IsReady(r.stream) {
		r.recognizer.Decode(r.stream)
	}
	r.processedSamples += int64(len(samples))
	return nil
}

func (r *LocalRecognizer) GetResult() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	text := r.recognizer.GetResult(r.stream).Text
	if text == r.lastPartial {
		return Empty()
	}
	r.lastPartial = text
	if strings.TrimSpace(text) == "" {
		return Empty()
	}
	return Partial(text, 0)
}

func (r *LocalRecognizer) IsEndpoint() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recognizer.IsEndpoint(r.stream)
}

// Finalize never fails on-device; the on-device decode loop has no
// transient I/O to report, so it always returns a nil error.
func (r *LocalRecognizer) Finalize() (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stream.InputFinished()
	for r.recognizer.IsReady(r.stream) {
		r.recognizer.Decode(r.stream)
	}
	text := r.recognizer.GetResult(r.stream).Text
	r.recognizer.Reset(r.stream)
	r.lastPartial = ""
	if strings.TrimSpace(text) == "" {
		return Empty(), nil
	}
	return Final(text, 0.9, 0), nil
}

// Reset forgets the current utterance only.
func (r *LocalRecognizer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recognizer.Reset(r.stream)
	r.lastPartial = ""
}

// FullReset forgets everything, including session-level counters.
func (r *LocalRecognizer) FullReset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recognizer.Reset(r.stream)
	r.lastPartial = ""
	r.processedSamples = 0
}

func (r *LocalRecognizer) ProcessedDurationS() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return float64(r.processedSamples) / float64(r.sampleRate)
}

func (r *LocalRecognizer) ProviderKind() ProviderKind { return ProviderLocal }

func (r *LocalRecognizer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stream != nil {
		sherpa.DeleteOnlineStream(r.stream)
		r.stream = nil
	}
	if r.recognizer != nil {
		sherpa.DeleteOnlineRecognizer(r.recognizer)
		r.recognizer = nil
	}
}
