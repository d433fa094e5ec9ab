// Package tier2 implements the offline, higher-accuracy recognizer used for
// asynchronous refinement (§4.8). It is synchronous and has no streaming
// state: one call in, one result out.
package tier2

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"scribecore/asr"
)

var ErrModelLoad = errors.New("tier2: model load error")

// Config locates a SenseVoice-style offline model directory: model.onnx or
// model.int8.onnx plus tokens.txt (§6 artifact layout).
type Config struct {
	ModelDir            string
	NumThreads          int
	Provider            string
	Language            string
	EnablePunctuation   bool
	Timeout             time.Duration
}

func DefaultConfig(modelDir string) Config {
	return Config{ModelDir: modelDir, NumThreads: 2, Provider: "cpu", Timeout: 10 * time.Second}
}

func findModelFile(dir string) (string, error) {
	preferred := []string{"model.int8.onnx", "model.onnx"}
	for _, name := range preferred {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	for _, e := range entries {
		if !e.IsDir() && strings.Contains(e.Name(), "model.onnx") {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("%w: no model.onnx/model.int8.onnx in %s", ErrModelLoad, dir)
}

// OfflineRecognizer wraps a SenseVoice-style sherpa-onnx offline recognizer.
// Every call constructs a fresh stream; the recognizer itself is guarded by
// a mutex so at most one recognition runs at a time (§5 shared-resource
// policy).
type OfflineRecognizer struct {
	mu         sync.Mutex
	recognizer *sherpa.OfflineRecognizer
	sampleRate int

	processedSamples int64
}

func NewOfflineRecognizer(cfg Config) (or *OfflineRecognizer, err error) {
	defer func() {
		if r := recover(); r != nil {
			or = nil
			err = fmt.Errorf("%w: panic: %v", ErrModelLoad, r)
		}
	}()

	modelPath, err := findModelFile(cfg.ModelDir)
	if err != nil {
		return nil, err
	}
	tokensPath := filepath.Join(cfg.ModelDir, "tokens.txt")
	if _, statErr := os.Stat(tokensPath); statErr != nil {
		return nil, fmt.Errorf("%w: tokens.txt not found in %s", ErrModelLoad, cfg.ModelDir)
	}

	provider := cfg.Provider
	if provider == "" {
		provider = "cpu"
	}
	numThreads := cfg.NumThreads
	if numThreads <= 0 {
		numThreads = 2
	}

	config := &sherpa.OfflineRecognizerConfig{
		ModelConfig: sherpa.OfflineModelConfig{
			SenseVoice: sherpa.OfflineSenseVoiceModelConfig{
				Model:    modelPath,
				Language: cfg.Language,
				UseInverseTextNormalization: boolToInt(cfg.EnablePunctuation),
			},
			Tokens:     tokensPath,
			NumThreads: numThreads,
			Provider:   provider,
		},
	}

	rec := sherpa.NewOfflineRecognizer(config)
	if rec == nil {
		return nil, fmt.Errorf("%w: failed to construct offline recognizer from %s", ErrModelLoad, cfg.ModelDir)
	}

	return &OfflineRecognizer{recognizer: rec, sampleRate: 16000}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Recognize runs one synchronous offline pass over samples. Callers are
// expected to run this on a blocking pool and enforce the per-call timeout
// themselves (the scheduler, §4.10).
func (o *OfflineRecognizer) Recognize(samples []float32) asr.Result {
	o.mu.Lock()
	defer o.mu.Unlock()

	stream := sherpa.NewOfflineStream(o.recognizer)
	defer sherpa.DeleteOfflineStream(stream)

	stream.AcceptWaveform(o.sampleRate, samples)
	o.recognizer.Decode(stream)
	o.processedSamples += int64(len(samples))

	text := stream.GetResult().Text
	if strings.TrimSpace(text) == "" {
		return asr.Empty()
	}
	return asr.Final(text, 0.95, time.Now().UnixMilli())
}

func (o *OfflineRecognizer) ProcessedDurationS() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return float64(o.processedSamples) / float64(o.sampleRate)
}

func (o *OfflineRecognizer) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.processedSamples = 0
}

func (o *OfflineRecognizer) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.recognizer != nil {
		sherpa.DeleteOfflineRecognizer(o.recognizer)
		o.recognizer = nil
	}
}
