// Package asr defines the Tier-1 streaming recognizer contract and its
// providers (local on-device, cloud streaming, cloud batch), plus the
// recognition result types shared with Tier-2 in asr/tier2.
package asr

import (
	"errors"
	"strings"
)

// WordTimestamp is one word-level alignment, when a provider supplies them.
type WordTimestamp struct {
	Word       string
	StartS     float64
	EndS       float64
	Confidence float64
}

// Result is the output of a single recognition call. The empty result
// (blank text) is distinguished and never published.
type Result struct {
	Text          string
	IsFinal       bool
	Confidence    float64
	WordTimestamps []WordTimestamp
	TimestampMs   int64
}

func Empty() Result { return Result{} }

func Partial(text string, timestampMs int64) Result {
	return Result{Text: text, IsFinal: false, TimestampMs: timestampMs}
}

func Final(text string, confidence float64, timestampMs int64) Result {
	return Result{Text: text, IsFinal: true, Confidence: confidence, TimestampMs: timestampMs}
}

func (r Result) IsEmpty() bool {
	return strings.TrimSpace(r.Text) == ""
}

// ProviderKind identifies a Tier-1 provider implementation, used by the
// fallback logic (nothing else in the core depends on provider identity).
type ProviderKind int

const (
	ProviderLocal ProviderKind = iota
	ProviderDeepgram
	ProviderOpenAIWhisper
)

func (k ProviderKind) String() string {
	switch k {
	case ProviderLocal:
		return "Local"
	case ProviderDeepgram:
		return "Deepgram"
	case ProviderOpenAIWhisper:
		return "OpenAiWhisper"
	default:
		return "Unknown"
	}
}

func (k ProviderKind) IsRemote() bool {
	return k != ProviderLocal
}

// StreamingRecognizer is the Tier-1 provider-polymorphic contract (§4.7).
// Finalize returns an error alongside its Result so a remote provider's
// HTTP/websocket failures at finalize time count toward the same
// consecutive-error fallback tracker as AcceptWaveform failures do — a
// provider's finalize path is just as much an "error source" as its
// streaming path (§4.7: accept_waveform/finalize/websocket-recv all count).
type StreamingRecognizer interface {
	AcceptWaveform(samples []float32) error
	GetResult() Result
	IsEndpoint() bool
	Finalize() (Result, error)
	Reset()
	FullReset()
	ProcessedDurationS() float64
	ProviderKind() ProviderKind
}

var (
	ErrRecognizerClosed = errors.New("asr: recognizer closed")
	ErrRemoteTransient   = errors.New("asr: remote transient failure")
)
