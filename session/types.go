package session

import (
	"errors"
	"time"
)

// Status is the recording session state machine. Only the transitions
// accepted by CanTransition are legal; everything else is rejected.
type Status string

const (
	StatusCreated   Status = "created"
	StatusRecording Status = "recording"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// SourceLabel tags which audio source produced a block or segment after
// arbitration (§4.6).
type SourceLabel string

const (
	SourceMic    SourceLabel = "mic"
	SourceSystem SourceLabel = "system"
	SourceMixed  SourceLabel = "mixed"
)

// Tier names a recognition pass as carried on the wire and in persisted
// transcript segments.
type Tier string

const (
	Tier0 Tier = "tier0"
	Tier1 Tier = "tier1"
	Tier2 Tier = "tier2"
	Tier3 Tier = "tier3"
)

// ASRProvider selects the Tier-1 streaming recognizer implementation.
type ASRProvider string

const (
	ProviderLocal         ASRProvider = "local"
	ProviderDeepgram      ASRProvider = "deepgram"
	ProviderOpenAIWhisper ASRProvider = "openai_whisper"
)

var (
	ErrInvalidTransition = errors.New("session: invalid state transition")
	ErrAlreadyActive     = errors.New("session: already active")
	ErrNotFound          = errors.New("session: not found")
	ErrNoAudioSource     = errors.New("session: no audio source available")
)

// WordTimestamp is a single recognized word with its span and confidence.
type WordTimestamp struct {
	Word       string  `json:"word"`
	StartS     float64 `json:"start_s"`
	EndS       float64 `json:"end_s"`
	Confidence float32 `json:"confidence"`
}

// TranscriptSegment is the persisted, append-only unit of transcript
// output (§3, "Transcript segment (persisted)").
type TranscriptSegment struct {
	ID         string          `json:"id"`
	StartTimeS float64         `json:"start_time_s"`
	EndTimeS   float64         `json:"end_time_s"`
	Text       string          `json:"text"`
	IsFinal    bool            `json:"is_final"`
	Confidence *float32        `json:"confidence,omitempty"`
	Source     SourceLabel     `json:"source"`
	Language   string          `json:"language,omitempty"`
	Words      []WordTimestamp `json:"words,omitempty"`
	CreatedAt  string          `json:"created_at_iso8601"`
	Tier       Tier            `json:"tier"`
}

// ProviderConfig carries the API key, endpoint, and formatting knobs for
// a cloud ASR provider (§6 asr_provider_config). InterimResults is stored
// but not passed to any recognizer; the Deepgram provider always requests
// interim results.
type ProviderConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Language       string
	Punctuate      bool
	SmartFormat    bool
	InterimResults bool
}

// SchedulerMode selects which Tier-2 scheduling strategy the loop uses
// (Open Question b): periodic batching is the default, delayed-refine
// is the alternative.
type SchedulerMode string

const (
	SchedulerPeriodic SchedulerMode = "periodic"
	SchedulerDelayed  SchedulerMode = "delayed"
)

// Config is the per-session configuration consumed at session start
// (§6 "Configuration keys consumed by the core").
type Config struct {
	UseMicrophone     bool
	UseSystemAudio    bool
	MergeForASR       bool
	VADSensitivity    float64
	MicDeviceID       string
	SystemSourceID    string
	ASRProvider       ASRProvider
	ASRProviderConfig ProviderConfig
	SchedulerMode     SchedulerMode
	Language          string
	ModelDir          string
	VADModelPath      string
	Tier2ModelDir     string
	Priority          int
}

// DefaultConfig returns a session configuration with the spec's stated
// defaults: local microphone only, periodic Tier-2 scheduling, neutral
// VAD sensitivity.
func DefaultConfig() Config {
	return Config{
		UseMicrophone:  true,
		UseSystemAudio: false,
		MergeForASR:    false,
		VADSensitivity: 0.5,
		ASRProvider:    ProviderLocal,
		SchedulerMode:  SchedulerPeriodic,
	}
}

// Stats are the rolling counters carried in session metadata.
type Stats struct {
	DurationS    float64 `json:"duration_s"`
	WordCount    int     `json:"word_count"`
	SegmentCount int     `json:"segment_count"`
}

// Meta is the persisted, non-audio session record.
type Meta struct {
	ID          string     `json:"id"`
	ModeID      string     `json:"mode_id,omitempty"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ErrorMsg    string     `json:"error,omitempty"`
	Stats       Stats      `json:"stats"`
}

// transitions enumerates every legal state change. Any state may move to
// StatusError; that edge is checked separately in CanTransition.
var transitions = map[Status][]Status{
	StatusCreated:   {StatusRecording},
	StatusRecording: {StatusPaused, StatusCompleted},
	StatusPaused:    {StatusRecording, StatusCompleted},
	StatusCompleted: {},
	StatusError:     {},
}

// CanTransition reports whether from -> to is a legal state change.
func CanTransition(from, to Status) bool {
	if to == StatusError {
		return from != StatusCompleted && from != StatusError
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
