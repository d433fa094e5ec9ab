package asr

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// CloudStreamingConfig configures a Deepgram-style persistent streaming
// provider: binary PCM up, JSON interim/final events down.
type CloudStreamingConfig struct {
	APIKey       string
	BaseURL      string // defaults to wss://api.deepgram.com/v1/listen
	Language     string
	Model        string
	Punctuate    bool
	SmartFormat  bool
	SampleRate   int
}

type deepgramMessage struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// CloudStreamingRecognizer implements StreamingRecognizer over a persistent
// websocket. Because partial and final frames arrive on the same socket,
// finals are queued (§4.7 "pending-finals queue") so a caller polling
// GetResult more often than Finalize never drops one.
type CloudStreamingRecognizer struct {
	cfg CloudStreamingConfig

	mu            sync.Mutex
	conn          *websocket.Conn
	pendingFinals []Result
	lastPartial   string
	processedS    float64
	closed        bool
	// readErr is set once by readLoop on a ReadMessage failure (the
	// "websocket-recv" error source of §4.7) and surfaced on the next
	// AcceptWaveform/Finalize call, since the read goroutine itself has
	// no caller to return an error to.
	readErr error
}

func NewCloudStreamingRecognizer(cfg CloudStreamingConfig) (*CloudStreamingRecognizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("asr: missing Deepgram API key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "wss://api.deepgram.com/v1/listen"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("asr: invalid base url: %w", err)
	}
	q := u.Query()
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	q.Set("channels", "1")
	q.Set("interim_results", "true")
	if cfg.Language != "" {
		q.Set("language", cfg.Language)
	}
	if cfg.Model != "" {
		q.Set("model", cfg.Model)
	}
	if cfg.Punctuate {
		q.Set("punctuate", "true")
	}
	if cfg.SmartFormat {
		q.Set("smart_format", "true")
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Token "+cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("%w: dial deepgram: %v", ErrRemoteTransient, err)
	}

	r := &CloudStreamingRecognizer{cfg: cfg, conn: conn}
	go r.readLoop()
	return r, nil
}

func (r *CloudStreamingRecognizer) readLoop() {
	for {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			r.mu.Lock()
			r.readErr = fmt.Errorf("%w: websocket recv: %v", ErrRemoteTransient, err)
			r.mu.Unlock()
			return
		}
		var msg deepgramMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if len(msg.Channel.Alternatives) == 0 {
			continue
		}
		alt := msg.Channel.Alternatives[0]

		r.mu.Lock()
		if msg.IsFinal || msg.SpeechFinal {
			if alt.Transcript != "" {
				r.pendingFinals = append(r.pendingFinals, Final(alt.Transcript, alt.Confidence, time.Now().UnixMilli()))
			}
		} else {
			r.lastPartial = alt.Transcript
		}
		r.mu.Unlock()
	}
}

func float32ToPCM16LE(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int16(s * 32767)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

func (r *CloudStreamingRecognizer) AcceptWaveform(samples []float32) error {
	r.mu.Lock()
	conn := r.conn
	readErr := r.readErr
	r.processedS += float64(len(samples)) / float64(r.cfg.SampleRate)
	r.mu.Unlock()

	if readErr != nil {
		return readErr
	}
	if conn == nil {
		return ErrRecognizerClosed
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, float32ToPCM16LE(samples)); err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteTransient, err)
	}
	return nil
}

func (r *CloudStreamingRecognizer) GetResult() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastPartial == "" {
		return Empty()
	}
	return Partial(r.lastPartial, time.Now().UnixMilli())
}

func (r *CloudStreamingRecognizer) IsEndpoint() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pendingFinals) > 0
}

// Finalize drains the oldest queued final. When Deepgram's own is_final/
// speech_final hasn't arrived yet — VAD's endpoint routinely precedes it —
// it falls back to returning the accumulated partial as a final at
// confidence 0.5 rather than losing the utterance outright. Only once
// there is neither a queued final nor a partial does it report the sticky
// websocket-recv error, if any, so the caller's fallback counter sees it.
func (r *CloudStreamingRecognizer) Finalize() (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pendingFinals) > 0 {
		result := r.pendingFinals[0]
		r.pendingFinals = r.pendingFinals[1:]
		r.lastPartial = ""
		return result, nil
	}
	if r.lastPartial != "" {
		result := Final(r.lastPartial, 0.5, time.Now().UnixMilli())
		r.lastPartial = ""
		return result, nil
	}
	return Empty(), r.readErr
}

func (r *CloudStreamingRecognizer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastPartial = ""
	r.pendingFinals = nil
}

func (r *CloudStreamingRecognizer) FullReset() {
	r.Reset()
}

func (r *CloudStreamingRecognizer) ProcessedDurationS() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processedS
}

func (r *CloudStreamingRecognizer) ProviderKind() ProviderKind { return ProviderDeepgram }

func (r *CloudStreamingRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
