package asr

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"
)

// CloudBatchConfig configures an OpenAI-Whisper-style batch provider: audio
// accumulates until finalization, then a single WAV payload is posted and
// one final result returned.
type CloudBatchConfig struct {
	APIKey     string
	BaseURL    string // defaults to https://api.openai.com/v1/audio/transcriptions
	Model      string // e.g. "whisper-1"
	Language   string
	SampleRate int
}

type openAITranscriptionResponse struct {
	Text string `json:"text"`
}

// CloudBatchRecognizer implements StreamingRecognizer by buffering all audio
// and only producing output at Finalize; AcceptWaveform never fails locally
// (errors only surface on the HTTP round trip), and GetResult/IsEndpoint are
// inert since this provider has no interim results.
type CloudBatchRecognizer struct {
	cfg CloudBatchConfig

	mu     sync.Mutex
	client *http.Client
	buffer []float32
}

func NewCloudBatchRecognizer(cfg CloudBatchConfig) (*CloudBatchRecognizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("asr: missing OpenAI API key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1/audio/transcriptions"
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	return &CloudBatchRecognizer{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (r *CloudBatchRecognizer) AcceptWaveform(samples []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffer = append(r.buffer, samples...)
	return nil
}

func (r *CloudBatchRecognizer) GetResult() Result { return Empty() }

func (r *CloudBatchRecognizer) IsEndpoint() bool { return false }

func encodeWAV(samples []float32, sampleRate int) []byte {
	var buf bytes.Buffer
	dataSize := len(samples) * 2
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	for _, s := range samples {
		v := int16(s * 32767)
		binary.Write(&buf, binary.LittleEndian, v)
	}
	return buf.Bytes()
}

// Finalize posts the buffered utterance as a single WAV payload and
// returns the transcription. Any HTTP/decode failure is returned as an
// error alongside an empty Result so the caller's fallback counter (§4.7)
// sees it exactly as it would an AcceptWaveform error — this provider has
// no streaming errors of its own, so Finalize is its only error source.
func (r *CloudBatchRecognizer) Finalize() (Result, error) {
	r.mu.Lock()
	samples := r.buffer
	r.buffer = nil
	r.mu.Unlock()

	if len(samples) == 0 {
		return Empty(), nil
	}

	wav := encodeWAV(samples, r.cfg.SampleRate)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return Empty(), fmt.Errorf("%w: build multipart form: %v", ErrRemoteTransient, err)
	}
	if _, err := part.Write(wav); err != nil {
		return Empty(), fmt.Errorf("%w: write wav payload: %v", ErrRemoteTransient, err)
	}
	writer.WriteField("model", r.cfg.Model)
	if r.cfg.Language != "" {
		writer.WriteField("language", r.cfg.Language)
	}
	writer.Close()

	req, err := http.NewRequest(http.MethodPost, r.cfg.BaseURL, &body)
	if err != nil {
		return Empty(), fmt.Errorf("%w: build request: %v", ErrRemoteTransient, err)
	}
	req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		return Empty(), fmt.Errorf("%w: transcription request: %v", ErrRemoteTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Empty(), fmt.Errorf("%w: transcription request: status %d", ErrRemoteTransient, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Empty(), fmt.Errorf("%w: read response: %v", ErrRemoteTransient, err)
	}
	var parsed openAITranscriptionResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Empty(), fmt.Errorf("%w: decode response: %v", ErrRemoteTransient, err)
	}

	if parsed.Text == "" {
		return Empty(), nil
	}
	return Final(parsed.Text, 0.9, time.Now().UnixMilli()), nil
}

func (r *CloudBatchRecognizer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffer = nil
}

func (r *CloudBatchRecognizer) FullReset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffer = nil
}

func (r *CloudBatchRecognizer) ProcessedDurationS() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return float64(len(r.buffer)) / float64(r.cfg.SampleRate)
}

func (r *CloudBatchRecognizer) ProviderKind() ProviderKind { return ProviderOpenAIWhisper }
