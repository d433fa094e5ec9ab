package session

import (
	"testing"

	"scribecore/asr"
	"scribecore/audio"
	"scribecore/eventbus"
)

type fakeAdapter struct {
	ch    chan audio.Block
	state audio.State
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{ch: make(chan audio.Block)}
}

func (f *fakeAdapter) List() ([]audio.SourceDescriptor, error) { return nil, nil }
func (f *fakeAdapter) Start(audio.SourceDescriptor) (<-chan audio.Block, error) {
	f.state = audio.StateRunning
	return f.ch, nil
}
func (f *fakeAdapter) Stop() error         { f.state = audio.StateStopped; return nil }
func (f *fakeAdapter) Pause() error        { f.state = audio.StatePaused; return nil }
func (f *fakeAdapter) Resume() error       { f.state = audio.StateRunning; return nil }
func (f *fakeAdapter) State() audio.State  { return f.state }
func (f *fakeAdapter) Stats() audio.Stats  { return audio.Stats{} }

type fakeRecognizer struct{}

func (fakeRecognizer) AcceptWaveform([]float32) error { return nil }
func (fakeRecognizer) GetResult() asr.Result           { return asr.Empty() }
func (fakeRecognizer) IsEndpoint() bool                { return false }
func (fakeRecognizer) Finalize() (asr.Result, error)   { return asr.Empty(), nil }
func (fakeRecognizer) Reset()                          {}
func (fakeRecognizer) FullReset()                      {}
func (fakeRecognizer) ProcessedDurationS() float64     { return 0 }
func (fakeRecognizer) ProviderKind() asr.ProviderKind  { return asr.ProviderLocal }

func buildFakeLoop(sessionID string, cfg Config) func(StoreHandle) (*Loop, error) {
	return func(handle StoreHandle) (*Loop, error) {
		return NewLoop(LoopDeps{
			SessionID:     sessionID,
			Config:        cfg,
			MicAdapter:    newFakeAdapter(),
			MicDescriptor: audio.SourceDescriptor{Kind: audio.SourceMicrophone},
			Recognizer:    fakeRecognizer{},
			Bus:           eventbus.New(),
			Handle:        handle,
		})
	}
}

func TestRegistryStartPauseResumeStop(t *testing.T) {
	bus := eventbus.New()
	r := NewRegistry(bus, nil)
	cfg := DefaultConfig()

	var id string
	first, err := r.Start(cfg, func(h StoreHandle) (*Loop, error) {
		return buildFakeLoop("dummy", cfg)(h)
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	id = first

	meta, ok := r.Meta(id)
	if !ok || meta.Status != StatusRecording {
		t.Fatalf("expected session recording after start, got %+v ok=%v", meta, ok)
	}

	if err := r.Pause(id); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	meta, _ = r.Meta(id)
	if meta.Status != StatusPaused {
		t.Fatalf("expected paused, got %s", meta.Status)
	}

	if err := r.Resume(id); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	meta, _ = r.Meta(id)
	if meta.Status != StatusRecording {
		t.Fatalf("expected recording after resume, got %s", meta.Status)
	}

	if err := r.Stop(id); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	meta, _ = r.Meta(id)
	if meta.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", meta.Status)
	}
}

func TestRegistryRejectsConcurrentMicrophoneAtEqualPriority(t *testing.T) {
	r := NewRegistry(eventbus.New(), nil)
	cfg := DefaultConfig()
	cfg.UseMicrophone = true

	id1, err := r.Start(cfg, buildFakeLoop("s1", cfg))
	if err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer r.Stop(id1)

	_, err = r.Start(cfg, buildFakeLoop("s2", cfg))
	if err == nil {
		t.Fatalf("expected second equal-priority microphone session to be rejected")
	}
}

func TestRegistryPreemptsLowerPriorityMicrophoneHolder(t *testing.T) {
	r := NewRegistry(eventbus.New(), nil)
	low := DefaultConfig()
	low.UseMicrophone = true
	low.Priority = 0

	high := DefaultConfig()
	high.UseMicrophone = true
	high.Priority = 10

	lowID, err := r.Start(low, buildFakeLoop("low", low))
	if err != nil {
		t.Fatalf("low priority Start: %v", err)
	}

	highID, err := r.Start(high, buildFakeLoop("high", high))
	if err != nil {
		t.Fatalf("high priority Start: %v", err)
	}

	meta, _ := r.Meta(lowID)
	if meta.Status != StatusPaused {
		t.Fatalf("expected low-priority session paused by preemption, got %s", meta.Status)
	}

	meta, _ = r.Meta(highID)
	if meta.Status != StatusRecording {
		t.Fatalf("expected high priority session recording, got %s", meta.Status)
	}
}
