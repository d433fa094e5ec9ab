package persistence

import (
	"path/filepath"
	"testing"

	"scribecore/session"
)

func TestAppendAndLoadTranscriptPreservesOrder(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	handle, err := store.CreateSession(session.Meta{ID: "s_1", Status: session.StatusRecording})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	for i := 0; i < 3; i++ {
		seg := session.TranscriptSegment{ID: "s_1_" + string(rune('a'+i)), Text: "hello"}
		if err := store.AppendTranscript(handle, seg); err != nil {
			t.Fatalf("AppendTranscript: %v", err)
		}
	}

	segments, err := store.LoadTranscript(handle)
	if err != nil {
		t.Fatalf("LoadTranscript: %v", err)
	}
	if len(segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segments))
	}
	if segments[0].ID != "s_1_a" || segments[2].ID != "s_1_c" {
		t.Fatalf("unexpected order: %+v", segments)
	}
}

func TestLoadConfigReturnsDefaultsWhenAbsent(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	cfg, err := store.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ASRProvider != session.ProviderLocal {
		t.Fatalf("expected default provider, got %+v", cfg)
	}
}

func TestSaveAndLoadConfigRoundTrips(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	cfg := session.DefaultConfig()
	cfg.VADSensitivity = 0.8
	if err := store.SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	loaded, err := store.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.VADSensitivity != 0.8 {
		t.Fatalf("expected sensitivity 0.8, got %v", loaded.VADSensitivity)
	}
}

func TestDeleteRemovesSessionDir(t *testing.T) {
	root := t.TempDir()
	store, err := NewFileStore(root)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	handle, err := store.CreateSession(session.Meta{ID: "s_1"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := store.Delete(handle); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.LoadTranscript(handle); err != nil {
		t.Fatalf("LoadTranscript after delete should not error: %v", err)
	}
	if matches, statErr := filepath.Glob(filepath.Join(root, "s_1", "*")); statErr != nil || len(matches) != 0 {
		t.Fatalf("expected session dir gone, glob found %v (err %v)", matches, statErr)
	}
}
