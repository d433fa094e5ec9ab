package models

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Status is a model's download/readiness state as reported to callers.
type Status string

const (
	StatusNotDownloaded Status = "not_downloaded"
	StatusDownloading   Status = "downloading"
	StatusReady         Status = "ready"
	StatusError         Status = "error"
)

// State is a model's registry info joined with its on-disk status.
type State struct {
	Info
	Status   Status
	Progress float64
	Error    string
	Dir      string
}

// ProgressCallback reports download progress for a model id.
type ProgressCallback func(modelID string, progress float64, status Status, err error)

// Manager resolves model directories under a data root and drives
// downloads. Each model id maps to a directory under the root; readiness
// is determined by probing that directory's contents by substring (§6
// "Model artifact layout"), not by tracking exact filenames, since
// archives name their files however the upstream release does.
type Manager struct {
	dataRoot   string
	downloads  map[string]context.CancelFunc
	mu         sync.RWMutex
	onProgress ProgressCallback
}

// NewManager creates a Manager rooted at dataRoot, creating it if absent.
func NewManager(dataRoot string) (*Manager, error) {
	if err := os.MkdirAll(dataRoot, 0755); err != nil {
		return nil, fmt.Errorf("models: create data root: %w", err)
	}
	return &Manager{
		dataRoot:  dataRoot,
		downloads: make(map[string]context.CancelFunc),
	}, nil
}

func (m *Manager) SetProgressCallback(cb ProgressCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onProgress = cb
}

// Dir returns the directory a model id's artifacts live under.
func (m *Manager) Dir(modelID string) string {
	return filepath.Join(m.dataRoot, modelID)
}

// StreamingPaths probes dir for the encoder/decoder/joiner/tokens files a
// Tier-1 streaming recognizer needs, matching by substring per §6.
func StreamingPaths(dir string) (encoder, decoder, joiner, tokens string, ok bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", "", "", "", false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.ToLower(e.Name())
		full := filepath.Join(dir, e.Name())
		switch {
		case strings.Contains(name, "encoder"):
			encoder = full
		case strings.Contains(name, "decoder"):
			decoder = full
		case strings.Contains(name, "joiner"):
			joiner = full
		case strings.Contains(name, "tokens"):
			tokens = full
		}
	}
	ok = encoder != "" && decoder != "" && joiner != "" && tokens != ""
	return
}

// OfflinePaths probes dir for the offline Tier-2 model file (model.onnx
// or model.int8.onnx) plus tokens.txt, matching by substring per §6.
func OfflinePaths(dir string) (model, tokens string, ok bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", "", false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.ToLower(e.Name())
		full := filepath.Join(dir, e.Name())
		if strings.Contains(name, "model") && strings.HasSuffix(name, ".onnx") {
			model = full
		}
		if strings.Contains(name, "tokens") {
			tokens = full
		}
	}
	ok = model != "" && tokens != ""
	return
}

// VADPath probes dir for the silero_vad.onnx file, matching by substring
// per §6.
func VADPath(dir string) (path string, ok bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.Contains(strings.ToLower(e.Name()), "silero_vad") {
			return filepath.Join(dir, e.Name()), true
		}
	}
	return "", false
}

// IsReady reports whether modelID's directory already contains the files
// its Kind requires.
func (m *Manager) IsReady(modelID string) bool {
	info := ByID(modelID)
	if info == nil {
		return false
	}
	dir := m.Dir(modelID)
	switch info.Kind {
	case KindStreaming:
		_, _, _, _, ok := StreamingPaths(dir)
		return ok
	case KindOffline:
		_, _, ok := OfflinePaths(dir)
		return ok
	case KindVAD:
		_, ok := VADPath(dir)
		return ok
	default:
		return false
	}
}

// State returns the joined registry info and on-disk status for every
// known model.
func (m *Manager) State() []State {
	m.mu.RLock()
	downloading := make(map[string]bool, len(m.downloads))
	for id := range m.downloads {
		downloading[id] = true
	}
	m.mu.RUnlock()

	states := make([]State, len(Registry))
	for i, info := range Registry {
		s := State{Info: info, Dir: m.Dir(info.ID)}
		switch {
		case downloading[info.ID]:
			s.Status = StatusDownloading
		case m.IsReady(info.ID):
			s.Status = StatusReady
		default:
			s.Status = StatusNotDownloaded
		}
		states[i] = s
	}
	return states
}

// Download fetches modelID's artifacts into its directory, in the
// background, reporting progress through SetProgressCallback.
func (m *Manager) Download(modelID string) error {
	info := ByID(modelID)
	if info == nil {
		return fmt.Errorf("models: unknown model %q", modelID)
	}

	m.mu.Lock()
	if _, exists := m.downloads[modelID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("models: %s is already downloading", modelID)
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.downloads[modelID] = cancel
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.downloads, modelID)
			m.mu.Unlock()
		}()

		progressCb := func(progress float64) {
			m.notifyProgress(modelID, progress, StatusDownloading, nil)
		}

		dir := m.Dir(modelID)
		var err error
		switch {
		case info.ArchiveURL != "":
			err = DownloadAndExtractTarBz2(ctx, info.ArchiveURL, dir, info.SizeBytes, progressCb)
		case info.FileURL != "":
			err = DownloadFile(ctx, info.FileURL, filepath.Join(dir, info.FileName), info.SizeBytes, progressCb)
		default:
			err = fmt.Errorf("model %s has no download source", modelID)
		}

		if err != nil {
			if ctx.Err() == context.Canceled {
				log.Printf("models: download cancelled for %s", modelID)
				m.notifyProgress(modelID, 0, StatusNotDownloaded, nil)
				os.RemoveAll(dir)
			} else {
				log.Printf("models: download failed for %s: %v", modelID, err)
				m.notifyProgress(modelID, 0, StatusError, err)
			}
			return
		}

		log.Printf("models: download complete for %s", modelID)
		m.notifyProgress(modelID, 100, StatusReady, nil)
	}()

	return nil
}

// CancelDownload stops an in-flight download for modelID.
func (m *Manager) CancelDownload(modelID string) error {
	m.mu.Lock()
	cancel, exists := m.downloads[modelID]
	m.mu.Unlock()
	if !exists {
		return fmt.Errorf("models: %s is not downloading", modelID)
	}
	cancel()
	return nil
}

// Delete removes a downloaded model's directory.
func (m *Manager) Delete(modelID string) error {
	if !m.IsReady(modelID) {
		return fmt.Errorf("models: %s is not downloaded", modelID)
	}
	if err := os.RemoveAll(m.Dir(modelID)); err != nil {
		return fmt.Errorf("models: delete %s: %w", modelID, err)
	}
	log.Printf("models: deleted %s", modelID)
	return nil
}

func (m *Manager) notifyProgress(modelID string, progress float64, status Status, err error) {
	m.mu.RLock()
	cb := m.onProgress
	m.mu.RUnlock()
	if cb != nil {
		cb(modelID, progress, status, err)
	}
}
