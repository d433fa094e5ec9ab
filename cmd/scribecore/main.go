// Command scribecore wires the recognition core's collaborators together:
// audio capture, the model registry, the event bus and its UI bridge,
// transcript persistence, and the session registry.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/gen2brain/malgo"

	"scribecore/asr"
	"scribecore/asr/tier2"
	"scribecore/audio"
	"scribecore/eventbus"
	"scribecore/internal/config"
	"scribecore/models"
	"scribecore/persistence"
	"scribecore/session"
	"scribecore/vad"
)

func main() {
	cfg := config.Load()

	logFile := setupLogging(cfg.TraceLog)
	if logFile != nil {
		defer logFile.Close()
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("scribecore: create data dir: %v", err)
	}
	if err := os.MkdirAll(cfg.ModelsDir, 0755); err != nil {
		log.Fatalf("scribecore: create models dir: %v", err)
	}

	modelMgr, err := models.NewManager(cfg.ModelsDir)
	if err != nil {
		log.Fatalf("scribecore: create model manager: %v", err)
	}
	modelMgr.SetProgressCallback(func(id string, progress float64, status models.Status, err error) {
		log.Printf("models: %s %s %.0f%% %v", id, status, progress, err)
	})

	bus := eventbus.New()
	bridge := eventbus.NewBridge(bus)
	go func() {
		if err := bridge.Start(cfg.GRPCAddr); err != nil {
			log.Fatalf("scribecore: start event bridge: %v", err)
		}
	}()
	defer bridge.Stop()
	log.Printf("scribecore: event bridge listening on %s", cfg.GRPCAddr)

	store, err := persistence.NewFileStore(cfg.DataDir)
	if err != nil {
		log.Fatalf("scribecore: create transcript store: %v", err)
	}

	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Printf("malgo: %s", message)
	})
	if err != nil {
		log.Fatalf("scribecore: init audio context: %v", err)
	}
	defer malgoCtx.Uninit()

	registry := session.NewRegistry(bus, store)

	buildLoop := func(sessionCfg session.Config) func(session.StoreHandle) (*session.Loop, error) {
		return func(handle session.StoreHandle) (*session.Loop, error) {
			return buildSessionLoop(malgoCtx, bus, store, handle, sessionCfg)
		}
	}

	id, err := registry.Start(cfg.Session, buildLoop(cfg.Session))
	if err != nil {
		log.Fatalf("scribecore: start initial session: %v", err)
	}
	log.Printf("scribecore: session %s recording", id)

	select {}
}

// buildSessionLoop constructs the concrete adapters, recognizer, and VAD
// detector a Loop needs from a session.Config, then assembles the Loop.
func buildSessionLoop(malgoCtx *malgo.AllocatedContext, bus *eventbus.Bus, store session.Store, handle session.StoreHandle, cfg session.Config) (*session.Loop, error) {
	deps := session.LoopDeps{
		SessionID: handle.SessionID,
		Config:    cfg,
		Bus:       bus,
		Store:     store,
		Handle:    handle,
	}

	if cfg.UseMicrophone {
		deps.MicAdapter = audio.NewMicrophoneAdapter(malgoCtx)
		deps.MicDescriptor = audio.SourceDescriptor{Kind: audio.SourceMicrophone, DeviceID: cfg.MicDeviceID}
	}
	if cfg.UseSystemAudio {
		deps.SysAdapter = audio.NewSystemAdapter(malgoCtx)
		deps.SysDescriptor = audio.SourceDescriptor{Kind: audio.SourceSystem, DeviceID: cfg.SystemSourceID}
	}

	recognizer, err := buildRecognizer(cfg)
	if err != nil {
		return nil, fmt.Errorf("scribecore: build recognizer: %w", err)
	}
	deps.Recognizer = recognizer
	if cfg.ASRProvider != session.ProviderLocal {
		deps.FallbackFactory = func() (asr.StreamingRecognizer, error) {
			return asr.NewLocalRecognizer(asr.LocalConfig{ModelDir: cfg.ModelDir, NumThreads: 2, Provider: "cpu", Language: cfg.Language})
		}
	}

	if _, err := os.Stat(cfg.VADModelPath); err == nil {
		if det, err := vad.NewNeuralDetector(cfg.VADModelPath, vad.Sensitivity(cfg.VADSensitivity)); err == nil {
			deps.VAD = det
		} else {
			log.Printf("session %s: neural VAD unavailable (%v), using energy detector", handle.SessionID, err)
			deps.VAD = vad.NewEnergyDetector(vad.Sensitivity(cfg.VADSensitivity))
		}
	} else {
		deps.VAD = vad.NewEnergyDetector(vad.Sensitivity(cfg.VADSensitivity))
	}

	if tier2Rec, err := tier2.NewOfflineRecognizer(tier2.DefaultConfig(cfg.Tier2ModelDir)); err == nil {
		deps.Tier2Recognizer = tier2Rec
	} else {
		log.Printf("session %s: Tier-2 offline recognizer unavailable: %v", handle.SessionID, err)
	}

	return session.NewLoop(deps)
}

func buildRecognizer(cfg session.Config) (asr.StreamingRecognizer, error) {
	switch cfg.ASRProvider {
	case session.ProviderDeepgram:
		return asr.NewCloudStreamingRecognizer(asr.CloudStreamingConfig{
			APIKey:      cfg.ASRProviderConfig.APIKey,
			BaseURL:     cfg.ASRProviderConfig.BaseURL,
			Language:    cfg.ASRProviderConfig.Language,
			Model:       cfg.ASRProviderConfig.Model,
			Punctuate:   cfg.ASRProviderConfig.Punctuate,
			SmartFormat: cfg.ASRProviderConfig.SmartFormat,
			SampleRate:  vad.SampleRate,
		})
	case session.ProviderOpenAIWhisper:
		return asr.NewCloudBatchRecognizer(asr.CloudBatchConfig{
			APIKey:     cfg.ASRProviderConfig.APIKey,
			BaseURL:    cfg.ASRProviderConfig.BaseURL,
			Model:      cfg.ASRProviderConfig.Model,
			Language:   cfg.ASRProviderConfig.Language,
			SampleRate: vad.SampleRate,
		})
	default:
		return asr.NewLocalRecognizer(asr.LocalConfig{
			ModelDir:   cfg.ModelDir,
			NumThreads: 2,
			Provider:   "cpu",
			Language:   cfg.Language,
		})
	}
}

func setupLogging(path string) *os.File {
	if path == "" {
		return nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open trace log %s: %v\n", path, err)
		return nil
	}
	log.SetOutput(io.MultiWriter(os.Stdout, file))
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Printf("trace log attached: %s", path)
	return file
}
