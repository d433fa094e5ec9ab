// Package config loads process-wide and per-session-default configuration
// from flags, matching the keys enumerated in the core's external
// interfaces (§6 "Configuration keys consumed by the core").
package config

import (
	"flag"
	"path/filepath"
	"runtime"

	"scribecore/session"
)

// Config holds process-wide settings plus the default session.Config
// applied to sessions that don't override a field explicitly.
type Config struct {
	DataDir   string
	ModelsDir string
	GRPCAddr  string
	TraceLog  string

	Session session.Config
}

func Load() *Config {
	dataDir := flag.String("data", "data/sessions", "directory for session transcript storage")
	modelsDir := flag.String("models", "", "directory for downloaded models (default: dataDir/../models)")
	grpcAddr := flag.String("grpc-addr", defaultGRPCAddress(), `event bridge listen address (unix:/path/to.sock or npipe:\\.\pipe\name)`)
	traceLog := flag.String("trace-log", "", "path to append diagnostic logs to, in addition to stdout")

	useMic := flag.Bool("use-microphone", true, "capture from the microphone")
	useSystem := flag.Bool("use-system-audio", false, "capture system/loopback audio")
	mergeForASR := flag.Bool("merge-for-asr", false, "average mic and system audio into one ASR stream instead of arbitrating")
	vadSensitivity := flag.Float64("vad-sensitivity", 0.5, "voice-activity detector sensitivity, 0-1")
	micDeviceID := flag.String("mic-device-id", "", "microphone device id override")
	systemSourceID := flag.String("system-source-id", "", "system/application audio source id override")
	asrProvider := flag.String("asr-provider", "Local", "Tier-1 ASR provider: Local, Deepgram, or OpenAiWhisper")
	language := flag.String("language", "en", "recognition language hint")
	modelDir := flag.String("model-dir", "", "Tier-1 streaming model directory (default: modelsDir/<provider default>)")
	vadModelPath := flag.String("vad-model", "", "Silero VAD model path (default: modelsDir/vad-silero/silero_vad.onnx)")
	tier2ModelDir := flag.String("tier2-model-dir", "", "Tier-2 offline model directory (default: modelsDir/offline-sense-voice)")
	schedulerMode := flag.String("scheduler-mode", "periodic", "Tier-2 scheduling strategy: periodic or delayed")

	apiKey := flag.String("asr-api-key", "", "API key for a remote ASR provider")
	baseURL := flag.String("asr-base-url", "", "base URL override for a remote ASR provider")
	model := flag.String("asr-model", "", "model name for a remote ASR provider")
	punctuate := flag.Bool("asr-punctuate", true, "request punctuation from a remote ASR provider")
	smartFormat := flag.Bool("asr-smart-format", true, "request smart formatting from a remote ASR provider")
	interimResults := flag.Bool("asr-interim-results", true, "stored in the session's provider config; not forwarded to any provider (Deepgram always requests interim results)")

	flag.Parse()

	finalModelsDir := *modelsDir
	if finalModelsDir == "" {
		finalModelsDir = filepath.Join(filepath.Dir(*dataDir), "models")
	}
	finalModelDir := *modelDir
	if finalModelDir == "" {
		finalModelDir = filepath.Join(finalModelsDir, "streaming-zipformer-bilingual")
	}
	finalVADPath := *vadModelPath
	if finalVADPath == "" {
		finalVADPath = filepath.Join(finalModelsDir, "vad-silero", "silero_vad.onnx")
	}
	finalTier2Dir := *tier2ModelDir
	if finalTier2Dir == "" {
		finalTier2Dir = filepath.Join(finalModelsDir, "offline-sense-voice")
	}

	scheduler := session.SchedulerPeriodic
	if *schedulerMode == "delayed" {
		scheduler = session.SchedulerDelayed
	}

	return &Config{
		DataDir:   *dataDir,
		ModelsDir: finalModelsDir,
		GRPCAddr:  *grpcAddr,
		TraceLog:  *traceLog,
		Session: session.Config{
			UseMicrophone:  *useMic,
			UseSystemAudio: *useSystem,
			MergeForASR:    *mergeForASR,
			VADSensitivity: *vadSensitivity,
			MicDeviceID:    *micDeviceID,
			SystemSourceID: *systemSourceID,
			ASRProvider:    parseProvider(*asrProvider),
			ASRProviderConfig: session.ProviderConfig{
				APIKey:         *apiKey,
				BaseURL:        *baseURL,
				Model:          *model,
				Language:       *language,
				Punctuate:      *punctuate,
				SmartFormat:    *smartFormat,
				InterimResults: *interimResults,
			},
			SchedulerMode: scheduler,
			Language:      *language,
			ModelDir:      finalModelDir,
			VADModelPath:  finalVADPath,
			Tier2ModelDir: finalTier2Dir,
		},
	}
}

func parseProvider(s string) session.ASRProvider {
	switch s {
	case "Deepgram":
		return session.ProviderDeepgram
	case "OpenAiWhisper":
		return session.ProviderOpenAIWhisper
	default:
		return session.ProviderLocal
	}
}

func defaultGRPCAddress() string {
	if runtime.GOOS == "windows" {
		return `npipe:\\.\pipe\scribecore-events`
	}
	return "unix:/tmp/scribecore-events.sock"
}
