// Package models manages on-disk recognition model artifacts: discovery,
// download, and the directory-probing layout described in the external
// interfaces of the core (streaming Tier-1 models, the offline Tier-2
// model, and the VAD model).
package models

// Kind discriminates what a model artifact is used for.
type Kind string

const (
	KindStreaming Kind = "streaming" // Tier-1 RNNT encoder/decoder/joiner
	KindOffline   Kind = "offline"   // Tier-2 SenseVoice-style offline model
	KindVAD       Kind = "vad"       // Silero VAD
)

// Info describes one downloadable model and where to fetch it from. A
// streaming model ships as a tar.bz2 archive containing encoder/decoder/
// joiner/tokens files; an offline or VAD model ships as a single archive
// or a bare file, per ArchiveURL vs FileURL.
type Info struct {
	ID          string
	Kind        Kind
	Name        string
	Language    string
	SizeBytes   int64
	Description string
	// ArchiveURL, when set, points at a tar.bz2 bundle extracted into the
	// model's directory. FileURL, when set instead, points at a single
	// file written directly into that directory under FileName.
	ArchiveURL string
	FileURL    string
	FileName   string
}

// Registry lists the models the core knows how to fetch. Streaming and
// offline entries are sherpa-onnx-go compatible bundles; the VAD entry is
// the Silero ONNX graph.
var Registry = []Info{
	{
		ID:          "streaming-zipformer-bilingual",
		Kind:        KindStreaming,
		Name:        "Zipformer Streaming (EN/ZH)",
		Language:    "en,zh",
		SizeBytes:   280_000_000,
		Description: "Low-latency streaming transducer, encoder/decoder/joiner triple",
		ArchiveURL:  "https://github.com/k2-fsa/sherpa-onnx/releases/download/asr-models/sherpa-onnx-streaming-zipformer-bilingual-zh-en-2023-02-20.tar.bz2",
	},
	{
		ID:          "streaming-zipformer-ru",
		Kind:        KindStreaming,
		Name:        "Zipformer Streaming (RU)",
		Language:    "ru",
		SizeBytes:   260_000_000,
		Description: "Low-latency streaming transducer tuned for Russian",
		ArchiveURL:  "https://github.com/k2-fsa/sherpa-onnx/releases/download/asr-models/sherpa-onnx-streaming-zipformer-ru-2024-07-18.tar.bz2",
	},
	{
		ID:          "offline-sense-voice",
		Kind:        KindOffline,
		Name:        "SenseVoice Offline",
		Language:    "multi",
		SizeBytes:   900_000_000,
		Description: "Tier-2 multilingual offline refinement model",
		ArchiveURL:  "https://github.com/k2-fsa/sherpa-onnx/releases/download/asr-models/sherpa-onnx-sense-voice-zh-en-ja-ko-yue-2024-07-17.tar.bz2",
	},
	{
		ID:          "vad-silero",
		Kind:        KindVAD,
		Name:        "Silero VAD",
		SizeBytes:   2_200_000,
		Description: "Neural voice-activity detector",
		FileURL:     "https://github.com/snakers4/silero-vad/raw/master/src/silero_vad/data/silero_vad.onnx",
		FileName:    "silero_vad.onnx",
	},
}

// ByID returns the registry entry for id, or nil if unknown.
func ByID(id string) *Info {
	for i := range Registry {
		if Registry[i].ID == id {
			return &Registry[i]
		}
	}
	return nil
}

// ByKind returns all registry entries of the given kind.
func ByKind(kind Kind) []Info {
	var result []Info
	for _, m := range Registry {
		if m.Kind == kind {
			result = append(result, m)
		}
	}
	return result
}
