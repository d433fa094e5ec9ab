package session

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"scribecore/asr"
	"scribecore/audio"
	"scribecore/eventbus"
	"scribecore/multipass"
	"scribecore/vad"
)

const (
	pollDeadline   = 10 * time.Millisecond
	noDataSleep    = 5 * time.Millisecond
	pausedSleep    = 50 * time.Millisecond
	levelEmitEvery = 100 * time.Millisecond
)

// LoopDeps wires a Loop to its audio sources, recognizer, VAD, and
// storage collaborators. Constructing these concrete implementations
// (device handles, native model loaders) is the caller's job; the loop
// only depends on the interfaces.
type LoopDeps struct {
	SessionID string
	Config    Config

	MicAdapter    audio.Adapter
	MicDescriptor audio.SourceDescriptor
	SysAdapter    audio.Adapter
	SysDescriptor audio.SourceDescriptor

	Recognizer asr.StreamingRecognizer
	// FallbackFactory builds a replacement local recognizer when a
	// remote provider hits the 3-consecutive-error threshold (§4.7).
	// Nil for local providers, which never fall back.
	FallbackFactory func() (asr.StreamingRecognizer, error)

	Tier2Recognizer multipass.Tier2Recognizer // nil disables Tier-2
	VAD             vad.Detector              // nil: use tier0 endpoint fallback

	Bus   *eventbus.Bus
	Store Store
	Handle StoreHandle
}

// Loop is the session audio loop: the integration core that owns and
// drives the audio source adapters, limiter, level meters, resampler,
// Tier-1 recognizer, VAD, segment buffer, result merger, and Tier-2
// scheduler for one recording session (§4.11).
type Loop struct {
	sessionID string
	cfg       Config
	bus       *eventbus.Bus
	store     Store
	handle    StoreHandle

	micAdapter    audio.Adapter
	micDescriptor audio.SourceDescriptor
	sysAdapter    audio.Adapter
	sysDescriptor audio.SourceDescriptor
	micCh         <-chan audio.Block
	sysCh         <-chan audio.Block

	limiter   *audio.Limiter
	micLevel  *audio.LevelMeter
	sysLevel  *audio.LevelMeter
	resampler *audio.Resampler

	recognizer      asr.StreamingRecognizer
	fallbackFactory func() (asr.StreamingRecognizer, error)
	fallbackTracker *asr.FallbackTracker
	lastPartial     string

	detector vad.Detector

	buffer         *multipass.SegmentBuffer
	merger         *multipass.ResultMerger
	worker         *multipass.Worker
	scheduler      *multipass.PeriodicScheduler
	delayedRefiner *multipass.DelayedRefiner

	arbitrator *Arbitrator

	segmentCounter int64
	lastLevelEmit  time.Time
	paused         atomic.Bool
	running        atomic.Bool
}

// NewLoop validates deps and assembles the per-session pipeline. It does
// not start capturing audio; call Run for that.
func NewLoop(deps LoopDeps) (*Loop, error) {
	if deps.MicAdapter == nil && deps.SysAdapter == nil {
		return nil, ErrNoAudioSource
	}
	if deps.Recognizer == nil {
		return nil, fmt.Errorf("session: loop requires a Tier-1 recognizer")
	}

	l := &Loop{
		sessionID:       deps.SessionID,
		cfg:             deps.Config,
		bus:             deps.Bus,
		store:           deps.Store,
		handle:          deps.Handle,
		micAdapter:      deps.MicAdapter,
		micDescriptor:   deps.MicDescriptor,
		sysAdapter:      deps.SysAdapter,
		sysDescriptor:   deps.SysDescriptor,
		limiter:         audio.NewLimiter(audio.DefaultLimiterConfig()),
		micLevel:        audio.NewLevelMeter(4800),
		sysLevel:        audio.NewLevelMeter(4800),
		recognizer:      deps.Recognizer,
		fallbackFactory: deps.FallbackFactory,
		fallbackTracker: asr.NewFallbackTracker(),
		detector:        deps.VAD,
		buffer:          multipass.NewSegmentBuffer(multipass.DefaultSegmentBufferConfig()),
		merger:          multipass.NewResultMerger(),
		arbitrator:      NewArbitrator(),
	}

	l.merger.SetOnUpdate(l.onMergerUpdate)

	if deps.Tier2Recognizer != nil {
		l.worker = multipass.NewWorker(l.buffer, l.merger, deps.Tier2Recognizer, 10*time.Second)
		switch deps.Config.SchedulerMode {
		case SchedulerDelayed:
			l.delayedRefiner = multipass.NewDelayedRefiner(multipass.DefaultDelayedRefineConfig(), l.buffer, l.worker)
		default:
			l.scheduler = multipass.NewPeriodicScheduler(multipass.DefaultSchedulerConfig(), l.buffer, l.worker)
		}
	}

	return l, nil
}

// Run drives the tick loop until ctx is cancelled or Stop is called.
// Initialization failures (no source can start) return Error{message}-
// worthy errors to the caller, who is responsible for publishing
// session:error.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.start(); err != nil {
		return err
	}
	l.running.Store(true)
	defer l.shutdown()

	for l.running.Load() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if l.paused.Load() {
			time.Sleep(pausedSleep)
			continue
		}

		micBlock, sysBlock := l.poll()

		if sysBlock != nil {
			sysBlock.Samples = l.limiter.Process(sysBlock.Samples)
		}
		l.updateLevels(micBlock, sysBlock)

		block, label := l.arbitrate(micBlock, sysBlock)
		if block == nil {
			time.Sleep(noDataSleep)
			continue
		}

		if l.resampler == nil {
			l.resampler = audio.NewResampler(block.SampleRate, block.Channels)
		}
		samples := l.resampler.Process(block.Samples)
		if len(samples) == 0 {
			continue
		}

		l.feedRecognizer(samples)

		if l.detector != nil {
			l.arbitrator.SetInUtterance(l.detector.InSpeech())
			segments := l.detector.Process(samples)
			l.publishPartial()
			for _, seg := range segments {
				l.finalizeSegment(seg, label)
			}
		} else if l.recognizer.IsEndpoint() {
			l.finalizeTier0(label)
		}
	}
	return nil
}

func (l *Loop) start() error {
	if l.micAdapter != nil {
		ch, err := l.micAdapter.Start(l.micDescriptor)
		if err != nil {
			return fmt.Errorf("session: start microphone: %w", err)
		}
		l.micCh = ch
	}
	if l.sysAdapter != nil {
		ch, err := l.sysAdapter.Start(l.sysDescriptor)
		if err != nil {
			if l.micCh == nil {
				return fmt.Errorf("session: start system audio: %w", err)
			}
			log.Printf("session %s: system audio unavailable, continuing on microphone only: %v", l.sessionID, err)
		} else {
			l.sysCh = ch
		}
	}
	if l.scheduler != nil {
		l.scheduler.Start()
	}
	if l.delayedRefiner != nil {
		l.delayedRefiner.Start()
	}
	return nil
}

// poll gathers at most one block per active source within pollDeadline.
func (l *Loop) poll() (mic, sys *audio.Block) {
	micCh, sysCh := l.micCh, l.sysCh
	timer := time.NewTimer(pollDeadline)
	defer timer.Stop()

	for micCh != nil || sysCh != nil {
		if mic != nil {
			micCh = nil
		}
		if sys != nil {
			sysCh = nil
		}
		if micCh == nil && sysCh == nil {
			break
		}
		select {
		case b, ok := <-micCh:
			if !ok {
				micCh = nil
				l.micCh = nil
				continue
			}
			blk := b
			mic = &blk
		case b, ok := <-sysCh:
			if !ok {
				sysCh = nil
				l.sysCh = nil
				continue
			}
			blk := b
			sys = &blk
		case <-timer.C:
			return mic, sys
		}
	}
	return mic, sys
}

func (l *Loop) updateLevels(mic, sys *audio.Block) {
	if mic != nil {
		l.micLevel.PushSamples(mic.Samples)
	}
	if sys != nil {
		l.sysLevel.PushSamples(sys.Samples)
	}
	if l.bus == nil || time.Since(l.lastLevelEmit) < levelEmitEvery {
		return
	}
	l.lastLevelEmit = time.Now()
	level := l.micLevel.GetSmoothedLevel()
	db := l.micLevel.GetDB()
	if sys != nil {
		if sl := l.sysLevel.GetSmoothedLevel(); sl > level {
			level = sl
			db = l.sysLevel.GetDB()
		}
	}
	l.bus.Publish(eventbus.AudioLevel(l.sessionID, level, db))
}

func (l *Loop) arbitrate(mic, sys *audio.Block) (*audio.Block, SourceLabel) {
	if l.cfg.MergeForASR && mic != nil && sys != nil {
		if mic.SampleRate == sys.SampleRate {
			return MergeForASR(mic, sys), SourceMixed
		}
		log.Printf("session %s: merge_for_asr sample-rate mismatch (mic %d Hz, system %d Hz), using system audio",
			l.sessionID, mic.SampleRate, sys.SampleRate)
		return sys, SourceSystem
	}
	if l.micAdapter != nil && l.sysAdapter == nil {
		return mic, SourceMic
	}
	if l.sysAdapter != nil && l.micAdapter == nil {
		return sys, SourceSystem
	}

	prevPick := l.arbitrator.Picked()
	block, label := l.arbitrator.Pick(mic, sys)
	if label != "" && label != prevPick && prevPick != "" {
		l.onSourceSwitch()
	}
	return block, label
}

// onSourceSwitch implements rule 5 of §4.6: cross-source text
// contamination is unrecoverable, so everything stateful is reset.
func (l *Loop) onSourceSwitch() {
	if l.resampler != nil {
		l.resampler.Reset()
	}
	l.recognizer.Reset()
	if l.detector != nil {
		l.detector.Reset()
	}
	l.lastPartial = ""
}

func (l *Loop) feedRecognizer(samples []float32) {
	err := l.recognizer.AcceptWaveform(samples)
	if err == nil {
		l.fallbackTracker.RecordSuccess()
		return
	}
	if !l.recognizer.ProviderKind().IsRemote() {
		return
	}
	if l.fallbackTracker.RecordError() {
		l.triggerFallback("consecutive accept_waveform errors")
	}
}

// finalizeRecognizer calls Finalize and feeds its error, if any, into the
// same consecutive-error fallback tracker AcceptWaveform errors use (§4.7:
// accept_waveform and finalize are both counted error sources for a
// remote provider).
func (l *Loop) finalizeRecognizer() asr.Result {
	final, err := l.recognizer.Finalize()
	if err == nil {
		l.fallbackTracker.RecordSuccess()
		return final
	}
	if l.recognizer.ProviderKind().IsRemote() {
		if l.fallbackTracker.RecordError() {
			l.triggerFallback("consecutive finalize errors")
		}
	}
	return final
}

func (l *Loop) triggerFallback(reason string) {
	if l.fallbackFactory == nil {
		return
	}
	from := l.recognizer.ProviderKind()
	replacement, err := l.fallbackFactory()
	if err != nil {
		log.Printf("session %s: fallback recognizer construction failed: %v", l.sessionID, err)
		return
	}
	l.recognizer = replacement
	l.fallbackTracker.RecordSuccess()
	to := l.recognizer.ProviderKind()
	if l.bus != nil {
		l.bus.Publish(eventbus.ASRFallback(l.sessionID, from.String(), to.String(), reason))
	}
}

func (l *Loop) publishPartial() {
	if l.bus == nil {
		return
	}
	result := l.recognizer.GetResult()
	if result.IsEmpty() || result.Text == l.lastPartial {
		return
	}
	l.lastPartial = result.Text
	l.bus.Publish(eventbus.TranscriptPartial(l.sessionID, result.Text, seconds(result.TimestampMs), seconds(result.TimestampMs), nil))
}

func (l *Loop) nextSegmentID() string {
	l.segmentCounter++
	return fmt.Sprintf("%s_%d", l.sessionID, l.segmentCounter)
}

// finalizeSegment assigns a segment id, buffers the raw audio, obtains
// the authoritative Tier-1 final, persists it, and schedules Tier-2 if
// configured (§4.11 step 10).
func (l *Loop) finalizeSegment(seg vad.Segment, label SourceLabel) {
	segmentID := l.nextSegmentID()
	bufferID := l.buffer.Push(segmentID, seg.Samples, seg.StartTimeS, seg.EndTimeS)

	// Finalize drains whatever the streaming state has accumulated for
	// this utterance, for both local and remote providers. The buffered
	// samples are not recognized again at Tier 1, so the final carries
	// any drift of the streaming decode; only Tier 2 re-reads the buffer.
	final := l.finalizeRecognizer()
	l.recognizer.Reset()
	l.lastPartial = ""

	if final.IsEmpty() {
		return
	}

	l.merger.AddTier1(segmentID, final)
	l.persistAndPublish(segmentID, final, label, SchedulerTier1)

	if l.scheduler == nil && l.delayedRefiner == nil {
		return
	}
	if l.delayedRefiner != nil {
		l.delayedRefiner.Schedule(l.sessionID, bufferID)
	}
	// PeriodicScheduler needs no per-segment call: its own ticker polls
	// the buffer for pending entries.
}

func (l *Loop) finalizeTier0(label SourceLabel) {
	final := l.finalizeRecognizer()
	l.recognizer.Reset()
	l.lastPartial = ""
	if final.IsEmpty() {
		return
	}
	segmentID := l.nextSegmentID()
	l.persistAndPublish(segmentID, final, label, SchedulerTier0)
}

// schedulerTier identifies the tier tag attached to a just-produced
// final for persistence and the transcript:final event.
type schedulerTier int

const (
	SchedulerTier0 schedulerTier = iota
	SchedulerTier1
)

func (l *Loop) persistAndPublish(segmentID string, result asr.Result, label SourceLabel, tier schedulerTier) {
	tierTag := Tier1
	if tier == SchedulerTier0 {
		tierTag = Tier0
	}
	confidence := float32(result.Confidence)

	segment := TranscriptSegment{
		ID:         segmentID,
		StartTimeS: seconds(result.TimestampMs),
		EndTimeS:   seconds(result.TimestampMs),
		Text:       result.Text,
		IsFinal:    true,
		Confidence: &confidence,
		Source:     label,
		Language:   l.cfg.Language,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
		Tier:       tierTag,
	}

	if l.store != nil {
		if err := l.store.AppendTranscript(l.handle, segment); err != nil {
			log.Printf("session %s: append transcript failed: %v", l.sessionID, err)
		}
	}
	if l.bus != nil {
		l.bus.Publish(eventbus.TranscriptFinal(l.sessionID, toWireSegment(segment)))
	}
}

// onMergerUpdate is the synchronous ResultMerger subscriber: it persists
// and publishes a transcript:updated event for every Tier-2/3 promotion.
func (l *Loop) onMergerUpdate(n multipass.UpdateNotification) {
	if n.Tier == multipass.Tier1 {
		return // tier1 finals are handled by persistAndPublish directly
	}
	tierTag := Tier2
	if n.Tier == multipass.Tier3 {
		tierTag = Tier3
	}
	c := float32(n.Result.Best.Confidence)
	segment := TranscriptSegment{
		ID:         n.SegmentID,
		Text:       n.Result.Best.Text,
		IsFinal:    true,
		Confidence: &c,
		Tier:       tierTag,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	if l.store != nil {
		if err := l.store.AppendTranscript(l.handle, segment); err != nil {
			log.Printf("session %s: append updated transcript failed: %v", l.sessionID, err)
		}
	}
	if l.bus != nil {
		l.bus.Publish(eventbus.TranscriptUpdated(l.sessionID, n.SegmentID, string(tierTag), n.Result.Best.Text, &c, toWireSegment(segment)))
	}
}

// Pause flips the loop into the 50ms-sleep polling state (§4.11 step 1).
func (l *Loop) Pause() { l.paused.Store(true) }

// Resume clears the paused state.
func (l *Loop) Resume() { l.paused.Store(false) }

// Stop signals the tick loop to exit at its next iteration boundary.
func (l *Loop) Stop() { l.running.Store(false) }

func (l *Loop) shutdown() {
	if l.recognizer.ProviderKind().IsRemote() {
		if final := l.finalizeRecognizer(); !final.IsEmpty() {
			segmentID := l.nextSegmentID()
			l.merger.AddTier1(segmentID, final)
			l.persistAndPublish(segmentID, final, l.arbitrator.Picked(), SchedulerTier1)
		}
	}
	if l.delayedRefiner != nil {
		l.delayedRefiner.FlushSession(l.sessionID)
		l.delayedRefiner.Stop()
	}
	if l.scheduler != nil {
		l.scheduler.Stop()
	}
	if l.micAdapter != nil {
		if err := l.micAdapter.Stop(); err != nil {
			log.Printf("session %s: stop microphone adapter: %v", l.sessionID, err)
		}
	}
	if l.sysAdapter != nil {
		if err := l.sysAdapter.Stop(); err != nil {
			log.Printf("session %s: stop system adapter: %v", l.sessionID, err)
		}
	}
}

func seconds(ms int64) float64 { return float64(ms) / 1000.0 }

func toWireSegment(s TranscriptSegment) eventbus.TranscriptSegment {
	return eventbus.TranscriptSegment{
		ID:         s.ID,
		StartTimeS: s.StartTimeS,
		EndTimeS:   s.EndTimeS,
		Text:       s.Text,
		IsFinal:    s.IsFinal,
		Confidence: s.Confidence,
		Source:     string(s.Source),
		Language:   s.Language,
		CreatedAt:  s.CreatedAt,
		Tier:       string(s.Tier),
	}
}
