// Package multipass holds the segment buffer, result merger, and the two
// Tier-2 scheduling strategies (periodic batch and delayed-refine) that
// drive asynchronous refinement (§4.5, §4.9, §4.10).
package multipass

import (
	"sync"
	"time"
)

// Tier identifies which recognizer produced a result.
type Tier int

const (
	Tier1 Tier = iota + 1
	Tier2
	Tier3
)

// BufferedSegment is one completed utterance's raw audio, held until the
// retention or size bound evicts it. Tier-2 completion only sets
// Tier2Processed; it does not remove the segment.
type BufferedSegment struct {
	BufferID       int64
	SegmentID      string
	Samples        []float32
	StartS         float64
	EndS           float64
	CreatedAt      time.Time
	Tier2Processed bool
	Tier3Processed bool
}

// SegmentBufferConfig bounds memory: entries older than RetentionMs are
// dropped first, then the oldest are dropped until MaxEntries remain.
type SegmentBufferConfig struct {
	MaxEntries  int
	RetentionMs int64
}

func DefaultSegmentBufferConfig() SegmentBufferConfig {
	return SegmentBufferConfig{MaxEntries: 100, RetentionMs: 300_000}
}

// SegmentBuffer is a FIFO of completed utterances keyed by a monotonic
// buffer_id.
type SegmentBuffer struct {
	mu     sync.RWMutex
	cfg    SegmentBufferConfig
	items  []*BufferedSegment
	nextID int64
	now    func() time.Time
}

func NewSegmentBuffer(cfg SegmentBufferConfig) *SegmentBuffer {
	return &SegmentBuffer{cfg: cfg, now: time.Now}
}

// Push inserts a new segment and runs eviction, returning the assigned
// buffer_id.
func (b *SegmentBuffer) Push(segmentID string, samples []float32, startS, endS float64) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.items = append(b.items, &BufferedSegment{
		BufferID:  id,
		SegmentID: segmentID,
		Samples:   samples,
		StartS:    startS,
		EndS:      endS,
		CreatedAt: b.now(),
	})
	b.cleanupLocked()
	return id
}

func (b *SegmentBuffer) cleanupLocked() {
	now := b.now()
	cutoff := now.Add(-time.Duration(b.cfg.RetentionMs) * time.Millisecond)
	kept := b.items[:0]
	for _, it := range b.items {
		if it.CreatedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, it)
	}
	b.items = kept

	if len(b.items) > b.cfg.MaxEntries {
		excess := len(b.items) - b.cfg.MaxEntries
		b.items = b.items[excess:]
	}
}

// GetPendingFor returns up to limit entries not yet processed for tier.
func (b *SegmentBuffer) GetPendingFor(tier Tier, limit int) []*BufferedSegment {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*BufferedSegment
	for _, it := range b.items {
		if len(out) >= limit {
			break
		}
		switch tier {
		case Tier2:
			if !it.Tier2Processed {
				out = append(out, it)
			}
		case Tier3:
			if !it.Tier3Processed {
				out = append(out, it)
			}
		}
	}
	return out
}

func (b *SegmentBuffer) MarkProcessed(bufferID int64, tier Tier) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, it := range b.items {
		if it.BufferID == bufferID {
			switch tier {
			case Tier2:
				it.Tier2Processed = true
			case Tier3:
				it.Tier3Processed = true
			}
			return
		}
	}
}

func (b *SegmentBuffer) Get(bufferID int64) (*BufferedSegment, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, it := range b.items {
		if it.BufferID == bufferID {
			return it, true
		}
	}
	return nil, false
}

func (b *SegmentBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

func (b *SegmentBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = nil
}
