package multipass

import (
	"sync"

	"scribecore/asr"
)

// TieredResult is the single source of truth for "best known text per
// utterance" (§4.9, §3 invariants: best == highest tier present,
// current_tier monotonically increases, fully_processed implies tier2 or
// tier3 present).
type TieredResult struct {
	SegmentID      string
	Tier1          asr.Result
	Tier2          *asr.Result
	Tier3          *asr.Result
	Best           asr.Result
	CurrentTier    Tier
	FullyProcessed bool
}

// UpdateNotification is delivered synchronously to subscribers on Add/Update.
type UpdateNotification struct {
	SegmentID string
	Tier      Tier
	Result    TieredResult
}

type UpdateCallback func(UpdateNotification)

// ResultMerger is the single table keyed by segment_id. Notifications are
// delivered synchronously on the caller's goroutine; subscribers must not
// block. Updates for an evicted segment are silently dropped.
type ResultMerger struct {
	mu       sync.RWMutex
	results  map[string]*TieredResult
	onUpdate UpdateCallback
}

func NewResultMerger() *ResultMerger {
	return &ResultMerger{results: make(map[string]*TieredResult)}
}

func (m *ResultMerger) SetOnUpdate(cb UpdateCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = cb
}

// AddTier1 initializes the record for a segment with its Tier-1 result.
func (m *ResultMerger) AddTier1(segmentID string, result asr.Result) {
	m.mu.Lock()
	rec := &TieredResult{
		SegmentID:   segmentID,
		Tier1:       result,
		Best:        result,
		CurrentTier: Tier1,
	}
	m.results[segmentID] = rec
	cb := m.onUpdate
	snapshot := *rec
	m.mu.Unlock()

	if cb != nil {
		cb(UpdateNotification{SegmentID: segmentID, Tier: Tier1, Result: snapshot})
	}
}

// UpdateTier sets tier2/tier3 if tier is newer than current, updates best,
// and marks the record fully processed for tier >= Tier2. A silently
// dropped no-op if the segment was already evicted.
func (m *ResultMerger) UpdateTier(segmentID string, tier Tier, result asr.Result) {
	m.mu.Lock()
	rec, ok := m.results[segmentID]
	if !ok {
		m.mu.Unlock()
		return
	}
	if tier <= rec.CurrentTier {
		m.mu.Unlock()
		return
	}

	r := result
	switch tier {
	case Tier2:
		rec.Tier2 = &r
	case Tier3:
		rec.Tier3 = &r
	}
	rec.Best = result
	rec.CurrentTier = tier
	if tier >= Tier2 {
		rec.FullyProcessed = true
	}

	cb := m.onUpdate
	snapshot := *rec
	m.mu.Unlock()

	if cb != nil {
		cb(UpdateNotification{SegmentID: segmentID, Tier: tier, Result: snapshot})
	}
}

func (m *ResultMerger) Get(segmentID string) (TieredResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.results[segmentID]
	if !ok {
		return TieredResult{}, false
	}
	return *rec, true
}

func (m *ResultMerger) GetBest(segmentID string) (asr.Result, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.results[segmentID]
	if !ok {
		return asr.Result{}, false
	}
	return rec.Best, true
}

func (m *ResultMerger) GetUnprocessed() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for id, rec := range m.results {
		if !rec.FullyProcessed {
			out = append(out, id)
		}
	}
	return out
}

func (m *ResultMerger) Remove(segmentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.results, segmentID)
}

func (m *ResultMerger) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = make(map[string]*TieredResult)
}

func (m *ResultMerger) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.results)
}

func (m *ResultMerger) IsEmpty() bool {
	return m.Len() == 0
}
