package asr

import "sync"

const fallbackThreshold = 3

// FallbackTracker counts consecutive errors from a remote StreamingRecognizer
// and signals when the threshold (§4.7: exactly 3) is reached. Local
// providers never accumulate errors here — fallback is only meaningful for
// remote providers, and local failures are fatal to the session.
type FallbackTracker struct {
	mu      sync.Mutex
	count   int
}

func NewFallbackTracker() *FallbackTracker {
	return &FallbackTracker{}
}

// RecordError increments the consecutive-error count and reports whether the
// threshold was just reached.
func (f *FallbackTracker) RecordError() (triggered bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	if f.count == fallbackThreshold {
		return true
	}
	return false
}

// RecordSuccess resets the consecutive-error count.
func (f *FallbackTracker) RecordSuccess() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count = 0
}

func (f *FallbackTracker) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

// FallbackEvent mirrors the asr:fallback wire event (§6).
type FallbackEvent struct {
	SessionID string
	From      ProviderKind
	To        ProviderKind
	Reason    string
}
