package multipass

import (
	"context"
	"time"

	"scribecore/asr"
)

// Tier2Recognizer is the subset of asr/tier2.OfflineRecognizer the worker
// needs; kept as an interface so tests can supply a fake.
type Tier2Recognizer interface {
	Recognize(samples []float32) asr.Result
}

// Worker runs Tier-2 tasks one at a time (the recognizer is guarded by a
// mutex upstream — at most one in-flight recognition per session). For each
// task: load audio (skip if evicted), recognize under a timeout, update the
// merger on success, and always mark the segment processed so it is never
// retried.
type Worker struct {
	buffer     *SegmentBuffer
	merger     *ResultMerger
	recognizer Tier2Recognizer
	timeout    time.Duration
}

func NewWorker(buffer *SegmentBuffer, merger *ResultMerger, recognizer Tier2Recognizer, timeout time.Duration) *Worker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Worker{buffer: buffer, merger: merger, recognizer: recognizer, timeout: timeout}
}

// RunTask executes one Tier-2 task for bufferID synchronously. Callers
// invoke this on a blocking pool goroutine, not on the session's tick loop.
func (w *Worker) RunTask(bufferID int64, tier Tier) {
	seg, ok := w.buffer.Get(bufferID)
	if !ok {
		return // evicted; nothing to do
	}

	resultCh := make(chan asr.Result, 1)
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	go func() {
		resultCh <- w.recognizer.Recognize(seg.Samples)
	}()

	select {
	case result := <-resultCh:
		if !result.IsEmpty() {
			w.merger.UpdateTier(seg.SegmentID, tier, result)
		}
	case <-ctx.Done():
		// timeout: leave record unchanged, best stays at the prior tier.
	}

	w.buffer.MarkProcessed(bufferID, tier)
}
