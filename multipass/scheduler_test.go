package multipass

import (
	"testing"
	"time"

	"scribecore/asr"
)

func TestPeriodicSchedulerProcessesPendingSegments(t *testing.T) {
	buf := NewSegmentBuffer(DefaultSegmentBufferConfig())
	merger := NewResultMerger()
	merger.AddTier1("s_1", asr.Final("hello", 0.8, 0))
	buf.Push("s_1", []float32{0.1}, 0, 1)

	worker := NewWorker(buf, merger, &fakeRecognizer{result: asr.Final("hello refined", 0.95, 0)}, time.Second)
	cfg := SchedulerConfig{EnableTier2: true, Tier2Interval: 20 * time.Millisecond, Tier2BatchSize: 10}
	sched := NewPeriodicScheduler(cfg, buf, worker)

	sched.Start()
	defer sched.Stop()

	deadline := time.After(2 * time.Second)
	for {
		rec, ok := merger.Get("s_1")
		if ok && rec.CurrentTier == Tier2 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("scheduler did not refine segment in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestPeriodicSchedulerStartStopIdempotent(t *testing.T) {
	buf := NewSegmentBuffer(DefaultSegmentBufferConfig())
	merger := NewResultMerger()
	worker := NewWorker(buf, merger, &fakeRecognizer{result: asr.Empty()}, time.Second)
	sched := NewPeriodicScheduler(DefaultSchedulerConfig(), buf, worker)

	sched.Start()
	sched.Start() // no-op
	if !sched.IsRunning() {
		t.Fatalf("expected scheduler running")
	}
	sched.Stop()
	sched.Stop() // no-op
	if sched.IsRunning() {
		t.Fatalf("expected scheduler stopped")
	}
}
