package multipass

import (
	"testing"
	"time"

	"scribecore/asr"
)

func TestDelayedRefinerFlushSessionProcessesImmediately(t *testing.T) {
	buf := NewSegmentBuffer(DefaultSegmentBufferConfig())
	merger := NewResultMerger()
	merger.AddTier1("s_1", asr.Final("hello", 0.8, 0))
	id := buf.Push("s_1", []float32{0.1}, 0, 1)

	worker := NewWorker(buf, merger, &fakeRecognizer{result: asr.Final("hello refined", 0.95, 0)}, time.Second)
	cfg := DefaultDelayedRefineConfig()
	cfg.Delay = time.Hour // would never fire on its own within the test
	refiner := NewDelayedRefiner(cfg, buf, worker)

	if ok := refiner.Schedule("session-1", id); !ok {
		t.Fatalf("expected schedule to succeed")
	}
	refiner.FlushSession("session-1")

	rec, _ := merger.Get("s_1")
	if rec.CurrentTier != Tier2 {
		t.Fatalf("expected flush to run pending task immediately, got %+v", rec)
	}
}

func TestDelayedRefinerRejectsBeyondConcurrencyCap(t *testing.T) {
	buf := NewSegmentBuffer(DefaultSegmentBufferConfig())
	merger := NewResultMerger()
	worker := NewWorker(buf, merger, &fakeRecognizer{result: asr.Empty()}, time.Second)
	cfg := DefaultDelayedRefineConfig()
	cfg.MaxConcurrent = 1
	cfg.Delay = time.Hour
	refiner := NewDelayedRefiner(cfg, buf, worker)

	id1 := buf.Push("s_1", []float32{0.1}, 0, 1)
	id2 := buf.Push("s_2", []float32{0.1}, 1, 2)

	if !refiner.Schedule("session-1", id1) {
		t.Fatalf("expected first schedule to succeed")
	}
	if refiner.Schedule("session-1", id2) {
		t.Fatalf("expected second schedule to be rejected at concurrency cap")
	}
}

func TestDelayedRefinerCancel(t *testing.T) {
	buf := NewSegmentBuffer(DefaultSegmentBufferConfig())
	merger := NewResultMerger()
	worker := NewWorker(buf, merger, &fakeRecognizer{result: asr.Final("x", 0.9, 0)}, time.Second)
	cfg := DefaultDelayedRefineConfig()
	cfg.Delay = time.Hour
	refiner := NewDelayedRefiner(cfg, buf, worker)

	id := buf.Push("s_1", []float32{0.1}, 0, 1)
	refiner.Schedule("session-1", id)
	refiner.Cancel(id)
	refiner.FlushSession("session-1") // nothing left to run

	if _, ok := merger.Get("s_1"); ok {
		t.Fatalf("expected no merger record since task was cancelled before any tier1 add")
	}
	if seg, ok := buf.Get(id); !ok || seg.Tier2Processed {
		t.Fatalf("expected cancelled task not to run, but segment was marked processed")
	}
}
