package multipass

import (
	"testing"
	"time"

	"scribecore/asr"
)

type fakeRecognizer struct {
	result asr.Result
	delay  time.Duration
}

func (f *fakeRecognizer) Recognize(samples []float32) asr.Result {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.result
}

func TestWorkerRunTaskUpdatesMergerOnSuccess(t *testing.T) {
	buf := NewSegmentBuffer(DefaultSegmentBufferConfig())
	merger := NewResultMerger()
	merger.AddTier1("s_1", asr.Final("hello", 0.8, 0))
	id := buf.Push("s_1", []float32{0.1, 0.2}, 0, 1)

	w := NewWorker(buf, merger, &fakeRecognizer{result: asr.Final("hello world", 0.95, 0)}, time.Second)
	w.RunTask(id, Tier2)

	rec, _ := merger.Get("s_1")
	if rec.Best.Text != "hello world" || rec.CurrentTier != Tier2 {
		t.Fatalf("expected merger updated to tier2, got %+v", rec)
	}
	seg, _ := buf.Get(id)
	if !seg.Tier2Processed {
		t.Fatalf("expected segment marked tier2 processed")
	}
}

func TestWorkerRunTaskTimeoutLeavesRecordUnchanged(t *testing.T) {
	buf := NewSegmentBuffer(DefaultSegmentBufferConfig())
	merger := NewResultMerger()
	merger.AddTier1("s_1", asr.Final("hello", 0.8, 0))
	id := buf.Push("s_1", []float32{0.1}, 0, 1)

	w := NewWorker(buf, merger, &fakeRecognizer{result: asr.Final("too late", 0.95, 0), delay: 50 * time.Millisecond}, 5*time.Millisecond)
	w.RunTask(id, Tier2)

	rec, _ := merger.Get("s_1")
	if rec.CurrentTier != Tier1 || rec.Best.Text != "hello" {
		t.Fatalf("expected record unchanged after timeout, got %+v", rec)
	}
	seg, _ := buf.Get(id)
	if !seg.Tier2Processed {
		t.Fatalf("expected segment marked processed even after timeout")
	}
}

func TestWorkerRunTaskSkipsEvictedSegment(t *testing.T) {
	buf := NewSegmentBuffer(DefaultSegmentBufferConfig())
	merger := NewResultMerger()
	w := NewWorker(buf, merger, &fakeRecognizer{result: asr.Final("x", 0.9, 0)}, time.Second)
	w.RunTask(9999, Tier2) // never pushed; should be a no-op
}
