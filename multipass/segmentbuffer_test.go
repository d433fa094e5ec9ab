package multipass

import "testing"

func TestSegmentBufferPushAssignsIncreasingIDs(t *testing.T) {
	buf := NewSegmentBuffer(DefaultSegmentBufferConfig())
	id1 := buf.Push("s_1", []float32{0.1}, 0, 1)
	id2 := buf.Push("s_2", []float32{0.2}, 1, 2)
	if id2 <= id1 {
		t.Fatalf("expected increasing buffer ids, got %d then %d", id1, id2)
	}
}

func TestSegmentBufferGetPendingFor(t *testing.T) {
	buf := NewSegmentBuffer(DefaultSegmentBufferConfig())
	id := buf.Push("s_1", []float32{0.1}, 0, 1)
	pending := buf.GetPendingFor(Tier2, 10)
	if len(pending) != 1 || pending[0].BufferID != id {
		t.Fatalf("expected one pending entry for %d, got %+v", id, pending)
	}

	buf.MarkProcessed(id, Tier2)
	pending = buf.GetPendingFor(Tier2, 10)
	if len(pending) != 0 {
		t.Fatalf("expected no pending entries after mark processed, got %d", len(pending))
	}
}

func TestSegmentBufferEvictsOldestBeyondMaxEntries(t *testing.T) {
	cfg := DefaultSegmentBufferConfig()
	cfg.MaxEntries = 3
	buf := NewSegmentBuffer(cfg)

	var ids []int64
	for i := 0; i < 4; i++ {
		ids = append(ids, buf.Push("s", []float32{float32(i)}, float64(i), float64(i+1)))
	}

	if buf.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", buf.Len())
	}
	if _, ok := buf.Get(ids[0]); ok {
		t.Fatalf("expected earliest buffer_id %d to be evicted", ids[0])
	}
	if _, ok := buf.Get(ids[3]); !ok {
		t.Fatalf("expected latest buffer_id %d to remain", ids[3])
	}
}

func TestSegmentBufferClear(t *testing.T) {
	buf := NewSegmentBuffer(DefaultSegmentBufferConfig())
	buf.Push("s_1", []float32{0.1}, 0, 1)
	buf.Clear()
	if buf.Len() != 0 {
		t.Fatalf("expected empty buffer after Clear, got %d", buf.Len())
	}
}
