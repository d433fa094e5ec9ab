package multipass

import (
	"testing"

	"scribecore/asr"
)

func TestResultMergerAddTier1InitializesRecord(t *testing.T) {
	m := NewResultMerger()
	m.AddTier1("s_1", asr.Final("hello", 0.8, 0))

	rec, ok := m.Get("s_1")
	if !ok {
		t.Fatalf("expected record to exist")
	}
	if rec.CurrentTier != Tier1 || rec.Best.Text != "hello" || rec.FullyProcessed {
		t.Fatalf("unexpected record after AddTier1: %+v", rec)
	}
}

func TestResultMergerUpdateTierPromotesBest(t *testing.T) {
	m := NewResultMerger()
	m.AddTier1("s_1", asr.Final("hello", 0.8, 0))
	m.UpdateTier("s_1", Tier2, asr.Final("hello world", 0.95, 0))

	rec, _ := m.Get("s_1")
	if rec.CurrentTier != Tier2 || rec.Best.Text != "hello world" || !rec.FullyProcessed {
		t.Fatalf("unexpected record after UpdateTier: %+v", rec)
	}
}

func TestResultMergerIgnoresStaleTierUpdate(t *testing.T) {
	m := NewResultMerger()
	m.AddTier1("s_1", asr.Final("hello", 0.8, 0))
	m.UpdateTier("s_1", Tier2, asr.Final("hello world", 0.95, 0))
	m.UpdateTier("s_1", Tier1, asr.Final("ignored", 0.1, 0))

	rec, _ := m.Get("s_1")
	if rec.CurrentTier != Tier2 || rec.Best.Text != "hello world" {
		t.Fatalf("stale tier update should not regress record: %+v", rec)
	}
}

func TestResultMergerEvictedUpdateSilentlyDropped(t *testing.T) {
	m := NewResultMerger()
	m.UpdateTier("missing", Tier2, asr.Final("x", 0.5, 0))
	if _, ok := m.Get("missing"); ok {
		t.Fatalf("update for unknown segment should not create a record")
	}
}

func TestResultMergerNotifiesSynchronously(t *testing.T) {
	m := NewResultMerger()
	var notifications []UpdateNotification
	m.SetOnUpdate(func(n UpdateNotification) {
		notifications = append(notifications, n)
	})

	m.AddTier1("s_1", asr.Final("hello", 0.8, 0))
	m.UpdateTier("s_1", Tier2, asr.Final("hello world", 0.95, 0))

	if len(notifications) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(notifications))
	}
	if notifications[0].Tier != Tier1 || notifications[1].Tier != Tier2 {
		t.Fatalf("unexpected notification order: %+v", notifications)
	}
}
