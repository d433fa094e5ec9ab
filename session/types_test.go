package session

import "testing"

func TestCanTransitionHappyPath(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusCreated, StatusRecording, true},
		{StatusRecording, StatusPaused, true},
		{StatusRecording, StatusCompleted, true},
		{StatusPaused, StatusRecording, true},
		{StatusPaused, StatusCompleted, true},
		{StatusCreated, StatusCompleted, false},
		{StatusCompleted, StatusRecording, false},
		{StatusError, StatusRecording, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestCanTransitionAnyToError(t *testing.T) {
	for _, s := range []Status{StatusCreated, StatusRecording, StatusPaused} {
		if !CanTransition(s, StatusError) {
			t.Errorf("expected %s -> Error to be legal", s)
		}
	}
	if CanTransition(StatusCompleted, StatusError) {
		t.Errorf("Completed is terminal, should not transition to Error")
	}
	if CanTransition(StatusError, StatusError) {
		t.Errorf("Error is terminal, should not self-transition")
	}
}
