package models

import "testing"

func TestStatusTransitionsForward(t *testing.T) {
	path := []MeetingStatus{StatusRecording, StatusProcessing, StatusAnalyzing, StatusLinking, StatusDone}
	for i := 0; i < len(path)-1; i++ {
		if !path[i].CanTransition(path[i+1]) {
			t.Errorf("expected %s -> %s to be allowed", path[i], path[i+1])
		}
	}
}

func TestStatusTransitionsFailure(t *testing.T) {
	if !StatusProcessing.CanTransition(StatusFailed) {
		t.Error("processing should be able to fail")
	}
	if !StatusAnalyzing.CanTransition(StatusFailed) {
		t.Error("analyzing should be able to fail")
	}
	// Linking is best-effort and never fails the meeting.
	if StatusLinking.CanTransition(StatusFailed) {
		t.Error("linking must not transition to failed")
	}
}

func TestStatusTransitionsRetry(t *testing.T) {
	if !StatusFailed.CanTransition(StatusProcessing) {
		t.Error("failed should retry into processing")
	}
	if !StatusFailed.CanTransition(StatusAnalyzing) {
		t.Error("failed should retry into analyzing")
	}
}

func TestStatusTransitionsRejected(t *testing.T) {
	rejected := []struct {
		from, to MeetingStatus
	}{
		{StatusDone, StatusProcessing},
		{StatusDone, StatusFailed},
		{StatusRecording, StatusAnalyzing},
		{StatusRecording, StatusDone},
		{StatusProcessing, StatusLinking},
		{StatusAnalyzing, StatusDone},
		{StatusFailed, StatusLinking},
		{StatusFailed, StatusDone},
	}
	for _, tc := range rejected {
		if tc.from.CanTransition(tc.to) {
			t.Errorf("expected %s -> %s to be rejected", tc.from, tc.to)
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []MeetingStatus{StatusDone, StatusFailed} {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []MeetingStatus{StatusRecording, StatusProcessing, StatusAnalyzing, StatusLinking} {
		if s.Terminal() {
			t.Errorf("expected %s not to be terminal", s)
		}
	}
}

func TestNormalizePriority(t *testing.T) {
	cases := map[string]ActionItemPriority{
		"high":   PriorityHigh,
		"HIGH":   PriorityHigh,
		" low ":  PriorityLow,
		"medium": PriorityMedium,
		"urgent": PriorityMedium,
		"":       PriorityMedium,
		"P0":     PriorityMedium,
	}
	for input, want := range cases {
		if got := NormalizePriority(input); got != want {
			t.Errorf("NormalizePriority(%q) = %s, want %s", input, got, want)
		}
	}
}

func TestValidActionStatus(t *testing.T) {
	for _, s := range []ActionItemStatus{ActionOpen, ActionDone, ActionCancelled} {
		if !ValidActionStatus(s) {
			t.Errorf("expected %s to be valid", s)
		}
	}
	if ValidActionStatus("archived") {
		t.Error("archived should not be a valid action status")
	}
}
