package api

import "testing"

func TestNotifierRemembersLastAnalysis(t *testing.T) {
	notifier := NewAnalysisNotifier()
	if notifier.LastEvent() != nil {
		t.Fatal("expected no event before broadcast")
	}

	dto := AnalysisDTO{ID: 7, FreshnessScore: 81}
	notifier.Broadcast(AnalysisEvent{Type: "analysis", Analysis: &dto})

	last := notifier.LastEvent()
	if last == nil || last.Analysis == nil || last.Analysis.ID != 7 {
		t.Fatalf("expected last analysis event for id 7, got %+v", last)
	}
	if last.Timestamp.IsZero() {
		t.Fatal("broadcast should stamp the event")
	}

	// Non-analysis events must not overwrite the replay snapshot.
	notifier.Broadcast(AnalysisEvent{Type: "error", Message: "decode failed"})
	if last := notifier.LastEvent(); last == nil || last.Type != "analysis" {
		t.Fatalf("expected analysis event retained, got %+v", last)
	}
}
