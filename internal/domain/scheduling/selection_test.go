package scheduling

import "testing"

func TestSelectionTracker_DiscardsStaleResponses(t *testing.T) {
	var tr SelectionTracker

	first := tr.Select("2026-10-20")
	second := tr.Select("2026-10-21")

	// The response for the first date arrives after the user moved on.
	if tr.Accept(first, "2026-10-20") {
		t.Error("stale response must be discarded")
	}
	if !tr.Accept(second, "2026-10-21") {
		t.Error("latest response must be applied")
	}
	if tr.Current() != "2026-10-21" {
		t.Errorf("expected current selection 2026-10-21, got %s", tr.Current())
	}
}

func TestSelectionTracker_ReselectSameDate(t *testing.T) {
	var tr SelectionTracker
	old := tr.Select("2026-10-20")
	latest := tr.Select("2026-10-20")

	if tr.Accept(old, "2026-10-20") {
		t.Error("an older request for the same date is still stale")
	}
	if !tr.Accept(latest, "2026-10-20") {
		t.Error("expected latest request to be accepted")
	}
}
