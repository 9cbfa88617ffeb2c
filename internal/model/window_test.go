package model

import "testing"

func TestProximityToCenter(t *testing.T) {
	w := Window{StartMs: 0, EndMs: 1000}

	if got := w.ProximityToCenter(500); got != 1.0 {
		t.Errorf("center: expected 1.0, got %v", got)
	}
	if got := w.ProximityToCenter(0); got != 0.0 {
		t.Errorf("boundary: expected 0.0, got %v", got)
	}
	if got := w.ProximityToCenter(1000); got != 0.0 {
		t.Errorf("far boundary: expected 0.0, got %v", got)
	}
	if got := w.ProximityToCenter(250); got <= 0 || got >= 1 {
		t.Errorf("midway point: expected value strictly between 0 and 1, got %v", got)
	}
}

func TestIsEditable(t *testing.T) {
	w := Window{TokenIndices: []int{2, 5, 7}}

	if !w.IsEditable(5) {
		t.Error("expected token 5 to be editable")
	}
	if w.IsEditable(3) {
		t.Error("expected token 3 to not be editable")
	}
}

func TestWindowSetProblemWindows(t *testing.T) {
	ws := WindowSet{
		Windows:              []Window{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		ProblemWindowIndices: []int{1},
	}

	got := ws.ProblemWindows()
	if len(got) != 1 || got[0].ID != "b" {
		t.Errorf("expected only window b, got %+v", got)
	}
	if ws.TotalWindows() != 3 {
		t.Errorf("expected 3 total windows, got %d", ws.TotalWindows())
	}
}
