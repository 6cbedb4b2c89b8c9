package engine

import "testing"

func TestTimelineOrderPreserved(t *testing.T) {
	tl := NewTimeline()
	tl.Set("INCREASE", 9)
	tl.Set("STABILIZED", 129)
	tl.Set("DECREASE", 200)

	marks := tl.Snapshot()
	if len(marks) != 3 {
		t.Fatalf("expected 3 marks, got %d", len(marks))
	}
	want := []string{"INCREASE", "STABILIZED", "DECREASE"}
	for i, name := range want {
		if marks[i].Name != name {
			t.Errorf("mark %d: expected %s, got %s", i, name, marks[i].Name)
		}
	}
}

func TestTimelineRepeatKeepsPositionUpdatesTime(t *testing.T) {
	tl := NewTimeline()
	tl.Set("INCREASE", 9)
	tl.Set("STABILIZED", 129)
	tl.Set("INCREASE", 260) // second episode

	marks := tl.Snapshot()
	if len(marks) != 2 {
		t.Fatalf("expected 2 marks, got %d", len(marks))
	}
	if marks[0].Name != "INCREASE" || marks[0].Time != 260 {
		t.Errorf("expected INCREASE first with the newest time, got %+v", marks[0])
	}
}

func TestTimelineReset(t *testing.T) {
	tl := NewTimeline()
	tl.Set("INCREASE", 9)
	tl.Reset()

	if marks := tl.Snapshot(); marks != nil {
		t.Errorf("expected empty snapshot after reset, got %v", marks)
	}
}
