package engine

// Mark is a named milestone on the experiment timeline.
type Mark struct {
	Name string
	Time float64
}

// Timeline records milestone timestamps for marker rendering by the
// plotting collaborator. It is annotation only: control logic never
// reads it back.
type Timeline struct {
	order []string
	at    map[string]float64
}

// NewTimeline creates an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{at: make(map[string]float64)}
}

// Set records a milestone. A repeated name keeps its position in the
// ordering but takes the newest timestamp.
func (t *Timeline) Set(name string, at float64) {
	if _, seen := t.at[name]; !seen {
		t.order = append(t.order, name)
	}
	t.at[name] = at
}

// Snapshot returns the milestones in first-seen order.
func (t *Timeline) Snapshot() []Mark {
	if len(t.order) == 0 {
		return nil
	}
	out := make([]Mark, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, Mark{Name: name, Time: t.at[name]})
	}
	return out
}

// Reset clears all milestones.
func (t *Timeline) Reset() {
	t.order = nil
	t.at = make(map[string]float64)
}
