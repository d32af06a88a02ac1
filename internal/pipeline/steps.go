package pipeline

import "fmt"

// Trace is the ordered list of human-readable checkpoints a stage passed
// through. It rides along in every stage response for operational diagnosis;
// the strings are not a stable contract surface.
type Trace struct {
	steps []string
}

// Add appends a checkpoint.
func (t *Trace) Add(format string, args ...any) {
	if len(args) == 0 {
		t.steps = append(t.steps, format)
		return
	}
	t.steps = append(t.steps, fmt.Sprintf(format, args...))
}

// Steps returns the accumulated checkpoints. Never nil, so the JSON field
// serializes as [] rather than null.
func (t *Trace) Steps() []string {
	if t.steps == nil {
		return []string{}
	}
	return t.steps
}
