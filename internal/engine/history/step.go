package history

import (
	"fmt"
	"time"
	"weak"

	"github.com/google/uuid"
)

// Subject is a non-owning reference to the object an entry concerns. It is
// only used to target UI refreshes and never keeps the object alive.
type Subject struct {
	value func() any
}

// WeakSubject returns a Subject that refers to p without retaining it.
func WeakSubject[T any](p *T) Subject {
	if p == nil {
		return Subject{}
	}
	wp := weak.Make(p)
	return Subject{value: func() any {
		if v := wp.Value(); v != nil {
			return v
		}
		return nil
	}}
}

// Value returns the referenced object, or nil if it has been collected or
// the subject is empty.
func (s Subject) Value() any {
	if s.value == nil {
		return nil
	}
	return s.value()
}

// Entry is one reversible mutation inside a Step.
type Entry struct {
	Undo    Command
	Redo    Command
	Post    Command // optional, run after Redo
	Subject Subject // optional
	Label   string
}

// Step is a committed group of entries that undo and redo as one unit.
// A Step is never modified after it is committed.
type Step struct {
	id        uuid.UUID
	label     string
	entries   []Entry
	committed time.Time
}

func newStep(label string, entries []Entry) *Step {
	if label == "" {
		label = entries[0].Label
	}
	if label == "" {
		label = fmt.Sprintf("%d changes", len(entries))
	}
	return &Step{
		id:        uuid.New(),
		label:     label,
		entries:   entries,
		committed: time.Now(),
	}
}

// ID returns the step's unique identifier.
func (s *Step) ID() uuid.UUID { return s.id }

// Label returns the user-visible description.
func (s *Step) Label() string { return s.label }

// Len returns the number of entries.
func (s *Step) Len() int { return len(s.entries) }

// Committed returns when the step was committed.
func (s *Step) Committed() time.Time { return s.committed }

// Entry returns the i-th entry.
func (s *Step) Entry(i int) Entry { return s.entries[i] }

// Entries returns a copy of the entry list.
func (s *Step) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Subjects returns the live subjects of the step's entries, in entry
// order. Collected and empty subjects are left out.
func (s *Step) Subjects() []any {
	var out []any
	for _, e := range s.entries {
		if v := e.Subject.Value(); v != nil {
			out = append(out, v)
		}
	}
	return out
}
