package model

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a work unit.
type Status string

const (
	StatusReady      Status = "ready"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusWaiting    Status = "waiting"
	StatusDone       Status = "done"
)

// statusOrder is the canonical display and iteration order for statuses.
var statusOrder = []Status{
	StatusReady, StatusInProgress, StatusBlocked, StatusWaiting, StatusDone,
}

// Statuses returns all lifecycle states in canonical order.
func Statuses() []Status {
	out := make([]Status, len(statusOrder))
	copy(out, statusOrder)
	return out
}

// Valid reports whether s is one of the five lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusReady, StatusInProgress, StatusBlocked, StatusWaiting, StatusDone:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s Status) Terminal() bool { return s == StatusDone }

// transitions is the fixed lifecycle table. A pair (from, to) is legal iff
// to is present in transitions[from]. Done has an empty row: terminal.
var transitions = map[Status]map[Status]struct{}{
	StatusReady: {
		StatusInProgress: {},
	},
	StatusInProgress: {
		StatusBlocked: {},
		StatusWaiting: {},
		StatusDone:    {},
		StatusReady:   {},
	},
	StatusBlocked: {
		StatusInProgress: {},
		StatusDone:       {},
	},
	StatusWaiting: {
		StatusInProgress: {},
		StatusDone:       {},
	},
	StatusDone: {},
}

// CanTransition reports whether the pair (from, to) is in the lifecycle
// table. Unrecognized states are never legal sources or targets.
func CanTransition(from, to Status) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// LegalNext returns the legal successor states of from in canonical order.
// The result is empty for terminal or unrecognized states.
func LegalNext(from Status) []Status {
	next, ok := transitions[from]
	if !ok {
		return nil
	}
	var out []Status
	for _, s := range statusOrder {
		if _, ok := next[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// AssertTransition validates the pair (from, to) against the lifecycle
// table. On an illegal pair, or when either state is unrecognized or empty,
// it returns a *StateError carrying the attempted pair and the full set of
// legal successors of from. A nil return means the transition may proceed.
func AssertTransition(from, to Status, id string) error {
	if from.Valid() && to.Valid() && CanTransition(from, to) {
		return nil
	}
	return &StateError{ID: id, From: from, To: to, Legal: LegalNext(from)}
}

// StateError reports an invalid or illegal lifecycle transition. It is
// produced before any write: an event that fails validation never reaches
// the log.
type StateError struct {
	ID    string
	From  Status
	To    Status
	Legal []Status
}

func (e *StateError) Error() string {
	from := string(e.From)
	if from == "" {
		from = "(none)"
	}
	legal := "none"
	if len(e.Legal) > 0 {
		parts := make([]string, len(e.Legal))
		for i, s := range e.Legal {
			parts[i] = string(s)
		}
		legal = strings.Join(parts, ", ")
	}
	return fmt.Sprintf("work unit %s: cannot transition %s -> %s (legal next: %s)",
		e.ID, from, e.To, legal)
}
