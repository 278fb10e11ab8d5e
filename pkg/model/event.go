package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType enumerates the closed set of wire event types. Parsing rejects
// anything outside this set; there is no generic or dynamic payload shape.
type EventType string

const (
	EventClaim    EventType = "claim"
	EventBlock    EventType = "block"
	EventUnblock  EventType = "unblock"
	EventComplete EventType = "complete"
	EventRelease  EventType = "release"
	EventOverride EventType = "override"
)

// Payload is the variant-specific portion of an event. Exactly one
// implementation exists per event type.
type Payload interface {
	eventType() EventType
}

// ClaimPayload binds a session to a work unit, creating the unit on first
// claim. Lane and title are recorded from the unit's document when known.
type ClaimPayload struct {
	Session string `json:"session"`
	PID     int    `json:"pid,omitempty"`
	Lane    string `json:"lane,omitempty"`
	Title   string `json:"title,omitempty"`
}

func (ClaimPayload) eventType() EventType { return EventClaim }

// BlockPayload pauses an in-progress unit. To selects which paused state is
// entered: blocked (dependency) or waiting (external input).
type BlockPayload struct {
	Session string `json:"session,omitempty"`
	To      Status `json:"to"`
	Reason  string `json:"reason,omitempty"`
}

func (BlockPayload) eventType() EventType { return EventBlock }

// UnblockPayload resumes a paused unit.
type UnblockPayload struct {
	Session string `json:"session,omitempty"`
}

func (UnblockPayload) eventType() EventType { return EventUnblock }

// CompletePayload finishes a unit. At most one complete event ever exists
// per work unit; duplicates are dropped before they reach the log.
type CompletePayload struct {
	Session string `json:"session,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func (CompletePayload) eventType() EventType { return EventComplete }

// ReleasePayload drops a claim, returning the unit to ready.
type ReleasePayload struct {
	Session string `json:"session,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func (ReleasePayload) eventType() EventType { return EventRelease }

// OverrideAction names what a forced override did.
type OverrideAction string

const (
	// OverrideComplete audits a forced completion (wrong session, or a unit
	// never claimed). The status change itself travels in the complete event
	// that follows; this record only bears witness.
	OverrideComplete OverrideAction = "complete"

	// OverrideReopen reverts a done unit to ready. This is the one event
	// that moves a unit out of the terminal state, and it only exists on the
	// forced path.
	OverrideReopen OverrideAction = "reopen"
)

// OverridePayload is the audit record appended by every forced operation.
type OverridePayload struct {
	Session    string         `json:"session"`
	Action     OverrideAction `json:"action"`
	Prior      Status         `json:"prior,omitempty"`
	Overridden string         `json:"overridden,omitempty"`
	Reason     string         `json:"reason"`
}

func (OverridePayload) eventType() EventType { return EventOverride }

// Event is one immutable record in the append-only log: a common envelope
// (type, work-unit id, wall-clock timestamp) plus the variant payload. Log
// order is the authoritative causal order; the timestamp is display only.
type Event struct {
	Type      EventType
	WUID      string
	Timestamp time.Time
	Payload   Payload
}

// envelope is the common wire prefix shared by all variants.
type envelope struct {
	Type      EventType `json:"type"`
	WUID      string    `json:"wuId"`
	Timestamp time.Time `json:"timestamp"`
}

// MarshalJSON flattens the envelope and the variant payload into a single
// object, the shape the log stores: {type, wuId, timestamp, ...payload}.
func (e Event) MarshalJSON() ([]byte, error) {
	env := envelope{Type: e.Type, WUID: e.WUID, Timestamp: e.Timestamp}
	switch p := e.Payload.(type) {
	case ClaimPayload:
		return json.Marshal(struct {
			envelope
			ClaimPayload
		}{env, p})
	case BlockPayload:
		return json.Marshal(struct {
			envelope
			BlockPayload
		}{env, p})
	case UnblockPayload:
		return json.Marshal(struct {
			envelope
			UnblockPayload
		}{env, p})
	case CompletePayload:
		return json.Marshal(struct {
			envelope
			CompletePayload
		}{env, p})
	case ReleasePayload:
		return json.Marshal(struct {
			envelope
			ReleasePayload
		}{env, p})
	case OverridePayload:
		return json.Marshal(struct {
			envelope
			OverridePayload
		}{env, p})
	case nil:
		return nil, fmt.Errorf("event %s for %s has no payload", e.Type, e.WUID)
	default:
		return nil, fmt.Errorf("event %s for %s has unknown payload type %T", e.Type, e.WUID, p)
	}
}

// UnmarshalJSON decodes the envelope, then dispatches on the type tag to
// decode the matching payload. Unknown types are rejected here, at parse
// time, rather than carried along as shapeless data.
func (e *Event) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	var payload Payload
	switch env.Type {
	case EventClaim:
		var p ClaimPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		payload = p
	case EventBlock:
		var p BlockPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		payload = p
	case EventUnblock:
		var p UnblockPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		payload = p
	case EventComplete:
		var p CompletePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		payload = p
	case EventRelease:
		var p ReleasePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		payload = p
	case EventOverride:
		var p OverridePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		payload = p
	default:
		return fmt.Errorf("unknown event type %q", env.Type)
	}
	e.Type = env.Type
	e.WUID = env.WUID
	e.Timestamp = env.Timestamp
	e.Payload = payload
	return nil
}

// Validate checks that the event is well formed: known type, well-formed
// work-unit id, a payload matching the type, and payload fields within
// their closed value sets. It does not consult any projection; transition
// legality is a separate check.
func (e Event) Validate() error {
	if !ValidID(e.WUID) {
		return fmt.Errorf("event %s: malformed work unit id %q", e.Type, e.WUID)
	}
	if e.Payload == nil {
		return fmt.Errorf("event %s for %s: missing payload", e.Type, e.WUID)
	}
	if got := e.Payload.eventType(); got != e.Type {
		return fmt.Errorf("event %s for %s: payload belongs to %s", e.Type, e.WUID, got)
	}
	switch p := e.Payload.(type) {
	case ClaimPayload:
		if p.Session == "" {
			return fmt.Errorf("claim for %s: missing session", e.WUID)
		}
	case BlockPayload:
		if p.To != StatusBlocked && p.To != StatusWaiting {
			return fmt.Errorf("block for %s: target %q is not a paused state", e.WUID, p.To)
		}
	case OverridePayload:
		if p.Action != OverrideComplete && p.Action != OverrideReopen {
			return fmt.Errorf("override for %s: unknown action %q", e.WUID, p.Action)
		}
		if p.Reason == "" {
			return fmt.Errorf("override for %s: a forced operation requires a reason", e.WUID)
		}
	}
	return nil
}

// Transition returns the lifecycle edge this event takes from the unit's
// current status ("" for a unit the log has never seen). Each event owns a
// fixed set of source states, narrower than the raw table where a pair is
// reachable by more than one event: claim owns ready -> in_progress, and
// unblock owns the paused returns to in_progress. Override events have no
// table edge and must not be passed here.
func (e Event) Transition(current Status) (from, to Status, err error) {
	switch p := e.Payload.(type) {
	case ClaimPayload:
		// A unit the log has never seen is born ready; the creating claim
		// records the ready -> in_progress move.
		from = current
		if from == "" {
			from = StatusReady
		}
		if from != StatusReady {
			return "", "", &StateError{ID: e.WUID, From: current, To: StatusInProgress, Legal: LegalNext(current)}
		}
		return from, StatusInProgress, nil
	case BlockPayload:
		return edge(e.WUID, current, p.To)
	case UnblockPayload:
		if current != StatusBlocked && current != StatusWaiting {
			return "", "", &StateError{ID: e.WUID, From: current, To: StatusInProgress, Legal: LegalNext(current)}
		}
		return edge(e.WUID, current, StatusInProgress)
	case CompletePayload:
		return edge(e.WUID, current, StatusDone)
	case ReleasePayload:
		return edge(e.WUID, current, StatusReady)
	default:
		return "", "", fmt.Errorf("event %s for %s has no lifecycle edge", e.Type, e.WUID)
	}
}

// edge validates one table transition for a known unit. Units the log has
// never seen are rejected up front; only claim creates.
func edge(id string, current, to Status) (Status, Status, error) {
	if current == "" {
		return "", "", &StateError{ID: id, From: "", To: to, Legal: nil}
	}
	if err := AssertTransition(current, to, id); err != nil {
		return "", "", err
	}
	return current, to, nil
}
