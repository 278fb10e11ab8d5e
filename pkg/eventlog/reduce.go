// reduce.go is the pure fold from event history to projected state. It does
// no I/O and consults nothing but its arguments, so any two replays of the
// same lines produce identical projections.
package eventlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/daviddao/worklog/pkg/model"
)

// Reduce folds events into a fresh projection.
func Reduce(events []model.Event) model.Projection {
	p := model.Projection{}
	for _, ev := range events {
		Apply(p, ev)
	}
	return p
}

// Apply folds one event into p and reports whether it applied. The fold is
// total: an event that does not validate or whose transition is illegal
// from the unit's current state (possible only in a hand-edited log) is
// skipped, never fatal, so replay stays deterministic over any bytes.
func Apply(p model.Projection, ev model.Event) bool {
	if ev.Validate() != nil {
		return false
	}
	if op, ok := ev.Payload.(model.OverridePayload); ok {
		return applyOverride(p, ev, op)
	}
	_, to, err := ev.Transition(p.StatusOf(ev.WUID))
	if err != nil {
		return false
	}
	wu := p[ev.WUID]
	if wu == nil {
		wu = &model.WorkUnit{ID: ev.WUID, CreatedAt: ev.Timestamp}
		p[ev.WUID] = wu
	}
	wu.Status = to
	wu.UpdatedAt = ev.Timestamp
	switch pl := ev.Payload.(type) {
	case model.ClaimPayload:
		wu.Locked = true
		wu.ClaimedBy = pl.Session
		wu.ClaimedPID = pl.PID
		wu.ClaimedAt = ev.Timestamp
		if pl.Lane != "" {
			wu.Lane = pl.Lane
		}
		if pl.Title != "" {
			wu.Title = pl.Title
		}
	case model.CompletePayload, model.ReleasePayload:
		clearClaim(wu)
	}
	return true
}

// applyOverride folds a forced-operation audit record. Only the reopen
// action changes state (done back to ready); a complete-action record bears
// witness to the forced completion and the status change itself travels in
// the complete event that follows it.
func applyOverride(p model.Projection, ev model.Event, op model.OverridePayload) bool {
	if op.Action != model.OverrideReopen {
		return true
	}
	wu := p[ev.WUID]
	if wu == nil || wu.Status != model.StatusDone {
		return false
	}
	wu.Status = model.StatusReady
	wu.UpdatedAt = ev.Timestamp
	clearClaim(wu)
	return true
}

func clearClaim(wu *model.WorkUnit) {
	wu.Locked = false
	wu.ClaimedBy = ""
	wu.ClaimedPID = 0
	wu.ClaimedAt = time.Time{}
}

// Prepare validates events against proj in order, folding each accepted
// event so later events in the batch observe earlier effects, and returns
// the encoded NDJSON lines ready for an append. proj is consumed: callers
// pass a throwaway replay, not a shared snapshot.
//
// A complete event for a unit already done is dropped silently, which keeps
// completion idempotent (re-running an applied completion encodes nothing).
// Every other validation or transition failure aborts the whole batch with
// no lines.
func Prepare(proj model.Projection, events []model.Event) ([]byte, error) {
	var buf bytes.Buffer
	for _, ev := range events {
		if err := ev.Validate(); err != nil {
			return nil, err
		}
		switch {
		case ev.Type == model.EventComplete && proj.StatusOf(ev.WUID) == model.StatusDone:
			continue
		case ev.Type == model.EventOverride:
			op := ev.Payload.(model.OverridePayload)
			if op.Action == model.OverrideReopen {
				if cur := proj.StatusOf(ev.WUID); cur != model.StatusDone {
					return nil, &model.StateError{ID: ev.WUID, From: cur, To: model.StatusReady, Legal: model.LegalNext(cur)}
				}
			}
		default:
			if _, _, err := ev.Transition(proj.StatusOf(ev.WUID)); err != nil {
				return nil, err
			}
		}
		Apply(proj, ev)
		line, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("encode %s event for %s: %w", ev.Type, ev.WUID, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}
