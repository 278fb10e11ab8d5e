package coord

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/daviddao/worklog/pkg/config"
	"github.com/daviddao/worklog/pkg/eventlog"
	"github.com/daviddao/worklog/pkg/model"
	"github.com/daviddao/worklog/pkg/txn"
	"github.com/daviddao/worklog/pkg/wudoc"
)

// ClaimOpts carries the optional fields a claim records on the unit.
type ClaimOpts struct {
	Lane  string // "" uses the configured default lane
	Title string // "" leaves an existing title in place
}

// CompleteOpts modifies a completion. Force, with a reason, completes past
// another session's claim or from a state with no direct edge to done.
type CompleteOpts struct {
	Session model.Session
	Force   bool
	Reason  string
}

// ReopenOpts modifies a reopen. Reopen is always forced; the reason lands
// in the audit record.
type ReopenOpts struct {
	Session model.Session
	Force   bool
	Reason  string
}

// Claim takes id for session: ready (or unborn) to in_progress, the unit
// document created or rewritten, the board re-rendered, all in one commit.
// With worktrees enabled a wu/<id> worktree is prepared after the commit;
// a worktree failure surfaces as an error but the claim itself is durable.
func (c *Coordinator) Claim(ctx context.Context, id string, session model.Session, opts ClaimOpts) error {
	lane := opts.Lane
	if lane == "" {
		lane = c.cfg.DefaultLane
	}
	now := c.now().UTC()

	tx := c.begin()
	tx.Require(id, "", model.StatusReady)
	tx.Append(model.Event{
		Type:      model.EventClaim,
		WUID:      id,
		Timestamp: now,
		Payload: model.ClaimPayload{
			Session: session.ID,
			PID:     session.PID,
			Lane:    lane,
			Title:   opts.Title,
		},
	})
	tx.StageFunc(c.cfg.DocPath(id), func(old []byte) ([]byte, error) {
		if len(old) == 0 {
			return wudoc.NewContent(id, model.StatusInProgress, lane, opts.Title, now)
		}
		return wudoc.SetStatus(old, model.StatusInProgress, now)
	})
	tx.StageView(c.cfg.BoardPath(), renderBoard)
	if err := c.commit(ctx, tx, model.EventClaim); err != nil {
		return err
	}

	if !c.cfg.WorktreeEnabled {
		return nil
	}
	if err := c.prepareWorktree(ctx, id); err != nil {
		return fmt.Errorf("claim %s recorded, worktree setup failed: %w", id, err)
	}
	return nil
}

// TransitionTo maps a target status onto the operation that owns the edge.
// Claiming binds a session and runs through Claim, so ready to in_progress
// is not reachable here; in_progress as a target means resuming a paused
// unit.
func (c *Coordinator) TransitionTo(ctx context.Context, id string, to model.Status, session model.Session) error {
	switch to {
	case model.StatusBlocked, model.StatusWaiting:
		return c.Block(ctx, id, to, "", session)
	case model.StatusInProgress:
		return c.Unblock(ctx, id, session)
	case model.StatusReady:
		return c.Release(ctx, id, session)
	case model.StatusDone:
		return c.Complete(ctx, id, CompleteOpts{Session: session})
	default:
		return fmt.Errorf("work unit %s: no operation reaches status %q", id, to)
	}
}

// Block pauses an in-progress unit into blocked or waiting.
func (c *Coordinator) Block(ctx context.Context, id string, to model.Status, reason string, session model.Session) error {
	now := c.now().UTC()
	tx := c.begin()
	tx.Require(id, model.StatusInProgress)
	tx.Append(model.Event{
		Type:      model.EventBlock,
		WUID:      id,
		Timestamp: now,
		Payload:   model.BlockPayload{Session: session.ID, To: to, Reason: reason},
	})
	c.stageDocStatus(tx, id, to, now)
	tx.StageView(c.cfg.BoardPath(), renderBoard)
	return c.commit(ctx, tx, model.EventBlock)
}

// Unblock resumes a paused unit to in_progress.
func (c *Coordinator) Unblock(ctx context.Context, id string, session model.Session) error {
	now := c.now().UTC()
	tx := c.begin()
	tx.Require(id, model.StatusBlocked, model.StatusWaiting)
	tx.Append(model.Event{
		Type:      model.EventUnblock,
		WUID:      id,
		Timestamp: now,
		Payload:   model.UnblockPayload{Session: session.ID},
	})
	c.stageDocStatus(tx, id, model.StatusInProgress, now)
	tx.StageView(c.cfg.BoardPath(), renderBoard)
	return c.commit(ctx, tx, model.EventUnblock)
}

// Release returns an in-progress unit to ready and clears its claim. The
// caller's session is recorded but not checked against the claim: release
// is also the recovery path for units held by sessions that died. The
// unit's worktree, if any, stays in place for the next claimant.
func (c *Coordinator) Release(ctx context.Context, id string, session model.Session) error {
	now := c.now().UTC()
	tx := c.begin()
	tx.Require(id, model.StatusInProgress)
	tx.Append(model.Event{
		Type:      model.EventRelease,
		WUID:      id,
		Timestamp: now,
		Payload:   model.ReleasePayload{Session: session.ID},
	})
	c.stageDocStatus(tx, id, model.StatusReady, now)
	tx.StageView(c.cfg.BoardPath(), renderBoard)
	return c.commit(ctx, tx, model.EventRelease)
}

// Complete finishes id. A unit already done is a no-op. A unit claimed by
// another session needs Force, which appends an override audit record ahead
// of the completion; forcing from ready additionally threads a claim event
// through, since ready has no direct edge to done. The completion marker is
// written and the unit's worktree removed in the same operation.
func (c *Coordinator) Complete(ctx context.Context, id string, opts CompleteOpts) error {
	proj, err := c.store.Load()
	if err != nil {
		return err
	}
	wu := proj.Get(id)
	if wu == nil {
		return fmt.Errorf("work unit %s: %w", id, eventlog.ErrNotFound)
	}
	if wu.Status == model.StatusDone {
		return nil
	}
	now := c.now().UTC()

	var events []model.Event
	claimedByOther := wu.Locked && wu.ClaimedBy != opts.Session.ID
	switch {
	case claimedByOther && !opts.Force:
		return fmt.Errorf("complete %s: %w (session %s)", id, ErrNotClaimant, wu.ClaimedBy)
	case claimedByOther:
		events = append(events, model.Event{
			Type:      model.EventOverride,
			WUID:      id,
			Timestamp: now,
			Payload: model.OverridePayload{
				Session:    opts.Session.ID,
				Action:     model.OverrideComplete,
				Prior:      wu.Status,
				Overridden: wu.ClaimedBy,
				Reason:     opts.Reason,
			},
		})
	case wu.Status == model.StatusReady && opts.Force:
		events = append(events,
			model.Event{
				Type:      model.EventOverride,
				WUID:      id,
				Timestamp: now,
				Payload: model.OverridePayload{
					Session: opts.Session.ID,
					Action:  model.OverrideComplete,
					Prior:   wu.Status,
					Reason:  opts.Reason,
				},
			},
			model.Event{
				Type:      model.EventClaim,
				WUID:      id,
				Timestamp: now,
				Payload: model.ClaimPayload{
					Session: opts.Session.ID,
					PID:     opts.Session.PID,
					Lane:    wu.Lane,
					Title:   wu.Title,
				},
			})
	}
	// The paused states have their own edge to done, so an owned blocked or
	// waiting unit completes directly. Unforced completion from ready fails
	// transition validation inside the commit, before anything is written.
	events = append(events, model.Event{
		Type:      model.EventComplete,
		WUID:      id,
		Timestamp: now,
		Payload:   model.CompletePayload{Session: opts.Session.ID, Reason: opts.Reason},
	})

	marker, err := json.MarshalIndent(doneMarker{
		ID:          id,
		CompletedAt: now,
		Session:     opts.Session.ID,
		Forced:      len(events) > 1,
		Reason:      opts.Reason,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode completion marker for %s: %w", id, err)
	}

	tx := c.begin()
	tx.Require(id, wu.Status)
	tx.Append(events...)
	tx.Stage(c.cfg.MarkerPath(id), append(marker, '\n'))
	c.stageDocStatus(tx, id, model.StatusDone, now)
	tx.StageView(c.cfg.BoardPath(), renderBoard)
	types := make([]model.EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	if err := c.commit(ctx, tx, types...); err != nil {
		return err
	}

	if err := c.removeWorktree(ctx, id); err != nil {
		return fmt.Errorf("complete %s recorded, worktree removal failed: %w", id, err)
	}
	return nil
}

// Reopen forces a done unit back to ready. The override audit record is the
// only event that leaves the terminal state, so Force is mandatory; the
// completion marker is removed in the same commit.
func (c *Coordinator) Reopen(ctx context.Context, id string, opts ReopenOpts) error {
	if !opts.Force {
		return fmt.Errorf("reopen %s: %w", id, ErrForceRequired)
	}
	now := c.now().UTC()
	tx := c.begin()
	tx.Require(id, model.StatusDone)
	tx.Append(model.Event{
		Type:      model.EventOverride,
		WUID:      id,
		Timestamp: now,
		Payload: model.OverridePayload{
			Session: opts.Session.ID,
			Action:  model.OverrideReopen,
			Prior:   model.StatusDone,
			Reason:  opts.Reason,
		},
	})
	tx.StageRemove(c.cfg.MarkerPath(id))
	c.stageDocStatus(tx, id, model.StatusReady, now)
	tx.StageView(c.cfg.BoardPath(), renderBoard)
	return c.commit(ctx, tx, model.EventOverride)
}

// doneMarker is the JSON body of a completion marker file.
type doneMarker struct {
	ID          string    `json:"id"`
	CompletedAt time.Time `json:"completed_at"`
	Session     string    `json:"session,omitempty"`
	Forced      bool      `json:"forced,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}

// stageDocStatus queues a rewrite of the unit document's status field when
// the document exists. Absence is tolerated: documents appear on first
// claim, and a unit whose document was never created still transitions.
func (c *Coordinator) stageDocStatus(tx *txn.Tx, id string, st model.Status, now time.Time) {
	path := c.cfg.DocPath(id)
	if _, err := os.Stat(path); err != nil {
		return
	}
	tx.StageFunc(path, func(old []byte) ([]byte, error) {
		return wudoc.SetStatus(old, st, now)
	})
}

// prepareWorktree checks out a worktree for id on its wu/<id> branch,
// creating the branch when it does not exist yet. An existing checkout is
// reused as-is.
func (c *Coordinator) prepareWorktree(ctx context.Context, id string) error {
	branch := config.BranchFor(id)
	if c.cfg.WorktreeRemote != "" {
		// Best effort: the branch may not exist on the remote yet, and an
		// unreachable remote must not block claiming.
		_ = c.vcs.Fetch(ctx, c.cfg.WorktreeRemote, branch)
	}
	path := c.cfg.WorktreePath(id)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return c.vcs.WorktreeAdd(ctx, path, branch)
}

// removeWorktree drops id's checkout after completion. The branch survives;
// only the working directory goes.
func (c *Coordinator) removeWorktree(ctx context.Context, id string) error {
	if !c.cfg.WorktreeEnabled {
		return nil
	}
	path := c.cfg.WorktreePath(id)
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return c.vcs.WorktreeRemove(ctx, path)
}
