// Package model defines the core domain types for worklog.
//
// Worklog coordinates concurrent agent sessions that edit a shared
// repository, using two ideas:
//
//   - An append-only event log as the single source of truth: every lifecycle
//     change is one immutable record, and the current state of a work unit is
//     a deterministic fold over its own history. Replay is idempotent, so any
//     process can reconstruct identical state from the bytes alone.
//
//   - Advisory file locking with staleness reclaim: writers serialize through
//     a single lock file next to the log; a crashed holder is detected by pid
//     liveness on the same host and by age elsewhere, so the system heals
//     without manual cleanup.
//
// Everything else in the repository (rendered boards, per-unit documents'
// status fields, completion markers, the sqlite index) is a derived cache,
// safe to delete and rebuild from the log.
package model

import (
	"os"
	"regexp"
	"slices"
	"time"

	"github.com/google/uuid"
)

// idPattern matches work-unit identifiers: "WU-" followed by digits.
var idPattern = regexp.MustCompile(`^WU-[0-9]+$`)

// ValidID reports whether id is a well-formed work-unit identifier.
func ValidID(id string) bool { return idPattern.MatchString(id) }

// WorkUnit is the projected state of one unit of work, derived by folding
// its event history in log order. It is never written directly; the event
// log owns every change.
type WorkUnit struct {
	ID         string    `json:"id"`
	Status     Status    `json:"status"`
	Lane       string    `json:"lane,omitempty"`
	Title      string    `json:"title,omitempty"`
	Locked     bool      `json:"locked"`
	ClaimedBy  string    `json:"claimed_by,omitempty"`
	ClaimedPID int       `json:"claimed_pid,omitempty"`
	ClaimedAt  time.Time `json:"claimed_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Projection is the full derived state: one WorkUnit per id. It is plain
// data with no backing store; callers obtain one from a replay and treat it
// as a snapshot.
type Projection map[string]*WorkUnit

// Get returns the unit for id, or nil if the projection has never seen it.
func (p Projection) Get(id string) *WorkUnit { return p[id] }

// StatusOf returns the current status for id, or "" for an unknown unit.
func (p Projection) StatusOf(id string) Status {
	if wu := p[id]; wu != nil {
		return wu.Status
	}
	return ""
}

// Units returns every unit sorted by id, so iteration order is stable.
func (p Projection) Units() []*WorkUnit {
	ids := make([]string, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}
	sortIDs(ids)
	units := make([]*WorkUnit, len(ids))
	for i, id := range ids {
		units[i] = p[id]
	}
	return units
}

// ByLane returns the units in lane, sorted by id.
func (p Projection) ByLane(lane string) []*WorkUnit {
	var units []*WorkUnit
	for _, wu := range p.Units() {
		if wu.Lane == lane {
			units = append(units, wu)
		}
	}
	return units
}

// ByStatus returns the units currently in st, sorted by id.
func (p Projection) ByStatus(st Status) []*WorkUnit {
	var units []*WorkUnit
	for _, wu := range p.Units() {
		if wu.Status == st {
			units = append(units, wu)
		}
	}
	return units
}

// sortIDs orders work-unit ids numerically where possible ("WU-9" before
// "WU-10"), falling back to lexicographic order for anything malformed.
func sortIDs(ids []string) {
	slices.SortFunc(ids, func(a, b string) int {
		na, oka := idNumber(a)
		nb, okb := idNumber(b)
		if oka && okb {
			switch {
			case na < nb:
				return -1
			case na > nb:
				return 1
			}
			return 0
		}
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	})
}

func idNumber(id string) (int64, bool) {
	if !ValidID(id) {
		return 0, false
	}
	var n int64
	for _, c := range id[len("WU-"):] {
		n = n*10 + int64(c-'0')
	}
	return n, true
}

// SessionState tracks whether a claim context is still live.
type SessionState string

const (
	SessionActive SessionState = "active"
	SessionClosed SessionState = "closed"
)

// Session is one agent's exclusive claim context for a work unit. Sessions
// are not stored anywhere: the claim event carries the identifying fields,
// and active sessions are recovered from the projection.
type Session struct {
	ID        string       `json:"id"`
	WUID      string       `json:"wu_id,omitempty"`
	PID       int          `json:"pid"`
	State     SessionState `json:"state"`
	Lane      string       `json:"lane,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// NewSession creates an active session owned by the calling process. The id
// is a fresh UUID; the work unit is bound at claim time.
func NewSession() Session {
	return Session{
		ID:        uuid.NewString(),
		PID:       os.Getpid(),
		State:     SessionActive,
		StartedAt: time.Now().UTC(),
	}
}
