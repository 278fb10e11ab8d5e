// Package drift compares the event log's projection against the derived
// surfaces that mirror it: the rendered board, per-unit document front
// matter, and completion markers.
//
// Drift is data, not panic. Derived files are routinely hand-edited or
// half-written by interrupted processes; the comparison reports every
// disagreement and leaves the caller to decide between failing a sync
// check and regenerating the surfaces from the log.
package drift

import (
	"fmt"
	"sort"

	"github.com/daviddao/worklog/pkg/model"
)

// Kind classifies a single disagreement.
type Kind string

const (
	// KindMissing marks a unit the log knows and the surface lacks.
	KindMissing Kind = "missing"
	// KindOrphan marks an id on the surface that the log has never seen.
	KindOrphan Kind = "orphan"
	// KindMismatch marks a unit whose surface status differs from the log.
	KindMismatch Kind = "mismatch"
)

// Surface names for Entry.Surface.
const (
	SurfaceBoard  = "board"
	SurfaceDoc    = "doc"
	SurfaceMarker = "marker"
)

// Entry is one disagreement between the log and a derived surface.
type Entry struct {
	Kind    Kind         `json:"kind"`
	Surface string       `json:"surface"`
	ID      string       `json:"id"`
	Want    model.Status `json:"want,omitempty"` // what the log says
	Got     model.Status `json:"got,omitempty"`  // what the surface shows
}

func (e Entry) String() string {
	switch e.Kind {
	case KindMissing:
		return fmt.Sprintf("%s: %s is missing (log says %s)", e.Surface, e.ID, e.Want)
	case KindOrphan:
		return fmt.Sprintf("%s: %s is not in the log", e.Surface, e.ID)
	default:
		return fmt.Sprintf("%s: %s shows %s, log says %s", e.Surface, e.ID, e.Got, e.Want)
	}
}

// Surfaces holds the derived state gathered by the caller: the board as
// parsed by view.Parse, document front-matter statuses keyed by id, and
// completion-marker presence keyed by id. A nil map means the surface was
// not inspected and is skipped.
type Surfaces struct {
	Board   map[string]model.Status
	Docs    map[string]model.Status
	Markers map[string]bool
}

// Report is the outcome of one comparison.
type Report struct {
	Entries []Entry `json:"entries"`
	Units   int     `json:"units"` // units in the projection at comparison time
}

// InSync reports whether every surface agreed with the log.
func (r *Report) InSync() bool { return len(r.Entries) == 0 }

// Lines renders one line per finding for terminal output.
func (r *Report) Lines() []string {
	lines := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		lines[i] = e.String()
	}
	return lines
}

// Err returns nil when in sync, otherwise a *ConsistencyError carrying
// every finding.
func (r *Report) Err() error {
	if r.InSync() {
		return nil
	}
	return &ConsistencyError{Entries: r.Entries}
}

// ConsistencyError reports that derived surfaces disagree with the log.
type ConsistencyError struct {
	Entries []Entry
}

func (e *ConsistencyError) Error() string {
	if len(e.Entries) == 1 {
		return fmt.Sprintf("derived state disagrees with the event log: %s", e.Entries[0])
	}
	return fmt.Sprintf("derived state disagrees with the event log: %s (and %d more)",
		e.Entries[0], len(e.Entries)-1)
}

// Compare checks every provided surface against the projection and returns
// the findings sorted by surface, then id.
func Compare(p model.Projection, s Surfaces) *Report {
	r := &Report{Units: len(p)}
	if s.Board != nil {
		r.Entries = append(r.Entries, compareBoard(p, s.Board)...)
	}
	if s.Docs != nil {
		r.Entries = append(r.Entries, compareDocs(p, s.Docs)...)
	}
	if s.Markers != nil {
		r.Entries = append(r.Entries, compareMarkers(p, s.Markers)...)
	}
	sort.SliceStable(r.Entries, func(i, j int) bool {
		if r.Entries[i].Surface != r.Entries[j].Surface {
			return r.Entries[i].Surface < r.Entries[j].Surface
		}
		return idLess(r.Entries[i].ID, r.Entries[j].ID)
	})
	return r
}

// compareBoard expects the board to list every unit with its log status.
func compareBoard(p model.Projection, board map[string]model.Status) []Entry {
	var out []Entry
	for _, wu := range p.Units() {
		got, ok := board[wu.ID]
		switch {
		case !ok:
			out = append(out, Entry{Kind: KindMissing, Surface: SurfaceBoard, ID: wu.ID, Want: wu.Status})
		case got != wu.Status:
			out = append(out, Entry{Kind: KindMismatch, Surface: SurfaceBoard, ID: wu.ID, Want: wu.Status, Got: got})
		}
	}
	for _, id := range sortedKeys(board) {
		if p.Get(id) == nil {
			out = append(out, Entry{Kind: KindOrphan, Surface: SurfaceBoard, ID: id, Got: board[id]})
		}
	}
	return out
}

// compareDocs checks only the docs that exist; a unit without a document
// is not drift, since documents appear on first claim. A doc with an empty
// status field makes no statement and is skipped.
func compareDocs(p model.Projection, docs map[string]model.Status) []Entry {
	var out []Entry
	for _, id := range sortedKeys(docs) {
		got := docs[id]
		wu := p.Get(id)
		switch {
		case wu == nil:
			out = append(out, Entry{Kind: KindOrphan, Surface: SurfaceDoc, ID: id, Got: got})
		case got != "" && got != wu.Status:
			out = append(out, Entry{Kind: KindMismatch, Surface: SurfaceDoc, ID: id, Want: wu.Status, Got: got})
		}
	}
	return out
}

// compareMarkers expects a completion marker for exactly the done units.
func compareMarkers(p model.Projection, markers map[string]bool) []Entry {
	var out []Entry
	for _, wu := range p.Units() {
		if wu.Status == model.StatusDone && !markers[wu.ID] {
			out = append(out, Entry{Kind: KindMissing, Surface: SurfaceMarker, ID: wu.ID, Want: model.StatusDone})
		}
	}
	for _, id := range sortedKeys(markers) {
		if !markers[id] {
			continue
		}
		wu := p.Get(id)
		switch {
		case wu == nil:
			out = append(out, Entry{Kind: KindOrphan, Surface: SurfaceMarker, ID: id})
		case wu.Status != model.StatusDone:
			out = append(out, Entry{Kind: KindMismatch, Surface: SurfaceMarker, ID: id, Want: wu.Status, Got: model.StatusDone})
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return idLess(keys[i], keys[j]) })
	return keys
}

// idLess orders well-formed ids numerically, matching board order.
func idLess(a, b string) bool {
	if model.ValidID(a) && model.ValidID(b) {
		return idNum(a) < idNum(b)
	}
	return a < b
}

func idNum(id string) int64 {
	var n int64
	for _, c := range id[len("WU-"):] {
		n = n*10 + int64(c-'0')
	}
	return n
}
