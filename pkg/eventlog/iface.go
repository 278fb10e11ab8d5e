// iface.go defines the Store interface for dependency injection and testing.
//
// The concrete *Log type satisfies this interface. Code that consumes
// work-unit state (the transaction coordinator, the CLI, the watcher, the
// index rebuilder) can accept Store instead of *Log, enabling substitute
// implementations in tests. There is no package-level projection cache:
// stores are constructed per use and passed down.
package eventlog

import "github.com/daviddao/worklog/pkg/model"

// Store defines the full set of event-log operations.
// The concrete *Log type implements this interface.
type Store interface {
	// Path returns the log file path.
	Path() string

	// LockPath returns the path of the lock file guarding this log.
	LockPath() string

	// Size returns the byte size of the log file, 0 when absent.
	Size() (int64, error)

	// --- Events ---

	// ReadEvents parses every event line in log order, tolerating a
	// damaged final line as end-of-stream.
	ReadEvents() ([]model.Event, error)

	// EventsFor returns the events addressed to one unit, in log order.
	EventsFor(id string) ([]model.Event, error)

	// Append durably appends validated events; illegal transitions are
	// rejected before the file is touched.
	Append(events ...model.Event) error

	// --- Projection ---

	// Load replays the whole log into a projection.
	Load() (model.Projection, error)

	// GetStatus returns the current status of id, or ErrNotFound.
	GetStatus(id string) (model.Status, error)

	// QueryByLane returns the units in lane, sorted by id.
	QueryByLane(lane string) ([]*model.WorkUnit, error)

	// QueryByStatus returns the units in a status, sorted by id.
	QueryByStatus(st model.Status) ([]*model.WorkUnit, error)
}

// Compile-time check that *Log implements Store.
var _ Store = (*Log)(nil)
