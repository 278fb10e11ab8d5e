// iface.go defines the Cache interface for dependency injection and testing.
//
// The concrete *Index type satisfies this interface. Code that depends on
// the cache (the coordinator, the watcher, the cmd layer) can accept Cache
// instead of *Index, enabling substitution in tests.
package index

import (
	"time"

	"github.com/daviddao/worklog/pkg/model"
)

// Cache defines the full set of index operations.
// The concrete *Index type implements this interface.
type Cache interface {
	// Close closes the database connection.
	Close() error

	// --- Rebuild and freshness ---

	// Rebuild replaces the cached units with the projection, stamped
	// with the log size it was derived from.
	Rebuild(p model.Projection, logSize int64) error

	// Fresh reports whether the cache matches a log of logSize bytes.
	Fresh(logSize int64) (bool, error)

	// StampedSize returns the stamped log size, or -1 if never built.
	StampedSize() (int64, error)

	// RebuiltAt returns the time of the last rebuild, or the zero time.
	RebuiltAt() (time.Time, error)

	// --- Queries ---

	// Get retrieves one cached unit, or nil when absent.
	Get(id string) (*model.WorkUnit, error)

	// List returns every cached unit in id order.
	List() ([]model.WorkUnit, error)

	// ListByStatus returns the cached units currently in st.
	ListByStatus(st model.Status) ([]model.WorkUnit, error)

	// ListByLane returns the cached units in lane.
	ListByLane(lane string) ([]model.WorkUnit, error)

	// CountByStatus returns per-status unit counts.
	CountByStatus() (map[model.Status]int, error)
}

// Compile-time check that *Index implements Cache.
var _ Cache = (*Index)(nil)
