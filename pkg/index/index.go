// Package index maintains the SQLite query cache over the event log.
//
// The log stays the single source of truth; the index is a derived copy of
// the projection for fast filtered reads, stamped with the log size it was
// built from. A stamp that no longer matches the log on disk means the
// cache is stale and must be rebuilt by replay. Deleting the database file
// loses nothing.
package index

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/daviddao/worklog/pkg/model"

	_ "modernc.org/sqlite"
)

// Index manages the SQLite cache with WAL mode for concurrent readers.
type Index struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database and initializes the schema.
func New(path string) (*Index, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	ix := &Index{db: db}
	if err := ix.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return ix, nil
}

// Close closes the database connection.
func (ix *Index) Close() error { return ix.db.Close() }

// retryOnContention runs fn under the default schedule from retry.go.
// Index writes go through it so concurrent rebuilds ride out transient
// sqlite contention instead of failing.
func retryOnContention(fn func() error) error {
	return retryWith(newRetryBackOff(), fn)
}

func (ix *Index) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS units (
		id          TEXT PRIMARY KEY,
		num         INTEGER NOT NULL,
		status      TEXT NOT NULL,
		lane        TEXT NOT NULL DEFAULT '',
		title       TEXT NOT NULL DEFAULT '',
		locked      INTEGER NOT NULL DEFAULT 0,
		claimed_by  TEXT NOT NULL DEFAULT '',
		claimed_pid INTEGER NOT NULL DEFAULT 0,
		claimed_at  TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_units_status ON units(status, num);
	CREATE INDEX IF NOT EXISTS idx_units_lane ON units(lane, status, num);

	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := ix.db.Exec(schema)
	return err
}

// ---------------------------------------------------------------------------
// Rebuild and freshness
// ---------------------------------------------------------------------------

// Rebuild replaces the cached units with the given projection and stamps
// the cache with the log size it was derived from. The swap runs in one
// transaction, so readers never observe a half-rebuilt cache.
func (ix *Index) Rebuild(p model.Projection, logSize int64) error {
	return retryOnContention(func() error {
		tx, err := ix.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

		if _, err := tx.Exec(`DELETE FROM units`); err != nil {
			return fmt.Errorf("clear units: %w", err)
		}
		for _, wu := range p.Units() {
			_, err := tx.Exec(
				`INSERT INTO units (id, num, status, lane, title, locked,
				                    claimed_by, claimed_pid, claimed_at, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				wu.ID, idNum(wu.ID), string(wu.Status), wu.Lane, wu.Title, boolToInt(wu.Locked),
				wu.ClaimedBy, wu.ClaimedPID, formatTime(wu.ClaimedAt),
				formatTime(wu.CreatedAt), formatTime(wu.UpdatedAt),
			)
			if err != nil {
				return fmt.Errorf("insert unit %s: %w", wu.ID, err)
			}
		}

		now := time.Now().UTC().Format(time.RFC3339Nano)
		for key, value := range map[string]string{
			"log_size":   fmt.Sprintf("%d", logSize),
			"rebuilt_at": now,
		} {
			if _, err := tx.Exec(
				`INSERT INTO meta (key, value) VALUES (?, ?)
				 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
				key, value,
			); err != nil {
				return fmt.Errorf("stamp %s: %w", key, err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit rebuild: %w", err)
		}
		return nil
	})
}

// Fresh reports whether the cache was built from a log of exactly logSize
// bytes. A never-stamped cache is never fresh.
func (ix *Index) Fresh(logSize int64) (bool, error) {
	stamped, err := ix.StampedSize()
	if err != nil {
		return false, err
	}
	return stamped >= 0 && stamped == logSize, nil
}

// StampedSize returns the log size recorded by the last rebuild, or -1
// when the cache has never been built.
func (ix *Index) StampedSize() (int64, error) {
	var value string
	err := ix.db.QueryRow(`SELECT value FROM meta WHERE key = 'log_size'`).Scan(&value)
	if err == sql.ErrNoRows {
		return -1, nil
	}
	if err != nil {
		return 0, err
	}
	var size int64
	if _, err := fmt.Sscanf(value, "%d", &size); err != nil {
		return 0, fmt.Errorf("parse log_size stamp %q: %w", value, err)
	}
	return size, nil
}

// RebuiltAt returns the time of the last rebuild, or the zero time when
// the cache has never been built.
func (ix *Index) RebuiltAt() (time.Time, error) {
	var value string
	err := ix.db.QueryRow(`SELECT value FROM meta WHERE key = 'rebuilt_at'`).Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse rebuilt_at stamp %q: %w", value, err)
	}
	return ts, nil
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

const unitColumns = `id, status, lane, title, locked, claimed_by, claimed_pid,
                     claimed_at, created_at, updated_at`

// Get retrieves one cached unit, or nil when the cache has no such id.
func (ix *Index) Get(id string) (*model.WorkUnit, error) {
	row := ix.db.QueryRow(`SELECT `+unitColumns+` FROM units WHERE id = ?`, id)
	wu, err := scanUnit(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return wu, err
}

// List returns every cached unit in id order.
func (ix *Index) List() ([]model.WorkUnit, error) {
	rows, err := ix.db.Query(`SELECT ` + unitColumns + ` FROM units ORDER BY num ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUnits(rows)
}

// ListByStatus returns the cached units currently in st, in id order.
func (ix *Index) ListByStatus(st model.Status) ([]model.WorkUnit, error) {
	rows, err := ix.db.Query(
		`SELECT `+unitColumns+` FROM units WHERE status = ? ORDER BY num ASC`, string(st),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUnits(rows)
}

// ListByLane returns the cached units in lane, in id order.
func (ix *Index) ListByLane(lane string) ([]model.WorkUnit, error) {
	rows, err := ix.db.Query(
		`SELECT `+unitColumns+` FROM units WHERE lane = ? ORDER BY num ASC`, lane,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUnits(rows)
}

// CountByStatus returns how many cached units sit in each status.
func (ix *Index) CountByStatus() (map[model.Status]int, error) {
	rows, err := ix.db.Query(`SELECT status, COUNT(*) FROM units GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[model.Status]int{}
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		counts[model.Status(st)] = n
	}
	return counts, rows.Err()
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func scanUnits(rows *sql.Rows) ([]model.WorkUnit, error) {
	var units []model.WorkUnit
	for rows.Next() {
		wu, err := scanUnit(rows.Scan)
		if err != nil {
			return nil, err
		}
		units = append(units, *wu)
	}
	return units, rows.Err()
}

func scanUnit(scan func(dest ...any) error) (*model.WorkUnit, error) {
	var wu model.WorkUnit
	var status string
	var locked int
	var claimedStr, createdStr, updatedStr string
	if err := scan(&wu.ID, &status, &wu.Lane, &wu.Title, &locked,
		&wu.ClaimedBy, &wu.ClaimedPID, &claimedStr, &createdStr, &updatedStr); err != nil {
		return nil, err
	}
	wu.Status = model.Status(status)
	wu.Locked = locked != 0
	var parseErr error
	if wu.ClaimedAt, parseErr = parseTime(claimedStr); parseErr != nil {
		return nil, fmt.Errorf("parse claimed_at for unit %s: %w", wu.ID, parseErr)
	}
	if wu.CreatedAt, parseErr = parseTime(createdStr); parseErr != nil {
		return nil, fmt.Errorf("parse created_at for unit %s: %w", wu.ID, parseErr)
	}
	if wu.UpdatedAt, parseErr = parseTime(updatedStr); parseErr != nil {
		return nil, fmt.Errorf("parse updated_at for unit %s: %w", wu.ID, parseErr)
	}
	return &wu, nil
}

// formatTime stores zero times as the empty string so they survive the
// round trip unchanged.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// idNum extracts the numeric part of a well-formed id for sort order;
// malformed ids sort first on 0.
func idNum(id string) int64 {
	if !model.ValidID(id) {
		return 0
	}
	var n int64
	for _, c := range id[len("WU-"):] {
		n = n*10 + int64(c-'0')
	}
	return n
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
