// Package eventlog implements the append-only NDJSON event log that is the
// single source of truth for work-unit state.
//
// One event per line. The current state of any unit is a pure fold over its
// lines in file order; nothing is ever rewritten in place. Appends validate
// the implied lifecycle transition against the current projection first, so
// an illegal event never reaches disk, and are synced before they return.
//
// Replay tolerates exactly one kind of damage: a syntactically broken final
// line, the footprint of an append interrupted mid-write. That line is
// treated as end-of-stream. The same damage anywhere else, or a well-formed
// line with an unknown event type, fails the replay loudly.
package eventlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/daviddao/worklog/pkg/model"
)

// ErrNotFound reports a query for a work unit the log has never seen.
var ErrNotFound = errors.New("work unit not found")

// maxLineBytes bounds a single event line during replay.
const maxLineBytes = 1 << 20

// Log is an append-only NDJSON event log on the local filesystem. The zero
// value is not usable; construct with New.
type Log struct {
	path string
}

// New returns a Log backed by the NDJSON file at path. The file need not
// exist yet; the first append creates it.
func New(path string) *Log { return &Log{path: path} }

// Path returns the log file path.
func (l *Log) Path() string { return l.path }

// LockPath returns the path of the lock file guarding this log.
func (l *Log) LockPath() string { return l.path + ".lock" }

// Size returns the byte size of the log file, 0 when it does not exist yet.
// The index cache stamps rebuilds with this value to detect staleness.
func (l *Log) Size() (int64, error) {
	fi, err := os.Stat(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("stat log: %w", err)
	}
	return fi.Size(), nil
}

// ReadEvents parses every event line in log order. A missing file is an
// empty log. A syntactically broken final line ends the stream silently;
// the same damage followed by more content, or a well-formed line that
// fails event decoding, is a hard error naming the line.
func (l *Log) ReadEvents() ([]model.Event, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	var events []model.Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	damagedAt := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if damagedAt != 0 {
			return nil, fmt.Errorf("log line %d: damaged record followed by more content", damagedAt)
		}
		var ev model.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			var syn *json.SyntaxError
			if errors.As(err, &syn) {
				// Possibly an interrupted append; tolerated iff final.
				damagedAt = lineNo
				continue
			}
			return nil, fmt.Errorf("log line %d: %w", lineNo, err)
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	return events, nil
}

// CleanTail returns buf with its final line made safe to append after.
// A trailing newline, or an empty buffer, comes back unchanged. A
// well-formed final event line missing its newline gets one, so the next
// record starts on a fresh line instead of fusing onto it. A final line
// that does not parse as an event is the footprint of an interrupted
// append; it is cut, because replay only tolerates damage at the very end
// of the stream and appending after it would poison the whole log.
func CleanTail(buf []byte) []byte {
	idx := bytes.LastIndexByte(buf, '\n')
	tail := bytes.TrimSpace(buf[idx+1:])
	if len(tail) == 0 {
		return buf
	}
	var ev model.Event
	if json.Unmarshal(tail, &ev) == nil {
		return append(buf[:len(buf):len(buf)], '\n')
	}
	return buf[:idx+1]
}

// Load replays the whole log into a projection.
func (l *Log) Load() (model.Projection, error) {
	events, err := l.ReadEvents()
	if err != nil {
		return nil, err
	}
	return Reduce(events), nil
}

// EventsFor returns the events addressed to id, in log order.
func (l *Log) EventsFor(id string) ([]model.Event, error) {
	events, err := l.ReadEvents()
	if err != nil {
		return nil, err
	}
	var out []model.Event
	for _, ev := range events {
		if ev.WUID == id {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Append validates events against the current projection, folding each
// accepted event so later events in the batch see earlier effects, then
// writes the encoded lines in a single durable append. A complete event for
// a unit that is already done is dropped without error, so completion is
// idempotent. Any other illegal transition aborts the whole batch before
// the file is touched.
func (l *Log) Append(events ...model.Event) error {
	if len(events) == 0 {
		return nil
	}
	proj, err := l.Load()
	if err != nil {
		return err
	}
	lines, err := Prepare(proj, events)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}
	data, err := os.ReadFile(l.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read log: %w", err)
	}
	// Never append onto an unterminated tail. A half-written record from an
	// interrupted append is cut before the new lines land; a well-formed
	// record that merely lost its newline gets one.
	switch clean := CleanTail(data); {
	case len(clean) < len(data):
		if err := os.Truncate(l.path, int64(len(clean))); err != nil {
			return fmt.Errorf("trim damaged log tail: %w", err)
		}
	case len(clean) > len(data):
		lines = append([]byte{'\n'}, lines...)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log for append: %w", err)
	}
	if _, err := f.Write(lines); err != nil {
		f.Close()
		return fmt.Errorf("append log: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close log: %w", err)
	}
	return nil
}

// GetStatus returns the current status of id, or ErrNotFound for a unit
// the log has never seen.
func (l *Log) GetStatus(id string) (model.Status, error) {
	proj, err := l.Load()
	if err != nil {
		return "", err
	}
	if st := proj.StatusOf(id); st != "" {
		return st, nil
	}
	return "", fmt.Errorf("work unit %s: %w", id, ErrNotFound)
}

// QueryByLane returns the units in lane, sorted by id.
func (l *Log) QueryByLane(lane string) ([]*model.WorkUnit, error) {
	proj, err := l.Load()
	if err != nil {
		return nil, err
	}
	return proj.ByLane(lane), nil
}

// QueryByStatus returns the units currently in st, sorted by id.
func (l *Log) QueryByStatus(st model.Status) ([]*model.WorkUnit, error) {
	proj, err := l.Load()
	if err != nil {
		return nil, err
	}
	return proj.ByStatus(st), nil
}
