package view

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/daviddao/worklog/pkg/model"
)

func testProjection() model.Projection {
	t0 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	p := model.Projection{}
	add := func(id string, st model.Status, lane, title string) {
		p[id] = &model.WorkUnit{ID: id, Status: st, Lane: lane, Title: title, CreatedAt: t0, UpdatedAt: t0}
	}
	add("WU-2", model.StatusInProgress, "backend", "wire codec rework")
	add("WU-9", model.StatusDone, "backend", "logging cleanup")
	add("WU-10", model.StatusReady, "frontend", "board styling")
	add("WU-30", model.StatusInProgress, "backend", "retry policy")
	add("WU-41", model.StatusBlocked, "", "")
	return p
}

func TestRenderGrouping(t *testing.T) {
	got := string(Render(testProjection()))

	want := `# Work Unit Board

<!-- generated by worklog from the event log; edits here are overwritten -->

## Lane: (none)

### blocked

- WU-41

## Lane: backend

### in_progress

- WU-2: wire codec rework
- WU-30: retry policy

### done

- WU-9: logging cleanup

## Lane: frontend

### ready

- WU-10: board styling
`
	if got != want {
		t.Fatalf("rendered board:\n%s\nwant:\n%s", got, want)
	}
}

func TestRenderByteIdentical(t *testing.T) {
	a := Render(testProjection())
	b := Render(testProjection())
	if !bytes.Equal(a, b) {
		t.Fatalf("two renders of the same state differ")
	}
}

func TestRenderEmptyProjection(t *testing.T) {
	got := string(Render(model.Projection{}))
	if !strings.HasPrefix(got, "# Work Unit Board\n") {
		t.Fatalf("empty board missing heading:\n%s", got)
	}
	if strings.Contains(got, "## Lane:") {
		t.Fatalf("empty board should have no lane sections:\n%s", got)
	}
}

func TestRenderOmitsEmptySections(t *testing.T) {
	p := model.Projection{"WU-1": {ID: "WU-1", Status: model.StatusReady, Lane: "ops"}}
	got := string(Render(p))
	for _, st := range model.Statuses() {
		if st == model.StatusReady {
			continue
		}
		if strings.Contains(got, "### "+string(st)) {
			t.Fatalf("board renders empty section %q:\n%s", st, got)
		}
	}
}

func TestParseRoundTrip(t *testing.T) {
	p := testProjection()
	got := Parse(Render(p))
	units := p.Units()
	if len(got) != len(units) {
		t.Fatalf("parsed %d units, want %d", len(got), len(units))
	}
	for _, wu := range units {
		if got[wu.ID] != wu.Status {
			t.Errorf("unit %s: parsed status %q, want %q", wu.ID, got[wu.ID], wu.Status)
		}
	}
}

func TestParseTitleWithColon(t *testing.T) {
	p := model.Projection{"WU-7": {ID: "WU-7", Status: model.StatusWaiting, Title: "fix: parser: nested colons"}}
	got := Parse(Render(p))
	if got["WU-7"] != model.StatusWaiting {
		t.Fatalf("got %q, want %q", got["WU-7"], model.StatusWaiting)
	}
}

func TestParseIgnoresUnreadableLines(t *testing.T) {
	board := `# Work Unit Board

### in_progress

- WU-3: good line
- broken line without an id
- WU-bad: malformed id

### promoted

- WU-4: status heading is not a real status
`
	got := Parse([]byte(board))
	if len(got) != 1 {
		t.Fatalf("parsed %d entries, want 1: %v", len(got), got)
	}
	if got["WU-3"] != model.StatusInProgress {
		t.Fatalf("WU-3 parsed as %q, want %q", got["WU-3"], model.StatusInProgress)
	}
}

func TestParseLastEntryWins(t *testing.T) {
	board := "### ready\n\n- WU-5: first\n\n### done\n\n- WU-5: again\n"
	got := Parse([]byte(board))
	if got["WU-5"] != model.StatusDone {
		t.Fatalf("got %q, want %q", got["WU-5"], model.StatusDone)
	}
}
