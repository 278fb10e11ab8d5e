package coord

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/daviddao/worklog/pkg/config"
	"github.com/daviddao/worklog/pkg/eventlog"
	"github.com/daviddao/worklog/pkg/model"
	"github.com/daviddao/worklog/pkg/vcs"
	"github.com/daviddao/worklog/pkg/view"
)

func newTestCoord(t *testing.T) (*Coordinator, config.Config, *vcs.Fake) {
	t.Helper()
	return newCoordWith(t, config.Default(t.TempDir()))
}

func newCoordWith(t *testing.T, cfg config.Config) (*Coordinator, config.Config, *vcs.Fake) {
	t.Helper()
	fake := &vcs.Fake{}
	c := New(cfg, Options{VCS: fake})
	t.Cleanup(func() { c.Close() })
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("init workspace: %v", err)
	}
	return c, cfg, fake
}

func session(id string) model.Session {
	return model.Session{ID: id, PID: 4242, State: model.SessionActive}
}

func TestInitCreatesWorkspace(t *testing.T) {
	_, cfg, _ := newTestCoord(t)

	for _, dir := range []string{cfg.ViewsDir, cfg.DocsDir, cfg.DoneDir} {
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			t.Fatalf("missing workspace directory %s: %v", dir, err)
		}
	}
	board, err := os.ReadFile(cfg.BoardPath())
	if err != nil {
		t.Fatalf("read board: %v", err)
	}
	if !strings.HasPrefix(string(board), "# Work Unit Board\n") {
		t.Fatalf("board header missing:\n%s", board)
	}
	fi, err := os.Stat(cfg.LogPath)
	if err != nil {
		t.Fatalf("stat log: %v", err)
	}
	if fi.Size() != 0 {
		t.Fatalf("fresh log size = %d, want 0", fi.Size())
	}
}

func TestInitPreservesExistingLog(t *testing.T) {
	c, _, _ := newTestCoord(t)
	ctx := context.Background()

	if err := c.Claim(ctx, "WU-1", session("s1"), ClaimOpts{}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := c.Init(ctx); err != nil {
		t.Fatalf("re-init: %v", err)
	}
	wu, err := c.GetState(ctx, "WU-1")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if wu.Status != model.StatusInProgress {
		t.Fatalf("status after re-init = %s, want in_progress", wu.Status)
	}
}

func TestGetStateUnknownUnit(t *testing.T) {
	c, _, _ := newTestCoord(t)

	_, err := c.GetState(context.Background(), "WU-404")
	if !errors.Is(err, eventlog.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestUnitsListsInIDOrder(t *testing.T) {
	c, _, _ := newTestCoord(t)
	ctx := context.Background()

	for _, id := range []string{"WU-10", "WU-2", "WU-33"} {
		if err := c.Claim(ctx, id, session("s-"+id), ClaimOpts{}); err != nil {
			t.Fatalf("claim %s: %v", id, err)
		}
	}
	units, err := c.Units(ctx)
	if err != nil {
		t.Fatalf("units: %v", err)
	}
	var ids []string
	for _, wu := range units {
		ids = append(ids, wu.ID)
	}
	want := []string{"WU-2", "WU-10", "WU-33"}
	if strings.Join(ids, " ") != strings.Join(want, " ") {
		t.Fatalf("got %v, want %v", ids, want)
	}
}

func TestUnitsSeesLaterCommits(t *testing.T) {
	c, _, _ := newTestCoord(t)
	ctx := context.Background()

	if err := c.Claim(ctx, "WU-1", session("s1"), ClaimOpts{}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := c.Units(ctx); err != nil {
		t.Fatalf("units: %v", err)
	}

	// The second query runs against a grown log; a stale cache answer
	// would miss WU-2.
	if err := c.Claim(ctx, "WU-2", session("s2"), ClaimOpts{}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	units, err := c.Units(ctx)
	if err != nil {
		t.Fatalf("units: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("got %d units, want 2", len(units))
	}
}

func TestActiveSessionsDerivedFromClaims(t *testing.T) {
	c, _, _ := newTestCoord(t)
	ctx := context.Background()

	if err := c.Claim(ctx, "WU-1", session("alpha"), ClaimOpts{Lane: "backend"}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := c.Claim(ctx, "WU-2", session("beta"), ClaimOpts{}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := c.Complete(ctx, "WU-2", CompleteOpts{Session: session("beta")}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	sessions, err := c.ActiveSessions(ctx)
	if err != nil {
		t.Fatalf("active sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d active sessions, want 1", len(sessions))
	}
	s := sessions[0]
	if s.ID != "alpha" || s.WUID != "WU-1" || s.PID != 4242 || s.Lane != "backend" {
		t.Fatalf("session = %+v", s)
	}
	if s.State != model.SessionActive {
		t.Fatalf("state = %s, want active", s.State)
	}
}

func TestValidateSyncCleanWorkspace(t *testing.T) {
	c, _, _ := newTestCoord(t)
	ctx := context.Background()

	if err := c.Claim(ctx, "WU-1", session("s1"), ClaimOpts{Lane: "infra", Title: "Rotate keys"}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := c.Claim(ctx, "WU-2", session("s2"), ClaimOpts{}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := c.Block(ctx, "WU-1", model.StatusWaiting, "review", session("s1")); err != nil {
		t.Fatalf("block: %v", err)
	}
	if err := c.Complete(ctx, "WU-2", CompleteOpts{Session: session("s2")}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	rep, err := c.ValidateSync(ctx)
	if err != nil {
		t.Fatalf("validate sync: %v", err)
	}
	if !rep.InSync() {
		t.Fatalf("expected clean workspace, got drift:\n%s", strings.Join(rep.Lines(), "\n"))
	}
}

func TestValidateSyncDetectsTamperedBoard(t *testing.T) {
	c, cfg, _ := newTestCoord(t)
	ctx := context.Background()

	if err := c.Claim(ctx, "WU-3", session("s1"), ClaimOpts{}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := c.Complete(ctx, "WU-3", CompleteOpts{Session: session("s1")}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	tampered := "### in_progress\n\n- WU-3\n"
	if err := os.WriteFile(cfg.BoardPath(), []byte(tampered), 0o644); err != nil {
		t.Fatalf("tamper board: %v", err)
	}

	rep, err := c.ValidateSync(ctx)
	if err != nil {
		t.Fatalf("validate sync: %v", err)
	}
	if rep.InSync() {
		t.Fatal("tampered board reported in sync")
	}
	if len(rep.Entries) != 1 {
		t.Fatalf("got %d entries, want 1:\n%s", len(rep.Entries), strings.Join(rep.Lines(), "\n"))
	}
	e := rep.Entries[0]
	if e.ID != "WU-3" || e.Surface != "board" || e.Got != model.StatusInProgress {
		t.Fatalf("entry = %+v", e)
	}
}

func TestValidateSyncDetectsMissingMarker(t *testing.T) {
	c, cfg, _ := newTestCoord(t)
	ctx := context.Background()

	if err := c.Claim(ctx, "WU-4", session("s1"), ClaimOpts{}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := c.Complete(ctx, "WU-4", CompleteOpts{Session: session("s1")}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := os.Remove(cfg.MarkerPath("WU-4")); err != nil {
		t.Fatalf("remove marker: %v", err)
	}

	rep, err := c.ValidateSync(ctx)
	if err != nil {
		t.Fatalf("validate sync: %v", err)
	}
	found := false
	for _, e := range rep.Entries {
		if e.ID == "WU-4" && e.Surface == "marker" {
			found = true
		}
	}
	if !found {
		t.Fatalf("no marker entry for WU-4:\n%s", strings.Join(rep.Lines(), "\n"))
	}
}

func TestRefreshViewsRestoresDeletedBoard(t *testing.T) {
	c, cfg, _ := newTestCoord(t)
	ctx := context.Background()

	if err := c.Claim(ctx, "WU-1", session("s1"), ClaimOpts{Title: "Fix parser"}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := os.Remove(cfg.BoardPath()); err != nil {
		t.Fatalf("remove board: %v", err)
	}
	if err := c.RefreshViews(ctx); err != nil {
		t.Fatalf("refresh views: %v", err)
	}

	board, err := os.ReadFile(cfg.BoardPath())
	if err != nil {
		t.Fatalf("read board: %v", err)
	}
	proj, err := c.Projection(ctx)
	if err != nil {
		t.Fatalf("projection: %v", err)
	}
	if string(board) != string(view.Render(proj)) {
		t.Fatalf("restored board differs from a fresh render:\n%s", board)
	}
}

func TestRefreshIndexStampsLogSize(t *testing.T) {
	c, _, _ := newTestCoord(t)
	ctx := context.Background()

	if err := c.Claim(ctx, "WU-1", session("s1"), ClaimOpts{}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := c.RefreshIndex(ctx); err != nil {
		t.Fatalf("refresh index: %v", err)
	}

	size, err := c.store.Size()
	if err != nil {
		t.Fatalf("log size: %v", err)
	}
	ix, err := c.cache()
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	fresh, err := ix.Fresh(size)
	if err != nil {
		t.Fatalf("freshness: %v", err)
	}
	if !fresh {
		t.Fatal("index stale immediately after refresh")
	}
}
