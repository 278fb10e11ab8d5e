package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/daviddao/worklog/pkg/config"
	"github.com/daviddao/worklog/pkg/coord"
	"github.com/daviddao/worklog/pkg/metrics"
	"github.com/daviddao/worklog/pkg/model"
)

// app holds the resolved workspace and shared collaborators for one
// command invocation.
type app struct {
	cfg     config.Config
	coord   *coord.Coordinator
	reg     *prometheus.Registry
	json    bool
	session string // from --session or WORKLOG_SESSION; may be empty
}

// openApp resolves the workspace for a command that requires one to exist
// already. The root comes from --dir or from walking up like git does.
func openApp(cmd *cobra.Command) (*app, error) {
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = "."
	}
	root, err := config.FindRoot(dir)
	if err != nil {
		return nil, err
	}
	return appAt(cmd, root)
}

// appAt builds the app for an explicit root, without requiring the
// metadata directory to exist yet. init uses it; everything else goes
// through openApp.
func appAt(cmd *cobra.Command, root string) (*app, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, reg: prometheus.NewRegistry()}
	a.coord = coord.New(cfg, coord.Options{Metrics: metrics.NewCollector(a.reg)})
	a.json, _ = cmd.Flags().GetBool("json")
	a.session, _ = cmd.Flags().GetString("session")
	if a.session == "" {
		a.session = os.Getenv("WORKLOG_SESSION")
	}
	return a, nil
}

// Close releases the coordinator's cache handle.
func (a *app) Close() {
	_ = a.coord.Close()
}

// sessionFor returns the claim context for this invocation. With no
// --session flag and no WORKLOG_SESSION, a fresh session is minted; the
// caller is expected to surface its id so the agent can reuse it.
func (a *app) sessionFor() model.Session {
	if a.session != "" {
		return model.Session{
			ID:        a.session,
			PID:       os.Getpid(),
			State:     model.SessionActive,
			StartedAt: time.Now().UTC(),
		}
	}
	return model.NewSession()
}

// requireID validates the positional work-unit id argument.
func requireID(id string) error {
	if !model.ValidID(id) {
		return fmt.Errorf("malformed work-unit id %q (want WU-<digits>)", id)
	}
	return nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
