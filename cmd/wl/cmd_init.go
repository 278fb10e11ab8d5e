package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/daviddao/worklog/pkg/config"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a worklog workspace",
		Long: `Initialize a worklog workspace in the target directory: the metadata
directory, an empty event log, the views, docs, and markers directories,
and the query index. Re-running on an initialized workspace is harmless
and refreshes the derived surfaces.

Lane flags are recorded in the workspace config file and are advisory:
they name the queues shown on the board, nothing more.`,
		Args: cobra.NoArgs,
		RunE: runInit,
	}
	cmd.Flags().StringSlice("lane", nil, "lane name to record (repeatable)")
	cmd.Flags().String("default-lane", "", "lane assigned to claims that name none")
	cmd.Flags().Bool("worktree", false, "enable per-unit git worktrees")
	return cmd
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = "."
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	lanes, _ := cmd.Flags().GetStringSlice("lane")
	defaultLane, _ := cmd.Flags().GetString("default-lane")
	worktree, _ := cmd.Flags().GetBool("worktree")
	if err := config.ValidateLanes(lanes); err != nil {
		return err
	}
	if len(lanes) > 0 || defaultLane != "" || worktree {
		if err := writeConfig(root, lanes, defaultLane, worktree); err != nil {
			return err
		}
	}

	a, err := appAt(cmd, root)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.coord.Init(cmd.Context()); err != nil {
		return err
	}
	if a.json {
		printJSON(map[string]interface{}{
			"root":  root,
			"log":   a.cfg.LogPath,
			"lanes": a.cfg.Lanes,
		})
	} else {
		fmt.Printf("initialized workspace at %s\n", root)
	}
	return nil
}

// writeConfig persists the init-time settings so later invocations resolve
// them from the workspace alone. Only the keys init owns are written; an
// existing config file is replaced, not merged.
func writeConfig(root string, lanes []string, defaultLane string, worktree bool) error {
	meta := filepath.Join(root, config.DirName)
	if err := os.MkdirAll(meta, 0o755); err != nil {
		return fmt.Errorf("init workspace: %w", err)
	}
	doc := map[string]interface{}{}
	if len(lanes) > 0 {
		doc["lanes"] = lanes
	}
	if defaultLane != "" {
		doc["default_lane"] = defaultLane
	}
	if worktree {
		doc["worktree"] = map[string]interface{}{"enabled": true}
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	path := filepath.Join(meta, config.FileName)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
