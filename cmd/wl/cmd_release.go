package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daviddao/worklog/pkg/model"
)

func newReleaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release <id>",
		Short: "Return a work unit to the ready pool",
		Long: `Return an in-progress work unit to ready and clear its claim. Any
session may release any unit: this is also the recovery path for claims
held by sessions that died. The unit's worktree, if one exists, stays in
place for the next claimant.`,
		Args: cobra.ExactArgs(1),
		RunE: runRelease,
	}
}

func runRelease(cmd *cobra.Command, args []string) error {
	id := args[0]
	if err := requireID(id); err != nil {
		return err
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.coord.Release(cmd.Context(), id, a.sessionFor()); err != nil {
		return err
	}
	if a.json {
		printJSON(map[string]interface{}{"id": id, "status": model.StatusReady})
	} else {
		fmt.Printf("released %s\n", id)
	}
	return nil
}
