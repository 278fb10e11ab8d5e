package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daviddao/worklog/pkg/coord"
	"github.com/daviddao/worklog/pkg/model"
)

func newDoneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "complete <id>",
		Aliases: []string{"done"},
		Short:   "Complete a work unit",
		Long: `Complete a work unit. A unit already done is a no-op. Completing a unit
claimed by another session requires --force with a --reason; the override
is recorded as its own audit event ahead of the completion. The completion
marker is written and the unit's worktree removed in the same operation.`,
		Args: cobra.ExactArgs(1),
		RunE: runDone,
	}
	cmd.Flags().Bool("force", false, "complete past another session's claim")
	cmd.Flags().String("reason", "", "reason recorded on the completion (required with --force)")
	return cmd
}

func runDone(cmd *cobra.Command, args []string) error {
	id := args[0]
	if err := requireID(id); err != nil {
		return err
	}
	force, _ := cmd.Flags().GetBool("force")
	reason, _ := cmd.Flags().GetString("reason")
	if force && reason == "" {
		return fmt.Errorf("--force requires --reason")
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := coord.CompleteOpts{Session: a.sessionFor(), Force: force, Reason: reason}
	if err := a.coord.Complete(cmd.Context(), id, opts); err != nil {
		return err
	}
	if a.json {
		printJSON(map[string]interface{}{"id": id, "status": model.StatusDone})
	} else {
		fmt.Printf("%s is done\n", id)
	}
	return nil
}

func newReopenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reopen <id>",
		Short: "Force a completed work unit back to ready",
		Long: `Force a completed work unit back to ready. Done is terminal, so reopen
always requires --force with a --reason; the override audit event is the
only record that leaves the terminal state. The completion marker is
removed in the same commit.`,
		Args: cobra.ExactArgs(1),
		RunE: runReopen,
	}
	cmd.Flags().Bool("force", false, "confirm reopening a terminal unit")
	cmd.Flags().String("reason", "", "reason recorded on the override event")
	return cmd
}

func runReopen(cmd *cobra.Command, args []string) error {
	id := args[0]
	if err := requireID(id); err != nil {
		return err
	}
	force, _ := cmd.Flags().GetBool("force")
	reason, _ := cmd.Flags().GetString("reason")
	if force && reason == "" {
		return fmt.Errorf("--force requires --reason")
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := coord.ReopenOpts{Session: a.sessionFor(), Force: force, Reason: reason}
	if err := a.coord.Reopen(cmd.Context(), id, opts); err != nil {
		return err
	}
	if a.json {
		printJSON(map[string]interface{}{"id": id, "status": model.StatusReady})
	} else {
		fmt.Printf("reopened %s\n", id)
	}
	return nil
}
