package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daviddao/worklog/pkg/model"
)

func newBlockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "block <id>",
		Short: "Pause an in-progress work unit",
		Long: `Pause an in-progress work unit. The default target is blocked (stuck on
something external); --wait records waiting instead (parked on another
unit or a review).`,
		Args: cobra.ExactArgs(1),
		RunE: runBlock,
	}
	cmd.Flags().Bool("wait", false, "pause into waiting instead of blocked")
	cmd.Flags().String("reason", "", "reason recorded on the block event")
	return cmd
}

func runBlock(cmd *cobra.Command, args []string) error {
	id := args[0]
	if err := requireID(id); err != nil {
		return err
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	to := model.StatusBlocked
	if wait, _ := cmd.Flags().GetBool("wait"); wait {
		to = model.StatusWaiting
	}
	reason, _ := cmd.Flags().GetString("reason")
	if err := a.coord.Block(cmd.Context(), id, to, reason, a.sessionFor()); err != nil {
		return err
	}
	if a.json {
		printJSON(map[string]interface{}{"id": id, "status": to})
	} else {
		fmt.Printf("%s is now %s\n", id, to)
	}
	return nil
}

func newUnblockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unblock <id>",
		Short: "Resume a paused work unit",
		Args:  cobra.ExactArgs(1),
		RunE:  runUnblock,
	}
}

func runUnblock(cmd *cobra.Command, args []string) error {
	id := args[0]
	if err := requireID(id); err != nil {
		return err
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.coord.Unblock(cmd.Context(), id, a.sessionFor()); err != nil {
		return err
	}
	if a.json {
		printJSON(map[string]interface{}{"id": id, "status": model.StatusInProgress})
	} else {
		fmt.Printf("%s is now %s\n", id, model.StatusInProgress)
	}
	return nil
}
