package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/daviddao/worklog/pkg/model"
)

func newMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <status>",
		Short: "Transition a work unit to a target status",
		Long: `Transition a work unit to a target status, routed through the operation
that owns the edge: in_progress resumes a paused unit, ready releases,
done completes, blocked and waiting pause. Claiming is not reachable here
because it binds a session; use claim.

Statuses: ` + statusList() + `.`,
		Args: cobra.ExactArgs(2),
		RunE: runMove,
	}
}

func runMove(cmd *cobra.Command, args []string) error {
	id := args[0]
	if err := requireID(id); err != nil {
		return err
	}
	to := model.Status(args[1])
	if !to.Valid() {
		return fmt.Errorf("unknown status %q (want one of %s)", args[1], statusList())
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.coord.TransitionTo(cmd.Context(), id, to, a.sessionFor()); err != nil {
		return err
	}
	if a.json {
		printJSON(map[string]interface{}{"id": id, "status": to})
	} else {
		fmt.Printf("%s is now %s\n", id, to)
	}
	return nil
}

func statusList() string {
	names := make([]string, 0, len(model.Statuses()))
	for _, st := range model.Statuses() {
		names = append(names, string(st))
	}
	return strings.Join(names, ", ")
}
