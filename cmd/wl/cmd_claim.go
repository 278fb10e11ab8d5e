package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daviddao/worklog/pkg/coord"
)

func newClaimCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claim <id>",
		Short: "Claim a work unit for this session",
		Long: `Claim a work unit: ready (or not yet in the log) to in_progress, bound
to this session. The unit document is created on first claim. With no
--session and no WORKLOG_SESSION a fresh session id is minted and printed;
export it so done and release act as the same session.`,
		Args: cobra.ExactArgs(1),
		RunE: runClaim,
	}
	cmd.Flags().String("lane", "", "lane for the unit (default: workspace default lane)")
	cmd.Flags().String("title", "", "title recorded on the unit document")
	return cmd
}

func runClaim(cmd *cobra.Command, args []string) error {
	id := args[0]
	if err := requireID(id); err != nil {
		return err
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	sess := a.sessionFor()
	lane, _ := cmd.Flags().GetString("lane")
	title, _ := cmd.Flags().GetString("title")
	if err := a.coord.Claim(cmd.Context(), id, sess, coord.ClaimOpts{Lane: lane, Title: title}); err != nil {
		return err
	}

	if a.json {
		wu, err := a.coord.GetState(cmd.Context(), id)
		if err != nil {
			return err
		}
		printJSON(map[string]interface{}{"unit": wu, "session": sess.ID})
		return nil
	}
	fmt.Printf("claimed %s (session %s)\n", id, sess.ID)
	if a.session == "" {
		fmt.Printf("export WORKLOG_SESSION=%s\n", sess.ID)
	}
	return nil
}
