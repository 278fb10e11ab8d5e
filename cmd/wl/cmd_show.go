package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/daviddao/worklog/pkg/eventlog"
)

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show the projected state of one work unit",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
	cmd.Flags().Bool("events", false, "include the unit's full event history")
	return cmd
}

func runShow(cmd *cobra.Command, args []string) error {
	id := args[0]
	if err := requireID(id); err != nil {
		return err
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	wu, err := a.coord.GetState(cmd.Context(), id)
	if err != nil {
		return err
	}
	withEvents, _ := cmd.Flags().GetBool("events")

	if a.json {
		out := map[string]interface{}{"unit": wu}
		if withEvents {
			events, err := eventlog.New(a.cfg.LogPath).EventsFor(id)
			if err != nil {
				return err
			}
			out["events"] = events
		}
		printJSON(out)
		return nil
	}

	fmt.Printf("%s %s  %s\n", statusGlyph(wu.Status), wu.ID, renderStatus(wu.Status))
	if wu.Title != "" {
		fmt.Printf("  title:    %s\n", wu.Title)
	}
	if wu.Lane != "" {
		fmt.Printf("  lane:     %s\n", wu.Lane)
	}
	if wu.Locked {
		fmt.Printf("  claimed:  session %s (pid %d) %s\n",
			wu.ClaimedBy, wu.ClaimedPID, humanize.Time(wu.ClaimedAt))
	}
	fmt.Printf("  created:  %s\n", humanize.Time(wu.CreatedAt))
	fmt.Printf("  updated:  %s\n", humanize.Time(wu.UpdatedAt))

	if withEvents {
		events, err := eventlog.New(a.cfg.LogPath).EventsFor(id)
		if err != nil {
			return err
		}
		fmt.Println("  events:")
		for _, ev := range events {
			fmt.Printf("    %s\n", eventLine(ev))
		}
	}
	return nil
}
