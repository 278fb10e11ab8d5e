package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/daviddao/worklog/pkg/model"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show every work unit and the active sessions",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
	cmd.Flags().String("lane", "", "only units in this lane")
	cmd.Flags().String("state", "", "only units in this status")
	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	units, err := a.coord.Units(cmd.Context())
	if err != nil {
		return err
	}
	sessions, err := a.coord.ActiveSessions(cmd.Context())
	if err != nil {
		return err
	}

	lane, _ := cmd.Flags().GetString("lane")
	state, _ := cmd.Flags().GetString("state")
	if state != "" && !model.Status(state).Valid() {
		return fmt.Errorf("unknown status %q (want one of %s)", state, statusList())
	}
	filtered := units[:0]
	for _, wu := range units {
		if lane != "" && wu.Lane != lane {
			continue
		}
		if state != "" && wu.Status != model.Status(state) {
			continue
		}
		filtered = append(filtered, wu)
	}
	units = filtered

	if a.json {
		printJSON(map[string]interface{}{
			"units":    units,
			"sessions": sessions,
			"count":    len(units),
		})
		return nil
	}

	if len(units) == 0 {
		fmt.Println("no work units")
		return nil
	}

	counts := map[model.Status]int{}
	fmt.Println("units:")
	for _, wu := range units {
		counts[wu.Status]++
		line := fmt.Sprintf("  %s %-8s %-12s", statusGlyph(wu.Status), wu.ID, renderStatus(wu.Status))
		if wu.Lane != "" {
			line += fmt.Sprintf("  lane=%s", wu.Lane)
		}
		if wu.Title != "" {
			line += "  " + wu.Title
		}
		line += "  " + renderMuted(humanize.Time(wu.UpdatedAt))
		fmt.Println(line)
	}

	if len(sessions) > 0 {
		fmt.Println("sessions:")
		for _, s := range sessions {
			fmt.Printf("  %s on %s (pid %d) since %s\n",
				short(s.ID), s.WUID, s.PID, humanize.Time(s.StartedAt))
		}
	}

	summary := ""
	for _, st := range model.Statuses() {
		if counts[st] == 0 {
			continue
		}
		if summary != "" {
			summary += ", "
		}
		summary += fmt.Sprintf("%d %s", counts[st], st)
	}
	fmt.Printf("%d unit(s): %s\n", len(units), summary)
	return nil
}
