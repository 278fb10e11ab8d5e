package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/daviddao/worklog/pkg/eventlog"
	"github.com/daviddao/worklog/pkg/model"
)

func newLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Print the event log",
		Long: `Print the event log in log order, the authoritative causal order.
Timestamps are display only.`,
		Args: cobra.NoArgs,
		RunE: runLog,
	}
	cmd.Flags().String("id", "", "only events for this work unit")
	cmd.Flags().String("type", "", "only events of this type (claim, block, unblock, complete, release, override)")
	cmd.Flags().Int("limit", 0, "only the last N matching events (0 = all)")
	return cmd
}

func runLog(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	id, _ := cmd.Flags().GetString("id")
	typ, _ := cmd.Flags().GetString("type")
	limit, _ := cmd.Flags().GetInt("limit")
	if id != "" {
		if err := requireID(id); err != nil {
			return err
		}
	}

	log := eventlog.New(a.cfg.LogPath)
	var events []model.Event
	if id != "" {
		events, err = log.EventsFor(id)
	} else {
		events, err = log.ReadEvents()
	}
	if err != nil {
		return err
	}

	if typ != "" {
		filtered := events[:0]
		for _, ev := range events {
			if string(ev.Type) == typ {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}

	if a.json {
		printJSON(map[string]interface{}{"events": events, "count": len(events)})
		return nil
	}
	if len(events) == 0 {
		fmt.Println("no events")
		return nil
	}
	for _, ev := range events {
		fmt.Println(eventLine(ev))
	}
	return nil
}

// eventLine renders one event for terminal output.
func eventLine(ev model.Event) string {
	ts := ev.Timestamp.Format(time.RFC3339)
	switch p := ev.Payload.(type) {
	case model.ClaimPayload:
		return fmt.Sprintf("%s claim %s session=%s lane=%s", ts, ev.WUID, short(p.Session), p.Lane)
	case model.BlockPayload:
		return fmt.Sprintf("%s block %s to=%s reason=%q", ts, ev.WUID, p.To, p.Reason)
	case model.UnblockPayload:
		return fmt.Sprintf("%s unblock %s", ts, ev.WUID)
	case model.CompletePayload:
		return fmt.Sprintf("%s complete %s session=%s", ts, ev.WUID, short(p.Session))
	case model.ReleasePayload:
		return fmt.Sprintf("%s release %s session=%s", ts, ev.WUID, short(p.Session))
	case model.OverridePayload:
		return fmt.Sprintf("%s override %s action=%s prior=%s reason=%q", ts, ev.WUID, p.Action, p.Prior, p.Reason)
	default:
		return fmt.Sprintf("%s %s %s", ts, ev.Type, ev.WUID)
	}
}

// short abbreviates a session uuid for single-line output.
func short(session string) string {
	if len(session) > 8 {
		return session[:8]
	}
	return session
}
