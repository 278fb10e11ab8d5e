package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Check the derived surfaces against the event log",
		Long: `Check every derived surface (board, unit documents, completion markers)
against a fresh replay of the log. Drift is reported, not fatal: the exit
code stays 0 unless --strict is given, because the surfaces are caches and
wl rebuild regenerates them.`,
		Args: cobra.NoArgs,
		RunE: runSync,
	}
	cmd.Flags().Bool("strict", false, "exit 1 when any drift is found")
	return cmd
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	rep, err := a.coord.ValidateSync(cmd.Context())
	if err != nil {
		return err
	}
	strict, _ := cmd.Flags().GetBool("strict")

	if a.json {
		printJSON(rep)
	} else if rep.InSync() {
		fmt.Printf("in sync (%d units)\n", rep.Units)
	} else {
		fmt.Printf("%d drift entr%s:\n", len(rep.Entries), plural(len(rep.Entries), "y", "ies"))
		for _, line := range rep.Lines() {
			fmt.Printf("  %s\n", line)
		}
		fmt.Println("run 'wl rebuild' to regenerate the derived surfaces")
	}
	if strict {
		return rep.Err()
	}
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func newRebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rebuild",
		Aliases: []string{"refresh"},
		Short:   "Rebuild the board and the query index from the log",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.coord.RefreshViews(cmd.Context()); err != nil {
				return err
			}
			if err := a.coord.RefreshIndex(cmd.Context()); err != nil {
				return err
			}
			if a.json {
				printJSON(map[string]interface{}{"refreshed": true})
			} else {
				fmt.Println("board and index rebuilt from the log")
			}
			return nil
		},
	}
}
