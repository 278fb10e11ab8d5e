package main

import "github.com/spf13/cobra"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "wl",
		Short:   "worklog — work-unit coordination for concurrent agent sessions",
		Version: version,
		Long: `worklog — work-unit coordination for concurrent agent sessions

An append-only event log is the single source of truth; everything else
(the board, unit documents, completion markers, the query index) is a
derived cache rebuilt from it. Writers serialize through an advisory lock
file with stale-holder reclaim, so any number of agent processes can share
one workspace safely.

Sessions: claiming a unit binds it to a session id. Pass --session or set
WORKLOG_SESSION so later commands (done, release) act as the same session;
claim generates a fresh id when none is given and prints it.

Exit codes:
  0  success
  1  error
  2  lock denied (another writer held the log past the retry window)`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String("dir", "", "workspace root (default: walk up from the current directory)")
	pf.String("session", "", "session id (default: WORKLOG_SESSION)")
	pf.Bool("json", false, "machine-readable JSON output")

	root.AddCommand(
		newInitCmd(),
		newClaimCmd(),
		newBlockCmd(),
		newUnblockCmd(),
		newReleaseCmd(),
		newDoneCmd(),
		newReopenCmd(),
		newMoveCmd(),
		newShowCmd(),
		newStatusCmd(),
		newLogCmd(),
		newSyncCmd(),
		newRebuildCmd(),
		newWatchCmd(),
	)
	return root
}
