package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/daviddao/worklog/pkg/watch"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the log and keep the derived surfaces fresh",
		Long: `Follow the event log and rebuild the board and query index whenever a
burst of writes settles. One watcher per workspace: a second instance
fails fast on the single-instance guard. With a metrics address (flag or
metrics.addr in the config) a Prometheus endpoint is served at /metrics.

Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
	cmd.Flags().Duration("debounce", watch.DefaultDebounce, "settle time before a refresh")
	cmd.Flags().String("metrics-addr", "", "Prometheus listen address (overrides config)")
	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		a.cfg.MetricsAddr = addr
	}
	debounce, _ := cmd.Flags().GetDuration("debounce")

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	w := watch.New(a.cfg, a.coord, watch.Options{
		Logger:   logger,
		Gatherer: a.reg,
		Debounce: debounce,
	})
	return w.Run(cmd.Context())
}
