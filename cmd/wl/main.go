// Command wl is the worklog CLI — lifecycle coordination for concurrent
// agent sessions over a shared filesystem.
//
// Every command is a thin wrapper over the coord library surface: the log
// is the single source of truth, commands either replay it or commit one
// transaction against it, and the process exits. The one long-running
// command is watch, which follows the log and keeps the derived surfaces
// fresh.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/daviddao/worklog/pkg/lockfile"
)

const version = "1.0.0"

// Exit codes:
//
//	0  success
//	1  error
//	2  lock denied (another writer held the log past the retry window)
const (
	exitOK   = 0
	exitErr  = 1
	exitLock = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "wl: %v\n", err)
		var le *lockfile.LockError
		if errors.As(err, &le) {
			os.Exit(exitLock)
		}
		os.Exit(exitErr)
	}
}
