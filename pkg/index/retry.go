// retry.go shields index writes from transient sqlite contention.
//
// The cache runs in WAL mode and every session process opens its own
// connection, so concurrent rebuilds occasionally collide. busy_timeout
// absorbs most of the lock waits at the connection level; what leaks
// through surfaces as an error and is retried here. Everything else
// aborts on the first attempt.
package index

import (
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	retryBaseDelay = 50 * time.Millisecond
	retryMaxDelay  = 500 * time.Millisecond
	retryBudget    = 3
)

// contentionPatterns matches the shapes modernc.org/sqlite gives its
// contention errors: the symbolic names, the locked-database text behind
// the busy_timeout fallthrough, and the bare result codes in parentheses
// (5 BUSY, 6 LOCKED, 522 IOERR_SHORT_READ from a WAL frame moving
// mid-read).
var contentionPatterns = []string{
	"SQLITE_BUSY",
	"SQLITE_LOCKED",
	"IOERR_SHORT_READ",
	"database is locked",
	"database table is locked",
	"(5)",
	"(6)",
	"(522)",
}

func isTransientSQLiteErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, pat := range contentionPatterns {
		if strings.Contains(msg, pat) {
			return true
		}
	}
	return false
}

// newRetryBackOff returns the schedule for index writes: exponential from
// retryBaseDelay, capped at retryMaxDelay, jittered, at most retryBudget
// retries after the first attempt.
func newRetryBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryBaseDelay
	b.MaxInterval = retryMaxDelay
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, retryBudget)
}

// retryWith runs fn under the given schedule, retrying only transient
// sqlite contention. Any other error is permanent and comes back from the
// first attempt that saw it.
func retryWith(b backoff.BackOff, fn func() error) error {
	return backoff.Retry(func() error {
		err := fn()
		if err != nil && !isTransientSQLiteErr(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
