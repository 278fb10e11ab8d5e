package index

import (
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastBackOff keeps retry tests quick: constant millisecond delay with the
// given number of retries after the first attempt.
func fastBackOff(retries uint64) backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), retries)
}

func TestIsTransientSQLiteErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"non-transient", errors.New("syntax error"), false},
		{"busy", errors.New("SQLITE_BUSY"), true},
		{"locked", errors.New("SQLITE_LOCKED"), true},
		{"short read", errors.New("IOERR_SHORT_READ"), true},
		{"database is locked", errors.New("database is locked"), true},
		{"table is locked", errors.New("database table is locked"), true},
		{"code 5", errors.New("sqlite: (5) database is busy"), true},
		{"code 6", errors.New("sqlite: (6) table is locked"), true},
		{"code 522", errors.New("sqlite: (522) short read"), true},
		{"wrapped busy", errors.New("exec: SQLITE_BUSY: db locked"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTransientSQLiteErr(tt.err))
		})
	}
}

func TestRetrySucceedsImmediately(t *testing.T) {
	calls := 0
	err := retryWith(fastBackOff(3), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryNonTransientErrorIsPermanent(t *testing.T) {
	boom := errors.New("UNIQUE constraint failed")
	calls := 0
	err := retryWith(fastBackOff(3), func() error {
		calls++
		return boom
	})
	assert.Equal(t, boom, err)
	assert.Equal(t, 1, calls, "non-transient errors must not be retried")
}

func TestRetryRidesOutTransientContention(t *testing.T) {
	calls := 0
	err := retryWith(fastBackOff(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustsBudget(t *testing.T) {
	busy := errors.New("SQLITE_BUSY")
	calls := 0
	err := retryWith(fastBackOff(2), func() error {
		calls++
		return busy
	})
	assert.Equal(t, busy, err)
	assert.Equal(t, 3, calls, "one initial attempt plus two retries")
}

func TestRetryZeroBudgetMeansOneAttempt(t *testing.T) {
	calls := 0
	err := retryWith(fastBackOff(0), func() error {
		calls++
		return errors.New("SQLITE_BUSY")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDefaultScheduleRecovers(t *testing.T) {
	calls := 0
	err := retryWith(newRetryBackOff(), func() error {
		calls++
		if calls == 1 {
			return errors.New("sqlite: (522) short read")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
