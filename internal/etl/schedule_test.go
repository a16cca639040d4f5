package etl

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-warehouse/internal/pkg/distlock"
)

type countingRunner struct {
	runs atomic.Int32
	err  error
	seen Options
}

func (r *countingRunner) Run(ctx context.Context, opts Options) (*Result, error) {
	r.runs.Add(1)
	r.seen = opts
	return &Result{}, r.err
}

func TestNewSchedulerRejectsBadSpec(t *testing.T) {
	_, err := NewScheduler(&countingRunner{}, "every hour", Options{})
	assert.Error(t, err)

	_, err = NewScheduler(&countingRunner{}, "0 * * * * *", Options{})
	assert.Error(t, err, "seconds field is not part of the standard format")
}

func TestSchedulerRunNow(t *testing.T) {
	r := &countingRunner{}
	s, err := NewScheduler(r, "0 * * * *", Options{MetricsHours: 6})
	require.NoError(t, err)

	s.RunNow()
	assert.EqualValues(t, 1, r.runs.Load())
	assert.Equal(t, 6, r.seen.MetricsHours)
}

func TestSchedulerLockContention(t *testing.T) {
	r := &countingRunner{err: distlock.ErrNotAcquired}
	s, err := NewScheduler(r, "@hourly", Options{})
	require.NoError(t, err)

	s.RunNow()
	assert.EqualValues(t, 1, r.runs.Load())
}

func TestSchedulerStop(t *testing.T) {
	r := &countingRunner{}
	s, err := NewScheduler(r, "*/5 * * * *", Options{})
	require.NoError(t, err)

	s.Start()
	s.Stop()

	s.RunNow()
	assert.EqualValues(t, 0, r.runs.Load(), "no runs after stop")
}
