package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-librarian/internal/models"
)

// scriptedFetch returns the given statuses/errors in order, then keeps
// returning the last one.
func scriptedFetch(steps []func() (models.JobProgress, error)) FetchFunc {
	var i int32
	return func(ctx context.Context) (models.JobProgress, error) {
		n := atomic.AddInt32(&i, 1) - 1
		if int(n) >= len(steps) {
			n = int32(len(steps) - 1)
		}
		return steps[n]()
	}
}

func running(processed int) func() (models.JobProgress, error) {
	return func() (models.JobProgress, error) {
		return models.JobProgress{IsRunning: true, Processed: processed}, nil
	}
}

func done(processed int) func() (models.JobProgress, error) {
	return func() (models.JobProgress, error) {
		return models.JobProgress{IsRunning: false, Phase: "complete", Processed: processed}, nil
	}
}

func failed(msg string) func() (models.JobProgress, error) {
	return func() (models.JobProgress, error) {
		return models.JobProgress{IsRunning: false, Phase: "error", Error: msg}, nil
	}
}

func transportErr() func() (models.JobProgress, error) {
	return func() (models.JobProgress, error) {
		return models.JobProgress{}, errors.New("connection refused")
	}
}

func TestPollerCompletesOnTerminalStatus(t *testing.T) {
	p := NewPoller(KindScan, scriptedFetch([]func() (models.JobProgress, error){
		running(10), running(20), done(30),
	}))
	p.Interval = time.Millisecond

	var seen []int
	outcome, started := p.Start(context.Background(), func(s models.JobProgress) {
		seen = append(seen, s.Processed)
	})
	require.True(t, started)

	oc := <-outcome
	require.NoError(t, oc.Err)
	assert.False(t, oc.Stopped)
	assert.Equal(t, 30, oc.Status.Processed)
	assert.Equal(t, []int{10, 20, 30}, seen)
	assert.False(t, p.Running())
}

func TestPollerJobErrorStopsPolling(t *testing.T) {
	p := NewPoller(KindNormalize, scriptedFetch([]func() (models.JobProgress, error){
		running(5), failed("disk full"),
	}))
	p.Interval = time.Millisecond

	outcome, started := p.Start(context.Background(), nil)
	require.True(t, started)

	oc := <-outcome
	require.Error(t, oc.Err)
	var jobErr *JobError
	require.ErrorAs(t, oc.Err, &jobErr)
	assert.Equal(t, KindNormalize, jobErr.Kind)
	assert.Contains(t, jobErr.Error(), "disk full")
	assert.False(t, oc.Stopped)
	assert.False(t, p.Running())
}

func TestPollerRetriesTransportErrors(t *testing.T) {
	p := NewPoller(KindLookup, scriptedFetch([]func() (models.JobProgress, error){
		transportErr(), transportErr(), done(7),
	}))
	p.Interval = time.Millisecond

	outcome, started := p.Start(context.Background(), nil)
	require.True(t, started)

	oc := <-outcome
	require.NoError(t, oc.Err)
	assert.Equal(t, 7, oc.Status.Processed)
}

func TestPollerStartIsIdempotent(t *testing.T) {
	release := make(chan struct{})
	p := NewPoller(KindScan, func(ctx context.Context) (models.JobProgress, error) {
		<-release
		return models.JobProgress{IsRunning: false}, nil
	})
	p.Interval = time.Millisecond

	outcome, started := p.Start(context.Background(), nil)
	require.True(t, started)
	assert.True(t, p.Running())

	second, started := p.Start(context.Background(), nil)
	assert.False(t, started)
	assert.Nil(t, second)

	close(release)
	<-outcome
}

func TestPollerStopDiscardsInFlightStatus(t *testing.T) {
	fetchEntered := make(chan struct{})
	release := make(chan struct{})
	p := NewPoller(KindScan, func(ctx context.Context) (models.JobProgress, error) {
		select {
		case fetchEntered <- struct{}{}:
		default:
		}
		<-release
		// A terminal status that must never be surfaced.
		return models.JobProgress{IsRunning: false, Processed: 999}, nil
	})
	p.Interval = time.Millisecond

	var statusCalls int32
	outcome, started := p.Start(context.Background(), func(models.JobProgress) {
		atomic.AddInt32(&statusCalls, 1)
	})
	require.True(t, started)

	<-fetchEntered
	p.Stop()
	close(release)

	oc := <-outcome
	assert.True(t, oc.Stopped)
	require.NoError(t, oc.Err)
	assert.NotEqual(t, 999, oc.Status.Processed)
	assert.Equal(t, int32(0), atomic.LoadInt32(&statusCalls))
	assert.False(t, p.Running())
}

func TestPollerRestartAfterCompletion(t *testing.T) {
	p := NewPoller(KindScan, scriptedFetch([]func() (models.JobProgress, error){
		done(1),
	}))
	p.Interval = time.Millisecond

	outcome, started := p.Start(context.Background(), nil)
	require.True(t, started)
	<-outcome

	// A finished poller accepts a new loop.
	outcome, started = p.Start(context.Background(), nil)
	require.True(t, started)
	oc := <-outcome
	require.NoError(t, oc.Err)
}

func TestKindDefaultIntervals(t *testing.T) {
	assert.Equal(t, 300*time.Millisecond, KindScan.DefaultInterval())
	assert.Equal(t, 500*time.Millisecond, KindNormalize.DefaultInterval())
	assert.Equal(t, time.Second, KindLookup.DefaultInterval())
}
