package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go-librarian/internal/models"

	log "github.com/sirupsen/logrus"
)

// Kind identifies a pollable backend job. Each kind has its own poll interval
// and at most one active poll loop at a time.
type Kind string

const (
	KindScan      Kind = "scan"
	KindNormalize Kind = "normalize"
	KindLookup    Kind = "lookup"
)

// DefaultInterval returns the poll interval for the kind. Scanning reports
// fine-grained phases and polls fastest; batch lookup is rate-limited
// server-side and polls slowest.
func (k Kind) DefaultInterval() time.Duration {
	switch k {
	case KindScan:
		return 300 * time.Millisecond
	case KindNormalize:
		return 500 * time.Millisecond
	case KindLookup:
		return time.Second
	default:
		return time.Second
	}
}

// JobError is a failure reported by the job itself (as opposed to a failure
// reaching the server). The message is the server's error string, verbatim.
type JobError struct {
	Kind    Kind
	Message string
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s job failed: %s", e.Kind, e.Message)
}

// FetchFunc retrieves the current job status. Implementations that need the
// kind-specific counters should capture the full status in their closure;
// polls are strictly sequential so the capture cannot race.
type FetchFunc func(ctx context.Context) (models.JobProgress, error)

// Outcome is delivered exactly once when a poll loop ends.
//
// Err == nil and Stopped == false means the job completed normally: the
// caller must refetch the authoritative result, since terminal status
// payloads do not carry it for every job kind. A *JobError means the job
// failed and no final fetch should happen. Stopped == true means the loop was
// torn down before the job finished; the remote job keeps running.
type Outcome struct {
	Status  models.JobProgress
	Err     error
	Stopped bool
}

// Poller runs one poll loop for a job kind. Starting while a loop is active
// is a no-op, so double-triggering from the UI cannot spawn a second loop.
type Poller struct {
	Kind     Kind
	Interval time.Duration

	fetch FetchFunc

	mu      sync.Mutex
	running bool
	gen     int
	cancel  context.CancelFunc
}

func NewPoller(kind Kind, fetch FetchFunc) *Poller {
	return &Poller{
		Kind:     kind,
		Interval: kind.DefaultInterval(),
		fetch:    fetch,
	}
}

// Running reports whether a poll loop is currently active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Start begins polling. Every accepted status is passed to onStatus (may be
// nil); statuses fetched after Stop are discarded, never surfaced. Returns
// false without side effects if a loop is already running.
func (p *Poller) Start(ctx context.Context, onStatus func(models.JobProgress)) (<-chan Outcome, bool) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		log.Debugf("%s poll loop already running, ignoring start", p.Kind)
		return nil, false
	}
	p.running = true
	p.gen++
	gen := p.gen
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	out := make(chan Outcome, 1)
	go p.loop(loopCtx, gen, onStatus, out)
	return out, true
}

// Stop tears down the active poll loop, if any. The remote job is not
// cancelled; only the client-side polling stops.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// current reports whether gen is still the active loop generation.
func (p *Poller) current(gen int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running && p.gen == gen
}

// finish marks the loop as done if it is still the active generation.
func (p *Poller) finish(gen int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen == gen {
		p.running = false
		p.cancel = nil
	}
}

func (p *Poller) loop(ctx context.Context, gen int, onStatus func(models.JobProgress), out chan<- Outcome) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	var last models.JobProgress
	for {
		status, err := p.fetch(ctx)
		if ctx.Err() != nil || !p.current(gen) {
			// Stopped while the fetch was in flight; discard whatever came back.
			p.finish(gen)
			out <- Outcome{Status: last, Stopped: true}
			return
		}
		if err != nil {
			// Transport failure is not job failure: keep the loop alive and
			// retry on the next tick.
			log.WithError(err).Warnf("%s progress poll failed, retrying next tick", p.Kind)
		} else {
			last = status
			if onStatus != nil {
				onStatus(status)
			}
			if status.Terminal() {
				p.finish(gen)
				if status.Failed() {
					out <- Outcome{Status: status, Err: &JobError{Kind: p.Kind, Message: status.Error}}
				} else {
					out <- Outcome{Status: status}
				}
				return
			}
		}

		select {
		case <-ctx.Done():
			p.finish(gen)
			out <- Outcome{Status: last, Stopped: true}
			return
		case <-ticker.C:
		}
	}
}
