package core

// poller.go implements the job status state machine:
//
//	Idle -> Submitting -> Polling -> Completed | Failed
//
// Every job instance gets a generation number. A poll loop belongs to exactly
// one generation and a response is only applied if that generation is still
// current, so a response that arrives after Cancel or Reset is dropped.
//
// The loop issues one status request per tick and waits for it before the
// next tick is consumed, so at most one request is in flight per Poller.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Polling defaults.
const (
	DefaultPollInterval         = 2 * time.Second
	DefaultRequestTimeout       = 15 * time.Second
	DefaultMaxConsecutiveErrors = 5
)

// PollerOptions configures a Poller. Zero values select the defaults; a zero
// MaxDuration means a job may poll indefinitely.
type PollerOptions struct {
	Interval             time.Duration
	RequestTimeout       time.Duration
	MaxConsecutiveErrors int
	MaxDuration          time.Duration
	Logger               *slog.Logger

	// OnTerminal is called once per job instance, from the poll goroutine,
	// when it reaches Completed or Failed.
	OnTerminal func(PollEvent)
}

func (o PollerOptions) withDefaults() PollerOptions {
	if o.Interval <= 0 {
		o.Interval = DefaultPollInterval
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.MaxConsecutiveErrors <= 0 {
		o.MaxConsecutiveErrors = DefaultMaxConsecutiveErrors
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// PollEvent reports a state transition of the Poller.
type PollEvent struct {
	Generation uint64
	State      JobState
	Job        Job
	Err        error
}

// Outcome classifies a single status query.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeTransient
	OutcomeTerminal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeTransient:
		return "transient"
	case OutcomeTerminal:
		return "terminal"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// PollResult is the classified result of one status query.
type PollResult struct {
	Outcome Outcome
	Report  StatusReport
	Err     error
}

// Classify turns a status response into a PollResult.
//
//   - fetch errors are transient unless they are a terminal PollingError
//   - "pending" and "completed" with a result are OK
//   - "failed" is terminal
//   - "completed" without a result, or an unknown state, is transient
func Classify(report StatusReport, err error) PollResult {
	if err != nil {
		var pe *PollingError
		if errors.As(err, &pe) {
			if pe.Terminal {
				return PollResult{Outcome: OutcomeTerminal, Err: err}
			}
			return PollResult{Outcome: OutcomeTransient, Err: err}
		}
		return PollResult{Outcome: OutcomeTransient, Err: &PollingError{Err: err}}
	}

	switch report.State {
	case RemotePending:
		return PollResult{Outcome: OutcomeOK, Report: report}
	case RemoteCompleted:
		if report.Result == nil {
			return PollResult{
				Outcome: OutcomeTransient,
				Report:  report,
				Err:     &PollingError{Err: errors.New("completed response has no result")},
			}
		}
		return PollResult{Outcome: OutcomeOK, Report: report}
	case RemoteFailed:
		msg := "backend reported failure"
		if report.Error != "" {
			msg += ": " + report.Error
		}
		return PollResult{
			Outcome: OutcomeTerminal,
			Report:  report,
			Err:     &PollingError{Terminal: true, Err: errors.New(msg)},
		}
	default:
		return PollResult{
			Outcome: OutcomeTransient,
			Report:  report,
			Err:     &PollingError{Err: fmt.Errorf("unrecognized job state %q", report.State)},
		}
	}
}

// Poller tracks one job at a time through its lifecycle.
type Poller struct {
	fetcher StatusFetcher
	opts    PollerOptions

	mu     sync.Mutex
	state  JobState
	job    Job
	gen    uint64
	cancel context.CancelFunc

	listenerMu sync.Mutex
	listeners  []chan PollEvent
}

// NewPoller creates an idle Poller.
func NewPoller(fetcher StatusFetcher, opts PollerOptions) *Poller {
	return &Poller{
		fetcher: fetcher,
		opts:    opts.withDefaults(),
		state:   StateIdle,
	}
}

// State returns the current state.
func (p *Poller) State() JobState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Job returns a copy of the current job. The zero Job is returned when idle.
func (p *Poller) Job() Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotJobLocked()
}

// Generation returns the current job instance number.
func (p *Poller) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen
}

// BeginSubmit moves an idle Poller to Submitting and returns the generation
// of the new job instance.
func (p *Poller) BeginSubmit() (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateIdle {
		return 0, &InvalidStateError{Op: "submit", State: p.state}
	}
	p.gen++
	p.state = StateSubmitting
	p.job = Job{State: StateSubmitting}
	p.emitLocked(nil)
	return p.gen, nil
}

// Start begins polling job.StatusURL. It is valid from Idle or Submitting;
// from Idle it passes through Submitting first. A job without a status URL
// returns the Poller to Idle.
func (p *Poller) Start(job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateIdle:
		p.gen++
		p.state = StateSubmitting
		p.job = Job{State: StateSubmitting}
		p.emitLocked(nil)
	case StateSubmitting:
	default:
		return &InvalidStateError{Op: "start polling", State: p.state}
	}

	if job.StatusURL == "" {
		p.gen++
		p.state = StateIdle
		p.job = Job{}
		err := &PollingError{Terminal: true, Err: ErrMissingStatusURL}
		p.emitLocked(err)
		return err
	}

	job.State = StatePolling
	job.Result = nil
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	p.job = job
	p.state = StatePolling

	// Clear any loop left from an earlier instance before starting a new one.
	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.emitLocked(nil)
	go p.run(ctx, p.gen, job)
	return nil
}

// Cancel stops an active job and returns to Idle, discarding any response
// still in flight. It reports whether there was anything to cancel.
func (p *Poller) Cancel() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.state.Active() {
		return false
	}
	p.toIdleLocked()
	return true
}

// Reset discards the current job in any state and returns to Idle.
func (p *Poller) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.toIdleLocked()
}

func (p *Poller) toIdleLocked() {
	p.gen++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.state = StateIdle
	p.job = Job{}
	p.emitLocked(nil)
}

func (p *Poller) run(ctx context.Context, gen uint64, job Job) {
	log := p.opts.Logger.With("job_id", job.ID, "generation", gen)

	defer func() {
		if r := recover(); r != nil {
			log.Error("poll loop panic", "panic", r)
			p.finish(gen, StateFailed, nil, &PollingError{Terminal: true, Err: fmt.Errorf("internal error: %v", r)})
		}
	}()

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if p.opts.MaxDuration > 0 {
		timer := time.NewTimer(p.opts.MaxDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	log.Info("polling started", "status_url", job.StatusURL, "interval", p.opts.Interval)

	failures := 0
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			log.Debug("polling stopped")
			return
		case <-deadline:
			p.finish(gen, StateFailed, nil, &PollingError{
				Terminal: true,
				Err:      fmt.Errorf("job exceeded max duration %s", p.opts.MaxDuration),
			})
			return
		case <-ticker.C:
		}

		attempt++
		res := p.poll(ctx, job.StatusURL)

		// Cancelled while the request was in flight.
		if ctx.Err() != nil {
			log.Debug("discarding status response after cancel", "attempt", attempt)
			return
		}

		switch res.Outcome {
		case OutcomeOK:
			failures = 0
			if res.Report.State == RemoteCompleted {
				log.Info("job completed", "attempt", attempt,
					"processing_time_ms", res.Report.Result.ProcessingTimeMs,
					"department_count", res.Report.Result.DepartmentCount,
				)
				p.finish(gen, StateCompleted, res.Report.Result, nil)
				return
			}
			log.Debug("job pending", "attempt", attempt)

		case OutcomeTransient:
			failures++
			log.Warn("status query failed, will retry",
				"attempt", attempt,
				"consecutive_errors", failures,
				"error", res.Err,
			)
			if failures >= p.opts.MaxConsecutiveErrors {
				p.finish(gen, StateFailed, nil, &PollingError{
					Terminal: true,
					Err:      fmt.Errorf("giving up after %d consecutive errors: %w", failures, res.Err),
				})
				return
			}

		case OutcomeTerminal:
			log.Warn("job failed", "attempt", attempt, "error", res.Err)
			p.finish(gen, StateFailed, nil, res.Err)
			return
		}
	}
}

func (p *Poller) poll(ctx context.Context, statusURL string) PollResult {
	reqCtx, cancel := context.WithTimeout(ctx, p.opts.RequestTimeout)
	defer cancel()
	return Classify(p.fetcher.FetchStatus(reqCtx, statusURL))
}

// finish applies a terminal transition if gen is still the current Polling
// instance. Completion and failure are therefore reported at most once.
func (p *Poller) finish(gen uint64, state JobState, result *JobResult, err error) {
	p.mu.Lock()
	if p.gen != gen || p.state != StatePolling {
		p.mu.Unlock()
		return
	}

	p.state = state
	p.job.State = state
	if state == StateCompleted && result != nil {
		r := *result
		p.job.Result = &r
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	ev := p.emitLocked(err)
	hook := p.opts.OnTerminal
	p.mu.Unlock()

	if hook != nil {
		hook(ev)
	}
}

func (p *Poller) snapshotJobLocked() Job {
	j := p.job
	if j.Result != nil {
		r := *j.Result
		j.Result = &r
	}
	return j
}

// Subscribe returns a channel of state transitions, starting with the
// current state, and a function that unsubscribes and closes the channel.
// Slow subscribers miss events rather than block the Poller.
func (p *Poller) Subscribe() (<-chan PollEvent, func()) {
	ch := make(chan PollEvent, 10)

	p.mu.Lock()
	current := PollEvent{Generation: p.gen, State: p.state, Job: p.snapshotJobLocked()}
	p.listenerMu.Lock()
	p.listeners = append(p.listeners, ch)
	ch <- current
	p.listenerMu.Unlock()
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.listenerMu.Lock()
			defer p.listenerMu.Unlock()
			for i, l := range p.listeners {
				if l == ch {
					p.listeners = append(p.listeners[:i], p.listeners[i+1:]...)
					close(ch)
					return
				}
			}
		})
	}
}

func (p *Poller) emitLocked(err error) PollEvent {
	ev := PollEvent{Generation: p.gen, State: p.state, Job: p.snapshotJobLocked(), Err: err}

	p.listenerMu.Lock()
	defer p.listenerMu.Unlock()
	for _, ch := range p.listeners {
		select {
		case ch <- ev:
		default:
			// Listener is slow, skip this update
		}
	}
	return ev
}
