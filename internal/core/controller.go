package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// DefaultDownloadTimeout bounds fetching and parsing a processed file.
const DefaultDownloadTimeout = 2 * time.Minute

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	Poller          PollerOptions
	RequiredColumns []string
	Dialect         Dialect
	RowsPerPage     int
	DownloadTimeout time.Duration
	Logger          *slog.Logger
}

// Update is published to Controller subscribers on every state change.
// Table is set only on the single update that carries a parsed result.
type Update struct {
	Generation uint64           `json:"generation"`
	State      JobState         `json:"state"`
	Job        Job              `json:"job"`
	Table      *StructuredTable `json:"-"`
	Err        error            `json:"-"`
	At         time.Time        `json:"at"`
}

// Snapshot is a point-in-time view of the Controller.
type Snapshot struct {
	State    JobState     `json:"state"`
	Job      *Job         `json:"job,omitempty"`
	Summary  string       `json:"summary,omitempty"`
	FileName string       `json:"fileName,omitempty"`
	HasTable bool         `json:"hasTable"`
	RowCount int          `json:"rowCount"`
	Error    *UserMessage `json:"error,omitempty"`

	// Err is the last error, kept for logging.
	Err error `json:"-"`
}

// Controller runs one job at a time from upload through polling to a parsed
// table. It owns the Poller, the active Job and the current table.
type Controller struct {
	uploader   Uploader
	downloader Downloader
	poller     *Poller
	opts       ControllerOptions
	logger     *slog.Logger

	mu             sync.Mutex
	table          *StructuredTable
	lastErr        error
	retrieveCancel context.CancelFunc

	listenerMu sync.Mutex
	listeners  []chan Update
}

// NewController wires the collaborators together.
func NewController(uploader Uploader, fetcher StatusFetcher, downloader Downloader, opts ControllerOptions) *Controller {
	if len(opts.RequiredColumns) == 0 {
		opts.RequiredColumns = DefaultRequiredColumns
	}
	if opts.Dialect == "" {
		opts.Dialect = DialectSimple
	}
	if opts.RowsPerPage < 1 {
		opts.RowsPerPage = DefaultRowsPerPage
	}
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = DefaultDownloadTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Poller.Logger == nil {
		opts.Poller.Logger = opts.Logger
	}

	c := &Controller{
		uploader:   uploader,
		downloader: downloader,
		opts:       opts,
		logger:     opts.Logger,
	}
	pollOpts := opts.Poller
	pollOpts.OnTerminal = c.handleTerminal
	c.poller = NewPoller(fetcher, pollOpts)
	return c
}

// Submit uploads file and starts polling the resulting job. A previous
// completed or failed job is discarded first. Submitting while a job is
// active returns InvalidStateError.
func (c *Controller) Submit(ctx context.Context, file FileUpload) (Job, error) {
	c.mu.Lock()
	state := c.poller.State()
	if state.Active() {
		c.mu.Unlock()
		return Job{}, &InvalidStateError{Op: "submit", State: state}
	}
	if state.Terminal() {
		c.discardLocked()
	}
	gen, err := c.poller.BeginSubmit()
	if err != nil {
		c.mu.Unlock()
		return Job{}, err
	}
	c.publishLocked(Update{Generation: gen, State: StateSubmitting})
	c.mu.Unlock()

	log := c.logger.With("file", file.Name, "generation", gen)
	log.Info("submitting file", "size", file.Size)

	desc, uploadErr := c.uploader.Upload(ctx, file)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.poller.Generation() != gen {
		log.Info("discarding upload response after cancel")
		return Job{}, &UploadError{Err: errors.New("upload cancelled")}
	}

	if uploadErr != nil {
		err := asUploadError(uploadErr)
		c.poller.Reset()
		c.lastErr = err
		c.publishLocked(Update{Generation: c.poller.Generation(), State: StateIdle, Err: err})
		log.Warn("upload failed", "error", uploadErr)
		return Job{}, err
	}

	if err := c.poller.Start(NewJob(desc)); err != nil {
		c.poller.Reset()
		c.lastErr = err
		c.publishLocked(Update{Generation: c.poller.Generation(), State: StateIdle, Err: err})
		log.Error("could not start polling", "job_id", desc.JobID, "error", err)
		return Job{}, err
	}

	job := c.poller.Job()
	c.publishLocked(Update{Generation: gen, State: StatePolling, Job: job})
	log.Info("job submitted", "job_id", job.ID)
	return job, nil
}

func asUploadError(err error) error {
	var ue *UploadError
	if errors.As(err, &ue) {
		return err
	}
	return &UploadError{Err: err}
}

// Cancel stops a job that is submitting or polling. It reports whether a job
// was cancelled.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.poller.Cancel() {
		return false
	}
	c.lastErr = nil
	c.publishLocked(Update{Generation: c.poller.Generation(), State: StateIdle})
	c.logger.Info("job cancelled")
	return true
}

// Reset discards the current job and table in any state.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.discardLocked()
	c.publishLocked(Update{Generation: c.poller.Generation(), State: StateIdle})
}

func (c *Controller) discardLocked() {
	c.poller.Reset()
	if c.retrieveCancel != nil {
		c.retrieveCancel()
		c.retrieveCancel = nil
	}
	c.table = nil
	c.lastErr = nil
}

// handleTerminal runs on the poll goroutine when a job completes or fails.
func (c *Controller) handleTerminal(ev PollEvent) {
	log := c.logger.With("job_id", ev.Job.ID, "generation", ev.Generation)

	c.mu.Lock()
	if c.poller.Generation() != ev.Generation {
		c.mu.Unlock()
		return
	}
	if ev.State == StateFailed {
		c.lastErr = ev.Err
		c.publishLocked(Update{Generation: ev.Generation, State: StateFailed, Job: ev.Job, Err: ev.Err})
		c.mu.Unlock()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.DownloadTimeout)
	c.retrieveCancel = cancel
	c.mu.Unlock()
	defer cancel()

	start := time.Now()
	table, err := c.retrieve(ctx, ev.Job)

	c.mu.Lock()
	defer c.mu.Unlock()

	// Reset while the download was running.
	if c.poller.Generation() != ev.Generation {
		return
	}
	c.retrieveCancel = nil

	if err != nil {
		rerr := &ResultRetrievalError{Err: err}
		c.lastErr = rerr
		log.Error("result retrieval failed", "error", err)
		c.publishLocked(Update{Generation: ev.Generation, State: StateCompleted, Job: ev.Job, Err: rerr})
		return
	}

	c.table = table
	log.Info("result ready",
		"rows", table.RowCount(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	c.publishLocked(Update{Generation: ev.Generation, State: StateCompleted, Job: ev.Job, Table: table})
}

func (c *Controller) retrieve(ctx context.Context, job Job) (*StructuredTable, error) {
	body, err := c.downloader.Download(ctx, job.DownloadURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	counter := NewCountingReader(body)
	table, err := ParseReader(counter, c.opts.RequiredColumns, WithDialect(c.opts.Dialect))
	if err != nil {
		return nil, err
	}
	c.logger.Debug("processed file downloaded", "job_id", job.ID, "bytes", counter.BytesRead())
	return table, nil
}

// State returns the current job state.
func (c *Controller) State() JobState {
	return c.poller.State()
}

// Snapshot returns the current state, job and last error.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{State: c.poller.State(), Err: c.lastErr}
	if s.State != StateIdle {
		job := c.poller.Job()
		s.Job = &job
		if job.DownloadURL != "" {
			s.FileName = job.FileName()
		}
		if job.Result != nil {
			s.Summary = job.Result.Summary()
		}
	}
	if c.table != nil {
		s.HasTable = true
		s.RowCount = c.table.RowCount()
	}
	if c.lastErr != nil {
		msg := MapError(c.lastErr)
		s.Error = &msg
	}
	return s
}

// Table returns the parsed result of the completed job.
func (c *Controller) Table() (*StructuredTable, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.table == nil {
		return nil, ErrNoResult
	}
	return c.table, nil
}

// View returns a fresh TableView over the current table.
func (c *Controller) View() (*TableView, error) {
	table, err := c.Table()
	if err != nil {
		return nil, err
	}
	return NewTableView(table, c.opts.RowsPerPage), nil
}

// DownloadProcessed streams the raw processed file to w and returns its
// file name.
func (c *Controller) DownloadProcessed(ctx context.Context, w io.Writer) (string, error) {
	job := c.poller.Job()
	if job.State != StateCompleted {
		return "", ErrNoResult
	}

	body, err := c.downloader.Download(ctx, job.DownloadURL)
	if err != nil {
		return "", &ResultRetrievalError{Err: err}
	}
	defer body.Close()

	if _, err := io.Copy(w, body); err != nil {
		return "", &ResultRetrievalError{Err: fmt.Errorf("copy: %w", err)}
	}
	return job.FileName(), nil
}

// Subscribe returns a channel of updates and a function that unsubscribes
// and closes it. Slow subscribers miss updates rather than block the
// Controller.
func (c *Controller) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, 16)

	c.listenerMu.Lock()
	c.listeners = append(c.listeners, ch)
	c.listenerMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.listenerMu.Lock()
			defer c.listenerMu.Unlock()
			for i, l := range c.listeners {
				if l == ch {
					c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
					close(ch)
					return
				}
			}
		})
	}
}

func (c *Controller) publishLocked(u Update) {
	if u.At.IsZero() {
		u.At = time.Now()
	}

	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	for _, ch := range c.listeners {
		select {
		case ch <- u:
		default:
			// Listener is slow, skip this update
		}
	}
}
