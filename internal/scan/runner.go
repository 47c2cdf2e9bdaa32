// Package scan runs portfolio scans: it starts a batch scan on the backend,
// polls its status and merges the results into the portfolio.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bobmcallan/elida-portal/internal/client"
	"github.com/bobmcallan/elida-portal/internal/common"
	"github.com/bobmcallan/elida-portal/internal/interfaces"
	"github.com/bobmcallan/elida-portal/internal/models"
	"github.com/google/uuid"
)

var (
	// ErrScanInFlight is returned when a scan is already being polled.
	ErrScanInFlight = errors.New("a scan is already in progress")

	// ErrGaveUp ends a task after too many consecutive transient failures.
	ErrGaveUp = errors.New("gave up polling scan status")

	// ErrCanceled ends a task that was cancelled locally. The request id
	// stays stored so the scan can be resumed.
	ErrCanceled = errors.New("scan polling canceled")

	// ErrNoSession is returned when starting a scan while signed out.
	ErrNoSession = client.ErrUnauthenticated
)

// Backend is the part of the ELIDA client the runner needs.
type Backend interface {
	StartScan(ctx context.Context, tickers []string) (string, error)
	ScanStatus(ctx context.Context, requestID string) (models.ScanState, error)
}

// Merger applies terminal scan results to the portfolio.
type Merger interface {
	ApplyResults(ctx context.Context, results []models.ScanResult, at time.Time) (int, error)
	MarkFailed(ctx context.Context, tickers []string, results []models.ScanResult) (int, error)
}

// Options tunes polling.
type Options struct {
	PollInterval time.Duration
	MaxBackoff   time.Duration
	MaxAttempts  int
	MaxDuration  time.Duration

	// OnUpdate is called from the polling goroutine after every successful
	// poll.
	OnUpdate func(models.ScanState)
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.MaxBackoff < o.PollInterval {
		o.MaxBackoff = o.PollInterval
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.MaxDuration < 0 {
		o.MaxDuration = 0
	}
	return o
}

// Runner owns at most one polling task at a time.
type Runner struct {
	backend Backend
	merger  Merger
	store   interfaces.ScanStorage
	logger  *common.Logger
	opts    Options
	now     func() time.Time

	base     context.Context
	shutdown context.CancelFunc

	mu       sync.Mutex
	current  *Task
	starting bool
}

// NewRunner creates a scan runner.
func NewRunner(backend Backend, merger Merger, store interfaces.ScanStorage, logger *common.Logger, opts Options) *Runner {
	base, shutdown := context.WithCancel(context.Background())
	return &Runner{
		backend:  backend,
		merger:   merger,
		store:    store,
		logger:   logger.OrSilent(),
		opts:     opts.withDefaults(),
		now:      func() time.Time { return time.Now().UTC() },
		base:     base,
		shutdown: shutdown,
	}
}

// Start begins a scan of tickers and returns the polling task. When the
// backend refuses the scan nothing is stored and no task starts.
func (r *Runner) Start(ctx context.Context, tickers []string) (*Task, error) {
	tickers = models.NormalizeTickers(tickers)
	if len(tickers) == 0 {
		return nil, &client.Error{Kind: client.KindValidation, Op: "start scan", Message: "at least one ticker is required"}
	}

	r.mu.Lock()
	if r.starting || (r.current != nil && !r.current.finished()) {
		r.mu.Unlock()
		return nil, ErrScanInFlight
	}
	if err := r.base.Err(); err != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("scan runner closed: %w", err)
	}
	r.starting = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.starting = false
		r.mu.Unlock()
	}()

	if stale, err := r.store.GetScanRequest(ctx); err == nil && stale != nil {
		r.logger.Warn().Str("request_id", stale.RequestID).Msg("replacing unfinished scan request")
	}

	requestID, err := r.backend.StartScan(ctx, tickers)
	if err != nil {
		r.logger.Warn().Err(err).Int("tickers", len(tickers)).Msg("scan start failed")
		return nil, err
	}

	req := &models.ScanRequest{RequestID: requestID, Tickers: tickers, StartedAt: r.now()}
	if err := r.store.SaveScanRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to store scan request: %w", err)
	}

	r.logger.Info().Str("request_id", requestID).Int("tickers", len(tickers)).Msg("scan started")

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.launch(req), nil
}

// Resume starts polling a scan request left in the store by a cancelled task
// or an earlier process. It returns the running task and false when one is
// already being polled, and nil and false when there is nothing to resume.
func (r *Runner) Resume(ctx context.Context) (*Task, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.starting {
		return nil, false, ErrScanInFlight
	}
	if r.current != nil && !r.current.finished() {
		return r.current, false, nil
	}
	if err := r.base.Err(); err != nil {
		return nil, false, fmt.Errorf("scan runner closed: %w", err)
	}

	req, err := r.store.GetScanRequest(ctx)
	if err != nil {
		return nil, false, err
	}
	if req == nil {
		return nil, false, nil
	}

	r.logger.Info().Str("request_id", req.RequestID).Msg("resuming scan")
	return r.launch(req), true, nil
}

// Current returns the running task, or the last finished one.
func (r *Runner) Current() *Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Pending returns the stored scan request, if any.
func (r *Runner) Pending(ctx context.Context) (*models.ScanRequest, error) {
	return r.store.GetScanRequest(ctx)
}

// Discard forgets a stored scan request that is not being polled.
func (r *Runner) Discard(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.starting || (r.current != nil && !r.current.finished()) {
		return ErrScanInFlight
	}
	return r.store.ClearScanRequest(ctx, "")
}

// Close cancels any running task. Stored requests are kept.
func (r *Runner) Close() {
	r.shutdown()
	r.mu.Lock()
	t := r.current
	r.mu.Unlock()
	if t != nil {
		<-t.Done()
	}
}

// launch must be called with r.mu held.
func (r *Runner) launch(req *models.ScanRequest) *Task {
	ctx, cancel := context.WithCancel(r.base)
	id := uuid.New().String()
	t := &Task{
		id:        id,
		requestID: req.RequestID,
		tickers:   append([]string(nil), req.Tickers...),
		startedAt: r.now(),
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     models.ScanState{RequestID: req.RequestID, Status: models.ScanStatusPending},
		logger:    r.logger.WithCorrelationId(id),
	}
	r.current = t
	go r.poll(ctx, t)
	return t
}

// Snapshot is the scan state reported to callers: the current or last task,
// plus any stored request that is not being polled.
type Snapshot struct {
	Running   bool                `json:"running"`
	TaskID    string              `json:"task_id,omitempty"`
	RequestID string              `json:"request_id,omitempty"`
	Tickers   []string            `json:"tickers,omitempty"`
	StartedAt *time.Time          `json:"started_at,omitempty"`
	State     *models.ScanState   `json:"state,omitempty"`
	Outcome   *Outcome            `json:"outcome,omitempty"`
	Error     string              `json:"error,omitempty"`
	Pending   *models.ScanRequest `json:"pending,omitempty"`
}

// Snapshot describes the current scan.
func (r *Runner) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	if t := r.Current(); t != nil {
		state := t.State()
		started := t.StartedAt()
		snap.TaskID = t.ID()
		snap.RequestID = t.RequestID()
		snap.Tickers = t.Tickers()
		snap.StartedAt = &started
		snap.State = &state
		if outcome, ok := t.Outcome(); ok {
			snap.Outcome = &outcome
			if err := t.Err(); err != nil {
				snap.Error = err.Error()
			}
		} else {
			snap.Running = true
		}
	}
	if snap.Running {
		return snap, nil
	}

	pending, err := r.store.GetScanRequest(ctx)
	if err != nil {
		return snap, err
	}
	snap.Pending = pending
	return snap, nil
}
