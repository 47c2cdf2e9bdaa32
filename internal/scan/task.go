package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bobmcallan/elida-portal/internal/client"
	"github.com/bobmcallan/elida-portal/internal/common"
	"github.com/bobmcallan/elida-portal/internal/models"
	"github.com/cenkalti/backoff/v4"
)

// Outcome summarizes a task that reached a terminal backend status.
type Outcome struct {
	RequestID string              `json:"request_id"`
	Status    models.ScanStatus   `json:"status"`
	Results   []models.ScanResult `json:"results,omitempty"`
	Updated   int                 `json:"updated"`
	Failed    int                 `json:"failed"`
	Error     string              `json:"error,omitempty"`
}

// Task is one polling run over a scan request.
type Task struct {
	id        string
	requestID string
	tickers   []string
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
	logger    *common.Logger

	mu      sync.Mutex
	state   models.ScanState
	polls   int
	outcome Outcome
	err     error
}

// ID identifies the task in logs.
func (t *Task) ID() string { return t.id }

// RequestID returns the backend request id being polled.
func (t *Task) RequestID() string { return t.requestID }

// Tickers returns the scanned tickers.
func (t *Task) Tickers() []string { return append([]string(nil), t.tickers...) }

// StartedAt returns when polling began.
func (t *Task) StartedAt() time.Time { return t.startedAt }

// Cancel stops polling. The backend is not told and the request id stays
// stored.
func (t *Task) Cancel() { t.cancel() }

// Done is closed when the task has ended.
func (t *Task) Done() <-chan struct{} { return t.done }

// Progress returns the last reported progress, 0..100.
func (t *Task) Progress() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Progress
}

// State returns the last polled state.
func (t *Task) State() models.ScanState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Polls returns how many status calls succeeded.
func (t *Task) Polls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.polls
}

// Outcome returns the outcome of a finished task. ok is false while the
// task is still running.
func (t *Task) Outcome() (outcome Outcome, ok bool) {
	if !t.finished() {
		return Outcome{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outcome, true
}

// Err returns the error the task ended with, nil while running.
func (t *Task) Err() error {
	if !t.finished() {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Wait blocks until the task ends or ctx is done.
func (t *Task) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-t.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.outcome, t.err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (t *Task) finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *Task) record(state models.ScanState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = state
	t.polls++
}

func (t *Task) finish(outcome Outcome, err error) {
	t.mu.Lock()
	t.outcome = outcome
	t.err = err
	t.mu.Unlock()
	close(t.done)
}

func (r *Runner) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.PollInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.MaxInterval = r.opts.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// poll is the task goroutine. Ticks run one after another; nothing else
// writes the task's state.
func (r *Runner) poll(ctx context.Context, t *Task) {
	defer t.cancel()

	var deadline <-chan time.Time
	if r.opts.MaxDuration > 0 {
		dt := time.NewTimer(r.opts.MaxDuration)
		defer dt.Stop()
		deadline = dt.C
	}

	b := r.newBackOff()
	timer := time.NewTimer(r.opts.PollInterval)
	defer timer.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			t.logger.Info().Str("request_id", t.requestID).Msg("scan polling canceled")
			t.finish(r.partialOutcome(t), ErrCanceled)
			return
		case <-deadline:
			r.clear(ctx, t)
			err := &client.Error{Kind: client.KindTimeout, Op: "scan", Message: fmt.Sprintf("scan did not finish within %s", r.opts.MaxDuration)}
			t.logger.Warn().Str("request_id", t.requestID).Dur("max_duration", r.opts.MaxDuration).Msg("scan deadline exceeded")
			t.finish(r.partialOutcome(t), err)
			return
		case <-timer.C:
		}

		state, err := r.backend.ScanStatus(ctx, t.requestID)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			if client.IsRetryable(err) {
				failures++
				if failures >= r.opts.MaxAttempts {
					r.clear(ctx, t)
					t.logger.Error().Str("request_id", t.requestID).Int("attempts", failures).Err(err).Msg("scan status kept failing, giving up")
					t.finish(r.partialOutcome(t), fmt.Errorf("%w after %d attempts: %w", ErrGaveUp, failures, err))
					return
				}
				wait := b.NextBackOff()
				if wait == backoff.Stop {
					wait = r.opts.MaxBackoff
				}
				t.logger.Warn().Str("request_id", t.requestID).Int("attempt", failures).Dur("retry_in", wait).Err(err).Msg("scan status failed, retrying")
				timer.Reset(wait)
				continue
			}

			r.clear(ctx, t)
			t.logger.Error().Str("request_id", t.requestID).Err(err).Msg("scan status failed permanently")
			t.finish(r.partialOutcome(t), err)
			return
		}

		failures = 0
		b.Reset()
		state.RequestID = t.requestID
		t.record(state)
		if r.opts.OnUpdate != nil {
			r.opts.OnUpdate(state)
		}
		t.logger.Debug().Str("request_id", t.requestID).Str("status", string(state.Status)).Int("progress", state.Progress).Msg("scan status")

		if !state.Status.Terminal() {
			timer.Reset(r.opts.PollInterval)
			continue
		}

		outcome, err := r.complete(ctx, t, state)
		t.finish(outcome, err)
		return
	}
}

// complete merges a terminal state and clears the stored request. The
// request is cleared even when the merge fails.
func (r *Runner) complete(ctx context.Context, t *Task, state models.ScanState) (Outcome, error) {
	ctx = context.WithoutCancel(ctx)
	outcome := Outcome{
		RequestID: t.requestID,
		Status:    state.Status,
		Results:   state.Results,
		Error:     state.Error,
	}

	var errs []error
	updated, err := r.merger.ApplyResults(ctx, state.Results, r.now())
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to merge scan results: %w", err))
	}
	outcome.Updated = updated

	if state.Status == models.ScanStatusFailed {
		failed, err := r.merger.MarkFailed(ctx, t.tickers, state.Results)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to mark failed entries: %w", err))
		}
		outcome.Failed = failed
	}

	if err := r.store.ClearScanRequest(ctx, t.requestID); err != nil {
		errs = append(errs, err)
	}

	t.logger.Info().
		Str("request_id", t.requestID).
		Str("status", string(state.Status)).
		Int("results", len(state.Results)).
		Int("updated", outcome.Updated).
		Int("failed", outcome.Failed).
		Msg("scan finished")

	return outcome, errors.Join(errs...)
}

func (r *Runner) clear(ctx context.Context, t *Task) {
	if err := r.store.ClearScanRequest(context.WithoutCancel(ctx), t.requestID); err != nil {
		t.logger.Warn().Str("request_id", t.requestID).Err(err).Msg("failed to clear scan request")
	}
}

func (r *Runner) partialOutcome(t *Task) Outcome {
	state := t.State()
	return Outcome{RequestID: t.requestID, Status: state.Status, Error: state.Error}
}
