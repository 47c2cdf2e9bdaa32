package scan

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/bobmcallan/elida-portal/internal/client"
	"github.com/bobmcallan/elida-portal/internal/common"
	"github.com/bobmcallan/elida-portal/internal/config"
	"github.com/bobmcallan/elida-portal/internal/interfaces"
	"github.com/bobmcallan/elida-portal/internal/models"
	"github.com/bobmcallan/elida-portal/internal/portfolio"
	"github.com/bobmcallan/elida-portal/internal/storage/badger"
)

const testPoll = 10 * time.Millisecond

type fakeBackend struct {
	mu          sync.Mutex
	startID     string
	startErr    error
	startCalls  int
	statusCalls int
	lastTickers []string
	respond     func(call int) (models.ScanState, error)
}

func (f *fakeBackend) StartScan(_ context.Context, tickers []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	f.lastTickers = tickers
	if f.startErr != nil {
		return "", f.startErr
	}
	return f.startID, nil
}

func (f *fakeBackend) ScanStatus(_ context.Context, id string) (models.ScanState, error) {
	f.mu.Lock()
	f.statusCalls++
	call := f.statusCalls
	respond := f.respond
	f.mu.Unlock()
	state, err := respond(call)
	state.RequestID = id
	return state, err
}

func (f *fakeBackend) setRespond(fn func(call int) (models.ScanState, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respond = fn
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

func running(progress int) (models.ScanState, error) {
	return models.ScanState{Status: models.ScanStatusRunning, Progress: progress}, nil
}

type fixture struct {
	backend   *fakeBackend
	portfolio *portfolio.Service
	store     interfaces.StorageManager
	runner    *Runner
}

func newFixture(t *testing.T, opts Options, tickers ...string) *fixture {
	t.Helper()
	mgr, err := badger.NewManager(common.NewSilentLogger(), &config.BadgerConfig{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	svc := portfolio.NewService(mgr.PortfolioStorage(), mgr.ScanStorage(), nil)
	for _, tk := range tickers {
		if _, err := svc.Add(context.Background(), portfolio.AddInput{Ticker: tk}); err != nil {
			t.Fatalf("Add(%s) failed: %v", tk, err)
		}
	}

	if opts.PollInterval == 0 {
		opts.PollInterval = testPoll
	}
	if opts.MaxBackoff == 0 {
		opts.MaxBackoff = 2 * testPoll
	}
	backend := &fakeBackend{startID: "req-1", respond: func(int) (models.ScanState, error) { return running(10) }}
	runner := NewRunner(backend, svc, mgr.ScanStorage(), nil, opts)
	t.Cleanup(func() {
		runner.Close()
		mgr.Close()
	})
	return &fixture{backend: backend, portfolio: svc, store: mgr, runner: runner}
}

func (f *fixture) entries(t *testing.T) map[string]models.PortfolioEntry {
	t.Helper()
	list, err := f.store.PortfolioStorage().ListEntries(context.Background())
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	out := make(map[string]models.PortfolioEntry, len(list))
	for _, e := range list {
		out[e.Ticker] = e
	}
	return out
}

func (f *fixture) pending(t *testing.T) *models.ScanRequest {
	t.Helper()
	req, err := f.store.ScanStorage().GetScanRequest(context.Background())
	if err != nil {
		t.Fatalf("GetScanRequest failed: %v", err)
	}
	return req
}

func wait(t *testing.T, task *Task) (Outcome, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	outcome, err := task.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		t.Fatal("timed out waiting for scan task")
	}
	return outcome, err
}

func waitForPolls(t *testing.T, f *fakeBackend, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for f.calls() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d polls", n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStart_FailureStoresNothing(t *testing.T) {
	f := newFixture(t, Options{}, "AAPL")
	f.backend.startErr = &client.Error{Kind: client.KindServer, StatusCode: 503, Op: "start scan"}

	task, err := f.runner.Start(context.Background(), []string{"AAPL"})
	if client.KindOf(err) != client.KindServer {
		t.Fatalf("expected server error, got %v", err)
	}
	if task != nil {
		t.Error("expected no task")
	}
	if f.runner.Current() != nil {
		t.Error("expected no current task")
	}
	if req := f.pending(t); req != nil {
		t.Errorf("expected no stored request, got %+v", req)
	}

	time.Sleep(5 * testPoll)
	if f.backend.calls() != 0 {
		t.Errorf("expected no polls, got %d", f.backend.calls())
	}
}

func TestStart_NoSession(t *testing.T) {
	f := newFixture(t, Options{}, "AAPL")
	f.backend.startErr = client.ErrUnauthenticated

	_, err := f.runner.Start(context.Background(), []string{"AAPL"})
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if req := f.pending(t); req != nil {
		t.Errorf("expected no stored request, got %+v", req)
	}
}

func TestStart_EmptyTickers(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.runner.Start(context.Background(), []string{" ", ""})
	if client.KindOf(err) != client.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if f.backend.startCalls != 0 {
		t.Error("backend must not be called for an empty scan")
	}
}

func TestStart_StoresNormalizedRequest(t *testing.T) {
	f := newFixture(t, Options{}, "AAPL")

	task, err := f.runner.Start(context.Background(), []string{"aapl", "AAPL", " tcs.ns"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer task.Cancel()

	want := []string{"AAPL", "TCS.NS"}
	if !reflect.DeepEqual(f.backend.lastTickers, want) {
		t.Errorf("backend got %v, want %v", f.backend.lastTickers, want)
	}
	req := f.pending(t)
	if req == nil || req.RequestID != "req-1" || !reflect.DeepEqual(req.Tickers, want) {
		t.Errorf("unexpected stored request: %+v", req)
	}
	if task.RequestID() != "req-1" || task.ID() == "" {
		t.Errorf("unexpected task ids: %s %s", task.RequestID(), task.ID())
	}
}

func TestScan_ExampleScenario(t *testing.T) {
	f := newFixture(t, Options{}, "AAPL", "TCS.NS")
	f.backend.setRespond(func(int) (models.ScanState, error) {
		s := 72.0
		return models.ScanState{
			Status:   models.ScanStatusCompleted,
			Progress: 100,
			Results:  []models.ScanResult{{Ticker: "AAPL", Score: &s, Recommendation: "Buy", Risk: "Medium"}},
		}, nil
	})
	before := f.entries(t)

	task, err := f.runner.Start(context.Background(), []string{"AAPL", "TCS.NS"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	outcome, err := wait(t, task)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != models.ScanStatusCompleted || outcome.Updated != 1 {
		t.Errorf("unexpected outcome: %+v", outcome)
	}

	after := f.entries(t)
	aapl := after["AAPL"]
	if aapl.Status != models.EntryStatusAnalyzed || aapl.Score == nil || *aapl.Score != 72 || aapl.Recommendation != "Buy" || aapl.Risk != models.RiskMedium {
		t.Errorf("unexpected AAPL: %+v", aapl)
	}
	if !reflect.DeepEqual(after["TCS.NS"], before["TCS.NS"]) {
		t.Errorf("TCS.NS changed: %+v", after["TCS.NS"])
	}
	if after["TCS.NS"].Status != models.EntryStatusPending {
		t.Errorf("expected TCS.NS pending, got %s", after["TCS.NS"].Status)
	}
}

func TestScan_NonTerminalPollsOnlyMoveProgress(t *testing.T) {
	var (
		mu       sync.Mutex
		progress []int
		changed  []string
	)

	var f *fixture
	f = newFixture(t, Options{OnUpdate: func(s models.ScanState) {
		mu.Lock()
		defer mu.Unlock()
		progress = append(progress, s.Progress)
		if !s.Status.Terminal() {
			entries, _ := f.store.PortfolioStorage().ListEntries(context.Background())
			for _, e := range entries {
				if e.Status != models.EntryStatusPending || e.Score != nil {
					changed = append(changed, e.Ticker)
				}
			}
		}
	}}, "AAPL", "TCS.NS")

	f.backend.setRespond(func(call int) (models.ScanState, error) {
		switch call {
		case 1:
			return running(40)
		case 2:
			return running(70)
		default:
			return models.ScanState{Status: models.ScanStatusCompleted, Progress: 100}, nil
		}
	})

	task, err := f.runner.Start(context.Background(), []string{"AAPL", "TCS.NS"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := wait(t, task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(progress, []int{40, 70, 100}) {
		t.Errorf("expected progress 40, 70, 100, got %v", progress)
	}
	if len(changed) != 0 {
		t.Errorf("entries mutated during non-terminal polls: %v", changed)
	}
	if task.Progress() != 100 || task.Polls() != 3 {
		t.Errorf("unexpected task state: progress %d polls %d", task.Progress(), task.Polls())
	}
}

func TestScan_TerminalClearsAndStopsPolling(t *testing.T) {
	for _, status := range []models.ScanStatus{models.ScanStatusCompleted, models.ScanStatusFailed} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t, Options{}, "AAPL")
			f.backend.setRespond(func(call int) (models.ScanState, error) {
				if call < 2 {
					return running(50)
				}
				return models.ScanState{Status: status, Error: "backend said no"}, nil
			})

			task, err := f.runner.Start(context.Background(), []string{"AAPL"})
			if err != nil {
				t.Fatalf("Start failed: %v", err)
			}
			if _, err := wait(t, task); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if req := f.pending(t); req != nil {
				t.Errorf("expected request cleared, got %+v", req)
			}
			calls := f.backend.calls()
			time.Sleep(5 * testPoll)
			if f.backend.calls() != calls {
				t.Errorf("polling continued after terminal status: %d -> %d", calls, f.backend.calls())
			}
		})
	}
}

func TestScan_FailedMarksEntriesWithoutResult(t *testing.T) {
	f := newFixture(t, Options{}, "AAPL", "MSFT", "TCS.NS")
	f.backend.setRespond(func(int) (models.ScanState, error) {
		s := 55.0
		return models.ScanState{
			Status:  models.ScanStatusFailed,
			Error:   "agent crashed",
			Results: []models.ScanResult{{Ticker: "MSFT", Score: &s}},
		}, nil
	})

	task, err := f.runner.Start(context.Background(), []string{"AAPL", "MSFT"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	outcome, err := wait(t, task)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != models.ScanStatusFailed || outcome.Error != "agent crashed" || outcome.Failed != 1 || outcome.Updated != 1 {
		t.Errorf("unexpected outcome: %+v", outcome)
	}

	after := f.entries(t)
	if after["AAPL"].Status != models.EntryStatusError {
		t.Errorf("expected AAPL error, got %s", after["AAPL"].Status)
	}
	if after["MSFT"].Status != models.EntryStatusAnalyzed {
		t.Errorf("expected MSFT analyzed, got %s", after["MSFT"].Status)
	}
	if after["TCS.NS"].Status != models.EntryStatusPending {
		t.Errorf("expected TCS.NS untouched, got %s", after["TCS.NS"].Status)
	}
}

func TestScan_TransientErrorsAreRetried(t *testing.T) {
	f := newFixture(t, Options{MaxAttempts: 3}, "AAPL")
	f.backend.setRespond(func(call int) (models.ScanState, error) {
		switch call {
		case 1:
			return models.ScanState{}, &client.Error{Kind: client.KindServer, StatusCode: 502}
		case 2:
			return models.ScanState{}, &client.Error{Kind: client.KindTransport}
		case 3:
			return running(60)
		case 4:
			return models.ScanState{}, &client.Error{Kind: client.KindTimeout}
		case 5:
			return models.ScanState{}, &client.Error{Kind: client.KindTimeout}
		default:
			return models.ScanState{Status: models.ScanStatusCompleted}, nil
		}
	})

	task, err := f.runner.Start(context.Background(), []string{"AAPL"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	outcome, err := wait(t, task)
	if err != nil {
		t.Fatalf("expected recovery after transient errors, got %v", err)
	}
	if outcome.Status != models.ScanStatusCompleted {
		t.Errorf("unexpected outcome: %+v", outcome)
	}
	if f.backend.calls() != 6 {
		t.Errorf("expected 6 status calls, got %d", f.backend.calls())
	}
}

func TestScan_GivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture(t, Options{MaxAttempts: 3}, "AAPL")
	f.backend.setRespond(func(int) (models.ScanState, error) {
		return models.ScanState{}, &client.Error{Kind: client.KindTransport, Op: "scan status"}
	})

	task, err := f.runner.Start(context.Background(), []string{"AAPL"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	_, err = wait(t, task)
	if !errors.Is(err, ErrGaveUp) {
		t.Fatalf("expected ErrGaveUp, got %v", err)
	}
	if client.KindOf(err) != client.KindTransport {
		t.Errorf("expected last error kept, got %v", err)
	}
	if f.backend.calls() != 3 {
		t.Errorf("expected 3 attempts, got %d", f.backend.calls())
	}
	if req := f.pending(t); req != nil {
		t.Errorf("expected request cleared after giving up, got %+v", req)
	}
	if f.entries(t)["AAPL"].Status != models.EntryStatusPending {
		t.Error("giving up must not change entries")
	}
}

func TestScan_PermanentErrorClearsImmediately(t *testing.T) {
	f := newFixture(t, Options{}, "AAPL")
	f.backend.setRespond(func(int) (models.ScanState, error) {
		return models.ScanState{}, &client.Error{Kind: client.KindNotFound, StatusCode: 404}
	})

	task, err := f.runner.Start(context.Background(), []string{"AAPL"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	_, err = wait(t, task)
	if client.KindOf(err) != client.KindNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
	if f.backend.calls() != 1 {
		t.Errorf("expected a single attempt, got %d", f.backend.calls())
	}
	if req := f.pending(t); req != nil {
		t.Errorf("expected request cleared, got %+v", req)
	}
}

func TestScan_CancelKeepsRequestForResume(t *testing.T) {
	f := newFixture(t, Options{}, "AAPL")
	f.backend.setRespond(func(int) (models.ScanState, error) { return running(30) })

	task, err := f.runner.Start(context.Background(), []string{"AAPL"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitForPolls(t, f.backend, 1)
	task.Cancel()

	if _, err := wait(t, task); !errors.Is(err, ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got %v", err)
	}
	if req := f.pending(t); req == nil || req.RequestID != "req-1" {
		t.Fatalf("expected request kept after cancel, got %+v", req)
	}

	f.backend.setRespond(func(int) (models.ScanState, error) {
		return models.ScanState{Status: models.ScanStatusCompleted}, nil
	})
	resumed, ok, err := f.runner.Resume(context.Background())
	if err != nil || !ok || resumed == nil {
		t.Fatalf("expected resume, got %v %v %v", resumed, ok, err)
	}
	if !reflect.DeepEqual(resumed.Tickers(), []string{"AAPL"}) {
		t.Errorf("expected stored tickers on resume, got %v", resumed.Tickers())
	}
	if _, err := wait(t, resumed); err != nil {
		t.Fatalf("unexpected error after resume: %v", err)
	}
	if req := f.pending(t); req != nil {
		t.Errorf("expected request cleared, got %+v", req)
	}
}

func TestResume_NothingStored(t *testing.T) {
	f := newFixture(t, Options{})
	task, ok, err := f.runner.Resume(context.Background())
	if task != nil || ok || err != nil {
		t.Errorf("expected nothing to resume, got %v %v %v", task, ok, err)
	}
}

func TestStart_GuardsInFlightScan(t *testing.T) {
	f := newFixture(t, Options{}, "AAPL")
	f.backend.setRespond(func(int) (models.ScanState, error) { return running(10) })

	task, err := f.runner.Start(context.Background(), []string{"AAPL"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer task.Cancel()

	if _, err := f.runner.Start(context.Background(), []string{"MSFT"}); !errors.Is(err, ErrScanInFlight) {
		t.Errorf("expected ErrScanInFlight, got %v", err)
	}
	if err := f.runner.Discard(context.Background()); !errors.Is(err, ErrScanInFlight) {
		t.Errorf("expected ErrScanInFlight from Discard, got %v", err)
	}
	if current, ok, err := f.runner.Resume(context.Background()); current != task || ok || err != nil {
		t.Errorf("Resume should return the running task, got %v %v %v", current, ok, err)
	}
	if f.backend.startCalls != 1 {
		t.Errorf("expected one start call, got %d", f.backend.startCalls)
	}
}

func TestScan_MaxDuration(t *testing.T) {
	f := newFixture(t, Options{MaxDuration: 5 * testPoll}, "AAPL")
	f.backend.setRespond(func(int) (models.ScanState, error) { return running(20) })

	task, err := f.runner.Start(context.Background(), []string{"AAPL"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	_, err = wait(t, task)
	if client.KindOf(err) != client.KindTimeout {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if req := f.pending(t); req != nil {
		t.Errorf("expected request cleared after deadline, got %+v", req)
	}
}

func TestDiscard_ClearsStoredRequest(t *testing.T) {
	f := newFixture(t, Options{}, "AAPL")
	ctx := context.Background()
	if err := f.store.ScanStorage().SaveScanRequest(ctx, &models.ScanRequest{RequestID: "old"}); err != nil {
		t.Fatalf("SaveScanRequest failed: %v", err)
	}
	if err := f.runner.Discard(ctx); err != nil {
		t.Fatalf("Discard failed: %v", err)
	}
	if req := f.pending(t); req != nil {
		t.Errorf("expected request discarded, got %+v", req)
	}
}

func TestClose_CancelsRunningTask(t *testing.T) {
	f := newFixture(t, Options{}, "AAPL")
	f.backend.setRespond(func(int) (models.ScanState, error) { return running(10) })

	task, err := f.runner.Start(context.Background(), []string{"AAPL"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	f.runner.Close()

	if err := task.Err(); !errors.Is(err, ErrCanceled) {
		t.Errorf("expected ErrCanceled after Close, got %v", err)
	}
	if _, err := f.runner.Start(context.Background(), []string{"AAPL"}); err == nil {
		t.Error("expected Start to fail on a closed runner")
	}
}

func TestSnapshot_RunningThenCanceled(t *testing.T) {
	f := newFixture(t, Options{}, "AAPL")
	f.backend.setRespond(func(int) (models.ScanState, error) { return running(40) })

	snap, err := f.runner.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Running || snap.TaskID != "" || snap.Pending != nil {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}

	task, err := f.runner.Start(context.Background(), []string{"AAPL"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitForPolls(t, f.backend, 1)

	snap, _ = f.runner.Snapshot(context.Background())
	if !snap.Running || snap.RequestID != "req-1" || snap.TaskID != task.ID() {
		t.Fatalf("expected running snapshot, got %+v", snap)
	}
	if snap.Pending != nil {
		t.Error("running snapshot should not report a pending request")
	}

	task.Cancel()
	wait(t, task)

	snap, _ = f.runner.Snapshot(context.Background())
	if snap.Running {
		t.Error("expected snapshot to be stopped after cancel")
	}
	if snap.Outcome == nil || snap.Error == "" {
		t.Errorf("expected outcome and error after cancel, got %+v", snap)
	}
	if snap.Pending == nil || snap.Pending.RequestID != "req-1" {
		t.Errorf("expected resumable pending request, got %+v", snap.Pending)
	}
}
