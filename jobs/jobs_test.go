package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-resort/internal/billing"
	jobmetrics "github.com/odyssey-erp/odyssey-resort/internal/jobs"
	"github.com/odyssey-erp/odyssey-resort/internal/ledger"
)

type stubReconciler struct {
	opts   billing.ReconcileOptions
	report billing.ReconcileReport
	err    error
}

func (s *stubReconciler) Reconcile(_ context.Context, opts billing.ReconcileOptions) (billing.ReconcileReport, error) {
	s.opts = opts
	return s.report, s.err
}

type stubVerifier struct {
	drifts []ledger.BalanceDrift
	err    error
}

func (s stubVerifier) VerifyBalances(context.Context) ([]ledger.BalanceDrift, error) {
	return s.drifts, s.err
}

func newTestMetrics(t *testing.T) (*jobmetrics.Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return jobmetrics.NewMetrics(reg), reg
}

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	rr := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestReconcileJobPassesPayloadAndCountsItems(t *testing.T) {
	metrics, reg := newTestMetrics(t)
	rec := &stubReconciler{report: billing.ReconcileReport{DryRun: true, InvoicesPosted: 2, PaymentsPosted: 1, Skipped: 4}}
	job := NewReconcileJob(rec, nil, metrics)

	task, err := NewReconcileTask(ReconcilePayload{DryRun: true, Limit: 50})
	require.NoError(t, err)
	require.Equal(t, TaskLedgerReconcile, task.Type())

	require.NoError(t, job.Handle(context.Background(), task))
	require.True(t, rec.opts.DryRun)
	require.Equal(t, 50, rec.opts.Limit)

	body := scrape(t, reg)
	require.Contains(t, body, `resort_job_items_total{job="ledger:reconcile",outcome="posted"} 3`)
	require.Contains(t, body, `resort_job_items_total{job="ledger:reconcile",outcome="skipped"} 4`)
	require.Contains(t, body, `resort_jobs_total{job="ledger:reconcile",status="success"} 1`)
}

func TestReconcileJobFailsWhenEntitiesFail(t *testing.T) {
	metrics, reg := newTestMetrics(t)
	rec := &stubReconciler{report: billing.ReconcileReport{Failed: 1, Errors: []string{"invoice 7: account missing"}}}
	job := NewReconcileJob(rec, nil, metrics)

	task, err := NewReconcileTask(ReconcilePayload{})
	require.NoError(t, err)
	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	require.Contains(t, err.Error(), "1 entities failed")
	require.Contains(t, scrape(t, reg), `resort_jobs_total{job="ledger:reconcile",status="failure"} 1`)
}

func TestReconcileJobRejectsBadPayload(t *testing.T) {
	job := NewReconcileJob(&stubReconciler{}, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskLedgerReconcile, []byte("{")))
	require.Error(t, err)
	require.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestReconcileJobPropagatesServiceError(t *testing.T) {
	boom := errors.New("db down")
	job := NewReconcileJob(&stubReconciler{err: boom}, nil, nil)
	task, err := NewReconcileTask(ReconcilePayload{})
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), boom)
}

func TestVerifyBalancesJobPublishesDrift(t *testing.T) {
	metrics, reg := newTestMetrics(t)
	verifier := stubVerifier{drifts: []ledger.BalanceDrift{
		{Code: "1100", Stored: decimal.RequireFromString("25"), Computed: decimal.RequireFromString("20")},
		{Code: "4100", Stored: decimal.RequireFromString("-25"), Computed: decimal.RequireFromString("-20")},
	}}
	job := NewVerifyBalancesJob(verifier, nil, metrics)

	task, err := NewVerifyBalancesTask(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Contains(t, scrape(t, reg), "resort_ledger_balance_drift_accounts 2")

	var payload VerifyBalancesPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, 2024, payload.ScheduledFor.Year())
}

func TestUnconfiguredJobsFail(t *testing.T) {
	var rec *ReconcileJob
	require.Error(t, rec.Handle(context.Background(), asynq.NewTask(TaskLedgerReconcile, nil)))
	require.Error(t, (&VerifyBalancesJob{}).Handle(context.Background(), asynq.NewTask(TaskLedgerVerifyBalances, nil)))
}

type stubEnqueuer struct {
	reconcile []ReconcilePayload
	verify    int
	err       error
}

func (s *stubEnqueuer) EnqueueReconcile(_ context.Context, payload ReconcilePayload) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.reconcile = append(s.reconcile, payload)
	return &asynq.TaskInfo{ID: "r1", Type: TaskLedgerReconcile, Queue: QueueDefault}, nil
}

func (s *stubEnqueuer) EnqueueVerifyBalances(context.Context, time.Time) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.verify++
	return &asynq.TaskInfo{ID: "v1", Type: TaskLedgerVerifyBalances, Queue: QueueDefault}, nil
}

func TestHandlerRoutes(t *testing.T) {
	enq := &stubEnqueuer{}
	r := chi.NewRouter()
	NewHandler(nil, enq, nil).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"queue":"default"`)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/reconcile?dry_run=true", nil))
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Len(t, enq.reconcile, 1)
	require.True(t, enq.reconcile[0].DryRun)
	require.True(t, strings.Contains(rr.Body.String(), TaskLedgerReconcile))

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/verify-balances", nil))
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Equal(t, 1, enq.verify)

	enq.err = errors.New("redis unavailable")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/verify-balances", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestHandlerWithoutEnqueuerHasNoTriggers(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, nil, nil).MountRoutes(r)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/reconcile", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestNewWorkerValidatesRegistrations(t *testing.T) {
	opts := asynq.RedisClientOpt{Addr: "127.0.0.1:0"}

	_, err := NewWorker(WorkerConfig{RedisOpts: opts, Handlers: []TaskHandler{{Type: TaskLedgerReconcile}}})
	require.ErrorContains(t, err, "incomplete")

	task, err := NewReconcileTask(ReconcilePayload{})
	require.NoError(t, err)
	_, err = NewWorker(WorkerConfig{RedisOpts: opts, Cron: []CronRegistration{{Spec: "every tuesday", Task: task}}})
	require.ErrorContains(t, err, "schedule ledger:reconcile")
}
