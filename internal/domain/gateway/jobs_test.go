package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/partnerlink/settlement-api/internal/domain/commission"
	"github.com/partnerlink/settlement-api/internal/domain/giftcard"
	"github.com/partnerlink/settlement-api/internal/domain/payout"
	"github.com/partnerlink/settlement-api/internal/middleware"
)

type fakeMaturer struct{ calls int }

func (f *fakeMaturer) Sweep(ctx context.Context, now time.Time) (commission.SweepResult, error) {
	f.calls++
	return commission.SweepResult{Matured: 7, Amount: 7000, Chunks: 1}, nil
}

type fakeSweeper struct {
	sweep     payout.SweepReport
	reconcile payout.SweepReport
	err       error
}

func (f *fakeSweeper) Sweep(ctx context.Context) (payout.SweepReport, error) { return f.sweep, f.err }

func (f *fakeSweeper) Reconcile(ctx context.Context) (payout.SweepReport, error) {
	return f.reconcile, f.err
}

type fakeGiftReconciler struct{ report giftcard.ReconcileReport }

func (f *fakeGiftReconciler) Reconcile(ctx context.Context) (giftcard.ReconcileReport, error) {
	return f.report, nil
}

type fakeLocker struct{ held map[string]bool }

func (l *fakeLocker) Acquire(ctx context.Context, name string) (func(), bool, error) {
	if l.held[name] {
		return func() {}, false, nil
	}
	l.held[name] = true
	return func() { delete(l.held, name) }, true, nil
}

func TestRunnerMergesReconcileReports(t *testing.T) {
	ben := uuid.New()
	sweeper := &fakeSweeper{reconcile: payout.SweepReport{
		Processed: 2,
		Pending:   2,
		Failed:    1,
		Errors:    []payout.SweepError{{BeneficiaryID: ben, Reason: "lookup_failed"}},
	}}
	gifts := &fakeGiftReconciler{report: giftcard.ReconcileReport{Processed: 1, Pending: 1}}
	runner := NewRunner(&fakeMaturer{}, sweeper, gifts, &fakeLocker{held: map[string]bool{}})

	report, err := runner.Run(context.Background(), JobReconcile)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Processed != 3 || report.Pending != 3 || report.Failed != 1 || report.Errors[0].BeneficiaryID != ben {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestRunnerSkipsWhenLocked(t *testing.T) {
	maturer := &fakeMaturer{}
	locker := &fakeLocker{held: map[string]bool{string(JobMaturation): true}}
	runner := NewRunner(maturer, &fakeSweeper{}, &fakeGiftReconciler{}, locker)

	report, err := runner.Run(context.Background(), JobMaturation)
	if err != nil || !report.Skipped {
		t.Fatalf("expected skipped run: %+v %v", report, err)
	}
	if maturer.calls != 0 {
		t.Fatalf("a locked job must not run")
	}

	if _, err := runner.Run(context.Background(), Job("nope")); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("expected unknown job, got %v", err)
	}
}

func TestCronEndpoints(t *testing.T) {
	ben := uuid.New()
	sweeper := &fakeSweeper{sweep: payout.SweepReport{
		Processed: 4,
		Failed:    1,
		Errors:    []payout.SweepError{{BeneficiaryID: ben, Reason: "account_invalid"}},
	}}
	runner := NewRunner(&fakeMaturer{}, sweeper, &fakeGiftReconciler{}, &fakeLocker{held: map[string]bool{}})
	srv := httptest.NewServer(NewCronHandler(runner, nil).Routes(middleware.CronAuth("cron-secret")))
	defer srv.Close()

	post := func(path, token string) (*http.Response, JobReport) {
		req, _ := http.NewRequest(http.MethodPost, srv.URL+path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("post %s: %v", path, err)
		}
		defer resp.Body.Close()
		var body struct {
			Data JobReport `json:"data"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return resp, body.Data
	}

	if resp, _ := post("/payouts", "wrong"); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	resp, report := post("/payouts", "cron-secret")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if report.Job != JobPayouts || report.Processed != 4 || report.Failed != 1 || report.Errors[0].Reason != "account_invalid" {
		t.Fatalf("unexpected report: %+v", report)
	}

	resp, report = post("/maturation", "cron-secret")
	if resp.StatusCode != http.StatusOK || report.Processed != 7 {
		t.Fatalf("unexpected maturation response: %d %+v", resp.StatusCode, report)
	}

	sweeper.err = errors.New("db down")
	if resp, _ := post("/reconcile", "cron-secret"); resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 for aborted sweep, got %d", resp.StatusCode)
	}
}

func TestAdminWakePublishesKnownJobs(t *testing.T) {
	runner := NewRunner(&fakeMaturer{}, &fakeSweeper{}, &fakeGiftReconciler{}, &fakeLocker{held: map[string]bool{}})
	var woken []string
	h := NewCronHandler(runner, func(ctx context.Context, job string) { woken = append(woken, job) })
	pass := func(next http.Handler) http.Handler { return next }
	srv := httptest.NewServer(h.AdminRoutes(pass, pass))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/payouts/wake", "application/json", nil)
	if err != nil {
		t.Fatalf("wake: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/rebalance/wake", "application/json", nil)
	if err != nil {
		t.Fatalf("wake: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown job, got %d", resp.StatusCode)
	}

	if len(woken) != 1 || woken[0] != "payouts" {
		t.Fatalf("unexpected wake-ups: %v", woken)
	}
}

func TestSchedulerRunsWokenJobs(t *testing.T) {
	maturer := &fakeMaturer{}
	runner := NewRunner(maturer, &fakeSweeper{}, &fakeGiftReconciler{}, &fakeLocker{held: map[string]bool{}})
	wake := make(chan string)
	s := NewScheduler(runner, wake, Schedule{Job: JobPayouts, Interval: time.Hour})
	s.Start()

	wake <- string(JobMaturation)
	wake <- "unknown"
	wake <- string(JobMaturation)
	s.Stop()

	if maturer.calls != 2 {
		t.Fatalf("expected 2 maturation runs, got %d", maturer.calls)
	}
}
