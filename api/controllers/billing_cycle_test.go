package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/multierr"

	"github.com/cobrafacil/cobrafacil-backend/internal/subscriptions"
	pkgerrors "github.com/cobrafacil/cobrafacil-backend/pkg/errors"
)

func TestBillingCycleRunSuccess(t *testing.T) {
	svc := &stubSubscriptionService{}
	svc.cycleResult = &subscriptions.BillingCycleResult{Generated: 3, OverdueMarked: 1}
	handler := BillingCycleRun(svc, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/ops/billing-cycle/run", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}

	var envelope struct {
		Data subscriptions.BillingCycleResult `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Generated != 3 || envelope.Data.OverdueMarked != 1 {
		t.Fatalf("unexpected result payload: %+v", envelope.Data)
	}
}

func TestBillingCycleRunPartialFailuresStillSucceed(t *testing.T) {
	svc := &stubSubscriptionService{}
	svc.cycleResult = &subscriptions.BillingCycleResult{Generated: 1, Errors: 1}
	svc.err = multierr.Append(nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway down"))
	handler := BillingCycleRun(svc, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/ops/billing-cycle/run", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 despite item failures, got %d", rec.Code)
	}
}

func TestBillingCycleRunTotalFailure(t *testing.T) {
	svc := &stubSubscriptionService{}
	svc.err = pkgerrors.New(pkgerrors.CodeDependency, "database unavailable")
	handler := BillingCycleRun(svc, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/ops/billing-cycle/run", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
}
