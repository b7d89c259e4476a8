package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cobrafacil/cobrafacil-backend/internal/efi"
	"github.com/cobrafacil/cobrafacil-backend/internal/invoices"
	"github.com/cobrafacil/cobrafacil-backend/pkg/enums"
	pkgerrors "github.com/cobrafacil/cobrafacil-backend/pkg/errors"
	"github.com/cobrafacil/cobrafacil-backend/pkg/pagination"
)

type stubInvoiceService struct {
	invoice     *invoices.InvoiceDTO
	list        *invoices.InvoiceList
	err         error
	lastGen     invoices.GenerateInvoiceInput
	lastPayment invoices.ManualPaymentInput
	lastFilter  invoices.ListFilter
}

func (s *stubInvoiceService) GenerateInvoice(_ context.Context, input invoices.GenerateInvoiceInput) (*invoices.InvoiceDTO, error) {
	s.lastGen = input
	return s.invoice, s.err
}

func (s *stubInvoiceService) CreatePixCharge(_ context.Context, _, _ uuid.UUID) (*invoices.InvoiceDTO, error) {
	return s.invoice, s.err
}

func (s *stubInvoiceService) RecordManualPayment(_ context.Context, _, _ uuid.UUID, input invoices.ManualPaymentInput) (*invoices.InvoiceDTO, error) {
	s.lastPayment = input
	return s.invoice, s.err
}

func (s *stubInvoiceService) RecordGatewayPayment(_ context.Context, _ efi.Receipt) error {
	return s.err
}

func (s *stubInvoiceService) CancelInvoice(_ context.Context, _, _ uuid.UUID) (*invoices.InvoiceDTO, error) {
	return s.invoice, s.err
}

func (s *stubInvoiceService) MarkOverdue(_ context.Context, _ time.Time) (int64, error) {
	return 0, s.err
}

func (s *stubInvoiceService) GetInvoice(_ context.Context, _, _ uuid.UUID) (*invoices.InvoiceDTO, error) {
	return s.invoice, s.err
}

func (s *stubInvoiceService) ListInvoices(_ context.Context, _ uuid.UUID, filter invoices.ListFilter, _ pagination.Params) (*invoices.InvoiceList, error) {
	s.lastFilter = filter
	return s.list, s.err
}

func TestInvoiceGenerateSuccess(t *testing.T) {
	tenantID := uuid.New()
	subID := uuid.New()
	svc := &stubInvoiceService{invoice: &invoices.InvoiceDTO{
		ID:             uuid.New(),
		TenantID:       tenantID,
		SubscriptionID: subID,
		Number:         "2025030001",
		Amount:         decimal.RequireFromString("149.90"),
		Status:         enums.InvoiceStatusPending,
	}}
	handler := InvoiceGenerate(svc, nil)

	payload := []byte(`{"subscription_id":"` + subID.String() + `"}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, tenantRequest(http.MethodPost, "/api/v1/invoices", payload, tenantID))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastGen.TenantID != tenantID || svc.lastGen.SubscriptionID != subID {
		t.Fatalf("unexpected input: %+v", svc.lastGen)
	}

	var envelope struct {
		Data invoices.InvoiceDTO `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Number != "2025030001" {
		t.Fatalf("expected invoice number in payload, got %q", envelope.Data.Number)
	}
}

func TestInvoiceGenerateBadSubscriptionID(t *testing.T) {
	handler := InvoiceGenerate(&stubInvoiceService{}, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, tenantRequest(http.MethodPost, "/api/v1/invoices", []byte(`{"subscription_id":"nope"}`), uuid.New()))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestInvoiceListFilters(t *testing.T) {
	subID := uuid.New()
	svc := &stubInvoiceService{list: &invoices.InvoiceList{}}
	handler := InvoiceList(svc, nil)

	target := "/api/v1/invoices?status=pending&subscription_id=" + subID.String() + "&due_before=2025-04-01"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, tenantRequest(http.MethodGet, target, nil, uuid.New()))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastFilter.Status == nil || *svc.lastFilter.Status != enums.InvoiceStatusPending {
		t.Fatalf("expected pending filter, got %+v", svc.lastFilter.Status)
	}
	if svc.lastFilter.SubscriptionID == nil || *svc.lastFilter.SubscriptionID != subID {
		t.Fatalf("expected subscription filter, got %+v", svc.lastFilter.SubscriptionID)
	}
	if svc.lastFilter.DueBefore == nil {
		t.Fatal("expected due_before filter")
	}
}

func TestInvoiceListBadDueBefore(t *testing.T) {
	handler := InvoiceList(&stubInvoiceService{}, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, tenantRequest(http.MethodGet, "/api/v1/invoices?due_before=soon", nil, uuid.New()))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestInvoiceManualPaymentSuccess(t *testing.T) {
	svc := &stubInvoiceService{invoice: &invoices.InvoiceDTO{ID: uuid.New(), Status: enums.InvoiceStatusPaid}}
	handler := InvoiceManualPayment(svc, nil)

	payload := []byte(`{"method":"cash","amount":"149.90"}`)
	req := tenantRequest(http.MethodPost, "/api/v1/invoices/"+uuid.NewString()+"/payments", payload, uuid.New())
	req = withURLParam(req, "invoiceId", uuid.NewString())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastPayment.Method != enums.PaymentMethodCash {
		t.Fatalf("expected cash method got %s", svc.lastPayment.Method)
	}
	if svc.lastPayment.Amount == nil || !svc.lastPayment.Amount.Equal(decimal.RequireFromString("149.90")) {
		t.Fatalf("expected amount to pass through, got %+v", svc.lastPayment.Amount)
	}
}

func TestInvoiceManualPaymentRejectsPix(t *testing.T) {
	handler := InvoiceManualPayment(&stubInvoiceService{}, nil)

	payload := []byte(`{"method":"pix"}`)
	req := tenantRequest(http.MethodPost, "/api/v1/invoices/"+uuid.NewString()+"/payments", payload, uuid.New())
	req = withURLParam(req, "invoiceId", uuid.NewString())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestInvoiceManualPaymentAlreadyPaid(t *testing.T) {
	svc := &stubInvoiceService{err: pkgerrors.New(pkgerrors.CodeAlreadyPaid, "invoice already paid")}
	handler := InvoiceManualPayment(svc, nil)

	payload := []byte(`{"method":"cash"}`)
	req := tenantRequest(http.MethodPost, "/api/v1/invoices/"+uuid.NewString()+"/payments", payload, uuid.New())
	req = withURLParam(req, "invoiceId", uuid.NewString())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
}

func TestInvoicePixChargeNotConfigured(t *testing.T) {
	svc := &stubInvoiceService{err: pkgerrors.New(pkgerrors.CodeNotConfigured, "pix gateway not configured")}
	handler := InvoicePixCharge(svc, nil)

	req := tenantRequest(http.MethodPost, "/api/v1/invoices/"+uuid.NewString()+"/pix-charge", nil, uuid.New())
	req = withURLParam(req, "invoiceId", uuid.NewString())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", rec.Code)
	}
}

func TestInvoiceCancelSuccess(t *testing.T) {
	svc := &stubInvoiceService{invoice: &invoices.InvoiceDTO{ID: uuid.New(), Status: enums.InvoiceStatusCancelled}}
	handler := InvoiceCancel(svc, nil)

	req := tenantRequest(http.MethodPost, "/api/v1/invoices/"+uuid.NewString()+"/cancel", nil, uuid.New())
	req = withURLParam(req, "invoiceId", uuid.NewString())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}
