package invoices

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cobrafacil/cobrafacil-backend/internal/efi"
	"github.com/cobrafacil/cobrafacil-backend/internal/integrations"
	"github.com/cobrafacil/cobrafacil-backend/pkg/config"
	"github.com/cobrafacil/cobrafacil-backend/pkg/db/models"
	"github.com/cobrafacil/cobrafacil-backend/pkg/enums"
	pkgerrors "github.com/cobrafacil/cobrafacil-backend/pkg/errors"
	"github.com/cobrafacil/cobrafacil-backend/pkg/logger"
	"github.com/cobrafacil/cobrafacil-backend/pkg/pagination"
)

type stubInvoiceRepo struct {
	invoices map[uuid.UUID]*models.Invoice
	nextSeq  int64
}

func newStubInvoiceRepo() *stubInvoiceRepo {
	return &stubInvoiceRepo{invoices: make(map[uuid.UUID]*models.Invoice)}
}

func (r *stubInvoiceRepo) put(invoice *models.Invoice) *models.Invoice {
	if invoice.ID == uuid.Nil {
		invoice.ID = uuid.New()
	}
	r.invoices[invoice.ID] = invoice
	return invoice
}

func (r *stubInvoiceRepo) Create(_ context.Context, invoice *models.Invoice) error {
	r.put(invoice)
	return nil
}

func (r *stubInvoiceRepo) Save(_ context.Context, invoice *models.Invoice) error {
	r.put(invoice)
	return nil
}

func (r *stubInvoiceRepo) FindByID(_ context.Context, tenantID, id uuid.UUID) (*models.Invoice, error) {
	invoice, ok := r.invoices[id]
	if !ok || invoice.TenantID != tenantID {
		return nil, gorm.ErrRecordNotFound
	}
	cpy := *invoice
	return &cpy, nil
}

func (r *stubInvoiceRepo) FindByTxID(_ context.Context, txid string) (*models.Invoice, error) {
	return r.findByTxID(txid)
}

func (r *stubInvoiceRepo) findByTxID(txid string) (*models.Invoice, error) {
	for _, invoice := range r.invoices {
		if invoice.PixTxID != nil && *invoice.PixTxID == txid {
			cpy := *invoice
			return &cpy, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubInvoiceRepo) List(_ context.Context, tenantID uuid.UUID, filter ListFilter, _ pagination.Params) ([]models.Invoice, error) {
	var out []models.Invoice
	for _, invoice := range r.invoices {
		if invoice.TenantID != tenantID {
			continue
		}
		if filter.Status != nil && invoice.Status != *filter.Status {
			continue
		}
		out = append(out, *invoice)
	}
	return out, nil
}

func (r *stubInvoiceRepo) MarkOverdue(_ context.Context, before time.Time) (int64, error) {
	var count int64
	for _, invoice := range r.invoices {
		if invoice.Status == enums.InvoiceStatusPending && invoice.DueDate.Before(before) {
			invoice.Status = enums.InvoiceStatusOverdue
			count++
		}
	}
	return count, nil
}

func (r *stubInvoiceRepo) ExistsForSubscriptionSince(_ context.Context, subscriptionID uuid.UUID, since time.Time) (bool, error) {
	for _, invoice := range r.invoices {
		if invoice.SubscriptionID == subscriptionID && !invoice.IssueDate.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (r *stubInvoiceRepo) CreateWithTx(_ *gorm.DB, invoice *models.Invoice) error {
	r.put(invoice)
	return nil
}

func (r *stubInvoiceRepo) SaveWithTx(_ *gorm.DB, invoice *models.Invoice) error {
	r.put(invoice)
	return nil
}

func (r *stubInvoiceRepo) FindByIDWithTx(_ *gorm.DB, tenantID, id uuid.UUID) (*models.Invoice, error) {
	return r.FindByID(context.Background(), tenantID, id)
}

func (r *stubInvoiceRepo) FindByTxIDWithTx(_ *gorm.DB, txid string) (*models.Invoice, error) {
	return r.findByTxID(txid)
}

func (r *stubInvoiceRepo) NextNumberWithTx(_ *gorm.DB, _ uuid.UUID, yearMonth string) (string, error) {
	r.nextSeq++
	return fmt.Sprintf("%s%04d", yearMonth, r.nextSeq), nil
}

type stubSubscriptionStore struct {
	subscriptions map[uuid.UUID]*models.Subscription
}

func newStubSubscriptionStore() *stubSubscriptionStore {
	return &stubSubscriptionStore{subscriptions: make(map[uuid.UUID]*models.Subscription)}
}

func (s *stubSubscriptionStore) put(sub *models.Subscription) *models.Subscription {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	s.subscriptions[sub.ID] = sub
	return sub
}

func (s *stubSubscriptionStore) FindByID(_ context.Context, id uuid.UUID) (*models.Subscription, error) {
	sub, ok := s.subscriptions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cpy := *sub
	return &cpy, nil
}

func (s *stubSubscriptionStore) FindByIDWithTx(_ *gorm.DB, id uuid.UUID) (*models.Subscription, error) {
	return s.FindByID(context.Background(), id)
}

func (s *stubSubscriptionStore) SaveWithTx(_ *gorm.DB, sub *models.Subscription) error {
	s.subscriptions[sub.ID] = sub
	return nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type stubResolver struct {
	cfg *integrations.GatewayConfig
	err error
}

func (s *stubResolver) ResolvePixConfig(context.Context, uuid.UUID) (*integrations.GatewayConfig, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.cfg, nil
}

type stubChargeCreator struct {
	charge *efi.Charge
	err    error
	calls  int
	last   efi.ChargeRequest
}

func (s *stubChargeCreator) CreateCharge(_ context.Context, _ *integrations.GatewayConfig, req efi.ChargeRequest) (*efi.Charge, error) {
	s.calls++
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	charge := *s.charge
	charge.TxID = req.TxID
	return &charge, nil
}

type fixture struct {
	repo     *stubInvoiceRepo
	subs     *stubSubscriptionStore
	resolver *stubResolver
	charges  *stubChargeCreator
	svc      Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repo: newStubInvoiceRepo(),
		subs: newStubSubscriptionStore(),
		resolver: &stubResolver{cfg: &integrations.GatewayConfig{
			PixKey:  "pix-key",
			BaseURL: "https://pix-h.api.efipay.com.br",
		}},
		charges: &stubChargeCreator{charge: &efi.Charge{
			LocationID: 42,
			Status:     "ATIVA",
			CopyPaste:  "00020126...",
		}},
	}

	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
	svc, err := NewService(ServiceParams{
		Repo:          f.repo,
		Subscriptions: f.subs,
		Tx:            stubTxRunner{},
		Resolver:      f.resolver,
		Charges:       f.charges,
		Logger:        logg,
		Billing:       config.BillingConfig{ChargeExpirationSeconds: 3600},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.svc = svc
	return f
}

func activeSubscription(tenantID uuid.UUID, due time.Time) *models.Subscription {
	return &models.Subscription{
		TenantID:   tenantID,
		PlanName:   "Plano Pro",
		Amount:     decimal.RequireFromString("150.00"),
		Cycle:      enums.BillingCycleMonthly,
		Status:     enums.SubscriptionStatusActive,
		StartDate:  due.AddDate(0, -3, 0),
		DueDate:    &due,
		AutoRenew:  true,
		PayerName:  "Maria Silva",
		PayerTaxID: "12345678901",
	}
}

func TestGenerateInvoiceNumbersByMonth(t *testing.T) {
	f := newFixture(t)
	tenantID := uuid.New()
	due := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	sub := f.subs.put(activeSubscription(tenantID, due))

	issue := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	dto, err := f.svc.GenerateInvoice(context.Background(), GenerateInvoiceInput{
		TenantID:       tenantID,
		SubscriptionID: sub.ID,
		IssueDate:      issue,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if dto.Number != "2025030001" {
		t.Errorf("number = %q, want 2025030001", dto.Number)
	}
	if dto.Status != enums.InvoiceStatusPending {
		t.Errorf("status = %s", dto.Status)
	}
	if !dto.Amount.Equal(sub.Amount) {
		t.Errorf("amount = %s, want %s", dto.Amount, sub.Amount)
	}
	if !dto.DueDate.Equal(due) {
		t.Errorf("due date = %v, want subscription due date %v", dto.DueDate, due)
	}

	second, err := f.svc.GenerateInvoice(context.Background(), GenerateInvoiceInput{
		TenantID:       tenantID,
		SubscriptionID: sub.ID,
		IssueDate:      issue.AddDate(0, 0, 1),
	})
	if err != nil {
		t.Fatalf("generate second: %v", err)
	}
	if second.Number != "2025030002" {
		t.Errorf("second number = %q, want 2025030002", second.Number)
	}
}

func TestGenerateInvoiceUnknownSubscription(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GenerateInvoice(context.Background(), GenerateInvoiceInput{
		TenantID:       uuid.New(),
		SubscriptionID: uuid.New(),
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected CodeNotFound, got %v", err)
	}
}

func TestGenerateInvoiceInactiveSubscription(t *testing.T) {
	statuses := []enums.SubscriptionStatus{
		enums.SubscriptionStatusCancelled,
		enums.SubscriptionStatusSuspended,
		enums.SubscriptionStatusDelinquent,
	}
	for _, status := range statuses {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			tenantID := uuid.New()
			sub := activeSubscription(tenantID, time.Now())
			sub.Status = status
			f.subs.put(sub)

			_, err := f.svc.GenerateInvoice(context.Background(), GenerateInvoiceInput{
				TenantID:       tenantID,
				SubscriptionID: sub.ID,
			})
			if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
				t.Fatalf("expected CodeStateConflict, got %v", err)
			}
		})
	}
}

func TestRecordManualPaymentAdvancesSubscription(t *testing.T) {
	f := newFixture(t)
	tenantID := uuid.New()
	due := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	sub := f.subs.put(activeSubscription(tenantID, due))
	sub.Status = enums.SubscriptionStatusDelinquent

	invoice := f.repo.put(&models.Invoice{
		TenantID:       tenantID,
		SubscriptionID: sub.ID,
		Number:         "2025030001",
		Amount:         sub.Amount,
		IssueDate:      due.AddDate(0, 0, -9),
		DueDate:        due,
		Status:         enums.InvoiceStatusOverdue,
	})

	paidAt := time.Date(2025, 3, 12, 15, 0, 0, 0, time.UTC)
	dto, err := f.svc.RecordManualPayment(context.Background(), tenantID, invoice.ID, ManualPaymentInput{
		Method: enums.PaymentMethodCash,
		PaidAt: paidAt,
	})
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	if dto.Status != enums.InvoiceStatusPaid {
		t.Errorf("status = %s", dto.Status)
	}
	if dto.PaidAt == nil || !dto.PaidAt.Equal(paidAt) {
		t.Errorf("paid at = %v", dto.PaidAt)
	}
	if dto.PaidAmount == nil || !dto.PaidAmount.Equal(sub.Amount) {
		t.Errorf("paid amount = %v", dto.PaidAmount)
	}

	stored := f.subs.subscriptions[sub.ID]
	wantDue := due.AddDate(0, 1, 0)
	if stored.DueDate == nil || !stored.DueDate.Equal(wantDue) {
		t.Errorf("subscription due = %v, want %v", stored.DueDate, wantDue)
	}
	if stored.Status != enums.SubscriptionStatusActive {
		t.Errorf("subscription status = %s, want active after payment", stored.Status)
	}
}

func TestRecordManualPaymentTwiceIsRejected(t *testing.T) {
	f := newFixture(t)
	tenantID := uuid.New()
	sub := f.subs.put(activeSubscription(tenantID, time.Now()))

	paidAt := time.Now().UTC()
	method := enums.PaymentMethodCash
	invoice := f.repo.put(&models.Invoice{
		TenantID:       tenantID,
		SubscriptionID: sub.ID,
		Number:         "2025030001",
		Amount:         sub.Amount,
		Status:         enums.InvoiceStatusPaid,
		PaidAt:         &paidAt,
		PaymentMethod:  &method,
	})

	_, err := f.svc.RecordManualPayment(context.Background(), tenantID, invoice.ID, ManualPaymentInput{
		Method: enums.PaymentMethodCash,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeAlreadyPaid) {
		t.Fatalf("expected CodeAlreadyPaid, got %v", err)
	}
}

func TestRecordManualPaymentCancelledInvoice(t *testing.T) {
	f := newFixture(t)
	tenantID := uuid.New()
	sub := f.subs.put(activeSubscription(tenantID, time.Now()))
	invoice := f.repo.put(&models.Invoice{
		TenantID:       tenantID,
		SubscriptionID: sub.ID,
		Number:         "2025030001",
		Amount:         sub.Amount,
		Status:         enums.InvoiceStatusCancelled,
	})

	_, err := f.svc.RecordManualPayment(context.Background(), tenantID, invoice.ID, ManualPaymentInput{
		Method: enums.PaymentMethodTransfer,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInvoiceCancelled) {
		t.Fatalf("expected CodeInvoiceCancelled, got %v", err)
	}
}

func TestRecordGatewayPaymentSettlesInvoice(t *testing.T) {
	f := newFixture(t)
	tenantID := uuid.New()
	due := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	sub := f.subs.put(activeSubscription(tenantID, due))

	txid := efi.NewTxID()
	f.repo.put(&models.Invoice{
		TenantID:       tenantID,
		SubscriptionID: sub.ID,
		Number:         "2025030001",
		Amount:         sub.Amount,
		DueDate:        due,
		Status:         enums.InvoiceStatusPending,
		PixTxID:        &txid,
	})

	receipt := efi.Receipt{
		EndToEndID: "E0001",
		TxID:       txid,
		Amount:     sub.Amount,
		PaidAt:     time.Date(2025, 3, 9, 10, 0, 0, 0, time.UTC),
	}
	if err := f.svc.RecordGatewayPayment(context.Background(), receipt); err != nil {
		t.Fatalf("record gateway payment: %v", err)
	}

	stored, err := f.repo.findByTxID(txid)
	if err != nil {
		t.Fatalf("find by txid: %v", err)
	}
	if stored.Status != enums.InvoiceStatusPaid {
		t.Errorf("status = %s", stored.Status)
	}
	if stored.PaymentMethod == nil || *stored.PaymentMethod != enums.PaymentMethodPix {
		t.Errorf("payment method = %v", stored.PaymentMethod)
	}
	if stored.EndToEndID == nil || *stored.EndToEndID != "E0001" {
		t.Errorf("end to end id = %v", stored.EndToEndID)
	}

	// Gateway retries the notification: the second delivery is a
	// silent success, not an error.
	if err := f.svc.RecordGatewayPayment(context.Background(), receipt); err != nil {
		t.Fatalf("duplicate gateway payment: %v", err)
	}

	wantDue := due.AddDate(0, 1, 0)
	storedSub := f.subs.subscriptions[sub.ID]
	if storedSub.DueDate == nil || !storedSub.DueDate.Equal(wantDue) {
		t.Errorf("subscription renewed twice or not at all: due = %v, want %v", storedSub.DueDate, wantDue)
	}
}

func TestRecordGatewayPaymentUnknownTxID(t *testing.T) {
	f := newFixture(t)

	err := f.svc.RecordGatewayPayment(context.Background(), efi.Receipt{TxID: efi.NewTxID()})
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected CodeNotFound, got %v", err)
	}
}

func TestCreatePixChargeAttachesOnSuccess(t *testing.T) {
	f := newFixture(t)
	tenantID := uuid.New()
	sub := f.subs.put(activeSubscription(tenantID, time.Now().UTC()))
	invoice := f.repo.put(&models.Invoice{
		TenantID:       tenantID,
		SubscriptionID: sub.ID,
		Number:         "2025030001",
		Description:    "Plano Pro — fatura 2025030001",
		Amount:         sub.Amount,
		Status:         enums.InvoiceStatusPending,
	})

	dto, err := f.svc.CreatePixCharge(context.Background(), tenantID, invoice.ID)
	if err != nil {
		t.Fatalf("create pix charge: %v", err)
	}
	if dto.PixTxID == nil || *dto.PixTxID == "" {
		t.Fatal("txid not attached")
	}
	if dto.PixCopyPaste == nil || *dto.PixCopyPaste != "00020126..." {
		t.Errorf("copy paste = %v", dto.PixCopyPaste)
	}
	if f.charges.last.PayerName != "Maria Silva" || f.charges.last.PayerTaxID != "12345678901" {
		t.Errorf("payer not taken from subscription: %+v", f.charges.last)
	}
	if !f.charges.last.Amount.Equal(sub.Amount) {
		t.Errorf("charge amount = %s", f.charges.last.Amount)
	}

	// A second call reuses the stored charge instead of registering a
	// new one.
	again, err := f.svc.CreatePixCharge(context.Background(), tenantID, invoice.ID)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if *again.PixTxID != *dto.PixTxID {
		t.Errorf("txid changed across calls")
	}
	if f.charges.calls != 1 {
		t.Errorf("gateway called %d times, want 1", f.charges.calls)
	}
}

func TestCreatePixChargeGatewayFailureLeavesInvoiceUntouched(t *testing.T) {
	f := newFixture(t)
	f.charges.err = pkgerrors.New(pkgerrors.CodeGateway, "gateway returned status 500")

	tenantID := uuid.New()
	sub := f.subs.put(activeSubscription(tenantID, time.Now().UTC()))
	invoice := f.repo.put(&models.Invoice{
		TenantID:       tenantID,
		SubscriptionID: sub.ID,
		Number:         "2025030001",
		Amount:         sub.Amount,
		Status:         enums.InvoiceStatusPending,
	})

	_, err := f.svc.CreatePixCharge(context.Background(), tenantID, invoice.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeGateway) {
		t.Fatalf("expected CodeGateway, got %v", err)
	}
	if f.repo.invoices[invoice.ID].PixTxID != nil {
		t.Error("failed charge must not be attached")
	}
}

func TestCreatePixChargeOnPaidInvoice(t *testing.T) {
	f := newFixture(t)
	tenantID := uuid.New()
	sub := f.subs.put(activeSubscription(tenantID, time.Now().UTC()))
	invoice := f.repo.put(&models.Invoice{
		TenantID:       tenantID,
		SubscriptionID: sub.ID,
		Number:         "2025030001",
		Amount:         sub.Amount,
		Status:         enums.InvoiceStatusPaid,
	})

	_, err := f.svc.CreatePixCharge(context.Background(), tenantID, invoice.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeAlreadyPaid) {
		t.Fatalf("expected CodeAlreadyPaid, got %v", err)
	}
}

func TestCancelInvoiceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	tenantID := uuid.New()
	sub := f.subs.put(activeSubscription(tenantID, time.Now().UTC()))
	invoice := f.repo.put(&models.Invoice{
		TenantID:       tenantID,
		SubscriptionID: sub.ID,
		Number:         "2025030001",
		Amount:         sub.Amount,
		Status:         enums.InvoiceStatusPending,
	})

	dto, err := f.svc.CancelInvoice(context.Background(), tenantID, invoice.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if dto.Status != enums.InvoiceStatusCancelled {
		t.Errorf("status = %s", dto.Status)
	}

	if _, err := f.svc.CancelInvoice(context.Background(), tenantID, invoice.ID); err != nil {
		t.Fatalf("second cancel: %v", err)
	}
}

func TestCancelPaidInvoiceRejected(t *testing.T) {
	f := newFixture(t)
	tenantID := uuid.New()
	sub := f.subs.put(activeSubscription(tenantID, time.Now().UTC()))
	invoice := f.repo.put(&models.Invoice{
		TenantID:       tenantID,
		SubscriptionID: sub.ID,
		Number:         "2025030001",
		Amount:         sub.Amount,
		Status:         enums.InvoiceStatusPaid,
	})

	_, err := f.svc.CancelInvoice(context.Background(), tenantID, invoice.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeAlreadyPaid) {
		t.Fatalf("expected CodeAlreadyPaid, got %v", err)
	}
}

func TestMarkOverdueUsesUTCDayBoundary(t *testing.T) {
	f := newFixture(t)
	tenantID := uuid.New()
	sub := f.subs.put(activeSubscription(tenantID, time.Now().UTC()))

	now := time.Date(2025, 3, 15, 3, 0, 0, 0, time.UTC)
	overdue := f.repo.put(&models.Invoice{
		TenantID:       tenantID,
		SubscriptionID: sub.ID,
		Number:         "2025030001",
		Amount:         sub.Amount,
		DueDate:        time.Date(2025, 3, 14, 23, 0, 0, 0, time.UTC),
		Status:         enums.InvoiceStatusPending,
	})
	dueToday := f.repo.put(&models.Invoice{
		TenantID:       tenantID,
		SubscriptionID: sub.ID,
		Number:         "2025030002",
		Amount:         sub.Amount,
		DueDate:        time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC),
		Status:         enums.InvoiceStatusPending,
	})

	count, err := f.svc.MarkOverdue(context.Background(), now)
	if err != nil {
		t.Fatalf("mark overdue: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
	if f.repo.invoices[overdue.ID].Status != enums.InvoiceStatusOverdue {
		t.Error("past-due invoice not marked")
	}
	if f.repo.invoices[dueToday.ID].Status != enums.InvoiceStatusPending {
		t.Error("invoice due today must stay pending")
	}
}
