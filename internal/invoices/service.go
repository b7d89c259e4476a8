package invoices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cobrafacil/cobrafacil-backend/internal/efi"
	"github.com/cobrafacil/cobrafacil-backend/pkg/config"
	"github.com/cobrafacil/cobrafacil-backend/pkg/db/models"
	"github.com/cobrafacil/cobrafacil-backend/pkg/enums"
	pkgerrors "github.com/cobrafacil/cobrafacil-backend/pkg/errors"
	"github.com/cobrafacil/cobrafacil-backend/pkg/logger"
	"github.com/cobrafacil/cobrafacil-backend/pkg/pagination"
)

// yearMonthLayout is the bucket key for invoice numbering.
const yearMonthLayout = "200601"

// Service exposes invoice lifecycle operations.
type Service interface {
	GenerateInvoice(ctx context.Context, input GenerateInvoiceInput) (*InvoiceDTO, error)
	CreatePixCharge(ctx context.Context, tenantID, invoiceID uuid.UUID) (*InvoiceDTO, error)
	RecordManualPayment(ctx context.Context, tenantID, invoiceID uuid.UUID, input ManualPaymentInput) (*InvoiceDTO, error)
	RecordGatewayPayment(ctx context.Context, receipt efi.Receipt) error
	CancelInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*InvoiceDTO, error)
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
	GetInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*InvoiceDTO, error)
	ListInvoices(ctx context.Context, tenantID uuid.UUID, filter ListFilter, params pagination.Params) (*InvoiceList, error)
}

// ServiceParams carries the invoice service dependencies.
type ServiceParams struct {
	Repo          Repository
	Subscriptions subscriptionStore
	Tx            txRunner
	Resolver      configResolver
	Charges       chargeCreator
	Logger        *logger.Logger
	Billing       config.BillingConfig
}

type service struct {
	repo          Repository
	subscriptions subscriptionStore
	tx            txRunner
	resolver      configResolver
	charges       chargeCreator
	logg          *logger.Logger
	billing       config.BillingConfig
}

// NewService builds the invoice service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("invoice repository required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscription store required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Resolver == nil {
		return nil, fmt.Errorf("gateway config resolver required")
	}
	if params.Charges == nil {
		return nil, fmt.Errorf("charge creator required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:          params.Repo,
		subscriptions: params.Subscriptions,
		tx:            params.Tx,
		resolver:      params.Resolver,
		charges:       params.Charges,
		logg:          params.Logger,
		billing:       params.Billing,
	}, nil
}

// GenerateInvoiceInput describes one invoice to create.
type GenerateInvoiceInput struct {
	TenantID       uuid.UUID
	SubscriptionID uuid.UUID
	Description    string
	IssueDate      time.Time
	DueDate        time.Time
}

// ManualPaymentInput records an out-of-band settlement.
type ManualPaymentInput struct {
	Method       enums.PaymentMethod
	Amount       *decimal.Decimal
	PaidAt       time.Time
	PaidByUserID *uuid.UUID
}

// GenerateInvoice creates a pending invoice for an active subscription.
// The number is allocated from the tenant's monthly sequence inside the
// same transaction that inserts the invoice.
func (s *service) GenerateInvoice(ctx context.Context, input GenerateInvoiceInput) (*InvoiceDTO, error) {
	issueDate := input.IssueDate
	if issueDate.IsZero() {
		issueDate = time.Now().UTC()
	}

	var invoice *models.Invoice
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		subscription, err := s.subscriptions.FindByIDWithTx(tx, input.SubscriptionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
		}
		if subscription.TenantID != input.TenantID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		if subscription.Status != enums.SubscriptionStatusActive {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("subscription is %s, invoices can only be generated for active subscriptions", subscription.Status))
		}

		dueDate := input.DueDate
		if dueDate.IsZero() {
			if subscription.DueDate != nil {
				dueDate = *subscription.DueDate
			} else {
				dueDate = issueDate
			}
		}

		number, err := s.repo.NextNumberWithTx(tx, input.TenantID, issueDate.UTC().Format(yearMonthLayout))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate invoice number")
		}

		description := input.Description
		if description == "" {
			description = fmt.Sprintf("%s — fatura %s", subscription.PlanName, number)
		}

		invoice = &models.Invoice{
			TenantID:       input.TenantID,
			SubscriptionID: subscription.ID,
			Number:         number,
			Description:    description,
			Amount:         subscription.Amount,
			IssueDate:      issueDate,
			DueDate:        dueDate,
			Status:         enums.InvoiceStatusPending,
		}
		if err := s.repo.CreateWithTx(tx, invoice); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create invoice")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithInvoiceNumber(s.logg.WithTenantID(ctx, input.TenantID.String()), invoice.Number)
	s.logg.Info(ctx, "invoice generated")

	return FromModel(invoice), nil
}

// CreatePixCharge registers a PIX charge with the tenant's gateway and
// attaches it to the invoice. The local record only changes after the
// gateway accepts the charge; a failed call leaves the invoice untouched.
// Calling it again for an invoice that already carries a charge returns
// the stored charge data.
func (s *service) CreatePixCharge(ctx context.Context, tenantID, invoiceID uuid.UUID) (*InvoiceDTO, error) {
	invoice, err := s.loadInvoice(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}

	switch invoice.Status {
	case enums.InvoiceStatusPaid:
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyPaid, "invoice is already paid")
	case enums.InvoiceStatusCancelled:
		return nil, pkgerrors.New(pkgerrors.CodeInvoiceCancelled, "invoice is cancelled")
	}
	if invoice.HasPixCharge() {
		return FromModel(invoice), nil
	}

	gw, err := s.resolver.ResolvePixConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	subscription, err := s.subscriptions.FindByID(ctx, invoice.SubscriptionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}

	expiration := s.billing.ChargeExpirationSeconds
	if expiration <= 0 {
		expiration = 3600
	}

	txid := efi.NewTxID()
	charge, err := s.charges.CreateCharge(ctx, gw, efi.ChargeRequest{
		TxID:              txid,
		Amount:            invoice.Amount,
		PixKey:            gw.PixKey,
		ExpirationSeconds: expiration,
		PayerName:         subscription.PayerName,
		PayerTaxID:        subscription.PayerTaxID,
		Description:       invoice.Description,
	})
	if err != nil {
		return nil, err
	}

	invoice.PixTxID = &charge.TxID
	if charge.LocationID != 0 {
		invoice.PixLocationID = &charge.LocationID
	}
	if charge.CopyPaste != "" {
		invoice.PixCopyPaste = &charge.CopyPaste
	}
	if charge.QRCodeImage != "" {
		invoice.PixQRCode = &charge.QRCodeImage
	}
	if !charge.ExpiresAt.IsZero() {
		invoice.PixExpiresAt = &charge.ExpiresAt
	}

	if err := s.repo.Save(ctx, invoice); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach pix charge")
	}

	ctx = s.logg.WithTxID(s.logg.WithInvoiceNumber(ctx, invoice.Number), charge.TxID)
	s.logg.Info(ctx, "pix charge attached to invoice")

	return FromModel(invoice), nil
}

// RecordManualPayment settles an invoice out of band. Paying an invoice
// twice is an operator mistake and is rejected with CodeAlreadyPaid.
func (s *service) RecordManualPayment(ctx context.Context, tenantID, invoiceID uuid.UUID, input ManualPaymentInput) (*InvoiceDTO, error) {
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}

	var invoice *models.Invoice
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		invoice, err = s.repo.FindByIDWithTx(tx, tenantID, invoiceID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
		}

		switch invoice.Status {
		case enums.InvoiceStatusPaid:
			return pkgerrors.New(pkgerrors.CodeAlreadyPaid, "invoice is already paid")
		case enums.InvoiceStatusCancelled:
			return pkgerrors.New(pkgerrors.CodeInvoiceCancelled, "invoice is cancelled")
		}

		paidAt := input.PaidAt
		if paidAt.IsZero() {
			paidAt = time.Now().UTC()
		}
		amount := invoice.Amount
		if input.Amount != nil {
			amount = *input.Amount
		}

		invoice.Status = enums.InvoiceStatusPaid
		invoice.PaidAt = &paidAt
		invoice.PaidAmount = &amount
		invoice.PaymentMethod = &input.Method
		invoice.PaidByUserID = input.PaidByUserID

		if err := s.repo.SaveWithTx(tx, invoice); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save invoice")
		}
		return s.renewSubscription(ctx, tx, invoice)
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithInvoiceNumber(s.logg.WithTenantID(ctx, tenantID.String()), invoice.Number)
	s.logg.Info(ctx, "manual payment recorded")

	return FromModel(invoice), nil
}

// RecordGatewayPayment settles the invoice matching a PIX receipt's
// txid. Gateway notifications are retried and may overlap, so a receipt
// for an invoice that is already paid succeeds silently.
func (s *service) RecordGatewayPayment(ctx context.Context, receipt efi.Receipt) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		invoice, err := s.repo.FindByTxIDWithTx(tx, receipt.TxID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "no invoice for txid")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice by txid")
		}

		logCtx := s.logg.WithTxID(s.logg.WithInvoiceNumber(ctx, invoice.Number), receipt.TxID)

		switch invoice.Status {
		case enums.InvoiceStatusPaid:
			s.logg.Info(logCtx, "gateway payment already recorded")
			return nil
		case enums.InvoiceStatusCancelled:
			s.logg.Warn(logCtx, "gateway payment received for cancelled invoice")
			return nil
		}

		paidAt := receipt.PaidAt
		if paidAt.IsZero() {
			paidAt = time.Now().UTC()
		}
		method := enums.PaymentMethodPix
		amount := receipt.Amount

		invoice.Status = enums.InvoiceStatusPaid
		invoice.PaidAt = &paidAt
		invoice.PaidAmount = &amount
		invoice.PaymentMethod = &method
		if receipt.EndToEndID != "" {
			endToEnd := receipt.EndToEndID
			invoice.EndToEndID = &endToEnd
		}

		if err := s.repo.SaveWithTx(tx, invoice); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save invoice")
		}
		if err := s.renewSubscription(ctx, tx, invoice); err != nil {
			return err
		}

		s.logg.Info(logCtx, "gateway payment recorded")
		return nil
	})
}

// CancelInvoice voids a pending or overdue invoice. Cancelling twice is
// a no-op; a paid invoice cannot be voided.
func (s *service) CancelInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*InvoiceDTO, error) {
	invoice, err := s.loadInvoice(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}

	switch invoice.Status {
	case enums.InvoiceStatusPaid:
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyPaid, "invoice is already paid")
	case enums.InvoiceStatusCancelled:
		return FromModel(invoice), nil
	}

	invoice.Status = enums.InvoiceStatusCancelled
	if err := s.repo.Save(ctx, invoice); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel invoice")
	}

	ctx = s.logg.WithInvoiceNumber(s.logg.WithTenantID(ctx, tenantID.String()), invoice.Number)
	s.logg.Info(ctx, "invoice cancelled")

	return FromModel(invoice), nil
}

// MarkOverdue flips pending invoices whose due date fell strictly before
// today's UTC date.
func (s *service) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	day := now.UTC().Truncate(24 * time.Hour)
	count, err := s.repo.MarkOverdue(ctx, day)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark invoices overdue")
	}
	if count > 0 {
		s.logg.Info(s.logg.WithField(ctx, "count", count), "invoices marked overdue")
	}
	return count, nil
}

func (s *service) GetInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*InvoiceDTO, error) {
	invoice, err := s.loadInvoice(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	return FromModel(invoice), nil
}

func (s *service) ListInvoices(ctx context.Context, tenantID uuid.UUID, filter ListFilter, params pagination.Params) (*InvoiceList, error) {
	rows, err := s.repo.List(ctx, tenantID, filter, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list invoices")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	list := &InvoiceList{}
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}

	list.Items = make([]InvoiceDTO, 0, len(rows))
	for i := range rows {
		list.Items = append(list.Items, *FromModel(&rows[i]))
	}
	return list, nil
}

func (s *service) loadInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*models.Invoice, error) {
	invoice, err := s.repo.FindByID(ctx, tenantID, invoiceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
	}
	return invoice, nil
}

// renewSubscription advances the paying subscription's due date inside
// the payment transaction. A cancelled subscription keeps the payment
// but is not revived.
func (s *service) renewSubscription(ctx context.Context, tx *gorm.DB, invoice *models.Invoice) error {
	subscription, err := s.subscriptions.FindByIDWithTx(tx, invoice.SubscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Warn(ctx, "paid invoice references missing subscription")
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}

	if err := subscription.Renew(1); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "subscription_id", subscription.ID.String()), err.Error())
		return nil
	}
	if err := s.subscriptions.SaveWithTx(tx, subscription); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save subscription")
	}
	return nil
}
