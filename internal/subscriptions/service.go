package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/cobrafacil/cobrafacil-backend/internal/invoices"
	"github.com/cobrafacil/cobrafacil-backend/pkg/db/models"
	"github.com/cobrafacil/cobrafacil-backend/pkg/enums"
	pkgerrors "github.com/cobrafacil/cobrafacil-backend/pkg/errors"
	"github.com/cobrafacil/cobrafacil-backend/pkg/logger"
	"github.com/cobrafacil/cobrafacil-backend/pkg/pagination"
)

type invoiceService interface {
	GenerateInvoice(ctx context.Context, input invoices.GenerateInvoiceInput) (*invoices.InvoiceDTO, error)
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
}

type invoiceStore interface {
	ExistsForSubscriptionSince(ctx context.Context, subscriptionID uuid.UUID, since time.Time) (bool, error)
}

// Service exposes subscription operations, including the monthly
// renewal batch.
type Service interface {
	CreateSubscription(ctx context.Context, input CreateSubscriptionInput) (*SubscriptionDTO, error)
	GetSubscription(ctx context.Context, tenantID, id uuid.UUID) (*SubscriptionDTO, error)
	ListSubscriptions(ctx context.Context, tenantID uuid.UUID, filter ListFilter, params pagination.Params) (*SubscriptionList, error)
	RenewSubscription(ctx context.Context, tenantID, id uuid.UUID, periods int) (*SubscriptionDTO, error)
	CancelSubscription(ctx context.Context, tenantID, id uuid.UUID, reason string) (*SubscriptionDTO, error)
	SuspendSubscription(ctx context.Context, tenantID, id uuid.UUID) (*SubscriptionDTO, error)
	ReactivateSubscription(ctx context.Context, tenantID, id uuid.UUID) (*SubscriptionDTO, error)
	RunBillingCycle(ctx context.Context, now time.Time) (*BillingCycleResult, error)
}

// ServiceParams carries the subscription service dependencies.
type ServiceParams struct {
	Repo         Repository
	Invoices     invoiceService
	InvoiceStore invoiceStore
	Logger       *logger.Logger
}

type service struct {
	repo         Repository
	invoices     invoiceService
	invoiceStore invoiceStore
	logg         *logger.Logger
}

// NewService builds the subscription service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("subscription repository required")
	}
	if params.Invoices == nil {
		return nil, fmt.Errorf("invoice service required")
	}
	if params.InvoiceStore == nil {
		return nil, fmt.Errorf("invoice store required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:         params.Repo,
		invoices:     params.Invoices,
		invoiceStore: params.InvoiceStore,
		logg:         params.Logger,
	}, nil
}

func (s *service) CreateSubscription(ctx context.Context, input CreateSubscriptionInput) (*SubscriptionDTO, error) {
	if input.PlanName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan name is required")
	}
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !input.Cycle.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid billing cycle")
	}
	if input.PayerName == "" || input.PayerTaxID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payer name and tax id are required")
	}

	startDate := input.StartDate
	if startDate.IsZero() {
		startDate = time.Now().UTC()
	}

	subscription := &models.Subscription{
		TenantID:   input.TenantID,
		PlanName:   input.PlanName,
		Amount:     input.Amount,
		Cycle:      input.Cycle,
		Status:     enums.SubscriptionStatusActive,
		StartDate:  startDate,
		AutoRenew:  input.AutoRenew,
		PayerName:  input.PayerName,
		PayerTaxID: input.PayerTaxID,
	}

	// Lifetime subscriptions carry no due date and never fall overdue.
	if !subscription.IsLifetime() {
		if input.DueDate != nil {
			subscription.DueDate = input.DueDate
		} else {
			due := startDate.AddDate(0, input.Cycle.Months(), 0)
			subscription.DueDate = &due
		}
	}

	if err := s.repo.Create(ctx, subscription); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create subscription")
	}

	ctx = s.logg.WithTenantID(ctx, input.TenantID.String())
	s.logg.Info(ctx, "subscription created")

	return FromModel(subscription), nil
}

func (s *service) GetSubscription(ctx context.Context, tenantID, id uuid.UUID) (*SubscriptionDTO, error) {
	subscription, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return FromModel(subscription), nil
}

func (s *service) ListSubscriptions(ctx context.Context, tenantID uuid.UUID, filter ListFilter, params pagination.Params) (*SubscriptionList, error) {
	rows, err := s.repo.List(ctx, tenantID, filter, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list subscriptions")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	list := &SubscriptionList{}
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}

	list.Items = make([]SubscriptionDTO, 0, len(rows))
	for i := range rows {
		list.Items = append(list.Items, *FromModel(&rows[i]))
	}
	return list, nil
}

func (s *service) RenewSubscription(ctx context.Context, tenantID, id uuid.UUID, periods int) (*SubscriptionDTO, error) {
	return s.transition(ctx, tenantID, id, "subscription renewed", func(sub *models.Subscription) error {
		return sub.Renew(periods)
	})
}

func (s *service) CancelSubscription(ctx context.Context, tenantID, id uuid.UUID, reason string) (*SubscriptionDTO, error) {
	return s.transition(ctx, tenantID, id, "subscription cancelled", func(sub *models.Subscription) error {
		return sub.Cancel(reason, time.Now())
	})
}

func (s *service) SuspendSubscription(ctx context.Context, tenantID, id uuid.UUID) (*SubscriptionDTO, error) {
	return s.transition(ctx, tenantID, id, "subscription suspended", func(sub *models.Subscription) error {
		return sub.Suspend()
	})
}

func (s *service) ReactivateSubscription(ctx context.Context, tenantID, id uuid.UUID) (*SubscriptionDTO, error) {
	return s.transition(ctx, tenantID, id, "subscription reactivated", func(sub *models.Subscription) error {
		return sub.Reactivate()
	})
}

// RunBillingCycle generates this month's invoices for every active
// monthly auto-renewing subscription that does not have one yet, then
// flips past-due invoices to overdue. Failures on individual
// subscriptions are collected; one bad row never stops the batch.
func (s *service) RunBillingCycle(ctx context.Context, now time.Time) (*BillingCycleResult, error) {
	now = now.UTC()
	windowStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	windowEnd := windowStart.AddDate(0, 1, 0)

	due, err := s.repo.DueForBilling(ctx, windowStart, windowEnd)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscriptions due for billing")
	}

	result := &BillingCycleResult{}
	var batchErr error

	for i := range due {
		subscription := &due[i]
		subCtx := s.logg.WithField(
			s.logg.WithTenantID(ctx, subscription.TenantID.String()),
			"subscription_id", subscription.ID.String(),
		)

		exists, err := s.invoiceStore.ExistsForSubscriptionSince(ctx, subscription.ID, windowStart)
		if err != nil {
			result.Errors++
			batchErr = multierr.Append(batchErr, fmt.Errorf("subscription %s: %w", subscription.ID, err))
			continue
		}
		if exists {
			continue
		}

		input := invoices.GenerateInvoiceInput{
			TenantID:       subscription.TenantID,
			SubscriptionID: subscription.ID,
			IssueDate:      now,
		}
		if subscription.DueDate != nil {
			input.DueDate = *subscription.DueDate
		}

		if _, err := s.invoices.GenerateInvoice(ctx, input); err != nil {
			result.Errors++
			batchErr = multierr.Append(batchErr, fmt.Errorf("subscription %s: %w", subscription.ID, err))
			s.logg.Error(subCtx, "invoice generation failed", err)
			continue
		}
		result.Generated++
	}

	overdue, err := s.invoices.MarkOverdue(ctx, now)
	if err != nil {
		batchErr = multierr.Append(batchErr, err)
	}
	result.OverdueMarked = overdue

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"generated":      result.Generated,
		"errors":         result.Errors,
		"overdue_marked": result.OverdueMarked,
	}), "billing cycle finished")

	return result, batchErr
}

func (s *service) load(ctx context.Context, tenantID, id uuid.UUID) (*models.Subscription, error) {
	subscription, err := s.repo.FindByTenantAndID(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	return subscription, nil
}

func (s *service) transition(ctx context.Context, tenantID, id uuid.UUID, logMsg string, fn func(*models.Subscription) error) (*SubscriptionDTO, error) {
	subscription, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := fn(subscription); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "invalid subscription transition")
	}
	if err := s.repo.Save(ctx, subscription); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save subscription")
	}

	s.logg.Info(s.logg.WithTenantID(ctx, tenantID.String()), logMsg)
	return FromModel(subscription), nil
}
