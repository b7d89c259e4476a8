package subscriptions

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cobrafacil/cobrafacil-backend/pkg/db/models"
	"github.com/cobrafacil/cobrafacil-backend/pkg/enums"
)

// SubscriptionDTO is the outward subscription representation.
type SubscriptionDTO struct {
	ID           uuid.UUID                `json:"id"`
	TenantID     uuid.UUID                `json:"tenant_id"`
	PlanName     string                   `json:"plan_name"`
	Amount       decimal.Decimal          `json:"amount"`
	Cycle        enums.BillingCycle       `json:"cycle"`
	Status       enums.SubscriptionStatus `json:"status"`
	StartDate    time.Time                `json:"start_date"`
	DueDate      *time.Time               `json:"due_date,omitempty"`
	AutoRenew    bool                     `json:"auto_renew"`
	PayerName    string                   `json:"payer_name"`
	PayerTaxID   string                   `json:"payer_tax_id"`
	CancelReason *string                  `json:"cancel_reason,omitempty"`
	CancelledAt  *time.Time               `json:"cancelled_at,omitempty"`
	CreatedAt    time.Time                `json:"created_at"`
}

// FromModel maps a stored subscription to its DTO.
func FromModel(subscription *models.Subscription) *SubscriptionDTO {
	if subscription == nil {
		return nil
	}
	return &SubscriptionDTO{
		ID:           subscription.ID,
		TenantID:     subscription.TenantID,
		PlanName:     subscription.PlanName,
		Amount:       subscription.Amount,
		Cycle:        subscription.Cycle,
		Status:       subscription.Status,
		StartDate:    subscription.StartDate,
		DueDate:      subscription.DueDate,
		AutoRenew:    subscription.AutoRenew,
		PayerName:    subscription.PayerName,
		PayerTaxID:   subscription.PayerTaxID,
		CancelReason: subscription.CancelReason,
		CancelledAt:  subscription.CancelledAt,
		CreatedAt:    subscription.CreatedAt,
	}
}

// ListFilter narrows subscription listings.
type ListFilter struct {
	Status *enums.SubscriptionStatus
	Cycle  *enums.BillingCycle
}

// SubscriptionList is one page of subscriptions plus the next cursor.
type SubscriptionList struct {
	Items      []SubscriptionDTO `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

// CreateSubscriptionInput describes a new subscription.
type CreateSubscriptionInput struct {
	TenantID   uuid.UUID
	PlanName   string
	Amount     decimal.Decimal
	Cycle      enums.BillingCycle
	StartDate  time.Time
	DueDate    *time.Time
	AutoRenew  bool
	PayerName  string
	PayerTaxID string
}

// BillingCycleResult summarizes one renewal batch run.
type BillingCycleResult struct {
	Generated     int   `json:"generated"`
	Errors        int   `json:"errors"`
	OverdueMarked int64 `json:"overdue_marked"`
}
