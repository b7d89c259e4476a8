package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cobrafacil/cobrafacil-backend/pkg/enums"
)

// Subscription is a tenant's recurring billing plan instance.
// DueDate is nil for lifetime subscriptions, which never fall overdue.
type Subscription struct {
	ID         uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID   uuid.UUID                `gorm:"column:tenant_id;type:uuid;not null;index"`
	PlanName   string                   `gorm:"column:plan_name;not null"`
	Amount     decimal.Decimal          `gorm:"column:amount;type:numeric(12,2);not null"`
	Cycle      enums.BillingCycle       `gorm:"column:cycle;not null;default:'monthly'"`
	Status     enums.SubscriptionStatus `gorm:"column:status;not null;default:'active'"`
	StartDate  time.Time                `gorm:"column:start_date;not null"`
	DueDate    *time.Time               `gorm:"column:due_date;index"`
	AutoRenew  bool                     `gorm:"column:auto_renew;not null;default:true"`

	// Payer identity used when registering PIX charges for this
	// subscription's invoices.
	PayerName  string `gorm:"column:payer_name;not null"`
	PayerTaxID string `gorm:"column:payer_tax_id;not null"`

	CancelReason *string    `gorm:"column:cancel_reason"`
	CancelledAt  *time.Time `gorm:"column:cancelled_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns the primary key in Go; the Postgres column default
// only covers inserts that omit the column, which the SQLite backend does not.
func (s *Subscription) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// IsLifetime reports whether the subscription has no recurring period.
func (s *Subscription) IsLifetime() bool {
	return s.Cycle == enums.BillingCycleLifetime
}

// Renew advances the due date by the given number of billing periods and
// restores a suspended or delinquent subscription to active. Lifetime
// subscriptions keep their unbounded due date.
func (s *Subscription) Renew(periods int) error {
	if s.Status == enums.SubscriptionStatusCancelled {
		return fmt.Errorf("subscription %s is cancelled", s.ID)
	}
	if periods < 1 {
		periods = 1
	}
	if !s.IsLifetime() && s.DueDate != nil {
		next := s.DueDate.AddDate(0, s.Cycle.Months()*periods, 0)
		s.DueDate = &next
	}
	if s.Status == enums.SubscriptionStatusDelinquent || s.Status == enums.SubscriptionStatusSuspended {
		s.Status = enums.SubscriptionStatusActive
	}
	return nil
}

// Cancel is terminal: it disables auto renewal and records the reason.
func (s *Subscription) Cancel(reason string, now time.Time) error {
	if s.Status == enums.SubscriptionStatusCancelled {
		return fmt.Errorf("subscription %s is already cancelled", s.ID)
	}
	s.Status = enums.SubscriptionStatusCancelled
	s.AutoRenew = false
	if reason != "" {
		s.CancelReason = &reason
	}
	cancelledAt := now.UTC()
	s.CancelledAt = &cancelledAt
	return nil
}

// Suspend pauses an active subscription.
func (s *Subscription) Suspend() error {
	if s.Status != enums.SubscriptionStatusActive {
		return fmt.Errorf("subscription %s is %s, only active subscriptions can be suspended", s.ID, s.Status)
	}
	s.Status = enums.SubscriptionStatusSuspended
	return nil
}

// MarkDelinquent flags an active subscription with unpaid invoices.
func (s *Subscription) MarkDelinquent() error {
	if s.Status != enums.SubscriptionStatusActive {
		return fmt.Errorf("subscription %s is %s, only active subscriptions can become delinquent", s.ID, s.Status)
	}
	s.Status = enums.SubscriptionStatusDelinquent
	return nil
}

// Reactivate restores a suspended or delinquent subscription.
// Cancellation is terminal and cannot be undone.
func (s *Subscription) Reactivate() error {
	switch s.Status {
	case enums.SubscriptionStatusCancelled:
		return fmt.Errorf("subscription %s is cancelled and cannot be reactivated", s.ID)
	case enums.SubscriptionStatusActive:
		return nil
	default:
		s.Status = enums.SubscriptionStatusActive
		return nil
	}
}
