package subscriptions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cobrafacil/cobrafacil-backend/pkg/db/models"
	"github.com/cobrafacil/cobrafacil-backend/pkg/enums"
	"github.com/cobrafacil/cobrafacil-backend/pkg/pagination"
)

// Repository handles subscription persistence.
type Repository interface {
	Create(ctx context.Context, subscription *models.Subscription) error
	Save(ctx context.Context, subscription *models.Subscription) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	FindByTenantAndID(ctx context.Context, tenantID, id uuid.UUID) (*models.Subscription, error)
	List(ctx context.Context, tenantID uuid.UUID, filter ListFilter, params pagination.Params) ([]models.Subscription, error)
	DueForBilling(ctx context.Context, windowStart, windowEnd time.Time) ([]models.Subscription, error)

	FindByIDWithTx(tx *gorm.DB, id uuid.UUID) (*models.Subscription, error)
	SaveWithTx(tx *gorm.DB, subscription *models.Subscription) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a subscription repository bound to the provided DB.
func NewRepository(gdb *gorm.DB) Repository {
	return &repository{db: gdb}
}

func (r *repository) Create(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Create(subscription).Error
}

func (r *repository) Save(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Save(subscription).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var subscription models.Subscription
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&subscription).Error; err != nil {
		return nil, err
	}
	return &subscription, nil
}

func (r *repository) FindByTenantAndID(ctx context.Context, tenantID, id uuid.UUID) (*models.Subscription, error) {
	var subscription models.Subscription
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&subscription).Error
	if err != nil {
		return nil, err
	}
	return &subscription, nil
}

func (r *repository) List(ctx context.Context, tenantID uuid.UUID, filter ListFilter, params pagination.Params) ([]models.Subscription, error) {
	query := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Cycle != nil {
		query = query.Where("cycle = ?", *filter.Cycle)
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where(
			"created_at < ? OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var subscriptions []models.Subscription
	err = query.
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}

// DueForBilling returns the active monthly auto-renewing subscriptions
// whose due date falls inside [windowStart, windowEnd).
func (r *repository) DueForBilling(ctx context.Context, windowStart, windowEnd time.Time) ([]models.Subscription, error) {
	var subscriptions []models.Subscription
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.SubscriptionStatusActive).
		Where("cycle = ?", enums.BillingCycleMonthly).
		Where("auto_renew = ?", true).
		Where("due_date >= ? AND due_date < ?", windowStart, windowEnd).
		Order("due_date ASC").
		Find(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (r *repository) FindByIDWithTx(tx *gorm.DB, id uuid.UUID) (*models.Subscription, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	var subscription models.Subscription
	if err := tx.Where("id = ?", id).First(&subscription).Error; err != nil {
		return nil, err
	}
	return &subscription, nil
}

func (r *repository) SaveWithTx(tx *gorm.DB, subscription *models.Subscription) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	return tx.Save(subscription).Error
}
