package invoices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cobrafacil/cobrafacil-backend/pkg/db"
	"github.com/cobrafacil/cobrafacil-backend/pkg/db/models"
	"github.com/cobrafacil/cobrafacil-backend/pkg/enums"
	"github.com/cobrafacil/cobrafacil-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an invoice repository bound to the provided DB.
func NewRepository(gdb *gorm.DB) Repository {
	return &repository{db: gdb}
}

func (r *repository) Create(ctx context.Context, invoice *models.Invoice) error {
	return r.db.WithContext(ctx).Create(invoice).Error
}

func (r *repository) Save(ctx context.Context, invoice *models.Invoice) error {
	return r.db.WithContext(ctx).Save(invoice).Error
}

func (r *repository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&invoice).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) FindByTxID(ctx context.Context, txid string) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.db.WithContext(ctx).
		Where("pix_txid = ?", txid).
		First(&invoice).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) List(ctx context.Context, tenantID uuid.UUID, filter ListFilter, params pagination.Params) ([]models.Invoice, error) {
	query := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.SubscriptionID != nil {
		query = query.Where("subscription_id = ?", *filter.SubscriptionID)
	}
	if filter.DueBefore != nil {
		query = query.Where("due_date < ?", *filter.DueBefore)
	}
	if filter.DueAfter != nil {
		query = query.Where("due_date >= ?", *filter.DueAfter)
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

	var invoices []models.Invoice
	err = query.
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

// MarkOverdue flips every pending invoice due strictly before the cutoff
// to overdue and reports how many rows changed.
func (r *repository) MarkOverdue(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("status = ? AND due_date < ?", enums.InvoiceStatusPending, before).
		Update("status", enums.InvoiceStatusOverdue)
	return result.RowsAffected, result.Error
}

func (r *repository) ExistsForSubscriptionSince(ctx context.Context, subscriptionID uuid.UUID, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("subscription_id = ? AND issue_date >= ?", subscriptionID, since).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) CreateWithTx(tx *gorm.DB, invoice *models.Invoice) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	return tx.Create(invoice).Error
}

func (r *repository) SaveWithTx(tx *gorm.DB, invoice *models.Invoice) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	return tx.Save(invoice).Error
}

func (r *repository) FindByIDWithTx(tx *gorm.DB, tenantID, id uuid.UUID) (*models.Invoice, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	var invoice models.Invoice
	err := lockForUpdate(tx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&invoice).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) FindByTxIDWithTx(tx *gorm.DB, txid string) (*models.Invoice, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	var invoice models.Invoice
	err := lockForUpdate(tx).
		Where("pix_txid = ?", txid).
		First(&invoice).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// NextNumberWithTx allocates the next invoice number for the tenant's
// year-month bucket. The sequence row is locked for the duration of the
// surrounding transaction, so two generators in the same bucket
// serialize instead of handing out the same number.
func (r *repository) NextNumberWithTx(tx *gorm.DB, tenantID uuid.UUID, yearMonth string) (string, error) {
	if tx == nil {
		return "", gorm.ErrInvalidTransaction
	}

	var seq models.InvoiceSequence
	err := lockForUpdate(tx).
		Where("tenant_id = ? AND year_month = ?", tenantID, yearMonth).
		First(&seq).Error

	switch {
	case err == nil:
		seq.LastValue++
		if err := tx.Save(&seq).Error; err != nil {
			return "", err
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		seq = models.InvoiceSequence{
			TenantID:  tenantID,
			YearMonth: yearMonth,
			LastValue: 1,
		}
		if createErr := tx.Create(&seq).Error; createErr != nil {
			if !db.IsUniqueViolation(createErr, "") {
				return "", createErr
			}
			// Lost the race for the bucket's first row; lock the
			// winner's row and increment it.
			if err := lockForUpdate(tx).
				Where("tenant_id = ? AND year_month = ?", tenantID, yearMonth).
				First(&seq).Error; err != nil {
				return "", err
			}
			seq.LastValue++
			if err := tx.Save(&seq).Error; err != nil {
				return "", err
			}
		}
	default:
		return "", err
	}

	return fmt.Sprintf("%s%04d", yearMonth, seq.LastValue), nil
}

// lockForUpdate adds a row lock on engines that support it. SQLite
// serializes writers on its own.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector != nil && tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
