package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cobrafacil/cobrafacil-backend/pkg/enums"
)

// Invoice is one billing instance tied to exactly one subscription.
// Number is unique per tenant and formatted YYYYMM#### from the monthly
// sequence. The payment and PIX-charge sub-records are embedded: the
// payment block is stamped on settlement, the PIX block only after a
// gateway charge was successfully registered.
type Invoice struct {
	ID             uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID       uuid.UUID           `gorm:"column:tenant_id;type:uuid;not null;uniqueIndex:idx_invoices_tenant_number"`
	SubscriptionID uuid.UUID           `gorm:"column:subscription_id;type:uuid;not null;index"`
	Number         string              `gorm:"column:number;not null;uniqueIndex:idx_invoices_tenant_number"`
	Description    string              `gorm:"column:description;not null"`
	Amount         decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	IssueDate      time.Time           `gorm:"column:issue_date;not null"`
	DueDate        time.Time           `gorm:"column:due_date;not null;index"`
	Status         enums.InvoiceStatus `gorm:"column:status;not null;default:'pending'"`

	// Payment sub-record.
	PaidAt        *time.Time           `gorm:"column:paid_at"`
	PaidAmount    *decimal.Decimal     `gorm:"column:paid_amount;type:numeric(12,2)"`
	PaymentMethod *enums.PaymentMethod `gorm:"column:payment_method"`
	PaidByUserID  *uuid.UUID           `gorm:"column:paid_by_user_id;type:uuid"`
	EndToEndID    *string              `gorm:"column:end_to_end_id"`

	// PIX charge sub-record.
	PixTxID       *string    `gorm:"column:pix_txid;uniqueIndex:idx_invoices_pix_txid"`
	PixLocationID *int64     `gorm:"column:pix_location_id"`
	PixCopyPaste  *string    `gorm:"column:pix_copy_paste;type:text"`
	PixQRCode     *string    `gorm:"column:pix_qr_code;type:text"`
	PixExpiresAt  *time.Time `gorm:"column:pix_expires_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns the primary key in Go so rows created through the
// SQLite backend get an ID too; the Postgres column default only covers
// inserts that omit the column.
func (i *Invoice) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// HasPixCharge reports whether a gateway charge is attached.
func (i *Invoice) HasPixCharge() bool {
	return i.PixTxID != nil && *i.PixTxID != ""
}
