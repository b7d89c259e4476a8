package invoices

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cobrafacil/cobrafacil-backend/pkg/db/models"
	"github.com/cobrafacil/cobrafacil-backend/pkg/enums"
)

// InvoiceDTO is the outward invoice representation.
type InvoiceDTO struct {
	ID             uuid.UUID            `json:"id"`
	TenantID       uuid.UUID            `json:"tenant_id"`
	SubscriptionID uuid.UUID            `json:"subscription_id"`
	Number         string               `json:"number"`
	Description    string               `json:"description"`
	Amount         decimal.Decimal      `json:"amount"`
	IssueDate      time.Time            `json:"issue_date"`
	DueDate        time.Time            `json:"due_date"`
	Status         enums.InvoiceStatus  `json:"status"`
	PaidAt         *time.Time           `json:"paid_at,omitempty"`
	PaidAmount     *decimal.Decimal     `json:"paid_amount,omitempty"`
	PaymentMethod  *enums.PaymentMethod `json:"payment_method,omitempty"`
	EndToEndID     *string              `json:"end_to_end_id,omitempty"`
	PixTxID        *string              `json:"pix_txid,omitempty"`
	PixCopyPaste   *string              `json:"pix_copy_paste,omitempty"`
	PixQRCode      *string              `json:"pix_qr_code,omitempty"`
	PixExpiresAt   *time.Time           `json:"pix_expires_at,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

// FromModel maps a stored invoice to its DTO.
func FromModel(invoice *models.Invoice) *InvoiceDTO {
	if invoice == nil {
		return nil
	}
	return &InvoiceDTO{
		ID:             invoice.ID,
		TenantID:       invoice.TenantID,
		SubscriptionID: invoice.SubscriptionID,
		Number:         invoice.Number,
		Description:    invoice.Description,
		Amount:         invoice.Amount,
		IssueDate:      invoice.IssueDate,
		DueDate:        invoice.DueDate,
		Status:         invoice.Status,
		PaidAt:         invoice.PaidAt,
		PaidAmount:     invoice.PaidAmount,
		PaymentMethod:  invoice.PaymentMethod,
		EndToEndID:     invoice.EndToEndID,
		PixTxID:        invoice.PixTxID,
		PixCopyPaste:   invoice.PixCopyPaste,
		PixQRCode:      invoice.PixQRCode,
		PixExpiresAt:   invoice.PixExpiresAt,
		CreatedAt:      invoice.CreatedAt,
	}
}

// ListFilter narrows invoice listings.
type ListFilter struct {
	Status         *enums.InvoiceStatus
	SubscriptionID *uuid.UUID
	DueBefore      *time.Time
	DueAfter       *time.Time
}

// InvoiceList is one page of invoices plus the cursor for the next one.
type InvoiceList struct {
	Items      []InvoiceDTO `json:"items"`
	NextCursor string       `json:"next_cursor,omitempty"`
}
