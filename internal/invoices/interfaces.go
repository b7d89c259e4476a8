package invoices

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cobrafacil/cobrafacil-backend/internal/efi"
	"github.com/cobrafacil/cobrafacil-backend/internal/integrations"
	"github.com/cobrafacil/cobrafacil-backend/pkg/db/models"
	"github.com/cobrafacil/cobrafacil-backend/pkg/pagination"
)

// Repository handles invoice and invoice-sequence persistence.
type Repository interface {
	Create(ctx context.Context, invoice *models.Invoice) error
	Save(ctx context.Context, invoice *models.Invoice) error
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Invoice, error)
	FindByTxID(ctx context.Context, txid string) (*models.Invoice, error)
	List(ctx context.Context, tenantID uuid.UUID, filter ListFilter, params pagination.Params) ([]models.Invoice, error)
	MarkOverdue(ctx context.Context, before time.Time) (int64, error)
	ExistsForSubscriptionSince(ctx context.Context, subscriptionID uuid.UUID, since time.Time) (bool, error)

	CreateWithTx(tx *gorm.DB, invoice *models.Invoice) error
	SaveWithTx(tx *gorm.DB, invoice *models.Invoice) error
	FindByIDWithTx(tx *gorm.DB, tenantID, id uuid.UUID) (*models.Invoice, error)
	FindByTxIDWithTx(tx *gorm.DB, txid string) (*models.Invoice, error)
	NextNumberWithTx(tx *gorm.DB, tenantID uuid.UUID, yearMonth string) (string, error)
}

type subscriptionStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	FindByIDWithTx(tx *gorm.DB, id uuid.UUID) (*models.Subscription, error)
	SaveWithTx(tx *gorm.DB, subscription *models.Subscription) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type configResolver interface {
	ResolvePixConfig(ctx context.Context, tenantID uuid.UUID) (*integrations.GatewayConfig, error)
}

type chargeCreator interface {
	CreateCharge(ctx context.Context, gw *integrations.GatewayConfig, req efi.ChargeRequest) (*efi.Charge, error)
}
