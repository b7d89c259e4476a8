package integrations

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cobrafacil/cobrafacil-backend/pkg/db/models"
	"github.com/cobrafacil/cobrafacil-backend/pkg/enums"
)

// Repository handles integration persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to integration operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByTenantAndType loads the single integration row for a tenant and type.
func (r *Repository) FindByTenantAndType(ctx context.Context, tenantID uuid.UUID, typ enums.IntegrationType) (*models.Integration, error) {
	var integration models.Integration
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND type = ?", tenantID, typ).
		First(&integration).Error; err != nil {
		return nil, err
	}
	return &integration, nil
}

// Upsert creates or replaces the tenant's integration of the given type.
func (r *Repository) Upsert(ctx context.Context, integration *models.Integration) error {
	return r.db.WithContext(ctx).Save(integration).Error
}
