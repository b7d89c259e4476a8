package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cobrafacil/cobrafacil-backend/pkg/enums"
)

// Integration stores a tenant's configuration for one external gateway.
// At most one record exists per {tenant, type}, enforced by a composite
// unique index. The PIX integration carries two credential sets, one per
// gateway environment; the sandbox flag selects which one is live.
type Integration struct {
	ID       uuid.UUID             `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID uuid.UUID             `gorm:"column:tenant_id;type:uuid;not null;uniqueIndex:idx_integrations_tenant_type"`
	Type     enums.IntegrationType `gorm:"column:type;not null;uniqueIndex:idx_integrations_tenant_type"`
	Enabled  bool                  `gorm:"column:enabled;not null;default:false"`
	Sandbox  bool                  `gorm:"column:sandbox;not null;default:true"`

	HomologClientID     *string `gorm:"column:homolog_client_id"`
	HomologClientSecret *string `gorm:"column:homolog_client_secret"`
	HomologPixKey       *string `gorm:"column:homolog_pix_key"`

	ProdClientID     *string `gorm:"column:prod_client_id"`
	ProdClientSecret *string `gorm:"column:prod_client_secret"`
	ProdPixKey       *string `gorm:"column:prod_pix_key"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns the primary key in Go; the Postgres column default
// only covers inserts that omit the column, which the SQLite backend does not.
func (i *Integration) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// Credentials returns the credential set for the selected environment.
func (i *Integration) Credentials(env enums.GatewayEnvironment) (clientID, clientSecret, pixKey string) {
	if env == enums.GatewayEnvironmentProducao {
		return deref(i.ProdClientID), deref(i.ProdClientSecret), deref(i.ProdPixKey)
	}
	return deref(i.HomologClientID), deref(i.HomologClientSecret), deref(i.HomologPixKey)
}

// Environment derives the gateway environment from the sandbox flag.
func (i *Integration) Environment() enums.GatewayEnvironment {
	if i.Sandbox {
		return enums.GatewayEnvironmentHomologacao
	}
	return enums.GatewayEnvironmentProducao
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
