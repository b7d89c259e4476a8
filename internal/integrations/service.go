package integrations

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cobrafacil/cobrafacil-backend/pkg/config"
	"github.com/cobrafacil/cobrafacil-backend/pkg/db/models"
	"github.com/cobrafacil/cobrafacil-backend/pkg/enums"
	pkgerrors "github.com/cobrafacil/cobrafacil-backend/pkg/errors"
)

const (
	baseURLHomologacao = "https://pix-h.api.efipay.com.br"
	baseURLProducao    = "https://pix.api.efipay.com.br"

	certFileHomologacao = "efi-homologacao.p12"
	certFileProducao    = "efi-producao.p12"
)

type integrationRepository interface {
	FindByTenantAndType(ctx context.Context, tenantID uuid.UUID, typ enums.IntegrationType) (*models.Integration, error)
	Upsert(ctx context.Context, integration *models.Integration) error
}

// GatewayConfig is the fully resolved per-tenant gateway setup. All of
// its fields are derived: credentials from the tenant row, base URL and
// certificate path from the selected environment.
type GatewayConfig struct {
	TenantID        uuid.UUID
	Environment     enums.GatewayEnvironment
	BaseURL         string
	ClientID        string
	ClientSecret    string
	PixKey          string
	CertificatePath string
}

// Service exposes tenant gateway configuration operations.
type Service interface {
	ResolvePixConfig(ctx context.Context, tenantID uuid.UUID) (*GatewayConfig, error)
	ConfigurePix(ctx context.Context, tenantID uuid.UUID, input ConfigurePixInput) error
}

type service struct {
	repo integrationRepository
	efi  config.EfiConfig
}

// NewService builds an integrations service.
func NewService(repo integrationRepository, efi config.EfiConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("integration repository required")
	}
	return &service{repo: repo, efi: efi}, nil
}

// ConfigurePixInput carries one environment's credential set.
type ConfigurePixInput struct {
	Environment  enums.GatewayEnvironment
	ClientID     string
	ClientSecret string
	PixKey       string
	Sandbox      bool
	Enabled      bool
}

// ResolvePixConfig loads and validates the tenant's PIX gateway setup.
// A missing or disabled integration yields CodeNotConfigured; an enabled
// one with incomplete credentials yields CodeMissingCredentials.
func (s *service) ResolvePixConfig(ctx context.Context, tenantID uuid.UUID) (*GatewayConfig, error) {
	integration, err := s.repo.FindByTenantAndType(ctx, tenantID, enums.IntegrationTypePix)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotConfigured, "pix gateway is not configured for this tenant")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pix integration")
	}
	if !integration.Enabled {
		return nil, pkgerrors.New(pkgerrors.CodeNotConfigured, "pix gateway is disabled for this tenant")
	}

	env := integration.Environment()
	clientID, clientSecret, pixKey := integration.Credentials(env)
	if clientID == "" || clientSecret == "" || pixKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeMissingCredentials,
			fmt.Sprintf("pix credentials for the %s environment are incomplete", env))
	}

	return &GatewayConfig{
		TenantID:        tenantID,
		Environment:     env,
		BaseURL:         baseURLFor(env),
		ClientID:        clientID,
		ClientSecret:    clientSecret,
		PixKey:          pixKey,
		CertificatePath: filepath.Join(s.efi.CertDir, certFileFor(env)),
	}, nil
}

// ConfigurePix stores one environment's credentials on the tenant's PIX
// integration row, creating the row on first use.
func (s *service) ConfigurePix(ctx context.Context, tenantID uuid.UUID, input ConfigurePixInput) error {
	if !input.Environment.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid gateway environment")
	}
	if input.ClientID == "" || input.ClientSecret == "" || input.PixKey == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "client_id, client_secret and pix_key are required")
	}

	integration, err := s.repo.FindByTenantAndType(ctx, tenantID, enums.IntegrationTypePix)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pix integration")
		}
		integration = &models.Integration{
			TenantID: tenantID,
			Type:     enums.IntegrationTypePix,
		}
	}

	switch input.Environment {
	case enums.GatewayEnvironmentProducao:
		integration.ProdClientID = &input.ClientID
		integration.ProdClientSecret = &input.ClientSecret
		integration.ProdPixKey = &input.PixKey
	default:
		integration.HomologClientID = &input.ClientID
		integration.HomologClientSecret = &input.ClientSecret
		integration.HomologPixKey = &input.PixKey
	}
	integration.Sandbox = input.Sandbox
	integration.Enabled = input.Enabled

	if err := s.repo.Upsert(ctx, integration); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save pix integration")
	}
	return nil
}

func baseURLFor(env enums.GatewayEnvironment) string {
	if env == enums.GatewayEnvironmentProducao {
		return baseURLProducao
	}
	return baseURLHomologacao
}

func certFileFor(env enums.GatewayEnvironment) string {
	if env == enums.GatewayEnvironmentProducao {
		return certFileProducao
	}
	return certFileHomologacao
}
