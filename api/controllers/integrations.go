package controllers

import (
	"net/http"
	"strings"

	"github.com/cobrafacil/cobrafacil-backend/api/middleware"
	"github.com/cobrafacil/cobrafacil-backend/api/responses"
	"github.com/cobrafacil/cobrafacil-backend/api/validators"
	"github.com/cobrafacil/cobrafacil-backend/internal/integrations"
	"github.com/cobrafacil/cobrafacil-backend/pkg/enums"
	pkgerrors "github.com/cobrafacil/cobrafacil-backend/pkg/errors"
	"github.com/cobrafacil/cobrafacil-backend/pkg/logger"
)

type pixIntegrationRequest struct {
	Environment  string `json:"environment" validate:"required"`
	ClientID     string `json:"client_id" validate:"required,min=1"`
	ClientSecret string `json:"client_secret" validate:"required,min=1"`
	PixKey       string `json:"pix_key" validate:"required,min=1"`
	Sandbox      *bool  `json:"sandbox,omitempty"`
	Enabled      *bool  `json:"enabled,omitempty"`
}

func (req pixIntegrationRequest) toInput() (integrations.ConfigurePixInput, error) {
	env, err := enums.ParseGatewayEnvironment(req.Environment)
	if err != nil {
		return integrations.ConfigurePixInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid environment")
	}

	input := integrations.ConfigurePixInput{
		Environment:  env,
		ClientID:     strings.TrimSpace(req.ClientID),
		ClientSecret: strings.TrimSpace(req.ClientSecret),
		PixKey:       strings.TrimSpace(req.PixKey),
		Sandbox:      env == enums.GatewayEnvironmentHomologacao,
		Enabled:      true,
	}
	if req.Sandbox != nil {
		input.Sandbox = *req.Sandbox
	}
	if req.Enabled != nil {
		input.Enabled = *req.Enabled
	}
	return input, nil
}

// IntegrationConfigurePix stores the tenant's Efí credentials for one
// gateway environment.
func IntegrationConfigurePix(svc integrations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "integration service unavailable"))
			return
		}

		tenantID := middleware.TenantIDFromContext(r.Context())

		var payload pixIntegrationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.ConfigurePix(r.Context(), tenantID, input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "configured"})
	}
}
