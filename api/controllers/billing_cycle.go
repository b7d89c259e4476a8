package controllers

import (
	"net/http"
	"time"

	"github.com/cobrafacil/cobrafacil-backend/api/responses"
	"github.com/cobrafacil/cobrafacil-backend/internal/subscriptions"
	pkgerrors "github.com/cobrafacil/cobrafacil-backend/pkg/errors"
	"github.com/cobrafacil/cobrafacil-backend/pkg/logger"
)

// BillingCycleRun triggers one generation batch on demand, outside the
// worker's schedule. Per-item failures are summarized in the result
// rather than failing the request.
func BillingCycleRun(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		result, err := svc.RunBillingCycle(r.Context(), time.Now().UTC())
		if result == nil {
			if err == nil {
				err = pkgerrors.New(pkgerrors.CodeInternal, "billing cycle produced no result")
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err != nil && logg != nil {
			logg.Error(r.Context(), "billing cycle finished with item failures", err)
		}

		responses.WriteSuccess(w, result)
	}
}
