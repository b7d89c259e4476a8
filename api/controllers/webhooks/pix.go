package webhooks

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cobrafacil/cobrafacil-backend/api/responses"
	pixwebhook "github.com/cobrafacil/cobrafacil-backend/internal/webhooks/pix"
	pkgerrors "github.com/cobrafacil/cobrafacil-backend/pkg/errors"
	"github.com/cobrafacil/cobrafacil-backend/pkg/logger"
)

type PixWebhookService interface {
	HandleNotification(ctx context.Context, notification pixwebhook.Notification) error
}

// PixWebhook receives Efí payment notifications. A non-2xx response makes
// the gateway redeliver, so only transient failures surface as errors;
// duplicates and unknown txids are acknowledged.
func PixWebhook(svc PixWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		// Efí payloads carry fields beyond the ones we consume, so the
		// strict body validator does not apply here.
		var notification pixwebhook.Notification
		if err := json.NewDecoder(r.Body).Decode(&notification); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid notification body"))
			return
		}

		if err := svc.HandleNotification(ctx, notification); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, nil)
	}
}
