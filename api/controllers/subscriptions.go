package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cobrafacil/cobrafacil-backend/api/middleware"
	"github.com/cobrafacil/cobrafacil-backend/api/responses"
	"github.com/cobrafacil/cobrafacil-backend/api/validators"
	"github.com/cobrafacil/cobrafacil-backend/internal/subscriptions"
	"github.com/cobrafacil/cobrafacil-backend/pkg/enums"
	pkgerrors "github.com/cobrafacil/cobrafacil-backend/pkg/errors"
	"github.com/cobrafacil/cobrafacil-backend/pkg/logger"
	"github.com/cobrafacil/cobrafacil-backend/pkg/pagination"
)

type subscriptionCreateRequest struct {
	PlanName   string     `json:"plan_name" validate:"required,min=1,max=120"`
	Amount     string     `json:"amount" validate:"required"`
	Cycle      string     `json:"cycle" validate:"required"`
	StartDate  *time.Time `json:"start_date,omitempty"`
	DueDate    *time.Time `json:"due_date,omitempty"`
	AutoRenew  *bool      `json:"auto_renew,omitempty"`
	PayerName  string     `json:"payer_name" validate:"required,min=1,max=160"`
	PayerTaxID string     `json:"payer_tax_id" validate:"required"`
}

func (req subscriptionCreateRequest) toInput(tenantID uuid.UUID) (subscriptions.CreateSubscriptionInput, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		return subscriptions.CreateSubscriptionInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount")
	}

	cycle, err := enums.ParseBillingCycle(req.Cycle)
	if err != nil {
		return subscriptions.CreateSubscriptionInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid billing cycle")
	}

	start := time.Now().UTC()
	if req.StartDate != nil {
		start = req.StartDate.UTC()
	}

	autoRenew := true
	if req.AutoRenew != nil {
		autoRenew = *req.AutoRenew
	}

	return subscriptions.CreateSubscriptionInput{
		TenantID:   tenantID,
		PlanName:   validators.SanitizeString(req.PlanName, 120),
		Amount:     amount,
		Cycle:      cycle,
		StartDate:  start,
		DueDate:    req.DueDate,
		AutoRenew:  autoRenew,
		PayerName:  validators.SanitizeString(req.PayerName, 160),
		PayerTaxID: validators.SanitizeString(req.PayerTaxID, 18),
	}, nil
}

func SubscriptionCreate(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		tenantID := middleware.TenantIDFromContext(r.Context())
		if tenantID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "tenant context missing"))
			return
		}

		var payload subscriptionCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput(tenantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.CreateSubscription(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, sub)
	}
}

func SubscriptionGet(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		tenantID := middleware.TenantIDFromContext(r.Context())
		id, err := subscriptionIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.GetSubscription(r.Context(), tenantID, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, sub)
	}
}

func SubscriptionList(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		tenantID := middleware.TenantIDFromContext(r.Context())

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filter := subscriptions.ListFilter{}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseSubscriptionStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filter.Status = &status
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("cycle")); raw != "" {
			cycle, err := enums.ParseBillingCycle(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cycle filter"))
				return
			}
			filter.Cycle = &cycle
		}

		list, err := svc.ListSubscriptions(r.Context(), tenantID, filter, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, list)
	}
}

type subscriptionRenewRequest struct {
	Periods int `json:"periods,omitempty" validate:"omitempty,min=1,max=24"`
}

func SubscriptionRenew(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		tenantID := middleware.TenantIDFromContext(r.Context())
		id, err := subscriptionIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payload := subscriptionRenewRequest{Periods: 1}
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if payload.Periods == 0 {
				payload.Periods = 1
			}
		}

		sub, err := svc.RenewSubscription(r.Context(), tenantID, id, payload.Periods)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, sub)
	}
}

type subscriptionCancelRequest struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

func SubscriptionCancel(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		tenantID := middleware.TenantIDFromContext(r.Context())
		id, err := subscriptionIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload subscriptionCancelRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		sub, err := svc.CancelSubscription(r.Context(), tenantID, id, validators.SanitizeString(payload.Reason, 500))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, sub)
	}
}

func SubscriptionSuspend(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return subscriptionTransition(svc, logg, func(r *http.Request, tenantID, id uuid.UUID) (*subscriptions.SubscriptionDTO, error) {
		return svc.SuspendSubscription(r.Context(), tenantID, id)
	})
}

func SubscriptionReactivate(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return subscriptionTransition(svc, logg, func(r *http.Request, tenantID, id uuid.UUID) (*subscriptions.SubscriptionDTO, error) {
		return svc.ReactivateSubscription(r.Context(), tenantID, id)
	})
}

func subscriptionTransition(svc subscriptions.Service, logg *logger.Logger, fn func(r *http.Request, tenantID, id uuid.UUID) (*subscriptions.SubscriptionDTO, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		tenantID := middleware.TenantIDFromContext(r.Context())
		id, err := subscriptionIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := fn(r, tenantID, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, sub)
	}
}

func subscriptionIDParam(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "subscriptionId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid subscription id")
	}
	return id, nil
}
