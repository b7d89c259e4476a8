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
	"github.com/cobrafacil/cobrafacil-backend/internal/invoices"
	"github.com/cobrafacil/cobrafacil-backend/pkg/enums"
	pkgerrors "github.com/cobrafacil/cobrafacil-backend/pkg/errors"
	"github.com/cobrafacil/cobrafacil-backend/pkg/logger"
	"github.com/cobrafacil/cobrafacil-backend/pkg/pagination"
)

type invoiceGenerateRequest struct {
	SubscriptionID string     `json:"subscription_id" validate:"required,uuid"`
	Description    string     `json:"description,omitempty" validate:"omitempty,max=500"`
	IssueDate      *time.Time `json:"issue_date,omitempty"`
	DueDate        *time.Time `json:"due_date,omitempty"`
}

func InvoiceGenerate(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoice service unavailable"))
			return
		}

		tenantID := middleware.TenantIDFromContext(r.Context())

		var payload invoiceGenerateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		subID, err := uuid.Parse(payload.SubscriptionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid subscription id"))
			return
		}

		input := invoices.GenerateInvoiceInput{
			TenantID:       tenantID,
			SubscriptionID: subID,
			Description:    validators.SanitizeString(payload.Description, 500),
		}
		if payload.IssueDate != nil {
			input.IssueDate = payload.IssueDate.UTC()
		}
		if payload.DueDate != nil {
			input.DueDate = payload.DueDate.UTC()
		}

		invoice, err := svc.GenerateInvoice(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, invoice)
	}
}

func InvoiceGet(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoice service unavailable"))
			return
		}

		tenantID := middleware.TenantIDFromContext(r.Context())
		id, err := invoiceIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		invoice, err := svc.GetInvoice(r.Context(), tenantID, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, invoice)
	}
}

func InvoiceList(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoice service unavailable"))
			return
		}

		tenantID := middleware.TenantIDFromContext(r.Context())

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filter := invoices.ListFilter{}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseInvoiceStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filter.Status = &status
		}
		if subID, err := validators.ParseQueryUUID(r, "subscription_id"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		} else if subID != uuid.Nil {
			filter.SubscriptionID = &subID
		}
		if ts, err := validators.ParseQueryTime(r, "due_before"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		} else {
			filter.DueBefore = ts
		}
		if ts, err := validators.ParseQueryTime(r, "due_after"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		} else {
			filter.DueAfter = ts
		}

		list, err := svc.ListInvoices(r.Context(), tenantID, filter, pagination.Params{
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

func InvoiceCancel(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoice service unavailable"))
			return
		}

		tenantID := middleware.TenantIDFromContext(r.Context())
		id, err := invoiceIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		invoice, err := svc.CancelInvoice(r.Context(), tenantID, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, invoice)
	}
}

type invoicePaymentRequest struct {
	Method       string     `json:"method" validate:"required"`
	Amount       *string    `json:"amount,omitempty"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
	PaidByUserID *string    `json:"paid_by_user_id,omitempty" validate:"omitempty,uuid"`
}

func (req invoicePaymentRequest) toInput() (invoices.ManualPaymentInput, error) {
	method, err := enums.ParsePaymentMethod(req.Method)
	if err != nil {
		return invoices.ManualPaymentInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method")
	}
	if method == enums.PaymentMethodPix {
		return invoices.ManualPaymentInput{}, pkgerrors.New(pkgerrors.CodeValidation, "pix payments are settled by the gateway webhook")
	}

	input := invoices.ManualPaymentInput{Method: method}

	if req.Amount != nil {
		amount, err := decimal.NewFromString(strings.TrimSpace(*req.Amount))
		if err != nil {
			return invoices.ManualPaymentInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount")
		}
		input.Amount = &amount
	}
	if req.PaidAt != nil {
		input.PaidAt = req.PaidAt.UTC()
	}
	if req.PaidByUserID != nil {
		userID, err := uuid.Parse(*req.PaidByUserID)
		if err != nil {
			return invoices.ManualPaymentInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid paid_by_user_id")
		}
		input.PaidByUserID = &userID
	}

	return input, nil
}

func InvoiceManualPayment(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoice service unavailable"))
			return
		}

		tenantID := middleware.TenantIDFromContext(r.Context())
		id, err := invoiceIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload invoicePaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		invoice, err := svc.RecordManualPayment(r.Context(), tenantID, id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, invoice)
	}
}

func InvoicePixCharge(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoice service unavailable"))
			return
		}

		tenantID := middleware.TenantIDFromContext(r.Context())
		id, err := invoiceIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		invoice, err := svc.CreatePixCharge(r.Context(), tenantID, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, invoice)
	}
}

func invoiceIDParam(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "invoiceId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid invoice id")
	}
	return id, nil
}
