package pixwebhook

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/cobrafacil/cobrafacil-backend/internal/efi"
	pkgerrors "github.com/cobrafacil/cobrafacil-backend/pkg/errors"
	"github.com/cobrafacil/cobrafacil-backend/pkg/logger"
)

// Notification is the payload Efí posts when charges settle. One
// delivery may batch several credits.
type Notification struct {
	Pix []PixEvent `json:"pix"`
}

// PixEvent is a single settled credit inside a notification.
type PixEvent struct {
	EndToEndID  string    `json:"endToEndId"`
	TxID        string    `json:"txid"`
	Valor       string    `json:"valor"`
	Horario     time.Time `json:"horario"`
	InfoPagador string    `json:"infoPagador,omitempty"`
}

type paymentRecorder interface {
	RecordGatewayPayment(ctx context.Context, receipt efi.Receipt) error
}

type idempotencyGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// ServiceParams carries the webhook service dependencies.
type ServiceParams struct {
	Payments paymentRecorder
	Guard    idempotencyGuard
	Logger   *logger.Logger
}

// Service reconciles gateway settlement notifications against invoices.
// It stays thin: each event becomes one RecordGatewayPayment call, and
// everything it does is safe to repeat.
type Service struct {
	payments paymentRecorder
	guard    idempotencyGuard
	logg     *logger.Logger
}

// NewService builds the PIX webhook service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment recorder required")
	}
	if params.Guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		payments: params.Payments,
		guard:    params.Guard,
		logg:     params.Logger,
	}, nil
}

// HandleNotification processes every credit in the delivery. A credit
// whose txid matches no invoice is logged and skipped; transient
// failures are unmarked in the guard and surfaced so the gateway retries
// the delivery.
func (s *Service) HandleNotification(ctx context.Context, notification Notification) error {
	if len(notification.Pix) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification carries no pix events")
	}

	var batchErr error
	for _, event := range notification.Pix {
		if err := s.handleEvent(ctx, event); err != nil {
			batchErr = multierr.Append(batchErr, err)
		}
	}
	return batchErr
}

func (s *Service) handleEvent(ctx context.Context, event PixEvent) error {
	if event.TxID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "pix event missing txid")
	}

	eventID := event.EndToEndID
	if eventID == "" {
		eventID = event.TxID
	}
	ctx = s.logg.WithTxID(ctx, event.TxID)

	seen, err := s.guard.CheckAndMark(ctx, eventID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	if seen {
		s.logg.Info(ctx, "pix notification already processed")
		return nil
	}

	amount, err := decimal.NewFromString(event.Valor)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse pix event amount")
	}

	err = s.payments.RecordGatewayPayment(ctx, efi.Receipt{
		EndToEndID: event.EndToEndID,
		TxID:       event.TxID,
		Amount:     amount,
		PaidAt:     event.Horario,
		PayerInfo:  event.InfoPagador,
	})
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			// A credit for an unknown txid is not retryable: keep the
			// mark and move on.
			s.logg.Warn(ctx, "pix notification matches no invoice")
			return nil
		}
		if delErr := s.guard.Delete(ctx, eventID); delErr != nil {
			s.logg.Error(ctx, "unmark pix notification failed", delErr)
		}
		return err
	}
	return nil
}
