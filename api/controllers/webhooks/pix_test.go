package webhooks

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	pixwebhook "github.com/cobrafacil/cobrafacil-backend/internal/webhooks/pix"
	pkgerrors "github.com/cobrafacil/cobrafacil-backend/pkg/errors"
)

type stubPixService struct {
	received pixwebhook.Notification
	calls    int
	err      error
}

func (s *stubPixService) HandleNotification(_ context.Context, notification pixwebhook.Notification) error {
	s.calls++
	s.received = notification
	return s.err
}

func TestPixWebhookSuccess(t *testing.T) {
	svc := &stubPixService{}
	handler := PixWebhook(svc, nil)

	payload := []byte(`{
		"pix": [
			{
				"endToEndId": "E00038166201907261559y6j6",
				"txid": "CF0123456789ABCDEFGHIJ0123",
				"valor": "149.90",
				"horario": "2025-03-10T12:00:00Z"
			}
		]
	}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/pix", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.calls != 1 {
		t.Fatalf("expected one handler call got %d", svc.calls)
	}
	if len(svc.received.Pix) != 1 || svc.received.Pix[0].TxID != "CF0123456789ABCDEFGHIJ0123" {
		t.Fatalf("unexpected notification: %+v", svc.received)
	}
}

func TestPixWebhookToleratesExtraFields(t *testing.T) {
	svc := &stubPixService{}
	handler := PixWebhook(svc, nil)

	payload := []byte(`{"pix":[{"txid":"CF0123456789ABCDEFGHIJ0123","valor":"10.00","chave":"extra","componentesValor":{}}]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/pix", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPixWebhookMalformedBody(t *testing.T) {
	handler := PixWebhook(&stubPixService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/pix", bytes.NewReader([]byte(`{`)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestPixWebhookTransientFailure(t *testing.T) {
	svc := &stubPixService{err: pkgerrors.New(pkgerrors.CodeDependency, "database unavailable")}
	handler := PixWebhook(svc, nil)

	payload := []byte(`{"pix":[{"txid":"CF0123456789ABCDEFGHIJ0123","valor":"10.00"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/pix", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
}

func TestPixWebhookServiceUnavailable(t *testing.T) {
	handler := PixWebhook(nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/pix", bytes.NewReader([]byte(`{"pix":[]}`)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
}
