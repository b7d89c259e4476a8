package efi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cobrafacil/cobrafacil-backend/internal/integrations"
	"github.com/cobrafacil/cobrafacil-backend/pkg/config"
	"github.com/cobrafacil/cobrafacil-backend/pkg/enums"
	pkgerrors "github.com/cobrafacil/cobrafacil-backend/pkg/errors"
	"github.com/cobrafacil/cobrafacil-backend/pkg/logger"
)

func testClient(t *testing.T, baseURL string) (*Client, *integrations.GatewayConfig) {
	t.Helper()

	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
	client, err := NewClient(ClientParams{
		Config: config.EfiConfig{RequestTimeout: 5 * time.Second},
		Tokens: NewTokenCache(),
		Logger: logg,
	}, WithHTTPClientFactory(func(string, time.Duration) (*http.Client, error) {
		return &http.Client{Timeout: 5 * time.Second}, nil
	}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	gw := &integrations.GatewayConfig{
		TenantID:        uuid.New(),
		Environment:     enums.GatewayEnvironmentHomologacao,
		BaseURL:         baseURL,
		ClientID:        "client-id",
		ClientSecret:    "client-secret",
		PixKey:          "pix-key",
		CertificatePath: "unused.p12",
	}
	return client, gw
}

func serveToken(t *testing.T, w http.ResponseWriter, r *http.Request) {
	t.Helper()
	expected := "Basic " + base64.StdEncoding.EncodeToString([]byte("client-id:client-secret"))
	if got := r.Header.Get("Authorization"); got != expected {
		t.Errorf("token request auth = %q, want %q", got, expected)
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": "tok-abc",
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

func TestCreateChargeRoundTrip(t *testing.T) {
	txid := NewTxID()
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/oauth/token":
			serveToken(t, w, r)
		case r.Method == http.MethodPut && r.URL.Path == "/v2/cob/"+txid:
			if got := r.Header.Get("Authorization"); got != "Bearer tok-abc" {
				t.Errorf("charge auth = %q", got)
			}
			var payload map[string]any
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Fatalf("decode charge payload: %v", err)
			}
			valor := payload["valor"].(map[string]any)
			if valor["original"] != "99.90" {
				t.Errorf("amount = %v, want 99.90", valor["original"])
			}
			if payload["chave"] != "pix-key" {
				t.Errorf("chave = %v", payload["chave"])
			}
			devedor := payload["devedor"].(map[string]any)
			if devedor["cpf"] != "12345678901" || devedor["nome"] != "Maria Silva" {
				t.Errorf("devedor = %v", devedor)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"txid":   txid,
				"status": "ATIVA",
				"calendario": map[string]any{
					"criacao":   created,
					"expiracao": 3600,
				},
				"loc":           map[string]any{"id": 77, "location": "pix.example.com/qr/abc"},
				"pixCopiaECola": "00020126...",
			})
		case r.Method == http.MethodGet && r.URL.Path == "/v2/loc/77/qrcode":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"qrcode":       "00020126...",
				"imagemQrcode": "data:image/png;base64,iVBOR",
			})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client, gw := testClient(t, srv.URL)
	charge, err := client.CreateCharge(context.Background(), gw, ChargeRequest{
		TxID:              txid,
		Amount:            decimal.RequireFromString("99.90"),
		PixKey:            gw.PixKey,
		ExpirationSeconds: 3600,
		PayerName:         "Maria Silva",
		PayerTaxID:        "123.456.789-01",
		Description:       "Mensalidade",
	})
	if err != nil {
		t.Fatalf("create charge: %v", err)
	}
	if charge.TxID != txid {
		t.Errorf("txid = %q", charge.TxID)
	}
	if charge.LocationID != 77 {
		t.Errorf("location id = %d", charge.LocationID)
	}
	if charge.CopyPaste != "00020126..." {
		t.Errorf("copy paste = %q", charge.CopyPaste)
	}
	if charge.QRCodeImage != "data:image/png;base64,iVBOR" {
		t.Errorf("qr image = %q", charge.QRCodeImage)
	}
	if !charge.ExpiresAt.Equal(created.Add(time.Hour)) {
		t.Errorf("expires at = %v", charge.ExpiresAt)
	}
}

func TestCreateChargeRejectsBadTxID(t *testing.T) {
	client, gw := testClient(t, "http://unreachable.invalid")

	_, err := client.CreateCharge(context.Background(), gw, ChargeRequest{
		TxID:   "short",
		Amount: decimal.NewFromInt(10),
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected CodeValidation, got %v", err)
	}
}

func TestCreateChargeGatewayErrorKeepsPayload(t *testing.T) {
	txid := NewTxID()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			serveToken(t, w, r)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"nome":"cob_payload_invalido","mensagem":"valor invalido"}`))
	}))
	defer srv.Close()

	client, gw := testClient(t, srv.URL)
	_, err := client.CreateCharge(context.Background(), gw, ChargeRequest{
		TxID:   txid,
		Amount: decimal.NewFromInt(10),
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeGateway) {
		t.Fatalf("expected CodeGateway, got %v", err)
	}

	details := pkgerrors.As(err).Details()
	raw, ok := details.(json.RawMessage)
	if !ok {
		t.Fatalf("details = %T, want json.RawMessage", details)
	}
	var body map[string]string
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("unmarshal details: %v", err)
	}
	if body["nome"] != "cob_payload_invalido" {
		t.Errorf("details not preserved verbatim: %s", raw)
	}
}

func TestUnauthorizedInvalidatesToken(t *testing.T) {
	txid := NewTxID()
	tokenCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			tokenCalls++
			serveToken(t, w, r)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, gw := testClient(t, srv.URL)

	_, err := client.GetCharge(context.Background(), gw, txid)
	if !pkgerrors.HasCode(err, pkgerrors.CodeAuthenticationFailed) {
		t.Fatalf("expected CodeAuthenticationFailed, got %v", err)
	}

	// The 401 must have dropped the cached token, so the next call
	// exchanges again instead of reusing it.
	_, _ = client.GetCharge(context.Background(), gw, txid)
	if tokenCalls != 2 {
		t.Fatalf("expected 2 token exchanges, got %d", tokenCalls)
	}
}

func TestListReceivedParsesReceipts(t *testing.T) {
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	paidAt := time.Date(2025, 3, 1, 14, 30, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			serveToken(t, w, r)
			return
		}
		if r.URL.Path != "/v2/pix" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("inicio"); got != from.Format(time.RFC3339) {
			t.Errorf("inicio = %q", got)
		}
		if got := r.URL.Query().Get("fim"); got != to.Format(time.RFC3339) {
			t.Errorf("fim = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"pix": []map[string]any{
				{
					"endToEndId": "E12345678202503011430abcdef",
					"txid":       "CFABCDEFGHIJKLMNOPQRSTUVWX",
					"valor":      "150.00",
					"horario":    paidAt,
				},
			},
		})
	}))
	defer srv.Close()

	client, gw := testClient(t, srv.URL)
	receipts, err := client.ListReceived(context.Background(), gw, from, to)
	if err != nil {
		t.Fatalf("list received: %v", err)
	}
	if len(receipts) != 1 {
		t.Fatalf("expected 1 receipt, got %d", len(receipts))
	}
	r := receipts[0]
	if r.EndToEndID != "E12345678202503011430abcdef" {
		t.Errorf("end to end id = %q", r.EndToEndID)
	}
	if !r.Amount.Equal(decimal.RequireFromString("150.00")) {
		t.Errorf("amount = %s", r.Amount)
	}
	if !r.PaidAt.Equal(paidAt) {
		t.Errorf("paid at = %v", r.PaidAt)
	}
}

func TestMissingCertificateIsHardFailure(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
	client, err := NewClient(ClientParams{
		Config: config.EfiConfig{RequestTimeout: time.Second},
		Tokens: NewTokenCache(),
		Logger: logg,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	gw := &integrations.GatewayConfig{
		TenantID:        uuid.New(),
		BaseURL:         "https://pix-h.api.efipay.com.br",
		ClientID:        "c",
		ClientSecret:    "s",
		PixKey:          "k",
		CertificatePath: "/nonexistent/efi-homologacao.p12",
	}
	_, err = client.GetCharge(context.Background(), gw, NewTxID())
	if !pkgerrors.HasCode(err, pkgerrors.CodeCertificateUnavailable) {
		t.Fatalf("expected CodeCertificateUnavailable, got %v", err)
	}
}
