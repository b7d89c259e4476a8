package efi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cobrafacil/cobrafacil-backend/internal/integrations"
	"github.com/cobrafacil/cobrafacil-backend/pkg/config"
	pkgerrors "github.com/cobrafacil/cobrafacil-backend/pkg/errors"
	"github.com/cobrafacil/cobrafacil-backend/pkg/logger"
	"github.com/cobrafacil/cobrafacil-backend/pkg/metrics"
)

const errorBodyReadLimit int64 = 4096

var txidRe = regexp.MustCompile(`^[A-Za-z0-9]{26,35}$`)

// HTTPClientFactory builds the HTTP client used for one certificate
// bundle. Overridable in tests to skip mutual TLS.
type HTTPClientFactory func(certPath string, timeout time.Duration) (*http.Client, error)

// ClientParams carries the gateway client dependencies.
type ClientParams struct {
	Config  config.EfiConfig
	Tokens  *TokenCache
	Logger  *logger.Logger
	Metrics *metrics.GatewayMetrics
}

// Client talks to the Efí PIX API. All methods take the tenant's
// resolved gateway configuration; the client itself holds no tenant
// state beyond the injected token cache and the per-certificate HTTP
// clients it builds lazily.
type Client struct {
	cfg     config.EfiConfig
	tokens  *TokenCache
	logg    *logger.Logger
	metrics *metrics.GatewayMetrics
	factory HTTPClientFactory

	mu          sync.Mutex
	httpClients map[string]*http.Client
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClientFactory overrides how per-certificate HTTP clients are
// built.
func WithHTTPClientFactory(factory HTTPClientFactory) Option {
	return func(c *Client) {
		if factory != nil {
			c.factory = factory
		}
	}
}

// NewClient builds the Efí gateway client.
func NewClient(params ClientParams, opts ...Option) (*Client, error) {
	if params.Tokens == nil {
		return nil, fmt.Errorf("token cache required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}

	client := &Client{
		cfg:         params.Config,
		tokens:      params.Tokens,
		logg:        params.Logger,
		metrics:     params.Metrics,
		factory:     mtlsHTTPClient,
		httpClients: make(map[string]*http.Client),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

func mtlsHTTPClient(certPath string, timeout time.Duration) (*http.Client, error) {
	tlsConfig, err := loadTLSConfig(certPath)
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &http.Transport{TLSClientConfig: tlsConfig},
	}, nil
}

// CreateCharge registers an immediate PIX charge under the caller's
// txid, then fetches the rendered QR code for its payment location.
func (c *Client) CreateCharge(ctx context.Context, gw *integrations.GatewayConfig, req ChargeRequest) (*Charge, error) {
	if !txidRe.MatchString(req.TxID) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "txid must be 26 to 35 alphanumeric characters")
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge amount must be positive")
	}

	start := time.Now()
	charge, err := c.createCharge(ctx, gw, req)
	c.observe("create_charge", start, err)
	return charge, err
}

func (c *Client) createCharge(ctx context.Context, gw *integrations.GatewayConfig, req ChargeRequest) (*Charge, error) {
	payload := chargePayload{
		Chave:              gw.PixKey,
		SolicitacaoPagador: req.Description,
	}
	payload.Calendario.Expiracao = req.ExpirationSeconds
	payload.Valor.Original = req.Amount.StringFixed(2)
	payload.Devedor = debtorFor(req.PayerName, req.PayerTaxID)

	var resp chargeResponse
	path := "/v2/cob/" + url.PathEscape(req.TxID)
	if err := c.do(ctx, gw, http.MethodPut, path, payload, &resp); err != nil {
		return nil, err
	}

	charge := chargeFromResponse(resp)

	if resp.Loc.ID != 0 {
		var qr qrcodeResponse
		qrPath := fmt.Sprintf("/v2/loc/%d/qrcode", resp.Loc.ID)
		if err := c.do(ctx, gw, http.MethodGet, qrPath, nil, &qr); err != nil {
			return nil, err
		}
		charge.QRCodeImage = qr.ImagemQR
		if charge.CopyPaste == "" {
			charge.CopyPaste = qr.QRCode
		}
	}

	ctx = c.logg.WithTxID(ctx, charge.TxID)
	c.logg.Info(ctx, "pix charge registered")

	return charge, nil
}

// GetCharge fetches the current state of a registered charge.
func (c *Client) GetCharge(ctx context.Context, gw *integrations.GatewayConfig, txid string) (*Charge, error) {
	if !txidRe.MatchString(txid) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "txid must be 26 to 35 alphanumeric characters")
	}

	start := time.Now()
	var resp chargeResponse
	err := c.do(ctx, gw, http.MethodGet, "/v2/cob/"+url.PathEscape(txid), nil, &resp)
	c.observe("get_charge", start, err)
	if err != nil {
		return nil, err
	}
	charge := chargeFromResponse(resp)
	return charge, nil
}

// ListReceived returns the settled PIX credits inside [from, to].
func (c *Client) ListReceived(ctx context.Context, gw *integrations.GatewayConfig, from, to time.Time) ([]Receipt, error) {
	query := url.Values{}
	query.Set("inicio", from.UTC().Format(time.RFC3339))
	query.Set("fim", to.UTC().Format(time.RFC3339))

	start := time.Now()
	var resp pixListResponse
	err := c.do(ctx, gw, http.MethodGet, "/v2/pix?"+query.Encode(), nil, &resp)
	c.observe("list_received", start, err)
	if err != nil {
		return nil, err
	}

	receipts := make([]Receipt, 0, len(resp.Pix))
	for _, item := range resp.Pix {
		amount, err := decimal.NewFromString(item.Valor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err,
				fmt.Sprintf("parse receipt amount %q", item.Valor))
		}
		receipts = append(receipts, Receipt{
			EndToEndID: item.EndToEndID,
			TxID:       item.TxID,
			Amount:     amount,
			PaidAt:     item.Horario,
			PayerInfo:  item.InfoPagador,
		})
	}
	return receipts, nil
}

func (c *Client) do(ctx context.Context, gw *integrations.GatewayConfig, method, path string, body, out any) error {
	token, err := c.tokens.Token(ctx, gw.TenantID, func(ctx context.Context) (Token, error) {
		return c.exchangeToken(ctx, gw)
	})
	if err != nil {
		return err
	}

	httpClient, err := c.httpClientFor(gw.CertificatePath)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal gateway request")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, gw.BaseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build gateway request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "execute gateway request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate(gw.TenantID)
		return pkgerrors.New(pkgerrors.CodeAuthenticationFailed, "gateway rejected access token")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return gatewayError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "decode gateway response")
		}
	}
	return nil
}

// exchangeToken performs the OAuth client-credentials exchange over the
// tenant's mTLS channel.
func (c *Client) exchangeToken(ctx context.Context, gw *integrations.GatewayConfig) (Token, error) {
	httpClient, err := c.httpClientFor(gw.CertificatePath)
	if err != nil {
		return Token{}, err
	}

	body := strings.NewReader(`{"grant_type":"client_credentials"}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, gw.BaseURL+"/oauth/token", body)
	if err != nil {
		return Token{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build token request")
	}

	basic := base64.StdEncoding.EncodeToString([]byte(gw.ClientID + ":" + gw.ClientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return Token{}, pkgerrors.Wrap(pkgerrors.CodeAuthenticationFailed, err, "execute token request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return Token{}, pkgerrors.Wrap(pkgerrors.CodeAuthenticationFailed,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			"token exchange failed")
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return Token{}, pkgerrors.Wrap(pkgerrors.CodeAuthenticationFailed, err, "decode token response")
	}
	if tok.AccessToken == "" {
		return Token{}, pkgerrors.New(pkgerrors.CodeAuthenticationFailed, "token response missing access_token")
	}

	return Token{AccessToken: tok.AccessToken, ExpiresIn: tok.ExpiresIn}, nil
}

func (c *Client) httpClientFor(certPath string) (*http.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.httpClients[certPath]; ok {
		return client, nil
	}
	client, err := c.factory(certPath, c.cfg.RequestTimeout)
	if err != nil {
		return nil, err
	}
	c.httpClients[certPath] = client
	return client, nil
}

func (c *Client) observe(operation string, start time.Time, err error) {
	if c.metrics != nil {
		c.metrics.Observe(operation, time.Since(start), err)
	}
}

// gatewayError preserves the gateway's error payload verbatim so callers
// and operators see exactly what the API reported.
func gatewayError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
	err := pkgerrors.New(pkgerrors.CodeGateway, fmt.Sprintf("gateway returned status %d", resp.StatusCode))
	if len(raw) > 0 {
		if json.Valid(raw) {
			return err.WithDetails(json.RawMessage(raw))
		}
		return err.WithDetails(strings.TrimSpace(string(raw)))
	}
	return err
}

func chargeFromResponse(resp chargeResponse) *Charge {
	charge := &Charge{
		TxID:       resp.TxID,
		LocationID: resp.Loc.ID,
		Status:     resp.Status,
		CopyPaste:  resp.PixCopiaECola,
		CreatedAt:  resp.Calendario.Criacao,
	}
	if !resp.Calendario.Criacao.IsZero() && resp.Calendario.Expiracao > 0 {
		charge.ExpiresAt = resp.Calendario.Criacao.Add(time.Duration(resp.Calendario.Expiracao) * time.Second)
	}
	return charge
}

// debtorFor maps the payer's tax document onto the right Efí field. The
// document is digits only; 14 digits means CNPJ, anything else CPF.
func debtorFor(name, taxID string) *chargeDebtor {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, taxID)
	if name == "" || digits == "" {
		return nil
	}
	if len(digits) == 14 {
		return &chargeDebtor{CNPJ: digits, Nome: name}
	}
	return &chargeDebtor{CPF: digits, Nome: name}
}
