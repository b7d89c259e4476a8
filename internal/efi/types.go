package efi

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChargeRequest describes an immediate PIX charge to register with Efí.
// TxID is generated by the caller so the local record can be written
// before the gateway call.
type ChargeRequest struct {
	TxID              string
	Amount            decimal.Decimal
	PixKey            string
	ExpirationSeconds int
	PayerName         string
	PayerTaxID        string
	Description       string
}

// Charge is a registered PIX charge as returned by the gateway,
// including the copy-and-paste payload and rendered QR code.
type Charge struct {
	TxID        string
	LocationID  int64
	Status      string
	CopyPaste   string
	QRCodeImage string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Receipt is one settled PIX credit reported by the gateway.
type Receipt struct {
	EndToEndID string
	TxID       string
	Amount     decimal.Decimal
	PaidAt     time.Time
	PayerInfo  string
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type chargePayload struct {
	Calendario struct {
		Expiracao int `json:"expiracao"`
	} `json:"calendario"`
	Devedor *chargeDebtor `json:"devedor,omitempty"`
	Valor   struct {
		Original string `json:"original"`
	} `json:"valor"`
	Chave              string `json:"chave"`
	SolicitacaoPagador string `json:"solicitacaoPagador,omitempty"`
}

type chargeDebtor struct {
	CPF  string `json:"cpf,omitempty"`
	CNPJ string `json:"cnpj,omitempty"`
	Nome string `json:"nome"`
}

type chargeResponse struct {
	TxID       string `json:"txid"`
	Status     string `json:"status"`
	Calendario struct {
		Criacao   time.Time `json:"criacao"`
		Expiracao int       `json:"expiracao"`
	} `json:"calendario"`
	Loc struct {
		ID       int64  `json:"id"`
		Location string `json:"location"`
	} `json:"loc"`
	PixCopiaECola string `json:"pixCopiaECola"`
}

type qrcodeResponse struct {
	QRCode      string `json:"qrcode"`
	ImagemQR    string `json:"imagemQrcode"`
	LinkVisual  string `json:"linkVisualizacao"`
}

type pixListResponse struct {
	Pix []pixItem `json:"pix"`
}

type pixItem struct {
	EndToEndID  string `json:"endToEndId"`
	TxID        string `json:"txid"`
	Valor       string `json:"valor"`
	Horario     time.Time `json:"horario"`
	InfoPagador string `json:"infoPagador"`
}
