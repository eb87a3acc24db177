package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"taskmarket-ledger/pkg/config"
	"taskmarket-ledger/pkg/errutil"

	"github.com/shopspring/decimal"
)

// Provider is the outbound side of the payment provider.
type Provider interface {
	InitiatePayment(ctx context.Context, req InitiatePaymentRequest) (*InitiatePaymentResponse, error)
	VerifyTransaction(ctx context.Context, providerTxID string) (*Verification, error)
}

type InitiatePaymentRequest struct {
	Amount     decimal.Decimal
	Currency   string
	PayerName  string
	PayerEmail string
	TxRef      string
}

type InitiatePaymentResponse struct {
	RedirectLink string
}

// Verification is the provider's authoritative view of a charge.
type Verification struct {
	Status        string
	ChargedAmount decimal.Decimal
	Currency      string
	TxRef         string
}

func (v *Verification) Succeeded() bool {
	return strings.EqualFold(v.Status, "successful") || strings.EqualFold(v.Status, "success")
}

// InFlight reports whether the provider has not reached a final state for
// the charge yet.
func (v *Verification) InFlight() bool {
	switch strings.ToLower(v.Status) {
	case "pending", "processing", "new", "initiated":
		return true
	}
	return false
}

// HTTPProvider talks to a Flutterwave-style v3 API.
type HTTPProvider struct {
	client      *http.Client
	baseURL     string
	secretKey   string
	redirectURL string
}

func NewHTTPProvider(cfg *config.Config) *HTTPProvider {
	return &HTTPProvider{
		client:      &http.Client{Timeout: cfg.Payment.Timeout},
		baseURL:     strings.TrimRight(cfg.Payment.BaseURL, "/"),
		secretKey:   cfg.Payment.SecretKey,
		redirectURL: cfg.Payment.RedirectURL,
	}
}

type envelope[T any] struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type customer struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type paymentBody struct {
	TxRef       string          `json:"tx_ref"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	RedirectURL string          `json:"redirect_url,omitempty"`
	Customer    customer        `json:"customer"`
}

type verifyData struct {
	ID            FlexibleID      `json:"id"`
	TxRef         FlexibleID      `json:"tx_ref"`
	Amount        decimal.Decimal `json:"amount"`
	ChargedAmount decimal.Decimal `json:"charged_amount"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"`
}

func (p *HTTPProvider) InitiatePayment(ctx context.Context, req InitiatePaymentRequest) (*InitiatePaymentResponse, error) {
	body := paymentBody{
		TxRef:       req.TxRef,
		Amount:      req.Amount,
		Currency:    req.Currency,
		RedirectURL: p.redirectURL,
		Customer:    customer{Email: req.PayerEmail, Name: req.PayerName},
	}

	var out envelope[struct {
		Link string `json:"link"`
	}]
	if err := p.do(ctx, http.MethodPost, "/v3/payments", body, &out); err != nil {
		return nil, err
	}
	if out.Data.Link == "" {
		return nil, errutil.BadGateway("payment provider returned no payment link", nil)
	}
	return &InitiatePaymentResponse{RedirectLink: out.Data.Link}, nil
}

func (p *HTTPProvider) VerifyTransaction(ctx context.Context, providerTxID string) (*Verification, error) {
	var out envelope[verifyData]
	path := "/v3/transactions/" + url.PathEscape(providerTxID) + "/verify"
	if err := p.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	charged := out.Data.ChargedAmount
	if charged.IsZero() {
		charged = out.Data.Amount
	}
	return &Verification{
		Status:        out.Data.Status,
		ChargedAmount: charged,
		Currency:      out.Data.Currency,
		TxRef:         string(out.Data.TxRef),
	}, nil
}

func (p *HTTPProvider) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return errutil.BadGateway("payment provider unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errutil.BadGateway("payment provider response unreadable", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errutil.BadGateway(fmt.Sprintf("payment provider returned %d", resp.StatusCode), fmt.Errorf("%s %s: %s", method, path, raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errutil.BadGateway("payment provider response malformed", err)
	}
	return nil
}
