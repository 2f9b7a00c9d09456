package payment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/valyala/bytebufferpool"
)

// DefaultYooKassaURL is the production API root.
const DefaultYooKassaURL = "https://api.yookassa.ru/v3"

const maxErrorBody = 4096

// KeyGenerator produces idempotence keys.
type KeyGenerator interface {
	NewIdempotenceKey() (string, error)
}

// YooKassaConfig configures the YooKassa REST client.
type YooKassaConfig struct {
	BaseURL   string
	ShopID    string
	SecretKey string
	Timeout   time.Duration
	// VATCode is the receipt item tax code.
	VATCode int
}

// YooKassa talks to the YooKassa v3 payments API.
type YooKassa struct {
	client  *http.Client
	baseURL string
	shopID  string
	secret  string
	vatCode int
	keys    KeyGenerator
}

// NewYooKassa builds a client. Credentials are required.
func NewYooKassa(cfg YooKassaConfig, keys KeyGenerator) (*YooKassa, error) {
	if strings.TrimSpace(cfg.ShopID) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("yookassa shop id and secret key are required")
	}
	if keys == nil {
		return nil, errors.New("idempotence key generator is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultYooKassaURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("parse yookassa base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	vat := cfg.VATCode
	if vat <= 0 {
		vat = 1
	}
	return &YooKassa{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		shopID:  cfg.ShopID,
		secret:  cfg.SecretKey,
		vatCode: vat,
		keys:    keys,
	}, nil
}

type ykCreateBody struct {
	Amount       Amount         `json:"amount"`
	Capture      bool           `json:"capture"`
	Confirmation ykConfirmation `json:"confirmation"`
	Description  string         `json:"description"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Receipt      *ykReceipt     `json:"receipt,omitempty"`
}

type ykConfirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type ykReceipt struct {
	Customer ykCustomer `json:"customer"`
	Items    []ykItem   `json:"items"`
}

type ykCustomer struct {
	Email string `json:"email"`
}

type ykItem struct {
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	Amount      Amount `json:"amount"`
	VATCode     int    `json:"vat_code"`
}

type ykPayment struct {
	ID           string         `json:"id"`
	Status       Status         `json:"status"`
	Confirmation ykConfirmation `json:"confirmation"`
}

// Create registers a redirect-confirmed, auto-captured payment.
func (y *YooKassa) Create(ctx context.Context, req CreateRequest) (Payment, error) {
	body := ykCreateBody{
		Amount:       req.Amount,
		Capture:      true,
		Confirmation: ykConfirmation{Type: "redirect", ReturnURL: req.ReturnURL},
		Description:  req.Description,
		Metadata:     map[string]any{"user_id": req.UserID},
	}
	if req.Email != "" {
		body.Receipt = &ykReceipt{
			Customer: ykCustomer{Email: req.Email},
			Items: []ykItem{{
				Description: req.ItemName,
				Quantity:    1,
				Amount:      req.Amount,
				VATCode:     y.vatCode,
			}},
		}
	}
	payload, err := sonic.Marshal(body)
	if err != nil {
		return Payment{}, fmt.Errorf("marshal payment request: %w", err)
	}
	key, err := y.keys.NewIdempotenceKey()
	if err != nil {
		return Payment{}, fmt.Errorf("idempotence key: %w", err)
	}

	var out ykPayment
	if err := y.do(ctx, http.MethodPost, "/payments", payload, key, &out); err != nil {
		return Payment{}, fmt.Errorf("create payment: %w", err)
	}
	if out.ID == "" || out.Confirmation.ConfirmationURL == "" {
		return Payment{}, errors.New("create payment: response lacks id or confirmation url")
	}
	return Payment{
		ID:              out.ID,
		Status:          out.Status,
		ConfirmationURL: out.Confirmation.ConfirmationURL,
	}, nil
}

// Status fetches the current status of a payment.
func (y *YooKassa) Status(ctx context.Context, paymentID string) (Status, error) {
	if strings.TrimSpace(paymentID) == "" {
		return "", errors.New("payment id is required")
	}
	var out ykPayment
	if err := y.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(paymentID), nil, "", &out); err != nil {
		return "", fmt.Errorf("get payment %s: %w", paymentID, err)
	}
	return out.Status, nil
}

func (y *YooKassa) do(ctx context.Context, method, path string, payload []byte, idempotenceKey string, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, y.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(y.shopID, y.secret)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotenceKey != "" {
		req.Header.Set("Idempotence-Key", idempotenceKey)
	}

	resp, err := y.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return fmt.Errorf("%w: read response: %v", ErrTransient, err)
	}

	if resp.StatusCode/100 != 2 {
		raw := buf.B
		if len(raw) > maxErrorBody {
			raw = raw[:maxErrorBody]
		}
		if isRetryableStatus(resp.StatusCode) {
			return fmt.Errorf("%w: status=%d body=%s", ErrTransient, resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := sonic.Unmarshal(buf.B, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func isRetryableStatus(statusCode int) bool {
	return statusCode == http.StatusRequestTimeout ||
		statusCode == http.StatusTooManyRequests ||
		statusCode >= http.StatusInternalServerError
}
