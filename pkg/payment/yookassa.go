package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"talkinghead/pkg/money"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultYooKassaURL = "https://api.yookassa.ru/v3"

// YooKassaProvider talks to the YooKassa v3 API with Basic auth
// (shop id as login, secret key as password).
type YooKassaProvider struct {
	BaseURL   string
	ShopID    string
	SecretKey string
	client    *http.Client
	log       *zap.Logger
}

func NewYooKassaProvider(baseURL, shopID, secretKey string, timeout time.Duration, log *zap.Logger) *YooKassaProvider {
	if baseURL == "" {
		baseURL = defaultYooKassaURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &YooKassaProvider{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		ShopID:    shopID,
		SecretKey: secretKey,
		client:    &http.Client{Timeout: timeout},
		log:       log.Named("yookassa"),
	}
}

type ykAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type ykConfirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type ykReceiptItem struct {
	Description    string   `json:"description"`
	Quantity       string   `json:"quantity"`
	Amount         ykAmount `json:"amount"`
	VatCode        int      `json:"vat_code"`
	PaymentMode    string   `json:"payment_mode"`
	PaymentSubject string   `json:"payment_subject"`
}

type ykReceipt struct {
	Customer struct {
		Email string `json:"email,omitempty"`
	} `json:"customer"`
	Items []ykReceiptItem `json:"items"`
}

type ykCreateReq struct {
	Amount       ykAmount          `json:"amount"`
	Capture      bool              `json:"capture"`
	Confirmation ykConfirmation    `json:"confirmation"`
	Description  string            `json:"description,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Receipt      *ykReceipt        `json:"receipt,omitempty"`
}

type ykPayment struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	Paid         bool              `json:"paid"`
	Amount       ykAmount          `json:"amount"`
	Confirmation ykConfirmation    `json:"confirmation"`
	Metadata     map[string]string `json:"metadata"`
}

type ykError struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

// InitiatePayment creates a one-stage (auto-captured) redirect payment.
func (p *YooKassaProvider) InitiatePayment(ctx context.Context, req PaymentRequest) (*PaymentResponse, error) {
	if req.IdempotenceKey == "" {
		req.IdempotenceKey = uuid.NewString()
	}
	amount := ykAmount{Value: money.Format(req.AmountMinor), Currency: req.Currency}
	body := ykCreateReq{
		Amount:  amount,
		Capture: true,
		Confirmation: ykConfirmation{
			Type:      "redirect",
			ReturnURL: req.ReturnURL,
		},
		Description: req.Description,
		Metadata:    req.Metadata,
	}
	if req.CustomerEmail != "" {
		r := &ykReceipt{Items: []ykReceiptItem{{
			Description:    req.Description,
			Quantity:       "1.00",
			Amount:         amount,
			VatCode:        1,
			PaymentMode:    "full_payment",
			PaymentSubject: "service",
		}}}
		r.Customer.Email = req.CustomerEmail
		body.Receipt = r
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/payments", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Idempotence-Key", req.IdempotenceKey)
	p.log.Info("create payment",
		zap.String("amount", amount.Value),
		zap.String("idempotence_key", req.IdempotenceKey),
		zap.String("payment_id", req.Metadata[MetaPaymentID]))
	out, err := p.do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("yookassa create payment: %w", err)
	}
	return out, nil
}

// GetPayment fetches the current state of a payment straight from the API.
func (p *YooKassaProvider) GetPayment(ctx context.Context, reference string) (*PaymentResponse, error) {
	if reference == "" {
		return nil, fmt.Errorf("yookassa get payment: empty reference")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/payments/"+url.PathEscape(reference), nil)
	if err != nil {
		return nil, err
	}
	out, err := p.do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("yookassa get payment %s: %w", reference, err)
	}
	return out, nil
}

func (p *YooKassaProvider) do(req *http.Request) (*PaymentResponse, error) {
	auth := base64.StdEncoding.EncodeToString([]byte(p.ShopID + ":" + p.SecretKey))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var ye ykError
		if json.Unmarshal(respBody, &ye) == nil {
			apiErr.Code = ye.Code
			apiErr.Description = ye.Description
		} else if len(respBody) > 0 {
			apiErr.Description = string(respBody)
		}
		p.log.Warn("api error",
			zap.Int("status", resp.StatusCode),
			zap.String("code", apiErr.Code),
			zap.String("description", apiErr.Description))
		return nil, apiErr
	}
	var yp ykPayment
	if err := json.Unmarshal(respBody, &yp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	amountMinor, err := money.Parse(yp.Amount.Value)
	if err != nil && yp.Amount.Value != "" {
		return nil, fmt.Errorf("decode amount %q: %w", yp.Amount.Value, err)
	}
	return &PaymentResponse{
		Reference:   yp.ID,
		Status:      yp.Status,
		Paid:        yp.Paid,
		AmountMinor: amountMinor,
		Currency:    yp.Amount.Currency,
		CheckoutURL: yp.Confirmation.ConfirmationURL,
		Metadata:    yp.Metadata,
	}, nil
}
