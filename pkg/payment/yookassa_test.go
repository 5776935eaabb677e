package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestYooKassaInitiatePayment(t *testing.T) {
	var got ykCreateReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/payments" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "shop" || pass != "secret" {
			t.Errorf("basic auth = %q/%q/%v", user, pass, ok)
		}
		if r.Header.Get("Idempotence-Key") != "key-1" {
			t.Errorf("idempotence key = %q", r.Header.Get("Idempotence-Key"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"2c5d-1","status":"pending","paid":false,
			"amount":{"value":"9.00","currency":"RUB"},
			"confirmation":{"type":"redirect","confirmation_url":"https://yoomoney.ru/checkout/2c5d-1"},
			"metadata":{"payment_id":"7"}}`))
	}))
	defer srv.Close()

	p := NewYooKassaProvider(srv.URL, "shop", "secret", time.Second, nil)
	resp, err := p.InitiatePayment(context.Background(), PaymentRequest{
		AmountMinor:    900,
		Currency:       "RUB",
		Description:    "Scenario",
		ReturnURL:      "https://example.test/return",
		IdempotenceKey: "key-1",
		CustomerEmail:  "a@example.test",
		Metadata:       map[string]string{MetaPaymentID: "7"},
	})
	if err != nil {
		t.Fatalf("InitiatePayment: %v", err)
	}
	if resp.Reference != "2c5d-1" || resp.CheckoutURL != "https://yoomoney.ru/checkout/2c5d-1" || resp.AmountMinor != 900 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if got.Amount.Value != "9.00" || !got.Capture || got.Confirmation.Type != "redirect" {
		t.Fatalf("unexpected request %+v", got)
	}
	if got.Receipt == nil || got.Receipt.Customer.Email != "a@example.test" || got.Receipt.Items[0].VatCode != 1 {
		t.Fatalf("receipt not attached: %+v", got.Receipt)
	}
}

func TestYooKassaErrorCarriesDescription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","code":"invalid_request","description":"Amount is too small"}`))
	}))
	defer srv.Close()

	p := NewYooKassaProvider(srv.URL, "shop", "secret", time.Second, nil)
	_, err := p.InitiatePayment(context.Background(), PaymentRequest{AmountMinor: 1, Currency: "RUB"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Description != "Amount is too small" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestYooKassaGetPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/payments/abc" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"id":"abc","status":"succeeded","paid":true,"amount":{"value":"254.00","currency":"RUB"}}`))
	}))
	defer srv.Close()

	p := NewYooKassaProvider(srv.URL, "shop", "secret", time.Second, nil)
	resp, err := p.GetPayment(context.Background(), "abc")
	if err != nil {
		t.Fatalf("GetPayment: %v", err)
	}
	if resp.Status != StatusSucceeded || !resp.Paid || resp.AmountMinor != 25400 {
		t.Fatalf("unexpected %+v", resp)
	}
}

func TestYooKassaTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	p := NewYooKassaProvider(srv.URL, "shop", "secret", 20*time.Millisecond, nil)
	if _, err := p.GetPayment(context.Background(), "abc"); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestStubProviderLifecycle(t *testing.T) {
	s := NewStubProvider("")
	resp, err := s.InitiatePayment(context.Background(), PaymentRequest{AmountMinor: 1000, Currency: "RUB"})
	if err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetPayment(context.Background(), resp.Reference)
	if got.Status != StatusPending {
		t.Fatalf("status = %s", got.Status)
	}
	s.SetStatus(resp.Reference, StatusSucceeded)
	got, _ = s.GetPayment(context.Background(), resp.Reference)
	if got.Status != StatusSucceeded || !got.Paid {
		t.Fatalf("status = %s paid=%v", got.Status, got.Paid)
	}
	s.FailNext(errors.New("boom"))
	if _, err := s.InitiatePayment(context.Background(), PaymentRequest{}); err == nil {
		t.Fatal("expected scripted failure")
	}
	if s.InitiateCalls() != 2 || s.GetCalls() != 2 {
		t.Fatalf("calls = %d/%d", s.InitiateCalls(), s.GetCalls())
	}
}

func TestStubProviderIdempotenceKey(t *testing.T) {
	s := NewStubProvider("")
	req := PaymentRequest{AmountMinor: 900, Currency: "RUB", IdempotenceKey: "k-1"}

	s.LoseNextReply(errors.New("timeout"))
	if _, err := s.InitiatePayment(context.Background(), req); err == nil {
		t.Fatal("expected the lost reply to surface as an error")
	}
	first, err := s.InitiatePayment(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	again, err := s.InitiatePayment(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if first.Reference != again.Reference || first.Reference != "stub_1" {
		t.Fatalf("same key produced %s and %s", first.Reference, again.Reference)
	}
	other, _ := s.InitiatePayment(context.Background(), PaymentRequest{AmountMinor: 900, IdempotenceKey: "k-2"})
	if other.Reference == first.Reference {
		t.Fatal("different keys share a charge")
	}
}

func TestIsRejected(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"bad request", &APIError{StatusCode: 400, Code: "invalid_request"}, true},
		{"wrapped unauthorized", fmt.Errorf("yookassa create payment: %w", &APIError{StatusCode: 401}), true},
		{"server error", &APIError{StatusCode: 500}, false},
		{"transport", errors.New("context deadline exceeded"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		if got := IsRejected(tt.err); got != tt.want {
			t.Errorf("%s: IsRejected = %v, want %v", tt.name, got, tt.want)
		}
	}
}
