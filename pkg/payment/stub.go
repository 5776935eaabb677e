package payment

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// StubProvider is an in-memory gateway for development and tests. Charges
// start pending; SetStatus moves them the way a real gateway would.
type StubProvider struct {
	CheckoutBaseURL string

	mu        sync.Mutex
	payments  map[string]*PaymentResponse
	byKey     map[string]string // idempotence key → reference
	seq       atomic.Int64
	failNext  error
	loseReply error

	initiateCalls atomic.Int64
	getCalls      atomic.Int64
}

func NewStubProvider(checkoutBaseURL string) *StubProvider {
	if checkoutBaseURL == "" {
		checkoutBaseURL = "https://stub.local/checkout"
	}
	return &StubProvider{
		CheckoutBaseURL: checkoutBaseURL,
		payments:        make(map[string]*PaymentResponse),
		byKey:           make(map[string]string),
	}
}

func (s *StubProvider) InitiatePayment(ctx context.Context, req PaymentRequest) (*PaymentResponse, error) {
	s.initiateCalls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failNext; err != nil {
		s.failNext = nil
		return nil, err
	}
	if ref, ok := s.byKey[req.IdempotenceKey]; ok && req.IdempotenceKey != "" {
		out := *s.payments[ref]
		return &out, nil
	}
	ref := fmt.Sprintf("stub_%d", s.seq.Add(1))
	meta := make(map[string]string, len(req.Metadata))
	for k, v := range req.Metadata {
		meta[k] = v
	}
	p := &PaymentResponse{
		Reference:   ref,
		Status:      StatusPending,
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
		CheckoutURL: s.CheckoutBaseURL + "/" + ref,
		Metadata:    meta,
	}
	s.payments[ref] = p
	if req.IdempotenceKey != "" {
		s.byKey[req.IdempotenceKey] = ref
	}
	if err := s.loseReply; err != nil {
		s.loseReply = nil
		return nil, err
	}
	out := *p
	return &out, nil
}

func (s *StubProvider) GetPayment(ctx context.Context, reference string) (*PaymentResponse, error) {
	s.getCalls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[reference]
	if !ok {
		return nil, &APIError{StatusCode: 404, Code: "not_found", Description: "payment " + reference + " not found"}
	}
	out := *p
	return &out, nil
}

// SetStatus changes the authoritative status of a stub charge.
func (s *StubProvider) SetStatus(reference, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.payments[reference]; ok {
		p.Status = status
		p.Paid = status == StatusSucceeded
	}
}

// SetAmount overrides the reported amount of a stub charge.
func (s *StubProvider) SetAmount(reference string, amountMinor int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.payments[reference]; ok {
		p.AmountMinor = amountMinor
	}
}

// FailNext makes the next InitiatePayment return err.
func (s *StubProvider) FailNext(err error) {
	s.mu.Lock()
	s.failNext = err
	s.mu.Unlock()
}

// LoseNextReply makes the next InitiatePayment create the charge and then
// return err, the way a timed-out request can.
func (s *StubProvider) LoseNextReply(err error) {
	s.mu.Lock()
	s.loseReply = err
	s.mu.Unlock()
}

func (s *StubProvider) InitiateCalls() int64 { return s.initiateCalls.Load() }

func (s *StubProvider) GetCalls() int64 { return s.getCalls.Load() }
