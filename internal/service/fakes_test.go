package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/punchamoorthee/inapppay/internal/billing"
	"github.com/punchamoorthee/inapppay/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	testIssuer      = "issuer-key-1"
	testSecret      = "issuer-secret"
	testMarketplace = "marketplace-key"
)

// fakeBilling records every call so tests can assert on network traffic.
type fakeBilling struct {
	mu sync.Mutex

	transactions map[string]domain.Transaction
	sellers      map[string]billing.Seller
	products     map[string]billing.Product
	prices       map[string][]billing.Price
	secrets      map[string]string

	iconErr     error
	productErr  error
	billingErr  error
	billingReqs []billing.BillingRequest
	failures    []string
	calls       []string
}

func newFakeBilling() *fakeBilling {
	return &fakeBilling{
		transactions: map[string]domain.Transaction{},
		sellers: map[string]billing.Seller{
			testIssuer: {UUID: testIssuer, ResourceURI: "/generic/seller/1/"},
		},
		products: map[string]billing.Product{},
		prices: map[string][]billing.Price{
			"10": {{Amount: decimal.RequireFromString("0.99"), Currency: "USD"}},
		},
		secrets: map[string]string{testIssuer: testSecret},
	}
}

func (f *fakeBilling) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeBilling) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBilling) GetTransaction(_ context.Context, uuid string) (domain.Transaction, error) {
	f.record("GetTransaction")
	t, ok := f.transactions[uuid]
	if !ok {
		return domain.Transaction{}, domain.ErrNotFound
	}
	return t, nil
}

func (f *fakeBilling) GetSeller(_ context.Context, uuid string) (billing.Seller, error) {
	f.record("GetSeller:" + uuid)
	s, ok := f.sellers[uuid]
	if !ok {
		return billing.Seller{}, domain.ErrSellerNotConfigured
	}
	return s, nil
}

func (f *fakeBilling) GetProduct(_ context.Context, sellerURI, externalID string) (billing.Product, error) {
	f.record("GetProduct")
	if f.productErr != nil {
		return billing.Product{}, f.productErr
	}
	p, ok := f.products[sellerURI+"|"+externalID]
	if !ok {
		return billing.Product{}, domain.ErrNotFound
	}
	return p, nil
}

func (f *fakeBilling) CreateProduct(_ context.Context, req billing.ProductRequest) (billing.Product, error) {
	f.record("CreateProduct")
	p := billing.Product{ExternalID: req.ExternalID, Seller: req.Seller, ResourceURI: "/generic/product/7/"}
	f.products[req.Seller+"|"+req.ExternalID] = p
	return p, nil
}

func (f *fakeBilling) GetPrices(_ context.Context, pricePoint string) ([]billing.Price, error) {
	f.record("GetPrices")
	p, ok := f.prices[pricePoint]
	if !ok {
		return nil, domain.ErrUnknownPricePoint
	}
	return p, nil
}

func (f *fakeBilling) CreateBillingConfig(_ context.Context, req billing.BillingRequest) (billing.BillingConfig, error) {
	f.record("CreateBillingConfig")
	if f.billingErr != nil {
		return billing.BillingConfig{}, f.billingErr
	}
	f.mu.Lock()
	f.billingReqs = append(f.billingReqs, req)
	f.mu.Unlock()
	return billing.BillingConfig{BillingConfigurationID: json.Number("123"), ResourcePK: json.Number("9")}, nil
}

func (f *fakeBilling) GetProductSecret(_ context.Context, issuerKey string) (string, error) {
	f.record("GetProductSecret")
	s, ok := f.secrets[issuerKey]
	if !ok {
		return "", domain.ErrNotFound
	}
	return s, nil
}

func (f *fakeBilling) GetIcon(context.Context, billing.IconKey) (billing.Icon, error) {
	f.record("GetIcon")
	return billing.Icon{}, f.iconErr
}

func (f *fakeBilling) CreateIcon(context.Context, billing.IconKey) error {
	f.record("CreateIcon")
	return nil
}

func (f *fakeBilling) ReportNotifyFailure(_ context.Context, transactionUUID, reason string) error {
	f.record("ReportNotifyFailure")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, transactionUUID+": "+reason)
	return nil
}

type fakeIcons struct {
	url   string
	err   error
	calls int
}

func (f *fakeIcons) Resolve(context.Context, map[string]string) (string, error) {
	f.calls++
	return f.url, f.err
}

type fakeStore struct {
	mu      sync.Mutex
	notices map[string]domain.Notice
	saves   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{notices: map[string]domain.Notice{}}
}

func (s *fakeStore) SaveNotice(_ context.Context, n domain.Notice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.notices[n.ID] = n
	return nil
}

func (s *fakeStore) get(id string) (domain.Notice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notices[id]
	return n, ok
}

type fakeEscalator struct {
	mu    sync.Mutex
	calls []string
}

func (e *fakeEscalator) NotifyFailure(_ context.Context, transactionUUID, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, transactionUUID+": "+reason)
	return nil
}

func (e *fakeEscalator) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

type scheduled struct {
	name    string
	payload any
}

type fakeScheduler struct {
	tasks []scheduled
	err   error
}

func (s *fakeScheduler) Enqueue(_ context.Context, name string, payload any) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.tasks = append(s.tasks, scheduled{name: name, payload: payload})
	return "task-" + name, nil
}

type fakeLocker struct {
	held     map[string]bool
	released []string
}

func (l *fakeLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	if l.held[key] {
		return nil, false, nil
	}
	if l.held == nil {
		l.held = map[string]bool{}
	}
	l.held[key] = true
	return func() {
		delete(l.held, key)
		l.released = append(l.released, key)
	}, true, nil
}

func payRequest(productData, postback, chargeback string) domain.PayRequest {
	raw := map[string]any{
		"id":            "app-item-1",
		"pricePoint":    10,
		"name":          "Magic Sword",
		"description":   "A sword",
		"productData":   productData,
		"postbackURL":   postback,
		"chargebackURL": chargeback,
		"icons":         map[string]string{"64": "https://issuer.example/64.png"},
		"extra":         "kept",
	}
	b, err := json.Marshal(raw)
	if err != nil {
		panic(err)
	}
	var req domain.PurchaseRequest
	if err := json.Unmarshal(b, &req); err != nil {
		panic(err)
	}
	return domain.PayRequest{Issuer: testIssuer, Audience: "marketplace.example", Type: "mozilla/payments/pay/v1", Request: req}
}
