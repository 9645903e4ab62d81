package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/punchamoorthee/inapppay/internal/domain"
)

type listMeta struct {
	TotalCount int `json:"total_count"`
}

type listResponse[T any] struct {
	Meta    listMeta `json:"meta"`
	Objects []T      `json:"objects"`
}

// HTTPClient implements Client against the billing REST API.
type HTTPClient struct {
	rc     *resty.Client
	logger *slog.Logger
}

// NewHTTPClient builds a client for baseURL. Every call is bounded by timeout.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
	return NewHTTPClientWith(rc, logger)
}

// NewHTTPClientWith wraps an already configured resty client.
func NewHTTPClientWith(rc *resty.Client, logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{rc: rc, logger: logger.With("module", "billing", "layer", "adapter")}
}

func (c *HTTPClient) GetTransaction(ctx context.Context, uuid string) (domain.Transaction, error) {
	var out listResponse[domain.Transaction]
	if err := c.get(ctx, "/generic/transaction/", map[string]string{"uuid": uuid}, &out); err != nil {
		return domain.Transaction{}, err
	}
	if len(out.Objects) == 0 {
		return domain.Transaction{}, fmt.Errorf("transaction %s: %w", uuid, domain.ErrNotFound)
	}
	return out.Objects[0], nil
}

func (c *HTTPClient) GetSeller(ctx context.Context, uuid string) (Seller, error) {
	var out listResponse[Seller]
	if err := c.get(ctx, "/generic/seller/", map[string]string{"uuid": uuid}, &out); err != nil {
		return Seller{}, err
	}
	if out.Meta.TotalCount == 0 || len(out.Objects) == 0 {
		return Seller{}, fmt.Errorf("seller %s: %w", uuid, domain.ErrSellerNotConfigured)
	}
	return out.Objects[0], nil
}

func (c *HTTPClient) GetProduct(ctx context.Context, sellerURI, externalID string) (Product, error) {
	var out listResponse[Product]
	q := map[string]string{"seller": sellerURI, "external_id": externalID}
	if err := c.get(ctx, "/generic/product/", q, &out); err != nil {
		return Product{}, err
	}
	if len(out.Objects) == 0 {
		return Product{}, fmt.Errorf("product %s: %w", externalID, domain.ErrNotFound)
	}
	return out.Objects[0], nil
}

func (c *HTTPClient) CreateProduct(ctx context.Context, req ProductRequest) (Product, error) {
	var out Product
	if err := c.post(ctx, "/generic/product/", req, &out); err != nil {
		return Product{}, err
	}
	return out, nil
}

func (c *HTTPClient) GetPrices(ctx context.Context, pricePoint string) ([]Price, error) {
	var out struct {
		Prices []Price `json:"prices"`
	}
	err := c.get(ctx, "/generic/price/"+pricePoint+"/", nil, &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("price point %s: %w", pricePoint, domain.ErrUnknownPricePoint)
	}
	if err != nil {
		return nil, err
	}
	if len(out.Prices) == 0 {
		return nil, fmt.Errorf("price point %s has no prices: %w", pricePoint, domain.ErrUnknownPricePoint)
	}
	return out.Prices, nil
}

func (c *HTTPClient) CreateBillingConfig(ctx context.Context, req BillingRequest) (BillingConfig, error) {
	var out BillingConfig
	if err := c.post(ctx, "/bango/billing/", req, &out); err != nil {
		return BillingConfig{}, err
	}
	return out, nil
}

func (c *HTTPClient) GetProductSecret(ctx context.Context, issuerKey string) (string, error) {
	var out listResponse[struct {
		Secret string `json:"secret"`
	}]
	if err := c.get(ctx, "/generic/product/", map[string]string{"public_id": issuerKey}, &out); err != nil {
		return "", err
	}
	if len(out.Objects) == 0 {
		return "", fmt.Errorf("secret for %s: %w", issuerKey, domain.ErrNotFound)
	}
	return out.Objects[0].Secret, nil
}

func (c *HTTPClient) GetIcon(ctx context.Context, key IconKey) (Icon, error) {
	var out listResponse[Icon]
	q := map[string]string{
		"ext_url":  key.ExtURL,
		"size":     strconv.Itoa(key.Size),
		"ext_size": strconv.Itoa(key.ExtSize),
	}
	if err := c.get(ctx, "/webpay/icon/", q, &out); err != nil {
		return Icon{}, err
	}
	if len(out.Objects) == 0 {
		return Icon{}, fmt.Errorf("icon %s: %w", key.ExtURL, domain.ErrNotFound)
	}
	return out.Objects[0], nil
}

func (c *HTTPClient) CreateIcon(ctx context.Context, key IconKey) error {
	return c.post(ctx, "/webpay/icon/", key, nil)
}

func (c *HTTPClient) ReportNotifyFailure(ctx context.Context, transactionUUID, reason string) error {
	body := map[string]string{"transaction_uuid": transactionUUID, "error": reason}
	return c.post(ctx, "/generic/notice_failure/", body, nil)
}

func (c *HTTPClient) get(ctx context.Context, path string, query map[string]string, out any) error {
	req := c.rc.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	resp, err := req.Get(path)
	return c.decode(ctx, http.MethodGet, path, resp, err, out)
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	resp, err := c.rc.R().SetContext(ctx).SetBody(body).Post(path)
	return c.decode(ctx, http.MethodPost, path, resp, err, out)
}

func (c *HTTPClient) decode(ctx context.Context, method, path string, resp *resty.Response, err error, out any) error {
	if err != nil {
		c.logger.WarnContext(ctx, "billing request failed",
			"operation", method+" "+path,
			"outcome", "failure",
			"error", err,
		)
		return fmt.Errorf("billing %s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}
	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("billing %s %s: decode response: %w", method, path, err)
	}
	return nil
}
