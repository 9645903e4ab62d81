// Package billing talks to the remote billing, pricing and product catalog
// API. The rest of the service depends only on the Client interface.
package billing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/punchamoorthee/inapppay/internal/domain"
	"github.com/shopspring/decimal"
)

// Client has one method per remote operation.
type Client interface {
	GetTransaction(ctx context.Context, uuid string) (domain.Transaction, error)
	// GetSeller returns domain.ErrSellerNotConfigured when no seller exists.
	GetSeller(ctx context.Context, uuid string) (Seller, error)
	// GetProduct returns domain.ErrNotFound when the seller has no such product.
	GetProduct(ctx context.Context, sellerURI, externalID string) (Product, error)
	CreateProduct(ctx context.Context, req ProductRequest) (Product, error)
	// GetPrices returns domain.ErrUnknownPricePoint for unknown tiers.
	GetPrices(ctx context.Context, pricePoint string) ([]Price, error)
	CreateBillingConfig(ctx context.Context, req BillingRequest) (BillingConfig, error)
	// GetProductSecret returns the signing secret registered for an issuer.
	GetProductSecret(ctx context.Context, issuerKey string) (string, error)
	// GetIcon returns domain.ErrNotFound on a cache miss.
	GetIcon(ctx context.Context, key IconKey) (Icon, error)
	CreateIcon(ctx context.Context, key IconKey) error
	ReportNotifyFailure(ctx context.Context, transactionUUID, reason string) error
}

type Seller struct {
	ResourcePK  json.Number `json:"resource_pk"`
	UUID        string      `json:"uuid"`
	ResourceURI string      `json:"resource_uri"`
}

type Product struct {
	ResourcePK  json.Number `json:"resource_pk"`
	ExternalID  string      `json:"external_id"`
	Seller      string      `json:"seller"`
	ResourceURI string      `json:"resource_uri"`
}

type ProductRequest struct {
	Seller     string `json:"seller"`
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
}

type Price struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// BillingRequest registers a billing configuration for one transaction.
// IconURL is omitted from the payload when empty.
type BillingRequest struct {
	TransactionUUID string  `json:"transaction_uuid"`
	BuyerUUID       string  `json:"user_uuid,omitempty"`
	Seller          string  `json:"seller"`
	Product         string  `json:"product"`
	PricePoint      string  `json:"price_point"`
	Prices          []Price `json:"prices"`
	IconURL         string  `json:"icon_url,omitempty"`
	Name            string  `json:"name"`
	Description     string  `json:"description"`
}

type BillingConfig struct {
	BillingConfigurationID json.Number `json:"billingConfigurationId"`
	ResourcePK             json.Number `json:"resource_pk"`
	ResourceURI            string      `json:"resource_uri,omitempty"`
}

// IconKey identifies a cached icon: the issuer's URL, the size we serve and
// the size of the source image.
type IconKey struct {
	ExtURL  string `json:"ext_url"`
	Size    int    `json:"size"`
	ExtSize int    `json:"ext_size"`
}

type Icon struct {
	URL string `json:"url"`
}

// APIError is returned for unexpected non-2xx responses. It is not
// classified and propagates to the task runner as is.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("billing %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}
