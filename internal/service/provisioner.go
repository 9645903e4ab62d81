package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/punchamoorthee/inapppay/internal/billing"
	"github.com/punchamoorthee/inapppay/internal/domain"
)

const provisionLockTTL = 2 * time.Minute

type Provisioner struct {
	cfg     Config
	billing billing.Client
	icons   IconResolver
	locker  Locker
	logger  *slog.Logger
}

type ProvisionerDeps struct {
	Config  Config
	Billing billing.Client
	// Icons may be nil, in which case no icon is sent.
	Icons IconResolver
	// Locker may be nil; the status guard alone then protects against
	// double provisioning.
	Locker Locker
	Logger *slog.Logger
}

func NewProvisioner(deps ProvisionerDeps) *Provisioner {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{
		cfg:     deps.Config.withDefaults(),
		billing: deps.Billing,
		icons:   deps.Icons,
		locker:  deps.Locker,
		logger:  logger.With("module", "service.provisioner", "layer", "application"),
	}
}

// StartPay registers a billing configuration for a pending transaction.
// Transactions that are no longer pending are left alone, so the task may be
// delivered any number of times.
func (p *Provisioner) StartPay(ctx context.Context, args StartPayArgs) error {
	sellerUUID, err := p.sellerUUID(args.Notes)
	if err != nil {
		provisionTotal.WithLabelValues("invalid").Inc()
		return fmt.Errorf("start_pay %s: %w", args.TransactionUUID, err)
	}

	if p.locker != nil {
		release, ok, err := p.locker.Acquire(ctx, "start_pay:"+args.TransactionUUID, provisionLockTTL)
		if err != nil {
			return fmt.Errorf("start_pay %s: acquire lock: %w", args.TransactionUUID, err)
		}
		if !ok {
			p.logger.InfoContext(ctx, "provisioning already in progress",
				"operation", "start_pay",
				"outcome", "skipped",
				"transaction_uuid", args.TransactionUUID,
			)
			provisionTotal.WithLabelValues("skipped").Inc()
			return nil
		}
		defer release()
	}

	trans, err := p.billing.GetTransaction(ctx, args.TransactionUUID)
	if err != nil {
		provisionTotal.WithLabelValues("failed").Inc()
		return err
	}
	if trans.Status != domain.StatusPending {
		p.logger.InfoContext(ctx, "transaction already started",
			"operation", "start_pay",
			"outcome", "skipped",
			"transaction_uuid", trans.UUID,
			"status", string(trans.Status),
		)
		provisionTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	cfg, err := p.provision(ctx, args, sellerUUID)
	if err != nil {
		p.logger.ErrorContext(ctx, "provisioning failed",
			"operation", "start_pay",
			"outcome", "failure",
			"transaction_uuid", args.TransactionUUID,
			"seller_uuid", sellerUUID,
			"error", err,
		)
		provisionTotal.WithLabelValues("failed").Inc()
		return err
	}

	p.logger.InfoContext(ctx, "transaction provisioned",
		"operation", "start_pay",
		"outcome", "success",
		"transaction_uuid", args.TransactionUUID,
		"billing_config_id", cfg.BillingConfigurationID.String(),
	)
	provisionTotal.WithLabelValues("provisioned").Inc()
	return nil
}

func (p *Provisioner) provision(ctx context.Context, args StartPayArgs, sellerUUID string) (billing.BillingConfig, error) {
	req := args.Notes.PayRequest.Request

	seller, err := p.billing.GetSeller(ctx, sellerUUID)
	if err != nil {
		return billing.BillingConfig{}, err
	}

	product, err := p.product(ctx, seller, args.Notes.IssuerKey, req)
	if err != nil {
		return billing.BillingConfig{}, err
	}

	pricePoint := req.PricePoint.String()
	if pricePoint == "" {
		return billing.BillingConfig{}, fmt.Errorf("pay request has no pricePoint: %w", domain.ErrUnknownPricePoint)
	}
	prices, err := p.billing.GetPrices(ctx, pricePoint)
	if err != nil {
		return billing.BillingConfig{}, err
	}

	return p.billing.CreateBillingConfig(ctx, billing.BillingRequest{
		TransactionUUID: args.TransactionUUID,
		BuyerUUID:       args.BuyerUUID,
		Seller:          seller.ResourceURI,
		Product:         product.ResourceURI,
		PricePoint:      pricePoint,
		Prices:          prices,
		IconURL:         p.iconURL(ctx, args.TransactionUUID, req),
		Name:            req.Name,
		Description:     req.Description,
	})
}

// sellerUUID is the issuer key, except for the marketplace which sells on
// behalf of other sellers and names the real one in productData.
func (p *Provisioner) sellerUUID(notes domain.Notes) (string, error) {
	if notes.IssuerKey == "" {
		return "", domain.ErrMissingIssuerKey
	}
	if p.cfg.MarketplaceKey == "" || notes.IssuerKey != p.cfg.MarketplaceKey {
		return notes.IssuerKey, nil
	}
	return SellerFromProductData(notes.PayRequest.Request.ProductData)
}

// SellerFromProductData extracts seller_uuid from a URL-encoded productData
// string such as "seller_uuid=abc&app=123".
func SellerFromProductData(productData string) (string, error) {
	if strings.TrimSpace(productData) == "" {
		return "", fmt.Errorf("%w: empty", domain.ErrMalformedProductData)
	}
	values, err := url.ParseQuery(productData)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrMalformedProductData, err)
	}
	seller := strings.TrimSpace(values.Get("seller_uuid"))
	if seller == "" {
		return "", fmt.Errorf("%w: no seller_uuid in %q", domain.ErrMalformedProductData, productData)
	}
	return seller, nil
}

func (p *Provisioner) product(ctx context.Context, seller billing.Seller, issuerKey string, req domain.PurchaseRequest) (billing.Product, error) {
	externalID := req.ID
	if externalID == "" {
		externalID = issuerKey + ":" + req.Name
	}
	product, err := p.billing.GetProduct(ctx, seller.ResourceURI, externalID)
	if err == nil {
		return product, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return billing.Product{}, err
	}
	return p.billing.CreateProduct(ctx, billing.ProductRequest{
		Seller:     seller.ResourceURI,
		ExternalID: externalID,
		Name:       req.Name,
	})
}

// iconURL never fails: a missing icon must not block a purchase.
func (p *Provisioner) iconURL(ctx context.Context, transactionUUID string, req domain.PurchaseRequest) string {
	if !p.cfg.IconsEnabled || p.icons == nil {
		return ""
	}
	u, err := p.icons.Resolve(ctx, req.Icons)
	if err != nil {
		p.logger.WarnContext(ctx, "icon lookup failed; continuing without icon",
			"operation", "resolve_icon",
			"outcome", "failure",
			"transaction_uuid", transactionUUID,
			"error", err,
		)
		return ""
	}
	return u
}
