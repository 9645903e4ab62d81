package domain

import "errors"

var (
	// ErrNotFound is returned by collaborators when a remote object does not exist.
	ErrNotFound = errors.New("not found")

	// Integration errors. These are caller or configuration bugs and are
	// never retried.
	ErrSellerNotConfigured  = errors.New("seller not configured")
	ErrUnknownPricePoint    = errors.New("unknown price point")
	ErrMalformedProductData = errors.New("malformed productData")
	ErrMissingIssuerKey     = errors.New("notes have no issuer_key")
	ErrMissingCallbackURL   = errors.New("pay request has no callback url")
	ErrInvalidReason        = errors.New("invalid chargeback reason")
	ErrInvalidSimulation    = errors.New("invalid simulation")
)
