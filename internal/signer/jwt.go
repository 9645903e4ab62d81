// Package signer produces and verifies the JWTs carried by issuer notices.
// A token can be checked by anyone holding the issuer's shared secret or the
// public half of its RSA key; the signer keeps no state between calls.
package signer

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrSigning          = errors.New("signing failed")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrExpired          = errors.New("token expired")
)

// Key is either a shared secret (HS256) or an RSA private key (RS256).
type Key struct {
	Secret     []byte
	PrivateKey *rsa.PrivateKey
}

// SecretKey wraps a shared secret.
func SecretKey(secret string) Key {
	return Key{Secret: []byte(secret)}
}

// ParseKey turns the secret stored for an issuer into a signing key. PEM
// encoded RSA private keys select RS256, anything else is an HS256 secret.
func ParseKey(raw string) (Key, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Key{}, fmt.Errorf("%w: empty key", ErrSigning)
	}
	if !strings.HasPrefix(raw, "-----BEGIN") {
		return SecretKey(raw), nil
	}
	priv, err := parseRSAPrivate(raw)
	if err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return Key{PrivateKey: priv}, nil
}

func (k Key) method() (jwt.SigningMethod, any, error) {
	switch {
	case k.PrivateKey != nil:
		return jwt.SigningMethodRS256, k.PrivateKey, nil
	case len(k.Secret) > 0:
		return jwt.SigningMethodHS256, k.Secret, nil
	default:
		return nil, nil, fmt.Errorf("%w: no key material", ErrSigning)
	}
}

func (k Key) verificationKey() any {
	if k.PrivateKey != nil {
		return &k.PrivateKey.PublicKey
	}
	return k.Secret
}

// Sign encodes claims into a compact JWT.
func Sign(claims map[string]any, key Key) (string, error) {
	method, signingKey, err := key.method()
	if err != nil {
		return "", err
	}
	token := jwt.NewWithClaims(method, jwt.MapClaims(claims))
	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of raw and returns its claims.
func Verify(raw string, key Key) (map[string]any, error) {
	method, _, err := key.method()
	if err != nil {
		return nil, err
	}
	parsed, err := jwt.Parse(raw, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != method.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return key.verificationKey(), nil
	}, jwt.WithValidMethods([]string{method.Alg()}), jwt.WithLeeway(30*time.Second))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidSignature
	}
	return map[string]any(claims), nil
}

func parseRSAPrivate(raw string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(raw))
	if block == nil {
		return nil, errors.New("invalid private PEM")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	keyAny, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := keyAny.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not RSA")
	}
	return key, nil
}
