package session

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultAudience = "appstoreconnect-v1"
	DefaultTokenTTL = 20 * time.Minute
)

// JWTRenewer mints short-lived ES256 bearer tokens from an API key, the
// way App Store Connect style APIs expect them: kid header, iss, aud, exp.
type JWTRenewer struct {
	KeyID    string
	IssuerID string
	Key      *ecdsa.PrivateKey
	Audience string        // "" => DefaultAudience
	TTL      time.Duration // 0 => DefaultTokenTTL

	now func() time.Time
}

var _ Renewer = (*JWTRenewer)(nil)

// NewJWTRenewer parses a PEM encoded EC private key (SEC 1 or PKCS #8,
// e.g. an AuthKey_XXXX.p8 file).
func NewJWTRenewer(keyID, issuerID string, pemKey []byte) (*JWTRenewer, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM(pemKey)
	if err != nil {
		return nil, fmt.Errorf("%w: key %s issuer %s: %w", ErrInvalidKey, keyID, issuerID, err)
	}
	return &JWTRenewer{KeyID: keyID, IssuerID: issuerID, Key: key}, nil
}

// Renew returns "Bearer <token>".
func (r *JWTRenewer) Renew(context.Context) (string, error) {
	if r.Key == nil {
		return "", fmt.Errorf("%w: key %s has no private key", ErrInvalidKey, r.KeyID)
	}
	now := time.Now
	if r.now != nil {
		now = r.now
	}
	ttl := r.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	aud := r.Audience
	if aud == "" {
		aud = DefaultAudience
	}

	// aud stays a plain string; RegisteredClaims would encode it as an array
	tok := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": r.IssuerID,
		"aud": aud,
		"exp": now().Add(ttl).Unix(),
	})
	tok.Header["kid"] = r.KeyID

	signed, err := tok.SignedString(r.Key)
	if err != nil {
		return "", fmt.Errorf("%w: key %s issuer %s: %w", ErrInvalidKey, r.KeyID, r.IssuerID, err)
	}
	return "Bearer " + signed, nil
}
