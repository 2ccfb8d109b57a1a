package auth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the JWT claims carrying the caller identity.
// The subject is the user id.
type Claims struct {
	Email       string   `json:"email"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier validates ES256 bearer tokens against a single public key.
type JWTVerifier struct {
	publicKey *ecdsa.PublicKey
	issuer    string
	audience  string
	leeway    time.Duration
}

// VerifierOption configures a JWTVerifier.
type VerifierOption func(*JWTVerifier)

// WithAudience requires tokens to carry the given audience.
func WithAudience(audience string) VerifierOption {
	return func(v *JWTVerifier) {
		v.audience = audience
	}
}

// WithLeeway allows for clock skew when validating time based claims.
func WithLeeway(leeway time.Duration) VerifierOption {
	return func(v *JWTVerifier) {
		v.leeway = leeway
	}
}

// NewJWTVerifier creates a verifier from a PEM-encoded ECDSA public key.
// An empty issuer disables issuer validation.
func NewJWTVerifier(publicKeyPEM, issuer string, opts ...VerifierOption) (*JWTVerifier, error) {
	if publicKeyPEM == "" {
		return nil, errors.New("JWT public key not provided")
	}

	publicKey, err := jwt.ParseECPublicKeyFromPEM([]byte(publicKeyPEM))
	if err != nil {
		return nil, err
	}

	v := &JWTVerifier{
		publicKey: publicKey,
		issuer:    issuer,
		leeway:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(v)
	}

	return v, nil
}

// Verify checks the token signature and registered claims and returns the
// caller identity it carries.
func (v *JWTVerifier) Verify(tokenString string) (Identity, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return v.publicKey, nil
	}, parserOpts...)
	if err != nil {
		return Identity{}, err
	}

	if !token.Valid {
		return Identity{}, errors.New("invalid token")
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid sub UUID: %w", err)
	}

	if claims.Email == "" {
		return Identity{}, errors.New("missing email claim")
	}

	return Identity{
		ID:     id,
		Email:  claims.Email,
		Scopes: claims.Permissions,
	}, nil
}
