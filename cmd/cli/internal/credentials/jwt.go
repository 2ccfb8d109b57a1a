package credentials

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgmembers/internal/auth"
)

const (
	// TokenExpiry is the duration after which a token expires.
	TokenExpiry = 1 * time.Hour

	// Issuer identifies tokens as CLI-generated.
	Issuer = "orgctl"
)

// JWTSigner creates and signs JWTs for API authentication.
type JWTSigner struct {
	store *Store
}

// NewJWTSigner creates a new JWT signer.
func NewJWTSigner(store *Store) *JWTSigner {
	return &JWTSigner{store: store}
}

// SignToken creates a signed JWT asserting the identity of the named
// credential.
func (s *JWTSigner) SignToken(credName string, audience string) (string, error) {
	cred, err := s.store.Get(credName)
	if err != nil {
		return "", err
	}

	privateKey, err := s.store.LoadPrivateKey(credName)
	if err != nil {
		return "", fmt.Errorf("failed to load private key: %w", err)
	}

	tokenString, err := SignTokenWithKey(privateKey, cred, audience)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	log.Debug().
		Str("credName", credName).
		Str("fingerprint", cred.Fingerprint).
		Str("audience", audience).
		Msg("signed JWT token")

	return tokenString, nil
}

// SignTokenWithKey creates a signed JWT for cred using a provided private key.
// An empty audience omits the aud claim.
func SignTokenWithKey(privateKey *ecdsa.PrivateKey, cred *Credential, audience string) (string, error) {
	now := time.Now()
	claims := auth.Claims{
		Email: cred.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   cred.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenExpiry)),
		},
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = cred.Fingerprint

	return token.SignedString(privateKey)
}
