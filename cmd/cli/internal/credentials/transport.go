package credentials

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// AuthTransport adds a self-signed bearer JWT to every request.
type AuthTransport struct {
	signer   *JWTSigner
	credName string
	audience string
	base     http.RoundTripper

	// Token caching
	mu          sync.RWMutex
	cachedToken string
	tokenExpiry time.Time
}

// NewAuthTransport creates a transport that authenticates requests.
// credName is the credential to use (empty string uses default).
// audience is placed in the aud claim and may be empty.
func NewAuthTransport(store *Store, credName, audience string, base http.RoundTripper) (*AuthTransport, error) {
	if credName == "" {
		defaultCred, err := store.GetDefault()
		if err != nil {
			if errors.Is(err, ErrNoDefaultCredential) {
				return nil, fmt.Errorf("no credential specified and no default set\n\n" +
					"Either specify a credential with --credential or create one:\n" +
					"  orgctl credentials init <name> --email <email>")
			}
			return nil, fmt.Errorf("failed to get default credential: %w", err)
		}
		credName = defaultCred.Name
	}

	if _, err := store.Get(credName); err != nil {
		return nil, err
	}

	if base == nil {
		base = http.DefaultTransport
	}

	log.Debug().
		Str("credName", credName).
		Str("audience", audience).
		Msg("initialized auth transport")

	return &AuthTransport{
		signer:   NewJWTSigner(store),
		credName: credName,
		audience: audience,
		base:     base,
	}, nil
}

// RoundTrip implements http.RoundTripper.
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	header, err := t.GetAuthorizationHeader()
	if err != nil {
		return nil, err
	}

	// RoundTrippers must not modify the caller's request.
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", header)

	return t.base.RoundTrip(clone)
}

// getToken returns a cached token or creates a new one.
func (t *AuthTransport) getToken() (string, error) {
	t.mu.RLock()
	if t.cachedToken != "" && time.Now().Add(5*time.Minute).Before(t.tokenExpiry) {
		// Token is valid for at least 5 more minutes
		token := t.cachedToken
		t.mu.RUnlock()
		return token, nil
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	// Double-check after acquiring write lock
	if t.cachedToken != "" && time.Now().Add(5*time.Minute).Before(t.tokenExpiry) {
		return t.cachedToken, nil
	}

	token, err := t.signer.SignToken(t.credName, t.audience)
	if err != nil {
		return "", err
	}

	t.cachedToken = token
	t.tokenExpiry = time.Now().Add(TokenExpiry)

	log.Debug().
		Str("credName", t.credName).
		Time("expiry", t.tokenExpiry).
		Msg("cached new JWT token")

	return token, nil
}

// GetAuthorizationHeader returns the Authorization header value.
func (t *AuthTransport) GetAuthorizationHeader() (string, error) {
	token, err := t.getToken()
	if err != nil {
		return "", err
	}
	return "Bearer " + token, nil
}
