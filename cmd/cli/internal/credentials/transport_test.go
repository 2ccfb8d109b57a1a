package credentials

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/orgmembers/internal/auth"
)

func newTestStore(t *testing.T, names ...string) *Store {
	t.Helper()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	for _, name := range names {
		_, err := store.Create(name, name+"@example.com")
		require.NoError(t, err)
	}

	return store
}

func TestNewAuthTransport_Success(t *testing.T) {
	store := newTestStore(t, "alice")

	transport, err := NewAuthTransport(store, "alice", "https://api.example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, "alice", transport.credName)
	assert.Equal(t, "https://api.example.com", transport.audience)
	assert.Equal(t, http.DefaultTransport, transport.base)
}

func TestNewAuthTransport_UsesDefault(t *testing.T) {
	// The first credential becomes the default.
	store := newTestStore(t, "default-cred")

	transport, err := NewAuthTransport(store, "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "default-cred", transport.credName)
}

func TestNewAuthTransport_NoDefault(t *testing.T) {
	store := newTestStore(t)

	_, err := NewAuthTransport(store, "", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no credential specified")
}

func TestNewAuthTransport_CredentialNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := NewAuthTransport(store, "nonexistent", "", nil)
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestAuthTransport_TokenCaching(t *testing.T) {
	store := newTestStore(t, "alice")

	transport, err := NewAuthTransport(store, "alice", "", nil)
	require.NoError(t, err)

	header1, err := transport.GetAuthorizationHeader()
	require.NoError(t, err)
	assert.Contains(t, header1, "Bearer ")

	header2, err := transport.GetAuthorizationHeader()
	require.NoError(t, err)
	assert.Equal(t, header1, header2)
}

func TestAuthTransport_RoundTrip(t *testing.T) {
	store := newTestStore(t, "alice")
	cred, err := store.Get("alice")
	require.NoError(t, err)

	publicKeyPEM, err := store.LoadPublicKeyPEM("alice")
	require.NoError(t, err)

	verifier, err := auth.NewJWTVerifier(publicKeyPEM, Issuer, auth.WithAudience("orgmembers"))
	require.NoError(t, err)

	var got auth.Identity
	srv := httptest.NewServer(verifier.Middleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = auth.IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))
	defer srv.Close()

	transport, err := NewAuthTransport(store, "alice", "orgmembers", nil)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := (&http.Client{Transport: transport}).Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Empty(t, req.Header.Get("Authorization"), "caller request must not be modified")
	require.Equal(t, cred.UserID, got.ID)
	require.Equal(t, "alice@example.com", got.Email)
}
