package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/orgmembers/internal/auth"
	"github.com/wolfeidau/orgmembers/internal/models"
	"github.com/wolfeidau/orgmembers/internal/organization"
	"github.com/wolfeidau/orgmembers/internal/store/memory"
)

const identityHeader = "X-Test-Identity"

type testServer struct {
	handler    http.Handler
	identities map[string]auth.Identity
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	deps := organization.Dependencies{
		Organizations: memory.NewOrganizationStore(),
		Users:         memory.NewUserStore(),
	}

	ts := &testServer{identities: map[string]auth.Identity{}}

	authenticate := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, ok := ts.identities[r.Header.Get(identityHeader)]; ok {
				r = r.WithContext(auth.WithIdentity(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}

	ts.handler = NewHandler(Config{
		Organizations: organization.NewService(deps),
		Admins:        organization.NewAdminService(deps),
		Users:         organization.NewUserService(deps),
		Accounts:      organization.NewAccountService(deps),
		Authenticate:  authenticate,
		Logger:        zerolog.Nop(),
	})

	return ts
}

// identity registers a caller under name and returns it.
func (ts *testServer) identity(name, email string) auth.Identity {
	id := auth.Identity{ID: uuid.Must(uuid.NewV7()), Email: email}
	ts.identities[name] = id
	return id
}

func (ts *testServer) do(t *testing.T, as, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(data)
		}
	}

	r := httptest.NewRequest(method, path, reader)
	if as != "" {
		r.Header.Set(identityHeader, as)
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, r)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func requireError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) ErrorResponse {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	resp := decodeBody[ErrorResponse](t, w)
	require.Equal(t, code, resp.Error.Code)
	return resp
}

// createOrg registers as and creates an organization owned by them.
func (ts *testServer) createOrg(t *testing.T, as string) models.Organization {
	t.Helper()
	w := ts.do(t, as, http.MethodPost, "/organization", map[string]string{"name": "Acme"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeBody[models.Organization](t, w)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, "", http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestUnauthenticated(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, "", http.MethodGet, "/organization", nil)
	requireError(t, w, http.StatusUnauthorized, "Unauthenticated")
}

func TestOrganizationRoutes(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.identity("alice", "alice@example.com")
	ts.identity("mallory", "mallory@example.com")

	t.Run("create returns 201 with the caller as admin", func(t *testing.T) {
		org := ts.createOrg(t, "alice")
		require.Equal(t, "Acme", org.Name)
		require.Equal(t, []uuid.UUID{alice.ID}, org.Admins)
		require.Equal(t, []uuid.UUID{alice.ID}, org.Users)
	})

	t.Run("create rejects a missing name", func(t *testing.T) {
		w := ts.do(t, "alice", http.MethodPost, "/organization", map[string]string{"description": "x"})
		resp := requireError(t, w, http.StatusBadRequest, "Validation")
		require.Equal(t, []FieldError{{Field: "name", Rule: "required"}}, resp.Error.Fields)
	})

	t.Run("create rejects malformed json", func(t *testing.T) {
		w := ts.do(t, "alice", http.MethodPost, "/organization", "{")
		requireError(t, w, http.StatusBadRequest, "Validation")
	})

	t.Run("list and get", func(t *testing.T) {
		org := ts.createOrg(t, "alice")

		w := ts.do(t, "alice", http.MethodGet, "/organization", nil)
		require.Equal(t, http.StatusOK, w.Code)
		summaries := decodeBody[[]models.OrganizationSummary](t, w)
		require.NotEmpty(t, summaries)

		w = ts.do(t, "alice", http.MethodGet, "/organization/"+org.ID.String(), nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, org.ID, decodeBody[models.Organization](t, w).ID)
	})

	t.Run("get by a non member is forbidden", func(t *testing.T) {
		org := ts.createOrg(t, "alice")

		w := ts.do(t, "mallory", http.MethodGet, "/organization/"+org.ID.String(), nil)
		requireError(t, w, http.StatusForbidden, "Forbidden")
	})

	t.Run("get with a bad id", func(t *testing.T) {
		w := ts.do(t, "alice", http.MethodGet, "/organization/not-a-uuid", nil)
		requireError(t, w, http.StatusBadRequest, "Validation")
	})

	t.Run("get unknown organization", func(t *testing.T) {
		w := ts.do(t, "alice", http.MethodGet, "/organization/"+uuid.NewString(), nil)
		requireError(t, w, http.StatusNotFound, "DocumentNotFound")
	})

	t.Run("patch renames", func(t *testing.T) {
		org := ts.createOrg(t, "alice")

		w := ts.do(t, "alice", http.MethodPatch, "/organization/"+org.ID.String(), map[string]string{"name": "Renamed"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.Equal(t, "Renamed", decodeBody[models.Organization](t, w).Name)
	})

	t.Run("projects attach and detach", func(t *testing.T) {
		org := ts.createOrg(t, "alice")
		path := "/organization/" + org.ID.String() + "/projects/proj-1"

		w := ts.do(t, "alice", http.MethodPut, path, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.Equal(t, []string{"proj-1"}, decodeBody[models.Organization](t, w).Projects)

		w = ts.do(t, "alice", http.MethodDelete, "/organization/"+org.ID.String(), nil)
		requireError(t, w, http.StatusConflict, "ActionNotAllowed")

		w = ts.do(t, "alice", http.MethodDelete, path, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.Empty(t, decodeBody[models.Organization](t, w).Projects)
	})

	t.Run("delete", func(t *testing.T) {
		org := ts.createOrg(t, "alice")

		w := ts.do(t, "alice", http.MethodDelete, "/organization/"+org.ID.String(), nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = ts.do(t, "alice", http.MethodGet, "/organization/"+org.ID.String(), nil)
		requireError(t, w, http.StatusNotFound, "DocumentNotFound")
	})
}

func TestMemberRoutes(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.identity("alice", "alice@example.com")
	bob := ts.identity("bob", "bob@example.com")

	w := ts.do(t, "bob", http.MethodPost, "/user", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	org := ts.createOrg(t, "alice")
	base := "/organization/" + org.ID.String()

	t.Run("add user by email", func(t *testing.T) {
		w := ts.do(t, "alice", http.MethodPost, base+"/users", map[string]string{"userEmail": "bob@example.com"})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		require.Equal(t, bob.ID, decodeBody[models.User](t, w).ID)

		w = ts.do(t, "alice", http.MethodGet, base+"/users", nil)
		require.Equal(t, http.StatusOK, w.Code)
		users := decodeBody[models.UserList](t, w)
		require.Len(t, users.Users, 2)
	})

	t.Run("add user rejects a bad email", func(t *testing.T) {
		w := ts.do(t, "alice", http.MethodPost, base+"/users", map[string]string{"userEmail": "nope"})
		resp := requireError(t, w, http.StatusBadRequest, "Validation")
		require.Equal(t, []FieldError{{Field: "userEmail", Rule: "email"}}, resp.Error.Fields)
	})

	t.Run("bulk add rejects non uuid ids", func(t *testing.T) {
		w := ts.do(t, "alice", http.MethodPatch, base+"/users", map[string][]string{"users": {"x"}})
		resp := requireError(t, w, http.StatusBadRequest, "Validation")
		require.Len(t, resp.Error.Fields, 1)
		require.Equal(t, "uuid", resp.Error.Fields[0].Rule)
	})

	t.Run("bulk add of existing members is a no-op", func(t *testing.T) {
		w := ts.do(t, "alice", http.MethodPatch, base+"/users", map[string][]string{"users": {bob.ID.String()}})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.Len(t, decodeBody[models.UserList](t, w).Users, 2)
	})

	t.Run("promote and demote admin", func(t *testing.T) {
		w := ts.do(t, "alice", http.MethodPatch, base+"/admins", map[string]string{"adminId": bob.ID.String()})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.Len(t, decodeBody[models.AdminList](t, w).Admins, 2)

		w = ts.do(t, "alice", http.MethodPatch, base+"/admins", map[string]string{"adminId": bob.ID.String()})
		requireError(t, w, http.StatusConflict, "ActionNotAllowed")

		w = ts.do(t, "bob", http.MethodDelete, base+"/admins/"+bob.ID.String(), nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = ts.do(t, "alice", http.MethodGet, base+"/admins", nil)
		require.Equal(t, http.StatusOK, w.Code)
		admins := decodeBody[models.AdminList](t, w)
		require.Len(t, admins.Admins, 1)
		require.Equal(t, alice.ID, admins.Admins[0].ID)
	})

	t.Run("last admin cannot be removed", func(t *testing.T) {
		w := ts.do(t, "alice", http.MethodDelete, base+"/admins/"+alice.ID.String(), nil)
		requireError(t, w, http.StatusConflict, "ActionNotAllowed")
	})

	t.Run("non admin cannot remove users", func(t *testing.T) {
		w := ts.do(t, "bob", http.MethodDelete, base+"/users/"+alice.ID.String(), nil)
		requireError(t, w, http.StatusForbidden, "Forbidden")
	})

	t.Run("remove user", func(t *testing.T) {
		w := ts.do(t, "alice", http.MethodDelete, base+"/users/"+bob.ID.String(), nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		users := decodeBody[models.UserList](t, w)
		require.Len(t, users.Users, 1)
		require.Equal(t, alice.ID, users.Users[0].ID)
	})
}

func TestUserRoutes(t *testing.T) {
	ts := newTestServer(t)
	carol := ts.identity("carol", "Carol@Example.com")

	t.Run("me before registering", func(t *testing.T) {
		w := ts.do(t, "carol", http.MethodGet, "/user/me", nil)
		requireError(t, w, http.StatusNotFound, "DocumentNotFound")
	})

	t.Run("register creates then returns the record", func(t *testing.T) {
		w := ts.do(t, "carol", http.MethodPost, "/user", nil)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		user := decodeBody[models.User](t, w)
		require.Equal(t, carol.ID, user.ID)
		require.Equal(t, "carol@example.com", user.Email)

		w = ts.do(t, "carol", http.MethodPost, "/user", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("me", func(t *testing.T) {
		w := ts.do(t, "carol", http.MethodGet, "/user/me", nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, carol.ID, decodeBody[models.User](t, w).ID)
	})
}
