package commands

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/orgmembers/cmd/cli/internal/credentials"
	"github.com/wolfeidau/orgmembers/internal/api"
	"github.com/wolfeidau/orgmembers/internal/auth"
	"github.com/wolfeidau/orgmembers/internal/models"
	"github.com/wolfeidau/orgmembers/internal/organization"
	"github.com/wolfeidau/orgmembers/internal/store/memory"
)

// startServer runs the API with a verifier trusting the named credential.
func startServer(t *testing.T, store *credentials.Store, name string) *httptest.Server {
	t.Helper()

	publicKeyPEM, err := store.LoadPublicKeyPEM(name)
	require.NoError(t, err)

	verifier, err := auth.NewJWTVerifier(publicKeyPEM, credentials.Issuer)
	require.NoError(t, err)

	deps := organization.Dependencies{
		Organizations: memory.NewOrganizationStore(),
		Users:         memory.NewUserStore(),
	}

	srv := httptest.NewServer(api.NewHandler(api.Config{
		Organizations: organization.NewService(deps),
		Admins:        organization.NewAdminService(deps),
		Users:         organization.NewUserService(deps),
		Accounts:      organization.NewAccountService(deps),
		Authenticate:  verifier.Middleware(api.WriteAuthError),
		Logger:        zerolog.Nop(),
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOrgCommands(t *testing.T) {
	ctx := context.Background()
	tmpDir := t.TempDir()
	store := seedStore(t, tmpDir, "alice")
	srv := startServer(t, store, "alice")

	alice, err := store.Get("alice")
	require.NoError(t, err)

	globals, out := newGlobals()
	globals.Output = "json"
	globals.Client = ClientFlags{Server: srv.URL, CredentialsDir: tmpDir}

	decode := func(v any) {
		t.Helper()
		require.NoError(t, json.Unmarshal(out.Bytes(), v))
		out.Reset()
	}

	require.NoError(t, (&RegisterCmd{}).Run(ctx, globals))
	var me models.User
	decode(&me)
	require.Equal(t, alice.UserID, me.ID)

	require.NoError(t, (&OrgsCreateCmd{Name: "Acme", Description: "rockets"}).Run(ctx, globals))
	var org models.Organization
	decode(&org)
	require.Equal(t, []uuid.UUID{alice.UserID}, org.Admins)

	t.Run("list", func(t *testing.T) {
		require.NoError(t, (&OrgsListCmd{}).Run(ctx, globals))
		var orgs []models.OrganizationSummary
		decode(&orgs)
		require.Len(t, orgs, 1)
		assert.Equal(t, "Acme", orgs[0].Name)
	})

	t.Run("update", func(t *testing.T) {
		err := (&OrgsUpdateCmd{ID: org.ID}).Run(ctx, globals)
		require.Error(t, err)

		name := "Acme Corp"
		require.NoError(t, (&OrgsUpdateCmd{ID: org.ID, Name: &name}).Run(ctx, globals))
		var got models.Organization
		decode(&got)
		assert.Equal(t, "Acme Corp", got.Name)
	})

	t.Run("members", func(t *testing.T) {
		require.NoError(t, (&UsersAddCmd{Org: org.ID, Email: "bob@example.com"}).Run(ctx, globals))
		var bob models.User
		decode(&bob)
		assert.Equal(t, "bob@example.com", bob.Email)

		require.Error(t, (&UsersAddCmd{Org: org.ID}).Run(ctx, globals))

		require.NoError(t, (&AdminsAddCmd{Org: org.ID, User: bob.ID}).Run(ctx, globals))
		var admins models.AdminList
		decode(&admins)
		assert.Len(t, admins.Admins, 2)

		require.NoError(t, (&AdminsRemoveCmd{Org: org.ID, User: bob.ID}).Run(ctx, globals))
		decode(&admins)
		assert.Len(t, admins.Admins, 1)

		require.NoError(t, (&UsersRemoveCmd{Org: org.ID, User: bob.ID}).Run(ctx, globals))
		var users models.UserList
		decode(&users)
		assert.Len(t, users.Users, 1)

		require.NoError(t, (&UsersAddCmd{Org: org.ID, ID: []uuid.UUID{bob.ID}}).Run(ctx, globals))
		decode(&users)
		assert.Len(t, users.Users, 2)

		require.NoError(t, (&UsersListCmd{Org: org.ID}).Run(ctx, globals))
		decode(&users)
		assert.Len(t, users.Users, 2)

		require.NoError(t, (&AdminsListCmd{Org: org.ID}).Run(ctx, globals))
		decode(&admins)
		assert.Equal(t, alice.UserID, admins.Admins[0].ID)
	})

	t.Run("projects and delete", func(t *testing.T) {
		require.NoError(t, (&OrgsAttachProjectCmd{ID: org.ID, Project: "proj-1"}).Run(ctx, globals))
		out.Reset()

		err := (&OrgsDeleteCmd{ID: org.ID}).Run(ctx, globals)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ActionNotAllowed")

		require.NoError(t, (&OrgsDetachProjectCmd{ID: org.ID, Project: "proj-1"}).Run(ctx, globals))
		out.Reset()

		require.NoError(t, (&OrgsDeleteCmd{ID: org.ID}).Run(ctx, globals))
		out.Reset()

		err = (&OrgsGetCmd{ID: org.ID}).Run(ctx, globals)
		require.Error(t, err)
	})

	t.Run("table output", func(t *testing.T) {
		globals.Output = "table"
		defer func() { globals.Output = "json" }()

		require.NoError(t, (&MeCmd{}).Run(ctx, globals))
		assert.Contains(t, out.String(), "alice@example.com")
		out.Reset()
	})
}

func TestClientFlags_NoCredential(t *testing.T) {
	globals, _ := newGlobals()
	globals.Client = ClientFlags{Server: "http://localhost:1", CredentialsDir: t.TempDir()}

	err := (&MeCmd{}).Run(context.Background(), globals)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no credential specified")
}
