package organization

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/orgmembers/internal/apperr"
	"github.com/wolfeidau/orgmembers/internal/auth"
	"github.com/wolfeidau/orgmembers/internal/events"
	"github.com/wolfeidau/orgmembers/internal/models"
)

func TestAdminService_FindAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.user(t, "admin@example.com")
	stranger := f.user(t, "stranger@example.com")
	org := f.org(t, admin)

	t.Run("resolves admins", func(t *testing.T) {
		list, err := f.admins.FindAll(ctx, admin, org.ID)
		require.NoError(t, err)
		require.Equal(t, org.ID, list.ID)
		require.Equal(t, []models.Member{{ID: admin.ID, Email: "admin@example.com"}}, list.Admins)
	})

	t.Run("stranger is forbidden", func(t *testing.T) {
		_, err := f.admins.FindAll(ctx, stranger, org.ID)
		requireKind(t, err, apperr.KindForbidden)
	})

	t.Run("unknown organization is not found", func(t *testing.T) {
		_, err := f.admins.FindAll(ctx, admin, uuid.New())
		requireKind(t, err, apperr.KindDocumentNotFound)
	})
}

func TestAdminService_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("adds admin to both sets and links the user", func(t *testing.T) {
		f := newFixture(t)
		admin := f.user(t, "admin@example.com")
		u2 := f.user(t, "u2@example.com")
		org := f.org(t, admin)

		list, err := f.admins.Update(ctx, admin, org.ID, u2.ID)
		require.NoError(t, err)
		require.Equal(t, []uuid.UUID{admin.ID, u2.ID}, memberIDs(list.Admins))

		stored := f.getOrg(t, org.ID)
		require.Contains(t, stored.Users, u2.ID)
		requireInvariants(t, stored)
		require.Equal(t, []uuid.UUID{org.ID}, f.getUser(t, u2.ID).Organizations)

		recorded := f.events.all()
		require.Len(t, recorded, 1)
		added, ok := recorded[0].(events.AdminUpdated)
		require.True(t, ok)
		require.Equal(t, models.Member{ID: u2.ID, Email: "u2@example.com"}, added.Admin)
	})

	t.Run("promoting a member keeps a single users entry", func(t *testing.T) {
		f := newFixture(t)
		admin := f.user(t, "admin@example.com")
		member := f.user(t, "member@example.com")
		org := f.org(t, admin)
		_, err := f.members.Update(ctx, admin, org.ID, []uuid.UUID{member.ID})
		require.NoError(t, err)

		_, err = f.admins.Update(ctx, admin, org.ID, member.ID)
		require.NoError(t, err)

		stored := f.getOrg(t, org.ID)
		require.Equal(t, []uuid.UUID{admin.ID, member.ID}, stored.Users)
		require.Equal(t, []uuid.UUID{admin.ID, member.ID}, stored.Admins)
	})

	t.Run("existing admin is not allowed", func(t *testing.T) {
		f := newFixture(t)
		admin := f.user(t, "admin@example.com")
		org := f.org(t, admin)

		_, err := f.admins.Update(ctx, admin, org.ID, admin.ID)
		requireKind(t, err, apperr.KindActionNotAllowed)
		require.Empty(t, f.events.all())
	})

	t.Run("member can't add admins", func(t *testing.T) {
		f := newFixture(t)
		admin := f.user(t, "admin@example.com")
		member := f.user(t, "member@example.com")
		org := f.org(t, admin)
		_, err := f.members.Update(ctx, admin, org.ID, []uuid.UUID{member.ID})
		require.NoError(t, err)

		_, err = f.admins.Update(ctx, member, org.ID, member.ID)
		requireKind(t, err, apperr.KindForbidden)
		require.False(t, f.getOrg(t, org.ID).IsAdmin(member.ID))
	})

	t.Run("unknown target user is not found", func(t *testing.T) {
		f := newFixture(t)
		admin := f.user(t, "admin@example.com")
		org := f.org(t, admin)

		_, err := f.admins.Update(ctx, admin, org.ID, uuid.New())
		requireKind(t, err, apperr.KindDocumentNotFound)
	})

	t.Run("failed link is compensated", func(t *testing.T) {
		f := newFixture(t)
		admin := f.user(t, "admin@example.com")
		u2 := f.user(t, "u2@example.com")
		org := f.org(t, admin)
		f.users.failAdd[u2.ID] = true

		_, err := f.admins.Update(ctx, admin, org.ID, u2.ID)
		require.Error(t, err)

		stored := f.getOrg(t, org.ID)
		require.Equal(t, []uuid.UUID{admin.ID}, stored.Admins)
		require.Equal(t, []uuid.UUID{admin.ID}, stored.Users)
		require.Empty(t, f.events.all())
	})
}

func TestAdminService_Remove(t *testing.T) {
	ctx := context.Background()

	t.Run("sole admin can't remove themselves", func(t *testing.T) {
		f := newFixture(t)
		admin := f.user(t, "admin@example.com")
		org := f.org(t, admin)

		_, err := f.admins.Remove(ctx, admin, org.ID, admin.ID)
		requireKind(t, err, apperr.KindActionNotAllowed)

		stored := f.getOrg(t, org.ID)
		require.Equal(t, []uuid.UUID{admin.ID}, stored.Admins)
		require.Equal(t, []uuid.UUID{admin.ID}, stored.Users)
		require.Empty(t, f.events.all())
	})

	t.Run("demoted admin stays a member", func(t *testing.T) {
		f := newFixture(t)
		admin := f.user(t, "admin@example.com")
		u2 := f.user(t, "u2@example.com")
		org := f.org(t, admin)

		_, err := f.admins.Update(ctx, admin, org.ID, u2.ID)
		require.NoError(t, err)
		f.events.reset()

		list, err := f.admins.Remove(ctx, admin, org.ID, u2.ID)
		require.NoError(t, err)
		require.Equal(t, []uuid.UUID{admin.ID}, memberIDs(list.Admins))

		stored := f.getOrg(t, org.ID)
		require.NotContains(t, stored.Admins, u2.ID)
		require.Contains(t, stored.Users, u2.ID)
		requireInvariants(t, stored)
		require.Equal(t, []uuid.UUID{org.ID}, f.getUser(t, u2.ID).Organizations)

		recorded := f.events.all()
		require.Len(t, recorded, 1)
		removed, ok := recorded[0].(events.AdminDeleted)
		require.True(t, ok)
		require.Equal(t, u2.ID, removed.Admin.ID)
	})

	t.Run("target that isn't an admin is not allowed", func(t *testing.T) {
		f := newFixture(t)
		admin := f.user(t, "admin@example.com")
		member := f.user(t, "member@example.com")
		org := f.org(t, admin)
		_, err := f.members.Update(ctx, admin, org.ID, []uuid.UUID{member.ID})
		require.NoError(t, err)

		_, err = f.admins.Remove(ctx, admin, org.ID, member.ID)
		requireKind(t, err, apperr.KindActionNotAllowed)
	})

	t.Run("unknown target user is not found", func(t *testing.T) {
		f := newFixture(t)
		admin := f.user(t, "admin@example.com")
		org := f.org(t, admin)

		_, err := f.admins.Remove(ctx, admin, org.ID, uuid.New())
		requireKind(t, err, apperr.KindDocumentNotFound)
	})

	t.Run("member can't remove admins", func(t *testing.T) {
		f := newFixture(t)
		admin := f.user(t, "admin@example.com")
		member := f.user(t, "member@example.com")
		org := f.org(t, admin)
		_, err := f.members.Update(ctx, admin, org.ID, []uuid.UUID{member.ID})
		require.NoError(t, err)

		_, err = f.admins.Remove(ctx, member, org.ID, admin.ID)
		requireKind(t, err, apperr.KindForbidden)
	})

	t.Run("concurrent removals never empty the admins set", func(t *testing.T) {
		f := newFixture(t)
		first := f.user(t, "first@example.com")
		org := f.org(t, first)

		admins := []auth.Identity{first}
		for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
			u := f.user(t, email)
			_, err := f.admins.Update(ctx, first, org.ID, u.ID)
			require.NoError(t, err)
			admins = append(admins, u)
		}

		var wg sync.WaitGroup
		for _, a := range admins {
			wg.Add(1)
			go func(a auth.Identity) {
				defer wg.Done()
				_, _ = f.admins.Remove(ctx, a, org.ID, a.ID)
			}(a)
		}
		wg.Wait()

		stored := f.getOrg(t, org.ID)
		require.Len(t, stored.Admins, 1)
		require.Len(t, stored.Users, 4)
		requireInvariants(t, stored)
	})
}

func TestAdminService_RoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.user(t, "admin@example.com")
	uid := f.user(t, "uid@example.com")
	org := f.org(t, admin)

	_, err := f.admins.Update(ctx, admin, org.ID, uid.ID)
	require.NoError(t, err)
	_, err = f.admins.Remove(ctx, admin, org.ID, uid.ID)
	require.NoError(t, err)

	stored := f.getOrg(t, org.ID)
	require.False(t, stored.IsAdmin(uid.ID))
	require.True(t, stored.IsMember(uid.ID))

	require.Equal(t, []events.Kind{events.KindAdminUpdated, events.KindAdminDeleted}, f.events.kinds())
}
