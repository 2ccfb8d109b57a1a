package organization

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/orgmembers/internal/apperr"
	"github.com/wolfeidau/orgmembers/internal/auth"
	"github.com/wolfeidau/orgmembers/internal/events"
	"github.com/wolfeidau/orgmembers/internal/models"
	"github.com/wolfeidau/orgmembers/internal/store"
	"github.com/wolfeidau/orgmembers/internal/store/memory"
)

var errStoreDown = errors.New("store unavailable")

// recorder captures published events in order.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(ctx context.Context, event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *recorder) kinds() []events.Kind {
	var kinds []events.Kind
	for _, e := range r.all() {
		kinds = append(kinds, e.Kind())
	}
	return kinds
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// flakyUsers fails AddOrganization and RemoveOrganization for chosen users.
type flakyUsers struct {
	store.UserStore

	mu         sync.Mutex
	failAdd    map[uuid.UUID]bool
	failRemove map[uuid.UUID]bool
}

func newFlakyUsers(inner store.UserStore) *flakyUsers {
	return &flakyUsers{
		UserStore:  inner,
		failAdd:    make(map[uuid.UUID]bool),
		failRemove: make(map[uuid.UUID]bool),
	}
}

func (f *flakyUsers) AddOrganization(ctx context.Context, userID, orgID uuid.UUID) (*models.User, error) {
	f.mu.Lock()
	fail := f.failAdd[userID]
	f.mu.Unlock()
	if fail {
		return nil, errStoreDown
	}
	return f.UserStore.AddOrganization(ctx, userID, orgID)
}

func (f *flakyUsers) RemoveOrganization(ctx context.Context, userID, orgID uuid.UUID) (*models.User, error) {
	f.mu.Lock()
	fail := f.failRemove[userID]
	f.mu.Unlock()
	if fail {
		return nil, errStoreDown
	}
	return f.UserStore.RemoveOrganization(ctx, userID, orgID)
}

// trackingOrgs remembers the ids of created organizations and can fail AddUsers.
type trackingOrgs struct {
	*memory.OrganizationStore

	mu           sync.Mutex
	created      []uuid.UUID
	failAddUsers bool
}

func (o *trackingOrgs) AddUsers(ctx context.Context, orgID, updatedBy uuid.UUID, userIDs ...uuid.UUID) (*models.Organization, error) {
	o.mu.Lock()
	fail := o.failAddUsers
	o.mu.Unlock()
	if fail {
		return nil, errStoreDown
	}
	return o.OrganizationStore.AddUsers(ctx, orgID, updatedBy, userIDs...)
}

func (o *trackingOrgs) Create(ctx context.Context, org *models.Organization) error {
	o.mu.Lock()
	o.created = append(o.created, org.ID)
	o.mu.Unlock()
	return o.OrganizationStore.Create(ctx, org)
}

func (o *trackingOrgs) lastCreated() uuid.UUID {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.created) == 0 {
		return uuid.Nil
	}
	return o.created[len(o.created)-1]
}

type fixture struct {
	orgs   *trackingOrgs
	users  *flakyUsers
	events *recorder

	service  *Service
	admins   *AdminService
	members  *UserService
	accounts *AccountService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		orgs:   &trackingOrgs{OrganizationStore: memory.NewOrganizationStore()},
		users:  newFlakyUsers(memory.NewUserStore()),
		events: &recorder{},
	}

	deps := Dependencies{
		Organizations: f.orgs,
		Users:         f.users,
		Publisher:     f.events,
	}
	f.service = NewService(deps)
	f.admins = NewAdminService(deps)
	f.members = NewUserService(deps)
	f.accounts = NewAccountService(deps)

	return f
}

// user registers a user record and returns its identity.
func (f *fixture) user(t *testing.T, email string) auth.Identity {
	t.Helper()

	now := time.Now().UTC()
	id := uuid.Must(uuid.NewV7())
	require.NoError(t, f.users.Create(context.Background(), &models.User{
		ID:            id,
		Email:         email,
		Organizations: []uuid.UUID{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}))

	return auth.Identity{ID: id, Email: email}
}

// org creates an organization owned by admin and clears the recorded events.
func (f *fixture) org(t *testing.T, admin auth.Identity) *models.Organization {
	t.Helper()

	org, err := f.service.Create(context.Background(), admin, CreateInput{Name: "Acme", Description: "test"})
	require.NoError(t, err)
	f.events.reset()

	return org
}

func (f *fixture) getOrg(t *testing.T, orgID uuid.UUID) *models.Organization {
	t.Helper()
	org, err := f.orgs.Get(context.Background(), orgID)
	require.NoError(t, err)
	return org
}

func (f *fixture) getUser(t *testing.T, userID uuid.UUID) *models.User {
	t.Helper()
	user, err := f.users.Get(context.Background(), userID)
	require.NoError(t, err)
	return user
}

func requireKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind.String(), apperr.KindOf(err).String(), "unexpected error: %v", err)
}

// requireInvariants checks admins ⊆ users and a non-empty admins set.
func requireInvariants(t *testing.T, org *models.Organization) {
	t.Helper()
	require.NotEmpty(t, org.Admins)
	for _, admin := range org.Admins {
		require.Contains(t, org.Users, admin)
	}
}

func memberIDs(members []models.Member) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	return ids
}
