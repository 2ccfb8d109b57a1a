package organization

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgmembers/internal/apperr"
	"github.com/wolfeidau/orgmembers/internal/auth"
	"github.com/wolfeidau/orgmembers/internal/events"
	"github.com/wolfeidau/orgmembers/internal/models"
	"github.com/wolfeidau/orgmembers/internal/store"
)

// UserService manages the users set of an organization.
type UserService struct {
	core
}

// NewUserService creates the user management service.
func NewUserService(deps Dependencies) *UserService {
	return &UserService{core: newCore(deps)}
}

// FindAll returns the resolved users of an organization the caller is a member of.
func (s *UserService) FindAll(ctx context.Context, caller auth.Identity, orgID uuid.UUID) (_ *models.UserList, err error) {
	const op = "organization.users.find_all"
	defer observe(ctx, op, &err)

	org, err := s.loadOrg(ctx, op, orgID)
	if err != nil {
		return nil, err
	}

	if err := authorize(op, auth.ActionRead, org, caller); err != nil {
		return nil, err
	}

	return s.userList(ctx, op, org)
}

// Create adds the user with email as a member, creating the user record when
// no user has that email. Adding an existing member fails with ActionNotAllowed.
func (s *UserService) Create(ctx context.Context, caller auth.Identity, orgID uuid.UUID, email string) (_ *models.User, err error) {
	const op = "organization.users.create"
	defer observe(ctx, op, &err)

	email = models.NormalizeEmail(email)
	if email == "" {
		return nil, apperr.UnableToUpdate(op, "email is required", nil)
	}

	unlock, err := s.lockOrg(ctx, op, orgID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	org, err := s.loadOrg(ctx, op, orgID)
	if err != nil {
		return nil, err
	}

	if err := authorize(op, auth.ActionManage, org, caller); err != nil {
		return nil, err
	}

	existing, err := s.users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		return s.createMember(ctx, op, caller, orgID, email)
	case err != nil:
		return nil, translate(op, err)
	}

	if org.IsMember(existing.ID) || existing.BelongsTo(orgID) {
		return nil, apperr.ActionNotAllowed(op, "user is already a member of the organization")
	}

	user, err := s.users.AddOrganization(ctx, existing.ID, orgID)
	if err != nil {
		return nil, translate(op, err)
	}

	updated, err := s.orgs.AddUsers(ctx, orgID, caller.ID, user.ID)
	if err != nil {
		compensate(ctx, op, orgID, err, func(ctx context.Context) error {
			_, err := s.users.RemoveOrganization(ctx, user.ID, orgID)
			return err
		})
		return nil, translate(op, err)
	}

	log.Info().
		Str("org_id", orgID.String()).
		Str("user_id", user.ID.String()).
		Msg("Added existing user to organization")

	s.publisher.Publish(ctx, events.UserAdded{
		Envelope: events.NewEnvelope(updated, caller),
		User:     *user,
	})

	return user, nil
}

// createMember creates a user record already linked to orgID and adds it to
// the users set.
func (s *UserService) createMember(ctx context.Context, op string, caller auth.Identity, orgID uuid.UUID, email string) (*models.User, error) {
	now := time.Now().UTC()
	user := &models.User{
		ID:            uuid.Must(uuid.NewV7()),
		Email:         email,
		Organizations: []uuid.UUID{orgID},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, apperr.UnableToCreate(op, "failed to create user", err)
	}

	updated, err := s.orgs.AddUsers(ctx, orgID, caller.ID, user.ID)
	if err != nil {
		compensate(ctx, op, orgID, err, func(ctx context.Context) error {
			_, err := s.users.RemoveOrganization(ctx, user.ID, orgID)
			return err
		})
		return nil, translate(op, err)
	}

	log.Info().
		Str("org_id", orgID.String()).
		Str("user_id", user.ID.String()).
		Msg("Created user and added to organization")

	s.publisher.Publish(ctx, events.UserCreated{
		Envelope: events.NewEnvelope(updated, caller),
		User:     *user,
	})

	return user, nil
}

// Update adds each user to the organization. Users that are already members
// are left alone without error, and one event is published per newly added user.
func (s *UserService) Update(ctx context.Context, caller auth.Identity, orgID uuid.UUID, userIDs []uuid.UUID) (_ *models.UserList, err error) {
	const op = "organization.users.update"
	defer observe(ctx, op, &err)

	unlock, err := s.lockOrg(ctx, op, orgID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	org, err := s.loadOrg(ctx, op, orgID)
	if err != nil {
		return nil, err
	}

	if err := authorize(op, auth.ActionUpdate, org, caller); err != nil {
		return nil, err
	}

	added := make([]uuid.UUID, 0, len(userIDs))
	seen := make(map[uuid.UUID]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if !org.IsMember(id) {
			added = append(added, id)
		}
	}

	if len(added) == 0 {
		return s.userList(ctx, op, org)
	}

	// Every id must resolve before anything is written.
	found, err := s.users.ListByIDs(ctx, added)
	if err != nil {
		return nil, translate(op, err)
	}
	if len(found) != len(added) {
		return nil, apperr.DocumentNotFound(op, "one or more users not found")
	}

	updated, err := s.orgs.AddUsers(ctx, orgID, caller.ID, added...)
	if err != nil {
		return nil, translate(op, err)
	}

	err = fanOut(ctx, added, func(ctx context.Context, userID uuid.UUID) error {
		_, err := s.users.AddOrganization(ctx, userID, orgID)
		return err
	})
	if err != nil {
		compensate(ctx, op, orgID, err, func(ctx context.Context) error {
			return fanOut(ctx, added, func(ctx context.Context, userID uuid.UUID) error {
				if _, err := s.orgs.RemoveUser(ctx, orgID, caller.ID, userID); err != nil && !errors.Is(err, store.ErrNotMember) {
					return err
				}
				if _, err := s.users.RemoveOrganization(ctx, userID, orgID); err != nil && !isNotFound(err) {
					return err
				}
				return nil
			})
		})
		return nil, translate(op, err)
	}

	log.Info().
		Str("org_id", orgID.String()).
		Int("added", len(added)).
		Msg("Added users to organization")

	for _, userID := range added {
		s.publisher.Publish(ctx, events.UserUpdated{
			Envelope: events.NewEnvelope(updated, caller),
			UserID:   userID,
		})
	}

	return s.userList(ctx, op, updated)
}

// Remove removes a member that is not an admin and unlinks the organization
// from the user's record.
func (s *UserService) Remove(ctx context.Context, caller auth.Identity, orgID, userID uuid.UUID) (_ *models.UserList, err error) {
	const op = "organization.users.remove"
	defer observe(ctx, op, &err)

	unlock, err := s.lockOrg(ctx, op, orgID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	org, err := s.loadOrg(ctx, op, orgID)
	if err != nil {
		return nil, err
	}

	if _, err := s.loadUser(ctx, op, userID); err != nil {
		return nil, err
	}

	if err := authorize(op, auth.ActionDelete, org, caller); err != nil {
		return nil, err
	}

	if org.IsAdmin(userID) {
		return nil, apperr.ActionNotAllowed(op, "user is an admin, remove as admin first")
	}

	// The store re-checks the admin guard atomically.
	updated, err := s.orgs.RemoveUser(ctx, orgID, caller.ID, userID)
	if err != nil {
		return nil, translate(op, err)
	}

	user, err := s.users.RemoveOrganization(ctx, userID, orgID)
	if err != nil {
		compensate(ctx, op, orgID, err, func(ctx context.Context) error {
			_, err := s.orgs.AddUsers(ctx, orgID, caller.ID, userID)
			return err
		})
		return nil, translate(op, err)
	}

	log.Info().
		Str("org_id", orgID.String()).
		Str("user_id", userID.String()).
		Msg("Removed user from organization")

	s.publisher.Publish(ctx, events.UserDeleted{
		Envelope: events.NewEnvelope(updated, caller),
		User:     *user,
	})

	return s.userList(ctx, op, updated)
}

func (s *UserService) userList(ctx context.Context, op string, org *models.Organization) (*models.UserList, error) {
	users, err := store.Populate(ctx, s.users, org.Users)
	if err != nil {
		return nil, translate(op, err)
	}
	return &models.UserList{ID: org.ID, Users: users}, nil
}
