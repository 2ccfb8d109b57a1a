package organization

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgmembers/internal/apperr"
	"github.com/wolfeidau/orgmembers/internal/auth"
	"github.com/wolfeidau/orgmembers/internal/events"
	"github.com/wolfeidau/orgmembers/internal/models"
	"github.com/wolfeidau/orgmembers/internal/store"
)

// AdminService manages the admins set of an organization.
type AdminService struct {
	core
}

// NewAdminService creates the admin management service.
func NewAdminService(deps Dependencies) *AdminService {
	return &AdminService{core: newCore(deps)}
}

// FindAll returns the resolved admins of an organization the caller is a member of.
func (s *AdminService) FindAll(ctx context.Context, caller auth.Identity, orgID uuid.UUID) (_ *models.AdminList, err error) {
	const op = "organization.admins.find_all"
	defer observe(ctx, op, &err)

	org, err := s.loadOrg(ctx, op, orgID)
	if err != nil {
		return nil, err
	}

	if err := authorize(op, auth.ActionRead, org, caller); err != nil {
		return nil, err
	}

	return s.adminList(ctx, op, org)
}

// Update makes an existing user an admin, adding them as a member when
// needed. Adding a user that is already an admin fails with ActionNotAllowed.
func (s *AdminService) Update(ctx context.Context, caller auth.Identity, orgID, adminID uuid.UUID) (_ *models.AdminList, err error) {
	const op = "organization.admins.update"
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

	target, err := s.loadUser(ctx, op, adminID)
	if err != nil {
		return nil, err
	}

	if org.IsAdmin(adminID) {
		return nil, apperr.ActionNotAllowed(op, "user is already an admin of the organization")
	}
	wasMember := org.IsMember(adminID)

	updated, err := s.orgs.AddAdmin(ctx, orgID, caller.ID, adminID)
	if err != nil {
		return nil, translate(op, err)
	}

	if _, err := s.users.AddOrganization(ctx, adminID, orgID); err != nil {
		compensate(ctx, op, orgID, err, func(ctx context.Context) error {
			if _, err := s.orgs.RemoveAdmin(ctx, orgID, caller.ID, adminID); err != nil && !errors.Is(err, store.ErrNotAdmin) {
				return err
			}
			if wasMember {
				return nil
			}
			if _, err := s.orgs.RemoveUser(ctx, orgID, caller.ID, adminID); err != nil && !errors.Is(err, store.ErrNotMember) {
				return err
			}
			return nil
		})
		return nil, translate(op, err)
	}

	log.Info().
		Str("org_id", orgID.String()).
		Str("user_id", adminID.String()).
		Msg("Added organization admin")

	s.publisher.Publish(ctx, events.AdminUpdated{
		Envelope: events.NewEnvelope(updated, caller),
		Admin:    target.Member(),
	})

	return s.adminList(ctx, op, updated)
}

// Remove demotes an admin to a member. The last admin can't be removed.
func (s *AdminService) Remove(ctx context.Context, caller auth.Identity, orgID, adminID uuid.UUID) (_ *models.AdminList, err error) {
	const op = "organization.admins.remove"
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

	if err := authorize(op, auth.ActionDelete, org, caller); err != nil {
		return nil, err
	}

	target, err := s.loadUser(ctx, op, adminID)
	if err != nil {
		return nil, err
	}

	if !org.IsAdmin(adminID) {
		return nil, apperr.ActionNotAllowed(op, "user is not an admin of the organization")
	}
	if len(org.Admins) == 1 {
		return nil, apperr.ActionNotAllowed(op, "organization must keep at least one admin")
	}

	// The store re-checks both conditions atomically.
	updated, err := s.orgs.RemoveAdmin(ctx, orgID, caller.ID, adminID)
	if err != nil {
		return nil, translate(op, err)
	}

	log.Info().
		Str("org_id", orgID.String()).
		Str("user_id", adminID.String()).
		Msg("Removed organization admin")

	s.publisher.Publish(ctx, events.AdminDeleted{
		Envelope: events.NewEnvelope(updated, caller),
		Admin:    target.Member(),
	})

	return s.adminList(ctx, op, updated)
}

func (s *AdminService) adminList(ctx context.Context, op string, org *models.Organization) (*models.AdminList, error) {
	admins, err := store.Populate(ctx, s.users, org.Admins)
	if err != nil {
		return nil, translate(op, err)
	}
	return &models.AdminList{ID: org.ID, Admins: admins}, nil
}
