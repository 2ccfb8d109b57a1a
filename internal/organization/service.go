package organization

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgmembers/internal/apperr"
	"github.com/wolfeidau/orgmembers/internal/auth"
	"github.com/wolfeidau/orgmembers/internal/events"
	"github.com/wolfeidau/orgmembers/internal/models"
)

// CreateInput holds the fields of a new organization.
type CreateInput struct {
	Name        string
	Description string
}

// UpdateInput holds the descriptive fields to change. Nil fields are left as is.
type UpdateInput struct {
	Name        *string
	Description *string
}

// Service owns the organization lifecycle.
type Service struct {
	core
}

// NewService creates the organization root service.
func NewService(deps Dependencies) *Service {
	return &Service{core: newCore(deps)}
}

// Create creates an organization with caller as its only user and admin.
func (s *Service) Create(ctx context.Context, caller auth.Identity, in CreateInput) (_ *models.Organization, err error) {
	const op = "organization.create"
	defer observe(ctx, op, &err)

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.UnableToCreate(op, "name is required", nil)
	}

	now := time.Now().UTC()
	org := &models.Organization{
		ID:          uuid.Must(uuid.NewV7()),
		Name:        name,
		Description: in.Description,
		Users:       []uuid.UUID{caller.ID},
		Admins:      []uuid.UUID{caller.ID},
		Projects:    []string{},
		CreatedBy:   caller.ID,
		UpdatedBy:   caller.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if _, _, err := s.ensureUser(ctx, op, caller); err != nil {
		return nil, err
	}

	if err := s.orgs.Create(ctx, org); err != nil {
		return nil, apperr.UnableToCreate(op, "failed to create organization", err)
	}

	if _, err := s.users.AddOrganization(ctx, caller.ID, org.ID); err != nil {
		compensate(ctx, op, org.ID, err, func(ctx context.Context) error {
			_, err := s.orgs.Delete(ctx, org.ID)
			return err
		})
		return nil, apperr.UnableToCreate(op, "failed to link organization to caller", err)
	}

	log.Info().
		Str("org_id", org.ID.String()).
		Str("user_id", caller.ID.String()).
		Msg("Created organization")

	s.publisher.Publish(ctx, events.OrganizationCreated{Envelope: events.NewEnvelope(org, caller)})

	return org, nil
}

// FindAll lists the organizations the caller's user record belongs to.
func (s *Service) FindAll(ctx context.Context, caller auth.Identity) (_ []models.OrganizationSummary, err error) {
	const op = "organization.find_all"
	defer observe(ctx, op, &err)

	user, err := s.loadUser(ctx, op, caller.ID)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.OrganizationSummary, 0, len(user.Organizations))
	if len(user.Organizations) == 0 {
		return summaries, nil
	}

	orgs, err := s.orgs.ListByIDs(ctx, user.Organizations)
	if err != nil {
		return nil, translate(op, err)
	}

	for _, org := range orgs {
		summaries = append(summaries, models.OrganizationSummary{
			ID:          org.ID,
			Name:        org.Name,
			Description: org.Description,
		})
	}

	return summaries, nil
}

// FindOne returns an organization the caller is a member of.
func (s *Service) FindOne(ctx context.Context, caller auth.Identity, orgID uuid.UUID) (_ *models.Organization, err error) {
	const op = "organization.find_one"
	defer observe(ctx, op, &err)

	org, err := s.loadOrg(ctx, op, orgID)
	if err != nil {
		return nil, err
	}

	if err := authorize(op, auth.ActionRead, org, caller); err != nil {
		return nil, err
	}

	return org, nil
}

// Update changes the name or description of an organization.
func (s *Service) Update(ctx context.Context, caller auth.Identity, orgID uuid.UUID, in UpdateInput) (_ *models.Organization, err error) {
	const op = "organization.update"
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

	patch := models.OrganizationPatch{
		Description: in.Description,
		UpdatedBy:   caller.ID,
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apperr.UnableToUpdate(op, "name must not be empty", nil)
		}
		patch.Name = &name
	}

	updated, err := s.orgs.Update(ctx, orgID, patch)
	if err != nil {
		if isNotFound(err) {
			return nil, translate(op, err)
		}
		return nil, apperr.UnableToUpdate(op, "failed to update organization", err)
	}

	s.publisher.Publish(ctx, events.OrganizationUpdated{Envelope: events.NewEnvelope(updated, caller)})

	return updated, nil
}

// Remove deletes an organization without projects and unlinks it from every
// member's user record. The snapshot before deletion is returned.
func (s *Service) Remove(ctx context.Context, caller auth.Identity, orgID uuid.UUID) (_ *models.Organization, err error) {
	const op = "organization.remove"
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

	if org.HasProjects() {
		return nil, apperr.ActionNotAllowed(op, "organization has active projects")
	}

	deleted, err := s.orgs.Delete(ctx, orgID)
	if err != nil {
		return nil, translate(op, err)
	}

	err = fanOut(ctx, deleted.Users, func(ctx context.Context, userID uuid.UUID) error {
		_, err := s.users.RemoveOrganization(ctx, userID, orgID)
		if isNotFound(err) {
			return nil
		}
		return err
	})
	if err != nil {
		compensate(ctx, op, orgID, err, func(ctx context.Context) error {
			if err := s.orgs.Create(ctx, deleted); err != nil && !isAlreadyExists(err) {
				return err
			}
			return fanOut(ctx, deleted.Users, func(ctx context.Context, userID uuid.UUID) error {
				_, err := s.users.AddOrganization(ctx, userID, orgID)
				if isNotFound(err) {
					return nil
				}
				return err
			})
		})
		return nil, translate(op, err)
	}

	log.Info().
		Str("org_id", orgID.String()).
		Str("user_id", caller.ID.String()).
		Int("members", len(deleted.Users)).
		Msg("Deleted organization")

	s.publisher.Publish(ctx, events.OrganizationDeleted{Envelope: events.NewEnvelope(deleted, caller)})

	return deleted, nil
}

// AttachProject records a project reference on the organization.
// Attaching a reference that is already present changes nothing.
func (s *Service) AttachProject(ctx context.Context, caller auth.Identity, orgID uuid.UUID, project string) (_ *models.Organization, err error) {
	const op = "organization.attach_project"
	defer observe(ctx, op, &err)

	return s.changeProjects(ctx, op, caller, orgID, project, s.orgs.AddProject)
}

// DetachProject removes a project reference from the organization.
func (s *Service) DetachProject(ctx context.Context, caller auth.Identity, orgID uuid.UUID, project string) (_ *models.Organization, err error) {
	const op = "organization.detach_project"
	defer observe(ctx, op, &err)

	return s.changeProjects(ctx, op, caller, orgID, project, s.orgs.RemoveProject)
}

type projectOp func(ctx context.Context, orgID, updatedBy uuid.UUID, project string) (*models.Organization, error)

func (s *Service) changeProjects(ctx context.Context, op string, caller auth.Identity, orgID uuid.UUID, project string, apply projectOp) (*models.Organization, error) {
	project = strings.TrimSpace(project)
	if project == "" {
		return nil, apperr.UnableToUpdate(op, "project reference is required", nil)
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

	updated, err := apply(ctx, orgID, caller.ID, project)
	if err != nil {
		return nil, translate(op, err)
	}

	s.publisher.Publish(ctx, events.OrganizationUpdated{Envelope: events.NewEnvelope(updated, caller)})

	return updated, nil
}
