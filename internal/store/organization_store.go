package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/orgmembers/internal/models"
)

// Sentinel errors for organization store operations
var (
	ErrOrganizationNotFound      = errors.New("organization not found")
	ErrOrganizationAlreadyExists = errors.New("organization already exists")
	ErrOrganizationHasProjects   = errors.New("organization has projects")
	ErrNotAdmin                  = errors.New("user is not an admin of the organization")
	ErrLastAdmin                 = errors.New("organization must keep at least one admin")
	ErrNotMember                 = errors.New("user is not a member of the organization")
	ErrMemberIsAdmin             = errors.New("user is an admin of the organization")
)

// OrganizationStore defines the interface for organization storage operations.
//
// Membership mutations are single-record set operations: add-to-set inserts an
// identifier only when absent, pull removes it only when present. Guarded
// operations check their precondition and apply the change atomically so that
// concurrent callers can't break the membership invariants.
type OrganizationStore interface {
	// Create creates a new organization in the store.
	// Returns ErrOrganizationAlreadyExists if an organization with the same ID already exists.
	Create(ctx context.Context, org *models.Organization) error

	// Get retrieves an organization by ID.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error)

	// Update applies the patch to the descriptive fields of an organization.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	Update(ctx context.Context, orgID uuid.UUID, patch models.OrganizationPatch) (*models.Organization, error)

	// Delete deletes an organization and returns the deleted snapshot.
	// Returns ErrOrganizationHasProjects if any project still references it.
	Delete(ctx context.Context, orgID uuid.UUID) (*models.Organization, error)

	// AddUsers adds each identifier to the users set.
	AddUsers(ctx context.Context, orgID, updatedBy uuid.UUID, userIDs ...uuid.UUID) (*models.Organization, error)

	// AddAdmin adds the identifier to both the admins and users sets.
	AddAdmin(ctx context.Context, orgID, updatedBy, adminID uuid.UUID) (*models.Organization, error)

	// RemoveAdmin pulls the identifier from the admins set, leaving it in users.
	// Returns ErrNotAdmin if it isn't an admin and ErrLastAdmin if it is the only one.
	RemoveAdmin(ctx context.Context, orgID, updatedBy, adminID uuid.UUID) (*models.Organization, error)

	// RemoveUser pulls the identifier from the users set.
	// Returns ErrNotMember if it isn't a user and ErrMemberIsAdmin if it is still an admin.
	RemoveUser(ctx context.Context, orgID, updatedBy, userID uuid.UUID) (*models.Organization, error)

	// AddProject adds an opaque project reference to the projects set.
	AddProject(ctx context.Context, orgID, updatedBy uuid.UUID, project string) (*models.Organization, error)

	// RemoveProject pulls a project reference from the projects set.
	RemoveProject(ctx context.Context, orgID, updatedBy uuid.UUID, project string) (*models.Organization, error)

	// ListByIDs returns the organizations matching ids, skipping unknown ids.
	ListByIDs(ctx context.Context, orgIDs []uuid.UUID) ([]*models.Organization, error)
}
