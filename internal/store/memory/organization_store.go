package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/wolfeidau/orgmembers/internal/models"
	"github.com/wolfeidau/orgmembers/internal/store"
)

// OrganizationStore implements store.OrganizationStore using in-memory storage.
// This implementation is for testing and local development - data is lost on restart.
type OrganizationStore struct {
	mu sync.RWMutex

	organizations map[uuid.UUID]*models.Organization // org_id -> Organization
}

// NewOrganizationStore creates a new in-memory organization store.
func NewOrganizationStore() *OrganizationStore {
	return &OrganizationStore{
		organizations: make(map[uuid.UUID]*models.Organization),
	}
}

// Create creates a new organization in memory.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.organizations[org.ID]; exists {
		return store.ErrOrganizationAlreadyExists
	}

	// Clone to avoid external modifications
	s.organizations[org.ID] = org.Clone()

	return nil
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, exists := s.organizations[orgID]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	return org.Clone(), nil
}

// Update applies the patch to the organization's descriptive fields.
func (s *OrganizationStore) Update(ctx context.Context, orgID uuid.UUID, patch models.OrganizationPatch) (*models.Organization, error) {
	return s.mutate(orgID, patch.UpdatedBy, func(org *models.Organization) (bool, error) {
		if patch.Name != nil {
			org.Name = *patch.Name
		}
		if patch.Description != nil {
			org.Description = *patch.Description
		}
		return true, nil
	})
}

// Delete removes the organization unless it still has projects.
func (s *OrganizationStore) Delete(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	org, exists := s.organizations[orgID]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	if org.HasProjects() {
		return nil, store.ErrOrganizationHasProjects
	}

	delete(s.organizations, orgID)

	return org, nil
}

// AddUsers adds each identifier to the users set.
func (s *OrganizationStore) AddUsers(ctx context.Context, orgID, updatedBy uuid.UUID, userIDs ...uuid.UUID) (*models.Organization, error) {
	return s.mutate(orgID, updatedBy, func(org *models.Organization) (bool, error) {
		var changed bool
		org.Users, changed = addToSet(org.Users, userIDs...)
		return changed, nil
	})
}

// AddAdmin adds the identifier to the admins and users sets.
func (s *OrganizationStore) AddAdmin(ctx context.Context, orgID, updatedBy, adminID uuid.UUID) (*models.Organization, error) {
	return s.mutate(orgID, updatedBy, func(org *models.Organization) (bool, error) {
		var addedAdmin, addedUser bool
		org.Admins, addedAdmin = addToSet(org.Admins, adminID)
		org.Users, addedUser = addToSet(org.Users, adminID)
		return addedAdmin || addedUser, nil
	})
}

// RemoveAdmin pulls the identifier from the admins set.
func (s *OrganizationStore) RemoveAdmin(ctx context.Context, orgID, updatedBy, adminID uuid.UUID) (*models.Organization, error) {
	return s.mutate(orgID, updatedBy, func(org *models.Organization) (bool, error) {
		if !org.IsAdmin(adminID) {
			return false, store.ErrNotAdmin
		}
		if len(org.Admins) == 1 {
			return false, store.ErrLastAdmin
		}
		org.Admins, _ = pull(org.Admins, adminID)
		return true, nil
	})
}

// RemoveUser pulls the identifier from the users set.
func (s *OrganizationStore) RemoveUser(ctx context.Context, orgID, updatedBy, userID uuid.UUID) (*models.Organization, error) {
	return s.mutate(orgID, updatedBy, func(org *models.Organization) (bool, error) {
		if org.IsAdmin(userID) {
			return false, store.ErrMemberIsAdmin
		}
		if !org.IsMember(userID) {
			return false, store.ErrNotMember
		}
		org.Users, _ = pull(org.Users, userID)
		return true, nil
	})
}

// AddProject adds a project reference to the projects set.
func (s *OrganizationStore) AddProject(ctx context.Context, orgID, updatedBy uuid.UUID, project string) (*models.Organization, error) {
	return s.mutate(orgID, updatedBy, func(org *models.Organization) (bool, error) {
		var changed bool
		org.Projects, changed = addToSet(org.Projects, project)
		return changed, nil
	})
}

// RemoveProject pulls a project reference from the projects set.
func (s *OrganizationStore) RemoveProject(ctx context.Context, orgID, updatedBy uuid.UUID, project string) (*models.Organization, error) {
	return s.mutate(orgID, updatedBy, func(org *models.Organization) (bool, error) {
		var changed bool
		org.Projects, changed = pull(org.Projects, project)
		return changed, nil
	})
}

// ListByIDs returns the organizations matching ids in the order given.
func (s *OrganizationStore) ListByIDs(ctx context.Context, orgIDs []uuid.UUID) ([]*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Organization, 0, len(orgIDs))
	for _, id := range orgIDs {
		if org, exists := s.organizations[id]; exists {
			result = append(result, org.Clone())
		}
	}

	return result, nil
}

// mutate applies fn to a working copy under the write lock and stores it only
// when fn succeeds. Unchanged documents keep their updated_by and updated_at.
func (s *OrganizationStore) mutate(orgID, updatedBy uuid.UUID, fn func(org *models.Organization) (bool, error)) (*models.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.organizations[orgID]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	working := current.Clone()
	changed, err := fn(working)
	if err != nil {
		return nil, err
	}

	if !changed {
		return current.Clone(), nil
	}

	if updatedBy != uuid.Nil {
		working.UpdatedBy = updatedBy
	}
	working.UpdatedAt = nextTimestamp(current.UpdatedAt)
	s.organizations[orgID] = working

	return working.Clone(), nil
}
