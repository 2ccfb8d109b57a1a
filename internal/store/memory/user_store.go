package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/wolfeidau/orgmembers/internal/models"
	"github.com/wolfeidau/orgmembers/internal/store"
)

// UserStore implements store.UserStore using in-memory storage.
// This implementation is for testing and local development - data is lost on restart.
type UserStore struct {
	mu sync.RWMutex

	users        map[uuid.UUID]*models.User // user_id -> User
	usersByEmail map[string]*models.User    // email -> User
}

// NewUserStore creates a new in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{
		users:        make(map[uuid.UUID]*models.User),
		usersByEmail: make(map[string]*models.User),
	}
}

// Create creates a new user in memory.
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.ID]; exists {
		return store.ErrUserAlreadyExists
	}

	email := models.NormalizeEmail(user.Email)
	if _, exists := s.usersByEmail[email]; exists {
		return store.ErrUserAlreadyExists
	}

	clone := user.Clone()
	clone.Email = email
	s.users[clone.ID] = clone
	s.usersByEmail[email] = clone

	return nil
}

// Get retrieves a user by ID.
func (s *UserStore) Get(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[userID]
	if !exists {
		return nil, store.ErrUserNotFound
	}

	return user.Clone(), nil
}

// GetByEmail retrieves a user by email.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByEmail[models.NormalizeEmail(email)]
	if !exists {
		return nil, store.ErrUserNotFound
	}

	return user.Clone(), nil
}

// AddOrganization adds orgID to the user's organization set.
func (s *UserStore) AddOrganization(ctx context.Context, userID, orgID uuid.UUID) (*models.User, error) {
	return s.mutate(userID, func(user *models.User) bool {
		var changed bool
		user.Organizations, changed = addToSet(user.Organizations, orgID)
		return changed
	})
}

// RemoveOrganization pulls orgID from the user's organization set.
func (s *UserStore) RemoveOrganization(ctx context.Context, userID, orgID uuid.UUID) (*models.User, error) {
	return s.mutate(userID, func(user *models.User) bool {
		var changed bool
		user.Organizations, changed = pull(user.Organizations, orgID)
		return changed
	})
}

// ListByIDs returns the users matching ids in the order given.
func (s *UserStore) ListByIDs(ctx context.Context, userIDs []uuid.UUID) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.User, 0, len(userIDs))
	for _, id := range userIDs {
		if user, exists := s.users[id]; exists {
			result = append(result, user.Clone())
		}
	}

	return result, nil
}

func (s *UserStore) mutate(userID uuid.UUID, fn func(user *models.User) bool) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.users[userID]
	if !exists {
		return nil, store.ErrUserNotFound
	}

	working := current.Clone()
	if !fn(working) {
		return working, nil
	}

	working.UpdatedAt = nextTimestamp(current.UpdatedAt)
	s.users[userID] = working
	s.usersByEmail[working.Email] = working

	return working.Clone(), nil
}
