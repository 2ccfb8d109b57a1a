package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/orgmembers/internal/models"
)

// Sentinel errors for user store operations
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
)

// UserStore defines the interface for the user records referenced by organizations.
// The membership service only reads users, creates them by email, and patches
// their organization set.
type UserStore interface {
	// Create creates a new user.
	// Returns ErrUserAlreadyExists if the ID or email is already taken.
	Create(ctx context.Context, user *models.User) error

	// Get retrieves a user by ID.
	// Returns ErrUserNotFound if the user doesn't exist.
	Get(ctx context.Context, userID uuid.UUID) (*models.User, error)

	// GetByEmail retrieves a user by normalised email.
	// Returns ErrUserNotFound if no user has the email.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// AddOrganization adds orgID to the user's organization set.
	AddOrganization(ctx context.Context, userID, orgID uuid.UUID) (*models.User, error)

	// RemoveOrganization pulls orgID from the user's organization set.
	RemoveOrganization(ctx context.Context, userID, orgID uuid.UUID) (*models.User, error)

	// ListByIDs returns the users matching ids, skipping unknown ids.
	ListByIDs(ctx context.Context, userIDs []uuid.UUID) ([]*models.User, error)
}

// Populate resolves membership identifiers into member projections, preserving
// the order of ids. Identifiers without a user record are skipped.
func Populate(ctx context.Context, users UserStore, ids []uuid.UUID) ([]models.Member, error) {
	members := make([]models.Member, 0, len(ids))
	if len(ids) == 0 {
		return members, nil
	}

	records, err := users.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]*models.User, len(records))
	for _, u := range records {
		byID[u.ID] = u
	}

	for _, id := range ids {
		if u, ok := byID[id]; ok {
			members = append(members, u.Member())
		}
	}

	return members, nil
}
