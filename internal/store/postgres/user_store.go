package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgmembers/internal/models"
	"github.com/wolfeidau/orgmembers/internal/store"
)

const userColumns = `user_id, email, organizations, created_at, updated_at`

// UserStore implements store.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new PostgreSQL-backed user store.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{
		pool: pool,
	}
}

// Create creates a new user in the database.
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (
			user_id, email, organizations, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5
		)
	`

	_, err := s.pool.Exec(ctx, query,
		user.ID,
		models.NormalizeEmail(user.Email),
		nonNil(user.Organizations),
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("user_id", user.ID.String()).
		Msg("Created user")

	return nil
}

// Get retrieves a user by ID.
func (s *UserStore) Get(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`
	return s.getOne(ctx, query, userID)
}

// GetByEmail retrieves a user by email.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return s.getOne(ctx, query, models.NormalizeEmail(email))
}

// AddOrganization adds orgID to the user's organization set.
func (s *UserStore) AddOrganization(ctx context.Context, userID, orgID uuid.UUID) (*models.User, error) {
	query := `
		UPDATE users SET
			organizations = array_append(organizations, $2),
			updated_at = GREATEST(NOW(), updated_at)
		WHERE user_id = $1 AND NOT ($2 = ANY(organizations))
		RETURNING ` + userColumns

	return s.mutate(ctx, userID, orgID, "add organization", query)
}

// RemoveOrganization pulls orgID from the user's organization set.
func (s *UserStore) RemoveOrganization(ctx context.Context, userID, orgID uuid.UUID) (*models.User, error) {
	query := `
		UPDATE users SET
			organizations = array_remove(organizations, $2),
			updated_at = GREATEST(NOW(), updated_at)
		WHERE user_id = $1 AND $2 = ANY(organizations)
		RETURNING ` + userColumns

	return s.mutate(ctx, userID, orgID, "remove organization", query)
}

// ListByIDs returns the users matching ids in the order given.
func (s *UserStore) ListByIDs(ctx context.Context, userIDs []uuid.UUID) ([]*models.User, error) {
	if len(userIDs) == 0 {
		return []*models.User{}, nil
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = ANY($1)`

	rows, err := s.pool.Query(ctx, query, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]*models.User, len(userIDs))
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		byID[user.ID] = user
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	users := make([]*models.User, 0, len(byID))
	for _, id := range userIDs {
		if user, ok := byID[id]; ok {
			users = append(users, user)
		}
	}

	return users, nil
}

func (s *UserStore) getOne(ctx context.Context, query string, arg any) (*models.User, error) {
	user, err := scanUser(s.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *UserStore) mutate(ctx context.Context, userID, orgID uuid.UUID, op, query string) (*models.User, error) {
	user, err := scanUser(s.pool.QueryRow(ctx, query, userID, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the set already had the desired shape or the user is missing.
			return s.Get(ctx, userID)
		}
		return nil, fmt.Errorf("failed to %s: %w", op, mapPostgresError(err))
	}

	log.Debug().
		Str("user_id", userID.String()).
		Str("org_id", orgID.String()).
		Str("op", op).
		Msg("Updated user organizations")

	return user, nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Organizations,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
