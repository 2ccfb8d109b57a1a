package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgmembers/internal/models"
	"github.com/wolfeidau/orgmembers/internal/store"
)

const organizationColumns = `
	org_id, name, description, users, admins, projects,
	created_by, updated_by, created_at, updated_at
`

// OrganizationStore implements store.OrganizationStore using PostgreSQL.
//
// Membership changes are single-statement UPDATEs whose WHERE clause carries
// the precondition, so the row lock taken by the UPDATE makes check and write
// atomic. When no row matches, the current row is read back to classify why.
type OrganizationStore struct {
	pool *pgxpool.Pool
}

// NewOrganizationStore creates a new PostgreSQL-backed organization store.
// It shares the connection pool with the user store.
func NewOrganizationStore(pool *pgxpool.Pool) *OrganizationStore {
	return &OrganizationStore{
		pool: pool,
	}
}

// Create creates a new organization in the database.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	query := `
		INSERT INTO organizations (
			org_id, name, description, users, admins, projects,
			created_by, updated_by, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
	`

	_, err := s.pool.Exec(ctx, query,
		org.ID,
		org.Name,
		org.Description,
		nonNil(org.Users),
		nonNil(org.Admins),
		nonNil(org.Projects),
		org.CreatedBy,
		org.UpdatedBy,
		org.CreatedAt,
		org.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrOrganizationAlreadyExists
		}
		return fmt.Errorf("failed to create organization: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("org_id", org.ID.String()).
		Str("name", org.Name).
		Msg("Created organization")

	return nil
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE org_id = $1`

	org, err := scanOrganization(s.pool.QueryRow(ctx, query, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	return org, nil
}

// Update applies the patch to the organization's descriptive fields.
func (s *OrganizationStore) Update(ctx context.Context, orgID uuid.UUID, patch models.OrganizationPatch) (*models.Organization, error) {
	query := `
		UPDATE organizations SET
			name = COALESCE($2, name),
			description = COALESCE($3, description),
			updated_by = $4,
			updated_at = GREATEST(NOW(), updated_at)
		WHERE org_id = $1
		RETURNING ` + organizationColumns

	org, err := scanOrganization(s.pool.QueryRow(ctx, query, orgID, patch.Name, patch.Description, patch.UpdatedBy))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to update organization: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("org_id", orgID.String()).
		Msg("Updated organization")

	return org, nil
}

// Delete deletes an organization that has no projects.
func (s *OrganizationStore) Delete(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	query := `
		DELETE FROM organizations
		WHERE org_id = $1 AND cardinality(projects) = 0
		RETURNING ` + organizationColumns

	org, err := scanOrganization(s.pool.QueryRow(ctx, query, orgID))
	if err == nil {
		log.Info().
			Str("org_id", orgID.String()).
			Msg("Deleted organization")
		return org, nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to delete organization: %w", mapPostgresError(err))
	}

	if _, err := s.Get(ctx, orgID); err != nil {
		return nil, err
	}

	return nil, store.ErrOrganizationHasProjects
}

// AddUsers adds each identifier to the users set.
func (s *OrganizationStore) AddUsers(ctx context.Context, orgID, updatedBy uuid.UUID, userIDs ...uuid.UUID) (*models.Organization, error) {
	ids := dedupe(userIDs)

	query := `
		UPDATE organizations SET
			users = users || ARRAY(
				SELECT t.id FROM unnest($3::uuid[]) WITH ORDINALITY AS t(id, ord)
				WHERE NOT (t.id = ANY(organizations.users))
				ORDER BY t.ord
			),
			updated_by = $2,
			updated_at = GREATEST(NOW(), updated_at)
		WHERE org_id = $1 AND NOT ($3::uuid[] <@ users)
		RETURNING ` + organizationColumns

	return s.mutate(ctx, orgID, "add users", query, orgID, updatedBy, ids)
}

// AddAdmin adds the identifier to the admins and users sets.
func (s *OrganizationStore) AddAdmin(ctx context.Context, orgID, updatedBy, adminID uuid.UUID) (*models.Organization, error) {
	query := `
		UPDATE organizations SET
			users = CASE WHEN $3 = ANY(users) THEN users ELSE array_append(users, $3) END,
			admins = CASE WHEN $3 = ANY(admins) THEN admins ELSE array_append(admins, $3) END,
			updated_by = $2,
			updated_at = GREATEST(NOW(), updated_at)
		WHERE org_id = $1 AND NOT ($3 = ANY(admins) AND $3 = ANY(users))
		RETURNING ` + organizationColumns

	return s.mutate(ctx, orgID, "add admin", query, orgID, updatedBy, adminID)
}

// RemoveAdmin pulls the identifier from the admins set, never emptying it.
func (s *OrganizationStore) RemoveAdmin(ctx context.Context, orgID, updatedBy, adminID uuid.UUID) (*models.Organization, error) {
	query := `
		UPDATE organizations SET
			admins = array_remove(admins, $3),
			updated_by = $2,
			updated_at = GREATEST(NOW(), updated_at)
		WHERE org_id = $1 AND $3 = ANY(admins) AND cardinality(admins) > 1
		RETURNING ` + organizationColumns

	org, err := s.guarded(ctx, orgID, "remove admin", query, orgID, updatedBy, adminID)
	if err != nil || org != nil {
		return org, err
	}

	current, err := s.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if !current.IsAdmin(adminID) {
		return nil, store.ErrNotAdmin
	}
	return nil, store.ErrLastAdmin
}

// RemoveUser pulls the identifier from the users set unless it is an admin.
func (s *OrganizationStore) RemoveUser(ctx context.Context, orgID, updatedBy, userID uuid.UUID) (*models.Organization, error) {
	query := `
		UPDATE organizations SET
			users = array_remove(users, $3),
			updated_by = $2,
			updated_at = GREATEST(NOW(), updated_at)
		WHERE org_id = $1 AND $3 = ANY(users) AND NOT ($3 = ANY(admins))
		RETURNING ` + organizationColumns

	org, err := s.guarded(ctx, orgID, "remove user", query, orgID, updatedBy, userID)
	if err != nil || org != nil {
		return org, err
	}

	current, err := s.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if current.IsAdmin(userID) {
		return nil, store.ErrMemberIsAdmin
	}
	return nil, store.ErrNotMember
}

// AddProject adds a project reference to the projects set.
func (s *OrganizationStore) AddProject(ctx context.Context, orgID, updatedBy uuid.UUID, project string) (*models.Organization, error) {
	query := `
		UPDATE organizations SET
			projects = array_append(projects, $3),
			updated_by = $2,
			updated_at = GREATEST(NOW(), updated_at)
		WHERE org_id = $1 AND NOT ($3 = ANY(projects))
		RETURNING ` + organizationColumns

	return s.mutate(ctx, orgID, "add project", query, orgID, updatedBy, project)
}

// RemoveProject pulls a project reference from the projects set.
func (s *OrganizationStore) RemoveProject(ctx context.Context, orgID, updatedBy uuid.UUID, project string) (*models.Organization, error) {
	query := `
		UPDATE organizations SET
			projects = array_remove(projects, $3),
			updated_by = $2,
			updated_at = GREATEST(NOW(), updated_at)
		WHERE org_id = $1 AND $3 = ANY(projects)
		RETURNING ` + organizationColumns

	return s.mutate(ctx, orgID, "remove project", query, orgID, updatedBy, project)
}

// ListByIDs returns the organizations matching ids in the order given.
func (s *OrganizationStore) ListByIDs(ctx context.Context, orgIDs []uuid.UUID) ([]*models.Organization, error) {
	if len(orgIDs) == 0 {
		return []*models.Organization{}, nil
	}

	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE org_id = ANY($1)`

	rows, err := s.pool.Query(ctx, query, orgIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]*models.Organization, len(orgIDs))
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		byID[org.ID] = org
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating organizations: %w", err)
	}

	orgs := make([]*models.Organization, 0, len(byID))
	for _, id := range orgIDs {
		if org, ok := byID[id]; ok {
			orgs = append(orgs, org)
		}
	}

	return orgs, nil
}

// mutate runs an idempotent set update. A statement that matched no row means
// the set already had the desired shape, so the current row is returned.
func (s *OrganizationStore) mutate(ctx context.Context, orgID uuid.UUID, op, query string, args ...any) (*models.Organization, error) {
	org, err := s.guarded(ctx, orgID, op, query, args...)
	if err != nil || org != nil {
		return org, err
	}
	return s.Get(ctx, orgID)
}

// guarded runs a conditional update, returning a nil organization when the
// precondition didn't hold.
func (s *OrganizationStore) guarded(ctx context.Context, orgID uuid.UUID, op, query string, args ...any) (*models.Organization, error) {
	org, err := scanOrganization(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to %s: %w", op, mapPostgresError(err))
	}

	log.Debug().
		Str("org_id", orgID.String()).
		Str("op", op).
		Msg("Updated organization membership")

	return org, nil
}

func scanOrganization(row pgx.Row) (*models.Organization, error) {
	var org models.Organization
	err := row.Scan(
		&org.ID,
		&org.Name,
		&org.Description,
		&org.Users,
		&org.Admins,
		&org.Projects,
		&org.CreatedBy,
		&org.UpdatedBy,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
