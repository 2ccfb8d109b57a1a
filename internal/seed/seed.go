// Package seed loads users and organizations from a YAML file into the
// stores, for local development and demos. Seeding is idempotent: records
// that already exist are left untouched.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgmembers/internal/models"
	"github.com/wolfeidau/orgmembers/internal/store"
	"gopkg.in/yaml.v3"
)

// File is the seed document.
type File struct {
	Users         []User         `yaml:"users" validate:"dive"`
	Organizations []Organization `yaml:"organizations" validate:"dive"`
}

// User is a seeded user record. The id is generated when omitted.
type User struct {
	ID    string `yaml:"id" validate:"omitempty,uuid"`
	Email string `yaml:"email" validate:"required,email"`
}

// Organization is a seeded organization. Members are referenced by email and
// every admin is also a user.
type Organization struct {
	ID          string   `yaml:"id" validate:"required,uuid"`
	Name        string   `yaml:"name" validate:"required"`
	Description string   `yaml:"description"`
	Admins      []string `yaml:"admins" validate:"required,min=1,dive,email"`
	Users       []string `yaml:"users" validate:"dive,email"`
	Projects    []string `yaml:"projects" validate:"dive,required"`
}

// Result counts the records created by Apply.
type Result struct {
	Users         int
	Organizations int
}

// Load reads and validates a seed file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a seed document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(&f); err != nil {
		return nil, fmt.Errorf("invalid seed file: %w", err)
	}

	return &f, nil
}

// Apply writes the seed into the stores.
func Apply(ctx context.Context, orgs store.OrganizationStore, users store.UserStore, f *File) (Result, error) {
	var res Result
	now := time.Now().UTC()

	for _, u := range f.Users {
		created, err := ensureUser(ctx, users, u, now)
		if err != nil {
			return res, err
		}
		if created {
			res.Users++
		}
	}

	for _, o := range f.Organizations {
		created, err := applyOrganization(ctx, orgs, users, o, now)
		if err != nil {
			return res, fmt.Errorf("organization %q: %w", o.Name, err)
		}
		if created {
			res.Organizations++
		}
	}

	log.Info().
		Int("users", res.Users).
		Int("organizations", res.Organizations).
		Msg("Applied seed")

	return res, nil
}

func ensureUser(ctx context.Context, users store.UserStore, u User, now time.Time) (bool, error) {
	_, err := users.GetByEmail(ctx, u.Email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, store.ErrUserNotFound) {
		return false, fmt.Errorf("failed to look up user %s: %w", u.Email, err)
	}

	id := uuid.Must(uuid.NewV7())
	if u.ID != "" {
		id = uuid.MustParse(u.ID)
	}

	err = users.Create(ctx, &models.User{
		ID:            id,
		Email:         models.NormalizeEmail(u.Email),
		Organizations: []uuid.UUID{},
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return false, fmt.Errorf("failed to create user %s: %w", u.Email, err)
	}

	return true, nil
}

func applyOrganization(ctx context.Context, orgs store.OrganizationStore, users store.UserStore, o Organization, now time.Time) (bool, error) {
	orgID := uuid.MustParse(o.ID)

	if _, err := orgs.Get(ctx, orgID); err == nil {
		return false, nil
	}

	admins, err := resolve(ctx, users, o.Admins)
	if err != nil {
		return false, err
	}
	members, err := resolve(ctx, users, append(append([]string{}, o.Admins...), o.Users...))
	if err != nil {
		return false, err
	}

	org := &models.Organization{
		ID:          orgID,
		Name:        o.Name,
		Description: o.Description,
		Users:       members,
		Admins:      admins,
		Projects:    dedupe(o.Projects),
		CreatedBy:   admins[0],
		UpdatedBy:   admins[0],
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := orgs.Create(ctx, org); err != nil {
		return false, fmt.Errorf("failed to create organization: %w", err)
	}

	for _, userID := range members {
		if _, err := users.AddOrganization(ctx, userID, orgID); err != nil {
			return false, fmt.Errorf("failed to link user %s: %w", userID, err)
		}
	}

	return true, nil
}

// resolve maps emails to user ids, dropping duplicates.
func resolve(ctx context.Context, users store.UserStore, emails []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(emails))
	seen := make(map[uuid.UUID]struct{}, len(emails))

	for _, email := range emails {
		u, err := users.GetByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("unknown user %s: %w", email, err)
		}
		if _, ok := seen[u.ID]; ok {
			continue
		}
		seen[u.ID] = struct{}{}
		ids = append(ids, u.ID)
	}

	return ids, nil
}

func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
