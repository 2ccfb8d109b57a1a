package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Organization is the reference-only snapshot of an organization (tenant).
// Membership fields hold user identifiers, never resolved user records; see
// AdminList and UserList for the resolved projections.
type Organization struct {
	ID          uuid.UUID   `json:"id"` // UUIDv7
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Users       []uuid.UUID `json:"users"`
	Admins      []uuid.UUID `json:"admins"`
	Projects    []string    `json:"projects"`
	CreatedBy   uuid.UUID   `json:"createdBy"`
	UpdatedBy   uuid.UUID   `json:"updatedBy"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// IsAdmin reports whether userID is in the admins set.
func (o *Organization) IsAdmin(userID uuid.UUID) bool {
	return slices.Contains(o.Admins, userID)
}

// IsMember reports whether userID is in the users set.
func (o *Organization) IsMember(userID uuid.UUID) bool {
	return slices.Contains(o.Users, userID)
}

// HasProjects reports whether any project references the organization.
func (o *Organization) HasProjects() bool {
	return len(o.Projects) > 0
}

// Clone returns a deep copy so callers can't alias the membership sets.
func (o *Organization) Clone() *Organization {
	clone := *o
	clone.Users = slices.Clone(o.Users)
	clone.Admins = slices.Clone(o.Admins)
	clone.Projects = slices.Clone(o.Projects)
	return &clone
}

// OrganizationPatch holds the mutable descriptive fields of an organization.
// Nil fields are left unchanged.
type OrganizationPatch struct {
	Name        *string
	Description *string
	UpdatedBy   uuid.UUID
}

// OrganizationSummary is the projection returned when listing a user's organizations.
type OrganizationSummary struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
}
