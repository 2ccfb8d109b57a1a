package models

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is the minimal user record consumed by the membership service.
// Organizations mirrors the organizations whose users set contains this user.
type User struct {
	ID            uuid.UUID   `json:"id"` // UUIDv7
	Email         string      `json:"email"`
	Organizations []uuid.UUID `json:"organizations"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// BelongsTo reports whether the user record references orgID.
func (u *User) BelongsTo(orgID uuid.UUID) bool {
	return slices.Contains(u.Organizations, orgID)
}

// Clone returns a deep copy of the user.
func (u *User) Clone() *User {
	clone := *u
	clone.Organizations = slices.Clone(u.Organizations)
	return &clone
}

// Member returns the resolved projection of the user.
func (u *User) Member() Member {
	return Member{ID: u.ID, Email: u.Email}
}

// NormalizeEmail canonicalises an email address for lookups and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
