package models

import "github.com/google/uuid"

// Member is a user identifier resolved to its identity and email.
type Member struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

// AdminList is the resolved projection of an organization's admins.
type AdminList struct {
	ID     uuid.UUID `json:"id"`
	Admins []Member  `json:"admins"`
}

// UserList is the resolved projection of an organization's users.
type UserList struct {
	ID    uuid.UUID `json:"id"`
	Users []Member  `json:"users"`
}
