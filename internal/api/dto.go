package api

import "github.com/google/uuid"

type createOrganizationRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

type updateOrganizationRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

type addAdminRequest struct {
	AdminID string `json:"adminId" validate:"required,uuid"`
}

type addUserRequest struct {
	UserEmail string `json:"userEmail" validate:"required,email"`
}

type addUsersRequest struct {
	Users []string `json:"users" validate:"required,min=1,dive,uuid"`
}

// userIDs converts validated uuid strings.
func (r addUsersRequest) userIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(r.Users))
	for _, s := range r.Users {
		ids = append(ids, uuid.MustParse(s))
	}
	return ids
}
