package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/wolfeidau/orgmembers/internal/organization"
)

func (h *Handler) createOrganization(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	var req createOrganizationRequest
	if !h.decode(w, r, &req) {
		return
	}

	org, err := h.orgs.Create(r.Context(), id, organization.CreateInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, org)
}

func (h *Handler) listOrganizations(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	orgs, err := h.orgs.FindAll(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, orgs)
}

func (h *Handler) getOrganization(w http.ResponseWriter, r *http.Request) {
	id, orgID, ok := callerAndOrg(w, r)
	if !ok {
		return
	}

	org, err := h.orgs.FindOne(r.Context(), id, orgID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, org)
}

func (h *Handler) updateOrganization(w http.ResponseWriter, r *http.Request) {
	id, orgID, ok := callerAndOrg(w, r)
	if !ok {
		return
	}

	var req updateOrganizationRequest
	if !h.decode(w, r, &req) {
		return
	}

	org, err := h.orgs.Update(r.Context(), id, orgID, organization.UpdateInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, org)
}

func (h *Handler) deleteOrganization(w http.ResponseWriter, r *http.Request) {
	id, orgID, ok := callerAndOrg(w, r)
	if !ok {
		return
	}

	org, err := h.orgs.Remove(r.Context(), id, orgID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, org)
}

func (h *Handler) attachProject(w http.ResponseWriter, r *http.Request) {
	id, orgID, ok := callerAndOrg(w, r)
	if !ok {
		return
	}

	org, err := h.orgs.AttachProject(r.Context(), id, orgID, r.PathValue("ref"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, org)
}

func (h *Handler) detachProject(w http.ResponseWriter, r *http.Request) {
	id, orgID, ok := callerAndOrg(w, r)
	if !ok {
		return
	}

	org, err := h.orgs.DetachProject(r.Context(), id, orgID, r.PathValue("ref"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, org)
}

func (h *Handler) listAdmins(w http.ResponseWriter, r *http.Request) {
	id, orgID, ok := callerAndOrg(w, r)
	if !ok {
		return
	}

	admins, err := h.admins.FindAll(r.Context(), id, orgID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, admins)
}

func (h *Handler) addAdmin(w http.ResponseWriter, r *http.Request) {
	id, orgID, ok := callerAndOrg(w, r)
	if !ok {
		return
	}

	var req addAdminRequest
	if !h.decode(w, r, &req) {
		return
	}

	admins, err := h.admins.Update(r.Context(), id, orgID, uuid.MustParse(req.AdminID))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, admins)
}

func (h *Handler) removeAdmin(w http.ResponseWriter, r *http.Request) {
	id, orgID, ok := callerAndOrg(w, r)
	if !ok {
		return
	}

	adminID, ok := pathUUID(w, r, "adminId")
	if !ok {
		return
	}

	admins, err := h.admins.Remove(r.Context(), id, orgID, adminID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, admins)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	id, orgID, ok := callerAndOrg(w, r)
	if !ok {
		return
	}

	users, err := h.users.FindAll(r.Context(), id, orgID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) addUserByEmail(w http.ResponseWriter, r *http.Request) {
	id, orgID, ok := callerAndOrg(w, r)
	if !ok {
		return
	}

	var req addUserRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.users.Create(r.Context(), id, orgID, req.UserEmail)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) addUsers(w http.ResponseWriter, r *http.Request) {
	id, orgID, ok := callerAndOrg(w, r)
	if !ok {
		return
	}

	var req addUsersRequest
	if !h.decode(w, r, &req) {
		return
	}

	users, err := h.users.Update(r.Context(), id, orgID, req.userIDs())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) removeUser(w http.ResponseWriter, r *http.Request) {
	id, orgID, ok := callerAndOrg(w, r)
	if !ok {
		return
	}

	userID, ok := pathUUID(w, r, "userId")
	if !ok {
		return
	}

	users, err := h.users.Remove(r.Context(), id, orgID, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	user, created, err := h.accounts.Register(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, user)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	user, err := h.accounts.Me(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
