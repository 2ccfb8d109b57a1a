// Package api exposes the organization services over HTTP with JSON bodies.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/orgmembers/internal/apperr"
	"github.com/wolfeidau/orgmembers/internal/auth"
	httpmiddleware "github.com/wolfeidau/orgmembers/internal/http"
	"github.com/wolfeidau/orgmembers/internal/logger"
	"github.com/wolfeidau/orgmembers/internal/organization"
)

const maxBodyBytes = 1 << 20

// Config wires the services and middleware into the API handler.
type Config struct {
	Organizations *organization.Service
	Admins        *organization.AdminService
	Users         *organization.UserService
	Accounts      *organization.AccountService

	// Authenticate places the caller identity in the request context.
	Authenticate httpmiddleware.Middleware

	Logger         zerolog.Logger
	AllowedOrigins []string
}

// Handler serves the organization API.
type Handler struct {
	orgs     *organization.Service
	admins   *organization.AdminService
	users    *organization.UserService
	accounts *organization.AccountService
	validate *validator.Validate
}

// NewHandler builds the routed and middleware wrapped API handler.
func NewHandler(cfg Config) http.Handler {
	h := &Handler{
		orgs:     cfg.Organizations,
		admins:   cfg.Admins,
		users:    cfg.Users,
		accounts: cfg.Accounts,
		validate: newValidator(),
	}

	api := http.NewServeMux()

	api.HandleFunc("POST /organization", h.createOrganization)
	api.HandleFunc("GET /organization", h.listOrganizations)
	api.HandleFunc("GET /organization/{id}", h.getOrganization)
	api.HandleFunc("PATCH /organization/{id}", h.updateOrganization)
	api.HandleFunc("DELETE /organization/{id}", h.deleteOrganization)
	api.HandleFunc("PUT /organization/{id}/projects/{ref}", h.attachProject)
	api.HandleFunc("DELETE /organization/{id}/projects/{ref}", h.detachProject)

	api.HandleFunc("GET /organization/{id}/admins", h.listAdmins)
	api.HandleFunc("PATCH /organization/{id}/admins", h.addAdmin)
	api.HandleFunc("DELETE /organization/{id}/admins/{adminId}", h.removeAdmin)

	api.HandleFunc("GET /organization/{id}/users", h.listUsers)
	api.HandleFunc("POST /organization/{id}/users", h.addUserByEmail)
	api.HandleFunc("PATCH /organization/{id}/users", h.addUsers)
	api.HandleFunc("DELETE /organization/{id}/users/{userId}", h.removeUser)

	api.HandleFunc("POST /user", h.register)
	api.HandleFunc("GET /user/me", h.me)

	authenticate := cfg.Authenticate
	if authenticate == nil {
		authenticate = func(next http.Handler) http.Handler { return next }
	}

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	root.Handle("/", authenticate(api))

	return httpmiddleware.Chain(root,
		httpmiddleware.RequestIDMiddleware(),
		httpmiddleware.ClientIPMiddleware(),
		logger.Requests(cfg.Logger),
		withCORS(cfg.AllowedOrigins),
	)
}

func withCORS(allowedOrigins []string) httpmiddleware.Middleware {
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedHeaders: []string{"Authorization", "Content-Type", httpmiddleware.RequestIDHeader},
		ExposedHeaders: []string{httpmiddleware.RequestIDHeader},
	})
	return c.Handler
}

// newValidator reports json field names in validation errors.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// caller returns the authenticated identity or writes a 401.
func caller(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, apperr.New(apperr.KindUnauthenticated, "api", "authentication required"))
		return auth.Identity{}, false
	}
	return id, true
}

// pathUUID parses a uuid path parameter or writes a 400.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, r, validationError("api", name+" must be a uuid", err))
		return uuid.Nil, false
	}
	return id, true
}

func callerAndOrg(w http.ResponseWriter, r *http.Request) (auth.Identity, uuid.UUID, bool) {
	id, ok := caller(w, r)
	if !ok {
		return auth.Identity{}, uuid.Nil, false
	}
	orgID, ok := pathUUID(w, r, "id")
	if !ok {
		return auth.Identity{}, uuid.Nil, false
	}
	return id, orgID, true
}

// decode reads and validates a JSON body or writes a 400.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, validationError("api", "request body too large", err))
			return false
		}
		writeError(w, r, validationError("api", "malformed request body", err))
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		writeError(w, r, validationError("api", "request validation failed", err))
		return false
	}

	return true
}
