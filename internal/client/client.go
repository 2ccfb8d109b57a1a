// Package client is a typed HTTP client for the organization membership API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgmembers/internal/apperr"
	"github.com/wolfeidau/orgmembers/internal/models"
)

// Config holds common client configuration
type Config struct {
	ServerURL string
	// Transport authenticates requests, usually a credentials.AuthTransport.
	Transport http.RoundTripper
	Timeout   time.Duration
	// MaxTries bounds attempts for idempotent reads. Zero means 3.
	MaxTries uint
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		ServerURL: "http://localhost:8080",
		Timeout:   30 * time.Second,
		MaxTries:  3,
	}
}

// Error is a non-2xx API response.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	Fields     []FieldError
}

// FieldError names a request field the server rejected.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
	}
	fields := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		fields = append(fields, f.Field+"="+f.Rule)
	}
	return fmt.Sprintf("%s (%d): %s [%s]", e.Code, e.StatusCode, e.Message, strings.Join(fields, ", "))
}

// Kind returns the domain error kind named by Code.
func (e *Error) Kind() apperr.Kind {
	return apperr.ParseKind(e.Code)
}

// IsKind reports whether err is an API error of the given kind.
func IsKind(err error, kind apperr.Kind) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind() == kind
}

type errorBody struct {
	Error struct {
		Code    string       `json:"code"`
		Message string       `json:"message"`
		Fields  []FieldError `json:"fields"`
	} `json:"error"`
}

// Client calls the organization API.
type Client struct {
	baseURL  string
	http     *http.Client
	maxTries uint
}

// New creates a client for the server at cfg.ServerURL.
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server url %q", cfg.ServerURL)
	}

	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	maxTries := cfg.MaxTries
	if maxTries == 0 {
		maxTries = 3
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.ServerURL, "/"),
		http:     &http.Client{Transport: transport, Timeout: cfg.Timeout},
		maxTries: maxTries,
	}, nil
}

// UpdateOrganization carries the fields to change. Nil fields are left alone.
type UpdateOrganization struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (c *Client) CreateOrganization(ctx context.Context, name, description string) (*models.Organization, error) {
	body := map[string]string{"name": name, "description": description}
	return call[models.Organization](ctx, c, http.MethodPost, "/organization", body)
}

func (c *Client) ListOrganizations(ctx context.Context) ([]models.OrganizationSummary, error) {
	res, err := call[[]models.OrganizationSummary](ctx, c, http.MethodGet, "/organization", nil)
	if err != nil {
		return nil, err
	}
	return *res, nil
}

func (c *Client) GetOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	return call[models.Organization](ctx, c, http.MethodGet, orgPath(orgID), nil)
}

func (c *Client) UpdateOrganization(ctx context.Context, orgID uuid.UUID, in UpdateOrganization) (*models.Organization, error) {
	return call[models.Organization](ctx, c, http.MethodPatch, orgPath(orgID), in)
}

// DeleteOrganization returns the organization as it was before removal.
func (c *Client) DeleteOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	return call[models.Organization](ctx, c, http.MethodDelete, orgPath(orgID), nil)
}

func (c *Client) AttachProject(ctx context.Context, orgID uuid.UUID, project string) (*models.Organization, error) {
	return call[models.Organization](ctx, c, http.MethodPut, orgPath(orgID)+"/projects/"+url.PathEscape(project), nil)
}

func (c *Client) DetachProject(ctx context.Context, orgID uuid.UUID, project string) (*models.Organization, error) {
	return call[models.Organization](ctx, c, http.MethodDelete, orgPath(orgID)+"/projects/"+url.PathEscape(project), nil)
}

func (c *Client) ListAdmins(ctx context.Context, orgID uuid.UUID) (*models.AdminList, error) {
	return call[models.AdminList](ctx, c, http.MethodGet, orgPath(orgID)+"/admins", nil)
}

// AddAdmin promotes an existing member.
func (c *Client) AddAdmin(ctx context.Context, orgID, adminID uuid.UUID) (*models.AdminList, error) {
	body := map[string]string{"adminId": adminID.String()}
	return call[models.AdminList](ctx, c, http.MethodPatch, orgPath(orgID)+"/admins", body)
}

func (c *Client) RemoveAdmin(ctx context.Context, orgID, adminID uuid.UUID) (*models.AdminList, error) {
	return call[models.AdminList](ctx, c, http.MethodDelete, orgPath(orgID)+"/admins/"+adminID.String(), nil)
}

func (c *Client) ListUsers(ctx context.Context, orgID uuid.UUID) (*models.UserList, error) {
	return call[models.UserList](ctx, c, http.MethodGet, orgPath(orgID)+"/users", nil)
}

// AddUserByEmail adds a member, creating the user record when needed.
func (c *Client) AddUserByEmail(ctx context.Context, orgID uuid.UUID, email string) (*models.User, error) {
	body := map[string]string{"userEmail": email}
	return call[models.User](ctx, c, http.MethodPost, orgPath(orgID)+"/users", body)
}

// AddUsers adds existing users by id.
func (c *Client) AddUsers(ctx context.Context, orgID uuid.UUID, userIDs []uuid.UUID) (*models.UserList, error) {
	ids := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		ids = append(ids, id.String())
	}
	return call[models.UserList](ctx, c, http.MethodPatch, orgPath(orgID)+"/users", map[string][]string{"users": ids})
}

func (c *Client) RemoveUser(ctx context.Context, orgID, userID uuid.UUID) (*models.UserList, error) {
	return call[models.UserList](ctx, c, http.MethodDelete, orgPath(orgID)+"/users/"+userID.String(), nil)
}

// Register creates the caller's user record if it does not exist yet.
func (c *Client) Register(ctx context.Context) (*models.User, error) {
	return call[models.User](ctx, c, http.MethodPost, "/user", nil)
}

// Me returns the caller's user record.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	return call[models.User](ctx, c, http.MethodGet, "/user/me", nil)
}

// Healthz checks the server is reachable.
func (c *Client) Healthz(ctx context.Context) error {
	_, err := call[map[string]string](ctx, c, http.MethodGet, "/healthz", nil)
	return err
}

func orgPath(orgID uuid.UUID) string {
	return "/organization/" + orgID.String()
}

// call sends one request and decodes the response into T. GETs are retried
// on network errors and 5xx responses.
func call[T any](ctx context.Context, c *Client, method, path string, body any) (*T, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	tries := uint(1)
	if method == http.MethodGet {
		tries = c.maxTries
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 2 * time.Second

	return backoff.Retry(ctx, func() (*T, error) {
		return send[T](ctx, c, method, path, payload)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(tries),
	)
}

func send[T any](ctx context.Context, c *Client, method, path string, payload []byte) (*T, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		log.Debug().Err(err).Str("method", method).Str("path", path).Msg("request failed")
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := decodeError(resp.StatusCode, data)
		if resp.StatusCode >= 500 {
			log.Debug().Int("status", resp.StatusCode).Str("path", path).Msg("server error")
			return nil, apiErr
		}
		return nil, backoff.Permanent(apiErr)
	}

	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	return out, nil
}

func decodeError(status int, data []byte) *Error {
	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil || body.Error.Code == "" {
		return &Error{
			StatusCode: status,
			Code:       apperr.KindInternal.String(),
			Message:    strings.TrimSpace(http.StatusText(status) + " " + string(bytes.TrimSpace(data))),
		}
	}
	return &Error{
		StatusCode: status,
		Code:       body.Error.Code,
		Message:    body.Error.Message,
		Fields:     body.Error.Fields,
	}
}
