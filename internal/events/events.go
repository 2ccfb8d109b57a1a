// Package events defines the closed set of organization domain events and the
// publishers that deliver them. Delivery is fire-and-forget: publishers never
// report failures to the caller and never retry.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/orgmembers/internal/auth"
	"github.com/wolfeidau/orgmembers/internal/models"
)

// Kind is the wire name of an event variant.
type Kind string

const (
	KindOrganizationCreated Kind = "organization.created"
	KindOrganizationUpdated Kind = "organization.updated"
	KindOrganizationDeleted Kind = "organization.deleted"
	KindUserCreated         Kind = "organization.user.created"
	KindUserAdded           Kind = "organization.user.added"
	KindUserUpdated         Kind = "organization.user.updated"
	KindUserDeleted         Kind = "organization.user.deleted"
	KindAdminUpdated        Kind = "organization.admin.updated"
	KindAdminDeleted        Kind = "organization.admin.deleted"
)

// Kinds lists every event kind.
var Kinds = []Kind{
	KindOrganizationCreated,
	KindOrganizationUpdated,
	KindOrganizationDeleted,
	KindUserCreated,
	KindUserAdded,
	KindUserUpdated,
	KindUserDeleted,
	KindAdminUpdated,
	KindAdminDeleted,
}

// Event is implemented only by the variants in this package.
type Event interface {
	Kind() Kind
	Meta() Envelope
	sealed()
}

// Envelope carries the fields common to every event.
type Envelope struct {
	Organization models.Organization `json:"organization"`
	Actor        auth.Identity       `json:"actor"`
	OccurredAt   time.Time           `json:"occurredAt"`
}

// NewEnvelope snapshots org for an event raised by actor.
func NewEnvelope(org *models.Organization, actor auth.Identity) Envelope {
	return Envelope{
		Organization: *org.Clone(),
		Actor:        actor,
		OccurredAt:   time.Now().UTC(),
	}
}

// Meta returns the common event fields.
func (e Envelope) Meta() Envelope { return e }

func (Envelope) sealed() {}

// OrganizationCreated is raised after an organization is created.
type OrganizationCreated struct {
	Envelope
}

// OrganizationUpdated is raised after an organization's fields or projects change.
type OrganizationUpdated struct {
	Envelope
}

// OrganizationDeleted is raised after an organization is deleted. The
// snapshot is the organization as it was before deletion.
type OrganizationDeleted struct {
	Envelope
}

// UserCreated is raised when adding a member by email created the user record.
type UserCreated struct {
	Envelope
	User models.User `json:"user"`
}

// UserAdded is raised when an existing user is added as a member by email.
type UserAdded struct {
	Envelope
	User models.User `json:"user"`
}

// UserUpdated is raised once per user newly added by a bulk member update.
type UserUpdated struct {
	Envelope
	UserID uuid.UUID `json:"userId"`
}

// UserDeleted is raised after a member is removed.
type UserDeleted struct {
	Envelope
	User models.User `json:"user"`
}

// AdminUpdated is raised after a user is made an admin.
type AdminUpdated struct {
	Envelope
	Admin models.Member `json:"admin"`
}

// AdminDeleted is raised after an admin is demoted to a member.
type AdminDeleted struct {
	Envelope
	Admin models.Member `json:"admin"`
}

func (OrganizationCreated) Kind() Kind { return KindOrganizationCreated }
func (OrganizationUpdated) Kind() Kind { return KindOrganizationUpdated }
func (OrganizationDeleted) Kind() Kind { return KindOrganizationDeleted }
func (UserCreated) Kind() Kind         { return KindUserCreated }
func (UserAdded) Kind() Kind           { return KindUserAdded }
func (UserUpdated) Kind() Kind         { return KindUserUpdated }
func (UserDeleted) Kind() Kind         { return KindUserDeleted }
func (AdminUpdated) Kind() Kind        { return KindAdminUpdated }
func (AdminDeleted) Kind() Kind        { return KindAdminDeleted }

// Publisher delivers events. Publish must not block on subscribers and has no
// failure result.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// PublisherFunc adapts a function to a Publisher.
type PublisherFunc func(ctx context.Context, event Event)

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, event Event) {
	f(ctx, event)
}

// Discard drops every event.
var Discard Publisher = PublisherFunc(func(context.Context, Event) {})

// Multi returns a publisher that publishes to each of publishers in turn.
func Multi(publishers ...Publisher) Publisher {
	return PublisherFunc(func(ctx context.Context, event Event) {
		for _, p := range publishers {
			p.Publish(ctx, event)
		}
	})
}
