// Package organization implements the permission-gated membership operations
// on organizations. Every mutation loads a snapshot, authorizes the caller,
// applies atomic set operations through the stores, mirrors the change onto
// user records and publishes a domain event once everything succeeded.
package organization

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgmembers/internal/apperr"
	"github.com/wolfeidau/orgmembers/internal/auth"
	"github.com/wolfeidau/orgmembers/internal/events"
	"github.com/wolfeidau/orgmembers/internal/lock"
	"github.com/wolfeidau/orgmembers/internal/models"
	"github.com/wolfeidau/orgmembers/internal/store"
	"github.com/wolfeidau/orgmembers/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

// fanOutLimit bounds concurrent user record writes within one operation.
const fanOutLimit = 8

// compensationTries bounds attempts to undo a partially applied operation.
const compensationTries = 3

// Dependencies are the collaborators shared by every service in this package.
type Dependencies struct {
	Organizations store.OrganizationStore
	Users         store.UserStore

	// Publisher receives domain events. Defaults to events.Discard.
	Publisher events.Publisher

	// Locker serialises writers per organization. Defaults to an in-process lock.
	Locker lock.Locker
}

type core struct {
	orgs      store.OrganizationStore
	users     store.UserStore
	publisher events.Publisher
	locker    lock.Locker
}

func newCore(deps Dependencies) core {
	c := core{
		orgs:      deps.Organizations,
		users:     deps.Users,
		publisher: deps.Publisher,
		locker:    deps.Locker,
	}
	if c.publisher == nil {
		c.publisher = events.Discard
	}
	if c.locker == nil {
		c.locker = lock.NewMemory()
	}
	return c
}

// observe counts the operation and its failure code. Call it deferred with a
// pointer to the named error result.
func observe(ctx context.Context, op string, errp *error) {
	m := telemetry.GetMetrics()
	opAttr := attribute.String("op", op)

	m.OperationsTotal.Add(ctx, 1, metric.WithAttributes(opAttr))

	if err := *errp; err != nil {
		kind := apperr.KindOf(err)
		m.OperationErrorsTotal.Add(ctx, 1, metric.WithAttributes(opAttr, attribute.String("code", kind.String())))

		if kind == apperr.KindInternal {
			log.Error().Err(err).Str("op", op).Msg("Operation failed")
		} else {
			log.Debug().Err(err).Str("op", op).Str("code", kind.String()).Msg("Operation rejected")
		}
	}
}

// lockOrg takes the write lock of an organization.
func (c core) lockOrg(ctx context.Context, op string, orgID uuid.UUID) (lock.Unlock, error) {
	start := time.Now()

	unlock, err := c.locker.Lock(ctx, "org:"+orgID.String())

	telemetry.GetMetrics().LockWaitDuration.Record(ctx,
		float64(time.Since(start).Microseconds())/1000,
		metric.WithAttributes(attribute.String("op", op)),
	)

	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, "failed to lock organization", err)
	}
	return unlock, nil
}

// loadOrg loads an organization snapshot.
func (c core) loadOrg(ctx context.Context, op string, orgID uuid.UUID) (*models.Organization, error) {
	org, err := c.orgs.Get(ctx, orgID)
	if err != nil {
		return nil, translate(op, err)
	}
	return org, nil
}

// loadUser loads a user record.
func (c core) loadUser(ctx context.Context, op string, userID uuid.UUID) (*models.User, error) {
	user, err := c.users.Get(ctx, userID)
	if err != nil {
		return nil, translate(op, err)
	}
	return user, nil
}

// ensureUser returns the caller's user record, creating it from the token
// identity when it doesn't exist yet.
func (c core) ensureUser(ctx context.Context, op string, caller auth.Identity) (*models.User, bool, error) {
	user, err := c.users.Get(ctx, caller.ID)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, store.ErrUserNotFound) {
		return nil, false, translate(op, err)
	}

	now := time.Now().UTC()
	user = &models.User{
		ID:            caller.ID,
		Email:         models.NormalizeEmail(caller.Email),
		Organizations: []uuid.UUID{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := c.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrUserAlreadyExists) {
			// Lost a race with a concurrent registration of the same id.
			if existing, getErr := c.users.Get(ctx, caller.ID); getErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, apperr.UnableToCreate(op, "failed to create user record", err)
	}

	log.Info().
		Str("user_id", user.ID.String()).
		Msg("Created user record from caller identity")

	return user, true, nil
}

// authorize fails with Forbidden unless caller may perform action on org.
func authorize(op string, action auth.Action, org *models.Organization, caller auth.Identity) error {
	if !auth.Evaluate(action, org, caller) {
		return apperr.Forbidden(op, "caller is not allowed to "+string(action)+" this organization")
	}
	return nil
}

// translate maps store errors onto domain error kinds.
func translate(op string, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}

	switch {
	case errors.Is(err, store.ErrOrganizationNotFound):
		return apperr.Wrap(apperr.KindDocumentNotFound, op, "organization not found", err)
	case errors.Is(err, store.ErrUserNotFound):
		return apperr.Wrap(apperr.KindDocumentNotFound, op, "user not found", err)
	case errors.Is(err, store.ErrLastAdmin):
		return apperr.Wrap(apperr.KindActionNotAllowed, op, "organization must keep at least one admin", err)
	case errors.Is(err, store.ErrNotAdmin):
		return apperr.Wrap(apperr.KindActionNotAllowed, op, "user is not an admin of the organization", err)
	case errors.Is(err, store.ErrMemberIsAdmin):
		return apperr.Wrap(apperr.KindActionNotAllowed, op, "user is an admin, remove as admin first", err)
	case errors.Is(err, store.ErrNotMember):
		return apperr.Wrap(apperr.KindActionNotAllowed, op, "user is not a member of the organization", err)
	case errors.Is(err, store.ErrOrganizationHasProjects):
		return apperr.Wrap(apperr.KindActionNotAllowed, op, "organization has active projects", err)
	case errors.Is(err, store.ErrOrganizationAlreadyExists), errors.Is(err, store.ErrUserAlreadyExists):
		return apperr.UnableToCreate(op, "record already exists", err)
	default:
		return apperr.Wrap(apperr.KindInternal, op, "store operation failed", err)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrUserNotFound) || errors.Is(err, store.ErrOrganizationNotFound)
}

func isAlreadyExists(err error) bool {
	return errors.Is(err, store.ErrUserAlreadyExists) || errors.Is(err, store.ErrOrganizationAlreadyExists)
}

// fanOut runs fn for every id concurrently and waits for all of them.
// The first error is returned.
func fanOut(ctx context.Context, ids []uuid.UUID, fn func(ctx context.Context, id uuid.UUID) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOutLimit)

	for _, id := range ids {
		g.Go(func() error {
			return fn(ctx, id)
		})
	}

	return g.Wait()
}

// compensate retries undo until it succeeds or gives up. A failed undo leaves
// the organization and user records out of sync and is logged as such.
func compensate(ctx context.Context, op string, orgID uuid.UUID, cause error, undo func(ctx context.Context) error) {
	m := telemetry.GetMetrics()
	attrs := metric.WithAttributes(attribute.String("op", op))

	// The request may already be cancelled.
	ctx = context.WithoutCancel(ctx)

	m.CompensationsTotal.Add(ctx, 1, attrs)

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, undo(ctx)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(compensationTries),
		backoff.WithNotify(func(err error, d time.Duration) {
			log.Warn().Err(err).Str("op", op).Dur("retry_in", d).Msg("Compensation attempt failed")
		}),
	)
	if err != nil {
		m.CompensationFailuresTotal.Add(ctx, 1, attrs)
		log.Error().
			Err(err).
			AnErr("cause", cause).
			Str("op", op).
			Str("org_id", orgID.String()).
			Msg("Failed to compensate, organization and user records are inconsistent")
		return
	}

	log.Warn().
		AnErr("cause", cause).
		Str("op", op).
		Str("org_id", orgID.String()).
		Msg("Compensated partially applied operation")
}
