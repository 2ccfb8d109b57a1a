package events

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSubscriber returns a handler that records every event it receives.
// It stands in for the email and audit consumers.
func LogSubscriber(logger zerolog.Logger) Handler {
	return HandlerFunc(func(ctx context.Context, event Event) error {
		meta := event.Meta()

		entry := logger.Info().
			Str("kind", string(event.Kind())).
			Str("org_id", meta.Organization.ID.String()).
			Str("actor_id", meta.Actor.ID.String()).
			Time("occurred_at", meta.OccurredAt)

		switch e := event.(type) {
		case UserCreated:
			entry = entry.Str("user_id", e.User.ID.String())
		case UserAdded:
			entry = entry.Str("user_id", e.User.ID.String())
		case UserUpdated:
			entry = entry.Str("user_id", e.UserID.String())
		case UserDeleted:
			entry = entry.Str("user_id", e.User.ID.String())
		case AdminUpdated:
			entry = entry.Str("admin_id", e.Admin.ID.String())
		case AdminDeleted:
			entry = entry.Str("admin_id", e.Admin.ID.String())
		}

		entry.Msg("Organization event")
		return nil
	})
}
