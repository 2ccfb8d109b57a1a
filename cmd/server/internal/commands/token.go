package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/orgmembers/internal/auth"
)

// TokenCmd signs a bearer token for local testing against a server started
// with the matching public key.
type TokenCmd struct {
	Subject    string        `help:"user id placed in the sub claim, generated when empty"`
	Email      string        `help:"email claim" required:""`
	Scopes     []string      `help:"permissions claim"`
	Issuer     string        `help:"token issuer" default:"" env:"ORGMEMBERS_JWT_ISSUER"`
	TTL        time.Duration `help:"token lifetime" default:"1h"`
	SigningKey string        `help:"PEM encoded ECDSA signing key" required:"" env:"ORGMEMBERS_JWT_SIGNING_KEY"`
}

func (t *TokenCmd) Run(ctx context.Context) error {
	id := uuid.Must(uuid.NewV7())
	if t.Subject != "" {
		parsed, err := uuid.Parse(t.Subject)
		if err != nil {
			return fmt.Errorf("invalid subject: %w", err)
		}
		id = parsed
	}

	token, err := auth.IssueToken(t.SigningKey, t.Issuer, auth.Identity{
		ID:     id,
		Email:  t.Email,
		Scopes: t.Scopes,
	}, t.TTL)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stdout, token)
	return nil
}
