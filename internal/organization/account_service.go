package organization

import (
	"context"

	"github.com/wolfeidau/orgmembers/internal/auth"
	"github.com/wolfeidau/orgmembers/internal/models"
)

// AccountService exposes the caller's own user record.
type AccountService struct {
	core
}

// NewAccountService creates the account service.
func NewAccountService(deps Dependencies) *AccountService {
	return &AccountService{core: newCore(deps)}
}

// Register creates the caller's user record from the token identity. The
// boolean reports whether the record was created by this call; registering
// again returns the existing record.
func (s *AccountService) Register(ctx context.Context, caller auth.Identity) (_ *models.User, created bool, err error) {
	const op = "user.register"
	defer observe(ctx, op, &err)

	return s.ensureUser(ctx, op, caller)
}

// Me returns the caller's user record.
func (s *AccountService) Me(ctx context.Context, caller auth.Identity) (_ *models.User, err error) {
	const op = "user.me"
	defer observe(ctx, op, &err)

	return s.loadUser(ctx, op, caller.ID)
}
