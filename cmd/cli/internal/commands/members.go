package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// AdminsCmd manages organization admins.
type AdminsCmd struct {
	List   AdminsListCmd   `cmd:"" help:"List admins"`
	Add    AdminsAddCmd    `cmd:"" help:"Promote a member to admin"`
	Remove AdminsRemoveCmd `cmd:"" help:"Demote an admin to member"`
}

type AdminsListCmd struct {
	Org uuid.UUID `arg:"" help:"Organization ID"`
}

func (c *AdminsListCmd) Run(ctx context.Context, globals *Globals) error {
	api, err := globals.apiClient()
	if err != nil {
		return err
	}

	admins, err := api.ListAdmins(ctx, c.Org)
	if err != nil {
		return fmt.Errorf("failed to list admins: %w", err)
	}

	return printMembers(globals, admins, admins.Admins)
}

type AdminsAddCmd struct {
	Org  uuid.UUID `arg:"" help:"Organization ID"`
	User uuid.UUID `arg:"" help:"ID of the member to promote"`
}

func (c *AdminsAddCmd) Run(ctx context.Context, globals *Globals) error {
	api, err := globals.apiClient()
	if err != nil {
		return err
	}

	admins, err := api.AddAdmin(ctx, c.Org, c.User)
	if err != nil {
		return fmt.Errorf("failed to add admin: %w", err)
	}

	return printMembers(globals, admins, admins.Admins)
}

type AdminsRemoveCmd struct {
	Org  uuid.UUID `arg:"" help:"Organization ID"`
	User uuid.UUID `arg:"" help:"ID of the admin to demote"`
}

func (c *AdminsRemoveCmd) Run(ctx context.Context, globals *Globals) error {
	api, err := globals.apiClient()
	if err != nil {
		return err
	}

	admins, err := api.RemoveAdmin(ctx, c.Org, c.User)
	if err != nil {
		return fmt.Errorf("failed to remove admin: %w", err)
	}

	return printMembers(globals, admins, admins.Admins)
}

// UsersCmd manages organization members.
type UsersCmd struct {
	List   UsersListCmd   `cmd:"" help:"List members"`
	Add    UsersAddCmd    `cmd:"" help:"Add members by email or by user ID"`
	Remove UsersRemoveCmd `cmd:"" help:"Remove a member that is not an admin"`
}

type UsersListCmd struct {
	Org uuid.UUID `arg:"" help:"Organization ID"`
}

func (c *UsersListCmd) Run(ctx context.Context, globals *Globals) error {
	api, err := globals.apiClient()
	if err != nil {
		return err
	}

	users, err := api.ListUsers(ctx, c.Org)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	return printMembers(globals, users, users.Users)
}

type UsersAddCmd struct {
	Org   uuid.UUID   `arg:"" help:"Organization ID"`
	Email string      `help:"Email of the user to add, created if unknown" xor:"target"`
	ID    []uuid.UUID `help:"IDs of existing users to add" xor:"target"`
}

func (c *UsersAddCmd) Run(ctx context.Context, globals *Globals) error {
	if c.Email == "" && len(c.ID) == 0 {
		return errors.New("pass --email or --id")
	}

	api, err := globals.apiClient()
	if err != nil {
		return err
	}

	if c.Email != "" {
		user, err := api.AddUserByEmail(ctx, c.Org, c.Email)
		if err != nil {
			return fmt.Errorf("failed to add user: %w", err)
		}
		return printUser(globals, user)
	}

	users, err := api.AddUsers(ctx, c.Org, c.ID)
	if err != nil {
		return fmt.Errorf("failed to add users: %w", err)
	}

	return printMembers(globals, users, users.Users)
}

type UsersRemoveCmd struct {
	Org  uuid.UUID `arg:"" help:"Organization ID"`
	User uuid.UUID `arg:"" help:"ID of the member to remove"`
}

func (c *UsersRemoveCmd) Run(ctx context.Context, globals *Globals) error {
	api, err := globals.apiClient()
	if err != nil {
		return err
	}

	users, err := api.RemoveUser(ctx, c.Org, c.User)
	if err != nil {
		return fmt.Errorf("failed to remove user: %w", err)
	}

	return printMembers(globals, users, users.Users)
}

type RegisterCmd struct{}

func (c *RegisterCmd) Run(ctx context.Context, globals *Globals) error {
	api, err := globals.apiClient()
	if err != nil {
		return err
	}

	user, err := api.Register(ctx)
	if err != nil {
		return fmt.Errorf("failed to register: %w", err)
	}

	return printUser(globals, user)
}

type MeCmd struct{}

func (c *MeCmd) Run(ctx context.Context, globals *Globals) error {
	api, err := globals.apiClient()
	if err != nil {
		return err
	}

	user, err := api.Me(ctx)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}

	return printUser(globals, user)
}
