package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/wolfeidau/orgmembers/internal/client"
)

// OrgsCmd manages organizations.
type OrgsCmd struct {
	List          OrgsListCmd          `cmd:"" help:"List organizations you belong to"`
	Create        OrgsCreateCmd        `cmd:"" help:"Create an organization, you become its first admin"`
	Get           OrgsGetCmd           `cmd:"" help:"Show an organization"`
	Update        OrgsUpdateCmd        `cmd:"" help:"Change an organization's name or description"`
	Delete        OrgsDeleteCmd        `cmd:"" help:"Delete an organization with no projects"`
	AttachProject OrgsAttachProjectCmd `cmd:"" name:"attach-project" help:"Attach a project reference"`
	DetachProject OrgsDetachProjectCmd `cmd:"" name:"detach-project" help:"Detach a project reference"`
}

type OrgsListCmd struct{}

func (c *OrgsListCmd) Run(ctx context.Context, globals *Globals) error {
	api, err := globals.apiClient()
	if err != nil {
		return err
	}

	orgs, err := api.ListOrganizations(ctx)
	if err != nil {
		return fmt.Errorf("failed to list organizations: %w", err)
	}

	return render(globals, orgs, func(w io.Writer) {
		fmt.Fprintln(w, "ID\tNAME\tDESCRIPTION")
		for _, org := range orgs {
			fmt.Fprintf(w, "%s\t%s\t%s\n", org.ID, org.Name, org.Description)
		}
	})
}

type OrgsCreateCmd struct {
	Name        string `arg:"" help:"Organization name"`
	Description string `help:"Organization description"`
}

func (c *OrgsCreateCmd) Run(ctx context.Context, globals *Globals) error {
	api, err := globals.apiClient()
	if err != nil {
		return err
	}

	org, err := api.CreateOrganization(ctx, c.Name, c.Description)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}

	return printOrganization(globals, org)
}

type OrgsGetCmd struct {
	ID uuid.UUID `arg:"" help:"Organization ID"`
}

func (c *OrgsGetCmd) Run(ctx context.Context, globals *Globals) error {
	api, err := globals.apiClient()
	if err != nil {
		return err
	}

	org, err := api.GetOrganization(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("failed to get organization: %w", err)
	}

	return printOrganization(globals, org)
}

type OrgsUpdateCmd struct {
	ID          uuid.UUID `arg:"" help:"Organization ID"`
	Name        *string   `help:"New name"`
	Description *string   `help:"New description"`
}

func (c *OrgsUpdateCmd) Run(ctx context.Context, globals *Globals) error {
	if c.Name == nil && c.Description == nil {
		return fmt.Errorf("nothing to update, pass --name or --description")
	}

	api, err := globals.apiClient()
	if err != nil {
		return err
	}

	org, err := api.UpdateOrganization(ctx, c.ID, client.UpdateOrganization{
		Name:        c.Name,
		Description: c.Description,
	})
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", err)
	}

	return printOrganization(globals, org)
}

type OrgsDeleteCmd struct {
	ID uuid.UUID `arg:"" help:"Organization ID"`
}

func (c *OrgsDeleteCmd) Run(ctx context.Context, globals *Globals) error {
	api, err := globals.apiClient()
	if err != nil {
		return err
	}

	org, err := api.DeleteOrganization(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}

	return render(globals, org, func(w io.Writer) {
		fmt.Fprintf(w, "Organization %q deleted.\n", org.Name)
	})
}

type OrgsAttachProjectCmd struct {
	ID      uuid.UUID `arg:"" help:"Organization ID"`
	Project string    `arg:"" help:"Project reference"`
}

func (c *OrgsAttachProjectCmd) Run(ctx context.Context, globals *Globals) error {
	api, err := globals.apiClient()
	if err != nil {
		return err
	}

	org, err := api.AttachProject(ctx, c.ID, c.Project)
	if err != nil {
		return fmt.Errorf("failed to attach project: %w", err)
	}

	return printOrganization(globals, org)
}

type OrgsDetachProjectCmd struct {
	ID      uuid.UUID `arg:"" help:"Organization ID"`
	Project string    `arg:"" help:"Project reference"`
}

func (c *OrgsDetachProjectCmd) Run(ctx context.Context, globals *Globals) error {
	api, err := globals.apiClient()
	if err != nil {
		return err
	}

	org, err := api.DetachProject(ctx, c.ID, c.Project)
	if err != nil {
		return fmt.Errorf("failed to detach project: %w", err)
	}

	return printOrganization(globals, org)
}
