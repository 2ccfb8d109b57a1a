package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/wolfeidau/orgmembers/cmd/cli/internal/credentials"
)

// CredentialsCmd manages local credentials.
type CredentialsCmd struct {
	Init       CredentialsInitCmd       `cmd:"" help:"Generate a new signing keypair"`
	List       CredentialsListCmd       `cmd:"" help:"List all credentials"`
	Show       CredentialsShowCmd       `cmd:"" help:"Show credential details and public key"`
	Update     CredentialsUpdateCmd     `cmd:"" help:"Change the email a credential signs for"`
	Delete     CredentialsDeleteCmd     `cmd:"" help:"Delete a credential"`
	SetDefault CredentialsSetDefaultCmd `cmd:"" name:"set-default" help:"Set the default credential"`
}

func openStore(dir string) (*credentials.Store, error) {
	store, err := credentials.NewStore(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential store: %w", err)
	}
	return store, nil
}

func notFound(name string, err error) error {
	if errors.Is(err, credentials.ErrCredentialNotFound) {
		return fmt.Errorf("credential %q not found\n\nRun 'orgctl credentials list' to see available credentials", name)
	}
	return fmt.Errorf("failed to get credential: %w", err)
}

// CredentialsInitCmd generates a new credential keypair.
type CredentialsInitCmd struct {
	Name       string `arg:"" help:"Name for the credential (e.g., work)"`
	Email      string `help:"Email placed in signed tokens" required:""`
	SetDefault bool   `help:"Set as the default credential" default:"false"`
	OutputDir  string `help:"Custom credentials directory (default: ~/.orgmembers/credentials/)"`
}

func (c *CredentialsInitCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := openStore(c.OutputDir)
	if err != nil {
		return err
	}

	cred, err := store.Create(c.Name, c.Email)
	if err != nil {
		if errors.Is(err, credentials.ErrCredentialExists) {
			return fmt.Errorf("credential %q already exists\n\nTo delete and recreate:\n  orgctl credentials delete %s\n  orgctl credentials init %s --email %s", c.Name, c.Name, c.Name, c.Email)
		}
		return fmt.Errorf("failed to create credential: %w", err)
	}

	if c.SetDefault {
		if err := store.SetDefault(c.Name); err != nil {
			return fmt.Errorf("failed to set default: %w", err)
		}
	}

	publicKeyPEM, err := store.LoadPublicKeyPEM(c.Name)
	if err != nil {
		return fmt.Errorf("failed to load public key: %w", err)
	}

	w := globals.out()
	fmt.Fprintf(w, "Generated credential: %s\n", cred.Name)
	fmt.Fprintf(w, "User ID:     %s\n", cred.UserID)
	fmt.Fprintf(w, "Fingerprint: %s\n", cred.Fingerprint)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Start the server with this public key to accept its tokens:")
	fmt.Fprintf(w, "  orgmembers serve --auth-public-key-file <file> --auth-issuer %s\n", credentials.Issuer)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Public Key:")
	fmt.Fprintln(w, publicKeyPEM)

	return nil
}

// CredentialsListCmd lists all credentials.
type CredentialsListCmd struct {
	OutputDir string `help:"Custom credentials directory"`
}

func (c *CredentialsListCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := openStore(c.OutputDir)
	if err != nil {
		return err
	}

	creds, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list credentials: %w", err)
	}

	if len(creds) == 0 && globals.Output != "json" {
		fmt.Fprintln(globals.out(), "No credentials found.")
		fmt.Fprintln(globals.out())
		fmt.Fprintln(globals.out(), "To create a new credential:")
		fmt.Fprintln(globals.out(), "  orgctl credentials init <name> --email <email>")
		return nil
	}

	defaultName := ""
	if defaultCred, err := store.GetDefault(); err == nil {
		defaultName = defaultCred.Name
	}

	return render(globals, creds, func(w io.Writer) {
		fmt.Fprintln(w, "NAME\tEMAIL\tFINGERPRINT\tDEFAULT")
		for _, cred := range creds {
			isDefault := ""
			if cred.Name == defaultName {
				isDefault = "*"
			}

			// Truncate fingerprint for display
			fp := cred.Fingerprint
			if len(fp) > 12 {
				fp = fp[:12] + "..."
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", cred.Name, cred.Email, fp, isDefault)
		}
	})
}

// CredentialsShowCmd shows details of a credential.
type CredentialsShowCmd struct {
	Name      string `arg:"" help:"Credential name"`
	OutputDir string `help:"Custom credentials directory"`
}

func (c *CredentialsShowCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := openStore(c.OutputDir)
	if err != nil {
		return err
	}

	cred, err := store.Get(c.Name)
	if err != nil {
		return notFound(c.Name, err)
	}

	publicKeyPEM, err := store.LoadPublicKeyPEM(c.Name)
	if err != nil {
		return fmt.Errorf("failed to load public key: %w", err)
	}

	return render(globals, cred, func(w io.Writer) {
		fmt.Fprintf(w, "Name:\t%s\n", cred.Name)
		fmt.Fprintf(w, "User ID:\t%s\n", cred.UserID)
		fmt.Fprintf(w, "Email:\t%s\n", cred.Email)
		fmt.Fprintf(w, "Fingerprint:\t%s\n", cred.Fingerprint)
		fmt.Fprintf(w, "Created:\t%s\n", cred.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(w, "Updated:\t%s\n", cred.UpdatedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Public Key:")
		fmt.Fprintln(w, publicKeyPEM)
	})
}

// CredentialsUpdateCmd changes the email of a credential.
type CredentialsUpdateCmd struct {
	Name      string `arg:"" help:"Credential name"`
	Email     string `help:"New email placed in signed tokens" required:""`
	OutputDir string `help:"Custom credentials directory"`
}

func (c *CredentialsUpdateCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := openStore(c.OutputDir)
	if err != nil {
		return err
	}

	if _, err := store.Get(c.Name); err != nil {
		return notFound(c.Name, err)
	}

	if err := store.Update(c.Name, c.Email); err != nil {
		return fmt.Errorf("failed to update credential: %w", err)
	}

	fmt.Fprintf(globals.out(), "Credential %q updated.\n", c.Name)
	return nil
}

// CredentialsDeleteCmd deletes a credential.
type CredentialsDeleteCmd struct {
	Name      string `arg:"" help:"Credential name"`
	Force     bool   `help:"Skip confirmation" default:"false"`
	OutputDir string `help:"Custom credentials directory"`

	// stdin defaults to os.Stdin.
	stdin io.Reader
}

func (c *CredentialsDeleteCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := openStore(c.OutputDir)
	if err != nil {
		return err
	}

	if _, err := store.Get(c.Name); err != nil {
		if errors.Is(err, credentials.ErrCredentialNotFound) {
			return fmt.Errorf("credential %q not found", c.Name)
		}
		return fmt.Errorf("failed to get credential: %w", err)
	}

	if !c.Force {
		fmt.Fprintf(globals.out(), "Deleting %q removes its private key, tokens it signed stop being renewable.\n", c.Name)
		fmt.Fprint(globals.out(), "Continue? [y/N]: ")

		var response string
		if c.stdin != nil {
			_, _ = fmt.Fscanln(c.stdin, &response)
		} else {
			_, _ = fmt.Scanln(&response)
		}
		if response != "y" && response != "Y" {
			fmt.Fprintln(globals.out(), "Aborted.")
			return nil
		}
	}

	if err := store.Delete(c.Name); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	fmt.Fprintf(globals.out(), "Credential %q deleted.\n", c.Name)
	return nil
}

// CredentialsSetDefaultCmd sets the default credential.
type CredentialsSetDefaultCmd struct {
	Name      string `arg:"" help:"Credential name"`
	OutputDir string `help:"Custom credentials directory"`
}

func (c *CredentialsSetDefaultCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := openStore(c.OutputDir)
	if err != nil {
		return err
	}

	if _, err := store.Get(c.Name); err != nil {
		return notFound(c.Name, err)
	}

	if err := store.SetDefault(c.Name); err != nil {
		return fmt.Errorf("failed to set default: %w", err)
	}

	fmt.Fprintf(globals.out(), "Default credential set to %q.\n", c.Name)
	return nil
}
