package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/wolfeidau/orgmembers/cmd/cli/internal/credentials"
	"github.com/wolfeidau/orgmembers/internal/client"
	"github.com/wolfeidau/orgmembers/internal/models"
)

type Globals struct {
	Debug   bool
	Version string
	// Output is "table" or "json".
	Output  string
	Client  ClientFlags

	// Stdout defaults to os.Stdout.
	Stdout io.Writer
}

func (g *Globals) apiClient() (*client.Client, error) {
	return g.Client.client()
}

func (g *Globals) out() io.Writer {
	if g.Stdout != nil {
		return g.Stdout
	}
	return os.Stdout
}

// ClientFlags select the server and the credential that signs requests.
type ClientFlags struct {
	Server         string        `help:"Server URL" default:"http://localhost:8080" env:"ORGMEMBERS_SERVER"`
	Credential     string        `help:"Credential used to sign requests (default credential if empty)" env:"ORGMEMBERS_CREDENTIAL"`
	Audience       string        `help:"Audience claim placed in signed tokens" env:"ORGMEMBERS_AUDIENCE"`
	CredentialsDir string        `help:"Custom credentials directory" env:"ORGMEMBERS_CREDENTIALS_DIR"`
	Timeout        time.Duration `help:"Request timeout" default:"30s"`
}

func (f ClientFlags) client() (*client.Client, error) {
	store, err := credentials.NewStore(f.CredentialsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential store: %w", err)
	}

	transport, err := credentials.NewAuthTransport(store, f.Credential, f.Audience, nil)
	if err != nil {
		return nil, err
	}

	return client.New(client.Config{
		ServerURL: f.Server,
		Transport: transport,
		Timeout:   f.Timeout,
	})
}

// render writes v as JSON, or calls table with a tabwriter.
func render(g *Globals, v any, table func(w io.Writer)) error {
	if g.Output == "json" {
		enc := json.NewEncoder(g.out())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	w := tabwriter.NewWriter(g.out(), 0, 0, 2, ' ', 0)
	table(w)
	return w.Flush()
}

func printOrganization(g *Globals, org *models.Organization) error {
	return render(g, org, func(w io.Writer) {
		fmt.Fprintf(w, "ID:\t%s\n", org.ID)
		fmt.Fprintf(w, "Name:\t%s\n", org.Name)
		if org.Description != "" {
			fmt.Fprintf(w, "Description:\t%s\n", org.Description)
		}
		fmt.Fprintf(w, "Admins:\t%d\n", len(org.Admins))
		fmt.Fprintf(w, "Users:\t%d\n", len(org.Users))
		if len(org.Projects) > 0 {
			fmt.Fprintf(w, "Projects:\t%s\n", strings.Join(org.Projects, ", "))
		}
		fmt.Fprintf(w, "Created:\t%s\n", org.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(w, "Updated:\t%s\n", org.UpdatedAt.Format(time.RFC3339))
	})
}

func printMembers(g *Globals, v any, members []models.Member) error {
	return render(g, v, func(w io.Writer) {
		fmt.Fprintln(w, "ID\tEMAIL")
		for _, m := range members {
			fmt.Fprintf(w, "%s\t%s\n", m.ID, m.Email)
		}
	})
}

func printUser(g *Globals, user *models.User) error {
	return render(g, user, func(w io.Writer) {
		fmt.Fprintf(w, "ID:\t%s\n", user.ID)
		fmt.Fprintf(w, "Email:\t%s\n", user.Email)
		fmt.Fprintf(w, "Organizations:\t%d\n", len(user.Organizations))
		fmt.Fprintf(w, "Created:\t%s\n", user.CreatedAt.Format(time.RFC3339))
	})
}
