package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgmembers/cmd/cli/internal/commands"
	"github.com/wolfeidau/orgmembers/internal/logger"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug mode."`
		Version kong.VersionFlag
		Output  string `help:"Output format" default:"table" enum:"table,json" short:"o"`

		Client commands.ClientFlags `embed:""`

		Credentials commands.CredentialsCmd `cmd:"" help:"Manage local signing credentials"`
		Orgs        commands.OrgsCmd        `cmd:"" help:"Manage organizations"`
		Admins      commands.AdminsCmd      `cmd:"" help:"Manage organization admins"`
		Users       commands.UsersCmd       `cmd:"" help:"Manage organization members"`
		Register    commands.RegisterCmd    `cmd:"" help:"Create your user record on the server"`
		Me          commands.MeCmd          `cmd:"" help:"Show your user record"`
	}
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Name("orgctl"),
		kong.Description("Command line client for the organization membership API."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))

	zlog.Logger = logger.Setup(cli.Debug)

	err := cmd.Run(&commands.Globals{
		Debug:   cli.Debug,
		Version: version,
		Output:  cli.Output,
		Client:  cli.Client,
	})
	cmd.FatalIfErrorf(err)
}
