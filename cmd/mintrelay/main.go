package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "mintrelay",
		Usage: "Solana wallet and token transfer service CLI",
		Description: `A command-line tool for the mintrelay service.

Use this CLI to generate keypairs, sign and verify messages locally,
and drive the HTTP API for mint creation and token transfers.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// Local key and message commands (no server required)
			keypairCommands(),
			messageCommands(),
			// HTTP API commands
			tokenCommands(),
			transactionsCommand(),
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Server URL for API commands",
				EnvVars: []string{"MINTRELAY_SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
