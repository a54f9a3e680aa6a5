package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"

	"github.com/mintrelay/mintrelay/client"
)

// newAPIClient builds an HTTP client for the server named by the global
// --server-url flag, logging errors only.
func newAPIClient(c *cli.Context) *client.Client {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	return client.NewClient(c.String("server-url"), nil, logger)
}

func tokenCommands() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Token mint and transfer commands",
		Subcommands: []*cli.Command{
			tokenCreateCommand(),
			tokenSendCommand(),
		},
	}
}

func tokenCreateCommand() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Create and initialize a new token mint",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "mint-authority",
				Usage:    "Base58-encoded mint authority address",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "mint",
				Usage:    "Base58-encoded keypair for the new mint account",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "decimals",
				Usage: "Number of decimal places for the token",
				Value: 6,
			},
			&cli.StringFlag{
				Name:    "payer",
				Usage:   "Base58-encoded fee payer keypair (falls back to the server's configured payer)",
				EnvVars: []string{"MINTRELAY_PAYER"},
			},
			&cli.StringFlag{
				Name:  "freeze-authority",
				Usage: "Base58-encoded freeze authority address (optional)",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			cl := newAPIClient(c)

			result, err := cl.CreateToken(context.Background(), client.CreateTokenParams{
				MintAuthority:   c.String("mint-authority"),
				Mint:            c.String("mint"),
				Decimals:        c.Int("decimals"),
				Payer:           c.String("payer"),
				FreezeAuthority: c.String("freeze-authority"),
			})
			if err != nil {
				return fmt.Errorf("failed to create mint: %w", err)
			}

			if c.Bool("json") {
				data, _ := json.Marshal(result)
				fmt.Println(string(data))
			} else {
				fmt.Printf("✓ Mint created successfully\n")
				fmt.Printf("  Mint Address: %s\n", result.MintAddress)
				fmt.Printf("  Signature: %s\n", result.Signature)
			}

			return nil
		},
	}
}

func tokenSendCommand() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "Transfer tokens to another owner's associated token account",
		ArgsUsage: "DESTINATION_ADDRESS",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "mint",
				Usage:    "Base58-encoded mint address of the token",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "owner",
				Usage:    "Base58-encoded keypair of the source owner",
				EnvVars:  []string{"MINTRELAY_OWNER"},
				Required: true,
			},
			&cli.Uint64Flag{
				Name:     "amount",
				Usage:    "Amount in base units (no decimal scaling)",
				Required: true,
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("destination address is required")
			}

			cl := newAPIClient(c)

			signature, err := cl.SendToken(context.Background(), client.SendTokenParams{
				Destination: c.Args().Get(0),
				Mint:        c.String("mint"),
				Owner:       c.String("owner"),
				Amount:      c.Uint64("amount"),
			})
			if err != nil {
				return fmt.Errorf("failed to send tokens: %w", err)
			}

			if c.Bool("json") {
				data, _ := json.Marshal(map[string]any{
					"signature": signature,
				})
				fmt.Println(string(data))
			} else {
				fmt.Printf("✓ Transfer confirmed\n")
				fmt.Printf("  Signature: %s\n", signature)
			}

			return nil
		},
	}
}

func transactionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "transactions",
		Aliases: []string{"txns"},
		Usage:   "List logged transaction submissions",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of submissions to return",
				Value: 100,
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Number of submissions to skip",
			},
			&cli.StringFlag{
				Name:    "filter",
				Aliases: []string{"f"},
				Usage:   "jq expression applied to each submission (e.g. '.status == \"confirmed\"')",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			cl := newAPIClient(c)

			subs, err := cl.ListTransactions(context.Background(), c.Int("limit"), c.Int("offset"))
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}

			if filter := c.String("filter"); filter != "" {
				subs, err = filterSubmissions(subs, filter)
				if err != nil {
					return err
				}
			}

			if c.Bool("json") {
				data, _ := json.Marshal(subs)
				fmt.Println(string(data))
				return nil
			}

			if len(subs) == 0 {
				fmt.Println("No transactions found")
				return nil
			}

			for _, sub := range subs {
				fmt.Printf("%s  %-12s %-10s %s\n", sub.CreatedAt, sub.Kind, sub.Status, sub.Signature)
				if sub.Error != nil {
					fmt.Printf("    error: %s\n", *sub.Error)
				}
			}
			return nil
		},
	}
}

// filterSubmissions keeps submissions for which the jq expression yields a
// truthy value.
func filterSubmissions(subs []*client.Submission, filter string) ([]*client.Submission, error) {
	query, err := gojq.Parse(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
	}

	var matched []*client.Submission
	for _, sub := range subs {
		// Round-trip through JSON so jq sees plain maps
		data, err := json.Marshal(sub)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal submission: %w", err)
		}
		var subJSON any
		if err := json.Unmarshal(data, &subJSON); err != nil {
			return nil, fmt.Errorf("failed to unmarshal submission: %w", err)
		}

		iter := code.Run(subJSON)
		v, ok := iter.Next()
		if !ok {
			continue
		}
		if _, isErr := v.(error); isErr {
			continue
		}
		if isTruthy(v) {
			matched = append(matched, sub)
		}
	}
	return matched, nil
}

// isTruthy reports whether a jq result counts as a match. jq treats false
// and null as falsy; everything else is truthy.
func isTruthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	default:
		return true
	}
}

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check whether the server is up",
		Action: func(c *cli.Context) error {
			cl := newAPIClient(c)

			if err := cl.Health(context.Background()); err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}

			fmt.Println("✓ Server is healthy")
			return nil
		},
	}
}
