package main

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mintrelay/mintrelay/service/wallet"
)

// keypairCommands groups the local keypair operations. These never talk to a
// server; keys are generated and printed locally.
func keypairCommands() *cli.Command {
	return &cli.Command{
		Name:  "keypair",
		Usage: "Local keypair commands",
		Subcommands: []*cli.Command{
			keypairNewCommand(),
			keypairPubkeyCommand(),
		},
	}
}

func keypairNewCommand() *cli.Command {
	return &cli.Command{
		Name:    "new",
		Aliases: []string{"generate"},
		Usage:   "Generate a new keypair",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			kp := wallet.Generate()

			if c.Bool("json") {
				data, _ := json.Marshal(map[string]any{
					"pubkey": kp.PublicKey().String(),
					"secret": kp.String(),
				})
				fmt.Println(string(data))
			} else {
				fmt.Printf("Pubkey: %s\n", kp.PublicKey().String())
				fmt.Printf("Secret: %s\n", kp.String())
			}

			return nil
		},
	}
}

func keypairPubkeyCommand() *cli.Command {
	return &cli.Command{
		Name:      "pubkey",
		Usage:     "Derive the public key from a base58-encoded keypair",
		ArgsUsage: "SECRET",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("secret is required")
			}

			kp, err := wallet.FromBase58(c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("invalid secret: %w", err)
			}

			fmt.Println(kp.PublicKey().String())
			return nil
		},
	}
}

// messageCommands groups local message signing and verification.
func messageCommands() *cli.Command {
	return &cli.Command{
		Name:  "message",
		Usage: "Message signing and verification commands",
		Subcommands: []*cli.Command{
			messageSignCommand(),
			messageVerifyCommand(),
		},
	}
}

func messageSignCommand() *cli.Command {
	return &cli.Command{
		Name:      "sign",
		Usage:     "Sign a message with a base58-encoded keypair",
		ArgsUsage: "MESSAGE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "secret",
				Aliases:  []string{"k"},
				Usage:    "Base58-encoded keypair to sign with",
				EnvVars:  []string{"MINTRELAY_SECRET"},
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
				return fmt.Errorf("message is required")
			}

			message := c.Args().Get(0)
			kp, err := wallet.FromBase58(c.String("secret"))
			if err != nil {
				return fmt.Errorf("invalid secret: %w", err)
			}

			sig := kp.SignMessage([]byte(message))

			if c.Bool("json") {
				data, _ := json.Marshal(map[string]any{
					"signature": sig.String(),
					"publicKey": kp.PublicKey().String(),
					"message":   message,
				})
				fmt.Println(string(data))
			} else {
				fmt.Printf("Signature: %s\n", sig.String())
				fmt.Printf("Public Key: %s\n", kp.PublicKey().String())
			}

			return nil
		},
	}
}

func messageVerifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Verify a message signature against a public key",
		ArgsUsage: "MESSAGE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "signature",
				Aliases:  []string{"g"},
				Usage:    "Base58-encoded signature",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "pubkey",
				Aliases:  []string{"p"},
				Usage:    "Base58-encoded public key",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("message is required")
			}

			message := c.Args().Get(0)
			pub, err := wallet.PublicKeyFromBase58(c.String("pubkey"))
			if err != nil {
				return fmt.Errorf("invalid pubkey: %w", err)
			}
			sig, err := wallet.SignatureFromBase58(c.String("signature"))
			if err != nil {
				return fmt.Errorf("invalid signature: %w", err)
			}

			if wallet.Verify(pub, sig, []byte(message)) {
				fmt.Println("✓ Signature valid")
				return nil
			}

			fmt.Println("✗ Signature invalid")
			return cli.Exit("", 1)
		},
	}
}
