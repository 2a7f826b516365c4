package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teliax/ringer-docs/pkg/auth"
)

func newHashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key [key]",
		Short: "Hash an API key for the config file",
		Long: `Print the bcrypt hash of an API key for auth.api_keys[].key_hash.
Without an argument a new random key is generated and printed with its hash.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string

			if len(args) == 1 {
				key = args[0]
			} else {
				generated, err := auth.GenerateKey()
				if err != nil {
					return err
				}

				key = generated

				fmt.Printf("Key:  %s\n", key)
			}

			hash, err := auth.HashKey(key)
			if err != nil {
				return err
			}

			fmt.Printf("Hash: %s\n", hash)

			return nil
		},
	}
}
