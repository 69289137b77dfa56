package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"yuri91/tenv/env"
	"yuri91/tenv/podman"
)

var (
	purgeCmd = &cobra.Command{
		Use:   "purge",
		Short: "Purge tenv containers and networks",
		Long: `Remove every container and network created by tenv, including leftovers of crashed runs`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return purge()
		},
	}
)

func init() {
}

func purge() error {
	ctx := context.Background()
	be, err := podman.Connect(ctx, podmanURI)
	if err != nil {
		return err
	}
	return env.Purge(ctx, be)
}
