package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"yuri91/tenv/image"
	"yuri91/tenv/podman"
)

var (
	fetchCmd = &cobra.Command{
		Use:   "fetch <ref>...",
		Short: "Fetch images",
		Long: `Pull images ahead of time, so environments using them start faster`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fetch(args)
		},
	}
)

func init() {
}

func fetch(refs []string) error {
	ctx := context.Background()
	be, err := podman.Connect(ctx, podmanURI)
	if err != nil {
		return err
	}
	for _, r := range refs {
		ref, err := image.NormalizeReference(r)
		if err != nil {
			return err
		}
		id, err := be.PullImage(ctx, ref)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s\n", ref, id)
	}
	return nil
}
