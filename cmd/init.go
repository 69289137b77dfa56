package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"yuri91/tenv/common"
	"yuri91/tenv/cue"
)

var (
	initCmd = &cobra.Command{
		Use:   "init <name>",
		Short: "Create a template skeleton",
		Long: `Create a template skeleton and its data directory in the template directory`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doInit(args[0])
		},
	}
)

func init() {
}

func doInit(name string) error {
	if err := cue.Init(common.TplPath, name); err != nil {
		return err
	}
	fmt.Printf("created %s%s\n", name, cue.TemplateSuffix)
	return nil
}
