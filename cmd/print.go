package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"yuri91/tenv/cue"
)

var (
	printCmd = &cobra.Command{
		Use:   "print <env-file>",
		Short: "Print an environment definition",
		Long: `Print an environment definition as YAML, after validation and defaults`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return report(print(args[0]))
		},
	}
)

func init() {
}

func print(path string) error {
	def, err := cue.LoadEnv(path)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(def)
}
