package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/kr/pretty"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"yuri91/tenv/common"
	"yuri91/tenv/cue"
	"yuri91/tenv/sandbox"
)

var (
	checkParams []string

	checkCmd = &cobra.Command{
		Use:   "check <template>",
		Short: "Check a template",
		Long: `Run a template with the given parameters and print what it declares, without creating anything`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return report(check(args[0]))
		},
	}
)

func init() {
	checkCmd.Flags().StringArrayVarP(&checkParams, "param", "p", nil, "template parameter as key=value, value in YAML syntax")
}

func parseParams(kvs []string) (map[string]interface{}, error) {
	params := map[string]interface{}{}
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid parameter %q, want key=value", kv)
		}
		var val interface{}
		if err := yaml.Unmarshal([]byte(v), &val); err != nil || val == nil {
			val = v
		}
		params[k] = val
	}
	return params, nil
}

func check(name string) error {
	params, err := parseParams(checkParams)
	if err != nil {
		return err
	}
	t, err := cue.LoadTemplate(common.TplPath, name)
	if err != nil {
		return err
	}
	decls, err := sandbox.Run(context.Background(), []*sandbox.Instance{sandbox.NewInstance(t, 0, params)})
	if err != nil {
		return err
	}
	fmt.Printf("%# v\n", pretty.Formatter(decls[0]))
	return nil
}
