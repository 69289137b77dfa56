package cmd

import (
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"yuri91/tenv/common"
	"yuri91/tenv/env"
	"yuri91/tenv/podman"
)

var (
	tplDir           string
	stateDir         string
	podmanURI        string
	address          string
	buildTimeout     time.Duration
	readinessTimeout time.Duration
	parallel         int
	debug            bool

	rootCmd = &cobra.Command{
		Use:   "tenv",
		Short: "A test environment assembler",
		Long: `Tenv runs templates to assemble throwaway environments of containers,
builds or fetches their images, starts them through podman and waits until they are ready`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug {
				logrus.SetLevel(logrus.DebugLevel)
			}
			common.SetPaths(tplDir, stateDir)
		},
	}
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	defaults := env.DefaultOptions()

	rootCmd.PersistentFlags().StringVar(&tplDir, "tpl-dir", ".", "template directory")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state", filepath.Join(os.TempDir(), "tenv"), "directory for build contexts and mounted files")
	rootCmd.PersistentFlags().StringVar(&podmanURI, "podman", podman.DefaultURI, "podman service URI")
	rootCmd.PersistentFlags().StringVar(&address, "address", defaults.ExternalAddress, "address published ports are reached on")
	rootCmd.PersistentFlags().DurationVar(&buildTimeout, "build-timeout", defaults.BuildTimeout, "time allowed to build images and start containers")
	rootCmd.PersistentFlags().DurationVar(&readinessTimeout, "readiness-timeout", defaults.ReadinessTimeout, "default time allowed to each readiness check")
	rootCmd.PersistentFlags().IntVar(&parallel, "parallel", defaults.MaxParallelBuilds, "images built or fetched at the same time")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug logging")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(printCmd)
}

func options() env.Options {
	o := env.DefaultOptions()
	o.ExternalAddress = address
	o.WorkspaceRoot = common.WorkspacePath
	o.MountRoot = common.MountPath
	o.BuildTimeout = buildTimeout
	o.ReadinessTimeout = readinessTimeout
	o.MaxParallelBuilds = parallel
	return o
}
