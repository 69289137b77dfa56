package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"yuri91/tenv/common"
	"yuri91/tenv/cue"
	"yuri91/tenv/env"
	"yuri91/tenv/podman"
)

var (
	runCmd = &cobra.Command{
		Use:   "run <env-file>",
		Short: "Create an environment",
		Long: `Create the environment described by a definition file, wait until it is ready,
and keep it running until interrupted or until its keep-alive expires`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return report(run(args[0]))
		},
	}
)

func init() {
}

func run(path string) error {
	def, err := cue.LoadEnv(path)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := podman.Connect(ctx, podmanURI)
	if err != nil {
		return err
	}
	e, err := env.Create(ctx, be, cue.DirResolver{Dir: common.TplPath}, def, options())
	if err != nil {
		return err
	}
	printEnv(e)

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logrus.Warnf("cannot notify systemd: %v", err)
	}

	if ka := e.KeepAlive(); ka > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(ka):
			logrus.Infof("keep-alive of %s expired", ka)
		}
	} else {
		<-ctx.Done()
	}

	daemon.SdNotify(false, daemon.SdNotifyStopping)
	return e.Terminate(context.Background())
}

func printEnv(e *env.Environment) {
	fmt.Printf("environment %s (%s) ready\n", e.Name(), e.ID())
	for _, c := range e.Containers() {
		ports := make([]int, 0, len(c.Ports))
		for p := range c.Ports {
			ports = append(ports, p)
		}
		sort.Ints(ports)
		fmt.Printf("  %s[%d].%s\t%s\n", c.Template, c.Index, c.Name, c.Hostname)
		for _, p := range ports {
			fmt.Printf("    %d -> %s\n", p, c.Ports[p])
		}
	}
}
