package env

import (
	"os"
	"path/filepath"
	"time"

	"yuri91/tenv/readiness"
)

type Options struct {
	// ExternalAddress is the host address published ports are reached on.
	ExternalAddress string
	// WorkspaceRoot holds build contexts, MountRoot the files mounted into
	// containers. Both get a per environment subdirectory.
	WorkspaceRoot string
	MountRoot     string

	BuildTimeout      time.Duration
	ReadinessTimeout  time.Duration
	ReadinessInterval time.Duration
	KeepAlive         time.Duration

	MaxParallelBuilds int

	// Probers replaces the default readiness probers when set.
	Probers map[string]readiness.Prober
}

func DefaultOptions() Options {
	tmp := filepath.Join(os.TempDir(), "tenv")
	return Options{
		ExternalAddress:   "127.0.0.1",
		WorkspaceRoot:     filepath.Join(tmp, "workspace"),
		MountRoot:         filepath.Join(tmp, "mounts"),
		BuildTimeout:      10 * time.Minute,
		ReadinessTimeout:  readiness.DefaultTimeout,
		ReadinessInterval: readiness.DefaultInterval,
		MaxParallelBuilds: 4,
	}
}

// withDefinition applies the overrides of a definition. Unset engine
// options fall back to their defaults.
func (o Options) withDefinition(d DefinitionOptions) Options {
	def := DefaultOptions()
	if o.ExternalAddress == "" {
		o.ExternalAddress = def.ExternalAddress
	}
	if o.WorkspaceRoot == "" {
		o.WorkspaceRoot = def.WorkspaceRoot
	}
	if o.MountRoot == "" {
		o.MountRoot = def.MountRoot
	}
	if o.BuildTimeout <= 0 {
		o.BuildTimeout = def.BuildTimeout
	}
	if d.Address != "" {
		o.ExternalAddress = d.Address
	}
	if d.KeepAlive > 0 {
		o.KeepAlive = d.KeepAlive.Duration()
	}
	if d.BuildTimeout > 0 {
		o.BuildTimeout = d.BuildTimeout.Duration()
	}
	if d.ReadinessTimeout > 0 {
		o.ReadinessTimeout = d.ReadinessTimeout.Duration()
	}
	if d.ReadinessInterval > 0 {
		o.ReadinessInterval = d.ReadinessInterval.Duration()
	}
	if o.MaxParallelBuilds < 1 {
		o.MaxParallelBuilds = 1
	}
	return o
}
