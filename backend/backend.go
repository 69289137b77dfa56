// Package backend is the contract between the orchestrator and the
// container runtime underneath it.
package backend

import (
	"context"
)

type ImageID string

type ContainerID string

type NetworkID string

type BuildConfig struct {
	// Tag is the name the built image is tagged with.
	Tag string
	// ContextDir is the materialized workspace.
	ContextDir string
	// Containerfile is the path of the build recipe inside ContextDir.
	Containerfile string
	Labels        map[string]string
}

type Mount struct {
	Source      string
	Destination string
	ReadOnly    bool
}

type ContainerConfig struct {
	Name    string
	Image   ImageID
	Network NetworkID
	// Aliases are the names the container answers to on Network.
	Aliases []string
	// Ports are container ports to publish on runtime-assigned host ports.
	Ports  []int
	Labels map[string]string
	Mounts []Mount
}

// Container is a started container.
type Container struct {
	ID ContainerID
	// Ports maps container ports to the host ports they were bound to.
	Ports map[int]int
}

// Backend drives the container runtime. Implementations must be safe for
// concurrent use.
type Backend interface {
	PullImage(ctx context.Context, ref string) (ImageID, error)
	BuildImage(ctx context.Context, cfg BuildConfig) (ImageID, error)

	CreateNetwork(ctx context.Context, name string, labels map[string]string) (NetworkID, error)
	RemoveNetwork(ctx context.Context, id NetworkID) error

	// StartContainer creates and starts a container and reports its port
	// bindings.
	StartContainer(ctx context.Context, cfg ContainerConfig) (*Container, error)
	// RemoveContainer stops the container if needed and removes it.
	RemoveContainer(ctx context.Context, id ContainerID) error

	ListContainers(ctx context.Context, labels map[string]string) ([]ContainerID, error)
	ListNetworks(ctx context.Context, labels map[string]string) ([]NetworkID, error)
}
