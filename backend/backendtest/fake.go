// Package backendtest provides an in-memory backend.Backend for tests.
package backendtest

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"yuri91/tenv/backend"
)

// Fake records every call and assigns host ports from a counter. Failures
// and port assignments can be injected through the exported hooks, which
// must be set before use.
type Fake struct {
	// FailPull and FailBuild fail the matching ref or tag.
	FailPull  map[string]error
	FailBuild map[string]error
	// OnStart can fail a container before it is created.
	OnStart func(cfg backend.ContainerConfig) error
	// HostPort, when set, picks the host port for a container port. Returning
	// 0 falls back to the counter.
	HostPort func(cfg backend.ContainerConfig, port int) int
	// OnBuild sees the build context before the fake "builds" it.
	OnBuild func(cfg backend.BuildConfig) error

	mu         sync.Mutex
	nextPort   int
	seq        int
	pulls      []string
	builds     []backend.BuildConfig
	started    []backend.ContainerConfig
	containers map[backend.ContainerID]*fakeContainer
	networks   map[backend.NetworkID]map[string]string
	removed    []backend.ContainerID
}

type fakeContainer struct {
	cfg    backend.ContainerConfig
	mounts map[string][]byte
}

func New() *Fake {
	return &Fake{
		nextPort:   40000,
		containers: map[backend.ContainerID]*fakeContainer{},
		networks:   map[backend.NetworkID]map[string]string{},
	}
}

func (f *Fake) PullImage(ctx context.Context, ref string) (backend.ImageID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls = append(f.pulls, ref)
	if err := f.FailPull[ref]; err != nil {
		return "", err
	}
	return backend.ImageID("sha256:" + ref), nil
}

func (f *Fake) BuildImage(ctx context.Context, cfg backend.BuildConfig) (backend.ImageID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.OnBuild != nil {
		if err := f.OnBuild(cfg); err != nil {
			return "", err
		}
	}
	if _, err := os.Stat(cfg.Containerfile); err != nil {
		return "", fmt.Errorf("no containerfile: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builds = append(f.builds, cfg)
	if err := f.FailBuild[cfg.Tag]; err != nil {
		return "", err
	}
	return backend.ImageID("sha256:" + cfg.Tag), nil
}

func (f *Fake) CreateNetwork(ctx context.Context, name string, labels map[string]string) (backend.NetworkID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := backend.NetworkID(name)
	f.networks[id] = labels
	return id, nil
}

func (f *Fake) RemoveNetwork(ctx context.Context, id backend.NetworkID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.networks[id]; !ok {
		return fmt.Errorf("no such network %s", id)
	}
	delete(f.networks, id)
	return nil
}

func (f *Fake) StartContainer(ctx context.Context, cfg backend.ContainerConfig) (*backend.Container, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mounts := map[string][]byte{}
	for _, m := range cfg.Mounts {
		data, err := os.ReadFile(m.Source)
		if err != nil {
			return nil, fmt.Errorf("mount source %s: %w", m.Source, err)
		}
		mounts[m.Destination] = data
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, cfg)
	if f.OnStart != nil {
		if err := f.OnStart(cfg); err != nil {
			return nil, err
		}
	}
	if _, ok := f.networks[cfg.Network]; !ok && cfg.Network != "" {
		return nil, fmt.Errorf("no such network %s", cfg.Network)
	}

	f.seq++
	c := &backend.Container{
		ID:    backend.ContainerID(fmt.Sprintf("c%d-%s", f.seq, cfg.Name)),
		Ports: map[int]int{},
	}
	for _, p := range cfg.Ports {
		hp := 0
		if f.HostPort != nil {
			hp = f.HostPort(cfg, p)
		}
		if hp == 0 {
			f.nextPort++
			hp = f.nextPort
		}
		c.Ports[p] = hp
	}
	f.containers[c.ID] = &fakeContainer{cfg: cfg, mounts: mounts}
	return c, nil
}

func (f *Fake) RemoveContainer(ctx context.Context, id backend.ContainerID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.containers[id]; !ok {
		return fmt.Errorf("no such container %s", id)
	}
	delete(f.containers, id)
	f.removed = append(f.removed, id)
	return nil
}

func (f *Fake) ListContainers(ctx context.Context, labels map[string]string) ([]backend.ContainerID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ret []backend.ContainerID
	for id, c := range f.containers {
		if matches(c.cfg.Labels, labels) {
			ret = append(ret, id)
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	return ret, nil
}

func (f *Fake) ListNetworks(ctx context.Context, labels map[string]string) ([]backend.NetworkID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ret []backend.NetworkID
	for id, l := range f.networks {
		if matches(l, labels) {
			ret = append(ret, id)
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	return ret, nil
}

func matches(have, want map[string]string) bool {
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}

// Pulls returns the refs pulled so far.
func (f *Fake) Pulls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.pulls...)
}

func (f *Fake) Builds() []backend.BuildConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.BuildConfig(nil), f.builds...)
}

// Started returns the config of every StartContainer call, failed or not.
func (f *Fake) Started() []backend.ContainerConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.ContainerConfig(nil), f.started...)
}

// Running returns the configs of containers not removed yet.
func (f *Fake) Running() []backend.ContainerConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ret []backend.ContainerConfig
	for _, c := range f.containers {
		ret = append(ret, c.cfg)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Name < ret[j].Name })
	return ret
}

// Mounted returns what a running container saw at dest when it started.
func (f *Fake) Mounted(id backend.ContainerID, dest string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return nil, false
	}
	data, ok := c.mounts[dest]
	return data, ok
}

func (f *Fake) Networks() []backend.NetworkID {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ret []backend.NetworkID
	for id := range f.networks {
		ret = append(ret, id)
	}
	return ret
}
