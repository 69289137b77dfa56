// Package podman implements backend.Backend on top of the podman REST API.
package podman

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/containers/buildah/define"
	nettypes "github.com/containers/common/libnetwork/types"
	"github.com/containers/podman/v4/pkg/bindings"
	"github.com/containers/podman/v4/pkg/bindings/containers"
	"github.com/containers/podman/v4/pkg/bindings/images"
	"github.com/containers/podman/v4/pkg/bindings/network"
	"github.com/containers/podman/v4/pkg/domain/entities"
	"github.com/containers/podman/v4/pkg/specgen"
	"github.com/joomcode/errorx"
	spec "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/sirupsen/logrus"

	"yuri91/tenv/backend"
)

const DefaultURI = "unix:///run/podman/podman.sock"

// stopTimeout is how long a container gets to exit before it is killed.
const stopTimeout = 5

type Podman struct {
	conn context.Context
}

var _ backend.Backend = (*Podman)(nil)

// Connect opens a connection to the podman service at uri. The returned
// Podman keeps using that connection; ctx only bounds the handshake.
func Connect(ctx context.Context, uri string) (*Podman, error) {
	if uri == "" {
		uri = DefaultURI
	}
	conn, err := bindings.NewConnection(ctx, uri)
	if err != nil {
		return nil, ConnectionError.Wrap(err, "cannot connect to podman at %s", uri)
	}
	return &Podman{conn: conn}, nil
}

// with derives a call context from the connection, cancelled along with ctx.
func (p *Podman) with(ctx context.Context) (context.Context, context.CancelFunc) {
	c, cancel := context.WithCancel(p.conn)
	stop := context.AfterFunc(ctx, cancel)
	return c, func() {
		stop()
		cancel()
	}
}

func (p *Podman) PullImage(ctx context.Context, ref string) (backend.ImageID, error) {
	conn, cancel := p.with(ctx)
	defer cancel()

	logrus.Debugf("pulling %s", ref)
	ids, err := images.Pull(conn, ref, new(images.PullOptions).WithQuiet(true))
	if err != nil {
		return "", ImageError.Wrap(err, "cannot pull %s", ref)
	}
	if len(ids) == 0 {
		return "", ImageError.New("pulling %s returned no image", ref)
	}
	return backend.ImageID(ids[len(ids)-1]), nil
}

func (p *Podman) BuildImage(ctx context.Context, cfg backend.BuildConfig) (backend.ImageID, error) {
	conn, cancel := p.with(ctx)
	defer cancel()

	logrus.Debugf("building %s from %s", cfg.Tag, cfg.ContextDir)
	report, err := images.Build(conn, []string{cfg.Containerfile}, entities.BuildOptions{
		BuildOptions: define.BuildOptions{
			ContextDirectory: cfg.ContextDir,
			Output:           cfg.Tag,
			Labels:           labelList(cfg.Labels),
			Timestamp:        &time.Time{},
			Layers:           true,
			Quiet:            true,
		},
	})
	if err != nil {
		return "", ImageError.Wrap(err, "cannot build %s", cfg.Tag)
	}
	return backend.ImageID(report.ID), nil
}

func (p *Podman) CreateNetwork(ctx context.Context, name string, labels map[string]string) (backend.NetworkID, error) {
	conn, cancel := p.with(ctx)
	defer cancel()

	n, err := network.Create(conn, &nettypes.Network{
		Name:   name,
		Labels: labels,
	})
	if err != nil {
		return "", NetworkError.Wrap(err, "cannot create network %s", name)
	}
	return backend.NetworkID(n.Name), nil
}

func (p *Podman) RemoveNetwork(ctx context.Context, id backend.NetworkID) error {
	conn, cancel := p.with(ctx)
	defer cancel()

	if _, err := network.Remove(conn, string(id), new(network.RemoveOptions).WithForce(true)); err != nil {
		return NetworkError.Wrap(err, "cannot remove network %s", id)
	}
	return nil
}

func (p *Podman) ListNetworks(ctx context.Context, labels map[string]string) ([]backend.NetworkID, error) {
	conn, cancel := p.with(ctx)
	defer cancel()

	list, err := network.List(conn, new(network.ListOptions).WithFilters(labelFilters(labels)))
	if err != nil {
		return nil, NetworkError.Wrap(err, "cannot list networks")
	}
	ret := make([]backend.NetworkID, 0, len(list))
	for _, n := range list {
		ret = append(ret, backend.NetworkID(n.Name))
	}
	return ret, nil
}

func (p *Podman) StartContainer(ctx context.Context, cfg backend.ContainerConfig) (*backend.Container, error) {
	conn, cancel := p.with(ctx)
	defer cancel()

	s := specgen.NewSpecGenerator(string(cfg.Image), false)
	s.Name = cfg.Name
	s.Labels = cfg.Labels
	s.Mounts = getMounts(cfg.Mounts)
	s.PortMappings = getPortMappings(cfg.Ports)
	if cfg.Network != "" {
		s.Networks = map[string]nettypes.PerNetworkOptions{
			string(cfg.Network): {Aliases: cfg.Aliases},
		}
	}

	created, err := containers.CreateWithSpec(conn, s, nil)
	if err != nil {
		return nil, ContainerError.Wrap(err, "cannot create container %s", cfg.Name)
	}
	id := backend.ContainerID(created.ID)
	if err := containers.Start(conn, created.ID, nil); err != nil {
		return &backend.Container{ID: id}, ContainerError.Wrap(err, "cannot start container %s", cfg.Name)
	}

	ports, err := p.ports(conn, created.ID, cfg.Ports)
	if err != nil {
		return &backend.Container{ID: id}, errorx.Decorate(err, "container %s", cfg.Name)
	}
	return &backend.Container{ID: id, Ports: ports}, nil
}

// ports reads back the host ports podman picked for each published port.
func (p *Podman) ports(conn context.Context, id string, want []int) (map[int]int, error) {
	false_ := false
	data, err := containers.Inspect(conn, id, &containers.InspectOptions{
		Size: &false_,
	})
	if err != nil {
		return nil, ContainerError.Wrap(err, "cannot inspect container")
	}
	ret := make(map[int]int, len(want))
	for _, port := range want {
		mapped := data.NetworkSettings.Ports[fmt.Sprintf("%d/tcp", port)]
		if len(mapped) == 0 {
			return nil, ContainerError.New("port %d is not published", port)
		}
		hp, err := strconv.Atoi(mapped[0].HostPort)
		if err != nil {
			return nil, ContainerError.Wrap(err, "port %d has invalid host port %q", port, mapped[0].HostPort)
		}
		ret[port] = hp
	}
	return ret, nil
}

func (p *Podman) RemoveContainer(ctx context.Context, id backend.ContainerID) error {
	conn, cancel := p.with(ctx)
	defer cancel()

	timeout := uint(stopTimeout)
	if err := containers.Stop(conn, string(id), new(containers.StopOptions).WithTimeout(timeout).WithIgnore(true)); err != nil {
		logrus.Debugf("stopping %s: %v", id, err)
	}
	if _, err := containers.Remove(conn, string(id), new(containers.RemoveOptions).WithForce(true).WithVolumes(true)); err != nil {
		return ContainerError.Wrap(err, "cannot remove container %s", id)
	}
	return nil
}

func (p *Podman) ListContainers(ctx context.Context, labels map[string]string) ([]backend.ContainerID, error) {
	conn, cancel := p.with(ctx)
	defer cancel()

	true_ := true
	list, err := containers.List(conn, &containers.ListOptions{
		All:     &true_,
		Filters: labelFilters(labels),
	})
	if err != nil {
		return nil, ContainerError.Wrap(err, "cannot list containers")
	}
	ret := make([]backend.ContainerID, 0, len(list))
	for _, c := range list {
		ret = append(ret, backend.ContainerID(c.ID))
	}
	return ret, nil
}

func getMounts(mounts []backend.Mount) []spec.Mount {
	var ret []spec.Mount
	for _, m := range mounts {
		mount := spec.Mount{
			Source:      m.Source,
			Destination: m.Destination,
			Type:        "bind",
		}
		if m.ReadOnly {
			mount.Options = []string{"ro"}
		}
		ret = append(ret, mount)
	}
	return ret
}

// getPortMappings leaves HostPort at 0 so podman picks a free one.
func getPortMappings(ports []int) []nettypes.PortMapping {
	ret := make([]nettypes.PortMapping, len(ports))
	for i, p := range ports {
		ret[i].ContainerPort = uint16(p)
		ret[i].Protocol = "tcp"
	}
	return ret
}

func labelFilters(labels map[string]string) map[string][]string {
	if len(labels) == 0 {
		return nil
	}
	return map[string][]string{"label": labelList(labels)}
}

func labelList(labels map[string]string) []string {
	ret := make([]string, 0, len(labels))
	for k, v := range labels {
		ret = append(ret, k+"="+v)
	}
	sort.Strings(ret)
	return ret
}
