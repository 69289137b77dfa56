package env

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"

	"yuri91/tenv/backend"
	"yuri91/tenv/tpl"
)

// Labels stamped on everything the engine creates.
const (
	LabelManaged   = tpl.ReservedLabelPrefix + "managed"
	LabelEnv       = tpl.ReservedLabelPrefix + "env"
	LabelTemplate  = tpl.ReservedLabelPrefix + "template"
	LabelIndex     = tpl.ReservedLabelPrefix + "index"
	LabelContainer = tpl.ReservedLabelPrefix + "container"
)

// Container is a running container of an environment.
type Container struct {
	Template string
	Index    int
	Name     string
	ID       backend.ContainerID
	Image    backend.ImageID
	// Hostname is the alias other containers of the environment reach it on.
	Hostname string
	Labels   map[string]string
	// HostPorts maps internal ports to the host ports they are published on.
	HostPorts map[int]int
	// Ports maps internal ports to the external "host:port" to reach them.
	Ports map[int]string
}

type containerKey struct {
	tpl   string
	index int
	name  string
}

func (k containerKey) String() string {
	return fmt.Sprintf("%s[%d].%s", k.tpl, k.index, k.name)
}

func hostname(tplName string, index int, name string) string {
	return fmt.Sprintf("%s.%d.%s.tenv", name, index, tplName)
}

func runtimeName(envID, tplName string, index int, name string) string {
	return fmt.Sprintf("tenv-%s-%s-%d-%s", envID, tplName, index, name)
}

// table holds the containers of an environment. Each entry is written once,
// when its container has started, and read by readiness resolution and the
// Environment accessors afterwards.
type table struct {
	mu         sync.RWMutex
	containers map[containerKey]*Container
	order      []containerKey
}

func newTable() *table {
	return &table{containers: map[containerKey]*Container{}}
}

func (t *table) put(c *Container) error {
	k := containerKey{c.Template, c.Index, c.Name}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.containers[k]; ok {
		return LaunchError.New("container %s started twice", k).WithProperty(ContainerProperty, k.String())
	}
	t.containers[k] = c
	t.order = append(t.order, k)
	return nil
}

func (t *table) get(k containerKey) (*Container, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.containers[k]
	return c, ok
}

// all returns containers by template, index, then declaration order.
func (t *table) all(declOrder map[containerKey]int) []*Container {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ret := make([]*Container, 0, len(t.order))
	for _, k := range t.order {
		ret = append(ret, t.containers[k])
	}
	sort.SliceStable(ret, func(i, j int) bool {
		a := containerKey{ret[i].Template, ret[i].Index, ret[i].Name}
		b := containerKey{ret[j].Template, ret[j].Index, ret[j].Name}
		return declOrder[a] < declOrder[b]
	})
	return ret
}

func externalPorts(addr string, hostPorts map[int]int) map[int]string {
	ret := make(map[int]string, len(hostPorts))
	for p, hp := range hostPorts {
		ret[p] = net.JoinHostPort(addr, strconv.Itoa(hp))
	}
	return ret
}

// instanceBindings resolves readiness targets of one template instance.
type instanceBindings struct {
	t        *table
	tpl      string
	index    int
	external string
}

func (b instanceBindings) ExternalAddress() string {
	return b.external
}

func (b instanceBindings) ExposedPort(container string, port int) (int, bool) {
	c, ok := b.t.get(containerKey{b.tpl, b.index, container})
	if !ok {
		return 0, false
	}
	hp, ok := c.HostPorts[port]
	return hp, ok
}

// hosts answers interpolation lookups. Aliases are derived from names, so
// they are known before any container starts.
type hosts struct {
	decl *tpl.Declarations
	all  []*tpl.Declarations
}

func (h hosts) ContainerHost(name string) (string, bool) {
	if _, ok := h.decl.Container(name); !ok {
		return "", false
	}
	return hostname(h.decl.Template, h.decl.Index, name), true
}

func (h hosts) LabeledHost(key, value string) (string, bool) {
	for _, d := range h.all {
		for _, c := range d.Containers {
			if v, ok := c.Labels[key]; ok && v == value {
				return hostname(d.Template, d.Index, c.Name), true
			}
		}
	}
	return "", false
}
