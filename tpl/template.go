// Package tpl is the object model templates program against: a Template
// hands out image builders, image builders hand out container builders, and
// Result snapshots everything declared into immutable specs.
package tpl

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"yuri91/tenv/format"
)

// ReservedLabelPrefix is owned by the engine and cannot be set by templates.
const ReservedLabelPrefix = "tenv."

type Template struct {
	name  string
	index int
	data  fs.FS

	images       []*ImageBuilder
	imagesByName map[string]*ImageBuilder
	containers   map[string]*ContainerBuilder
	order        []*ContainerBuilder
	checks       []ReadinessCheck
	params       map[string]interface{}

	frozen bool
}

// New creates the builder root for one execution of a template. data is the
// template's bundled data directory and may be nil.
func New(name string, index int, data fs.FS) *Template {
	return &Template{
		name:         name,
		index:        index,
		data:         data,
		imagesByName: map[string]*ImageBuilder{},
		containers:   map[string]*ContainerBuilder{},
	}
}

func (t *Template) Name() string {
	return t.name
}

func (t *Template) Index() int {
	return t.index
}

// SetParams records the bound parameters of this execution.
func (t *Template) SetParams(params map[string]interface{}) error {
	if err := t.checkFrozen(); err != nil {
		return err
	}
	t.params = make(map[string]interface{}, len(params))
	for k, v := range params {
		t.params[k] = v
	}
	return nil
}

func (t *Template) checkFrozen() error {
	if t.frozen {
		return PreconditionError.New("template %s is no longer executing", t.name)
	}
	return nil
}

// FetchImage declares an image pulled from ref.
func (t *Template) FetchImage(ref string) (*ImageBuilder, error) {
	return t.image(ref, false)
}

// BuildImage declares an image built from a workspace assembled by the template.
func (t *Template) BuildImage(name string) (*ImageBuilder, error) {
	return t.image(name, true)
}

func (t *Template) image(name string, build bool) (*ImageBuilder, error) {
	if err := t.checkFrozen(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, PreconditionError.New("image name must not be empty")
	}
	if img, ok := t.imagesByName[name]; ok {
		if img.build != build {
			return nil, ConflictError.New("image %s is declared both fetched and built", name).
				WithProperty(ImageProperty, name)
		}
		return img, nil
	}
	img := &ImageBuilder{
		t:      t,
		name:   name,
		build:  build,
		byPath: map[string]int{},
	}
	t.images = append(t.images, img)
	t.imagesByName[name] = img
	return img, nil
}

func (t *Template) AddReadinessCheck(kind string, spec CheckSpec) error {
	if err := t.checkFrozen(); err != nil {
		return err
	}
	switch kind {
	case CheckHTTP:
		if len(spec.Codes) == 0 {
			return PreconditionError.New("http readiness check %q needs at least one accepted code", spec.URL)
		}
	case CheckTCP:
	default:
		return PreconditionError.New("unknown readiness check kind %q", kind)
	}
	if spec.URL == "" {
		return PreconditionError.New("%s readiness check needs a target", kind)
	}
	if spec.Interval < 0 || spec.Timeout < 0 {
		return PreconditionError.New("readiness check %q has a negative interval or timeout", spec.URL)
	}
	target, err := format.Parse(spec.URL)
	if err != nil {
		return err
	}
	t.checks = append(t.checks, ReadinessCheck{
		Name:     fmt.Sprintf("%s.%d/%s#%d", t.name, t.index, kind, len(t.checks)),
		Kind:     kind,
		Target:   target,
		Codes:    append([]int(nil), spec.Codes...),
		Interval: spec.Interval,
		Timeout:  spec.Timeout,
	})
	return nil
}

// Result freezes the template and returns a deep copy of its declarations.
func (t *Template) Result() *Declarations {
	t.frozen = true

	d := &Declarations{
		Template: t.name,
		Index:    t.index,
	}
	for _, img := range t.images {
		d.Images = append(d.Images, img.spec())
	}
	for _, c := range t.order {
		d.Containers = append(d.Containers, c.spec())
	}
	for _, c := range t.checks {
		c.Codes = append([]int(nil), c.Codes...)
		d.Checks = append(d.Checks, c)
	}
	if t.params != nil {
		d.Params = make(map[string]interface{}, len(t.params))
		for k, v := range t.params {
			d.Params[k] = v
		}
	}
	return d
}

func (t *Template) readData(p string) ([]byte, fs.FileMode, error) {
	if t.data == nil {
		return nil, 0, BundleError.New("template %s has no bundled data, cannot read %s", t.name, p)
	}
	data, err := fs.ReadFile(t.data, p)
	if err != nil {
		return nil, 0, BundleError.Wrap(err, "cannot read bundled file %s of template %s", p, t.name)
	}
	mode := fs.FileMode(0644)
	if info, err := fs.Stat(t.data, p); err == nil && info.Mode().Perm() != 0 {
		mode = info.Mode().Perm()
	}
	return data, mode, nil
}

type ImageBuilder struct {
	t     *Template
	name  string
	build bool

	files  []WorkspaceFile
	byPath map[string]int
}

func (i *ImageBuilder) Name() string {
	return i.name
}

func (i *ImageBuilder) checkBuilt() error {
	if err := i.t.checkFrozen(); err != nil {
		return err
	}
	if !i.build {
		return ConflictError.New("image %s is fetched and has no workspace", i.name).
			WithProperty(ImageProperty, i.name)
	}
	return nil
}

// CopyDataToWorkspace copies a bundled data file into the workspace under
// the same relative path, keeping its mode.
func (i *ImageBuilder) CopyDataToWorkspace(p string) error {
	if err := i.checkBuilt(); err != nil {
		return err
	}
	clean, err := workspacePath(p)
	if err != nil {
		return err
	}
	data, mode, err := i.t.readData(clean)
	if err != nil {
		return err
	}
	i.put(WorkspaceFile{Path: clean, Data: data, Mode: mode})
	return nil
}

// AddFileToWorkspace writes data at p. A later write to the same path
// replaces the earlier one.
func (i *ImageBuilder) AddFileToWorkspace(p string, data []byte, mode fs.FileMode) error {
	if err := i.checkBuilt(); err != nil {
		return err
	}
	clean, err := workspacePath(p)
	if err != nil {
		return err
	}
	i.put(WorkspaceFile{Path: clean, Data: append([]byte(nil), data...), Mode: mode.Perm()})
	return nil
}

func (i *ImageBuilder) put(f WorkspaceFile) {
	if idx, ok := i.byPath[f.Path]; ok {
		i.files[idx] = f
		return
	}
	i.byPath[f.Path] = len(i.files)
	i.files = append(i.files, f)
}

func workspacePath(p string) (string, error) {
	clean := path.Clean(p)
	if clean == "." || !fs.ValidPath(clean) {
		return "", PreconditionError.New("workspace path %q must be relative and stay inside the workspace", p)
	}
	return clean, nil
}

func (i *ImageBuilder) NewContainer(name string) (*ContainerBuilder, error) {
	t := i.t
	if err := t.checkFrozen(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, PreconditionError.New("container name must not be empty")
	}
	if _, ok := t.containers[name]; ok {
		return nil, ConflictError.New("container %s is already declared by template %s", name, t.name).
			WithProperty(ContainerProperty, name)
	}
	c := &ContainerBuilder{
		t:      t,
		name:   name,
		image:  i.name,
		ports:  map[int]struct{}{},
		labels: map[string]string{},
		byDest: map[string]int{},
	}
	t.containers[name] = c
	t.order = append(t.order, c)
	return c, nil
}

func (i *ImageBuilder) spec() ImageSpec {
	s := ImageSpec{
		Name:  i.name,
		Build: i.build,
	}
	if !i.build {
		s.Ref = i.name
	}
	for _, f := range i.files {
		f.Data = append([]byte(nil), f.Data...)
		s.Workspace = append(s.Workspace, f)
	}
	return s
}

type MountOptions struct {
	Interpolate bool
}

type ContainerBuilder struct {
	t     *Template
	name  string
	image string

	ports  map[int]struct{}
	labels map[string]string
	mounts []Mount
	byDest map[string]int
}

func (c *ContainerBuilder) Name() string {
	return c.name
}

// MountData mounts the bundled file src at dest inside the container. With
// Interpolate set the file is rendered against runtime values first.
func (c *ContainerBuilder) MountData(src, dest string, opts MountOptions) error {
	if err := c.t.checkFrozen(); err != nil {
		return err
	}
	if !path.IsAbs(dest) {
		return PreconditionError.New("mount destination %q of container %s must be absolute", dest, c.name).
			WithProperty(ContainerProperty, c.name)
	}
	clean, err := workspacePath(src)
	if err != nil {
		return err
	}
	data, _, err := c.t.readData(clean)
	if err != nil {
		return err
	}
	m := Mount{Source: clean, Dest: path.Clean(dest), Data: data, Interpolate: opts.Interpolate}
	if idx, ok := c.byDest[m.Dest]; ok {
		c.mounts[idx] = m
		return nil
	}
	c.byDest[m.Dest] = len(c.mounts)
	c.mounts = append(c.mounts, m)
	return nil
}

// SetPorts adds to the set of exposed ports.
func (c *ContainerBuilder) SetPorts(ports ...int) error {
	if err := c.t.checkFrozen(); err != nil {
		return err
	}
	for _, p := range ports {
		if p < 1 || p > 65535 {
			return PreconditionError.New("invalid port %d for container %s", p, c.name).
				WithProperty(ContainerProperty, c.name)
		}
	}
	for _, p := range ports {
		c.ports[p] = struct{}{}
	}
	return nil
}

func (c *ContainerBuilder) SetLabel(key, value string) error {
	if err := c.t.checkFrozen(); err != nil {
		return err
	}
	if key == "" {
		return PreconditionError.New("label key must not be empty")
	}
	if strings.HasPrefix(key, ReservedLabelPrefix) {
		return PreconditionError.New("label %s uses the reserved prefix %s", key, ReservedLabelPrefix).
			WithProperty(ContainerProperty, c.name)
	}
	c.labels[key] = value
	return nil
}

func (c *ContainerBuilder) spec() ContainerSpec {
	s := ContainerSpec{
		Name:   c.name,
		Image:  c.image,
		Labels: make(map[string]string, len(c.labels)),
	}
	for p := range c.ports {
		s.Ports = append(s.Ports, p)
	}
	sort.Ints(s.Ports)
	for k, v := range c.labels {
		s.Labels[k] = v
	}
	for _, m := range c.mounts {
		m.Data = append([]byte(nil), m.Data...)
		s.Mounts = append(s.Mounts, m)
	}
	return s
}
