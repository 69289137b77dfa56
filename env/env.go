// Package env assembles environments: it runs the templates of a
// definition, builds or fetches their images, starts their containers on a
// private network and waits for their readiness checks.
package env

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/joomcode/errorx"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"k8s.io/apimachinery/pkg/labels"

	"yuri91/tenv/backend"
	"yuri91/tenv/image"
	"yuri91/tenv/interp"
	"yuri91/tenv/readiness"
	"yuri91/tenv/sandbox"
	"yuri91/tenv/tpl"
)

type Environment struct {
	id   string
	name string
	opts Options
	be   backend.Backend
	log  *logrus.Entry

	decls     []*tpl.Declarations
	plan      *plan
	declOrder map[containerKey]int
	table     *table

	workDir  string
	mountDir string
	network  backend.NetworkID

	mu      sync.Mutex
	created []backend.ContainerID

	terminate sync.Once
	termErr   error
}

// Image is an image used by an environment.
type Image struct {
	Name string
	// Ref is the normalized reference of a fetched image or the tag of a
	// built one.
	Ref   string
	ID    backend.ImageID
	Built bool
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Create runs every template of def and brings the environment up. It
// returns once all readiness checks passed. On any failure whatever was
// already created is torn down before the error is returned.
func Create(ctx context.Context, be backend.Backend, resolver sandbox.Resolver, def *Definition, opts Options) (*Environment, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefinition(def.Options)

	instances, err := instantiate(resolver, def)
	if err != nil {
		return nil, err
	}
	decls, err := sandbox.Run(ctx, instances)
	if err != nil {
		return nil, errorx.Decorate(err, "environment %s", def.Name)
	}

	id := newID()
	p, err := makePlan(id, decls)
	if err != nil {
		return nil, err
	}

	e := &Environment{
		id:        id,
		name:      def.Name,
		opts:      opts,
		be:        be,
		log:       logrus.WithFields(logrus.Fields{"env": id, "name": def.Name}),
		decls:     decls,
		plan:      p,
		declOrder: map[containerKey]int{},
		table:     newTable(),
		workDir:   filepath.Join(opts.WorkspaceRoot, id),
		mountDir:  filepath.Join(opts.MountRoot, id),
	}
	for _, d := range decls {
		for _, c := range d.Containers {
			e.declOrder[containerKey{d.Template, d.Index, c.Name}] = len(e.declOrder)
		}
	}

	e.log.Infof("creating environment: %d template instances, %d images", len(decls), len(p.images))
	if err := e.launch(ctx); err != nil {
		e.log.Errorf("environment failed: %v", err)
		if terr := e.Terminate(context.Background()); terr != nil {
			e.log.Warnf("teardown after failure: %v", terr)
		}
		return nil, errorx.Decorate(err, "environment %s", def.Name)
	}
	e.log.Info("environment ready")
	return e, nil
}

func instantiate(r sandbox.Resolver, def *Definition) ([]*sandbox.Instance, error) {
	counts := map[string]int{}
	var instances []*sandbox.Instance
	for _, ref := range def.Templates {
		t, err := r.Resolve(ref.Tpl)
		if err != nil {
			return nil, errorx.Decorate(err, "environment %s", def.Name)
		}
		idx := counts[ref.Tpl]
		counts[ref.Tpl]++
		instances = append(instances, sandbox.NewInstance(t, idx, ref.Parameters))
	}
	return instances, nil
}

func (e *Environment) labels() map[string]string {
	return map[string]string{
		LabelManaged: "true",
		LabelEnv:     e.id,
	}
}

func (e *Environment) launch(ctx context.Context) error {
	for _, dir := range []string{e.workDir, e.mountDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return LaunchError.Wrap(err, "cannot create %s", dir)
		}
	}

	start := time.Now()
	buildCtx, cancel := context.WithTimeout(ctx, e.opts.BuildTimeout)
	defer cancel()

	network, err := e.be.CreateNetwork(buildCtx, "tenv-"+e.id, e.labels())
	if err != nil {
		return LaunchError.Wrap(err, "cannot create network")
	}
	e.network = network

	if err := e.start(buildCtx); err != nil {
		if ctx.Err() == nil && errors.Is(buildCtx.Err(), context.DeadlineExceeded) {
			return LaunchError.Wrap(err, "environment not started within %s", e.opts.BuildTimeout)
		}
		return err
	}
	e.log.Debugf("containers started in %s", time.Since(start))

	checks, err := e.resolveChecks()
	if err != nil {
		return err
	}
	return e.waitReady(ctx, checks)
}

// start produces every image and starts every container. Images are
// produced in parallel up to MaxParallelBuilds; each instance starts its
// containers in order as soon as their image is there, and instances run in
// parallel.
func (e *Environment) start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(e.opts.MaxParallelBuilds))
	for _, job := range e.plan.images {
		job := job
		g.Go(func() error {
			id, err := e.produce(gctx, sem, job)
			job.finish(id, err)
			return err
		})
	}
	for _, d := range e.decls {
		d := d
		g.Go(func() error {
			return e.startInstance(gctx, d)
		})
	}
	return g.Wait()
}

func (e *Environment) produce(ctx context.Context, sem *semaphore.Weighted, job *imageJob) (backend.ImageID, error) {
	log := e.log.WithField("image", job.spec.Name)
	if err := sem.Acquire(ctx, 1); err != nil {
		return "", LaunchError.Wrap(err, "image %s not started", job.spec.Name).
			WithProperty(ImageProperty, job.spec.Name)
	}
	defer sem.Release(1)

	if !job.spec.Build {
		log.Debugf("fetching %s", job.ref)
		id, err := e.be.PullImage(ctx, job.ref)
		if err != nil {
			return "", FetchError.Wrap(err, "cannot fetch image %s", job.ref).
				WithProperty(ImageProperty, job.spec.Name)
		}
		return id, nil
	}

	log.Debugf("building %s", job.tag)
	dir, err := image.Materialize(e.workDir, job.spec)
	if err != nil {
		return "", BuildError.Wrap(err, "cannot prepare image %s of %s", job.spec.Name, job.tpl).
			WithProperty(ImageProperty, job.spec.Name)
	}
	containerfile, err := image.FindContainerfile(dir)
	if err != nil {
		return "", BuildError.Wrap(err, "cannot build image %s of %s", job.spec.Name, job.tpl).
			WithProperty(ImageProperty, job.spec.Name)
	}
	id, err := e.be.BuildImage(ctx, backend.BuildConfig{
		Tag:           job.tag,
		ContextDir:    dir,
		Containerfile: containerfile,
		Labels:        e.labels(),
	})
	if err != nil {
		return "", BuildError.Wrap(err, "cannot build image %s of %s", job.spec.Name, job.tpl).
			WithProperty(ImageProperty, job.spec.Name)
	}
	return id, nil
}

func (e *Environment) startInstance(ctx context.Context, d *tpl.Declarations) error {
	log := e.log.WithField("tpl", fmt.Sprintf("%s[%d]", d.Template, d.Index))
	ic := interp.NewContext(e.id, d.Template, d.Index, e.opts.ExternalAddress, d.Params, hosts{decl: d, all: e.decls})

	for _, c := range d.Containers {
		key := containerKey{d.Template, d.Index, c.Name}
		job, ok := e.plan.byName[c.Image]
		if !ok {
			return LaunchError.New("container %s uses undeclared image %s", key, c.Image).
				WithProperty(ContainerProperty, key.String())
		}
		select {
		case <-job.done:
		case <-ctx.Done():
			return LaunchError.Wrap(ctx.Err(), "container %s was waiting for image %s", key, c.Image).
				WithProperty(ContainerProperty, key.String())
		}
		if job.err != nil {
			return job.err
		}

		mounts, err := e.writeMounts(ic, key, c.Mounts)
		if err != nil {
			return err
		}

		lbls := e.labels()
		for k, v := range c.Labels {
			lbls[k] = v
		}
		lbls[LabelTemplate] = d.Template
		lbls[LabelIndex] = strconv.Itoa(d.Index)
		lbls[LabelContainer] = c.Name

		host := hostname(d.Template, d.Index, c.Name)
		log.Debugf("starting %s as %s", c.Name, host)
		started, err := e.be.StartContainer(ctx, backend.ContainerConfig{
			Name:    runtimeName(e.id, d.Template, d.Index, c.Name),
			Image:   job.id,
			Network: e.network,
			Aliases: []string{host},
			Ports:   c.Ports,
			Labels:  lbls,
			Mounts:  mounts,
		})
		if started != nil && started.ID != "" {
			e.track(started.ID)
		}
		if err != nil {
			return LaunchError.Wrap(err, "cannot start container %s", key).
				WithProperty(ContainerProperty, key.String())
		}

		err = e.table.put(&Container{
			Template:  d.Template,
			Index:     d.Index,
			Name:      c.Name,
			ID:        started.ID,
			Image:     job.id,
			Hostname:  host,
			Labels:    lbls,
			HostPorts: started.Ports,
			Ports:     externalPorts(e.opts.ExternalAddress, started.Ports),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// writeMounts puts the data of each mount on disk, interpolated when asked
// to, and returns the bind mounts for it.
func (e *Environment) writeMounts(ic *interp.Context, key containerKey, mounts []tpl.Mount) ([]backend.Mount, error) {
	var ret []backend.Mount
	dir := filepath.Join(e.mountDir, key.tpl, strconv.Itoa(key.index), key.name)
	for _, m := range mounts {
		data := m.Data
		if m.Interpolate {
			var err error
			data, err = ic.Render(m.Source, data)
			if err != nil {
				return nil, LaunchError.Wrap(err, "cannot mount %s into container %s", m.Source, key).
					WithProperty(ContainerProperty, key.String())
			}
		}
		p := filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(m.Dest, "/")))
		if err := image.Extra(dir, strings.TrimPrefix(m.Dest, "/"), data, 0644); err != nil {
			return nil, LaunchError.Wrap(err, "cannot write mount %s of container %s", m.Dest, key).
				WithProperty(ContainerProperty, key.String())
		}
		ret = append(ret, backend.Mount{Source: p, Destination: m.Dest, ReadOnly: true})
	}
	return ret, nil
}

func (e *Environment) track(id backend.ContainerID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.created = append(e.created, id)
}

// resolveChecks fills in the port bindings of every readiness target. A
// target naming a container or port that was never bound fails the launch.
func (e *Environment) resolveChecks() ([]readiness.Check, error) {
	var checks []readiness.Check
	for _, d := range e.decls {
		b := instanceBindings{t: e.table, tpl: d.Template, index: d.Index, external: e.opts.ExternalAddress}
		for _, c := range d.Checks {
			for _, ref := range c.Target.Ports() {
				if _, ok := b.ExposedPort(ref.Container, ref.Port); !ok {
					key := containerKey{d.Template, d.Index, ref.Container}
					return nil, LaunchError.New("readiness check %s needs port %d of container %s, which is not published", c.Name, ref.Port, key).
						WithProperty(ContainerProperty, key.String())
				}
			}
			target, err := c.Target.Resolve(b)
			if err != nil {
				return nil, LaunchError.Wrap(err, "cannot resolve readiness check %s (%s)", c.Name, c.Target)
			}
			checks = append(checks, readiness.Check{
				Name:     c.Name,
				Kind:     c.Kind,
				Target:   target,
				Codes:    c.Codes,
				Interval: c.Interval,
				Timeout:  c.Timeout,
			})
		}
	}
	return checks, nil
}

func (e *Environment) waitReady(ctx context.Context, checks []readiness.Check) error {
	if len(checks) == 0 {
		return nil
	}
	poller := readiness.NewPoller(e.opts.ReadinessInterval, e.opts.ReadinessTimeout)
	if e.opts.Probers != nil {
		poller.Probers = e.opts.Probers
	}
	e.log.Debugf("waiting for %d readiness checks", len(checks))
	err := poller.Wait(ctx, checks)
	if err == nil {
		return nil
	}

	var (
		names    []string
		timeouts int
		merr     *multierror.Error
	)
	if errors.As(err, &merr) {
		for _, ce := range merr.Errors {
			if name, ok := errorx.ExtractProperty(ce, readiness.CheckProperty); ok {
				names = append(names, fmt.Sprint(name))
			}
			if errorx.IsOfType(ce, readiness.TimeoutError) {
				timeouts++
			}
		}
	}
	typ := ReadinessOutcome
	if merr != nil && timeouts == len(merr.Errors) {
		typ = ReadinessTimeout
	}
	return typ.Wrap(err, "readiness checks failed: %s", strings.Join(names, ", ")).
		WithProperty(ChecksProperty, names)
}

func (e *Environment) ID() string {
	return e.id
}

func (e *Environment) Name() string {
	return e.name
}

func (e *Environment) ExternalAddress() string {
	return e.opts.ExternalAddress
}

// KeepAlive is how long the environment should be kept around, 0 meaning
// until terminated.
func (e *Environment) KeepAlive() time.Duration {
	return e.opts.KeepAlive
}

// Containers returns every container in declaration order.
func (e *Environment) Containers() []*Container {
	return e.table.all(e.declOrder)
}

func (e *Environment) GetContainer(tplName string, index int, name string) (*Container, error) {
	k := containerKey{tplName, index, name}
	c, ok := e.table.get(k)
	if !ok {
		return nil, NotFoundError.New("no container %s in environment %s", k, e.id).
			WithProperty(ContainerProperty, k.String())
	}
	return c, nil
}

// Select returns the containers whose labels match selector, for example
// "bro=true" or "tenv.template in (bro,mongo)".
func (e *Environment) Select(selector string) ([]*Container, error) {
	sel, err := labels.Parse(selector)
	if err != nil {
		return nil, errorx.IllegalArgument.Wrap(err, "invalid selector %q", selector)
	}
	var ret []*Container
	for _, c := range e.Containers() {
		if sel.Matches(labels.Set(c.Labels)) {
			ret = append(ret, c)
		}
	}
	return ret, nil
}

func (e *Environment) Images() []Image {
	ret := make([]Image, 0, len(e.plan.images))
	for _, job := range e.plan.images {
		img := Image{Name: job.spec.Name, Built: job.spec.Build, Ref: job.ref}
		if job.spec.Build {
			img.Ref = job.tag
		}
		select {
		case <-job.done:
			img.ID = job.id
		default:
		}
		ret = append(ret, img)
	}
	return ret
}

// Terminate removes the containers, the network and the files of the
// environment. Only the first call does anything; later ones return the
// same result.
func (e *Environment) Terminate(ctx context.Context) error {
	e.terminate.Do(func() {
		e.termErr = e.teardown(ctx)
	})
	return e.termErr
}

func (e *Environment) teardown(ctx context.Context) error {
	e.mu.Lock()
	created := append([]backend.ContainerID(nil), e.created...)
	e.mu.Unlock()

	e.log.Infof("tearing down %d containers", len(created))
	var merr *multierror.Error
	for i := len(created) - 1; i >= 0; i-- {
		if err := e.be.RemoveContainer(ctx, created[i]); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	if e.network != "" {
		if err := e.be.RemoveNetwork(ctx, e.network); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	for _, dir := range []string{e.workDir, e.mountDir} {
		if err := os.RemoveAll(dir); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	if err := merr.ErrorOrNil(); err != nil {
		return TeardownError.Wrap(err, "cannot tear down environment %s", e.id).
			WithProperty(EnvProperty, e.id)
	}
	return nil
}
