package env

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"testing/fstest"
	"time"

	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yuri91/tenv/backend"
	"yuri91/tenv/backend/backendtest"
	"yuri91/tenv/format"
	"yuri91/tenv/param"
	"yuri91/tenv/sandbox"
	"yuri91/tenv/tpl"
)

func broTemplate() *sandbox.Func {
	return &sandbox.Func{
		TplName: "bro",
		Schema: param.Schema{
			{Name: "binary", Type: param.Base64, Required: true},
			{Name: "port", Type: param.Int, Default: 9999},
		},
		Files: fstest.MapFS{
			"Dockerfile":  {Data: []byte("FROM scratch\nCOPY bro /bro\n")},
			"config.toml": {Data: []byte("listen = \":{{.Params.port}}\"\nmongo = \"{{LabeledHost \"mongo\" \"true\"}}\"\n")},
		},
		Fn: func(t *tpl.Template, p param.Values) error {
			img, err := t.BuildImage("bro")
			if err != nil {
				return err
			}
			if err := img.CopyDataToWorkspace("Dockerfile"); err != nil {
				return err
			}
			if err := img.AddFileToWorkspace("bro", p.Bytes("binary"), 0755); err != nil {
				return err
			}
			cont, err := img.NewContainer("bro")
			if err != nil {
				return err
			}
			if err := cont.MountData("config.toml", "/etc/bro/config.toml", tpl.MountOptions{Interpolate: true}); err != nil {
				return err
			}
			if err := cont.SetPorts(p.Int("port")); err != nil {
				return err
			}
			if err := cont.SetLabel("bro", "true"); err != nil {
				return err
			}
			url := "http://" + format.ExternalAddress() + ":" + format.ExposedPort("bro", p.Int("port")) + "/"
			return t.AddReadinessCheck(tpl.CheckHTTP, tpl.CheckSpec{URL: url, Codes: []int{200}})
		},
	}
}

func mongoTemplate() *sandbox.Func {
	return &sandbox.Func{
		TplName: "mongo",
		Fn: func(t *tpl.Template, p param.Values) error {
			img, err := t.FetchImage("mongo")
			if err != nil {
				return err
			}
			cont, err := img.NewContainer("mongo")
			if err != nil {
				return err
			}
			if err := cont.SetPorts(27017); err != nil {
				return err
			}
			return cont.SetLabel("mongo", "true")
		},
	}
}

func testOptions(t *testing.T) Options {
	o := DefaultOptions()
	o.WorkspaceRoot = t.TempDir()
	o.MountRoot = t.TempDir()
	o.ReadinessInterval = 10 * time.Millisecond
	o.ReadinessTimeout = 2 * time.Second
	return o
}

// serve answers readiness probes with status and returns the port it
// listens on.
func serve(t *testing.T, status int) int {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv.Listener.Addr().(*net.TCPAddr).Port
}

// routeTo publishes every port of containers named name on hostPort.
func routeTo(name string, hostPort int) func(backend.ContainerConfig, int) int {
	return func(cfg backend.ContainerConfig, port int) int {
		if cfg.Labels[LabelContainer] == name {
			return hostPort
		}
		return 0
	}
}

func broParams() map[string]interface{} {
	return map[string]interface{}{"binary": "f0VMRg==", "port": 9999}
}

func TestCreateFetched(t *testing.T) {
	fake := backendtest.New()
	def := &Definition{Name: "db", Templates: []TemplateRef{{Tpl: "mongo"}}}

	e, err := Create(context.Background(), fake, sandbox.NewRegistry(mongoTemplate()), def, testOptions(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"docker.io/library/mongo:latest"}, fake.Pulls())
	c, err := e.GetContainer("mongo", 0, "mongo")
	require.NoError(t, err)
	require.Contains(t, c.HostPorts, 27017)
	assert.Equal(t, "127.0.0.1:"+strconv.Itoa(c.HostPorts[27017]), c.Ports[27017])
	assert.Equal(t, "mongo.0.mongo.tenv", c.Hostname)
	assert.Equal(t, e.ID(), c.Labels[LabelEnv])

	_, err = e.GetContainer("mongo", 1, "mongo")
	assert.True(t, errorx.IsOfType(err, NotFoundError))

	require.NoError(t, e.Terminate(context.Background()))
	assert.Empty(t, fake.Running())
	assert.Empty(t, fake.Networks())
	assert.NoError(t, e.Terminate(context.Background()))
}

func TestCreateReady(t *testing.T) {
	fake := backendtest.New()
	fake.HostPort = routeTo("bro", serve(t, http.StatusOK))
	def := &Definition{
		Name: "bro-test",
		Templates: []TemplateRef{
			{Tpl: "bro", Parameters: broParams()},
			{Tpl: "mongo"},
		},
	}
	reg := sandbox.NewRegistry(broTemplate(), mongoTemplate())

	e, err := Create(context.Background(), fake, reg, def, testOptions(t))
	require.NoError(t, err)
	defer e.Terminate(context.Background())

	bro, err := e.GetContainer("bro", 0, "bro")
	require.NoError(t, err)
	data, ok := fake.Mounted(bro.ID, "/etc/bro/config.toml")
	require.True(t, ok)
	assert.Equal(t, "listen = \":9999\"\nmongo = \"mongo.0.mongo.tenv\"\n", string(data))

	names := []string{}
	for _, c := range e.Containers() {
		names = append(names, c.Template+"/"+c.Name)
	}
	assert.Equal(t, []string{"bro/bro", "mongo/mongo"}, names)

	imgs := e.Images()
	require.Len(t, imgs, 2)
	assert.True(t, imgs[0].Built)
	assert.Equal(t, "localhost/tenv-bro:"+e.ID(), imgs[0].Ref)
	assert.Equal(t, "docker.io/library/mongo:latest", imgs[1].Ref)
}

func TestReadinessTimeout(t *testing.T) {
	fake := backendtest.New()
	fake.HostPort = routeTo("bro", serve(t, http.StatusInternalServerError))
	def := &Definition{
		Name:      "bro-test",
		Templates: []TemplateRef{{Tpl: "bro", Parameters: broParams()}},
		Options:   DefinitionOptions{ReadinessTimeout: Duration(200 * time.Millisecond)},
	}

	_, err := Create(context.Background(), fake, sandbox.NewRegistry(broTemplate()), def, testOptions(t))
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, ReadinessTimeout))
	assert.True(t, errorx.IsOfType(err, ReadinessError))
	assert.Contains(t, err.Error(), "bro.0/http#0")

	checks, ok := errorx.ExtractProperty(err, ChecksProperty)
	require.True(t, ok)
	assert.Equal(t, []string{"bro.0/http#0"}, checks)

	assert.Len(t, fake.Started(), 1)
	assert.Empty(t, fake.Running())
	assert.Empty(t, fake.Networks())
}

func TestImageBuiltOnce(t *testing.T) {
	fake := backendtest.New()
	fake.HostPort = routeTo("bro", serve(t, http.StatusOK))
	def := &Definition{
		Name: "two",
		Templates: []TemplateRef{
			{Tpl: "bro", Parameters: broParams()},
			{Tpl: "bro", Parameters: broParams()},
		},
	}

	e, err := Create(context.Background(), fake, sandbox.NewRegistry(broTemplate()), def, testOptions(t))
	require.NoError(t, err)
	defer e.Terminate(context.Background())

	assert.Len(t, fake.Builds(), 1)
	cs := e.Containers()
	require.Len(t, cs, 2)
	assert.Equal(t, "bro.0.bro.tenv", cs[0].Hostname)
	assert.Equal(t, "bro.1.bro.tenv", cs[1].Hostname)
	assert.Equal(t, cs[0].Image, cs[1].Image)
}

func TestBuildFailureTearsDown(t *testing.T) {
	fake := backendtest.New()
	fake.OnBuild = func(cfg backend.BuildConfig) error {
		return errors.New("step 2/2: no space left")
	}
	def := &Definition{
		Name: "broken",
		Templates: []TemplateRef{
			{Tpl: "mongo"},
			{Tpl: "bro", Parameters: broParams()},
		},
	}

	_, err := Create(context.Background(), fake, sandbox.NewRegistry(broTemplate(), mongoTemplate()), def, testOptions(t))
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, BuildError))
	img, ok := errorx.ExtractProperty(err, ImageProperty)
	assert.True(t, ok)
	assert.Equal(t, "bro", img)

	assert.Empty(t, fake.Running())
	assert.Empty(t, fake.Networks())
}

func TestStartFailure(t *testing.T) {
	fake := backendtest.New()
	fake.OnStart = func(cfg backend.ContainerConfig) error {
		if cfg.Labels[LabelContainer] == "bad" {
			return errors.New("port already allocated")
		}
		return nil
	}
	reg := sandbox.NewRegistry(mongoTemplate(), &sandbox.Func{
		TplName: "bad",
		Fn: func(t *tpl.Template, p param.Values) error {
			img, err := t.FetchImage("mongo")
			if err != nil {
				return err
			}
			_, err = img.NewContainer("bad")
			return err
		},
	})
	def := &Definition{Name: "db", Templates: []TemplateRef{{Tpl: "mongo"}, {Tpl: "bad"}}}

	_, err := Create(context.Background(), fake, reg, def, testOptions(t))
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, LaunchError))
	c, ok := errorx.ExtractProperty(err, ContainerProperty)
	assert.True(t, ok)
	assert.Equal(t, "bad[0].bad", c)
	assert.Empty(t, fake.Running())
	assert.Len(t, fake.Pulls(), 1)
}

func TestValidationBeforeRuntime(t *testing.T) {
	fake := backendtest.New()
	def := &Definition{Name: "bro-test", Templates: []TemplateRef{{Tpl: "bro"}}}

	_, err := Create(context.Background(), fake, sandbox.NewRegistry(broTemplate()), def, testOptions(t))
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, param.ValidationError))
	assert.Empty(t, fake.Started())
	assert.Empty(t, fake.Pulls())
	assert.Empty(t, fake.Networks())

	def.Templates[0].Tpl = "ghost"
	_, err = Create(context.Background(), fake, sandbox.NewRegistry(broTemplate()), def, testOptions(t))
	assert.True(t, errorx.IsOfType(err, sandbox.NotFoundError))
}

func TestMissingBinding(t *testing.T) {
	fake := backendtest.New()
	reg := sandbox.NewRegistry(&sandbox.Func{
		TplName: "lonely",
		Fn: func(t *tpl.Template, p param.Values) error {
			img, err := t.FetchImage("busybox")
			if err != nil {
				return err
			}
			if _, err := img.NewContainer("box"); err != nil {
				return err
			}
			return t.AddReadinessCheck(tpl.CheckTCP, tpl.CheckSpec{
				URL: format.ExternalAddress() + ":" + format.ExposedPort("box", 8080),
			})
		},
	})
	def := &Definition{Name: "lonely", Templates: []TemplateRef{{Tpl: "lonely"}}}

	_, err := Create(context.Background(), fake, reg, def, testOptions(t))
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, LaunchError))
	assert.Contains(t, err.Error(), "lonely.0/tcp#0")
	assert.Contains(t, err.Error(), "port 8080 of container lonely[0].box")
	c, ok := errorx.ExtractProperty(err, ContainerProperty)
	assert.True(t, ok)
	assert.Equal(t, "lonely[0].box", c)
	assert.Empty(t, fake.Running())
}

func TestPlanConflict(t *testing.T) {
	fake := backendtest.New()
	reg := sandbox.NewRegistry(
		&sandbox.Func{TplName: "a", Fn: func(t *tpl.Template, p param.Values) error {
			_, err := t.FetchImage("shared")
			return err
		}},
		&sandbox.Func{TplName: "b", Fn: func(t *tpl.Template, p param.Values) error {
			_, err := t.BuildImage("shared")
			return err
		}},
	)
	def := &Definition{Name: "c", Templates: []TemplateRef{{Tpl: "a"}, {Tpl: "b"}}}

	_, err := Create(context.Background(), fake, reg, def, testOptions(t))
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, PlanError))
	assert.Contains(t, err.Error(), "built by b[0] and fetched by a[0]")
	assert.Empty(t, fake.Networks())
}

func TestSelect(t *testing.T) {
	fake := backendtest.New()
	fake.HostPort = routeTo("bro", serve(t, http.StatusOK))
	def := &Definition{
		Name: "bro-test",
		Templates: []TemplateRef{
			{Tpl: "bro", Parameters: broParams()},
			{Tpl: "mongo"},
		},
	}
	e, err := Create(context.Background(), fake, sandbox.NewRegistry(broTemplate(), mongoTemplate()), def, testOptions(t))
	require.NoError(t, err)
	defer e.Terminate(context.Background())

	cs, err := e.Select("bro=true")
	require.NoError(t, err)
	require.Len(t, cs, 1)
	assert.Equal(t, "bro", cs[0].Name)

	cs, err = e.Select(LabelTemplate + " in (bro,mongo)")
	require.NoError(t, err)
	assert.Len(t, cs, 2)

	_, err = e.Select("bro in (")
	assert.Error(t, err)
}

func TestPurge(t *testing.T) {
	fake := backendtest.New()
	def := &Definition{Name: "db", Templates: []TemplateRef{{Tpl: "mongo"}}}
	_, err := Create(context.Background(), fake, sandbox.NewRegistry(mongoTemplate()), def, testOptions(t))
	require.NoError(t, err)
	require.Len(t, fake.Running(), 1)

	require.NoError(t, Purge(context.Background(), fake))
	assert.Empty(t, fake.Running())
	assert.Empty(t, fake.Networks())
}

func TestDefaultParamInterpolated(t *testing.T) {
	fake := backendtest.New()
	fake.HostPort = routeTo("bro", serve(t, http.StatusOK))
	def := &Definition{
		Name: "bro-test",
		Templates: []TemplateRef{
			{Tpl: "bro", Parameters: map[string]interface{}{"binary": "f0VMRg=="}},
			{Tpl: "mongo"},
		},
	}

	e, err := Create(context.Background(), fake, sandbox.NewRegistry(broTemplate(), mongoTemplate()), def, testOptions(t))
	require.NoError(t, err)
	defer e.Terminate(context.Background())

	bro, err := e.GetContainer("bro", 0, "bro")
	require.NoError(t, err)
	assert.Contains(t, bro.Ports, 9999)
	data, ok := fake.Mounted(bro.ID, "/etc/bro/config.toml")
	require.True(t, ok)
	assert.Contains(t, string(data), "listen = \":9999\"")
}

func TestBuildTimeoutTearsDown(t *testing.T) {
	fake := backendtest.New()
	fake.OnBuild = func(cfg backend.BuildConfig) error {
		time.Sleep(300 * time.Millisecond)
		return nil
	}
	def := &Definition{
		Name: "slow",
		Templates: []TemplateRef{
			{Tpl: "mongo"},
			{Tpl: "bro", Parameters: broParams()},
		},
		Options: DefinitionOptions{BuildTimeout: Duration(50 * time.Millisecond)},
	}

	_, err := Create(context.Background(), fake, sandbox.NewRegistry(broTemplate(), mongoTemplate()), def, testOptions(t))
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, LaunchError))
	assert.Contains(t, err.Error(), "not started within 50ms")
	assert.Empty(t, fake.Running())
	assert.Empty(t, fake.Networks())
}

func TestCancelledTearsDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fake := backendtest.New()
	fake.OnBuild = func(cfg backend.BuildConfig) error {
		cancel()
		return nil
	}
	def := &Definition{
		Name: "cancelled",
		Templates: []TemplateRef{
			{Tpl: "mongo"},
			{Tpl: "bro", Parameters: broParams()},
		},
	}

	_, err := Create(ctx, fake, sandbox.NewRegistry(broTemplate(), mongoTemplate()), def, testOptions(t))
	require.Error(t, err)
	assert.Empty(t, fake.Running())
	assert.Empty(t, fake.Networks())
}

func TestFetchFailure(t *testing.T) {
	fake := backendtest.New()
	fake.FailPull = map[string]error{
		"docker.io/library/mongo:latest": errors.New("manifest unknown"),
	}
	def := &Definition{Name: "db", Templates: []TemplateRef{{Tpl: "mongo"}}}

	_, err := Create(context.Background(), fake, sandbox.NewRegistry(mongoTemplate()), def, testOptions(t))
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, FetchError))
	img, ok := errorx.ExtractProperty(err, ImageProperty)
	assert.True(t, ok)
	assert.Equal(t, "mongo", img)
	assert.Contains(t, err.Error(), "manifest unknown")
	assert.Empty(t, fake.Started())
	assert.Empty(t, fake.Networks())
}
