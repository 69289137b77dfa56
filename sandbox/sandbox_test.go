package sandbox

import (
	"context"
	"encoding/base64"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yuri91/tenv/format"
	"yuri91/tenv/param"
	"yuri91/tenv/tpl"
)

func broTemplate() *Func {
	return &Func{
		TplName: "bro",
		Schema: param.Schema{
			{Name: "binary", Type: param.Base64, Required: true},
			{Name: "port", Type: param.Int, Default: 9999},
		},
		Files: fstest.MapFS{
			"Dockerfile":  {Data: []byte("FROM scratch\nCOPY bro /bro\nENTRYPOINT [\"/bro\"]\n")},
			"config.toml": {Data: []byte("listen = \":{{.Params.port}}\"\n")},
		},
		Fn: func(t *tpl.Template, p param.Values) error {
			img, err := t.BuildImage("bro-tutorial")
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
			if err := cont.MountData("config.toml", "/config.toml", tpl.MountOptions{Interpolate: true}); err != nil {
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

func mongoTemplate() *Func {
	return &Func{
		TplName: "mongo",
		Fn: func(t *tpl.Template, p param.Values) error {
			img, err := t.FetchImage("mongo:latest")
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

var formatComparer = cmp.Comparer(func(a, b format.Format) bool { return a.String() == b.String() })

func TestRunInOrder(t *testing.T) {
	bin := base64.StdEncoding.EncodeToString([]byte("\x7fELF"))
	instances := []*Instance{
		NewInstance(broTemplate(), 0, map[string]interface{}{"binary": bin}),
		NewInstance(mongoTemplate(), 0, nil),
	}

	decls, err := Run(context.Background(), instances)
	require.NoError(t, err)
	require.Len(t, decls, 2)

	bro := decls[0]
	assert.Equal(t, "bro", bro.Template)
	require.Len(t, bro.Images, 1)
	assert.True(t, bro.Images[0].Build)
	assert.Equal(t, []int{9999}, bro.Containers[0].Ports)
	assert.Equal(t, "http://{{.ExternalAddress}}:{{.ExposedContainerPort \"bro\" 9999}}/", bro.Checks[0].Target.String())
	assert.Equal(t, "mongo", decls[1].Template)

	for _, inst := range instances {
		assert.Equal(t, Succeeded, inst.State())
	}
}

func TestDeclarationsAreDeterministic(t *testing.T) {
	params := map[string]interface{}{
		"binary": base64.StdEncoding.EncodeToString([]byte("bin")),
		"port":   9988,
	}
	first, err := NewInstance(broTemplate(), 0, params).Run()
	require.NoError(t, err)
	second, err := NewInstance(broTemplate(), 0, params).Run()
	require.NoError(t, err)

	if diff := cmp.Diff(first, second, formatComparer); diff != "" {
		t.Errorf("declarations differ (-first +second):\n%s", diff)
	}
}

func TestBoundParams(t *testing.T) {
	d, err := NewInstance(broTemplate(), 0, map[string]interface{}{
		"binary": base64.StdEncoding.EncodeToString([]byte("bin")),
	}).Run()
	require.NoError(t, err)
	assert.Equal(t, 9999, d.Params["port"])
	assert.Equal(t, []byte("bin"), d.Params["binary"])

	raw := map[string]interface{}{"anything": "goes"}
	d, err = NewInstance(schemaless{}, 0, raw).Run()
	require.NoError(t, err)
	assert.Equal(t, raw, d.Params)
}

// schemaless never binds its parameters.
type schemaless struct{}

func (schemaless) Name() string { return "schemaless" }

func (schemaless) Data() fs.FS { return nil }

func (schemaless) Execute(t *tpl.Template, params map[string]interface{}) error { return nil }

func TestValidationFailure(t *testing.T) {
	inst := NewInstance(broTemplate(), 0, map[string]interface{}{"binary": 12})
	_, err := Run(context.Background(), []*Instance{inst, NewInstance(mongoTemplate(), 0, nil)})
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, param.ValidationError))
	assert.Contains(t, err.Error(), "binary")
	assert.Equal(t, Failed, inst.State())
}

func TestBuilderFailure(t *testing.T) {
	bad := &Func{
		TplName: "bad",
		Fn: func(t *tpl.Template, p param.Values) error {
			img, err := t.FetchImage("redis")
			if err != nil {
				return err
			}
			return img.CopyDataToWorkspace("Dockerfile")
		},
	}
	inst := NewInstance(bad, 2, nil)
	_, err := inst.Run()
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, tpl.ConflictError))
	assert.Contains(t, err.Error(), "bad[2]")
}

func TestPanicBecomesFailure(t *testing.T) {
	boom := &Func{
		TplName: "boom",
		Fn: func(t *tpl.Template, p param.Values) error {
			var m map[string]int
			m["x"] = 1
			return nil
		},
	}
	inst := NewInstance(boom, 0, nil)
	_, err := inst.Run()
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, PanicError))
	assert.Equal(t, Failed, inst.State())

	// executes exactly once
	_, again := inst.Run()
	assert.Equal(t, err, again)
}

func TestResolvers(t *testing.T) {
	reg := NewRegistry(mongoTemplate())
	tp, err := reg.Resolve("mongo")
	require.NoError(t, err)
	assert.Equal(t, "mongo", tp.Name())

	_, err = reg.Resolve("bro")
	assert.True(t, errorx.IsOfType(err, NotFoundError))

	chain := Chain{reg, NewRegistry(broTemplate())}
	tp, err = chain.Resolve("bro")
	require.NoError(t, err)
	assert.Equal(t, "bro", tp.Name())

	_, err = chain.Resolve("nginx")
	assert.True(t, errorx.IsOfType(err, NotFoundError))
}
