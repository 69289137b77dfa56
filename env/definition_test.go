package env

import (
	"testing"
	"time"

	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefinitionYAML(t *testing.T) {
	src := `
name: bro-test
templates:
  - tpl: bro
    parameters:
      port: 9988
options:
  keepAlive: 2m
  readinessInterval: 250ms
  address: 10.0.0.1
`
	var def Definition
	require.NoError(t, yaml.Unmarshal([]byte(src), &def))
	require.NoError(t, def.Validate())
	assert.Equal(t, 2*time.Minute, def.Options.KeepAlive.Duration())

	o := DefaultOptions().withDefinition(def.Options)
	assert.Equal(t, "10.0.0.1", o.ExternalAddress)
	assert.Equal(t, 250*time.Millisecond, o.ReadinessInterval)
	assert.Equal(t, 2*time.Minute, o.KeepAlive)
	assert.Equal(t, DefaultOptions().BuildTimeout, o.BuildTimeout)

	assert.Error(t, yaml.Unmarshal([]byte("keepAlive: forever"), &def.Options))
}

func TestDefinitionValidate(t *testing.T) {
	for _, def := range []Definition{
		{},
		{Name: "x"},
		{Name: "x", Templates: []TemplateRef{{}}},
		{Name: "x", Templates: []TemplateRef{{Tpl: "a"}}, Options: DefinitionOptions{KeepAlive: -1}},
	} {
		assert.True(t, errorx.IsOfType(def.Validate(), DefinitionError), "%+v", def)
	}
}

func TestOptionsFillDefaults(t *testing.T) {
	o := Options{}.withDefinition(DefinitionOptions{})
	assert.Equal(t, "127.0.0.1", o.ExternalAddress)
	assert.Equal(t, 1, o.MaxParallelBuilds)
	assert.Positive(t, o.BuildTimeout)
	assert.NotEmpty(t, o.WorkspaceRoot)
}

func TestBuiltTag(t *testing.T) {
	assert.Equal(t, "localhost/tenv-bro-tutorial:abc", builtTag("abc", "bro-tutorial"))
	assert.Equal(t, "localhost/tenv-my-image:abc", builtTag("abc", "My Image"))
	assert.Equal(t, "localhost/tenv-image:abc", builtTag("abc", "///"))
}
