package podman

import (
	"testing"

	spec "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/stretchr/testify/assert"

	"yuri91/tenv/backend"
)

func TestLabelFilters(t *testing.T) {
	assert.Nil(t, labelFilters(nil))
	assert.Equal(t, map[string][]string{
		"label": {"tenv.env=abc", "tenv.managed=true"},
	}, labelFilters(map[string]string{"tenv.managed": "true", "tenv.env": "abc"}))
}

func TestMountsAndPorts(t *testing.T) {
	mounts := getMounts([]backend.Mount{
		{Source: "/tmp/a", Destination: "/etc/a", ReadOnly: true},
		{Source: "/tmp/b", Destination: "/etc/b"},
	})
	assert.Equal(t, []spec.Mount{
		{Source: "/tmp/a", Destination: "/etc/a", Type: "bind", Options: []string{"ro"}},
		{Source: "/tmp/b", Destination: "/etc/b", Type: "bind"},
	}, mounts)

	pm := getPortMappings([]int{9999, 27017})
	if assert.Len(t, pm, 2) {
		assert.EqualValues(t, 9999, pm[0].ContainerPort)
		assert.EqualValues(t, 0, pm[0].HostPort)
		assert.Equal(t, "tcp", pm[1].Protocol)
	}
}
