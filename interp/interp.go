// Package interp renders mounted data files that ask for interpolation. It
// is plain text/template over the values known before containers start.
package interp

import (
	"bytes"
	"fmt"
	"text/template"
)

// Hosts answers network alias lookups for ContainerHost and LabeledHost.
type Hosts interface {
	// ContainerHost returns the alias of a container declared by the same
	// template instance.
	ContainerHost(name string) (string, bool)
	// LabeledHost returns the alias of the first container in the
	// environment carrying the label.
	LabeledHost(key, value string) (string, bool)
}

type Context struct {
	EnvID           string
	Template        string
	Index           int
	ExternalAddress string
	Params          map[string]interface{}

	hosts Hosts
}

func NewContext(envID, tplName string, index int, external string, params map[string]interface{}, hosts Hosts) *Context {
	return &Context{
		EnvID:           envID,
		Template:        tplName,
		Index:           index,
		ExternalAddress: external,
		Params:          params,
		hosts:           hosts,
	}
}

func (c *Context) funcs() template.FuncMap {
	return template.FuncMap{
		"ContainerHost": func(name string) (string, error) {
			if h, ok := c.hosts.ContainerHost(name); ok {
				return h, nil
			}
			return "", fmt.Errorf("template %s has no container %q", c.Template, name)
		},
		"LabeledHost": func(key, value string) (string, error) {
			if h, ok := c.hosts.LabeledHost(key, value); ok {
				return h, nil
			}
			return "", fmt.Errorf("no container labeled %s=%s", key, value)
		},
	}
}

// Render interpolates data. name only shows up in error messages.
func (c *Context) Render(name string, data []byte) ([]byte, error) {
	t, err := template.New(name).
		Option("missingkey=error").
		Funcs(c.funcs()).
		Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("cannot parse %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, c); err != nil {
		return nil, fmt.Errorf("cannot interpolate %s: %w", name, err)
	}
	return buf.Bytes(), nil
}
