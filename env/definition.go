package env

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Definition describes an environment: which templates to run, with which
// parameters. The same template may appear several times.
type Definition struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Templates   []TemplateRef     `yaml:"templates"`
	Options     DefinitionOptions `yaml:"options"`
}

type TemplateRef struct {
	Tpl        string                 `yaml:"tpl"`
	Parameters map[string]interface{} `yaml:"parameters"`
}

// DefinitionOptions override the engine options for one environment. Zero
// values keep the engine's.
type DefinitionOptions struct {
	KeepAlive         Duration `yaml:"keepAlive"`
	BuildTimeout      Duration `yaml:"buildTimeout"`
	ReadinessTimeout  Duration `yaml:"readinessTimeout"`
	ReadinessInterval Duration `yaml:"readinessInterval"`
	Address           string   `yaml:"address"`
}

// Duration reads "90s" style strings.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Definition) Validate() error {
	if d.Name == "" {
		return DefinitionError.New("environment has no name")
	}
	if len(d.Templates) == 0 {
		return DefinitionError.New("environment %s uses no templates", d.Name)
	}
	for i, t := range d.Templates {
		if t.Tpl == "" {
			return DefinitionError.New("template %d of environment %s has no name", i, d.Name)
		}
	}
	for _, v := range []Duration{d.Options.KeepAlive, d.Options.BuildTimeout, d.Options.ReadinessTimeout, d.Options.ReadinessInterval} {
		if v < 0 {
			return DefinitionError.New("environment %s has a negative duration", d.Name)
		}
	}
	return nil
}
