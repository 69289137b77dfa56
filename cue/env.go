package cue

import (
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"yuri91/tenv/env"
)

// LoadEnv reads an environment definition. CUE files are checked against
// #Env first; YAML and JSON files are decoded directly.
func LoadEnv(path string) (*env.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, LoadError.Wrap(err, "cannot read environment definition %s", path)
	}

	switch filepath.Ext(path) {
	case ".cue":
		data, err = envToJSON(path, data)
		if err != nil {
			return nil, err
		}
	case ".yaml", ".yml", ".json":
	default:
		return nil, LoadError.New("unsupported environment definition %s (want .cue, .yaml or .json)", path)
	}

	def := &env.Definition{}
	if err := yaml.Unmarshal(data, def); err != nil {
		return nil, DecodeError.Wrap(err, "cannot decode environment definition %s", path)
	}
	if err := def.Validate(); err != nil {
		return nil, ValidateError.Wrap(err, "invalid environment definition %s", path)
	}
	return def, nil
}

func envToJSON(path string, data []byte) ([]byte, error) {
	ctx := cuecontext.New()

	types := ctx.CompileString(envTypesStr, cue.Filename("tenv_env_types.cue"))
	value := ctx.CompileBytes(data, cue.Filename(path), cue.Scope(types))
	if value.Err() != nil {
		return nil, BuildError.Wrap(value.Err(), "error during build: %s", details(value.Err()))
	}

	value = value.Unify(types.LookupPath(cue.ParsePath("#Env")))
	if value.Err() != nil {
		return nil, ConstraintError.Wrap(value.Err(), "error during constraints check: %s", details(value.Err()))
	}

	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, ValidateError.Wrap(err, "error during validate: %s", details(err))
	}

	b, err := value.MarshalJSON()
	if err != nil {
		return nil, DecodeError.Wrap(err, "error during conversion: %s", details(err))
	}
	return b, nil
}
