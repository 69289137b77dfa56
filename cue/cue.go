// Package cue loads templates and environment definitions written in CUE.
//
// A template lives in <dir>/<name>.tpl.cue, with its bundled data in
// <dir>/<name>.tpl.data/. It declares a params schema, images with their
// containers, and readiness checks; see typesStr for the exact shape.
package cue

import (
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"yuri91/tenv/param"
	"yuri91/tenv/sandbox"
	"yuri91/tenv/tpl"
)

const (
	TemplateSuffix = ".tpl.cue"
	DataSuffix     = ".tpl.data"
)

var (
	paramsPath    = cue.ParsePath("params")
	imagesPath    = cue.ParsePath("images")
	readinessPath = cue.ParsePath("readiness")
)

type Template struct {
	name string
	path string
	src  []byte
	data fs.FS
}

// NewTemplate wraps CUE source. data may be nil.
func NewTemplate(name string, src []byte, data fs.FS) (*Template, error) {
	t := &Template{
		name: name,
		path: name + TemplateSuffix,
		src:  src,
		data: data,
	}
	if _, err := t.compile(cuecontext.New()); err != nil {
		return nil, err
	}
	return t, nil
}

// LoadTemplate reads the template called name from dir.
func LoadTemplate(dir string, name string) (*Template, error) {
	p := filepath.Join(dir, name+TemplateSuffix)
	src, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, sandbox.NotFoundError.New("template %s not found in %s", name, dir).
				WithProperty(sandbox.TemplateProperty, name)
		}
		return nil, LoadError.Wrap(err, "cannot read template %s", p)
	}
	var data fs.FS
	dataDir := filepath.Join(dir, name+DataSuffix)
	if info, err := os.Stat(dataDir); err == nil && info.IsDir() {
		data = os.DirFS(dataDir)
	}
	t, err := NewTemplate(name, src, data)
	if err != nil {
		return nil, err
	}
	t.path = p
	return t, nil
}

func (t *Template) Name() string {
	return t.name
}

func (t *Template) Data() fs.FS {
	return t.data
}

// compile builds the template and checks it against #Template. Each call
// gets its own cue.Context, which is not safe for concurrent use.
func (t *Template) compile(ctx *cue.Context) (cue.Value, error) {
	types := ctx.CompileString(typesStr, cue.Filename("tenv_types.cue"))
	if types.Err() != nil {
		return cue.Value{}, BuildError.Wrap(types.Err(), "cannot build template types")
	}

	value := ctx.CompileBytes(t.src, cue.Filename(t.path), cue.Scope(types))
	if value.Err() != nil {
		return cue.Value{}, LoadError.Wrap(value.Err(), "cannot load template %s: %s", t.name, details(value.Err()))
	}

	value = value.Unify(types.LookupPath(cue.ParsePath("#Template")))
	err := value.Err()
	if err == nil {
		// parameters may still be open here, only conflicts count
		err = value.Validate()
	}
	if err != nil {
		return cue.Value{}, ConstraintError.Wrap(err, "template %s does not match the template schema: %s", t.name, details(err))
	}
	return value, nil
}

// Execute evaluates the template with params and replays its declarations
// on b.
func (t *Template) Execute(b *tpl.Template, params map[string]interface{}) error {
	value, err := t.compile(cuecontext.New())
	if err != nil {
		return err
	}

	value, err = fillParams(value, params)
	if err != nil {
		return err
	}

	// Validate the value
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return ValidateError.Wrap(err, "template %s is incomplete: %s", t.name, details(err))
	}

	var bound map[string]interface{}
	if err := value.LookupPath(paramsPath).Decode(&bound); err != nil {
		return DecodeError.Wrap(err, "cannot decode parameters of template %s", t.name)
	}
	if err := b.SetParams(bound); err != nil {
		return err
	}

	if err := declareImages(b, value.LookupPath(imagesPath)); err != nil {
		return err
	}
	return declareChecks(b, value.LookupPath(readinessPath))
}

func fillParams(value cue.Value, params map[string]interface{}) (cue.Value, error) {
	for k, v := range params {
		p := cue.MakePath(cue.Str("params"), cue.Str(k))
		if !value.LookupPath(p).Exists() {
			return value, param.ValidationError.New("unknown parameter %q", k).
				WithProperty(param.NameProperty, k)
		}
		value = value.FillPath(p, v)
	}

	if err := value.LookupPath(paramsPath).Validate(cue.Concrete(true)); err != nil {
		return value, param.ValidationError.Wrap(err, "invalid parameters: %s", details(err))
	}
	return value, nil
}

func declareImages(b *tpl.Template, images cue.Value) error {
	iter, err := images.Fields()
	if err != nil {
		return DecodeError.Wrap(err, "cannot list images")
	}
	for iter.Next() {
		if err := declareImage(b, iter.Label(), iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

func declareImage(b *tpl.Template, key string, v cue.Value) error {
	fetch := v.LookupPath(cue.ParsePath("fetch"))
	build := v.LookupPath(cue.ParsePath("build"))

	var (
		img *tpl.ImageBuilder
		err error
	)
	switch {
	case fetch.Exists() && build.Exists():
		return tpl.ConflictError.New("image %s is declared both fetched and built", key).
			WithProperty(tpl.ImageProperty, key)
	case fetch.Exists():
		ref, err := fetch.String()
		if err != nil {
			return DecodeError.Wrap(err, "image %s: fetch must be a string", key)
		}
		if img, err = b.FetchImage(ref); err != nil {
			return err
		}
	case build.Exists():
		if img, err = b.BuildImage(key); err != nil {
			return err
		}
		if err := declareWorkspace(img, build); err != nil {
			return err
		}
	default:
		return ValidateError.New("image %s needs either fetch or build", key)
	}

	containers, err := v.LookupPath(cue.ParsePath("containers")).Fields()
	if err != nil {
		return DecodeError.Wrap(err, "image %s: cannot list containers", key)
	}
	for containers.Next() {
		var c Container
		if err := containers.Value().Decode(&c); err != nil {
			return DecodeError.Wrap(err, "image %s: cannot decode container %s", key, containers.Label())
		}
		if err := declareContainer(img, containers.Label(), c); err != nil {
			return err
		}
	}
	return nil
}

func declareWorkspace(img *tpl.ImageBuilder, build cue.Value) error {
	var copies []string
	if err := build.LookupPath(cue.ParsePath("copy")).Decode(&copies); err != nil {
		return DecodeError.Wrap(err, "image %s: cannot decode copy list", img.Name())
	}
	for _, c := range copies {
		if err := img.CopyDataToWorkspace(c); err != nil {
			return err
		}
	}

	files, err := build.LookupPath(cue.ParsePath("files")).Fields()
	if err != nil {
		return DecodeError.Wrap(err, "image %s: cannot list files", img.Name())
	}
	for files.Next() {
		p := files.Label()
		var f File
		if err := files.Value().Decode(&f); err != nil {
			return DecodeError.Wrap(err, "image %s: cannot decode file %s", img.Name(), p)
		}
		var data []byte
		switch {
		case f.Base64 != nil && f.Content != nil:
			return ValidateError.New("image %s: file %s has both base64 and content", img.Name(), p)
		case f.Base64 != nil:
			data, err = param.FromBase64(fmt.Sprintf("images.%s.build.files.%s", img.Name(), p), *f.Base64)
			if err != nil {
				return err
			}
		case f.Content != nil:
			data = []byte(*f.Content)
		default:
			return ValidateError.New("image %s: file %s needs base64 or content", img.Name(), p)
		}
		if err := img.AddFileToWorkspace(p, data, fs.FileMode(f.Mode)); err != nil {
			return err
		}
	}
	return nil
}

func declareContainer(img *tpl.ImageBuilder, name string, c Container) error {
	cont, err := img.NewContainer(name)
	if err != nil {
		return err
	}
	if err := cont.SetPorts(c.Ports...); err != nil {
		return err
	}
	for k, v := range c.Labels {
		s, err := labelValue(v)
		if err != nil {
			return DecodeError.Wrap(err, "container %s: label %s", name, k)
		}
		if err := cont.SetLabel(k, s); err != nil {
			return err
		}
	}
	for _, m := range c.Mounts {
		if err := cont.MountData(m.Src, m.Dest, tpl.MountOptions{Interpolate: m.Interpolate}); err != nil {
			return err
		}
	}
	return nil
}

// labelValue stringifies a label the way it was written: 9999, true, 0.5.
func labelValue(v interface{}) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case *big.Int:
		return v.String(), nil
	case *big.Float:
		return v.Text('f', -1), nil
	}
	return "", fmt.Errorf("unsupported label value %v (%T)", v, v)
}

func declareChecks(b *tpl.Template, readiness cue.Value) error {
	var checks []Check
	if err := readiness.Decode(&checks); err != nil {
		return DecodeError.Wrap(err, "cannot decode readiness checks")
	}
	for i, c := range checks {
		switch {
		case c.HTTP != nil && c.TCP != nil:
			return ValidateError.New("readiness check %d has more than one kind", i)
		case c.HTTP != nil:
			spec, err := checkSpec(c.HTTP.URL, c.HTTP.Interval, c.HTTP.Timeout)
			if err != nil {
				return err
			}
			spec.Codes = c.HTTP.Codes
			if err := b.AddReadinessCheck(tpl.CheckHTTP, spec); err != nil {
				return err
			}
		case c.TCP != nil:
			spec, err := checkSpec(c.TCP.Address, c.TCP.Interval, c.TCP.Timeout)
			if err != nil {
				return err
			}
			if err := b.AddReadinessCheck(tpl.CheckTCP, spec); err != nil {
				return err
			}
		default:
			return ValidateError.New("readiness check %d has no kind", i)
		}
	}
	return nil
}

func checkSpec(url, interval, timeout string) (tpl.CheckSpec, error) {
	spec := tpl.CheckSpec{URL: url}
	var err error
	if interval != "" {
		if spec.Interval, err = time.ParseDuration(interval); err != nil {
			return spec, DecodeError.Wrap(err, "invalid interval %s", interval)
		}
	}
	if timeout != "" {
		if spec.Timeout, err = time.ParseDuration(timeout); err != nil {
			return spec, DecodeError.Wrap(err, "invalid timeout %s", timeout)
		}
	}
	return spec, nil
}

func details(err error) string {
	return errors.Details(err, nil)
}
