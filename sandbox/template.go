package sandbox

import (
	"io/fs"
	"sync"

	"yuri91/tenv/param"
	"yuri91/tenv/tpl"
)

// Template is one unit of environment assembly logic. Execute is called
// exactly once per instance with a fresh tpl.Template.
type Template interface {
	Name() string
	// Data is the bundled data directory, may be nil.
	Data() fs.FS
	Execute(t *tpl.Template, params map[string]interface{}) error
}

// Func is a template written in Go. Parameters are checked against Schema
// before Fn runs.
type Func struct {
	TplName string
	Schema  param.Schema
	Files   fs.FS
	Fn      func(t *tpl.Template, p param.Values) error
}

func (f *Func) Name() string {
	return f.TplName
}

func (f *Func) Data() fs.FS {
	return f.Files
}

func (f *Func) Execute(t *tpl.Template, params map[string]interface{}) error {
	vals, err := f.Schema.Bind(params)
	if err != nil {
		return err
	}
	if err := t.SetParams(vals.Map()); err != nil {
		return err
	}
	return f.Fn(t, vals)
}

type Resolver interface {
	Resolve(name string) (Template, error)
}

// Registry is a static set of templates keyed by name.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]Template
}

func NewRegistry(templates ...Template) *Registry {
	r := &Registry{templates: map[string]Template{}}
	for _, t := range templates {
		r.Register(t)
	}
	return r
}

func (r *Registry) Register(t Template) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.Name()] = t
}

func (r *Registry) Resolve(name string) (Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.templates[name]; ok {
		return t, nil
	}
	return nil, NotFoundError.New("unknown template %s", name).WithProperty(TemplateProperty, name)
}

// Chain tries each resolver in turn and returns the first hit.
type Chain []Resolver

func (c Chain) Resolve(name string) (Template, error) {
	for _, r := range c {
		t, err := r.Resolve(name)
		if err == nil {
			return t, nil
		}
		if !isNotFound(err) {
			return nil, err
		}
	}
	return nil, NotFoundError.New("unknown template %s", name).WithProperty(TemplateProperty, name)
}
