// Package sandbox runs templates. Every instance gets its own builder
// objects, so instances share no mutable state and run in parallel.
package sandbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/joomcode/errorx"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"yuri91/tenv/tpl"
)

type State int

const (
	Loaded State = iota
	Executing
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Loaded:
		return "loaded"
	case Executing:
		return "executing"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Instance struct {
	Template Template
	Index    int
	Params   map[string]interface{}

	mu    sync.Mutex
	state State
	decl  *tpl.Declarations
	err   error
}

func NewInstance(t Template, index int, params map[string]interface{}) *Instance {
	if params == nil {
		params = map[string]interface{}{}
	}
	return &Instance{
		Template: t,
		Index:    index,
		Params:   params,
	}
}

func (i *Instance) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Run executes the template. Only the first call does any work; later calls
// return the recorded outcome.
func (i *Instance) Run() (*tpl.Declarations, error) {
	i.mu.Lock()
	if i.state != Loaded {
		defer i.mu.Unlock()
		if i.state == Executing {
			return nil, FailedError.New("template %s is already executing", i.Template.Name())
		}
		return i.decl, i.err
	}
	i.state = Executing
	i.mu.Unlock()

	decl, err := i.execute()

	i.mu.Lock()
	defer i.mu.Unlock()
	if err != nil {
		i.state = Failed
		i.err = errorx.Decorate(err, "template %s[%d] failed", i.Template.Name(), i.Index)
		return nil, i.err
	}
	i.state = Succeeded
	i.decl = decl
	return decl, nil
}

func (i *Instance) execute() (decl *tpl.Declarations, err error) {
	name := i.Template.Name()
	t := tpl.New(name, i.Index, i.Template.Data())

	defer func() {
		if r := recover(); r != nil {
			err = PanicError.New("template %s panicked: %v", name, r).
				WithProperty(TemplateProperty, name).
				WithProperty(IndexProperty, i.Index)
		}
	}()

	if err := i.Template.Execute(t, i.Params); err != nil {
		return nil, err
	}
	decl = t.Result()
	if decl.Params == nil {
		decl.Params = make(map[string]interface{}, len(i.Params))
		for k, v := range i.Params {
			decl.Params[k] = v
		}
	}
	return decl, nil
}

// Run executes all instances in parallel. A single failure fails the whole
// set; results are returned in instance order.
func Run(ctx context.Context, instances []*Instance) ([]*tpl.Declarations, error) {
	results := make([]*tpl.Declarations, len(instances))
	eg, ctx := errgroup.WithContext(ctx)
	for n, inst := range instances {
		n, inst := n, inst
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			logrus.Debugf("Executing template %s[%d]", inst.Template.Name(), inst.Index)
			decl, err := inst.Run()
			if err != nil {
				return err
			}
			results[n] = decl
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func isNotFound(err error) bool {
	return errorx.IsOfType(err, NotFoundError)
}
