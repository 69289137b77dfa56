// Package readiness polls an environment's checks until they all pass.
package readiness

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/wait"
)

const (
	DefaultInterval = 500 * time.Millisecond
	DefaultTimeout  = 60 * time.Second
)

// Poller waits on checks. Interval and Timeout apply to checks that do not
// set their own.
type Poller struct {
	Probers  map[string]Prober
	Interval time.Duration
	Timeout  time.Duration
}

func NewPoller(interval, timeout time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Poller{
		Probers:  DefaultProbers(interval * 4),
		Interval: interval,
		Timeout:  timeout,
	}
}

// Wait polls every check in its own goroutine and returns once all of them
// passed, or any of them gave up. The error lists every failed check, in the
// order checks were given.
func (p *Poller) Wait(ctx context.Context, checks []Check) error {
	errs := make([]error, len(checks))
	var g errgroup.Group
	for i, c := range checks {
		i, c := i, c
		g.Go(func() error {
			errs[i] = p.wait(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	var merr *multierror.Error
	for _, err := range errs {
		if err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}

func (p *Poller) wait(ctx context.Context, c Check) error {
	prober, ok := p.Probers[c.Kind]
	if !ok {
		return KindError.New("check %s has unknown kind %q", c.Name, c.Kind).
			WithProperty(CheckProperty, c.Name)
	}
	interval := c.Interval
	if interval <= 0 {
		interval = p.Interval
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = p.Timeout
	}

	log := logrus.WithField("check", c.Name)
	var (
		mu       sync.Mutex
		last     error
		attempts int
	)
	err := wait.PollUntilContextTimeout(ctx, interval, timeout, true, func(ctx context.Context) (bool, error) {
		err := prober.Probe(ctx, c)
		mu.Lock()
		defer mu.Unlock()
		attempts++
		last = err
		if err != nil {
			log.Debugf("not ready: %v", err)
			return false, nil
		}
		return true, nil
	})
	if err == nil {
		log.Debugf("ready after %d attempts", attempts)
		return nil
	}

	mu.Lock()
	defer mu.Unlock()
	if ctx.Err() != nil {
		return CancelledError.Wrap(ctx.Err(), "check %s cancelled", c.Name).
			WithProperty(CheckProperty, c.Name).
			WithProperty(TargetProperty, c.Target)
	}
	if last == nil {
		last = err
	}
	return TimeoutError.Wrap(last, "check %s on %s not ready after %s (%d attempts)", c.Name, c.Target, timeout, attempts).
		WithProperty(CheckProperty, c.Name).
		WithProperty(TargetProperty, c.Target)
}
