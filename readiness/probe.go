package readiness

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

const (
	KindHTTP = "http"
	KindTCP  = "tcp"
)

// Check is a readiness check whose target is already resolved.
type Check struct {
	Name   string
	Kind   string
	Target string
	// Codes are the accepted HTTP status codes.
	Codes    []int
	Interval time.Duration
	Timeout  time.Duration
}

// Prober runs a single attempt. A nil error means the check is satisfied.
type Prober interface {
	Probe(ctx context.Context, c Check) error
}

type ProberFunc func(ctx context.Context, c Check) error

func (f ProberFunc) Probe(ctx context.Context, c Check) error {
	return f(ctx, c)
}

type HTTPProber struct {
	Client *http.Client
}

func (p HTTPProber) Probe(ctx context.Context, c Check) error {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Target, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	for _, code := range c.Codes {
		if resp.StatusCode == code {
			return nil
		}
	}
	return fmt.Errorf("unexpected status %d", resp.StatusCode)
}

type TCPProber struct {
	Dialer net.Dialer
}

func (p TCPProber) Probe(ctx context.Context, c Check) error {
	conn, err := p.Dialer.DialContext(ctx, "tcp", c.Target)
	if err != nil {
		return err
	}
	return conn.Close()
}

// DefaultProbers handles http and tcp checks, each attempt bounded by
// attempt.
func DefaultProbers(attempt time.Duration) map[string]Prober {
	return map[string]Prober{
		KindHTTP: HTTPProber{Client: &http.Client{Timeout: attempt}},
		KindTCP:  TCPProber{Dialer: net.Dialer{Timeout: attempt}},
	}
}
