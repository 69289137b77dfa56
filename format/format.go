// Package format implements the placeholder strings used by readiness
// checks. A Format is parsed when a check is declared and resolved only once
// the environment knows its port bindings.
//
// Two placeholders are understood:
//
//	{{.ExternalAddress}}
//	{{.ExposedContainerPort "name" 9999}}
package format

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

type kind int

const (
	literal kind = iota
	externalAddress
	exposedPort
)

type segment struct {
	kind      kind
	text      string
	container string
	port      int
}

// PortRef names an internal port of a container.
type PortRef struct {
	Container string
	Port      int
}

// Format is a parsed placeholder string. The zero value resolves to "".
type Format struct {
	raw      string
	segments []segment
}

// Bindings is what a Format is resolved against.
type Bindings interface {
	ExternalAddress() string
	ExposedPort(container string, port int) (int, bool)
}

func Parse(s string) (Format, error) {
	f := Format{raw: s}
	rest := s
	for len(rest) > 0 {
		i := strings.Index(rest, openDelim)
		if i < 0 {
			if strings.Contains(rest, closeDelim) {
				return Format{}, SyntaxError.New("unbalanced %q in %q", closeDelim, s)
			}
			f.segments = append(f.segments, segment{kind: literal, text: rest})
			break
		}
		if i > 0 {
			if strings.Contains(rest[:i], closeDelim) {
				return Format{}, SyntaxError.New("unbalanced %q in %q", closeDelim, s)
			}
			f.segments = append(f.segments, segment{kind: literal, text: rest[:i]})
		}
		rest = rest[i+len(openDelim):]
		j := strings.Index(rest, closeDelim)
		if j < 0 {
			return Format{}, SyntaxError.New("unterminated placeholder in %q", s)
		}
		seg, err := parsePlaceholder(strings.TrimSpace(rest[:j]))
		if err != nil {
			return Format{}, SyntaxError.Wrap(err, "in %q", s)
		}
		f.segments = append(f.segments, seg)
		rest = rest[j+len(closeDelim):]
	}
	return f, nil
}

func MustParse(s string) Format {
	f, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return f
}

func parsePlaceholder(body string) (segment, error) {
	fields, err := splitArgs(body)
	if err != nil {
		return segment{}, err
	}
	if len(fields) == 0 {
		return segment{}, fmt.Errorf("empty placeholder")
	}
	switch fields[0] {
	case ".ExternalAddress":
		if len(fields) != 1 {
			return segment{}, fmt.Errorf(".ExternalAddress takes no arguments")
		}
		return segment{kind: externalAddress}, nil
	case ".ExposedContainerPort":
		if len(fields) != 3 {
			return segment{}, fmt.Errorf(".ExposedContainerPort takes a container name and a port")
		}
		name, err := strconv.Unquote(fields[1])
		if err != nil || name == "" {
			return segment{}, fmt.Errorf("container name must be a quoted string, got %s", fields[1])
		}
		port, err := strconv.Atoi(fields[2])
		if err != nil || port < 1 || port > 65535 {
			return segment{}, fmt.Errorf("invalid port %s", fields[2])
		}
		return segment{kind: exposedPort, container: name, port: port}, nil
	}
	return segment{}, fmt.Errorf("unknown placeholder %s", fields[0])
}

// splitArgs splits on whitespace, keeping quoted strings together.
func splitArgs(s string) ([]string, error) {
	var ret []string
	for {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		if s == "" {
			return ret, nil
		}
		if s[0] == '"' {
			q, err := strconv.QuotedPrefix(s)
			if err != nil {
				return nil, fmt.Errorf("bad quoted string in %s", s)
			}
			ret = append(ret, q)
			s = s[len(q):]
			continue
		}
		end := strings.IndexFunc(s, unicode.IsSpace)
		if end < 0 {
			end = len(s)
		}
		ret = append(ret, s[:end])
		s = s[end:]
	}
}

func (f Format) String() string {
	return f.raw
}

// Ports lists every container port the format refers to, in order.
func (f Format) Ports() []PortRef {
	var ret []PortRef
	for _, s := range f.segments {
		if s.kind == exposedPort {
			ret = append(ret, PortRef{Container: s.container, Port: s.port})
		}
	}
	return ret
}

func (f Format) Resolve(b Bindings) (string, error) {
	var sb strings.Builder
	for _, s := range f.segments {
		switch s.kind {
		case literal:
			sb.WriteString(s.text)
		case externalAddress:
			sb.WriteString(b.ExternalAddress())
		case exposedPort:
			p, ok := b.ExposedPort(s.container, s.port)
			if !ok {
				return "", MissingBindingError.New("port %d of container %q is not bound", s.port, s.container).
					WithProperty(ContainerProperty, s.container).
					WithProperty(PortProperty, s.port)
			}
			sb.WriteString(strconv.Itoa(p))
		}
	}
	return sb.String(), nil
}

// ExternalAddress returns the placeholder for the environment's external address.
func ExternalAddress() string {
	return openDelim + ".ExternalAddress" + closeDelim
}

// ExposedPort returns the placeholder for the host port bound to port of the
// named container.
func ExposedPort(container string, port int) string {
	return fmt.Sprintf("%s.ExposedContainerPort %q %d%s", openDelim, container, port, closeDelim)
}
