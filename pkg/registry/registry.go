package registry

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Class tells where files of one extension live.
type Class int

const (
	// ClassUnsupported marks an extension no node owns.
	ClassUnsupported Class = iota
	// ClassLocal marks the extension kept on the gateway's own disk.
	ClassLocal
	// ClassRemote marks an extension owned by a backend node.
	ClassRemote
)

func (c Class) String() string {
	switch c {
	case ClassLocal:
		return "local"
	case ClassRemote:
		return "remote"
	default:
		return "unsupported"
	}
}

// LocalClass describes the extension class the gateway stores itself.
type LocalClass struct {
	Extension  string
	BundleName string
}

// Endpoint is the address of the backend node owning one extension class.
type Endpoint struct {
	Extension string
	Host      string
	Port      int

	// BundleName is the archive name presented to clients for DOWNTAR,
	// independent of the name the node itself reports.
	BundleName string
}

// Address returns host:port suitable for net.Dial.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string {
	return e.Extension + "@" + e.Address()
}

// Registry maps extensions to their owners.
//
// A Registry is built once at startup and never mutated afterwards, so it is
// safe to share across sessions without locking. Backends keep their
// registration order, which is the fixed aggregation priority.
type Registry struct {
	local     LocalClass
	endpoints []Endpoint
	byExt     map[string]int
}

// New builds a registry from the local class and the backends in priority
// order. Extensions are normalized to lowercase with a leading dot.
func New(local LocalClass, backends ...Endpoint) (*Registry, error) {
	local.Extension = NormalizeExt(local.Extension)
	if local.Extension == "" {
		return nil, fmt.Errorf("local extension class is required")
	}
	if local.BundleName == "" {
		local.BundleName = strings.TrimPrefix(local.Extension, ".") + "files.tar"
	}

	r := &Registry{
		local:     local,
		endpoints: make([]Endpoint, 0, len(backends)),
		byExt:     make(map[string]int, len(backends)),
	}

	for _, ep := range backends {
		if err := r.register(ep); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) register(ep Endpoint) error {
	ep.Extension = NormalizeExt(ep.Extension)
	if ep.Extension == "" {
		return fmt.Errorf("backend %s: extension is required", ep.Address())
	}
	if ep.Extension == r.local.Extension {
		return fmt.Errorf("backend %s: extension %s is the local class", ep.Address(), ep.Extension)
	}
	if _, exists := r.byExt[ep.Extension]; exists {
		return fmt.Errorf("backend for extension %s already registered", ep.Extension)
	}
	if ep.Host == "" {
		return fmt.Errorf("backend %s: host is required", ep.Extension)
	}
	if ep.Port <= 0 || ep.Port > 65535 {
		return fmt.Errorf("backend %s: invalid port %d", ep.Extension, ep.Port)
	}
	if ep.BundleName == "" {
		ep.BundleName = strings.TrimPrefix(ep.Extension, ".") + "s.tar"
	}

	r.byExt[ep.Extension] = len(r.endpoints)
	r.endpoints = append(r.endpoints, ep)
	return nil
}

// Local returns the local extension class.
func (r *Registry) Local() LocalClass {
	return r.local
}

// Classify reports who owns ext (matched case-insensitively).
func (r *Registry) Classify(ext string) Class {
	ext = NormalizeExt(ext)
	switch {
	case ext == "":
		return ClassUnsupported
	case ext == r.local.Extension:
		return ClassLocal
	}
	if _, ok := r.byExt[ext]; ok {
		return ClassRemote
	}
	return ClassUnsupported
}

// Lookup returns the backend owning ext.
func (r *Registry) Lookup(ext string) (Endpoint, bool) {
	i, ok := r.byExt[NormalizeExt(ext)]
	if !ok {
		return Endpoint{}, false
	}
	return r.endpoints[i], true
}

// Endpoints returns the backends in priority order.
func (r *Registry) Endpoints() []Endpoint {
	out := make([]Endpoint, len(r.endpoints))
	copy(out, r.endpoints)
	return out
}

// Extensions returns every known extension, local class first, then the
// backends in priority order.
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.endpoints)+1)
	out = append(out, r.local.Extension)
	for _, ep := range r.endpoints {
		out = append(out, ep.Extension)
	}
	return out
}

// BundleName returns the client-facing archive name for ext.
func (r *Registry) BundleName(ext string) (string, bool) {
	switch r.Classify(ext) {
	case ClassLocal:
		return r.local.BundleName, true
	case ClassRemote:
		ep, _ := r.Lookup(ext)
		return ep.BundleName, true
	default:
		return "", false
	}
}

// NormalizeExt lowercases ext and ensures a leading dot. Blank input stays
// blank.
func NormalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || ext == "." {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
