package backend

import (
	"github.com/marmos91/shardgate/pkg/registry"
)

// Directory holds one Client per backend node, in registry priority order.
type Directory struct {
	clients []*Client
	byExt   map[string]*Client
}

// NewDirectory builds clients for every endpoint of reg.
func NewDirectory(reg *registry.Registry, cfg Config) *Directory {
	eps := reg.Endpoints()
	d := &Directory{
		clients: make([]*Client, 0, len(eps)),
		byExt:   make(map[string]*Client, len(eps)),
	}
	for _, ep := range eps {
		c := NewClient(ep, cfg)
		d.clients = append(d.clients, c)
		d.byExt[ep.Extension] = c
	}
	return d
}

// Lookup returns the client of the node owning ext.
func (d *Directory) Lookup(ext string) (*Client, bool) {
	c, ok := d.byExt[registry.NormalizeExt(ext)]
	return c, ok
}

// Clients returns every client in priority order.
func (d *Directory) Clients() []*Client {
	out := make([]*Client, len(d.clients))
	copy(out, d.clients)
	return out
}
