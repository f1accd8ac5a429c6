package registry

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"sync"

	"github.com/hashicorp/mdns"
)

// MDNSResolver browses the local link with multicast DNS PTR queries.
type MDNSResolver struct {
	Iface       *net.Interface // nil: let the library pick
	DisableIPv6 bool
}

// Browse blocks for q.Timeout collecting answers. Entries beyond
// q.MaxResults are dropped by the library because the channel is full.
func (r *MDNSResolver) Browse(ctx context.Context, q Query) ([]Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	max := q.MaxResults
	if max <= 0 {
		max = DefaultMaxResults
	}
	domain := q.Domain
	if domain == "" {
		domain = DefaultDomain
	}

	entries := make(chan *mdns.ServiceEntry, max)
	params := mdns.DefaultParams(q.ServiceType())
	params.Domain = domain
	params.Entries = entries
	params.Interface = r.Iface
	params.DisableIPv6 = r.DisableIPv6
	if q.Timeout > 0 {
		params.Timeout = q.Timeout
	}

	if err := mdns.Query(params); err != nil {
		return nil, err
	}
	close(entries)

	instances := make([]Instance, 0, len(entries))
	for e := range entries {
		instances = append(instances, entryToInstance(e))
	}
	return instances, nil
}

func entryToInstance(e *mdns.ServiceEntry) Instance {
	inst := Instance{
		Name: e.Name,
		Host: strings.TrimSuffix(e.Host, "."),
		Port: uint16(e.Port),
		Text: e.InfoFields,
	}
	for _, ip := range []net.IP{e.AddrV4, e.AddrV6} {
		if len(ip) == 0 {
			continue
		}
		if a, ok := netip.AddrFromSlice(ip); ok {
			inst.Addrs = append(inst.Addrs, a.Unmap())
		}
	}
	return inst
}

// MDNSRegistrar answers mDNS queries for registered instances. Each instance
// gets its own responder, stopped by Deregister or Close.
type MDNSRegistrar struct {
	Iface *net.Interface

	mu      sync.Mutex
	servers map[string]*mdns.Server
}

func NewMDNSRegistrar(iface *net.Interface) *MDNSRegistrar {
	return &MDNSRegistrar{
		Iface:   iface,
		servers: make(map[string]*mdns.Server),
	}
}

func (r *MDNSRegistrar) Register(ctx context.Context, serviceType string, inst Instance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ips := make([]net.IP, 0, len(inst.Addrs))
	for _, a := range inst.Addrs {
		ips = append(ips, net.IP(a.AsSlice()))
	}
	if len(ips) == 0 {
		return fmt.Errorf("registry: instance %q has no addresses to announce", inst.Name)
	}

	zone, err := mdns.NewMDNSService(inst.Name, serviceType, DefaultDomain+".", fqdn(inst.Host), int(inst.Port), ips, inst.Text)
	if err != nil {
		return fmt.Errorf("registry: build mdns zone: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: zone, Iface: r.Iface})
	if err != nil {
		return fmt.Errorf("registry: start mdns responder: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.servers[inst.Name]; ok {
		old.Shutdown()
	}
	r.servers[inst.Name] = server
	return nil
}

func (r *MDNSRegistrar) Deregister(ctx context.Context, serviceType string, name string) error {
	r.mu.Lock()
	server, ok := r.servers[name]
	delete(r.servers, name)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return server.Shutdown()
}

// Close stops every responder.
func (r *MDNSRegistrar) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for name, server := range r.servers {
		if err := server.Shutdown(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.servers, name)
	}
	return firstErr
}

func fqdn(host string) string {
	if host == "" || strings.HasSuffix(host, ".") {
		return host
	}
	return host + "."
}
