// Package registry resolves a logical service name to a reachable address.
//
// Discovery backends (mDNS, etcd) implement Resolver and return raw Instance
// lists. The Locator applies the selection policy on top of them: the first
// IPv4 address in traversal order wins.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"time"
)

const (
	DefaultDomain     = "local"
	DefaultTimeout    = 3000 * time.Millisecond
	DefaultMaxResults = 20
)

var (
	// ErrNotFound is matched by every "no usable address" outcome.
	ErrNotFound    = errors.New("registry: service not found")
	ErrQueryFailed = fmt.Errorf("%w: query failed", ErrNotFound)
	ErrNoResults   = fmt.Errorf("%w: no results", ErrNotFound)
	ErrNoIPv4      = fmt.Errorf("%w: no IPv4 address in results", ErrNotFound)
)

// ServiceAddress is an IPv4 endpoint found by discovery.
type ServiceAddress struct {
	IP   netip.Addr
	Port uint16
}

// Valid reports whether both the address and the port are non-zero.
func (a ServiceAddress) Valid() bool {
	return a.IP.Is4() && !a.IP.IsUnspecified() && a.Port != 0
}

func (a ServiceAddress) String() string {
	return netip.AddrPortFrom(a.IP, a.Port).String()
}

// Instance is one discovered service instance.
type Instance struct {
	Name  string       `json:"name"`
	Host  string       `json:"host"`
	Port  uint16       `json:"port"`
	Addrs []netip.Addr `json:"addrs"`
	Text  []string     `json:"text,omitempty"`
}

// Query describes one browse request.
type Query struct {
	Service    string // e.g. "_RtAudioEffect"
	Proto      string // e.g. "_tcp"
	Domain     string // defaults to "local"
	Timeout    time.Duration
	MaxResults int
}

// Name returns the fully qualified browse name, e.g. "_RtAudioEffect._tcp.local".
func (q Query) Name() string {
	domain := q.Domain
	if domain == "" {
		domain = DefaultDomain
	}
	return q.ServiceType() + "." + domain
}

// ServiceType returns "service.proto" without the domain.
func (q Query) ServiceType() string {
	return q.Service + "." + q.Proto
}

// Resolver is a discovery backend. Browse may block for up to q.Timeout and
// must return at most q.MaxResults instances, in the order it found them.
type Resolver interface {
	Browse(ctx context.Context, q Query) ([]Instance, error)
}

// Registrar announces service instances so that a Resolver can find them.
type Registrar interface {
	Register(ctx context.Context, serviceType string, inst Instance) error
	Deregister(ctx context.Context, serviceType string, name string) error
}

func portString(p uint16) string {
	return strconv.FormatUint(uint64(p), 10)
}
