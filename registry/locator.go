package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Locator finds the address of a named service through a Resolver.
type Locator struct {
	resolver   Resolver
	domain     string
	timeout    time.Duration
	maxResults int
	logger     zerolog.Logger
}

type LocatorOption func(*Locator)

func WithTimeout(d time.Duration) LocatorOption {
	return func(l *Locator) { l.timeout = d }
}

func WithMaxResults(n int) LocatorOption {
	return func(l *Locator) { l.maxResults = n }
}

func WithDomain(domain string) LocatorOption {
	return func(l *Locator) { l.domain = domain }
}

func WithLogger(logger zerolog.Logger) LocatorOption {
	return func(l *Locator) { l.logger = logger }
}

// NewLocator returns a Locator with a 3 s browse timeout and a cap of 20
// results.
func NewLocator(r Resolver, opts ...LocatorOption) *Locator {
	l := &Locator{
		resolver:   r,
		domain:     DefaultDomain,
		timeout:    DefaultTimeout,
		maxResults: DefaultMaxResults,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Find browses for service.proto and returns the first IPv4 address found.
//
// Instances are scanned in the order the resolver returned them and the
// addresses of each instance in their listed order. IPv6 addresses and
// instances without addresses are skipped. There is no preference between
// several matching instances: first in traversal order wins.
//
// All failures match ErrNotFound; the wrapped sentinel tells why.
func (l *Locator) Find(ctx context.Context, service, proto string) (ServiceAddress, error) {
	q := Query{
		Service:    service,
		Proto:      proto,
		Domain:     l.domain,
		Timeout:    l.timeout,
		MaxResults: l.maxResults,
	}
	l.logger.Info().Str("query", q.Name()).Dur("timeout", q.Timeout).Msg("querying PTR")

	results, err := l.resolver.Browse(ctx, q)
	if err != nil {
		l.logger.Error().Err(err).Str("query", q.Name()).Msg("query failed")
		return ServiceAddress{}, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	if len(results) == 0 {
		l.logger.Warn().Str("query", q.Name()).Msg("no results found")
		return ServiceAddress{}, ErrNoResults
	}
	if l.maxResults > 0 && len(results) > l.maxResults {
		results = results[:l.maxResults]
	}
	l.dump(results)

	addr, ok := firstIPv4(results)
	if !ok {
		l.logger.Warn().Str("query", q.Name()).Int("results", len(results)).Msg("service not found")
		return ServiceAddress{}, ErrNoIPv4
	}
	l.logger.Info().Str("service", q.ServiceType()).Stringer("addr", addr).Msg("found service")
	return addr, nil
}

func firstIPv4(results []Instance) (ServiceAddress, bool) {
	for _, inst := range results {
		for _, a := range inst.Addrs {
			a = a.Unmap()
			if a.Is4() {
				return ServiceAddress{IP: a, Port: inst.Port}, true
			}
		}
	}
	return ServiceAddress{}, false
}

// dump logs every result the way an mDNS browser prints them.
func (l *Locator) dump(results []Instance) {
	if l.logger.GetLevel() > zerolog.DebugLevel {
		return
	}
	for i, r := range results {
		ev := l.logger.Debug().Int("n", i+1)
		if r.Name != "" {
			ev = ev.Str("ptr", r.Name)
		}
		if r.Host != "" {
			ev = ev.Str("srv", r.Host+":"+portString(r.Port))
		}
		if len(r.Text) > 0 {
			ev = ev.Strs("txt", r.Text)
		}
		var v4, v6 []string
		for _, a := range r.Addrs {
			if a.Unmap().Is4() {
				v4 = append(v4, a.Unmap().String())
			} else {
				v6 = append(v6, a.String())
			}
		}
		ev.Strs("a", v4).Strs("aaaa", v6).Msg("result")
	}
}
