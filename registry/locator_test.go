package registry

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"
)

type fakeResolver struct {
	results []Instance
	err     error
	queries []Query
}

func (f *fakeResolver) Browse(ctx context.Context, q Query) ([]Instance, error) {
	f.queries = append(f.queries, q)
	return f.results, f.err
}

var (
	v4a = netip.MustParseAddr("192.168.1.20")
	v4b = netip.MustParseAddr("192.168.1.21")
	v6a = netip.MustParseAddr("fe80::1")
	v6b = netip.MustParseAddr("fe80::2")
)

func TestFindUsesDefaultQuery(t *testing.T) {
	res := &fakeResolver{results: []Instance{{Port: 7000, Addrs: []netip.Addr{v4a}}}}
	if _, err := NewLocator(res).Find(context.Background(), "_RtAudioEffect", "_tcp"); err != nil {
		t.Fatal(err)
	}

	if len(res.queries) != 1 {
		t.Fatalf("expected one browse, got %d", len(res.queries))
	}
	q := res.queries[0]
	if q.Name() != "_RtAudioEffect._tcp.local" {
		t.Errorf("query name: got %s", q.Name())
	}
	if q.Timeout != 3000*time.Millisecond {
		t.Errorf("timeout: got %v", q.Timeout)
	}
	if q.MaxResults != 20 {
		t.Errorf("max results: got %d", q.MaxResults)
	}
}

func TestFindSelection(t *testing.T) {
	cases := []struct {
		name    string
		results []Instance
		want    ServiceAddress
		wantErr error
	}{
		{
			name:    "ipv6 only",
			results: []Instance{{Port: 7000, Addrs: []netip.Addr{v6a}}, {Port: 7001, Addrs: []netip.Addr{v6b}}},
			wantErr: ErrNoIPv4,
		},
		{
			name:    "ipv6 then ipv4 in one instance",
			results: []Instance{{Port: 7000, Addrs: []netip.Addr{v6a, v4a}}},
			want:    ServiceAddress{IP: v4a, Port: 7000},
		},
		{
			name: "only second instance has ipv4",
			results: []Instance{
				{Port: 7000, Addrs: []netip.Addr{v6a}},
				{Port: 7001, Addrs: []netip.Addr{v4b}},
			},
			want: ServiceAddress{IP: v4b, Port: 7001},
		},
		{
			name: "first match wins",
			results: []Instance{
				{Port: 7000, Addrs: []netip.Addr{v4a}},
				{Port: 7001, Addrs: []netip.Addr{v4b}},
			},
			want: ServiceAddress{IP: v4a, Port: 7000},
		},
		{
			name: "instance without addresses skipped",
			results: []Instance{
				{Port: 7000},
				{Port: 7001, Addrs: []netip.Addr{v4b}},
			},
			want: ServiceAddress{IP: v4b, Port: 7001},
		},
		{
			name:    "v4-mapped v6 counts as ipv4",
			results: []Instance{{Port: 7000, Addrs: []netip.Addr{netip.MustParseAddr("::ffff:10.0.0.7")}}},
			want:    ServiceAddress{IP: netip.MustParseAddr("10.0.0.7"), Port: 7000},
		},
		{
			name:    "empty result set",
			results: nil,
			wantErr: ErrNoResults,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NewLocator(&fakeResolver{results: tc.results}).Find(context.Background(), "_svc", "_tcp")
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				if !errors.Is(err, ErrNotFound) {
					t.Fatalf("%v should match ErrNotFound", err)
				}
				if got.Valid() {
					t.Fatalf("expected invalid address, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Find failed: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFindQueryFailure(t *testing.T) {
	boom := errors.New("socket closed")
	_, err := NewLocator(&fakeResolver{err: boom}).Find(context.Background(), "_svc", "_tcp")
	if !errors.Is(err, ErrQueryFailed) || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrQueryFailed, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("resolver error not wrapped: %v", err)
	}
}

func TestFindCapsResults(t *testing.T) {
	results := []Instance{
		{Port: 7000, Addrs: []netip.Addr{v6a}},
		{Port: 7001, Addrs: []netip.Addr{v4b}},
	}
	_, err := NewLocator(&fakeResolver{results: results}, WithMaxResults(1)).Find(context.Background(), "_svc", "_tcp")
	if !errors.Is(err, ErrNoIPv4) {
		t.Fatalf("expected results beyond the cap to be ignored, got %v", err)
	}
}

func TestServiceAddressValid(t *testing.T) {
	cases := []struct {
		addr ServiceAddress
		want bool
	}{
		{ServiceAddress{}, false},
		{ServiceAddress{IP: v4a}, false},
		{ServiceAddress{Port: 80}, false},
		{ServiceAddress{IP: netip.IPv4Unspecified(), Port: 80}, false},
		{ServiceAddress{IP: v6a, Port: 80}, false},
		{ServiceAddress{IP: v4a, Port: 80}, true},
	}
	for _, tc := range cases {
		if got := tc.addr.Valid(); got != tc.want {
			t.Errorf("%v.Valid() = %v, want %v", tc.addr, got, tc.want)
		}
	}
}

func TestServiceAddressString(t *testing.T) {
	a := ServiceAddress{IP: v4a, Port: 7000}
	if a.String() != "192.168.1.20:7000" {
		t.Fatalf("got %s", a)
	}
}
