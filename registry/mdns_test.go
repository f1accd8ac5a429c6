package registry

import (
	"net"
	"net/netip"
	"testing"

	"github.com/hashicorp/mdns"
)

func TestEntryToInstance(t *testing.T) {
	e := &mdns.ServiceEntry{
		Name:       "RtAudioEffect._RtAudioEffect._tcp.local.",
		Host:       "headlight.local.",
		AddrV4:     net.ParseIP("192.168.1.20"),
		AddrV6:     net.ParseIP("fe80::1"),
		Port:       7000,
		InfoFields: []string{"id=abc"},
	}

	inst := entryToInstance(e)
	if inst.Host != "headlight.local" {
		t.Errorf("host: got %q", inst.Host)
	}
	if inst.Port != 7000 {
		t.Errorf("port: got %d", inst.Port)
	}
	want := []netip.Addr{netip.MustParseAddr("192.168.1.20"), netip.MustParseAddr("fe80::1")}
	if len(inst.Addrs) != len(want) {
		t.Fatalf("addrs: got %v, want %v", inst.Addrs, want)
	}
	for i := range want {
		if inst.Addrs[i] != want[i] {
			t.Errorf("addr %d: got %v, want %v", i, inst.Addrs[i], want[i])
		}
	}
	if len(inst.Text) != 1 || inst.Text[0] != "id=abc" {
		t.Errorf("text: got %v", inst.Text)
	}
}

func TestEntryToInstanceV6Only(t *testing.T) {
	inst := entryToInstance(&mdns.ServiceEntry{AddrV6: net.ParseIP("fe80::1"), Port: 1})
	if len(inst.Addrs) != 1 || inst.Addrs[0].Is4() {
		t.Fatalf("expected a single v6 address, got %v", inst.Addrs)
	}
}

func TestFQDN(t *testing.T) {
	cases := map[string]string{
		"":                 "",
		"headlight.local":  "headlight.local.",
		"headlight.local.": "headlight.local.",
	}
	for in, want := range cases {
		if got := fqdn(in); got != want {
			t.Errorf("fqdn(%q) = %q, want %q", in, got, want)
		}
	}
}
