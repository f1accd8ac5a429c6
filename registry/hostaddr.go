package registry

import (
	"fmt"
	"net"
	"net/netip"
)

// HostIPv4s lists the non-loopback IPv4 addresses of the interfaces that are
// up. An empty iface means every interface.
func HostIPv4s(iface string) ([]netip.Addr, error) {
	var ifaces []net.Interface
	if iface != "" {
		ifi, err := net.InterfaceByName(iface)
		if err != nil {
			return nil, fmt.Errorf("registry: interface %q: %w", iface, err)
		}
		ifaces = []net.Interface{*ifi}
	} else {
		all, err := net.Interfaces()
		if err != nil {
			return nil, err
		}
		ifaces = all
	}

	var out []netip.Addr
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip, ok := netip.AddrFromSlice(ipnet.IP)
			if !ok {
				continue
			}
			ip = ip.Unmap()
			if ip.Is4() && !ip.IsLoopback() {
				out = append(out, ip)
			}
		}
	}
	return out, nil
}
