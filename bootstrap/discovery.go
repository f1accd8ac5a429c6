package bootstrap

import (
	"fmt"
	"headlink/config"
	"headlink/registry"
	"net"
)

// OpenResolver builds the discovery backend named in cfg. The returned close
// function releases backend resources and is never nil.
func OpenResolver(cfg config.DiscoveryConfig) (registry.Resolver, func() error, error) {
	switch cfg.Backend {
	case config.BackendEtcd:
		reg, err := registry.NewEtcdRegistry(cfg.EtcdEndpoints, cfg.EtcdDialTimeout.Std())
		if err != nil {
			return nil, nil, fmt.Errorf("open etcd registry: %w", err)
		}
		return reg, reg.Close, nil
	case config.BackendMDNS, "":
		iface, err := lookupInterface(cfg.Interface)
		if err != nil {
			return nil, nil, err
		}
		return &registry.MDNSResolver{Iface: iface, DisableIPv6: cfg.DisableIPv6}, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown discovery backend %q", cfg.Backend)
	}
}

// OpenRegistrar builds the announcing side of the backend named in cfg.
func OpenRegistrar(cfg config.DiscoveryConfig) (registry.Registrar, func() error, error) {
	switch cfg.Backend {
	case config.BackendEtcd:
		reg, err := registry.NewEtcdRegistry(cfg.EtcdEndpoints, cfg.EtcdDialTimeout.Std())
		if err != nil {
			return nil, nil, fmt.Errorf("open etcd registry: %w", err)
		}
		return reg, reg.Close, nil
	case config.BackendMDNS, "":
		iface, err := lookupInterface(cfg.Interface)
		if err != nil {
			return nil, nil, err
		}
		reg := registry.NewMDNSRegistrar(iface)
		return reg, reg.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown discovery backend %q", cfg.Backend)
	}
}

func lookupInterface(name string) (*net.Interface, error) {
	if name == "" {
		return nil, nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("discovery interface %q: %w", name, err)
	}
	return iface, nil
}
