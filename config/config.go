// Package config holds the explicit configuration passed through the
// controller and the peer. Nothing here is process-global.
package config

import (
	"errors"
	"fmt"
	"headlink/logging"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as a string ("3s", "250ms").
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

type Config struct {
	Service    ServiceConfig    `toml:"service" yaml:"service"`
	Discovery  DiscoveryConfig  `toml:"discovery" yaml:"discovery"`
	Network    NetworkConfig    `toml:"network" yaml:"network"`
	Connection ConnectionConfig `toml:"connection" yaml:"connection"`
	Diagnostic DiagnosticConfig `toml:"diagnostic" yaml:"diagnostic"`
	Run        RunConfig        `toml:"run" yaml:"run"`
	Server     ServerConfig     `toml:"server" yaml:"server"`
	Chase      ChaseConfig      `toml:"chase" yaml:"chase"`
	Log        logging.Config   `toml:"log" yaml:"log"`
}

// ServiceConfig names the peer service, browsed as name.proto.domain.
type ServiceConfig struct {
	Name   string `toml:"name" yaml:"name"`
	Proto  string `toml:"proto" yaml:"proto"`
	Domain string `toml:"domain" yaml:"domain"`
}

// Type returns "name.proto", e.g. "_RtAudioEffect._tcp".
func (s ServiceConfig) Type() string {
	return s.Name + "." + s.Proto
}

const (
	BackendMDNS = "mdns"
	BackendEtcd = "etcd"
)

type DiscoveryConfig struct {
	Backend         string   `toml:"backend" yaml:"backend"`
	Timeout         Duration `toml:"timeout" yaml:"timeout"`
	MaxResults      int      `toml:"max_results" yaml:"max_results"`
	Interface       string   `toml:"interface" yaml:"interface"`
	DisableIPv6     bool     `toml:"disable_ipv6" yaml:"disable_ipv6"`
	EtcdEndpoints   []string `toml:"etcd_endpoints" yaml:"etcd_endpoints"`
	EtcdDialTimeout Duration `toml:"etcd_dial_timeout" yaml:"etcd_dial_timeout"`
}

// NetworkConfig controls waiting for a usable network before discovery.
type NetworkConfig struct {
	Interface     string   `toml:"interface" yaml:"interface"`
	MaxRetries    int      `toml:"max_retries" yaml:"max_retries"`
	RetryDelay    Duration `toml:"retry_delay" yaml:"retry_delay"`
	MaxRetryDelay Duration `toml:"max_retry_delay" yaml:"max_retry_delay"`
}

type ConnectionConfig struct {
	DialTimeout  Duration `toml:"dial_timeout" yaml:"dial_timeout"`
	WriteTimeout Duration `toml:"write_timeout" yaml:"write_timeout"`
	ReadTimeout  Duration `toml:"read_timeout" yaml:"read_timeout"`
}

type DiagnosticConfig struct {
	Text       string `toml:"text" yaml:"text"`
	AwaitReply bool   `toml:"await_reply" yaml:"await_reply"`
}

// RunConfig controls how often the controller pipeline is attempted.
type RunConfig struct {
	Attempts     int      `toml:"attempts" yaml:"attempts"`
	AttemptDelay Duration `toml:"attempt_delay" yaml:"attempt_delay"`
}

type ServerConfig struct {
	Listen         string   `toml:"listen" yaml:"listen"`
	Instance       string   `toml:"instance" yaml:"instance"`
	Host           string   `toml:"host" yaml:"host"`
	EffectID       uint8    `toml:"effect_id" yaml:"effect_id"`
	Info           string   `toml:"info" yaml:"info"`
	RateLimit      float64  `toml:"rate_limit" yaml:"rate_limit"`
	Burst          int      `toml:"burst" yaml:"burst"`
	HandlerTimeout Duration `toml:"handler_timeout" yaml:"handler_timeout"`
}

type ChaseConfig struct {
	Rate       float64 `toml:"rate" yaml:"rate"` // colors per second
	Step       uint32  `toml:"step" yaml:"step"`
	Saturation uint32  `toml:"saturation" yaml:"saturation"`
	Value      uint32  `toml:"value" yaml:"value"`
	Frames     int     `toml:"frames" yaml:"frames"` // 0 = until interrupted
}

// Default mirrors the firmware's behavior: look for _RtAudioEffect._tcp for
// up to 3s, keep at most 20 answers and send one "Hello, world!" echo.
func Default() Config {
	return Config{
		Service: ServiceConfig{
			Name:   "_RtAudioEffect",
			Proto:  "_tcp",
			Domain: "local",
		},
		Discovery: DiscoveryConfig{
			Backend:         BackendMDNS,
			Timeout:         Duration(3000 * time.Millisecond),
			MaxResults:      20,
			EtcdDialTimeout: Duration(5 * time.Second),
		},
		Network: NetworkConfig{
			MaxRetries:    100,
			RetryDelay:    Duration(time.Second),
			MaxRetryDelay: Duration(10 * time.Second),
		},
		Connection: ConnectionConfig{
			DialTimeout:  Duration(5 * time.Second),
			WriteTimeout: Duration(5 * time.Second),
			ReadTimeout:  Duration(3 * time.Second),
		},
		Diagnostic: DiagnosticConfig{
			Text: "Hello, world!",
		},
		Run: RunConfig{
			Attempts:     1,
			AttemptDelay: Duration(time.Second),
		},
		Server: ServerConfig{
			Listen:         "0.0.0.0:0",
			Instance:       "RtAudioEffect",
			EffectID:       1,
			Info:           "bass",
			RateLimit:      100,
			Burst:          20,
			HandlerTimeout: Duration(time.Second),
		},
		Chase: ChaseConfig{
			Rate:       30,
			Step:       5,
			Saturation: 100,
			Value:      100,
		},
		Log: logging.DefaultConfig(),
	}
}

// Load reads a TOML or YAML file (chosen by extension) over Default and
// validates the result. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
		}
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("load config: unsupported format %q", filepath.Ext(path))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Service.Name != "", "service.name is required")
	check(c.Service.Proto != "", "service.proto is required")

	switch c.Discovery.Backend {
	case BackendMDNS:
	case BackendEtcd:
		check(len(c.Discovery.EtcdEndpoints) > 0, "discovery.etcd_endpoints is required for the etcd backend")
	default:
		check(false, "discovery.backend %q is not one of %q, %q", c.Discovery.Backend, BackendMDNS, BackendEtcd)
	}
	check(c.Discovery.Timeout > 0, "discovery.timeout must be positive")
	check(c.Discovery.MaxResults > 0, "discovery.max_results must be positive")

	check(c.Network.MaxRetries >= 0, "network.max_retries must not be negative")
	check(c.Run.Attempts >= 1, "run.attempts must be at least 1")

	check(c.Server.RateLimit > 0, "server.rate_limit must be positive")
	check(c.Server.Burst > 0, "server.burst must be positive")

	check(c.Chase.Rate > 0, "chase.rate must be positive")
	check(c.Chase.Step >= 1 && c.Chase.Step <= 360, "chase.step must be within 1..360")
	check(c.Chase.Saturation <= 100, "chase.saturation must be within 0..100")
	check(c.Chase.Value <= 100, "chase.value must be within 0..100")

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
