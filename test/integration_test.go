package test

import (
	"context"
	"errors"
	"headlink/bootstrap"
	"headlink/command"
	"headlink/config"
	"headlink/led"
	"headlink/message"
	"headlink/middleware"
	"headlink/registry"
	"headlink/server"
	"headlink/transport"
	"net/netip"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ---- in-memory discovery (no multicast, no etcd) ----

type memRegistry struct {
	mu        sync.Mutex
	instances map[string][]registry.Instance
}

func newMemRegistry() *memRegistry {
	return &memRegistry{instances: make(map[string][]registry.Instance)}
}

func (m *memRegistry) Register(ctx context.Context, serviceType string, inst registry.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances[serviceType] = append(m.instances[serviceType], inst)
	return nil
}

func (m *memRegistry) Deregister(ctx context.Context, serviceType string, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	insts := m.instances[serviceType]
	for i, inst := range insts {
		if inst.Name == name {
			m.instances[serviceType] = append(insts[:i], insts[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memRegistry) Browse(ctx context.Context, q registry.Query) ([]registry.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	insts := m.instances[q.ServiceType()]
	if q.MaxResults > 0 && len(insts) > q.MaxResults {
		insts = insts[:q.MaxResults]
	}
	return append([]registry.Instance(nil), insts...), nil
}

// ---- setup ----

func startHeadlight(t testing.TB, reg registry.Registrar, serviceType, name string) (*server.Server, *server.Headlight) {
	t.Helper()
	hl := server.NewHeadlight(message.Identity{EffectID: message.EffectBass, Info: "bass"}, zerolog.Nop())
	svr := server.NewServer(hl.Handle, zerolog.Nop())
	svr.Use(middleware.LoggingMiddleware(zerolog.Nop()))
	svr.Use(middleware.TimeoutMiddleware(time.Second))
	if err := svr.Listen("tcp4", "127.0.0.1:0"); err != nil {
		t.Fatal(err)
	}
	if err := svr.Announce(context.Background(), reg, serviceType, name, "headlight.local"); err != nil {
		t.Fatal(err)
	}
	go svr.Serve()
	t.Cleanup(func() { svr.Shutdown(time.Second) })
	return svr, hl
}

func loopbackUp(string) ([]netip.Addr, error) {
	return []netip.Addr{netip.MustParseAddr("127.0.0.1")}, nil
}

// TestFullPipeline
// wait for network → Locator → ServiceConn → Handler → Server → Headlight
func TestFullPipeline(t *testing.T) {
	cfg := config.Default()
	cfg.Diagnostic.AwaitReply = true

	reg := newMemRegistry()
	_, hl := startHeadlight(t, reg, cfg.Service.Type(), "RtAudioEffect")

	loc := registry.NewLocator(reg, registry.WithTimeout(time.Second))
	err := bootstrap.Run(context.Background(), cfg, bootstrap.Deps{
		Locator:   loc,
		HostAddrs: loopbackUp,
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}
	if hl.Seen() != 1 {
		t.Fatalf("headlight saw %d messages, want 1", hl.Seen())
	}
}

// TestPipelineWithoutPeer fails in discovery and never dials.
func TestPipelineWithoutPeer(t *testing.T) {
	cfg := config.Default()
	err := bootstrap.Run(context.Background(), cfg, bootstrap.Deps{
		Locator:   registry.NewLocator(newMemRegistry()),
		HostAddrs: loopbackUp,
		Logger:    zerolog.Nop(),
	})
	if !errors.Is(err, registry.ErrNoResults) {
		t.Fatalf("expected ErrNoResults, got %v", err)
	}
}

// TestFirstAnnouncedPeerWins registers two peers; the first one gets the echo.
func TestFirstAnnouncedPeerWins(t *testing.T) {
	cfg := config.Default()
	reg := newMemRegistry()
	_, first := startHeadlight(t, reg, cfg.Service.Type(), "left")
	_, second := startHeadlight(t, reg, cfg.Service.Type(), "right")

	cfg.Diagnostic.AwaitReply = true
	err := bootstrap.Run(context.Background(), cfg, bootstrap.Deps{
		Locator:   registry.NewLocator(reg),
		HostAddrs: loopbackUp,
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if first.Seen() != 1 || second.Seen() != 0 {
		t.Fatalf("seen first=%d second=%d", first.Seen(), second.Seen())
	}
}

// TestChaseOverLink streams colors and checks the peer ends on the last one.
func TestChaseOverLink(t *testing.T) {
	cfg := config.Default()
	reg := newMemRegistry()
	_, hl := startHeadlight(t, reg, cfg.Service.Type(), "RtAudioEffect")

	ctx := context.Background()
	addr, err := registry.NewLocator(reg).Find(ctx, cfg.Service.Name, cfg.Service.Proto)
	if err != nil {
		t.Fatal(err)
	}
	conn := transport.New(nil, transport.Options{ReadTimeout: 2 * time.Second}, zerolog.Nop())
	if err := conn.Connect(ctx, addr); err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	handler := command.NewHandler(conn, command.Config{Text: command.DiagnosticText}, zerolog.Nop())
	chase := &led.Chase{Step: 30, Saturation: 100, Value: 100}
	sent, err := led.Run(ctx, handler, chase, rate.NewLimiter(rate.Inf, 1), 12)
	if err != nil || sent != 12 {
		t.Fatalf("sent %d colors, err %v", sent, err)
	}

	// Frames on one connection are handled in order, so once the identity
	// arrives every color before it has been applied.
	id, err := handler.Identify(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if id.Info != "bass" {
		t.Fatalf("unexpected identity %+v", id)
	}

	last, err := led.FromHSV(330, 100, 100)
	if err != nil {
		t.Fatal(err)
	}
	if hl.Color() != last.Message() {
		t.Fatalf("peer color %+v, want %+v", hl.Color(), last.Message())
	}
}

// TestFullIntegrationWithEtcd runs the pipeline with etcd as the discovery
// backend. Set HEADLINK_ETCD_ENDPOINTS to enable.
func TestFullIntegrationWithEtcd(t *testing.T) {
	raw := os.Getenv("HEADLINK_ETCD_ENDPOINTS")
	if raw == "" {
		t.Skip("HEADLINK_ETCD_ENDPOINTS not set")
	}
	cfg := config.Default()
	cfg.Discovery.Backend = config.BackendEtcd
	cfg.Discovery.EtcdEndpoints = strings.Split(raw, ",")
	cfg.Diagnostic.AwaitReply = true
	cfg.Service.Name = "_HeadlinkIntegration"

	reg, closeReg, err := bootstrap.OpenRegistrar(cfg.Discovery)
	if err != nil {
		t.Fatalf("failed to connect etcd: %v", err)
	}
	defer closeReg()
	_, hl := startHeadlight(t, reg, cfg.Service.Type(), "integration")

	resolver, closeRes, err := bootstrap.OpenResolver(cfg.Discovery)
	if err != nil {
		t.Fatal(err)
	}
	defer closeRes()

	err = bootstrap.Run(context.Background(), cfg, bootstrap.Deps{
		Locator:   registry.NewLocator(resolver),
		HostAddrs: loopbackUp,
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("pipeline over etcd failed: %v", err)
	}
	if hl.Seen() != 1 {
		t.Fatalf("headlight saw %d messages", hl.Seen())
	}
}
