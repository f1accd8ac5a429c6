// etcd is an alternative discovery backend for networks where multicast is
// filtered. Instances live under a per-service prefix:
//
//	Key:   /headlink/{service.proto}/{instance}
//	Value: JSON-encoded Instance
//
// Registration uses TTL-based leases: if the peer dies, the lease expires and
// the entry disappears instead of lingering as a ghost instance.

package registry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	etcdKeyPrefix   = "/headlink/"
	DefaultLeaseTTL = 10 // seconds
)

// EtcdRegistry implements Resolver and Registrar on etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // thread-safe, shared across goroutines
	ttl    int64

	mu        sync.Mutex
	keepAlive map[string]context.CancelFunc // instance key → stops its lease renewal
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string, dialTimeout time.Duration) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{
		client:    c,
		ttl:       DefaultLeaseTTL,
		keepAlive: make(map[string]context.CancelFunc),
	}, nil
}

func servicePrefix(serviceType string) string {
	return etcdKeyPrefix + serviceType + "/"
}

func instanceKey(serviceType, name string) string {
	return servicePrefix(serviceType) + name
}

// Register stores inst under a lease and keeps the lease alive until
// Deregister or Close.
//
// Flow:
//  1. Grant a lease with the registry TTL
//  2. Put the instance with the lease attached
//  3. Start KeepAlive on a context owned by this registration
func (r *EtcdRegistry) Register(ctx context.Context, serviceType string, inst Instance) error {
	lease, err := r.client.Grant(ctx, r.ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(inst)
	if err != nil {
		return err
	}

	key := instanceKey(serviceType, inst.Name)
	if _, err := r.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return err
	}

	kaCtx, cancel := context.WithCancel(context.Background())
	ch, err := r.client.KeepAlive(kaCtx, lease.ID)
	if err != nil {
		cancel()
		return err
	}
	// Drain responses so the channel never fills up.
	go func() {
		for range ch {
		}
	}()

	r.mu.Lock()
	if old, ok := r.keepAlive[key]; ok {
		old()
	}
	r.keepAlive[key] = cancel
	r.mu.Unlock()
	return nil
}

// Deregister removes the instance and stops its lease renewal.
func (r *EtcdRegistry) Deregister(ctx context.Context, serviceType string, name string) error {
	key := instanceKey(serviceType, name)
	r.mu.Lock()
	if cancel, ok := r.keepAlive[key]; ok {
		cancel()
		delete(r.keepAlive, key)
	}
	r.mu.Unlock()

	_, err := r.client.Delete(ctx, key)
	return err
}

// Browse lists the instances registered for q in key order.
func (r *EtcdRegistry) Browse(ctx context.Context, q Query) ([]Instance, error) {
	if q.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.Timeout)
		defer cancel()
	}

	opts := []clientv3.OpOption{clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend)}
	if q.MaxResults > 0 {
		opts = append(opts, clientv3.WithLimit(int64(q.MaxResults)))
	}
	resp, err := r.client.Get(ctx, servicePrefix(q.ServiceType()), opts...)
	if err != nil {
		return nil, err
	}

	values := make([][]byte, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		values = append(values, kv.Value)
	}
	return decodeInstances(values), nil
}

// decodeInstances skips malformed entries instead of failing the browse.
func decodeInstances(values [][]byte) []Instance {
	instances := make([]Instance, 0, len(values))
	for _, v := range values {
		var inst Instance
		if err := json.Unmarshal(v, &inst); err != nil {
			continue
		}
		instances = append(instances, inst)
	}
	return instances
}

// Close stops all lease renewals and closes the client.
func (r *EtcdRegistry) Close() error {
	r.mu.Lock()
	for key, cancel := range r.keepAlive {
		cancel()
		delete(r.keepAlive, key)
	}
	r.mu.Unlock()
	return r.client.Close()
}
