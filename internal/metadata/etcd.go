package metadata

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/soltixdb/unistor/internal/config"
)

// EtcdStore implements Store on etcd with a read-through cache
type EtcdStore struct {
	client *clientv3.Client
	cache  *KVCache
}

// NewEtcdStore connects to the configured endpoints
func NewEtcdStore(cfg config.EtcdConfig) (*EtcdStore, error) {
	dial := cfg.DialTimeout
	if dial == 0 {
		dial = 5 * time.Second
	}
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: dial,
		Username:    cfg.Username,
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	return NewEtcdStoreWithClient(client), nil
}

// NewEtcdStoreWithClient wraps an existing client
func NewEtcdStoreWithClient(client *clientv3.Client) *EtcdStore {
	return &EtcdStore{
		client: client,
		cache:  NewKVCache(30 * time.Second),
	}
}

// Client exposes the underlying client for lease-bound writers
func (s *EtcdStore) Client() *clientv3.Client {
	return s.client
}

// Get retrieves a value, serving from cache when possible
func (s *EtcdStore) Get(ctx context.Context, key string) (string, error) {
	if v, found, cached := s.cache.Get(key); cached {
		if !found {
			return "", nil
		}
		return v, nil
	}

	resp, err := s.client.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to get key: %w", err)
	}
	if len(resp.Kvs) == 0 {
		s.cache.SetMissing(key)
		return "", nil
	}

	value := string(resp.Kvs[0].Value)
	s.cache.Set(key, value)
	return value, nil
}

// Put stores a key-value pair
func (s *EtcdStore) Put(ctx context.Context, key, value string) error {
	if _, err := s.client.Put(ctx, key, value); err != nil {
		return fmt.Errorf("failed to put key: %w", err)
	}
	s.cache.Set(key, value)
	return nil
}

// PutWithLease stores a key bound to a lease; the cache is bypassed since
// the key can vanish when the lease expires
func (s *EtcdStore) PutWithLease(ctx context.Context, key, value string, lease clientv3.LeaseID) error {
	if _, err := s.client.Put(ctx, key, value, clientv3.WithLease(lease)); err != nil {
		return fmt.Errorf("failed to put leased key: %w", err)
	}
	s.cache.Delete(key)
	return nil
}

// Delete removes a key
func (s *EtcdStore) Delete(ctx context.Context, key string) error {
	if _, err := s.client.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	s.cache.Delete(key)
	return nil
}

// GetPrefix reads every key under prefix directly from etcd
func (s *EtcdStore) GetPrefix(ctx context.Context, prefix string) (map[string]string, error) {
	resp, err := s.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to get prefix: %w", err)
	}

	result := make(map[string]string, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		result[string(kv.Key)] = string(kv.Value)
	}
	return result, nil
}

// CacheStats reports the read cache
func (s *EtcdStore) CacheStats() CacheStats {
	return s.cache.Stats()
}

// Close stops the cache and closes the client
func (s *EtcdStore) Close() error {
	s.cache.Stop()
	return s.client.Close()
}
