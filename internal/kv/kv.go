// Package kv is the per-client key-value persistence used for session tokens,
// persisted carts and cashier sale backups.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

const (
	KeyAdminSessionToken  = "adminSessionToken"
	KeyCart               = "cart"
	KeyCashierSalesBackup = "cashierSalesBackup"
)

var ErrNotFound = errors.New("key not found")

// Durable reports whether key, namespaced or not, holds state that must not
// expire: cart lines whose stock is reserved and sales not yet stored.
func Durable(key string) bool {
	if i := strings.LastIndexByte(key, ':'); i >= 0 {
		key = key[i+1:]
	}
	return key == KeyCart || key == KeyCashierSalesBackup
}

// Store is a string key-value store
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Memory is an in-process Store
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory creates an empty Memory store
func NewMemory() *Memory {
	return &Memory{values: map[string]string{}}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

type namespaced struct {
	store  Store
	prefix string
}

// Namespace scopes every key of store under "client:<clientID>:"
func Namespace(store Store, clientID string) Store {
	return &namespaced{store: store, prefix: "client:" + clientID + ":"}
}

func (n *namespaced) Get(ctx context.Context, key string) (string, error) {
	return n.store.Get(ctx, n.prefix+key)
}

func (n *namespaced) Set(ctx context.Context, key, value string) error {
	return n.store.Set(ctx, n.prefix+key, value)
}

func (n *namespaced) Remove(ctx context.Context, key string) error {
	return n.store.Remove(ctx, n.prefix+key)
}

// GetJSON decodes the JSON value at key into v
func GetJSON(ctx context.Context, store Store, key string, v any) error {
	raw, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

// SetJSON stores v encoded as JSON at key
func SetJSON(ctx context.Context, store Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return store.Set(ctx, key, string(raw))
}
