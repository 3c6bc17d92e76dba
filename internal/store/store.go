package store

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Store is a durable map from string keys to opaque values. Writes replace
// the whole value for a key; there are no partial updates. Implementations
// must give a read-after-write view within one process.
type Store interface {
	// Get returns the value for key, or an error satisfying IsNotFound
	// when the key is absent.
	Get(key string) ([]byte, error)
	// Set persists value under key. On error the change must be treated
	// as not persisted.
	Set(key string, value []byte) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error
	// List returns all keys starting with prefix, in lexical order.
	List(prefix string) ([]string, error)
	Close() error
}

// GetJSON reads key and unmarshals it into dest.
func GetJSON(s Store, key string, dest any) error {
	data, err := s.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// SetJSON marshals v and persists it under key.
func SetJSON(s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(key, data)
}

// Namespaced wraps a Store so all keys live under prefix. Each component
// gets its own namespace and never touches another's keys.
type Namespaced struct {
	inner  Store
	prefix string
}

// Namespace returns a view of s rooted at prefix.
func Namespace(s Store, prefix string) *Namespaced {
	return &Namespaced{inner: s, prefix: prefix + "/"}
}

func (n *Namespaced) Get(key string) ([]byte, error) {
	return n.inner.Get(n.prefix + key)
}

func (n *Namespaced) Set(key string, value []byte) error {
	return n.inner.Set(n.prefix+key, value)
}

func (n *Namespaced) Remove(key string) error {
	return n.inner.Remove(n.prefix + key)
}

// List returns namespace-relative keys under prefix.
func (n *Namespaced) List(prefix string) ([]string, error) {
	keys, err := n.inner.List(n.prefix + prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, n.prefix))
	}
	return out, nil
}

// Close is a no-op: the namespace does not own the underlying store.
func (n *Namespaced) Close() error { return nil }
