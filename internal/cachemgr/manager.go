package cachemgr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bassista/fitsync/internal/logger"
	"github.com/bassista/fitsync/internal/store"
)

// Entry is one cached resource. Entries carry the generation they were
// stored under; entries from a superseded generation are unreachable and
// removed by the next purge pass.
type Entry struct {
	Version  int               `json:"version"`
	StoredAt int64             `json:"stored_at"`
	Status   int               `json:"status"`
	Header   map[string]string `json:"header,omitempty"`
	Body     []byte            `json:"body"`
}

func (e *Entry) response() *Response {
	return &Response{Status: e.Status, Header: e.Header, Body: e.Body}
}

// Manager serves resource requests through named, versioned cache
// partitions under the freshness strategy the classifier picks.
//
// Managers are constructed explicitly and passed by reference; there is no
// package-level instance.
type Manager struct {
	entries    *store.Namespaced
	gens       *store.Namespaced
	classifier *Classifier
	fetcher    Fetcher
	versions   map[string]int

	// purge of stale generations must settle before the first Handle
	activateOnce sync.Once
	activateErr  error

	// dedups concurrent stale-while-revalidate refreshes per key
	swrMu       sync.Mutex
	swrInflight map[string]bool
	swrDone     sync.WaitGroup
}

// NewManager wires a cache manager over the shared store. versions maps
// partition names to their configured generation; unlisted partitions
// default to generation 1.
func NewManager(s store.Store, classifier *Classifier, fetcher Fetcher, versions map[string]int) *Manager {
	if versions == nil {
		versions = map[string]int{}
	}
	return &Manager{
		entries:     store.Namespace(s, "cache"),
		gens:        store.Namespace(s, "cachegen"),
		classifier:  classifier,
		fetcher:     fetcher,
		versions:    versions,
		swrInflight: make(map[string]bool),
	}
}

// Classifier exposes the routing table, mainly for the control dispatcher.
func (m *Manager) Classifier() *Classifier { return m.classifier }

func (m *Manager) version(partition string) int {
	if v, ok := m.versions[partition]; ok {
		return v
	}
	return 1
}

// Activate runs the stale-generation purge exactly once. Handle calls it
// before serving, so no request is settled against a half-purged cache.
func (m *Manager) Activate() error {
	m.activateOnce.Do(func() {
		m.activateErr = m.PurgeStale(m.versions)
	})
	return m.activateErr
}

// Handle executes the classified strategy for the request path.
func (m *Manager) Handle(ctx context.Context, path string) (*Response, error) {
	if err := m.Activate(); err != nil {
		return nil, err
	}

	cl := m.classifier.Classify(path)
	switch cl.Strategy {
	case StrategyCacheFirst:
		return m.cacheFirst(ctx, cl.Partition, path)
	case StrategyNetworkFirst:
		return m.networkFirst(ctx, cl.Partition, path)
	case StrategyStaleWhileRevalidate:
		return m.staleWhileRevalidate(ctx, cl.Partition, path)
	default:
		return m.networkFirst(ctx, cl.Partition, path)
	}
}

func (m *Manager) cacheFirst(ctx context.Context, partition, path string) (*Response, error) {
	if entry, err := m.lookup(partition, path); err == nil {
		return entry.response(), nil
	}
	return m.fetchAndStore(ctx, partition, path)
}

func (m *Manager) networkFirst(ctx context.Context, partition, path string) (*Response, error) {
	resp, err := m.fetchAndStore(ctx, partition, path)
	if err == nil {
		return resp, nil
	}
	if entry, lerr := m.lookup(partition, path); lerr == nil {
		logger.WithComponent("cache").Debugf("network failed for %s, serving cached fallback", path)
		return entry.response(), nil
	}
	// No fallback: the original network error propagates
	return nil, err
}

func (m *Manager) staleWhileRevalidate(ctx context.Context, partition, path string) (*Response, error) {
	entry, err := m.lookup(partition, path)
	if err != nil {
		// No cached entry: behave like network-first for this call only
		return m.networkFirst(ctx, partition, path)
	}

	m.revalidateAsync(partition, path)
	return entry.response(), nil
}

// revalidateAsync refreshes a cached entry in the background. At most one
// refresh per key is in flight.
func (m *Manager) revalidateAsync(partition, path string) {
	key := partition + path
	m.swrMu.Lock()
	if m.swrInflight[key] {
		m.swrMu.Unlock()
		return
	}
	m.swrInflight[key] = true
	m.swrMu.Unlock()

	m.swrDone.Add(1)
	go func() {
		defer m.swrDone.Done()
		defer func() {
			m.swrMu.Lock()
			delete(m.swrInflight, key)
			m.swrMu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := m.fetchAndStore(ctx, partition, path); err != nil {
			logger.WithComponent("cache").Debugf("revalidate %s failed: %v", path, err)
		}
	}()
}

func (m *Manager) fetchAndStore(ctx context.Context, partition, path string) (*Response, error) {
	resp, err := m.fetcher.Fetch(ctx, path)
	if err != nil {
		return nil, err
	}

	if err := m.storeEntry(partition, path, resp); err != nil {
		// The fetched bytes are still good; the entry just will not be
		// served offline. Loudly logged, request not failed.
		logger.WithComponent("cache").Errorf("cache write for %s failed: %v", path, err)
	}
	return resp, nil
}

func (m *Manager) storeEntry(partition, path string, resp *Response) error {
	version := m.version(partition)

	var stored int
	err := store.GetJSON(m.gens, partition, &stored)
	switch {
	case err == nil && stored != version:
		return fmt.Errorf("partition %s generation moved from %d to %d mid-flight", partition, stored, version)
	case err != nil && store.IsNotFound(err):
		if err := store.SetJSON(m.gens, partition, version); err != nil {
			return err
		}
	case err != nil:
		return err
	}

	entry := Entry{
		Version:  version,
		StoredAt: time.Now().UnixMilli(),
		Status:   resp.Status,
		Header:   resp.Header,
		Body:     resp.Body,
	}
	return store.SetJSON(m.entries, partition+path, entry)
}

// lookup returns the cached entry, or a not-found error when the key is
// absent or belongs to a superseded generation.
func (m *Manager) lookup(partition, path string) (*Entry, error) {
	var entry Entry
	if err := store.GetJSON(m.entries, partition+path, &entry); err != nil {
		return nil, err
	}
	if entry.Version != m.version(partition) {
		return nil, fmt.Errorf("%s%s superseded: %w", partition, path, store.ErrKeyNotFound)
	}
	return &entry, nil
}

// PurgePartition deletes every entry in the named partition and its
// generation record.
func (m *Manager) PurgePartition(name string) error {
	keys, err := m.entries.List(name + "/")
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := m.entries.Remove(k); err != nil {
			return err
		}
	}
	if err := m.gens.Remove(name); err != nil {
		return err
	}
	logger.WithComponent("cache").Infof("purged partition %s (%d entries)", name, len(keys))
	return nil
}

// PurgeStale removes every partition whose stored generation does not
// match the configured one, then records the configured generations.
// There is no partially-purged partition: a mismatched partition is
// either fully removed or the purge errors out before any Handle runs.
func (m *Manager) PurgeStale(currentVersions map[string]int) error {
	stored, err := m.gens.List("")
	if err != nil {
		return err
	}

	for _, partition := range stored {
		var gen int
		if err := store.GetJSON(m.gens, partition, &gen); err != nil {
			return err
		}
		want := 1
		if v, ok := currentVersions[partition]; ok {
			want = v
		}
		if gen != want {
			logger.WithComponent("cache").Infof("partition %s generation %d superseded by %d", partition, gen, want)
			if err := m.PurgePartition(partition); err != nil {
				return err
			}
		}
	}
	return nil
}

// PrePopulate bulk-fetches urls into partition to seed offline
// availability before the resources are needed. Individual failures do
// not stop the pass; they are joined into the returned error.
func (m *Manager) PrePopulate(ctx context.Context, partition string, urls []string) error {
	if err := m.Activate(); err != nil {
		return err
	}

	var errs []error
	for _, u := range urls {
		resp, err := m.fetcher.Fetch(ctx, u)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := m.storeEntry(partition, u, resp); err != nil {
			errs = append(errs, err)
		}
	}

	logger.WithComponent("cache").Infof("pre-populated %d/%d urls into %s", len(urls)-len(errs), len(urls), partition)
	return errors.Join(errs...)
}
