package cachemgr

import (
	"strings"
	"sync"
)

// Strategy is a named freshness policy applied to a classified request.
type Strategy string

const (
	// StrategyCacheFirst serves the cached entry when present and only
	// goes to the network on a miss.
	StrategyCacheFirst Strategy = "cache-first"
	// StrategyNetworkFirst tries the network and falls back to the cache
	// on failure.
	StrategyNetworkFirst Strategy = "network-first"
	// StrategyStaleWhileRevalidate serves the cached entry immediately
	// and refreshes it in the background.
	StrategyStaleWhileRevalidate Strategy = "stale-while-revalidate"
)

// Default partitions. The names are part of the contract with the UI layer.
const (
	PartitionStatic        = "static"
	PartitionDynamic       = "dynamic"
	PartitionExerciseMedia = "exercise-media"
)

// Rule routes request paths to a partition and strategy. Empty Prefix or
// Suffix matches everything; both set means both must match.
type Rule struct {
	Prefix    string   `json:"prefix"`
	Suffix    string   `json:"suffix"`
	Partition string   `json:"partition" validate:"required"`
	Strategy  Strategy `json:"strategy" validate:"required,oneof=cache-first network-first stale-while-revalidate"`
}

func (r Rule) matches(path string) bool {
	if r.Prefix != "" && !strings.HasPrefix(path, r.Prefix) {
		return false
	}
	if r.Suffix != "" && !strings.HasSuffix(path, r.Suffix) {
		return false
	}
	return true
}

// Classification is the routing decision for one request path.
type Classification struct {
	Partition string
	Strategy  Strategy
}

// Classifier resolves request paths against an ordered rule table.
// First match wins; the fallback makes Classify total.
type Classifier struct {
	mu       sync.RWMutex
	rules    []Rule
	fallback Classification
}

// NewClassifier builds a classifier over rules. The fallback routes any
// unmatched path to the dynamic partition with network-first.
func NewClassifier(rules []Rule) *Classifier {
	return &Classifier{
		rules: rules,
		fallback: Classification{
			Partition: PartitionDynamic,
			Strategy:  StrategyNetworkFirst,
		},
	}
}

// DefaultRules is the built-in rule table used when no rules file is
// configured.
func DefaultRules() []Rule {
	return []Rule{
		{Prefix: "/assets/videos/", Partition: PartitionExerciseMedia, Strategy: StrategyCacheFirst},
		{Suffix: ".mp4", Partition: PartitionExerciseMedia, Strategy: StrategyCacheFirst},
		{Suffix: ".webm", Partition: PartitionExerciseMedia, Strategy: StrategyCacheFirst},
		{Prefix: "/assets/", Partition: PartitionStatic, Strategy: StrategyStaleWhileRevalidate},
		{Prefix: "/static/", Partition: PartitionStatic, Strategy: StrategyStaleWhileRevalidate},
		{Prefix: "/api/", Partition: PartitionDynamic, Strategy: StrategyNetworkFirst},
	}
}

// Classify never fails: every path routes somewhere.
func (c *Classifier) Classify(path string) Classification {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.rules {
		if r.matches(path) {
			return Classification{Partition: r.Partition, Strategy: r.Strategy}
		}
	}
	return c.fallback
}

// Replace swaps the rule table. Used by the rules file watcher.
func (c *Classifier) Replace(rules []Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = rules
}

// Partitions returns the distinct partition names referenced by the table,
// fallback included.
func (c *Classifier) Partitions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := map[string]bool{c.fallback.Partition: true}
	out := []string{c.fallback.Partition}
	for _, r := range c.rules {
		if !seen[r.Partition] {
			seen[r.Partition] = true
			out = append(out, r.Partition)
		}
	}
	return out
}
