package datastore

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"

	"relfind/internal/filter"
	"relfind/internal/observability"
	"relfind/internal/schemagraph"
)

// MemoryStore keeps records in process. Find returns copies, so callers may
// attach includes or otherwise mutate results freely.
type MemoryStore struct {
	registry *schemagraph.Registry
	metrics  *observability.FilterMetrics

	mu      sync.RWMutex
	records map[string][]Node
}

// NewMemoryStore creates an empty store for the registry's entities.
func NewMemoryStore(reg *schemagraph.Registry, metrics *observability.FilterMetrics) *MemoryStore {
	return &MemoryStore{
		registry: reg,
		metrics:  metrics,
		records:  make(map[string][]Node),
	}
}

// Insert appends records for the named entity. Records are copied.
func (s *MemoryStore) Insert(entity string, records ...Node) error {
	e, err := s.registry.Entity(entity)
	if err != nil {
		return err
	}
	copied := make([]Node, 0, len(records))
	for i, r := range records {
		if r[e.IDField] == nil {
			return fmt.Errorf("%s record %d has no %s", entity, i, e.IDField)
		}
		copied = append(copied, cloneNode(r))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[entity] = append(s.records[entity], copied...)
	return nil
}

// LoadSeedFile reads a YAML or JSON document mapping entity names to lists of
// records and inserts them.
func (s *MemoryStore) LoadSeedFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file %q: %w", path, err)
	}
	var seed map[string][]map[string]any
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to decode seed file %q: %w", path, err)
	}
	for _, name := range s.registry.Names() {
		rows, ok := seed[name]
		if !ok {
			continue
		}
		if err := s.Insert(name, rows...); err != nil {
			return fmt.Errorf("seed file %q: %w", path, err)
		}
		delete(seed, name)
	}
	if len(seed) > 0 {
		extra := make([]string, 0, len(seed))
		for name := range seed {
			extra = append(extra, name)
		}
		sort.Strings(extra)
		return fmt.Errorf("seed file %q: %w: %s", path, schemagraph.ErrUnknownEntity, strings.Join(extra, ", "))
	}
	return nil
}

// Find returns records of entity matching opts.
func (s *MemoryStore) Find(ctx context.Context, entity *schemagraph.Entity, opts FindOptions) ([]Node, error) {
	ctx, span := startSpan(ctx, "datastore.find",
		attribute.String("relfind.store", "memory"),
		attribute.String("relfind.entity", entity.Name),
		attribute.Int("relfind.include_count", len(opts.Include)),
	)
	defer span.End()

	nodes, err := s.find(ctx, entity, opts)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("relfind.rows", len(nodes)))
	return nodes, nil
}

func (s *MemoryStore) find(ctx context.Context, entity *schemagraph.Entity, opts FindOptions) ([]Node, error) {
	nodes, err := s.query(ctx, entity, opts.Where)
	if err != nil {
		return nil, err
	}
	sortNodes(nodes, opts.Order, entity.IDField)
	nodes = page(nodes, opts.Skip, opts.Limit)

	if len(opts.Include) > 0 && len(nodes) > 0 {
		loader := &includeLoader{registry: s.registry, fetch: s.query}
		if err := loader.load(ctx, entity, nodes, opts.Include); err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

func (s *MemoryStore) query(ctx context.Context, entity *schemagraph.Entity, where filter.Condition) ([]Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.metrics.RecordStoreQuery(ctx, "memory", entity.Name)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Node
	for _, r := range s.records[entity.Name] {
		ok, err := Match(r, where)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, cloneNode(r))
		}
	}
	if out == nil {
		out = []Node{}
	}
	sortNodes(out, nil, entity.IDField)
	return out, nil
}

func cloneNode(n Node) Node {
	out := make(Node, len(n))
	for k, v := range n {
		out[k] = v
	}
	return out
}
