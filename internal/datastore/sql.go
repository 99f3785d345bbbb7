package datastore

import (
	"context"
	"fmt"
	"math"
	"time"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel/attribute"

	"relfind/internal/dbexec"
	"relfind/internal/filter"
	"relfind/internal/observability"
	"relfind/internal/schemagraph"
	"relfind/internal/sqlutil"
)

// SQLStore runs find queries against a relational database. Each include
// level is one additional batched SELECT.
type SQLStore struct {
	executor dbexec.QueryExecutor
	registry *schemagraph.Registry
	dialect  sqlutil.Dialect
	metrics  *observability.FilterMetrics
}

// NewSQLStore creates a store over executor.
func NewSQLStore(executor dbexec.QueryExecutor, reg *schemagraph.Registry, dialect sqlutil.Dialect, metrics *observability.FilterMetrics) *SQLStore {
	return &SQLStore{
		executor: executor,
		registry: reg,
		dialect:  dialect,
		metrics:  metrics,
	}
}

// Find returns records of entity matching opts.
func (s *SQLStore) Find(ctx context.Context, entity *schemagraph.Entity, opts FindOptions) ([]Node, error) {
	ctx, span := startSpan(ctx, "datastore.find",
		attribute.String("relfind.store", "sql"),
		attribute.String("db.system", string(s.dialect)),
		attribute.String("relfind.entity", entity.Name),
		attribute.Int("relfind.include_count", len(opts.Include)),
	)
	defer span.End()

	nodes, err := s.selectRows(ctx, entity, opts.Where, opts.Order, opts.Limit, opts.Skip)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	if len(opts.Include) > 0 && len(nodes) > 0 {
		loader := &includeLoader{registry: s.registry, fetch: s.fetch}
		if err := loader.load(ctx, entity, nodes, opts.Include); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
	}
	span.SetAttributes(attribute.Int("relfind.rows", len(nodes)))
	return nodes, nil
}

func (s *SQLStore) fetch(ctx context.Context, entity *schemagraph.Entity, where filter.Condition) ([]Node, error) {
	return s.selectRows(ctx, entity, where, nil, 0, 0)
}

// BuildSelect renders the SELECT for one fetch without executing it.
func (s *SQLStore) BuildSelect(entity *schemagraph.Entity, where filter.Condition, order []filter.OrderBy, limit, skip int) (string, []any, error) {
	columns := []string{"*"}
	if mapped := entity.Columns(); mapped != nil {
		columns = make([]string, len(mapped))
		for i, col := range mapped {
			columns[i] = s.dialect.QuoteIdentifier(col)
		}
	}

	q := sq.Select(columns...).
		From(s.dialect.QuoteIdentifier(entity.Table)).
		PlaceholderFormat(sq.Question)

	cond, err := buildSQLCondition(entity, s.dialect, where)
	if err != nil {
		return "", nil, err
	}
	if cond != nil {
		q = q.Where(cond)
	}

	if len(order) == 0 {
		order = []filter.OrderBy{{Field: entity.IDField}}
	}
	for _, o := range order {
		col, ok := entity.Column(o.Field)
		if !ok {
			return "", nil, invalid("unknown order field %s on %s", o.Field, entity.Name)
		}
		clause := s.dialect.QuoteIdentifier(col)
		if o.Desc {
			clause += " DESC"
		}
		q = q.OrderBy(clause)
	}

	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	if skip > 0 {
		if limit <= 0 {
			// OFFSET is only valid after LIMIT.
			q = q.Limit(math.MaxInt64)
		}
		q = q.Offset(uint64(skip))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("failed to build query for %s: %w", entity.Name, err)
	}
	return query, args, nil
}

func (s *SQLStore) selectRows(ctx context.Context, entity *schemagraph.Entity, where filter.Condition, order []filter.OrderBy, limit, skip int) ([]Node, error) {
	query, args, err := s.BuildSelect(entity, where, order, limit, skip)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordStoreQuery(ctx, "sql", entity.Name)

	rows, err := s.executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanNodes(rows, entity)
}

func scanNodes(rows dbexec.Rows, entity *schemagraph.Entity) ([]Node, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	fields := make([]string, len(columns))
	for i, col := range columns {
		fields[i] = entity.Field(col)
	}

	nodes := []Node{}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		node := make(Node, len(columns))
		for i, field := range fields {
			node[field] = convertScanned(values[i])
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return nodes, nil
}

func convertScanned(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return val
	}
}
