package reversal

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"relfind/internal/filter"
	"relfind/internal/schemagraph"
)

// Compiler rewrites the require section of a filter into its where clause.
type Compiler struct {
	reverser *Reverser
	options
}

// NewCompiler creates a Compiler. The reverser carries its own policy; opts
// here control compile-level logging and metrics.
func NewCompiler(reverser *Reverser, opts ...Option) *Compiler {
	return &Compiler{
		reverser: reverser,
		options:  buildOptions(opts),
	}
}

// New is a convenience constructor sharing one set of options between the
// reverser and the compiler.
func New(reg *schemagraph.Registry, finder Finder, opts ...Option) *Compiler {
	return NewCompiler(NewReverser(reg, finder, opts...), opts...)
}

// CompileFilter returns raw unchanged when it has no requirements. Otherwise
// every requirement is reversed concurrently and the results are merged as
// {"and": [where?, cond1, cond2, ...]} in require order, with require removed.
// If any reversal fails no filter is returned.
func (c *Compiler) CompileFilter(ctx context.Context, root *schemagraph.Entity, raw *filter.Filter) (*filter.Filter, error) {
	if !raw.HasRequire() {
		return raw, nil
	}

	start := time.Now()
	ctx, span := startSpan(ctx, "reversal.compile_filter",
		attribute.String("relfind.entity", root.Name),
		attribute.Int("relfind.require_entries", len(raw.Require)),
	)
	defer span.End()

	conds := make([]filter.Condition, len(raw.Require))
	g, gctx := errgroup.WithContext(ctx)
	for i, req := range raw.Require {
		g.Go(func() error {
			cond, err := c.reverser.ReverseCondition(gctx, root, req.Path, req.Condition)
			if err != nil {
				return err
			}
			conds[i] = cond
			return nil
		})
	}
	err := g.Wait()
	finishSpan(span, err)
	c.metrics.RecordCompile(ctx, root.Name, len(raw.Require), time.Since(start), err)
	if err != nil {
		c.logger.Debug("require compilation failed",
			slog.String("entity", root.Name),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	merged := make([]filter.Condition, 0, len(conds)+1)
	if raw.Where != nil {
		merged = append(merged, raw.Where)
	}
	merged = append(merged, conds...)
	compiled := raw.WithWhere(filter.And(merged...))

	c.logger.Debug("compiled require filter",
		slog.String("entity", root.Name),
		slog.Int("require_entries", len(raw.Require)),
		slog.String("where", compiled.String()),
	)
	return compiled, nil
}
