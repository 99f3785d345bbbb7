package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"relfind/internal/datastore"
	"relfind/internal/filter"
	"relfind/internal/logging"
	"relfind/internal/observability"
	"relfind/internal/schemagraph"
)

// Handler serves read-only queries over every entity of a registry.
type Handler struct {
	registry     *schemagraph.Registry
	store        datastore.Store
	metrics      *observability.FilterMetrics
	defaultLimit int
	maxLimit     int
}

// Option configures a Handler.
type Option func(*Handler)

// WithMetrics records result counts.
func WithMetrics(m *observability.FilterMetrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithLimits sets the page size used when a filter has no limit, and an
// upper bound on any limit. Zero disables either.
func WithLimits(defaultLimit, maxLimit int) Option {
	return func(h *Handler) {
		h.defaultLimit = defaultLimit
		h.maxLimit = maxLimit
	}
}

// NewHandler creates a Handler.
func NewHandler(reg *schemagraph.Registry, store datastore.Store, opts ...Option) *Handler {
	h := &Handler{registry: reg, store: store}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns a mux serving GET {base}/{collection} and
// GET {base}/{collection}/findOne.
func (h *Handler) Routes(basePath string) *http.ServeMux {
	base := strings.TrimRight(basePath, "/")
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+base+"/{collection}", func(w http.ResponseWriter, r *http.Request) {
		h.serve(w, r, MethodFind)
	})
	mux.HandleFunc("GET "+base+"/{collection}/findOne", func(w http.ResponseWriter, r *http.Request) {
		h.serve(w, r, MethodFindOne)
	})
	return mux
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, method string) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	collection := r.PathValue("collection")
	entity, ok := h.registry.EntityByPlural(collection)
	if !ok {
		WriteError(w, fmt.Errorf("%w: collection %q", schemagraph.ErrUnknownEntity, collection))
		return
	}

	f, err := FilterFromRequest(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	if f.HasRequire() {
		WriteError(w, fmt.Errorf("%w for %s.%s", ErrRequireNotEnabled, entity.Name, method))
		return
	}

	opts, err := datastore.OptionsFromFilter(f)
	if err != nil {
		WriteError(w, err)
		return
	}
	fields, err := parseFields(f)
	if err != nil {
		WriteError(w, err)
		return
	}
	h.applyLimits(&opts, method)

	nodes, err := h.store.Find(ctx, entity, opts)
	if err != nil {
		if StatusForError(err) >= http.StatusInternalServerError {
			logger.Error("find failed",
				slog.String("entity", entity.Name),
				slog.String("method", method),
				slog.String("error", err.Error()),
			)
		}
		WriteError(w, err)
		return
	}
	fields.apply(nodes, includedRelations(opts.Include))
	h.metrics.RecordResultsCount(ctx, entity.Plural, len(nodes))

	if method == MethodFindOne {
		if len(nodes) == 0 {
			WriteError(w, fmt.Errorf("%w: no %s matches the filter", ErrNotFound, entity.Name))
			return
		}
		writeJSON(w, http.StatusOK, nodes[0])
		return
	}
	if nodes == nil {
		nodes = []datastore.Node{}
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (h *Handler) applyLimits(opts *datastore.FindOptions, method string) {
	if method == MethodFindOne {
		opts.Limit = 1
		return
	}
	if opts.Limit == 0 {
		opts.Limit = h.defaultLimit
	}
	if h.maxLimit > 0 && (opts.Limit == 0 || opts.Limit > h.maxLimit) {
		opts.Limit = h.maxLimit
	}
}

// FilterFromRequest parses the filter query parameter. A missing or empty
// parameter yields an empty filter.
func FilterFromRequest(r *http.Request) (*filter.Filter, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(FilterParam))
	if raw == "" {
		return &filter.Filter{}, nil
	}
	return filter.Parse([]byte(raw))
}
