package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"relfind/internal/api"
	"relfind/internal/filter"
	"relfind/internal/logging"
	"relfind/internal/schemagraph"
)

// FilterCompiler rewrites the require section of a filter into plain where
// conditions. *reversal.Compiler satisfies it.
type FilterCompiler interface {
	CompileFilter(ctx context.Context, root *schemagraph.Entity, raw *filter.Filter) (*filter.Filter, error)
}

// RequireConfig selects which entities and API methods accept require.
type RequireConfig struct {
	BasePath string
	// Entities holds case-insensitive globs over entity names.
	Entities []string
	// Methods lists api.MethodFind and/or api.MethodFindOne.
	Methods []string
}

type requireScope struct {
	entities []string
	methods  map[string]bool
}

func newRequireScope(cfg RequireConfig) requireScope {
	s := requireScope{methods: make(map[string]bool, len(cfg.Methods))}
	for _, e := range cfg.Entities {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			s.entities = append(s.entities, e)
		}
	}
	for _, m := range cfg.Methods {
		s.methods[strings.TrimSpace(m)] = true
	}
	return s
}

func (s requireScope) enabled(entity *schemagraph.Entity, method string) bool {
	if !s.methods[method] {
		return false
	}
	name := strings.ToLower(entity.Name)
	for _, glob := range s.entities {
		if ok, err := path.Match(glob, name); err == nil && ok {
			return true
		}
	}
	return false
}

// RequireFilter compiles the require section of the filter query parameter
// before the find handler runs. The handler sees an equivalent filter whose
// where clause carries the reversed conditions. Requests for entities or
// methods outside cfg pass through untouched, so a leftover require is
// rejected downstream.
func RequireFilter(cfg RequireConfig, reg *schemagraph.Registry, compiler FilterCompiler) func(http.Handler) http.Handler {
	scope := newRequireScope(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}
			route, ok := api.ParseRoute(cfg.BasePath, r.URL.Path)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			entity, ok := reg.EntityByPlural(route.Collection)
			if !ok || !scope.enabled(entity, route.Method) {
				next.ServeHTTP(w, r)
				return
			}

			raw, err := api.FilterFromRequest(r)
			if err != nil {
				api.WriteError(w, err)
				return
			}
			if !raw.HasRequire() {
				next.ServeHTTP(w, r)
				return
			}

			compiled, err := compiler.CompileFilter(r.Context(), entity, raw)
			if err != nil {
				if api.StatusForError(err) >= http.StatusInternalServerError {
					logging.FromContext(r.Context()).Error("require compilation failed",
						slog.String("entity", entity.Name),
						slog.String("method", route.Method),
						slog.String("error", err.Error()),
					)
				}
				api.WriteError(w, err)
				return
			}

			encoded, err := compiled.MarshalJSON()
			if err != nil {
				logging.FromContext(r.Context()).Error("compiled filter encoding failed",
					slog.String("entity", entity.Name),
					slog.String("error", err.Error()),
				)
				api.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, withFilterParam(r, string(encoded)))
		})
	}
}

// withFilterParam returns a shallow copy of r whose filter query parameter
// is replaced by encoded.
func withFilterParam(r *http.Request, encoded string) *http.Request {
	out := r.Clone(r.Context())
	query := out.URL.Query()
	query.Set(api.FilterParam, encoded)
	out.URL.RawQuery = query.Encode()
	out.RequestURI = out.URL.RequestURI()
	return out
}
