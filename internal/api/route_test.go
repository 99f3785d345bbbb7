package api

import (
	"fmt"
	"net/http"
	"testing"

	"relfind/internal/datastore"
	"relfind/internal/filter"
	"relfind/internal/reversal"
)

func TestParseRoute(t *testing.T) {
	tests := []struct {
		base string
		path string
		want Route
		ok   bool
	}{
		{"/api", "/api/People", Route{Collection: "People", Method: MethodFind}, true},
		{"/api/", "/api/People/", Route{Collection: "People", Method: MethodFind}, true},
		{"/api", "/api/People/findOne", Route{Collection: "People", Method: MethodFindOne}, true},
		{"/", "/People", Route{Collection: "People", Method: MethodFind}, true},
		{"/api", "/api/People/count", Route{}, false},
		{"/api", "/api/", Route{}, false},
		{"/api", "/health", Route{}, false},
		{"/api", "/apix/People", Route{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseRoute(tt.base, tt.path)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseRoute(%q, %q) = %+v, %v; want %+v, %v", tt.base, tt.path, got, ok, tt.want, tt.ok)
		}
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", filter.ErrMalformedFilter), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", datastore.ErrInvalidQuery), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", reversal.ErrUnknownRelation), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", reversal.ErrAmbiguousOrMissingRelation), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", reversal.ErrUnsupportedRelationKind), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", reversal.ErrPathTooDeep), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", reversal.ErrPathNotAllowed), http.StatusForbidden},
		{ErrRequireNotEnabled, http.StatusBadRequest},
		{ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("driver: bad connection"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusForError(tt.err); got != tt.want {
			t.Errorf("StatusForError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
