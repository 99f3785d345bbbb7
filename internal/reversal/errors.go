package reversal

import "errors"

var (
	// ErrUnknownRelation means a path segment is not a relation of the entity it is resolved on.
	ErrUnknownRelation = errors.New("unknown relation")
	// ErrAmbiguousOrMissingRelation means no relation connects two consecutive entities on the walk back.
	ErrAmbiguousOrMissingRelation = errors.New("no relation connects entities")
	// ErrUnsupportedRelationKind means the root relation is neither hasMany nor belongsTo.
	ErrUnsupportedRelationKind = errors.New("unsupported relation kind")
	// ErrPathTooDeep means a path has more segments than the configured bound.
	ErrPathTooDeep = errors.New("relation path too deep")
	// ErrPathNotAllowed means a path is not in the allow-list for its root entity.
	ErrPathNotAllowed = errors.New("relation path not allowed")
)

// IsClientError reports whether err was caused by the request rather than by
// the data store.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnknownRelation) ||
		errors.Is(err, ErrAmbiguousOrMissingRelation) ||
		errors.Is(err, ErrUnsupportedRelationKind) ||
		errors.Is(err, ErrPathTooDeep) ||
		errors.Is(err, ErrPathNotAllowed)
}
