// Package apperr defines the sentinel error taxonomy shared by the cache
// core and the HTTP boundary. Core packages return one of these (wrapped
// with context via fmt.Errorf's %w) instead of inventing ad-hoc error
// strings, so the HTTP layer can map any error back to a status code with
// a single errors.Is chain.
package apperr

import "errors"

var (
	// NotFound is returned when a dataset key is absent or has expired.
	NotFound = errors.New("dataset not found")

	// MalformedQuery is returned when a query or update AST violates one
	// of the rules in the query evaluator. The wrapping error message
	// carries the human-readable reason and offending sub-AST.
	MalformedQuery = errors.New("malformed query")

	// UnsupportedMedia is returned for a Content-Type outside {csv, json}
	// or an unsupported charset.
	UnsupportedMedia = errors.New("unsupported media type")

	// NotAcceptable is returned when no Accept type can be satisfied.
	NotAcceptable = errors.New("not acceptable")

	// Unauthorized is returned on basic-auth failure.
	Unauthorized = errors.New("unauthorized")

	// BadRequest is returned for unrecognized encodings or invalid type
	// hints.
	BadRequest = errors.New("bad request")

	// CapacityExceeded is returned when a dataset is larger than the
	// configured max cache size; insertion never partially succeeds.
	CapacityExceeded = errors.New("capacity exceeded")

	// ShardUnavailable is returned when a shard or the L2 process is not
	// reachable.
	ShardUnavailable = errors.New("shard unavailable")
)
