package catalog

import "errors"

var (
	// ErrCacheMiss indicates the requested catalog list is not cached.
	ErrCacheMiss = errors.New("catalog cache miss")

	// ErrNoDevice indicates a station record with no device flag set.
	// This should be unreachable after hybrid expansion and means the
	// catalog shape violated an assumption, so callers treat it as fatal.
	ErrNoDevice = errors.New("no resolvable device code")
)
