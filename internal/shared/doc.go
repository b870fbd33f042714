// Package shared holds utilities used across the research codebase that
// do not belong to any one domain or architectural layer.
//
// Currently that is the testutil subpackage, which provides a buffered
// slog handler so tests can assert on structured log output without
// parsing serialized lines.
//
// The package must stay free of business logic and of dependencies on
// other internal packages so anything can import it without cycles.
package shared
