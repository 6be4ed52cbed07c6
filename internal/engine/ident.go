package engine

import (
	"regexp"

	"github.com/rowlake/dataset/internal/dserr"
)

var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// quoteIdent validates name is a safe SQL identifier (table or column name
// derived from a manifest's parquet_id, never raw user input) and returns it
// double-quoted. Table/column names are never parameterizable in pgx, so
// this is the only defense against a malformed parquet_id reaching raw SQL.
func quoteIdent(name string) (string, error) {
	if !identPattern.MatchString(name) {
		return "", dserr.InvalidFilter("invalid identifier %q", name)
	}
	return `"` + name + `"`, nil
}
