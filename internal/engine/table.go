package engine

import (
	"context"
	"fmt"
)

// EnsureTable creates the column-group table `name` if it does not already
// exist: one jsonb document per row, keyed by uuid.
func (e *Engine) EnsureTable(ctx context.Context, name string) error {
	ident, err := quoteIdent(name)
	if err != nil {
		return err
	}
	_, err = e.pool.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (uuid text PRIMARY KEY, data jsonb NOT NULL)`, ident))
	return err
}

// DropTable removes a column-group table if it exists. compute_signal does
// not call it: a table written before compute_signal fails stays in place,
// with no signal manifest referencing it.
func (e *Engine) DropTable(ctx context.Context, name string) error {
	ident, err := quoteIdent(name)
	if err != nil {
		return err
	}
	_, err = e.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, ident))
	return err
}
