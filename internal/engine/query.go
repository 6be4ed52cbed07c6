package engine

import (
	"context"
	"fmt"

	"github.com/rowlake/dataset/internal/dserr"
	"github.com/rowlake/dataset/internal/value"
)

// Row is a single fetched column-group row.
type Row struct {
	UUID string
	Data value.Value
}

// QueryOptions are the already-planned, pre-UDF pieces of a select_rows
// call: a WHERE fragment and its args, an ORDER BY fragment, and an
// optional LIMIT/OFFSET (limit <= 0 means unbounded).
type QueryOptions struct {
	WhereSQL   string
	Args       []any
	OrderBySQL string
	Limit      int
	Offset     int
}

// FetchAll returns every row of table, in primary-key order.
func (e *Engine) FetchAll(ctx context.Context, table string) ([]Row, error) {
	return e.Query(ctx, table, QueryOptions{OrderBySQL: "uuid"})
}

// FetchByUUIDs returns the rows of table whose uuid is in uuids, used to
// join a signal column group onto the rows a source query already selected.
func (e *Engine) FetchByUUIDs(ctx context.Context, table string, uuids []string) ([]Row, error) {
	if len(uuids) == 0 {
		return nil, nil
	}
	return e.Query(ctx, table, QueryOptions{WhereSQL: "uuid = ANY($1)", Args: []any{uuids}})
}

// Query runs a planned select against table.
func (e *Engine) Query(ctx context.Context, table string, opts QueryOptions) ([]Row, error) {
	ident, err := quoteIdent(table)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf("SELECT uuid, data FROM %s", ident)
	if opts.WhereSQL != "" {
		sql += " WHERE " + opts.WhereSQL
	}
	if opts.OrderBySQL != "" {
		sql += " ORDER BY " + opts.OrderBySQL
	}
	if opts.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}
	if opts.Offset > 0 {
		sql += fmt.Sprintf(" OFFSET %d", opts.Offset)
	}

	rows, err := e.pool.Query(ctx, sql, opts.Args...)
	if err != nil {
		return nil, dserr.Wrapf(dserr.KindIOError, err, "query %s", table)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var uuid string
		var raw []byte
		if err := rows.Scan(&uuid, &raw); err != nil {
			return nil, dserr.Wrapf(dserr.KindIOError, err, "scan row from %s", table)
		}
		var v value.Value
		if err := v.UnmarshalJSON(raw); err != nil {
			return nil, dserr.Wrapf(dserr.KindIOError, err, "decode row %s from %s", uuid, table)
		}
		out = append(out, Row{UUID: uuid, Data: v})
	}
	if err := rows.Err(); err != nil {
		return nil, dserr.Wrapf(dserr.KindIOError, err, "iterate rows from %s", table)
	}
	return out, nil
}
