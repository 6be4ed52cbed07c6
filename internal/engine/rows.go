package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rowlake/dataset/internal/dserr"
	"github.com/rowlake/dataset/internal/value"
)

// upsertBatchSize bounds how many upserts are pipelined in a single
// pgx.Batch round-trip, mirroring the teacher's embeddingsBatchSize.
const upsertBatchSize = 500

// UpsertRows bulk-inserts or replaces (uuid, data) rows into table using
// pipelined pgx.Batch round-trips.
func (e *Engine) UpsertRows(ctx context.Context, table string, uuids []string, rows []value.Value) error {
	if len(uuids) != len(rows) {
		return dserr.UDFShapeMismatch("uuids and rows length mismatch: %d vs %d", len(uuids), len(rows))
	}
	if len(uuids) == 0 {
		return nil
	}
	ident, err := quoteIdent(table)
	if err != nil {
		return err
	}
	upsertSQL := fmt.Sprintf(
		`INSERT INTO %s (uuid, data) VALUES ($1, $2)
		 ON CONFLICT (uuid) DO UPDATE SET data = $2`, ident)

	for start := 0; start < len(uuids); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(uuids))

		batch := &pgx.Batch{}
		for i := start; i < end; i++ {
			data, err := json.Marshal(rows[i])
			if err != nil {
				return dserr.Wrapf(dserr.KindIOError, err, "marshal row %s", uuids[i])
			}
			batch.Queue(upsertSQL, uuids[i], data)
		}

		results := e.pool.SendBatch(ctx, batch)
		for i := start; i < end; i++ {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return dserr.Wrapf(dserr.KindIOError, err, "upsert row %d (%s)", i, uuids[i])
			}
		}
		if err := results.Close(); err != nil {
			return dserr.Wrapf(dserr.KindIOError, err, "close upsert batch")
		}
	}
	return nil
}
