package dataset

import (
	"context"
	"encoding/json"

	"github.com/rowlake/dataset/internal/dserr"
	"github.com/rowlake/dataset/internal/manifest"
	"github.com/rowlake/dataset/internal/schema"
	"github.com/rowlake/dataset/internal/signal"
	"github.com/rowlake/dataset/internal/value"
)

// ComputeSignal selects the materialized values at column, runs sig over
// them, and persists the result as a new signal column group. Writing the
// SignalManifest is the sole commit point: any failure before it leaves no
// partial state for the view composer to discover.
func (d *Dataset) ComputeSignal(ctx context.Context, sig signal.Signal, column schema.PathTuple, taskID string) error {
	v, err := d.composer.get(ctx, d.rows)
	if err != nil {
		return err
	}
	entry, err := resolveColumn(v, schema.MakeValuePath(column))
	if err != nil {
		return err
	}

	srcRows, err := d.rows.FetchAll(ctx, entry.TableName)
	if err != nil {
		return err
	}
	uuids := make([]string, len(srcRows))
	inputs := make([]value.Value, len(srcRows))
	for i, r := range srcRows {
		uuids[i] = r.UUID
		inputs[i] = extractPath(r.Data, column)
	}

	parquetID := sanitizeIdent(sig.Key())
	descJSON, err := json.Marshal(signal.Descriptor{Name: sig.Name()})
	if err != nil {
		return err
	}

	sm := &manifest.SignalManifest{
		ParquetID:    parquetID,
		Signal:       descJSON,
		EnrichedPath: column,
		DataSchema: schema.NewSchema([]string{schema.UUIDColumn, parquetID}, map[string]*schema.Field{
			schema.UUIDColumn: schema.NewLeaf(schema.DataTypeString),
			parquetID:         sig.Fields(),
		}),
	}

	if sig.InputType() == signal.InputTextEmbedding {
		vsig, ok := sig.(signal.VectorSignal)
		if !ok {
			return dserr.UnsupportedOp("signal %q declares InputTextEmbedding but does not implement VectorSignal", sig.Key())
		}
		if err := d.computeEmbeddingSignal(ctx, vsig, column, uuids, inputs); err != nil {
			return err
		}
		sm.EmbeddingFilename = manifest.SignalFilenamePrefix(column, sig.Key()) + ".embeddings"
	} else {
		table := sanitizeIdent(manifest.SignalFilenamePrefix(column, sig.Key()))
		out, err := runRichDataUDF(ctx, sig, inputs)
		if err != nil {
			return err
		}
		if err := d.rows.EnsureTable(ctx, table); err != nil {
			return err
		}
		rows := make([]value.Value, len(out))
		for i, ov := range out {
			rows[i] = value.Struct([]string{parquetID}, map[string]value.Value{parquetID: ov})
		}
		if err := d.rows.UpsertRows(ctx, table, uuids, rows); err != nil {
			return err
		}
		sm.Files = []string{table}
	}

	_, err = manifest.WriteSignalManifest(d.datasetDir, column, sig.Key(), sm)
	return err
}

func (d *Dataset) computeEmbeddingSignal(ctx context.Context, vsig signal.VectorSignal, column schema.PathTuple, uuids []string, inputs []value.Value) error {
	flatTexts := value.Flatten(inputs)
	texts := make([]string, len(flatTexts))
	for i, t := range flatTexts {
		texts[i] = t.Str()
	}
	vectors, err := vsig.ComputeEmbeddings(ctx, texts)
	if err != nil {
		return err
	}
	keys := value.FlattenKeys(uuids, inputs)
	store := d.vectorStoreFor(column)
	return store.Add(ctx, keys, vectors)
}
