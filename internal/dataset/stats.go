package dataset

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/rowlake/dataset/internal/dserr"
	"github.com/rowlake/dataset/internal/engine"
	"github.com/rowlake/dataset/internal/schema"
	"github.com/rowlake/dataset/internal/value"
)

// statsSampleSize bounds how many leaf occurrences approx_count_distinct and
// avg_text_length scan: a sample of up to 100,000 leaf values.
const statsSampleSize = 100000

// joinEntryByUUID merges entry's own row data into composite (keyed by
// uuid), a no-op for the source entry (it already owns composite's base
// rows).
func joinEntryByUUID(ctx context.Context, rows RowSource, composite map[string]value.Value, uuids []string, entry manifestEntry) error {
	if entry.RootName == "" {
		return nil
	}
	sigRows, err := rows.FetchByUUIDs(ctx, entry.TableName, uuids)
	if err != nil {
		return err
	}
	for _, sr := range sigRows {
		base, ok := composite[sr.UUID]
		if !ok {
			continue
		}
		composite[sr.UUID] = base.WithField(entry.RootName, sr.Data.Field(entry.RootName))
	}
	return nil
}

func (d *Dataset) composeSourceWithEntry(ctx context.Context, v *view, entry manifestEntry, opts engine.QueryOptions) ([]engine.Row, map[string]value.Value, error) {
	srcEntry := v.sourceEntry()
	srcRows, err := d.rows.Query(ctx, srcEntry.TableName, opts)
	if err != nil {
		return nil, nil, err
	}
	uuids := make([]string, len(srcRows))
	composite := make(map[string]value.Value, len(srcRows))
	for i, r := range srcRows {
		uuids[i] = r.UUID
		composite[r.UUID] = r.Data
	}
	if err := joinEntryByUUID(ctx, d.rows, composite, uuids, entry); err != nil {
		return nil, nil, err
	}
	return srcRows, composite, nil
}

// Stats computes stats(leaf_path) over a sample of the dataset.
func (d *Dataset) Stats(ctx context.Context, leafPath schema.PathTuple) (*StatsResult, error) {
	v, err := d.composer.get(ctx, d.rows)
	if err != nil {
		return nil, err
	}
	entry, err := resolveColumn(v, leafPath)
	if err != nil {
		return nil, err
	}
	leaf := v.manifest.DataSchema.LeafAt(leafPath)
	if leaf == nil {
		return nil, dserr.InvalidPath("path %v does not resolve to a leaf", leafPath)
	}

	srcRows, composite, err := d.composeSourceWithEntry(ctx, v, entry, engine.QueryOptions{})
	if err != nil {
		return nil, err
	}

	var flat []value.Value
	for _, r := range srcRows {
		flat = append(flat, value.Flatten([]value.Value{extractPath(composite[r.UUID], leafPath)})...)
	}

	result := &StatsResult{TotalCount: len(flat)}

	sample := flat
	if len(sample) > statsSampleSize {
		sample = sample[:statsSampleSize]
	}

	distinct := map[string]bool{}
	var textLenSum, textLenCount int64
	var minVal, maxVal value.Value
	haveMinMax := false

	for _, item := range sample {
		if item.IsNull() {
			continue
		}
		distinct[fmt.Sprintf("%v", item)] = true
		if leaf.Dtype == schema.DataTypeString {
			textLenSum += int64(len([]rune(item.Str())))
			textLenCount++
		}
		if schema.IsOrdinal(leaf.Dtype) {
			if !haveMinMax {
				minVal, maxVal, haveMinMax = item, item, true
				continue
			}
			if c, _ := compareValues(item, minVal); c < 0 {
				minVal = item
			}
			if c, _ := compareValues(item, maxVal); c > 0 {
				maxVal = item
			}
		}
	}

	result.ApproxCountDistinct = len(distinct)
	if textLenCount > 0 {
		avg := float64(textLenSum) / float64(textLenCount)
		result.AvgTextLength = &avg
	}
	if haveMinMax {
		result.MinVal, result.MaxVal = minVal, maxVal
	}
	return result, nil
}

// SelectGroups buckets a leaf's values: exact-value grouping for non-numeric
// leaves (rejecting cardinality above the configured threshold), bin-bucketed
// grouping for numeric leaves (bins are mandatory for int/float leaves).
func (d *Dataset) SelectGroups(ctx context.Context, leafPath schema.PathTuple, opts SelectGroupsOptions) ([]GroupRow, error) {
	v, err := d.composer.get(ctx, d.rows)
	if err != nil {
		return nil, err
	}
	entry, err := resolveColumn(v, leafPath)
	if err != nil {
		return nil, err
	}
	leaf := v.manifest.DataSchema.LeafAt(leafPath)
	if leaf == nil {
		return nil, dserr.InvalidPath("path %v does not resolve to a leaf", leafPath)
	}

	whereSQL, args, err := engine.CompileFilters(opts.Filters, 0)
	if err != nil {
		return nil, err
	}
	srcRows, composite, err := d.composeSourceWithEntry(ctx, v, entry, engine.QueryOptions{WhereSQL: whereSQL, Args: args})
	if err != nil {
		return nil, err
	}

	numericLeaf := schema.IsOrdinal(leaf.Dtype)
	if numericLeaf && len(opts.Bins) == 0 {
		return nil, dserr.InvalidFilter("bins are required for the numeric leaf %v", leafPath)
	}
	useBins := numericLeaf

	counts := map[string]int{}
	groupValues := map[string]value.Value{}
	for _, r := range srcRows {
		val := extractPath(composite[r.UUID], leafPath)
		if val.IsNull() {
			continue
		}
		var key string
		var groupVal value.Value
		if useBins {
			label := binLabel(opts.Bins, opts.BinLabels, numeric(val))
			key, groupVal = label, value.String(label)
		} else {
			key, groupVal = fmt.Sprintf("%v", val), val
		}
		counts[key]++
		groupValues[key] = groupVal
	}

	if !useBins && len(counts) > d.tooManyDistinctThreshold {
		return nil, dserr.TooManyDistinct("leaf %v has %d distinct values (threshold %d); pass explicit bins", leafPath, len(counts), d.tooManyDistinctThreshold)
	}

	out := make([]GroupRow, 0, len(counts))
	for key, c := range counts {
		out = append(out, GroupRow{Value: groupValues[key], Count: c})
	}
	sortGroups(out, opts.SortOrder)
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

// binLabel resolves v to one of the N+1 half-open buckets N bins derive
// ((-Inf, bins[0].Bound), [bins[0].Bound, bins[1].Bound), ..., [bins[N-1].Bound,
// +Inf)) and names it: labels[i] if provided, else the bucket's own integer
// index.
func binLabel(bins []Bin, labels []string, v float64) string {
	idx := len(bins)
	for i, b := range bins {
		if v < b.Bound {
			idx = i
			break
		}
	}
	if idx < len(labels) {
		return labels[idx]
	}
	return strconv.Itoa(idx)
}

func sortGroups(groups []GroupRow, order SortOrder) {
	sort.SliceStable(groups, func(i, j int) bool {
		if order == SortAscending {
			return groups[i].Count < groups[j].Count
		}
		return groups[i].Count > groups[j].Count
	})
}
