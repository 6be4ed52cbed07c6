package signal

import (
	"context"

	"github.com/rowlake/dataset/internal/dserr"
	"github.com/rowlake/dataset/internal/schema"
	"github.com/rowlake/dataset/internal/value"
)

// LengthSignal emits the rune length of each input string, the simplest
// possible RichData signal (used for Scenario B's end-to-end compute test).
type LengthSignal struct{}

// NewLengthSignal builds a LengthSignal; it takes no params.
func NewLengthSignal(map[string]any) (Signal, error) { return &LengthSignal{}, nil }

func (s *LengthSignal) Key() string { return "length" }
func (s *LengthSignal) Name() string { return "length" }
func (s *LengthSignal) InputType() InputType { return InputRichData }

func (s *LengthSignal) Fields() *schema.Field {
	return schema.NewLeaf(schema.DataTypeInt64)
}

func (s *LengthSignal) Compute(_ context.Context, flat []value.Value) ([]value.Value, error) {
	out := make([]value.Value, len(flat))
	for i, v := range flat {
		if v.IsNull() {
			out[i] = value.Null()
			continue
		}
		if v.Kind() != value.KindString {
			return nil, dserr.IncompatibleDtype("length signal requires string input, got kind %v", v.Kind())
		}
		out[i] = value.Int(int64(len([]rune(v.Str()))))
	}
	return out, nil
}
