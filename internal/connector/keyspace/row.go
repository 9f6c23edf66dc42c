package keyspace

import (
	"fmt"

	"github.com/nainya/entitycore/internal/keyenc"
	"github.com/nainya/entitycore/pkg/model"
	"github.com/nainya/entitycore/pkg/value"
)

// encodeRow stores a row as name/value pairs in model field order
func encodeRow(m *model.Model, row map[string]value.Value) ([]byte, error) {
	vals := make([]value.Value, 0, len(row)*2)
	for _, f := range m.Fields() {
		v, ok := row[f.Name]
		if !ok || v.IsNull() {
			continue
		}
		vals = append(vals, value.String(f.Name), v)
	}
	return keyenc.EncodeValues(vals)
}

func decodeRow(data []byte) (map[string]value.Value, error) {
	vals, err := keyenc.DecodeValues(data)
	if err != nil {
		return nil, err
	}
	if len(vals)%2 != 0 {
		return nil, fmt.Errorf("row has %d items, want pairs", len(vals))
	}
	row := make(map[string]value.Value, len(vals)/2)
	for i := 0; i < len(vals); i += 2 {
		name, ok := vals[i].AsString()
		if !ok {
			return nil, fmt.Errorf("row field name is %s", vals[i].Kind())
		}
		row[name] = vals[i+1]
	}
	return row, nil
}

func indexNamespace(m *model.Model, idx model.Index) string {
	return m.Table() + "#" + idx.Name
}

// project picks keys from row in order; ok is false when any is null
func project(row map[string]value.Value, keys []string) ([]value.Value, bool) {
	out := make([]value.Value, len(keys))
	for i, k := range keys {
		v := row[k]
		if v.IsNull() {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}
