package sqlstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nainya/entitycore/pkg/model"
	"github.com/nainya/entitycore/pkg/value"
)

// toArg converts a field value into a driver argument
func toArg(d Dialect, f *model.Field, v value.Value) (any, error) {
	switch v.Kind() {
	case value.KindNull:
		return nil, nil
	case value.KindTime:
		t, _ := v.AsTime()
		return d.TimeArg(t, f.Type.Kind() == value.TypeDate), nil
	case value.KindArray, value.KindObject:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		return string(data), nil
	}
	if f.Type.Kind() == value.TypeJSON {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		return string(data), nil
	}
	return v.Interface(), nil
}

// fromColumn converts a scanned column back into a typed value
func fromColumn(f *model.Field, raw any) (value.Value, error) {
	if raw == nil {
		return value.Null(), nil
	}
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}

	switch f.Type.Kind() {
	case value.TypeBool:
		if i, ok := raw.(int64); ok {
			return value.Bool(i != 0), nil
		}
	case value.TypeFloat:
		if i, ok := raw.(int64); ok {
			return value.Float(float64(i)), nil
		}
	case value.TypeDate, value.TypeDateTime:
		if t, ok := raw.(time.Time); ok {
			return f.Decode(t)
		}
	case value.TypeJSON, value.TypeArray:
		if s, ok := raw.(string); ok {
			dec := json.NewDecoder(bytes.NewReader([]byte(s)))
			dec.UseNumber()
			var data any
			if err := dec.Decode(&data); err != nil {
				return value.Null(), fmt.Errorf("%s: %w", f.Name, err)
			}
			raw = data
		}
	}

	v, err := f.Decode(raw)
	if err != nil {
		return value.Null(), fmt.Errorf("column %s: %w", f.Column, err)
	}
	return v, nil
}
