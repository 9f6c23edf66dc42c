package rpc

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nainya/entitycore/pkg/errs"
	"github.com/nainya/entitycore/pkg/model"
	"github.com/nainya/entitycore/pkg/object"
	"github.com/nainya/entitycore/pkg/value"
)

// Message keys
const (
	keyModel      = "model"
	keyNew        = "new"
	keyValues     = "values"
	keyPrevious   = "previous"
	keyModified   = "modified"
	keyIdentifier = "identifier"
	keyWhere      = "where"
	keyRow        = "row"
)

// ErrMalformed marks a request the server cannot interpret
var ErrMalformed = errors.New("malformed message")

// EncodeValues renders values as a Struct. Times travel as RFC 3339
// strings; the receiver restores them from the field type.
func EncodeValues(vals map[string]value.Value) (*structpb.Struct, error) {
	plain := make(map[string]any, len(vals))
	for k, v := range vals {
		plain[k] = v.Interface()
	}
	return structpb.NewStruct(plain)
}

// DecodeValues types each entry with the matching field of m
func DecodeValues(m *model.Model, st *structpb.Struct) (map[string]value.Value, error) {
	out := make(map[string]value.Value, len(st.GetFields()))
	for k, raw := range st.GetFields() {
		f, ok := m.Field(k)
		if !ok {
			return nil, errs.KeysUnallowed(k)
		}
		v, err := f.Decode(raw.AsInterface())
		if err != nil {
			return nil, errs.InvalidInput(k, err.Error())
		}
		out[k] = v
	}
	return out, nil
}

// ModelName reads the model a request addresses
func ModelName(st *structpb.Struct) (string, error) {
	name := st.GetFields()[keyModel].GetStringValue()
	if name == "" {
		return "", fmt.Errorf("%w: missing model", ErrMalformed)
	}
	return name, nil
}

func structField(st *structpb.Struct, key string) *structpb.Struct {
	if s := st.GetFields()[key].GetStructValue(); s != nil {
		return s
	}
	return &structpb.Struct{}
}

// EncodeSnapshot builds a Save request
func EncodeSnapshot(s object.Snapshot) (*structpb.Struct, error) {
	values, err := EncodeValues(s.Values)
	if err != nil {
		return nil, err
	}
	previous, err := EncodeValues(s.Previous)
	if err != nil {
		return nil, err
	}
	modified := make([]*structpb.Value, len(s.Modified))
	for i, k := range s.Modified {
		modified[i] = structpb.NewStringValue(k)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		keyModel:    structpb.NewStringValue(s.Model),
		keyNew:      structpb.NewBoolValue(s.New),
		keyValues:   structpb.NewStructValue(values),
		keyPrevious: structpb.NewStructValue(previous),
		keyModified: structpb.NewListValue(&structpb.ListValue{Values: modified}),
	}}, nil
}

// DecodeSnapshot reads a Save request addressed to m
func DecodeSnapshot(m *model.Model, st *structpb.Struct) (object.Snapshot, error) {
	values, err := DecodeValues(m, structField(st, keyValues))
	if err != nil {
		return object.Snapshot{}, err
	}
	previous, err := DecodeValues(m, structField(st, keyPrevious))
	if err != nil {
		return object.Snapshot{}, err
	}
	var modified []string
	for _, v := range st.GetFields()[keyModified].GetListValue().GetValues() {
		modified = append(modified, v.GetStringValue())
	}
	return object.Snapshot{
		Model:    m.Name(),
		Values:   values,
		Previous: previous,
		Modified: modified,
		New:      st.GetFields()[keyNew].GetBoolValue(),
	}, nil
}

// encodeKeyed builds a message carrying one map of values under key
func encodeKeyed(modelName, key string, vals map[string]value.Value) (*structpb.Struct, error) {
	inner, err := EncodeValues(vals)
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		keyModel: structpb.NewStringValue(modelName),
		key:      structpb.NewStructValue(inner),
	}}, nil
}

// EncodeDelete builds a Delete request for the persisted identifier
func EncodeDelete(modelName string, identifier map[string]value.Value) (*structpb.Struct, error) {
	return encodeKeyed(modelName, keyIdentifier, identifier)
}

// DecodeDelete reads a Delete request
func DecodeDelete(m *model.Model, st *structpb.Struct) (map[string]value.Value, error) {
	return DecodeValues(m, structField(st, keyIdentifier))
}

// EncodeFind builds a FindUnique request
func EncodeFind(modelName string, where map[string]value.Value) (*structpb.Struct, error) {
	return encodeKeyed(modelName, keyWhere, where)
}

// DecodeFind reads a FindUnique request
func DecodeFind(m *model.Model, st *structpb.Struct) (map[string]value.Value, error) {
	return DecodeValues(m, structField(st, keyWhere))
}

// EncodeRow wraps a stored row, used by Save and FindUnique responses
func EncodeRow(row map[string]value.Value) (*structpb.Struct, error) {
	return encodeKeyed("", keyRow, row)
}

// DecodeRow unwraps a stored row
func DecodeRow(m *model.Model, st *structpb.Struct) (map[string]value.Value, error) {
	return DecodeValues(m, structField(st, keyRow))
}
