// Package remote is a connector that forwards saves, deletes and lookups
// to an entitycore server over gRPC
package remote

import (
	"context"
	"fmt"
	"sort"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nainya/entitycore/internal/rpc"
	"github.com/nainya/entitycore/pkg/errs"
	"github.com/nainya/entitycore/pkg/model"
	"github.com/nainya/entitycore/pkg/object"
	"github.com/nainya/entitycore/pkg/value"
)

// Connector talks to a Storage service
type Connector struct {
	cc     *grpc.ClientConn
	client rpc.StorageClient
}

// Dial connects to target. Without options the connection is plaintext.
func Dial(target string, opts ...grpc.DialOption) (*Connector, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	cc, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, errs.Connector("dial", err)
	}
	return &Connector{cc: cc, client: rpc.NewStorageClient(cc)}, nil
}

// New uses an existing connection, which the caller keeps ownership of
func New(cc grpc.ClientConnInterface) *Connector {
	return &Connector{client: rpc.NewStorageClient(cc)}
}

// SaveObject sends the object's snapshot. Generated keys in the reply are
// written back while the object is still new.
func (c *Connector) SaveObject(ctx context.Context, obj *object.Object) error {
	req, err := rpc.EncodeSnapshot(obj.Snapshot())
	if err != nil {
		return errs.Connector("save", err)
	}
	resp, err := c.client.Save(ctx, req)
	if err != nil {
		return rpc.FromStatus("save", obj.ModelName(), err)
	}
	if !obj.IsNew() {
		return nil
	}
	row, err := rpc.DecodeRow(obj.Model(), resp)
	if err != nil {
		return errs.Connector("save", err)
	}
	for _, f := range obj.Model().Fields() {
		if !f.AutoIncrement {
			continue
		}
		if v, ok := row[f.Name]; ok && !v.IsNull() {
			if err := obj.SetValue(f.Name, v); err != nil {
				return errs.Connector("save", err)
			}
		}
	}
	return nil
}

// DeleteObject removes the record addressed by the persisted identifier
func (c *Connector) DeleteObject(ctx context.Context, obj *object.Object) error {
	req, err := rpc.EncodeDelete(obj.ModelName(), obj.PersistedIdentifierValues())
	if err != nil {
		return errs.Connector("delete", err)
	}
	if _, err := c.client.Delete(ctx, req); err != nil {
		return rpc.FromStatus("delete", obj.ModelName(), err)
	}
	return nil
}

// FindUnique looks a record up by primary key or unique index. Key sets
// that match no such index are rejected before any request is sent.
func (c *Connector) FindUnique(ctx context.Context, m *model.Model, where map[string]value.Value) (map[string]value.Value, error) {
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if _, ok := m.UniqueIndexFor(keys...); !ok {
		return nil, errs.KeysUnallowed(keys...)
	}

	req, err := rpc.EncodeFind(m.Name(), where)
	if err != nil {
		return nil, errs.Connector("find", err)
	}
	resp, err := c.client.FindUnique(ctx, req)
	if err != nil {
		return nil, rpc.FromStatus("find", m.Name(), err)
	}
	row, err := rpc.DecodeRow(m, resp)
	if err != nil {
		return nil, errs.Connector("find", err)
	}
	return row, nil
}

// Ping calls Health and fails unless the server is serving
func (c *Connector) Ping(ctx context.Context) error {
	resp, err := c.client.Health(ctx, &structpb.Struct{})
	if err != nil {
		return rpc.FromStatus("ping", "", err)
	}
	if st := resp.GetFields()["status"].GetStringValue(); st != "serving" {
		return errs.Connector("ping", fmt.Errorf("server status %q", st))
	}
	return nil
}

// Close releases a connection created by Dial
func (c *Connector) Close() error {
	if c.cc == nil {
		return nil
	}
	return c.cc.Close()
}
