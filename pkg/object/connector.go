package object

import (
	"context"
	"errors"

	"github.com/nainya/entitycore/pkg/model"
	"github.com/nainya/entitycore/pkg/value"
)

// ErrNoConnector is wrapped in a connector failure when an object was
// created without a connector
var ErrNoConnector = errors.New("object has no connector")

// ErrUniqueViolation is wrapped in a connector failure when a save would
// duplicate the primary key or a unique index
var ErrUniqueViolation = errors.New("unique constraint violated")

// Connector persists and deletes objects. Implementations read the object
// (SaveValues, ModifiedFields, PersistedIdentifierValues, IsNew) and may
// assign generated primary keys with SetValue while the object is new, but
// never touch lifecycle flags. Failures are returned as *errs.Error of kind
// KindConnector.
type Connector interface {
	SaveObject(ctx context.Context, obj *Object) error
	DeleteObject(ctx context.Context, obj *Object) error
}

// Finder looks up one stored record by the values of a unique index. It
// returns errs.NotFound when no record matches.
type Finder interface {
	FindUnique(ctx context.Context, m *model.Model, where map[string]value.Value) (map[string]value.Value, error)
}
