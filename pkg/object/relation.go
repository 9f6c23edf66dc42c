package object

import (
	"fmt"

	"github.com/nainya/entitycore/pkg/errs"
)

// ManipulationKind tags a relation intent
type ManipulationKind uint8

const (
	Connect ManipulationKind = iota
	Disconnect
	Set
	Keep
)

func (k ManipulationKind) String() string {
	switch k {
	case Connect:
		return "connect"
	case Disconnect:
		return "disconnect"
	case Set:
		return "set"
	case Keep:
		return "keep"
	}
	return "unknown"
}

// RelationManipulation is a pending change to a relation. It is an intent
// only; connectors or callers apply it when the owner is saved.
type RelationManipulation struct {
	Kind   ManipulationKind
	Object *Object
}

func ConnectTo(obj *Object) RelationManipulation { return RelationManipulation{Kind: Connect, Object: obj} }

func DisconnectFrom(obj *Object) RelationManipulation {
	return RelationManipulation{Kind: Disconnect, Object: obj}
}

func SetTo(obj *Object) RelationManipulation { return RelationManipulation{Kind: Set, Object: obj} }

func KeepOnly(obj *Object) RelationManipulation { return RelationManipulation{Kind: Keep, Object: obj} }

// Manipulate records intents for relation. Targets must be objects of the
// relation's model; single relations accept at most one Connect or Set.
func (o *Object) Manipulate(relation string, ms ...RelationManipulation) error {
	rel, ok := o.model.Relation(relation)
	if !ok {
		return errs.KeysUnallowed(relation)
	}
	for _, m := range ms {
		if m.Object == nil {
			return errs.InvalidInput(relation, "related object is missing")
		}
		if !m.Object.IsInstanceOf(rel.Model) {
			return errs.InvalidInput(relation, fmt.Sprintf("expected %s, got %s", rel.Model, m.Object.ModelName()))
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	pending := append(append([]RelationManipulation(nil), o.manipulations[relation]...), ms...)
	if !rel.Many {
		attached := 0
		for _, m := range pending {
			if m.Kind == Connect || m.Kind == Set {
				attached++
			}
		}
		if attached > 1 {
			return errs.InvalidInput(relation, "relation holds a single object")
		}
	}
	o.manipulations[relation] = pending
	return nil
}

// Manipulations returns the pending intents for relation in record order
func (o *Object) Manipulations(relation string) []RelationManipulation {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]RelationManipulation(nil), o.manipulations[relation]...)
}

// PendingRelations lists relations with pending intents in model order
func (o *Object) PendingRelations() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var out []string
	for _, rel := range o.model.Relations() {
		if len(o.manipulations[rel.Name]) > 0 {
			out = append(out, rel.Name)
		}
	}
	return out
}
