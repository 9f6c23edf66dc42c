package model

// Relation is a named association to another model. Fields on this model
// pair positionally with References on the target (or on Through when the
// relation is routed via a join model).
type Relation struct {
	Name       string
	Model      string
	Through    string
	Many       bool
	Fields     []string
	References []string
}

// HasJoinTable reports whether the relation is routed through a join model
func (r *Relation) HasJoinTable() bool { return r.Through != "" }
