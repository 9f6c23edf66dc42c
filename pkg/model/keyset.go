package model

// KeySet is an ordered, immutable set of field names
type KeySet struct {
	keys []string
	set  map[string]struct{}
}

func newKeySet(keys []string) KeySet {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return KeySet{keys: keys, set: set}
}

// Contains reports membership
func (s KeySet) Contains(key string) bool {
	_, ok := s.set[key]
	return ok
}

// Keys returns the names in declaration order
func (s KeySet) Keys() []string {
	cp := make([]string, len(s.keys))
	copy(cp, s.keys)
	return cp
}

func (s KeySet) Len() int { return len(s.keys) }

// Missing returns the given keys that are not members, in input order
func (s KeySet) Missing(keys []string) []string {
	var out []string
	for _, k := range keys {
		if !s.Contains(k) {
			out = append(out, k)
		}
	}
	return out
}
