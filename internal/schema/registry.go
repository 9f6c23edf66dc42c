package schema

import (
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/nainya/entitycore/pkg/pipeline"
	"github.com/nainya/entitycore/pkg/pipeline/modifiers"
	"github.com/nainya/entitycore/pkg/value"
)

// Factory builds a modifier from its YAML arguments. args is nil when the
// modifier was written as a bare name.
type Factory func(r *Registry, args *yaml.Node) (pipeline.Modifier, error)

// Registry maps modifier names used in schema files to factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry holding every built-in modifier
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	for name, f := range builtins {
		r.factories[name] = f
	}
	return r
}

// Register adds or replaces a modifier, e.g. a Transform or Validate
// wrapping application code
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// RegisterModifier registers a modifier that takes no arguments
func (r *Registry) RegisterModifier(m pipeline.Modifier) {
	r.Register(m.Name(), func(*Registry, *yaml.Node) (pipeline.Modifier, error) { return m, nil })
}

// Names lists registered modifiers
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Modifier builds one modifier
func (r *Registry) Modifier(spec ModifierSpec) (pipeline.Modifier, error) {
	r.mu.RLock()
	f, ok := r.factories[spec.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown modifier %q", spec.Name)
	}
	m, err := f(r, spec.Args)
	if err != nil {
		return nil, fmt.Errorf("modifier %q: %w", spec.Name, err)
	}
	return m, nil
}

// Pipeline builds modifiers in order
func (r *Registry) Pipeline(specs []ModifierSpec) (pipeline.Pipeline, error) {
	mods := make([]pipeline.Modifier, 0, len(specs))
	for _, s := range specs {
		m, err := r.Modifier(s)
		if err != nil {
			return pipeline.Pipeline{}, err
		}
		mods = append(mods, m)
	}
	return pipeline.New(mods...), nil
}

// ModifierSpec is one pipeline entry: either a bare name (`trim`) or a
// single-key mapping from name to arguments (`regex: "^[a-z]+$"`)
type ModifierSpec struct {
	Name string
	Args *yaml.Node
}

func (s *ModifierSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		s.Name = node.Value
		return nil
	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return fmt.Errorf("line %d: modifier must have exactly one key", node.Line)
		}
		s.Name = node.Content[0].Value
		s.Args = node.Content[1]
		return nil
	}
	return fmt.Errorf("line %d: modifier must be a name or a mapping", node.Line)
}

func noArgs(m pipeline.Modifier) Factory {
	return func(_ *Registry, args *yaml.Node) (pipeline.Modifier, error) {
		if args != nil && !isNull(args) {
			return nil, fmt.Errorf("takes no arguments")
		}
		return m, nil
	}
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.Tag == "!!null"
}

func required(args *yaml.Node) error {
	if args == nil || isNull(args) {
		return fmt.Errorf("arguments required")
	}
	return nil
}

func decodeString(args *yaml.Node) (string, error) {
	if err := required(args); err != nil {
		return "", err
	}
	var s string
	err := args.Decode(&s)
	return s, err
}

func decodeValue(args *yaml.Node) (value.Value, error) {
	if args == nil {
		return value.Null(), nil
	}
	var raw any
	if err := args.Decode(&raw); err != nil {
		return value.Null(), err
	}
	return value.FromInterface(raw)
}

func (r *Registry) nested(args *yaml.Node) (pipeline.Pipeline, error) {
	if err := required(args); err != nil {
		return pipeline.Pipeline{}, err
	}
	var specs []ModifierSpec
	if err := args.Decode(&specs); err != nil {
		return pipeline.Pipeline{}, err
	}
	return r.Pipeline(specs)
}

func (r *Registry) nestedList(args *yaml.Node) ([]pipeline.Pipeline, error) {
	if err := required(args); err != nil {
		return nil, err
	}
	var lists [][]ModifierSpec
	if err := args.Decode(&lists); err != nil {
		return nil, err
	}
	out := make([]pipeline.Pipeline, len(lists))
	for i, specs := range lists {
		p, err := r.Pipeline(specs)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func wrap(build func(pipeline.Pipeline) pipeline.Modifier) Factory {
	return func(r *Registry, args *yaml.Node) (pipeline.Modifier, error) {
		p, err := r.nested(args)
		if err != nil {
			return nil, err
		}
		return build(p), nil
	}
}

var builtins = map[string]Factory{
	"trim":       noArgs(modifiers.Trim()),
	"lowercase":  noArgs(modifiers.Lowercase()),
	"uppercase":  noArgs(modifiers.Uppercase()),
	"capitalize": noArgs(modifiers.Capitalize()),
	"email":      noArgs(modifiers.Email()),
	"present":    noArgs(modifiers.Present()),
	"now":        noArgs(modifiers.Now()),
	"uuid":       noArgs(modifiers.UUID()),

	"regex": func(_ *Registry, args *yaml.Node) (pipeline.Modifier, error) {
		pattern, err := decodeString(args)
		if err != nil {
			return nil, err
		}
		return modifiers.Regex(pattern)
	},
	"script": func(_ *Registry, args *yaml.Node) (pipeline.Modifier, error) {
		src, err := decodeString(args)
		if err != nil {
			return nil, err
		}
		return modifiers.Script(src)
	},
	"get": func(_ *Registry, args *yaml.Node) (pipeline.Modifier, error) {
		field, err := decodeString(args)
		if err != nil {
			return nil, err
		}
		return modifiers.Get(field), nil
	},
	"fail": func(_ *Registry, args *yaml.Node) (pipeline.Modifier, error) {
		reason, err := decodeString(args)
		if err != nil {
			return nil, err
		}
		return modifiers.Fail(reason), nil
	},
	"length": func(_ *Registry, args *yaml.Node) (pipeline.Modifier, error) {
		if err := required(args); err != nil {
			return nil, err
		}
		bounds := struct {
			Min int  `yaml:"min"`
			Max *int `yaml:"max"`
		}{}
		if err := args.Decode(&bounds); err != nil {
			return nil, err
		}
		upper := -1
		if bounds.Max != nil {
			upper = *bounds.Max
		}
		return modifiers.Length(bounds.Min, upper), nil
	},
	"range": func(_ *Registry, args *yaml.Node) (pipeline.Modifier, error) {
		if err := required(args); err != nil {
			return nil, err
		}
		var bounds struct {
			Min float64 `yaml:"min"`
			Max float64 `yaml:"max"`
		}
		if err := args.Decode(&bounds); err != nil {
			return nil, err
		}
		if bounds.Min > bounds.Max {
			return nil, fmt.Errorf("min %g exceeds max %g", bounds.Min, bounds.Max)
		}
		return modifiers.Range(bounds.Min, bounds.Max), nil
	},
	"one_of": func(_ *Registry, args *yaml.Node) (pipeline.Modifier, error) {
		v, err := decodeValue(args)
		if err != nil {
			return nil, err
		}
		items, ok := v.AsArray()
		if !ok || len(items) == 0 {
			return nil, fmt.Errorf("expects a non-empty list")
		}
		return modifiers.OneOf(items...), nil
	},
	"constant": func(_ *Registry, args *yaml.Node) (pipeline.Modifier, error) {
		v, err := decodeValue(args)
		if err != nil {
			return nil, err
		}
		return modifiers.Constant(v), nil
	},
	"coalesce": func(_ *Registry, args *yaml.Node) (pipeline.Modifier, error) {
		v, err := decodeValue(args)
		if err != nil {
			return nil, err
		}
		return modifiers.Coalesce(v), nil
	},

	"if":   wrap(func(p pipeline.Pipeline) pipeline.Modifier { return modifiers.If(p) }),
	"then": wrap(func(p pipeline.Pipeline) pipeline.Modifier { return modifiers.Then(p) }),
	"else": wrap(func(p pipeline.Pipeline) pipeline.Modifier { return modifiers.Else(p) }),
	"do":   wrap(func(p pipeline.Pipeline) pipeline.Modifier { return modifiers.Do(p) }),
	"not": func(r *Registry, args *yaml.Node) (pipeline.Modifier, error) {
		if err := required(args); err != nil {
			return nil, err
		}
		var spec struct {
			Pipeline []ModifierSpec `yaml:"pipeline"`
			Reason   string         `yaml:"reason"`
		}
		if err := args.Decode(&spec); err != nil {
			return nil, err
		}
		p, err := r.Pipeline(spec.Pipeline)
		if err != nil {
			return nil, err
		}
		return modifiers.Not(p, spec.Reason), nil
	},
	"and": func(r *Registry, args *yaml.Node) (pipeline.Modifier, error) {
		ps, err := r.nestedList(args)
		if err != nil {
			return nil, err
		}
		return modifiers.And(ps...), nil
	},
	"or": func(r *Registry, args *yaml.Node) (pipeline.Modifier, error) {
		ps, err := r.nestedList(args)
		if err != nil {
			return nil, err
		}
		return modifiers.Or(ps...), nil
	},
}
