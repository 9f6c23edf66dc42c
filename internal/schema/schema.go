// Package schema compiles YAML schema files into models. Pipelines are
// written as lists of modifiers resolved through a Registry.
package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/nainya/entitycore/pkg/model"
	"github.com/nainya/entitycore/pkg/value"
)

var ErrInvalidType = errors.New("invalid field type")

// File is the top level of a schema document
type File struct {
	Models []ModelSpec `yaml:"models"`
}

type ModelSpec struct {
	Name          string         `yaml:"name"`
	Table         string         `yaml:"table"`
	URLSegment    string         `yaml:"url_segment"`
	LocalizedName string         `yaml:"localized_name"`
	Description   string         `yaml:"description"`
	Identity      bool           `yaml:"identity"`
	Primary       []string       `yaml:"primary"`
	Indices       []IndexSpec    `yaml:"indices"`
	Fields        []FieldSpec    `yaml:"fields"`
	Relations     []RelationSpec `yaml:"relations"`
	BeforeDelete  []ModifierSpec `yaml:"before_delete"`
}

// IndexSpec declares a model-level index over keys
type IndexSpec struct {
	Keys   []string `yaml:"keys"`
	Name   string   `yaml:"name"`
	Sort   string   `yaml:"sort"`
	Length int      `yaml:"length"`
	Unique bool     `yaml:"unique"`
}

// FieldIndexSpec is written either as `true` or as a settings mapping
type FieldIndexSpec struct {
	Enabled bool   `yaml:"-"`
	Name    string `yaml:"name"`
	Sort    string `yaml:"sort"`
	Length  int    `yaml:"length"`
}

func (s *FieldIndexSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&s.Enabled)
	}
	type plain FieldIndexSpec
	if err := node.Decode((*plain)(s)); err != nil {
		return err
	}
	s.Enabled = true
	return nil
}

type FieldSpec struct {
	Name          string          `yaml:"name"`
	Type          string          `yaml:"type"`
	Column        string          `yaml:"column"`
	Description   string          `yaml:"description"`
	Optional      bool            `yaml:"optional"`
	Primary       bool            `yaml:"primary"`
	AutoIncrement bool            `yaml:"auto_increment"`
	Unique        *FieldIndexSpec `yaml:"unique"`
	Index         *FieldIndexSpec `yaml:"index"`
	Write         string          `yaml:"write"`
	Read          string          `yaml:"read"`
	Store         string          `yaml:"store"`
	Queryable     *bool           `yaml:"queryable"`
	AuthIdentity  bool            `yaml:"auth_identity"`
	AuthBy        bool            `yaml:"auth_by"`
	Default       *yaml.Node      `yaml:"default"`
	DefaultFrom   []ModifierSpec  `yaml:"default_pipeline"`
	OnSet         []ModifierSpec  `yaml:"on_set"`
	OnSave        []ModifierSpec  `yaml:"on_save"`
}

type RelationSpec struct {
	Name       string   `yaml:"name"`
	Model      string   `yaml:"model"`
	Through    string   `yaml:"through"`
	Many       bool     `yaml:"many"`
	Fields     []string `yaml:"fields"`
	References []string `yaml:"references"`
}

// LoadFile reads and compiles the schema at path
func LoadFile(path string, r *Registry) ([]*model.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return Parse(bytes.NewReader(data), r)
}

// Parse compiles a schema document. Every model is built even after a
// failure so all problems are reported at once. A nil r uses the built-in
// modifiers.
func Parse(in io.Reader, r *Registry) ([]*model.Model, error) {
	if r == nil {
		r = NewRegistry()
	}
	dec := yaml.NewDecoder(in)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("schema: empty document")
		}
		return nil, fmt.Errorf("schema: %w", err)
	}
	if len(f.Models) == 0 {
		return nil, fmt.Errorf("schema: no models declared")
	}

	var (
		out  []*model.Model
		errs error
	)
	for _, spec := range f.Models {
		m, err := compile(spec, r)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		out = append(out, m)
	}
	if errs != nil {
		return nil, errs
	}
	return out, nil
}

func compile(spec ModelSpec, r *Registry) (*model.Model, error) {
	b := model.NewBuilder(spec.Name)
	var errs error
	fail := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf("model %q: "+format, append([]any{spec.Name}, args...)...))
	}

	if spec.Table != "" {
		b.Table(spec.Table)
	}
	if spec.URLSegment != "" {
		b.URLSegment(spec.URLSegment)
	}
	if spec.LocalizedName != "" {
		b.LocalizedName(spec.LocalizedName)
	}
	if spec.Description != "" {
		b.Description(spec.Description)
	}
	if spec.Identity {
		b.Identity()
	}
	if len(spec.Primary) > 0 {
		b.Primary(spec.Primary...)
	}
	for _, idx := range spec.Indices {
		sort, err := parseSort(idx.Sort)
		if err != nil {
			fail("index %v: %w", idx.Keys, err)
			continue
		}
		settings := model.IndexSettings{Name: idx.Name, Sort: sort, Length: idx.Length}
		if idx.Unique {
			b.UniqueSettings(settings, idx.Keys...)
		} else {
			b.IndexSettings(settings, idx.Keys...)
		}
	}
	if len(spec.BeforeDelete) > 0 {
		p, err := r.Pipeline(spec.BeforeDelete)
		if err != nil {
			fail("before_delete: %w", err)
		} else {
			b.BeforeDelete(p)
		}
	}

	for _, fs := range spec.Fields {
		if err := compileField(b, fs, r); err != nil {
			fail("field %q: %w", fs.Name, err)
		}
	}
	for _, rs := range spec.Relations {
		rb := b.Relation(rs.Name).Model(rs.Model).Through(rs.Through).Fields(rs.Fields...).References(rs.References...)
		if rs.Many {
			rb.Many()
		}
	}

	if errs != nil {
		return nil, errs
	}
	return b.Build()
}

func compileField(b *model.Builder, fs FieldSpec, r *Registry) error {
	t, err := ParseType(fs.Type)
	if err != nil {
		return err
	}
	fb := b.Field(fs.Name, t)

	if fs.Column != "" {
		fb.Column(fs.Column)
	}
	if fs.Description != "" {
		fb.Description(fs.Description)
	}
	if fs.Optional {
		fb.Optional()
	}
	if fs.Primary {
		fb.Primary()
	}
	if fs.AutoIncrement {
		fb.AutoIncrement()
	}
	for _, ann := range []struct {
		spec   *FieldIndexSpec
		unique bool
	}{{fs.Unique, true}, {fs.Index, false}} {
		if ann.spec == nil || !ann.spec.Enabled {
			continue
		}
		sort, err := parseSort(ann.spec.Sort)
		if err != nil {
			return err
		}
		settings := model.IndexSettings{Name: ann.spec.Name, Sort: sort, Length: ann.spec.Length}
		if ann.unique {
			fb.UniqueSettings(settings)
		} else {
			fb.IndexSettings(settings)
		}
	}

	switch fs.Write {
	case "", "write":
	case "no_write":
		fb.WriteRule(model.NoWrite)
	case "write_on_create":
		fb.WriteRule(model.WriteOnCreate)
	default:
		return fmt.Errorf("unknown write rule %q", fs.Write)
	}
	switch fs.Read {
	case "", "read":
	case "no_read":
		fb.ReadRule(model.NoRead)
	default:
		return fmt.Errorf("unknown read rule %q", fs.Read)
	}
	switch fs.Store {
	case "", "embedded":
	case "calculated":
		fb.Store(model.Calculated)
	case "temp":
		fb.Store(model.Temp)
	default:
		return fmt.Errorf("unknown store %q", fs.Store)
	}
	if fs.Queryable != nil && !*fs.Queryable {
		fb.Unqueryable()
	}
	if fs.AuthIdentity {
		fb.AuthIdentity()
	}
	if fs.AuthBy {
		fb.AuthBy()
	}

	if fs.Default != nil && len(fs.DefaultFrom) > 0 {
		return fmt.Errorf("default and default_pipeline are exclusive")
	}
	if fs.Default != nil {
		var raw any
		if err := fs.Default.Decode(&raw); err != nil {
			return fmt.Errorf("default: %w", err)
		}
		v, err := t.Decode(raw)
		if err != nil {
			return fmt.Errorf("default: %w", err)
		}
		fb.Default(v)
	}
	if len(fs.DefaultFrom) > 0 {
		p, err := r.Pipeline(fs.DefaultFrom)
		if err != nil {
			return fmt.Errorf("default_pipeline: %w", err)
		}
		fb.DefaultPipeline(p)
	}
	if len(fs.OnSet) > 0 {
		p, err := r.Pipeline(fs.OnSet)
		if err != nil {
			return fmt.Errorf("on_set: %w", err)
		}
		fb.OnSet(p)
	}
	if len(fs.OnSave) > 0 {
		p, err := r.Pipeline(fs.OnSave)
		if err != nil {
			return fmt.Errorf("on_save: %w", err)
		}
		fb.OnSave(p)
	}
	return nil
}

func parseSort(s string) (model.Sort, error) {
	switch strings.ToLower(s) {
	case "", "asc":
		return model.Asc, nil
	case "desc":
		return model.Desc, nil
	}
	return model.Asc, fmt.Errorf("unknown sort %q", s)
}

// ParseType reads the names printed by value.Type.String: bool, int,
// float, string, date, datetime, json, enum(a|b) and []elem
func ParseType(s string) (value.Type, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "bool":
		return value.BoolType, nil
	case "int":
		return value.IntType, nil
	case "float":
		return value.FloatType, nil
	case "string":
		return value.StringType, nil
	case "date":
		return value.DateType, nil
	case "datetime":
		return value.DateTimeType, nil
	case "json":
		return value.JSONType, nil
	}
	if elem, ok := strings.CutPrefix(s, "[]"); ok {
		t, err := ParseType(elem)
		if err != nil {
			return value.Type{}, err
		}
		return value.ArrayOf(t), nil
	}
	if inner, ok := strings.CutPrefix(s, "enum("); ok && strings.HasSuffix(inner, ")") {
		members := strings.Split(strings.TrimSuffix(inner, ")"), "|")
		for i, m := range members {
			members[i] = strings.TrimSpace(m)
			if members[i] == "" {
				return value.Type{}, fmt.Errorf("%w: empty enum member in %q", ErrInvalidType, s)
			}
		}
		return value.EnumType(members...), nil
	}
	return value.Type{}, fmt.Errorf("%w: %q", ErrInvalidType, s)
}
