// Package graph binds a set of models to one connector and builds objects
// for them
package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/nainya/entitycore/internal/logger"
	"github.com/nainya/entitycore/internal/metrics"
	"github.com/nainya/entitycore/pkg/errs"
	"github.com/nainya/entitycore/pkg/model"
	"github.com/nainya/entitycore/pkg/object"
	"github.com/nainya/entitycore/pkg/stage"
	"github.com/nainya/entitycore/pkg/value"
)

// DefaultSaveConcurrency bounds SaveAll
const DefaultSaveConcurrency = 8

var (
	ErrUnknownModel   = errors.New("unknown model")
	ErrDuplicateModel = errors.New("duplicate model")
	ErrNoFinder       = errors.New("connector cannot look records up")
)

// Graph is a registry of models sharing a connector
type Graph struct {
	conn        object.Connector
	models      map[string]*model.Model
	names       []string
	log         *logger.Logger
	metrics     *metrics.Metrics
	concurrency int
}

type Option func(*Graph)

// WithLogger is passed on to every object the graph builds
func WithLogger(log *logger.Logger) Option {
	return func(g *Graph) { g.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Graph) { g.metrics = m }
}

// WithSaveConcurrency bounds how many saves SaveAll runs at once
func WithSaveConcurrency(n int) Option {
	return func(g *Graph) {
		if n > 0 {
			g.concurrency = n
		}
	}
}

// New registers models. Duplicate names and relations pointing at models
// outside the set are reported together.
func New(conn object.Connector, models []*model.Model, opts ...Option) (*Graph, error) {
	g := &Graph{
		conn:        conn,
		models:      make(map[string]*model.Model, len(models)),
		concurrency: DefaultSaveConcurrency,
	}
	for _, opt := range opts {
		opt(g)
	}

	var err error
	for _, m := range models {
		if _, dup := g.models[m.Name()]; dup {
			err = multierr.Append(err, fmt.Errorf("%w: %s", ErrDuplicateModel, m.Name()))
			continue
		}
		g.models[m.Name()] = m
		g.names = append(g.names, m.Name())
	}
	for _, name := range g.names {
		for _, r := range g.models[name].Relations() {
			if _, ok := g.models[r.Model]; !ok {
				err = multierr.Append(err, fmt.Errorf("%s.%s: %w: %s", name, r.Name, ErrUnknownModel, r.Model))
			}
			if r.HasJoinTable() {
				if _, ok := g.models[r.Through]; !ok {
					err = multierr.Append(err, fmt.Errorf("%s.%s: %w: %s", name, r.Name, ErrUnknownModel, r.Through))
				}
			}
		}
	}
	if err != nil {
		return nil, err
	}
	sort.Strings(g.names)
	return g, nil
}

// Connector returns the shared connector
func (g *Graph) Connector() object.Connector { return g.conn }

func (g *Graph) Model(name string) (*model.Model, bool) {
	m, ok := g.models[name]
	return m, ok
}

// Models returns the registered models sorted by name
func (g *Graph) Models() []*model.Model {
	out := make([]*model.Model, len(g.names))
	for i, n := range g.names {
		out[i] = g.models[n]
	}
	return out
}

func (g *Graph) lookup(name string) (*model.Model, error) {
	m, ok := g.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	return m, nil
}

func (g *Graph) objectOptions() []object.Option {
	var opts []object.Option
	if g.log != nil {
		opts = append(opts, object.WithLogger(g.log))
	}
	if g.metrics != nil {
		opts = append(opts, object.WithMetrics(g.metrics))
	}
	return opts
}

// NewObject returns an empty new object of the named model
func (g *Graph) NewObject(name string) (*object.Object, error) {
	m, err := g.lookup(name)
	if err != nil {
		return nil, err
	}
	return object.New(m, g.conn, g.objectOptions()...), nil
}

// CreateObject builds a new object and ingests payload through SetJSON.
// It is not saved.
func (g *Graph) CreateObject(ctx context.Context, name string, payload map[string]any) (*object.Object, error) {
	obj, err := g.NewObject(name)
	if err != nil {
		return nil, err
	}
	if err := obj.SetJSON(ctx, payload); err != nil {
		return nil, err
	}
	return obj, nil
}

// Hydrate wraps stored values as a persisted, unmodified object
func (g *Graph) Hydrate(name string, values map[string]value.Value) (*object.Object, error) {
	m, err := g.lookup(name)
	if err != nil {
		return nil, err
	}
	return object.Hydrate(m, g.conn, values, g.objectOptions()...)
}

// FindUnique decodes where with the model's field types, looks the record
// up and hydrates it
func (g *Graph) FindUnique(ctx context.Context, name string, where map[string]any) (*object.Object, error) {
	m, err := g.lookup(name)
	if err != nil {
		return nil, err
	}
	finder, ok := g.conn.(object.Finder)
	if !ok {
		return nil, errs.Connector("find", ErrNoFinder)
	}

	typed := make(map[string]value.Value, len(where))
	var unallowed []string
	for k, raw := range where {
		f, ok := m.Field(k)
		if !ok {
			unallowed = append(unallowed, k)
			continue
		}
		v, err := f.Decode(raw)
		if err != nil {
			return nil, errs.InvalidInput(k, err.Error())
		}
		typed[k] = v
	}
	if len(unallowed) > 0 {
		sort.Strings(unallowed)
		return nil, errs.KeysUnallowed(unallowed...)
	}

	row, err := finder.FindUnique(ctx, m, typed)
	if err != nil {
		return nil, err
	}
	return object.Hydrate(m, g.conn, row, g.objectOptions()...)
}

// Delete runs the model's before-delete pipeline on the identifier and
// deletes obj unless the pipeline rejects it
func (g *Graph) Delete(ctx context.Context, obj *object.Object) error {
	m := obj.Model()
	if p := m.BeforeDelete(); p.HasAnyModifier() {
		res := p.Process(ctx, stage.Value(obj.Identifier()), obj)
		if !res.IsValid() {
			return errs.InvalidInput(m.Name(), res.Reason())
		}
	}
	return obj.Delete(ctx)
}

// SaveAll saves objs concurrently and returns the first failure. Objects
// whose save did not start or failed stay new or modified.
func (g *Graph) SaveAll(ctx context.Context, objs ...*object.Object) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for _, obj := range objs {
		obj := obj
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := obj.Save(ctx); err != nil {
				return fmt.Errorf("%s: %w", obj.ModelName(), err)
			}
			return nil
		})
	}
	return eg.Wait()
}
