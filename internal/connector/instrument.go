package connector

import (
	"context"
	"time"

	"github.com/nainya/entitycore/internal/logger"
	"github.com/nainya/entitycore/internal/metrics"
	"github.com/nainya/entitycore/pkg/errs"
	"github.com/nainya/entitycore/pkg/model"
	"github.com/nainya/entitycore/pkg/object"
	"github.com/nainya/entitycore/pkg/value"
)

// Instrumented logs and times every call into the wrapped backend
type Instrumented struct {
	next     Backend
	provider string
	log      *logger.Logger
	metrics  *metrics.Metrics
}

// Instrument wraps b; log and m may be nil
func Instrument(b Backend, provider string, log *logger.Logger, m *metrics.Metrics) *Instrumented {
	if log == nil {
		log = logger.Nop()
	}
	return &Instrumented{next: b, provider: provider, log: log, metrics: m}
}

// Unwrap returns the wrapped backend
func (i *Instrumented) Unwrap() Backend { return i.next }

func (i *Instrumented) observe(op, model string, start time.Time, err error) {
	d := time.Since(start)
	status := "success"
	switch {
	case err == nil:
	case errs.KindOf(err) == errs.KindNotFound || errs.KindOf(err) == errs.KindKeysUnallowed:
		status = "rejected"
	default:
		status = "error"
	}
	i.metrics.RecordConnectorOperation(i.provider, op, status, d)
	i.log.LogConnectorOperation(op, model, d, err)
}

func (i *Instrumented) SaveObject(ctx context.Context, obj *object.Object) error {
	start := time.Now()
	err := i.next.SaveObject(ctx, obj)
	i.observe("save", obj.ModelName(), start, err)
	return err
}

func (i *Instrumented) DeleteObject(ctx context.Context, obj *object.Object) error {
	start := time.Now()
	err := i.next.DeleteObject(ctx, obj)
	i.observe("delete", obj.ModelName(), start, err)
	return err
}

func (i *Instrumented) FindUnique(ctx context.Context, m *model.Model, where map[string]value.Value) (map[string]value.Value, error) {
	start := time.Now()
	row, err := i.next.FindUnique(ctx, m, where)
	i.observe("find", m.Name(), start, err)
	return row, err
}

// Ping forwards to the backend when it can check its connection
func (i *Instrumented) Ping(ctx context.Context) error {
	if p, ok := i.next.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (i *Instrumented) Close() error {
	i.log.Debug("connector closing").Send()
	return i.next.Close()
}
