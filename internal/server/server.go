// Package server implements the gRPC storage service that backs remote
// connectors
package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nainya/entitycore/internal/logger"
	"github.com/nainya/entitycore/internal/metrics"
	"github.com/nainya/entitycore/internal/rpc"
	"github.com/nainya/entitycore/pkg/model"
	"github.com/nainya/entitycore/pkg/object"
)

const maxMessageSize = 16 * 1024 * 1024

// Backend is the storage a Server exposes
type Backend interface {
	object.Connector
	object.Finder
}

// Server implements rpc.StorageServer over a Backend. Objects arrive with
// their save pipelines already applied, so the server only persists them.
type Server struct {
	backend  Backend
	provider string
	models   map[string]*model.Model
	names    []string
	log      *logger.Logger

	startTime time.Time
	mu        sync.Mutex
	opCounts  map[string]int64
}

// NewServer creates a server for models stored in backend. provider is
// reported by Health.
func NewServer(backend Backend, provider string, models []*model.Model, log *logger.Logger) (*Server, error) {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		backend:   backend,
		provider:  provider,
		models:    make(map[string]*model.Model, len(models)),
		log:       log,
		startTime: time.Now(),
		opCounts:  make(map[string]int64),
	}
	for _, m := range models {
		if _, dup := s.models[m.Name()]; dup {
			return nil, fmt.Errorf("model %q registered twice", m.Name())
		}
		s.models[m.Name()] = m
		s.names = append(s.names, m.Name())
	}
	sort.Strings(s.names)
	return s, nil
}

// NewGRPCServer builds a grpc.Server with metrics, logging and reflection
// and registers srv on it
func NewGRPCServer(srv *Server, m *metrics.Metrics, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(GrpcMetricsInterceptor(m, srv.log)),
		grpc.MaxRecvMsgSize(maxMessageSize),
		grpc.MaxSendMsgSize(maxMessageSize),
	}, opts...)
	gs := grpc.NewServer(opts...)
	rpc.RegisterStorageServer(gs, srv)
	reflection.Register(gs)
	return gs
}

func (s *Server) count(op string) {
	s.mu.Lock()
	s.opCounts[op]++
	s.mu.Unlock()
}

func (s *Server) model(req *structpb.Struct) (*model.Model, error) {
	name, err := rpc.ModelName(req)
	if err != nil {
		return nil, err
	}
	m, ok := s.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown model %q", rpc.ErrMalformed, name)
	}
	return m, nil
}

// ========== Storage Operations ==========

func (s *Server) Save(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.count("Save")

	m, err := s.model(req)
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	snap, err := rpc.DecodeSnapshot(m, req)
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	obj, err := object.FromSnapshot(m, s.backend, snap)
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	if err := s.backend.SaveObject(ctx, obj); err != nil {
		return nil, rpc.ToStatus(err)
	}

	// Generated keys flow back to the caller
	resp, err := rpc.EncodeRow(obj.Values())
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	return resp, nil
}

func (s *Server) Delete(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.count("Delete")

	m, err := s.model(req)
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	identifier, err := rpc.DecodeDelete(m, req)
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	obj, err := object.Hydrate(m, s.backend, identifier)
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	if err := s.backend.DeleteObject(ctx, obj); err != nil {
		return nil, rpc.ToStatus(err)
	}
	return &structpb.Struct{}, nil
}

func (s *Server) FindUnique(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.count("FindUnique")

	m, err := s.model(req)
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	where, err := rpc.DecodeFind(m, req)
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	row, err := s.backend.FindUnique(ctx, m, where)
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	resp, err := rpc.EncodeRow(row)
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	return resp, nil
}

// ========== Health ==========

func (s *Server) Health(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	models := make([]any, len(s.names))
	for i, n := range s.names {
		models[i] = n
	}
	s.mu.Lock()
	ops := make(map[string]any, len(s.opCounts))
	for k, v := range s.opCounts {
		ops[k] = v
	}
	s.mu.Unlock()

	resp, err := structpb.NewStruct(map[string]any{
		"status":         "serving",
		"provider":       s.provider,
		"models":         models,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"operations":     ops,
	})
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	return resp, nil
}
