// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/surgilog/internal/adapters/catalog"
	"github.com/okian/surgilog/internal/adapters/http/api"
	"github.com/okian/surgilog/internal/adapters/idempotency"
	"github.com/okian/surgilog/internal/adapters/repository"
	"github.com/okian/surgilog/internal/domain/analytics"
	"github.com/okian/surgilog/internal/domain/lifecycle"
	"github.com/okian/surgilog/internal/domain/model"
	"github.com/okian/surgilog/internal/domain/types"
	"github.com/okian/surgilog/pkg/logger"
	"github.com/okian/surgilog/pkg/metrics"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

var (
	_ api.Dependencies  = (*Service)(nil)
	_ api.StatsProvider = (*Service)(nil)
)

// Service implements the API dependencies for the competency records system.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	ownsStore  bool
	templates  lifecycle.TemplateProvider
	idem       idempotency.Cache
	engine     *lifecycle.Engine
	aggregator *analytics.Aggregator

	// Configuration
	storeDriver     string
	databaseDSN     string
	maxOpenConns    int
	migrate         bool
	catalogPath     string
	idempotencySize int
	historyLimit    int
	now             func() time.Time

	// State
	started   bool
	startedAt time.Time

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		storeDriver:     DriverMemory,
		maxOpenConns:    10,
		migrate:         true,
		idempotencySize: 10000,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store, loads the catalog and builds the engine and
// aggregator.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Default().Named("service")
	}

	s.logger.Info(ctx, "starting records service...", logger.String("store", s.storeDriver))

	if s.store == nil {
		store, err := s.openStore(ctx)
		if err != nil {
			return err
		}
		s.store, s.ownsStore = store, true
	}

	if s.templates == nil {
		cat, err := catalog.Load(ctx, s.catalogPath)
		if err != nil {
			s.releaseStore()
			return fmt.Errorf("load catalog: %w", err)
		}
		s.templates = cat
		s.logger.Info(ctx, "surgery catalog loaded",
			logger.Int("surgeries", cat.Len()),
			logger.String("path", s.catalogPath),
		)
	}

	s.idem = idempotency.NewMemoryCache(idempotency.WithMaxSize(s.idempotencySize))
	s.engine = lifecycle.New(s.store, s.templates,
		lifecycle.WithClock(s.now),
		lifecycle.WithLogger(s.logger.Named("lifecycle")),
	)
	s.aggregator = analytics.NewAggregator(s.store,
		analytics.WithHistoryLimit(s.historyLimit),
		analytics.WithLogger(s.logger.Named("analytics")),
	)

	s.started = true
	s.startedAt = s.now()
	s.logger.Info(ctx, "records service started",
		logger.String("store", s.storeDriver),
		logger.Int("idempotencySize", s.idempotencySize),
		logger.Int("historyLimit", s.historyLimit),
	)
	return nil
}

func (s *Service) openStore(ctx context.Context) (repository.Store, error) {
	switch s.storeDriver {
	case DriverMemory:
		return repository.NewMemoryStore(repository.WithMemoryClock(s.now)), nil
	case DriverPostgres:
		store, err := repository.OpenPostgres(ctx, s.databaseDSN,
			repository.WithMaxOpenConns(s.maxOpenConns),
			repository.WithMigrations(s.migrate),
		)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	}
	return nil, fmt.Errorf("%w: %q", repository.ErrUnknownDriver, s.storeDriver)
}

// Stop releases the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping records service...")

	s.releaseStore()
	s.started = false
	s.logger.Info(ctx, "records service stopped")
}

// releaseStore closes a store opened by Start. Injected stores belong to the caller.
func (s *Service) releaseStore() {
	if !s.ownsStore {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error(context.Background(), "closing store failed", logger.Error(err))
	}
	s.store, s.ownsStore = nil, false
}

// components returns the engine and aggregator, or ErrNotStarted.
func (s *Service) components() (*lifecycle.Engine, *analytics.Aggregator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, ErrNotStarted
	}
	return s.engine, s.aggregator, nil
}

// CreateRecord creates a record for the calling resident. With a non-empty
// idempotency key, a retry returns the record made by the first attempt.
func (s *Service) CreateRecord(ctx context.Context, actor types.Actor, req lifecycle.CreateRequest, key string) (model.Record, bool, error) {
	const op = "service.create_record"
	engine, _, err := s.components()
	if err != nil {
		return model.Record{}, false, err
	}
	if key == "" {
		rec, err := engine.Create(ctx, actor, req)
		return rec, false, err
	}

	scoped := idempotency.Key(actor.ID, key)
	id, state := s.idem.Claim(ctx, scoped)
	switch state {
	case idempotency.Done:
		rec, err := engine.Get(ctx, actor, id)
		if err != nil {
			return model.Record{}, false, err
		}
		metrics.RecordIdempotentReplay()
		s.logger.Debug(ctx, "idempotent create replayed",
			logger.String("record_id", id),
			logger.String("actor_id", actor.ID),
		)
		return rec, true, nil
	case idempotency.InFlight:
		return model.Record{}, false, model.WrapKind(op, model.ErrConflict,
			fmt.Errorf("a request with idempotency key %q is in progress", key))
	}

	rec, err := engine.Create(ctx, actor, req)
	if err != nil {
		s.idem.Release(ctx, scoped)
		return model.Record{}, false, err
	}
	s.idem.Complete(ctx, scoped, rec.ID)
	return rec, false, nil
}

// GetRecord returns a record visible to actor.
func (s *Service) GetRecord(ctx context.Context, actor types.Actor, id string) (model.Record, error) {
	engine, _, err := s.components()
	if err != nil {
		return model.Record{}, err
	}
	return engine.Get(ctx, actor, id)
}

// SubmitSelfAssessment applies the resident's self-assessment.
func (s *Service) SubmitSelfAssessment(ctx context.Context, actor types.Actor, req lifecycle.SelfAssessmentRequest) (model.Record, error) {
	engine, _, err := s.components()
	if err != nil {
		return model.Record{}, err
	}
	return engine.SubmitSelfAssessment(ctx, actor, req)
}

// SubmitReview applies the teacher's review.
func (s *Service) SubmitReview(ctx context.Context, actor types.Actor, req lifecycle.ReviewRequest) (model.Record, error) {
	engine, _, err := s.components()
	if err != nil {
		return model.Record{}, err
	}
	return engine.SubmitReview(ctx, actor, req)
}

// CancelRecord cancels a pending or corrected record.
func (s *Service) CancelRecord(ctx context.Context, actor types.Actor, req lifecycle.CancelRequest) (model.Record, error) {
	engine, _, err := s.components()
	if err != nil {
		return model.Record{}, err
	}
	return engine.Cancel(ctx, actor, req)
}

// DeleteRecord soft-deletes a record.
func (s *Service) DeleteRecord(ctx context.Context, actor types.Actor, req lifecycle.DeleteRequest) (model.Record, error) {
	engine, _, err := s.components()
	if err != nil {
		return model.Record{}, err
	}
	return engine.Delete(ctx, actor, req)
}

// Trend returns the monthly completion trend.
func (s *Service) Trend(ctx context.Context, actor types.Actor, scope analytics.Scope) ([]analytics.TrendPoint, error) {
	_, agg, err := s.components()
	if err != nil {
		return nil, err
	}
	return agg.Trend(ctx, actor, scope)
}

// ScaleHistory returns the summary-scale history.
func (s *Service) ScaleHistory(ctx context.Context, actor types.Actor, scope analytics.Scope) ([]analytics.ScalePoint, error) {
	_, agg, err := s.components()
	if err != nil {
		return nil, err
	}
	return agg.ScaleHistory(ctx, actor, scope)
}

// Distribution returns record counts per surgery.
func (s *Service) Distribution(ctx context.Context, actor types.Actor, scope analytics.Scope) ([]analytics.DistributionRow, error) {
	_, agg, err := s.components()
	if err != nil {
		return nil, err
	}
	return agg.Distribution(ctx, actor, scope)
}

// Dashboard returns all projections at once.
func (s *Service) Dashboard(ctx context.Context, actor types.Actor, scope analytics.Scope) (analytics.Dashboard, error) {
	_, agg, err := s.components()
	if err != nil {
		return analytics.Dashboard{}, err
	}
	return agg.Dashboard(ctx, actor, scope)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":         s.started,
		"store":           s.storeDriver,
		"idempotencySize": s.idempotencySize,
		"historyLimit":    s.historyLimit,
	}
	if !s.started {
		return stats
	}

	ctx := context.Background()
	stats["uptimeSeconds"] = int64(s.now().Sub(s.startedAt).Seconds())
	stats["idempotencyKeys"] = s.idem.Size()
	if n, err := s.store.Count(ctx); err == nil {
		stats["records"] = n
		metrics.UpdateRecordsTracked(n)
	} else {
		s.logger.Warn(ctx, "counting records failed", logger.Error(err))
	}
	return stats
}
