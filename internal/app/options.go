package service

import (
	"time"

	"github.com/okian/surgilog/internal/adapters/repository"
	"github.com/okian/surgilog/internal/domain/lifecycle"
	"github.com/okian/surgilog/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStoreDriver selects the record store: "memory" or "postgres".
func WithStoreDriver(driver string) Option {
	return func(s *Service) {
		if driver != "" {
			s.storeDriver = driver
		}
	}
}

// WithDatabase configures the postgres store.
func WithDatabase(dsn string, maxOpenConns int, migrate bool) Option {
	return func(s *Service) {
		s.databaseDSN = dsn
		s.maxOpenConns = maxOpenConns
		s.migrate = migrate
	}
}

// WithStore injects a ready store and bypasses the driver selection.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithCatalogPath loads surgery templates from a YAML file instead of the
// built-in catalog.
func WithCatalogPath(path string) Option {
	return func(s *Service) {
		s.catalogPath = path
	}
}

// WithTemplates injects a template provider and bypasses the catalog file.
func WithTemplates(templates lifecycle.TemplateProvider) Option {
	return func(s *Service) {
		s.templates = templates
	}
}

// WithIdempotencySize bounds the number of remembered Idempotency-Keys.
func WithIdempotencySize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.idempotencySize = size
		}
	}
}

// WithScaleHistoryLimit sets the default length of the summary-scale history.
// Zero returns every entry.
func WithScaleHistoryLimit(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.historyLimit = n
		}
	}
}

// WithClock sets the time source for the lifecycle engine and memory store.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
