package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-nlq/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-nlq/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-nlq/pkg/config"
	"github.com/ekaya-inc/ekaya-nlq/pkg/executor"
	"github.com/ekaya-inc/ekaya-nlq/pkg/logging"
	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
	"github.com/ekaya-inc/ekaya-nlq/pkg/querymodel"
	"github.com/ekaya-inc/ekaya-nlq/pkg/retry"
)

const stageDatasource = "datasource"

// DatasourceService gives the pipeline connected adapters, cached schemas and
// relationship resolvers for the configured data sources.
type DatasourceService interface {
	// Get returns the data source with the given id.
	Get(id string) (*models.Datasource, error)

	// List returns every configured data source ordered by id.
	List() []*models.Datasource

	// Adapter returns the connected adapter of a data source, connecting on
	// first use.
	Adapter(ctx context.Context, id string) (datasource.Adapter, error)

	// Schema returns the cached schema, discovering it on first use.
	Schema(ctx context.Context, id string) (*models.Schema, error)

	// Resolver returns the relationship resolver of a data source.
	Resolver(ctx context.Context, id string) (*querymodel.Resolver, error)

	// RefreshSchemas rediscovers every schema concurrently and reloads the
	// resolvers. The returned map holds the failures by data source id.
	RefreshSchemas(ctx context.Context) map[string]error

	// TestConnection tests connectivity of a configured data source.
	TestConnection(ctx context.Context, id string) error

	// Close disconnects every adapter.
	Close() error
}

type datasourceEntry struct {
	ds       *models.Datasource
	resolver *querymodel.Resolver

	mu      sync.Mutex
	adapter datasource.Adapter
	schema  *models.Schema
}

type datasourceService struct {
	entries        map[string]*datasourceEntry
	adapterFactory datasource.AdapterFactory
	pool           *executor.WorkerPool
	connectRetry   *retry.Config
	logger         *zap.Logger
}

var _ DatasourceService = (*datasourceService)(nil)

// NewDatasourceService creates the service over the configured data sources.
// Schema refreshes run on pool.
func NewDatasourceService(
	configs []config.DatasourceConfig,
	adapterFactory datasource.AdapterFactory,
	pool *executor.WorkerPool,
	logger *zap.Logger,
) (DatasourceService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pool == nil {
		pool = executor.NewWorkerPool(executor.DefaultWorkerPoolConfig(), logger)
	}
	s := &datasourceService{
		entries:        make(map[string]*datasourceEntry, len(configs)),
		adapterFactory: adapterFactory,
		pool:           pool,
		connectRetry:   retry.DefaultConfig(),
		logger:         logger.Named("datasource-service"),
	}

	now := time.Now()
	for _, c := range configs {
		if _, dup := s.entries[c.ID]; dup {
			return nil, fmt.Errorf("duplicate datasource id %q", c.ID)
		}
		entry := &datasourceEntry{
			ds: &models.Datasource{
				ID:             c.ID,
				Name:           c.Name,
				DatasourceType: c.Type,
				Config:         c.Config,
				CreatedAt:      now,
			},
		}
		declared := DeclaredRelationships(c.Relationships)
		id := c.ID
		entry.resolver = querymodel.NewResolver(CombinedRelationships(
			ForeignKeyRelationships(func(ctx context.Context) (*models.Schema, error) {
				return s.Schema(ctx, id)
			}),
			querymodel.StaticRelationships(declared...),
		), s.logger.With(zap.String("datasource_id", id)))
		s.entries[c.ID] = entry
	}
	return s, nil
}

func (s *datasourceService) entry(id string) (*datasourceEntry, error) {
	e, ok := s.entries[id]
	if !ok {
		return nil, apperrors.Validation(stageDatasource, "unknown data source %q", id)
	}
	return e, nil
}

func (s *datasourceService) Get(id string) (*models.Datasource, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	ds := *e.ds
	return &ds, nil
}

func (s *datasourceService) List() []*models.Datasource {
	out := make([]*models.Datasource, 0, len(s.entries))
	for _, e := range s.entries {
		ds := *e.ds
		out = append(out, &ds)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *datasourceService) Adapter(ctx context.Context, id string) (datasource.Adapter, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return s.connectLocked(ctx, e)
}

func (s *datasourceService) connectLocked(ctx context.Context, e *datasourceEntry) (datasource.Adapter, error) {
	if e.adapter != nil {
		return e.adapter, nil
	}

	adapter, err := s.adapterFactory.NewAdapter(e.ds.DatasourceType, e.ds.Config)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindValidation, stageDatasource, err.Error())
	}
	err = retry.DoIfRetryable(ctx, s.connectRetry, func() error {
		return adapter.Connect(ctx)
	})
	if err != nil {
		s.logger.Error("Failed to connect data source",
			zap.String("datasource_id", e.ds.ID),
			zap.String("type", e.ds.DatasourceType),
			zap.String("error", logging.SanitizeError(err)))
		return nil, apperrors.Wrap(err, apperrors.KindExecution, stageDatasource, logging.SanitizeError(err))
	}

	s.logger.Info("Connected data source",
		zap.String("datasource_id", e.ds.ID),
		zap.String("type", e.ds.DatasourceType),
		zap.String("dialect", adapter.Dialect()))
	e.adapter = adapter
	return adapter, nil
}

func (s *datasourceService) Schema(ctx context.Context, id string) (*models.Schema, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.schema != nil {
		return e.schema, nil
	}
	return s.discoverLocked(ctx, e)
}

func (s *datasourceService) discoverLocked(ctx context.Context, e *datasourceEntry) (*models.Schema, error) {
	adapter, err := s.connectLocked(ctx, e)
	if err != nil {
		return nil, err
	}

	schema, err := adapter.Schema(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindExecution, stageDatasource,
			"schema discovery failed: "+logging.SanitizeError(err))
	}
	schema.DatasourceID = e.ds.ID

	e.schema = schema
	s.logger.Info("Schema discovered",
		zap.String("datasource_id", e.ds.ID),
		zap.Int("tables", len(schema.Tables)))
	return schema, nil
}

// Resolver loads the resolver snapshot on first use. A failed first load
// leaves the declared relationships unavailable until the next refresh.
func (s *datasourceService) Resolver(ctx context.Context, id string) (*querymodel.Resolver, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	if e.resolver.Len() == 0 {
		if err := e.resolver.Refresh(ctx); err != nil {
			s.logger.Warn("Failed to load relationships",
				zap.String("datasource_id", id),
				zap.Error(err))
		}
	}
	return e.resolver, nil
}

func (s *datasourceService) RefreshSchemas(ctx context.Context) map[string]error {
	items := make([]executor.WorkItem[*models.Schema], 0, len(s.entries))
	for id, e := range s.entries {
		items = append(items, executor.WorkItem[*models.Schema]{
			ID: id,
			Execute: func(ctx context.Context) (*models.Schema, error) {
				e.mu.Lock()
				schema, err := s.discoverLocked(ctx, e)
				e.mu.Unlock()
				if err != nil {
					return nil, err
				}
				if err := e.resolver.Refresh(ctx); err != nil {
					return nil, err
				}
				return schema, nil
			},
		})
	}

	failures := make(map[string]error)
	for _, r := range executor.Process(ctx, s.pool, items, nil) {
		if r.Err != nil {
			failures[r.ID] = r.Err
			s.logger.Warn("Schema refresh failed",
				zap.String("datasource_id", r.ID),
				zap.String("error", logging.SanitizeError(r.Err)))
		}
	}
	s.logger.Info("Schemas refreshed",
		zap.Int("datasources", len(items)),
		zap.Int("failed", len(failures)))
	return failures
}

func (s *datasourceService) TestConnection(ctx context.Context, id string) error {
	adapter, err := s.Adapter(ctx, id)
	if err != nil {
		return err
	}
	if err := adapter.TestConnection(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.KindExecution, stageDatasource, logging.SanitizeError(err))
	}
	return nil
}

func (s *datasourceService) Close() error {
	var firstErr error
	for id, e := range s.entries {
		e.mu.Lock()
		if e.adapter != nil {
			if err := e.adapter.Disconnect(); err != nil {
				s.logger.Warn("Failed to disconnect data source",
					zap.String("datasource_id", id),
					zap.Error(err))
				if firstErr == nil {
					firstErr = err
				}
			}
			e.adapter = nil
		}
		e.mu.Unlock()
	}
	return firstErr
}
