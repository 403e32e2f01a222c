// Package services orchestrates the natural-language query pipeline and the
// stores around it. It is the public surface consumed by the MCP tools.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-nlq/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-nlq/pkg/cache"
	"github.com/ekaya-inc/ekaya-nlq/pkg/executor"
	"github.com/ekaya-inc/ekaya-nlq/pkg/extract"
	"github.com/ekaya-inc/ekaya-nlq/pkg/logging"
	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
	"github.com/ekaya-inc/ekaya-nlq/pkg/nlp"
	"github.com/ekaya-inc/ekaya-nlq/pkg/querymodel"
	"github.com/ekaya-inc/ekaya-nlq/pkg/repositories"
	"github.com/ekaya-inc/ekaya-nlq/pkg/sql"
)

const (
	stagePreprocess = "preprocess"
	stageExtract    = "extract"
	stageBuild      = "build"
	stageSaved      = "saved_query"
)

// QueryRequest is a question asked of one data source.
type QueryRequest struct {
	DatasourceID string
	Text         string
	Parameters   map[string]any

	// Metadata overrides the configured defaults; zero fields take defaults.
	Metadata *models.QueryMetadata

	// Owner identifies the caller for history and saved-query ownership.
	Owner string
}

// Translation is the outcome of running the pipeline up to SQL conversion.
type Translation struct {
	Text       *models.PreprocessedText    `json:"text"`
	Tags       []models.EntityTag          `json:"tags"`
	Model      *models.QueryModel          `json:"model"`
	Conversion *models.SqlConversionResult `json:"conversion"`
}

// PipelineService is the public surface of the query pipeline.
type PipelineService interface {
	// ExecuteQuery translates and executes a question. With async metadata
	// the result is PENDING and carries the query id to poll.
	ExecuteQuery(ctx context.Context, req QueryRequest) (*models.QueryResult, error)

	// Translate runs the pipeline up to SQL conversion without executing.
	Translate(ctx context.Context, req QueryRequest) (*Translation, error)

	SaveQuery(ctx context.Context, name string, req QueryRequest, conv *models.SqlConversionResult) (uuid.UUID, error)
	ExecuteSavedQuery(ctx context.Context, id uuid.UUID, caller string) (*models.QueryResult, error)
	ListSavedQueries(ctx context.Context, datasourceID, caller string) ([]*models.SavedQuery, error)
	UpdateSavedQuery(ctx context.Context, id uuid.UUID, owner string, update models.SavedQueryUpdate) (*models.SavedQuery, error)
	DeleteSavedQuery(ctx context.Context, id uuid.UUID, owner string) error

	// GetQueryHistory returns the most recent limit entries in completion
	// order. A non-positive limit returns every entry.
	GetQueryHistory(ctx context.Context, datasourceID string, limit int) ([]*models.QueryHistory, error)

	GetStatus(queryID string) (models.QueryStatus, error)
	// GetResult returns the outcome of an execution, waiting for it to finish
	// when wait is set.
	GetResult(ctx context.Context, queryID string, wait bool) (*models.QueryResult, error)
	Cancel(queryID string) bool
}

// PipelineDeps are the collaborators of the pipeline. Cache is optional.
type PipelineDeps struct {
	Datasources DatasourceService
	Tokenizer   *nlp.Tokenizer
	Extractor   extract.Extractor
	Builder     *querymodel.Builder
	Executor    *executor.Executor
	Cache       *cache.ResultCache
	History     QueryHistoryService
	SavedQuery  repositories.SavedQueryRepository
	Defaults    models.QueryMetadata
}

type pipelineService struct {
	datasources DatasourceService
	tokenizer   *nlp.Tokenizer
	extractor   extract.Extractor
	builder     *querymodel.Builder
	executor    *executor.Executor
	cache       *cache.ResultCache
	history     QueryHistoryService
	saved       repositories.SavedQueryRepository
	defaults    models.QueryMetadata
	now         func() time.Time
	logger      *zap.Logger
}

var _ PipelineService = (*pipelineService)(nil)

// NewPipelineService wires the pipeline. Missing tokenizer, extractor and
// builder are replaced by the defaults.
func NewPipelineService(deps PipelineDeps, logger *zap.Logger) PipelineService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Tokenizer == nil {
		deps.Tokenizer = nlp.NewTokenizer(logger)
	}
	if deps.Extractor == nil {
		deps.Extractor = extract.NewDefault(logger)
	}
	if deps.Builder == nil {
		deps.Builder = querymodel.NewBuilder(logger)
	}
	if deps.Executor == nil {
		deps.Executor = executor.New(executor.DefaultConfig(), nil, logger)
	}
	defaults := deps.Defaults.WithDefaults()

	return &pipelineService{
		datasources: deps.Datasources,
		tokenizer:   deps.Tokenizer,
		extractor:   deps.Extractor,
		builder:     deps.Builder,
		executor:    deps.Executor,
		cache:       deps.Cache,
		history:     deps.History,
		saved:       deps.SavedQuery,
		defaults:    defaults,
		now:         time.Now,
		logger:      logger.Named("pipeline"),
	}
}

func (s *pipelineService) Translate(ctx context.Context, req QueryRequest) (*Translation, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, apperrors.Validation(stagePreprocess, "query text is empty")
	}
	if _, err := s.datasources.Get(req.DatasourceID); err != nil {
		return nil, err
	}

	text := s.tokenizer.Preprocess(req.Text)
	if len(text.Tokens) == 0 {
		return nil, apperrors.Validation(stagePreprocess, "query text has no words to match")
	}

	schema, err := s.datasources.Schema(ctx, req.DatasourceID)
	if err != nil {
		return nil, err
	}

	tags, err := s.extractor.Extract(ctx, text, &extract.Context{Schema: schema})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindCancelled, stageExtract, "entity extraction interrupted")
	}
	if len(tags) == 0 {
		return nil, apperrors.Conversion(stageExtract, "no tables, columns or values recognised in the question")
	}

	resolver, err := s.datasources.Resolver(ctx, req.DatasourceID)
	if err != nil {
		return nil, err
	}

	model, err := s.builder.Build(ctx, tags, &querymodel.BuildContext{
		Name:       req.Text,
		Schema:     schema,
		Resolver:   resolver,
		Parameters: req.Parameters,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindCancelled, stageBuild, "query model build interrupted")
	}

	adapter, err := s.datasources.Adapter(ctx, req.DatasourceID)
	if err != nil {
		return nil, err
	}
	dialect, err := sql.DialectFor(adapter.Dialect())
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindConversion, stageBuild, err.Error())
	}

	conv, err := sql.NewConverter(dialect, s.logger).Convert(model)
	if err != nil {
		s.logger.Debug("Conversion failed",
			zap.String("datasource_id", req.DatasourceID),
			zap.Strings("tables", model.Tables),
			zap.Error(err))
		return nil, err
	}

	return &Translation{Text: text, Tags: tags, Model: model, Conversion: conv}, nil
}

func (s *pipelineService) ExecuteQuery(ctx context.Context, req QueryRequest) (*models.QueryResult, error) {
	tr, err := s.Translate(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, execution{
		datasourceID: req.DatasourceID,
		text:         req.Text,
		owner:        req.Owner,
		conversion:   tr.Conversion,
		limit:        tr.Model.Limit,
		metadata:     s.metadata(req.Metadata),
	})
}

func (s *pipelineService) metadata(override *models.QueryMetadata) models.QueryMetadata {
	if override == nil {
		return s.defaults.Clone()
	}
	md := override.Clone()
	if md.Timeout == 0 {
		md.Timeout = s.defaults.Timeout
	}
	if md.MaxRows == 0 {
		md.MaxRows = s.defaults.MaxRows
	}
	if md.CacheExpireSeconds == 0 {
		md.CacheExpireSeconds = s.defaults.CacheExpireSeconds
	}
	return md.WithDefaults()
}

// execution is one converted statement on its way to the executor.
type execution struct {
	datasourceID string
	text         string
	owner        string
	conversion   *models.SqlConversionResult
	limit        int
	metadata     models.QueryMetadata
}

func (s *pipelineService) run(ctx context.Context, ex execution) (*models.QueryResult, error) {
	adapter, err := s.datasources.Adapter(ctx, ex.datasourceID)
	if err != nil {
		return nil, err
	}

	md := ex.metadata
	if md.QueryID == "" {
		md.QueryID = uuid.NewString()
	}
	stmt := executor.StatementFrom(ex.conversion, ex.limit)
	startedAt := s.now()

	if md.Async {
		result, err := s.executor.Execute(ctx, stmt, adapter, &md)
		if err != nil {
			return nil, err
		}
		go s.recordWhenDone(md.QueryID, ex, startedAt)
		return result, nil
	}

	var result *models.QueryResult
	if md.CacheResult && s.cache != nil {
		key := cache.Key(ex.datasourceID, md.Kind, ex.conversion.SQL, ex.conversion.Parameters, effectiveLimit(ex.limit, md.MaxRows))
		result, err = s.cache.GetOrCompute(ctx, key, md.CacheTTL(), func(ctx context.Context) (*models.QueryResult, error) {
			return s.executor.Execute(ctx, stmt, adapter, &md)
		})
	} else {
		result, err = s.executor.Execute(ctx, stmt, adapter, &md)
	}

	s.record(executedQueryID(md.QueryID, result, err), ex, startedAt, result, err)
	return result, err
}

// executedQueryID is the id of the execution that produced result or err. A
// cache hit or a coalesced follower carries the id of the leader's run.
func executedQueryID(fallback string, result *models.QueryResult, err error) string {
	if result != nil && result.QueryID != "" {
		return result.QueryID
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) && appErr.QueryID != "" {
		return appErr.QueryID
	}
	return fallback
}

func effectiveLimit(limit, maxRows int) int {
	if limit > 0 && limit < maxRows {
		return limit
	}
	return maxRows
}

func (s *pipelineService) recordWhenDone(queryID string, ex execution, startedAt time.Time) {
	result, err := s.executor.Wait(context.Background(), queryID)
	s.record(queryID, ex, startedAt, result, err)
}

// record appends a history entry. Failures are logged and absorbed.
func (s *pipelineService) record(queryID string, ex execution, startedAt time.Time, result *models.QueryResult, execErr error) {
	if s.history == nil {
		return
	}

	entry := &models.QueryHistory{
		DatasourceID: ex.datasourceID,
		QueryID:      queryID,
		Owner:        ex.owner,
		Text:         ex.text,
		Conversion:   *ex.conversion.Clone(),
		Status:       models.HistoryStatusCompleted,
		ExecutedAt:   startedAt,
	}
	switch {
	case execErr != nil:
		entry.Status = models.HistoryStatusFailed
		if apperrors.KindOf(execErr) == apperrors.KindCancelled {
			entry.Status = models.HistoryStatusCancelled
		}
		entry.ErrorKind = string(apperrors.KindOf(execErr))
	case result != nil:
		entry.RowCount = result.RowCount
	}

	if err := s.history.Record(context.Background(), entry); err != nil {
		s.logger.Warn("Failed to record query history",
			zap.String("query_id", queryID),
			zap.String("error", logging.SanitizeError(err)))
	}
}

func (s *pipelineService) GetQueryHistory(ctx context.Context, datasourceID string, limit int) ([]*models.QueryHistory, error) {
	if _, err := s.datasources.Get(datasourceID); err != nil {
		return nil, err
	}
	if s.history == nil {
		return []*models.QueryHistory{}, nil
	}
	return s.history.List(ctx, datasourceID, limit)
}

func (s *pipelineService) GetStatus(queryID string) (models.QueryStatus, error) {
	return s.executor.Status(queryID)
}

func (s *pipelineService) GetResult(ctx context.Context, queryID string, wait bool) (*models.QueryResult, error) {
	if wait {
		return s.executor.Wait(ctx, queryID)
	}
	return s.executor.Result(queryID)
}

func (s *pipelineService) Cancel(queryID string) bool {
	return s.executor.Cancel(queryID)
}
