package services

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
	"github.com/ekaya-inc/ekaya-nlq/pkg/repositories"
)

// QueryHistoryService records finished executions.
type QueryHistoryService interface {
	// Record classifies entry and appends it. Entries of one data source are
	// appended in the order their executions complete.
	Record(ctx context.Context, entry *models.QueryHistory) error
	List(ctx context.Context, datasourceID string, limit int) ([]*models.QueryHistory, error)
	PruneOlderThan(ctx context.Context, datasourceID string, cutoff time.Time) (int64, error)
}

type queryHistoryService struct {
	repo   repositories.QueryHistoryRepository
	now    func() time.Time
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewQueryHistoryService(repo repositories.QueryHistoryRepository, logger *zap.Logger) QueryHistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &queryHistoryService{
		repo:   repo,
		now:    time.Now,
		logger: logger.Named("query-history-service"),
		locks:  make(map[string]*sync.Mutex),
	}
}

var _ QueryHistoryService = (*queryHistoryService)(nil)

func (s *queryHistoryService) datasourceLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *queryHistoryService) Record(ctx context.Context, entry *models.QueryHistory) error {
	// Classify the query before recording
	classifyQuery(entry)

	lock := s.datasourceLock(entry.DatasourceID)
	lock.Lock()
	defer lock.Unlock()

	// Completion is stamped under the lock so append order matches it.
	if entry.CompletedAt.IsZero() {
		entry.CompletedAt = s.now()
	}
	if entry.DurationMs == 0 && !entry.ExecutedAt.IsZero() {
		entry.DurationMs = entry.CompletedAt.Sub(entry.ExecutedAt).Milliseconds()
	}

	if err := s.repo.Append(ctx, entry); err != nil {
		s.logger.Error("Failed to record query history entry",
			zap.String("datasource_id", entry.DatasourceID),
			zap.String("query_id", entry.QueryID),
			zap.Error(err))
		return err
	}
	return nil
}

func (s *queryHistoryService) List(ctx context.Context, datasourceID string, limit int) ([]*models.QueryHistory, error) {
	entries, err := s.repo.List(ctx, datasourceID, limit)
	if err != nil {
		s.logger.Error("Failed to list query history entries",
			zap.String("datasource_id", datasourceID),
			zap.Error(err))
		return nil, err
	}
	return entries, nil
}

func (s *queryHistoryService) PruneOlderThan(ctx context.Context, datasourceID string, cutoff time.Time) (int64, error) {
	count, err := s.repo.DeleteOlderThan(ctx, datasourceID, cutoff)
	if err != nil {
		s.logger.Error("Failed to prune query history",
			zap.String("datasource_id", datasourceID),
			zap.Error(err))
		return 0, err
	}
	return count, nil
}

// classifyQuery derives query_type, tables_used and aggregations_used from
// the converted SQL.
func classifyQuery(entry *models.QueryHistory) {
	sql := entry.Conversion.SQL
	sqlUpper := strings.ToUpper(sql)

	entry.TablesUsed = extractTablesFromSQL(sql)
	entry.AggregationsUsed = extractAggregations(sqlUpper)
	entry.QueryType = classifyQueryType(sqlUpper)
}

// tableRefPattern matches bare, double-quoted, bracketed and backticked table
// names after FROM and JOIN.
var tableRefPattern = regexp.MustCompile("(?i)\\b(?:FROM|JOIN)\\s+[\"\\[`]?([a-zA-Z_][a-zA-Z0-9_]*(?:\\.[a-zA-Z_][a-zA-Z0-9_]*)?)")

func extractTablesFromSQL(sql string) []string {
	matches := tableRefPattern.FindAllStringSubmatch(sql, -1)
	seen := make(map[string]bool)
	var tables []string

	for _, match := range matches {
		if len(match) < 2 {
			continue
		}
		tableName := strings.ToLower(match[1])
		// Skip subqueries
		if tableName == "select" || tableName == "lateral" {
			continue
		}
		if !seen[tableName] {
			seen[tableName] = true
			tables = append(tables, tableName)
		}
	}

	return tables
}

var aggregationPattern = regexp.MustCompile(`\b(COUNT|SUM|AVG|MIN|MAX)\s*\(`)

func extractAggregations(sqlUpper string) []string {
	matches := aggregationPattern.FindAllStringSubmatch(sqlUpper, -1)
	seen := make(map[string]bool)
	var aggs []string

	for _, match := range matches {
		agg := match[1]
		if !seen[agg] {
			seen[agg] = true
			aggs = append(aggs, agg)
		}
	}

	return aggs
}

func classifyQueryType(sqlUpper string) string {
	hasAgg := aggregationPattern.MatchString(sqlUpper)
	hasGroupBy := strings.Contains(sqlUpper, "GROUP BY")

	if hasAgg || hasGroupBy {
		return "aggregation"
	}

	hasWhere := strings.Contains(sqlUpper, "WHERE")
	hasLimit := strings.Contains(sqlUpper, "LIMIT") || strings.Contains(sqlUpper, "TOP (")

	// Lookup: filtered and bounded
	if hasWhere && hasLimit {
		return "lookup"
	}

	// Report: ordered with no bound, implying the full result set
	hasOrderBy := strings.Contains(sqlUpper, "ORDER BY")
	if hasOrderBy && !hasLimit {
		return "report"
	}

	return "exploration"
}
