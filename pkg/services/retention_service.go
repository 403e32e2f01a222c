package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultRetentionDays is the default retention period for query history.
const DefaultRetentionDays = 90

// RetentionService handles cleanup of old query history.
type RetentionService interface {
	// PruneDatasource removes history entries older than retentionDays for one
	// data source and returns how many were deleted.
	PruneDatasource(ctx context.Context, datasourceID string, retentionDays int) (int64, error)

	// RunScheduler starts a background goroutine that prunes every data source
	// on the given interval. It runs immediately on startup, then repeats every
	// interval. Cancel the context to stop the scheduler.
	RunScheduler(ctx context.Context, interval time.Duration)
}

type retentionService struct {
	datasources   DatasourceService
	history       QueryHistoryService
	retentionDays int
	now           func() time.Time
	logger        *zap.Logger
}

func NewRetentionService(
	datasources DatasourceService,
	history QueryHistoryService,
	retentionDays int,
	logger *zap.Logger,
) RetentionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &retentionService{
		datasources:   datasources,
		history:       history,
		retentionDays: retentionDays,
		now:           time.Now,
		logger:        logger.Named("retention-service"),
	}
}

var _ RetentionService = (*retentionService)(nil)

func (s *retentionService) PruneDatasource(ctx context.Context, datasourceID string, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = s.retentionDays
	}
	cutoff := s.now().AddDate(0, 0, -retentionDays)

	deleted, err := s.history.PruneOlderThan(ctx, datasourceID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune query history: %w", err)
	}

	if deleted > 0 {
		s.logger.Info("Retention cleanup completed",
			zap.String("datasource_id", datasourceID),
			zap.Int("retention_days", retentionDays),
			zap.Int64("history_deleted", deleted))
	}
	return deleted, nil
}

// RunScheduler starts a background loop that prunes old history for all data sources.
func (s *retentionService) RunScheduler(ctx context.Context, interval time.Duration) {
	go func() {
		s.logger.Info("Retention scheduler started",
			zap.Duration("interval", interval),
			zap.Int("retention_days", s.retentionDays))

		// Run immediately on startup, then at each interval
		s.pruneAll(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Retention scheduler stopped")
				return
			case <-ticker.C:
				s.pruneAll(ctx)
			}
		}
	}()
}

func (s *retentionService) pruneAll(ctx context.Context) {
	for _, ds := range s.datasources.List() {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.PruneDatasource(ctx, ds.ID, 0); err != nil {
			s.logger.Error("Retention scheduler: failed to prune data source",
				zap.String("datasource_id", ds.ID),
				zap.Error(err))
		}
	}
}
