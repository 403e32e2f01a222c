// Package repositories persists query history and saved queries, in memory or
// in PostgreSQL.
package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/ekaya-nlq/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

const stageStore = "store"

// QueryHistoryRepository provides append-only access to query history.
type QueryHistoryRepository interface {
	// Append records entry after every record appended before it.
	Append(ctx context.Context, entry *models.QueryHistory) error
	// List returns the most recent limit entries of a data source in append
	// order. A non-positive limit returns all entries.
	List(ctx context.Context, datasourceID string, limit int) ([]*models.QueryHistory, error)
	Get(ctx context.Context, id uuid.UUID) (*models.QueryHistory, error)
	// DeleteOlderThan removes entries created before cutoff.
	DeleteOlderThan(ctx context.Context, datasourceID string, cutoff time.Time) (int64, error)
}

// SavedQueryRepository provides data access for saved queries.
type SavedQueryRepository interface {
	Create(ctx context.Context, query *models.SavedQuery) error
	Get(ctx context.Context, id uuid.UUID) (*models.SavedQuery, error)
	List(ctx context.Context, datasourceID string) ([]*models.SavedQuery, error)
	Update(ctx context.Context, query *models.SavedQuery) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Querier is the subset of pgxpool.Pool the PostgreSQL repositories use.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func historyNotFound(id uuid.UUID) error {
	return apperrors.Newf(apperrors.KindNotFound, stageStore, "query history entry %s not found", id)
}

func savedQueryNotFound(id uuid.UUID) error {
	return apperrors.Newf(apperrors.KindNotFound, stageStore, "saved query %s not found", id)
}
