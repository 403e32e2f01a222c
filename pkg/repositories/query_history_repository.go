package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

type queryHistoryRepository struct {
	db Querier
}

// NewQueryHistoryRepository creates a PostgreSQL QueryHistoryRepository.
func NewQueryHistoryRepository(db Querier) QueryHistoryRepository {
	return &queryHistoryRepository{db: db}
}

var _ QueryHistoryRepository = (*queryHistoryRepository)(nil)

const historyColumns = `
	id, datasource_id, query_id, owner, text, conversion,
	status, error_kind, row_count, duration_ms,
	query_type, tables_used, aggregations_used,
	executed_at, completed_at, created_at`

func (r *queryHistoryRepository) Append(ctx context.Context, entry *models.QueryHistory) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	conversion, err := json.Marshal(entry.Conversion)
	if err != nil {
		return fmt.Errorf("failed to marshal conversion: %w", err)
	}

	query := `
		INSERT INTO nlq_query_history (` + historyColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err = r.db.Exec(ctx, query,
		entry.ID,
		entry.DatasourceID,
		entry.QueryID,
		entry.Owner,
		entry.Text,
		conversion,
		entry.Status,
		entry.ErrorKind,
		entry.RowCount,
		entry.DurationMs,
		entry.QueryType,
		nonNil(entry.TablesUsed),
		nonNil(entry.AggregationsUsed),
		entry.ExecutedAt,
		entry.CompletedAt,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append query history entry: %w", err)
	}
	return nil
}

func (r *queryHistoryRepository) List(ctx context.Context, datasourceID string, limit int) ([]*models.QueryHistory, error) {
	// seq preserves append order; the inner query picks the newest entries.
	query := `
		SELECT ` + historyColumns + `
		FROM (
			SELECT seq, ` + historyColumns + `
			FROM nlq_query_history
			WHERE datasource_id = $1
			ORDER BY seq DESC
			LIMIT $2
		) recent
		ORDER BY seq ASC`

	var maxRows any
	if limit > 0 {
		maxRows = limit
	}

	rows, err := r.db.Query(ctx, query, datasourceID, maxRows)
	if err != nil {
		return nil, fmt.Errorf("failed to list query history: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.QueryHistory, 0)
	for rows.Next() {
		entry, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating query history: %w", err)
	}
	return entries, nil
}

func (r *queryHistoryRepository) Get(ctx context.Context, id uuid.UUID) (*models.QueryHistory, error) {
	query := `SELECT ` + historyColumns + ` FROM nlq_query_history WHERE id = $1`

	entry, err := scanHistory(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, historyNotFound(id)
		}
		return nil, err
	}
	return entry, nil
}

func (r *queryHistoryRepository) DeleteOlderThan(ctx context.Context, datasourceID string, cutoff time.Time) (int64, error) {
	query := `DELETE FROM nlq_query_history WHERE datasource_id = $1 AND created_at < $2`
	tag, err := r.db.Exec(ctx, query, datasourceID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old query history entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanHistory(row pgx.Row) (*models.QueryHistory, error) {
	var entry models.QueryHistory
	var conversion []byte

	err := row.Scan(
		&entry.ID,
		&entry.DatasourceID,
		&entry.QueryID,
		&entry.Owner,
		&entry.Text,
		&conversion,
		&entry.Status,
		&entry.ErrorKind,
		&entry.RowCount,
		&entry.DurationMs,
		&entry.QueryType,
		&entry.TablesUsed,
		&entry.AggregationsUsed,
		&entry.ExecutedAt,
		&entry.CompletedAt,
		&entry.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan query history entry: %w", err)
	}

	if err := json.Unmarshal(conversion, &entry.Conversion); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversion: %w", err)
	}
	return &entry, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
