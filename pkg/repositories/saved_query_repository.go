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

type savedQueryRepository struct {
	db Querier
}

// NewSavedQueryRepository creates a PostgreSQL SavedQueryRepository.
func NewSavedQueryRepository(db Querier) SavedQueryRepository {
	return &savedQueryRepository{db: db}
}

var _ SavedQueryRepository = (*savedQueryRepository)(nil)

const savedQueryColumns = `
	id, datasource_id, name, owner, text, conversion, metadata,
	is_public, created_at, updated_at`

func (r *savedQueryRepository) Create(ctx context.Context, query *models.SavedQuery) error {
	now := time.Now()
	query.ID = uuid.New()
	query.CreatedAt = now
	query.UpdatedAt = now

	conversion, metadata, err := marshalSavedQuery(query)
	if err != nil {
		return err
	}

	sql := `
		INSERT INTO nlq_saved_queries (` + savedQueryColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.db.Exec(ctx, sql,
		query.ID, query.DatasourceID, query.Name, query.Owner, query.Text,
		conversion, metadata, query.IsPublic, query.CreatedAt, query.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create saved query: %w", err)
	}
	return nil
}

func (r *savedQueryRepository) Get(ctx context.Context, id uuid.UUID) (*models.SavedQuery, error) {
	sql := `SELECT ` + savedQueryColumns + ` FROM nlq_saved_queries WHERE id = $1`

	q, err := scanSavedQuery(r.db.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, savedQueryNotFound(id)
		}
		return nil, err
	}
	return q, nil
}

func (r *savedQueryRepository) List(ctx context.Context, datasourceID string) ([]*models.SavedQuery, error) {
	sql := `
		SELECT ` + savedQueryColumns + `
		FROM nlq_saved_queries
		WHERE datasource_id = $1
		ORDER BY created_at DESC, id`

	rows, err := r.db.Query(ctx, sql, datasourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved queries: %w", err)
	}
	defer rows.Close()

	queries := make([]*models.SavedQuery, 0)
	for rows.Next() {
		q, err := scanSavedQuery(rows)
		if err != nil {
			return nil, err
		}
		queries = append(queries, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating saved queries: %w", err)
	}
	return queries, nil
}

func (r *savedQueryRepository) Update(ctx context.Context, query *models.SavedQuery) error {
	query.UpdatedAt = time.Now()

	conversion, metadata, err := marshalSavedQuery(query)
	if err != nil {
		return err
	}

	sql := `
		UPDATE nlq_saved_queries
		SET name = $2,
		    text = $3,
		    conversion = $4,
		    metadata = $5,
		    is_public = $6,
		    updated_at = $7
		WHERE id = $1
		RETURNING created_at`

	err = r.db.QueryRow(ctx, sql,
		query.ID, query.Name, query.Text, conversion, metadata, query.IsPublic, query.UpdatedAt,
	).Scan(&query.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return savedQueryNotFound(query.ID)
		}
		return fmt.Errorf("failed to update saved query: %w", err)
	}
	return nil
}

func (r *savedQueryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM nlq_saved_queries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete saved query: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return savedQueryNotFound(id)
	}
	return nil
}

func marshalSavedQuery(q *models.SavedQuery) (conversion, metadata []byte, err error) {
	conversion, err = json.Marshal(q.Conversion)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal conversion: %w", err)
	}
	metadata, err = json.Marshal(q.Metadata)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return conversion, metadata, nil
}

func scanSavedQuery(row pgx.Row) (*models.SavedQuery, error) {
	var q models.SavedQuery
	var conversion, metadata []byte

	err := row.Scan(
		&q.ID, &q.DatasourceID, &q.Name, &q.Owner, &q.Text,
		&conversion, &metadata, &q.IsPublic, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan saved query: %w", err)
	}

	if err := json.Unmarshal(conversion, &q.Conversion); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversion: %w", err)
	}
	if err := json.Unmarshal(metadata, &q.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &q, nil
}
