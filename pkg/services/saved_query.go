package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-nlq/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
	"github.com/ekaya-inc/ekaya-nlq/pkg/sql"
)

func (s *pipelineService) requireSavedQueries() error {
	if s.saved == nil {
		return apperrors.New(apperrors.KindInternal, stageSaved, "saved queries are not configured")
	}
	return nil
}

// validateConversion rejects conversions that could not be executed later.
func validateConversion(conv *models.SqlConversionResult) error {
	if conv == nil {
		return apperrors.Validation(stageSaved, "conversion is required")
	}
	if _, err := sql.NormalizeStatement(conv.SQL); err != nil {
		return apperrors.Wrap(err, apperrors.KindValidation, stageSaved, err.Error())
	}
	return nil
}

func (s *pipelineService) SaveQuery(ctx context.Context, name string, req QueryRequest, conv *models.SqlConversionResult) (uuid.UUID, error) {
	if err := s.requireSavedQueries(); err != nil {
		return uuid.Nil, err
	}
	if strings.TrimSpace(name) == "" {
		return uuid.Nil, apperrors.Validation(stageSaved, "saved query name is required")
	}
	if _, err := s.datasources.Get(req.DatasourceID); err != nil {
		return uuid.Nil, err
	}
	if err := validateConversion(conv); err != nil {
		return uuid.Nil, err
	}

	md := s.metadata(req.Metadata)
	md.QueryID = ""
	query := &models.SavedQuery{
		DatasourceID: req.DatasourceID,
		Name:         name,
		Owner:        req.Owner,
		Text:         req.Text,
		Conversion:   *conv.Clone(),
		Metadata:     md,
	}
	if err := s.saved.Create(ctx, query); err != nil {
		return uuid.Nil, err
	}

	s.logger.Info("Saved query",
		zap.String("id", query.ID.String()),
		zap.String("datasource_id", query.DatasourceID),
		zap.String("name", name))
	return query.ID, nil
}

// visible reports whether caller may read or run q.
func visible(q *models.SavedQuery, caller string) bool {
	return q.IsPublic || q.Owner == "" || q.Owner == caller
}

func (s *pipelineService) ExecuteSavedQuery(ctx context.Context, id uuid.UUID, caller string) (*models.QueryResult, error) {
	if err := s.requireSavedQueries(); err != nil {
		return nil, err
	}
	q, err := s.saved.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !visible(q, caller) {
		return nil, apperrors.Newf(apperrors.KindForbidden, stageSaved, "saved query %s is private", id)
	}

	md := s.metadata(&q.Metadata)
	md.QueryID = ""
	return s.run(ctx, execution{
		datasourceID: q.DatasourceID,
		text:         q.Text,
		owner:        caller,
		conversion:   &q.Conversion,
		metadata:     md,
	})
}

func (s *pipelineService) ListSavedQueries(ctx context.Context, datasourceID, caller string) ([]*models.SavedQuery, error) {
	if err := s.requireSavedQueries(); err != nil {
		return nil, err
	}
	if _, err := s.datasources.Get(datasourceID); err != nil {
		return nil, err
	}
	all, err := s.saved.List(ctx, datasourceID)
	if err != nil {
		return nil, err
	}
	out := make([]*models.SavedQuery, 0, len(all))
	for _, q := range all {
		if visible(q, caller) {
			out = append(out, q)
		}
	}
	return out, nil
}

// owned loads a saved query and checks that owner may change it.
func (s *pipelineService) owned(ctx context.Context, id uuid.UUID, owner string) (*models.SavedQuery, error) {
	if err := s.requireSavedQueries(); err != nil {
		return nil, err
	}
	q, err := s.saved.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if q.Owner != owner {
		return nil, apperrors.Newf(apperrors.KindForbidden, stageSaved, "saved query %s belongs to another user", id)
	}
	return q, nil
}

func (s *pipelineService) UpdateSavedQuery(ctx context.Context, id uuid.UUID, owner string, update models.SavedQueryUpdate) (*models.SavedQuery, error) {
	q, err := s.owned(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	if update.Name != nil && strings.TrimSpace(*update.Name) == "" {
		return nil, apperrors.Validation(stageSaved, "saved query name is required")
	}
	if update.Conversion != nil {
		if err := validateConversion(update.Conversion); err != nil {
			return nil, err
		}
	}

	update.Apply(q)
	if err := s.saved.Update(ctx, q); err != nil {
		return nil, err
	}
	s.logger.Info("Updated saved query", zap.String("id", id.String()))
	return q, nil
}

func (s *pipelineService) DeleteSavedQuery(ctx context.Context, id uuid.UUID, owner string) error {
	if _, err := s.owned(ctx, id, owner); err != nil {
		return err
	}
	if err := s.saved.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Deleted saved query", zap.String("id", id.String()))
	return nil
}
