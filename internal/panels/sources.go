package panels

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/panelwatch/internal/apperr"
	"github.com/lalith-99/panelwatch/internal/changes"
	"github.com/lalith-99/panelwatch/internal/models"
)

type DataSourceInput struct {
	Name     string                `json:"name"`
	Type     models.DataSourceType `json:"type"`
	Config   json.RawMessage       `json:"config,omitempty"`
	LastSync *time.Time            `json:"last_sync,omitempty"`
}

func (in DataSourceInput) validate() error {
	if in.Name == "" {
		return apperr.NewValidationError("name", "must not be empty")
	}
	if !in.Type.Valid() {
		return apperr.NewValidationError("type", fmt.Sprintf("unknown data source type %q", in.Type))
	}
	if len(in.Config) > 0 && !json.Valid(in.Config) {
		return apperr.NewValidationError("config", "must be valid JSON")
	}
	return nil
}

// CreateDataSource attaches a new data source to a panel. No view depends
// on a data source before a column reads from it, so nothing is recorded.
func (s *Service) CreateDataSource(ctx context.Context, actor Actor, panelID uuid.UUID, in DataSourceInput) (*models.DataSource, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var created *models.DataSource
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.lockOwned(ctx, actor, panelID)
		if err != nil {
			return err
		}
		created, err = s.sources.Create(ctx, &models.DataSource{
			TenantID: p.TenantID,
			PanelID:  &p.ID,
			Name:     in.Name,
			Type:     in.Type,
			Config:   in.Config,
			LastSync: in.LastSync,
		})
		if err != nil {
			return fmt.Errorf("create data source: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) GetDataSource(ctx context.Context, actor Actor, dataSourceID uuid.UUID) (*models.DataSource, error) {
	ds, err := s.sources.GetByID(ctx, actor.TenantID, dataSourceID)
	if err != nil {
		return nil, fmt.Errorf("get data source: %w", err)
	}
	if ds == nil {
		return nil, apperr.NewNotFoundError("data_source", dataSourceID.String())
	}
	return ds, nil
}

// UpdateDataSource replaces a data source definition and records
// source_changed on its panel. Detached data sources are read only.
func (s *Service) UpdateDataSource(ctx context.Context, actor Actor, dataSourceID uuid.UUID, in DataSourceInput) (*models.DataSource, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	current, err := s.GetDataSource(ctx, actor, dataSourceID)
	if err != nil {
		return nil, err
	}
	if current.PanelID == nil {
		return nil, apperr.NewValidationError("data_source", "data source is detached from its panel")
	}

	var updated *models.DataSource
	_, err = s.mutate(ctx, actor, *current.PanelID, func(ctx context.Context, p *models.Panel) (changes.ChangeInput, error) {
		// re-read under the panel lock
		before, err := s.sources.GetByID(ctx, p.TenantID, dataSourceID)
		if err != nil {
			return changes.ChangeInput{}, fmt.Errorf("get data source: %w", err)
		}
		if before == nil || before.PanelID == nil || *before.PanelID != p.ID {
			return changes.ChangeInput{}, apperr.NewNotFoundError("data_source", dataSourceID.String())
		}

		next := *before
		next.Name = in.Name
		next.Type = in.Type
		next.Config = in.Config
		next.LastSync = in.LastSync

		updated, err = s.sources.Update(ctx, &next)
		if err != nil {
			return changes.ChangeInput{}, fmt.Errorf("update data source: %w", err)
		}
		if updated == nil {
			return changes.ChangeInput{}, apperr.NewNotFoundError("data_source", dataSourceID.String())
		}
		return changes.ChangeInput{
			Type:   models.ChangeSourceChanged,
			Before: before,
			After:  updated,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func validateCohortRule(rule models.CohortRule) error {
	if rule.Logic != models.CohortLogicAnd && rule.Logic != models.CohortLogicOr {
		return apperr.NewValidationError("cohort_rule.logic", fmt.Sprintf("must be %s or %s", models.CohortLogicAnd, models.CohortLogicOr))
	}
	for i, c := range rule.Conditions {
		if c.Field == "" || c.Operator == "" {
			return apperr.NewValidationError(fmt.Sprintf("cohort_rule.conditions[%d]", i), "field and operator are required")
		}
		if len(c.Value) > 0 && !json.Valid(c.Value) {
			return apperr.NewValidationError(fmt.Sprintf("cohort_rule.conditions[%d].value", i), "must be valid JSON")
		}
	}
	return nil
}
