// Package panels applies structural mutations to panels and manages the
// lifecycle of the views built on them.
//
// Every structural mutation runs in one transaction that locks the panel
// row, applies the change and records it in the change ledger. Once the
// transaction commits the recorded change is handed to the Dispatcher,
// which classifies and notifies outside the caller's transaction.
package panels

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/panelwatch/internal/apperr"
	"github.com/lalith-99/panelwatch/internal/changes"
	"github.com/lalith-99/panelwatch/internal/models"
	"github.com/lalith-99/panelwatch/internal/repository"
	"go.uber.org/zap"
)

// Actor is the authenticated caller.
type Actor struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
}

// Dispatcher receives each change after its transaction committed.
type Dispatcher interface {
	Dispatch(ctx context.Context, change *models.PanelChange) error
}

type Service struct {
	tx       repository.TxManager
	panels   repository.PanelRepository
	columns  repository.ColumnRepository
	sources  repository.DataSourceRepository
	views    repository.ViewRepository
	recorder *changes.Recorder
	dispatch Dispatcher
	now      func() time.Time
	logger   *zap.Logger
}

func NewService(stores repository.Stores, recorder *changes.Recorder, dispatch Dispatcher, logger *zap.Logger) *Service {
	return &Service{
		tx:       stores.Tx,
		panels:   stores.Panels,
		columns:  stores.Columns,
		sources:  stores.DataSources,
		views:    stores.Views,
		recorder: recorder,
		dispatch: dispatch,
		now:      time.Now,
		logger:   logger,
	}
}

type PanelInput struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	CohortRule  models.CohortRule `json:"cohort_rule"`
}

func (s *Service) CreatePanel(ctx context.Context, actor Actor, in PanelInput) (*models.Panel, error) {
	if in.Name == "" {
		return nil, apperr.NewValidationError("name", "must not be empty")
	}
	if in.CohortRule.Logic == "" {
		in.CohortRule.Logic = models.CohortLogicAnd
	}
	if err := validateCohortRule(in.CohortRule); err != nil {
		return nil, err
	}
	if in.CohortRule.Conditions == nil {
		in.CohortRule.Conditions = []models.CohortCondition{}
	}

	p, err := s.panels.Create(ctx, &models.Panel{
		TenantID:    actor.TenantID,
		UserID:      actor.UserID,
		Name:        in.Name,
		Description: in.Description,
		CohortRule:  in.CohortRule,
	})
	if err != nil {
		return nil, fmt.Errorf("create panel: %w", err)
	}

	s.logger.Info("panel created",
		zap.String("panel_id", p.ID.String()),
		zap.String("tenant_id", p.TenantID.String()),
	)
	return p, nil
}

// GetPanel returns a panel of the actor's tenant.
func (s *Service) GetPanel(ctx context.Context, actor Actor, panelID uuid.UUID) (*models.Panel, error) {
	p, err := s.panels.GetByID(ctx, actor.TenantID, panelID)
	if err != nil {
		return nil, fmt.Errorf("get panel: %w", err)
	}
	if p == nil {
		return nil, apperr.NewNotFoundError("panel", panelID.String())
	}
	return p, nil
}

func (s *Service) ListColumns(ctx context.Context, actor Actor, panelID uuid.UUID) ([]models.Column, error) {
	if _, err := s.GetPanel(ctx, actor, panelID); err != nil {
		return nil, err
	}
	cols, err := s.columns.ListByPanel(ctx, panelID)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	return cols, nil
}

// DeletePanel removes the panel with its columns, views and their
// notifications. Its data sources are detached and its change history is
// kept.
func (s *Service) DeletePanel(ctx context.Context, actor Actor, panelID uuid.UUID) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.lockOwned(ctx, actor, panelID); err != nil {
			return err
		}
		deleted, err := s.panels.Delete(ctx, actor.TenantID, panelID)
		if err != nil {
			return fmt.Errorf("delete panel: %w", err)
		}
		if !deleted {
			return apperr.NewNotFoundError("panel", panelID.String())
		}
		s.logger.Info("panel deleted", zap.String("panel_id", panelID.String()))
		return nil
	})
}

func (s *Service) UpdateCohortRule(ctx context.Context, actor Actor, panelID uuid.UUID, rule models.CohortRule) (*models.Panel, error) {
	if err := validateCohortRule(rule); err != nil {
		return nil, err
	}
	if rule.Conditions == nil {
		rule.Conditions = []models.CohortCondition{}
	}

	var updated *models.Panel
	_, err := s.mutate(ctx, actor, panelID, func(ctx context.Context, p *models.Panel) (changes.ChangeInput, error) {
		var err error
		updated, err = s.panels.UpdateCohortRule(ctx, p.ID, rule)
		if err != nil {
			return changes.ChangeInput{}, fmt.Errorf("update cohort rule: %w", err)
		}
		if updated == nil {
			return changes.ChangeInput{}, apperr.NewNotFoundError("panel", p.ID.String())
		}
		return changes.ChangeInput{
			Type:   models.ChangeCohortChanged,
			Before: p.CohortRule,
			After:  updated.CohortRule,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// mutateFunc applies a structural mutation to the locked panel and
// describes it for the ledger.
type mutateFunc func(ctx context.Context, p *models.Panel) (changes.ChangeInput, error)

// mutate runs fn and the change record in one transaction holding the
// panel row lock, then dispatches the committed change.
func (s *Service) mutate(ctx context.Context, actor Actor, panelID uuid.UUID, fn mutateFunc) (*models.PanelChange, error) {
	var change *models.PanelChange

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.lockOwned(ctx, actor, panelID)
		if err != nil {
			return err
		}

		in, err := fn(ctx, p)
		if err != nil {
			return err
		}
		in.PanelID = p.ID

		change, err = s.recorder.RecordChange(ctx, in)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, change)
	return change, nil
}

// afterCommit hands the change to the dispatcher. The change is already
// durable, so a dispatch failure is logged and left for a replay.
func (s *Service) afterCommit(ctx context.Context, change *models.PanelChange) {
	if s.dispatch == nil {
		return
	}
	if err := s.dispatch.Dispatch(context.WithoutCancel(ctx), change); err != nil {
		s.logger.Error("dispatch panel change",
			zap.Int64("change_id", change.ID),
			zap.String("panel_id", change.PanelID.String()),
			zap.Error(err),
		)
	}
}

// lockOwned locks the panel and checks the actor owns it. Panels of other
// owners are reported as not found.
func (s *Service) lockOwned(ctx context.Context, actor Actor, panelID uuid.UUID) (*models.Panel, error) {
	p, err := s.panels.LockForUpdate(ctx, actor.TenantID, panelID)
	if err != nil {
		return nil, fmt.Errorf("lock panel: %w", err)
	}
	if p == nil || p.UserID != actor.UserID {
		return nil, apperr.NewNotFoundError("panel", panelID.String())
	}
	return p, nil
}
