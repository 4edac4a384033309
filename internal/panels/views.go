package panels

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/panelwatch/internal/apperr"
	"github.com/lalith-99/panelwatch/internal/models"
	"go.uber.org/zap"
)

type ViewInput struct {
	Name           string              `json:"name"`
	VisibleColumns []string            `json:"visible_columns"`
	Filters        []models.ViewFilter `json:"filters"`
	Sorts          []models.ViewSort   `json:"sorts"`
}

// CreateView stores an unpublished view owned by the actor. Every column
// the view references must exist when the view is created; afterwards the
// view keeps its snapshot even if the panel changes.
func (s *Service) CreateView(ctx context.Context, actor Actor, panelID uuid.UUID, in ViewInput) (*models.View, error) {
	if in.Name == "" {
		return nil, apperr.NewValidationError("name", "must not be empty")
	}
	if len(in.VisibleColumns) == 0 {
		return nil, apperr.NewValidationError("visible_columns", "at least one column is required")
	}
	for i, f := range in.Filters {
		if f.Operator == "" {
			return nil, apperr.NewValidationError(fmt.Sprintf("filters[%d].operator", i), "must not be empty")
		}
	}
	for i, srt := range in.Sorts {
		if srt.Direction != models.SortAsc && srt.Direction != models.SortDesc {
			return nil, apperr.NewValidationError(fmt.Sprintf("sorts[%d].direction", i), "must be asc or desc")
		}
	}

	p, err := s.GetPanel(ctx, actor, panelID)
	if err != nil {
		return nil, err
	}

	cols, err := s.columns.ListByPanel(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	known := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		known[c.ID] = struct{}{}
	}

	v := &models.View{
		TenantID:       p.TenantID,
		PanelID:        p.ID,
		OwnerUserID:    actor.UserID,
		Name:           in.Name,
		VisibleColumns: in.VisibleColumns,
		Filters:        in.Filters,
		Sorts:          in.Sorts,
	}
	if v.Filters == nil {
		v.Filters = []models.ViewFilter{}
	}
	if v.Sorts == nil {
		v.Sorts = []models.ViewSort{}
	}
	for id := range v.ReferencedColumns() {
		if _, ok := known[id]; !ok {
			return nil, apperr.NewValidationError("visible_columns", fmt.Sprintf("unknown column %q", id))
		}
	}

	created, err := s.views.Create(ctx, v)
	if err != nil {
		return nil, fmt.Errorf("create view: %w", err)
	}
	s.logger.Info("view created",
		zap.String("view_id", created.ID.String()),
		zap.String("panel_id", created.PanelID.String()),
	)
	return created, nil
}

func (s *Service) GetView(ctx context.Context, actor Actor, viewID uuid.UUID) (*models.View, error) {
	v, err := s.views.GetByID(ctx, actor.TenantID, viewID)
	if err != nil {
		return nil, fmt.Errorf("get view: %w", err)
	}
	if v == nil {
		return nil, apperr.NewNotFoundError("view", viewID.String())
	}
	return v, nil
}

// PublishView makes the view a notification target from now on. Changes
// recorded before publication are not delivered to it. Publishing a
// published view is a no-op.
func (s *Service) PublishView(ctx context.Context, actor Actor, viewID uuid.UUID) (*models.View, error) {
	return s.setPublished(ctx, actor, viewID, true)
}

func (s *Service) UnpublishView(ctx context.Context, actor Actor, viewID uuid.UUID) (*models.View, error) {
	return s.setPublished(ctx, actor, viewID, false)
}

func (s *Service) setPublished(ctx context.Context, actor Actor, viewID uuid.UUID, published bool) (*models.View, error) {
	v, err := s.ownedView(ctx, actor, viewID)
	if err != nil {
		return nil, err
	}
	if v.IsPublished == published {
		return v, nil
	}

	updated, err := s.views.SetPublished(ctx, v.ID, published, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("set view published: %w", err)
	}
	if updated == nil {
		return nil, apperr.NewNotFoundError("view", viewID.String())
	}
	s.logger.Info("view publication changed",
		zap.String("view_id", updated.ID.String()),
		zap.Bool("published", updated.IsPublished),
	)
	return updated, nil
}

// DeleteView removes the view with its filters, sorts and notifications.
func (s *Service) DeleteView(ctx context.Context, actor Actor, viewID uuid.UUID) error {
	v, err := s.ownedView(ctx, actor, viewID)
	if err != nil {
		return err
	}
	deleted, err := s.views.Delete(ctx, actor.TenantID, v.ID)
	if err != nil {
		return fmt.Errorf("delete view: %w", err)
	}
	if !deleted {
		return apperr.NewNotFoundError("view", viewID.String())
	}
	return nil
}

// ownedView returns the view if the actor owns it. Views of other users
// in the tenant are readable through GetView but not writable.
func (s *Service) ownedView(ctx context.Context, actor Actor, viewID uuid.UUID) (*models.View, error) {
	v, err := s.GetView(ctx, actor, viewID)
	if err != nil {
		return nil, err
	}
	if v.OwnerUserID != actor.UserID {
		return nil, apperr.NewNotFoundError("view", viewID.String())
	}
	return v, nil
}
