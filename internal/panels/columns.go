package panels

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/lalith-99/panelwatch/internal/apperr"
	"github.com/lalith-99/panelwatch/internal/changes"
	"github.com/lalith-99/panelwatch/internal/formula"
	"github.com/lalith-99/panelwatch/internal/models"
)

type ColumnInput struct {
	ID           string            `json:"id"`
	Kind         models.ColumnKind `json:"kind"`
	Name         string            `json:"name"`
	DataType     string            `json:"data_type"`
	DataSourceID *uuid.UUID        `json:"data_source_id,omitempty"`
	SourceField  string            `json:"source_field,omitempty"`
	Formula      string            `json:"formula,omitempty"`
	Dependencies []string          `json:"dependencies,omitempty"`
}

// AddColumn creates a column and records column_added.
func (s *Service) AddColumn(ctx context.Context, actor Actor, panelID uuid.UUID, in ColumnInput) (*models.Column, error) {
	var created *models.Column
	_, err := s.mutate(ctx, actor, panelID, func(ctx context.Context, p *models.Panel) (changes.ChangeInput, error) {
		col, err := s.buildColumn(ctx, p, in)
		if err != nil {
			return changes.ChangeInput{}, err
		}

		created, err = s.columns.Create(ctx, col)
		if err != nil {
			return changes.ChangeInput{}, err
		}
		return changes.ChangeInput{
			Type:           models.ChangeColumnAdded,
			AffectedColumn: &created.ID,
			After:          created,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateColumn replaces the definition of an existing column and records
// column_modified. The column id cannot change.
func (s *Service) UpdateColumn(ctx context.Context, actor Actor, panelID uuid.UUID, columnID string, in ColumnInput) (*models.Column, error) {
	if in.ID != "" && in.ID != columnID {
		return nil, apperr.NewValidationError("id", "column id cannot be changed")
	}
	in.ID = columnID

	var updated *models.Column
	_, err := s.mutate(ctx, actor, panelID, func(ctx context.Context, p *models.Panel) (changes.ChangeInput, error) {
		before, err := s.columns.Get(ctx, p.ID, columnID)
		if err != nil {
			return changes.ChangeInput{}, fmt.Errorf("get column: %w", err)
		}
		if before == nil {
			return changes.ChangeInput{}, apperr.NewNotFoundError("column", columnID)
		}

		col, err := s.buildColumn(ctx, p, in)
		if err != nil {
			return changes.ChangeInput{}, err
		}

		updated, err = s.columns.Update(ctx, col)
		if err != nil {
			return changes.ChangeInput{}, fmt.Errorf("update column: %w", err)
		}
		if updated == nil {
			return changes.ChangeInput{}, apperr.NewNotFoundError("column", columnID)
		}
		return changes.ChangeInput{
			Type:           models.ChangeColumnModified,
			AffectedColumn: &updated.ID,
			Before:         before,
			After:          updated,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RemoveColumn deletes a column and records column_removed. A column that
// a calculated column depends on cannot be removed. Views that reference
// it are left untouched; they are notified instead.
func (s *Service) RemoveColumn(ctx context.Context, actor Actor, panelID uuid.UUID, columnID string) error {
	_, err := s.mutate(ctx, actor, panelID, func(ctx context.Context, p *models.Panel) (changes.ChangeInput, error) {
		cols, err := s.columns.ListByPanel(ctx, p.ID)
		if err != nil {
			return changes.ChangeInput{}, fmt.Errorf("list columns: %w", err)
		}

		var removed *models.Column
		var dependents []string
		for i := range cols {
			if cols[i].ID == columnID {
				removed = &cols[i]
				continue
			}
			if slices.Contains(cols[i].Dependencies, columnID) {
				dependents = append(dependents, cols[i].ID)
			}
		}
		if removed == nil {
			return changes.ChangeInput{}, apperr.NewNotFoundError("column", columnID)
		}
		if len(dependents) > 0 {
			return changes.ChangeInput{}, apperr.NewValidationError("column",
				fmt.Sprintf("column %q is used by calculated columns: %s", columnID, strings.Join(dependents, ", ")))
		}

		if _, err := s.columns.Delete(ctx, p.ID, columnID); err != nil {
			return changes.ChangeInput{}, fmt.Errorf("delete column: %w", err)
		}
		return changes.ChangeInput{
			Type:           models.ChangeColumnRemoved,
			AffectedColumn: &removed.ID,
			Before:         removed,
		}, nil
	})
	return err
}

// buildColumn validates in against the locked panel and returns the
// column to store. For calculated columns the identifiers found in the
// formula are merged into the declared dependencies.
func (s *Service) buildColumn(ctx context.Context, p *models.Panel, in ColumnInput) (*models.Column, error) {
	if in.ID == "" {
		return nil, apperr.NewValidationError("id", "must not be empty")
	}
	if in.Name == "" {
		in.Name = in.ID
	}

	col := &models.Column{
		PanelID:  p.ID,
		ID:       in.ID,
		Kind:     in.Kind,
		Name:     in.Name,
		DataType: in.DataType,
	}

	switch in.Kind {
	case models.ColumnKindBase:
		if in.Formula != "" || len(in.Dependencies) > 0 {
			return nil, apperr.NewValidationError("formula", "base columns have no formula or dependencies")
		}
		if in.DataSourceID == nil {
			return nil, apperr.NewValidationError("data_source_id", "required for base columns")
		}
		if in.SourceField == "" {
			return nil, apperr.NewValidationError("source_field", "required for base columns")
		}
		ds, err := s.sources.GetByID(ctx, p.TenantID, *in.DataSourceID)
		if err != nil {
			return nil, fmt.Errorf("get data source: %w", err)
		}
		if ds == nil || ds.PanelID == nil || *ds.PanelID != p.ID {
			return nil, apperr.NewValidationError("data_source_id", "data source does not belong to this panel")
		}
		col.DataSourceID = in.DataSourceID
		col.SourceField = in.SourceField
		col.Dependencies = []string{}

	case models.ColumnKindCalculated:
		if in.DataSourceID != nil || in.SourceField != "" {
			return nil, apperr.NewValidationError("data_source_id", "calculated columns have no data source")
		}
		if strings.TrimSpace(in.Formula) == "" {
			return nil, apperr.NewValidationError("formula", "required for calculated columns")
		}
		deps, err := formula.MergeDependencies(in.Formula, in.Dependencies)
		if err != nil {
			return nil, apperr.NewValidationError("formula", err.Error())
		}
		if err := s.checkDependencies(ctx, p.ID, in.ID, deps); err != nil {
			return nil, err
		}
		col.Formula = in.Formula
		col.Dependencies = deps

	default:
		return nil, apperr.NewValidationError("kind", fmt.Sprintf("unknown column kind %q", in.Kind))
	}
	return col, nil
}

// checkDependencies verifies every dependency is another column of the
// panel and that none of them leads back to columnID.
func (s *Service) checkDependencies(ctx context.Context, panelID uuid.UUID, columnID string, deps []string) error {
	cols, err := s.columns.ListByPanel(ctx, panelID)
	if err != nil {
		return fmt.Errorf("list columns: %w", err)
	}
	graph := make(map[string][]string, len(cols))
	for _, c := range cols {
		graph[c.ID] = c.Dependencies
	}

	for _, dep := range deps {
		if dep == columnID {
			return apperr.NewValidationError("dependencies", fmt.Sprintf("column %q cannot depend on itself", columnID))
		}
		if _, ok := graph[dep]; !ok {
			return apperr.NewValidationError("dependencies", fmt.Sprintf("unknown column %q", dep))
		}
	}

	graph[columnID] = deps
	if cycle := findCycle(graph, columnID); cycle != nil {
		return apperr.NewValidationError("dependencies",
			fmt.Sprintf("circular dependency: %s", strings.Join(cycle, " -> ")))
	}
	return nil
}

// findCycle returns a dependency path from start back to start, or nil.
func findCycle(graph map[string][]string, start string) []string {
	visited := map[string]bool{}
	var path []string

	var walk func(id string) bool
	walk = func(id string) bool {
		path = append(path, id)
		for _, dep := range graph[id] {
			if dep == start {
				path = append(path, dep)
				return true
			}
			if visited[dep] {
				continue
			}
			visited[dep] = true
			if walk(dep) {
				return true
			}
		}
		path = path[:len(path)-1]
		return false
	}

	if walk(start) {
		return path
	}
	return nil
}
