// Package impact decides how a panel change affects the published views
// built on that panel.
package impact

import (
	"context"
	"fmt"

	"github.com/lalith-99/panelwatch/internal/models"
	"github.com/lalith-99/panelwatch/internal/repository"
)

// Classified pairs a dependent view with the impact of one change on it.
type Classified struct {
	View   models.View        `json:"view"`
	Impact models.ImpactLevel `json:"impact"`
}

// Classify is the pure classification rule. It returns one entry per
// published view of the change's panel, in the order views are given.
// Unpublished views and views of other panels are skipped. Publication
// time is not compared with the change: the dependent set is whatever is
// published when the change is processed, so a replay reaches views that
// were republished since.
//
//	column_removed, column_modified  breaking if the view references the column
//	column_modified                  info otherwise
//	column_removed                   info otherwise
//	column_added                     info
//	source_changed, cohort_changed   warning
func Classify(change models.PanelChange, views []models.View) []Classified {
	out := make([]Classified, 0, len(views))
	for _, v := range views {
		if !v.IsPublished || v.PanelID != change.PanelID {
			continue
		}
		level := Level(change, v)
		if !level.Valid() {
			continue
		}
		out = append(out, Classified{View: v, Impact: level})
	}
	return out
}

// Level is the impact of change on a single view. Each rule contributes a
// candidate level and the most severe one wins. An unknown change type
// yields "".
func Level(change models.PanelChange, v models.View) models.ImpactLevel {
	var candidates []models.ImpactLevel

	switch change.ChangeType {
	case models.ChangeColumnRemoved, models.ChangeColumnModified:
		if v.References(change.AffectedColumnID()) {
			candidates = append(candidates, models.ImpactBreaking)
		} else {
			candidates = append(candidates, models.ImpactInfo)
		}
	case models.ChangeColumnAdded:
		candidates = append(candidates, models.ImpactInfo)
	case models.ChangeSourceChanged, models.ChangeCohortChanged:
		candidates = append(candidates, models.ImpactWarning)
	}

	return models.MaxImpact(candidates...)
}

// Classifier loads the dependent views of a change and classifies them.
type Classifier struct {
	views repository.ViewRepository
}

func NewClassifier(views repository.ViewRepository) *Classifier {
	return &Classifier{views: views}
}

// ClassifyImpact reads the panel's published views and classifies them.
// The result only depends on the change and the stored view definitions,
// so a replay yields the same pairs unless views were since unpublished
// or deleted.
func (c *Classifier) ClassifyImpact(ctx context.Context, change models.PanelChange) ([]Classified, error) {
	views, err := c.views.ListPublishedByPanel(ctx, change.PanelID)
	if err != nil {
		return nil, fmt.Errorf("list published views: %w", err)
	}
	return Classify(change, views), nil
}
