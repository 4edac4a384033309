// Package memory is an in-process implementation of the repository
// interfaces, used by tests and by the server when store=memory.
//
// Transactions take the store's write lock for their whole duration and
// work on a copy of the state that replaces the live state on commit, so
// a failed transaction leaves nothing behind.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/panelwatch/internal/models"
	"github.com/lalith-99/panelwatch/internal/repository"
)

var (
	_ repository.TxManager              = (*Store)(nil)
	_ repository.PanelRepository        = (*PanelStore)(nil)
	_ repository.ColumnRepository       = (*ColumnStore)(nil)
	_ repository.DataSourceRepository   = (*DataSourceStore)(nil)
	_ repository.ViewRepository         = (*ViewStore)(nil)
	_ repository.ChangeRepository       = (*ChangeStore)(nil)
	_ repository.NotificationRepository = (*NotificationStore)(nil)
)

type state struct {
	panels        map[uuid.UUID]models.Panel
	columns       map[uuid.UUID][]models.Column
	dataSources   map[uuid.UUID]models.DataSource
	views         map[uuid.UUID]models.View
	changes       []models.PanelChange
	lastChangeID  int64
	notifications []models.ViewNotification
}

func newState() state {
	return state{
		panels:      map[uuid.UUID]models.Panel{},
		columns:     map[uuid.UUID][]models.Column{},
		dataSources: map[uuid.UUID]models.DataSource{},
		views:       map[uuid.UUID]models.View{},
	}
}

// clone copies the containers. Stored values are never mutated in place
// (writers replace them), so the values themselves can be shared.
func (st state) clone() state {
	return state{
		panels:        maps.Clone(st.panels),
		columns:       maps.Clone(st.columns),
		dataSources:   maps.Clone(st.dataSources),
		views:         maps.Clone(st.views),
		changes:       slices.Clone(st.changes),
		lastChangeID:  st.lastChangeID,
		notifications: slices.Clone(st.notifications),
	}
}

type Option func(*Store)

// WithClock overrides time.Now, mainly for tests that filter on time.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

type Store struct {
	mu  sync.RWMutex
	st  state
	now func() time.Time
}

func New(opts ...Option) *Store {
	s := &Store{st: newState(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type txKey struct{}

type txState struct {
	owner *Store
	st    *state
}

func (s *Store) txFrom(ctx context.Context) *state {
	tx, ok := ctx.Value(txKey{}).(*txState)
	if !ok || tx.owner != s {
		return nil
	}
	return tx.st
}

// WithinTx implements repository.TxManager. Nested calls join the outer
// transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txFrom(ctx) != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.st.clone()
	if err := fn(context.WithValue(ctx, txKey{}, &txState{owner: s, st: &working})); err != nil {
		return err
	}
	s.st = working
	return nil
}

func (s *Store) read(ctx context.Context, fn func(st *state) error) error {
	if st := s.txFrom(ctx); st != nil {
		return fn(st)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&s.st)
}

func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	if st := s.txFrom(ctx); st != nil {
		return fn(st)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.st.clone()
	if err := fn(&working); err != nil {
		return err
	}
	s.st = working
	return nil
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

// Per-entity views over the same state. They share the store's lock and
// transactions.
func (s *Store) Panels() *PanelStore               { return &PanelStore{s} }
func (s *Store) Columns() *ColumnStore             { return &ColumnStore{s} }
func (s *Store) DataSources() *DataSourceStore     { return &DataSourceStore{s} }
func (s *Store) Views() *ViewStore                 { return &ViewStore{s} }
func (s *Store) Changes() *ChangeStore             { return &ChangeStore{s} }
func (s *Store) Notifications() *NotificationStore { return &NotificationStore{s} }

// Repositories bundles the store behind the repository interfaces.
func (s *Store) Repositories() repository.Stores {
	return repository.Stores{
		Tx:            s,
		Panels:        s.Panels(),
		Columns:       s.Columns(),
		DataSources:   s.DataSources(),
		Views:         s.Views(),
		Changes:       s.Changes(),
		Notifications: s.Notifications(),
	}
}

func cloneBytes[T ~[]byte](b T) T {
	if b == nil {
		return nil
	}
	return slices.Clone(b)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func clonePanel(p models.Panel) *models.Panel {
	p.CohortRule.Conditions = slices.Clone(p.CohortRule.Conditions)
	for i := range p.CohortRule.Conditions {
		p.CohortRule.Conditions[i].Value = cloneBytes(p.CohortRule.Conditions[i].Value)
	}
	return &p
}

func cloneColumn(c models.Column) models.Column {
	c.Dependencies = slices.Clone(c.Dependencies)
	if c.DataSourceID != nil {
		id := *c.DataSourceID
		c.DataSourceID = &id
	}
	return c
}

func cloneDataSource(ds models.DataSource) *models.DataSource {
	ds.Config = cloneBytes(ds.Config)
	ds.LastSync = cloneTime(ds.LastSync)
	if ds.PanelID != nil {
		id := *ds.PanelID
		ds.PanelID = &id
	}
	return &ds
}

func cloneView(v models.View) models.View {
	v.VisibleColumns = slices.Clone(v.VisibleColumns)
	v.Filters = slices.Clone(v.Filters)
	for i := range v.Filters {
		v.Filters[i].Value = cloneBytes(v.Filters[i].Value)
	}
	v.Sorts = slices.Clone(v.Sorts)
	v.PublishedAt = cloneTime(v.PublishedAt)
	return v
}

func cloneChange(c models.PanelChange) models.PanelChange {
	if c.AffectedColumn != nil {
		col := *c.AffectedColumn
		c.AffectedColumn = &col
	}
	c.Details.Before = cloneBytes(c.Details.Before)
	c.Details.After = cloneBytes(c.Details.After)
	if c.DispatchedAt != nil {
		ts := *c.DispatchedAt
		c.DispatchedAt = &ts
	}
	return c
}

func cloneNotification(n models.ViewNotification) models.ViewNotification {
	if n.PanelChangeID != nil {
		id := *n.PanelChangeID
		n.PanelChangeID = &id
	}
	n.AcknowledgedAt = cloneTime(n.AcknowledgedAt)
	n.ResolvedAt = cloneTime(n.ResolvedAt)
	return n
}
