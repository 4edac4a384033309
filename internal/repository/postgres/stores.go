package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/panelwatch/internal/repository"
)

var (
	_ repository.PanelRepository        = (*PanelStore)(nil)
	_ repository.ColumnRepository       = (*ColumnStore)(nil)
	_ repository.DataSourceRepository   = (*DataSourceStore)(nil)
	_ repository.ViewRepository         = (*ViewStore)(nil)
	_ repository.ChangeRepository       = (*ChangeStore)(nil)
	_ repository.NotificationRepository = (*NotificationStore)(nil)
)

// NewStores wires every pgx store to the same pool.
func NewStores(pool *pgxpool.Pool) repository.Stores {
	return repository.Stores{
		Tx:            NewTxManager(pool),
		Panels:        NewPanelStore(pool),
		Columns:       NewColumnStore(pool),
		DataSources:   NewDataSourceStore(pool),
		Views:         NewViewStore(pool),
		Changes:       NewChangeStore(pool),
		Notifications: NewNotificationStore(pool),
	}
}
