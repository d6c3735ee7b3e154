// Package snapshot owns loading, saving and validating the exported app
// state. The JSON document it reads and writes is the same structure the
// transfer channel carries and the merge engine consumes.
package snapshot

import (
	"context"

	"github.com/worldlyfantasy/priospace-sub000/internal/models"
)

// CurrentVersion is written into exported snapshots.
const CurrentVersion = "1.0"

// Store persists the current snapshot. The core only relies on these two
// operations; FileStore and SQLiteStore both implement them.
type Store interface {
	Load(ctx context.Context) (*models.Snapshot, error)
	Save(ctx context.Context, snap *models.Snapshot) error
}

// Empty returns a well-formed snapshot with no records.
func Empty() *models.Snapshot {
	return &models.Snapshot{
		DailyTasks: make(map[string][]*models.Task),
		CustomTags: []*models.Tag{},
		Habits:     []*models.Habit{},
		Version:    CurrentVersion,
	}
}
