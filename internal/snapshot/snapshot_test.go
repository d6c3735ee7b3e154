package snapshot

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/worldlyfantasy/priospace-sub000/internal/models"
)

func sample() *models.Snapshot {
	snap := Empty()
	snap.DarkMode = true
	snap.Theme = "midnight"
	snap.CustomTags = []*models.Tag{{ID: "tag1", Name: "Work", Color: "#f00"}}
	snap.Habits = []*models.Habit{{ID: "h1", Name: "Read", CompletedDates: []string{"2024-06-01"}}}
	snap.DailyTasks["2024-06-01"] = []*models.Task{
		{
			ID: "t1", Title: "Buy milk", TimeSpentMinutes: 5, FocusTimeSeconds: 120,
			CreatedAt: 1717200000000, TagID: "tag1",
			Subtasks: []*models.Task{
				{ID: "s1", Title: "Find store", ParentTaskID: "t1", Completed: true},
			},
		},
	}
	return snap
}

func TestValidateNormalizesNilCollections(t *testing.T) {
	snap := &models.Snapshot{Version: "1.0"}
	if err := Validate(snap); err != nil {
		t.Fatal(err)
	}
	if snap.DailyTasks == nil || snap.CustomTags == nil || snap.Habits == nil {
		t.Fatal("nil collections must be normalized")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name string
		snap *models.Snapshot
	}{
		{"nil snapshot", nil},
		{"missing version", &models.Snapshot{}},
		{"bad date key", func() *models.Snapshot {
			s := sample()
			s.DailyTasks["June 1st"] = nil
			return s
		}()},
		{"nested subtasks", func() *models.Snapshot {
			s := sample()
			s.DailyTasks["2024-06-01"][0].Subtasks[0].Subtasks = []*models.Task{{ID: "x", Title: "too deep"}}
			return s
		}()},
		{"bad habit date", func() *models.Snapshot {
			s := sample()
			s.Habits[0].CompletedDates = []string{"yesterday"}
			return s
		}()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := Validate(tc.snap); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("not a snapshot")); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := Decode([]byte(`{"dailyTasks":{}}`)); err == nil {
		t.Fatal("expected missing version to fail validation")
	}
}

func TestEncodeStampsExportMetadata(t *testing.T) {
	snap := sample()
	snap.Version = ""

	data, err := Encode(snap)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.ExportDate == "" {
		t.Error("exportDate not stamped")
	}
	if decoded.Version != CurrentVersion {
		t.Errorf("expected version %q, got %q", CurrentVersion, decoded.Version)
	}
	if snap.ExportDate != "" {
		t.Error("Encode must not mutate its input")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	store := NewFileStore(path)
	ctx := context.Background()

	if err := store.Save(ctx, sample()); err != nil {
		t.Fatal(err)
	}
	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if !loaded.DarkMode || loaded.Theme != "midnight" {
		t.Error("settings lost in round trip")
	}
	bucket := loaded.DailyTasks["2024-06-01"]
	if len(bucket) != 1 || bucket[0].Title != "Buy milk" {
		t.Fatalf("tasks lost in round trip: %+v", bucket)
	}
	if len(bucket[0].Subtasks) != 1 || !bucket[0].Subtasks[0].Completed {
		t.Error("subtasks lost in round trip")
	}
	if len(loaded.CustomTags) != 1 || len(loaded.Habits) != 1 {
		t.Error("tags or habits lost in round trip")
	}
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))
	snap, err := store.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.DailyTasks) != 0 || len(snap.CustomTags) != 0 || len(snap.Habits) != 0 {
		t.Fatal("missing file must load as an empty snapshot")
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "snap.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.DailyTasks) != 0 {
		t.Fatal("fresh store must load empty")
	}

	if err := store.Save(ctx, sample()); err != nil {
		t.Fatal(err)
	}
	loaded, err = store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.DailyTasks["2024-06-01"]) != 1 {
		t.Fatal("snapshot lost in sqlite round trip")
	}

	// Save again to exercise the upsert path.
	loaded.Theme = "light"
	if err := store.Save(ctx, loaded); err != nil {
		t.Fatal(err)
	}
	final, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if final.Theme != "light" {
		t.Fatal("second save did not replace the document")
	}
}
