package merge

import (
	"testing"

	"github.com/worldlyfantasy/priospace-sub000/internal/models"
)

func emptySnapshot() *models.Snapshot {
	return &models.Snapshot{
		DailyTasks: make(map[string][]*models.Task),
		CustomTags: []*models.Tag{},
		Habits:     []*models.Habit{},
		Version:    "1.0",
	}
}

func task(id, title string, completed bool) *models.Task {
	return &models.Task{ID: id, Title: title, Completed: completed}
}

func findTask(bucket []*models.Task, title string) *models.Task {
	for _, t := range bucket {
		if t.Title == title {
			return t
		}
	}
	return nil
}

func TestTagDedupByName(t *testing.T) {
	local := emptySnapshot()
	local.CustomTags = []*models.Tag{{ID: "1", Name: "Work", Color: "#ff0000"}}
	local.DailyTasks["2024-06-01"] = []*models.Task{task("t1", "Buy milk", false)}

	incoming := emptySnapshot()
	incoming.CustomTags = []*models.Tag{{ID: "9", Name: "work", Color: "#00ff00"}}
	in := task("t9", "Write report", false)
	in.TagID = "9"
	incoming.DailyTasks["2024-06-01"] = []*models.Task{in}

	merged, stats := Merge(local, incoming, Options{})

	if len(merged.CustomTags) != 1 {
		t.Fatalf("expected 1 tag after dedup, got %d", len(merged.CustomTags))
	}
	if stats.NewTags != 0 {
		t.Errorf("expected 0 new tags, got %d", stats.NewTags)
	}

	report := findTask(merged.DailyTasks["2024-06-01"], "Write report")
	if report == nil {
		t.Fatal("incoming task not appended")
	}
	if report.TagID != "1" {
		t.Errorf("expected tag remapped to %q, got %q", "1", report.TagID)
	}
}

func TestNewTagMintedID(t *testing.T) {
	local := emptySnapshot()
	incoming := emptySnapshot()
	incoming.CustomTags = []*models.Tag{{ID: "old-id", Name: "Health", Color: "#00f"}}

	merged, stats := Merge(local, incoming, Options{})

	if stats.NewTags != 1 {
		t.Fatalf("expected 1 new tag, got %d", stats.NewTags)
	}
	got := merged.CustomTags[0]
	if got.ID == "old-id" {
		t.Error("expected a freshly minted tag id, got the incoming id")
	}
	if got.Name != "Health" || got.Color != "#00f" {
		t.Errorf("tag name/color not preserved: %+v", got)
	}
}

func TestTaskCompletionOverwrite(t *testing.T) {
	local := emptySnapshot()
	local.DailyTasks["2024-06-01"] = []*models.Task{task("t1", "Buy milk", false)}

	incoming := emptySnapshot()
	incoming.DailyTasks["2024-06-01"] = []*models.Task{task("t9", "Buy milk", true)}

	merged, stats := Merge(local, incoming, Options{})

	got := findTask(merged.DailyTasks["2024-06-01"], "Buy milk")
	if got == nil {
		t.Fatal("task missing after merge")
	}
	if got.ID != "t1" {
		t.Errorf("expected existing task id t1 kept, got %q", got.ID)
	}
	if !got.Completed {
		t.Error("expected completed overwritten to true")
	}
	if stats.UpdatedTasks != 1 {
		t.Errorf("expected 1 updated task, got %d", stats.UpdatedTasks)
	}
}

// The overwrite is last-writer-wins, not an OR: an incoming incomplete task
// un-completes a locally completed one.
func TestTaskCompletionOverwriteIsNotOr(t *testing.T) {
	local := emptySnapshot()
	local.DailyTasks["2024-06-01"] = []*models.Task{task("t1", "Buy milk", true)}

	incoming := emptySnapshot()
	incoming.DailyTasks["2024-06-01"] = []*models.Task{task("t9", "buy milk ", false)}

	merged, _ := Merge(local, incoming, Options{})

	got := findTask(merged.DailyTasks["2024-06-01"], "Buy milk")
	if got.Completed {
		t.Error("expected incoming false to overwrite local true")
	}
}

func TestTaskMatchIsPerBucket(t *testing.T) {
	local := emptySnapshot()
	local.DailyTasks["2024-06-01"] = []*models.Task{task("t1", "Buy milk", false)}

	incoming := emptySnapshot()
	incoming.DailyTasks["2024-06-02"] = []*models.Task{task("t9", "Buy milk", true)}

	merged, stats := Merge(local, incoming, Options{})

	if stats.NewTasks != 1 {
		t.Fatalf("expected task in another bucket to be new, stats %+v", stats)
	}
	if len(merged.DailyTasks["2024-06-01"]) != 1 || len(merged.DailyTasks["2024-06-02"]) != 1 {
		t.Error("expected one task per bucket")
	}
	local01 := findTask(merged.DailyTasks["2024-06-01"], "Buy milk")
	if local01.Completed {
		t.Error("task in a different bucket must not be touched")
	}
}

func TestNewTaskSubtasksReparented(t *testing.T) {
	local := emptySnapshot()

	parent := task("p", "Plan trip", false)
	sub := task("s", "Book hotel", false)
	sub.ParentTaskID = "p"
	parent.Subtasks = []*models.Task{sub}

	incoming := emptySnapshot()
	incoming.DailyTasks["2024-06-01"] = []*models.Task{parent}

	merged, stats := Merge(local, incoming, Options{})

	got := findTask(merged.DailyTasks["2024-06-01"], "Plan trip")
	if got == nil {
		t.Fatal("task missing")
	}
	if got.ID == "p" {
		t.Error("expected minted parent id")
	}
	if len(got.Subtasks) != 1 {
		t.Fatalf("expected 1 subtask, got %d", len(got.Subtasks))
	}
	st := got.Subtasks[0]
	if st.ID == "s" {
		t.Error("expected minted subtask id")
	}
	if st.ParentTaskID != got.ID {
		t.Errorf("subtask parent %q does not point at new parent %q", st.ParentTaskID, got.ID)
	}
	if stats.NewTasks != 1 || stats.NewSubtasks != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestSubtaskReconcileWithinParent(t *testing.T) {
	local := emptySnapshot()
	localParent := task("p1", "Plan trip", false)
	localSub := task("s1", "Book hotel", false)
	localSub.ParentTaskID = "p1"
	localParent.Subtasks = []*models.Task{localSub}
	local.DailyTasks["2024-06-01"] = []*models.Task{localParent}

	inParent := task("p9", "plan trip", false)
	inMatched := task("s9", "BOOK HOTEL", true)
	inNew := task("s8", "Pack bags", false)
	inParent.Subtasks = []*models.Task{inMatched, inNew}
	incoming := emptySnapshot()
	incoming.DailyTasks["2024-06-01"] = []*models.Task{inParent}

	merged, stats := Merge(local, incoming, Options{})

	got := findTask(merged.DailyTasks["2024-06-01"], "Plan trip")
	if got.ID != "p1" {
		t.Fatalf("expected local parent kept, got id %q", got.ID)
	}
	if len(got.Subtasks) != 2 {
		t.Fatalf("expected 2 subtasks, got %d", len(got.Subtasks))
	}
	hotel := findTask(got.Subtasks, "Book hotel")
	if hotel == nil || hotel.ID != "s1" || !hotel.Completed {
		t.Errorf("matched subtask not overwritten in place: %+v", hotel)
	}
	bags := findTask(got.Subtasks, "Pack bags")
	if bags == nil {
		t.Fatal("unmatched subtask not appended")
	}
	if bags.ID == "s8" || bags.ParentTaskID != "p1" {
		t.Errorf("appended subtask must carry minted id and local parent id: %+v", bags)
	}
	if stats.NewSubtasks != 1 || stats.UpdatedTasks != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestHabitDateUnion(t *testing.T) {
	local := emptySnapshot()
	local.Habits = []*models.Habit{{ID: "h1", Name: "Read", CompletedDates: []string{"2024-06-01"}}}

	incoming := emptySnapshot()
	incoming.Habits = []*models.Habit{{ID: "h9", Name: "read", CompletedDates: []string{"2024-06-02", "2024-06-01"}}}

	merged, stats := Merge(local, incoming, Options{})

	if len(merged.Habits) != 1 {
		t.Fatalf("expected 1 habit, got %d", len(merged.Habits))
	}
	got := merged.Habits[0]
	want := []string{"2024-06-01", "2024-06-02"}
	if len(got.CompletedDates) != len(want) {
		t.Fatalf("expected dates %v, got %v", want, got.CompletedDates)
	}
	for i := range want {
		if got.CompletedDates[i] != want[i] {
			t.Fatalf("expected dates %v, got %v", want, got.CompletedDates)
		}
	}
	if stats.NewHabits != 0 {
		t.Errorf("expected no new habits, got %d", stats.NewHabits)
	}
}

func TestHabitTagLastWriterWins(t *testing.T) {
	local := emptySnapshot()
	local.CustomTags = []*models.Tag{{ID: "1", Name: "Mind"}}
	local.Habits = []*models.Habit{{ID: "h1", Name: "Read", TagID: "1"}}

	incoming := emptySnapshot()
	incoming.CustomTags = []*models.Tag{{ID: "9", Name: "Evening"}}
	incoming.Habits = []*models.Habit{{ID: "h9", Name: "Read", TagID: "9"}}

	merged, _ := Merge(local, incoming, Options{})

	evening := ""
	for _, tag := range merged.CustomTags {
		if tag.Name == "Evening" {
			evening = tag.ID
		}
	}
	if evening == "" {
		t.Fatal("incoming tag not added")
	}
	if merged.Habits[0].TagID != evening {
		t.Errorf("expected habit tag overwritten to %q, got %q", evening, merged.Habits[0].TagID)
	}
}

func TestSettingsRequireConsent(t *testing.T) {
	local := emptySnapshot()
	local.Theme = "light"

	incoming := emptySnapshot()
	incoming.DarkMode = true
	incoming.Theme = "midnight"

	merged, stats := Merge(local, incoming, Options{})
	if merged.DarkMode || merged.Theme != "light" || stats.SettingsApplied {
		t.Error("settings must not be applied without consent")
	}

	merged, stats = Merge(local, incoming, Options{ApplySettings: true})
	if !merged.DarkMode || merged.Theme != "midnight" || !stats.SettingsApplied {
		t.Errorf("settings not applied with consent: %+v %+v", merged.Theme, stats)
	}
}

// Re-applying the same incoming snapshot must be a no-op: the second merge
// reports zero changes and leaves the state identical.
func TestMergeIdempotence(t *testing.T) {
	local := emptySnapshot()
	local.CustomTags = []*models.Tag{{ID: "1", Name: "Work"}}
	local.DailyTasks["2024-06-01"] = []*models.Task{task("t1", "Buy milk", false)}
	local.Habits = []*models.Habit{{ID: "h1", Name: "Read", CompletedDates: []string{"2024-06-01"}}}

	incoming := emptySnapshot()
	incoming.CustomTags = []*models.Tag{{ID: "9", Name: "work"}, {ID: "8", Name: "Home"}}
	in := task("t9", "Buy milk", true)
	in.TagID = "9"
	incoming.DailyTasks["2024-06-01"] = []*models.Task{in, task("t8", "Walk dog", false)}
	incoming.Habits = []*models.Habit{{ID: "h9", Name: "Read", CompletedDates: []string{"2024-06-02"}}}

	once, first := Merge(local, incoming, Options{})
	if first.Empty() {
		t.Fatal("first merge should report changes")
	}

	twice, second := Merge(once, incoming, Options{})
	if !second.Empty() {
		t.Fatalf("second merge of identical snapshot should change nothing, got %+v", second)
	}
	if len(twice.CustomTags) != len(once.CustomTags) ||
		len(twice.Habits) != len(once.Habits) ||
		len(twice.DailyTasks["2024-06-01"]) != len(once.DailyTasks["2024-06-01"]) {
		t.Error("second merge changed record counts")
	}
}

func TestInputsNotMutated(t *testing.T) {
	local := emptySnapshot()
	local.Habits = []*models.Habit{{ID: "h1", Name: "Read", CompletedDates: []string{"2024-06-01"}}}

	incoming := emptySnapshot()
	incoming.Habits = []*models.Habit{{ID: "h9", Name: "Read", CompletedDates: []string{"2024-06-02"}}}

	_, _ = Merge(local, incoming, Options{})

	if len(local.Habits[0].CompletedDates) != 1 {
		t.Error("local snapshot mutated by merge")
	}
	if len(incoming.Habits[0].CompletedDates) != 1 {
		t.Error("incoming snapshot mutated by merge")
	}
}
