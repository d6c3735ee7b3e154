package models

// Snapshot is the full exported state of one app instance. The same
// structure is used for file export/import, the transfer channel payload,
// and the merge engine input, so the JSON field names here are the wire
// contract.
type Snapshot struct {
	DailyTasks map[string][]*Task `json:"dailyTasks"` // keyed by YYYY-MM-DD
	CustomTags []*Tag             `json:"customTags"`
	Habits     []*Habit           `json:"habits"`
	DarkMode   bool               `json:"darkMode"`
	Theme      string             `json:"theme"`
	ExportDate string             `json:"exportDate"`
	Version    string             `json:"version"`
}

// Task is a single to-do item. A task with an empty ParentTaskID is a main
// task; subtasks carry their parent's id and never nest further.
type Task struct {
	ID               string  `json:"id"`
	Title            string  `json:"title"`
	Completed        bool    `json:"completed"`
	TimeSpentMinutes int     `json:"timeSpentMinutes"`
	FocusTimeSeconds int     `json:"focusTimeSeconds"`
	CreatedAt        int64   `json:"createdAt"` // unix ms
	TagID            string  `json:"tagId,omitempty"`
	ParentTaskID     string  `json:"parentTaskId,omitempty"`
	Subtasks         []*Task `json:"subtasks,omitempty"`
	SubtasksExpanded bool    `json:"subtasksExpanded"`
}

// Tag is a user-defined category. Merge identity is the trimmed,
// case-insensitive Name, not the ID.
type Tag struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Habit tracks recurring completion by date. Merge identity is the trimmed,
// case-insensitive Name.
type Habit struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	CompletedDates []string `json:"completedDates"` // YYYY-MM-DD, unique
	TagID          string   `json:"tagId,omitempty"`
}

// ChangeStats summarizes what a merge changed, for the user-facing report.
type ChangeStats struct {
	NewTasks        int  `json:"newTasks"`
	UpdatedTasks    int  `json:"updatedTasks"`
	NewSubtasks     int  `json:"newSubtasks"`
	NewTags         int  `json:"newTags"`
	NewHabits       int  `json:"newHabits"`
	SettingsApplied bool `json:"settingsApplied"`
}

// Total returns the number of record-level changes, excluding settings.
func (s ChangeStats) Total() int {
	return s.NewTasks + s.UpdatedTasks + s.NewSubtasks + s.NewTags + s.NewHabits
}

// Empty reports whether the merge changed nothing at all.
func (s ChangeStats) Empty() bool {
	return s.Total() == 0 && !s.SettingsApplied
}

// Clone returns a deep copy of the task, including subtasks.
func (t *Task) Clone() *Task {
	cp := *t
	if len(t.Subtasks) > 0 {
		cp.Subtasks = make([]*Task, len(t.Subtasks))
		for i, st := range t.Subtasks {
			cp.Subtasks[i] = st.Clone()
		}
	}
	return &cp
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	cp := *s
	cp.DailyTasks = make(map[string][]*Task, len(s.DailyTasks))
	for day, tasks := range s.DailyTasks {
		bucket := make([]*Task, len(tasks))
		for i, t := range tasks {
			bucket[i] = t.Clone()
		}
		cp.DailyTasks[day] = bucket
	}
	cp.CustomTags = make([]*Tag, len(s.CustomTags))
	for i, tag := range s.CustomTags {
		t := *tag
		cp.CustomTags[i] = &t
	}
	cp.Habits = make([]*Habit, len(s.Habits))
	for i, h := range s.Habits {
		hc := *h
		hc.CompletedDates = append([]string(nil), h.CompletedDates...)
		cp.Habits[i] = &hc
	}
	return &cp
}
