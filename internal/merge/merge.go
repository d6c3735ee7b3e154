// Package merge reconciles two independently edited snapshots into one.
//
// Records are matched by human identity (trimmed, case-insensitive name or
// title), never by id: two devices mint different ids for "the same" item.
// The merge runs as three ordered phases because tasks and habits reference
// tag ids that may be remapped in the first phase.
package merge

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/worldlyfantasy/priospace-sub000/internal/models"
)

// Options controls the parts of a merge that need explicit user consent.
type Options struct {
	// ApplySettings overwrites local darkMode/theme with the incoming
	// values. Settings are global preferences, not data records, so they
	// are never applied silently.
	ApplySettings bool
}

// Merge reconciles incoming into local and returns the merged snapshot plus
// a tally of what changed. Inputs are not mutated. Inputs are assumed to
// have passed boundary validation; Merge itself never fails.
func Merge(local, incoming *models.Snapshot, opts Options) (*models.Snapshot, models.ChangeStats) {
	merged := local.Clone()
	var stats models.ChangeStats

	if merged.DailyTasks == nil {
		merged.DailyTasks = make(map[string][]*models.Task)
	}

	tagRemap := mergeTags(merged, incoming, &stats)
	mergeTasks(merged, incoming, tagRemap, &stats)
	mergeHabits(merged, incoming, tagRemap, &stats)

	if opts.ApplySettings {
		if merged.DarkMode != incoming.DarkMode || merged.Theme != incoming.Theme {
			merged.DarkMode = incoming.DarkMode
			merged.Theme = incoming.Theme
			stats.SettingsApplied = true
		}
	}

	return merged, stats
}

// matchKey is the merge identity of a named record.
func matchKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func mintID() string {
	return uuid.NewString()
}

// mergeTags deduplicates incoming tags by name and returns the remap table
// from incoming tag ids to the ids used in the merged snapshot.
func mergeTags(merged, incoming *models.Snapshot, stats *models.ChangeStats) map[string]string {
	byName := make(map[string]*models.Tag, len(merged.CustomTags))
	for _, tag := range merged.CustomTags {
		if _, ok := byName[matchKey(tag.Name)]; !ok {
			byName[matchKey(tag.Name)] = tag
		}
	}

	remap := make(map[string]string)
	for _, in := range incoming.CustomTags {
		if existing, ok := byName[matchKey(in.Name)]; ok {
			remap[in.ID] = existing.ID
			continue
		}
		added := &models.Tag{ID: mintID(), Name: in.Name, Color: in.Color}
		merged.CustomTags = append(merged.CustomTags, added)
		byName[matchKey(added.Name)] = added
		remap[in.ID] = added.ID
		stats.NewTags++
	}
	return remap
}

// remapTag translates a tag reference through the remap table, keeping it
// untouched when the incoming snapshot never declared that tag.
func remapTag(tagID string, remap map[string]string) string {
	if mapped, ok := remap[tagID]; ok {
		return mapped
	}
	return tagID
}

// mergeTasks reconciles each date bucket independently: a task only ever
// matches a task on the same day.
func mergeTasks(merged, incoming *models.Snapshot, remap map[string]string, stats *models.ChangeStats) {
	days := make([]string, 0, len(incoming.DailyTasks))
	for day := range incoming.DailyTasks {
		days = append(days, day)
	}
	sort.Strings(days)

	for _, day := range days {
		bucket := merged.DailyTasks[day]
		byTitle := make(map[string]*models.Task, len(bucket))
		for _, t := range bucket {
			if _, ok := byTitle[matchKey(t.Title)]; !ok {
				byTitle[matchKey(t.Title)] = t
			}
		}

		for _, in := range incoming.DailyTasks[day] {
			existing, ok := byTitle[matchKey(in.Title)]
			if !ok {
				added := adoptTask(in, remap, stats)
				bucket = append(bucket, added)
				byTitle[matchKey(added.Title)] = added
				continue
			}
			reconcileTask(existing, in, remap, stats)
		}
		merged.DailyTasks[day] = bucket
	}
}

// adoptTask deep-copies an incoming task into the merged snapshot with
// freshly minted ids, re-parenting its subtasks.
func adoptTask(in *models.Task, remap map[string]string, stats *models.ChangeStats) *models.Task {
	added := in.Clone()
	added.ID = mintID()
	added.TagID = remapTag(added.TagID, remap)
	for _, st := range added.Subtasks {
		st.ID = mintID()
		st.ParentTaskID = added.ID
		st.TagID = remapTag(st.TagID, remap)
	}
	stats.NewTasks++
	stats.NewSubtasks += len(added.Subtasks)
	return added
}

// reconcileTask folds an incoming task into its matched local counterpart.
// The completed flag is last-writer-wins: the incoming value overwrites the
// local one, it is not OR-ed.
func reconcileTask(existing, in *models.Task, remap map[string]string, stats *models.ChangeStats) {
	if existing.Completed != in.Completed {
		existing.Completed = in.Completed
		stats.UpdatedTasks++
	}

	byTitle := make(map[string]*models.Task, len(existing.Subtasks))
	for _, st := range existing.Subtasks {
		if _, ok := byTitle[matchKey(st.Title)]; !ok {
			byTitle[matchKey(st.Title)] = st
		}
	}
	for _, inSub := range in.Subtasks {
		if localSub, ok := byTitle[matchKey(inSub.Title)]; ok {
			if localSub.Completed != inSub.Completed {
				localSub.Completed = inSub.Completed
				stats.UpdatedTasks++
			}
			continue
		}
		added := inSub.Clone()
		added.ID = mintID()
		added.ParentTaskID = existing.ID
		added.TagID = remapTag(added.TagID, remap)
		added.Subtasks = nil // depth is fixed at two levels
		existing.Subtasks = append(existing.Subtasks, added)
		byTitle[matchKey(added.Title)] = added
		stats.NewSubtasks++
	}
}

// mergeHabits reconciles habits by name. Completion dates are a true set
// union; the tag reference alone is last-writer-wins.
func mergeHabits(merged, incoming *models.Snapshot, remap map[string]string, stats *models.ChangeStats) {
	byName := make(map[string]*models.Habit, len(merged.Habits))
	for _, h := range merged.Habits {
		if _, ok := byName[matchKey(h.Name)]; !ok {
			byName[matchKey(h.Name)] = h
		}
	}

	for _, in := range incoming.Habits {
		if existing, ok := byName[matchKey(in.Name)]; ok {
			existing.CompletedDates = unionDates(existing.CompletedDates, in.CompletedDates)
			existing.TagID = remapTag(in.TagID, remap)
			continue
		}
		added := &models.Habit{
			ID:             mintID(),
			Name:           in.Name,
			CompletedDates: unionDates(nil, in.CompletedDates),
			TagID:          remapTag(in.TagID, remap),
		}
		merged.Habits = append(merged.Habits, added)
		byName[matchKey(added.Name)] = added
		stats.NewHabits++
	}
}

// unionDates merges two date-key lists into a sorted, deduplicated list.
func unionDates(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, d := range a {
		set[d] = struct{}{}
	}
	for _, d := range b {
		set[d] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
