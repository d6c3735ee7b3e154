package snapshot

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/worldlyfantasy/priospace-sub000/internal/models"
)

var dateKeyRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ErrInvalidSnapshot wraps all boundary validation failures so callers can
// classify them as data errors.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Validate checks a decoded snapshot at the trust boundary and normalizes
// nil collections in place. The merge engine is only ever invoked on a
// snapshot that passed this check.
func Validate(s *models.Snapshot) error {
	if s == nil {
		return fmt.Errorf("%w: empty document", ErrInvalidSnapshot)
	}
	if s.Version == "" {
		return fmt.Errorf("%w: missing version", ErrInvalidSnapshot)
	}
	if s.DailyTasks == nil {
		s.DailyTasks = make(map[string][]*models.Task)
	}
	if s.CustomTags == nil {
		s.CustomTags = []*models.Tag{}
	}
	if s.Habits == nil {
		s.Habits = []*models.Habit{}
	}

	for day, bucket := range s.DailyTasks {
		if !dateKeyRegex.MatchString(day) {
			return fmt.Errorf("%w: bad date key %q", ErrInvalidSnapshot, day)
		}
		for _, t := range bucket {
			if t == nil {
				return fmt.Errorf("%w: null task on %s", ErrInvalidSnapshot, day)
			}
			for _, st := range t.Subtasks {
				if st == nil {
					return fmt.Errorf("%w: null subtask in %q", ErrInvalidSnapshot, t.Title)
				}
				if len(st.Subtasks) > 0 {
					return fmt.Errorf("%w: subtask %q has nested subtasks", ErrInvalidSnapshot, st.Title)
				}
			}
		}
	}

	for _, tag := range s.CustomTags {
		if tag == nil {
			return fmt.Errorf("%w: null tag", ErrInvalidSnapshot)
		}
	}
	for _, h := range s.Habits {
		if h == nil {
			return fmt.Errorf("%w: null habit", ErrInvalidSnapshot)
		}
		for _, d := range h.CompletedDates {
			if !dateKeyRegex.MatchString(d) {
				return fmt.Errorf("%w: habit %q has bad date %q", ErrInvalidSnapshot, h.Name, d)
			}
		}
	}
	return nil
}
