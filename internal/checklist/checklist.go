// Package checklist implements shift checklists: the dependency gate that
// decides whether a task may be signed off, symmetric toggling and the
// completion rate.
package checklist

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"table1837/internal/domain"
)

var (
	ErrTaskNotFound           = errors.New("checklist task not found")
	ErrDependenciesIncomplete = errors.New("task dependencies not complete")
	ErrDependencyCycle        = errors.New("checklist dependency cycle")
	ErrUnknownDependency      = errors.New("unknown checklist dependency")
)

// CanComplete reports whether task may be marked complete. Every dependency
// must name a task of the same checklist that is already completed; an id
// that does not resolve blocks completion.
func CanComplete(task domain.ChecklistTask, cl domain.Checklist) bool {
	for _, depID := range task.Dependencies {
		dep, ok := find(cl.Items, depID)
		if !ok || !dep.Completed() {
			return false
		}
	}
	return true
}

// Toggle flips the completion state of taskID and returns the updated
// checklist with its rate recomputed. Un-marking a prerequisite does not
// cascade to tasks that depend on it.
func Toggle(cl domain.Checklist, taskID, staff string, now time.Time) (domain.Checklist, error) {
	idx := indexOf(cl.Items, taskID)
	if idx < 0 {
		return cl, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	items := make([]domain.ChecklistTask, len(cl.Items))
	copy(items, cl.Items)

	task := items[idx]
	if task.Completed() {
		task.CompletedBy = ""
		task.CompletedAt = nil
	} else {
		if !CanComplete(task, cl) {
			return cl, fmt.Errorf("%w: %s", ErrDependenciesIncomplete, taskID)
		}
		at := now.UTC()
		task.CompletedBy = staff
		task.CompletedAt = &at
	}
	items[idx] = task

	cl.Items = items
	cl.CompletionRate = CompletionRate(cl)
	return cl, nil
}

// CompletionRate is the percentage of completed tasks; 0 for an empty list.
func CompletionRate(cl domain.Checklist) float64 {
	if len(cl.Items) == 0 {
		return 0
	}
	done := 0
	for _, it := range cl.Items {
		if it.Completed() {
			done++
		}
	}
	return float64(done*100) / float64(len(cl.Items))
}

type Filter string

const (
	FilterAll       Filter = "all"
	FilterPending   Filter = "pending"
	FilterCompleted Filter = "completed"
)

func FilterTasks(items []domain.ChecklistTask, f Filter) []domain.ChecklistTask {
	out := make([]domain.ChecklistTask, 0, len(items))
	for _, it := range items {
		switch f {
		case FilterPending:
			if it.Completed() {
				continue
			}
		case FilterCompleted:
			if !it.Completed() {
				continue
			}
		}
		out = append(out, it)
	}
	return out
}

// ActiveAt reports whether the checklist's window covers the given hour.
// Only the hour part of start/end is compared; no window means always active.
func ActiveAt(cl domain.Checklist, hour int) bool {
	if cl.ActiveTime == nil {
		return true
	}
	start, err := parseHour(cl.ActiveTime.Start)
	if err != nil {
		return true
	}
	end, err := parseHour(cl.ActiveTime.End)
	if err != nil {
		return true
	}
	return hour >= start && hour < end
}

// Apply overlays persisted completions onto a checklist definition.
func Apply(cl domain.Checklist, completions []domain.TaskCompletion) domain.Checklist {
	items := make([]domain.ChecklistTask, len(cl.Items))
	copy(items, cl.Items)
	for _, c := range completions {
		if c.ChecklistID != cl.ID {
			continue
		}
		if idx := indexOf(items, c.TaskID); idx >= 0 {
			at := c.CompletedAt
			items[idx].CompletedBy = c.CompletedBy
			items[idx].CompletedAt = &at
		}
	}
	cl.Items = items
	cl.CompletionRate = CompletionRate(cl)
	return cl
}

func parseHour(hhmm string) (int, error) {
	h, _, _ := strings.Cut(strings.TrimSpace(hhmm), ":")
	return strconv.Atoi(h)
}

func find(items []domain.ChecklistTask, id string) (domain.ChecklistTask, bool) {
	if idx := indexOf(items, id); idx >= 0 {
		return items[idx], true
	}
	return domain.ChecklistTask{}, false
}

func indexOf(items []domain.ChecklistTask, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}
