package engine

import (
	"context"
	"database/sql"
	"fmt"

	"table1837/internal/checklist"
	"table1837/internal/domain"
	"table1837/internal/engine/auth"
	"table1837/internal/events"
	"table1837/internal/repo"
)

const entityTask = "checklist_task"

// Checklists returns the configured checklists with persisted sign-offs
// applied. A negative hour returns all of them; otherwise only those whose
// active window covers the hour.
func (e Engine) Checklists(ctx context.Context, hour int) ([]domain.Checklist, error) {
	cfg, err := e.cfg()
	if err != nil {
		return nil, err
	}
	completions, err := e.Repo.ListCompletions(ctx, nil, "")
	if err != nil {
		return nil, err
	}
	res := []domain.Checklist{}
	for _, def := range cfg.Checklists {
		if hour >= 0 && !checklist.ActiveAt(def, hour) {
			continue
		}
		res = append(res, checklist.Apply(def, completions))
	}
	return res, nil
}

func (e Engine) Checklist(ctx context.Context, id string) (domain.Checklist, error) {
	cfg, err := e.cfg()
	if err != nil {
		return domain.Checklist{}, err
	}
	def, ok := cfg.Checklist(id)
	if !ok {
		return domain.Checklist{}, fmt.Errorf("checklist %s: %w", id, repo.ErrNotFound)
	}
	completions, err := e.Repo.ListCompletions(ctx, nil, id)
	if err != nil {
		return domain.Checklist{}, err
	}
	return checklist.Apply(def, completions), nil
}

// ToggleTask completes or reopens a task. Completing is refused while any
// dependency is open; reopening never cascades to dependents.
func (e Engine) ToggleTask(ctx context.Context, checklistID, taskID string, actor auth.Principal) (domain.Checklist, error) {
	if err := e.require(actor, auth.EditChecklists); err != nil {
		return domain.Checklist{}, err
	}
	cfg, err := e.cfg()
	if err != nil {
		return domain.Checklist{}, err
	}
	def, ok := cfg.Checklist(checklistID)
	if !ok {
		return domain.Checklist{}, fmt.Errorf("checklist %s: %w", checklistID, repo.ErrNotFound)
	}

	var updated domain.Checklist
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		completions, err := e.Repo.ListCompletions(ctx, tx, checklistID)
		if err != nil {
			return err
		}
		current := checklist.Apply(def, completions)
		updated, err = checklist.Toggle(current, taskID, actor.DisplayName(), e.now())
		if err != nil {
			return err
		}
		task := findTask(updated, taskID)
		evtType := events.TaskReopened
		if task.Completed() {
			evtType = events.TaskCompleted
			err = e.Repo.UpsertCompletion(ctx, tx, domain.TaskCompletion{
				ChecklistID: checklistID,
				TaskID:      taskID,
				CompletedBy: task.CompletedBy,
				CompletedAt: *task.CompletedAt,
			})
		} else {
			err = e.Repo.DeleteCompletion(ctx, tx, checklistID, taskID)
		}
		if err != nil {
			return err
		}
		_, err = e.Events.Append(ctx, tx, evtType, "", entityTask, checklistID+"/"+taskID, actor.ActorID, events.EventPayload{
			"checklist_id":    checklistID,
			"task_id":         taskID,
			"completion_rate": updated.CompletionRate,
		})
		return err
	})
	if err != nil {
		return domain.Checklist{}, err
	}
	e.Metrics.Toggles.Inc()
	return updated, nil
}

// ResetChecklists clears sign-offs for the next shift, for one checklist
// when checklistID is set.
func (e Engine) ResetChecklists(ctx context.Context, checklistID string, actor auth.Principal) (int64, error) {
	if err := e.require(actor, auth.EditChecklists); err != nil {
		return 0, err
	}
	var n int64
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		n, err = e.Repo.ClearCompletions(ctx, tx, checklistID)
		if err != nil {
			return err
		}
		_, err = e.Events.Append(ctx, tx, events.ChecklistReset, "", "checklist", checklistID, actor.ActorID, events.EventPayload{"cleared": n})
		return err
	})
	return n, err
}

func findTask(cl domain.Checklist, id string) domain.ChecklistTask {
	for _, it := range cl.Items {
		if it.ID == id {
			return it
		}
	}
	return domain.ChecklistTask{}
}
