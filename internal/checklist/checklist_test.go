package checklist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"table1837/internal/domain"
)

var now = time.Date(2024, 3, 1, 7, 30, 0, 0, time.UTC)

func opening() domain.Checklist {
	return domain.Checklist{
		ID:         "opening-1",
		Name:       "Opening Checklist",
		Type:       domain.ChecklistOpening,
		ActiveTime: &domain.TimeWindow{Start: "06:00", End: "11:00"},
		Items: []domain.ChecklistTask{
			{ID: "o1", Task: "Unlock doors and disable alarm", Category: domain.TaskSafety, Priority: domain.PriorityHigh, EstimatedTime: 2},
			{ID: "o2", Task: "Turn on all equipment and check temperatures", Category: domain.TaskSafety, Priority: domain.PriorityHigh, EstimatedTime: 5, Dependencies: []string{"o1"}},
			{ID: "o3", Task: "Stock bar with ice and garnishes", Category: domain.TaskPrep, Priority: domain.PriorityHigh, EstimatedTime: 15, Dependencies: []string{"o2"}},
			{ID: "o4", Task: "Review 86 list and update specials board", Category: domain.TaskCustomer, Priority: domain.PriorityMedium, EstimatedTime: 5},
			{ID: "o5", Task: "Polish glassware and arrange bar tools", Category: domain.TaskCleaning, Priority: domain.PriorityMedium, EstimatedTime: 10},
		},
	}
}

func TestCanCompleteWithoutDependencies(t *testing.T) {
	cl := opening()
	assert.True(t, CanComplete(cl.Items[0], cl))
	assert.True(t, CanComplete(domain.ChecklistTask{ID: "x", Dependencies: []string{}}, domain.Checklist{}))
}

func TestCanCompleteBlocksOnMissingDependency(t *testing.T) {
	cl := opening()
	task := domain.ChecklistTask{ID: "o9", Dependencies: []string{"nope"}}
	assert.False(t, CanComplete(task, cl))
}

func TestCanCompleteRequiresCompletedDependencies(t *testing.T) {
	cl := opening()
	assert.False(t, CanComplete(cl.Items[1], cl))

	cl, err := Toggle(cl, "o1", "Sam", now)
	require.NoError(t, err)
	assert.True(t, CanComplete(cl.Items[1], cl))
	assert.False(t, CanComplete(cl.Items[2], cl))
}

func TestToggleRefusesGatedTask(t *testing.T) {
	cl := opening()
	got, err := Toggle(cl, "o3", "Sam", now)
	assert.ErrorIs(t, err, ErrDependenciesIncomplete)
	assert.False(t, got.Items[2].Completed())
}

func TestToggleIsSymmetric(t *testing.T) {
	cl, err := Toggle(opening(), "o4", "Sam", now)
	require.NoError(t, err)
	require.True(t, cl.Items[3].Completed())
	assert.Equal(t, "Sam", cl.Items[3].CompletedBy)
	assert.Equal(t, now, *cl.Items[3].CompletedAt)

	cl, err = Toggle(cl, "o4", "Sam", now)
	require.NoError(t, err)
	assert.Empty(t, cl.Items[3].CompletedBy)
	assert.Nil(t, cl.Items[3].CompletedAt)
}

func TestToggleDoesNotCascade(t *testing.T) {
	cl := opening()
	var err error
	for _, id := range []string{"o1", "o2"} {
		cl, err = Toggle(cl, id, "Sam", now)
		require.NoError(t, err)
	}
	cl, err = Toggle(cl, "o1", "Sam", now)
	require.NoError(t, err)

	assert.False(t, cl.Items[0].Completed())
	assert.True(t, cl.Items[1].Completed())
}

func TestToggleUnknownTask(t *testing.T) {
	_, err := Toggle(opening(), "zz", "Sam", now)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestCompletionRate(t *testing.T) {
	cl := opening()
	var err error
	for _, id := range []string{"o1", "o4", "o5"} {
		cl, err = Toggle(cl, id, "Sam", now)
		require.NoError(t, err)
	}
	assert.Equal(t, 60.0, cl.CompletionRate)
	assert.Equal(t, 60.0, CompletionRate(cl))
	assert.Zero(t, CompletionRate(domain.Checklist{}))
}

func TestFilterTasks(t *testing.T) {
	cl, err := Toggle(opening(), "o1", "Sam", now)
	require.NoError(t, err)

	assert.Len(t, FilterTasks(cl.Items, FilterAll), 5)
	assert.Len(t, FilterTasks(cl.Items, FilterPending), 4)
	completed := FilterTasks(cl.Items, FilterCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, "o1", completed[0].ID)
}

func TestActiveAt(t *testing.T) {
	cl := opening()
	assert.False(t, ActiveAt(cl, 5))
	assert.True(t, ActiveAt(cl, 6))
	assert.True(t, ActiveAt(cl, 10))
	assert.False(t, ActiveAt(cl, 11))

	cl.ActiveTime = nil
	assert.True(t, ActiveAt(cl, 3))
}

func TestApplyCompletions(t *testing.T) {
	cl := Apply(opening(), []domain.TaskCompletion{
		{ChecklistID: "opening-1", TaskID: "o1", CompletedBy: "Sam", CompletedAt: now},
		{ChecklistID: "closing-1", TaskID: "o2", CompletedBy: "Sam", CompletedAt: now},
	})
	assert.True(t, cl.Items[0].Completed())
	assert.False(t, cl.Items[1].Completed())
	assert.Equal(t, 20.0, cl.CompletionRate)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(opening()))

	cyclic := opening()
	cyclic.Items[0].Dependencies = []string{"o3"}
	assert.ErrorIs(t, Validate(cyclic), ErrDependencyCycle)

	self := opening()
	self.Items[3].Dependencies = []string{"o4"}
	assert.ErrorIs(t, Validate(self), ErrDependencyCycle)

	dangling := opening()
	dangling.Items[4].Dependencies = []string{"m1"}
	assert.ErrorIs(t, Validate(dangling), ErrUnknownDependency)

	dup := opening()
	dup.Items[4].ID = "o1"
	assert.Error(t, Validate(dup))
}
