package checklist

import (
	"fmt"
	"sort"

	"table1837/internal/domain"
)

// Validate rejects checklists whose dependency graph cannot be completed:
// duplicate task ids, dependencies outside the checklist, and cycles.
func Validate(cl domain.Checklist) error {
	indegree := make(map[string]int, len(cl.Items))
	for _, it := range cl.Items {
		if it.ID == "" {
			return fmt.Errorf("checklist %s has a task without id", cl.ID)
		}
		if _, dup := indegree[it.ID]; dup {
			return fmt.Errorf("checklist %s has duplicate task id %s", cl.ID, it.ID)
		}
		indegree[it.ID] = 0
	}
	dependents := map[string][]string{}
	for _, it := range cl.Items {
		for _, dep := range it.Dependencies {
			if _, ok := indegree[dep]; !ok {
				return fmt.Errorf("%w: task %s depends on %s in checklist %s", ErrUnknownDependency, it.ID, dep, cl.ID)
			}
			dependents[dep] = append(dependents[dep], it.ID)
			indegree[it.ID]++
		}
	}

	// Kahn's algorithm: whatever never reaches indegree 0 sits on a cycle.
	var queue []string
	for id, n := range indegree {
		if n == 0 {
			queue = append(queue, id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range dependents[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if visited == len(cl.Items) {
		return nil
	}
	var stuck []string
	for id, n := range indegree {
		if n > 0 {
			stuck = append(stuck, id)
		}
	}
	sort.Strings(stuck)
	return fmt.Errorf("%w in checklist %s: %v", ErrDependencyCycle, cl.ID, stuck)
}
