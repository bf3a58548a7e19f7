package service

import (
	"container/heap"
	"sort"

	"github.com/MKhiriev/go-pos-sync/models"
)

// executionPlan is the processing order of a batch. Mutations on or
// downstream of a dependency cycle are rejected and never ordered.
type executionPlan struct {
	order    []*models.MutationRecord
	rejected map[string]*SyncError
}

// planExecution orders records so that every mutation follows the in-batch
// mutations it depends on. Among mutations whose dependencies are satisfied
// the ready queue prefers higher priority, then the earlier client timestamp,
// then the smaller id.
//
// Dependencies outside records are not edges of the graph; they are checked
// when the mutation is processed.
func planExecution(records []*models.MutationRecord) executionPlan {
	byID := make(map[string]*models.MutationRecord, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	// dependents[x] lists the in-batch mutations that depend on x.
	dependents := make(map[string][]string, len(records))
	for _, r := range records {
		for _, dep := range uniqueDependencies(r) {
			if _, ok := byID[dep]; ok {
				dependents[dep] = append(dependents[dep], r.ID)
			}
		}
	}

	rejected := make(map[string]*SyncError)
	cyclic := cyclicMembers(records, byID)
	for _, id := range cyclic {
		rejected[id] = newCycleError(id, ReasonDependencyCycle)
	}

	queue := append([]string(nil), cyclic...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dependent := range dependents[id] {
			if _, done := rejected[dependent]; done {
				continue
			}
			rejected[dependent] = newCycleError(dependent, ReasonCyclicDependency)
			queue = append(queue, dependent)
		}
	}

	indegree := make(map[string]int, len(records))
	ready := &readyQueue{}
	for _, r := range records {
		if _, skip := rejected[r.ID]; skip {
			continue
		}
		for _, dep := range uniqueDependencies(r) {
			if _, ok := byID[dep]; ok {
				indegree[r.ID]++
			}
		}
		if indegree[r.ID] == 0 {
			heap.Push(ready, r)
		}
	}

	order := make([]*models.MutationRecord, 0, len(records)-len(rejected))
	for ready.Len() > 0 {
		r := heap.Pop(ready).(*models.MutationRecord)
		order = append(order, r)
		for _, dependent := range dependents[r.ID] {
			if _, skip := rejected[dependent]; skip {
				continue
			}
			indegree[dependent]--
			if indegree[dependent] == 0 {
				heap.Push(ready, byID[dependent])
			}
		}
	}

	return executionPlan{order: order, rejected: rejected}
}

// cyclicMembers returns the ids of mutations that belong to a strongly
// connected component with more than one member or depend on themselves.
func cyclicMembers(records []*models.MutationRecord, byID map[string]*models.MutationRecord) []string {
	var (
		index   int
		indices = make(map[string]int, len(records))
		lowlink = make(map[string]int, len(records))
		onStack = make(map[string]bool, len(records))
		stack   []string
		cyclic  []string
	)

	var connect func(id string)
	connect = func(id string) {
		indices[id] = index
		lowlink[id] = index
		index++
		stack = append(stack, id)
		onStack[id] = true

		selfLoop := false
		for _, dep := range uniqueDependencies(byID[id]) {
			if _, ok := byID[dep]; !ok {
				continue
			}
			if dep == id {
				selfLoop = true
			}
			if _, seen := indices[dep]; !seen {
				connect(dep)
				lowlink[id] = min(lowlink[id], lowlink[dep])
			} else if onStack[dep] {
				lowlink[id] = min(lowlink[id], indices[dep])
			}
		}

		if lowlink[id] != indices[id] {
			return
		}
		var component []string
		for {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[top] = false
			component = append(component, top)
			if top == id {
				break
			}
		}
		if len(component) > 1 || selfLoop {
			cyclic = append(cyclic, component...)
		}
	}

	for _, r := range records {
		if _, seen := indices[r.ID]; !seen {
			connect(r.ID)
		}
	}

	sort.Strings(cyclic)
	return cyclic
}

func uniqueDependencies(r *models.MutationRecord) []string {
	if len(r.Dependencies) < 2 {
		return r.Dependencies
	}
	seen := make(map[string]struct{}, len(r.Dependencies))
	deps := make([]string, 0, len(r.Dependencies))
	for _, dep := range r.Dependencies {
		if _, dup := seen[dep]; dup {
			continue
		}
		seen[dep] = struct{}{}
		deps = append(deps, dep)
	}
	return deps
}

// readyQueue implements heap.Interface over mutations whose in-batch
// dependencies are already ordered.
type readyQueue []*models.MutationRecord

func (q readyQueue) Len() int { return len(q) }

func (q readyQueue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
		return ra < rb
	}
	if !a.ClientCreatedAt.Equal(b.ClientCreatedAt) {
		return a.ClientCreatedAt.Before(b.ClientCreatedAt)
	}
	return a.ID < b.ID
}

func (q readyQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *readyQueue) Push(x any) { *q = append(*q, x.(*models.MutationRecord)) }

func (q *readyQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}
