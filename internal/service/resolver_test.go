package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/go-pos-sync/models"
)

var planBase = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func planRecord(id string, priority models.Priority, offset time.Duration, deps ...string) *models.MutationRecord {
	return &models.MutationRecord{
		ID:              id,
		Priority:        priority,
		ClientCreatedAt: planBase.Add(offset),
		Dependencies:    deps,
	}
}

func orderIDs(plan executionPlan) []string {
	ids := make([]string, 0, len(plan.order))
	for _, r := range plan.order {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestPlanExecution_Order(t *testing.T) {
	tests := []struct {
		name    string
		records []*models.MutationRecord
		want    []string
	}{
		{
			name: "priority before timestamp",
			records: []*models.MutationRecord{
				planRecord("a", models.PriorityLow, 0),
				planRecord("b", models.PriorityMedium, time.Minute),
				planRecord("c", models.PriorityHigh, 2*time.Minute),
			},
			want: []string{"c", "b", "a"},
		},
		{
			name: "timestamp then id",
			records: []*models.MutationRecord{
				planRecord("b", models.PriorityMedium, time.Minute),
				planRecord("z", models.PriorityMedium, 0),
				planRecord("a", models.PriorityMedium, time.Minute),
			},
			want: []string{"z", "a", "b"},
		},
		{
			name: "creation precedes reference regardless of priority",
			records: []*models.MutationRecord{
				planRecord("venta", models.PriorityHigh, 0, "cliente"),
				planRecord("cliente", models.PriorityLow, time.Minute),
			},
			want: []string{"cliente", "venta"},
		},
		{
			name: "diamond",
			records: []*models.MutationRecord{
				planRecord("d", models.PriorityHigh, 0, "b", "c"),
				planRecord("c", models.PriorityMedium, 0, "a"),
				planRecord("b", models.PriorityHigh, 0, "a"),
				planRecord("a", models.PriorityLow, 0),
			},
			want: []string{"a", "b", "c", "d"},
		},
		{
			name: "external dependency is not an edge",
			records: []*models.MutationRecord{
				planRecord("b", models.PriorityMedium, 0, "outside"),
				planRecord("a", models.PriorityMedium, time.Minute),
			},
			want: []string{"b", "a"},
		},
		{
			name: "repeated dependency",
			records: []*models.MutationRecord{
				planRecord("b", models.PriorityMedium, 0, "a", "a"),
				planRecord("a", models.PriorityMedium, time.Minute),
			},
			want: []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := planExecution(tt.records)
			assert.Empty(t, plan.rejected)
			assert.Equal(t, tt.want, orderIDs(plan))
		})
	}
}

func TestPlanExecution_Cycles(t *testing.T) {
	records := []*models.MutationRecord{
		planRecord("x", models.PriorityMedium, 0, "y"),
		planRecord("y", models.PriorityMedium, 0, "x"),
		planRecord("after", models.PriorityMedium, 0, "y"),
		planRecord("self", models.PriorityMedium, 0, "self"),
		planRecord("free", models.PriorityMedium, 0),
		planRecord("child", models.PriorityMedium, 0, "free"),
	}

	plan := planExecution(records)

	assert.Equal(t, []string{"free", "child"}, orderIDs(plan))
	require.Len(t, plan.rejected, 4)

	for _, id := range []string{"x", "y", "self"} {
		require.Contains(t, plan.rejected, id)
		assert.Equal(t, ReasonDependencyCycle, plan.rejected[id].Reason)
		assert.Equal(t, models.ErrorKindDependencyCycle, plan.rejected[id].Kind)
		assert.False(t, plan.rejected[id].Retryable)
	}
	require.Contains(t, plan.rejected, "after")
	assert.Equal(t, ReasonCyclicDependency, plan.rejected["after"].Reason)
}

func TestPlanExecution_Deterministic(t *testing.T) {
	build := func() []*models.MutationRecord {
		return []*models.MutationRecord{
			planRecord("m3", models.PriorityMedium, 0),
			planRecord("m1", models.PriorityMedium, 0),
			planRecord("m2", models.PriorityMedium, 0, "m1"),
			planRecord("m4", models.PriorityHigh, time.Hour, "m3"),
		}
	}

	first := orderIDs(planExecution(build()))
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, orderIDs(planExecution(build())))
	}
	assert.Equal(t, []string{"m1", "m2", "m3", "m4"}, first)
}
