package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/go-pos-sync/models"
)

func TestPrometheusSink_RecordSession(t *testing.T) {
	sink := NewPrometheusSink()

	sink.RecordSession(models.SyncSession{
		Type:            models.SessionTypeIncremental,
		Status:          models.SessionStatusCompleted,
		RecordsReceived: 10,
		RecordsSent:     4,
		DurationMillis:  2500,
		SuccessRatio:    0.9,
		Throughput:      5.6,
	})

	assert.Equal(t, float64(1), testutil.ToFloat64(sink.sessions.WithLabelValues("incremental", "completed")))
	assert.Equal(t, float64(10), testutil.ToFloat64(sink.records.WithLabelValues("received")))
	assert.Equal(t, float64(4), testutil.ToFloat64(sink.records.WithLabelValues("sent")))
	assert.Equal(t, 1, testutil.CollectAndCount(sink.successRatio))
}

func TestPrometheusSink_OutcomesAndConflicts(t *testing.T) {
	sink := NewPrometheusSink()

	sink.RecordOutcome(models.EntityCliente, models.OutcomeApplied)
	sink.RecordOutcome(models.EntityCliente, models.OutcomeApplied)
	sink.RecordOutcome(models.EntityVenta, models.OutcomeDuplicate)
	sink.RecordConflict(models.ConflictConcurrentUpdate, models.ResolutionMerge)

	assert.Equal(t, float64(2), testutil.ToFloat64(sink.outcomes.WithLabelValues("cliente", "applied")))
	assert.Equal(t, float64(1), testutil.ToFloat64(sink.outcomes.WithLabelValues("venta", "duplicate")))
	assert.Equal(t, float64(1), testutil.ToFloat64(sink.conflicts.WithLabelValues("concurrent-update", "merge")))
}

func TestPrometheusSink_StoreHealth(t *testing.T) {
	sink := NewPrometheusSink()

	sink.SetStoreHealthy(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(sink.storeUp))

	sink.SetStoreHealthy(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(sink.storeUp))
}

func TestPrometheusSink_Handler(t *testing.T) {
	sink := NewPrometheusSink()
	sink.RecordOutcome(models.EntityVenta, models.OutcomeConflictPending)

	rec := httptest.NewRecorder()
	sink.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `pos_sync_mutation_outcomes_total{entity="venta",outcome="conflict-pending"} 1`))
}
