// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MKhiriev/go-pos-sync/internal/config"
	"github.com/MKhiriev/go-pos-sync/internal/logger"
	"github.com/MKhiriev/go-pos-sync/internal/mock"
)

type recordingHealth struct {
	mu      sync.Mutex
	reports []bool
}

func (r *recordingHealth) SetHealthy(healthy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, healthy)
}

func (r *recordingHealth) snapshot() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.reports...)
}

func TestNewWorkers_SkipsDisabledJobs(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mock.NewMockMaintenanceService(ctrl)

	assert.Len(t, NewWorkers(m, nil, config.Workers{}, logger.Nop()).workers, 0)
	assert.Len(t, NewWorkers(m, nil, config.Workers{ReaperInterval: time.Second}, logger.Nop()).workers, 1)
	assert.Len(t, NewWorkers(m, nil, config.Workers{ReaperInterval: time.Second, HealthInterval: time.Second}, logger.Nop(),
		WorkerFunc(func(context.Context) error { return nil })).workers, 3)
}

func TestReaper_RevertsStaleMutations(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mock.NewMockMaintenanceService(ctrl)

	var calls atomic.Int32
	m.EXPECT().ReapProcessing(gomock.Any(), 10*time.Minute).DoAndReturn(func(context.Context, time.Duration) (int64, error) {
		if calls.Add(1) == 2 {
			return 0, errors.New("store is unavailable")
		}
		return 1, nil
	}).MinTimes(3)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	w := NewWorkers(m, nil, config.Workers{ReaperInterval: 10 * time.Millisecond, ProcessingStaleAfter: 10 * time.Minute}, logger.Nop())
	require.NoError(t, w.Run(ctx))
}

func TestHealthProbe_ReportsEveryProbe(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mock.NewMockMaintenanceService(ctrl)

	var calls atomic.Int32
	m.EXPECT().ProbeStore(gomock.Any()).DoAndReturn(func(context.Context) error {
		if calls.Add(1) == 2 {
			return errors.New("ping failed")
		}
		return nil
	}).MinTimes(3)

	health := &recordingHealth{}
	ctx, cancel := context.WithTimeout(context.Background(), 75*time.Millisecond)
	defer cancel()

	w := NewWorkers(m, health, config.Workers{HealthInterval: 10 * time.Millisecond}, logger.Nop())
	require.NoError(t, w.Run(ctx))

	reports := health.snapshot()
	require.GreaterOrEqual(t, len(reports), 3)
	assert.True(t, reports[0], "first probe runs on start")
	assert.False(t, reports[1])
	assert.True(t, reports[2])
}

func TestWorkers_Run_FirstErrorCancelsOthers(t *testing.T) {
	boom := errors.New("boom")
	var stopped atomic.Bool

	w := &Workers{workers: []Worker{
		WorkerFunc(func(ctx context.Context) error {
			<-ctx.Done()
			stopped.Store(true)
			return nil
		}),
		WorkerFunc(func(context.Context) error { return boom }),
	}}

	err := w.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.True(t, stopped.Load())
}

func TestWorkers_Run_Empty(t *testing.T) {
	assert.NoError(t, (&Workers{}).Run(context.Background()))
}
