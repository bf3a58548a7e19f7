// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/go-pos-sync/models"
)

// spySyncService counts Push calls.
type spySyncService struct {
	calls    atomic.Int64
	lastType atomic.Value
	err      error
}

func (s *spySyncService) Enqueue(_ context.Context, in models.MutationInput) (models.MutationInput, error) {
	return in, nil
}

func (s *spySyncService) Push(_ context.Context, sessionType models.SessionType) (PushReport, error) {
	s.calls.Add(1)
	s.lastType.Store(sessionType)
	return PushReport{}, s.err
}

func (s *spySyncService) Status(context.Context) (models.OutboxStatus, error) {
	return models.OutboxStatus{}, nil
}

func TestNewClientSyncJob_ReturnsInterface(t *testing.T) {
	job := NewClientSyncJob(&spySyncService{})
	require.NotNil(t, job)
}

func TestClientSyncJob_Start_CallsPush(t *testing.T) {
	spy := &spySyncService{}
	job := NewClientSyncJob(spy)

	job.Start(context.Background(), 10*time.Millisecond)
	time.Sleep(55 * time.Millisecond)
	job.Stop()

	got := spy.calls.Load()
	assert.GreaterOrEqual(t, got, int64(3), "push called %d times", got)
	assert.Equal(t, models.SessionTypeIncremental, spy.lastType.Load())
}

func TestClientSyncJob_Stop_StopsGoroutine(t *testing.T) {
	spy := &spySyncService{}
	job := NewClientSyncJob(spy)

	job.Start(context.Background(), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	job.Stop()

	callsAfterStop := spy.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, callsAfterStop, spy.calls.Load())
}

func TestClientSyncJob_Stop_Idempotent(t *testing.T) {
	job := NewClientSyncJob(&spySyncService{})
	assert.NotPanics(t, func() { job.Stop() })

	job.Start(context.Background(), 10*time.Millisecond)
	job.Stop()
	assert.NotPanics(t, func() { job.Stop() })
}

func TestClientSyncJob_Start_PushesImmediately(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second, time.Hour} {
		spy := &spySyncService{}
		job := NewClientSyncJob(spy)

		job.Start(context.Background(), interval)
		require.Eventually(t, func() bool { return spy.calls.Load() == 1 }, time.Second, time.Millisecond, "interval %v", interval)
		time.Sleep(20 * time.Millisecond)
		job.Stop()

		assert.Equal(t, int64(1), spy.calls.Load(), "interval %v", interval)
	}
}

func TestClientSyncJob_Restart_StopsPrevious(t *testing.T) {
	spy := &spySyncService{}
	job := NewClientSyncJob(spy)

	job.Start(context.Background(), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	callsBefore := spy.calls.Load()
	assert.Greater(t, callsBefore, int64(0))

	job.Start(context.Background(), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	job.Stop()

	assert.Greater(t, spy.calls.Load(), callsBefore)
}

func TestClientSyncJob_ContextCancel_StopsJob(t *testing.T) {
	job := NewClientSyncJob(&spySyncService{})
	ctx, cancel := context.WithCancel(context.Background())

	job.Start(ctx, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		job.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop hung after context cancel")
	}
}

func TestClientSyncJob_PushError_DoesNotStopJob(t *testing.T) {
	spy := &spySyncService{err: assert.AnError}
	job := NewClientSyncJob(spy)

	job.Start(context.Background(), 10*time.Millisecond)
	time.Sleep(55 * time.Millisecond)
	job.Stop()

	assert.GreaterOrEqual(t, spy.calls.Load(), int64(3))
}
