package service

import (
	"context"
	"sync"
	"time"

	"github.com/MKhiriev/go-pos-sync/internal/logger"
	"github.com/MKhiriev/go-pos-sync/models"
)

const defaultPushInterval = time.Minute

type clientSyncJob struct {
	syncService ClientSyncService

	mu   sync.Mutex
	stop context.CancelFunc
	done chan struct{}
}

// NewClientSyncJob returns an idle job around syncService.
func NewClientSyncJob(syncService ClientSyncService) ClientSyncJob {
	return &clientSyncJob{syncService: syncService}
}

// Start pushes the outbox once right away and then every interval (one
// minute when interval is not positive) until ctx is done or Stop is called.
// A running job is stopped first.
func (j *clientSyncJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultPushInterval
	}
	j.Stop()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	j.mu.Lock()
	j.stop, j.done = cancel, done
	j.mu.Unlock()

	go func() {
		defer close(done)
		j.loop(ctx, interval)
	}()
}

func (j *clientSyncJob) loop(ctx context.Context, interval time.Duration) {
	log := logger.FromContext(ctx)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		report, err := j.syncService.Push(ctx, models.SessionTypeIncremental)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			log.Warn().Err(err).Str("func", "*clientSyncJob.loop").Dur("retry_in", interval).Msg("push failed")
		case report.Sent > 0 || report.Pulled > 0:
			log.Debug().Str("func", "*clientSyncJob.loop").Str("session_id", report.SessionID).
				Int("sent", report.Sent).Int("pulled", report.Pulled).Msg("outbox pushed")
		}
		timer.Reset(interval)
	}
}

// Stop cancels the running push loop and waits for it to exit. It is a
// no-op on an idle job.
func (j *clientSyncJob) Stop() {
	j.mu.Lock()
	stop, done := j.stop, j.done
	j.stop, j.done = nil, nil
	j.mu.Unlock()

	if stop == nil {
		return
	}
	stop()
	<-done
}
