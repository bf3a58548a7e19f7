package service

import (
	"context"
	"sync"
)

// deviceLocks serializes the sync calls of each device. Entries are
// reference counted and dropped once no caller holds or waits for them.
type deviceLocks struct {
	mu    sync.Mutex
	locks map[string]*deviceLock
}

type deviceLock struct {
	sem  chan struct{}
	refs int
}

func newDeviceLocks() *deviceLocks {
	return &deviceLocks{locks: make(map[string]*deviceLock)}
}

// lock blocks until the device is free or ctx is done. The returned function
// releases the device.
func (l *deviceLocks) lock(ctx context.Context, deviceID string) (func(), error) {
	l.mu.Lock()
	dl, ok := l.locks[deviceID]
	if !ok {
		dl = &deviceLock{sem: make(chan struct{}, 1)}
		l.locks[deviceID] = dl
	}
	dl.refs++
	l.mu.Unlock()

	select {
	case dl.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(deviceID, dl)
		return nil, ErrDeviceBusy
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-dl.sem
			l.release(deviceID, dl)
		})
	}, nil
}

func (l *deviceLocks) release(deviceID string, dl *deviceLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	dl.refs--
	if dl.refs == 0 {
		delete(l.locks, deviceID)
	}
}

func (l *deviceLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
