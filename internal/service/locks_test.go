package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceLocks_SerializesOneDevice(t *testing.T) {
	locks := newDeviceLocks()

	var active, maxActive atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locks.lock(context.Background(), "pos-01")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			n := active.Add(1)
			for {
				m := maxActive.Load()
				if n <= m || maxActive.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive.Load())
	assert.Equal(t, 0, locks.len())
}

func TestDeviceLocks_DistinctDevicesDoNotBlock(t *testing.T) {
	locks := newDeviceLocks()

	unlockA, err := locks.lock(context.Background(), "pos-01")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := locks.lock(ctx, "pos-02")
	require.NoError(t, err)
	unlockB()
}

func TestDeviceLocks_ContextEndsWhileWaiting(t *testing.T) {
	locks := newDeviceLocks()

	unlock, err := locks.lock(context.Background(), "pos-01")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = locks.lock(ctx, "pos-01")
	assert.ErrorIs(t, err, ErrDeviceBusy)

	unlock()
	unlock()
	assert.Equal(t, 0, locks.len())
}
