package commentclient

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// refresher runs fn once, delay after the first Schedule call. Further calls made
// while a run is pending are folded into it.
type refresher struct {
	fn     func(ctx context.Context) error
	delay  time.Duration
	logger *zap.Logger

	queue   chan struct{} // 待执行的刷新请求
	pending bool
	mu      sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newRefresher(fn func(ctx context.Context) error, delay time.Duration, logger *zap.Logger) *refresher {
	ctx, cancel := context.WithCancel(context.Background())
	r := &refresher{
		fn:     fn,
		delay:  delay,
		logger: logger,
		queue:  make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	// 启动后台 worker
	go r.worker()
	return r
}

// Schedule 请求一次延迟刷新；已有待执行的刷新时直接跳过
func (r *refresher) Schedule() {
	r.mu.Lock()
	if r.pending || r.ctx.Err() != nil {
		r.mu.Unlock()
		return
	}
	r.pending = true
	r.mu.Unlock()

	select {
	case r.queue <- struct{}{}:
	default:
		// worker already has a request queued
	}
}

// Pending reports whether a refresh is scheduled but has not run yet.
func (r *refresher) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

func (r *refresher) worker() {
	defer close(r.done)
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.queue:
		}

		timer := time.NewTimer(r.delay)
		select {
		case <-r.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		// 先清除 pending，刷新期间的新变更会再排一次
		r.mu.Lock()
		r.pending = false
		r.mu.Unlock()

		if err := r.fn(r.ctx); err != nil && r.ctx.Err() == nil {
			r.logger.Warn("background refresh failed", zap.Error(err))
		}
	}
}

// Stop cancels a pending or running refresh and waits for the worker to exit.
func (r *refresher) Stop() {
	r.cancel()
	<-r.done
}
