package browser

import (
	"context"
	"sync"
	"time"

	"github.com/shelfscan/backend/internal/domain"
)

// requestLog records requests issued by a page and wakes waiters on every new one
type requestLog struct {
	mutex    sync.Mutex
	requests []domain.CapturedRequest
	notify   chan struct{}
}

func newRequestLog() *requestLog {
	return &requestLog{notify: make(chan struct{}, 1)}
}

func (l *requestLog) add(r domain.CapturedRequest) {
	l.mutex.Lock()
	l.requests = append(l.requests, r)
	l.mutex.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// latest returns the most recent request accepted by match
func (l *requestLog) latest(match func(domain.CapturedRequest) bool) (*domain.CapturedRequest, bool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	for i := len(l.requests) - 1; i >= 0; i-- {
		if match(l.requests[i]) {
			r := l.requests[i]
			return &r, true
		}
	}
	return nil, false
}

// await blocks until a matching request was seen, the timeout passes or ctx ends
func (l *requestLog) await(ctx context.Context, match func(domain.CapturedRequest) bool, timeout time.Duration) (*domain.CapturedRequest, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if r, ok := l.latest(match); ok {
			return r, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, domain.ErrRequestNotCaptured
		case <-l.notify:
		}
	}
}
