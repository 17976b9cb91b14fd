package itp_middleware

import (
	"fmt"
	"net/http"

	"github.com/itp-watch/itp-monitor-v2/internal/background"
)

type CheckThrottleMiddleware struct {
	CheckScheduler *background.CheckScheduler
}

// CheckQueueLimitMiddleware rejects forced checks while the scheduler queue is
// full. Every captcha round hits the RAR site three times, so an unbounded
// queue of forced checks would hammer it.
func (ct *CheckThrottleMiddleware) CheckQueueLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queued := ct.CheckScheduler.QueuedChecks.Load()
		maxQueued := ct.CheckScheduler.MaxQueuedChecks()

		if queued >= maxQueued {
			http.Error(w, fmt.Sprintf(
				"Check queue is full. Queued: %d checks, Max: %d checks",
				queued,
				maxQueued,
			), http.StatusServiceUnavailable)
			return
		}

		next.ServeHTTP(w, r)
	})
}
