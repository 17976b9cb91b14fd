package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/itp-watch/itp-monitor-v2/internal/background"
)

// This handles all requests dealing with the check queue in the server
type checksHandler struct {
	checkScheduler *background.CheckScheduler
}

func NewChecksHandler(
	r *chi.Mux,
	checkScheduler *background.CheckScheduler,
) {
	handler := &checksHandler{
		checkScheduler: checkScheduler,
	}

	r.Route("/checks", func(r chi.Router) {
		r.Get("/queue", handler.GetQueueStatus)
	})
}

func (handler *checksHandler) GetQueueStatus(w http.ResponseWriter, r *http.Request) {
	queuedChecks := handler.checkScheduler.QueuedChecks.Load()
	maxQueuedChecks := handler.checkScheduler.MaxQueuedChecks()

	data := make(map[string]interface{})
	data["queued_checks"] = queuedChecks
	data["max_queued_checks"] = maxQueuedChecks
	data["available_queue_slots"] = maxQueuedChecks - queuedChecks
	data["actively_processing"] = handler.checkScheduler.ActivelyProcessing()
	data["check_interval_hours"] = handler.checkScheduler.CheckInterval().Hours()

	response := make(map[string]interface{})
	response["message"] = nil
	response["data"] = data
	render.JSON(w, r, response)
}
