package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/itp-watch/itp-monitor-v2/internal/background"
	"github.com/itp-watch/itp-monitor-v2/internal/database"
	"github.com/itp-watch/itp-monitor-v2/internal/database/usecase"
	itp_middleware "github.com/itp-watch/itp-monitor-v2/internal/middleware"
	"github.com/itp-watch/itp-monitor-v2/internal/models"
	"github.com/itp-watch/itp-monitor-v2/internal/mqtt"
)

// Lenient VIN shape: uppercase alphanumerics without I/O/Q, real VINs are 17
// chars but older registrations can be shorter
var vinRe = regexp.MustCompile(`^[A-HJ-NPR-Z0-9]{5,17}$`)

// This handles all requests dealing with monitored vehicles
type vehicleHandler struct {
	dbClient       *database.DatabaseClient
	checkScheduler *background.CheckScheduler
	statePublisher *mqtt.StatePublisher
}

type registerVehicleRequest struct {
	Vin  string  `json:"vin"`
	Name *string `json:"name"`
}

func NewVehicleHandler(
	r *chi.Mux,
	dbClient *database.DatabaseClient,
	checkScheduler *background.CheckScheduler,
	statePublisher *mqtt.StatePublisher,
) {
	handler := &vehicleHandler{
		dbClient:       dbClient,
		checkScheduler: checkScheduler,
		statePublisher: statePublisher,
	}

	throttle := &itp_middleware.CheckThrottleMiddleware{CheckScheduler: checkScheduler}

	r.Route("/vehicles", func(r chi.Router) {
		r.Get("/", HandlerFunc(handler.GetAllVehicles).ServeHTTP)
		r.Post("/", HandlerFunc(handler.RegisterVehicle).ServeHTTP)
		r.Route("/{vin}", func(r chi.Router) {
			r.Get("/", HandlerFunc(handler.GetVehicle).ServeHTTP)
			r.Delete("/", HandlerFunc(handler.DeleteVehicle).ServeHTTP)
			r.Get("/history", HandlerFunc(handler.GetVehicleHistory).ServeHTTP)
			r.With(throttle.CheckQueueLimitMiddleware).Post("/check", HandlerFunc(handler.CheckNow).ServeHTTP)
		})
	})
}

func (h *vehicleHandler) GetAllVehicles(w http.ResponseWriter, r *http.Request) *HandlerError {
	ctx := r.Context()
	vehicles, err := h.dbClient.VehicleUseCase().GetAllVehicles(ctx)
	if err != nil {
		return NewHandlerError(err.Error(), http.StatusInternalServerError)
	}

	views := make([]map[string]interface{}, 0, len(vehicles))
	for i := range vehicles {
		views = append(views, vehicleView(&vehicles[i]))
	}

	data := make(map[string]interface{})
	data["data"] = views
	data["message"] = "received all vehicles"
	render.JSON(w, r, data)
	return nil
}

func (h *vehicleHandler) RegisterVehicle(w http.ResponseWriter, r *http.Request) *HandlerError {
	ctx := r.Context()

	var req registerVehicleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return NewHandlerError("could not decode request body", http.StatusBadRequest)
	}

	vin := strings.ToUpper(strings.TrimSpace(req.Vin))
	if !vinRe.MatchString(vin) {
		return NewHandlerError("invalid VIN", http.StatusBadRequest)
	}

	vehicle, err := h.dbClient.VehicleUseCase().RegisterVehicle(ctx, vin, req.Name)
	if err != nil {
		if errors.Is(err, usecase.ErrVehicleExists) {
			return NewHandlerError("vehicle is already registered", http.StatusConflict)
		}
		return NewHandlerError(err.Error(), http.StatusInternalServerError)
	}

	h.announceVehicle(vehicle)

	// the first check runs right away rather than waiting for the ticker
	if _, err := h.checkScheduler.QueueCheck(vehicle.Vin, false); err != nil {
		log.Printf("could not queue initial check for %s: %v", vehicle.Vin, err)
	}

	data := make(map[string]interface{})
	data["data"] = vehicleView(vehicle)
	data["message"] = "vehicle registered"
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, data)
	return nil
}

func (h *vehicleHandler) GetVehicle(w http.ResponseWriter, r *http.Request) *HandlerError {
	ctx := r.Context()

	vehicle, err := h.dbClient.VehicleUseCase().GetVehicleByVin(ctx, chi.URLParam(r, "vin"))
	if err != nil {
		if errors.Is(err, usecase.ErrVehicleNotFound) {
			return NewHandlerError("vehicle not found", http.StatusNotFound)
		}
		return NewHandlerError(err.Error(), http.StatusInternalServerError)
	}

	data := make(map[string]interface{})
	data["data"] = vehicleView(vehicle)
	data["message"] = "received vehicle"
	render.JSON(w, r, data)
	return nil
}

func (h *vehicleHandler) GetVehicleHistory(w http.ResponseWriter, r *http.Request) *HandlerError {
	ctx := r.Context()

	vehicle, err := h.dbClient.VehicleUseCase().GetVehicleByVin(ctx, chi.URLParam(r, "vin"))
	if err != nil {
		if errors.Is(err, usecase.ErrVehicleNotFound) {
			return NewHandlerError("vehicle not found", http.StatusNotFound)
		}
		return NewHandlerError(err.Error(), http.StatusInternalServerError)
	}

	checks, err := h.dbClient.InspectionCheckUseCase().GetChecksForVin(ctx, vehicle.Vin)
	if err != nil {
		return NewHandlerError(err.Error(), http.StatusInternalServerError)
	}

	data := make(map[string]interface{})
	data["data"] = checks
	data["message"] = "received check history"
	render.JSON(w, r, data)
	return nil
}

func (h *vehicleHandler) DeleteVehicle(w http.ResponseWriter, r *http.Request) *HandlerError {
	ctx := r.Context()

	vehicle, err := h.dbClient.VehicleUseCase().GetVehicleByVin(ctx, chi.URLParam(r, "vin"))
	if err != nil {
		if errors.Is(err, usecase.ErrVehicleNotFound) {
			return NewHandlerError("vehicle not found", http.StatusNotFound)
		}
		return NewHandlerError(err.Error(), http.StatusInternalServerError)
	}

	if err := h.dbClient.VehicleUseCase().DeleteVehicle(ctx, vehicle.Vin); err != nil {
		return NewHandlerError(err.Error(), http.StatusInternalServerError)
	}

	if err := h.dbClient.InspectionCheckUseCase().DeleteChecksForVin(ctx, vehicle.Vin); err != nil {
		log.Printf("could not delete check history for %s: %v", vehicle.Vin, err)
	}

	// retained discovery configs have to be cleared or HA keeps dead sensors
	if h.statePublisher != nil {
		if err := h.statePublisher.ClearVehicle(ctx, vehicle.Vin); err != nil {
			log.Printf("could not clear MQTT topics for %s: %v", vehicle.Vin, err)
		}
	}

	data := make(map[string]interface{})
	data["data"] = vehicle.Vin
	data["message"] = "vehicle deleted"
	render.JSON(w, r, data)
	return nil
}

func (h *vehicleHandler) CheckNow(w http.ResponseWriter, r *http.Request) *HandlerError {
	ctx := r.Context()

	vehicle, err := h.dbClient.VehicleUseCase().GetVehicleByVin(ctx, chi.URLParam(r, "vin"))
	if err != nil {
		if errors.Is(err, usecase.ErrVehicleNotFound) {
			return NewHandlerError("vehicle not found", http.StatusNotFound)
		}
		return NewHandlerError(err.Error(), http.StatusInternalServerError)
	}

	job, err := h.checkScheduler.QueueCheck(vehicle.Vin, true)
	if err != nil {
		return NewHandlerError(err.Error(), http.StatusServiceUnavailable)
	}

	data := make(map[string]interface{})
	data["data"] = map[string]interface{}{
		"job_id": job.ID,
		"vin":    job.Vin,
		"status": job.Status,
	}
	data["message"] = "check queued"
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, data)
	return nil
}

// announceVehicle publishes the Home Assistant discovery configs for a newly
// registered vehicle
func (h *vehicleHandler) announceVehicle(vehicle *models.VehicleModel) {
	if h.statePublisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.statePublisher.PublishVehicleDiscovery(ctx, vehicle.Vin, vehicle.Name); err != nil {
		log.Printf("could not publish discovery configs for %s: %v", vehicle.Vin, err)
	}
}

func vehicleView(vehicle *models.VehicleModel) map[string]interface{} {
	view := make(map[string]interface{})
	view["vin"] = vehicle.Vin
	view["name"] = vehicle.Name
	view["created_at"] = vehicle.CreatedAt
	view["next_check_at"] = vehicle.NextCheckAt
	view["last_result"] = vehicle.LastResult

	if vehicle.LastResult != nil {
		if days, ok := models.DaysUntil(vehicle.LastResult.ExpirationDate, time.Now()); ok {
			view["days_left"] = days
		} else {
			view["days_left"] = nil
		}
	}

	return view
}
