package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/itp-watch/itp-monitor-v2/internal/database/repository"
	"github.com/itp-watch/itp-monitor-v2/internal/models"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrVehicleExists is returned when registering a VIN that is already monitored
var ErrVehicleExists = errors.New("vehicle is already registered")

// ErrVehicleNotFound is returned when a VIN has no vehicle document
var ErrVehicleNotFound = errors.New("vehicle not found")

type VehicleUseCase struct {
	vehicleRepo repository.VehicleRepository
}

func NewVehicleUseCase(vehicleRepo repository.VehicleRepository) *VehicleUseCase {
	return &VehicleUseCase{
		vehicleRepo: vehicleRepo,
	}
}

// RegisterVehicle adds a new VIN to monitor. The VIN is stored uppercased and
// acts as the unique key, so registering the same VIN twice is rejected.
// NextCheckAt is set to now so the scheduler picks the vehicle up right away.
func (uc *VehicleUseCase) RegisterVehicle(ctx context.Context, vin string, name *string) (*models.VehicleModel, error) {
	vin = strings.ToUpper(strings.TrimSpace(vin))

	existing, err := uc.vehicleRepo.GetByVin(ctx, vin)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}
	if existing != nil {
		return nil, ErrVehicleExists
	}

	now := time.Now()
	model := &models.VehicleModel{
		Vin:         vin,
		Name:        name,
		CreatedAt:   now,
		NextCheckAt: now,
	}

	saved, err := uc.vehicleRepo.Save(ctx, model)
	if err != nil {
		// the unique vin index catches registrations racing past the read above
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrVehicleExists
		}
		return nil, err
	}
	return saved, nil
}

func (uc *VehicleUseCase) GetVehicleByVin(ctx context.Context, vin string) (*models.VehicleModel, error) {
	vehicle, err := uc.vehicleRepo.GetByVin(ctx, strings.ToUpper(strings.TrimSpace(vin)))
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrVehicleNotFound
		}
		return nil, err
	}
	return vehicle, nil
}

func (uc *VehicleUseCase) GetAllVehicles(ctx context.Context) ([]models.VehicleModel, error) {
	return uc.vehicleRepo.GetAll(ctx)
}

// GetDueVehicles returns the vehicles whose NextCheckAt has passed
func (uc *VehicleUseCase) GetDueVehicles(ctx context.Context, now time.Time) ([]models.VehicleModel, error) {
	return uc.vehicleRepo.GetDue(ctx, now)
}

// RecordCheckResult stores the outcome of a successful lookup on the vehicle
// document and schedules the next check.
func (uc *VehicleUseCase) RecordCheckResult(ctx context.Context, vin string, result *models.InspectionResultModel, nextCheckAt time.Time) error {
	vehicle, err := uc.GetVehicleByVin(ctx, vin)
	if err != nil {
		return err
	}

	vehicle.LastResult = result
	vehicle.NextCheckAt = nextCheckAt
	return uc.vehicleRepo.UpdateByVin(ctx, vehicle.Vin, vehicle)
}

// RecordCheckFailure reschedules a vehicle after a failed lookup. The last
// known good result is intentionally left untouched.
func (uc *VehicleUseCase) RecordCheckFailure(ctx context.Context, vin string, nextCheckAt time.Time) error {
	vehicle, err := uc.GetVehicleByVin(ctx, vin)
	if err != nil {
		return err
	}

	vehicle.NextCheckAt = nextCheckAt
	return uc.vehicleRepo.UpdateByVin(ctx, vehicle.Vin, vehicle)
}

func (uc *VehicleUseCase) DeleteVehicle(ctx context.Context, vin string) error {
	vehicle, err := uc.GetVehicleByVin(ctx, vin)
	if err != nil {
		return err
	}
	return uc.vehicleRepo.DeleteByVin(ctx, vehicle.Vin)
}
