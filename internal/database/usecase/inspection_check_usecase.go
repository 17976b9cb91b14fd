package usecase

import (
	"context"
	"strings"

	"github.com/itp-watch/itp-monitor-v2/internal/database/repository"
	"github.com/itp-watch/itp-monitor-v2/internal/models"
)

type InspectionCheckUseCase struct {
	checkRepo repository.InspectionCheckRepository
}

func NewInspectionCheckUseCase(checkRepo repository.InspectionCheckRepository) *InspectionCheckUseCase {
	return &InspectionCheckUseCase{
		checkRepo: checkRepo,
	}
}

func (uc *InspectionCheckUseCase) RecordCheck(ctx context.Context, check *models.InspectionCheckModel) (*models.InspectionCheckModel, error) {
	check.Vin = strings.ToUpper(strings.TrimSpace(check.Vin))
	return uc.checkRepo.Save(ctx, check)
}

func (uc *InspectionCheckUseCase) GetChecksForVin(ctx context.Context, vin string) ([]models.InspectionCheckModel, error) {
	return uc.checkRepo.GetByVin(ctx, strings.ToUpper(strings.TrimSpace(vin)))
}

func (uc *InspectionCheckUseCase) DeleteChecksForVin(ctx context.Context, vin string) error {
	return uc.checkRepo.DeleteByVin(ctx, strings.ToUpper(strings.TrimSpace(vin)))
}
