package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type VehicleModel struct {
	Id          primitive.ObjectID     `bson:"_id,omitempty"`
	Vin         string                 `bson:"vin"`
	Name        *string                `bson:"name,omitempty"`
	CreatedAt   time.Time              `bson:"created_at"`
	NextCheckAt time.Time              `bson:"next_check_at"`
	LastResult  *InspectionResultModel `bson:"last_result,omitempty"`
}

func NewVehicleModel() *VehicleModel {
	return &VehicleModel{}
}
