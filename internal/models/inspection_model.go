package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Inspection statuses as reported by the RAR result page
const (
	StatusValid    = "Valid"
	StatusNotFound = "Not Found"
	StatusUnknown  = "Unknown"
)

// UnknownExpiration is used when a record exists but no expiration date could be read
const UnknownExpiration = "Unknown"

// InspectionResultModel is the latest known inspection state of a vehicle.
// ExpirationDate is an ISO yyyy-mm-dd string or UnknownExpiration.
type InspectionResultModel struct {
	Status         string    `bson:"status"`
	ExpirationDate string    `bson:"expiration_date"`
	LastChecked    time.Time `bson:"last_checked"`
	Attempts       int       `bson:"attempts"`
}

// InspectionCheckModel is one completed (or failed) lookup against the RAR site.
// We keep these as a per-vehicle history in their own collection.
type InspectionCheckModel struct {
	Id             primitive.ObjectID `bson:"_id,omitempty"`
	Vin            string             `bson:"vin"`
	Status         string             `bson:"status"`
	ExpirationDate string             `bson:"expiration_date"`
	CheckedAt      time.Time          `bson:"checked_at"`
	Attempts       int                `bson:"attempts"`
	Error          *string            `bson:"error,omitempty"`
}

// DaysUntil returns the number of whole days from now until the given ISO
// expiration date. The second return is false when the date is unknown or
// not parsable.
func DaysUntil(expirationDate string, now time.Time) (int, bool) {
	if expirationDate == "" || expirationDate == UnknownExpiration {
		return 0, false
	}

	exp, err := time.ParseInLocation("2006-01-02", expirationDate, now.Location())
	if err != nil {
		return 0, false
	}

	nowDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return int(exp.Sub(nowDate).Hours() / 24), true
}
