package repository

import (
	"context"
	"fmt"

	"github.com/itp-watch/itp-monitor-v2/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const InspectionCheckCollection string = "inspection_checks"

type InspectionCheckRepository interface {
	Save(ctx context.Context, check *models.InspectionCheckModel) (*models.InspectionCheckModel, error)
	GetByVin(ctx context.Context, vin string) ([]models.InspectionCheckModel, error)
	DeleteByVin(ctx context.Context, vin string) error
}

type MongoInspectionCheckRepository struct {
	dbClient   *mongo.Client
	db         *mongo.Database
	collection *mongo.Collection
}

func NewMongoInspectionCheckRepository(dbClient *mongo.Client, database *mongo.Database) (*MongoInspectionCheckRepository, error) {
	collection := database.Collection(InspectionCheckCollection)
	if collection == nil {
		return nil, fmt.Errorf("could not get collection %s", InspectionCheckCollection)
	}

	return &MongoInspectionCheckRepository{
		dbClient:   dbClient,
		db:         database,
		collection: collection,
	}, nil
}

// Inserts an InspectionCheckModel into the MongoDB database
func (repo *MongoInspectionCheckRepository) Save(ctx context.Context, check *models.InspectionCheckModel) (*models.InspectionCheckModel, error) {
	res, err := repo.collection.InsertOne(ctx, check)
	if err != nil {
		return nil, fmt.Errorf("could not insert inspection check for %v, received error: %v", check.Vin, err)
	}

	check.Id = res.InsertedID.(primitive.ObjectID)
	return check, nil
}

// Get the check history for a VIN, most recent first
func (repo *MongoInspectionCheckRepository) GetByVin(ctx context.Context, vin string) ([]models.InspectionCheckModel, error) {
	filter := bson.M{"vin": vin}
	opts := options.Find().SetSort(bson.M{"checked_at": -1})

	cursor, err := repo.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("could not find inspection checks for %v, received error: %v", vin, err)
	}

	var modelResults []models.InspectionCheckModel

	if err = cursor.All(ctx, &modelResults); err != nil {
		return nil, err
	}

	if modelResults == nil {
		modelResults = make([]models.InspectionCheckModel, 0)
	}

	return modelResults, nil
}

// Delete all check history for a VIN
func (repo *MongoInspectionCheckRepository) DeleteByVin(ctx context.Context, vin string) error {
	filter := bson.M{"vin": vin}
	_, err := repo.collection.DeleteMany(ctx, filter)
	if err != nil {
		return err
	}

	return nil
}
