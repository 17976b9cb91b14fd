package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/itp-watch/itp-monitor-v2/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const VehicleCollection string = "vehicles"

type VehicleRepository interface {
	Save(ctx context.Context, vehicle *models.VehicleModel) (*models.VehicleModel, error)
	GetByVin(ctx context.Context, vin string) (*models.VehicleModel, error)
	GetAll(ctx context.Context) ([]models.VehicleModel, error)
	GetDue(ctx context.Context, now time.Time) ([]models.VehicleModel, error)
	UpdateByVin(ctx context.Context, vin string, vehicle *models.VehicleModel) error
	DeleteByVin(ctx context.Context, vin string) error
}

type MongoVehicleRepository struct {
	dbClient   *mongo.Client
	db         *mongo.Database
	collection *mongo.Collection
}

func NewMongoVehicleRepository(dbClient *mongo.Client, database *mongo.Database) (*MongoVehicleRepository, error) {
	collection := database.Collection(VehicleCollection)
	if collection == nil {
		return nil, fmt.Errorf("could not get collection %s", VehicleCollection)
	}

	// vin is the unique key, concurrent registrations of the same vin must
	// not both land
	vinIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "vin", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := collection.Indexes().CreateOne(context.TODO(), vinIndex); err != nil {
		return nil, fmt.Errorf("could not create unique vin index: %v", err)
	}

	return &MongoVehicleRepository{
		dbClient:   dbClient,
		db:         database,
		collection: collection,
	}, nil
}

// Inserts a VehicleModel into the MongoDB database
func (repo *MongoVehicleRepository) Save(ctx context.Context, vehicle *models.VehicleModel) (*models.VehicleModel, error) {
	res, err := repo.collection.InsertOne(ctx, vehicle)
	if err != nil {
		// %w so duplicate key errors stay detectable upstream
		return nil, fmt.Errorf("could not insert vehicle %v, received error: %w", vehicle.Vin, err)
	}

	vehicle.Id = res.InsertedID.(primitive.ObjectID)
	return vehicle, nil
}

// Get a VehicleModel from the MongoDB database by its VIN
func (repo *MongoVehicleRepository) GetByVin(ctx context.Context, vin string) (*models.VehicleModel, error) {
	filter := bson.M{"vin": vin}
	result := repo.collection.FindOne(ctx, filter)
	if result.Err() != nil {
		return nil, result.Err()
	}

	var model models.VehicleModel
	err := result.Decode(&model)
	if err != nil {
		return nil, fmt.Errorf("could not decode result into model: %v", err)
	}

	return &model, nil
}

// Get all registered vehicles
func (repo *MongoVehicleRepository) GetAll(ctx context.Context) ([]models.VehicleModel, error) {
	cursor, err := repo.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("could not list vehicles, received error: %v", err)
	}

	var modelResults []models.VehicleModel

	if err = cursor.All(ctx, &modelResults); err != nil {
		return nil, err
	}

	if modelResults == nil {
		modelResults = make([]models.VehicleModel, 0)
	}

	return modelResults, nil
}

// Get all vehicles whose next scheduled check is due
func (repo *MongoVehicleRepository) GetDue(ctx context.Context, now time.Time) ([]models.VehicleModel, error) {
	filter := bson.M{"next_check_at": bson.M{"$lte": now}}
	cursor, err := repo.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("could not list due vehicles, received error: %v", err)
	}

	var modelResults []models.VehicleModel

	if err = cursor.All(ctx, &modelResults); err != nil {
		return nil, err
	}

	if modelResults == nil {
		modelResults = make([]models.VehicleModel, 0)
	}

	return modelResults, nil
}

// Updates a VehicleModel in the MongoDB database by its VIN
func (repo *MongoVehicleRepository) UpdateByVin(ctx context.Context, vin string, vehicle *models.VehicleModel) error {
	filter := bson.M{"vin": vin}
	resp := repo.collection.FindOneAndReplace(ctx, filter, vehicle)
	if resp.Err() != nil {
		return resp.Err()
	}
	return nil
}

// Delete a VehicleModel from the MongoDB database by its VIN
func (repo *MongoVehicleRepository) DeleteByVin(ctx context.Context, vin string) error {
	filter := bson.M{"vin": vin}
	_, err := repo.collection.DeleteOne(ctx, filter)
	if err != nil {
		return err
	}

	return nil
}
