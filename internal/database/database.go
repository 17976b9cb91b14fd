package database

import (
	"context"
	"fmt"

	"github.com/itp-watch/itp-monitor-v2/internal/database/repository"
	"github.com/itp-watch/itp-monitor-v2/internal/database/usecase"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// A DatabaseClient establishes a connection to the MongoDB database and allows
// for interfacing through the different collections through it.
// Whoever uses this struct to establish a connection to the database is responsible
// for calling the Disconnect() method to gracefully disconnect from the database
type DatabaseClient struct {
	databaseClient            *mongo.Client
	vehicleRepository         *repository.MongoVehicleRepository
	inspectionCheckRepository *repository.MongoInspectionCheckRepository
}

const ItpMonitorDatabase = "itp_monitor_db"

func NewDatabaseClient(ctx context.Context, uri string) (*DatabaseClient, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("could not connect to MongoDB: %v", err)
	}

	err = client.Ping(ctx, nil)
	if err != nil {
		fmt.Println("Error pinging MongoDB:", err)
		return nil, err
	}

	databaseClient := &DatabaseClient{
		databaseClient: client,
	}

	itpMonitorDatabase := client.Database(ItpMonitorDatabase)
	if itpMonitorDatabase == nil {
		return nil, fmt.Errorf("could not connect to database: %v", itpMonitorDatabase)
	}

	vehicleRepository, err := repository.NewMongoVehicleRepository(client, itpMonitorDatabase)
	if err != nil {
		return nil, fmt.Errorf("could not create vehicleRepository: %v", err)
	}
	databaseClient.vehicleRepository = vehicleRepository

	inspectionCheckRepository, err := repository.NewMongoInspectionCheckRepository(client, itpMonitorDatabase)
	if err != nil {
		return nil, fmt.Errorf("could not create inspectionCheckRepository: %v", err)
	}
	databaseClient.inspectionCheckRepository = inspectionCheckRepository

	return databaseClient, nil
}

func (client *DatabaseClient) VehicleUseCase() *usecase.VehicleUseCase {
	return usecase.NewVehicleUseCase(client.vehicleRepository)
}

func (client *DatabaseClient) InspectionCheckUseCase() *usecase.InspectionCheckUseCase {
	return usecase.NewInspectionCheckUseCase(client.inspectionCheckRepository)
}

func (client *DatabaseClient) Disconnect(ctx context.Context) error {
	err := client.databaseClient.Disconnect(ctx)
	if err != nil {
		return fmt.Errorf("failed to disconnect MongoDB client: %w", err)
	}
	return nil
}
