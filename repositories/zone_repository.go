package repositories

import (
	"context"

	"trailsafe/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// ZoneRepository serves the danger-zone reference data.
type ZoneRepository struct {
	collection *mongo.Collection
}

func NewZoneRepository(db *mongo.Database) *ZoneRepository {
	return &ZoneRepository{
		collection: db.Collection("danger_zones"),
	}
}

// GetAll returns every registered danger zone. The safety monitor memoizes
// the result in the bounded cache.
func (zr *ZoneRepository) GetAll(ctx context.Context) ([]models.DangerZone, error) {
	cursor, err := zr.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var zones []models.DangerZone
	err = cursor.All(ctx, &zones)
	return zones, err
}

func (zr *ZoneRepository) Create(ctx context.Context, zone *models.DangerZone) error {
	zone.ID = primitive.NewObjectID()
	_, err := zr.collection.InsertOne(ctx, zone)
	return err
}
