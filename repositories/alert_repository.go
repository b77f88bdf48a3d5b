package repositories

import (
	"context"
	"time"

	"trailsafe/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AlertRepository persists emitted alerts.
type AlertRepository struct {
	collection *mongo.Collection
}

func NewAlertRepository(db *mongo.Database) *AlertRepository {
	return &AlertRepository{
		collection: db.Collection("alerts"),
	}
}

func (ar *AlertRepository) Create(ctx context.Context, alert *models.Alert) error {
	alert.ID = primitive.NewObjectID()
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}

	_, err := ar.collection.InsertOne(ctx, alert)
	return err
}

// Acknowledge marks an alert acknowledged by an operator.
func (ar *AlertRepository) Acknowledge(ctx context.Context, alertID, operatorID string) error {
	filter := bson.M{"alertId": alertID}
	update := bson.M{"$set": bson.M{
		"acknowledged":   true,
		"acknowledgedBy": operatorID,
	}}

	result, err := ar.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// GetRecentByEntity returns the latest alerts for an entity, newest first.
func (ar *AlertRepository) GetRecentByEntity(ctx context.Context, entityID string, limit int) ([]models.Alert, error) {
	filter := bson.M{"entityId": entityID}
	opts := options.Find().SetSort(bson.M{"createdAt": -1}).SetLimit(int64(limit))

	cursor, err := ar.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var alerts []models.Alert
	err = cursor.All(ctx, &alerts)
	return alerts, err
}

// CountUnacknowledged returns the number of alerts awaiting an operator.
func (ar *AlertRepository) CountUnacknowledged(ctx context.Context) (int64, error) {
	return ar.collection.CountDocuments(ctx, bson.M{"acknowledged": false})
}
