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

// AuditRepository is the append-only sink for broadcast audit records.
type AuditRepository struct {
	collection *mongo.Collection
}

func NewAuditRepository(db *mongo.Database) *AuditRepository {
	return &AuditRepository{
		collection: db.Collection("broadcast_audit"),
	}
}

// Record appends one immutable audit entry.
func (ar *AuditRepository) Record(ctx context.Context, record *models.AuditRecord) error {
	record.ID = primitive.NewObjectID()
	record.CreatedAt = time.Now()

	_, err := ar.collection.InsertOne(ctx, record)
	return err
}

// GetIncidentTrail returns the audit trail for one incident, oldest first.
func (ar *AuditRepository) GetIncidentTrail(ctx context.Context, incidentID string) ([]models.AuditRecord, error) {
	filter := bson.M{"incidentId": incidentID}
	opts := options.Find().SetSort(bson.M{"createdAt": 1})

	cursor, err := ar.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []models.AuditRecord
	err = cursor.All(ctx, &records)
	return records, err
}
