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

// ContactRepository is the Mongo-backed contact directory.
type ContactRepository struct {
	collection *mongo.Collection
}

func NewContactRepository(db *mongo.Database) *ContactRepository {
	return &ContactRepository{
		collection: db.Collection("emergency_contacts"),
	}
}

// GetActiveContacts returns the entity's active contacts ordered ascending by
// priority (1 = first to notify).
func (cr *ContactRepository) GetActiveContacts(ctx context.Context, entityID string) ([]models.EmergencyContact, error) {
	filter := bson.M{"entityId": entityID, "active": true}
	opts := options.Find().SetSort(bson.M{"priority": 1})

	cursor, err := cr.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var contacts []models.EmergencyContact
	err = cursor.All(ctx, &contacts)
	return contacts, err
}

func (cr *ContactRepository) Create(ctx context.Context, contact *models.EmergencyContact) error {
	contact.ID = primitive.NewObjectID()
	_, err := cr.collection.InsertOne(ctx, contact)
	return err
}

func (cr *ContactRepository) Deactivate(ctx context.Context, entityID, phone string) error {
	filter := bson.M{"entityId": entityID, "phone": phone}
	update := bson.M{"$set": bson.M{"active": false, "updatedAt": time.Now()}}

	_, err := cr.collection.UpdateOne(ctx, filter, update)
	return err
}
