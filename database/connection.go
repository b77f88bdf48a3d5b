package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var (
	client   *mongo.Client
	database *mongo.Database
)

// Connect establishes the MongoDB connection and ensures indexes.
func Connect(databaseURL string) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(databaseURL)
	clientOptions.SetMaxPoolSize(100)
	clientOptions.SetMinPoolSize(5)
	clientOptions.SetMaxConnIdleTime(30 * time.Second)
	clientOptions.SetRetryWrites(true)
	clientOptions.SetRetryReads(true)
	clientOptions.SetReadPreference(readpref.PrimaryPreferred())

	var err error
	client, err = mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err = client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	dbName := extractDatabaseName(databaseURL)
	database = client.Database(dbName)

	logrus.Infof("Connected to MongoDB, database: %s", dbName)

	if err := ensureIndexes(database); err != nil {
		logrus.Warnf("Index creation warning: %v", err)
	}

	return database, nil
}

// Disconnect closes the MongoDB connection.
func Disconnect() error {
	if client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Disconnect(ctx); err != nil {
		logrus.Errorf("Error disconnecting from MongoDB: %v", err)
		return err
	}

	logrus.Info("Disconnected from MongoDB")
	return nil
}

// GetDatabase returns the database instance.
func GetDatabase() *mongo.Database {
	return database
}

// IsConnected checks if the database connection is alive.
func IsConnected() bool {
	if client == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return client.Ping(ctx, readpref.Primary()) == nil
}

// ensureIndexes creates the indexes the hot paths depend on.
func ensureIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	contactIndexes := db.Collection("emergency_contacts").Indexes()
	if _, err := contactIndexes.CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "entityId", Value: 1}, {Key: "priority", Value: 1}},
	}); err != nil {
		return err
	}

	alertIndexes := db.Collection("alerts").Indexes()
	if _, err := alertIndexes.CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "entityId", Value: 1}, {Key: "createdAt", Value: -1}},
	}); err != nil {
		return err
	}

	auditIndexes := db.Collection("broadcast_audit").Indexes()
	if _, err := auditIndexes.CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "incidentId", Value: 1}},
	}); err != nil {
		return err
	}

	return nil
}

// extractDatabaseName pulls the database name from the connection URI,
// defaulting when the URI carries none.
func extractDatabaseName(uri string) string {
	const defaultDB = "trailsafe"

	idx := strings.LastIndex(uri, "/")
	if idx < 0 || idx == len(uri)-1 {
		return defaultDB
	}

	name := uri[idx+1:]
	if q := strings.Index(name, "?"); q >= 0 {
		name = name[:q]
	}
	if name == "" {
		return defaultDB
	}
	return name
}
