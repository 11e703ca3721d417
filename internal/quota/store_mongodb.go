package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"tutorgate/internal/core"
)

// MongoDBStore persists quota counters in MongoDB. Increment uses an
// atomic $inc upsert, so concurrent callers never lose updates.
type MongoDBStore struct {
	collection *mongo.Collection
}

// NewMongoDBStore creates the quota collection with its unique index.
func NewMongoDBStore(database *mongo.Database) (*MongoDBStore, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}

	collection := database.Collection("quota_usage")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "feature", Value: 1},
			{Key: "window_start", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create quota index: %w", err)
	}

	return &MongoDBStore{collection: collection}, nil
}

func (s *MongoDBStore) Get(ctx context.Context, userID string, feature core.FeatureType, windowStart time.Time) (*Record, error) {
	filter := bson.D{
		{Key: "user_id", Value: userID},
		{Key: "feature", Value: string(feature)},
		{Key: "window_start", Value: windowStart},
	}

	var doc struct {
		RequestCount int64 `bson:"request_count"`
		TokenCount   int64 `bson:"token_count"`
	}
	err := s.collection.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read quota record: %w", err)
	}

	return &Record{
		UserID:       userID,
		Feature:      feature,
		WindowStart:  windowStart,
		RequestCount: doc.RequestCount,
		TokenCount:   doc.TokenCount,
	}, nil
}

func (s *MongoDBStore) Increment(ctx context.Context, userID string, feature core.FeatureType, windowStart time.Time, requests, tokens int64) error {
	filter := bson.D{
		{Key: "user_id", Value: userID},
		{Key: "feature", Value: string(feature)},
		{Key: "window_start", Value: windowStart},
	}
	update := bson.D{
		{Key: "$inc", Value: bson.D{
			{Key: "request_count", Value: requests},
			{Key: "token_count", Value: tokens},
		}},
	}

	_, err := s.collection.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to increment quota record: %w", err)
	}
	return nil
}

// Close is a no-op: the client is managed by the storage layer.
func (s *MongoDBStore) Close() error {
	return nil
}
