package usage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"tutorgate/internal/core"
)

// MongoDBReader implements Reader for MongoDB.
type MongoDBReader struct {
	collection *mongo.Collection
}

// NewMongoDBReader creates a new MongoDB usage reader.
func NewMongoDBReader(database *mongo.Database) (*MongoDBReader, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &MongoDBReader{collection: database.Collection("usage")}, nil
}

func (r *MongoDBReader) Stats(ctx context.Context, userID string, lookbackDays int) (*core.UsageStats, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -lookbackDays)

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "user_id", Value: userID},
			{Key: "timestamp", Value: bson.D{{Key: "$gte", Value: cutoff}}},
		}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total_requests", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "total_tokens", Value: bson.D{{Key: "$sum", Value: "$total_tokens"}}},
			{Key: "total_cost_cents", Value: bson.D{{Key: "$sum", Value: "$cost_cents"}}},
			{Key: "cache_hits", Value: bson.D{{Key: "$sum", Value: bson.D{
				{Key: "$cond", Value: bson.A{"$cache_hit", 1, 0}},
			}}}},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate usage stats: %w", err)
	}
	defer cursor.Close(ctx)

	var row struct {
		TotalRequests  int64 `bson:"total_requests"`
		TotalTokens    int64 `bson:"total_tokens"`
		TotalCostCents int64 `bson:"total_cost_cents"`
		CacheHits      int64 `bson:"cache_hits"`
	}

	stats := &core.UsageStats{}
	if cursor.Next(ctx) {
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to decode usage stats: %w", err)
		}
		stats.TotalRequests = row.TotalRequests
		stats.TotalTokens = row.TotalTokens
		stats.TotalCostCents = row.TotalCostCents
		if row.TotalRequests > 0 {
			stats.CacheHitRate = float64(row.CacheHits) / float64(row.TotalRequests)
			stats.AverageTokensPerRequest = float64(row.TotalTokens) / float64(row.TotalRequests)
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage stats: %w", err)
	}

	return stats, nil
}
