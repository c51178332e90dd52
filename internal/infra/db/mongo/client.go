package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Client struct {
	DB *mongo.Database
}

func New(uri, database string) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	opts := options.Client().ApplyURI(uri).SetRetryWrites(true)
	m, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Client{DB: m.Database(database)}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.Client().Ping(ctx, nil)
}

// EnsureIndexes creates the query indexes the repositories rely on.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	_, err := c.DB.Collection(latestCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "facility_id", Value: 1}, {Key: "unit_type", Value: 1}}},
		{Keys: bson.D{{Key: "available_units", Value: 1}, {Key: "timestamp", Value: 1}}},
	})
	if err != nil {
		return err
	}
	_, err = c.DB.Collection(historyCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "facility_id", Value: 1}, {Key: "unit_type", Value: 1}, {Key: "timestamp", Value: 1}}},
		{Keys: bson.D{{Key: "timestamp", Value: 1}}},
	})
	if err != nil {
		return err
	}
	_, err = c.DB.Collection(rulesCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "priority", Value: 1}, {Key: "seq", Value: 1}}},
	})
	return err
}
