package sink

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/andrej220/secuaudit/pkg/report"
)

const mongoConnectTimeout = 10 * time.Second

type replacer interface {
	ReplaceOne(ctx context.Context, filter, replacement any, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
}

// MongoSink stores one document per run, keyed by run id.
type MongoSink struct {
	client     *mongo.Client
	collection replacer
}

var _ Sink = (*MongoSink)(nil)

func NewMongo(ctx context.Context, uri, dbName, collName string) (*MongoSink, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return &MongoSink{
		client:     client,
		collection: client.Database(dbName).Collection(collName),
	}, nil
}

func (m *MongoSink) Publish(ctx context.Context, r report.Report) error {
	_, err := m.collection.ReplaceOne(ctx, bson.M{"_id": r.RunID}, r, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("MongoDB ReplaceOne failed for run %s: %w", r.RunID, err)
	}
	return nil
}

func (m *MongoSink) Close() error {
	if m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}
