package gateway

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// LogDocument is one inbound client log record as stored in the
// monitoring database.
type LogDocument struct {
	ClientID    string    `bson:"client_id"`
	Message     string    `bson:"message"`
	Severity    uint32    `bson:"severity"`
	Timestamp   string    `bson:"timestamp"`
	Retries     int       `bson:"retries"`
	ReceiptTime time.Time `bson:"receipt_time"`
}

// MonitorGateway inserts log records into the monitoring database.
type MonitorGateway struct {
	collection *mongo.Collection
}

// NewMonitorGateway wraps the collection that stores log records.
func NewMonitorGateway(db *mongo.Database, collectionName string) *MonitorGateway {
	return &MonitorGateway{collection: db.Collection(collectionName)}
}

// InsertLog inserts one log record.
func (g *MonitorGateway) InsertLog(ctx context.Context, doc LogDocument) error {
	if _, err := g.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("gateway: monitor insert: %w", err)
	}
	return nil
}

// InsertLogBatch inserts many log records at once. The pipeline does not
// use it; it inserts inbound log records one at a time via InsertLog.
func (g *MonitorGateway) InsertLogBatch(ctx context.Context, docs []LogDocument) error {
	if len(docs) == 0 {
		return nil
	}
	batch := make([]interface{}, len(docs))
	for i, d := range docs {
		batch[i] = d
	}
	if _, err := g.collection.InsertMany(ctx, batch); err != nil {
		return fmt.Errorf("gateway: monitor insert batch: %w", err)
	}
	return nil
}

// RecentByClient returns the most recent n log records for clientID,
// newest first.
func (g *MonitorGateway) RecentByClient(ctx context.Context, clientID string, n int64) ([]LogDocument, error) {
	opts := options.Find().SetSort(bson.D{{Key: "receipt_time", Value: -1}}).SetLimit(n)
	cur, err := g.collection.Find(ctx, bson.M{"client_id": clientID}, opts)
	if err != nil {
		return nil, fmt.Errorf("gateway: monitor find: %w", err)
	}
	defer cur.Close(ctx)

	var out []LogDocument
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("gateway: monitor decode: %w", err)
	}
	return out, nil
}

// CheckConnectivity implements telemetry.ConnectivityChecker.
func (g *MonitorGateway) CheckConnectivity() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return g.collection.Database().Client().Ping(ctx, nil)
}
