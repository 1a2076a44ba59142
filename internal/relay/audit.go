package relay

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"personrelay/internal/constants"
)

// CycleRecord is the audit document written per drain cycle.
type CycleRecord struct {
	CycleID    string    `bson:"_id"`
	StartedAt  time.Time `bson:"started_at"`
	DurationMs int64     `bson:"duration_ms"`
	Status     string    `bson:"status"`
	AckMode    string    `bson:"ack_mode"`
	Result     Result    `bson:"result"`
	Error      string    `bson:"error,omitempty"`
}

type AuditSink interface {
	Record(ctx context.Context, rec CycleRecord) error
}

type MongoAuditSink struct {
	collection *mongo.Collection
}

func NewMongoAuditSink(db *mongo.Database, collection string) *MongoAuditSink {
	if collection == "" {
		collection = constants.DefaultAuditCollection
	}
	return &MongoAuditSink{collection: db.Collection(collection)}
}

func (s *MongoAuditSink) Record(ctx context.Context, rec CycleRecord) error {
	if _, err := s.collection.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("failed to insert relay cycle %s: %w", rec.CycleID, err)
	}
	return nil
}
