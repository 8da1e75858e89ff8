package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/mbeoliero/bazaar/internal/config"
	"github.com/mbeoliero/bazaar/internal/feed"
	"github.com/mbeoliero/bazaar/internal/tracker"
)

// Store keeps chats, messages and read receipts in MongoDB. It serves both
// the unread tracker and the chat service.
type Store struct {
	db            *mongo.Database
	feed          feed.Feed
	changeStreams bool
	timeout       time.Duration
}

var _ tracker.Store = (*Store)(nil)

// Connect opens a client and pings the primary
func Connect(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb connect error: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping error: %w", err)
	}
	return client, nil
}

// New creates a Store. Without change streams, watches fall back to the feed.
func New(client *mongo.Client, cfg config.MongoConfig, f feed.Feed, timeout time.Duration) *Store {
	return &Store{
		db:            client.Database(cfg.Database),
		feed:          f,
		changeStreams: cfg.ChangeStreams,
		timeout:       timeout,
	}
}

// EnsureIndexes creates the indexes the queries rely on
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		collChats: {
			{Keys: bson.D{{Key: "participants", Value: 1}, {Key: "updatedAt", Value: -1}}},
			{
				Keys: bson.D{{Key: "pairKey", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.M{"pairKey": bson.M{"$type": "string"}}),
			},
		},
		collMessages: {
			{Keys: bson.D{{Key: "chatId", Value: 1}, {Key: "sentAt", Value: -1}}},
			{
				Keys: bson.D{{Key: "senderId", Value: 1}, {Key: "clientMsgId", Value: 1}},
				Options: options.Index().
					SetPartialFilterExpression(bson.M{"clientMsgId": bson.M{"$type": "string"}}),
			},
		},
	}
	for coll, models := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", coll, err)
		}
	}
	return nil
}

// Close disconnects the client
func (s *Store) Close(ctx context.Context) error {
	return s.db.Client().Disconnect(ctx)
}

func (s *Store) chats() *mongo.Collection    { return s.db.Collection(collChats) }
func (s *Store) messages() *mongo.Collection { return s.db.Collection(collMessages) }
func (s *Store) receipts() *mongo.Collection { return s.db.Collection(collReceipts) }

func findError(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil
	}
	return err
}
