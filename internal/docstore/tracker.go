package docstore

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mbeoliero/bazaar/internal/feed"
	"github.com/mbeoliero/bazaar/internal/tracker"
)

// watchPipeline matches chat changes that can alter the membership of identity
func watchPipeline(identity string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$or": bson.A{
			bson.M{"fullDocument.participants": identity},
			bson.M{"operationType": "delete"},
			bson.M{"updateDescription.updatedFields.participants": bson.M{"$exists": true}},
		}}}},
	}
}

// WatchConversations follows a change stream on chats. When change streams are
// disabled or the server refuses one, it follows the feed instead.
func (s *Store) WatchConversations(ctx context.Context, identity string, onChange func(conversationIds []string)) (func(), error) {
	list := func(ctx context.Context) ([]string, error) {
		return s.ListConversations(ctx, identity)
	}
	if !s.changeStreams {
		return feed.WatchList(ctx, s.feed, identity, s.timeout, list, onChange)
	}

	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	cs, err := s.chats().Watch(ctx, watchPipeline(identity), opts)
	if err != nil {
		log.CtxWarn(ctx, "open chats change stream failed, using feed: user_id=%s, error=%v", identity, err)
		return feed.WatchList(ctx, s.feed, identity, s.timeout, list, onChange)
	}
	return followStream(ctx, cs, s.feed, identity, s.timeout, list, onChange)
}

// eventStream is the part of *mongo.ChangeStream the watch consumes
type eventStream interface {
	Next(ctx context.Context) bool
	Err() error
	Close(ctx context.Context) error
}

// followStream relists on every stream event and on every feed signal for
// identity. Receipt writes only reach the feed. Relists never overlap, and
// onChange is not called after cancel.
func followStream(ctx context.Context, cs eventStream, f feed.Feed, identity string, timeout time.Duration,
	list func(ctx context.Context) ([]string, error), onChange func(conversationIds []string)) (func(), error) {
	watchCtx, cancel := context.WithCancel(ctx)

	var mu sync.Mutex
	relist := func() {
		mu.Lock()
		defer mu.Unlock()
		if watchCtx.Err() != nil {
			return
		}
		opCtx, cancelOp := context.WithTimeout(watchCtx, timeout)
		defer cancelOp()
		ids, err := list(opCtx)
		if err != nil {
			log.CtxWarn(opCtx, "relist conversations failed: user_id=%s, error=%v", identity, err)
			return
		}
		if watchCtx.Err() == nil {
			onChange(ids)
		}
	}

	unsubscribe, err := f.Subscribe(watchCtx, identity, relist)
	if err != nil {
		cancel()
		_ = cs.Close(context.Background())
		return nil, err
	}

	relist()
	go func() {
		defer cs.Close(context.Background())
		for cs.Next(watchCtx) {
			relist()
		}
		if err := cs.Err(); err != nil && watchCtx.Err() == nil {
			log.CtxWarn(watchCtx, "chats change stream stopped: user_id=%s, error=%v", identity, err)
		}
	}()
	return func() {
		cancel()
		unsubscribe()
	}, nil
}

func (s *Store) ListConversations(ctx context.Context, identity string) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.M{"_id": 1})
	cursor, err := s.chats().Find(ctx, bson.M{"participants": identity}, opts)
	if err != nil {
		return nil, err
	}
	var docs []struct {
		Id string `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.Id)
	}
	return ids, nil
}

// GetReceipt returns lastReadAt in its stored BSON form
func (s *Store) GetReceipt(ctx context.Context, conversationId, identity string) (*tracker.Receipt, error) {
	var doc bson.M
	err := s.receipts().FindOne(ctx, bson.M{"_id": receiptId(conversationId, identity)}).Decode(&doc)
	if err != nil {
		return nil, findError(err)
	}
	return &tracker.Receipt{
		ConversationId: conversationId,
		Identity:       identity,
		LastReadAt:     doc["lastReadAt"],
	}, nil
}

// PutReceipt merges fields into the receipt and stamps lastReadAt with the server clock
func (s *Store) PutReceipt(ctx context.Context, conversationId, identity string, fields map[string]any) error {
	set := maps.Clone(fields)
	if set == nil {
		set = make(map[string]any, 2)
	}
	set["chatId"] = conversationId
	set["userId"] = identity

	_, err := s.receipts().UpdateOne(ctx,
		bson.M{"_id": receiptId(conversationId, identity)},
		bson.M{"$set": set, "$currentDate": bson.M{"lastReadAt": true}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return err
	}
	if err := s.feed.Publish(ctx, identity); err != nil {
		log.CtxWarn(ctx, "publish receipt change failed: user_id=%s, error=%v", identity, err)
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, conversationId string) ([]tracker.MessageStamp, error) {
	opts := options.Find().SetProjection(bson.M{"senderId": 1, "sentAt": 1})
	cursor, err := s.messages().Find(ctx, bson.M{"chatId": conversationId}, opts)
	if err != nil {
		return nil, err
	}
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	stamps := make([]tracker.MessageStamp, 0, len(docs))
	for _, d := range docs {
		sender, _ := d["senderId"].(string)
		stamps = append(stamps, tracker.MessageStamp{SenderId: sender, SentAt: d["sentAt"]})
	}
	return stamps, nil
}
