package docstore

import (
	"context"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mbeoliero/bazaar/internal/entity"
)

// FindPairConversation gets the one-to-one chat for a pair key, nil when absent
func (s *Store) FindPairConversation(ctx context.Context, pairKey string) (*entity.Conversation, error) {
	var doc chatDoc
	if err := s.chats().FindOne(ctx, bson.M{"pairKey": pairKey}).Decode(&doc); err != nil {
		return nil, findError(err)
	}
	return doc.toEntity(), nil
}

// CreateConversation inserts a chat stamped by the server clock, entity.ErrDuplicate when the pair already has one
func (s *Store) CreateConversation(ctx context.Context, conv *entity.Conversation, memberIds []string) error {
	_, err := s.chats().UpdateOne(ctx,
		bson.M{"_id": conv.Id},
		bson.M{
			"$setOnInsert": newChatFields(conv, memberIds),
			"$currentDate": bson.M{"createdAt": true, "updatedAt": true},
		},
		options.Update().SetUpsert(true),
	)
	if mongo.IsDuplicateKeyError(err) {
		return entity.ErrDuplicate
	}
	return err
}

// BackfillListing ties an existing chat to a listing
func (s *Store) BackfillListing(ctx context.Context, conversationId, listingId, sellerId string) error {
	_, err := s.chats().UpdateOne(ctx,
		bson.M{"_id": conversationId},
		bson.M{
			"$set":         bson.M{"listingId": listingId, "sellerId": sellerId},
			"$currentDate": bson.M{"updatedAt": true},
		},
	)
	return err
}

// AppendMessage stores msg with a server assigned sentAt and moves the chat's last message to it
func (s *Store) AppendMessage(ctx context.Context, msg *entity.Message) error {
	fields := bson.M{
		"chatId":   msg.ConversationId,
		"senderId": msg.SenderId,
		"msgType":  msg.MsgType,
		"text":     msg.Content,
	}
	if msg.ClientMsgId != "" {
		fields["clientMsgId"] = msg.ClientMsgId
	}

	_, err := s.messages().UpdateOne(ctx,
		bson.M{"_id": msg.Id},
		bson.M{"$setOnInsert": fields, "$currentDate": bson.M{"sentAt": true}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return err
	}

	var doc messageDoc
	if err := s.messages().FindOne(ctx, bson.M{"_id": msg.Id}).Decode(&doc); err != nil {
		return err
	}
	*msg = *doc.toEntity()

	_, err = s.chats().UpdateOne(ctx,
		bson.M{"_id": msg.ConversationId},
		bson.M{
			"$set":         bson.M{"lastMessage": msg.Content, "lastMessageAt": doc.SentAt},
			"$currentDate": bson.M{"updatedAt": true},
		},
	)
	return err
}

// FindMessageByClientMsgId gets a message by its client id, nil when absent
func (s *Store) FindMessageByClientMsgId(ctx context.Context, senderId, clientMsgId string) (*entity.Message, error) {
	var doc messageDoc
	err := s.messages().FindOne(ctx, bson.M{"senderId": senderId, "clientMsgId": clientMsgId}).Decode(&doc)
	if err != nil {
		return nil, findError(err)
	}
	return doc.toEntity(), nil
}

// GetConversation gets a chat and its participants, nil when absent
func (s *Store) GetConversation(ctx context.Context, id string) (*entity.Conversation, []string, error) {
	var doc chatDoc
	if err := s.chats().FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, nil, findError(err)
	}
	return doc.toEntity(), doc.Participants, nil
}

// ListUserConversations gets a user's chats, most recently updated first
func (s *Store) ListUserConversations(ctx context.Context, userId string) ([]*entity.Conversation, map[string][]string, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	cursor, err := s.chats().Find(ctx, bson.M{"participants": userId}, opts)
	if err != nil {
		return nil, nil, err
	}
	var docs []chatDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, nil, err
	}

	convs := make([]*entity.Conversation, 0, len(docs))
	members := make(map[string][]string, len(docs))
	for i := range docs {
		convs = append(convs, docs[i].toEntity())
		members[docs[i].Id] = docs[i].Participants
	}
	return convs, members, nil
}

// ListMessagePage gets up to limit messages sent before the given time, oldest first
func (s *Store) ListMessagePage(ctx context.Context, conversationId string, before time.Time, limit int) ([]*entity.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	filter := bson.M{"chatId": conversationId}
	if !before.IsZero() {
		filter["sentAt"] = bson.M{"$lt": before}
	}

	opts := options.Find().SetSort(bson.D{{Key: "sentAt", Value: -1}}).SetLimit(int64(limit))
	cursor, err := s.messages().Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	messages := make([]*entity.Message, 0, len(docs))
	for i := range docs {
		messages = append(messages, docs[i].toEntity())
	}
	slices.Reverse(messages)
	return messages, nil
}
