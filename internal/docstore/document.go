package docstore

import (
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mbeoliero/bazaar/internal/entity"
)

const (
	collChats    = "chats"
	collMessages = "chats_messages"
	collReceipts = "read_status"
)

type listingPreviewDoc struct {
	Title string `bson:"title"`
	Cover string `bson:"cover"`
}

type chatDoc struct {
	Id             string             `bson:"_id"`
	PairKey        string             `bson:"pairKey,omitempty"`
	Participants   []string           `bson:"participants"`
	ListingId      string             `bson:"listingId,omitempty"`
	SellerId       string             `bson:"sellerId,omitempty"`
	ListingPreview *listingPreviewDoc `bson:"listingPreview,omitempty"`
	LastMessage    string             `bson:"lastMessage"`
	LastMessageAt  primitive.DateTime `bson:"lastMessageAt,omitempty"`
	CreatedAt      primitive.DateTime `bson:"createdAt,omitempty"`
	UpdatedAt      primitive.DateTime `bson:"updatedAt,omitempty"`
}

func (d *chatDoc) toEntity() *entity.Conversation {
	conv := &entity.Conversation{
		Id:          d.Id,
		PairKey:     d.PairKey,
		ListingId:   d.ListingId,
		SellerId:    d.SellerId,
		LastMessage: d.LastMessage,
		CreatedAt:   int64(d.CreatedAt),
		UpdatedAt:   int64(d.UpdatedAt),
	}
	if d.LastMessageAt != 0 {
		conv.LastMessageAt = int64(d.LastMessageAt)
	}
	if d.ListingPreview != nil {
		conv.ListingTitle = d.ListingPreview.Title
		conv.ListingCover = d.ListingPreview.Cover
	}
	return conv
}

// newChatFields are the fields written when a chat is created. Timestamps come from the server.
func newChatFields(conv *entity.Conversation, participants []string) map[string]any {
	fields := map[string]any{
		"participants": participants,
		"lastMessage":  conv.LastMessage,
	}
	if conv.PairKey != "" {
		fields["pairKey"] = conv.PairKey
	}
	if conv.HasListing() {
		fields["listingId"] = conv.ListingId
		fields["sellerId"] = conv.SellerId
	}
	if conv.ListingTitle != "" || conv.ListingCover != "" {
		fields["listingPreview"] = listingPreviewDoc{Title: conv.ListingTitle, Cover: conv.ListingCover}
	}
	return fields
}

type messageDoc struct {
	Id          string             `bson:"_id"`
	ChatId      string             `bson:"chatId"`
	SenderId    string             `bson:"senderId"`
	MsgType     int32              `bson:"msgType"`
	Text        string             `bson:"text"`
	ClientMsgId string             `bson:"clientMsgId,omitempty"`
	SentAt      primitive.DateTime `bson:"sentAt"`
}

func (d *messageDoc) toEntity() *entity.Message {
	return &entity.Message{
		Id:             d.Id,
		ConversationId: d.ChatId,
		SenderId:       d.SenderId,
		MsgType:        d.MsgType,
		Content:        d.Text,
		ClientMsgId:    d.ClientMsgId,
		SentAt:         d.SentAt.Time().UTC(),
	}
}

// receiptId is the _id of the read_status document of a user in a chat
func receiptId(chatId, userId string) string {
	return chatId + "_" + userId
}
