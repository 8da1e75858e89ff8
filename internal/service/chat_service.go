package service

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/bazaar/internal/entity"
	"github.com/mbeoliero/bazaar/internal/feed"
	"github.com/mbeoliero/bazaar/internal/tracker"
	"github.com/mbeoliero/bazaar/pkg/constant"
	"github.com/mbeoliero/bazaar/pkg/errcode"
	"github.com/mbeoliero/bazaar/pkg/idgen"
)

// MaxContentLength is the longest message text in characters
const MaxContentLength = 4000

// ChatService handles conversations between buyers and sellers
type ChatService struct {
	store    ChatStore
	listings ListingFinder
	feed     feed.Feed
	counter  *tracker.Counter
}

// NewChatService creates a new ChatService. counter fills the unread count of listed conversations.
func NewChatService(store ChatStore, listings ListingFinder, f feed.Feed, counter *tracker.Counter) *ChatService {
	return &ChatService{
		store:    store,
		listings: listings,
		feed:     f,
		counter:  counter,
	}
}

// StartChatRequest represents start chat request
type StartChatRequest struct {
	TargetUserId string `json:"target_user_id"`
	ListingId    string `json:"listing_id,omitempty"`
}

// StartChat returns the one-to-one conversation with the target user, creating it
// when missing. An existing conversation without a listing is tied to the given one.
func (s *ChatService) StartChat(ctx context.Context, currentId string, req *StartChatRequest) (*entity.ConversationInfo, error) {
	if currentId == "" || req.TargetUserId == "" {
		return nil, errcode.ErrInvalidParam
	}
	if currentId == req.TargetUserId {
		return nil, errcode.ErrChatWithSelf
	}

	participants := []string{currentId, req.TargetUserId}
	pairKey := entity.PairKey(currentId, req.TargetUserId)

	existing, err := s.store.FindPairConversation(ctx, pairKey)
	if err != nil {
		log.CtxError(ctx, "find pair conversation failed: pair_key=%s, error=%v", pairKey, err)
		return nil, errcode.ErrInternalServer
	}
	if existing != nil {
		return s.reuse(ctx, existing, participants, req.ListingId)
	}

	id, err := idgen.NextID()
	if err != nil {
		log.CtxError(ctx, "generate conversation id failed: %v", err)
		return nil, errcode.ErrInternalServer
	}
	conv := &entity.Conversation{Id: id, PairKey: pairKey}
	if req.ListingId != "" {
		conv.ListingId = req.ListingId
		conv.SellerId = req.TargetUserId
		if preview := s.listingPreview(ctx, req.ListingId); preview != nil {
			conv.ListingTitle = preview.Title
			conv.ListingCover = preview.Cover
		}
	}

	err = s.store.CreateConversation(ctx, conv, participants)
	if errors.Is(err, entity.ErrDuplicate) {
		// the other side started the same chat concurrently
		existing, err = s.store.FindPairConversation(ctx, pairKey)
		if err == nil && existing != nil {
			return s.reuse(ctx, existing, participants, req.ListingId)
		}
	}
	if err != nil {
		log.CtxError(ctx, "create conversation failed: pair_key=%s, error=%v", pairKey, err)
		return nil, errcode.ErrInternalServer
	}

	log.CtxInfo(ctx, "conversation started: conversation_id=%s, user_id=%s, target_id=%s, listing_id=%s",
		conv.Id, currentId, req.TargetUserId, req.ListingId)
	notify(ctx, s.feed, participants...)
	return conv.ToConversationInfo(participants, 0), nil
}

func (s *ChatService) reuse(ctx context.Context, conv *entity.Conversation, participants []string, listingId string) (*entity.ConversationInfo, error) {
	if listingId != "" && !conv.HasListing() {
		sellerId := participants[1]
		if err := s.store.BackfillListing(ctx, conv.Id, listingId, sellerId); err != nil {
			log.CtxError(ctx, "backfill listing failed: conversation_id=%s, error=%v", conv.Id, err)
			return nil, errcode.ErrInternalServer
		}
		conv.ListingId = listingId
		conv.SellerId = sellerId
		notify(ctx, s.feed, participants...)
	}
	return conv.ToConversationInfo(participants, s.count(ctx, conv.Id, participants[0])), nil
}

// listingPreview is best effort; a chat is still created when the listing is gone
func (s *ChatService) listingPreview(ctx context.Context, listingId string) *entity.ListingPreview {
	listing, err := s.listings.GetById(ctx, listingId)
	if err != nil {
		log.CtxWarn(ctx, "load listing preview failed: listing_id=%s, error=%v", listingId, err)
		return nil
	}
	if listing == nil {
		return nil
	}
	preview := listing.Preview()
	return &preview
}

// SendMessageRequest represents send message request
type SendMessageRequest struct {
	ConversationId string `json:"conversation_id"`
	ClientMsgId    string `json:"client_msg_id,omitempty"`
	MsgType        int32  `json:"msg_type,omitempty"`
	Content        string `json:"content"`
}

// SendMessage appends a message and signals every member
func (s *ChatService) SendMessage(ctx context.Context, senderId string, req *SendMessageRequest) (*entity.MessageInfo, error) {
	if req.Content == "" {
		return nil, errcode.ErrInvalidParam
	}
	if utf8.RuneCountInString(req.Content) > MaxContentLength {
		return nil, errcode.ErrMessageTooLarge
	}

	_, members, err := loadMembership(ctx, s.store, req.ConversationId, senderId)
	if err != nil {
		return nil, err
	}

	if req.ClientMsgId != "" {
		existing, err := s.store.FindMessageByClientMsgId(ctx, senderId, req.ClientMsgId)
		if err != nil {
			log.CtxError(ctx, "check idempotency failed: %v", err)
			return nil, errcode.ErrInternalServer
		}
		if existing != nil {
			log.CtxDebug(ctx, "duplicate message: client_msg_id=%s", req.ClientMsgId)
			return existing.ToMessageInfo(), nil
		}
	}

	id, err := idgen.NextID()
	if err != nil {
		log.CtxError(ctx, "generate message id failed: %v", err)
		return nil, errcode.ErrInternalServer
	}
	msgType := req.MsgType
	if msgType == 0 {
		msgType = constant.MsgTypeText
	}
	msg := &entity.Message{
		Id:             id,
		ConversationId: req.ConversationId,
		SenderId:       senderId,
		MsgType:        msgType,
		Content:        req.Content,
		ClientMsgId:    req.ClientMsgId,
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		log.CtxError(ctx, "append message failed: conversation_id=%s, error=%v", req.ConversationId, err)
		return nil, errcode.ErrSendFailed.Wrap(err)
	}

	log.CtxDebug(ctx, "message sent: conversation_id=%s, msg_id=%s, sender_id=%s", msg.ConversationId, msg.Id, senderId)
	notify(ctx, s.feed, members...)
	return msg.ToMessageInfo(), nil
}

// ListConversations gets the user's conversations with their server-side unread counts
func (s *ChatService) ListConversations(ctx context.Context, userId string) ([]*entity.ConversationInfo, error) {
	convs, members, err := s.store.ListUserConversations(ctx, userId)
	if err != nil {
		log.CtxError(ctx, "list conversations failed: user_id=%s, error=%v", userId, err)
		return nil, errcode.ErrInternalServer
	}

	infos := make([]*entity.ConversationInfo, 0, len(convs))
	for _, conv := range convs {
		infos = append(infos, conv.ToConversationInfo(members[conv.Id], s.count(ctx, conv.Id, userId)))
	}
	return infos, nil
}

// GetMessagesRequest represents a page of history; Before is unix millis, 0 for the latest
type GetMessagesRequest struct {
	ConversationId string `json:"conversation_id" query:"conversation_id"`
	Before         int64  `json:"before,omitempty" query:"before"`
	Limit          int    `json:"limit,omitempty" query:"limit"`
}

// GetMessages gets a page of messages, oldest first
func (s *ChatService) GetMessages(ctx context.Context, userId string, req *GetMessagesRequest) ([]*entity.MessageInfo, error) {
	if _, _, err := loadMembership(ctx, s.store, req.ConversationId, userId); err != nil {
		return nil, err
	}

	var before time.Time
	if req.Before > 0 {
		before = time.UnixMilli(req.Before).UTC()
	}
	messages, err := s.store.ListMessagePage(ctx, req.ConversationId, before, req.Limit)
	if err != nil {
		log.CtxError(ctx, "list messages failed: conversation_id=%s, error=%v", req.ConversationId, err)
		return nil, errcode.ErrInternalServer
	}

	infos := make([]*entity.MessageInfo, 0, len(messages))
	for _, m := range messages {
		infos = append(infos, m.ToMessageInfo())
	}
	return infos, nil
}

func (s *ChatService) count(ctx context.Context, conversationId, userId string) int {
	if s.counter == nil {
		return 0
	}
	return s.counter.Count(ctx, conversationId, userId)
}
