package service

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/bazaar/internal/entity"
	"github.com/mbeoliero/bazaar/internal/feed"
	"github.com/mbeoliero/bazaar/internal/tracker"
	"github.com/mbeoliero/bazaar/pkg/errcode"
)

type chatFixture struct {
	chats    *memChats
	listings *memListings
	feed     *feed.LocalFeed
	svc      *ChatService
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	chats := newMemChats()
	listings := newMemListings(&entity.Listing{
		Id:           "l1",
		SellerId:     "seller",
		BusinessName: "Corner Bakery",
		CoverUrl:     "https://img/bakery.jpg",
	})
	f := feed.NewLocalFeed()
	t.Cleanup(func() { _ = f.Close() })
	counter := tracker.NewCounter(chats, tracker.DefaultTolerance, nil)
	return &chatFixture{
		chats:    chats,
		listings: listings,
		feed:     f,
		svc:      NewChatService(chats, listings, f, counter),
	}
}

func TestStartChat_Validation(t *testing.T) {
	fx := newChatFixture(t)
	ctx := context.Background()

	_, err := fx.svc.StartChat(ctx, "buyer", &StartChatRequest{})
	assert.ErrorIs(t, err, errcode.ErrInvalidParam)

	_, err = fx.svc.StartChat(ctx, "buyer", &StartChatRequest{TargetUserId: "buyer"})
	assert.ErrorIs(t, err, errcode.ErrChatWithSelf)
}

func TestStartChat_CreatesWithListingPreview(t *testing.T) {
	fx := newChatFixture(t)
	ctx := context.Background()

	var signals atomic.Int32
	cancel, err := fx.feed.Subscribe(ctx, "seller", func() { signals.Add(1) })
	require.NoError(t, err)
	defer cancel()

	info, err := fx.svc.StartChat(ctx, "buyer", &StartChatRequest{TargetUserId: "seller", ListingId: "l1"})
	require.NoError(t, err)
	assert.NotEmpty(t, info.Id)
	assert.Equal(t, []string{"buyer", "seller"}, info.Participants)
	assert.Equal(t, "l1", info.ListingId)
	assert.Equal(t, "seller", info.SellerId)
	require.NotNil(t, info.ListingPreview)
	assert.Equal(t, "Corner Bakery", info.ListingPreview.Title)
	assert.Equal(t, "https://img/bakery.jpg", info.ListingPreview.Cover)

	assert.Eventually(t, func() bool { return signals.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestStartChat_MissingListingHasNoPreview(t *testing.T) {
	fx := newChatFixture(t)

	info, err := fx.svc.StartChat(context.Background(), "buyer", &StartChatRequest{TargetUserId: "seller", ListingId: "gone"})
	require.NoError(t, err)
	assert.Equal(t, "gone", info.ListingId)
	assert.Nil(t, info.ListingPreview)
}

func TestStartChat_ReusesAndBackfills(t *testing.T) {
	fx := newChatFixture(t)
	ctx := context.Background()

	first, err := fx.svc.StartChat(ctx, "buyer", &StartChatRequest{TargetUserId: "seller"})
	require.NoError(t, err)
	assert.Empty(t, first.ListingId)

	// the other side reaches the same conversation
	again, err := fx.svc.StartChat(ctx, "seller", &StartChatRequest{TargetUserId: "buyer"})
	require.NoError(t, err)
	assert.Equal(t, first.Id, again.Id)

	backfilled, err := fx.svc.StartChat(ctx, "buyer", &StartChatRequest{TargetUserId: "seller", ListingId: "l1"})
	require.NoError(t, err)
	assert.Equal(t, first.Id, backfilled.Id)
	assert.Equal(t, "l1", backfilled.ListingId)
	assert.Equal(t, "seller", backfilled.SellerId)

	// a listing already set is kept
	kept, err := fx.svc.StartChat(ctx, "buyer", &StartChatRequest{TargetUserId: "seller", ListingId: "l2"})
	require.NoError(t, err)
	assert.Equal(t, "l1", kept.ListingId)
	assert.Len(t, fx.chats.convs, 1)
}

func TestStartChat_ConcurrentCreateReusesWinner(t *testing.T) {
	fx := newChatFixture(t)
	fx.chats.beforeCreate = func() {
		fx.chats.mu.Lock()
		fx.chats.insert(&entity.Conversation{Id: "winner", PairKey: entity.PairKey("buyer", "seller")}, []string{"seller", "buyer"})
		fx.chats.mu.Unlock()
	}

	info, err := fx.svc.StartChat(context.Background(), "buyer", &StartChatRequest{TargetUserId: "seller"})
	require.NoError(t, err)
	assert.Equal(t, "winner", info.Id)
}

func TestSendMessage(t *testing.T) {
	fx := newChatFixture(t)
	ctx := context.Background()
	conv, err := fx.svc.StartChat(ctx, "buyer", &StartChatRequest{TargetUserId: "seller"})
	require.NoError(t, err)

	_, err = fx.svc.SendMessage(ctx, "buyer", &SendMessageRequest{ConversationId: conv.Id})
	assert.ErrorIs(t, err, errcode.ErrInvalidParam)

	_, err = fx.svc.SendMessage(ctx, "buyer", &SendMessageRequest{ConversationId: conv.Id, Content: strings.Repeat("x", MaxContentLength+1)})
	assert.ErrorIs(t, err, errcode.ErrMessageTooLarge)

	_, err = fx.svc.SendMessage(ctx, "stranger", &SendMessageRequest{ConversationId: conv.Id, Content: "hi"})
	assert.ErrorIs(t, err, errcode.ErrNotConvMember)

	_, err = fx.svc.SendMessage(ctx, "buyer", &SendMessageRequest{ConversationId: "missing", Content: "hi"})
	assert.ErrorIs(t, err, errcode.ErrConvNotFound)

	msg, err := fx.svc.SendMessage(ctx, "buyer", &SendMessageRequest{ConversationId: conv.Id, ClientMsgId: "c-1", Content: "is it available?"})
	require.NoError(t, err)
	assert.Equal(t, "buyer", msg.SenderId)
	assert.NotZero(t, msg.SentAt)

	dup, err := fx.svc.SendMessage(ctx, "buyer", &SendMessageRequest{ConversationId: conv.Id, ClientMsgId: "c-1", Content: "is it available?"})
	require.NoError(t, err)
	assert.Equal(t, msg.Id, dup.Id)
	assert.Len(t, fx.chats.messages[conv.Id], 1)
}

func TestListConversations_IncludesUnread(t *testing.T) {
	fx := newChatFixture(t)
	ctx := context.Background()
	conv, err := fx.svc.StartChat(ctx, "buyer", &StartChatRequest{TargetUserId: "seller"})
	require.NoError(t, err)
	for _, text := range []string{"hello", "still there?"} {
		_, err := fx.svc.SendMessage(ctx, "buyer", &SendMessageRequest{ConversationId: conv.Id, Content: text})
		require.NoError(t, err)
	}

	sellerView, err := fx.svc.ListConversations(ctx, "seller")
	require.NoError(t, err)
	require.Len(t, sellerView, 1)
	assert.Equal(t, 2, sellerView[0].UnreadCount)
	assert.Equal(t, "still there?", sellerView[0].LastMessage)

	buyerView, err := fx.svc.ListConversations(ctx, "buyer")
	require.NoError(t, err)
	assert.Equal(t, 0, buyerView[0].UnreadCount)

	page, err := fx.svc.GetMessages(ctx, "seller", &GetMessagesRequest{ConversationId: conv.Id, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "still there?", page[0].Content)

	_, err = fx.svc.GetMessages(ctx, "stranger", &GetMessagesRequest{ConversationId: conv.Id})
	assert.ErrorIs(t, err, errcode.ErrNotConvMember)
}
