package service

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/mbeoliero/bazaar/internal/entity"
	"github.com/mbeoliero/bazaar/internal/tracker"
)

// memChats is an in-memory ChatStore that also serves the tracker port
type memChats struct {
	mu        sync.Mutex
	convs     map[string]*entity.Conversation
	members   map[string][]string
	messages  map[string][]*entity.Message
	receipts  map[string]time.Time
	clock     time.Time
	createErr error
	// beforeCreate runs once, ahead of the first CreateConversation
	beforeCreate func()
}

func newMemChats() *memChats {
	return &memChats{
		convs:    make(map[string]*entity.Conversation),
		members:  make(map[string][]string),
		messages: make(map[string][]*entity.Message),
		receipts: make(map[string]time.Time),
		clock:    time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC),
	}
}

func (m *memChats) tick() time.Time {
	m.clock = m.clock.Add(time.Minute)
	return m.clock
}

func (m *memChats) insert(conv *entity.Conversation, memberIds []string) {
	m.convs[conv.Id] = conv
	m.members[conv.Id] = slices.Clone(memberIds)
}

func (m *memChats) FindPairConversation(_ context.Context, pairKey string) (*entity.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.convs {
		if c.PairKey == pairKey {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memChats) CreateConversation(_ context.Context, conv *entity.Conversation, memberIds []string) error {
	if hook := m.beforeCreate; hook != nil {
		m.beforeCreate = nil
		hook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, c := range m.convs {
		if c.PairKey != "" && c.PairKey == conv.PairKey {
			return entity.ErrDuplicate
		}
	}
	cp := *conv
	m.insert(&cp, memberIds)
	return nil
}

func (m *memChats) BackfillListing(_ context.Context, conversationId, listingId, sellerId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convs[conversationId].ListingId = listingId
	m.convs[conversationId].SellerId = sellerId
	return nil
}

func (m *memChats) AppendMessage(_ context.Context, msg *entity.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.SentAt = m.tick()
	cp := *msg
	m.messages[msg.ConversationId] = append(m.messages[msg.ConversationId], &cp)
	m.convs[msg.ConversationId].LastMessage = msg.Content
	return nil
}

func (m *memChats) FindMessageByClientMsgId(_ context.Context, senderId, clientMsgId string) (*entity.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msgs := range m.messages {
		for _, msg := range msgs {
			if msg.SenderId == senderId && msg.ClientMsgId == clientMsgId {
				return msg, nil
			}
		}
	}
	return nil, nil
}

func (m *memChats) GetConversation(_ context.Context, id string) (*entity.Conversation, []string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[id]
	if !ok {
		return nil, nil, nil
	}
	cp := *c
	return &cp, slices.Clone(m.members[id]), nil
}

func (m *memChats) ListUserConversations(_ context.Context, userId string) ([]*entity.Conversation, map[string][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var convs []*entity.Conversation
	members := make(map[string][]string)
	for id, ms := range m.members {
		if slices.Contains(ms, userId) {
			cp := *m.convs[id]
			convs = append(convs, &cp)
			members[id] = slices.Clone(ms)
		}
	}
	slices.SortFunc(convs, func(a, b *entity.Conversation) int { return cmp.Compare(a.Id, b.Id) })
	return convs, members, nil
}

func (m *memChats) ListMessagePage(_ context.Context, conversationId string, before time.Time, limit int) ([]*entity.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var page []*entity.Message
	for _, msg := range m.messages[conversationId] {
		if before.IsZero() || msg.SentAt.Before(before) {
			page = append(page, msg)
		}
	}
	if limit > 0 && len(page) > limit {
		page = page[len(page)-limit:]
	}
	return page, nil
}

func (m *memChats) WatchConversations(context.Context, string, func([]string)) (func(), error) {
	return func() {}, nil
}

func (m *memChats) ListConversations(ctx context.Context, identity string) ([]string, error) {
	convs, _, _ := m.ListUserConversations(ctx, identity)
	ids := make([]string, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.Id)
	}
	return ids, nil
}

func (m *memChats) GetReceipt(_ context.Context, conversationId, identity string) (*tracker.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.receipts[conversationId+"/"+identity]
	if !ok {
		return nil, nil
	}
	return &tracker.Receipt{ConversationId: conversationId, Identity: identity, LastReadAt: at}, nil
}

func (m *memChats) PutReceipt(_ context.Context, conversationId, identity string, _ map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receipts[conversationId+"/"+identity] = m.tick()
	return nil
}

func (m *memChats) ListMessages(_ context.Context, conversationId string) ([]tracker.MessageStamp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stamps := make([]tracker.MessageStamp, 0, len(m.messages[conversationId]))
	for _, msg := range m.messages[conversationId] {
		stamps = append(stamps, tracker.MessageStamp{SenderId: msg.SenderId, SentAt: msg.SentAt})
	}
	return stamps, nil
}

// memListings is an in-memory ListingFinder and ReviewCodeStore
type memListings struct {
	mu       sync.Mutex
	listings map[string]*entity.Listing
	used     map[string]bool
}

func newMemListings(listings ...*entity.Listing) *memListings {
	m := &memListings{listings: make(map[string]*entity.Listing), used: make(map[string]bool)}
	for _, l := range listings {
		m.listings[l.Id] = l
	}
	return m
}

func (m *memListings) GetById(_ context.Context, id string) (*entity.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (m *memListings) SetReviewCode(_ context.Context, id, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings[id].ReviewCode = code
	return nil
}

func (m *memListings) IsCodeUsed(_ context.Context, listingId, code, userId string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used[listingId+"/"+code+"/"+userId], nil
}

func (m *memListings) MarkCodeUsed(_ context.Context, listingId, code, userId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := listingId + "/" + code + "/" + userId
	if m.used[key] {
		return entity.ErrDuplicate
	}
	m.used[key] = true
	return nil
}

func (m *memListings) Create(_ context.Context, listing *entity.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *listing
	m.listings[listing.Id] = &cp
	return nil
}
