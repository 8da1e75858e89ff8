package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPairKey_OrderIndependent(t *testing.T) {
	assert.Equal(t, PairKey("u_2", "u_1"), PairKey("u_1", "u_2"))
	assert.Equal(t, "u_1:u_2", PairKey("u_2", "u_1"))
}

func TestToConversationInfo(t *testing.T) {
	conv := &Conversation{Id: "c1", ListingId: "l1", SellerId: "s1", ListingTitle: "Bakery", LastMessage: "hi"}
	info := conv.ToConversationInfo([]string{"b1", "s1"}, 2)
	assert.Equal(t, &ListingPreview{Title: "Bakery"}, info.ListingPreview)
	assert.Equal(t, 2, info.UnreadCount)

	plain := (&Conversation{Id: "c2"}).ToConversationInfo(nil, 0)
	assert.Nil(t, plain.ListingPreview)
}

func TestToMessageInfo(t *testing.T) {
	sent := time.Date(2025, 3, 14, 15, 9, 26, 535000000, time.UTC)
	info := (&Message{Id: "m1", SentAt: sent}).ToMessageInfo()
	assert.Equal(t, sent.UnixMilli(), info.SentAt)
}
