package entity

// Conversation is a thread between two or more users, optionally about a listing
type Conversation struct {
	Id            string `json:"id" gorm:"column:id;primaryKey"`
	PairKey       string `json:"pair_key" gorm:"column:pair_key;uniqueIndex;size:191"`
	ListingId     string `json:"listing_id" gorm:"column:listing_id"`
	SellerId      string `json:"seller_id" gorm:"column:seller_id"`
	ListingTitle  string `json:"listing_title" gorm:"column:listing_title"`
	ListingCover  string `json:"listing_cover" gorm:"column:listing_cover"`
	LastMessage   string `json:"last_message" gorm:"column:last_message"`
	LastMessageAt int64  `json:"last_message_at" gorm:"column:last_message_at"`
	CreatedAt     int64  `json:"created_at" gorm:"column:created_at;autoCreateTime:milli"`
	UpdatedAt     int64  `json:"updated_at" gorm:"column:updated_at;autoUpdateTime:milli"`
}

// TableName returns the table name for Conversation
func (Conversation) TableName() string {
	return "conversations"
}

// HasListing reports whether the conversation is tied to a listing
func (c *Conversation) HasListing() bool {
	return c.ListingId != ""
}

// ConversationMember is one participant of a conversation
type ConversationMember struct {
	Id             int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	ConversationId string `json:"conversation_id" gorm:"column:conversation_id;uniqueIndex:uk_conv_user,priority:1;size:64"`
	UserId         string `json:"user_id" gorm:"column:user_id;uniqueIndex:uk_conv_user,priority:2;index;size:64"`
	CreatedAt      int64  `json:"created_at" gorm:"column:created_at;autoCreateTime:milli"`
}

// TableName returns the table name for ConversationMember
func (ConversationMember) TableName() string {
	return "conversation_members"
}

// ListingPreview is the listing summary shown at the top of a chat
type ListingPreview struct {
	Title string `json:"title"`
	Cover string `json:"cover"`
}

// ConversationInfo represents conversation info for API response
type ConversationInfo struct {
	Id             string          `json:"id"`
	Participants   []string        `json:"participants"`
	ListingId      string          `json:"listing_id,omitempty"`
	SellerId       string          `json:"seller_id,omitempty"`
	ListingPreview *ListingPreview `json:"listing_preview,omitempty"`
	LastMessage    string          `json:"last_message"`
	LastMessageAt  int64           `json:"last_message_at"`
	UnreadCount    int             `json:"unread_count"`
	UpdatedAt      int64           `json:"updated_at"`
}

// ToConversationInfo converts Conversation to ConversationInfo
func (c *Conversation) ToConversationInfo(participants []string, unread int) *ConversationInfo {
	info := &ConversationInfo{
		Id:            c.Id,
		Participants:  participants,
		ListingId:     c.ListingId,
		SellerId:      c.SellerId,
		LastMessage:   c.LastMessage,
		LastMessageAt: c.LastMessageAt,
		UnreadCount:   unread,
		UpdatedAt:     c.UpdatedAt,
	}
	if c.ListingTitle != "" || c.ListingCover != "" {
		info.ListingPreview = &ListingPreview{Title: c.ListingTitle, Cover: c.ListingCover}
	}
	return info
}
