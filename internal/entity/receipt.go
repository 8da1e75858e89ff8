package entity

import "time"

// ReadReceipt records up to when a user has read a conversation.
// LastReadAt is assigned by the database clock at write time.
type ReadReceipt struct {
	ConversationId string     `json:"conversation_id" gorm:"column:conversation_id;primaryKey;size:64"`
	UserId         string     `json:"user_id" gorm:"column:user_id;primaryKey;size:64"`
	LastReadAt     *time.Time `json:"last_read_at" gorm:"column:last_read_at;type:datetime(3)"`
	Extra          *string    `json:"extra" gorm:"column:extra;type:json"`
	UpdatedAt      int64      `json:"updated_at" gorm:"column:updated_at;autoUpdateTime:milli"`
}

// TableName returns the table name for ReadReceipt
func (ReadReceipt) TableName() string {
	return "read_receipts"
}
