package entity

import "time"

// Message represents a message. SentAt is assigned by the database clock.
type Message struct {
	Id             string    `json:"id" gorm:"column:id;primaryKey"`
	ConversationId string    `json:"conversation_id" gorm:"column:conversation_id;index:idx_conv_sent,priority:1;size:64"`
	SenderId       string    `json:"sender_id" gorm:"column:sender_id"`
	MsgType        int32     `json:"msg_type" gorm:"column:msg_type"`
	Content        string    `json:"content" gorm:"column:content;type:text"`
	ClientMsgId    string    `json:"client_msg_id" gorm:"column:client_msg_id"`
	SentAt         time.Time `json:"sent_at" gorm:"column:sent_at;type:datetime(3);index:idx_conv_sent,priority:2"`
}

// TableName returns the table name for Message
func (Message) TableName() string {
	return "messages"
}

// MessageInfo represents message info for API response
type MessageInfo struct {
	Id             string `json:"id"`
	ConversationId string `json:"conversation_id"`
	SenderId       string `json:"sender_id"`
	MsgType        int32  `json:"msg_type"`
	Content        string `json:"content"`
	ClientMsgId    string `json:"client_msg_id,omitempty"`
	SentAt         int64  `json:"sent_at"`
}

// ToMessageInfo converts Message to MessageInfo
func (m *Message) ToMessageInfo() *MessageInfo {
	return &MessageInfo{
		Id:             m.Id,
		ConversationId: m.ConversationId,
		SenderId:       m.SenderId,
		MsgType:        m.MsgType,
		Content:        m.Content,
		ClientMsgId:    m.ClientMsgId,
		SentAt:         m.SentAt.UnixMilli(),
	}
}
