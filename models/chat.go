package models

import "time"

// SenderRole is the role snapshot stored on a chat message.
type SenderRole string

const (
	SenderClient   SenderRole = "client"
	SenderDesigner SenderRole = "designer"
	SenderAdmin    SenderRole = "admin"
	SenderSystem   SenderRole = "system"
)

// MessageType distinguishes plain text, file-bearing and system messages.
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

// ChatRoom binds one order to its conversation
type ChatRoom struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	OrderID     uint      `gorm:"not null;uniqueIndex" json:"order_id"` // one room per order
	ClientID    uint      `gorm:"not null;index" json:"client_id"`
	AdminID     *uint     `gorm:"index" json:"admin_id"` // assigned staff member (designer or admin)
	UnreadCount int       `gorm:"not null;default:0;check:unread_count >= 0" json:"unread_count"`
	IsActive    bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName specifies the table name for the ChatRoom model
func (ChatRoom) TableName() string {
	return "chat_rooms"
}

// ChatMessage is an immutable chat event. Only IsRead changes after creation.
type ChatMessage struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	RoomID      uint        `gorm:"not null;index" json:"room_id"`
	OrderID     uint        `gorm:"not null;index:idx_chat_messages_order_created,priority:1" json:"order_id"`
	SenderID    uint        `gorm:"not null" json:"sender_id"`
	SenderName  string      `gorm:"not null" json:"sender_name"`
	SenderRole  SenderRole  `gorm:"type:varchar(16);not null" json:"sender_role"`
	Content     string      `gorm:"type:text" json:"content"`
	MessageType MessageType `gorm:"type:varchar(16);not null;default:'text'" json:"message_type"`
	IsRead      bool        `gorm:"not null;default:false" json:"is_read"`
	CreatedAt   time.Time   `gorm:"index:idx_chat_messages_order_created,priority:2" json:"created_at"`
	Files       []OrderFile `gorm:"foreignKey:MessageID" json:"files,omitempty"`
}

// TableName specifies the table name for the ChatMessage model
func (ChatMessage) TableName() string {
	return "chat_messages"
}
