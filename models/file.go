package models

import "time"

// FileType is the coarse category inferred from an upload's name.
type FileType string

const (
	FileImage    FileType = "image"
	FileDocument FileType = "document"
	FileDesign   FileType = "design"
)

// OrderFile is the metadata of an uploaded binary, optionally linked to a message
type OrderFile struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	OrderID    uint      `gorm:"not null;index" json:"order_id"`
	MessageID  *uint     `gorm:"index" json:"message_id,omitempty"`
	UploaderID uint      `gorm:"not null" json:"uploader_id"`
	Name       string    `gorm:"not null" json:"name"`
	URL        string    `gorm:"not null" json:"url"`
	StorageKey string    `json:"-"`
	FileType   FileType  `gorm:"type:varchar(16);not null" json:"file_type"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for the OrderFile model
func (OrderFile) TableName() string {
	return "order_files"
}

// MessageFile links a chat message to one of the order's files
type MessageFile struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	MessageID   uint      `gorm:"not null;uniqueIndex:idx_message_files_pair" json:"message_id"`
	OrderFileID uint      `gorm:"not null;uniqueIndex:idx_message_files_pair" json:"order_file_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName specifies the table name for the MessageFile model
func (MessageFile) TableName() string {
	return "message_files"
}

// PushSubscription is a stored Web Push endpoint for a profile
type PushSubscription struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	ProfileID uint       `gorm:"not null;index" json:"profile_id"`
	Endpoint  string     `gorm:"not null;uniqueIndex" json:"endpoint"`
	P256dh    string     `gorm:"not null" json:"p256dh"`
	Auth      string     `gorm:"not null" json:"auth"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// TableName specifies the table name for the PushSubscription model
func (PushSubscription) TableName() string {
	return "push_subscriptions"
}
