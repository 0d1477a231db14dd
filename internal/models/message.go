package models

import (
	"time"

	"gorm.io/datatypes"
)

// Message is one recorded LINE message, inbound or sent by the bot.
type Message struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	MessageID   string `gorm:"type:varchar(100);not null;uniqueIndex"` // LINE message id.
	LineUserID  string `gorm:"type:varchar(100);not null;default:'';index"`
	LineGroupID string `gorm:"type:varchar(100);not null;default:'';index"`
	MessageType string `gorm:"type:varchar(50);not null;index"` // text, image, sticker, ...
	Content     string `gorm:"type:text;not null;default:''"`   // Text content or a summary.

	OriginalContent datatypes.JSON // Raw event message payload.
	IsFromBot       bool           `gorm:"not null;default:false"`
	IsRead          bool           `gorm:"not null;default:false"`
	SentimentScore  *float64       `gorm:"type:decimal(3,2)"`
	Keywords        datatypes.JSON `gorm:"not null;default:'[]'"`

	Attachments []MessageAttachment `gorm:"foreignKey:MessageID"` // Media attachments.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`       // Last update timestamp.
}

// TableName binds Message to the messages table.
func (Message) TableName() string { return "messages" }

// MessageAttachment describes media carried by a message.
type MessageAttachment struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	MessageID      uint64 `gorm:"not null;index"` // messages.id.
	AttachmentType string `gorm:"type:varchar(50);not null;default:''"`
	FileURL        string `gorm:"type:text;not null;default:''"`
	FileName       string `gorm:"type:varchar(255);not null;default:''"`
	FileSize       int64  `gorm:"not null;default:0"`
	MimeType       string `gorm:"type:varchar(100);not null;default:''"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// TableName binds MessageAttachment to the message_attachments table.
func (MessageAttachment) TableName() string { return "message_attachments" }
