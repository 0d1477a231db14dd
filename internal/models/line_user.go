package models

import "time"

// LineUser is a LINE account that has interacted with the bot.
type LineUser struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	LineUserID    string `gorm:"type:varchar(100);not null;uniqueIndex"` // LINE user id (U...).
	DisplayName   string `gorm:"type:varchar(255);not null;default:''"`  // LINE display name.
	PictureURL    string `gorm:"type:text;not null;default:''"`          // Profile picture URL.
	StatusMessage string `gorm:"type:text;not null;default:''"`          // LINE status message.
	IsFriend      bool   `gorm:"not null;default:false"`                 // Follows the official account.

	CustomName string `gorm:"type:varchar(255);not null;default:''"` // Operator supplied name.
	Notes      string `gorm:"type:text;not null;default:''"`         // Operator notes.

	LastMessageAt *time.Time // Last inbound message time.
	MessageCount  int64      `gorm:"not null;default:0"` // Messages recorded for this user.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName binds LineUser to the line_users table.
func (LineUser) TableName() string { return "line_users" }
