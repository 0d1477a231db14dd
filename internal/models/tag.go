package models

import "time"

// Tag labels users and groups.
type Tag struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name        string `gorm:"type:varchar(100);not null;uniqueIndex"`     // Unique tag name.
	Color       string `gorm:"type:varchar(7);not null;default:'#3B82F6'"` // Hex color.
	Description string `gorm:"type:text;not null;default:''"`
	UsageCount  int64  `gorm:"not null;default:0"` // Maintained by link table triggers.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// TableName binds Tag to the tags table.
func (Tag) TableName() string { return "tags" }

// UserTag links a tag to a user.
type UserTag struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	UserID    uint64    `gorm:"not null;uniqueIndex:idx_user_tag"`
	TagID     uint64    `gorm:"not null;uniqueIndex:idx_user_tag"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
}

// TableName binds UserTag to the user_tags table.
func (UserTag) TableName() string { return "user_tags" }

// GroupTag links a tag to a group.
type GroupTag struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	GroupID   uint64    `gorm:"not null;uniqueIndex:idx_group_tag"`
	TagID     uint64    `gorm:"not null;uniqueIndex:idx_group_tag"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
}

// TableName binds GroupTag to the group_tags table.
func (GroupTag) TableName() string { return "group_tags" }
