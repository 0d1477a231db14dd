package models

import "time"

// LineGroup is a LINE group chat the bot has joined.
type LineGroup struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	LineGroupID string `gorm:"type:varchar(100);not null;uniqueIndex"` // LINE group id (C...).
	GroupName   string `gorm:"type:varchar(255);not null;default:''"`  // LINE group name.
	PictureURL  string `gorm:"type:text;not null;default:''"`          // Group picture URL.

	CustomName string `gorm:"type:varchar(255);not null;default:''"` // Operator supplied name.
	Notes      string `gorm:"type:text;not null;default:''"`         // Operator notes.

	MemberCount   int64      `gorm:"not null;default:0"` // Known member count.
	LastMessageAt *time.Time // Last message time in the group.
	MessageCount  int64      `gorm:"not null;default:0"` // Messages recorded for this group.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName binds LineGroup to the line_groups table.
func (LineGroup) TableName() string { return "line_groups" }

// GroupMember links a user to a group.
type GroupMember struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	GroupID uint64 `gorm:"not null;uniqueIndex:idx_group_member"` // line_groups.id.
	UserID  uint64 `gorm:"not null;uniqueIndex:idx_group_member"` // line_users.id.
	Role    string `gorm:"type:varchar(50);not null;default:'member'"`

	JoinedAt time.Time `gorm:"not null"` // Join timestamp.
}

// TableName binds GroupMember to the group_members table.
func (GroupMember) TableName() string { return "group_members" }
