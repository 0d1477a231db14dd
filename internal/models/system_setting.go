package models

import "time"

// SystemSetting stores a key/value configuration entry editable from the admin UI.
type SystemSetting struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Key         string `gorm:"type:varchar(100);not null;uniqueIndex"` // Setting key.
	Value       string `gorm:"type:text;not null;default:''"`          // Raw string value.
	Description string `gorm:"type:text;not null;default:''"`          // Human readable description.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName binds SystemSetting to the system_settings table.
func (SystemSetting) TableName() string { return "system_settings" }
