package models

import "time"

// AdminSession is a signed-in operator session. Only the token hash is stored.
type AdminSession struct {
	TokenHash string `gorm:"type:char(64);primaryKey"` // Hex SHA-256 of the session token.

	LineUserID  string `gorm:"type:varchar(100);not null"` // Signed-in LINE account.
	DisplayName string `gorm:"type:varchar(255);not null;default:''"`
	PictureURL  string `gorm:"type:text;not null;default:''"`
	Email       string `gorm:"type:varchar(255);not null;default:''"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	ExpiresAt time.Time `gorm:"not null;index"`          // Hard expiry.
}

// TableName binds AdminSession to the admin_sessions table.
func (AdminSession) TableName() string { return "admin_sessions" }

// LoginState is a pending LINE Login authorization request.
type LoginState struct {
	State string `gorm:"type:varchar(128);primaryKey"` // OAuth state parameter.
	Nonce string `gorm:"type:varchar(128);not null"`   // OpenID nonce bound to the state.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	ExpiresAt time.Time `gorm:"not null;index"`          // Hard expiry.
}

// TableName binds LoginState to the login_states table.
func (LoginState) TableName() string { return "login_states" }
