// Package crm holds the write paths for LINE contacts, groups, messages and tags.
// Every counter the admin UI shows is maintained here, inside the same
// transaction as the row change that moves it.
package crm

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("crm: not found")
	// ErrDuplicateMessage is returned when a message id was already recorded.
	ErrDuplicateMessage = errors.New("crm: duplicate message")
	// ErrInvalidInput is returned for missing or malformed fields.
	ErrInvalidInput = errors.New("crm: invalid input")
)

// nowUTC is replaced in tests.
var nowUTC = func() time.Time { return time.Now().UTC() }
