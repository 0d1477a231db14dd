package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ExecErrorClass groups bootstrap statement failures.
type ExecErrorClass int

const (
	// ExecOK means the statement succeeded.
	ExecOK ExecErrorClass = iota
	// ExecAlreadyExists means the object was already present; bootstrap continues.
	ExecAlreadyExists
	// ExecFatal aborts bootstrap.
	ExecFatal
)

func (c ExecErrorClass) String() string {
	switch c {
	case ExecOK:
		return "ok"
	case ExecAlreadyExists:
		return "already-exists"
	default:
		return "fatal"
	}
}

// PostgreSQL SQLSTATE codes that indicate an object already exists.
var alreadyExistsCodes = map[string]struct{}{
	"42P07": {}, // duplicate_table
	"42710": {}, // duplicate_object
	"42P06": {}, // duplicate_schema
	"42723": {}, // duplicate_function
	"42701": {}, // duplicate_column
}

// ClassifyExecError decides whether a statement error is ignorable.
func ClassifyExecError(err error) ExecErrorClass {
	if err == nil {
		return ExecOK
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := alreadyExistsCodes[pgErr.Code]; ok {
			return ExecAlreadyExists
		}
		return ExecFatal
	}
	if strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return ExecAlreadyExists
	}
	return ExecFatal
}
