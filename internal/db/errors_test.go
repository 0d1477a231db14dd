package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassifyExecError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ExecErrorClass
	}{
		{name: "nil", err: nil, want: ExecOK},
		{name: "duplicate table", err: &pgconn.PgError{Code: "42P07"}, want: ExecAlreadyExists},
		{name: "duplicate trigger wrapped", err: fmt.Errorf("exec: %w", &pgconn.PgError{Code: "42710"}), want: ExecAlreadyExists},
		{name: "duplicate function", err: &pgconn.PgError{Code: "42723"}, want: ExecAlreadyExists},
		{name: "syntax error", err: &pgconn.PgError{Code: "42601", Message: "relation already exists"}, want: ExecFatal},
		{name: "sqlite already exists", err: errors.New("SQL logic error: table line_users already exists (1)"), want: ExecAlreadyExists},
		{name: "other", err: errors.New("connection refused"), want: ExecFatal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyExecError(tc.err); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}
