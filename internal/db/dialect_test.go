package db

import (
	"testing"
)

func TestDetectDialectFromDSN(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost:5432/crm":  DialectPostgres,
		"host=localhost user=crm dbname=crm": DialectPostgres,
		"file:crm.db":                        DialectSQLite,
		"sqlite:///var/lib/crm.db":           DialectSQLite,
		"crm.db":                             DialectSQLite,
	}
	for dsn, want := range cases {
		got, errDetect := detectDialectFromDSN(dsn)
		if errDetect != nil {
			t.Fatalf("detect %q: %v", dsn, errDetect)
		}
		if got != want {
			t.Fatalf("detect %q: expected %s, got %s", dsn, want, got)
		}
	}
	if _, errDetect := detectDialectFromDSN("mysql://localhost/crm"); errDetect == nil {
		t.Fatalf("expected unsupported dsn error")
	}
}

func TestEnsureSQLiteParams(t *testing.T) {
	got := ensureSQLiteParams("file:crm.db?_pragma=foreign_keys(0)")
	if want := "file:crm.db?_pragma=foreign_keys(0)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_time_format=sqlite"; got != want {
		t.Fatalf("unexpected dsn %q", got)
	}
	if got := ensureSQLiteParams(":memory:"); got != ":memory:?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)&_time_format=sqlite" {
		t.Fatalf("unexpected memory dsn %q", got)
	}
}

func TestContainsPatternEscapesWildcards(t *testing.T) {
	conn := openTestSQLite(t)
	if got := ContainsPattern(conn, `50%_Off\`); got != `%50\%\_off\\%` {
		t.Fatalf("unexpected pattern %q", got)
	}
	if expr := CaseInsensitiveLikeExpr(conn, "display_name"); expr != `LOWER(display_name) LIKE ? ESCAPE '\'` {
		t.Fatalf("unexpected expr %q", expr)
	}
}

func TestSQLiteSearchFoldsASCIIOnly(t *testing.T) {
	conn := openTestSQLite(t)
	if errExec := conn.Exec("CREATE TABLE names (name TEXT)").Error; errExec != nil {
		t.Fatalf("create: %v", errExec)
	}
	for _, name := range []string{"Alice", "Ärger", "ärger"} {
		if errExec := conn.Exec("INSERT INTO names (name) VALUES (?)", name).Error; errExec != nil {
			t.Fatalf("insert: %v", errExec)
		}
	}
	count := func(term string) int64 {
		var n int64
		if errCount := conn.Table("names").Where(CaseInsensitiveLikeExpr(conn, "name"), ContainsPattern(conn, term)).Count(&n).Error; errCount != nil {
			t.Fatalf("count %q: %v", term, errCount)
		}
		return n
	}
	if n := count("ALI"); n != 1 {
		t.Fatalf("expected ASCII search to fold case, got %d", n)
	}
	if n := count("rger"); n != 2 {
		t.Fatalf("expected both spellings on the ASCII tail, got %d", n)
	}
	// strings.ToLower folds the term to "ärger", which only the lowercase row holds.
	if n := count("ÄRGER"); n != 1 {
		t.Fatalf("expected non-ASCII letters to stay case-sensitive on SQLite, got %d", n)
	}
}
