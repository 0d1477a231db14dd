package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/linecrm/linecrm/internal/db"
	"github.com/redis/go-redis/v9"
)

func newGormStore(t *testing.T) *GormStore {
	t.Helper()
	conn, errOpen := db.Open(filepath.Join(t.TempDir(), "crm.db"), db.PoolOptions{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	t.Cleanup(func() {
		if sqlDB, errDB := conn.DB(); errDB == nil {
			_ = sqlDB.Close()
		}
	})
	if _, errBoot := db.Bootstrap(context.Background(), conn); errBoot != nil {
		t.Fatalf("bootstrap: %v", errBoot)
	}
	return NewGormStore(conn)
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "test:"), mr
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	sess := Session{
		Identity:  Identity{LineUserID: "Uadmin", DisplayName: "Admin", PictureURL: "https://example.com/a.png"},
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	if errCreate := store.Create(ctx, "hash-1", sess); errCreate != nil {
		t.Fatalf("create: %v", errCreate)
	}
	got, errGet := store.Get(ctx, "hash-1")
	if errGet != nil {
		t.Fatalf("get: %v", errGet)
	}
	if got.LineUserID != "Uadmin" || got.DisplayName != "Admin" || got.ExpiresAt.Sub(sess.ExpiresAt).Abs() > time.Millisecond {
		t.Fatalf("unexpected session %+v", got)
	}
	if _, errGet = store.Get(ctx, "unknown"); !errors.Is(errGet, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", errGet)
	}
	if errDelete := store.Delete(ctx, "hash-1"); errDelete != nil {
		t.Fatalf("delete: %v", errDelete)
	}
	if _, errGet = store.Get(ctx, "hash-1"); !errors.Is(errGet, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", errGet)
	}

	if errSave := store.SaveLoginState(ctx, "state-1", "nonce-1", now.Add(time.Minute)); errSave != nil {
		t.Fatalf("save state: %v", errSave)
	}
	nonce, errConsume := store.ConsumeLoginState(ctx, "state-1")
	if errConsume != nil || nonce != "nonce-1" {
		t.Fatalf("consume: nonce=%q err=%v", nonce, errConsume)
	}
	if _, errConsume = store.ConsumeLoginState(ctx, "state-1"); !errors.Is(errConsume, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on reuse, got %v", errConsume)
	}
}

func TestGormStore(t *testing.T) {
	exerciseStore(t, newGormStore(t))
}

func TestRedisStore(t *testing.T) {
	store, _ := newRedisStore(t)
	exerciseStore(t, store)
}

func TestGormStoreExpiry(t *testing.T) {
	store := newGormStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	if errCreate := store.Create(ctx, "old", Session{Identity: Identity{LineUserID: "U"}, CreatedAt: now, ExpiresAt: now.Add(time.Minute)}); errCreate != nil {
		t.Fatalf("create: %v", errCreate)
	}
	if errSave := store.SaveLoginState(ctx, "s", "n", now.Add(time.Minute)); errSave != nil {
		t.Fatalf("save state: %v", errSave)
	}

	store.now = func() time.Time { return now.Add(2 * time.Minute) }
	if _, errGet := store.Get(ctx, "old"); !errors.Is(errGet, ErrNotFound) {
		t.Fatalf("expected expired session to be hidden, got %v", errGet)
	}
	if _, errConsume := store.ConsumeLoginState(ctx, "s"); !errors.Is(errConsume, ErrInvalidState) {
		t.Fatalf("expected expired state to be rejected, got %v", errConsume)
	}
	if errSave := store.SaveLoginState(ctx, "s2", "n", now.Add(time.Minute)); errSave != nil {
		t.Fatalf("save state: %v", errSave)
	}
	purged, errPurge := store.PurgeExpired(ctx, now.Add(2*time.Minute))
	if errPurge != nil {
		t.Fatalf("purge: %v", errPurge)
	}
	if purged != 3 {
		t.Fatalf("expected 3 purged rows, got %d", purged)
	}
}

func TestRedisStoreExpiry(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	now := time.Now()
	if errCreate := store.Create(ctx, "h", Session{Identity: Identity{LineUserID: "U"}, CreatedAt: now, ExpiresAt: now.Add(time.Minute)}); errCreate != nil {
		t.Fatalf("create: %v", errCreate)
	}
	if ttl := mr.TTL("test:session:h"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected ttl %s", ttl)
	}
	mr.FastForward(2 * time.Minute)
	if _, errGet := store.Get(ctx, "h"); !errors.Is(errGet, ErrNotFound) {
		t.Fatalf("expected expired session, got %v", errGet)
	}
	if errCreate := store.Create(ctx, "h2", Session{ExpiresAt: now.Add(-time.Second)}); errCreate == nil {
		t.Fatalf("expected error for already expired session")
	}
}

func TestManagerLifecycle(t *testing.T) {
	store, _ := newRedisStore(t)
	mgr := NewManager(store, time.Hour, time.Minute)
	ctx := context.Background()

	if _, _, errIssue := mgr.Issue(ctx, Identity{}); errIssue == nil {
		t.Fatalf("expected error for empty identity")
	}
	token, sess, errIssue := mgr.Issue(ctx, Identity{LineUserID: "U1", DisplayName: "Op"})
	if errIssue != nil {
		t.Fatalf("issue: %v", errIssue)
	}
	if sess.ExpiresAt.Sub(sess.CreatedAt) != time.Hour {
		t.Fatalf("unexpected ttl %s", sess.ExpiresAt.Sub(sess.CreatedAt))
	}
	resolved, errResolve := mgr.Resolve(ctx, token)
	if errResolve != nil || resolved.LineUserID != "U1" {
		t.Fatalf("resolve: %+v err=%v", resolved, errResolve)
	}
	if _, errResolve = mgr.Resolve(ctx, token+"x"); !errors.Is(errResolve, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for wrong token, got %v", errResolve)
	}

	mgr.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	if _, errResolve = mgr.Resolve(ctx, token); !errors.Is(errResolve, ErrNotFound) {
		t.Fatalf("expected expired session, got %v", errResolve)
	}
	mgr.now = func() time.Time { return time.Now().UTC() }

	if errRevoke := mgr.Revoke(ctx, token); errRevoke != nil {
		t.Fatalf("revoke: %v", errRevoke)
	}
	if _, errResolve = mgr.Resolve(ctx, token); !errors.Is(errResolve, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after revoke, got %v", errResolve)
	}
}

func TestManagerLoginState(t *testing.T) {
	mgr := NewManager(newGormStore(t), time.Hour, time.Minute)
	ctx := context.Background()

	state, nonce, errBegin := mgr.BeginLogin(ctx)
	if errBegin != nil {
		t.Fatalf("begin: %v", errBegin)
	}
	if len(state) != 32 || len(nonce) != 32 || state == nonce {
		t.Fatalf("unexpected state/nonce %q %q", state, nonce)
	}
	got, errComplete := mgr.CompleteLogin(ctx, state)
	if errComplete != nil || got != nonce {
		t.Fatalf("complete: nonce=%q err=%v", got, errComplete)
	}
	if _, errComplete = mgr.CompleteLogin(ctx, state); !errors.Is(errComplete, ErrInvalidState) {
		t.Fatalf("expected replay rejection, got %v", errComplete)
	}
	if _, errComplete = mgr.CompleteLogin(ctx, ""); !errors.Is(errComplete, ErrInvalidState) {
		t.Fatalf("expected empty state rejection, got %v", errComplete)
	}
}
