package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/bouncerhq/bouncer/internal/codestore"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewWithClient(client), mr
}

func TestPutGetRoundTrip(t *testing.T) {
	s, mr := newTestStore(t)
	defer mr.Close()
	ctx := context.Background()

	sess := codestore.Session{Kind: codestore.KindCode, Code: "abc", TTLSeconds: 60, CreatedAt: time.Now()}
	if err := s.Put(ctx, sess); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := s.Get(ctx, codestore.KindCode, "abc", false)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.Code != "abc" {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestPutRejectsDuplicate(t *testing.T) {
	s, mr := newTestStore(t)
	defer mr.Close()
	ctx := context.Background()

	sess := codestore.Session{Kind: codestore.KindCode, Code: "abc", TTLSeconds: 60, CreatedAt: time.Now()}
	if err := s.Put(ctx, sess); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, sess); err != codestore.ErrCodeTaken {
		t.Fatalf("expected ErrCodeTaken, got %v", err)
	}
}

func TestExpirySetViaTTL(t *testing.T) {
	s, mr := newTestStore(t)
	defer mr.Close()
	ctx := context.Background()

	sess := codestore.Session{Kind: codestore.KindCode, Code: "abc", TTLSeconds: 60, CreatedAt: time.Now()}
	if err := s.Put(ctx, sess); err != nil {
		t.Fatalf("Put: %v", err)
	}
	mr.FastForward(61 * time.Second)
	if _, ok, _ := s.Get(ctx, codestore.KindCode, "abc", false); ok {
		t.Fatal("expected key to have expired in redis")
	}
}

func TestPushPullExactlyOnce(t *testing.T) {
	s, mr := newTestStore(t)
	defer mr.Close()
	ctx := context.Background()

	if err := s.Push(ctx, codestore.LoginSession{LoginID: "l1", TTLSeconds: 120, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	first, err := s.Pull(ctx, "l1")
	if err != nil || !first {
		t.Fatalf("expected first pull true, got %v %v", first, err)
	}
	second, err := s.Pull(ctx, "l1")
	if err != nil || second {
		t.Fatalf("expected second pull false, got %v %v", second, err)
	}
}

func TestWipeDeletesMatchingSessions(t *testing.T) {
	s, mr := newTestStore(t)
	defer mr.Close()
	ctx := context.Background()

	_ = s.Put(ctx, codestore.Session{
		Kind: codestore.KindRefresh, Code: "r1", TTLSeconds: 3600, CreatedAt: time.Now(),
		Payload: codestore.Payload{Tenant: "t1", Subject: "u1"},
	})
	_ = s.Put(ctx, codestore.Session{
		Kind: codestore.KindRefresh, Code: "r2", TTLSeconds: 3600, CreatedAt: time.Now(),
		Payload: codestore.Payload{Tenant: "t1", Subject: "u2"},
	})

	s.Wipe(ctx, "t1", "u1")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, ok1, _ := s.Get(ctx, codestore.KindRefresh, "r1", false)
		if !ok1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, ok, _ := s.Get(ctx, codestore.KindRefresh, "r1", false); ok {
		t.Fatal("expected r1 wiped")
	}
	if _, ok, _ := s.Get(ctx, codestore.KindRefresh, "r2", false); !ok {
		t.Fatal("expected r2 to survive")
	}
}

func TestHealthy(t *testing.T) {
	s, mr := newTestStore(t)
	defer mr.Close()
	if !s.Healthy(context.Background()) {
		t.Fatal("expected healthy store against a running miniredis")
	}
	mr.Close()
	if s.Healthy(context.Background()) {
		t.Fatal("expected unhealthy store once miniredis is closed")
	}
}
