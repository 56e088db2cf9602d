package memory

import (
	"context"
	"testing"
	"time"

	"github.com/bouncerhq/bouncer/internal/codestore"
)

func TestPutGetRoundTrip(t *testing.T) {
	s := New(time.Hour)
	defer s.Close()
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

func TestPutRejectsDuplicateLiveCode(t *testing.T) {
	s := New(time.Hour)
	defer s.Close()
	ctx := context.Background()

	sess := codestore.Session{Kind: codestore.KindCode, Code: "abc", TTLSeconds: 60, CreatedAt: time.Now()}
	if err := s.Put(ctx, sess); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, sess); err != codestore.ErrCodeTaken {
		t.Fatalf("expected ErrCodeTaken, got %v", err)
	}
}

func TestGetRemoveDeletesOnFetch(t *testing.T) {
	s := New(time.Hour)
	defer s.Close()
	ctx := context.Background()

	sess := codestore.Session{Kind: codestore.KindCode, Code: "abc", TTLSeconds: 60, CreatedAt: time.Now()}
	_ = s.Put(ctx, sess)
	if _, ok, _ := s.Get(ctx, codestore.KindCode, "abc", true); !ok {
		t.Fatal("expected first get to succeed")
	}
	if _, ok, _ := s.Get(ctx, codestore.KindCode, "abc", false); ok {
		t.Fatal("expected session removed after remove=true get")
	}
}

func TestExpiredSessionInvisible(t *testing.T) {
	s := New(time.Hour)
	defer s.Close()
	ctx := context.Background()

	sess := codestore.Session{
		Kind:       codestore.KindCode,
		Code:       "abc",
		TTLSeconds: 1,
		CreatedAt:  time.Now().Add(-2 * time.Second),
	}
	_ = s.Put(ctx, sess)
	if _, ok, _ := s.Get(ctx, codestore.KindCode, "abc", false); ok {
		t.Fatal("expected expired session to be invisible")
	}
}

func TestPushPullExactlyOnce(t *testing.T) {
	s := New(time.Hour)
	defer s.Close()
	ctx := context.Background()

	_ = s.Push(ctx, codestore.LoginSession{LoginID: "l1", TTLSeconds: 120, CreatedAt: time.Now()})
	first, err := s.Pull(ctx, "l1")
	if err != nil || !first {
		t.Fatalf("expected first pull true, got %v %v", first, err)
	}
	second, err := s.Pull(ctx, "l1")
	if err != nil || second {
		t.Fatalf("expected second pull false, got %v %v", second, err)
	}
}

func TestWipeRevokesMatchingPayloads(t *testing.T) {
	s := New(time.Hour)
	defer s.Close()
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

	if _, ok, _ := s.Get(ctx, codestore.KindRefresh, "r1", false); ok {
		t.Fatal("expected r1 wiped")
	}
	if _, ok, _ := s.Get(ctx, codestore.KindRefresh, "r2", false); !ok {
		t.Fatal("expected r2 to survive")
	}
}

func TestSweepRemovesExpiredInBackground(t *testing.T) {
	s := New(20 * time.Millisecond)
	defer s.Close()
	ctx := context.Background()

	_ = s.Put(ctx, codestore.Session{
		Kind: codestore.KindCode, Code: "abc", TTLSeconds: 0, CreatedAt: time.Now().Add(-time.Second),
	})

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		n, _ := s.Count(ctx)
		if n == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected background sweep to remove the expired session")
}
