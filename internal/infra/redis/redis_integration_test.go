//go:build integration

package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"telegram-parts-broker/internal/config"
	"telegram-parts-broker/internal/domain"
	"telegram-parts-broker/internal/domain/model"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	c, err := NewClient(ctx, &config.RedisConfig{URL: url})
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRequestStore_Integration(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	store := NewRequestStore(c, NewLocker(c), time.Minute)
	buyer := time.Now().UnixNano() % 1_000_000_000
	t.Cleanup(func() { _ = store.Clear(ctx, buyer) })

	req, _ := model.NewPartRequest(buyer, "Toyota", model.SourceDialogue)
	req.NotifiedSellers = []int64{100}
	req.ExpiresAt = time.Now().Add(time.Hour)

	t.Run("should round trip and update under lock", func(t *testing.T) {
		if err := store.Put(ctx, req); err != nil {
			t.Fatalf("Put: %v", err)
		}
		got, err := store.Update(ctx, buyer, func(p *model.PartRequest) error {
			p.MarkAnswered(time.Now())
			return nil
		})
		if err != nil || got.Status != model.RequestAnswered {
			t.Fatalf("Update: %+v %v", got, err)
		}
		again, err := store.Get(ctx, buyer)
		if err != nil || again.Answers != 1 || !again.WasNotified(100) {
			t.Fatalf("Get: %+v %v", again, err)
		}
	})

	t.Run("should purge expired entries once", func(t *testing.T) {
		n, err := store.PurgeExpired(ctx, time.Now().Add(2*time.Hour))
		if err != nil {
			t.Fatalf("PurgeExpired: %v", err)
		}
		found := false
		for _, r := range n {
			if r.BuyerID == buyer {
				found = true
			}
		}
		if !found {
			t.Fatal("expected our request to be purged")
		}
		if _, err := store.Get(ctx, buyer); !errors.Is(err, domain.ErrUnknownRequest) {
			t.Fatalf("expected ErrUnknownRequest, got %v", err)
		}
	})
}

func TestStateRepo_Integration(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	repo := NewStateRepo(c, time.Minute)
	tgID := time.Now().UnixNano() % 1_000_000_000

	st := model.NewConversationState(tgID, model.TrackSeller, model.StageEnteringPrice)
	st.BuyerID = 7
	if err := repo.SetState(ctx, tgID, st); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	got, err := repo.GetState(ctx, tgID)
	if err != nil || got.Stage != model.StageEnteringPrice || got.BuyerID != 7 {
		t.Fatalf("GetState: %+v %v", got, err)
	}
	_ = repo.ClearState(ctx, tgID)
	if _, err := repo.GetState(ctx, tgID); !errors.Is(err, domain.ErrNoConversation) {
		t.Fatalf("expected ErrNoConversation, got %v", err)
	}
}

func TestRateLimiter_Integration(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	rl := NewRateLimiter(c)
	key := "test:" + time.Now().Format(time.RFC3339Nano)

	for i := 0; i < 3; i++ {
		if ok, err := rl.Allow(ctx, key, 3, time.Minute); err != nil || !ok {
			t.Fatalf("call %d should pass: %v %v", i, ok, err)
		}
	}
	if ok, _ := rl.Allow(ctx, key, 3, time.Minute); ok {
		t.Fatal("fourth call should be limited")
	}
}
