//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"telegram-parts-broker/internal/domain"
	"telegram-parts-broker/internal/domain/model"
	"telegram-parts-broker/internal/domain/ports/adapter"
	"telegram-parts-broker/internal/infra/worker"
	"telegram-parts-broker/internal/usecase"
)

func newRequest(t *testing.T, buyerID int64, brand string) *model.PartRequest {
	t.Helper()
	req, err := model.NewPartRequest(buyerID, brand, model.SourceDialogue)
	if err != nil {
		t.Fatalf("NewPartRequest: %v", err)
	}
	req.Model = "Corolla"
	req.Year = "2020"
	req.Description = "front brake pads"
	return req
}

func TestRouterUseCase_Dispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("should report zero matches without failing and still record the request", func(t *testing.T) {
		// --- Arrange ---
		h := newHarness(t, []*model.Seller{seller("1", "Gulf", 100, "Toyota")})

		// --- Act ---
		report, err := h.router.Dispatch(ctx, newRequest(t, 7, "Lada"))

		// --- Assert ---
		if err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
		if report.Matched != 0 || report.Delivered != 0 {
			t.Fatalf("unexpected report %+v", report)
		}
		if len(h.bot.Sent) != 0 {
			t.Errorf("nothing should be sent, got %d", len(h.bot.Sent))
		}
		if _, err := h.store.Get(ctx, 7); err != nil {
			t.Errorf("request should be pending: %v", err)
		}
	})

	t.Run("should isolate per-seller failures and skip sellers without contact", func(t *testing.T) {
		// --- Arrange ---
		h := newHarness(t, []*model.Seller{
			seller("1", "Gulf", 100, "Toyota"),
			seller("2", "No Contact", 0, "Toyota"),
			seller("3", "Broken", 300, "toyota"),
			seller("4", "Japan", 400, "TOYOTA"),
			seller("5", "Euro", 500, "BMW"),
		})
		h.bot.SendMessageFunc = func(ctx context.Context, p adapter.SendMessageParams) error {
			if p.ChatID == 300 {
				return errSendFailed
			}
			return nil
		}

		// --- Act ---
		report, err := h.router.Dispatch(ctx, newRequest(t, 7, "Toyota"))

		// --- Assert ---
		if err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
		if report.Matched != 4 || report.SkippedNoContact != 1 || report.Delivered != 2 || report.Failed != 1 {
			t.Fatalf("unexpected report %+v", report)
		}
		if len(report.Failures) != 2 {
			t.Errorf("expected 2 recorded failures, got %+v", report.Failures)
		}
		for _, tg := range []int64{100, 400} {
			msgs := h.bot.SentTo(tg)
			if len(msgs) != 1 || !containsAll(msgs[0], "Toyota", "Corolla", "2020", "front brake pads", "/respond_7") {
				t.Errorf("seller %d got %q", tg, msgs)
			}
		}
		stored, _ := h.store.Get(ctx, 7)
		if stored.Status != model.RequestPending || len(stored.NotifiedSellers) != 2 {
			t.Errorf("unexpected stored request %+v", stored)
		}
		if stored.WasNotified(300) {
			t.Error("failed seller must not count as notified")
		}
		if len(h.audit.dispatches) != 1 {
			t.Errorf("expected one audit entry, got %d", len(h.audit.dispatches))
		}
	})

	t.Run("should retry transient send failures", func(t *testing.T) {
		h := newHarness(t, []*model.Seller{seller("1", "Gulf", 100, "Toyota")})
		var calls int32
		h.bot.SendMessageFunc = func(ctx context.Context, p adapter.SendMessageParams) error {
			if atomic.AddInt32(&calls, 1) < 3 {
				return errSendFailed
			}
			return nil
		}
		report, err := h.router.Dispatch(ctx, newRequest(t, 7, "Toyota"))
		if err != nil || report.Delivered != 1 {
			t.Fatalf("expected delivery after retries, got %+v %v", report, err)
		}
		if calls != 3 {
			t.Errorf("expected 3 attempts, got %d", calls)
		}
	})

	t.Run("should not retry an unreachable seller", func(t *testing.T) {
		h := newHarness(t, []*model.Seller{seller("1", "Gulf", 100, "Toyota")})
		h.bot.SendMessageFunc = func(ctx context.Context, p adapter.SendMessageParams) error {
			return domain.ErrRecipientUnreachable
		}
		report, _ := h.router.Dispatch(ctx, newRequest(t, 7, "Toyota"))
		if report.Failed != 1 || h.bot.Calls != 1 {
			t.Fatalf("expected a single failed attempt, report=%+v calls=%d", report, h.bot.Calls)
		}
	})

	t.Run("should fan out through a worker pool", func(t *testing.T) {
		h := newHarness(t, []*model.Seller{
			seller("1", "A", 100, "Honda"),
			seller("2", "B", 200, "Honda"),
			seller("3", "C", 300, "Honda"),
		})
		pool := worker.NewPool(2, newTestLogger())
		pctx, cancel := context.WithCancel(ctx)
		defer cancel()
		pool.Start(pctx)
		defer pool.Stop()
		router := usecase.NewRouterUseCase(h.dir, h.store, h.bot, newTestTranslator(t), pool, nil,
			usecase.RouterOptions{SendAttempts: 1, RequestTTL: time.Hour}, newTestLogger())

		report, err := router.Dispatch(ctx, newRequest(t, 9, "honda"))
		if err != nil || report.Delivered != 3 {
			t.Fatalf("unexpected result %+v %v", report, err)
		}
	})

	t.Run("should overwrite an earlier pending request of the same buyer", func(t *testing.T) {
		h := newHarness(t, []*model.Seller{
			seller("1", "Gulf", 100, "Toyota"),
			seller("2", "Euro", 200, "BMW"),
		})
		first := newRequest(t, 7, "Toyota")
		_, _ = h.router.Dispatch(ctx, first)
		second := newRequest(t, 7, "BMW")
		_, _ = h.router.Dispatch(ctx, second)

		got, err := h.store.Get(ctx, 7)
		if err != nil || got.ID != second.ID {
			t.Fatalf("expected second request to win, got %+v %v", got, err)
		}
		// the Toyota seller no longer reaches this buyer
		err = h.router.RelayQuote(ctx, 7, 10, model.Actor{TelegramID: 100})
		if !errors.Is(err, domain.ErrNotResponder) {
			t.Fatalf("expected ErrNotResponder, got %v", err)
		}
	})

	t.Run("should reject an invalid request", func(t *testing.T) {
		h := newHarness(t, nil)
		if _, err := h.router.Dispatch(ctx, &model.PartRequest{BuyerID: 7}); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestRouterUseCase_Relay(t *testing.T) {
	ctx := context.Background()
	seller100 := model.Actor{TelegramID: 100, Username: "gulfparts", FirstName: "Sam"}

	t.Run("should fail with ErrUnknownRequest for a buyer never dispatched", func(t *testing.T) {
		h := newHarness(t, []*model.Seller{seller("1", "Gulf", 100, "Toyota")})
		if err := h.router.RelayQuote(ctx, 42, 300, seller100); !errors.Is(err, domain.ErrUnknownRequest) {
			t.Errorf("RelayQuote: expected ErrUnknownRequest, got %v", err)
		}
		if err := h.router.RelayUnavailable(ctx, 42, seller100); !errors.Is(err, domain.ErrUnknownRequest) {
			t.Errorf("RelayUnavailable: expected ErrUnknownRequest, got %v", err)
		}
	})

	t.Run("should relay a quote with price and contact hint after dispatch", func(t *testing.T) {
		// --- Arrange ---
		h := newHarness(t, []*model.Seller{seller("1", "Gulf Parts", 100, "Toyota")})
		_, _ = h.router.Dispatch(ctx, newRequest(t, 7, "Toyota"))

		// --- Act ---
		err := h.router.RelayQuote(ctx, 7, 300, seller100)

		// --- Assert ---
		if err != nil {
			t.Fatalf("RelayQuote: %v", err)
		}
		msgs := h.bot.SentTo(7)
		if len(msgs) != 1 || !containsAll(msgs[0], "300", "AED", "Gulf Parts", "@gulfparts") {
			t.Fatalf("unexpected buyer messages %q", msgs)
		}
		got, _ := h.store.Get(ctx, 7)
		if got.Status != model.RequestAnswered || got.Answers != 1 || got.AnsweredAt == nil {
			t.Errorf("unexpected request state %+v", got)
		}
		if len(h.audit.relays) != 1 || !h.audit.relays[0].Delivered {
			t.Errorf("unexpected relay audit %+v", h.audit.relays)
		}
	})

	t.Run("should keep relaying later answers after the first", func(t *testing.T) {
		h := newHarness(t, []*model.Seller{
			seller("1", "Gulf", 100, "Toyota"),
			seller("2", "Japan", 200, "Toyota"),
		})
		_, _ = h.router.Dispatch(ctx, newRequest(t, 7, "Toyota"))

		if err := h.router.RelayUnavailable(ctx, 7, seller100); err != nil {
			t.Fatalf("first answer: %v", err)
		}
		if err := h.router.RelayQuote(ctx, 7, 12.5, model.Actor{TelegramID: 200}); err != nil {
			t.Fatalf("second answer: %v", err)
		}
		msgs := h.bot.SentTo(7)
		if len(msgs) != 2 || !containsAll(msgs[0], "not available") || !containsAll(msgs[1], "12.5", "Japan") {
			t.Fatalf("unexpected buyer messages %q", msgs)
		}
		got, _ := h.store.Get(ctx, 7)
		if got.Status != model.RequestAnswered || got.Answers != 2 {
			t.Errorf("unexpected request state %+v", got)
		}
	})

	t.Run("should refuse sellers that were not notified", func(t *testing.T) {
		h := newHarness(t, []*model.Seller{seller("1", "Gulf", 100, "Toyota")})
		_, _ = h.router.Dispatch(ctx, newRequest(t, 7, "Toyota"))
		err := h.router.RelayQuote(ctx, 7, 1, model.Actor{TelegramID: 999})
		if !errors.Is(err, domain.ErrNotResponder) {
			t.Fatalf("expected ErrNotResponder, got %v", err)
		}
	})

	t.Run("should accept any responder when restriction is off", func(t *testing.T) {
		h := newHarness(t, []*model.Seller{seller("1", "Gulf", 100, "Toyota")}, unrestricted)
		_, _ = h.router.Dispatch(ctx, newRequest(t, 7, "Toyota"))
		if err := h.router.RelayQuote(ctx, 7, 1, model.Actor{TelegramID: 999}); err != nil {
			t.Fatalf("RelayQuote: %v", err)
		}
		if msgs := h.bot.SentTo(7); len(msgs) != 1 || !containsAll(msgs[0], "tg://user?id=999") {
			t.Errorf("unexpected buyer messages %q", msgs)
		}
	})

	t.Run("should report delivery failure distinctly from lookup failure", func(t *testing.T) {
		h := newHarness(t, []*model.Seller{seller("1", "Gulf", 100, "Toyota")})
		_, _ = h.router.Dispatch(ctx, newRequest(t, 7, "Toyota"))
		h.bot.SendMessageFunc = func(ctx context.Context, p adapter.SendMessageParams) error {
			return domain.ErrRecipientUnreachable
		}

		err := h.router.RelayQuote(ctx, 7, 300, seller100)

		if !errors.Is(err, domain.ErrDelivery) || errors.Is(err, domain.ErrUnknownRequest) {
			t.Fatalf("expected ErrDelivery only, got %v", err)
		}
		got, _ := h.store.Get(ctx, 7)
		if got.Status != model.RequestPending {
			t.Errorf("undelivered answer must not resolve the request, got %s", got.Status)
		}
	})

	t.Run("should reject a negative quote", func(t *testing.T) {
		h := newHarness(t, []*model.Seller{seller("1", "Gulf", 100, "Toyota")})
		_, _ = h.router.Dispatch(ctx, newRequest(t, 7, "Toyota"))
		if err := h.router.RelayQuote(ctx, 7, -5, seller100); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})
}

func TestRouterUseCase_Lifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("should expire stale requests and notify unanswered buyers", func(t *testing.T) {
		// --- Arrange ---
		h := newHarness(t, []*model.Seller{seller("1", "Gulf", 100, "Toyota")})
		_, _ = h.router.Dispatch(ctx, newRequest(t, 7, "Toyota"))
		_, _ = h.router.Dispatch(ctx, newRequest(t, 8, "Toyota"))
		_ = h.router.RelayUnavailable(ctx, 8, model.Actor{TelegramID: 100})

		// --- Act ---
		n, err := h.router.ExpireStale(ctx, time.Now().Add(48*time.Hour))

		// --- Assert ---
		if err != nil || n != 2 {
			t.Fatalf("expected 2 expired, got %d %v", n, err)
		}
		if msgs := h.bot.SentTo(7); len(msgs) != 1 || !containsAll(msgs[0], "expired") {
			t.Errorf("buyer 7 should get an expiry notice, got %q", msgs)
		}
		if msgs := h.bot.SentTo(8); len(msgs) != 1 {
			t.Errorf("answered buyer 8 should only have the relay, got %q", msgs)
		}
		if _, err := h.store.Get(ctx, 7); !errors.Is(err, domain.ErrUnknownRequest) {
			t.Errorf("expired request still present: %v", err)
		}
	})

	t.Run("should leave fresh requests alone", func(t *testing.T) {
		h := newHarness(t, []*model.Seller{seller("1", "Gulf", 100, "Toyota")})
		_, _ = h.router.Dispatch(ctx, newRequest(t, 7, "Toyota"))
		n, _ := h.router.ExpireStale(ctx, time.Now())
		if n != 0 {
			t.Fatalf("expected nothing to expire, got %d", n)
		}
	})

	t.Run("should withdraw a pending request", func(t *testing.T) {
		h := newHarness(t, []*model.Seller{seller("1", "Gulf", 100, "Toyota")})
		_, _ = h.router.Dispatch(ctx, newRequest(t, 7, "Toyota"))

		if err := h.router.Withdraw(ctx, 7); err != nil {
			t.Fatalf("Withdraw: %v", err)
		}
		if err := h.router.RelayQuote(ctx, 7, 1, model.Actor{TelegramID: 100}); !errors.Is(err, domain.ErrUnknownRequest) {
			t.Fatalf("expected ErrUnknownRequest after withdraw, got %v", err)
		}
		if err := h.router.Withdraw(ctx, 7); !errors.Is(err, domain.ErrUnknownRequest) {
			t.Fatalf("second withdraw: expected ErrUnknownRequest, got %v", err)
		}
	})
}
