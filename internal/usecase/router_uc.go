package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"telegram-parts-broker/internal/domain"
	"telegram-parts-broker/internal/domain/model"
	"telegram-parts-broker/internal/domain/ports/adapter"
	"telegram-parts-broker/internal/domain/ports/repository"
	"telegram-parts-broker/internal/infra/logging"
	"telegram-parts-broker/internal/infra/metrics"
	"telegram-parts-broker/internal/infra/worker"
)

// Compile-time check
var _ NotificationRouter = (*RouterUseCase)(nil)

// Translator renders a localized message.
type Translator interface {
	T(key string, args ...interface{}) string
}

// NotificationRouter fans requests out to sellers and relays their answers back.
type NotificationRouter interface {
	Dispatch(ctx context.Context, req *model.PartRequest) (*model.DispatchReport, error)
	RelayUnavailable(ctx context.Context, buyerID int64, responder model.Actor) error
	RelayQuote(ctx context.Context, buyerID int64, price float64, responder model.Actor) error
}

type RouterOptions struct {
	RequestTTL         time.Duration
	SendAttempts       int
	RetryBackoff       time.Duration
	Currency           string
	RestrictResponders bool
}

type RouterUseCase struct {
	dir   SellerDirectory
	store repository.RequestStore
	bot   adapter.TelegramBotAdapter
	tr    Translator
	pool  *worker.Pool
	audit repository.DispatchLogRepository
	opts  RouterOptions
	log   *zerolog.Logger
	now   func() time.Time
}

// NewRouterUseCase wires the router. pool and audit may be nil: sends then run
// inline and nothing is written to the audit log.
func NewRouterUseCase(
	dir SellerDirectory,
	store repository.RequestStore,
	bot adapter.TelegramBotAdapter,
	tr Translator,
	pool *worker.Pool,
	audit repository.DispatchLogRepository,
	opts RouterOptions,
	logger *zerolog.Logger,
) *RouterUseCase {
	if opts.SendAttempts <= 0 {
		opts.SendAttempts = 1
	}
	if opts.Currency == "" {
		opts.Currency = "AED"
	}
	return &RouterUseCase{
		dir:   dir,
		store: store,
		bot:   bot,
		tr:    tr,
		pool:  pool,
		audit: audit,
		opts:  opts,
		log:   logger,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch notifies every matching seller and records req as pending under its
// buyer, replacing any earlier pending request of that buyer. A failed send is
// recorded in the report and never stops delivery to the remaining sellers.
func (r *RouterUseCase) Dispatch(ctx context.Context, req *model.PartRequest) (*model.DispatchReport, error) {
	if req == nil || req.BuyerID == 0 || strings.TrimSpace(req.Brand) == "" {
		return nil, domain.ErrInvalidArgument
	}
	log := logging.With(logging.WithRequestID(logging.WithTgID(ctx, req.BuyerID), req.ID), r.log)

	matches := r.dir.FindByBrand(req.Brand)
	report := &model.DispatchReport{RequestID: req.ID, Brand: req.Brand, Matched: len(matches)}

	text := r.tr.T("seller_notification",
		req.Brand, req.ModelOrNA(), req.YearOrNA(), req.CategoryOrNA(),
		req.SubcategoryOrNA(), req.DescriptionOrNA(), req.BuyerID)

	type outcome struct {
		seller *model.Seller
		err    error
	}
	results := make([]*outcome, len(matches))
	var tasks []worker.Task
	for i, s := range matches {
		if !s.Reachable() {
			report.SkippedNoContact++
			report.Failures = append(report.Failures, model.DeliveryFailure{SellerID: s.ID, Reason: "no contact"})
			log.Warn().Str("seller_id", s.ID).Msg("seller has no telegram contact; skipped")
			continue
		}
		i, s := i, s
		tasks = append(tasks, func(ctx context.Context) error {
			err := r.send(ctx, adapter.SendMessageParams{ChatID: s.Contact.TelegramID, Text: text})
			results[i] = &outcome{seller: s, err: err}
			return nil
		})
	}
	worker.RunAll(ctx, r.pool, tasks)

	notified := make([]int64, 0, len(tasks))
	for _, res := range results {
		if res == nil {
			continue
		}
		if res.err != nil {
			report.Failed++
			report.Failures = append(report.Failures, model.DeliveryFailure{SellerID: res.seller.ID, Reason: res.err.Error()})
			log.Warn().Err(res.err).Str("seller_id", res.seller.ID).Msg("seller notification failed")
			continue
		}
		report.Delivered++
		notified = append(notified, res.seller.Contact.TelegramID)
	}

	stored := req.Clone()
	stored.Status = model.RequestPending
	stored.NotifiedSellers = notified
	stored.Answers = 0
	stored.AnsweredAt = nil
	if r.opts.RequestTTL > 0 {
		stored.ExpiresAt = r.now().Add(r.opts.RequestTTL)
	}
	if err := r.store.Put(ctx, stored); err != nil {
		return report, fmt.Errorf("store pending request: %w", err)
	}

	metrics.IncDispatch(string(req.Source), report.Matched > 0)
	metrics.AddSellerNotifications("delivered", report.Delivered)
	metrics.AddSellerNotifications("failed", report.Failed)
	metrics.AddSellerNotifications("skipped_no_contact", report.SkippedNoContact)

	if r.audit != nil {
		if err := r.audit.SaveDispatch(ctx, stored, report); err != nil {
			log.Warn().Err(err).Msg("dispatch audit write failed")
		}
	}

	log.Info().
		Str("brand", req.Brand).
		Int("matched", report.Matched).
		Int("skipped_no_contact", report.SkippedNoContact).
		Int("delivered", report.Delivered).
		Int("failed", report.Failed).
		Msg("request dispatched")
	return report, nil
}

// RelayUnavailable tells the buyer a seller does not have the part.
func (r *RouterUseCase) RelayUnavailable(ctx context.Context, buyerID int64, responder model.Actor) error {
	return r.relay(ctx, buyerID, responder, model.RelayUnavailable, 0, func(req *model.PartRequest) string {
		return r.tr.T("buyer_unavailable", req.Brand)
	})
}

// RelayQuote sends the seller's price and a contact hint to the buyer.
func (r *RouterUseCase) RelayQuote(ctx context.Context, buyerID int64, price float64, responder model.Actor) error {
	if price < 0 {
		return fmt.Errorf("%w: negative price", domain.ErrValidation)
	}
	return r.relay(ctx, buyerID, responder, model.RelayQuote, price, func(req *model.PartRequest) string {
		return r.tr.T("buyer_quote",
			req.Brand, req.DescriptionOrNA(), FormatPrice(price), r.opts.Currency,
			r.sellerName(responder), r.contactHint(responder))
	})
}

// relay resolves the buyer's pending request and forwards one seller answer.
// Lookup failures surface ErrUnknownRequest; send failures surface ErrDelivery.
func (r *RouterUseCase) relay(
	ctx context.Context,
	buyerID int64,
	responder model.Actor,
	kind model.RelayKind,
	price float64,
	render func(req *model.PartRequest) string,
) error {
	log := logging.With(logging.WithTgID(ctx, responder.TelegramID), r.log)

	req, err := r.store.Get(ctx, buyerID)
	if err != nil {
		metrics.IncRelay(string(kind), "unknown_request")
		if errors.Is(err, domain.ErrUnknownRequest) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrUnknownRequest, err)
	}
	if r.opts.RestrictResponders && !req.WasNotified(responder.TelegramID) {
		metrics.IncRelay(string(kind), "not_responder")
		return domain.ErrNotResponder
	}

	rec := &model.RelayRecord{RequestID: req.ID, BuyerID: buyerID, SellerTgID: responder.TelegramID, Kind: kind, Price: price}
	sendErr := r.send(ctx, adapter.SendMessageParams{ChatID: buyerID, Text: render(req)})
	rec.Delivered = sendErr == nil
	r.saveRelay(ctx, rec)
	if sendErr != nil {
		metrics.IncRelay(string(kind), "failed")
		log.Warn().Err(sendErr).Int64("buyer_id", buyerID).Msg("relay to buyer failed")
		return fmt.Errorf("%w: %v", domain.ErrDelivery, sendErr)
	}

	if _, err := r.store.Update(ctx, buyerID, func(p *model.PartRequest) error {
		if p.ID != req.ID {
			return nil
		}
		p.MarkAnswered(r.now())
		return nil
	}); err != nil {
		// the message is already with the buyer
		log.Warn().Err(err).Int64("buyer_id", buyerID).Msg("could not mark request answered")
	}

	metrics.IncRelay(string(kind), "delivered")
	log.Info().Str("kind", string(kind)).Int64("buyer_id", buyerID).Str("request_id", req.ID).Msg("answer relayed")
	return nil
}

// Pending returns the buyer's open request.
func (r *RouterUseCase) Pending(ctx context.Context, buyerID int64) (*model.PartRequest, error) {
	return r.store.Get(ctx, buyerID)
}

// Open lists every request still in the store.
func (r *RouterUseCase) Open(ctx context.Context) ([]*model.PartRequest, error) {
	return r.store.List(ctx)
}

// Withdraw removes the buyer's open request so no further answers are relayed.
func (r *RouterUseCase) Withdraw(ctx context.Context, buyerID int64) error {
	if _, err := r.store.Update(ctx, buyerID, func(p *model.PartRequest) error {
		p.Status = model.RequestCancelled
		return nil
	}); err != nil {
		return err
	}
	return r.store.Clear(ctx, buyerID)
}

// ExpireStale drops requests past their deadline and tells buyers whose request
// was never answered.
func (r *RouterUseCase) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	expired, err := r.store.PurgeExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	for _, req := range expired {
		if req.Status != model.RequestPending {
			continue
		}
		if err := r.send(ctx, adapter.SendMessageParams{ChatID: req.BuyerID, Text: r.tr.T("request_expired", req.Brand)}); err != nil {
			r.log.Warn().Err(err).Int64("buyer_id", req.BuyerID).Msg("expiry notice failed")
		}
	}
	metrics.AddRequestsExpired(len(expired))
	if len(expired) > 0 {
		r.log.Info().Int("expired", len(expired)).Msg("stale requests purged")
	}
	return len(expired), nil
}

// send retries transient failures with a linear backoff. Unreachable recipients
// are not retried.
func (r *RouterUseCase) send(ctx context.Context, params adapter.SendMessageParams) error {
	var err error
	for attempt := 1; attempt <= r.opts.SendAttempts; attempt++ {
		if err = r.bot.SendMessage(ctx, params); err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrRecipientUnreachable) || attempt == r.opts.SendAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.opts.RetryBackoff * time.Duration(attempt)):
		}
	}
	return err
}

func (r *RouterUseCase) saveRelay(ctx context.Context, rec *model.RelayRecord) {
	if r.audit == nil {
		return
	}
	if err := r.audit.SaveRelay(ctx, rec); err != nil {
		r.log.Warn().Err(err).Msg("relay audit write failed")
	}
}

func (r *RouterUseCase) sellerName(a model.Actor) string {
	if s, ok := r.dir.FindByTelegramID(a.TelegramID); ok {
		return s.DisplayName()
	}
	if a.FirstName != "" {
		return a.FirstName
	}
	if a.Username != "" {
		return "@" + a.Username
	}
	return strconv.FormatInt(a.TelegramID, 10)
}

// contactHint prefers the public username, then the roster phone, then a deep link.
func (r *RouterUseCase) contactHint(a model.Actor) string {
	if a.Username != "" {
		return "@" + a.Username
	}
	if s, ok := r.dir.FindByTelegramID(a.TelegramID); ok && s.Contact.Phone != "" {
		return s.Contact.Phone
	}
	return fmt.Sprintf("tg://user?id=%d", a.TelegramID)
}

// FormatPrice renders a price without trailing zeros.
func FormatPrice(p float64) string { return strconv.FormatFloat(p, 'f', -1, 64) }
