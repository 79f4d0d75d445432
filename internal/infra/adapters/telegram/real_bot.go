package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-parts-broker/internal/application"
	"telegram-parts-broker/internal/config"
	"telegram-parts-broker/internal/domain"
	"telegram-parts-broker/internal/domain/model"
	"telegram-parts-broker/internal/domain/ports/adapter"
	"telegram-parts-broker/internal/infra/i18n"
	"telegram-parts-broker/internal/infra/logging"
	"telegram-parts-broker/internal/infra/metrics"
	"telegram-parts-broker/internal/usecase"
)

var _ adapter.TelegramBotAdapter = (*RealTelegramBotAdapter)(nil)

// RateLimiter is satisfied by the memory and redis limiters.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, per time.Duration) (bool, error)
}

// RealTelegramBotAdapter polls updates with tgbotapi and delegates them to the
// BotFacade. It is also the outbound port used by the notification router.
type RealTelegramBotAdapter struct {
	bot         *tgbotapi.BotAPI
	cfg         *config.BotConfig
	facade      *application.BotFacade
	translator  *i18n.Translator
	rateLimiter RateLimiter
	log         *zerolog.Logger

	adminIDsMap   map[int64]struct{}
	updateWorkers int
	cancelPolling context.CancelFunc
}

func NewRealTelegramBotAdapter(cfg *config.BotConfig, translator *i18n.Translator, rateLimiter RateLimiter, logger *zerolog.Logger) (*RealTelegramBotAdapter, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	if translator == nil {
		return nil, errors.New("translator is nil")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}

	adminMap := map[int64]struct{}{}
	for _, id := range cfg.AdminIDs {
		adminMap[id] = struct{}{}
	}

	return &RealTelegramBotAdapter{
		bot:           bot,
		cfg:           cfg,
		translator:    translator,
		rateLimiter:   rateLimiter,
		log:           logging.Component(logger, "telegram"),
		adminIDsMap:   adminMap,
		updateWorkers: workers,
	}, nil
}

// Attach sets the facade inbound updates are routed to. The router needs the
// adapter before the facade exists, so this happens after construction.
func (r *RealTelegramBotAdapter) Attach(facade *application.BotFacade) {
	r.facade = facade
}

// webAppData is the web_app_data service message, which tgbotapi v5.5 does not
// decode.
type webAppData struct {
	Data       string `json:"data"`
	ButtonText string `json:"button_text"`
}

type inboundUpdate struct {
	tgbotapi.Update
	WebAppData *webAppData
}

// decodeUpdates decodes a getUpdates result, keeping web_app_data alongside
// the regular update.
func decodeUpdates(raw json.RawMessage) ([]inboundUpdate, error) {
	var updates []tgbotapi.Update
	if err := json.Unmarshal(raw, &updates); err != nil {
		return nil, err
	}
	var extras []struct {
		Message *struct {
			WebAppData *webAppData `json:"web_app_data"`
		} `json:"message"`
	}
	if err := json.Unmarshal(raw, &extras); err != nil {
		return nil, err
	}
	out := make([]inboundUpdate, len(updates))
	for i, up := range updates {
		out[i].Update = up
		if i < len(extras) && extras[i].Message != nil {
			out[i].WebAppData = extras[i].Message.WebAppData
		}
	}
	return out, nil
}

func (r *RealTelegramBotAdapter) fetchUpdates(offset int) ([]inboundUpdate, error) {
	u := tgbotapi.NewUpdate(offset)
	u.Timeout = 30
	resp, err := r.bot.Request(u)
	if err != nil {
		return nil, err
	}
	return decodeUpdates(resp.Result)
}

func (r *RealTelegramBotAdapter) StartPolling(ctx context.Context) error {
	if r.facade == nil {
		return errors.New("bot facade is not attached")
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancelPolling = cancel

	var wg sync.WaitGroup
	updateChan := make(chan inboundUpdate, 100)

	for i := 0; i < r.updateWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for up := range updateChan {
				if err := r.handleUpdate(ctx, up); err != nil {
					r.log.Warn().Err(err).Int("worker", id).Int("update_id", up.UpdateID).Msg("update handling failed")
				}
			}
		}(i)
	}

	r.log.Info().Str("bot", r.bot.Self.UserName).Int("workers", r.updateWorkers).Msg("polling started")
	offset := 0
	for {
		if ctx.Err() != nil {
			close(updateChan)
			wg.Wait()
			return ctx.Err()
		}
		batch, err := r.fetchUpdates(offset)
		if err != nil {
			r.log.Warn().Err(err).Msg("getUpdates failed, retrying")
			select {
			case <-ctx.Done():
			case <-time.After(3 * time.Second):
			}
			continue
		}
		for _, up := range batch {
			if up.UpdateID >= offset {
				offset = up.UpdateID + 1
			}
			select {
			case updateChan <- up:
			case <-ctx.Done():
			}
		}
	}
}

func (r *RealTelegramBotAdapter) StopPolling() {
	if r.cancelPolling != nil {
		r.cancelPolling()
	}
}

// SendMessage implements the outbound port. An edit that Telegram refuses
// (message too old, unchanged) falls back to a new message.
func (r *RealTelegramBotAdapter) SendMessage(ctx context.Context, params adapter.SendMessageParams) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	markup := buildMarkup(params.ReplyMarkup)
	if params.EditMessageID != 0 {
		edit := tgbotapi.NewEditMessageText(params.ChatID, params.EditMessageID, params.Text)
		edit.ParseMode = params.ParseMode
		if kb, ok := markup.(tgbotapi.InlineKeyboardMarkup); ok {
			edit.ReplyMarkup = &kb
		}
		_, err := r.bot.Send(edit)
		if err == nil {
			return nil
		}
		r.log.Debug().Err(err).Int64("chat_id", params.ChatID).Msg("edit failed, sending new message")
	}

	msg := tgbotapi.NewMessage(params.ChatID, params.Text)
	msg.ParseMode = params.ParseMode
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	_, err := r.bot.Send(msg)
	return classifySendError(err)
}

// classifySendError marks errors that retrying cannot fix: the chat does not
// exist (400) or the user blocked the bot (403).
func classifySendError(err error) error {
	if err == nil {
		return nil
	}
	code, msg, ok := apiError(err)
	if ok && (code == 400 || code == 403) {
		return fmt.Errorf("%w: %s", domain.ErrRecipientUnreachable, msg)
	}
	return err
}

func apiError(err error) (int, string, bool) {
	var p *tgbotapi.Error
	if errors.As(err, &p) {
		return p.Code, p.Message, true
	}
	var v tgbotapi.Error
	if errors.As(err, &v) {
		return v.Code, v.Message, true
	}
	return 0, "", false
}

// webAppKeyboard is a reply keyboard whose buttons may open a Web App.
type webAppKeyboard struct {
	Keyboard       [][]webAppButton `json:"keyboard"`
	ResizeKeyboard bool             `json:"resize_keyboard"`
}

type webAppButton struct {
	Text   string      `json:"text"`
	WebApp *webAppInfo `json:"web_app,omitempty"`
}

type webAppInfo struct {
	URL string `json:"url"`
}

// buildMarkup converts the port's markup into a tgbotapi reply_markup value.
func buildMarkup(m *adapter.ReplyMarkup) interface{} {
	switch {
	case m == nil:
		return nil
	case m.Remove:
		return tgbotapi.NewRemoveKeyboard(true)
	case m.IsInline:
		return inlineKeyboard(m.Buttons)
	case m.WebAppURL != "":
		kb := webAppKeyboard{ResizeKeyboard: true}
		for i, row := range m.Buttons {
			out := make([]webAppButton, 0, len(row))
			for j, btn := range row {
				b := webAppButton{Text: label(btn.Text)}
				if i == 0 && j == 0 {
					b.WebApp = &webAppInfo{URL: m.WebAppURL}
				}
				out = append(out, b)
			}
			kb.Keyboard = append(kb.Keyboard, out)
		}
		return kb
	default:
		rows := make([][]tgbotapi.KeyboardButton, 0, len(m.Buttons))
		for _, row := range m.Buttons {
			out := make([]tgbotapi.KeyboardButton, 0, len(row))
			for _, btn := range row {
				out = append(out, tgbotapi.NewKeyboardButton(label(btn.Text)))
			}
			rows = append(rows, out)
		}
		kb := tgbotapi.NewReplyKeyboard(rows...)
		kb.ResizeKeyboard = true
		return kb
	}
}

// inlineKeyboard builds inline rows. URL buttons open a link, data buttons
// send a callback; a button with neither sends its own label.
func inlineKeyboard(rows [][]adapter.InlineButton) tgbotapi.InlineKeyboardMarkup {
	kbRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		r := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			text := label(btn.Text)
			switch {
			case btn.URL != "":
				r = append(r, tgbotapi.NewInlineKeyboardButtonURL(text, btn.URL))
			case btn.Data != "":
				r = append(r, tgbotapi.NewInlineKeyboardButtonData(text, btn.Data))
			default:
				r = append(r, tgbotapi.NewInlineKeyboardButtonData(text, text))
			}
		}
		kbRows = append(kbRows, r)
	}
	return tgbotapi.NewInlineKeyboardMarkup(kbRows...)
}

func label(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "•"
	}
	return s
}

func actorFrom(u *tgbotapi.User) model.Actor {
	if u == nil {
		return model.Actor{}
	}
	return model.Actor{TelegramID: u.ID, Username: u.UserName, FirstName: u.FirstName}
}

// reply sends a facade reply into chatID, editing messageID when asked to.
func (r *RealTelegramBotAdapter) reply(ctx context.Context, chatID int64, messageID int, rep application.Reply) error {
	params := adapter.SendMessageParams{ChatID: chatID, Text: rep.Text, ReplyMarkup: rep.ReplyMarkup}
	if rep.Edit {
		params.EditMessageID = messageID
	}
	return r.SendMessage(ctx, params)
}

// allow applies the per-user inbound rate limit. Limiter failures let the
// update through.
func (r *RealTelegramBotAdapter) allow(ctx context.Context, userID int64) bool {
	if r.rateLimiter == nil || r.cfg.RateLimit <= 0 {
		return true
	}
	ok, err := r.rateLimiter.Allow(ctx, fmt.Sprintf("tg:%d", userID), r.cfg.RateLimit, time.Minute)
	if err != nil {
		r.log.Warn().Err(err).Int64("tg_id", userID).Msg("rate limiter error")
		return true
	}
	if !ok {
		metrics.IncRateLimitTriggered()
	}
	return ok
}

func (r *RealTelegramBotAdapter) handleUpdate(ctx context.Context, update inboundUpdate) error {
	// ----- Inline button callbacks -----
	if update.CallbackQuery != nil {
		return r.handleQuery(ctx, update.CallbackQuery)
	}

	// ----- Regular messages -----
	message := update.Message
	if message == nil || message.From == nil || message.Chat == nil {
		return nil
	}
	ctx = logging.WithTgID(ctx, message.From.ID)
	if !r.allow(ctx, message.From.ID) {
		return r.SendMessage(ctx, adapter.SendMessageParams{ChatID: message.Chat.ID, Text: r.translator.T("error_rate_limited")})
	}

	if update.WebAppData != nil {
		metrics.IncTelegramCommand("web_app_data")
		rep := r.facade.HandleWebAppData(ctx, actorFrom(message.From), []byte(update.WebAppData.Data), usecase.ChannelWebAppData)
		return r.reply(ctx, message.Chat.ID, 0, rep)
	}

	if message.IsCommand() {
		return r.handleCommand(ctx, message)
	}

	if strings.TrimSpace(message.Text) == "" {
		return nil
	}
	metrics.IncTelegramCommand("message")
	return r.reply(ctx, message.Chat.ID, 0, r.facade.HandleText(ctx, actorFrom(message.From), message.Text))
}

func (r *RealTelegramBotAdapter) handleQuery(ctx context.Context, query *tgbotapi.CallbackQuery) error {
	if query == nil || query.From == nil {
		return errors.New("invalid callback query")
	}

	// Stop telegram spinner when we return
	defer func() { _, _ = r.bot.Request(tgbotapi.NewCallback(query.ID, "")) }()

	ev := callbackEvent{Actor: actorFrom(query.From), ChatID: query.From.ID, Data: strings.TrimSpace(query.Data)}
	if query.Message != nil && query.Message.Chat != nil {
		ev.ChatID = query.Message.Chat.ID
		ev.MessageID = query.Message.MessageID
	}
	ctx = logging.WithTgID(ctx, query.From.ID)
	if !r.allow(ctx, query.From.ID) {
		return r.SendMessage(ctx, adapter.SendMessageParams{ChatID: ev.ChatID, Text: r.translator.T("error_rate_limited")})
	}
	metrics.IncTelegramCommand("callback")

	fn := r.routeCallback(ev.Data)
	if fn == nil {
		r.log.Debug().Str("data", ev.Data).Msg("unknown callback data")
		return r.SendMessage(ctx, adapter.SendMessageParams{ChatID: ev.ChatID, Text: r.translator.T("error_unexpected_input")})
	}
	return fn(ctx, ev)
}
