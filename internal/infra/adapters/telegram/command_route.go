package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-parts-broker/internal/domain/ports/adapter"
	"telegram-parts-broker/internal/infra/metrics"
)

type commandHandler func(ctx context.Context, message *tgbotapi.Message) error

// respondCommandPrefix starts the per-buyer command sellers receive in each
// notification, e.g. /respond_123456.
const respondCommandPrefix = "respond_"

// commandRoutes defines all available bot commands and their handlers.
func (r *RealTelegramBotAdapter) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"start":     r.handleStartCommand,
		"search":    r.handleSearchCommand,
		"cancel":    r.handleCancelCommand,
		"myrequest": r.handleMyRequestCommand,
		"help":      r.handleHelpCommand,

		"reload": r.adminOnly(r.handleReloadCommand),
	}
}

// routeCommand resolves a command name, respond_<id> included.
func (r *RealTelegramBotAdapter) routeCommand(name string) (commandHandler, string) {
	name = strings.ToLower(name)
	if strings.HasPrefix(name, respondCommandPrefix) {
		return r.handleRespondCommand, "/respond"
	}
	if fn, ok := r.commandRoutes()[name]; ok {
		return fn, "/" + name
	}
	return nil, "/unknown"
}

func (r *RealTelegramBotAdapter) handleCommand(ctx context.Context, message *tgbotapi.Message) error {
	fn, label := r.routeCommand(message.Command())
	metrics.IncTelegramCommand(label)
	if fn == nil {
		return r.reply(ctx, message.Chat.ID, 0, r.facade.HandleHelp(ctx, actorFrom(message.From)))
	}
	return fn(ctx, message)
}

func (r *RealTelegramBotAdapter) adminOnly(next commandHandler) commandHandler {
	return func(ctx context.Context, message *tgbotapi.Message) error {
		if _, isAdmin := r.adminIDsMap[message.From.ID]; !isAdmin {
			metrics.IncAdminRequest("/"+message.Command(), "unauthorized")
			return r.SendMessage(ctx, adapter.SendMessageParams{ChatID: message.Chat.ID, Text: r.translator.T("error_unauthorized")})
		}
		metrics.IncAdminRequest("/"+message.Command(), "authorized")
		return next(ctx, message)
	}
}

func (r *RealTelegramBotAdapter) handleStartCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.reply(ctx, message.Chat.ID, 0, r.facade.HandleStart(ctx, actorFrom(message.From)))
}

func (r *RealTelegramBotAdapter) handleSearchCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.reply(ctx, message.Chat.ID, 0, r.facade.HandleSearch(ctx, actorFrom(message.From)))
}

func (r *RealTelegramBotAdapter) handleCancelCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.reply(ctx, message.Chat.ID, 0, r.facade.HandleCancel(ctx, actorFrom(message.From)))
}

func (r *RealTelegramBotAdapter) handleMyRequestCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.reply(ctx, message.Chat.ID, 0, r.facade.HandleMyRequest(ctx, actorFrom(message.From)))
}

func (r *RealTelegramBotAdapter) handleHelpCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.reply(ctx, message.Chat.ID, 0, r.facade.HandleHelp(ctx, actorFrom(message.From)))
}

// handleRespondCommand enters the seller track for the buyer named in the command.
func (r *RealTelegramBotAdapter) handleRespondCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.reply(ctx, message.Chat.ID, 0, r.facade.HandleRespond(ctx, actorFrom(message.From), message.Command()))
}

func (r *RealTelegramBotAdapter) handleReloadCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.reply(ctx, message.Chat.ID, 0, r.facade.HandleReload(ctx, actorFrom(message.From)))
}
