package application

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"telegram-parts-broker/internal/domain"
	"telegram-parts-broker/internal/domain/model"
	"telegram-parts-broker/internal/domain/ports/adapter"
	"telegram-parts-broker/internal/usecase"
)

// Reply is what the transport sends back to the chat that produced an event.
// Edit asks to replace the message whose button was pressed.
type Reply struct {
	Text        string
	ReplyMarkup *adapter.ReplyMarkup
	Edit        bool
}

// BotFacade composes use cases into bot commands and turns every outcome,
// errors included, into a localized reply. Handlers never return an error the
// user would not see.
type BotFacade struct {
	Dialogue  DialogueUseCaseIface
	Requests  RequestUseCaseIface
	MiniApp   MiniAppUseCaseIface
	Directory DirectoryIface
	tr        usecase.Translator
	webAppURL string
	log       *zerolog.Logger
}

func NewBotFacade(
	dialogue DialogueUseCaseIface,
	requests RequestUseCaseIface,
	miniApp MiniAppUseCaseIface,
	directory DirectoryIface,
	tr usecase.Translator,
	webAppURL string,
	logger *zerolog.Logger,
) *BotFacade {
	return &BotFacade{
		Dialogue:  dialogue,
		Requests:  requests,
		MiniApp:   miniApp,
		Directory: directory,
		tr:        tr,
		webAppURL: webAppURL,
		log:       logger,
	}
}

// HandleStart greets the user and offers the mini-app launcher when configured.
func (b *BotFacade) HandleStart(ctx context.Context, actor model.Actor) Reply {
	if b.webAppURL == "" {
		return Reply{Text: b.tr.T("start_welcome") + "\n\n" + b.tr.T("use_search")}
	}
	return Reply{
		Text: b.tr.T("start_welcome"),
		ReplyMarkup: &adapter.ReplyMarkup{
			Buttons:   [][]adapter.InlineButton{{{Text: b.tr.T("button_webapp")}}},
			WebAppURL: b.webAppURL,
		},
	}
}

func (b *BotFacade) HandleHelp(ctx context.Context, actor model.Actor) Reply {
	return Reply{Text: b.tr.T("help")}
}

func (b *BotFacade) HandleSearch(ctx context.Context, actor model.Actor) Reply {
	return b.promptOrError(ctx, actor)(b.Dialogue.StartSearch(ctx, actor))
}

func (b *BotFacade) HandleRespond(ctx context.Context, actor model.Actor, command string) Reply {
	return b.promptOrError(ctx, actor)(b.Dialogue.StartSellerResponse(ctx, actor, command))
}

func (b *BotFacade) HandleCallback(ctx context.Context, actor model.Actor, data string) Reply {
	return b.promptOrError(ctx, actor)(b.Dialogue.HandleCallback(ctx, actor, data))
}

func (b *BotFacade) HandleText(ctx context.Context, actor model.Actor, text string) Reply {
	return b.promptOrError(ctx, actor)(b.Dialogue.HandleText(ctx, actor, text))
}

// HandleCancel ends a dialogue in progress, or else withdraws the buyer's
// pending request.
func (b *BotFacade) HandleCancel(ctx context.Context, actor model.Actor) Reply {
	p, err := b.Dialogue.Cancel(ctx, actor)
	if err == nil {
		return b.render(p)
	}
	if !errors.Is(err, domain.ErrNoConversation) {
		return b.errorReply(ctx, actor, err)
	}
	switch err := b.Requests.Withdraw(ctx, actor.TelegramID); {
	case err == nil:
		return Reply{Text: b.tr.T("request_withdrawn")}
	case errors.Is(err, domain.ErrUnknownRequest):
		return Reply{Text: b.tr.T("nothing_to_cancel")}
	default:
		return b.errorReply(ctx, actor, err)
	}
}

func (b *BotFacade) HandleMyRequest(ctx context.Context, actor model.Actor) Reply {
	req, err := b.Requests.Pending(ctx, actor.TelegramID)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownRequest) {
			return Reply{Text: b.tr.T("myrequest_none")}
		}
		return b.errorReply(ctx, actor, err)
	}
	return Reply{Text: b.tr.T("myrequest_status",
		req.Brand, req.ModelOrNA(), req.YearOrNA(), req.DescriptionOrNA(), string(req.Status), req.Answers)}
}

// HandleWebAppData dispatches a mini-app form submission.
func (b *BotFacade) HandleWebAppData(ctx context.Context, actor model.Actor, raw []byte, channel string) Reply {
	report, err := b.MiniApp.Submit(ctx, actor, raw, channel)
	if err != nil {
		return b.errorReply(ctx, actor, err)
	}
	r := b.render(usecase.ReportPrompt(report))
	r.Edit = false // web app data arrives as a fresh service message
	return r
}

// HandleReload re-reads the seller roster. Callers restrict it to admins.
func (b *BotFacade) HandleReload(ctx context.Context, actor model.Actor) Reply {
	if err := b.Directory.Reload(ctx); err != nil {
		return b.errorReply(ctx, actor, err)
	}
	return Reply{Text: b.tr.T("reload_done", len(b.Directory.All()))}
}

func (b *BotFacade) promptOrError(ctx context.Context, actor model.Actor) func(*usecase.Prompt, error) Reply {
	return func(p *usecase.Prompt, err error) Reply {
		if err != nil {
			return b.errorReply(ctx, actor, err)
		}
		return b.render(p)
	}
}

func (b *BotFacade) render(p *usecase.Prompt) Reply {
	r := Reply{Text: b.tr.T(p.Key, p.Args...), Edit: p.Edit}
	if len(p.Buttons) == 0 {
		return r
	}
	rows := make([][]adapter.InlineButton, 0, len(p.Buttons))
	for _, row := range p.Buttons {
		out := make([]adapter.InlineButton, 0, len(row))
		for _, btn := range row {
			out = append(out, adapter.InlineButton{Text: b.tr.T(btn.Key, btn.Args...), Data: btn.Data})
		}
		rows = append(rows, out)
	}
	r.ReplyMarkup = &adapter.ReplyMarkup{Buttons: rows, IsInline: true}
	return r
}

// errorReply maps a domain error to the message the user sees.
func (b *BotFacade) errorReply(ctx context.Context, actor model.Actor, err error) Reply {
	key := "error_generic"
	switch {
	case errors.Is(err, domain.ErrInvalidCommand):
		key = "error_invalid_command"
	case errors.Is(err, domain.ErrUnknownRequest):
		key = "error_unknown_request"
	case errors.Is(err, domain.ErrNotResponder):
		key = "error_not_responder"
	case errors.Is(err, domain.ErrDelivery):
		key = "error_delivery"
	case errors.Is(err, domain.ErrValidation):
		key = "invalid_price"
	case errors.Is(err, domain.ErrPayloadParse):
		key = "error_payload"
	case errors.Is(err, domain.ErrDirectoryLoad):
		key = "error_directory"
	case errors.Is(err, domain.ErrInvalidTransition):
		key = "error_unexpected_input"
	case errors.Is(err, domain.ErrNoConversation):
		key = "use_search"
	default:
		b.log.Error().Err(err).Int64("tg_id", actor.TelegramID).Msg("unhandled bot error")
	}
	return Reply{Text: b.tr.T(key)}
}
