package telegram

import (
	"context"
	"strings"

	"telegram-parts-broker/internal/domain/model"
	"telegram-parts-broker/internal/usecase"
)

// callbackEvent is a pressed inline button.
type callbackEvent struct {
	Actor     model.Actor
	ChatID    int64
	MessageID int
	Data      string
}

type cbHandler func(ctx context.Context, ev callbackEvent) error
type prefixCB struct {
	Prefix string
	Fn     cbHandler
}

// Exact-match callbacks
func (r *RealTelegramBotAdapter) cbRoutes() map[string]cbHandler {
	return map[string]cbHandler{
		usecase.CallbackConfirm:      r.dialogueCBRoute,
		usecase.CallbackCancel:       r.dialogueCBRoute,
		usecase.CallbackAvailable:    r.dialogueCBRoute,
		usecase.CallbackNotAvailable: r.dialogueCBRoute,
	}
}

// Prefix-match callbacks
func (r *RealTelegramBotAdapter) cbPrefixRoutes() []prefixCB {
	return []prefixCB{
		{
			Prefix: usecase.CallbackBrandPrefix,
			Fn:     r.dialogueCBRoute,
		},
	}
}

func (r *RealTelegramBotAdapter) routeCallback(data string) cbHandler {
	if fn, ok := r.cbRoutes()[data]; ok {
		return fn
	}
	for _, pr := range r.cbPrefixRoutes() {
		if strings.HasPrefix(data, pr.Prefix) {
			return pr.Fn
		}
	}
	return nil
}

// dialogueCBRoute feeds a button press into the dialogue and, when the prompt
// asks for it, replaces the message that carried the button.
func (r *RealTelegramBotAdapter) dialogueCBRoute(ctx context.Context, ev callbackEvent) error {
	rep := r.facade.HandleCallback(ctx, ev.Actor, ev.Data)
	return r.reply(ctx, ev.ChatID, ev.MessageID, rep)
}
