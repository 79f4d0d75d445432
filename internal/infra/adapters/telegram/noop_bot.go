package telegram

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"telegram-parts-broker/internal/domain/ports/adapter"
	"telegram-parts-broker/internal/infra/logging"
)

var _ adapter.TelegramBotAdapter = (*NoopBotAdapter)(nil)

// NoopBotAdapter implements adapter.TelegramBotAdapter for local/dev runs.
// It logs messages instead of sending them and keeps a transcript.
type NoopBotAdapter struct {
	delay time.Duration
	log   *zerolog.Logger

	mu   sync.Mutex
	sent []adapter.SendMessageParams
}

func NewNoopBotAdapter(delay time.Duration, logger *zerolog.Logger) *NoopBotAdapter {
	return &NoopBotAdapter{delay: delay, log: logging.Component(logger, "noop-telegram")}
}

// SendMessage logs the message after a short simulated latency.
func (b *NoopBotAdapter) SendMessage(ctx context.Context, params adapter.SendMessageParams) error {
	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	ev := b.log.Info().Int64("chat_id", params.ChatID).Str("text", params.Text)
	if params.EditMessageID != 0 {
		ev = ev.Int("edit_message_id", params.EditMessageID)
	}
	if params.ReplyMarkup != nil {
		ev = ev.Int("button_rows", len(params.ReplyMarkup.Buttons))
	}
	ev.Msg("send")

	b.mu.Lock()
	b.sent = append(b.sent, params)
	b.mu.Unlock()
	return nil
}

// Transcript returns every message sent so far, in order.
func (b *NoopBotAdapter) Transcript() []adapter.SendMessageParams {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]adapter.SendMessageParams(nil), b.sent...)
}
