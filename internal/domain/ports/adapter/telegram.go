package adapter

import "context"

type InlineButton struct {
	Text string
	Data string
	URL  string
}

// ReplyMarkup describes buttons attached to an outgoing message.
// IsInline selects an inline keyboard; otherwise a reply keyboard is shown.
// WebAppURL turns the first reply-keyboard button into a mini-app launcher.
type ReplyMarkup struct {
	Buttons   [][]InlineButton
	IsInline  bool
	WebAppURL string
	Remove    bool
}

type SendMessageParams struct {
	ChatID      int64
	Text        string
	ParseMode   string
	ReplyMarkup *ReplyMarkup
	// EditMessageID replaces the text of an already-sent message when non-zero.
	EditMessageID int
}

// TelegramBotAdapter is the outbound port to the messaging platform.
type TelegramBotAdapter interface {
	SendMessage(ctx context.Context, params SendMessageParams) error
}
