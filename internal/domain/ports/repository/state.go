package repository

import (
	"context"
	"time"

	"telegram-parts-broker/internal/domain/model"
)

// StateRepository is the port for managing any user's conversational state.
// GetState returns domain.ErrNoConversation when the user has none.
type StateRepository interface {
	SetState(ctx context.Context, tgID int64, state *model.ConversationState) error
	GetState(ctx context.Context, tgID int64) (*model.ConversationState, error)
	ClearState(ctx context.Context, tgID int64) error
	// PurgeIdle drops states not touched since before the cutoff.
	PurgeIdle(ctx context.Context, cutoff time.Time) (int, error)
}
