package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"telegram-parts-broker/internal/domain"
	"telegram-parts-broker/internal/domain/model"
	"telegram-parts-broker/internal/domain/ports/repository"
)

var _ repository.StateRepository = (*StateRepo)(nil)

// StateRepo manages user conversational state in Redis. Every write renews
// the key TTL, so a dialogue expires ttl after its last input.
type StateRepo struct {
	client *Client
	ttl    time.Duration
}

func NewStateRepo(client *Client, ttl time.Duration) *StateRepo {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &StateRepo{client: client, ttl: ttl}
}

func (s *StateRepo) stateKey(tgID int64) string {
	return fmt.Sprintf("conv_state:%d", tgID)
}

func (s *StateRepo) SetState(ctx context.Context, tgID int64, state *model.ConversationState) error {
	if state == nil {
		return domain.ErrInvalidArgument
	}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.stateKey(tgID), data, s.ttl)
}

func (s *StateRepo) GetState(ctx context.Context, tgID int64) (*model.ConversationState, error) {
	data, err := s.client.Get(ctx, s.stateKey(tgID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNoConversation
		}
		return nil, err
	}

	var state model.ConversationState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *StateRepo) ClearState(ctx context.Context, tgID int64) error {
	_, err := s.client.Del(ctx, s.stateKey(tgID))
	return err
}

// PurgeIdle is a no-op: Redis expires idle states through the key TTL.
func (s *StateRepo) PurgeIdle(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}
