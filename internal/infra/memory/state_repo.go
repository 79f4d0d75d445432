package memory

import (
	"context"
	"sync"
	"time"

	"telegram-parts-broker/internal/domain"
	"telegram-parts-broker/internal/domain/model"
	"telegram-parts-broker/internal/domain/ports/repository"
)

var _ repository.StateRepository = (*StateRepo)(nil)

// StateRepo manages conversational state in memory. States idle for longer
// than ttl are invisible to GetState and removed by PurgeIdle.
type StateRepo struct {
	mu     sync.RWMutex
	states map[int64]*model.ConversationState
	ttl    time.Duration
	now    func() time.Time
}

func NewStateRepo(ttl time.Duration) *StateRepo {
	return &StateRepo{states: make(map[int64]*model.ConversationState), ttl: ttl, now: time.Now}
}

func (s *StateRepo) SetState(ctx context.Context, tgID int64, state *model.ConversationState) error {
	if state == nil {
		return domain.ErrInvalidArgument
	}
	cp := *state
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[tgID] = &cp
	return nil
}

func (s *StateRepo) GetState(ctx context.Context, tgID int64) (*model.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[tgID]
	if !ok || s.idle(st) {
		return nil, domain.ErrNoConversation
	}
	cp := *st
	return &cp, nil
}

func (s *StateRepo) ClearState(ctx context.Context, tgID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, tgID)
	return nil
}

func (s *StateRepo) PurgeIdle(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, st := range s.states {
		if st.UpdatedAt.Before(cutoff) {
			delete(s.states, id)
			n++
		}
	}
	return n, nil
}

func (s *StateRepo) idle(st *model.ConversationState) bool {
	return s.ttl > 0 && s.now().Sub(st.UpdatedAt) > s.ttl
}
