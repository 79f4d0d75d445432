package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"telegram-parts-broker/internal/domain"
	"telegram-parts-broker/internal/domain/model"
	"telegram-parts-broker/internal/domain/ports/repository"
)

var _ repository.RequestStore = (*RequestStore)(nil)

// RequestStore keeps pending requests in process memory, keyed by buyer.
// A single mutex serialises read-modify-write so a seller reply and a new
// submission for the same buyer never interleave.
type RequestStore struct {
	mu    sync.Mutex
	items map[int64]*model.PartRequest
	now   func() time.Time
}

func NewRequestStore() *RequestStore {
	return &RequestStore{items: make(map[int64]*model.PartRequest), now: time.Now}
}

func (s *RequestStore) Put(ctx context.Context, req *model.PartRequest) error {
	if req == nil || req.BuyerID == 0 {
		return domain.ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[req.BuyerID] = req.Clone()
	return nil
}

func (s *RequestStore) Get(ctx context.Context, buyerID int64) (*model.PartRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, err := s.lookupLocked(buyerID)
	if err != nil {
		return nil, err
	}
	return req.Clone(), nil
}

func (s *RequestStore) Update(ctx context.Context, buyerID int64, fn func(req *model.PartRequest) error) (*model.PartRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, err := s.lookupLocked(buyerID)
	if err != nil {
		return nil, err
	}
	working := req.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	s.items[buyerID] = working
	return working.Clone(), nil
}

func (s *RequestStore) Clear(ctx context.Context, buyerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, buyerID)
	return nil
}

func (s *RequestStore) List(ctx context.Context) ([]*model.PartRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.PartRequest, 0, len(s.items))
	for _, r := range s.items {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *RequestStore) PurgeExpired(ctx context.Context, now time.Time) ([]*model.PartRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []*model.PartRequest
	for id, r := range s.items {
		if r.Expired(now) {
			expired = append(expired, r)
			delete(s.items, id)
		}
	}
	return expired, nil
}

// lookupLocked treats an expired entry as already cleared.
func (s *RequestStore) lookupLocked(buyerID int64) (*model.PartRequest, error) {
	req, ok := s.items[buyerID]
	if !ok || req.Expired(s.now()) {
		return nil, domain.ErrUnknownRequest
	}
	return req, nil
}
