package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"telegram-parts-broker/internal/domain"
	"telegram-parts-broker/internal/domain/model"
	"telegram-parts-broker/internal/domain/ports/repository"
)

var _ repository.RequestStore = (*RequestStore)(nil)

const (
	requestKeyPrefix = "part_request:"
	lockTTL          = 5 * time.Second
)

// RequestStore keeps pending requests in Redis so several bot instances share
// them. Read-modify-write goes through a per-buyer lock. Keys outlive the
// request deadline by grace so the sweeper still sees them and can notify
// the buyer.
type RequestStore struct {
	client *Client
	locker Locker
	grace  time.Duration
	now    func() time.Time
}

func NewRequestStore(client *Client, locker Locker, grace time.Duration) *RequestStore {
	if grace <= 0 {
		grace = time.Hour
	}
	return &RequestStore{client: client, locker: locker, grace: grace, now: time.Now}
}

func requestKey(buyerID int64) string { return requestKeyPrefix + strconv.FormatInt(buyerID, 10) }
func lockKey(buyerID int64) string    { return "lock:" + requestKey(buyerID) }

func (s *RequestStore) ttlFor(req *model.PartRequest) time.Duration {
	if req.ExpiresAt.IsZero() {
		return 0
	}
	ttl := req.ExpiresAt.Sub(s.now()) + s.grace
	if ttl <= 0 {
		ttl = time.Second
	}
	return ttl
}

func (s *RequestStore) write(ctx context.Context, req *model.PartRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, requestKey(req.BuyerID), data, s.ttlFor(req))
}

func (s *RequestStore) read(ctx context.Context, key string) (*model.PartRequest, error) {
	data, err := s.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrUnknownRequest
		}
		return nil, err
	}
	var req model.PartRequest
	if err := json.Unmarshal([]byte(data), &req); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &req, nil
}

func (s *RequestStore) withLock(ctx context.Context, buyerID int64, fn func() error) error {
	token, err := s.locker.TryLock(ctx, lockKey(buyerID), lockTTL)
	if err != nil {
		return err
	}
	defer func() { _ = s.locker.Unlock(context.Background(), lockKey(buyerID), token) }()
	return fn()
}

func (s *RequestStore) Put(ctx context.Context, req *model.PartRequest) error {
	if req == nil || req.BuyerID == 0 {
		return domain.ErrInvalidArgument
	}
	return s.withLock(ctx, req.BuyerID, func() error { return s.write(ctx, req) })
}

func (s *RequestStore) Get(ctx context.Context, buyerID int64) (*model.PartRequest, error) {
	req, err := s.read(ctx, requestKey(buyerID))
	if err != nil {
		return nil, err
	}
	if req.Expired(s.now()) {
		return nil, domain.ErrUnknownRequest
	}
	return req, nil
}

func (s *RequestStore) Update(ctx context.Context, buyerID int64, fn func(req *model.PartRequest) error) (*model.PartRequest, error) {
	var out *model.PartRequest
	err := s.withLock(ctx, buyerID, func() error {
		req, err := s.Get(ctx, buyerID)
		if err != nil {
			return err
		}
		if err := fn(req); err != nil {
			return err
		}
		if err := s.write(ctx, req); err != nil {
			return err
		}
		out = req
		return nil
	})
	return out, err
}

func (s *RequestStore) Clear(ctx context.Context, buyerID int64) error {
	return s.withLock(ctx, buyerID, func() error {
		_, err := s.client.Del(ctx, requestKey(buyerID))
		return err
	})
}

func (s *RequestStore) List(ctx context.Context) ([]*model.PartRequest, error) {
	keys, err := s.client.Scan(ctx, requestKeyPrefix+"*")
	if err != nil {
		return nil, err
	}
	out := make([]*model.PartRequest, 0, len(keys))
	for _, k := range keys {
		req, err := s.read(ctx, k)
		if err != nil {
			// expired between scan and read
			continue
		}
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// PurgeExpired deletes every request past its deadline. Only the caller whose
// DEL removed the key gets it back, so concurrent sweepers never notify twice.
func (s *RequestStore) PurgeExpired(ctx context.Context, now time.Time) ([]*model.PartRequest, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var expired []*model.PartRequest
	for _, req := range all {
		if !req.Expired(now) {
			continue
		}
		n, err := s.client.Del(ctx, requestKey(req.BuyerID))
		if err != nil {
			return expired, err
		}
		if n == 1 {
			expired = append(expired, req)
		}
	}
	return expired, nil
}

