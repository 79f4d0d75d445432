package repository

import (
	"context"
	"time"

	"telegram-parts-broker/internal/domain/model"
)

// -----------------------------
// Pending requests
// -----------------------------

// RequestStore holds requests awaiting a seller answer, keyed by buyer.
// Get and Update return domain.ErrUnknownRequest for unknown or cleared buyers.
type RequestStore interface {
	Put(ctx context.Context, req *model.PartRequest) error
	Get(ctx context.Context, buyerID int64) (*model.PartRequest, error)
	// Update runs fn under exclusive access to the buyer's entry and stores the result.
	Update(ctx context.Context, buyerID int64, fn func(req *model.PartRequest) error) (*model.PartRequest, error)
	Clear(ctx context.Context, buyerID int64) error
	List(ctx context.Context) ([]*model.PartRequest, error)
	// PurgeExpired removes and returns entries whose ExpiresAt is not after now.
	PurgeExpired(ctx context.Context, now time.Time) ([]*model.PartRequest, error)
}
