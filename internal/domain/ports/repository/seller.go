package repository

import (
	"context"

	"telegram-parts-broker/internal/domain/model"
)

// SellerSource reads the raw roster. Implementations fail with
// domain.ErrDirectoryLoad when the source is missing or not a sequence.
type SellerSource interface {
	Load(ctx context.Context) ([]*model.Seller, error)
	Describe() string
}
