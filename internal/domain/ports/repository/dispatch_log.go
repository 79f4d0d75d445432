package repository

import (
	"context"

	"telegram-parts-broker/internal/domain/model"
)

// -----------------------------
// Dispatch audit log
// -----------------------------

type DispatchLogRepository interface {
	// SaveDispatch records the outcome of one fan-out.
	SaveDispatch(ctx context.Context, req *model.PartRequest, report *model.DispatchReport) error
	// SaveRelay records one seller answer forwarded to a buyer.
	SaveRelay(ctx context.Context, rec *model.RelayRecord) error
}
