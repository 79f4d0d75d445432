package postgres

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-parts-broker/internal/domain"
	"telegram-parts-broker/internal/domain/model"
	"telegram-parts-broker/internal/domain/ports/repository"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the audit tables when they are missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schemaSQL)
	return err
}

var _ repository.DispatchLogRepository = (*dispatchLogRepo)(nil)

type dispatchLogRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewDispatchLogRepo(pool *pgxpool.Pool) *dispatchLogRepo {
	return &dispatchLogRepo{pool: pool, tm: NewTxManager(pool)}
}

// SaveDispatch writes the report and its per-seller failures atomically.
// Saving the same request twice replaces the earlier report.
func (r *dispatchLogRepo) SaveDispatch(ctx context.Context, req *model.PartRequest, report *model.DispatchReport) error {
	if req == nil || report == nil {
		return domain.ErrInvalidArgument
	}
	const upsert = `
INSERT INTO part_dispatches (request_id, buyer_id, brand, model, year, description, source,
                             matched, skipped_no_contact, delivered, failed, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (request_id) DO UPDATE SET
    matched = EXCLUDED.matched,
    skipped_no_contact = EXCLUDED.skipped_no_contact,
    delivered = EXCLUDED.delivered,
    failed = EXCLUDED.failed`
	const clearFailures = `DELETE FROM part_dispatch_failures WHERE request_id = $1`
	const insertFailure = `
INSERT INTO part_dispatch_failures (request_id, seller_id, reason) VALUES ($1, $2, $3)`

	return r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if _, err := execSQL(ctx, r.pool, tx, upsert,
			req.ID, req.BuyerID, req.Brand, req.Model, req.Year, req.Description, string(req.Source),
			report.Matched, report.SkippedNoContact, report.Delivered, report.Failed, req.CreatedAt,
		); err != nil {
			return err
		}
		if _, err := execSQL(ctx, r.pool, tx, clearFailures, req.ID); err != nil {
			return err
		}
		for _, f := range report.Failures {
			if _, err := execSQL(ctx, r.pool, tx, insertFailure, req.ID, f.SellerID, f.Reason); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *dispatchLogRepo) SaveRelay(ctx context.Context, rec *model.RelayRecord) error {
	if rec == nil {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO part_relays (id, request_id, buyer_id, seller_tg_id, kind, price, delivered, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	var price interface{}
	if rec.Kind == model.RelayQuote {
		price = rec.Price
	}
	_, err := execSQL(ctx, r.pool, nil, q,
		uuid.NewString(), rec.RequestID, rec.BuyerID, rec.SellerTgID, string(rec.Kind), price, rec.Delivered, time.Now().UTC())
	return err
}

// RelayCount returns how many answers were logged for a request.
func (r *dispatchLogRepo) RelayCount(ctx context.Context, requestID string) (int, error) {
	const q = `SELECT COUNT(*) FROM part_relays WHERE request_id = $1`
	rows, err := queryRows(ctx, r.pool, nil, q, requestID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
	}
	if err := rows.Err(); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	return n, nil
}
