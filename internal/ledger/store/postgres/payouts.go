package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	le "github.com/radieske/bet-settlement-ledger/internal/ledger/ledgererr"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/money"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/payout"
)

// Payouts implementa payout.Store.
type Payouts struct{ db *sql.DB }

func NewPayouts(db *sql.DB) *Payouts { return &Payouts{db: db} }

const payoutColumns = `correlation_id, kind, subject_id, owner, dest_mode, dest_address, amount, currency,
	status, attempts, tx_ref, last_error, created_at, updated_at`

func (r *Payouts) Insert(ctx context.Context, p *payout.Payout) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payouts (`+payoutColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		p.CorrelationID, string(p.Kind), p.SubjectID, p.Owner, string(p.Destination.Mode), p.Destination.Address,
		p.Amount, p.Currency, string(p.Status), p.Attempts, p.TxRef, p.LastError, p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return le.Conflict("payout %s exists", p.CorrelationID)
	}
	return err
}

func (r *Payouts) Get(ctx context.Context, id string) (*payout.Payout, error) {
	p, err := scanPayout(r.db.QueryRowContext(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE correlation_id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, le.NotFound("payout %s", id)
	}
	return p, err
}

func (r *Payouts) Update(ctx context.Context, p *payout.Payout) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payouts SET status=$2, attempts=$3, tx_ref=$4, last_error=$5, updated_at=$6
		WHERE correlation_id=$1`,
		p.CorrelationID, string(p.Status), p.Attempts, p.TxRef, p.LastError, p.UpdatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return le.NotFound("payout %s", p.CorrelationID)
	}
	return nil
}

func (r *Payouts) ListForRetry(ctx context.Context, staleBefore time.Time, limit int) ([]*payout.Payout, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+payoutColumns+` FROM payouts
		WHERE status IN ('recorded','failed') OR (status='submitted' AND updated_at < $1)
		ORDER BY created_at
		LIMIT $2`, staleBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*payout.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPayout(s scanner) (*payout.Payout, error) {
	var (
		p                  payout.Payout
		kind, mode, status string
	)
	if err := s.Scan(&p.CorrelationID, &kind, &p.SubjectID, &p.Owner, &mode, &p.Destination.Address, &p.Amount,
		&p.Currency, &status, &p.Attempts, &p.TxRef, &p.LastError, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Kind = payout.Kind(kind)
	p.Destination.Mode = money.Mode(mode)
	p.Status = payout.Status(status)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}
