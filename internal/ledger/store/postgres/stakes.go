package postgres

import (
	"context"
	"database/sql"
	"errors"

	le "github.com/radieske/bet-settlement-ledger/internal/ledger/ledgererr"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/stake"
)

// Stakes implementa stake.Store.
type Stakes struct{ db *sql.DB }

func NewStakes(db *sql.DB) *Stakes { return &Stakes{db: db} }

const stakeColumns = `id, owner, principal, currency, apy_rate, lock_duration_hours, staked_at, lock_ends_at,
	last_accrual_checkpoint, claimed_rewards_total, status, closed_at`

func (r *Stakes) Insert(ctx context.Context, p *stake.Position) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO stake_positions (`+stakeColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		p.ID, p.Owner, p.Principal, p.Currency, p.APYRate, p.LockDurationHours, p.StakedAt, p.LockEndsAt,
		p.LastAccrualCheckpoint, p.ClaimedRewardsTotal, string(p.Status), nullTime(p.ClosedAt))
	if isUniqueViolation(err) {
		return le.Conflict("position %s exists", p.ID)
	}
	return err
}

func (r *Stakes) Get(ctx context.Context, id string) (*stake.Position, error) {
	p, err := scanPosition(r.db.QueryRowContext(ctx, `SELECT `+stakeColumns+` FROM stake_positions WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, le.NotFound("position %s", id)
	}
	return p, err
}

// Update grava apenas os campos que claim e unstake alteram; principal e APY são imutáveis.
func (r *Stakes) Update(ctx context.Context, p *stake.Position) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE stake_positions
		SET last_accrual_checkpoint=$2, claimed_rewards_total=$3, status=$4, closed_at=$5
		WHERE id=$1`,
		p.ID, p.LastAccrualCheckpoint, p.ClaimedRewardsTotal, string(p.Status), nullTime(p.ClosedAt))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return le.NotFound("position %s", p.ID)
	}
	return nil
}

func (r *Stakes) ListByOwner(ctx context.Context, owner string) ([]*stake.Position, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+stakeColumns+` FROM stake_positions WHERE owner=$1 ORDER BY staked_at, id`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*stake.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPosition(s scanner) (*stake.Position, error) {
	var (
		p      stake.Position
		status string
		closed sql.NullTime
	)
	if err := s.Scan(&p.ID, &p.Owner, &p.Principal, &p.Currency, &p.APYRate, &p.LockDurationHours, &p.StakedAt,
		&p.LockEndsAt, &p.LastAccrualCheckpoint, &p.ClaimedRewardsTotal, &status, &closed); err != nil {
		return nil, err
	}
	p.Status = stake.Status(status)
	p.StakedAt = p.StakedAt.UTC()
	p.LockEndsAt = p.LockEndsAt.UTC()
	p.LastAccrualCheckpoint = p.LastAccrualCheckpoint.UTC()
	p.ClosedAt = timePtr(closed)
	return &p, nil
}
