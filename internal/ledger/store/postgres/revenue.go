package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	le "github.com/radieske/bet-settlement-ledger/internal/ledger/ledgererr"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/money"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/revenue"
)

// Revenue implementa revenue.Store. A chave primária (epoch_id, claimant_id) garante
// um único claim por detentor mesmo fora da serialização do gateway.
type Revenue struct{ db *sql.DB }

func NewRevenue(db *sql.DB) *Revenue { return &Revenue{db: db} }

const epochColumns = `id, period_start, period_end, holder_share, collected_amount, total_pool_amount,
	snapshot_total_eligible_supply, status, closed_at`

func (r *Revenue) InsertEpoch(ctx context.Context, e *revenue.Epoch) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	collected := e.CollectedAmount
	if e.Status == revenue.StatusOpen {
		var pending decimal.Decimal
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(amount), 0) FROM revenue_credits WHERE epoch_id IS NULL`).Scan(&pending); err != nil {
			return err
		}
		collected = collected.Add(pending)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO revenue_epochs (`+epochColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		e.ID, e.PeriodStart, e.PeriodEnd, e.HolderShare, collected, e.TotalPoolAmount,
		e.SnapshotTotalEligibleSupply, string(e.Status), nullTime(e.ClosedAt))
	if isUniqueViolation(err) {
		return le.Conflict("epoch %d overlaps an existing or open epoch", e.ID)
	}
	if err != nil {
		return err
	}
	if e.Status == revenue.StatusOpen {
		if _, err := tx.ExecContext(ctx,
			`UPDATE revenue_credits SET epoch_id=$1 WHERE epoch_id IS NULL`, e.ID); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.CollectedAmount = collected
	return nil
}

// InsertCredit grava o crédito e soma o valor na época aberta na mesma transação.
// A chave primária em correlation_id barra a contagem dupla mesmo sem o cache de idempotência.
func (r *Revenue) InsertCredit(ctx context.Context, c *revenue.Credit) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var epochID sql.NullInt64
	if !c.Pending() {
		epochID = sql.NullInt64{Int64: c.EpochID, Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO revenue_credits (correlation_id, amount, epoch_id, received_at)
		VALUES ($1,$2,$3,$4)`,
		c.CorrelationID, c.Amount, epochID, c.ReceivedAt)
	if isUniqueViolation(err) {
		return revenue.ErrDuplicateCredit
	}
	if err != nil {
		return err
	}
	if !c.Pending() {
		res, err := tx.ExecContext(ctx, `
			UPDATE revenue_epochs SET collected_amount = collected_amount + $2
			WHERE id=$1 AND status='open'`, c.EpochID, c.Amount)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return le.Conflict("epoch %d is not open", c.EpochID)
		}
	}
	return tx.Commit()
}

func (r *Revenue) PendingCredits(ctx context.Context) ([]*revenue.Credit, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT correlation_id, amount, received_at FROM revenue_credits
		WHERE epoch_id IS NULL ORDER BY received_at, correlation_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*revenue.Credit
	for rows.Next() {
		var c revenue.Credit
		if err := rows.Scan(&c.CorrelationID, &c.Amount, &c.ReceivedAt); err != nil {
			return nil, err
		}
		c.ReceivedAt = c.ReceivedAt.UTC()
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (r *Revenue) UpdateEpoch(ctx context.Context, e *revenue.Epoch) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE revenue_epochs
		SET collected_amount=$2, total_pool_amount=$3, snapshot_total_eligible_supply=$4, status=$5, closed_at=$6
		WHERE id=$1 AND status='open'`,
		e.ID, e.CollectedAmount, e.TotalPoolAmount, e.SnapshotTotalEligibleSupply, string(e.Status), nullTime(e.ClosedAt))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// épocas fechadas são imutáveis
		return le.Conflict("epoch %d is not open", e.ID)
	}
	return nil
}

func (r *Revenue) GetEpoch(ctx context.Context, id int64) (*revenue.Epoch, error) {
	e, err := scanEpoch(r.db.QueryRowContext(ctx, `SELECT `+epochColumns+` FROM revenue_epochs WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, le.NotFound("epoch %d", id)
	}
	return e, err
}

func (r *Revenue) LatestEpoch(ctx context.Context) (*revenue.Epoch, error) {
	e, err := scanEpoch(r.db.QueryRowContext(ctx, `SELECT `+epochColumns+` FROM revenue_epochs ORDER BY id DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, le.NotFound("no epochs")
	}
	return e, err
}

func (r *Revenue) InsertClaim(ctx context.Context, c *revenue.ClaimRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO revenue_claims
		  (epoch_id, claimant_id, balance_at_snapshot, entitlement_amount, dest_mode, dest_address, claimed_at, payout_reference)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		c.EpochID, c.ClaimantID, c.BalanceAtSnapshot, c.EntitlementAmount,
		string(c.Destination.Mode), c.Destination.Address, c.ClaimedAt, c.PayoutReference)
	if isUniqueViolation(err) {
		return le.ErrAlreadyClaimed
	}
	return err
}

const claimColumns = `epoch_id, claimant_id, balance_at_snapshot, entitlement_amount, dest_mode, dest_address, claimed_at, payout_reference`

func (r *Revenue) GetClaim(ctx context.Context, epochID int64, claimantID string) (*revenue.ClaimRecord, error) {
	c, err := scanClaim(r.db.QueryRowContext(ctx,
		`SELECT `+claimColumns+` FROM revenue_claims WHERE epoch_id=$1 AND claimant_id=$2`, epochID, claimantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, le.NotFound("claim %d/%s", epochID, claimantID)
	}
	return c, err
}

func (r *Revenue) ListClaims(ctx context.Context, epochID int64) ([]*revenue.ClaimRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+claimColumns+` FROM revenue_claims WHERE epoch_id=$1 ORDER BY claimed_at, claimant_id`, epochID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*revenue.ClaimRecord
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanEpoch(s scanner) (*revenue.Epoch, error) {
	var (
		e      revenue.Epoch
		status string
		closed sql.NullTime
	)
	if err := s.Scan(&e.ID, &e.PeriodStart, &e.PeriodEnd, &e.HolderShare, &e.CollectedAmount, &e.TotalPoolAmount,
		&e.SnapshotTotalEligibleSupply, &status, &closed); err != nil {
		return nil, err
	}
	e.Status = revenue.Status(status)
	e.PeriodStart = e.PeriodStart.UTC()
	e.PeriodEnd = e.PeriodEnd.UTC()
	e.ClosedAt = timePtr(closed)
	return &e, nil
}

func scanClaim(s scanner) (*revenue.ClaimRecord, error) {
	var (
		c    revenue.ClaimRecord
		mode string
	)
	if err := s.Scan(&c.EpochID, &c.ClaimantID, &c.BalanceAtSnapshot, &c.EntitlementAmount, &mode,
		&c.Destination.Address, &c.ClaimedAt, &c.PayoutReference); err != nil {
		return nil, err
	}
	c.Destination.Mode = money.Mode(mode)
	c.ClaimedAt = c.ClaimedAt.UTC()
	return &c, nil
}
