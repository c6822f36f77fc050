package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	le "github.com/radieske/bet-settlement-ledger/internal/ledger/ledgererr"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/money"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/wager"
)

// Wagers implementa wager.Store. Aposta e seleções são gravadas na mesma transação.
type Wagers struct{ db *sql.DB }

func NewWagers(db *sql.DB) *Wagers { return &Wagers{db: db} }

const wagerColumns = `id, owner, stake, currency, combined_odds, potential_payout, status, dest_mode, dest_address, placed_at, settled_at`

func (r *Wagers) Insert(ctx context.Context, w *wager.Wager) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO wagers (`+wagerColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		w.ID, w.Owner, w.Stake, w.Currency, w.CombinedOdds, w.PotentialPayout, string(w.Status),
		string(w.Destination.Mode), w.Destination.Address, w.PlacedAt, nullTime(w.SettledAt),
	); err != nil {
		if isUniqueViolation(err) {
			return le.Conflict("wager %s exists", w.ID)
		}
		return err
	}

	for i, l := range w.Legs {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO wager_legs (wager_id, leg_id, position, market_id, selection_id, odds, status, settled_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			w.ID, l.ID, i, l.MarketID, l.SelectionID, l.Odds, string(l.Status), nullTime(l.SettledAt),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Wagers) Get(ctx context.Context, id string) (*wager.Wager, error) {
	w, err := scanWager(r.db.QueryRowContext(ctx, `SELECT `+wagerColumns+` FROM wagers WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, le.NotFound("wager %s", id)
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadLegs(ctx, map[string]*wager.Wager{w.ID: w}); err != nil {
		return nil, err
	}
	return w, nil
}

// Update grava status e odds recalculadas. Linhas nunca são apagadas.
func (r *Wagers) Update(ctx context.Context, w *wager.Wager) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE wagers SET combined_odds=$2, potential_payout=$3, status=$4, settled_at=$5
		WHERE id=$1`,
		w.ID, w.CombinedOdds, w.PotentialPayout, string(w.Status), nullTime(w.SettledAt))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return le.NotFound("wager %s", w.ID)
	}
	for _, l := range w.Legs {
		if _, err = tx.ExecContext(ctx, `
			UPDATE wager_legs SET status=$3, settled_at=$4 WHERE wager_id=$1 AND leg_id=$2`,
			w.ID, l.ID, string(l.Status), nullTime(l.SettledAt)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Wagers) ListByOwner(ctx context.Context, owner string) ([]*wager.Wager, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+wagerColumns+` FROM wagers WHERE owner=$1 ORDER BY placed_at, id`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*wager.Wager
	byID := make(map[string]*wager.Wager)
	for rows.Next() {
		w, err := scanWager(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
		byID[w.ID] = w
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}
	return out, r.loadLegs(ctx, byID)
}

func (r *Wagers) loadLegs(ctx context.Context, byID map[string]*wager.Wager) error {
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT wager_id, leg_id, market_id, selection_id, odds, status, settled_at
		FROM wager_legs WHERE wager_id = ANY($1) ORDER BY wager_id, position`, pq.Array(ids))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			wagerID, status string
			l               wager.Leg
			settled         sql.NullTime
		)
		if err := rows.Scan(&wagerID, &l.ID, &l.MarketID, &l.SelectionID, &l.Odds, &status, &settled); err != nil {
			return err
		}
		l.Status = wager.LegStatus(status)
		l.SettledAt = timePtr(settled)
		if w, ok := byID[wagerID]; ok {
			w.Legs = append(w.Legs, l)
		}
	}
	return rows.Err()
}

func scanWager(s scanner) (*wager.Wager, error) {
	var (
		w            wager.Wager
		status, mode string
		settled      sql.NullTime
	)
	if err := s.Scan(&w.ID, &w.Owner, &w.Stake, &w.Currency, &w.CombinedOdds, &w.PotentialPayout, &status,
		&mode, &w.Destination.Address, &w.PlacedAt, &settled); err != nil {
		return nil, err
	}
	w.Status = wager.Status(status)
	w.Destination.Mode = money.Mode(mode)
	w.PlacedAt = w.PlacedAt.UTC()
	w.SettledAt = timePtr(settled)
	return &w, nil
}
