package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/radieske/bet-settlement-ledger/internal/ledger-service/dto"
	le "github.com/radieske/bet-settlement-ledger/internal/ledger/ledgererr"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/stake"
)

func (s *Server) getStake(w http.ResponseWriter, r *http.Request) {
	p, err := s.gw.GetStake(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) listStakes(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list, err := s.gw.ListStakes(r.Context(), owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*stake.Position{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getAccrued(w http.ResponseWriter, r *http.Request) {
	asOf, err := timeQuery(r, "as_of")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amt, err := s.gw.ComputeAccrued(r.Context(), chi.URLParam(r, "id"), asOf)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.AmountResponse{Amount: amt})
}

func (s *Server) claimStakeRewards(w http.ResponseWriter, r *http.Request) {
	var req dto.StakeActionRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, replayed, err := s.gw.ClaimStakeRewards(r.Context(), token(r), chi.URLParam(r, "id"), req.AsOf, req.Destination)
	if errors.Is(err, le.ErrNothingToClaim) {
		writeJSON(w, http.StatusOK, dto.StakeClaimResponse{Amount: decimal.Zero, NothingToClaim: true, Position: res.Position})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, replayed, dto.StakeClaimResponse{Amount: res.Amount, Position: res.Position, Payout: res.Payout})
}

func (s *Server) unstake(w http.ResponseWriter, r *http.Request) {
	var req dto.StakeActionRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, replayed, err := s.gw.Unstake(r.Context(), token(r), chi.URLParam(r, "id"), req.AsOf, req.Destination)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, replayed, res)
}

func (s *Server) getAPY(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, dto.APYResponse{Rate: s.gw.CurrentAPY()})
}

func (s *Server) setAPY(w http.ResponseWriter, r *http.Request) {
	var req dto.SetAPYRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rate, replayed, err := s.gw.SetAPY(r.Context(), token(r), req.Rate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, replayed, dto.APYResponse{Rate: rate})
}
