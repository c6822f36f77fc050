package httpapi

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/radieske/bet-settlement-ledger/internal/ledger-service/dto"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/gateway"
	le "github.com/radieske/bet-settlement-ledger/internal/ledger/ledgererr"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/revenue"
)

func (s *Server) openEpoch(w http.ResponseWriter, r *http.Request) {
	var req dto.OpenEpochRequest
	if err := decodeOptional(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	e, replayed, err := s.gw.OpenEpoch(r.Context(), token(r), req.PeriodStart)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeResult(w, http.StatusCreated, replayed, e)
}

func (s *Server) closeEpoch(w http.ResponseWriter, r *http.Request) {
	id, err := epochParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req dto.CloseEpochRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	e, replayed, err := s.gw.CloseEpoch(r.Context(), token(r), id, req.Pool, req.Supply)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, replayed, e)
}

func (s *Server) getEpoch(w http.ResponseWriter, r *http.Request) {
	id, err := epochParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	e, err := s.gw.GetEpoch(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) currentEpoch(w http.ResponseWriter, r *http.Request) {
	e, err := s.gw.CurrentEpoch(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) getEntitlement(w http.ResponseWriter, r *http.Request) {
	id, err := epochParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	balance, err := decimal.NewFromString(r.URL.Query().Get("balance"))
	if err != nil {
		s.writeError(w, r, le.Validation("invalid balance: %v", err))
		return
	}
	amt, err := s.gw.ComputeEntitlement(r.Context(), id, balance)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.AmountResponse{Amount: amt})
}

func (s *Server) claimRevenue(w http.ResponseWriter, r *http.Request) {
	id, err := epochParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req dto.ClaimRevenueRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, replayed, err := s.gw.ClaimRevenue(r.Context(), token(r), gateway.ClaimInput{
		EpochID:     id,
		ClaimantID:  req.ClaimantID,
		Balance:     req.Balance,
		Destination: req.Destination,
	})
	if errors.Is(err, le.ErrNothingToClaim) {
		writeJSON(w, http.StatusOK, dto.NothingToClaimResponse{Amount: decimal.Zero, NothingToClaim: true})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeResult(w, http.StatusCreated, replayed, res)
}

func (s *Server) listClaims(w http.ResponseWriter, r *http.Request) {
	id, err := epochParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list, err := s.gw.ListClaims(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*revenue.ClaimRecord{}
	}
	writeJSON(w, http.StatusOK, list)
}
