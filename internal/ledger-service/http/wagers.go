package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/radieske/bet-settlement-ledger/internal/ledger-service/dto"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/wager"
)

func (s *Server) placeWager(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceWagerRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	wg, replayed, err := s.gw.PlaceWager(r.Context(), token(r), wager.PlaceRequest{
		ID:          req.ID,
		Owner:       req.Owner,
		Legs:        req.Legs,
		Stake:       req.Stake,
		Currency:    req.Currency,
		Destination: req.Destination,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeResult(w, http.StatusCreated, replayed, wg)
}

func (s *Server) getWager(w http.ResponseWriter, r *http.Request) {
	wg, err := s.gw.GetWager(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wg)
}

func (s *Server) listWagers(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list, err := s.gw.ListWagers(r.Context(), owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*wager.Wager{}
	}
	writeJSON(w, http.StatusOK, list)
}

// settleLeg é chamado pelo oráculo de resultados (rota administrativa).
func (s *Server) settleLeg(w http.ResponseWriter, r *http.Request) {
	var req dto.SettleLegRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, replayed, err := s.gw.SettleLeg(r.Context(), token(r), chi.URLParam(r, "id"), chi.URLParam(r, "legId"), req.Outcome)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, replayed, res)
}
