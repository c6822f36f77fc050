package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/radieske/bet-settlement-ledger/internal/ledger-service/dto"
	le "github.com/radieske/bet-settlement-ledger/internal/ledger/ledgererr"
)

// getPayout devolve o pagamento. Com ?wait=<duração> bloqueia até confirmação, falha
// ou o prazo (limitado por MaxWait); no prazo esgotado responde 200 com pending=true.
func (s *Server) getPayout(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	waitParam := r.URL.Query().Get("wait")
	if waitParam == "" {
		p, err := s.gw.GetPayout(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, dto.PayoutResponse{Payout: p})
		return
	}

	wait, err := time.ParseDuration(waitParam)
	if err != nil || wait <= 0 {
		s.writeError(w, r, le.Validation("invalid wait %q", waitParam))
		return
	}
	if wait > s.opts.MaxWait {
		wait = s.opts.MaxWait
	}
	ctx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()

	p, err := s.gw.AwaitPayout(ctx, id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, dto.PayoutResponse{Payout: p})
	case errors.Is(err, context.DeadlineExceeded) && p != nil:
		writeJSON(w, http.StatusOK, dto.PayoutResponse{Payout: p, Pending: true})
	default:
		s.writeError(w, r, err)
	}
}
