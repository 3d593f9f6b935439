// Package api serves a read-only JSON view of the auction for
// scoreboards and team dashboards.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jensholdgaard/squad-auction/internal/auction"
	"github.com/jensholdgaard/squad-auction/internal/feasibility"
	"github.com/jensholdgaard/squad-auction/internal/health"
	"github.com/jensholdgaard/squad-auction/internal/squad"
)

// Service is the subset of the auction manager the API reads from.
type Service interface {
	AuctionID() string
	Snapshot() (*squad.Snapshot, error)
	Eligibility(ctx context.Context, teamID string, amount int64) (feasibility.Verdict, error)
	Reserve(ctx context.Context, teamID string) (auction.TeamReserve, error)
	Settlements(ctx context.Context) ([]squad.Settlement, error)
}

// Handler serves the auction endpoints.
type Handler struct {
	svc Service
}

// NewRouter assembles the chi.Router with the health probes and the
// auction endpoints.
func NewRouter(svc Service, hh *health.Handler, logger *slog.Logger) chi.Router {
	h := &Handler{svc: svc}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	hh.Mount(r)

	r.Route("/api", func(r chi.Router) {
		r.Get("/snapshot", h.GetSnapshot)
		r.Get("/round", h.GetRound)
		r.Get("/settlements", h.ListSettlements)
		r.Route("/teams", func(r chi.Router) {
			r.Get("/", h.ListTeams)
			r.Get("/{teamID}/reserve", h.GetReserve)
			r.Get("/{teamID}/eligibility", h.GetEligibility)
		})
	})
	return r
}

// RoundView is the round in progress with the player on the block.
type RoundView struct {
	squad.Round
	Player *squad.Player `json:"player,omitempty"`
}

// GetSnapshot handles GET /api/snapshot.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshot()
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// GetRound handles GET /api/round.
func (h *Handler) GetRound(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshot()
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, RoundView{Round: snap.Round, Player: snap.CurrentPlayer()})
}

// ListTeams handles GET /api/teams, returning every team's reserve.
func (h *Handler) ListTeams(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshot()
	if err != nil {
		respondError(w, err)
		return
	}
	out := make([]auction.TeamReserve, 0, len(snap.Teams))
	for _, t := range snap.Teams {
		res, err := auction.ReserveOf(snap, t.ID)
		if err != nil {
			respondError(w, err)
			return
		}
		out = append(out, res)
	}
	respondJSON(w, http.StatusOK, out)
}

// GetReserve handles GET /api/teams/{teamID}/reserve.
func (h *Handler) GetReserve(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Reserve(r.Context(), chi.URLParam(r, "teamID"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// GetEligibility handles GET /api/teams/{teamID}/eligibility?amount=N.
func (h *Handler) GetEligibility(w http.ResponseWriter, r *http.Request) {
	amount, err := strconv.ParseInt(r.URL.Query().Get("amount"), 10, 64)
	if err != nil || amount <= 0 {
		respondJSON(w, http.StatusBadRequest, errorBody{Code: "invalid_amount", Message: "amount must be a positive integer"})
		return
	}
	v, err := h.svc.Eligibility(r.Context(), chi.URLParam(r, "teamID"), amount)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

// ListSettlements handles GET /api/settlements.
func (h *Handler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Settlements(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	if list == nil {
		list = []squad.Settlement{}
	}
	respondJSON(w, http.StatusOK, list)
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.DebugContext(r.Context(), "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
