package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jensholdgaard/squad-auction/internal/auction"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondError maps auction errors to status codes. Unknown errors are
// reported as internal without leaking their text.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auction.ErrNotRecovered):
		respondJSON(w, http.StatusServiceUnavailable, errorBody{Code: "not_leader", Message: "this replica does not hold the auction state"})
	case errors.Is(err, auction.ErrUnknownTeam), errors.Is(err, auction.ErrUnknownPlayer):
		respondJSON(w, http.StatusNotFound, errorBody{Code: "not_found", Message: err.Error()})
	case errors.Is(err, auction.ErrNoRound):
		respondJSON(w, http.StatusConflict, errorBody{Code: "no_round", Message: err.Error()})
	default:
		respondJSON(w, http.StatusInternalServerError, errorBody{Code: "internal_error", Message: "internal server error"})
	}
}
