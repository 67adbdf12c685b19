package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListDisputes(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.callerWallet(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	var agreementID uint64
	if raw := r.URL.Query().Get("agreementId"); raw != "" {
		agreementID, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid agreement id"})
			return
		}
	}

	records, err := s.disputes.List(r.Context(), wallet, agreementID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	items := make([]disputeResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, toDisputeResponse(rec))
	}
	writeJSON(w, http.StatusOK, struct {
		Items []disputeResponse `json:"items"`
	}{Items: items})
}

func (s *Server) handleResolveDispute(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.callerWallet(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	var req struct {
		Note string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}

	rec, err := s.disputes.Resolve(r.Context(), wallet, chi.URLParam(r, "id"), req.Note)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toDisputeResponse(rec))
}
