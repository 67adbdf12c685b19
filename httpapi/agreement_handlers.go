package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"escrowflow/agreement"
	"escrowflow/money"
)

type createAgreementRequest struct {
	Company         string `json:"company"`
	Freelancer      string `json:"freelancer"`
	Arbitrator      string `json:"arbitrator"`
	Token           string `json:"token"`
	ProjectName     string `json:"projectName"`
	Description     string `json:"description"`
	TotalBudget     string `json:"totalBudget"`
	PaymentType     string `json:"paymentType"`
	DurationMonths  uint32 `json:"durationMonths"`
	TotalMilestones uint32 `json:"totalMilestones"`
	// Deadlines is the comma-separated DD-MM-YYYY list the dashboard form
	// produces.
	Deadlines string `json:"deadlines"`
}

func (s *Server) handleCreateAgreement(w http.ResponseWriter, r *http.Request) {
	var req createAgreementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}

	budget, err := money.Parse(req.TotalBudget)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Fields: map[string]string{"total_budget": err.Error()}})
		return
	}
	payType, err := agreement.ParsePaymentTypeLabel(req.PaymentType)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Fields: map[string]string{"payment_type": err.Error()}})
		return
	}

	id, err := s.agreements.Create(r.Context(), agreement.CreateParams{
		Company:         req.Company,
		Freelancer:      req.Freelancer,
		Arbitrator:      req.Arbitrator,
		Token:           req.Token,
		ProjectName:     req.ProjectName,
		Description:     req.Description,
		TotalBudget:     budget,
		PaymentType:     payType,
		DurationMonths:  req.DurationMonths,
		TotalMilestones: req.TotalMilestones,
		Deadlines:       agreement.SplitDeadlines(req.Deadlines),
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]uint64{"id": id})
}

func (s *Server) handleListAgreements(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.callerWallet(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))

	records, total, err := s.mirror.ListByParticipant(r.Context(), wallet, page, pageSize)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	items := make([]agreementResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, toAgreementResponse(rec))
	}
	writeJSON(w, http.StatusOK, struct {
		Items []agreementResponse `json:"items"`
		Total int                 `json:"total"`
	}{Items: items, Total: total})
}

func (s *Server) handleGetAgreement(w http.ResponseWriter, r *http.Request) {
	id, ok := agreementID(w, r)
	if !ok {
		return
	}

	rec, derived, err := s.agreements.Get(r.Context(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Agreement agreementResponse `json:"agreement"`
		Derived   derivedResponse   `json:"derived"`
	}{Agreement: toAgreementResponse(rec), Derived: toDerivedResponse(derived)})
}

type verbRequest struct {
	Reason string `json:"reason"`
}

// verbHandler wraps the simple lifecycle verbs: parse the id, optionally
// decode a reason, issue the verb, return the refreshed agreement.
func (s *Server) verbHandler(verb func(ctx context.Context, id uint64, req verbRequest) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := agreementID(w, r)
		if !ok {
			return
		}

		var req verbRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
				return
			}
		}

		if err := verb(r.Context(), id, req); err != nil {
			writeError(w, s.logger, err)
			return
		}

		rec, derived, err := s.agreements.Get(r.Context(), id)
		if err != nil {
			writeError(w, s.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Agreement agreementResponse `json:"agreement"`
			Derived   derivedResponse   `json:"derived"`
		}{Agreement: toAgreementResponse(rec), Derived: toDerivedResponse(derived)})
	}
}

// handleRaiseDispute issues the chain verb and opens the off-chain case in
// one request.
func (s *Server) handleRaiseDispute(w http.ResponseWriter, r *http.Request) {
	id, ok := agreementID(w, r)
	if !ok {
		return
	}

	var req verbRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}

	if err := s.agreements.RaiseDispute(r.Context(), id, req.Reason); err != nil {
		writeError(w, s.logger, err)
		return
	}

	wallet, err := s.callerWallet(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	rec, err := s.disputes.Open(r.Context(), wallet, id, req.Reason)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDisputeResponse(rec))
}

type submitProofRequest struct {
	// File is the raw document, base64 encoded.
	File     string `json:"file"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`

	Encrypt          bool              `json:"encrypt"`
	Recipients       map[string]string `json:"recipients,omitempty"`
	PrimaryRecipient string            `json:"primaryRecipient,omitempty"`
}

func (s *Server) handleSubmitProof(w http.ResponseWriter, r *http.Request) {
	id, ok := agreementID(w, r)
	if !ok {
		return
	}

	var req submitProofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}

	file, err := base64.StdEncoding.DecodeString(req.File)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "file is not valid base64"})
		return
	}
	if len(file) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "empty file"})
		return
	}

	uri, err := s.agreements.SubmitProof(r.Context(), id, agreement.ProofSubmission{
		File:             file,
		Filename:         req.Filename,
		MimeType:         req.MimeType,
		Encrypt:          req.Encrypt,
		Recipients:       req.Recipients,
		PrimaryRecipient: req.PrimaryRecipient,
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"proofUri": uri})
}

func (s *Server) handleListProofs(w http.ResponseWriter, r *http.Request) {
	id, ok := agreementID(w, r)
	if !ok {
		return
	}

	proofs, err := s.mirror.ListProofs(r.Context(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	items := make([]proofResponse, 0, len(proofs))
	for _, p := range proofs {
		items = append(items, proofResponse{
			ID:        p.ID,
			CID:       p.CID,
			Recipient: p.Recipient,
			Filename:  p.Filename,
			Encrypted: p.Encrypted,
			CreatedAt: p.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, struct {
		Items []proofResponse `json:"items"`
	}{Items: items})
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	id, ok := agreementID(w, r)
	if !ok {
		return
	}

	events, err := s.mirror.ListTimeline(r.Context(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	items := make([]timelineResponse, 0, len(events))
	for _, ev := range events {
		items = append(items, timelineResponse{
			Seq:       ev.Seq,
			Type:      ev.Type,
			Payload:   ev.Payload,
			CreatedAt: ev.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, struct {
		Items []timelineResponse `json:"items"`
	}{Items: items})
}

func agreementID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid agreement id"})
		return 0, false
	}
	return id, true
}
