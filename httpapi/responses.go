package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"escrowflow/agreement"
	"escrowflow/auth"
	"escrowflow/dispute"
	"escrowflow/fee"
	"escrowflow/ledger"
	"escrowflow/money"
)

var errNoWallet = errors.New("httpapi: no wallet linked")

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

type feeQuoteResponse struct {
	Deposit string  `json:"deposit"`
	Fee     string  `json:"fee"`
	Total   *string `json:"total,omitempty"`
	Pending bool    `json:"pending"`
}

type userResponse struct {
	ID                  string  `json:"id"`
	Email               string  `json:"email"`
	FullName            string  `json:"fullName"`
	Role                string  `json:"role"`
	WalletAddress       *string `json:"walletAddress,omitempty"`
	EncryptionPublicKey *string `json:"encryptionPublicKey,omitempty"`
	ProfileCID          *string `json:"profileCid,omitempty"`
}

func toUserResponse(u *auth.User) userResponse {
	return userResponse{
		ID:                  u.ID,
		Email:               u.Email,
		FullName:            u.FullName,
		Role:                string(u.Role),
		WalletAddress:       u.WalletAddress,
		EncryptionPublicKey: u.EncryptionPublicKey,
		ProfileCID:          u.ProfileCID,
	}
}

type agreementResponse struct {
	ID               uint64   `json:"id"`
	Company          string   `json:"company"`
	Freelancer       string   `json:"freelancer"`
	Arbitrator       string   `json:"arbitrator"`
	Token            string   `json:"token"`
	ProjectName      string   `json:"projectName"`
	Description      string   `json:"description,omitempty"`
	Status           string   `json:"status"`
	PaymentType      string   `json:"paymentType"`
	TotalBudget      string   `json:"totalBudget"`
	AmountReleased   string   `json:"amountReleased"`
	CurrentProofURI  string   `json:"currentProofUri,omitempty"`
	CurrentMilestone uint32   `json:"currentMilestone"`
	TotalMilestones  uint32   `json:"totalMilestones"`
	Deadlines        []string `json:"milestoneDeadlines,omitempty"`
}

type derivedResponse struct {
	StatusLabel       string  `json:"statusLabel"`
	EscrowAmount      string  `json:"escrowAmount"`
	NextPayment       string  `json:"nextPayment"`
	MilestoneProgress float64 `json:"milestoneProgress"`
	MonthlyClaimable  bool    `json:"monthlyClaimable"`
	DisputeAllowed    bool    `json:"disputeAllowed"`
}

func toAgreementResponse(rec agreement.Record) agreementResponse {
	deadlines := make([]string, 0, len(rec.MilestoneDeadlines))
	for _, d := range rec.MilestoneDeadlines {
		deadlines = append(deadlines, d.Format(time.RFC3339))
	}
	return agreementResponse{
		ID:               rec.ID,
		Company:          rec.Company,
		Freelancer:       rec.Freelancer,
		Arbitrator:       rec.Arbitrator,
		Token:            rec.Token,
		ProjectName:      rec.ProjectName,
		Description:      rec.Description,
		Status:           rec.Status.String(),
		PaymentType:      rec.PaymentType.String(),
		TotalBudget:      rec.TotalBudget.String(),
		AmountReleased:   rec.AmountReleased.String(),
		CurrentProofURI:  rec.CurrentProofURI,
		CurrentMilestone: rec.CurrentMilestone,
		TotalMilestones:  rec.TotalMilestones,
		Deadlines:        deadlines,
	}
}

func toDerivedResponse(d agreement.Derived) derivedResponse {
	return derivedResponse{
		StatusLabel:       d.StatusLabel,
		EscrowAmount:      d.EscrowAmount.String(),
		NextPayment:       d.NextPayment.String(),
		MilestoneProgress: d.MilestoneProgress,
		MonthlyClaimable:  d.MonthlyClaimable,
		DisputeAllowed:    d.DisputeAllowed,
	}
}

type proofResponse struct {
	ID        string `json:"id"`
	CID       string `json:"cid"`
	Recipient string `json:"recipient,omitempty"`
	Filename  string `json:"filename,omitempty"`
	Encrypted bool   `json:"encrypted"`
	CreatedAt string `json:"createdAt"`
}

type timelineResponse struct {
	Seq       int             `json:"seq"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt string          `json:"createdAt"`
}

type disputeResponse struct {
	ID             string  `json:"id"`
	AgreementID    uint64  `json:"agreementId"`
	RaisedBy       string  `json:"raisedBy"`
	Reason         string  `json:"reason"`
	Status         string  `json:"status"`
	ResolutionNote *string `json:"resolutionNote,omitempty"`
	CreatedAt      string  `json:"createdAt"`
	ResolvedAt     *string `json:"resolvedAt,omitempty"`
}

func toDisputeResponse(rec dispute.Record) disputeResponse {
	resp := disputeResponse{
		ID:             rec.ID,
		AgreementID:    rec.AgreementID,
		RaisedBy:       rec.RaisedBy,
		Reason:         rec.Reason,
		Status:         string(rec.Status),
		ResolutionNote: rec.ResolutionNote,
		CreatedAt:      rec.CreatedAt.Format(time.RFC3339),
	}
	if rec.ResolvedAt != nil {
		s := rec.ResolvedAt.Format(time.RFC3339)
		resp.ResolvedAt = &s
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps domain errors onto HTTP statuses. Unknown errors become
// opaque 500s; the detail goes to the log, not the client.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var fields agreement.FieldErrors
	if errors.As(err, &fields) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Fields: fields})
		return
	}

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
	case errors.Is(err, auth.ErrDuplicateEmail),
		errors.Is(err, auth.ErrDuplicateWallet):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrInvalidWallet),
		errors.Is(err, auth.ErrNoWallet),
		errors.Is(err, errNoWallet),
		errors.Is(err, money.ErrMalformedAmount),
		errors.Is(err, fee.ErrNegativeInput),
		errors.Is(err, agreement.ErrPastDeadline),
		errors.Is(err, dispute.ErrBadStatus):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, agreement.ErrInvalidTransition),
		errors.Is(err, agreement.ErrClaimNotEligible):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, dispute.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, agreement.ErrNotMirrored),
		errors.Is(err, dispute.ErrNotFound),
		errors.Is(err, auth.ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	default:
		if logger != nil {
			logger.Error("request failed", slog.String("error", err.Error()))
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
