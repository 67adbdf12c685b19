package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"escrowflow/agreement"
	"escrowflow/auth"
	"escrowflow/dispute"
	"escrowflow/fee"
	"escrowflow/ledger"
	"escrowflow/money"
)

type stubAgreements struct {
	record  agreement.Record
	derived agreement.Derived
	getErr  error

	createID  uint64
	createErr error

	verbErr error

	proofURI string
	proofErr error
}

func (s *stubAgreements) Create(_ context.Context, _ agreement.CreateParams) (uint64, error) {
	return s.createID, s.createErr
}

func (s *stubAgreements) Get(_ context.Context, _ uint64) (agreement.Record, agreement.Derived, error) {
	return s.record, s.derived, s.getErr
}

func (s *stubAgreements) Deposit(_ context.Context, _ uint64) error      { return s.verbErr }
func (s *stubAgreements) Approve(_ context.Context, _ uint64) error      { return s.verbErr }
func (s *stubAgreements) Claim(_ context.Context, _ uint64) error        { return s.verbErr }
func (s *stubAgreements) Cancel(_ context.Context, _ uint64) error       { return s.verbErr }
func (s *stubAgreements) Reject(_ context.Context, _ uint64, _ string) error {
	return s.verbErr
}
func (s *stubAgreements) RaiseDispute(_ context.Context, _ uint64, _ string) error {
	return s.verbErr
}

func (s *stubAgreements) SubmitProof(_ context.Context, _ uint64, _ agreement.ProofSubmission) (string, error) {
	return s.proofURI, s.proofErr
}

type stubMirror struct {
	records []agreement.Record
	total   int
	proofs  []agreement.ProofRecord
	events  []agreement.TimelineEvent
	err     error
}

func (s *stubMirror) ListByParticipant(_ context.Context, _ string, _, _ int) ([]agreement.Record, int, error) {
	return s.records, s.total, s.err
}

func (s *stubMirror) ListProofs(_ context.Context, _ uint64) ([]agreement.ProofRecord, error) {
	return s.proofs, s.err
}

func (s *stubMirror) ListTimeline(_ context.Context, _ uint64) ([]agreement.TimelineEvent, error) {
	return s.events, s.err
}

type stubAccounts struct {
	user      *auth.User
	userErr   error
	login     auth.LoginResult
	loginErr  error
	verifyErr error
}

func (s *stubAccounts) Register(_ context.Context, _ auth.RegisterRequest) (*auth.User, error) {
	return s.user, s.userErr
}

func (s *stubAccounts) Login(_ context.Context, _ auth.LoginRequest) (auth.LoginResult, error) {
	return s.login, s.loginErr
}

func (s *stubAccounts) GetUserByID(_ context.Context, _ string) (*auth.User, error) {
	return s.user, s.userErr
}

func (s *stubAccounts) LinkWallet(_ context.Context, _, _ string) (*auth.User, error) {
	return s.user, s.userErr
}

func (s *stubAccounts) RegisterEncryptionKey(_ context.Context, _, _ string) (*auth.User, error) {
	return s.user, s.userErr
}

func (s *stubAccounts) PublishProfile(_ context.Context, _, _ string) (*auth.User, error) {
	return s.user, s.userErr
}

func (s *stubAccounts) VerifyToken(_ string) (string, auth.Role, error) {
	if s.verifyErr != nil {
		return "", "", s.verifyErr
	}
	return "user-1", auth.RoleCompany, nil
}

type stubDisputes struct {
	records    []dispute.Record
	listErr    error
	openRec    dispute.Record
	openErr    error
	resolveRec dispute.Record
	resolveErr error
}

func (s *stubDisputes) List(_ context.Context, _ string, _ uint64) ([]dispute.Record, error) {
	return s.records, s.listErr
}

func (s *stubDisputes) Open(_ context.Context, _ string, _ uint64, _ string) (dispute.Record, error) {
	return s.openRec, s.openErr
}

func (s *stubDisputes) Resolve(_ context.Context, _, _, _ string) (dispute.Record, error) {
	return s.resolveRec, s.resolveErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func walletUser() *auth.User {
	addr := "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	return &auth.User{ID: "user-1", Email: "a@example.com", Role: auth.RoleCompany, WalletAddress: &addr}
}

func newTestServer(agreements *stubAgreements, mirror *stubMirror, accounts *stubAccounts, disputes *stubDisputes, params FeeParams) *Server {
	if agreements == nil {
		agreements = &stubAgreements{}
	}
	if mirror == nil {
		mirror = &stubMirror{}
	}
	if accounts == nil {
		accounts = &stubAccounts{user: walletUser()}
	}
	if disputes == nil {
		disputes = &stubDisputes{}
	}
	return NewServer(testLogger(), agreements, mirror, accounts, disputes, func() FeeParams { return params })
}

func doRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer test-token")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestRequireAuth_MissingToken(t *testing.T) {
	srv := newTestServer(nil, nil, nil, nil, FeeParams{})

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleFeeQuote(t *testing.T) {
	min := money.FromUnits(1, 0)
	max := money.FromUnits(50, 0)
	srv := newTestServer(nil, nil, nil, nil, FeeParams{
		Bps:    100,
		Bounds: fee.Bounds{Min: &min, Max: &max},
	})

	rec := doRequest(t, srv, http.MethodGet, "/api/fee/quote?amount=1000", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	var resp feeQuoteResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Fee != "10" || resp.Pending || resp.Total == nil || *resp.Total != "1010" {
		t.Fatalf("unexpected quote: %+v", resp)
	}
}

func TestHandleFeeQuote_PendingBounds(t *testing.T) {
	srv := newTestServer(nil, nil, nil, nil, FeeParams{Bps: 100})

	rec := doRequest(t, srv, http.MethodGet, "/api/fee/quote?amount=1000", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp feeQuoteResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Pending || resp.Total != nil {
		t.Fatalf("expected pending quote without total: %+v", resp)
	}
}

func TestHandleFeeQuote_BadAmount(t *testing.T) {
	srv := newTestServer(nil, nil, nil, nil, FeeParams{Bps: 100})

	rec := doRequest(t, srv, http.MethodGet, "/api/fee/quote?amount=1.1234567", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleGetAgreement(t *testing.T) {
	agreements := &stubAgreements{
		record: agreement.Record{
			ID:          7,
			Status:      agreement.StatusFunded,
			PaymentType: agreement.PayOneTime,
			ProjectName: "Site build",
			TotalBudget: money.FromUnits(1000, 0),
		},
		derived: agreement.Derived{StatusLabel: "funded", EscrowAmount: money.FromUnits(1000, 0)},
	}
	srv := newTestServer(agreements, nil, nil, nil, FeeParams{})

	rec := doRequest(t, srv, http.MethodGet, "/api/agreements/7", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	var resp struct {
		Agreement agreementResponse `json:"agreement"`
		Derived   derivedResponse   `json:"derived"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Agreement.ID != 7 || resp.Agreement.Status != "funded" || resp.Derived.EscrowAmount != "1000" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestHandleGetAgreement_NotFound(t *testing.T) {
	srv := newTestServer(&stubAgreements{getErr: ledger.ErrNotFound}, nil, nil, nil, FeeParams{})

	rec := doRequest(t, srv, http.MethodGet, "/api/agreements/99", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleGetAgreement_BadID(t *testing.T) {
	srv := newTestServer(nil, nil, nil, nil, FeeParams{})

	rec := doRequest(t, srv, http.MethodGet, "/api/agreements/abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleCreateAgreement_FieldErrors(t *testing.T) {
	srv := newTestServer(&stubAgreements{
		createErr: agreement.FieldErrors{"company": "must be a valid address"},
	}, nil, nil, nil, FeeParams{})

	body := `{"company":"bad","totalBudget":"1000","paymentType":"one_time"}`
	rec := doRequest(t, srv, http.MethodPost, "/api/agreements", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body)
	}

	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Fields["company"] == "" {
		t.Fatalf("expected field error for company, got %+v", resp)
	}
}

func TestHandleCreateAgreement_UnknownPaymentType(t *testing.T) {
	srv := newTestServer(nil, nil, nil, nil, FeeParams{})

	body := `{"company":"0xaa","totalBudget":"1000","paymentType":"hourly"}`
	rec := doRequest(t, srv, http.MethodPost, "/api/agreements", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestVerbHandler_InvalidTransition(t *testing.T) {
	srv := newTestServer(&stubAgreements{verbErr: agreement.ErrInvalidTransition}, nil, nil, nil, FeeParams{})

	rec := doRequest(t, srv, http.MethodPost, "/api/agreements/7/deposit", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body)
	}
}

func TestHandleSubmitProof(t *testing.T) {
	srv := newTestServer(&stubAgreements{proofURI: "bafy-doc"}, nil, nil, nil, FeeParams{})

	// "cHJvb2Y=" is base64 for "proof".
	body := `{"file":"cHJvb2Y=","filename":"report.pdf","mimeType":"application/pdf"}`
	rec := doRequest(t, srv, http.MethodPost, "/api/agreements/7/proofs", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["proofUri"] != "bafy-doc" {
		t.Fatalf("unexpected payload: %v", resp)
	}
}

func TestHandleSubmitProof_BadBase64(t *testing.T) {
	srv := newTestServer(nil, nil, nil, nil, FeeParams{})

	rec := doRequest(t, srv, http.MethodPost, "/api/agreements/7/proofs", `{"file":"!!!"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleListAgreements_NoWallet(t *testing.T) {
	accounts := &stubAccounts{user: &auth.User{ID: "user-1", Role: auth.RoleCompany}}
	srv := newTestServer(nil, nil, accounts, nil, FeeParams{})

	rec := doRequest(t, srv, http.MethodGet, "/api/agreements", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unlinked wallet, got %d", rec.Code)
	}
}

func TestHandleListAgreements(t *testing.T) {
	mirror := &stubMirror{
		records: []agreement.Record{{ID: 3, ProjectName: "One"}, {ID: 2, ProjectName: "Two"}},
		total:   2,
	}
	srv := newTestServer(nil, mirror, nil, nil, FeeParams{})

	rec := doRequest(t, srv, http.MethodGet, "/api/agreements?page=1&pageSize=20", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	var resp struct {
		Items []agreementResponse `json:"items"`
		Total int                 `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Items) != 2 || resp.Total != 2 || resp.Items[0].ID != 3 {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestHandleResolveDispute_BadStatus(t *testing.T) {
	srv := newTestServer(nil, nil, nil, &stubDisputes{resolveErr: dispute.ErrBadStatus}, FeeParams{})

	rec := doRequest(t, srv, http.MethodPatch, "/api/disputes/d1", `{"note":"done"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleResolveDispute_Forbidden(t *testing.T) {
	srv := newTestServer(nil, nil, nil, &stubDisputes{resolveErr: dispute.ErrForbidden}, FeeParams{})

	rec := doRequest(t, srv, http.MethodPatch, "/api/disputes/d1", `{"note":"done"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandleLogin(t *testing.T) {
	accounts := &stubAccounts{
		user:  walletUser(),
		login: auth.LoginResult{Token: "jwt-token", User: *walletUser()},
	}
	srv := newTestServer(nil, nil, accounts, nil, FeeParams{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"a@example.com","password":"x"}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Token != "jwt-token" {
		t.Fatalf("token = %q", resp.Token)
	}
}
