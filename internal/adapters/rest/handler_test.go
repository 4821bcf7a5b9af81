package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"emissiontrade/internal/certs"
	"emissiontrade/internal/contract"
	"emissiontrade/internal/ledger"
	"emissiontrade/internal/submit"
	"emissiontrade/pkg/domain"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	store := ledger.NewStore()
	registry := submit.NewEventRegistry()
	endorser := submit.NewLocalEndorser(store, contract.NewDispatcher())
	orderer := submit.NewLocalOrderer(store, registry)
	client := submit.NewClient(endorser, orderer, registry)

	h := NewHandler(client, endorser, certs.NewMemory())
	var n int
	h.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return h
}

func do(t *testing.T, h *Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errMsg(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		ErrMsg string `json:"errMsg"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error envelope from %q: %v", rec.Body.String(), err)
	}
	return envelope.ErrMsg
}

func TestRegisterAndLogin(t *testing.T) {
	h := newTestHandler(t)

	rec := do(t, h, http.MethodPost, "/register", map[string]string{"username": "alice", "password": "pw"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status %d: %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodPost, "/register", map[string]string{"username": "alice", "password": "pw"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate register status %d", rec.Code)
	}
	if errMsg(t, rec) == "" {
		t.Fatal("expected error envelope")
	}

	rec = do(t, h, http.MethodPost, "/login", map[string]string{"username": "alice", "password": "pw"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status %d: %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodPost, "/login", map[string]string{"username": "alice", "password": "nope"})
	if rec.Code != http.StatusBadRequest || errMsg(t, rec) != "password error" {
		t.Fatalf("wrong password: %d %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodPost, "/login", map[string]string{"username": "ghost", "password": "pw"})
	if rec.Code != http.StatusBadRequest || errMsg(t, rec) != "user not exists" {
		t.Fatalf("unknown user: %d %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodPost, "/register", map[string]string{"username": "bob"})
	if rec.Code != http.StatusBadRequest || errMsg(t, rec) != "parameter not found" {
		t.Fatalf("missing password: %d %s", rec.Code, rec.Body)
	}
}

func TestCorpApprovalLifecycle(t *testing.T) {
	h := newTestHandler(t)

	rec := do(t, h, http.MethodPost, "/corpApprovals", map[string]string{
		"applicant": "alice", "name": "Plant", "certificate": "cert-ref",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("post approval status %d: %s", rec.Code, rec.Body)
	}
	var approval domain.CorpApproval
	if err := json.Unmarshal(rec.Body.Bytes(), &approval); err != nil {
		t.Fatalf("decode approval: %v", err)
	}
	if approval.ID == "" || approval.Status != domain.ApprovalProcessing {
		t.Fatalf("approval %+v", approval)
	}

	rec = do(t, h, http.MethodPost, "/corpApprovals/sign", map[string]string{"id": approval.ID, "status": "accepted"})
	if rec.Code != http.StatusOK {
		t.Fatalf("sign status %d: %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodPost, "/corpApprovals/sign", map[string]string{"id": approval.ID, "status": "maybe"})
	if rec.Code != http.StatusBadRequest || errMsg(t, rec) != "invalid status" {
		t.Fatalf("invalid status: %d %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodGet, "/corpApprovals?id="+approval.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get by id status %d: %s", rec.Code, rec.Body)
	}
	var got domain.CorpApproval
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != domain.ApprovalAccepted {
		t.Fatalf("approval after sign %+v", got)
	}

	rec = do(t, h, http.MethodGet, "/corpApprovals?applicant=alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get by applicant status %d", rec.Code)
	}
	var list []domain.CorpApproval
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0].ID != approval.ID {
		t.Fatalf("applicant list %+v", list)
	}

	rec = do(t, h, http.MethodGet, "/corpApprovals?status=accepted", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get by status %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("status list %+v", list)
	}
}

// postProject drives the full approval flow and returns an accepted project.
func postProject(t *testing.T, h *Handler, applicant, typ string, permits int64) domain.Project {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/corpApprovals", map[string]string{
		"applicant": applicant, "name": "corp-" + applicant, "certificate": "c",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("post approval: %d %s", rec.Code, rec.Body)
	}
	var approval domain.CorpApproval
	if err := json.Unmarshal(rec.Body.Bytes(), &approval); err != nil {
		t.Fatalf("decode approval: %v", err)
	}
	rec = do(t, h, http.MethodPost, "/corpApprovals/sign", map[string]string{"id": approval.ID, "status": "accepted"})
	if rec.Code != http.StatusOK {
		t.Fatalf("sign approval: %d %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodPost, "/projects", map[string]any{
		"corp_approval_id": approval.ID, "applicant": applicant,
		"name": "proj-" + applicant, "type": typ,
		"initial_emission_permits": permits, "target_emission_permits": permits,
		"remain_emission_permits": permits,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("post project: %d %s", rec.Code, rec.Body)
	}
	var project domain.Project
	if err := json.Unmarshal(rec.Body.Bytes(), &project); err != nil {
		t.Fatalf("decode project: %v", err)
	}
	rec = do(t, h, http.MethodPost, "/projects/sign", map[string]string{"id": project.ID, "status": "accepted"})
	if rec.Code != http.StatusOK {
		t.Fatalf("sign project: %d %s", rec.Code, rec.Body)
	}
	return project
}

func TestProjectQueryRouting(t *testing.T) {
	h := newTestHandler(t)
	sell := postProject(t, h, "seller", "sell", 30)
	postProject(t, h, "buyer", "buy", 50)

	rec := do(t, h, http.MethodGet, "/projects?id="+sell.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("by id: %d %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodGet, "/projects?applicant=seller&type=sell", nil)
	var list []domain.Project
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 || list[0].ID != sell.ID {
		t.Fatalf("applicant routing %+v", list)
	}

	// status plus type selects the open market: accepted sell projects only.
	rec = do(t, h, http.MethodGet, "/projects?status=accepted&type=sell", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 || list[0].ID != sell.ID {
		t.Fatalf("on sale routing %+v", list)
	}

	rec = do(t, h, http.MethodGet, "/projects?status=accepted", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("status routing %+v", list)
	}

	rec = do(t, h, http.MethodGet, "/projects", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("all projects %+v", list)
	}
}

func TestPurchaseAndConfirm(t *testing.T) {
	h := newTestHandler(t)
	sell := postProject(t, h, "seller", "sell", 30)
	buy := postProject(t, h, "buyer", "buy", 50)

	rec := do(t, h, http.MethodPost, "/purchase", map[string]any{
		"buy_project_id": buy.ID, "sell_project_id": sell.ID,
		"transaction_emission_permits": 20,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("purchase: %d %s", rec.Code, rec.Body)
	}
	var tx domain.Transaction
	if err := json.Unmarshal(rec.Body.Bytes(), &tx); err != nil {
		t.Fatalf("decode transaction: %v", err)
	}
	if tx.Status != domain.TransactionProcessing || tx.EmissionPermits != 20 {
		t.Fatalf("transaction %+v", tx)
	}

	// Over-ask is refused at endorsement.
	rec = do(t, h, http.MethodPost, "/purchase", map[string]any{
		"buy_project_id": buy.ID, "sell_project_id": sell.ID,
		"transaction_emission_permits": 500,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("oversized purchase: %d %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodPost, "/transactions", map[string]string{"id": tx.ID, "status": "accepted"})
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm: %d %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodGet, "/transactions?id="+tx.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get transaction: %d %s", rec.Code, rec.Body)
	}
	var detail domain.TransactionDetail
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if detail.Status != domain.TransactionAccepted {
		t.Fatalf("detail %+v", detail)
	}
	if detail.BuyerProject.RemainEmissionPermits != 30 || detail.SellerProject.RemainEmissionPermits != 10 {
		t.Fatalf("settled permits %+v", detail)
	}
}

func TestGetMissingTransactionIsSoftError(t *testing.T) {
	h := newTestHandler(t)
	rec := do(t, h, http.MethodGet, "/transactions?id=nope", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if errMsg(t, rec) != "transaction not exists" {
		t.Fatalf("body %s", rec.Body)
	}
}

func TestCertificateUploadDownload(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/certificates/A1.pdf", strings.NewReader("certificate body"))
	req.Header.Set("Content-Type", "application/pdf")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", rec.Code, rec.Body)
	}
	var info certs.Info
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if info.Key != "A1.pdf" || info.Digest == "" {
		t.Fatalf("info %+v", info)
	}

	// Certificates are immutable.
	req = httptest.NewRequest(http.MethodPost, "/certificates/A1.pdf", strings.NewReader("other"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("re-upload: %d", rec.Code)
	}

	rec2 := do(t, h, http.MethodGet, "/certificates/A1.pdf", nil)
	if rec2.Code != http.StatusOK || rec2.Body.String() != "certificate body" {
		t.Fatalf("download: %d %q", rec2.Code, rec2.Body.String())
	}
	if ct := rec2.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("content type %q", ct)
	}

	rec2 = do(t, h, http.MethodGet, "/certificates/missing.pdf", nil)
	if rec2.Code != http.StatusNotFound {
		t.Fatalf("missing: %d", rec2.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	h := newTestHandler(t)
	rec := do(t, h, http.MethodGet, "/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d", rec.Code)
	}
}
