// Package rest exposes the trading operations over HTTP. Errors travel in a
// JSON envelope of the form {"errMsg": "..."}.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"emissiontrade/internal/certs"
	"emissiontrade/internal/contract"
	"emissiontrade/internal/submit"
	"emissiontrade/pkg/domain"
)

// Submitter is the write path: it drives one proposal through ordering and
// commit.
type Submitter interface {
	Submit(ctx context.Context, prop submit.Proposal) ([]byte, error)
}

// Handler routes the trading API.
type Handler struct {
	client  Submitter
	querier submit.Querier
	certs   certs.Store
	newID   func() string
}

// NewHandler constructs the API handler. The certificate store is optional;
// without it the certificate endpoints return 404.
func NewHandler(client Submitter, querier submit.Querier, certStore certs.Store) *Handler {
	return &Handler{
		client:  client,
		querier: querier,
		certs:   certStore,
		newID:   uuid.NewString,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case r.Method == http.MethodPost && path == "/register":
		h.handleRegister(w, r)
	case r.Method == http.MethodPost && path == "/login":
		h.handleLogin(w, r)
	case path == "/corpApprovals":
		h.handleCorpApprovals(w, r)
	case r.Method == http.MethodPost && path == "/corpApprovals/sign":
		h.handleSignCorpApproval(w, r)
	case path == "/projects":
		h.handleProjects(w, r)
	case r.Method == http.MethodPost && path == "/projects/sign":
		h.handleSignProject(w, r)
	case path == "/transactions":
		h.handleTransactions(w, r)
	case r.Method == http.MethodPost && path == "/purchase":
		h.handlePurchase(w, r)
	case strings.HasPrefix(path, "/certificates/"):
		h.handleCertificates(w, r, strings.TrimPrefix(path, "/certificates/"))
	default:
		http.NotFound(w, r)
	}
}

// submit runs one write action and maps pipeline failures onto HTTP status
// codes. A timeout maps to 504 because the outcome is genuinely unknown.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request, txID string, action contract.Action, args ...string) ([]byte, bool) {
	payload, err := h.client.Submit(r.Context(), submit.Proposal{TxID: txID, Action: action, Args: args})
	if err == nil {
		return payload, true
	}
	var rejected submit.ProposalRejectedError
	var failed submit.CommitFailedError
	var timeout submit.CommitTimeoutError
	switch {
	case errors.As(err, &rejected):
		writeError(w, http.StatusBadRequest, rejected.Message)
	case errors.As(err, &failed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &timeout):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
	return nil, false
}

func (h *Handler) query(w http.ResponseWriter, r *http.Request, action contract.Action, args ...string) ([]byte, bool) {
	payload, err := h.querier.Query(r.Context(), action, args)
	if err == nil {
		return payload, true
	}
	var notFound domain.NotFoundError
	if errors.As(err, &notFound) {
		writeError(w, http.StatusBadRequest, err.Error())
	} else {
		writeError(w, http.StatusInternalServerError, err.Error())
	}
	return nil, false
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Username == "" || creds.Password == "" {
		writeError(w, http.StatusBadRequest, "parameter not found")
		return
	}
	if _, ok := h.submit(w, r, h.newID(), contract.ActionCreateUser, creds.Username, creds.Password); !ok {
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Username == "" || creds.Password == "" {
		writeError(w, http.StatusBadRequest, "parameter not found")
		return
	}
	payload, ok := h.query(w, r, contract.ActionGetUserInfo, creds.Username)
	if !ok {
		return
	}
	var user *domain.User
	if err := json.Unmarshal(payload, &user); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if user == nil {
		writeError(w, http.StatusBadRequest, "user not exists")
		return
	}
	if creds.Password != user.Password {
		writeError(w, http.StatusBadRequest, "password error")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleCorpApprovals(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleGetCorpApprovals(w, r)
	case http.MethodPost:
		h.handlePostCorpApproval(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleGetCorpApprovals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if id := q.Get("id"); id != "" {
		payload, ok := h.query(w, r, contract.ActionGetCorpApproval, id)
		if ok {
			writeRaw(w, http.StatusOK, payload)
		}
		return
	}
	if applicant := q.Get("applicant"); applicant != "" {
		payload, ok := h.query(w, r, contract.ActionGetUserCorpApprovals, applicant)
		if ok {
			writeRaw(w, http.StatusOK, payload)
		}
		return
	}
	statuses := approvalStatuses(q.Get("status"))
	filter, err := json.Marshal(statuses)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	payload, ok := h.query(w, r, contract.ActionGetCorpApprovals, string(filter))
	if ok {
		writeRaw(w, http.StatusOK, payload)
	}
}

func approvalStatuses(raw string) []domain.ApprovalStatus {
	if raw == "" {
		return []domain.ApprovalStatus{domain.ApprovalProcessing, domain.ApprovalAccepted, domain.ApprovalRejected}
	}
	var out []domain.ApprovalStatus
	for _, s := range strings.Split(raw, ",") {
		out = append(out, domain.ApprovalStatus(strings.TrimSpace(s)))
	}
	return out
}

func (h *Handler) handlePostCorpApproval(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Applicant   string `json:"applicant"`
		Name        string `json:"name"`
		Certificate string `json:"certificate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Applicant == "" || req.Name == "" || req.Certificate == "" {
		writeError(w, http.StatusBadRequest, "parameter not found")
		return
	}
	approval := domain.CorpApproval{
		ID:          h.newID(),
		Applicant:   req.Applicant,
		Name:        req.Name,
		Certificate: req.Certificate,
	}
	body, err := json.Marshal(approval)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	payload, ok := h.submit(w, r, h.newID(), contract.ActionPostCorpApproval, string(body))
	if !ok {
		return
	}
	writeRaw(w, http.StatusCreated, payload)
}

func (h *Handler) handleSignCorpApproval(w http.ResponseWriter, r *http.Request) {
	id, status, ok := decodeSignRequest(w, r)
	if !ok {
		return
	}
	if _, ok := h.submit(w, r, h.newID(), contract.ActionSignCorpApproval, id, status); !ok {
		return
	}
	w.WriteHeader(http.StatusOK)
}

func decodeSignRequest(w http.ResponseWriter, r *http.Request) (id, status string, ok bool) {
	var req struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" || req.Status == "" {
		writeError(w, http.StatusBadRequest, "parameter not found")
		return "", "", false
	}
	if req.Status != string(domain.ApprovalAccepted) && req.Status != string(domain.ApprovalRejected) {
		writeError(w, http.StatusBadRequest, "invalid status")
		return "", "", false
	}
	return req.ID, req.Status, true
}

func (h *Handler) handleProjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleGetProjects(w, r)
	case http.MethodPost:
		h.handlePostProject(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleGetProjects keeps the historical query routing: id wins, then
// applicant+type selects a user's accepted projects, then status+type selects
// the open market, then status filters globally, and no parameters at all
// returns everything.
func (h *Handler) handleGetProjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, status, applicant, typ := q.Get("id"), q.Get("status"), q.Get("applicant"), q.Get("type")

	var payload []byte
	var ok bool
	switch {
	case id != "":
		payload, ok = h.query(w, r, contract.ActionGetProject, id)
	case applicant != "" && typ != "":
		payload, ok = h.query(w, r, contract.ActionGetUserAcceptedProjects, applicant, typ)
	case status != "" && typ != "":
		payload, ok = h.query(w, r, contract.ActionGetOnSaleProjects)
	default:
		filter, err := json.Marshal(projectStatuses(status))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		payload, ok = h.query(w, r, contract.ActionGetProjects, string(filter))
	}
	if ok {
		writeRaw(w, http.StatusOK, payload)
	}
}

func projectStatuses(raw string) []domain.ProjectStatus {
	if raw == "" {
		return []domain.ProjectStatus{
			domain.ProjectProcessing, domain.ProjectAccepted, domain.ProjectRejected,
			domain.ProjectTrading, domain.ProjectDone,
		}
	}
	var out []domain.ProjectStatus
	for _, s := range strings.Split(raw, ",") {
		out = append(out, domain.ProjectStatus(strings.TrimSpace(s)))
	}
	return out
}

func (h *Handler) handlePostProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CorpApprovalID         string `json:"corp_approval_id"`
		Applicant              string `json:"applicant"`
		Name                   string `json:"name"`
		Type                   string `json:"type"`
		InitialEmissionPermits int64  `json:"initial_emission_permits"`
		TargetEmissionPermits  int64  `json:"target_emission_permits"`
		RemainEmissionPermits  int64  `json:"remain_emission_permits"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.CorpApprovalID == "" || req.Applicant == "" || req.Name == "" || req.Type == "" ||
		req.InitialEmissionPermits <= 0 || req.TargetEmissionPermits <= 0 || req.RemainEmissionPermits <= 0 {
		writeError(w, http.StatusBadRequest, "parameter not found")
		return
	}
	project := domain.Project{
		ID:                     h.newID(),
		CorpApprovalID:         req.CorpApprovalID,
		Applicant:              req.Applicant,
		Name:                   req.Name,
		Type:                   domain.ProjectType(req.Type),
		InitialEmissionPermits: req.InitialEmissionPermits,
		TargetEmissionPermits:  req.TargetEmissionPermits,
		RemainEmissionPermits:  req.RemainEmissionPermits,
	}
	body, err := json.Marshal(project)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	payload, ok := h.submit(w, r, h.newID(), contract.ActionPostProject, string(body))
	if !ok {
		return
	}
	writeRaw(w, http.StatusCreated, payload)
}

func (h *Handler) handleSignProject(w http.ResponseWriter, r *http.Request) {
	id, status, ok := decodeSignRequest(w, r)
	if !ok {
		return
	}
	if _, ok := h.submit(w, r, h.newID(), contract.ActionSignProject, id, status); !ok {
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleGetTransaction(w, r)
	case http.MethodPost:
		h.handleConfirm(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "parameter not found")
		return
	}
	payload, err := h.querier.Query(r.Context(), contract.ActionGetTransaction, []string{id})
	if err != nil {
		var notFound domain.NotFoundError
		if errors.As(err, &notFound) {
			// Historical behavior: a missing transaction is a 200 with an
			// error envelope, not a 4xx.
			writeError(w, http.StatusOK, "transaction not exists")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeRaw(w, http.StatusOK, payload)
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	id, status, ok := decodeSignRequest(w, r)
	if !ok {
		return
	}
	if _, ok := h.submit(w, r, h.newID(), contract.ActionConfirm, id, status); !ok {
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BuyProjectID    string `json:"buy_project_id"`
		SellProjectID   string `json:"sell_project_id"`
		EmissionPermits int64  `json:"transaction_emission_permits"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.BuyProjectID == "" || req.SellProjectID == "" || req.EmissionPermits <= 0 {
		writeError(w, http.StatusBadRequest, "parameter not found")
		return
	}
	txID := h.newID()
	payload, ok := h.submit(w, r, txID, contract.ActionPurchase,
		req.BuyProjectID, req.SellProjectID, strconv.FormatInt(req.EmissionPermits, 10), txID)
	if !ok {
		return
	}
	writeRaw(w, http.StatusOK, payload)
}

func (h *Handler) handleCertificates(w http.ResponseWriter, r *http.Request, key string) {
	if h.certs == nil || key == "" {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodPost:
		info, err := h.certs.Put(r.Context(), key, r.Body, r.Header.Get("Content-Type"))
		if errors.Is(err, certs.ErrExists) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, info)
	case http.MethodGet:
		info, rc, err := h.certs.Get(r.Context(), key)
		if errors.Is(err, certs.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		defer rc.Close()
		if info.ContentType != "" {
			w.Header().Set("Content-Type", info.ContentType)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = io.Copy(w, rc)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeRaw(w http.ResponseWriter, status int, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"errMsg": message})
}
