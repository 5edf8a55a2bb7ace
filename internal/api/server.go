// Package api exposes the operator HTTP surface: manual batch runs,
// proposal review and approval, and the fund ledger.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"PensionSentinel/internal/approval"
	"PensionSentinel/internal/batch"
	"PensionSentinel/internal/model"
	"PensionSentinel/internal/scheduler"
	"PensionSentinel/internal/store"
)

const (
	defaultTxLimit = 50
	maxTxLimit     = 500
)

type BatchRunner interface {
	RunNow(ctx context.Context) (*batch.Summary, error)
	Status() scheduler.Status
}

type Approver interface {
	Approve(ctx context.Context, id, approver string) (*approval.Result, error)
	Reject(ctx context.Context, id, approver string) (*model.Proposal, error)
}

type Store interface {
	GetProposal(ctx context.Context, id string) (*model.Proposal, error)
	ListProposals(ctx context.Context, f store.ProposalFilter) ([]model.Proposal, error)
	ListTransactions(ctx context.Context, fundID string, limit, offset int) ([]model.LedgerTransaction, int, error)
}

// Server routes operator requests.
type Server struct {
	runner   BatchRunner
	approver Approver
	store    Store
	metrics  http.Handler
	log      logrus.FieldLogger
	router   *mux.Router
}

// NewServer builds the router. metrics may be nil.
func NewServer(runner BatchRunner, approver Approver, st Store, metrics http.Handler, log logrus.FieldLogger) *Server {
	s := &Server{
		runner:   runner,
		approver: approver,
		store:    st,
		metrics:  metrics,
		log:      log.WithField("component", "api"),
		router:   mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.logRequests)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	admin := r.PathPrefix("/api/admin").Subrouter()
	admin.HandleFunc("/jobs/investment-batch", s.handleRunBatch).Methods(http.MethodGet, http.MethodPost)
	admin.HandleFunc("/investment-proposals", s.handleListProposals).Methods(http.MethodGet)
	admin.HandleFunc("/investment-proposals/{id}", s.handleGetProposal).Methods(http.MethodGet)
	admin.HandleFunc("/investment-proposals/{id}/approve", s.handleApprove).Methods(http.MethodPost)
	admin.HandleFunc("/investment-proposals/{id}/reject", s.handleReject).Methods(http.MethodPost)

	r.HandleFunc("/api/funds/{id}/transactions", s.handleListTransactions).Methods(http.MethodGet)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("api server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		s.log.Info("api server stopped")
		return nil
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		}).Debug("request served")
	})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	entry := s.log.WithError(err).WithField("path", r.URL.Path)
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Info("request rejected")
	}
	writeError(w, status, err.Error())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, map[string]any{
		"status":    "ok",
		"scheduler": s.runner.Status(),
	})
}

func (s *Server) handleRunBatch(w http.ResponseWriter, r *http.Request) {
	sum, err := s.runner.RunNow(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, sum)
}

func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.ProposalFilter{FundID: q.Get("fundId")}
	if v := q.Get("status"); v != "" {
		st, ok := parseStatus(v)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid status "+strconv.Quote(v))
			return
		}
		f.Status = st
	}
	if v := q.Get("riskLevel"); v != "" {
		risk, err := model.ParseRiskLevel(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.RiskLevel = risk
	}

	ps, err := s.store.ListProposals(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if ps == nil {
		ps = []model.Proposal{}
	}
	writeSuccess(w, ps)
}

func parseStatus(v string) (model.ProposalStatus, bool) {
	for _, st := range []model.ProposalStatus{model.StatusPending, model.StatusApproved, model.StatusRejected} {
		if strings.EqualFold(v, string(st)) {
			return st, true
		}
	}
	return "", false
}

func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetProposal(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, p)
}

type decisionRequest struct {
	ApprovedBy string `json:"approvedBy"`
}

func decodeDecision(r *http.Request) (string, bool) {
	var req decisionRequest
	if err := readJSON(r, &req); err != nil {
		return "", false
	}
	req.ApprovedBy = strings.TrimSpace(req.ApprovedBy)
	return req.ApprovedBy, req.ApprovedBy != ""
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	approver, ok := decodeDecision(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "approvedBy is required")
		return
	}
	res, err := s.approver.Approve(r.Context(), mux.Vars(r)["id"], approver)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, res)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	approver, ok := decodeDecision(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "approvedBy is required")
		return
	}
	p, err := s.approver.Reject(r.Context(), mux.Vars(r)["id"], approver)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, p)
}

type transactionPage struct {
	Transactions []model.LedgerTransaction `json:"transactions"`
	Total        int                       `json:"total"`
	Limit        int                       `json:"limit"`
	Offset       int                       `json:"offset"`
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultTxLimit)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if limit > maxTxLimit {
		limit = maxTxLimit
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	txs, total, err := s.store.ListTransactions(r.Context(), mux.Vars(r)["id"], limit, offset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if txs == nil {
		txs = []model.LedgerTransaction{}
	}
	writeSuccess(w, transactionPage{Transactions: txs, Total: total, Limit: limit, Offset: offset})
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
