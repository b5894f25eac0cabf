package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"tally/internal/budget"
	"tally/internal/core"
	"tally/internal/cycle"
	"tally/internal/ledger"
	tallylog "tally/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// handleReady checks that the store answers
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{"store": "ok"}
	status, httpStatus := "ready", http.StatusOK
	if err := s.svc.Ping(ctx); err != nil {
		checks["store"] = fmt.Sprintf("failed: %v", err)
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	}
	if s.processor != nil {
		checks["audit_processor"] = "stopped"
		if s.processor.IsRunning() {
			checks["audit_processor"] = "running"
		}
	}
	writeJSON(w, httpStatus, map[string]any{"status": status, "checks": checks})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"http":      s.tracer.GetMetrics(),
		"rateLimit": s.limiter.GetMetrics(),
	}
	if s.processor != nil {
		body["auditRuns"] = s.processor.Runs()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.svc.Accounts(r.Context())
	if err != nil {
		writeError(w, r, "list_accounts", err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

type importResponse struct {
	ledger.ImportResult
	Accounts []core.Account `json:"accounts"`
}

func (s *Server) handleImportAccounts(w http.ResponseWriter, r *http.Request) {
	var accounts []core.Account
	if err := decodeJSON(w, r, &accounts); err != nil {
		writeError(w, r, "import_accounts", err)
		return
	}
	res, err := s.svc.ImportAccounts(r.Context(), accounts)
	if err != nil {
		writeError(w, r, "import_accounts", err)
		return
	}
	current, err := s.svc.Accounts(r.Context())
	if err != nil {
		writeError(w, r, "import_accounts", err)
		return
	}
	writeJSON(w, http.StatusOK, importResponse{ImportResult: res, Accounts: current})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.svc.Transactions(r.Context())
	if err != nil {
		writeError(w, r, "list_transactions", err)
		return
	}
	if account := strings.TrimSpace(r.URL.Query().Get("account")); account != "" {
		filtered := txs[:0]
		for _, tx := range txs {
			if tx.AccountID == account || tx.TargetAccountID == account {
				filtered = append(filtered, tx)
			}
		}
		txs = filtered
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var tx core.Transaction
	if err := decodeJSON(w, r, &tx); err != nil {
		writeError(w, r, tallylog.OpCreate, err)
		return
	}
	if strings.TrimSpace(tx.ID) == "" {
		tx.ID = uuid.NewString()
	}

	res, err := s.svc.CreateTransaction(r.Context(), tx)
	if err != nil {
		writeError(w, r, tallylog.OpCreate, err)
		return
	}
	s.logResult(r, tallylog.OpCreate, res)
	writeJSON(w, http.StatusCreated, res)
}

// updateRequest carries the new version and, optionally, the version the
// client believes is logged. Without it the logged version is used.
type updateRequest struct {
	Previous    *core.Transaction `json:"previous,omitempty"`
	Transaction core.Transaction  `json:"transaction"`
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req updateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, tallylog.OpUpdate, err)
		return
	}
	if req.Transaction.ID == "" {
		req.Transaction.ID = id
	}
	if req.Transaction.ID != id {
		writeError(w, r, tallylog.OpUpdate, &core.ValidationError{Field: "id", Reason: "does not match the URL"})
		return
	}

	var (
		res ledger.Result
		err error
	)
	if req.Previous != nil {
		res, err = s.svc.UpdateTransaction(r.Context(), *req.Previous, req.Transaction)
	} else {
		res, err = s.svc.ReplaceTransaction(r.Context(), req.Transaction)
	}
	if err != nil {
		writeError(w, r, tallylog.OpUpdate, err)
		return
	}
	s.logResult(r, tallylog.OpUpdate, res)
	writeJSON(w, http.StatusOK, res)
}

// handleDeleteTransaction deletes by ID, or checks the body against the
// logged version first when one is sent.
func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var (
		res ledger.Result
		err error
	)
	if hasBody(r) {
		var tx core.Transaction
		if err := decodeJSON(w, r, &tx); err != nil {
			writeError(w, r, tallylog.OpDelete, err)
			return
		}
		if tx.ID != id {
			writeError(w, r, tallylog.OpDelete, &core.ValidationError{Field: "id", Reason: "does not match the URL"})
			return
		}
		res, err = s.svc.DeleteTransaction(r.Context(), tx)
	} else {
		res, err = s.svc.DeleteTransactionByID(r.Context(), id)
	}
	if err != nil {
		writeError(w, r, tallylog.OpDelete, err)
		return
	}
	s.logResult(r, tallylog.OpDelete, res)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleBalanceLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.svc.BalanceLogs(r.Context(), strings.TrimSpace(r.URL.Query().Get("account")))
	if err != nil {
		writeError(w, r, "balance_logs", err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("cached") == "true" && s.processor != nil {
		if report, ok := s.processor.LastReport(); ok {
			writeJSON(w, http.StatusOK, report)
			return
		}
	}

	report, err := s.svc.Audit(r.Context())
	if err != nil {
		writeError(w, r, tallylog.OpAudit, err)
		return
	}
	if !report.Consistent {
		tallylog.FromContext(r.Context()).WithComponent(tallylog.ComponentAudit).WarnContext(r.Context(), "Audit found drift",
			tallylog.FieldOperation, tallylog.OpAudit,
			tallylog.FieldMismatches, len(report.Mismatches))
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRepair(w http.ResponseWriter, r *http.Request) {
	logger := tallylog.FromContext(r.Context()).WithComponent(tallylog.ComponentAudit)
	report, err := s.svc.Repair(r.Context())
	if err != nil {
		// Nothing was written; report which accounts are still drifting.
		fields := tallylog.NewFields().WithOperation(tallylog.OpRepair).WithError(err)
		fields[tallylog.FieldMismatches] = len(report.Failed)
		logger.ErrorContext(r.Context(), "Repair failed", fields.ToSlice()...)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  "repair failed",
			"type":   tallylog.ErrorTypeInternal,
			"report": report,
		})
		return
	}
	if len(report.Repaired) > 0 {
		logger.InfoContext(r.Context(), "Repair applied",
			tallylog.FieldOperation, tallylog.OpRepair,
			tallylog.FieldMismatches, len(report.Repaired))
	}
	writeJSON(w, http.StatusOK, report)
}

type cycleResponse struct {
	Setting     cycle.Setting `json:"setting"`
	Description string        `json:"description"`
	Window      cycle.Window  `json:"window"`
	Label       string        `json:"label"`
	Previous    cycle.Window  `json:"previous"`
	Next        cycle.Window  `json:"next"`
}

// handleCycle resolves the cycle containing ?date= under the setting given
// in the query, or the active setting when none is given.
func (s *Server) handleCycle(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	ref, err := ParseRefDate(query, core.DateOf(s.now()))
	if err != nil {
		writeError(w, r, "cycle", err)
		return
	}

	setting, ok, err := ParseCycleSetting(query)
	if err != nil {
		writeError(w, r, "cycle", err)
		return
	}
	if !ok {
		if setting, err = s.svc.CycleSetting(r.Context()); err != nil {
			writeError(w, r, "cycle", err)
			return
		}
	}

	resp, err := describeCycle(setting, ref)
	if err != nil {
		writeError(w, r, "cycle", &core.ValidationError{Field: "cycle", Reason: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func describeCycle(setting cycle.Setting, ref core.Date) (cycleResponse, error) {
	window, err := cycle.Resolve(setting, ref)
	if err != nil {
		return cycleResponse{}, err
	}
	prev, err := cycle.Previous(setting, window)
	if err != nil {
		return cycleResponse{}, err
	}
	next, err := cycle.Next(setting, window)
	if err != nil {
		return cycleResponse{}, err
	}
	return cycleResponse{
		Setting:     setting,
		Description: setting.Describe(),
		Window:      window,
		Label:       cycle.Format(window),
		Previous:    prev,
		Next:        next,
	}, nil
}

func (s *Server) handleGetCycleSetting(w http.ResponseWriter, r *http.Request) {
	setting, err := s.svc.CycleSetting(r.Context())
	if err != nil {
		writeError(w, r, "cycle_setting", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"setting": setting, "description": setting.Describe()})
}

func (s *Server) handlePutCycleSetting(w http.ResponseWriter, r *http.Request) {
	var setting cycle.Setting
	if err := decodeJSON(w, r, &setting); err != nil {
		writeError(w, r, "cycle_setting", err)
		return
	}
	if err := s.svc.SaveCycleSetting(r.Context(), setting); err != nil {
		writeError(w, r, "cycle_setting", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"setting": setting, "description": setting.Describe()})
}

type progressRequest struct {
	Date    string              `json:"date,omitempty"`
	Budgets []budget.Definition `json:"budgets"`
}

type progressResponse struct {
	Snapshots []budget.Snapshot `json:"snapshots"`
	Summary   budget.Summary    `json:"summary"`
}

func (s *Server) handleBudgetProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "budget_progress", err)
		return
	}
	ref := core.DateOf(s.now())
	if req.Date != "" {
		d, err := core.ParseDate(req.Date)
		if err != nil {
			writeError(w, r, "budget_progress", &core.ValidationError{Field: "date", Reason: err.Error()})
			return
		}
		ref = d
	}

	snapshots, summary, err := s.svc.BudgetProgress(r.Context(), req.Budgets, ref)
	if err != nil {
		writeError(w, r, "budget_progress", err)
		return
	}
	writeJSON(w, http.StatusOK, progressResponse{Snapshots: snapshots, Summary: summary})
}

func (s *Server) logResult(r *http.Request, op string, res ledger.Result) {
	tallylog.FromContext(r.Context()).WithComponent(tallylog.ComponentLedger).InfoContext(r.Context(), "Transaction operation applied",
		tallylog.NewFields().
			WithOperation(op).
			WithTransaction(res.Transaction.ID, res.Transaction.Amount).
			WithEntries(len(res.Entries)).
			ToSlice()...)
}
