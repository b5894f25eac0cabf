package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tally/internal/core"
	"tally/internal/cycle"
	"tally/internal/ledger"
	tallylog "tally/internal/log"
	"tally/internal/middleware/ratelimit"
	"tally/internal/services"
	"tally/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *storage.Repository) {
	t.Helper()
	repo := storage.NewRepository(storage.NewMemoryStore())
	accounts := []core.Account{
		{ID: "bank", Name: "Bank", Type: core.Bank, Balance: 10000, InitialBalance: 10000},
		{ID: "cash", Name: "Cash", Type: core.Cash, Balance: 500, InitialBalance: 500},
	}
	if err := repo.SaveAccounts(context.Background(), accounts); err != nil {
		t.Fatal(err)
	}
	svc := services.NewLedgerService(ledger.New(repo), repo, nil, cycle.NaturalMonth())
	srv := NewServer(":0", svc,
		WithLogger(tallylog.New(tallylog.Config{Output: &bytes.Buffer{}})),
		WithClock(func() time.Time { return time.Date(2024, 3, 18, 9, 0, 0, 0, time.UTC) }),
	)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, repo
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rr.Body.String(), err)
	}
	return v
}

func balanceOf(t *testing.T, srv *Server, id string) int64 {
	t.Helper()
	for _, a := range decode[[]core.Account](t, do(t, srv, http.MethodGet, "/accounts", "")) {
		if a.ID == id {
			return a.Balance
		}
	}
	t.Fatalf("account %s not found", id)
	return 0
}

func TestHealthAndReady(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rr := do(t, srv, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s missing request id header", path)
		}
	}
}

func TestTransactionLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(t, srv, http.MethodPost, "/transactions",
		`{"id":"t1","type":"expense","amount":1500,"accountId":"bank","date":"2024-03-05","category":"Food"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	res := decode[ledger.Result](t, rr)
	if len(res.Entries) != 1 || res.Entries[0].ResultingBalance != 8500 {
		t.Fatalf("unexpected result %+v", res)
	}

	rr = do(t, srv, http.MethodPut, "/transactions/t1",
		`{"transaction":{"type":"transfer","amount":1000,"accountId":"bank","targetAccountId":"cash","date":"2024-03-05"}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got := balanceOf(t, srv, "bank"); got != 9000 {
		t.Errorf("bank = %d, want 9000", got)
	}
	if got := balanceOf(t, srv, "cash"); got != 1500 {
		t.Errorf("cash = %d, want 1500", got)
	}

	rr = do(t, srv, http.MethodGet, "/balance-logs?account=cash", "")
	if logs := decode[[]core.BalanceLogEntry](t, rr); len(logs) != 1 || logs[0].Reason != ledger.ReasonTransferIn {
		t.Fatalf("unexpected cash logs %+v", logs)
	}

	rr = do(t, srv, http.MethodDelete, "/transactions/t1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status=%d body=%s", rr.Code, rr.Body.String())
	}
	if balanceOf(t, srv, "bank") != 10000 || balanceOf(t, srv, "cash") != 500 {
		t.Fatal("balances should be restored after delete")
	}

	rr = do(t, srv, http.MethodGet, "/audit", "")
	if report := decode[ledger.Report](t, rr); !report.Consistent {
		t.Fatalf("ledger should be consistent: %+v", report)
	}
}

func TestCreateAssignsID(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := do(t, srv, http.MethodPost, "/transactions",
		`{"type":"income","amount":100,"accountId":"cash","date":"2024-03-05","category":"Gift"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if res := decode[ledger.Result](t, rr); res.Transaction.ID == "" {
		t.Fatal("transaction id should be generated")
	}
}

func TestErrorMapping(t *testing.T) {
	srv, _ := newTestServer(t)
	seed := do(t, srv, http.MethodPost, "/transactions",
		`{"id":"t1","type":"expense","amount":100,"accountId":"bank","date":"2024-03-05"}`)
	if seed.Code != http.StatusCreated {
		t.Fatalf("seed status=%d", seed.Code)
	}

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		wantCode int
		wantType string
	}{
		{"invalid json", http.MethodPost, "/transactions", `{"id":`, 400, tallylog.ErrorTypeValidation},
		{"negative amount", http.MethodPost, "/transactions", `{"id":"t2","type":"expense","amount":-5,"accountId":"bank","date":"2024-03-05"}`, 400, tallylog.ErrorTypeValidation},
		{"unknown account", http.MethodPost, "/transactions", `{"id":"t2","type":"expense","amount":5,"accountId":"ghost","date":"2024-03-05"}`, 422, tallylog.ErrorTypeReference},
		{"same account transfer", http.MethodPost, "/transactions", `{"id":"t2","type":"transfer","amount":5,"accountId":"bank","targetAccountId":"bank","date":"2024-03-05"}`, 422, tallylog.ErrorTypeReference},
		{"duplicate", http.MethodPost, "/transactions", `{"id":"t1","type":"expense","amount":100,"accountId":"bank","date":"2024-03-05"}`, 409, tallylog.ErrorTypeConflict},
		{"update unknown", http.MethodPut, "/transactions/nope", `{"transaction":{"type":"expense","amount":5,"accountId":"bank","date":"2024-03-05"}}`, 404, tallylog.ErrorTypeNotFound},
		{"update stale previous", http.MethodPut, "/transactions/t1", `{"previous":{"id":"t1","type":"expense","amount":999,"accountId":"bank"},"transaction":{"type":"expense","amount":5,"accountId":"bank","date":"2024-03-05"}}`, 409, tallylog.ErrorTypeConflict},
		{"update id mismatch", http.MethodPut, "/transactions/t1", `{"transaction":{"id":"other","type":"expense","amount":5,"accountId":"bank","date":"2024-03-05"}}`, 400, tallylog.ErrorTypeValidation},
		{"delete unknown", http.MethodDelete, "/transactions/nope", "", 404, tallylog.ErrorTypeNotFound},
		{"delete stale body", http.MethodDelete, "/transactions/t1", `{"id":"t1","type":"expense","amount":7,"accountId":"bank"}`, 409, tallylog.ErrorTypeConflict},
		{"invalid cycle setting", http.MethodPut, "/cycle/setting", `{"type":"salary","startDay":40}`, 400, tallylog.ErrorTypeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, tt.method, tt.path, tt.body)
			if rr.Code != tt.wantCode {
				t.Fatalf("status=%d, want %d; body=%s", rr.Code, tt.wantCode, rr.Body.String())
			}
			if got := decode[errorResponse](t, rr); got.Type != tt.wantType {
				t.Errorf("type=%s, want %s", got.Type, tt.wantType)
			}
		})
	}

	if got := balanceOf(t, srv, "bank"); got != 9900 {
		t.Fatalf("rejected requests changed balances: bank=%d", got)
	}
}

func TestAuditAndRepair(t *testing.T) {
	srv, repo := newTestServer(t)
	ctx := context.Background()

	accounts, _ := repo.Accounts(ctx)
	accounts[1].Balance = 700
	if err := repo.SaveAccounts(ctx, accounts); err != nil {
		t.Fatal(err)
	}

	report := decode[ledger.Report](t, do(t, srv, http.MethodGet, "/audit", ""))
	if report.Consistent || len(report.Mismatches) != 1 || report.Mismatches[0].Diff != 200 {
		t.Fatalf("unexpected report %+v", report)
	}

	rr := do(t, srv, http.MethodPost, "/repair", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("repair status=%d", rr.Code)
	}
	if rep := decode[ledger.RepairReport](t, rr); len(rep.Repaired) != 1 {
		t.Fatalf("unexpected repair report %+v", rep)
	}
	if got := balanceOf(t, srv, "cash"); got != 500 {
		t.Fatalf("cash = %d after repair, want 500", got)
	}
}

func TestAuditAndRepairAreLogged(t *testing.T) {
	repo := storage.NewRepository(storage.NewMemoryStore())
	ctx := context.Background()
	if err := repo.SaveAccounts(ctx, []core.Account{
		{ID: "cash", Name: "Cash", Type: core.Cash, Balance: 700, InitialBalance: 500},
	}); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	svc := services.NewLedgerService(ledger.New(repo), repo, nil, cycle.NaturalMonth())
	srv := NewServer(":0", svc, WithLogger(tallylog.New(tallylog.Config{Output: &buf})))
	defer srv.Shutdown(context.Background())

	do(t, srv, http.MethodGet, "/audit", "")
	out := buf.String()
	for _, want := range []string{`msg="Audit found drift"`, "component=audit", "operation=audit", "mismatches=1", "request_id=req_"} {
		if !strings.Contains(out, want) {
			t.Errorf("audit log missing %q in %q", want, out)
		}
	}

	buf.Reset()
	do(t, srv, http.MethodPost, "/repair", "")
	out = buf.String()
	for _, want := range []string{`msg="Repair applied"`, "operation=repair", "mismatches=1"} {
		if !strings.Contains(out, want) {
			t.Errorf("repair log missing %q in %q", want, out)
		}
	}

	buf.Reset()
	tx := `{"id":"t1","type":"expense","amount":100,"accountId":"cash","date":"2024-03-05","category":"Food"}`
	do(t, srv, http.MethodPost, "/transactions", tx)
	if out := buf.String(); !strings.Contains(out, "balance_entries=1") {
		t.Errorf("create log missing entry count: %q", out)
	}
}

func TestCycleEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(t, srv, http.MethodGet, "/cycle?date=2024-02-10&type=salary&start_day=15", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	resp := decode[cycleResponse](t, rr)
	if resp.Window.Start != core.NewDate(2024, 1, 15) || resp.Window.End != core.NewDate(2024, 2, 14) {
		t.Fatalf("unexpected window %s", resp.Window)
	}
	if resp.Label != "Jan 15–Feb 14" || resp.Next.Start != core.NewDate(2024, 2, 15) {
		t.Errorf("unexpected label/next %q %s", resp.Label, resp.Next)
	}

	// default date comes from the server clock, default setting is natural
	resp = decode[cycleResponse](t, do(t, srv, http.MethodGet, "/cycle", ""))
	if resp.Window.Start != core.NewDate(2024, 3, 1) || resp.Window.End != core.NewDate(2024, 3, 31) {
		t.Fatalf("unexpected default window %s", resp.Window)
	}

	rr = do(t, srv, http.MethodPut, "/cycle/setting", `{"type":"custom","startMonth":9,"startDay":1,"endMonth":8,"endDay":31}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("put setting status=%d body=%s", rr.Code, rr.Body.String())
	}
	resp = decode[cycleResponse](t, do(t, srv, http.MethodGet, "/cycle?date=2024-03-01", ""))
	if resp.Window.Start != core.NewDate(2023, 9, 1) || resp.Window.End != core.NewDate(2024, 8, 31) {
		t.Fatalf("saved setting not used: %s", resp.Window)
	}

	if rr := do(t, srv, http.MethodGet, "/cycle?date=03/01/2024", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("bad date status=%d", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/cycle?type=salary&start_day=x", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("bad start_day status=%d", rr.Code)
	}
}

func TestBudgetProgressEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, body := range []string{
		`{"id":"t1","type":"expense","amount":1000,"accountId":"bank","date":"2024-03-02","category":"Food"}`,
		`{"id":"t2","type":"expense","amount":2000,"accountId":"bank","date":"2024-03-09","category":"Food"}`,
		`{"id":"t3","type":"expense","amount":4000,"accountId":"bank","date":"2024-02-09","category":"Food"}`,
	} {
		if rr := do(t, srv, http.MethodPost, "/transactions", body); rr.Code != http.StatusCreated {
			t.Fatalf("seed status=%d body=%s", rr.Code, rr.Body.String())
		}
	}

	rr := do(t, srv, http.MethodPost, "/budgets/progress",
		`{"budgets":[{"categoryId":"food","categoryName":"Food","targetAmount":9000,"period":"monthly","type":"expense"}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	resp := decode[progressResponse](t, rr)
	if len(resp.Snapshots) != 1 || resp.Snapshots[0].Actual != 3000 || resp.Snapshots[0].Progress != 33.3 {
		t.Fatalf("unexpected snapshots %+v", resp.Snapshots)
	}

	rr = do(t, srv, http.MethodPost, "/budgets/progress",
		`{"budgets":[{"categoryName":"Food","targetAmount":100,"period":"weekly","type":"expense"}]}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid period status=%d", rr.Code)
	}
}

func TestRateLimitAppliesToMutations(t *testing.T) {
	repo := storage.NewRepository(storage.NewMemoryStore())
	svc := services.NewLedgerService(ledger.New(repo), repo, nil, cycle.NaturalMonth())
	srv := NewServer(":0", svc,
		WithLogger(tallylog.New(tallylog.Config{Output: &bytes.Buffer{}})),
		WithRateLimit(ratelimitConfig(1)),
	)
	defer srv.Shutdown(context.Background())

	do(t, srv, http.MethodPost, "/repair", "")
	if rr := do(t, srv, http.MethodPost, "/repair", ""); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/accounts", ""); rr.Code != http.StatusOK {
		t.Fatalf("reads should not be limited, got %d", rr.Code)
	}
}

func ratelimitConfig(perMinute int) ratelimit.Config {
	return ratelimit.Config{RequestsPerMinute: perMinute}
}

func TestImportAccountsKeepsLedgerBalances(t *testing.T) {
	srv, _ := newTestServer(t)

	tx := `{"id":"t1","type":"expense","amount":1000,"accountId":"bank","date":"2024-03-05","category":"Food"}`
	if rr := do(t, srv, http.MethodPost, "/transactions", tx); rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}

	overwrite := `[{"id":"bank","name":"Bank","type":"bank","balance":99999,"initialBalance":10000}]`
	if rr := do(t, srv, http.MethodPut, "/accounts", overwrite); rr.Code != http.StatusConflict {
		t.Fatalf("overwriting a balance should conflict, got %d body=%s", rr.Code, rr.Body.String())
	}

	add := `[{"id":"bank","name":"Main bank","type":"bank","balance":9000,"initialBalance":10000},
		{"id":"wallet","name":"Wallet","type":"wallet","balance":300,"initialBalance":300}]`
	rr := do(t, srv, http.MethodPut, "/accounts", add)
	if rr.Code != http.StatusOK {
		t.Fatalf("import status=%d body=%s", rr.Code, rr.Body.String())
	}
	got := decode[importResponse](t, rr)
	if got.Added != 1 || got.Updated != 1 || len(got.Accounts) != 3 {
		t.Fatalf("unexpected import response %+v", got)
	}

	report := decode[ledger.Report](t, do(t, srv, http.MethodGet, "/audit", ""))
	if !report.Consistent {
		t.Fatalf("import introduced drift: %+v", report)
	}
}
