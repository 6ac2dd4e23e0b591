package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"

	"batchline/internal/config"
	"batchline/internal/db"
	"batchline/internal/migrate"
	"batchline/internal/planner"
)

type testServer struct {
	URL    string
	Engine planner.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := planner.New(conn, config.Default(), zap.NewNop())
	eng.Now = func() time.Time { return time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC) }
	handler, err := New(Config{Engine: eng, BasePath: "/v0"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: eng,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(testSrv.close)
	return testSrv
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func seedReactor(t *testing.T, srv *testServer, id, capacity string) {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/reactors", map[string]any{
		"id":          id,
		"capacity_kg": capacity,
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create reactor: %d %s", res.StatusCode, string(data))
	}
}

func seedOrder(t *testing.T, srv *testServer, id, qty, deadline string) {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/orders", map[string]any{
		"id":           id,
		"article_code": "ART-1",
		"quantity_kg":  qty,
		"deadline":     deadline,
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create order: %d %s", res.StatusCode, string(data))
	}
}

func TestPlanRunEndToEnd(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	seedReactor(t, srv, "r1", "2000")
	seedOrder(t, srv, "big", "5000", "2025-03-01")

	runRes, runBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/plan/runs", map[string]any{})
	if runRes.StatusCode != http.StatusOK {
		t.Fatalf("plan run: %d %s", runRes.StatusCode, string(runBody))
	}
	var report PlanRunResponse
	if err := json.Unmarshal(runBody, &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if report.PlannedCount != 3 || report.SplitCount != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}

	listRes, listBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/orders?status=planned", nil)
	if listRes.StatusCode != http.StatusOK {
		t.Fatalf("list planned: %d %s", listRes.StatusCode, string(listBody))
	}
	var planned []OrderResponse
	if err := json.Unmarshal(listBody, &planned); err != nil {
		t.Fatalf("unmarshal planned: %v", err)
	}
	if len(planned) != 3 {
		t.Fatalf("expected 3 planned rows, got %d", len(planned))
	}
	// The source order was replaced.
	getRes, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/orders/big", nil)
	if getRes.StatusCode != http.StatusNotFound {
		t.Fatalf("source order should be gone, got %d", getRes.StatusCode)
	}
}

func TestPlanConfirmConflict(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	seedReactor(t, srv, "r1", "2000")
	seedOrder(t, srv, "o1", "500", "2025-03-01")
	seedOrder(t, srv, "o2", "500", "2025-03-05")

	runRes, runBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/plan/runs", map[string]any{})
	if runRes.StatusCode != http.StatusOK {
		t.Fatalf("plan run: %d %s", runRes.StatusCode, string(runBody))
	}
	var report PlanRunResponse
	if err := json.Unmarshal(runBody, &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if len(report.Assignments) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(report.Assignments))
	}
	first, second := report.Assignments[0], report.Assignments[1]

	// Move the second assignment onto the first one's slot.
	confRes, confBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/plan/confirm", map[string]any{
		"assignments": []map[string]any{{
			"order_id":   second.OrderID,
			"plan_date":  first.PlanDate,
			"reactor_id": first.ReactorID,
			"shift":      first.Shift,
		}},
	})
	if confRes.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", confRes.StatusCode, string(confBody))
	}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(confBody, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "slot_conflict" {
		t.Fatalf("expected slot_conflict, got %q", envelope.Error.Code)
	}
	if envelope.Error.Details["collisions"] == nil {
		t.Fatalf("expected collision details: %s", string(confBody))
	}

	// Confirming the run's own slots succeeds.
	okRes, okBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/plan/confirm", map[string]any{
		"assignments": []map[string]any{
			{"order_id": first.OrderID, "plan_date": first.PlanDate, "reactor_id": first.ReactorID, "shift": first.Shift},
			{"order_id": second.OrderID, "plan_date": second.PlanDate, "reactor_id": second.ReactorID, "shift": second.Shift},
		},
	})
	if okRes.StatusCode != http.StatusOK {
		t.Fatalf("confirm: %d %s", okRes.StatusCode, string(okBody))
	}
}

func TestOrderValidation(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v0/orders", map[string]any{
		"article_code": "ART-1",
		"quantity_kg":  "-5",
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative quantity, got %d %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/orders", map[string]any{
		"quantity_kg": "100",
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing article_code, got %d %s", res.StatusCode, string(body))
	}
}

func TestStatusAndHealth(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	seedReactor(t, srv, "r1", "2000")
	seedOrder(t, srv, "o1", "500", "2025-03-01")

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/status", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status: %d %s", res.StatusCode, string(body))
	}
	var status StatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if status.OrderCounts["pending"] != 1 || status.ActiveReactors != 1 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestHolidayLifecycle(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v0/holidays", map[string]any{
		"day":         "2025-12-25",
		"description": "plant closed",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create holiday: %d %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/holidays", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list holidays: %d %s", res.StatusCode, string(body))
	}
	var days []HolidayResponse
	if err := json.Unmarshal(body, &days); err != nil {
		t.Fatalf("unmarshal holidays: %v", err)
	}
	if len(days) != 1 || days[0].Day != "2025-12-25" {
		t.Fatalf("unexpected holidays: %+v", days)
	}
	res, body = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/holidays/2025-12-25", nil)
	if res.StatusCode != http.StatusNoContent && res.StatusCode != http.StatusOK {
		t.Fatalf("delete holiday: %d %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/holidays/2025-12-25", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(body))
	}
}
