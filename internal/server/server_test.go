package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tradeforge/robotengine/internal/domain"
	"github.com/tradeforge/robotengine/internal/server/handler"
)

type stubSource struct {
	status handler.Status
	state  domain.RobotState
}

func (s *stubSource) Status() handler.Status        { return s.status }
func (s *stubSource) State() domain.RobotState      { return s.state }
func (s *stubSource) Alerts() []domain.SignalEvent  { return nil }
func (s *stubSource) Trades() []domain.SignalEvent  { return nil }

func newTestServer(apiKey string) *Server {
	source := &stubSource{
		status: handler.Status{RobotID: "robot-1", Mode: "serve", Strategy: "t2TrendFriend"},
		state: domain.RobotState{
			PositionLastNum: 1,
			Positions:       []domain.PositionState{{Code: "p_1", Status: "open"}},
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(Config{Addr: ":0", APIKey: apiKey}, source, prometheus.NewRegistry(), logger)
}

func get(t *testing.T, srv *Server, path, apiKey string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_Routes(t *testing.T) {
	srv := newTestServer("")

	rec := get(t, srv, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("/api/health status = %d, want 200", rec.Code)
	}

	rec = get(t, srv, "/api/status", "")
	var status handler.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.RobotID != "robot-1" || status.Strategy != "t2TrendFriend" {
		t.Errorf("status = %+v", status)
	}

	rec = get(t, srv, "/api/positions", "")
	var positions struct {
		PositionLastNum int                    `json:"positionLastNum"`
		Positions       []domain.PositionState `json:"positions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &positions); err != nil {
		t.Fatalf("decode positions: %v", err)
	}
	if len(positions.Positions) != 1 || positions.Positions[0].Code != "p_1" {
		t.Errorf("positions = %+v", positions)
	}

	rec = get(t, srv, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Errorf("/metrics status = %d, want 200", rec.Code)
	}

	rec = get(t, srv, "/api/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want 404", rec.Code)
	}
}

func TestServer_APIKeyAuth(t *testing.T) {
	srv := newTestServer("secret")

	if rec := get(t, srv, "/api/status", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("missing key status = %d, want 401", rec.Code)
	}
	if rec := get(t, srv, "/api/status", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong key status = %d, want 401", rec.Code)
	}
	if rec := get(t, srv, "/api/status", "secret"); rec.Code != http.StatusOK {
		t.Errorf("valid key status = %d, want 200", rec.Code)
	}
}
