package handler

import (
	"net/http"

	"github.com/tradeforge/robotengine/internal/domain"
)

// Status describes the running robot for the status endpoint.
type Status struct {
	RobotID   string `json:"robotId"`
	Mode      string `json:"mode"`
	Strategy  string `json:"strategy"`
	Exchange  string `json:"exchange"`
	Asset     string `json:"asset"`
	Currency  string `json:"currency"`
	Timeframe int    `json:"timeframe"`
	Candles   int    `json:"candlesProcessed"`
	HasAlerts bool   `json:"hasAlerts"`
}

// RobotSource provides read-only snapshots of the running robot. The driver
// goroutine owns the robot; implementations must hand out copies safe to read
// while the driver keeps running.
type RobotSource interface {
	Status() Status
	State() domain.RobotState
	Alerts() []domain.SignalEvent
	Trades() []domain.SignalEvent
}

// RobotHandler serves robot state snapshots for operators.
type RobotHandler struct {
	source RobotSource
}

// NewRobotHandler creates a RobotHandler backed by the given source.
func NewRobotHandler(source RobotSource) *RobotHandler {
	return &RobotHandler{source: source}
}

// GetStatus responds with the robot's identity and run counters.
// GET /api/status
func (h *RobotHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.source.Status())
}

// ListPositions responds with the current position-set snapshot.
// GET /api/positions
func (h *RobotHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	state := h.source.State()
	if state.Positions == nil {
		state.Positions = []domain.PositionState{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"positionLastNum": state.PositionLastNum,
		"positions":       state.Positions,
	})
}

// ListAlerts responds with the pending order intents.
// GET /api/alerts
func (h *RobotHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := h.source.Alerts()
	if alerts == nil {
		alerts = []domain.SignalEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

// ListTrades responds with the fills recorded since the last check phase.
// GET /api/trades
func (h *RobotHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	trades := h.source.Trades()
	if trades == nil {
		trades = []domain.SignalEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}
