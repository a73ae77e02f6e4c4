package server

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/marketd/internal/marketplace"
)

// StatusResponse is the response body for GET /api/status.
type StatusResponse struct {
	State   marketplace.State    `json:"state"`
	Running bool                 `json:"running"`
	Session *marketplace.Session `json:"session"`
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{
		State:   s.orc.State(),
		Running: s.orc.Running(),
		Session: s.orc.Session(),
	})
}

// TriggerResponse is the response body for POST /api/marketplace/trigger.
type TriggerResponse struct {
	RequestID string `json:"requestId"`
	Status    string `json:"status"`
}

// handleTrigger admits a new session. It rejects with 409 while one is
// active; the caller must reset first. On success it waits just long
// enough for admission so the response can carry the request ID.
func (s *Server) handleTrigger(c echo.Context) error {
	var req marketplace.Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.PaperURL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "paperUrl field is required")
	}
	if req.Budget <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "budget must be positive")
	}

	if s.orc.Running() {
		return echo.NewHTTPError(http.StatusConflict, "a session is already active, reset first")
	}

	var prevID string
	if sess := s.orc.Session(); sess != nil {
		prevID = sess.RequestID
	}

	// The run outlives this request; the daemon tears it down on
	// shutdown via Reset.
	errCh := make(chan error, 1)
	go func() {
		err := s.orc.Run(context.Background(), req)
		if err != nil && !errors.Is(err, marketplace.ErrSessionActive) && !errors.Is(err, context.Canceled) {
			s.logger.Error(context.Background(), "session run failed", zap.Error(err))
		}
		errCh <- err
	}()

	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(2 * time.Second)

	for {
		select {
		case err := <-errCh:
			if errors.Is(err, marketplace.ErrSessionActive) {
				return echo.NewHTTPError(http.StatusConflict, "a session is already active, reset first")
			}
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "session failed: "+err.Error())
			}
			// The whole run finished before we responded; report it
			// as started all the same.
			return s.respondStarted(c)
		case <-ticker.C:
			if sess := s.orc.Session(); sess != nil && sess.RequestID != prevID {
				return s.respondStarted(c)
			}
		case <-deadline:
			return echo.NewHTTPError(http.StatusInternalServerError, "session did not start in time")
		}
	}
}

func (s *Server) respondStarted(c echo.Context) error {
	if s.metrics != nil {
		s.metrics.sessionsTotal.Inc()
	}

	var id string
	if sess := s.orc.Session(); sess != nil {
		id = sess.RequestID
	}
	return c.JSON(http.StatusAccepted, TriggerResponse{RequestID: id, Status: "started"})
}

// ResetResponse is the response body for POST /api/marketplace/reset.
type ResetResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleReset(c echo.Context) error {
	s.orc.Reset()
	return c.JSON(http.StatusOK, ResetResponse{Status: "reset"})
}

// DecisionResponse is the response body for the approval endpoints.
type DecisionResponse struct {
	Status string `json:"status"`
}

// handleBidApproval resolves a pending bid-approval wait. Submissions with
// no pending wait are rejected, not queued.
func (s *Server) handleBidApproval(c echo.Context) error {
	var approval marketplace.BidApproval
	if err := c.Bind(&approval); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if approval.AnalystAccount == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "analystAccountId field is required")
	}
	if approval.ArchitectAccount == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "architectAccountId field is required")
	}

	if !s.orc.Bridge().SubmitBidApproval(approval) {
		return echo.NewHTTPError(http.StatusConflict, "no pending bid approval")
	}
	return c.JSON(http.StatusOK, DecisionResponse{Status: "accepted"})
}

// handleReview resolves a pending review wait.
func (s *Server) handleReview(c echo.Context) error {
	var review marketplace.ClientReview
	if err := c.Bind(&review); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if !s.orc.Bridge().SubmitReview(review) {
		return echo.NewHTTPError(http.StatusConflict, "no pending review")
	}
	return c.JSON(http.StatusOK, DecisionResponse{Status: "accepted"})
}

// BalanceEntry is one account's settled balance.
type BalanceEntry struct {
	Name    string `json:"name"`
	Account string `json:"account"`
	Balance int64  `json:"balance"`
}

// BalancesResponse is the response body for GET /api/monitor/balances.
type BalancesResponse struct {
	Asset    string         `json:"asset"`
	Balances []BalanceEntry `json:"balances"`
}

func (s *Server) handleBalances(c echo.Context) error {
	ctx := c.Request().Context()

	out := make([]BalanceEntry, 0, len(s.config.Accounts))
	for name, account := range s.config.Accounts {
		bal, err := s.ledger.BalanceOf(ctx, account, s.config.Asset)
		if err != nil {
			s.logger.Warn(ctx, "balance query failed",
				zap.String("account", account), zap.Error(err))
			continue
		}
		out = append(out, BalanceEntry{Name: name, Account: account, Balance: bal})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return c.JSON(http.StatusOK, BalancesResponse{Asset: s.config.Asset, Balances: out})
}
