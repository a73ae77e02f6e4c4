package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/marketd/internal/marketplace"
	"github.com/fyrsmithlabs/marketd/internal/record"
)

// heartbeatInterval keeps idle SSE connections alive through proxies.
const heartbeatInterval = 15 * time.Second

func writeSSEHeaders(c echo.Context) *echo.Response {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()
	return w
}

func writeSSE(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// handleFeed streams orchestrator events to the client as server-sent
// events. The current state is sent immediately so late joiners know where
// the session stands.
func (s *Server) handleFeed(c echo.Context) error {
	w := writeSSEHeaders(c)

	ch, cancel := s.hub.Subscribe()
	defer cancel()

	snapshot := marketplace.Event{
		Kind: marketplace.EventState,
		Data: marketplace.StateChange{State: s.orc.State()},
	}
	if err := writeSSE(w, snapshot); err != nil {
		return nil
	}
	w.Flush()

	ctx := c.Request().Context()
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			if err := writeSSE(w, e); err != nil {
				return nil
			}
			w.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

// MonitorRecord is one log entry as streamed by the monitor feed. Entries
// that are not marketplace records still appear, with their payload as an
// opaque string.
type MonitorRecord struct {
	Sequence  uint64          `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	Type      record.Type     `json:"type,omitempty"`
	Sender    string          `json:"sender,omitempty"`
	Role      record.Role     `json:"role,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// handleMonitorFeed tails the raw log over SSE, independent of any session.
// It re-reads the log on an interval and streams entries it has not sent
// yet, tracked by sequence number.
func (s *Server) handleMonitorFeed(c echo.Context) error {
	w := writeSSEHeaders(c)
	ctx := c.Request().Context()

	var lastSeq uint64
	emit := func() error {
		entries, err := s.log.ReadAll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn(ctx, "monitor log read failed", zap.Error(err))
			return nil
		}

		wrote := false
		for _, entry := range entries {
			if entry.Sequence <= lastSeq {
				continue
			}
			lastSeq = entry.Sequence

			item := MonitorRecord{
				Sequence:  entry.Sequence,
				Timestamp: entry.Timestamp,
			}
			if msg, err := record.Parse(entry.Payload); err == nil {
				item.Type = msg.Type
				item.Sender = msg.Sender
				item.Role = msg.Role
				item.Payload = msg.Raw()
			} else {
				opaque, _ := json.Marshal(string(entry.Payload))
				item.Payload = opaque
			}

			if err := writeSSE(w, item); err != nil {
				return err
			}
			wrote = true
		}
		if wrote {
			w.Flush()
		}
		return nil
	}

	if err := emit(); err != nil {
		return nil
	}

	ticker := time.NewTicker(s.config.MonitorInterval)
	defer ticker.Stop()
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := emit(); err != nil {
				return nil
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}
