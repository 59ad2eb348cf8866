package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"hilo-forecaster/internal/logging"
	"hilo-forecaster/internal/stream"
)

// streamKeepAlive is the interval between SSE comment pings.
var streamKeepAlive = 15 * time.Second

// StreamRequest selects the event types to stream. None means all.
type StreamRequest struct {
	Types []string `query:"type" validate:"dive,oneof=forecast sync"`
}

// handleStream serves hub events as Server-Sent Events until the client disconnects or
// the hub stops.
func (s *Server) handleStream(c echo.Context) error {
	var req StreamRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}

	w := c.Response()
	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	sub := s.app.Hub.Subscribe(req.Types...)
	defer s.app.Hub.Unsubscribe(sub)

	logger := logging.FromContext(c.Request().Context())
	logger.Debug().Str("subscriber", sub.ID).Strs("types", req.Types).Msg("Stream opened")

	ping := time.NewTicker(streamKeepAlive)
	defer ping.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Str("subscriber", sub.ID).Int64("dropped", sub.Dropped()).Msg("Stream closed")
			return nil
		case <-ping.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
			w.Flush()
		case ev, ok := <-sub.Channel:
			if !ok {
				return nil
			}
			if err := writeEvent(w, ev); err != nil {
				logger.Debug().Err(err).Msg("Stream write failed")
				return nil
			}
			w.Flush()
		}
	}
}

func writeEvent(w *echo.Response, ev stream.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, data)
	return err
}
