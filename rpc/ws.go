package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"vsachain/core/types"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsBuffer       = 256
)

// handleEventsWS streams committed events. The optional types query parameter
// is a comma separated list of event types to receive.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	var filter []string
	for _, typ := range strings.Split(r.URL.Query().Get("types"), ",") {
		if typ = strings.TrimSpace(typ); typ != "" {
			filter = append(filter, typ)
		}
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.cfg.AllowedOrigins})
	if err != nil {
		s.logger.Debug("event stream rejected", slog.String("origin", r.Header.Get("Origin")), slog.Any("error", err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	// Reads are discarded; CloseRead cancels ctx when the client goes away.
	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, filter); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			s.logger.Debug("event stream ended", slog.Any("error", err))
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, filter []string) error {
	updates, cancel := s.node.Feed().Subscribe(wsBuffer, filter...)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeEvent(ctx, conn, evt); err != nil {
				return err
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt *types.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
