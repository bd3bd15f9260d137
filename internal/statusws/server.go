// Package statusws streams request status transitions to UI clients over
// websocket.
package statusws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Checker-Finance/market-intel/internal/metrics"
	"github.com/Checker-Finance/market-intel/pkg/model"
)

// Path is the websocket endpoint served by the status stream.
const Path = "/ws/status"

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	bufferSize = 64
)

// Source is where status events come from. Watch returns the current
// snapshot together with a subscription to every later transition.
type Source interface {
	Watch(buffer int, onDrop func()) (model.StatusEvent, <-chan model.StatusEvent, func())
}

// Server upgrades HTTP connections and forwards every status event to each
// connected client. A client whose buffer overflows is disconnected.
type Server struct {
	logger   *zap.Logger
	source   Source
	upgrader websocket.Upgrader
	srv      *http.Server
}

func NewServer(logger *zap.Logger, source Source, port int) *Server {
	s := &Server{
		logger: logger,
		source: source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The stream is read-only and carries no user data.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.Handle(Path, s)
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("statusws.listening", zap.String("addr", s.srv.Addr), zap.String("path", Path))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("statusws.upgrade_failed", zap.Error(err))
		return
	}

	slow := make(chan struct{})
	var slowOnce sync.Once
	snapshot, events, unsubscribe := s.source.Watch(bufferSize, func() {
		slowOnce.Do(func() {
			metrics.IncError("statusws", "slow_client")
			close(slow)
		})
	})
	metrics.StatusStreamClients.Inc()
	s.logger.Debug("statusws.client_connected", zap.String("remote", r.RemoteAddr))

	done := make(chan struct{})
	go s.readLoop(conn, done)
	s.writeLoop(conn, snapshot, events, done, slow)

	unsubscribe()
	metrics.StatusStreamClients.Dec()
	_ = conn.Close()
	s.logger.Debug("statusws.client_disconnected", zap.String("remote", r.RemoteAddr))
}

// readLoop discards client frames and closes done once the peer goes away.
func (s *Server) readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("statusws.read_failed", zap.Error(err))
			}
			return
		}
	}
}

func (s *Server) writeLoop(conn *websocket.Conn, snapshot model.StatusEvent, events <-chan model.StatusEvent, done, slow <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	if err := write(conn, snapshot); err != nil {
		return
	}
	for {
		select {
		case <-done:
			return
		case <-slow:
			s.logger.Warn("statusws.slow_client_dropped")
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too slow"),
				time.Now().Add(writeWait))
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := write(conn, ev); err != nil {
				s.logger.Debug("statusws.write_failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func write(conn *websocket.Conn, ev model.StatusEvent) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(ev)
}
