package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/broadcast"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// kitchenClient: соединение одного кухонного дисплея.
type kitchenClient struct {
	conn   *websocket.Conn
	sub    *broadcast.Subscription
	logger *log.Entry
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
}

// checkOrigin применяет к WebSocket тот же список origin, что и CORS.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).WithField("remote_addr", r.RemoteAddr).Warn("websocket upgrade failed")
		return
	}

	sub := s.checkout.Subscribe(s.subscriberBuffer)
	client := &kitchenClient{
		conn: conn,
		sub:  sub,
		logger: s.logger.WithFields(log.Fields{
			"subscriber":  sub.ID(),
			"remote_addr": r.RemoteAddr,
		}),
	}
	client.logger.Info("kitchen display connected")

	go client.writePump()
	go client.readPump()
}

// readPump читает входящие кадры только ради pong и закрытия соединения.
func (c *kitchenClient) readPump() {
	defer func() {
		c.sub.Close()
		_ = c.conn.Close()
		c.logger.Info("kitchen display disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.WithError(err).Debug("websocket read error")
			}
			return
		}
	}
}

// writePump отправляет события подписки и периодические ping.
func (c *kitchenClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case e, ok := <-c.sub.Events():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Подписка закрыта: хаб остановлен или дисплей не успевал читать.
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteJSON(e); err != nil {
				c.logger.WithError(err).WithField("event", e.Name).Debug("websocket write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
