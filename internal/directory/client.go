package directory

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/BioHazard786/Huddle/internal/config"
	"github.com/BioHazard786/Huddle/internal/signaling"
)

// Client is one websocket connection to the directory. It holds at most one
// peer name at a time.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	cfg  config.WebSocketConfig
	log  zerolog.Logger

	// name is owned by the hub goroutine.
	name string

	// send is drained by WritePump. Only the hub closes it.
	send chan *signaling.Message
}

func newClient(hub *Hub, conn *websocket.Conn, cfg config.WebSocketConfig, logger zerolog.Logger) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		cfg:  cfg,
		log:  logger,
		send: make(chan *signaling.Message, cfg.SendBuffer),
	}
}

// ReadPump pumps messages from the websocket connection to the hub. It is
// the only reader of the connection.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		var msg signaling.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Debug().Err(err).Msg("read failed")
			}
			return
		}
		select {
		case c.hub.inbound <- envelope{client: c, msg: &msg}:
		case <-c.hub.done:
			return
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection and
// pings the peer. It is the only writer of the connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod())

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
