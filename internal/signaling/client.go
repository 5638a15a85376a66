package signaling

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/BioHazard786/Huddle/internal/dns"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// ErrClosed is returned when sending on a closed client.
var ErrClosed = errors.New("signaling connection closed")

// Client manages the WebSocket connection to the directory.
type Client struct {
	conn      *websocket.Conn
	serverURL string
	resolve   bool
	incoming  chan *Message
	outgoing  chan *Message
	done      chan struct{}

	closeOnce sync.Once
	readDone  chan struct{}
}

// NewClient creates a new signaling client. When resolve is set the host is
// looked up with public DNS fallback before dialing.
func NewClient(serverURL string, resolve bool) *Client {
	return &Client{
		serverURL: serverURL,
		resolve:   resolve,
		incoming:  make(chan *Message, 64),
		outgoing:  make(chan *Message, 64),
		done:      make(chan struct{}),
		readDone:  make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection to the directory.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	dialer := *websocket.DefaultDialer
	if c.resolve {
		dialer.NetDialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ip, err := dns.Lookup(ctx, host)
			if err != nil {
				return nil, fmt.Errorf("dns lookup failed: %w", err)
			}
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
		}
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return nil
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.readDone)
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("signaling read")
			}
			return
		}

		select {
		case c.incoming <- &msg:
		case <-c.done:
			return
		}
	}
}

// writePump writes messages to the WebSocket connection and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.flush()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-c.readDone:
			return
		}
	}
}

// flush writes whatever was queued before Close.
func (c *Client) flush() {
	for {
		select {
		case message := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}
		default:
			return
		}
	}
}

// SendMessage queues a message for the directory.
func (c *Client) SendMessage(msg *Message) error {
	select {
	case <-c.done:
		return ErrClosed
	case <-c.readDone:
		return ErrClosed
	default:
	}

	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	case <-c.readDone:
		return ErrClosed
	}
}

// Incoming returns the channel for receiving messages. It is closed when the
// connection drops or the client is closed.
func (c *Client) Incoming() <-chan *Message {
	return c.incoming
}

// Closed is closed once the connection is gone.
func (c *Client) Closed() <-chan struct{} {
	return c.readDone
}

// Close closes the WebSocket connection and cleans up resources.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
