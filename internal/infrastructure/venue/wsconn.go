package venue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domain "orderbook/internal/domain/entity/marketdata"
	"orderbook/internal/domain/interfaces"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const closeWriteTimeout = time.Second

// ParseFunc decodes one text frame. ok is false for frames that carry no book,
// such as subscription acknowledgements.
type ParseFunc func(msg []byte) (book domain.OrderBook, ok bool, err error)

// WSConn is a websocket to one venue. Its read loop turns text frames into
// books until the socket fails or Close is called.
type WSConn struct {
	ws      *websocket.Conn
	logger  *logrus.Entry
	writeMu sync.Mutex
	once    sync.Once
	done    chan struct{}
}

var _ interfaces.Connection = (*WSConn)(nil)

// Dial opens a websocket to url. ctx bounds the handshake only.
func Dial(ctx context.Context, url string, logger *logrus.Entry) (*WSConn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &WSConn{
		ws:     ws,
		logger: logger,
		done:   make(chan struct{}),
	}, nil
}

// WriteJSON sends v as a text frame.
func (c *WSConn) WriteJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(v)
}

// Stream starts the read loop. It must be called once. The returned channel
// is closed when the socket stops delivering frames.
func (c *WSConn) Stream(parse ParseFunc) <-chan domain.OrderBook {
	out := make(chan domain.OrderBook)
	go c.readLoop(parse, out)
	return out
}

func (c *WSConn) readLoop(parse ParseFunc, out chan<- domain.OrderBook) {
	defer close(out)

	for {
		kind, msg, err := c.ws.ReadMessage()
		if err != nil {
			if !c.closed() && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.logger.WithError(err).Warn("websocket read failed")
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		book, ok, err := parse(msg)
		if err != nil {
			c.logger.WithError(err).Warn("skip malformed frame")
			continue
		}
		if !ok {
			continue
		}

		select {
		case out <- book:
		case <-c.done:
			return
		}
	}
}

func (c *WSConn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Close sends a close frame and releases the socket. Later calls are no-ops.
func (c *WSConn) Close(ctx context.Context) error {
	var err error
	c.once.Do(func() {
		close(c.done)

		deadline := time.Now().Add(closeWriteTimeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")

		c.writeMu.Lock()
		writeErr := c.ws.WriteControl(websocket.CloseMessage, msg, deadline)
		c.writeMu.Unlock()

		closeErr := c.ws.Close()
		if writeErr != nil && !errors.Is(writeErr, websocket.ErrCloseSent) {
			err = fmt.Errorf("send close frame: %w", writeErr)
			return
		}
		if closeErr != nil {
			err = fmt.Errorf("close websocket: %w", closeErr)
		}
	})
	return err
}
