package venue

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	domain "orderbook/internal/domain/entity/marketdata"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveFrames accepts one websocket, writes frames and then waits for the
// client to close.
func serveFrames(t *testing.T, frames []string, closed chan<- int) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for _, f := range frames {
			if err := ws.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				var ce *websocket.CloseError
				if errors.As(err, &ce) && closed != nil {
					closed <- ce.Code
				}
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// parsePrice treats a frame as the best bid price; "skip" carries no book.
func parsePrice(msg []byte) (domain.OrderBook, bool, error) {
	if string(msg) == "skip" {
		return domain.OrderBook{}, false, nil
	}
	price, err := strconv.ParseFloat(string(msg), 64)
	if err != nil {
		return domain.OrderBook{}, false, err
	}
	book := domain.NewOrderBook()
	book.Bid[0] = domain.PriceLevel{Price: price, Amount: 1}
	return book, true, nil
}

func TestWSConnStreamsParsedFrames(t *testing.T) {
	closed := make(chan int, 1)
	srv := serveFrames(t, []string{"1", "skip", "oops", "2"}, closed)

	logger, hook := logtest.NewNullLogger()
	conn, err := Dial(context.Background(), wsURL(srv), logrus.NewEntry(logger))
	require.NoError(t, err)
	stream := conn.Stream(parsePrice)

	var prices []float64
	for i := 0; i < 2; i++ {
		select {
		case book := <-stream:
			prices = append(prices, book.Bid[0].Price)
		case <-time.After(2 * time.Second):
			t.Fatal("no book received")
		}
	}
	assert.Equal(t, []float64{1, 2}, prices)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "skip malformed frame", hook.LastEntry().Message)

	require.NoError(t, conn.Close(context.Background()))
	require.NoError(t, conn.Close(context.Background()))

	select {
	case code := <-closed:
		assert.Equal(t, websocket.CloseNormalClosure, code)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not see a close frame")
	}

	select {
	case _, ok := <-stream:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed")
	}
}

func TestWSConnStreamEndsWhenServerLeaves(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = ws.WriteMessage(websocket.TextMessage, []byte("5"))
		_ = ws.Close()
	}))
	defer srv.Close()

	logger, _ := logtest.NewNullLogger()
	conn, err := Dial(context.Background(), wsURL(srv), logrus.NewEntry(logger))
	require.NoError(t, err)
	defer conn.Close(context.Background())

	stream := conn.Stream(parsePrice)
	book := <-stream
	assert.Equal(t, 5.0, book.Bid[0].Price)

	select {
	case _, ok := <-stream:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed after server went away")
	}
}

func TestDialFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Dial(ctx, "ws://127.0.0.1:1/ws", nil)
	require.Error(t, err)
}
