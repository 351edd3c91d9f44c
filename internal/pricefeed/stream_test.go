package pricefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/logger"
)

func TestStream_DeliversBars(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var (
		mu       sync.Mutex
		received []string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for i := 0; i < 2; i++ {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			mu.Lock()
			received = append(received, string(msg))
			mu.Unlock()
		}

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`[{"ev":"status","status":"auth_success"}]`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`[
{"ev":"AM","sym":"aapl","o":100,"h":105,"l":98,"c":104,"v":500,"s":1704204000000},
{"ev":"AM","sym":"MSFT","o":0,"h":0,"l":0,"c":0,"v":0,"s":1704204000000}]`))

		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	bars := make(chan domain.PriceBar, 4)
	handler := func(_ context.Context, b domain.PriceBar) error {
		bars <- b
		return nil
	}
	tickers := func(context.Context) ([]string, error) { return []string{"AAPL", "msft"}, nil }

	cfg := DefaultStreamConfig()
	cfg.URL = "ws" + strings.TrimPrefix(server.URL, "http")
	stream := NewStream(cfg, "key", tickers, handler, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- stream.Run(ctx) }()

	select {
	case b := <-bars:
		assert.Equal(t, "AAPL", b.Ticker)
		assert.Equal(t, day(2024, 1, 2), b.Date)
		assert.Equal(t, 105.0, b.High)
		assert.Equal(t, 98.0, b.Low)
	case <-time.After(5 * time.Second):
		t.Fatal("no bar received")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 2)
	assert.JSONEq(t, `{"action":"auth","params":"key"}`, received[0])
	assert.JSONEq(t, `{"action":"subscribe","params":"AM.AAPL,AM.MSFT"}`, received[1])
	assert.Empty(t, bars, "zero-priced aggregates are skipped")
}
