package pricefeed

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/logger"
	"trade-outcome-lab/internal/observability"
)

// StreamConfig configures the bar stream connection.
type StreamConfig struct {
	URL string `yaml:"url"`
	// Channel prefix of aggregate subscriptions, e.g. "AM" for minute aggregates.
	Channel           string        `yaml:"channel" default:"AM"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay" default:"1s"`
	MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay" default:"30s"`
	PingInterval      time.Duration `yaml:"ping_interval" default:"30s"`
	ReadTimeout       time.Duration `yaml:"read_timeout" default:"90s"`
	WriteTimeout      time.Duration `yaml:"write_timeout" default:"10s"`
}

// DefaultStreamConfig returns default stream configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Channel:           "AM",
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       90 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// BarHandler consumes bars from the stream.
type BarHandler func(ctx context.Context, bar domain.PriceBar) error

// TickerSource lists the tickers to subscribe to on each (re)connect.
type TickerSource func(ctx context.Context) ([]string, error)

// Stream subscribes to live aggregates over a websocket and hands each one to
// a BarHandler as a bar for its trading day. It reconnects with exponential
// backoff until its context is done.
type Stream struct {
	cfg     StreamConfig
	apiKey  string
	tickers TickerSource
	handler BarHandler
	log     *logger.Logger
	dialer  *websocket.Dialer

	// gorilla/websocket allows one concurrent writer.
	writeMu sync.Mutex
}

// NewStream creates a bar stream.
func NewStream(cfg StreamConfig, apiKey string, tickers TickerSource, handler BarHandler, log *logger.Logger) *Stream {
	def := DefaultStreamConfig()
	if cfg.Channel == "" {
		cfg.Channel = def.Channel
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.MaxReconnectDelay <= 0 {
		cfg.MaxReconnectDelay = def.MaxReconnectDelay
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Stream{
		cfg:     cfg,
		apiKey:  apiKey,
		tickers: tickers,
		handler: handler,
		log:     log.With(logger.String("component", "bar_stream")),
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// wsEvent is one element of a server frame. Frames are JSON arrays.
type wsEvent struct {
	Ev      string  `json:"ev"`
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Sym     string  `json:"sym"`
	O       float64 `json:"o"`
	H       float64 `json:"h"`
	L       float64 `json:"l"`
	C       float64 `json:"c"`
	V       float64 `json:"v"`
	S       int64   `json:"s"` // window start, ms since epoch
}

type wsAction struct {
	Action string `json:"action"`
	Params string `json:"params"`
}

// Run streams until ctx is done. It returns ctx.Err().
func (s *Stream) Run(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.cfg.ReconnectDelay
	policy.MaxInterval = s.cfg.MaxReconnectDelay
	policy.MaxElapsedTime = 0
	policy.Reset()

	for {
		received, err := s.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if received {
			policy.Reset()
		}
		delay := policy.NextBackOff()
		observability.RecordStreamReconnect()
		s.log.Warn("stream disconnected, reconnecting",
			logger.Error(err),
			logger.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// session runs one connection until it fails. received reports whether any
// bar arrived, which resets the reconnect backoff.
func (s *Stream) session(ctx context.Context) (received bool, err error) {
	tickers, err := s.tickers(ctx)
	if err != nil {
		return false, fmt.Errorf("list tickers: %w", err)
	}

	conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return false, fmt.Errorf("websocket dial: %w", err)
	}
	sessionCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		_ = conn.Close()
	}()

	// Unblock ReadMessage when ctx ends.
	go func() {
		<-sessionCtx.Done()
		_ = conn.SetReadDeadline(time.Now())
	}()
	go s.pingLoop(sessionCtx, conn)

	if s.apiKey != "" {
		if err := s.write(conn, wsAction{Action: "auth", Params: s.apiKey}); err != nil {
			return false, err
		}
	}
	if len(tickers) > 0 {
		if err := s.write(conn, wsAction{Action: "subscribe", Params: s.subscription(tickers)}); err != nil {
			return false, err
		}
		s.log.Info("subscribed", logger.Int("tickers", len(tickers)))
	}

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return received, fmt.Errorf("websocket read: %w", err)
		}
		n, err := s.handleMessage(ctx, message)
		if err != nil {
			return received, err
		}
		if n > 0 {
			received = true
		}
	}
}

func (s *Stream) subscription(tickers []string) string {
	parts := make([]string, len(tickers))
	for i, t := range tickers {
		parts[i] = s.cfg.Channel + "." + strings.ToUpper(t)
	}
	return strings.Join(parts, ",")
}

func (s *Stream) write(conn *websocket.Conn, msg wsAction) error {
	payload, err := sonic.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Action, err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("write %s: %w", msg.Action, err)
	}
	return nil
}

func (s *Stream) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches the aggregates of one frame. An auth failure ends
// the session; handler errors are logged and skipped.
func (s *Stream) handleMessage(ctx context.Context, message []byte) (int, error) {
	var events []wsEvent
	if err := sonic.Unmarshal(message, &events); err != nil {
		s.log.Debug("ignoring non-array frame", logger.Int("bytes", len(message)))
		return 0, nil
	}

	dispatched := 0
	for _, ev := range events {
		if ev.Ev == "status" {
			if ev.Status == "auth_failed" {
				return dispatched, fmt.Errorf("stream auth failed: %s", ev.Message)
			}
			continue
		}
		if ev.Sym == "" || ev.H <= 0 || ev.L <= 0 {
			continue
		}
		bar := domain.PriceBar{
			Ticker: strings.ToUpper(ev.Sym),
			Date:   domain.Day(time.UnixMilli(ev.S)),
			Open:   ev.O,
			High:   ev.H,
			Low:    ev.L,
			Close:  ev.C,
			Volume: ev.V,
		}
		observability.RecordStreamBar()
		if err := s.handler(ctx, bar); err != nil {
			s.log.Warn("bar handler failed", logger.String("ticker", bar.Ticker), logger.Error(err))
			continue
		}
		dispatched++
	}
	return dispatched, nil
}
