package audiofeature

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// FeedControl is a text message on the PCM feed. Audio arrives as binary
// messages between "start" and "end".
type FeedControl struct {
	Type      string `json:"type"`
	Utterance string `json:"utterance,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Feed streams PCM from a websocket into a writer, usually an Analyzer.
type Feed struct {
	url    string
	out    io.Writer
	logger zerolog.Logger

	backoff    time.Duration
	maxBackoff time.Duration

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	received  uint64
	cancel    context.CancelFunc
	done      chan struct{}

	onStart func(utterance string)
	onEnd   func(utterance string)
	onError func(err error)
}

// NewFeed creates a feed for an http(s) or ws(s) URL.
func NewFeed(rawURL string, out io.Writer, logger zerolog.Logger) *Feed {
	return &Feed{
		url:        rawURL,
		out:        out,
		logger:     logger.With().Str("component", "pcm-feed").Logger(),
		backoff:    3 * time.Second,
		maxBackoff: 60 * time.Second,
	}
}

// SetBackoff changes the reconnect delays.
func (f *Feed) SetBackoff(initial, max time.Duration) {
	f.backoff = initial
	f.maxBackoff = max
}

func (f *Feed) SetStartCallback(cb func(utterance string)) { f.onStart = cb }
func (f *Feed) SetEndCallback(cb func(utterance string))   { f.onEnd = cb }
func (f *Feed) SetErrorCallback(cb func(err error))        { f.onError = cb }

// Connect starts the connection loop in the background.
func (f *Feed) Connect(ctx context.Context) error {
	u, err := f.wsURL()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})

	go func() {
		defer close(f.done)
		f.connectLoop(ctx, u)
	}()
	return nil
}

// Disconnect closes the connection and waits for the loop to exit.
func (f *Feed) Disconnect() {
	if f.cancel != nil {
		f.cancel()
	}
	f.mu.Lock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
	f.connected = false
	f.mu.Unlock()
	if f.done != nil {
		<-f.done
	}
}

func (f *Feed) IsConnected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

// Received returns the number of PCM bytes written so far.
func (f *Feed) Received() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.received
}

func (f *Feed) wsURL() (string, error) {
	u, err := url.Parse(f.url)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String(), nil
}

func (f *Feed) connectLoop(ctx context.Context, u string) {
	backoff := f.backoff
	consecutiveFailures := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := f.connectWS(ctx, u)
		f.mu.Lock()
		f.connected = false
		f.mu.Unlock()
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			consecutiveFailures++
			if consecutiveFailures >= 3 {
				if consecutiveFailures == 3 {
					f.logger.Warn().
						Err(err).
						Int("failures", consecutiveFailures).
						Msg("PCM feed not available, will retry less frequently")
				} else {
					f.logger.Debug().
						Int("failures", consecutiveFailures).
						Msg("PCM feed still unavailable")
				}
				backoff = f.maxBackoff
			} else {
				f.logger.Warn().Err(err).Msg("PCM feed connection failed, reconnecting...")
			}
		} else {
			backoff = f.backoff
			consecutiveFailures = 0
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		if backoff < f.maxBackoff {
			backoff *= 2
			if backoff > f.maxBackoff {
				backoff = f.maxBackoff
			}
		}
	}
}

func (f *Feed) connectWS(ctx context.Context, u string) error {
	f.logger.Info().Str("url", u).Msg("Connecting to PCM feed")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	f.mu.Lock()
	f.conn = conn
	f.connected = true
	f.mu.Unlock()

	f.logger.Info().Msg("Connected to PCM feed")

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		switch kind {
		case websocket.BinaryMessage:
			if _, err := f.out.Write(data); err != nil {
				return fmt.Errorf("write pcm: %w", err)
			}
			f.mu.Lock()
			f.received += uint64(len(data))
			f.mu.Unlock()
		case websocket.TextMessage:
			f.handleControl(data)
		}
	}
}

func (f *Feed) handleControl(raw []byte) {
	var msg FeedControl
	if err := json.Unmarshal(raw, &msg); err != nil {
		f.logger.Warn().Err(err).Msg("Failed to parse feed control message")
		return
	}

	switch msg.Type {
	case "start":
		f.logger.Debug().Str("utterance", msg.Utterance).Msg("Utterance started")
		if f.onStart != nil {
			f.onStart(msg.Utterance)
		}
	case "end":
		f.logger.Debug().Str("utterance", msg.Utterance).Msg("Utterance ended")
		if f.onEnd != nil {
			f.onEnd(msg.Utterance)
		}
	case "error":
		f.logger.Warn().Str("message", msg.Message).Msg("Feed server error")
		if f.onError != nil {
			f.onError(fmt.Errorf("server: %s", msg.Message))
		}
	default:
		f.logger.Debug().Str("type", msg.Type).Msg("Unknown feed message type")
	}
}
