package avatar

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/normanking/avatarcore/internal/emotion"
	"github.com/rs/zerolog"
)

// RemoteCommand is the payload of a control event.
type RemoteCommand struct {
	Emotion string `json:"emotion,omitempty"`
	Text    string `json:"text,omitempty"`
}

// Remote drives a character from a server-sent event stream at
// <base>/api/v1/avatar/events. Events are "emotion", "say" and "stop".
type Remote struct {
	baseURL   string
	character *Character
	logger    zerolog.Logger
	client    *http.Client

	initialBackoff time.Duration
	maxBackoff     time.Duration

	mu        sync.RWMutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewRemote creates a remote control client for character.
func NewRemote(baseURL string, character *Character, logger zerolog.Logger) *Remote {
	return &Remote{
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		character:      character,
		logger:         logger.With().Str("component", "avatar-remote").Logger(),
		client:         &http.Client{Timeout: 0}, // No timeout for SSE
		initialBackoff: 3 * time.Second,
		maxBackoff:     60 * time.Second,
	}
}

// SetBackoff overrides the reconnect delays.
func (r *Remote) SetBackoff(initial, max time.Duration) {
	r.initialBackoff, r.maxBackoff = initial, max
}

// Connect starts the event stream in the background.
func (r *Remote) Connect(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.connectLoop(ctx)
	}()
	return nil
}

// Disconnect stops the stream and any speech it started.
func (r *Remote) Disconnect() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.mu.Lock()
	r.connected = false
	r.mu.Unlock()
}

func (r *Remote) IsConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connected
}

func (r *Remote) connectLoop(ctx context.Context) {
	backoff := r.initialBackoff
	consecutiveFailures := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := r.connectSSE(ctx); err != nil {
			consecutiveFailures++
			r.mu.Lock()
			r.connected = false
			r.mu.Unlock()

			if consecutiveFailures >= 3 {
				if consecutiveFailures == 3 {
					r.logger.Warn().
						Err(err).
						Int("failures", consecutiveFailures).
						Msg("Avatar event stream not available, will retry less frequently")
				} else {
					r.logger.Debug().
						Int("failures", consecutiveFailures).
						Msg("Avatar event stream still unavailable")
				}
				backoff = r.maxBackoff
			} else {
				r.logger.Warn().Err(err).Msg("Event stream failed, reconnecting...")
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}

			if backoff < r.maxBackoff {
				backoff *= 2
				if backoff > r.maxBackoff {
					backoff = r.maxBackoff
				}
			}
		} else {
			backoff = r.initialBackoff
			consecutiveFailures = 0
		}
	}
}

func (r *Remote) connectSSE(ctx context.Context) error {
	url := r.baseURL + "/api/v1/avatar/events"
	r.logger.Info().Str("url", url).Msg("Connecting to avatar event stream")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		return fmt.Errorf("unexpected content-type: %s (expected text/event-stream)", ct)
	}

	r.mu.Lock()
	r.connected = true
	r.mu.Unlock()
	r.logger.Info().Msg("Connected to avatar event stream")

	scanner := bufio.NewScanner(resp.Body)
	var eventType string
	var dataLines []string

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case line == "" && eventType != "":
			r.handleEvent(ctx, eventType, strings.Join(dataLines, "\n"))
			eventType = ""
			dataLines = nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return scanner.Err()
}

func (r *Remote) handleEvent(ctx context.Context, eventType, data string) {
	var cmd RemoteCommand
	if data != "" {
		if err := json.Unmarshal([]byte(data), &cmd); err != nil {
			r.logger.Warn().Err(err).Str("type", eventType).Msg("Failed to parse event")
			return
		}
	}

	switch eventType {
	case "emotion":
		e := MapEmotion(cmd.Emotion)
		r.character.Enqueue(func() { r.character.SetEmotion(e) })

	case "say":
		if strings.TrimSpace(cmd.Text) == "" {
			return
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := r.character.Say(ctx, cmd.Text); err != nil && ctx.Err() == nil {
				r.logger.Warn().Err(err).Msg("Remote speech failed")
			}
		}()

	case "stop":
		r.character.StopSpeaking()

	default:
		r.logger.Debug().Str("type", eventType).Msg("Unknown event type")
	}
}

// MapEmotion folds common emotion words onto the known emotions.
func MapEmotion(name string) emotion.Emotion {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "joy", "happy", "excitement", "excited":
		return emotion.Happy
	case "sadness", "sad":
		return emotion.Sad
	case "anger", "angry":
		return emotion.Angry
	case "surprise", "surprised":
		return emotion.Surprised
	case "confusion", "confused", "thinking":
		return emotion.Confused
	default:
		return emotion.Neutral
	}
}
