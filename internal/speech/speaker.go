package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/normanking/avatarcore/internal/audiofeature"
	"github.com/normanking/avatarcore/internal/bus"
	"github.com/normanking/avatarcore/internal/cache"
	"github.com/rs/zerolog"
)

// Config holds speaker settings
type Config struct {
	Voice string  `mapstructure:"voice"`
	Speed float64 `mapstructure:"speed"`
}

// CacheKey is the cache key for text spoken in voice.
func CacheKey(voice, text string) string {
	return "v:" + voice + ":" + text
}

// Speaker synthesizes text, caches the audio and plays it. One utterance
// plays at a time; a new Speak interrupts the current one.
type Speaker struct {
	synth  Synthesizer
	cache  *cache.Cache
	player *audiofeature.Player
	events *bus.EventBus
	config Config
	logger zerolog.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	seq      uint64
	speaking bool
}

// NewSpeaker creates a speaker. c and events may be nil.
func NewSpeaker(synth Synthesizer, c *cache.Cache, player *audiofeature.Player, events *bus.EventBus, config Config, logger zerolog.Logger) *Speaker {
	return &Speaker{
		synth:  synth,
		cache:  c,
		player: player,
		events: events,
		config: config,
		logger: logger.With().Str("component", "speaker").Logger(),
	}
}

// Audio returns PCM for text, from the cache when possible.
func (s *Speaker) Audio(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	key := CacheKey(s.config.Voice, text)

	if s.cache != nil {
		audio, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Cache lookup failed")
		} else if ok {
			s.events.Publish(bus.Event{
				Type: bus.EventTypeSpeechCacheHit,
				Data: map[string]any{"key": key},
			})
			return audio, nil
		}
	}

	resp, err := s.synth.Synthesize(ctx, &Request{Text: text, Voice: s.config.Voice, Speed: s.config.Speed})
	if err != nil {
		return nil, fmt.Errorf("synthesize with %s: %w", s.synth.Name(), err)
	}

	if s.cache != nil {
		// Another caller may have stored the same utterance first.
		if err := s.cache.Set(ctx, key, resp.Audio); err != nil && !errors.Is(err, cache.ErrDuplicateKey) {
			s.logger.Warn().Err(err).Str("key", key).Msg("Failed to cache speech")
		}
	}
	return resp.Audio, nil
}

// Speak says text and returns when playback finishes. Stop or a later
// Speak ends it early without an error.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	audio, err := s.Audio(ctx, text)
	if err != nil {
		s.events.Publish(bus.Event{
			Type: bus.EventTypeSpeechFailed,
			Data: map[string]any{"text": text, "error": err.Error()},
		})
		return err
	}

	playCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.seq++
	seq := s.seq
	s.cancel = cancel
	s.speaking = true
	s.mu.Unlock()

	duration := s.player.Duration(audio)
	s.events.Publish(bus.Event{
		Type: bus.EventTypeSpeechStarted,
		Data: map[string]any{"text": text, "duration": duration},
	})

	start := time.Now()
	err = s.player.Play(playCtx, audio)
	interrupted := err != nil && ctx.Err() == nil && errors.Is(err, context.Canceled)

	s.mu.Lock()
	if s.seq == seq {
		s.cancel = nil
		s.speaking = false
	}
	s.mu.Unlock()

	s.events.Publish(bus.Event{
		Type: bus.EventTypeSpeechStopped,
		Data: map[string]any{"text": text, "elapsed": time.Since(start), "interrupted": interrupted},
	})

	if interrupted {
		s.logger.Debug().Str("text", text).Msg("Speech interrupted")
		return nil
	}
	return err
}

// Stop cancels the current utterance, if any.
func (s *Speaker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.speaking = false
}

func (s *Speaker) IsSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}
