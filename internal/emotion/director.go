package emotion

import (
	"sync"

	"github.com/normanking/avatarcore/internal/bus"
	"github.com/rs/zerolog"
)

// Player starts a named clip. animation.Controller satisfies it.
type Player interface {
	Play(name string)
}

// Director tracks the current emotion and plays its clip.
type Director struct {
	player Player
	events *bus.EventBus
	logger zerolog.Logger

	mu      sync.RWMutex
	current Emotion
}

// NewDirector starts in Neutral. events may be nil.
func NewDirector(player Player, events *bus.EventBus, logger zerolog.Logger) *Director {
	return &Director{
		player:  player,
		events:  events,
		logger:  logger.With().Str("component", "emotion").Logger(),
		current: Neutral,
	}
}

// SetEmotion plays e's clip and announces the change. Setting the current
// emotion again still plays, which is a no-op in the controller.
func (d *Director) SetEmotion(e Emotion) {
	d.mu.Lock()
	prev := d.current
	d.current = e
	d.mu.Unlock()

	d.player.Play(e.String())

	if prev != e {
		d.logger.Info().Str("from", prev.String()).Str("to", e.String()).Msg("Emotion changed")
		d.events.Publish(bus.Event{
			Type: bus.EventTypeEmotionChanged,
			Data: map[string]any{"emotion": e.String(), "previous": prev.String()},
		})
	}
}

func (d *Director) Current() Emotion {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.current
}
