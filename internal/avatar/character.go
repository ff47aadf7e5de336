// Package avatar assembles a talking, emoting character from the animation,
// viseme and morph layers and attaches it to a scene.
package avatar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/normanking/avatarcore/internal/animation"
	"github.com/normanking/avatarcore/internal/bus"
	"github.com/normanking/avatarcore/internal/emotion"
	"github.com/normanking/avatarcore/internal/morph"
	"github.com/normanking/avatarcore/internal/tick"
	"github.com/normanking/avatarcore/internal/viseme"
	"github.com/rs/zerolog"
)

// ErrNoSpeaker is returned by Say when the character has no voice.
var ErrNoSpeaker = errors.New("character has no speaker")

// Scene receives the character's model once per spawn.
type Scene interface {
	AddToScene(object any)
}

// Speaker says text out loud. speech.Speaker satisfies it.
type Speaker interface {
	Speak(ctx context.Context, text string) error
	Stop()
	IsSpeaking() bool
}

// Config tunes every layer of a character.
type Config struct {
	Animation  animation.Config
	Viseme     viseme.Config
	Morph      morph.Config
	Expression morph.ExpressionConfig
	Scheme     string
}

func DefaultConfig() Config {
	return Config{
		Animation:  animation.DefaultConfig(),
		Viseme:     viseme.DefaultConfig(),
		Morph:      morph.DefaultConfig(),
		Expression: morph.DefaultExpressionConfig(),
		Scheme:     "oculus",
	}
}

// Options are the collaborators of a character. Only Loader and Analyzer
// are required.
type Options struct {
	ID       string
	Model    any
	Meshes   []morph.Mesh
	Loader   animation.ClipLoader
	Analyzer viseme.Analyzer
	Speaker  Speaker
	Events   *bus.EventBus
	// Seed drives blink timing. Zero picks one from the clock.
	Seed int64
}

// Character owns one animation controller, viseme blender and morph binding.
// Spawn, Despawn, SetEmotion and the accessors belong to the frame
// goroutine; other goroutines go through Enqueue.
type Character struct {
	id      string
	model   any
	events  *bus.EventBus
	speaker Speaker
	logger  zerolog.Logger

	controller *animation.Controller
	blender    *viseme.Blender
	sink       *morph.Sink
	binding    *morph.VisemeBinding
	expression *morph.Expression
	director   *emotion.Director
	inbox      *inbox

	scheduler *tick.Scheduler
	spawned   bool

	speechMu   sync.RWMutex
	speechText string
}

// NewCharacter wires the layers together. Nothing runs until Spawn.
func NewCharacter(opts Options, cfg Config, logger zerolog.Logger) (*Character, error) {
	if opts.Loader == nil || opts.Analyzer == nil {
		return nil, errors.New("character needs a clip loader and an analyzer")
	}
	scheme, err := morph.ParseScheme(cfg.Scheme)
	if err != nil {
		return nil, err
	}
	logger = logger.With().Str("character", opts.ID).Logger()

	controller, err := animation.NewController(opts.Loader, cfg.Animation, logger)
	if err != nil {
		return nil, fmt.Errorf("create animation controller: %w", err)
	}

	sink := morph.NewSink(cfg.Morph, logger)
	binding := morph.NewVisemeBinding(sink, scheme, opts.Meshes...)
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	expression := morph.NewExpression(sink, cfg.Expression, seed, opts.Meshes...)
	expression.Attach(binding)

	c := &Character{
		id:         opts.ID,
		model:      opts.Model,
		events:     opts.Events,
		speaker:    opts.Speaker,
		logger:     logger.With().Str("component", "character").Logger(),
		controller: controller,
		blender:    viseme.NewBlender(opts.Analyzer, binding, cfg.Viseme, logger),
		sink:       sink,
		binding:    binding,
		expression: expression,
		director:   emotion.NewDirector(controller, opts.Events, logger),
		inbox:      &inbox{},
	}
	controller.SetOnLoad(c.clipLoaded)
	return c, nil
}

func (c *Character) clipLoaded(name string, err error) {
	if err != nil {
		c.events.Publish(bus.Event{
			Type: bus.EventTypeClipFailed,
			Data: map[string]any{"character": c.id, "clip": name, "error": err.Error()},
		})
		return
	}
	c.events.Publish(bus.Event{
		Type: bus.EventTypeClipLoaded,
		Data: map[string]any{"character": c.id, "clip": name},
	})
}

// LoadManifest registers the manifest's clips with the controller.
func (c *Character) LoadManifest(m *emotion.Manifest) map[emotion.Emotion]<-chan error {
	if m.Model != "" && c.model == nil {
		c.model = m.Model
	}
	return m.Apply(c.controller)
}

// Spawn adds the model to scene and registers the per-frame work with
// scheduler. Spawning an already spawned character does nothing.
func (c *Character) Spawn(scene Scene, scheduler *tick.Scheduler) error {
	if c.spawned {
		return nil
	}
	if scheduler == nil {
		return errors.New("spawn: nil scheduler")
	}

	var registered []tick.UpdateTarget
	for _, t := range []tick.UpdateTarget{c.inbox, c.controller, c.blender, c.expression} {
		if _, err := scheduler.Register(t); err != nil {
			for _, r := range registered {
				scheduler.Unregister(r)
			}
			return fmt.Errorf("spawn: %w", err)
		}
		registered = append(registered, t)
	}

	if scene != nil && c.model != nil {
		scene.AddToScene(c.model)
	}
	c.scheduler = scheduler
	c.spawned = true
	c.SetEmotion(emotion.Neutral)

	c.logger.Info().Int("meshes", len(c.binding.Meshes())).Msg("Character spawned")
	c.events.Publish(bus.Event{
		Type: bus.EventTypeAvatarSpawned,
		Data: map[string]any{"character": c.id},
	})
	return nil
}

// Despawn stops the per-frame work and any speech. The scene keeps the
// model; removing it is the scene owner's job.
func (c *Character) Despawn() {
	if !c.spawned {
		return
	}
	c.scheduler.Unregister(c.inbox)
	c.scheduler.Unregister(c.controller)
	c.scheduler.Unregister(c.blender)
	c.scheduler.Unregister(c.expression)
	c.scheduler = nil
	c.spawned = false
	c.StopSpeaking()
	c.blender.Reset()

	c.logger.Info().Msg("Character despawned")
	c.events.Publish(bus.Event{
		Type: bus.EventTypeAvatarDespawned,
		Data: map[string]any{"character": c.id},
	})
}

func (c *Character) Spawned() bool { return c.spawned }

// SetEmotion switches to e's clip and face.
func (c *Character) SetEmotion(e emotion.Emotion) {
	c.director.SetEmotion(e)
	c.expression.SetExpression(e.String())
}

// Enqueue runs fn on the frame goroutine at the start of the next frame.
// Safe to call from any goroutine.
func (c *Character) Enqueue(fn func()) {
	c.inbox.push(fn)
}

// Say speaks text and blocks until it is done. The mouth follows through
// the analyzer the speaker plays into.
func (c *Character) Say(ctx context.Context, text string) error {
	if c.speaker == nil {
		return ErrNoSpeaker
	}
	c.speechMu.Lock()
	c.speechText = text
	c.speechMu.Unlock()

	return c.speaker.Speak(ctx, text)
}

func (c *Character) StopSpeaking() {
	if c.speaker != nil {
		c.speaker.Stop()
	}
}

func (c *Character) IsSpeaking() bool {
	return c.speaker != nil && c.speaker.IsSpeaking()
}

// State snapshots the character.
func (c *Character) State() State {
	c.speechMu.RLock()
	text := c.speechText
	c.speechMu.RUnlock()

	weights := c.blender.Weights()
	return State{
		ID:         c.id,
		Spawned:    c.spawned,
		Emotion:    c.director.Current(),
		Animation:  c.controller.State().String(),
		ActiveClip: c.controller.Active(),
		Pending:    c.controller.Pending(),
		ClipWeight: c.controller.Weights(),
		IsSpeaking: c.IsSpeaking(),
		SpeechText: text,
		MouthShape: mouthShape(weights),
		Visemes:    weights.Map(),
	}
}

// Status is the one-line summary of State.
func (c *Character) Status() string {
	return c.State().Status()
}

// ApplyConfig retunes the layers between frames.
func (c *Character) ApplyConfig(cfg Config) error {
	if err := c.controller.SetConfig(cfg.Animation); err != nil {
		return err
	}
	c.blender.SetConfig(cfg.Viseme)
	c.sink.SetConfig(cfg.Morph)
	c.expression.SetConfig(cfg.Expression)
	return nil
}

func (c *Character) ID() string                        { return c.id }
func (c *Character) Controller() *animation.Controller { return c.controller }
func (c *Character) Blender() *viseme.Blender          { return c.blender }
func (c *Character) Binding() *morph.VisemeBinding     { return c.binding }
func (c *Character) Director() *emotion.Director       { return c.director }
func (c *Character) Expression() *morph.Expression     { return c.expression }

// Close despawns and cancels outstanding clip loads.
func (c *Character) Close() {
	c.Despawn()
	c.controller.Close()
}

// inbox runs queued work on the frame goroutine.
type inbox struct {
	mu    sync.Mutex
	queue []func()
}

func (q *inbox) push(fn func()) {
	q.mu.Lock()
	q.queue = append(q.queue, fn)
	q.mu.Unlock()
}

func (q *inbox) Advance(float32) error {
	q.mu.Lock()
	queue := q.queue
	q.queue = nil
	q.mu.Unlock()

	for _, fn := range queue {
		fn()
	}
	return nil
}
