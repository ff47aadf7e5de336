package animation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// State is the controller's playback state.
type State int

const (
	StateIdle State = iota
	StatePlaying
	StateTransitioning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StateTransitioning:
		return "transitioning"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config tunes crossfades and the pending-play budget.
type Config struct {
	// CrossfadeDuration is the fade length in seconds.
	CrossfadeDuration float32 `mapstructure:"crossfade_duration"`
	// Curve names the fade easing, see CurveByName.
	Curve string `mapstructure:"curve"`
	// A play request for an unloaded clip waits at most
	// PendingAttempts * PendingInterval of advanced time.
	PendingAttempts int           `mapstructure:"pending_attempts"`
	PendingInterval time.Duration `mapstructure:"pending_interval"`
}

func DefaultConfig() Config {
	return Config{
		CrossfadeDuration: 1,
		Curve:             "linear",
		PendingAttempts:   100,
		PendingInterval:   100 * time.Millisecond,
	}
}

// PendingBudget is the longest a play request waits for its clip.
func (c Config) PendingBudget() time.Duration {
	return time.Duration(c.PendingAttempts) * c.PendingInterval
}

// Slot is a named clip registration.
type Slot struct {
	Name       string
	Path       string
	Clip       *Clip
	Action     *Action
	Generation uint64
	Err        error
}

// Loaded reports whether the slot has a playable action.
func (s Slot) Loaded() bool {
	return s.Action != nil
}

// Transition exists only while two actions cross-fade.
type Transition struct {
	Outgoing *Action
	Incoming *Action
}

// Controller plays named clips on one character and cross-fades between
// them. All methods except SetClipSource's loading, Ready and AwaitReady must
// be called from the frame goroutine.
type Controller struct {
	cfg    Config
	curve  Curve
	logger zerolog.Logger

	proxy *Proxy
	mixer *Mixer
	slots map[string]*Slot
	gen   uint64

	active   *Action
	outgoing *Action

	pending    string
	pendingAge time.Duration

	ready   bool
	readyCh chan struct{}
	onLoad  func(name string, err error)

	pose   Pose
	closed bool
}

// NewController creates a controller that loads clips through loader.
func NewController(loader ClipLoader, cfg Config, logger zerolog.Logger) (*Controller, error) {
	curve, err := CurveByName(cfg.Curve)
	if err != nil {
		return nil, err
	}
	logger = logger.With().Str("component", "animation").Logger()
	return &Controller{
		cfg:     cfg,
		curve:   curve,
		logger:  logger,
		proxy:   NewProxy(loader, logger),
		mixer:   NewMixer(),
		slots:   make(map[string]*Slot),
		readyCh: make(chan struct{}),
		pose:    Pose{},
	}, nil
}

// SetConfig swaps the tuning. Fades already running keep their duration.
func (c *Controller) SetConfig(cfg Config) error {
	curve, err := CurveByName(cfg.Curve)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.curve = curve
	return nil
}

func (c *Controller) Config() Config {
	return c.cfg
}

// SetOnLoad installs a hook called from Advance for every load result that
// reaches the controller.
func (c *Controller) SetOnLoad(fn func(name string, err error)) {
	c.onLoad = fn
}

// SetClipSource registers name -> path and starts loading it. A later call
// for the same name supersedes this one. The channel receives the outcome.
func (c *Controller) SetClipSource(name, path string) <-chan error {
	s, ok := c.slots[name]
	if !ok {
		s = &Slot{Name: name}
		c.slots[name] = s
	}
	c.gen++
	s.Path = path
	s.Generation = c.gen
	return c.proxy.Request(name, path, c.gen)
}

// Play makes name the active clip. See State for the transitions. Playing a
// third clip during a crossfade drops the old outgoing clip at once and
// folds its weight into the clip that now fades out, so the weights still
// sum to one and the pose shifts toward the fading clip for that frame.
func (c *Controller) Play(name string) {
	if c.active != nil && c.active.name == name {
		// Already playing or fading in.
		c.pending = ""
		return
	}

	s, ok := c.slots[name]
	if !ok || s.Action == nil {
		if c.pending != name {
			c.pending = name
			c.pendingAge = 0
			c.logger.Debug().Str("name", name).Msg("Clip not loaded, play deferred")
		}
		return
	}

	c.pending = ""
	c.start(s.Action)
}

func (c *Controller) start(next *Action) {
	d := c.cfg.CrossfadeDuration

	switch {
	case c.active == nil:
		next.reset()
		next.weight = 1
		c.mixer.Add(next)
		c.active = next
		c.logger.Debug().Str("name", next.name).Msg("Playing")

	case next == c.outgoing:
		// Reverse the running crossfade.
		prev := c.active
		prev.fadeTo(0, d, c.curve)
		next.fadeTo(1, d, c.curve)
		c.outgoing = prev
		c.active = next
		c.logger.Debug().Str("from", prev.name).Str("to", next.name).Msg("Crossfade reversed")

	default:
		prev := c.active
		if c.outgoing != nil {
			// The old outgoing leaves now; its weight moves onto prev so
			// the total does not dip.
			prev.weight = min(prev.weight+c.outgoing.weight, 1)
			c.mixer.Remove(c.outgoing)
			c.outgoing.reset()
		}
		prev.fadeTo(0, d, c.curve)
		next.reset()
		next.fadeTo(1, d, c.curve)
		c.mixer.Add(next)
		c.outgoing = prev
		c.active = next
		c.logger.Debug().Str("from", prev.name).Str("to", next.name).Msg("Crossfade started")
	}
}

// Advance applies finished loads, ages the pending request, steps every
// action and samples the blended pose.
func (c *Controller) Advance(dt float32) error {
	c.bindLoads()

	if c.pending != "" {
		c.pendingAge += time.Duration(float64(dt) * float64(time.Second))
		if c.pendingAge >= c.cfg.PendingBudget() {
			c.logger.Debug().Str("name", c.pending).Msg("Pending play expired")
			c.pending = ""
			c.pendingAge = 0
		}
	}

	c.mixer.Update(dt)

	if c.outgoing != nil && !c.outgoing.IsFading() && c.outgoing.weight <= 0 {
		c.mixer.Remove(c.outgoing)
		c.outgoing.reset()
		c.outgoing = nil
	}

	c.pose = c.mixer.Pose()
	return nil
}

func (c *Controller) bindLoads() {
	for _, done := range c.proxy.Drain() {
		s, ok := c.slots[done.name]
		if !ok || s.Generation != done.gen {
			continue
		}

		if done.err != nil {
			s.Clip = nil
			s.Action = nil
			s.Err = done.err
			c.logger.Warn().Err(done.err).Str("name", done.name).Str("path", done.path).Msg("Clip load failed")
			c.notify(done.name, done.err)
			continue
		}

		s.Clip = done.clip
		s.Err = nil
		if live := c.playing(done.name); live != nil {
			// A failed reload may have dropped the slot's action while it
			// kept playing.
			live.rebind(done.clip)
			s.Action = live
		} else if s.Action != nil && c.mixer.Contains(s.Action) {
			s.Action.rebind(done.clip)
		} else {
			s.Action = newAction(done.name, done.clip)
		}
		c.logger.Info().Str("name", done.name).Dur("took", done.took).Msg("Clip loaded")

		if !c.ready {
			c.ready = true
			close(c.readyCh)
		}
		c.notify(done.name, nil)

		if c.pending == done.name {
			c.pending = ""
			c.pendingAge = 0
			c.Play(done.name)
		}
	}
}

// playing returns the active or outgoing action for name.
func (c *Controller) playing(name string) *Action {
	for _, a := range []*Action{c.active, c.outgoing} {
		if a != nil && a.name == name {
			return a
		}
	}
	return nil
}

func (c *Controller) notify(name string, err error) {
	if c.onLoad != nil {
		c.onLoad(name, err)
	}
}

// IsReady reports whether any clip has loaded.
func (c *Controller) IsReady() bool {
	return c.ready
}

// Ready is closed once the first clip has loaded. Safe from any goroutine.
func (c *Controller) Ready() <-chan struct{} {
	return c.readyCh
}

// AwaitReady waits for Ready within the pending budget. It returns
// ErrNotReady when the budget runs out. Readiness is only observed by
// Advance, so the frame loop must be running.
func (c *Controller) AwaitReady(ctx context.Context) error {
	timer := time.NewTimer(c.cfg.PendingBudget())
	defer timer.Stop()

	select {
	case <-c.readyCh:
		return nil
	case <-timer.C:
		return ErrNotReady
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitLoads blocks until every load started so far has resolved. Results
// are applied on the next Advance.
func (c *Controller) WaitLoads() {
	c.proxy.Wait()
}

// InFlight returns the number of unresolved loads.
func (c *Controller) InFlight() int {
	return c.proxy.InFlight()
}

// Close cancels in-flight loads. Later loads fail with ErrClosed.
func (c *Controller) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.proxy.Close()
}

func (c *Controller) State() State {
	switch {
	case c.active == nil:
		return StateIdle
	case c.outgoing != nil:
		return StateTransitioning
	default:
		return StatePlaying
	}
}

// Active returns the playing (or fading in) clip name.
func (c *Controller) Active() string {
	if c.active == nil {
		return ""
	}
	return c.active.name
}

// Pending returns the deferred play request, if any.
func (c *Controller) Pending() string {
	return c.pending
}

func (c *Controller) Transition() (Transition, bool) {
	if c.outgoing == nil {
		return Transition{}, false
	}
	return Transition{Outgoing: c.outgoing, Incoming: c.active}, true
}

// Weights returns the blend weight of every action on the mixer.
func (c *Controller) Weights() map[string]float32 {
	w := make(map[string]float32)
	for _, a := range c.mixer.Actions() {
		w[a.name] = a.weight
	}
	return w
}

// Slot returns a copy of the registration for name.
func (c *Controller) Slot(name string) (Slot, bool) {
	s, ok := c.slots[name]
	if !ok {
		return Slot{}, false
	}
	return *s, true
}

// Names lists registered clip names in sorted order.
func (c *Controller) Names() []string {
	names := make([]string, 0, len(c.slots))
	for n := range c.slots {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Pose is the body pose sampled by the last Advance.
func (c *Controller) Pose() Pose {
	return c.pose
}

func (c *Controller) Mixer() *Mixer {
	return c.mixer
}
