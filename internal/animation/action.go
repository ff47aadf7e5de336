package animation

import (
	"fmt"
	"strings"

	"github.com/fogleman/ease"
)

// Curve shapes fade progress. Curves map [0,1] onto [0,1] monotonically.
type Curve func(t float64) float64

var curves = map[string]Curve{
	"linear":       ease.Linear,
	"in-quad":      ease.InQuad,
	"out-quad":     ease.OutQuad,
	"in-out-quad":  ease.InOutQuad,
	"in-out-cubic": ease.InOutCubic,
	"in-out-sine":  ease.InOutSine,
}

// CurveByName resolves a configured fade curve. An empty name is linear.
func CurveByName(name string) (Curve, error) {
	if name == "" {
		return ease.Linear, nil
	}
	c, ok := curves[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown fade curve %q", name)
	}
	return c, nil
}

type fade struct {
	from, to float32
	duration float32
	elapsed  float32
	curve    Curve
}

func (f *fade) weight() float32 {
	if f.duration <= 0 {
		return f.to
	}
	p := clamp(f.elapsed/f.duration, 0, 1)
	return clamp(f.from+(f.to-f.from)*float32(f.curve(float64(p))), 0, 1)
}

func (f *fade) done() bool {
	return f.elapsed >= f.duration
}

// Action plays one clip on a controller's mixer: a playhead, a blend weight
// and an optional fade in progress.
type Action struct {
	name      string
	clip      *Clip
	time      float32
	weight    float32
	timeScale float32
	fade      *fade
}

func newAction(name string, clip *Clip) *Action {
	return &Action{
		name:      name,
		clip:      clip,
		timeScale: 1,
	}
}

func (a *Action) Name() string       { return a.name }
func (a *Action) Clip() *Clip        { return a.clip }
func (a *Action) Time() float32      { return a.time }
func (a *Action) Weight() float32    { return a.weight }
func (a *Action) IsFading() bool     { return a.fade != nil }
func (a *Action) TimeScale() float32 { return a.timeScale }

// SetTimeScale changes playback speed. Negative values play backwards.
func (a *Action) SetTimeScale(s float32) {
	a.timeScale = s
}

// FadeRemaining returns the seconds left in the current fade, or 0.
func (a *Action) FadeRemaining() float32 {
	if a.fade == nil {
		return 0
	}
	if r := a.fade.duration - a.fade.elapsed; r > 0 {
		return r
	}
	return 0
}

// fadeTo starts a fade from the current weight.
func (a *Action) fadeTo(target, duration float32, curve Curve) {
	if duration <= 0 {
		a.weight = target
		a.fade = nil
		return
	}
	a.fade = &fade{
		from:     a.weight,
		to:       target,
		duration: duration,
		curve:    curve,
	}
}

func (a *Action) reset() {
	a.time = 0
	a.weight = 0
	a.fade = nil
}

// rebind swaps in a reloaded clip, keeping playhead, weight and fade.
func (a *Action) rebind(clip *Clip) {
	a.clip = clip
}

func (a *Action) step(dt float32) {
	a.time += dt * a.timeScale
	if a.fade == nil {
		return
	}
	a.fade.elapsed += dt
	a.weight = a.fade.weight()
	if a.fade.done() {
		a.weight = a.fade.to
		a.fade = nil
	}
}

func (a *Action) sample() Pose {
	if a.clip == nil {
		return nil
	}
	return a.clip.Sample(a.time)
}
