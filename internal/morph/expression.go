package morph

import (
	"math/rand"
	"time"

	"github.com/fogleman/ease"
)

// ExpressionConfig tunes the upper-face layer.
type ExpressionConfig struct {
	Transition  time.Duration `mapstructure:"transition"`
	BlinkLength float32       `mapstructure:"blink_length"` // seconds
	MinBlinkGap time.Duration `mapstructure:"min_blink_gap"`
	MaxBlinkGap time.Duration `mapstructure:"max_blink_gap"`
}

func DefaultExpressionConfig() ExpressionConfig {
	return ExpressionConfig{
		Transition:  300 * time.Millisecond,
		BlinkLength: 0.15,
		MinBlinkGap: 2 * time.Second,
		MaxBlinkGap: 5 * time.Second,
	}
}

func preset(pairs ...any) BlendshapeWeights {
	var w BlendshapeWeights
	for i := 0; i+1 < len(pairs); i += 2 {
		w.Set(pairs[i].(Blendshape), float32(pairs[i+1].(float64)))
	}
	return w
}

// Expressions maps emotion names to ARKit presets.
var Expressions = map[string]BlendshapeWeights{
	"neutral": {},
	"happy": preset(
		MouthSmileLeft, 0.4, MouthSmileRight, 0.4,
		CheekSquintLeft, 0.25, CheekSquintRight, 0.25,
		EyeSquintLeft, 0.15, EyeSquintRight, 0.15),
	"sad": preset(
		BrowInnerUp, 0.4, BrowDownLeft, 0.1, BrowDownRight, 0.1,
		MouthFrownLeft, 0.25, MouthFrownRight, 0.25,
		EyeSquintLeft, 0.1, EyeSquintRight, 0.1),
	"angry": preset(
		BrowDownLeft, 0.6, BrowDownRight, 0.6,
		EyeSquintLeft, 0.3, EyeSquintRight, 0.3,
		NoseSneerLeft, 0.3, NoseSneerRight, 0.3,
		MouthPressLeft, 0.2, MouthPressRight, 0.2),
	"surprised": preset(
		BrowInnerUp, 0.4, BrowOuterUpLeft, 0.3, BrowOuterUpRight, 0.3,
		EyeWideLeft, 0.4, EyeWideRight, 0.4),
	"confused": preset(
		BrowInnerUp, 0.25, BrowDownLeft, 0.2,
		EyeLookUpLeft, 0.3, EyeLookUpRight, 0.3,
		MouthPressLeft, 0.1, MouthPressRight, 0.1),
}

type blinkState int

const (
	blinkOpen blinkState = iota
	blinkClosing
	blinkClosed
	blinkOpening
)

// Expression drives the non-mouth blendshapes: an emotion preset that
// eases in over the transition, plus periodic blinks. The preset's mouth
// part reaches the mesh through a viseme binding, see Attach. It is a frame
// target; call from the frame goroutine only.
type Expression struct {
	sink   *Sink
	meshes []Mesh
	cfg    ExpressionConfig
	rng    *rand.Rand

	name    string
	from    BlendshapeWeights
	to      BlendshapeWeights
	current BlendshapeWeights
	elapsed time.Duration

	mouthBinding *VisemeBinding
	changed      bool

	blink      blinkState
	blinkPhase float32
	untilBlink time.Duration
	mouth      [BlendshapeCount]bool
	scratch    map[string]float32
}

// NewExpression starts neutral. seed fixes the blink timing.
func NewExpression(sink *Sink, cfg ExpressionConfig, seed int64, meshes ...Mesh) *Expression {
	e := &Expression{
		sink:    sink,
		meshes:  meshes,
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(seed)),
		name:    "neutral",
		scratch: make(map[string]float32, BlendshapeCount),
	}
	for _, b := range mouthShapes {
		e.mouth[b] = true
	}
	e.elapsed = cfg.Transition
	e.untilBlink = e.nextGap()
	return e
}

// SetExpression eases toward name's preset. Unknown names ease to neutral.
func (e *Expression) SetExpression(name string) {
	if name == e.name {
		return
	}
	e.name = name
	e.from = e.current
	e.to = Expressions[name]
	e.elapsed = 0
	e.changed = true
}

func (e *Expression) Name() string { return e.name }

// Attach makes b add this expression under the visemes it writes.
func (e *Expression) Attach(b *VisemeBinding) {
	e.mouthBinding = b
	b.SetBase(e.Weights)
}

func (e *Expression) SetMeshes(meshes ...Mesh) { e.meshes = meshes }

func (e *Expression) SetConfig(cfg ExpressionConfig) { e.cfg = cfg }

// Blink starts a blink now if the eyes are open.
func (e *Expression) Blink() {
	if e.blink == blinkOpen {
		e.blink = blinkClosing
		e.blinkPhase = 0
	}
}

// Weights is the last composed weight set.
func (e *Expression) Weights() BlendshapeWeights { return e.current }

func (e *Expression) Advance(dt float32) error {
	step := time.Duration(float64(dt) * float64(time.Second))

	fading := e.elapsed < e.cfg.Transition
	if fading {
		e.elapsed += step
		t := 1.0
		if e.cfg.Transition > 0 {
			t = min(float64(e.elapsed)/float64(e.cfg.Transition), 1)
		}
		k := float32(ease.InOutCubic(t))
		for i := range e.current {
			e.current[i] = e.from[i] + (e.to[i]-e.from[i])*k
		}
	} else {
		e.current = e.to
	}

	e.advanceBlink(dt, step)
	amount := e.blinkAmount()
	e.current.Set(EyeBlinkLeft, amount)
	e.current.Set(EyeBlinkRight, amount)

	clear(e.scratch)
	for b := Blendshape(0); b < BlendshapeCount; b++ {
		if !e.mouth[b] {
			e.scratch[b.String()] = e.current[b]
		}
	}
	e.sink.Apply(e.meshes, e.scratch)

	if (fading || e.changed) && e.mouthBinding != nil {
		e.mouthBinding.Reapply()
	}
	e.changed = false
	return nil
}

func (e *Expression) advanceBlink(dt float32, step time.Duration) {
	length := e.cfg.BlinkLength
	if length <= 0 {
		length = DefaultExpressionConfig().BlinkLength
	}

	switch e.blink {
	case blinkOpen:
		e.untilBlink -= step
		if e.untilBlink <= 0 {
			e.blink = blinkClosing
			e.blinkPhase = 0
		}
	case blinkClosing:
		e.blinkPhase += dt / (length * 0.4)
		if e.blinkPhase >= 1 {
			e.blinkPhase = 1
			e.blink = blinkClosed
		}
	case blinkClosed:
		e.blinkPhase += dt / (length * 0.1)
		if e.blinkPhase >= 1.1 {
			e.blink = blinkOpening
			e.blinkPhase = 1
		}
	case blinkOpening:
		e.blinkPhase -= dt / (length * 0.5)
		if e.blinkPhase <= 0 {
			e.blinkPhase = 0
			e.blink = blinkOpen
			e.untilBlink = e.nextGap()
		}
	}
}

func (e *Expression) blinkAmount() float32 {
	switch e.blink {
	case blinkClosing:
		return float32(ease.OutQuad(float64(e.blinkPhase)))
	case blinkClosed:
		return 1
	case blinkOpening:
		return float32(ease.InQuad(float64(e.blinkPhase)))
	default:
		return 0
	}
}

func (e *Expression) nextGap() time.Duration {
	lo, hi := e.cfg.MinBlinkGap, e.cfg.MaxBlinkGap
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(e.rng.Int63n(int64(hi-lo)))
}
