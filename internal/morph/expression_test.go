package morph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func steadyEyes(transition time.Duration) ExpressionConfig {
	return ExpressionConfig{
		Transition:  transition,
		BlinkLength: 0.15,
		MinBlinkGap: time.Hour,
		MaxBlinkGap: time.Hour,
	}
}

func influence(s *Surface, name string) float32 {
	v, _ := s.Influence(name)
	return v
}

func TestExpression_EasesToPreset(t *testing.T) {
	face := NewSurface("face", BlendshapeNames[:])
	e := NewExpression(passThrough(), steadyEyes(100*time.Millisecond), 1, face)

	e.SetExpression("happy")
	assert.Equal(t, "happy", e.Name())
	_ = e.Advance(0.05)
	assert.InDelta(t, 0.125, influence(face, "cheekSquintLeft"), 1e-3, "half way on an in-out curve")

	_ = e.Advance(0.05)
	assert.InDelta(t, 0.25, influence(face, "cheekSquintLeft"), 1e-6)
	assert.Equal(t, float32(0), influence(face, "mouthSmileLeft"), "mouth shapes belong to the viseme binding")

	e.SetExpression("unknown")
	for i := 0; i < 10; i++ {
		_ = e.Advance(0.05)
	}
	assert.Equal(t, float32(0), influence(face, "cheekSquintLeft"))
}

func TestExpression_MouthThroughBinding(t *testing.T) {
	face := NewSurface("face", BlendshapeNames[:])
	sink := passThrough()
	b := NewVisemeBinding(sink, SchemeARKit, face)
	e := NewExpression(sink, steadyEyes(0), 1, face)
	e.Attach(b)

	e.SetExpression("happy")
	_ = e.Advance(0.016)
	assert.InDelta(t, 0.4, influence(face, "mouthSmileLeft"), 1e-6)

	e.SetExpression("sad")
	_ = e.Advance(0.016)
	assert.Equal(t, float32(0), influence(face, "mouthSmileLeft"))
	assert.InDelta(t, 0.25, influence(face, "mouthFrownLeft"), 1e-6)
}

func TestExpression_Blinks(t *testing.T) {
	face := NewSurface("face", BlendshapeNames[:])
	cfg := ExpressionConfig{BlinkLength: 0.15, MinBlinkGap: 60 * time.Millisecond, MaxBlinkGap: 60 * time.Millisecond}
	e := NewExpression(passThrough(), cfg, 7, face)

	_ = e.Advance(0.04)
	_ = e.Advance(0.04)
	assert.Equal(t, float32(0), influence(face, "eyeBlinkLeft"), "closing starts from open")

	_ = e.Advance(0.04)
	assert.InDelta(t, 8.0/9, influence(face, "eyeBlinkLeft"), 1e-3)

	closed, reopened := false, false
	for i := 0; i < 10; i++ {
		_ = e.Advance(0.04)
		v := influence(face, "eyeBlinkLeft")
		if v >= 0.999 {
			closed = true
		}
		if closed && v == 0 {
			reopened = true
		}
	}
	assert.True(t, closed)
	assert.True(t, reopened)
	assert.Equal(t, influence(face, "eyeBlinkLeft"), influence(face, "eyeBlinkRight"))
}

func TestExpression_ManualBlink(t *testing.T) {
	face := NewSurface("face", BlendshapeNames[:])
	e := NewExpression(passThrough(), steadyEyes(0), 1, face)
	e.Blink()
	_ = e.Advance(0.03)
	assert.Greater(t, influence(face, "eyeBlinkLeft"), float32(0))
	assert.Greater(t, e.Weights()[EyeBlinkLeft], float32(0))
}
