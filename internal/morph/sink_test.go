package morph

import (
	"testing"

	"github.com/normanking/avatarcore/internal/viseme"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingMesh records dictionary lookups.
type countingMesh struct {
	*Surface
	lookups int
}

func (m *countingMesh) MorphTargetDictionary() map[string]int {
	m.lookups++
	return m.Surface.MorphTargetDictionary()
}

func passThrough() *Sink {
	return NewSink(Config{Smoothing: 1, Epsilon: 1e-4}, zerolog.Nop())
}

func TestSink_SkipsMissingTargets(t *testing.T) {
	head := NewSurface("head", []string{"jawOpen", "mouthClose"})
	teeth := NewSurface("teeth", []string{"jawOpen"})
	s := passThrough()

	s.Apply([]Mesh{head, teeth}, map[string]float32{
		"jawOpen":    0.6,
		"mouthClose": 0.3,
		"eyeBlink":   1,
	})

	v, _ := head.Influence("jawOpen")
	assert.InDelta(t, 0.6, v, 1e-6)
	v, _ = head.Influence("mouthClose")
	assert.InDelta(t, 0.3, v, 1e-6)
	v, _ = teeth.Influence("jawOpen")
	assert.InDelta(t, 0.6, v, 1e-6)
	_, ok := teeth.Influence("mouthClose")
	assert.False(t, ok)
}

func TestSink_CachesLookupsIncludingMisses(t *testing.T) {
	m := &countingMesh{Surface: NewSurface("face", []string{"jawOpen"})}
	s := passThrough()
	weights := map[string]float32{"jawOpen": 0.5, "missing": 1}

	for i := 0; i < 10; i++ {
		s.Apply([]Mesh{m}, weights)
	}
	assert.Equal(t, 2, m.lookups, "one lookup per name, ever")

	ref, ok := s.Resolve(m, "jawOpen")
	require.True(t, ok)
	assert.Equal(t, Ref{MeshID: "face", TargetName: "jawOpen", Index: 0}, ref)

	s.Invalidate("face")
	s.Apply([]Mesh{m}, weights)
	assert.Equal(t, 4, m.lookups)
}

func TestSink_MeshesSharingAnIDKeepTheirOwnIndices(t *testing.T) {
	first := NewSurface("Mesh", []string{"viseme_aa", "viseme_O"})
	second := NewSurface("Mesh", []string{"viseme_O", "viseme_aa"})
	s := passThrough()

	s.Apply([]Mesh{first, second}, map[string]float32{"viseme_aa": 1})

	for _, m := range []*Surface{first, second} {
		aa, _ := m.Influence("viseme_aa")
		o, _ := m.Influence("viseme_O")
		assert.Equal(t, float32(1), aa)
		assert.Equal(t, float32(0), o)
	}

	s.Invalidate("Mesh")
	s.Apply([]Mesh{second}, map[string]float32{"viseme_O": 1})
	o, _ := second.Influence("viseme_O")
	assert.Equal(t, float32(1), o)
}

func TestSink_Smoothing(t *testing.T) {
	face := NewSurface("face", []string{"jawOpen"})
	s := NewSink(DefaultConfig(), zerolog.Nop())

	s.Apply([]Mesh{face}, map[string]float32{"jawOpen": 1})
	v, _ := face.Influence("jawOpen")
	assert.InDelta(t, 0.5, v, 1e-6)

	s.Apply([]Mesh{face}, map[string]float32{"jawOpen": 1})
	v, _ = face.Influence("jawOpen")
	assert.InDelta(t, 0.75, v, 1e-6)

	for i := 0; i < 30; i++ {
		s.Apply([]Mesh{face}, map[string]float32{"jawOpen": 1})
	}
	v, _ = face.Influence("jawOpen")
	assert.Equal(t, float32(1), v, "snaps to target within epsilon")
}

func TestSink_SkipsTinyWritesAndClamps(t *testing.T) {
	face := NewSurface("face", []string{"a", "b"})
	s := passThrough()

	s.Apply([]Mesh{face}, map[string]float32{"a": 0.00001, "b": 3})
	writes, skipped := s.Stats()
	assert.Equal(t, uint64(1), writes)
	assert.Equal(t, uint64(1), skipped)

	v, _ := face.Influence("a")
	assert.Equal(t, float32(0), v)
	v, _ = face.Influence("b")
	assert.Equal(t, float32(1), v)
}

func TestVisemeBinding_Oculus(t *testing.T) {
	face := NewSurface("Wolf3D_Head", []string{"viseme_sil", "viseme_aa", "viseme_O", "mouthSmile"})
	b := NewVisemeBinding(passThrough(), SchemeOculus, face)

	var w viseme.Weights
	w[viseme.AA] = 0.8
	w[viseme.O] = 0.1
	b.ApplyVisemes(w)

	v, _ := face.Influence("viseme_aa")
	assert.InDelta(t, 0.8, v, 1e-6)
	v, _ = face.Influence("viseme_O")
	assert.InDelta(t, 0.1, v, 1e-6)
	v, _ = face.Influence("mouthSmile")
	assert.Equal(t, float32(0), v)
}

func TestVisemeBinding_ARKit(t *testing.T) {
	face := NewSurface("face", BlendshapeNames[:])
	b := NewVisemeBinding(passThrough(), SchemeARKit, face)

	var w viseme.Weights
	w[viseme.AA] = 1
	b.ApplyVisemes(w)

	v, _ := face.Influence("jawOpen")
	assert.InDelta(t, 0.6, v, 1e-6)
	v, _ = face.Influence("mouthStretchLeft")
	assert.InDelta(t, 0.2, v, 1e-6)
	v, _ = face.Influence("eyeBlinkLeft")
	assert.Equal(t, float32(0), v)

	// Decays once the viseme is gone.
	b.ApplyVisemes(viseme.Weights{})
	v, _ = face.Influence("jawOpen")
	assert.Equal(t, float32(0), v)
}

func TestSchemes(t *testing.T) {
	s, err := ParseScheme("ARKit")
	require.NoError(t, err)
	assert.Equal(t, "arkit", s.Name())

	s, err = ParseScheme("")
	require.NoError(t, err)
	assert.Equal(t, "oculus", s.Name())

	_, err = ParseScheme("faceware")
	assert.Error(t, err)

	assert.Equal(t, "viseme_kk", OculusTarget(viseme.KK))
	assert.Equal(t, JawOpen, BlendshapeFromName("jawOpen"))
	assert.Equal(t, Blendshape(-1), BlendshapeFromName("nope"))
}

func TestBlendshapeWeights_AddVisemesClamps(t *testing.T) {
	var w viseme.Weights
	for _, v := range viseme.All() {
		w[v] = 1
	}
	var bw BlendshapeWeights
	bw.AddVisemes(w)
	for b := Blendshape(0); b < BlendshapeCount; b++ {
		assert.LessOrEqual(t, bw.Get(b), float32(1), b.String())
	}
	assert.Equal(t, float32(1), bw.Get(JawOpen))
}

func TestSurface_Targets(t *testing.T) {
	s := NewSurface("x", []string{"b", "a", "b"})
	assert.Equal(t, []string{"b", "a"}, s.Targets())
	s.MorphTargetInfluences()[1] = 0.4
	s.Reset()
	v, _ := s.Influence("a")
	assert.Equal(t, float32(0), v)
}
