package viseme

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dt60 = float32(1.0 / 60)

type stubAnalyzer struct {
	sample Sample
	ok     bool
	pulls  int
}

func (a *stubAnalyzer) PullLatestSample() (Sample, bool) {
	a.pulls++
	return a.sample, a.ok
}

var (
	openVowel = Sample{Volume: 0.27, Centroid: 1000}
	hiss      = Sample{Volume: 0.09, Centroid: 5500}
	quiet     = Sample{Volume: 0, Centroid: 0}
)

func fixed(v Viseme) Classifier {
	return func(Sample, Sample, float32, float32) Scores {
		var s Scores
		s[v] = 1
		return s
	}
}

func newTestBlender(a Analyzer, sink Sink) *Blender {
	return NewBlender(a, sink, DefaultConfig(), zerolog.Nop())
}

func TestClassifier_Bands(t *testing.T) {
	classify := NewClassifier(0.02, 0.3)

	tests := []struct {
		name   string
		sample Sample
		want   Viseme
	}{
		{"silence", quiet, Sil},
		{"below floor", Sample{Volume: 0.01, Centroid: 1000}, Sil},
		{"open vowel", openVowel, AA},
		{"sibilant", hiss, SS},
		{"rounded vowel", Sample{Volume: 0.18, Centroid: 400}, U},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scores := classify(tt.sample, tt.sample, 0, 0)
			assert.Equal(t, tt.want, scores.Pick(Count, 0, 1e-4))
		})
	}
}

func TestScores_PickTieBreak(t *testing.T) {
	tests := []struct {
		name   string
		scores Scores
		prev   Viseme
		want   Viseme
	}{
		{"clear winner", Scores{AA: 0.9, O: 0.5}, O, AA},
		{"tie keeps previous", Scores{AA: 0.5, O: 0.5}, O, O},
		{"tie keeps previous either way", Scores{AA: 0.5, O: 0.5}, AA, AA},
		{"tie without previous goes to silence", Scores{Sil: 0.5, AA: 0.5}, E, Sil},
		{"tie falls back to enum order", Scores{PP: 0.5, AA: 0.5}, E, PP},
		{"near tie within epsilon", Scores{AA: 0.50005, O: 0.5}, O, O},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.scores.Pick(tt.prev, 0, 1e-4))
		})
	}
}

func TestScores_PickConsistencyBonus(t *testing.T) {
	s := Scores{AA: 0.55, O: 0.5}
	assert.Equal(t, AA, s.Pick(O, 0, 1e-4))
	assert.Equal(t, O, s.Pick(O, 0.1, 1e-4), "bonus holds the previous dominant")
}

func TestBlender_ConvergesMonotonically(t *testing.T) {
	a := &stubAnalyzer{sample: hiss, ok: true}
	b := newTestBlender(a, nil)

	for i := 0; i < 60; i++ {
		require.NoError(t, b.Advance(dt60))
	}
	require.Equal(t, SS, b.Dominant())

	a.sample = openVowel
	prev := b.Weights()
	for i := 0; i < 240; i++ {
		require.NoError(t, b.Advance(dt60))
		w := b.Weights()
		require.Equal(t, AA, b.Dominant())

		for v := Viseme(0); v < Count; v++ {
			assert.GreaterOrEqual(t, w[v], float32(0))
			assert.LessOrEqual(t, w[v], float32(1))
			if v == AA {
				assert.GreaterOrEqual(t, w[v], prev[v], "dominant never falls")
			} else {
				assert.LessOrEqual(t, w[v], prev[v], "others never rise")
			}
		}
		prev = w
	}

	w := b.Weights()
	assert.InDelta(t, 1, w[AA], 1e-3)
	for v := Viseme(0); v < Count; v++ {
		if v != AA {
			assert.InDelta(t, 0, w[v], 1e-3, v.String())
		}
	}
}

func TestBlender_AsymmetricRates(t *testing.T) {
	a := &stubAnalyzer{sample: openVowel, ok: true}
	cfg := DefaultConfig()

	vowel := newTestBlender(a, nil)
	vowel.SetClassifier(fixed(AA))
	require.NoError(t, vowel.Advance(dt60))
	assert.InDelta(t, cfg.VowelAttack, vowel.Weights()[AA], 1e-5)

	consonant := newTestBlender(a, nil)
	consonant.SetClassifier(fixed(SS))
	require.NoError(t, consonant.Advance(dt60))
	assert.InDelta(t, cfg.ConsonantAttack, consonant.Weights()[SS], 1e-5)

	// Release of a vowel under a consonant dominant is fast...
	vowel.SetClassifier(fixed(SS))
	before := vowel.Weights()[AA]
	require.NoError(t, vowel.Advance(dt60))
	assert.InDelta(t, before*(1-cfg.ConsonantRelease), vowel.Weights()[AA], 1e-5)

	// ...and slow under a vowel dominant.
	vowel.SetClassifier(fixed(E))
	before = vowel.Weights()[SS]
	require.NoError(t, vowel.Advance(dt60))
	assert.InDelta(t, before*(1-cfg.VowelRelease), vowel.Weights()[SS], 1e-5)
}

func TestBlender_SilenceUsesConsonantRates(t *testing.T) {
	a := &stubAnalyzer{sample: quiet, ok: true}
	b := newTestBlender(a, nil)
	require.NoError(t, b.Advance(dt60))
	assert.Equal(t, Sil, b.Dominant())
	assert.InDelta(t, DefaultConfig().ConsonantAttack, b.Weights()[Sil], 1e-5)
}

func TestBlender_FrameRateIndependent(t *testing.T) {
	fast := newTestBlender(&stubAnalyzer{sample: openVowel, ok: true}, nil)
	slow := newTestBlender(&stubAnalyzer{sample: openVowel, ok: true}, nil)
	fast.SetClassifier(fixed(AA))
	slow.SetClassifier(fixed(AA))

	for i := 0; i < 4; i++ {
		require.NoError(t, fast.Advance(dt60))
	}
	require.NoError(t, slow.Advance(4*dt60))

	assert.InDelta(t, fast.Weights()[AA], slow.Weights()[AA], 1e-4)
}

func TestBlender_NoSampleHoldsWeights(t *testing.T) {
	a := &stubAnalyzer{sample: openVowel, ok: true}
	calls := 0
	b := newTestBlender(a, SinkFunc(func(Weights) { calls++ }))

	require.NoError(t, b.Advance(dt60))
	held := b.Weights()
	require.Equal(t, 1, calls)

	a.ok = false
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Advance(dt60))
	}
	assert.Equal(t, held, b.Weights())
	assert.Equal(t, 1, calls, "sink is not called without a sample")
}

func TestBlender_TieStability(t *testing.T) {
	a := &stubAnalyzer{sample: openVowel, ok: true}
	b := newTestBlender(a, nil)

	b.SetClassifier(fixed(O))
	require.NoError(t, b.Advance(dt60))
	require.Equal(t, O, b.Dominant())

	b.SetClassifier(func(Sample, Sample, float32, float32) Scores {
		return Scores{AA: 0.7, O: 0.7}
	})
	for i := 0; i < 30; i++ {
		require.NoError(t, b.Advance(dt60))
		assert.Equal(t, O, b.Dominant())
	}
}

func TestBlender_AverageSeededByFirstSample(t *testing.T) {
	a := &stubAnalyzer{sample: openVowel, ok: true}
	b := newTestBlender(a, nil)
	require.NoError(t, b.Advance(dt60))
	assert.Equal(t, openVowel, b.Average())

	a.sample = hiss
	require.NoError(t, b.Advance(dt60))
	r := DefaultConfig().AverageRate
	assert.InDelta(t, openVowel.Volume+(hiss.Volume-openVowel.Volume)*r, b.Average().Volume, 1e-6)
	assert.Equal(t, hiss, b.LastSample())
}

func TestBlender_SinkGetsFullWeights(t *testing.T) {
	a := &stubAnalyzer{sample: openVowel, ok: true}
	var got Weights
	b := newTestBlender(a, SinkFunc(func(w Weights) { got = w }))
	require.NoError(t, b.Advance(dt60))
	assert.Equal(t, b.Weights(), got)
	assert.Len(t, got.Map(), int(Count))

	b.Reset()
	assert.Equal(t, Weights{}, got)
	assert.Equal(t, Sil, b.Dominant())
}

func TestViseme_Names(t *testing.T) {
	for _, v := range All() {
		parsed, ok := Parse(v.String())
		require.True(t, ok, v.String())
		assert.Equal(t, v, parsed)
	}
	v, ok := Parse("AA")
	assert.True(t, ok)
	assert.Equal(t, AA, v)
	_, ok = Parse("zz")
	assert.False(t, ok)

	assert.True(t, AA.IsVowel())
	assert.False(t, Sil.IsVowel())
	assert.False(t, PP.IsVowel())
	assert.Equal(t, "viseme(99)", Viseme(99).String())
}

func TestWeights_Dominant(t *testing.T) {
	assert.Equal(t, Sil, Weights{}.Dominant())
	assert.Equal(t, O, Weights{AA: 0.2, O: 0.6}.Dominant())
}
