package viseme

import (
	"math"

	"github.com/rs/zerolog"
)

// Config tunes classification and interpolation. Rates are per-frame
// fractions at ReferenceFPS and are rescaled for the actual dt.
type Config struct {
	AverageRate      float32 `mapstructure:"average_rate"`
	ConsistencyBonus float32 `mapstructure:"consistency_bonus"`
	TieEpsilon       float32 `mapstructure:"tie_epsilon"`

	VowelAttack      float32 `mapstructure:"vowel_attack"`
	VowelRelease     float32 `mapstructure:"vowel_release"`
	ConsonantAttack  float32 `mapstructure:"consonant_attack"`
	ConsonantRelease float32 `mapstructure:"consonant_release"`

	SilenceVolume float32 `mapstructure:"silence_volume"`
	FullVolume    float32 `mapstructure:"full_volume"`
	ReferenceFPS  float32 `mapstructure:"reference_fps"`
}

func DefaultConfig() Config {
	return Config{
		AverageRate:      0.05,
		ConsistencyBonus: 0.1,
		TieEpsilon:       1e-4,
		VowelAttack:      0.6,
		VowelRelease:     0.1,
		ConsonantAttack:  0.3,
		ConsonantRelease: 0.45,
		SilenceVolume:    0.02,
		FullVolume:       0.3,
		ReferenceFPS:     60,
	}
}

// Blender classifies the dominant viseme every frame and eases all weights
// toward it: the dominant toward 1, the rest toward 0.
type Blender struct {
	cfg      Config
	analyzer Analyzer
	sink     Sink
	classify Classifier
	logger   zerolog.Logger

	weights  Weights
	dominant Viseme
	avg      Sample
	last     Sample
	seeded   bool
}

// NewBlender creates a blender reading from analyzer. sink may be nil.
func NewBlender(analyzer Analyzer, sink Sink, cfg Config, logger zerolog.Logger) *Blender {
	return &Blender{
		cfg:      cfg,
		analyzer: analyzer,
		sink:     sink,
		classify: NewClassifier(cfg.SilenceVolume, cfg.FullVolume),
		logger:   logger.With().Str("component", "viseme").Logger(),
		dominant: Sil,
	}
}

// SetClassifier replaces the band scorer.
func (b *Blender) SetClassifier(c Classifier) {
	b.classify = c
}

// SetConfig swaps the tuning. A custom classifier is kept.
func (b *Blender) SetConfig(cfg Config) {
	rebuild := b.cfg.SilenceVolume != cfg.SilenceVolume || b.cfg.FullVolume != cfg.FullVolume
	b.cfg = cfg
	if rebuild {
		b.classify = NewClassifier(cfg.SilenceVolume, cfg.FullVolume)
	}
}

func (b *Blender) SetSink(s Sink) {
	b.sink = s
}

func (b *Blender) Advance(dt float32) error {
	sample, ok := b.analyzer.PullLatestSample()
	if !ok {
		return nil
	}
	b.last = sample

	if !b.seeded {
		b.avg = sample
		b.seeded = true
	} else {
		r := clamp(b.cfg.AverageRate, 0, 1)
		b.avg.Volume += (sample.Volume - b.avg.Volume) * r
		b.avg.Centroid += (sample.Centroid - b.avg.Centroid) * r
		b.avg.Timestamp = sample.Timestamp
	}

	volumeDiff := sample.Volume - b.avg.Volume
	centroidDiff := sample.Centroid - b.avg.Centroid

	scores := b.classify(sample, b.avg, volumeDiff, centroidDiff)
	next := scores.Pick(b.dominant, b.cfg.ConsistencyBonus, b.cfg.TieEpsilon)
	if next != b.dominant {
		b.logger.Trace().Str("from", b.dominant.String()).Str("to", next.String()).Msg("Dominant viseme changed")
		b.dominant = next
	}

	attack, release := b.cfg.ConsonantAttack, b.cfg.ConsonantRelease
	if next.IsVowel() {
		attack, release = b.cfg.VowelAttack, b.cfg.VowelRelease
	}
	fa := b.factor(attack, dt)
	fr := b.factor(release, dt)

	for v := Viseme(0); v < Count; v++ {
		if v == next {
			b.weights[v] += (1 - b.weights[v]) * fa
		} else {
			b.weights[v] -= b.weights[v] * fr
		}
	}

	if b.sink != nil {
		b.sink.ApplyVisemes(b.weights)
	}
	return nil
}

// factor converts a per-reference-frame rate into the fraction for dt.
// The result is in [0,1], so weights never overshoot their target.
func (b *Blender) factor(rate, dt float32) float32 {
	rate = clamp(rate, 0, 1)
	if dt <= 0 {
		return 0
	}
	fps := b.cfg.ReferenceFPS
	if fps <= 0 {
		fps = 60
	}
	f := 1 - math.Pow(float64(1-rate), float64(dt*fps))
	return clamp(float32(f), 0, 1)
}

func (b *Blender) Weights() Weights {
	return b.weights
}

func (b *Blender) Dominant() Viseme {
	return b.dominant
}

// Average returns the running baseline sample.
func (b *Blender) Average() Sample {
	return b.avg
}

// LastSample returns the most recently consumed sample.
func (b *Blender) LastSample() Sample {
	return b.last
}

// Reset returns to a closed mouth and forgets the baseline.
func (b *Blender) Reset() {
	b.weights = Weights{}
	b.dominant = Sil
	b.avg = Sample{}
	b.last = Sample{}
	b.seeded = false
	if b.sink != nil {
		b.sink.ApplyVisemes(b.weights)
	}
}
