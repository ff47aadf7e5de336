// Package viseme turns a stream of audio feature samples into smoothed
// mouth-shape weights.
package viseme

import (
	"fmt"
	"strings"
	"time"
)

// Viseme is one of the 15 Oculus mouth shapes.
type Viseme uint8

const (
	Sil Viseme = iota
	PP
	FF
	TH
	DD
	KK
	CH
	SS
	NN
	RR
	AA
	E
	I
	O
	U
	Count
)

var names = [Count]string{
	Sil: "sil",
	PP:  "PP",
	FF:  "FF",
	TH:  "TH",
	DD:  "DD",
	KK:  "kk",
	CH:  "CH",
	SS:  "SS",
	NN:  "nn",
	RR:  "RR",
	AA:  "aa",
	E:   "E",
	I:   "I",
	O:   "O",
	U:   "U",
}

func (v Viseme) String() string {
	if v < Count {
		return names[v]
	}
	return fmt.Sprintf("viseme(%d)", uint8(v))
}

// IsVowel reports whether v uses vowel-class interpolation rates.
func (v Viseme) IsVowel() bool {
	switch v {
	case AA, E, I, O, U:
		return true
	}
	return false
}

// Parse resolves the Oculus name of a viseme, ignoring case.
func Parse(s string) (Viseme, bool) {
	for v, n := range names {
		if strings.EqualFold(n, s) {
			return Viseme(v), true
		}
	}
	return Sil, false
}

// All lists every viseme in enum order.
func All() []Viseme {
	out := make([]Viseme, Count)
	for i := range out {
		out[i] = Viseme(i)
	}
	return out
}

// Sample is one analysis frame of the speech audio.
type Sample struct {
	// Volume is the RMS level, 0..1 for full-scale input.
	Volume float32
	// Centroid is the spectral centroid in Hz.
	Centroid  float32
	Timestamp time.Time
}

// Analyzer hands out the most recent sample at most once.
type Analyzer interface {
	PullLatestSample() (Sample, bool)
}

// Weights holds one weight per viseme.
type Weights [Count]float32

// Dominant returns the heaviest viseme, preferring the earlier one on ties.
func (w Weights) Dominant() Viseme {
	best := Sil
	for v := Viseme(1); v < Count; v++ {
		if w[v] > w[best] {
			best = v
		}
	}
	return best
}

// Map returns the weights keyed by viseme name.
func (w Weights) Map() map[string]float32 {
	m := make(map[string]float32, Count)
	for v := Viseme(0); v < Count; v++ {
		m[v.String()] = w[v]
	}
	return m
}

// Sink receives the full weight set every frame a sample arrives.
type Sink interface {
	ApplyVisemes(w Weights)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(w Weights)

func (f SinkFunc) ApplyVisemes(w Weights) { f(w) }
