package viseme

import "math"

// Scores is the per-viseme classification result for one sample.
type Scores [Count]float32

// Classifier scores a sample against the running average.
type Classifier func(sample, avg Sample, volumeDiff, centroidDiff float32) Scores

// Pick applies the consistency bonus to prev and returns the arg-max.
// Scores within eps of the best count as ties, which go to prev, then
// silence, then the earliest viseme.
func (s Scores) Pick(prev Viseme, bonus, eps float32) Viseme {
	adj := s
	if prev < Count {
		adj[prev] += bonus
	}

	var best float32 = float32(math.Inf(-1))
	for _, v := range adj {
		if v > best {
			best = v
		}
	}

	tied := func(v Viseme) bool { return best-adj[v] <= eps }
	if prev < Count && tied(prev) {
		return prev
	}
	if tied(Sil) {
		return Sil
	}
	for v := Viseme(0); v < Count; v++ {
		if tied(v) {
			return v
		}
	}
	return Sil
}

// profile is the acoustic signature a viseme is scored against.
type profile struct {
	centroid float32 // Hz
	spread   float32 // Hz
	level    float32 // normalized loudness
	onset    float32 // response to sudden loudness
	hiss     float32 // response to brightening
}

var profiles = [Count]profile{
	PP: {centroid: 900, spread: 700, level: 0.35, onset: 0.6},
	FF: {centroid: 4200, spread: 1200, level: 0.25, hiss: 0.2},
	TH: {centroid: 3600, spread: 1000, level: 0.2, hiss: 0.15},
	DD: {centroid: 2000, spread: 900, level: 0.4, onset: 0.4},
	KK: {centroid: 1700, spread: 900, level: 0.45, onset: 0.4},
	CH: {centroid: 3000, spread: 800, level: 0.4, hiss: 0.2},
	SS: {centroid: 5500, spread: 1500, level: 0.3, hiss: 0.3},
	NN: {centroid: 500, spread: 300, level: 0.35},
	RR: {centroid: 1200, spread: 500, level: 0.5},
	AA: {centroid: 1000, spread: 400, level: 0.9},
	E:  {centroid: 1900, spread: 450, level: 0.75},
	I:  {centroid: 2600, spread: 500, level: 0.65},
	O:  {centroid: 650, spread: 250, level: 0.8},
	U:  {centroid: 400, spread: 200, level: 0.6},
}

const levelSpread = 0.3

// NewClassifier returns the band scorer. silence is the RMS level below
// which the mouth closes; full is the RMS level treated as maximum loudness.
func NewClassifier(silence, full float32) Classifier {
	if full <= 0 {
		full = 1
	}
	return func(sample, avg Sample, volumeDiff, centroidDiff float32) Scores {
		var s Scores

		if silence > 0 {
			s[Sil] = clamp((2*silence-sample.Volume)/silence, 0, 1)
		} else if sample.Volume <= 0 {
			s[Sil] = 1
		}

		gate := float32(1)
		if silence > 0 && sample.Volume < silence {
			gate = sample.Volume / silence
		}

		level := clamp(sample.Volume/full, 0, 1)
		onset := clamp(volumeDiff/full*4, 0, 1)
		bright := clamp(centroidDiff/2000, 0, 1)

		for v := PP; v < Count; v++ {
			p := profiles[v]
			score := gauss(sample.Centroid-p.centroid, p.spread) * gauss(level-p.level, levelSpread)
			score += p.onset*onset + p.hiss*bright
			s[v] = score * gate
		}
		return s
	}
}

func gauss(d, spread float32) float32 {
	x := float64(d / spread)
	return float32(math.Exp(-x * x / 2))
}

func clamp(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
