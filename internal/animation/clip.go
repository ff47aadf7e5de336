package animation

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
)

type VectorKey struct {
	Time  float32
	Value mgl32.Vec3
}

type QuatKey struct {
	Time  float32
	Value mgl32.Quat
}

// Track animates one node. Channels without keys leave the node's
// corresponding component at identity.
type Track struct {
	Node        string
	Translation []VectorKey
	Rotation    []QuatKey
	Scale       []VectorKey
}

// Clip is loaded keyframe data, shared read-only by the actions playing it.
type Clip struct {
	Name     string
	Duration float32
	Loop     bool
	Tracks   []Track
}

// WrapTime maps a playhead time onto the clip's timeline: looping clips wrap,
// one-shot clips hold their last frame.
func (c *Clip) WrapTime(t float32) float32 {
	if c.Duration <= 0 {
		return 0
	}
	if c.Loop {
		w := float32(math.Mod(float64(t), float64(c.Duration)))
		if w < 0 {
			w += c.Duration
		}
		return w
	}
	return clamp(t, 0, c.Duration)
}

// Sample evaluates every track at playhead time t.
func (c *Clip) Sample(t float32) Pose {
	t = c.WrapTime(t)
	pose := make(Pose, len(c.Tracks))
	for i := range c.Tracks {
		tr := &c.Tracks[i]
		xf := IdentityTransform()
		if len(tr.Translation) > 0 {
			xf.Translation = sampleVec(tr.Translation, t)
		}
		if len(tr.Rotation) > 0 {
			xf.Rotation = sampleQuat(tr.Rotation, t)
		}
		if len(tr.Scale) > 0 {
			xf.Scale = sampleVec(tr.Scale, t)
		}
		pose[tr.Node] = xf
	}
	return pose
}

func sampleVec(keys []VectorKey, t float32) mgl32.Vec3 {
	i := sort.Search(len(keys), func(i int) bool { return keys[i].Time > t })
	if i == 0 {
		return keys[0].Value
	}
	if i >= len(keys) {
		return keys[len(keys)-1].Value
	}
	a, b := keys[i-1], keys[i]
	span := b.Time - a.Time
	if span <= 0 {
		return b.Value
	}
	return lerpVec(a.Value, b.Value, (t-a.Time)/span)
}

func sampleQuat(keys []QuatKey, t float32) mgl32.Quat {
	i := sort.Search(len(keys), func(i int) bool { return keys[i].Time > t })
	if i == 0 {
		return keys[0].Value
	}
	if i >= len(keys) {
		return keys[len(keys)-1].Value
	}
	a, b := keys[i-1], keys[i]
	span := b.Time - a.Time
	if span <= 0 {
		return b.Value
	}
	return slerp(a.Value, b.Value, (t-a.Time)/span)
}

// Transform is a node's local TRS.
type Transform struct {
	Translation mgl32.Vec3
	Rotation    mgl32.Quat
	Scale       mgl32.Vec3
}

func IdentityTransform() Transform {
	return Transform{
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

// Mat4 composes the transform as T * R * S.
func (t Transform) Mat4() mgl32.Mat4 {
	m := mgl32.Translate3D(t.Translation[0], t.Translation[1], t.Translation[2])
	m = m.Mul4(t.Rotation.Mat4())
	return m.Mul4(mgl32.Scale3D(t.Scale[0], t.Scale[1], t.Scale[2]))
}

// Pose is a sampled body pose keyed by node name.
type Pose map[string]Transform

// BlendPoses mixes poses by weight. Weights need not sum to one; nodes are
// normalized by the total weight of the poses that animate them. Poses with
// zero weight are ignored.
func BlendPoses(poses []Pose, weights []float32) Pose {
	type acc struct {
		t, s mgl32.Vec3
		r    mgl32.Quat
		w    float32
	}
	sums := make(map[string]*acc)

	for i, p := range poses {
		w := weights[i]
		if w <= 0 {
			continue
		}
		for node, xf := range p {
			a, ok := sums[node]
			if !ok {
				sums[node] = &acc{
					t: xf.Translation.Mul(w),
					s: xf.Scale.Mul(w),
					r: xf.Rotation,
					w: w,
				}
				continue
			}
			a.t = a.t.Add(xf.Translation.Mul(w))
			a.s = a.s.Add(xf.Scale.Mul(w))
			a.r = slerp(a.r, xf.Rotation, w/(a.w+w))
			a.w += w
		}
	}

	result := make(Pose, len(sums))
	for node, a := range sums {
		result[node] = Transform{
			Translation: a.t.Mul(1 / a.w),
			Rotation:    a.r.Normalize(),
			Scale:       a.s.Mul(1 / a.w),
		}
	}
	return result
}

func lerpVec(a, b mgl32.Vec3, t float32) mgl32.Vec3 {
	return a.Add(b.Sub(a).Mul(t))
}

// slerp takes the short way round.
func slerp(a, b mgl32.Quat, t float32) mgl32.Quat {
	if a.Dot(b) < 0 {
		b = b.Scale(-1)
	}
	return mgl32.QuatSlerp(a, b, t)
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
