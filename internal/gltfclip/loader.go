// Package gltfclip reads animation clips and morph surfaces from glTF files.
package gltfclip

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/rs/zerolog"

	"github.com/normanking/avatarcore/internal/animation"
)

var ErrNoAnimation = errors.New("no animation in file")

// Loader implements animation.ClipLoader for .gltf and .glb files. A path
// may select an animation by name with a "#name" suffix; otherwise the first
// animation is used.
type Loader struct {
	Loop   bool
	logger zerolog.Logger
}

func NewLoader(loop bool, logger zerolog.Logger) *Loader {
	return &Loader{
		Loop:   loop,
		logger: logger.With().Str("component", "gltf").Logger(),
	}
}

func (l *Loader) LoadClip(ctx context.Context, path string) (*animation.Clip, error) {
	file, name, _ := strings.Cut(path, "#")

	doc, err := gltf.Open(file)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	anim, err := pickAnimation(doc, name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}

	clip, err := convertAnimation(doc, anim)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	clip.Loop = l.Loop
	if clip.Name == "" {
		clip.Name = file
	}

	l.logger.Debug().
		Str("path", path).
		Int("tracks", len(clip.Tracks)).
		Float32("duration", clip.Duration).
		Msg("Clip decoded")
	return clip, nil
}

func pickAnimation(doc *gltf.Document, name string) (*gltf.Animation, error) {
	if len(doc.Animations) == 0 {
		return nil, ErrNoAnimation
	}
	if name == "" {
		return doc.Animations[0], nil
	}
	for _, a := range doc.Animations {
		if a.Name == name {
			return a, nil
		}
	}
	return nil, fmt.Errorf("animation %q: %w", name, ErrNoAnimation)
}

func convertAnimation(doc *gltf.Document, anim *gltf.Animation) (*animation.Clip, error) {
	clip := &animation.Clip{Name: anim.Name}
	tracks := make(map[int]*animation.Track)
	var order []int

	for _, ch := range anim.Channels {
		if ch.Target.Node == nil || ch.Target.Path == gltf.TRSWeights {
			continue
		}
		if ch.Sampler >= len(anim.Samplers) {
			return nil, fmt.Errorf("channel references missing sampler %d", ch.Sampler)
		}
		sampler := anim.Samplers[ch.Sampler]

		times, err := readFloats(doc, sampler.Input)
		if err != nil {
			return nil, fmt.Errorf("sampler input: %w", err)
		}
		if len(times) == 0 {
			continue
		}
		if end := times[len(times)-1]; end > clip.Duration {
			clip.Duration = end
		}

		node := *ch.Target.Node
		tr, ok := tracks[node]
		if !ok {
			tr = &animation.Track{Node: nodeName(doc, node)}
			tracks[node] = tr
			order = append(order, node)
		}

		cubic := sampler.Interpolation == gltf.InterpolationCubicSpline

		switch ch.Target.Path {
		case gltf.TRSTranslation, gltf.TRSScale:
			values, err := readVec3(doc, sampler.Output)
			if err != nil {
				return nil, fmt.Errorf("sampler output: %w", err)
			}
			values = keyValues(values, len(times), cubic)
			keys := make([]animation.VectorKey, len(times))
			for i := range times {
				keys[i] = animation.VectorKey{Time: times[i], Value: values[i]}
			}
			if ch.Target.Path == gltf.TRSTranslation {
				tr.Translation = keys
			} else {
				tr.Scale = keys
			}

		case gltf.TRSRotation:
			values, err := readQuat(doc, sampler.Output)
			if err != nil {
				return nil, fmt.Errorf("sampler output: %w", err)
			}
			values = keyValues(values, len(times), cubic)
			keys := make([]animation.QuatKey, len(times))
			for i := range times {
				keys[i] = animation.QuatKey{Time: times[i], Value: values[i]}
			}
			tr.Rotation = keys
		}
	}

	for _, node := range order {
		clip.Tracks = append(clip.Tracks, *tracks[node])
	}
	return clip, nil
}

// keyValues picks the keyframe values out of a sampler output. Cubic
// spline outputs carry in-tangent, value and out-tangent per key.
func keyValues[T any](values []T, keys int, cubic bool) []T {
	if cubic && len(values) == keys*3 {
		out := make([]T, keys)
		for i := range out {
			out[i] = values[i*3+1]
		}
		return out
	}
	if len(values) < keys {
		padded := make([]T, keys)
		copy(padded, values)
		return padded
	}
	return values[:keys]
}

func nodeName(doc *gltf.Document, idx int) string {
	if idx < len(doc.Nodes) && doc.Nodes[idx].Name != "" {
		return doc.Nodes[idx].Name
	}
	return fmt.Sprintf("node_%d", idx)
}

func readFloats(doc *gltf.Document, idx int) ([]float32, error) {
	data, err := readAccessor(doc, idx)
	if err != nil {
		return nil, err
	}
	v, ok := data.([]float32)
	if !ok {
		return nil, fmt.Errorf("accessor %d: want float scalars, got %T", idx, data)
	}
	return v, nil
}

func readVec3(doc *gltf.Document, idx int) ([]mgl32.Vec3, error) {
	data, err := readAccessor(doc, idx)
	if err != nil {
		return nil, err
	}
	v, ok := data.([][3]float32)
	if !ok {
		return nil, fmt.Errorf("accessor %d: want float vec3, got %T", idx, data)
	}
	out := make([]mgl32.Vec3, len(v))
	for i, x := range v {
		out[i] = mgl32.Vec3(x)
	}
	return out, nil
}

func readQuat(doc *gltf.Document, idx int) ([]mgl32.Quat, error) {
	data, err := readAccessor(doc, idx)
	if err != nil {
		return nil, err
	}
	v, ok := data.([][4]float32)
	if !ok {
		return nil, fmt.Errorf("accessor %d: want float vec4, got %T", idx, data)
	}
	out := make([]mgl32.Quat, len(v))
	for i, x := range v {
		out[i] = mgl32.Quat{W: x[3], V: mgl32.Vec3{x[0], x[1], x[2]}}.Normalize()
	}
	return out, nil
}

func readAccessor(doc *gltf.Document, idx int) (any, error) {
	if idx < 0 || idx >= len(doc.Accessors) {
		return nil, fmt.Errorf("accessor %d out of range", idx)
	}
	return modeler.ReadAccessor(doc, doc.Accessors[idx], nil)
}
