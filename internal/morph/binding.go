package morph

import "github.com/normanking/avatarcore/internal/viseme"

// VisemeBinding feeds a blender's weights through a scheme into a Sink.
// An optional base, usually the current facial expression, is added under
// the mouth blendshapes.
type VisemeBinding struct {
	sink   *Sink
	scheme Scheme
	meshes []Mesh
	base   func() BlendshapeWeights
	last   viseme.Weights
	buf    map[string]float32
}

func NewVisemeBinding(sink *Sink, scheme Scheme, meshes ...Mesh) *VisemeBinding {
	return &VisemeBinding{
		sink:   sink,
		scheme: scheme,
		meshes: meshes,
		buf:    make(map[string]float32),
	}
}

func (b *VisemeBinding) ApplyVisemes(w viseme.Weights) {
	b.last = w
	clear(b.buf)
	b.scheme.Expand(w, b.buf)
	if b.base != nil {
		base := b.base()
		for _, s := range mouthShapes {
			name := s.String()
			b.buf[name] = clamp(b.buf[name]+base[s], 0, 1)
		}
	}
	b.sink.Apply(b.meshes, b.buf)
}

// Reapply writes the last viseme weights again, picking up a changed base.
func (b *VisemeBinding) Reapply() {
	b.ApplyVisemes(b.last)
}

// SetBase installs fn as the mouth base. nil removes it.
func (b *VisemeBinding) SetBase(fn func() BlendshapeWeights) {
	b.base = fn
}

// SetMeshes replaces the bound meshes.
func (b *VisemeBinding) SetMeshes(meshes ...Mesh) {
	b.meshes = meshes
}

func (b *VisemeBinding) Meshes() []Mesh {
	return b.meshes
}

func (b *VisemeBinding) Scheme() Scheme {
	return b.scheme
}
