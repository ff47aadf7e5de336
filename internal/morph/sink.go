package morph

import (
	"reflect"

	"github.com/rs/zerolog"
)

type Config struct {
	// Smoothing is the fraction of the remaining distance covered per
	// write. 1 passes weights straight through.
	Smoothing float32 `mapstructure:"smoothing"`
	// Writes closer than Epsilon to the current influence are skipped.
	Epsilon float32 `mapstructure:"epsilon"`
}

func DefaultConfig() Config {
	return Config{
		Smoothing: 0.5,
		Epsilon:   1e-4,
	}
}

// Sink applies weight maps to meshes. Name lookups are cached per mesh
// value, including misses, so meshes sharing an ID keep separate tables.
// Not safe for concurrent use.
type Sink struct {
	cfg    Config
	refs   map[any]*meshRefs
	logger zerolog.Logger

	writes  uint64
	skipped uint64
}

func NewSink(cfg Config, logger zerolog.Logger) *Sink {
	return &Sink{
		cfg:    cfg,
		refs:   make(map[any]*meshRefs),
		logger: logger.With().Str("component", "morph").Logger(),
	}
}

type meshRefs struct {
	id  string
	idx map[string]int
}

// refKey is the mesh itself when its type allows it, else its ID.
func refKey(m Mesh) any {
	if reflect.TypeOf(m).Comparable() {
		return m
	}
	return m.ID()
}

func (s *Sink) SetConfig(cfg Config) {
	s.cfg = cfg
}

// Resolve looks name up on m. The result is cached until Invalidate.
func (s *Sink) Resolve(m Mesh, name string) (Ref, bool) {
	key := refKey(m)
	refs, ok := s.refs[key]
	if !ok {
		refs = &meshRefs{id: m.ID(), idx: make(map[string]int)}
		s.refs[key] = refs
	}
	id, cache := refs.id, refs.idx

	idx, ok := cache[name]
	if !ok {
		idx = -1
		if i, found := m.MorphTargetDictionary()[name]; found {
			idx = i
		} else {
			s.logger.Debug().Str("mesh", id).Str("target", name).Msg("Morph target not on mesh")
		}
		cache[name] = idx
	}
	if idx < 0 {
		return Ref{}, false
	}
	return Ref{MeshID: id, TargetName: name, Index: idx}, true
}

// Apply eases every mesh's named influences toward weights. Names a mesh
// lacks are skipped.
func (s *Sink) Apply(meshes []Mesh, weights map[string]float32) {
	smoothing := clamp(s.cfg.Smoothing, 0, 1)
	for _, m := range meshes {
		if m == nil {
			continue
		}
		influences := m.MorphTargetInfluences()
		for name, w := range weights {
			ref, ok := s.Resolve(m, name)
			if !ok || ref.Index >= len(influences) {
				continue
			}

			cur := influences[ref.Index]
			target := clamp(w, 0, 1)
			if abs(target-cur) < s.cfg.Epsilon {
				s.skipped++
				continue
			}
			next := cur + (target-cur)*smoothing
			if abs(target-next) < s.cfg.Epsilon {
				next = target
			}
			influences[ref.Index] = next
			s.writes++
		}
	}
}

// Invalidate drops the cached lookups for every mesh with meshID.
func (s *Sink) Invalidate(meshID string) {
	for key, refs := range s.refs {
		if refs.id == meshID {
			delete(s.refs, key)
		}
	}
}

// Stats returns the number of influence writes made and skipped.
func (s *Sink) Stats() (writes, skipped uint64) {
	return s.writes, s.skipped
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

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
