// Package morph writes named weights onto mesh morph-target influences.
package morph

import "sort"

// Mesh is a surface with named morph targets. The influence slice is owned
// by the scene; writers only change its elements.
type Mesh interface {
	ID() string
	MorphTargetDictionary() map[string]int
	MorphTargetInfluences() []float32
}

// Ref is a resolved morph target on one mesh.
type Ref struct {
	MeshID     string
	TargetName string
	Index      int
}

// Surface is an in-memory Mesh for headless scenes.
type Surface struct {
	id         string
	dict       map[string]int
	influences []float32
}

// NewSurface creates a surface whose targets are indexed in the given order.
// Duplicate names keep their first index.
func NewSurface(id string, targets []string) *Surface {
	dict := make(map[string]int, len(targets))
	for i, name := range targets {
		if _, dup := dict[name]; !dup {
			dict[name] = i
		}
	}
	return &Surface{
		id:         id,
		dict:       dict,
		influences: make([]float32, len(targets)),
	}
}

func (s *Surface) ID() string                            { return s.id }
func (s *Surface) MorphTargetDictionary() map[string]int { return s.dict }
func (s *Surface) MorphTargetInfluences() []float32      { return s.influences }

// Influence returns the current weight of a named target.
func (s *Surface) Influence(name string) (float32, bool) {
	i, ok := s.dict[name]
	if !ok {
		return 0, false
	}
	return s.influences[i], true
}

// Targets lists target names in index order.
func (s *Surface) Targets() []string {
	names := make([]string, 0, len(s.dict))
	for n := range s.dict {
		names = append(names, n)
	}
	sort.Slice(names, func(a, b int) bool { return s.dict[names[a]] < s.dict[names[b]] })
	return names
}

// Reset zeroes every influence.
func (s *Surface) Reset() {
	for i := range s.influences {
		s.influences[i] = 0
	}
}
