package gltfclip

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"

	"github.com/normanking/avatarcore/internal/morph"
)

type MorphTarget struct {
	Name           string
	PositionDeltas []mgl32.Vec3
}

// Mesh is a glTF mesh primitive with morph targets, deformed on the CPU.
// It satisfies morph.Mesh through the embedded Surface.
type Mesh struct {
	*morph.Surface
	BasePositions []mgl32.Vec3
	MorphTargets  []MorphTarget
	deformed      []mgl32.Vec3
}

// LoadMeshes reads every mesh that has morph targets. Target names come from
// the mesh's extras.targetNames. IDs are mesh names, suffixed with the mesh
// index when a name repeats.
func LoadMeshes(path string) ([]*Mesh, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}

	var meshes []*Mesh
	seen := make(map[string]bool)
	for mi, gm := range doc.Meshes {
		if len(gm.Primitives) == 0 {
			continue
		}
		prim := gm.Primitives[0]
		if len(prim.Targets) == 0 {
			continue
		}

		mesh := &Mesh{}
		if posIdx, ok := prim.Attributes[gltf.POSITION]; ok {
			mesh.BasePositions, err = readVec3(doc, posIdx)
			if err != nil {
				return nil, fmt.Errorf("mesh %d positions: %w", mi, err)
			}
		}

		for i, target := range prim.Targets {
			mt := MorphTarget{Name: fmt.Sprintf("target_%d", i)}
			if posIdx, ok := target[gltf.POSITION]; ok {
				mt.PositionDeltas, err = readVec3(doc, posIdx)
				if err != nil {
					return nil, fmt.Errorf("mesh %d target %d positions: %w", mi, i, err)
				}
			}
			mesh.MorphTargets = append(mesh.MorphTargets, mt)
		}

		if extras, ok := gm.Extras.(map[string]interface{}); ok {
			if targetNames, ok := extras["targetNames"].([]interface{}); ok {
				for i, name := range targetNames {
					if i < len(mesh.MorphTargets) {
						if strName, ok := name.(string); ok {
							mesh.MorphTargets[i].Name = strName
						}
					}
				}
			}
		}

		id := gm.Name
		if id == "" {
			id = fmt.Sprintf("mesh_%d", mi)
		}
		if seen[id] {
			id = fmt.Sprintf("%s#%d", id, mi)
		}
		seen[id] = true
		names := make([]string, len(mesh.MorphTargets))
		for i, mt := range mesh.MorphTargets {
			names[i] = mt.Name
		}
		mesh.Surface = morph.NewSurface(id, names)
		mesh.deformed = make([]mgl32.Vec3, len(mesh.BasePositions))
		meshes = append(meshes, mesh)
	}
	return meshes, nil
}

// Deform returns the base positions displaced by the current influences.
// The returned slice is reused by the next call.
func (m *Mesh) Deform() []mgl32.Vec3 {
	copy(m.deformed, m.BasePositions)
	influences := m.MorphTargetInfluences()

	for ti, target := range m.MorphTargets {
		if ti >= len(influences) {
			break
		}
		weight := influences[ti]
		if weight < 0.001 {
			continue
		}
		for vi, delta := range target.PositionDeltas {
			if vi < len(m.deformed) {
				m.deformed[vi] = m.deformed[vi].Add(delta.Mul(weight))
			}
		}
	}
	return m.deformed
}

// Surfaces returns the meshes as morph.Mesh values.
func Surfaces(meshes []*Mesh) []morph.Mesh {
	out := make([]morph.Mesh, len(meshes))
	for i, m := range meshes {
		out[i] = m
	}
	return out
}
