package morph

import (
	"fmt"
	"strings"

	"github.com/normanking/avatarcore/internal/viseme"
)

// Scheme names viseme weights in a rig's morph-target vocabulary.
type Scheme interface {
	Name() string
	// Expand writes the named weights for w into out.
	Expand(w viseme.Weights, out map[string]float32)
}

// SchemeOculus targets rigs with one morph per viseme (viseme_aa, viseme_PP,
// ...), the Ready Player Me layout.
var SchemeOculus Scheme = oculusScheme{}

// SchemeARKit spreads visemes over the ARKit mouth blendshapes.
var SchemeARKit Scheme = arkitScheme{}

type oculusScheme struct{}

func (oculusScheme) Name() string { return "oculus" }

func (oculusScheme) Expand(w viseme.Weights, out map[string]float32) {
	for v := viseme.Viseme(0); v < viseme.Count; v++ {
		out[OculusTarget(v)] = w[v]
	}
}

// OculusTarget is the morph-target name of v on a viseme rig.
func OculusTarget(v viseme.Viseme) string {
	return "viseme_" + v.String()
}

type arkitScheme struct{}

func (arkitScheme) Name() string { return "arkit" }

func (arkitScheme) Expand(w viseme.Weights, out map[string]float32) {
	var bw BlendshapeWeights
	bw.AddVisemes(w)
	for _, b := range mouthShapes {
		out[b.String()] = bw[b]
	}
}

// ParseScheme resolves a configured scheme name.
func ParseScheme(name string) (Scheme, error) {
	switch strings.ToLower(name) {
	case "", "oculus":
		return SchemeOculus, nil
	case "arkit":
		return SchemeARKit, nil
	}
	return nil, fmt.Errorf("unknown morph scheme %q", name)
}
