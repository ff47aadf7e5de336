package morph

import "github.com/normanking/avatarcore/internal/viseme"

// Blendshape indexes the 52 ARKit face blendshapes.
type Blendshape int

const (
	BrowDownLeft Blendshape = iota
	BrowDownRight
	BrowInnerUp
	BrowOuterUpLeft
	BrowOuterUpRight
	CheekPuff
	CheekSquintLeft
	CheekSquintRight
	EyeBlinkLeft
	EyeBlinkRight
	EyeLookDownLeft
	EyeLookDownRight
	EyeLookInLeft
	EyeLookInRight
	EyeLookOutLeft
	EyeLookOutRight
	EyeLookUpLeft
	EyeLookUpRight
	EyeSquintLeft
	EyeSquintRight
	EyeWideLeft
	EyeWideRight
	JawForward
	JawLeft
	JawOpen
	JawRight
	MouthClose
	MouthDimpleLeft
	MouthDimpleRight
	MouthFrownLeft
	MouthFrownRight
	MouthFunnel
	MouthLeft
	MouthLowerDownLeft
	MouthLowerDownRight
	MouthPressLeft
	MouthPressRight
	MouthPucker
	MouthRight
	MouthRollLower
	MouthRollUpper
	MouthShrugLower
	MouthShrugUpper
	MouthSmileLeft
	MouthSmileRight
	MouthStretchLeft
	MouthStretchRight
	MouthUpperUpLeft
	MouthUpperUpRight
	NoseSneerLeft
	NoseSneerRight
	TongueOut
	BlendshapeCount
)

var BlendshapeNames = [BlendshapeCount]string{
	"browDownLeft",
	"browDownRight",
	"browInnerUp",
	"browOuterUpLeft",
	"browOuterUpRight",
	"cheekPuff",
	"cheekSquintLeft",
	"cheekSquintRight",
	"eyeBlinkLeft",
	"eyeBlinkRight",
	"eyeLookDownLeft",
	"eyeLookDownRight",
	"eyeLookInLeft",
	"eyeLookInRight",
	"eyeLookOutLeft",
	"eyeLookOutRight",
	"eyeLookUpLeft",
	"eyeLookUpRight",
	"eyeSquintLeft",
	"eyeSquintRight",
	"eyeWideLeft",
	"eyeWideRight",
	"jawForward",
	"jawLeft",
	"jawOpen",
	"jawRight",
	"mouthClose",
	"mouthDimpleLeft",
	"mouthDimpleRight",
	"mouthFrownLeft",
	"mouthFrownRight",
	"mouthFunnel",
	"mouthLeft",
	"mouthLowerDownLeft",
	"mouthLowerDownRight",
	"mouthPressLeft",
	"mouthPressRight",
	"mouthPucker",
	"mouthRight",
	"mouthRollLower",
	"mouthRollUpper",
	"mouthShrugLower",
	"mouthShrugUpper",
	"mouthSmileLeft",
	"mouthSmileRight",
	"mouthStretchLeft",
	"mouthStretchRight",
	"mouthUpperUpLeft",
	"mouthUpperUpRight",
	"noseSneerLeft",
	"noseSneerRight",
	"tongueOut",
}

func (b Blendshape) String() string {
	if b < 0 || b >= BlendshapeCount {
		return ""
	}
	return BlendshapeNames[b]
}

// BlendshapeFromName returns -1 for unknown names.
func BlendshapeFromName(name string) Blendshape {
	for i, n := range BlendshapeNames {
		if n == name {
			return Blendshape(i)
		}
	}
	return -1
}

type blendshapeShare struct {
	shape  Blendshape
	weight float32
}

// visemeShapes spreads each viseme over the mouth blendshapes.
var visemeShapes = [viseme.Count][]blendshapeShare{
	viseme.Sil: {},
	viseme.PP:  {{MouthClose, 0.8}, {MouthPucker, 0.3}},
	viseme.FF:  {{MouthFunnel, 0.5}, {MouthLowerDownLeft, 0.2}, {MouthLowerDownRight, 0.2}},
	viseme.TH:  {{MouthFunnel, 0.3}, {TongueOut, 0.4}},
	viseme.DD:  {{JawOpen, 0.2}, {MouthUpperUpLeft, 0.2}, {MouthUpperUpRight, 0.2}},
	viseme.KK:  {{JawOpen, 0.25}, {MouthStretchLeft, 0.2}, {MouthStretchRight, 0.2}},
	viseme.CH:  {{MouthFunnel, 0.4}, {MouthPucker, 0.3}},
	viseme.SS:  {{MouthStretchLeft, 0.3}, {MouthStretchRight, 0.3}},
	viseme.NN:  {{JawOpen, 0.15}, {MouthClose, 0.3}},
	viseme.RR:  {{MouthPucker, 0.4}, {MouthFunnel, 0.2}},
	viseme.AA:  {{JawOpen, 0.6}, {MouthStretchLeft, 0.2}, {MouthStretchRight, 0.2}},
	viseme.E:   {{JawOpen, 0.3}, {MouthSmileLeft, 0.3}, {MouthSmileRight, 0.3}},
	viseme.I:   {{JawOpen, 0.2}, {MouthSmileLeft, 0.4}, {MouthSmileRight, 0.4}},
	viseme.O:   {{JawOpen, 0.4}, {MouthFunnel, 0.5}, {MouthPucker, 0.3}},
	viseme.U:   {{JawOpen, 0.25}, {MouthPucker, 0.6}, {MouthFunnel, 0.4}},
}

// mouthShapes is every blendshape a viseme can drive, in index order.
var mouthShapes = func() []Blendshape {
	var used [BlendshapeCount]bool
	for _, shares := range visemeShapes {
		for _, s := range shares {
			used[s.shape] = true
		}
	}
	var out []Blendshape
	for b := Blendshape(0); b < BlendshapeCount; b++ {
		if used[b] {
			out = append(out, b)
		}
	}
	return out
}()

// BlendshapeWeights is a full ARKit weight set.
type BlendshapeWeights [BlendshapeCount]float32

func (w *BlendshapeWeights) Set(b Blendshape, value float32) {
	w[b] = clamp(value, 0, 1)
}

func (w *BlendshapeWeights) Get(b Blendshape) float32 {
	return w[b]
}

// AddVisemes accumulates every viseme's share of each mouth blendshape.
func (w *BlendshapeWeights) AddVisemes(vw viseme.Weights) {
	for v, shares := range visemeShapes {
		weight := vw[v]
		if weight <= 0 {
			continue
		}
		for _, s := range shares {
			w.Set(s.shape, w[s.shape]+s.weight*weight)
		}
	}
}
