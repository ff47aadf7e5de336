package avatar

import (
	"github.com/normanking/avatarcore/internal/animation"
	"github.com/normanking/avatarcore/internal/emotion"
	"github.com/normanking/avatarcore/internal/viseme"
)

// State is a point-in-time view of a character, safe to marshal.
type State struct {
	ID         string             `json:"id"`
	Spawned    bool               `json:"spawned"`
	Emotion    emotion.Emotion    `json:"emotion"`
	Animation  string             `json:"animation"`
	ActiveClip string             `json:"activeClip,omitempty"`
	Pending    string             `json:"pending,omitempty"`
	ClipWeight map[string]float32 `json:"clipWeights,omitempty"`
	IsSpeaking bool               `json:"isSpeaking"`
	SpeechText string             `json:"speechText,omitempty"`
	MouthShape string             `json:"mouthShape"`
	Visemes    map[string]float32 `json:"visemes,omitempty"`
}

// IsAnimating reports whether a cross-fade is running.
func (s State) IsAnimating() bool {
	return s.Animation == animation.StateTransitioning.String()
}

// Status is the one-line summary shown to users: the emotion label while a
// cross-fade runs or when silent, otherwise the text being spoken.
func (s State) Status() string {
	if !s.IsAnimating() && s.IsSpeaking && s.SpeechText != "" {
		return s.SpeechText
	}
	return s.Emotion.Label()
}

func mouthShape(w viseme.Weights) string {
	return w.Dominant().String()
}
