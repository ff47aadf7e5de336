// Package emotion names the avatar's moods and maps each one to a clip.
package emotion

import "strings"

// Emotion is a named mood. Values outside the known set are kept as-is.
type Emotion string

const (
	Neutral   Emotion = "neutral"
	Happy     Emotion = "happy"
	Sad       Emotion = "sad"
	Angry     Emotion = "angry"
	Surprised Emotion = "surprised"
	Confused  Emotion = "confused"
)

var known = []Emotion{Neutral, Happy, Sad, Angry, Surprised, Confused}

var labels = map[Emotion]string{
	Neutral:   "Neutral",
	Happy:     "Happy",
	Sad:       "Sad",
	Angry:     "Angry",
	Surprised: "Surprised",
	Confused:  "Confused",
}

// All returns the known emotions in display order.
func All() []Emotion {
	out := make([]Emotion, len(known))
	copy(out, known)
	return out
}

// Parse normalizes s. Unknown names come back unchanged and ok is false.
// An empty string is Neutral.
func Parse(s string) (Emotion, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	if norm == "" {
		return Neutral, true
	}
	e := Emotion(norm)
	_, ok := labels[e]
	if !ok {
		return Emotion(strings.TrimSpace(s)), false
	}
	return e, true
}

func (e Emotion) String() string { return string(e) }

// Label is the display name, or the raw value for unknown emotions.
func (e Emotion) Label() string {
	if l, ok := labels[e]; ok {
		return l
	}
	return string(e)
}

// Known reports whether e is one of the built-in emotions.
func (e Emotion) Known() bool {
	_, ok := labels[e]
	return ok
}
