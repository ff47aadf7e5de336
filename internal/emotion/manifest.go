package emotion

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest lists the model and the clip for each emotion.
//
//	model: models/ybot.glb
//	clips:
//	  neutral: clips/idle.glb
//	  happy: clips/emotes.glb#Happy
//	  sad: ""
type Manifest struct {
	Model string             `yaml:"model"`
	Scale float32            `yaml:"scale"`
	Clips map[Emotion]string `yaml:"clips"`
}

// ClipSource receives clip paths. animation.Controller satisfies it.
type ClipSource interface {
	SetClipSource(name, path string) <-chan error
}

// ParseManifest decodes YAML. Relative paths are resolved against dir.
func ParseManifest(data []byte, dir string) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Scale == 0 {
		m.Scale = 1
	}

	clips := make(map[Emotion]string, len(m.Clips))
	for name, path := range m.Clips {
		e, _ := Parse(string(name))
		clips[e] = resolve(dir, path)
	}
	m.Clips = clips
	m.Model = resolve(dir, m.Model)
	return &m, nil
}

// LoadManifest reads a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data, filepath.Dir(path))
}

func resolve(dir, path string) string {
	path = strings.TrimSpace(path)
	if path == "" || dir == "" || filepath.IsAbs(path) {
		return path
	}
	// Keep any "#clip" suffix attached.
	return filepath.Join(dir, path)
}

// Entries returns emotions with a clip path: known emotions in display
// order, then the rest sorted.
func (m *Manifest) Entries() []Emotion {
	var out, extra []Emotion
	for _, e := range known {
		if m.Clips[e] != "" {
			out = append(out, e)
		}
	}
	for e, path := range m.Clips {
		if !e.Known() && path != "" {
			extra = append(extra, e)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}

// Apply registers every non-blank clip with src and returns the load
// results keyed by emotion.
func (m *Manifest) Apply(src ClipSource) map[Emotion]<-chan error {
	results := make(map[Emotion]<-chan error)
	for _, e := range m.Entries() {
		results[e] = src.SetClipSource(e.String(), m.Clips[e])
	}
	return results
}
