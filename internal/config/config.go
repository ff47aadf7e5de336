// Package config provides configuration management for avatarcore
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/normanking/avatarcore/internal/animation"
	"github.com/normanking/avatarcore/internal/audiofeature"
	"github.com/normanking/avatarcore/internal/avatar"
	"github.com/normanking/avatarcore/internal/logging"
	"github.com/normanking/avatarcore/internal/morph"
	"github.com/normanking/avatarcore/internal/speech"
	"github.com/normanking/avatarcore/internal/tick"
	"github.com/normanking/avatarcore/internal/viseme"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Tick      tick.LoopConfig     `mapstructure:"tick"`
	Animation animation.Config    `mapstructure:"animation"`
	Viseme    viseme.Config       `mapstructure:"viseme"`
	Morph     MorphConfig         `mapstructure:"morph"`
	Analyzer  audiofeature.Config `mapstructure:"analyzer"`
	Cache     CacheConfig         `mapstructure:"cache"`
	Speech    SpeechConfig        `mapstructure:"speech"`
	Character CharacterConfig     `mapstructure:"character"`
	Log       logging.Config      `mapstructure:"log"`
}

// MorphConfig configures the morph-target sink
type MorphConfig struct {
	morph.Config `mapstructure:",squash"`
	Scheme       string                 `mapstructure:"scheme"` // oculus or arkit
	Expression   morph.ExpressionConfig `mapstructure:"expression"`
}

// CacheConfig configures the speech response cache
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"` // SQLite file, empty keeps entries in memory
}

// SpeechConfig configures text-to-speech
type SpeechConfig struct {
	Provider string              `mapstructure:"provider"` // openai
	Voice    string              `mapstructure:"voice"`
	Speed    float64             `mapstructure:"speed"`
	OpenAI   speech.OpenAIConfig `mapstructure:"openai"`
}

// CharacterConfig names the character and its assets
type CharacterConfig struct {
	ID        string `mapstructure:"id"`
	Manifest  string `mapstructure:"manifest"`   // YAML clip manifest
	Loop      bool   `mapstructure:"loop"`       // Loop loaded clips
	RemoteURL string `mapstructure:"remote_url"` // SSE control stream, empty disables
	FeedURL   string `mapstructure:"feed_url"`   // Websocket PCM feed, empty disables
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	dir, _ := Dir()
	openai := speech.DefaultOpenAIConfig()
	return &Config{
		Tick:      tick.DefaultLoopConfig(),
		Animation: animation.DefaultConfig(),
		Viseme:    viseme.DefaultConfig(),
		Morph: MorphConfig{
			Config:     morph.DefaultConfig(),
			Scheme:     "oculus",
			Expression: morph.DefaultExpressionConfig(),
		},
		Analyzer: audiofeature.DefaultConfig(),
		Cache: CacheConfig{
			Enabled: true,
			Path:    filepath.Join(dir, "cache", "speech.db"),
		},
		Speech: SpeechConfig{
			Provider: "openai",
			Voice:    speech.VoiceNova,
			Speed:    1.0,
			OpenAI:   *openai,
		},
		Character: CharacterConfig{
			ID:   "avatar",
			Loop: true,
		},
		Log: logging.DefaultConfig(),
	}
}

// CharacterTuning returns the per-layer tuning for avatar.NewCharacter.
func (c *Config) CharacterTuning() avatar.Config {
	return avatar.Config{
		Animation:  c.Animation,
		Viseme:     c.Viseme,
		Morph:      c.Morph.Config,
		Scheme:     c.Morph.Scheme,
		Expression: c.Morph.Expression,
	}
}

// Validate rejects settings the runtime cannot honor.
func (c *Config) Validate() error {
	var errs []error
	if _, err := animation.CurveByName(c.Animation.Curve); err != nil {
		errs = append(errs, err)
	}
	if _, err := morph.ParseScheme(c.Morph.Scheme); err != nil {
		errs = append(errs, err)
	}
	if e := c.Morph.Expression; e.MinBlinkGap > e.MaxBlinkGap {
		errs = append(errs, fmt.Errorf("morph.expression: min_blink_gap %s exceeds max_blink_gap %s", e.MinBlinkGap, e.MaxBlinkGap))
	}
	if c.Animation.CrossfadeDuration < 0 {
		errs = append(errs, errors.New("animation.crossfade_duration must not be negative"))
	}
	if c.Analyzer.WindowSize <= 0 || c.Analyzer.SampleRate <= 0 {
		errs = append(errs, errors.New("analyzer sample_rate and window_size must be positive"))
	}
	if c.Tick.FrameRate <= 0 {
		errs = append(errs, errors.New("tick.frame_rate must be positive"))
	}
	return errors.Join(errs...)
}

// Dir returns the configuration directory path
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".avatarcore"), nil
}

// Store reads, writes and watches one configuration file.
type Store struct {
	v *viper.Viper

	mu       sync.Mutex
	watching bool
	onChange []func(*Config, error)
}

// Open prepares a store for path. An empty path searches ~/.avatarcore
// and the working directory for config.yaml.
func Open(path string) (*Store, error) {
	v := viper.New()
	if err := setDefaults(v, DefaultConfig()); err != nil {
		return nil, err
	}

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		if dir, err := Dir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
	}

	// Environment variable overrides, e.g. AVATARCORE_ANIMATION_CURVE
	v.SetEnvPrefix("AVATARCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Store{v: v}, nil
}

// Load reads the file if there is one and returns the merged config.
func (s *Store) Load() (*Config, error) {
	if err := s.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return s.decode()
}

func (s *Store) decode() (*Config, error) {
	cfg := DefaultConfig()
	if err := s.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Path is the file in use, empty when none was found.
func (s *Store) Path() string {
	return s.v.ConfigFileUsed()
}

// Save writes cfg to path, or to the file in use, or to
// ~/.avatarcore/config.yaml.
func (s *Store) Save(cfg *Config, path string) error {
	if path == "" {
		path = s.v.ConfigFileUsed()
	}
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, "config.yaml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	out := viper.New()
	if err := setDefaults(out, cfg); err != nil {
		return err
	}
	return out.WriteConfigAs(path)
}

// AllSettings returns the merged settings as a nested map.
func (s *Store) AllSettings() map[string]any {
	return s.v.AllSettings()
}

// Watch calls fn with the re-read config each time the file changes.
// A config that fails validation is reported as an error and not applied.
func (s *Store) Watch(fn func(*Config, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onChange = append(s.onChange, fn)
	if s.watching {
		return
	}
	s.watching = true

	s.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := s.decode()

		s.mu.Lock()
		handlers := append([]func(*Config, error){}, s.onChange...)
		s.mu.Unlock()
		for _, h := range handlers {
			h(cfg, err)
		}
	})
	s.v.WatchConfig()
}

// Load is a shortcut for Open(path) followed by Store.Load.
func Load(path string) (*Config, error) {
	s, err := Open(path)
	if err != nil {
		return nil, err
	}
	return s.Load()
}

// setDefaults registers every leaf of cfg as a viper default so that
// environment overrides apply to keys missing from the file.
func setDefaults(v *viper.Viper, cfg *Config) error {
	var tree map[string]any
	if err := mapstructure.Decode(cfg, &tree); err != nil {
		return fmt.Errorf("flatten config: %w", err)
	}
	flatten("", tree, func(key string, value any) {
		if d, ok := value.(time.Duration); ok {
			value = d.String()
		}
		v.SetDefault(key, value)
	})
	return nil
}

func flatten(prefix string, tree map[string]any, set func(string, any)) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok {
			flatten(key, sub, set)
			continue
		}
		set(key, val)
	}
}
