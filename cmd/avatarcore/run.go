package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/normanking/avatarcore/internal/audiofeature"
	"github.com/normanking/avatarcore/internal/avatar"
	"github.com/normanking/avatarcore/internal/bus"
	"github.com/normanking/avatarcore/internal/config"
	"github.com/normanking/avatarcore/internal/emotion"
	"github.com/normanking/avatarcore/internal/gltfclip"
	"github.com/normanking/avatarcore/internal/speech"
	"github.com/normanking/avatarcore/internal/tick"
)

type runOptions struct {
	manifest string
	pcm      string
	say      string
	emotion  string
	frames   int
	verbose  bool
}

func newRunCmd(load loadFunc) *cobra.Command {
	var opts runOptions

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the character headlessly",
		Long: `Run loads the clip manifest, spawns the character and drives frames.
With --frames it steps that many fixed 60 fps frames and exits; otherwise it
runs in real time until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := load()
			if err != nil {
				return err
			}
			return run(cmd.Context(), store, cfg, opts, cmd)
		},
	}

	runCmd.Flags().StringVarP(&opts.manifest, "manifest", "m", "", "clip manifest (overrides character.manifest)")
	runCmd.Flags().StringVar(&opts.pcm, "pcm", "", "16-bit mono PCM file to play into the analyzer")
	runCmd.Flags().StringVar(&opts.say, "say", "", "text to speak once spawned")
	runCmd.Flags().StringVarP(&opts.emotion, "emotion", "e", "", "emotion to show once spawned")
	runCmd.Flags().IntVarP(&opts.frames, "frames", "n", 0, "step this many frames and exit")
	runCmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	return runCmd
}

// headlessScene stands in for a renderer and only records what was added.
type headlessScene struct {
	logger  zerolog.Logger
	objects []any
}

func (s *headlessScene) AddToScene(object any) {
	s.objects = append(s.objects, object)
	s.logger.Info().Str("object", fmt.Sprint(object)).Msg("Added to scene")
}

// deformer applies morph influences to the CPU copies of the face meshes.
type deformer struct {
	meshes []*gltfclip.Mesh
}

func (d *deformer) Advance(float32) error {
	for _, m := range d.meshes {
		m.Deform()
	}
	return nil
}

func run(ctx context.Context, store *config.Store, cfg *config.Config, opts runOptions, cmd *cobra.Command) error {
	syslog, err := newLogger(cfg, opts.verbose)
	if err != nil {
		return err
	}
	defer syslog.Close()
	logger := syslog.Zerolog()

	events := bus.NewEventBus()
	events.SubscribeMultiple([]bus.EventType{
		bus.EventTypeEmotionChanged,
		bus.EventTypeClipFailed,
		bus.EventTypeSpeechStarted,
		bus.EventTypeSpeechStopped,
	}, func(e bus.Event) {
		logger.Debug().Str("component", "bus").Str("event", string(e.Type)).Interface("data", e.Data).Msg("Event")
	})

	responses, err := openCache(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer responses.Close()

	analyzer := audiofeature.NewAnalyzer(cfg.Analyzer)
	player := audiofeature.NewPlayer(analyzer, cfg.Analyzer.SampleRate, logger)

	var speaker avatar.Speaker
	provider := speech.NewOpenAIProvider(logger, &cfg.Speech.OpenAI)
	if provider.IsAvailable() {
		speaker = speech.NewSpeaker(provider, responses, player, events,
			speech.Config{Voice: cfg.Speech.Voice, Speed: cfg.Speech.Speed}, logger)
	} else {
		logger.Warn().Msg("OPENAI_API_KEY not set, speech disabled")
	}

	manifestPath := opts.manifest
	if manifestPath == "" {
		manifestPath = cfg.Character.Manifest
	}
	var manifest *emotion.Manifest
	if manifestPath != "" {
		if manifest, err = emotion.LoadManifest(manifestPath); err != nil {
			return err
		}
	}

	var faces []*gltfclip.Mesh
	if manifest != nil && isGLTF(manifest.Model) {
		if faces, err = gltfclip.LoadMeshes(manifest.Model); err != nil {
			return fmt.Errorf("load meshes: %w", err)
		}
	}

	character, err := avatar.NewCharacter(avatar.Options{
		ID:       cfg.Character.ID,
		Meshes:   gltfclip.Surfaces(faces),
		Loader:   gltfclip.NewLoader(cfg.Character.Loop, logger),
		Analyzer: analyzer,
		Speaker:  speaker,
		Events:   events,
	}, cfg.CharacterTuning(), logger)
	if err != nil {
		return err
	}
	defer character.Close()

	if manifest != nil {
		character.LoadManifest(manifest)
	}

	var pcm []byte
	if opts.pcm != "" {
		if pcm, err = os.ReadFile(opts.pcm); err != nil {
			return fmt.Errorf("read pcm: %w", err)
		}
	}

	scheduler := tick.NewScheduler(logger)
	if pcm != nil && opts.frames > 0 {
		// Registered ahead of the character so each frame's audio is analysed
		// before the blender pulls.
		if _, err := scheduler.Register(audiofeature.NewStepper(analyzer, cfg.Analyzer.SampleRate, pcm)); err != nil {
			return err
		}
	}
	scene := &headlessScene{logger: logger.With().Str("component", "scene").Logger()}
	if err := character.Spawn(scene, scheduler); err != nil {
		return err
	}
	if len(faces) > 0 {
		if _, err := scheduler.Register(&deformer{meshes: faces}); err != nil {
			return err
		}
	}

	store.Watch(func(next *config.Config, err error) {
		if err != nil {
			logger.Warn().Err(err).Msg("Ignoring config change")
			return
		}
		character.Enqueue(func() {
			if err := character.ApplyConfig(next.CharacterTuning()); err != nil {
				logger.Warn().Err(err).Msg("Failed to apply config")
				return
			}
			logger.Info().Msg("Configuration reloaded")
			events.Publish(bus.Event{Type: bus.EventTypeConfigReloaded})
		})
	})

	if opts.emotion != "" {
		e, ok := emotion.Parse(opts.emotion)
		if !ok {
			logger.Warn().Str("emotion", opts.emotion).Msg("Unknown emotion, playing it by name")
		}
		character.SetEmotion(e)
	}

	bg, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Character.FeedURL != "" {
		feed := audiofeature.NewFeed(cfg.Character.FeedURL, analyzer, logger)
		if err := feed.Connect(bg); err != nil {
			return fmt.Errorf("connect feed: %w", err)
		}
		defer feed.Disconnect()
	}
	if cfg.Character.RemoteURL != "" {
		remote := avatar.NewRemote(cfg.Character.RemoteURL, character, logger)
		if err := remote.Connect(bg); err != nil {
			return err
		}
		defer remote.Disconnect()
	}

	if pcm != nil && opts.frames == 0 {
		go func() {
			if err := player.Play(bg, pcm); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn().Err(err).Msg("PCM playback failed")
			}
		}()
	}
	if opts.say != "" {
		go func() {
			if err := character.Say(bg, opts.say); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn().Err(err).Msg("Speech failed")
			}
		}()
	}

	loop := tick.NewLoop(scheduler, cfg.Tick, logger)
	if opts.frames > 0 {
		// Stepped runs are deterministic: every load resolves before frame one.
		character.Controller().WaitLoads()
		stats := loop.Step(opts.frames, 1.0/60)
		logger.Info().Uint64("frames", stats.Frames).Uint64("failures", stats.Failures).Msg("Stepped")
	} else if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	st := character.State()
	fmt.Fprintf(cmd.OutOrStdout(), "%s [%s] clip=%s mouth=%s\n", st.Status(), st.Animation, st.ActiveClip, st.MouthShape)
	return nil
}

func isGLTF(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".glb", ".gltf":
		return true
	}
	return false
}
