package speech

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/normanking/avatarcore/internal/audiofeature"
	"github.com/normanking/avatarcore/internal/bus"
	"github.com/normanking/avatarcore/internal/cache"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSynth struct {
	calls atomic.Int32
	audio []byte
	err   error
}

func (f *fakeSynth) Name() string { return "fake" }

func (f *fakeSynth) Synthesize(_ context.Context, req *Request) (*Response, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &Response{Audio: f.audio, SampleRate: 24000, Voice: req.Voice, Provider: "fake"}, nil
}

func newTestSpeaker(t *testing.T, synth Synthesizer, events *bus.EventBus) (*Speaker, *cache.Cache, *audiofeature.Analyzer) {
	t.Helper()
	c, err := cache.New(context.Background(), nil, zerolog.Nop())
	require.NoError(t, err)
	a := audiofeature.NewAnalyzer(audiofeature.Config{SampleRate: 24000, WindowSize: 256})
	p := audiofeature.NewPlayer(a, 24000, zerolog.Nop())
	p.SetChunk(5 * time.Millisecond)
	return NewSpeaker(synth, c, p, events, Config{Voice: VoiceAlloy}, zerolog.Nop()), c, a
}

func TestOpenAIProvider_RequestsPCM(t *testing.T) {
	var got speechRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/speech", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = w.Write([]byte{1, 0, 2, 0})
	}))
	defer srv.Close()

	cfg := DefaultOpenAIConfig()
	cfg.APIKey = "sk-test"
	cfg.BaseURL = srv.URL
	p := NewOpenAIProvider(zerolog.Nop(), cfg)
	require.True(t, p.IsAvailable())

	resp, err := p.Synthesize(context.Background(), &Request{Text: "hello", Voice: "Onyx"})
	require.NoError(t, err)
	assert.Equal(t, "pcm", got.ResponseFormat)
	assert.Equal(t, VoiceOnyx, got.Voice)
	assert.Equal(t, "tts-1", got.Model)
	assert.Equal(t, []byte{1, 0, 2, 0}, resp.Audio)
	assert.Equal(t, 24000, resp.SampleRate)
	assert.Equal(t, VoiceOnyx, resp.Voice)
	assert.Equal(t, "openai", resp.Provider)
}

func TestOpenAIProvider_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	t.Setenv("OPENAI_API_KEY", "")
	p := NewOpenAIProvider(zerolog.Nop(), &OpenAIConfig{BaseURL: srv.URL})
	_, err := p.Synthesize(context.Background(), &Request{Text: "x"})
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	p = NewOpenAIProvider(zerolog.Nop(), &OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Timeout: time.Second})
	_, err = p.Synthesize(context.Background(), &Request{Text: ""})
	assert.ErrorIs(t, err, ErrEmptyText)
	_, err = p.Synthesize(context.Background(), &Request{Text: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestOpenAIProvider_Voice(t *testing.T) {
	p := NewOpenAIProvider(zerolog.Nop(), nil)
	tests := map[string]string{
		"fable":      VoiceFable,
		" Shimmer ":  VoiceShimmer,
		"":           VoiceNova,
		"af_bella":   VoiceNova,
		"not-a-name": VoiceNova,
	}
	for in, want := range tests {
		assert.Equal(t, want, p.voice(in), in)
	}
}

func TestSpeaker_CachesAudio(t *testing.T) {
	synth := &fakeSynth{audio: make([]byte, 960)}
	s, c, _ := newTestSpeaker(t, synth, nil)
	ctx := context.Background()

	require.NoError(t, s.Speak(ctx, "hello"))
	require.NoError(t, s.Speak(ctx, "  hello "))
	assert.Equal(t, int32(1), synth.calls.Load(), "second utterance comes from the cache")
	assert.Equal(t, []string{"v:alloy:hello"}, c.Keys())

	_, err := s.Audio(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestSpeaker_ToleratesRacingWriter(t *testing.T) {
	synth := &fakeSynth{audio: []byte{7, 7}}
	s, c, _ := newTestSpeaker(t, synth, nil)
	ctx := context.Background()

	// Simulate a writer that stored the key between our lookup and our Set.
	require.NoError(t, c.Set(ctx, CacheKey(VoiceAlloy, "hi"), []byte{1, 1}))
	audio, err := s.Audio(ctx, "hi")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 1}, audio)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Audio(ctx, "race")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Contains(t, c.Keys(), CacheKey(VoiceAlloy, "race"))
}

func TestSpeaker_FeedsAnalyzerAndPublishes(t *testing.T) {
	events := bus.NewEventBus()
	var mu sync.Mutex
	var seen []bus.EventType
	events.SubscribeMultiple([]bus.EventType{bus.EventTypeSpeechStarted, bus.EventTypeSpeechStopped}, func(e bus.Event) {
		mu.Lock()
		seen = append(seen, e.Type)
		mu.Unlock()
	})

	synth := &fakeSynth{audio: make([]byte, 512*2)}
	s, _, a := newTestSpeaker(t, synth, events)
	require.NoError(t, s.Speak(context.Background(), "hi there"))

	assert.Equal(t, uint64(2), a.Windows())
	assert.False(t, s.IsSpeaking())
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []bus.EventType{bus.EventTypeSpeechStarted, bus.EventTypeSpeechStopped}, seen)
}

func TestSpeaker_Stop(t *testing.T) {
	// Two seconds of audio.
	synth := &fakeSynth{audio: make([]byte, 24000*2*2)}
	s, _, _ := newTestSpeaker(t, synth, nil)

	done := make(chan error, 1)
	go func() { done <- s.Speak(context.Background(), "long") }()

	require.Eventually(t, s.IsSpeaking, time.Second, time.Millisecond)
	s.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err, "stopping is not an error")
	case <-time.After(time.Second):
		t.Fatal("Speak did not return after Stop")
	}
	assert.False(t, s.IsSpeaking())
}

func TestSpeaker_SynthesisFailure(t *testing.T) {
	synth := &fakeSynth{err: ErrProviderUnavailable}
	s, c, _ := newTestSpeaker(t, synth, nil)
	err := s.Speak(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, 0, c.Len())
}
