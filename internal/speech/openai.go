package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	VoiceAlloy   = "alloy"
	VoiceEcho    = "echo"
	VoiceFable   = "fable"
	VoiceOnyx    = "onyx"
	VoiceNova    = "nova"
	VoiceShimmer = "shimmer"
)

var openAIVoices = map[string]bool{
	VoiceAlloy: true, VoiceEcho: true, VoiceFable: true,
	VoiceOnyx: true, VoiceNova: true, VoiceShimmer: true,
}

const (
	defaultBaseURL = "https://api.openai.com/v1"

	// response_format "pcm" is 24 kHz 16-bit signed little-endian mono.
	openAISampleRate = 24000
	openAIMaxText    = 4096
)

type OpenAIConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"` // tts-1 or tts-1-hd
	DefaultVoice string        `mapstructure:"default_voice"`
	Speed        float64       `mapstructure:"speed"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

func DefaultOpenAIConfig() *OpenAIConfig {
	return &OpenAIConfig{
		BaseURL:      defaultBaseURL,
		Model:        "tts-1",
		DefaultVoice: VoiceNova,
		Speed:        1.0,
		Timeout:      30 * time.Second,
	}
}

// OpenAIProvider requests raw PCM from the audio/speech endpoint so the
// result can go straight to the analyzer without decoding.
type OpenAIProvider struct {
	apiKey string
	client *http.Client
	logger zerolog.Logger
	config *OpenAIConfig
}

// NewOpenAIProvider falls back to OPENAI_API_KEY when config has no key.
func NewOpenAIProvider(logger zerolog.Logger, config *OpenAIConfig) *OpenAIProvider {
	if config == nil {
		config = DefaultOpenAIConfig()
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	return &OpenAIProvider{
		apiKey: apiKey,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger.With().Str("provider", "openai-tts").Logger(),
		config: config,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) IsAvailable() bool { return p.apiKey != "" }

type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed,omitempty"`
}

func (p *OpenAIProvider) Synthesize(ctx context.Context, req *Request) (*Response, error) {
	switch {
	case p.apiKey == "":
		return nil, ErrProviderUnavailable
	case req.Text == "":
		return nil, ErrEmptyText
	case len(req.Text) > openAIMaxText:
		return nil, ErrTextTooLong
	}

	voice := p.voice(req.Voice)
	speed := req.Speed
	if speed == 0 {
		speed = p.config.Speed
	}
	body, err := json.Marshal(speechRequest{
		Model:          p.config.Model,
		Input:          req.Text,
		Voice:          voice,
		ResponseFormat: "pcm",
		Speed:          speed,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		p.logger.Error().Int("status", resp.StatusCode).Str("body", string(msg)).Msg("Speech request rejected")
		return nil, fmt.Errorf("OpenAI TTS error (%d): %s", resp.StatusCode, msg)
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	p.logger.Debug().
		Str("voice", voice).
		Int("chars", len(req.Text)).
		Int("bytes", len(pcm)).
		Dur("took", time.Since(start)).
		Msg("Speech synthesized")

	return &Response{
		Audio:      pcm,
		SampleRate: openAISampleRate,
		Voice:      voice,
		Provider:   p.Name(),
	}, nil
}

// voice normalizes a configured voice name. Names OpenAI does not offer
// use the default voice.
func (p *OpenAIProvider) voice(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if openAIVoices[name] {
		return name
	}
	return p.config.DefaultVoice
}
