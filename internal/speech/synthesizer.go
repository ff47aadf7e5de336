// Package speech turns text into PCM audio and plays it into the feature
// analyzer so the avatar's mouth follows what it says.
package speech

import (
	"context"
	"errors"
)

var (
	ErrProviderUnavailable = errors.New("speech provider unavailable")
	ErrEmptyText           = errors.New("nothing to say")
	ErrTextTooLong         = errors.New("text exceeds maximum length")
)

// Synthesizer is implemented by every speech backend.
type Synthesizer interface {
	Name() string
	// Synthesize returns 16-bit little-endian mono PCM for req.
	Synthesize(ctx context.Context, req *Request) (*Response, error)
}

type Request struct {
	Text  string
	Voice string
	Speed float64 // 0 uses the provider default
}

type Response struct {
	Audio      []byte
	SampleRate int
	Voice      string // voice the provider actually used
	Provider   string
}
