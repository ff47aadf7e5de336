package audiofeature

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Player paces PCM into a writer at playback speed, standing in for an
// audio device so the analyzer sees audio as a listener would hear it.
type Player struct {
	out        io.Writer
	sampleRate int
	chunk      time.Duration
	logger     zerolog.Logger
}

func NewPlayer(out io.Writer, sampleRate int, logger zerolog.Logger) *Player {
	if sampleRate <= 0 {
		sampleRate = DefaultConfig().SampleRate
	}
	return &Player{
		out:        out,
		sampleRate: sampleRate,
		chunk:      20 * time.Millisecond,
		logger:     logger.With().Str("component", "player").Logger(),
	}
}

// SetChunk changes how much audio is written per tick.
func (p *Player) SetChunk(d time.Duration) {
	if d > 0 {
		p.chunk = d
	}
}

// Duration is the playback length of 16-bit mono pcm.
func (p *Player) Duration(pcm []byte) time.Duration {
	return time.Duration(len(pcm)/2) * time.Second / time.Duration(p.sampleRate)
}

// Play writes pcm in real time and returns when it is done or ctx ends.
func (p *Player) Play(ctx context.Context, pcm []byte) error {
	chunkBytes := int(p.chunk.Seconds()*float64(p.sampleRate)) * 2
	if chunkBytes <= 0 {
		chunkBytes = 2
	}

	p.logger.Debug().Dur("duration", p.Duration(pcm)).Msg("Playback started")

	ticker := time.NewTicker(p.chunk)
	defer ticker.Stop()

	for off := 0; off < len(pcm); off += chunkBytes {
		end := off + chunkBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		if _, err := p.out.Write(pcm[off:end]); err != nil {
			return err
		}
		if end == len(pcm) {
			break
		}
		select {
		case <-ctx.Done():
			p.logger.Debug().Msg("Playback cancelled")
			return ctx.Err()
		case <-ticker.C:
		}
	}

	p.logger.Debug().Msg("Playback finished")
	return nil
}

// Stepper is the frame-clock counterpart of Player: each Advance writes the
// samples that dt of playback covers, so stepped runs see the same windows
// a listener would.
type Stepper struct {
	out        io.Writer
	sampleRate int
	pcm        []byte
	carry      float64
}

func NewStepper(out io.Writer, sampleRate int, pcm []byte) *Stepper {
	if sampleRate <= 0 {
		sampleRate = DefaultConfig().SampleRate
	}
	return &Stepper{out: out, sampleRate: sampleRate, pcm: pcm[:len(pcm)&^1]}
}

func (s *Stepper) Advance(dt float32) error {
	if len(s.pcm) == 0 {
		return nil
	}
	s.carry += float64(dt) * float64(s.sampleRate)
	n := int(s.carry)
	s.carry -= float64(n)

	end := min(n*2, len(s.pcm))
	if end == 0 {
		return nil
	}
	chunk := s.pcm[:end]
	s.pcm = s.pcm[end:]
	_, err := s.out.Write(chunk)
	return err
}

// Remaining is the playback time not yet written.
func (s *Stepper) Remaining() time.Duration {
	return time.Duration(len(s.pcm)/2) * time.Second / time.Duration(s.sampleRate)
}
