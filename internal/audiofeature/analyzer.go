// Package audiofeature extracts loudness and brightness features from PCM
// speech audio for the viseme blender.
package audiofeature

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"github.com/normanking/avatarcore/internal/viseme"
)

type Config struct {
	// SampleRate of the incoming 16-bit mono PCM.
	SampleRate int `mapstructure:"sample_rate"`
	// WindowSize is the number of samples per analysis frame.
	WindowSize int `mapstructure:"window_size"`
}

func DefaultConfig() Config {
	return Config{
		SampleRate: 24000,
		WindowSize: 1024,
	}
}

// Analyzer consumes 16-bit little-endian mono PCM and keeps the features of
// the most recent full window. Write may be called from any goroutine.
type Analyzer struct {
	cfg Config
	fft *fourier.FFT

	mu      sync.Mutex
	pending []float64
	odd     []byte
	latest  viseme.Sample
	fresh   bool
	windows uint64
	now     func() time.Time

	frame  []float64
	coeffs []complex128
}

func NewAnalyzer(cfg Config) *Analyzer {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultConfig().WindowSize
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultConfig().SampleRate
	}
	return &Analyzer{
		cfg:     cfg,
		fft:     fourier.NewFFT(cfg.WindowSize),
		pending: make([]float64, 0, cfg.WindowSize),
		now:     time.Now,
		frame:   make([]float64, cfg.WindowSize),
	}
}

// Write implements io.Writer. A trailing odd byte is held for the next call.
func (a *Analyzer) Write(pcm []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(pcm)
	if len(a.odd) > 0 {
		pcm = append(a.odd, pcm...)
		a.odd = nil
	}
	if len(pcm)%2 == 1 {
		a.odd = []byte{pcm[len(pcm)-1]}
		pcm = pcm[:len(pcm)-1]
	}

	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(binary.LittleEndian.Uint16(pcm[i:]))
		a.pending = append(a.pending, float64(s)/32768)
		if len(a.pending) == a.cfg.WindowSize {
			a.analyze(a.pending)
			a.pending = a.pending[:0]
		}
	}
	return n, nil
}

func (a *Analyzer) analyze(samples []float64) {
	volume := rms(samples)

	copy(a.frame, samples)
	window.Hann(a.frame)
	a.coeffs = a.fft.Coefficients(a.coeffs, a.frame)

	var weighted, total float64
	for i, c := range a.coeffs {
		mag := math.Hypot(real(c), imag(c))
		weighted += a.fft.Freq(i) * float64(a.cfg.SampleRate) * mag
		total += mag
	}
	var centroid float64
	if total > 0 {
		centroid = weighted / total
	}

	a.latest = viseme.Sample{
		Volume:    float32(volume),
		Centroid:  float32(centroid),
		Timestamp: a.now(),
	}
	a.fresh = true
	a.windows++
}

// PullLatestSample returns the newest sample once.
func (a *Analyzer) PullLatestSample() (viseme.Sample, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.fresh {
		return viseme.Sample{}, false
	}
	a.fresh = false
	return a.latest, true
}

// Windows returns how many analysis frames have been produced.
func (a *Analyzer) Windows() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.windows
}

// Reset drops buffered audio and any unread sample.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = a.pending[:0]
	a.odd = nil
	a.fresh = false
}

// WindowDuration is the audio time covered by one analysis frame.
func (a *Analyzer) WindowDuration() time.Duration {
	return time.Duration(a.cfg.WindowSize) * time.Second / time.Duration(a.cfg.SampleRate)
}

func rms(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}
