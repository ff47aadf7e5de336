package animation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Common errors
var (
	ErrSuperseded = errors.New("clip source superseded by a newer registration")
	ErrClosed     = errors.New("clip loader closed")
	ErrNotReady   = errors.New("no animation loaded within the wait budget")
)

// ClipLoader resolves a clip path to clip data. Implementations may block;
// the proxy always calls them off the frame goroutine.
type ClipLoader interface {
	LoadClip(ctx context.Context, path string) (*Clip, error)
}

// LoaderFunc adapts a function to ClipLoader.
type LoaderFunc func(ctx context.Context, path string) (*Clip, error)

func (f LoaderFunc) LoadClip(ctx context.Context, path string) (*Clip, error) {
	return f(ctx, path)
}

type completion struct {
	name string
	path string
	gen  uint64
	clip *Clip
	err  error
	took time.Duration
}

// Proxy runs clip loads in the background and parks their results in a
// mailbox. The owning controller drains the mailbox during Advance, so load
// results only ever touch animation state on the frame goroutine.
type Proxy struct {
	loader ClipLoader
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	mailbox  []completion
	latest   map[string]uint64
	inFlight int
	closed   bool
}

// NewProxy creates a proxy around loader.
func NewProxy(loader ClipLoader, logger zerolog.Logger) *Proxy {
	ctx, cancel := context.WithCancel(context.Background())
	return &Proxy{
		loader: loader,
		logger: logger.With().Str("component", "clip-proxy").Logger(),
		ctx:    ctx,
		cancel: cancel,
		latest: make(map[string]uint64),
	}
}

// Request starts loading path for name. gen must increase with every request
// for the same name; results of older generations are dropped. The returned
// channel receives exactly one value: nil once the clip is parked for
// binding, the loader's error, ErrSuperseded or ErrClosed.
func (p *Proxy) Request(name, path string, gen uint64) <-chan error {
	result := make(chan error, 1)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		result <- ErrClosed
		return result
	}
	p.latest[name] = gen
	p.inFlight++
	p.wg.Add(1)
	p.mu.Unlock()

	p.logger.Debug().Str("name", name).Str("path", path).Uint64("gen", gen).Msg("Loading clip")

	go func() {
		defer p.wg.Done()

		start := time.Now()
		clip, err := p.loader.LoadClip(p.ctx, path)
		took := time.Since(start)

		p.mu.Lock()
		p.inFlight--
		switch {
		case p.closed:
			p.mu.Unlock()
			result <- ErrClosed
			return
		case p.latest[name] != gen:
			p.mu.Unlock()
			p.logger.Debug().Str("name", name).Uint64("gen", gen).Msg("Dropping superseded clip load")
			result <- ErrSuperseded
			return
		}
		p.mailbox = append(p.mailbox, completion{
			name: name,
			path: path,
			gen:  gen,
			clip: clip,
			err:  err,
			took: took,
		})
		p.mu.Unlock()

		result <- err
	}()

	return result
}

// Drain hands over every parked completion.
func (p *Proxy) Drain() []completion {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.mailbox) == 0 {
		return nil
	}
	out := p.mailbox
	p.mailbox = nil
	return out
}

// InFlight returns the number of loads not yet resolved.
func (p *Proxy) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight
}

// Wait blocks until every load started so far has resolved.
func (p *Proxy) Wait() {
	p.wg.Wait()
}

// Close cancels in-flight loads. Late results are discarded.
func (p *Proxy) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mailbox = nil
	p.mu.Unlock()
	p.cancel()
}
