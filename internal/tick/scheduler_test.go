package tick

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	name  string
	log   *[]string
	calls int
	dts   []float32
	err   error
	panic bool
	onAdv func()
}

func (r *recorder) Advance(dt float32) error {
	r.calls++
	r.dts = append(r.dts, dt)
	if r.log != nil {
		*r.log = append(*r.log, r.name)
	}
	if r.onAdv != nil {
		r.onAdv()
	}
	if r.panic {
		panic("boom")
	}
	return r.err
}

type funcTarget func(float32) error

func (f funcTarget) Advance(dt float32) error { return f(dt) }

func newTestScheduler() *Scheduler {
	return NewScheduler(zerolog.Nop())
}

func TestScheduler_DispatchOrderAndExactness(t *testing.T) {
	s := newTestScheduler()
	var log []string
	a := &recorder{name: "a", log: &log}
	b := &recorder{name: "b", log: &log}
	c := &recorder{name: "c", log: &log}

	for _, r := range []*recorder{a, b, c} {
		_, err := s.Register(r)
		require.NoError(t, err)
	}

	require.NoError(t, s.Dispatch(0.016))

	assert.Equal(t, []string{"a", "b", "c"}, log)
	for _, r := range []*recorder{a, b, c} {
		assert.Equal(t, 1, r.calls)
		assert.Equal(t, []float32{0.016}, r.dts)
	}
	assert.Equal(t, uint64(1), s.Frame())
}

func TestScheduler_RegisterIsIdempotent(t *testing.T) {
	s := newTestScheduler()
	a := &recorder{name: "a"}

	h1, err := s.Register(a)
	require.NoError(t, err)
	h2, err := s.Register(a)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.Dispatch(0.016))
	assert.Equal(t, 1, a.calls)
}

func TestScheduler_RegisterRejectsBadTargets(t *testing.T) {
	s := newTestScheduler()

	_, err := s.Register(nil)
	assert.ErrorIs(t, err, ErrNilTarget)

	_, err = s.Register(funcTarget(func(float32) error { return nil }))
	assert.ErrorIs(t, err, ErrUncomparableTarget)
	assert.Equal(t, 0, s.Len())
}

func TestScheduler_Unregister(t *testing.T) {
	s := newTestScheduler()
	a := &recorder{name: "a"}
	b := &recorder{name: "b"}
	_, _ = s.Register(a)
	_, _ = s.Register(b)

	assert.True(t, s.Unregister(a))
	assert.False(t, s.Unregister(a), "second unregister is a no-op")
	assert.False(t, s.Unregister(&recorder{}), "unknown target is a no-op")

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Dispatch(0.016))
	}
	assert.Equal(t, 0, a.calls)
	assert.Equal(t, 5, b.calls)
	assert.False(t, s.Contains(a))
}

func TestScheduler_StaleHandleIsInert(t *testing.T) {
	s := newTestScheduler()
	a := &recorder{name: "a"}
	b := &recorder{name: "b"}

	ha, _ := s.Register(a)
	require.True(t, s.UnregisterHandle(ha))

	hb, _ := s.Register(b)
	assert.Equal(t, ha.index, hb.index, "slot is reused")
	assert.NotEqual(t, ha, hb)

	assert.False(t, s.UnregisterHandle(ha))
	assert.True(t, s.Contains(b))
	assert.False(t, s.UnregisterHandle(Handle{}))
}

func TestScheduler_ReRegisterMovesToEnd(t *testing.T) {
	s := newTestScheduler()
	var log []string
	a := &recorder{name: "a", log: &log}
	b := &recorder{name: "b", log: &log}
	_, _ = s.Register(a)
	_, _ = s.Register(b)
	s.Unregister(a)
	_, _ = s.Register(a)

	require.NoError(t, s.Dispatch(0.01))
	assert.Equal(t, []string{"b", "a"}, log)
}

func TestScheduler_SnapshotSemantics(t *testing.T) {
	s := newTestScheduler()
	late := &recorder{name: "late"}
	victim := &recorder{name: "victim"}

	first := &recorder{name: "first"}
	first.onAdv = func() {
		_, _ = s.Register(late)
		s.Unregister(victim)
		_, _ = s.Register(first) // already registered: no duplicate
	}

	_, _ = s.Register(first)
	_, _ = s.Register(victim)

	require.NoError(t, s.Dispatch(0.016))
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, victim.calls, "removed mid-pass still receives this pass")
	assert.Equal(t, 0, late.calls, "added mid-pass waits for the next pass")

	first.onAdv = nil
	require.NoError(t, s.Dispatch(0.016))
	assert.Equal(t, 2, first.calls)
	assert.Equal(t, 1, victim.calls)
	assert.Equal(t, 1, late.calls)
}

func TestScheduler_FailureIsolation(t *testing.T) {
	s := newTestScheduler()
	errBad := errors.New("bad frame")
	a := &recorder{name: "a", err: errBad}
	b := &recorder{name: "b", panic: true}
	c := &recorder{name: "c"}
	_, _ = s.Register(a)
	_, _ = s.Register(b)
	_, _ = s.Register(c)

	err := s.Dispatch(0.016)
	require.Error(t, err)

	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.Len(t, dispatchErr.Failures, 2)
	assert.ErrorIs(t, err, errBad)
	assert.Equal(t, 1, c.calls, "later targets still run")

	// The next frame is delivered normally.
	a.err = nil
	b.panic = false
	require.NoError(t, s.Dispatch(0.016))
	assert.Equal(t, 2, c.calls)
}

func TestScheduler_Targets(t *testing.T) {
	s := newTestScheduler()
	a := &recorder{name: "a"}
	b := &recorder{name: "b"}
	_, _ = s.Register(b)
	_, _ = s.Register(a)

	targets := s.Targets()
	require.Len(t, targets, 2)
	assert.Same(t, b, targets[0])
	assert.Same(t, a, targets[1])
}

func TestLoop_Step(t *testing.T) {
	s := newTestScheduler()
	a := &recorder{name: "a"}
	_, _ = s.Register(a)

	loop := NewLoop(s, LoopConfig{}, zerolog.Nop())
	stats := loop.Step(60, 0.016)

	assert.Equal(t, uint64(60), stats.Frames)
	assert.Equal(t, 60, a.calls)
	assert.Equal(t, uint64(60), s.Frame())
}

func TestLoop_StepClampsDelta(t *testing.T) {
	s := newTestScheduler()
	a := &recorder{name: "a"}
	_, _ = s.Register(a)

	loop := NewLoop(s, DefaultLoopConfig(), zerolog.Nop())
	loop.Step(1, 2.0)

	require.Len(t, a.dts, 1)
	assert.InDelta(t, 0.1, a.dts[0], 1e-6)
}
