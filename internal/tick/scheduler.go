// Package tick drives per-frame updates for everything in a scene.
//
// A Scheduler is created once per scene and handed to every component that
// wants a frame pulse. The frame driver calls Dispatch once per frame; nothing
// else touches the frame clock.
package tick

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/rs/zerolog"
)

// Common errors
var (
	ErrNilTarget          = errors.New("nil update target")
	ErrUncomparableTarget = errors.New("update target type is not comparable")
)

// UpdateTarget is anything that needs an Advance call every frame.
type UpdateTarget interface {
	Advance(dt float32) error
}

// Handle identifies a registration. The zero Handle is never valid.
type Handle struct {
	index uint32
	gen   uint32
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool {
	return h.gen == 0
}

func (h Handle) String() string {
	return fmt.Sprintf("%d@%d", h.index, h.gen)
}

type slot struct {
	target UpdateTarget
	gen    uint32
	live   bool
}

// Scheduler keeps the registry of update targets and dispatches the frame
// pulse to them in registration order.
//
// Targets live in an index-stable arena; membership is the ordered handle
// list. The scheduler is not safe for concurrent use: register, unregister and
// dispatch from the frame goroutine. Re-entrant calls from inside Advance are
// fine.
type Scheduler struct {
	logger zerolog.Logger

	slots    []slot
	free     []uint32
	order    []Handle
	byTarget map[UpdateTarget]Handle

	snapshot []UpdateTarget
	frame    uint64
}

// NewScheduler creates an empty scheduler.
func NewScheduler(logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		logger:   logger.With().Str("component", "tick").Logger(),
		byTarget: make(map[UpdateTarget]Handle),
	}
}

// Register adds t to the registry. Registering a target that is already
// registered returns its existing handle and does not change dispatch.
func (s *Scheduler) Register(t UpdateTarget) (Handle, error) {
	if t == nil {
		return Handle{}, ErrNilTarget
	}
	if !reflect.TypeOf(t).Comparable() {
		return Handle{}, fmt.Errorf("%w: %T", ErrUncomparableTarget, t)
	}

	if h, ok := s.byTarget[t]; ok {
		return h, nil
	}

	var idx uint32
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		idx = uint32(len(s.slots))
		s.slots = append(s.slots, slot{})
	}

	sl := &s.slots[idx]
	sl.gen++
	sl.target = t
	sl.live = true

	h := Handle{index: idx, gen: sl.gen}
	s.order = append(s.order, h)
	s.byTarget[t] = h

	s.logger.Debug().
		Str("handle", h.String()).
		Str("target", fmt.Sprintf("%T", t)).
		Int("registered", len(s.order)).
		Msg("Target registered")

	return h, nil
}

// Unregister removes t. It reports false if t was not registered.
func (s *Scheduler) Unregister(t UpdateTarget) bool {
	if t == nil || !reflect.TypeOf(t).Comparable() {
		return false
	}
	h, ok := s.byTarget[t]
	if !ok {
		return false
	}
	return s.UnregisterHandle(h)
}

// UnregisterHandle removes the registration identified by h. Stale handles
// are ignored.
func (s *Scheduler) UnregisterHandle(h Handle) bool {
	if !s.valid(h) {
		return false
	}

	sl := &s.slots[h.index]
	delete(s.byTarget, sl.target)
	sl.target = nil
	sl.live = false
	s.free = append(s.free, h.index)

	for i, oh := range s.order {
		if oh == h {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	s.logger.Debug().
		Str("handle", h.String()).
		Int("registered", len(s.order)).
		Msg("Target unregistered")

	return true
}

func (s *Scheduler) valid(h Handle) bool {
	if h.IsZero() || int(h.index) >= len(s.slots) {
		return false
	}
	sl := s.slots[h.index]
	return sl.live && sl.gen == h.gen
}

// Contains reports whether t is currently registered.
func (s *Scheduler) Contains(t UpdateTarget) bool {
	if t == nil || !reflect.TypeOf(t).Comparable() {
		return false
	}
	_, ok := s.byTarget[t]
	return ok
}

// Len returns the number of registered targets.
func (s *Scheduler) Len() int {
	return len(s.order)
}

// Frame returns the number of completed dispatches.
func (s *Scheduler) Frame() uint64 {
	return s.frame
}

// Targets returns the registered targets in registration order.
func (s *Scheduler) Targets() []UpdateTarget {
	result := make([]UpdateTarget, 0, len(s.order))
	for _, h := range s.order {
		result = append(result, s.slots[h.index].target)
	}
	return result
}

// Dispatch advances every registered target by dt, once each, in
// registration order. The target set is fixed when the pass starts: targets
// registered during the pass wait for the next one, targets unregistered
// during the pass still get this pass's call.
//
// A failing target does not stop the pass. Failures are logged and returned
// together as a *DispatchError.
func (s *Scheduler) Dispatch(dt float32) error {
	s.snapshot = s.snapshot[:0]
	for _, h := range s.order {
		s.snapshot = append(s.snapshot, s.slots[h.index].target)
	}
	// Re-entrant Dispatch from a target must not clobber this pass.
	targets := s.snapshot
	s.snapshot = nil

	var failures []TargetError
	for _, t := range targets {
		if err := s.advance(t, dt); err != nil {
			failures = append(failures, TargetError{Target: t, Err: err})
			s.logger.Warn().
				Err(err).
				Str("target", fmt.Sprintf("%T", t)).
				Uint64("frame", s.frame).
				Msg("Update target failed")
		}
	}

	for i := range targets {
		targets[i] = nil
	}
	s.snapshot = targets[:0]
	s.frame++

	if len(failures) > 0 {
		return &DispatchError{Frame: s.frame - 1, Failures: failures}
	}
	return nil
}

func (s *Scheduler) advance(t UpdateTarget, dt float32) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in Advance: %v", r)
		}
	}()
	return t.Advance(dt)
}

// TargetError is one failed Advance call.
type TargetError struct {
	Target UpdateTarget
	Err    error
}

// DispatchError collects the failures of one dispatch pass.
type DispatchError struct {
	Frame    uint64
	Failures []TargetError
}

func (e *DispatchError) Error() string {
	if len(e.Failures) == 1 {
		return fmt.Sprintf("frame %d: %T: %v", e.Frame, e.Failures[0].Target, e.Failures[0].Err)
	}
	return fmt.Sprintf("frame %d: %d update targets failed", e.Frame, len(e.Failures))
}

// Unwrap exposes the individual target errors to errors.Is / errors.As.
func (e *DispatchError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}
