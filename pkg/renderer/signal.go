package renderer

import (
	"sync"
	"sync/atomic"
)

// SignalState is the run state of a render worker
type SignalState int32

const (
	SignalRun SignalState = iota
	SignalPause
	SignalExit
)

func (s SignalState) String() string {
	switch s {
	case SignalRun:
		return "run"
	case SignalPause:
		return "pause"
	case SignalExit:
		return "exit"
	default:
		return "unknown"
	}
}

// Signal carries a run state to a worker. Reads are lock-free; paused
// workers block on a condition variable and wake immediately on change.
type Signal struct {
	state atomic.Int32
	mu    sync.Mutex
	cond  *sync.Cond
}

// NewSignal creates a signal in the given state
func NewSignal(initial SignalState) *Signal {
	s := &Signal{}
	s.cond = sync.NewCond(&s.mu)
	s.state.Store(int32(initial))
	return s
}

// Load returns the current state
func (s *Signal) Load() SignalState {
	return SignalState(s.state.Load())
}

// Set changes the state and wakes every waiter
func (s *Signal) Set(state SignalState) {
	s.mu.Lock()
	s.state.Store(int32(state))
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Wait blocks while the state is SignalPause and returns the state that
// ended the wait (SignalRun or SignalExit)
func (s *Signal) Wait() SignalState {
	if st := s.Load(); st != SignalPause {
		return st
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for SignalState(s.state.Load()) == SignalPause {
		s.cond.Wait()
	}
	return SignalState(s.state.Load())
}
