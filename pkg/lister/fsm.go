package lister

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrInvalidTransition = fmt.Errorf("invalid state transition")
)

type State string

const (
	StateInit         State = "init"
	StateLoadingState State = "loading_state"
	StateFetching     State = "fetching_page"
	StateExtracting   State = "extracting_origins"
	StateReporting    State = "reporting"
	StateCommitting   State = "committing_checkpoint"
	StateDone         State = "done"
	StateFinalizing   State = "finalizing"
	StatePersisting   State = "persisting_state"
	StateTerminated   State = "terminated"
)

type FSM struct {
	mu          sync.Mutex
	Transitions map[State]map[State]struct{}

	current State
	logger  *zap.Logger
}

type FSMOption func(*FSM)

func FSMWithLogger(logger *zap.Logger) FSMOption {
	return func(f *FSM) {
		f.logger = logger
	}
}

func FSMWithInitialState(state State) FSMOption {
	return func(f *FSM) {
		f.current = state
	}
}

func NewFSM(opts ...FSMOption) *FSM {
	f := &FSM{
		current: StateInit,
		logger:  zap.NewNop(),

		Transitions: map[State]map[State]struct{}{
			StateInit: {
				StateLoadingState: {},
				StateTerminated:   {}, // Can abort before loading
			},
			StateLoadingState: {
				StateFetching:   {},
				StateFinalizing: {}, // Cancelled before the first page
				StateTerminated: {}, // Load failure, nothing to persist
			},
			StateFetching: {
				StateExtracting: {},
				StateDone:       {}, // Source exhausted
				StateFinalizing: {},
			},
			StateExtracting: {
				StateReporting:  {},
				StateFinalizing: {},
			},
			StateReporting: {
				StateCommitting: {},
				StateFinalizing: {},
			},
			StateCommitting: {
				StateFetching:   {},
				StateFinalizing: {}, // Cancelled between pages
			},
			StateDone: {
				StateFinalizing: {},
			},
			StateFinalizing: {
				StatePersisting: {},
				StateTerminated: {}, // Nothing advanced, skip the store
			},
			StatePersisting: {
				StateTerminated: {},
			},
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *FSM) Current() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *FSM) canTransition(to State) bool {
	if _, ok := f.Transitions[f.current][to]; ok {
		return true
	}
	return false
}

func (f *FSM) Transition(to State) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.canTransition(to) {
		f.logger.Error("Invalid state transition",
			zap.String("from", string(f.current)),
			zap.String("to", string(to)),
		)
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, f.current, to)
	}
	previous := f.current
	f.current = to

	f.logger.Debug("State transitioned",
		zap.String("state", string(f.current)),
		zap.String("from", string(previous)),
	)
	return nil
}
