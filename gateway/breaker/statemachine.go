package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the lifecycle state of a StateMachine.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// MachineConfig configures a StateMachine.
type MachineConfig struct {
	// Threshold is the number of consecutive failures that trips the breaker.
	Threshold int
	// CallTimeout bounds a single guarded call.
	CallTimeout time.Duration
	// ResetTimeout is how long the breaker stays open before probing again.
	ResetTimeout time.Duration
	// HalfOpenMaxCalls bounds concurrent probe calls while half-open.
	HalfOpenMaxCalls int
}

// DefaultMachineConfig mirrors the thresholds used elsewhere in this package.
func DefaultMachineConfig() *MachineConfig {
	return &MachineConfig{
		Threshold:        DefaultThreshold,
		CallTimeout:      5 * time.Second,
		ResetTimeout:     60 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// ErrOpen is returned by Call when the breaker is open.
var ErrOpen = errors.New("breaker: circuit open")

// ErrTooManyHalfOpenCalls is returned when the half-open probe budget is spent.
var ErrTooManyHalfOpenCalls = errors.New("breaker: too many calls while half-open")

// StateMachine is a closed/open/half-open circuit breaker with a
// time-based probe window, a richer alternative to the bare
// consecutive-error predicate in breaker.go. It wraps provider calls
// optionally, outside the default pipeline path.
type StateMachine struct {
	cfg    *MachineConfig
	logger *zap.Logger

	mu                sync.Mutex
	state             State
	failures          int
	lastFailureTime   time.Time
	halfOpenCallCount int
}

// NewStateMachine builds a StateMachine. A nil config uses DefaultMachineConfig.
func NewStateMachine(cfg *MachineConfig, logger *zap.Logger) *StateMachine {
	if cfg == nil {
		cfg = DefaultMachineConfig()
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 5 * time.Second
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 60 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateMachine{cfg: cfg, logger: logger}
}

// State returns the current lifecycle state.
func (b *StateMachine) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Call runs fn under the breaker's protection, honoring CallTimeout.
func (b *StateMachine) Call(ctx context.Context, fn func(context.Context) error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.CallTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("breaker: guarded call panicked: %v", r)
			}
		}()
		done <- fn(callCtx)
	}()

	select {
	case <-callCtx.Done():
		b.afterCall(false)
		return fmt.Errorf("breaker: call timed out: %w", callCtx.Err())
	case err := <-done:
		b.afterCall(err == nil)
		return err
	}
}

func (b *StateMachine) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(b.lastFailureTime) > b.cfg.ResetTimeout {
			b.state = StateHalfOpen
			b.halfOpenCallCount = 1
			b.logger.Info("breaker entering half-open state")
			return nil
		}
		return ErrOpen
	case StateHalfOpen:
		if b.halfOpenCallCount >= b.cfg.HalfOpenMaxCalls {
			return ErrTooManyHalfOpenCalls
		}
		b.halfOpenCallCount++
		return nil
	default:
		return fmt.Errorf("breaker: unknown state %v", b.state)
	}
}

func (b *StateMachine) afterCall(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		switch b.state {
		case StateHalfOpen:
			b.logger.Info("breaker recovered", zap.Int("half_open_calls", b.halfOpenCallCount))
			b.state = StateClosed
		case StateClosed:
		}
		b.failures = 0
		b.halfOpenCallCount = 0
		return
	}

	b.failures++
	b.lastFailureTime = time.Now()

	switch b.state {
	case StateClosed:
		if b.failures >= b.cfg.Threshold {
			b.logger.Warn("breaker tripped", zap.Int("failures", b.failures))
			b.state = StateOpen
		}
	case StateHalfOpen:
		b.logger.Warn("breaker probe failed, reopening")
		b.state = StateOpen
		b.halfOpenCallCount = 0
	}
}

// Reset forces the breaker back to closed, discarding accumulated failures.
func (b *StateMachine) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.halfOpenCallCount = 0
}
