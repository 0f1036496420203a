package agent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrorCode represents different types of agent errors.
type ErrorCode int

const (
	// ErrUnknown represents an unknown error
	ErrUnknown ErrorCode = iota

	// ErrAgentNotFound represents an agent not found error
	ErrAgentNotFound

	// ErrAgentExists represents an agent already exists error
	ErrAgentExists

	// ErrInvalidAgent represents an invalid agent error
	ErrInvalidAgent

	// ErrAgentStopped represents an agent stopped error
	ErrAgentStopped

	// ErrAgentRunning represents an agent already running error
	ErrAgentRunning

	// ErrLoopFailed represents a failure that escaped the agent loop body
	ErrLoopFailed

	// ErrHandlerFailed represents a handler that returned an error or panicked
	ErrHandlerFailed

	// ErrBehaviorFailed represents a behavior that returned an error or panicked
	ErrBehaviorFailed

	// ErrBusy represents a capability with an invocation still in flight
	ErrBusy

	// ErrContextCancelled represents a cancelled context error
	ErrContextCancelled

	// ErrTimeout represents a timeout error
	ErrTimeout

	// ErrInvalidConfiguration represents an invalid configuration error
	ErrInvalidConfiguration

	// ErrProviderUnavailable represents an unreachable external provider
	ErrProviderUnavailable

	// ErrInsufficientBalance represents a transfer precondition failure
	ErrInsufficientBalance

	// ErrTransferFailed represents a rejected or reverted transfer
	ErrTransferFailed

	// ErrResourceExhausted represents a resource exhausted error
	ErrResourceExhausted
)

// String returns a string representation of the error code.
func (e ErrorCode) String() string {
	switch e {
	case ErrAgentNotFound:
		return "agent_not_found"
	case ErrAgentExists:
		return "agent_exists"
	case ErrInvalidAgent:
		return "invalid_agent"
	case ErrAgentStopped:
		return "agent_stopped"
	case ErrAgentRunning:
		return "agent_running"
	case ErrLoopFailed:
		return "loop_failed"
	case ErrHandlerFailed:
		return "handler_failed"
	case ErrBehaviorFailed:
		return "behavior_failed"
	case ErrBusy:
		return "busy"
	case ErrContextCancelled:
		return "context_cancelled"
	case ErrTimeout:
		return "timeout"
	case ErrInvalidConfiguration:
		return "invalid_configuration"
	case ErrProviderUnavailable:
		return "provider_unavailable"
	case ErrInsufficientBalance:
		return "insufficient_balance"
	case ErrTransferFailed:
		return "transfer_failed"
	case ErrResourceExhausted:
		return "resource_exhausted"
	default:
		return "unknown"
	}
}

// AgentError represents an error that occurred in the agent system.
type AgentError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// NewAgentError creates a new agent error.
func NewAgentError(code ErrorCode, message string) *AgentError {
	return &AgentError{
		Code:    code,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// NewAgentErrorWithCause creates a new agent error with a cause.
func NewAgentErrorWithCause(code ErrorCode, message string, cause error) *AgentError {
	return &AgentError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// Error implements the error interface.
func (e *AgentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code.String(), e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code.String(), e.Message)
}

// WithContext adds context information to the error.
func (e *AgentError) WithContext(key string, value interface{}) *AgentError {
	e.Context[key] = value
	return e
}

// Unwrap returns the underlying cause error.
func (e *AgentError) Unwrap() error {
	return e.Cause
}

// Is matches another *AgentError with the same code, so errors.Is(err, Code(ErrBusy)) works
// through wrapping.
func (e *AgentError) Is(target error) bool {
	if t, ok := target.(*AgentError); ok {
		return e.Code == t.Code
	}
	return false
}

// Code returns a sentinel for errors.Is comparisons against a code.
func Code(code ErrorCode) error {
	return &AgentError{Code: code}
}

// CodeOf returns the code of the first AgentError in err's chain, or ErrUnknown.
func CodeOf(err error) ErrorCode {
	var agentErr *AgentError
	if errors.As(err, &agentErr) {
		return agentErr.Code
	}
	return ErrUnknown
}

// Retry provides retry logic with exponential backoff.
type Retry struct {
	maxAttempts int
	backoff     BackoffStrategy
	logger      Logger
	retryable   func(error) bool
}

// BackoffStrategy defines how to calculate retry delays.
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff implements exponential backoff strategy.
type ExponentialBackoff struct {
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
}

// NewExponentialBackoff creates a new exponential backoff strategy.
func NewExponentialBackoff(initial, max time.Duration, multiplier float64) *ExponentialBackoff {
	return &ExponentialBackoff{
		initialDelay: initial,
		maxDelay:     max,
		multiplier:   multiplier,
	}
}

// NextDelay calculates the next delay for the given attempt.
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	delay := time.Duration(float64(eb.initialDelay) * math.Pow(eb.multiplier, float64(attempt)))
	if delay > eb.maxDelay {
		delay = eb.maxDelay
	}
	return delay
}

// NewRetry creates a new retry instance. A nil retryable retries every error.
func NewRetry(maxAttempts int, backoff BackoffStrategy, logger Logger, retryable func(error) bool) *Retry {
	if logger == nil {
		logger = NewNoOpLogger()
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &Retry{
		maxAttempts: maxAttempts,
		backoff:     backoff,
		logger:      logger,
		retryable:   retryable,
	}
}

// Do executes fn until it succeeds, returns a non-retryable error, the
// attempts run out, or ctx is done.
func (r *Retry) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				r.logger.Debug("Operation succeeded after retry",
					Field{Key: "attempts", Value: attempt + 1},
				)
			}
			return nil
		}

		lastErr = err
		if r.retryable != nil && !r.retryable(err) {
			return err
		}

		if attempt < r.maxAttempts-1 {
			delay := r.backoff.NextDelay(attempt)
			r.logger.Warn("Operation failed, retrying",
				Field{Key: "attempt", Value: attempt + 1},
				Field{Key: "max_attempts", Value: r.maxAttempts},
				Field{Key: "delay", Value: delay},
				Field{Key: "error", Value: err},
			)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return NewAgentErrorWithCause(ErrContextCancelled, "retry aborted", ctx.Err())
			case <-timer.C:
			}
		}
	}

	return NewAgentErrorWithCause(ErrResourceExhausted,
		fmt.Sprintf("operation failed after %d attempts", r.maxAttempts), lastErr)
}
