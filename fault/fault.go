// Package fault defines the structured error type used at the core's
// host-facing boundaries. A fault carries the lifecycle phase it occurred
// in and a kind that classifies how the boundary should react.
package fault

import (
	"fmt"
	"strings"
)

// Phase indicates which lifecycle transition the error occurred in.
type Phase string

const (
	PhaseInit      Phase = "init"
	PhaseLoad      Phase = "load"
	PhaseRun       Phase = "run"
	PhaseReset     Phase = "reset"
	PhaseSerialize Phase = "serialize"
	PhaseContext   Phase = "context"
	PhaseUnload    Phase = "unload"
	PhaseDeinit    Phase = "deinit"
)

// Kind categorizes the error.
type Kind string

const (
	KindRendererInit     Kind = "renderer_init"
	KindEngineFault      Kind = "engine_fault"
	KindInvalidContent   Kind = "invalid_content"
	KindInvalidStateSize Kind = "invalid_state_size"
	KindHostContract     Kind = "host_contract"
	KindIO               Kind = "io"
	KindUnknown          Kind = "unknown"
)

// Error is the structured error type used at core boundaries.
type Error struct {
	Phase  Phase
	Kind   Kind
	Detail string
	Cause  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by phase and kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// UserMessage returns the short host-visible message for this fault.
// The host error channel shows this to the user, so it avoids internal
// detail when the fault is unclassified.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindRendererInit:
		return "Failed to initialize the renderer. " + e.Detail
	case KindInvalidContent:
		return "The selected content could not be loaded. " + e.Detail
	case KindUnknown:
		return "An unknown error has occurred."
	default:
		if e.Detail != "" {
			return e.Detail
		}
		return e.Error()
	}
}

// New creates a fault with a formatted detail message.
func New(phase Phase, kind Kind, format string, args ...any) *Error {
	detail := format
	if len(args) > 0 {
		detail = fmt.Sprintf(format, args...)
	}
	return &Error{Phase: phase, Kind: kind, Detail: detail}
}

// Wrap wraps an existing error with phase and kind context.
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{Phase: phase, Kind: kind, Detail: detail, Cause: cause}
}

// Convenience constructors for common fault patterns

// RendererInit creates a renderer initialization failure.
func RendererInit(phase Phase, cause error) *Error {
	return &Error{Phase: phase, Kind: KindRendererInit, Cause: cause}
}

// EngineFault wraps a failure reported by the emulation engine.
func EngineFault(phase Phase, cause error) *Error {
	return &Error{Phase: phase, Kind: KindEngineFault, Cause: cause}
}

// InvalidContent creates a content validation failure.
func InvalidContent(detail string, cause error) *Error {
	return &Error{Phase: PhaseLoad, Kind: KindInvalidContent, Detail: detail, Cause: cause}
}

// StateSize creates an invalid save-state buffer size failure.
func StateSize(got, want int) *Error {
	return &Error{
		Phase:  PhaseSerialize,
		Kind:   KindInvalidStateSize,
		Detail: fmt.Sprintf("state buffer is %d bytes, expected %d", got, want),
	}
}

// Contract creates a host contract violation failure.
func Contract(phase Phase, detail string) *Error {
	return &Error{Phase: phase, Kind: KindHostContract, Detail: detail}
}

// Unclassified converts a recovered panic value into an unknown fault.
func Unclassified(phase Phase, value any) *Error {
	if err, ok := value.(error); ok {
		return &Error{Phase: phase, Kind: KindUnknown, Cause: err}
	}
	return &Error{Phase: phase, Kind: KindUnknown, Detail: fmt.Sprint(value)}
}
