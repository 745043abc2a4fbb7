// Package status implements the conversation lifecycle machine: the pure
// state machine that maps client and stream events onto the UI-facing
// conversation status.
//
// Reduce is a pure function in the reducer style used elsewhere in the
// codebase: no I/O, no clocks, deterministic for a given (state, event). Any
// event that is not valid for the current phase is a no-op returning the
// state unchanged, which makes the machine safe against duplicate or
// late-arriving events from a torn-down stream.
package status

import (
	"github.com/mbrandt/parley/internal/client"
	"github.com/mbrandt/parley/internal/wire"
)

// Phase is the UI-facing conversation status.
type Phase string

const (
	// PhaseIdle means nothing is in flight.
	PhaseIdle Phase = "idle"
	// PhaseSending means the user message is dispatched, awaiting ack.
	PhaseSending Phase = "sending"
	// PhaseThinking means the ack arrived but no content yet.
	PhaseThinking Phase = "thinking"
	// PhaseStreaming means content or tool activity is arriving.
	PhaseStreaming Phase = "streaming"
	// PhaseComplete is the terminal success state.
	PhaseComplete Phase = "complete"
	// PhaseError is the terminal failure state.
	PhaseError Phase = "error"
)

// State is one lifecycle snapshot. Each phase only populates the fields
// relevant to it: ids from sending onward, ChunkCount while streaming (and
// retained through complete), Err and Interrupted only in error.
type State struct {
	Phase          Phase
	ConversationID string
	MessageID      string
	ChunkCount     int
	Err            *client.Error
	// Interrupted is the phase a stream error cut short.
	Interrupted Phase
}

// Initial returns the idle starting state.
func Initial() State {
	return State{Phase: PhaseIdle}
}

// Event is the closed union of lifecycle machine inputs.
type Event interface {
	isStatusEvent()
}

// EventBase implements the Event marker; embed it in every event type.
type EventBase struct{}

func (EventBase) isStatusEvent() {}

// UserSend dispatches a user message.
type UserSend struct {
	EventBase
	ConversationID string
}

// MessageAck acknowledges a send with the created ids.
type MessageAck struct {
	EventBase
	ConversationID string
	MessageID      string
}

// StreamStart marks the stream opening.
type StreamStart struct{ EventBase }

// StreamChunk marks one content increment.
type StreamChunk struct{ EventBase }

// ToolCallStart marks the beginning of tool activity.
type ToolCallStart struct {
	EventBase
	Tool string
}

// ToolCallComplete marks the end of tool activity.
type ToolCallComplete struct {
	EventBase
	Tool string
}

// StreamComplete marks the terminal success of a stream.
type StreamComplete struct{ EventBase }

// CompleteTimeout dismisses the complete state back to idle.
type CompleteTimeout struct{ EventBase }

// DismissError dismisses the error state back to idle.
type DismissError struct{ EventBase }

// StreamError reports a failure from any operation; the machine collapses
// all failure handling to this one transition.
type StreamError struct {
	EventBase
	Err *client.Error
}

// Reset unconditionally returns to idle.
type Reset struct{ EventBase }

// Reduce applies one event to the state.
//
// The default arm of every guard is "return s unchanged": unlisted
// (phase, event) pairs are deliberate no-ops, not errors.
func Reduce(s State, ev Event) State {
	switch ev := ev.(type) {
	case UserSend:
		if s.Phase == PhaseIdle || s.Phase == PhaseComplete || s.Phase == PhaseError {
			return State{Phase: PhaseSending, ConversationID: ev.ConversationID}
		}

	case MessageAck:
		if s.Phase == PhaseSending {
			return State{
				Phase:          PhaseThinking,
				ConversationID: ev.ConversationID,
				MessageID:      ev.MessageID,
			}
		}

	case StreamStart:
		if s.Phase == PhaseThinking {
			s.Phase = PhaseStreaming
			s.ChunkCount = 0
			return s
		}

	case StreamChunk:
		switch s.Phase {
		case PhaseThinking:
			// A chunk without a preceding start still counts as streaming.
			s.Phase = PhaseStreaming
			s.ChunkCount = 1
			return s
		case PhaseStreaming:
			s.ChunkCount++
			return s
		}

	case ToolCallStart:
		if s.Phase == PhaseThinking {
			s.Phase = PhaseStreaming
			s.ChunkCount = 0
			return s
		}

	case ToolCallComplete:
		if s.Phase == PhaseThinking {
			s.Phase = PhaseStreaming
			s.ChunkCount = 0
			return s
		}

	case StreamComplete:
		if s.Phase == PhaseThinking || s.Phase == PhaseStreaming {
			// Ids and chunk count are retained for display.
			s.Phase = PhaseComplete
			return s
		}

	case CompleteTimeout:
		if s.Phase == PhaseComplete {
			return State{Phase: PhaseIdle}
		}

	case DismissError:
		if s.Phase == PhaseError {
			return State{Phase: PhaseIdle}
		}

	case StreamError:
		return State{
			Phase:          PhaseError,
			ConversationID: s.ConversationID,
			MessageID:      s.MessageID,
			Err:            ev.Err,
			Interrupted:    s.Phase,
		}

	case Reset:
		return State{Phase: PhaseIdle}
	}

	return s
}

// FromWire translates a wire stream event into its lifecycle machine event.
func FromWire(ev wire.StreamEvent) Event {
	switch ev.T {
	case wire.StreamStart:
		return StreamStart{}
	case wire.StreamDelta:
		return StreamChunk{}
	case wire.StreamComplete:
		return StreamComplete{}
	default:
		// Unknown wire events reduce to a no-op from every phase.
		return noop{}
	}
}

// noop is an event no transition matches; Reduce returns the state
// unchanged.
type noop struct{ EventBase }
