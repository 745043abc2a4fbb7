// Package client implements the daemon connection protocol: the DaemonClient
// contract, its typed error taxonomy, connection state tracking with listener
// fan-out, reconnect backoff policy and supervisor, the live Socket.IO
// implementation, and a deterministic in-memory mock.
package client

import (
	"context"

	"github.com/mbrandt/parley/internal/wire"
)

// DaemonClient is the contract every daemon client implementation satisfies.
//
// All operations return typed errors from this package for expected failure
// modes (see Code). Operations that require an active connection fail fast
// with DAEMON_DISCONNECTED instead of attempting I/O.
type DaemonClient interface {
	// Connect establishes the daemon connection. Idempotent: connecting while
	// already connected succeeds trivially.
	Connect(ctx context.Context) error
	// Reconnect tears down and re-establishes the connection, transitioning
	// through the reconnecting status and incrementing the retry counter.
	Reconnect(ctx context.Context) error
	// Disconnect closes the connection. Idempotent.
	Disconnect(ctx context.Context) error

	// ConnectionState returns a snapshot of the current link health.
	ConnectionState() ConnectionState
	// OnConnectionStateChange registers a listener invoked synchronously, in
	// registration order, with a fresh snapshot on every transition. The
	// returned func unsubscribes.
	OnConnectionStateChange(fn func(ConnectionState)) (unsubscribe func())

	// HealthCheck probes the daemon and returns its handshake descriptor.
	HealthCheck(ctx context.Context) (wire.HealthReport, error)

	// SendMessage appends a user message and an empty assistant message. An
	// absent ConversationID implicitly creates a conversation; an unknown one
	// fails with DAEMON_NOT_FOUND.
	SendMessage(ctx context.Context, req wire.SendMessageRequest) (wire.SendMessageResult, error)
	// StreamResponse returns the single-use, ordered event sequence for an
	// assistant message. The channel closes after the complete event. Streams
	// for different message ids are isolated and may be consumed
	// concurrently.
	StreamResponse(ctx context.Context, conversationID, messageID string) (<-chan wire.StreamEvent, error)
	// CancelStream stops an active stream. Best-effort and non-blocking;
	// cancelling an unknown stream is not an error.
	CancelStream(ctx context.Context, conversationID, messageID string) error

	// ListConversations returns snapshots of all conversations.
	ListConversations(ctx context.Context) ([]wire.Conversation, error)
	// GetConversation returns a snapshot of one conversation.
	GetConversation(ctx context.Context, id string) (wire.Conversation, error)
	// CreateConversation creates an empty conversation.
	CreateConversation(ctx context.Context, req wire.CreateConversationRequest) (wire.Conversation, error)
	// UpdateConversation mutates conversation metadata.
	UpdateConversation(ctx context.Context, id string, req wire.UpdateConversationRequest) (wire.Conversation, error)
	// DeleteConversation removes a conversation.
	DeleteConversation(ctx context.Context, id string) error
}
