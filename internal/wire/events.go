// Package wire defines the JSON payloads exchanged with the Parley daemon.
//
// Stream events are discriminated JSON objects with a `t` field, matching the
// daemon's update envelope convention. Timestamps are wall-clock milliseconds
// since epoch.
package wire

// StreamEventType discriminates stream event payloads.
type StreamEventType string

const (
	// StreamStart opens a response stream. Emitted exactly once per stream.
	StreamStart StreamEventType = "start"
	// StreamDelta carries one content increment.
	StreamDelta StreamEventType = "delta"
	// StreamComplete terminates a stream and carries the final content.
	// The content field is authoritative over the delta concatenation.
	StreamComplete StreamEventType = "complete"
)

// StreamEvent is one unit of the ordered start/delta/complete sequence for a
// single assistant response.
type StreamEvent struct {
	// T is the event discriminator.
	T StreamEventType `json:"t"`
	// ConversationID is the owning conversation id.
	ConversationID string `json:"conversationId"`
	// MessageID is the assistant message being streamed.
	MessageID string `json:"messageId"`
	// Delta is the content increment; only set for `t == "delta"`.
	Delta string `json:"delta,omitempty"`
	// Content is the final assembled content; only set for `t == "complete"`.
	Content string `json:"content,omitempty"`
	// Timestamp is ms since epoch at emission time.
	Timestamp int64 `json:"timestamp"`
}

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in a conversation.
type Message struct {
	// ID is the message id.
	ID string `json:"id"`
	// Role is "user" or "assistant".
	Role Role `json:"role"`
	// Content is the message text. Assistant content grows monotonically
	// while a stream is active and is frozen at complete.
	Content string `json:"content"`
	// CreatedAt is ms since epoch.
	CreatedAt int64 `json:"createdAt"`
}

// Conversation is a chat thread snapshot.
type Conversation struct {
	// ID is the conversation id.
	ID string `json:"id"`
	// Title is the display title.
	Title string `json:"title"`
	// Model is the assistant model tag.
	Model string `json:"model"`
	// MessageCount is len(Messages), kept explicit for list views that omit
	// message bodies.
	MessageCount int `json:"messageCount"`
	// CreatedAt is ms since epoch.
	CreatedAt int64 `json:"createdAt"`
	// UpdatedAt is ms since epoch of the last append or stream completion.
	UpdatedAt int64 `json:"updatedAt"`
	// Messages are the ordered turns.
	Messages []Message `json:"messages"`
}

// Handshake is the capability/version exchange returned by a health check.
type Handshake struct {
	// DaemonVersion is the daemon build version.
	DaemonVersion string `json:"daemonVersion"`
	// ContractVersion is the protocol contract version.
	ContractVersion string `json:"contractVersion"`
	// Capabilities gates feature availability for callers.
	Capabilities []string `json:"capabilities"`
}

// HealthReport is the health check response.
type HealthReport struct {
	// Healthy reports whether the daemon considers itself serviceable.
	Healthy bool `json:"healthy"`
	// Timestamp is ms since epoch when the probe was answered.
	Timestamp int64 `json:"timestamp"`
	// Handshake is the version/capability descriptor.
	Handshake Handshake `json:"handshake"`
}

// SendMessageRequest dispatches a user turn.
//
// An empty ConversationID implicitly creates a conversation.
type SendMessageRequest struct {
	// ConversationID targets an existing conversation when set.
	ConversationID string `json:"conversationId,omitempty"`
	// LocalID is the client idempotency key; the daemon deduplicates sends
	// that carry the same value.
	LocalID string `json:"localId,omitempty"`
	// Content is the user message text.
	Content string `json:"content"`
	// Model optionally overrides the model for an implicitly created
	// conversation.
	Model string `json:"model,omitempty"`
}

// SendMessageResult identifies the records created by a send.
type SendMessageResult struct {
	// ConversationID is the (possibly new) conversation id.
	ConversationID string `json:"conversationId"`
	// UserMessageID is the appended user message.
	UserMessageID string `json:"userMessageId"`
	// AssistantMessageID is the empty assistant message the stream will fill.
	AssistantMessageID string `json:"assistantMessageId"`
}

// CreateConversationRequest creates an empty conversation.
type CreateConversationRequest struct {
	Title string `json:"title,omitempty"`
	Model string `json:"model,omitempty"`
}

// UpdateConversationRequest mutates conversation metadata. Nil fields are
// left unchanged.
type UpdateConversationRequest struct {
	Title *string `json:"title,omitempty"`
	Model *string `json:"model,omitempty"`
}

// StreamRequest asks the daemon to begin emitting events for an assistant
// message.
type StreamRequest struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}
