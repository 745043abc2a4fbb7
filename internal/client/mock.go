package client

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mbrandt/parley/internal/wire"
	"github.com/mbrandt/parley/pkg/logger"
)

// Mock fixture defaults.
var defaultChunks = []string{"Hello", " from", " daemon"}

const (
	defaultMockDaemonVersion   = "0.4.2-mock"
	defaultMockContractVersion = "1"
	defaultMockModel           = "parley-default"
	titleMaxLen                = 40
)

// MockOptions configures the deterministic mock client.
//
// Zero values mean: real clock, no injected failures, no delays, default
// fixtures.
type MockOptions struct {
	// Now is the injected clock used for timestamps. Defaults to time.Now.
	Now func() time.Time

	// ConnectFailures fails the first N Connect calls before succeeding.
	ConnectFailures int
	// ReconnectFailures fails the first N Reconnect calls before succeeding.
	ReconnectFailures int
	// HealthFailures fails the first N HealthCheck calls before succeeding.
	HealthFailures int
	// SendFailures fails the first N SendMessage calls before succeeding.
	SendFailures int

	// OperationDelay is applied to every operation before it resolves.
	OperationDelay time.Duration
	// ChunkDelay is applied before each stream delta.
	ChunkDelay time.Duration

	// Chunks is the fixture delta sequence for every stream.
	Chunks []string
	// DaemonVersion, ContractVersion, and Capabilities populate the
	// handshake fixture.
	DaemonVersion   string
	ContractVersion string
	Capabilities    []string
}

// MockClient is a fully deterministic in-memory DaemonClient used both as an
// offline fallback and as the test harness for higher layers.
//
// The canonical mutable conversation records live solely inside the client;
// every record that leaves it is a defensive copy.
type MockClient struct {
	opts    MockOptions
	tracker *connTracker

	mu                sync.Mutex
	seq               int
	conversations     map[string]*wire.Conversation
	order             []string
	connectAttempts   int
	reconnectAttempts int
	healthAttempts    int
	sendAttempts      int
	streams           map[string]chan struct{}
}

var _ DaemonClient = (*MockClient)(nil)

// NewMockClient creates a mock client. Pass MockOptions{} for defaults.
func NewMockClient(opts MockOptions) *MockClient {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Chunks == nil {
		opts.Chunks = append([]string(nil), defaultChunks...)
	}
	if opts.DaemonVersion == "" {
		opts.DaemonVersion = defaultMockDaemonVersion
	}
	if opts.ContractVersion == "" {
		opts.ContractVersion = defaultMockContractVersion
	}
	if opts.Capabilities == nil {
		opts.Capabilities = []string{"chat", "streaming"}
	}
	return &MockClient{
		opts:          opts,
		tracker:       newConnTracker(),
		conversations: make(map[string]*wire.Conversation),
		streams:       make(map[string]chan struct{}),
	}
}

func (m *MockClient) nowMillis() int64 {
	return m.opts.Now().UnixMilli()
}

// nextID produces deterministic ids from a monotonic counter.
func (m *MockClient) nextID(kind string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", kind, m.seq)
}

// sleep waits for the configured operation delay, honoring cancellation.
func (m *MockClient) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MockClient) requireConnected(op string) *Error {
	if m.tracker.snapshot().Status != StatusConnected {
		return Disconnected(op)
	}
	return nil
}

// Connect implements DaemonClient. Connecting while connected succeeds
// trivially without a state transition.
func (m *MockClient) Connect(ctx context.Context) error {
	if m.tracker.snapshot().Status == StatusConnected {
		return nil
	}
	m.tracker.toConnecting()
	if err := m.sleep(ctx, m.opts.OperationDelay); err != nil {
		cerr := Unavailablef("connect canceled: %v", err)
		m.tracker.toDisconnected(cerr)
		return cerr
	}

	m.mu.Lock()
	m.connectAttempts++
	fail := m.connectAttempts <= m.opts.ConnectFailures
	m.mu.Unlock()

	if fail {
		cerr := Unavailable("mock daemon refused the connection", "retry, or continue offline")
		m.tracker.toDisconnected(cerr)
		return cerr
	}
	m.tracker.toConnected(m.opts.Now())
	return nil
}

// Reconnect implements DaemonClient.
func (m *MockClient) Reconnect(ctx context.Context) error {
	m.tracker.toReconnecting()
	if err := m.sleep(ctx, m.opts.OperationDelay); err != nil {
		cerr := Unavailablef("reconnect canceled: %v", err)
		m.tracker.toDisconnected(cerr)
		return cerr
	}

	m.mu.Lock()
	m.reconnectAttempts++
	fail := m.reconnectAttempts <= m.opts.ReconnectFailures
	m.mu.Unlock()

	if fail {
		cerr := Unavailable("mock daemon refused the reconnect", "")
		m.tracker.toDisconnected(cerr)
		return cerr
	}
	m.tracker.toConnected(m.opts.Now())
	return nil
}

// Disconnect implements DaemonClient. Active streams are cancelled
// best-effort.
func (m *MockClient) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	for key, cancel := range m.streams {
		delete(m.streams, key)
		close(cancel)
	}
	m.mu.Unlock()

	m.tracker.toDisconnected(nil)
	return nil
}

// ConnectionState implements DaemonClient.
func (m *MockClient) ConnectionState() ConnectionState {
	return m.tracker.snapshot()
}

// OnConnectionStateChange implements DaemonClient.
func (m *MockClient) OnConnectionStateChange(fn func(ConnectionState)) func() {
	return m.tracker.subscribe(fn)
}

// HealthCheck implements DaemonClient.
func (m *MockClient) HealthCheck(ctx context.Context) (wire.HealthReport, error) {
	if err := m.requireConnected("health check"); err != nil {
		return wire.HealthReport{}, err
	}
	if err := m.sleep(ctx, m.opts.OperationDelay); err != nil {
		return wire.HealthReport{}, Unavailablef("health check canceled: %v", err)
	}

	m.mu.Lock()
	m.healthAttempts++
	fail := m.healthAttempts <= m.opts.HealthFailures
	m.mu.Unlock()

	if fail {
		return wire.HealthReport{}, Unavailable("mock daemon health check failed", "")
	}
	return wire.HealthReport{
		Healthy:   true,
		Timestamp: m.nowMillis(),
		Handshake: wire.Handshake{
			DaemonVersion:   m.opts.DaemonVersion,
			ContractVersion: m.opts.ContractVersion,
			Capabilities:    append([]string(nil), m.opts.Capabilities...),
		},
	}, nil
}

// SendMessage implements DaemonClient.
func (m *MockClient) SendMessage(ctx context.Context, req wire.SendMessageRequest) (wire.SendMessageResult, error) {
	if err := m.requireConnected("send message"); err != nil {
		return wire.SendMessageResult{}, err
	}
	if err := m.sleep(ctx, m.opts.OperationDelay); err != nil {
		return wire.SendMessageResult{}, Unavailablef("send canceled: %v", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sendAttempts++
	if m.sendAttempts <= m.opts.SendFailures {
		return wire.SendMessageResult{}, Unavailable("mock daemon rejected the message", "")
	}

	now := m.nowMillis()
	var conv *wire.Conversation
	if req.ConversationID == "" {
		conv = m.createConversationLocked(titleFromContent(req.Content), req.Model, now)
	} else {
		var ok bool
		conv, ok = m.conversations[req.ConversationID]
		if !ok {
			return wire.SendMessageResult{}, NotFound("conversation %s does not exist", req.ConversationID)
		}
	}

	userMsg := wire.Message{
		ID:        m.nextID("msg"),
		Role:      wire.RoleUser,
		Content:   req.Content,
		CreatedAt: now,
	}
	assistantMsg := wire.Message{
		ID:        m.nextID("msg"),
		Role:      wire.RoleAssistant,
		CreatedAt: now,
	}
	conv.Messages = append(conv.Messages, userMsg, assistantMsg)
	conv.MessageCount = len(conv.Messages)
	conv.UpdatedAt = now

	return wire.SendMessageResult{
		ConversationID:     conv.ID,
		UserMessageID:      userMsg.ID,
		AssistantMessageID: assistantMsg.ID,
	}, nil
}

// StreamResponse implements DaemonClient. The producing goroutine stops when
// ctx is cancelled, when CancelStream is called, or after the complete event.
func (m *MockClient) StreamResponse(ctx context.Context, conversationID, messageID string) (<-chan wire.StreamEvent, error) {
	if err := m.requireConnected("stream response"); err != nil {
		return nil, err
	}

	m.mu.Lock()
	conv, ok := m.conversations[conversationID]
	if !ok {
		m.mu.Unlock()
		return nil, NotFound("conversation %s does not exist", conversationID)
	}
	var target *wire.Message
	for i := range conv.Messages {
		if conv.Messages[i].ID == messageID {
			target = &conv.Messages[i]
			break
		}
	}
	if target == nil {
		m.mu.Unlock()
		return nil, NotFound("message %s does not exist in conversation %s", messageID, conversationID)
	}
	if target.Role != wire.RoleAssistant {
		m.mu.Unlock()
		return nil, NotFound("message %s is not an assistant message", messageID)
	}

	chunks := append([]string(nil), m.opts.Chunks...)
	key := streamKey(conversationID, messageID)
	cancel := make(chan struct{})
	m.streams[key] = cancel
	m.mu.Unlock()

	ch := make(chan wire.StreamEvent)
	go m.runStream(ctx, key, conversationID, messageID, chunks, ch, cancel)
	return ch, nil
}

// runStream emits start, deltas, and complete for one stream. Each stream
// owns its accumulator, so concurrent streams never cross-contaminate.
func (m *MockClient) runStream(
	ctx context.Context,
	key, conversationID, messageID string,
	chunks []string,
	ch chan wire.StreamEvent,
	cancel <-chan struct{},
) {
	defer close(ch)
	defer m.dropStream(key)

	emit := func(ev wire.StreamEvent) bool {
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		case <-cancel:
			return false
		}
	}

	if !emit(wire.StreamEvent{
		T:              wire.StreamStart,
		ConversationID: conversationID,
		MessageID:      messageID,
		Timestamp:      m.nowMillis(),
	}) {
		return
	}

	var content strings.Builder
	for _, chunk := range chunks {
		if m.opts.ChunkDelay > 0 {
			timer := time.NewTimer(m.opts.ChunkDelay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			case <-cancel:
				timer.Stop()
				return
			}
		}
		content.WriteString(chunk)
		m.appendAssistantContent(conversationID, messageID, chunk)
		if !emit(wire.StreamEvent{
			T:              wire.StreamDelta,
			ConversationID: conversationID,
			MessageID:      messageID,
			Delta:          chunk,
			Timestamp:      m.nowMillis(),
		}) {
			return
		}
	}

	final := content.String()
	m.freezeAssistantContent(conversationID, messageID, final)
	emit(wire.StreamEvent{
		T:              wire.StreamComplete,
		ConversationID: conversationID,
		MessageID:      messageID,
		Content:        final,
		Timestamp:      m.nowMillis(),
	})
}

// appendAssistantContent grows the canonical assistant message by one delta.
func (m *MockClient) appendAssistantContent(conversationID, messageID, delta string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[conversationID]
	if !ok {
		return
	}
	for i := range conv.Messages {
		if conv.Messages[i].ID == messageID {
			conv.Messages[i].Content += delta
			conv.UpdatedAt = m.nowMillis()
			return
		}
	}
}

// freezeAssistantContent sets the final content; the complete event is
// authoritative over the delta concatenation.
func (m *MockClient) freezeAssistantContent(conversationID, messageID, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[conversationID]
	if !ok {
		return
	}
	for i := range conv.Messages {
		if conv.Messages[i].ID == messageID {
			conv.Messages[i].Content = content
			conv.UpdatedAt = m.nowMillis()
			return
		}
	}
}

func (m *MockClient) dropStream(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.streams, key)
}

// CancelStream implements DaemonClient. Always succeeds: with no external
// stream to interrupt there is nothing that can fail.
func (m *MockClient) CancelStream(ctx context.Context, conversationID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := streamKey(conversationID, messageID)
	if cancel, ok := m.streams[key]; ok {
		delete(m.streams, key)
		close(cancel)
		logger.Debugf("mock: cancelled stream %s", key)
	}
	return nil
}

// ListConversations implements DaemonClient.
func (m *MockClient) ListConversations(ctx context.Context) ([]wire.Conversation, error) {
	if err := m.requireConnected("list conversations"); err != nil {
		return nil, err
	}
	if err := m.sleep(ctx, m.opts.OperationDelay); err != nil {
		return nil, Unavailablef("list canceled: %v", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]wire.Conversation, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, cloneConversation(m.conversations[id]))
	}
	return out, nil
}

// GetConversation implements DaemonClient.
func (m *MockClient) GetConversation(ctx context.Context, id string) (wire.Conversation, error) {
	if err := m.requireConnected("get conversation"); err != nil {
		return wire.Conversation{}, err
	}
	if err := m.sleep(ctx, m.opts.OperationDelay); err != nil {
		return wire.Conversation{}, Unavailablef("get canceled: %v", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[id]
	if !ok {
		return wire.Conversation{}, NotFound("conversation %s does not exist", id)
	}
	return cloneConversation(conv), nil
}

// CreateConversation implements DaemonClient.
func (m *MockClient) CreateConversation(ctx context.Context, req wire.CreateConversationRequest) (wire.Conversation, error) {
	if err := m.requireConnected("create conversation"); err != nil {
		return wire.Conversation{}, err
	}
	if err := m.sleep(ctx, m.opts.OperationDelay); err != nil {
		return wire.Conversation{}, Unavailablef("create canceled: %v", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	conv := m.createConversationLocked(req.Title, req.Model, m.nowMillis())
	return cloneConversation(conv), nil
}

func (m *MockClient) createConversationLocked(title, model string, now int64) *wire.Conversation {
	if title == "" {
		title = "New conversation"
	}
	if model == "" {
		model = defaultMockModel
	}
	conv := &wire.Conversation{
		ID:        m.nextID("conv"),
		Title:     title,
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.conversations[conv.ID] = conv
	m.order = append(m.order, conv.ID)
	return conv
}

// UpdateConversation implements DaemonClient.
func (m *MockClient) UpdateConversation(ctx context.Context, id string, req wire.UpdateConversationRequest) (wire.Conversation, error) {
	if err := m.requireConnected("update conversation"); err != nil {
		return wire.Conversation{}, err
	}
	if err := m.sleep(ctx, m.opts.OperationDelay); err != nil {
		return wire.Conversation{}, Unavailablef("update canceled: %v", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[id]
	if !ok {
		return wire.Conversation{}, NotFound("conversation %s does not exist", id)
	}
	if req.Title != nil {
		conv.Title = *req.Title
	}
	if req.Model != nil {
		conv.Model = *req.Model
	}
	conv.UpdatedAt = m.nowMillis()
	return cloneConversation(conv), nil
}

// DeleteConversation implements DaemonClient.
func (m *MockClient) DeleteConversation(ctx context.Context, id string) error {
	if err := m.requireConnected("delete conversation"); err != nil {
		return err
	}
	if err := m.sleep(ctx, m.opts.OperationDelay); err != nil {
		return Unavailablef("delete canceled: %v", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[id]; !ok {
		return NotFound("conversation %s does not exist", id)
	}
	delete(m.conversations, id)
	for i, cid := range m.order {
		if cid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func streamKey(conversationID, messageID string) string {
	return conversationID + "/" + messageID
}

// cloneConversation deep-copies a record so callers cannot mutate internal
// state by reference.
func cloneConversation(c *wire.Conversation) wire.Conversation {
	cp := *c
	cp.Messages = append([]wire.Message(nil), c.Messages...)
	return cp
}

func titleFromContent(content string) string {
	title := strings.TrimSpace(content)
	if title == "" {
		return "New conversation"
	}
	if len(title) > titleMaxLen {
		title = title[:titleMaxLen]
	}
	return title
}
