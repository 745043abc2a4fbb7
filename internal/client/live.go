package client

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	socket "github.com/zishang520/socket.io/clients/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"
	"resty.dev/v3"

	"github.com/mbrandt/parley/internal/crypto"
	"github.com/mbrandt/parley/internal/wire"
	"github.com/mbrandt/parley/pkg/logger"
)

const (
	// streamPath is the Socket.IO mount point on the daemon.
	streamPath = "/v1/stream"

	defaultConnectTimeout = 10 * time.Second
	defaultAckTimeout     = 5 * time.Second

	// streamBufferSize bounds the per-stream event buffer between the socket
	// handler and the consumer. Events beyond it are dropped with a warning
	// rather than blocking the socket handler.
	streamBufferSize = 256
)

// Socket event names.
const (
	eventMessage        = "message"
	eventStream         = "stream"
	eventStreamResponse = "stream-response"
	eventStreamCancel   = "stream-cancel"
)

// LiveOptions configures the live client.
type LiveOptions struct {
	// ServerURL is the daemon base URL.
	ServerURL string
	// Token is the access token presented in the Socket.IO auth payload and
	// HTTP requests.
	Token string
	// DataKey optionally seals message payloads with SecretBox; must be
	// crypto.KeySize bytes when set.
	DataKey []byte
	// ConnectTimeout bounds how long Connect waits for the socket to report
	// connected.
	ConnectTimeout time.Duration
	// AckTimeout bounds emit-with-ack round trips.
	AckTimeout time.Duration
	// Now is the injected clock. Defaults to time.Now.
	Now func() time.Time
}

// liveStream is the consumer-facing side of one active response stream.
type liveStream struct {
	ch   chan wire.StreamEvent
	stop chan struct{}
	once sync.Once
}

func (s *liveStream) close() {
	s.once.Do(func() {
		close(s.stop)
		close(s.ch)
	})
}

// LiveClient is the DaemonClient implementation backed by the daemon's
// Socket.IO stream endpoint and HTTP API.
type LiveClient struct {
	opts    LiveOptions
	tracker *connTracker
	http    *resty.Client

	mu      sync.RWMutex
	sock    *socket.Socket
	closing bool
	streams map[string]*liveStream
}

var _ DaemonClient = (*LiveClient)(nil)

// NewLiveClient creates a live client. Connect must be called before use.
func NewLiveClient(opts LiveOptions) *LiveClient {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = defaultAckTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	httpClient := resty.New().
		SetBaseURL(opts.ServerURL).
		SetAuthToken(opts.Token)
	return &LiveClient{
		opts:    opts,
		tracker: newConnTracker(),
		http:    httpClient,
		streams: make(map[string]*liveStream),
	}
}

// Connect implements DaemonClient.
func (c *LiveClient) Connect(ctx context.Context) error {
	if c.tracker.snapshot().Status == StatusConnected {
		return nil
	}
	c.tracker.toConnecting()
	if err := c.dial(ctx); err != nil {
		c.tracker.toDisconnected(err)
		return err
	}
	c.tracker.toConnected(c.opts.Now())
	return nil
}

// Reconnect implements DaemonClient.
func (c *LiveClient) Reconnect(ctx context.Context) error {
	c.tracker.toReconnecting()
	c.teardown()
	if err := c.dial(ctx); err != nil {
		c.tracker.toDisconnected(err)
		return err
	}
	c.tracker.toConnected(c.opts.Now())
	return nil
}

// Disconnect implements DaemonClient.
func (c *LiveClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	c.closing = true
	c.mu.Unlock()

	c.teardown()
	c.tracker.toDisconnected(nil)

	c.mu.Lock()
	c.closing = false
	c.mu.Unlock()
	return nil
}

// teardown closes the socket and all active streams.
func (c *LiveClient) teardown() {
	c.mu.Lock()
	sock := c.sock
	c.sock = nil
	streams := c.streams
	c.streams = make(map[string]*liveStream)
	c.mu.Unlock()

	for _, s := range streams {
		s.close()
	}
	if sock != nil {
		sock.Disconnect()
	}
}

// dial establishes the Socket.IO connection and waits for it to come up.
func (c *LiveClient) dial(ctx context.Context) *Error {
	if c.opts.Token != "" && crypto.TokenExpired(c.opts.Token, c.opts.Now()) {
		return Unavailable("access token is expired", "re-authenticate to obtain a fresh token")
	}

	opts := socket.DefaultOptions()
	opts.SetPath(streamPath)
	opts.SetTransports(types.NewSet(socket.Polling, socket.WebSocket))
	opts.SetAuth(map[string]interface{}{
		"token":      c.opts.Token,
		"clientType": "terminal",
	})

	sock, err := socket.Connect(c.opts.ServerURL, opts)
	if err != nil {
		return Unavailablef("failed to connect to %s: %v", c.opts.ServerURL, err)
	}

	sock.On(types.EventName("connect"), func(args ...any) {
		logger.Debugf("daemon socket connected, id=%s", sock.Id())
	})
	sock.On(types.EventName("disconnect"), func(args ...any) {
		c.onSocketDisconnect(args...)
	})
	sock.On(types.EventName("connect_error"), func(args ...any) {
		if len(args) > 0 {
			logger.Warnf("daemon socket connect error: %v", args[0])
		}
	})
	sock.On(types.EventName(eventStream), func(args ...any) {
		c.onStreamEvent(args...)
	})

	c.mu.Lock()
	c.sock = sock
	c.mu.Unlock()

	// Poll for the connected flag; the socket library reports connect
	// asynchronously.
	deadline := c.opts.Now().Add(c.opts.ConnectTimeout)
	for {
		if sock.Connected() {
			return nil
		}
		if c.opts.Now().After(deadline) {
			c.teardown()
			return Unavailablef("timed out connecting to %s", c.opts.ServerURL)
		}
		select {
		case <-ctx.Done():
			c.teardown()
			return Unavailablef("connect canceled: %v", ctx.Err())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// onSocketDisconnect records an unsolicited transport drop. Deliberate
// Disconnect calls are filtered via the closing flag so they do not surface
// as errors (or wake the reconnect supervisor).
func (c *LiveClient) onSocketDisconnect(args ...any) {
	c.mu.RLock()
	closing := c.closing
	c.mu.RUnlock()
	if closing {
		return
	}
	if c.tracker.snapshot().Status != StatusConnected {
		return
	}

	reason := ""
	if len(args) > 0 {
		if r, ok := args[0].(string); ok {
			reason = r
		}
	}
	logger.Warnf("daemon connection lost: %s", reason)
	c.tracker.toDisconnected(Unavailablef("connection lost: %s", reason))
}

// onStreamEvent routes one wire event to its stream's channel.
func (c *LiveClient) onStreamEvent(args ...any) {
	if len(args) == 0 {
		return
	}
	data, ok := args[0].(map[string]interface{})
	if !ok {
		logger.Tracef("stream event payload is %T, ignoring", args[0])
		return
	}
	var ev wire.StreamEvent
	if err := decodePayload(data, &ev); err != nil {
		logger.Warnf("failed to decode stream event: %v", err)
		return
	}
	c.unsealEvent(&ev)

	key := streamKey(ev.ConversationID, ev.MessageID)
	c.mu.RLock()
	stream, ok := c.streams[key]
	c.mu.RUnlock()
	if !ok {
		// Late event from a torn-down stream; the lifecycle machine treats
		// these as no-ops too.
		logger.Tracef("dropping event for inactive stream %s", key)
		return
	}

	select {
	case stream.ch <- ev:
	case <-stream.stop:
		return
	default:
		logger.Warnf("stream %s buffer full, dropping %s event", key, ev.T)
		return
	}

	if ev.T == wire.StreamComplete {
		c.dropLiveStream(key, stream)
	}
}

// unsealEvent decrypts sealed delta/content fields when a data key is
// configured. Plain payloads pass through untouched for daemons running
// without sealing.
func (c *LiveClient) unsealEvent(ev *wire.StreamEvent) {
	if len(c.opts.DataKey) == 0 {
		return
	}
	if ev.Delta != "" {
		if plain, err := crypto.OpenString(ev.Delta, c.opts.DataKey); err == nil {
			ev.Delta = plain
		}
	}
	if ev.Content != "" {
		if plain, err := crypto.OpenString(ev.Content, c.opts.DataKey); err == nil {
			ev.Content = plain
		}
	}
}

func (c *LiveClient) dropLiveStream(key string, stream *liveStream) {
	c.mu.Lock()
	if c.streams[key] == stream {
		delete(c.streams, key)
	}
	c.mu.Unlock()
	stream.close()
}

// ConnectionState implements DaemonClient.
func (c *LiveClient) ConnectionState() ConnectionState {
	return c.tracker.snapshot()
}

// OnConnectionStateChange implements DaemonClient.
func (c *LiveClient) OnConnectionStateChange(fn func(ConnectionState)) func() {
	return c.tracker.subscribe(fn)
}

func (c *LiveClient) requireConnected(op string) *Error {
	if c.tracker.snapshot().Status != StatusConnected {
		return Disconnected(op)
	}
	return nil
}

// emitWithAck sends an event and waits for the ack payload.
func (c *LiveClient) emitWithAck(ctx context.Context, event string, data any) (map[string]interface{}, *Error) {
	c.mu.RLock()
	sock := c.sock
	c.mu.RUnlock()
	if sock == nil {
		return nil, Disconnected(event)
	}

	resultCh := make(chan map[string]interface{}, 1)
	errCh := make(chan error, 1)

	sock.Emit(event, data, func(args []any, err error) {
		if err != nil {
			errCh <- err
			return
		}
		if len(args) == 0 {
			resultCh <- nil
			return
		}
		if payload, ok := args[0].(map[string]interface{}); ok {
			resultCh <- payload
			return
		}
		resultCh <- nil
	})

	select {
	case res := <-resultCh:
		if res == nil {
			return nil, Unavailablef("%s: missing ack", event)
		}
		return res, nil
	case err := <-errCh:
		return nil, Unavailablef("%s failed: %v", event, err)
	case <-ctx.Done():
		return nil, Unavailablef("%s canceled: %v", event, ctx.Err())
	case <-time.After(c.opts.AckTimeout):
		return nil, Unavailablef("%s: ack timeout", event)
	}
}

// ackEnvelope is the daemon's common ack shape.
type ackEnvelope struct {
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

// HealthCheck implements DaemonClient via the HTTP health endpoint.
func (c *LiveClient) HealthCheck(ctx context.Context) (wire.HealthReport, error) {
	if err := c.requireConnected("health check"); err != nil {
		return wire.HealthReport{}, err
	}

	var report wire.HealthReport
	res, err := c.http.R().
		SetContext(ctx).
		SetResult(&report).
		Get("/v1/health")
	if err != nil {
		return wire.HealthReport{}, Unavailablef("health check failed: %v", err)
	}
	if res.IsError() {
		return wire.HealthReport{}, Unavailablef("health check failed: status %d", res.StatusCode())
	}
	return report, nil
}

// SendMessage implements DaemonClient.
func (c *LiveClient) SendMessage(ctx context.Context, req wire.SendMessageRequest) (wire.SendMessageResult, error) {
	if err := c.requireConnected("send message"); err != nil {
		return wire.SendMessageResult{}, err
	}

	content := req.Content
	if len(c.opts.DataKey) > 0 {
		sealed, err := crypto.SealString(content, c.opts.DataKey)
		if err != nil {
			return wire.SendMessageResult{}, Unavailablef("failed to seal message: %v", err)
		}
		content = sealed
	}

	localID := req.LocalID
	if localID == "" {
		localID = uuid.NewString()
	}

	ack, aerr := c.emitWithAck(ctx, eventMessage, wire.SendMessageRequest{
		ConversationID: req.ConversationID,
		LocalID:        localID,
		Content:        content,
		Model:          req.Model,
	})
	if aerr != nil {
		return wire.SendMessageResult{}, aerr
	}

	var decoded struct {
		ackEnvelope
		wire.SendMessageResult
	}
	if err := decodePayload(ack, &decoded); err != nil {
		return wire.SendMessageResult{}, Unavailablef("malformed send ack: %v", err)
	}
	switch decoded.Result {
	case "success":
		return decoded.SendMessageResult, nil
	case "not-found":
		return wire.SendMessageResult{}, NotFound("conversation %s does not exist", req.ConversationID)
	default:
		return wire.SendMessageResult{}, Unavailablef("send message failed: %s", decoded.Error)
	}
}

// StreamResponse implements DaemonClient.
func (c *LiveClient) StreamResponse(ctx context.Context, conversationID, messageID string) (<-chan wire.StreamEvent, error) {
	if err := c.requireConnected("stream response"); err != nil {
		return nil, err
	}

	key := streamKey(conversationID, messageID)
	stream := &liveStream{
		ch:   make(chan wire.StreamEvent, streamBufferSize),
		stop: make(chan struct{}),
	}

	c.mu.Lock()
	c.streams[key] = stream
	c.mu.Unlock()

	ack, aerr := c.emitWithAck(ctx, eventStreamResponse, wire.StreamRequest{
		ConversationID: conversationID,
		MessageID:      messageID,
	})
	if aerr != nil {
		c.dropLiveStream(key, stream)
		return nil, aerr
	}

	var decoded ackEnvelope
	if err := decodePayload(ack, &decoded); err != nil {
		c.dropLiveStream(key, stream)
		return nil, Unavailablef("malformed stream ack: %v", err)
	}
	switch decoded.Result {
	case "success":
	case "not-found":
		c.dropLiveStream(key, stream)
		return nil, NotFound("no assistant message %s in conversation %s", messageID, conversationID)
	default:
		c.dropLiveStream(key, stream)
		return nil, Unavailablef("stream request failed: %s", decoded.Error)
	}

	// Tie the stream to the caller's context.
	go func() {
		select {
		case <-ctx.Done():
			c.dropLiveStream(key, stream)
		case <-stream.stop:
		}
	}()

	return stream.ch, nil
}

// CancelStream implements DaemonClient. Best-effort on both sides: the
// daemon is told to stop, the local stream closes immediately.
func (c *LiveClient) CancelStream(ctx context.Context, conversationID, messageID string) error {
	c.mu.RLock()
	sock := c.sock
	key := streamKey(conversationID, messageID)
	stream, ok := c.streams[key]
	c.mu.RUnlock()

	if sock != nil {
		sock.Emit(eventStreamCancel, wire.StreamRequest{
			ConversationID: conversationID,
			MessageID:      messageID,
		})
	}
	if ok {
		c.dropLiveStream(key, stream)
	}
	return nil
}

// ListConversations implements DaemonClient.
func (c *LiveClient) ListConversations(ctx context.Context) ([]wire.Conversation, error) {
	if err := c.requireConnected("list conversations"); err != nil {
		return nil, err
	}
	var out []wire.Conversation
	if err := c.get(ctx, "/v1/conversations", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetConversation implements DaemonClient.
func (c *LiveClient) GetConversation(ctx context.Context, id string) (wire.Conversation, error) {
	if err := c.requireConnected("get conversation"); err != nil {
		return wire.Conversation{}, err
	}
	var out wire.Conversation
	if err := c.get(ctx, "/v1/conversations/"+id, &out); err != nil {
		return wire.Conversation{}, err
	}
	return out, nil
}

// CreateConversation implements DaemonClient.
func (c *LiveClient) CreateConversation(ctx context.Context, req wire.CreateConversationRequest) (wire.Conversation, error) {
	if err := c.requireConnected("create conversation"); err != nil {
		return wire.Conversation{}, err
	}
	var out wire.Conversation
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/v1/conversations")
	if err != nil {
		return wire.Conversation{}, Unavailablef("create conversation failed: %v", err)
	}
	if res.IsError() {
		return wire.Conversation{}, httpError(res.StatusCode(), "create conversation")
	}
	return out, nil
}

// UpdateConversation implements DaemonClient.
func (c *LiveClient) UpdateConversation(ctx context.Context, id string, req wire.UpdateConversationRequest) (wire.Conversation, error) {
	if err := c.requireConnected("update conversation"); err != nil {
		return wire.Conversation{}, err
	}
	var out wire.Conversation
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Patch("/v1/conversations/" + id)
	if err != nil {
		return wire.Conversation{}, Unavailablef("update conversation failed: %v", err)
	}
	if res.IsError() {
		return wire.Conversation{}, httpError(res.StatusCode(), "update conversation "+id)
	}
	return out, nil
}

// DeleteConversation implements DaemonClient.
func (c *LiveClient) DeleteConversation(ctx context.Context, id string) error {
	if err := c.requireConnected("delete conversation"); err != nil {
		return err
	}
	res, err := c.http.R().
		SetContext(ctx).
		Delete("/v1/conversations/" + id)
	if err != nil {
		return Unavailablef("delete conversation failed: %v", err)
	}
	if res.IsError() {
		return httpError(res.StatusCode(), "delete conversation "+id)
	}
	return nil
}

func (c *LiveClient) get(ctx context.Context, path string, out any) *Error {
	res, err := c.http.R().
		SetContext(ctx).
		SetResult(out).
		Get(path)
	if err != nil {
		return Unavailablef("GET %s failed: %v", path, err)
	}
	if res.IsError() {
		return httpError(res.StatusCode(), "GET "+path)
	}
	return nil
}

func httpError(status int, op string) *Error {
	if status == http.StatusNotFound {
		return NotFound("%s: not found", op)
	}
	return Unavailablef("%s: status %d", op, status)
}

// decodePayload converts a loosely-typed socket payload into a typed struct
// via a JSON round trip.
func decodePayload(data map[string]interface{}, out any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
