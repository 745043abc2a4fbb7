package client

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/mbrandt/parley/internal/crypto"
	"github.com/mbrandt/parley/internal/wire"
)

func TestLiveClient_OperationsFailFastBeforeConnect(t *testing.T) {
	t.Parallel()

	c := NewLiveClient(LiveOptions{ServerURL: "http://127.0.0.1:1"})

	ctx := context.Background()
	_, err := c.SendMessage(ctx, wire.SendMessageRequest{Content: "hi"})
	requireCode(t, err, CodeDisconnected)

	_, err = c.HealthCheck(ctx)
	requireCode(t, err, CodeDisconnected)

	_, err = c.ListConversations(ctx)
	requireCode(t, err, CodeDisconnected)

	_, err = c.StreamResponse(ctx, "conv-1", "msg-1")
	requireCode(t, err, CodeDisconnected)

	require.Equal(t, StatusDisconnected, c.ConnectionState().Status)
}

func TestLiveClient_ConnectRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": now.Add(-time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	c := NewLiveClient(LiveOptions{
		ServerURL: "http://127.0.0.1:1",
		Token:     expired,
		Now:       func() time.Time { return now },
	})

	err = c.Connect(context.Background())
	requireCode(t, err, CodeUnavailable)
	require.Contains(t, err.Error(), "expired")

	snap := c.ConnectionState()
	require.Equal(t, StatusDisconnected, snap.Status)
	require.NotNil(t, snap.LastError)
}

func TestDecodePayload(t *testing.T) {
	t.Parallel()

	data := map[string]interface{}{
		"t":              "delta",
		"conversationId": "conv-1",
		"messageId":      "msg-2",
		"delta":          "Hello",
		"timestamp":      float64(1700000000000),
	}

	var ev wire.StreamEvent
	require.NoError(t, decodePayload(data, &ev))
	require.Equal(t, wire.StreamDelta, ev.T)
	require.Equal(t, "conv-1", ev.ConversationID)
	require.Equal(t, "msg-2", ev.MessageID)
	require.Equal(t, "Hello", ev.Delta)
	require.Equal(t, int64(1700000000000), ev.Timestamp)
}

func TestDecodePayload_AckEnvelope(t *testing.T) {
	t.Parallel()

	var decoded struct {
		ackEnvelope
		wire.SendMessageResult
	}
	require.NoError(t, decodePayload(map[string]interface{}{
		"result":             "success",
		"conversationId":     "conv-1",
		"userMessageId":      "msg-1",
		"assistantMessageId": "msg-2",
	}, &decoded))
	require.Equal(t, "success", decoded.Result)
	require.Equal(t, "conv-1", decoded.ConversationID)
	require.Equal(t, "msg-1", decoded.UserMessageID)
	require.Equal(t, "msg-2", decoded.AssistantMessageID)
}

func TestHTTPError(t *testing.T) {
	t.Parallel()

	err := httpError(http.StatusNotFound, "GET /v1/conversations/conv-9")
	require.Equal(t, CodeNotFound, err.Code)
	require.False(t, err.Retryable)

	err = httpError(http.StatusBadGateway, "GET /v1/conversations")
	require.Equal(t, CodeUnavailable, err.Code)
	require.True(t, err.Retryable)
}

func TestUnsealEvent(t *testing.T) {
	t.Parallel()

	key := make([]byte, crypto.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	c := NewLiveClient(LiveOptions{ServerURL: "http://127.0.0.1:1", DataKey: key})

	sealedDelta, err := crypto.SealString("Hello", key)
	require.NoError(t, err)
	sealedContent, err := crypto.SealString("Hello world", key)
	require.NoError(t, err)

	ev := wire.StreamEvent{T: wire.StreamComplete, Delta: sealedDelta, Content: sealedContent}
	c.unsealEvent(&ev)
	require.Equal(t, "Hello", ev.Delta)
	require.Equal(t, "Hello world", ev.Content)
}

func TestUnsealEvent_PlainPayloadPassesThrough(t *testing.T) {
	t.Parallel()

	key := make([]byte, crypto.KeySize)
	c := NewLiveClient(LiveOptions{ServerURL: "http://127.0.0.1:1", DataKey: key})

	ev := wire.StreamEvent{T: wire.StreamDelta, Delta: "plain text"}
	c.unsealEvent(&ev)
	require.Equal(t, "plain text", ev.Delta)
}

func TestUnsealEvent_NoKeyIsNoOp(t *testing.T) {
	t.Parallel()

	c := NewLiveClient(LiveOptions{ServerURL: "http://127.0.0.1:1"})
	ev := wire.StreamEvent{T: wire.StreamDelta, Delta: "anything"}
	c.unsealEvent(&ev)
	require.Equal(t, "anything", ev.Delta)
}

func TestLiveClient_CancelStreamWithoutSocketSucceeds(t *testing.T) {
	t.Parallel()

	c := NewLiveClient(LiveOptions{ServerURL: "http://127.0.0.1:1"})
	require.NoError(t, c.CancelStream(context.Background(), "conv-1", "msg-1"))
}

func TestLiveClient_DisconnectIsDeliberate(t *testing.T) {
	t.Parallel()

	c := NewLiveClient(LiveOptions{ServerURL: "http://127.0.0.1:1"})
	require.NoError(t, c.Disconnect(context.Background()))

	snap := c.ConnectionState()
	require.Equal(t, StatusDisconnected, snap.Status)
	require.Nil(t, snap.LastError, "deliberate disconnect must not record an error")
}
