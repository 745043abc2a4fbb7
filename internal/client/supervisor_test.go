package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func quickPolicy(maxRetries int) *ReconnectPolicy {
	return &ReconnectPolicy{
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		MaxRetries:  maxRetries,
		JitterRatio: 0,
	}
}

func TestSupervisor_RestoresLostLink(t *testing.T) {
	t.Parallel()

	// The first reconnect is the simulated link loss; the supervisor then
	// needs two more attempts before the mock accepts.
	m := connectedMock(t, MockOptions{ReconnectFailures: 3})
	policy := quickPolicy(10)
	sup := NewSupervisor(m, policy)
	sup.Start()
	defer sup.Stop()

	err := m.Reconnect(context.Background())
	require.Error(t, err)

	require.Eventually(t, func() bool {
		return m.ConnectionState().Status == StatusConnected
	}, 2*time.Second, time.Millisecond)

	sup.Stop()
	require.Equal(t, 0, policy.Attempt(), "policy must be reset after a successful reconnect")
}

func TestSupervisor_GivesUpWhenPolicyExhausted(t *testing.T) {
	t.Parallel()

	m := connectedMock(t, MockOptions{ReconnectFailures: 100})
	gaveUp := make(chan *Error, 1)
	sup := NewSupervisor(m, quickPolicy(3))
	sup.OnGiveUp = func(last *Error) { gaveUp <- last }
	sup.Start()
	defer sup.Stop()

	err := m.Reconnect(context.Background())
	require.Error(t, err)

	select {
	case last := <-gaveUp:
		require.NotNil(t, last)
		require.Equal(t, CodeUnavailable, last.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor never gave up")
	}
	require.Equal(t, StatusDisconnected, m.ConnectionState().Status)
}

func TestSupervisor_IgnoresDeliberateDisconnect(t *testing.T) {
	t.Parallel()

	m := connectedMock(t, MockOptions{})
	policy := quickPolicy(5)
	sup := NewSupervisor(m, policy)
	sup.Start()
	defer sup.Stop()

	require.NoError(t, m.Disconnect(context.Background()))

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, StatusDisconnected, m.ConnectionState().Status)

	sup.Stop()
	require.Equal(t, 0, policy.Attempt(), "deliberate disconnect must not schedule reconnects")
}

func TestSupervisor_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	m := connectedMock(t, MockOptions{})
	sup := NewSupervisor(m, quickPolicy(1))
	sup.Start()
	sup.Stop()
	sup.Stop()
}
