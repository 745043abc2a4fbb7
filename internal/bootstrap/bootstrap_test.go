package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mbrandt/parley/internal/client"
)

func TestRun_LiveSucceeds(t *testing.T) {
	t.Parallel()

	live := client.NewMockClient(client.MockOptions{})
	res, err := Run(context.Background(), Options{Live: live})
	require.NoError(t, err)
	require.Equal(t, ModeLive, res.Mode)
	require.Equal(t, client.StatusConnected, res.ConnectionStatus)
	require.Same(t, client.DaemonClient(live), res.Client)
}

func TestRun_FallsBackToMockWhenLiveUnreachable(t *testing.T) {
	t.Parallel()

	// A client that never stops refusing stands in for an unreachable daemon.
	live := client.NewMockClient(client.MockOptions{ConnectFailures: 1 << 20})
	res, err := Run(context.Background(), Options{Live: live})
	require.NoError(t, err)
	require.Equal(t, ModeMock, res.Mode)

	// The daemon link is still down even though the mock itself is connected.
	require.Equal(t, client.StatusDisconnected, res.ConnectionStatus)
	require.Equal(t, client.StatusConnected, res.Client.ConnectionState().Status)
	require.NotSame(t, client.DaemonClient(live), res.Client)
}

func TestRun_NilLiveGoesStraightToMock(t *testing.T) {
	t.Parallel()

	res, err := Run(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, ModeMock, res.Mode)
	require.Equal(t, client.StatusDisconnected, res.ConnectionStatus)
	require.Equal(t, client.StatusConnected, res.Client.ConnectionState().Status)
}

func TestRun_CustomMockFactory(t *testing.T) {
	t.Parallel()

	custom := client.NewMockClient(client.MockOptions{Capabilities: []string{"chat"}})
	res, err := Run(context.Background(), Options{
		NewMock: func() client.DaemonClient { return custom },
	})
	require.NoError(t, err)
	require.Equal(t, ModeMock, res.Mode)
	require.Same(t, client.DaemonClient(custom), res.Client)

	report, err := res.Client.HealthCheck(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"chat"}, report.Handshake.Capabilities)
}

func TestRun_MockConnectFailurePropagates(t *testing.T) {
	t.Parallel()

	failing := client.NewMockClient(client.MockOptions{ConnectFailures: 1})
	_, err := Run(context.Background(), Options{
		NewMock: func() client.DaemonClient { return failing },
	})
	require.Error(t, err)
	code, ok := client.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, client.CodeUnavailable, code)
}
