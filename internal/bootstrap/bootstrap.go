// Package bootstrap selects and connects a daemon client for a session.
//
// Callers first attempt the live client; when that fails the session falls
// back to a connected mock client so the program keeps functioning against
// fixtures. The result reports the fallback explicitly so UI layers can flag
// degraded operation. All clients are constructed and owned explicitly;
// there is no shared default instance.
package bootstrap

import (
	"context"

	"github.com/mbrandt/parley/internal/client"
	"github.com/mbrandt/parley/pkg/logger"
)

// Mode identifies which client implementation a session ended up with.
type Mode string

const (
	ModeLive Mode = "live"
	ModeMock Mode = "mock"
)

// Options configures Run. Clients are injected, never discovered.
type Options struct {
	// Live is the live client to try first. Nil skips straight to the mock
	// (offline mode).
	Live client.DaemonClient
	// NewMock constructs the fallback client. Defaults to
	// client.NewMockClient with default fixtures.
	NewMock func() client.DaemonClient
}

// Result is the bootstrapping outcome.
type Result struct {
	// Mode reports which implementation Client is.
	Mode Mode
	// ConnectionStatus is the status of the live daemon link. In mock mode
	// this stays "disconnected" — the mock being connected does not make the
	// daemon reachable, and the UI should say so.
	ConnectionStatus client.Status
	// Client is the connected client to use for the session.
	Client client.DaemonClient
}

// Run connects a client for the session, falling back to the mock when the
// live daemon is unreachable.
func Run(ctx context.Context, opts Options) (Result, error) {
	if opts.Live != nil {
		err := opts.Live.Connect(ctx)
		if err == nil {
			return Result{
				Mode:             ModeLive,
				ConnectionStatus: client.StatusConnected,
				Client:           opts.Live,
			}, nil
		}
		logger.Warnf("live daemon unavailable, falling back to mock: %v", err)
	}

	newMock := opts.NewMock
	if newMock == nil {
		newMock = func() client.DaemonClient {
			return client.NewMockClient(client.MockOptions{})
		}
	}

	mock := newMock()
	if err := mock.Connect(ctx); err != nil {
		return Result{}, err
	}
	return Result{
		Mode:             ModeMock,
		ConnectionStatus: client.StatusDisconnected,
		Client:           mock,
	}, nil
}
