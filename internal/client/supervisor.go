package client

import (
	"context"
	"sync"
	"time"

	"github.com/mbrandt/parley/pkg/logger"
)

// Supervisor drives reconnect attempts for a DaemonClient using a
// ReconnectPolicy.
//
// The policy only computes delays; the supervisor owns the timers. It watches
// connection-state transitions and, whenever the link is lost (disconnected
// with a LastError — deliberate Disconnect clears it), schedules Reconnect
// calls on the policy's delay sequence until the link is restored, the policy
// is exhausted, or the supervisor is stopped.
type Supervisor struct {
	client DaemonClient
	policy *ReconnectPolicy

	// OnGiveUp, when set, is called once the policy is exhausted without a
	// successful reconnect.
	OnGiveUp func(last *Error)

	trigger     chan struct{}
	unsubscribe func()
	cancel      context.CancelFunc
	done        chan struct{}
	startOnce   sync.Once
	stopOnce    sync.Once
}

// NewSupervisor creates a supervisor for client. The policy must not be
// shared with other supervisors; only the supervisor goroutine touches it.
func NewSupervisor(client DaemonClient, policy *ReconnectPolicy) *Supervisor {
	if policy == nil {
		policy = NewReconnectPolicy()
	}
	return &Supervisor{
		client:  client,
		policy:  policy,
		trigger: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Start launches the supervision loop. Idempotent.
func (s *Supervisor) Start() {
	s.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.unsubscribe = s.client.OnConnectionStateChange(func(snap ConnectionState) {
			if snap.Status == StatusDisconnected && snap.LastError != nil {
				select {
				case s.trigger <- struct{}{}:
				default:
				}
			}
		})
		go s.loop(ctx)
	})
}

// Stop cancels any pending reconnect schedule and detaches from the client.
// Idempotent; blocks until the loop exits.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel == nil {
			close(s.done)
			return
		}
		s.unsubscribe()
		s.cancel()
		<-s.done
	})
}

func (s *Supervisor) loop(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.trigger:
		}
		if s.client.ConnectionState().Status == StatusConnected {
			continue
		}

		s.reconnectLoop(ctx)

		// Failed attempts inside reconnectLoop re-arm the trigger; drain it
		// so a restored link does not schedule a spurious round.
		select {
		case <-s.trigger:
		default:
		}
	}
}

// reconnectLoop runs one full backoff sequence.
func (s *Supervisor) reconnectLoop(ctx context.Context) {
	for {
		delay, ok := s.policy.Next()
		if !ok {
			logger.Errorf("reconnect: giving up after %d attempts", s.policy.Attempt())
			if s.OnGiveUp != nil {
				s.OnGiveUp(s.client.ConnectionState().LastError)
			}
			return
		}

		logger.Debugf("reconnect: attempt %d in %s", s.policy.Attempt(), delay)
		if !sleepCtx(ctx, delay) {
			return
		}

		if err := s.client.Reconnect(ctx); err != nil {
			logger.Warnf("reconnect: attempt %d failed: %v", s.policy.Attempt(), err)
			continue
		}
		logger.Infof("reconnect: connection restored after %d attempts", s.policy.Attempt())
		s.policy.Reset()
		return
	}
}

// sleepCtx waits for d, returning false if ctx was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
