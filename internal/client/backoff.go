package client

import (
	"math/rand"
	"time"
)

// Reconnect backoff defaults.
const (
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultMaxRetries  = 10
	DefaultJitterRatio = 0.5
)

// ReconnectPolicy produces a bounded sequence of exponential, jittered,
// capped backoff delays.
//
// The policy only computes delays; it holds an attempt counter and nothing
// else. Scheduling reconnects on those delays is the Supervisor's job, which
// keeps backoff math unit-testable without timers.
type ReconnectPolicy struct {
	// BaseDelay is the delay before the first retry, pre-jitter.
	BaseDelay time.Duration
	// MaxDelay caps the exponential growth, pre-jitter.
	MaxDelay time.Duration
	// MaxRetries bounds the number of delays produced.
	MaxRetries int
	// JitterRatio scales the symmetric random variance: the final delay is
	// delay * (1 ± JitterRatio*Rand()).
	JitterRatio float64
	// Rand returns a value in [0, 1]. Injectable for deterministic tests;
	// defaults to math/rand.
	Rand func() float64

	attempt int
}

// NewReconnectPolicy returns a policy with production defaults.
func NewReconnectPolicy() *ReconnectPolicy {
	return &ReconnectPolicy{
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		MaxRetries:  DefaultMaxRetries,
		JitterRatio: DefaultJitterRatio,
	}
}

// Next returns the delay for the next reconnect attempt, or ok=false once
// MaxRetries is exhausted.
func (p *ReconnectPolicy) Next() (delay time.Duration, ok bool) {
	if p.attempt >= p.MaxRetries {
		return 0, false
	}

	d := p.MaxDelay
	// Guard the shift against overflow for large attempt counts.
	if p.attempt < 62 {
		if grown := p.BaseDelay << uint(p.attempt); grown > 0 && grown < p.MaxDelay {
			d = grown
		}
	}

	random := p.Rand
	if random == nil {
		random = rand.Float64
	}
	// Symmetric jitter: r in [0,1] maps to a factor in [1-J, 1+J].
	factor := 1 + p.JitterRatio*(2*random()-1)
	d = time.Duration(float64(d) * factor)
	if d < 0 {
		d = 0
	}

	p.attempt++
	return d, true
}

// Attempt returns the number of delays produced so far.
func (p *ReconnectPolicy) Attempt() int { return p.attempt }

// Reset rewinds the attempt counter after a successful reconnect.
func (p *ReconnectPolicy) Reset() { p.attempt = 0 }
