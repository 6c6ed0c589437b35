// File: internal/concurrency/idle.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Idle strategies applied by poll loops between polls.

package concurrency

import (
	"runtime"
	"time"

	"github.com/momentics/hioload-bus/api"
)

var (
	_ api.IdleStrategy = BusySpinIdle{}
	_ api.IdleStrategy = (*SleepingIdle)(nil)
	_ api.IdleStrategy = (*BackoffIdle)(nil)
)

// NewIdleStrategy maps a host idle interval to a strategy:
// 0 busy-spins, a positive value sleeps that many milliseconds after an
// empty poll, a negative value selects adaptive backoff.
func NewIdleStrategy(intervalMS int) api.IdleStrategy {
	switch {
	case intervalMS == 0:
		return BusySpinIdle{}
	case intervalMS > 0:
		return NewSleepingIdle(time.Duration(intervalMS) * time.Millisecond)
	default:
		return NewBackoffIdle(DefaultBackoff())
	}
}

// BusySpinIdle never gives up the CPU. Minimum latency, one core burned.
type BusySpinIdle struct{}

func (BusySpinIdle) Idle(int)     {}
func (BusySpinIdle) Reset()       {}
func (BusySpinIdle) Name() string { return "busy-spin" }

// SleepingIdle sleeps a fixed period after every empty poll.
type SleepingIdle struct {
	period time.Duration
	sleep  func(time.Duration)
}

// NewSleepingIdle creates a sleeping strategy with the given period.
func NewSleepingIdle(period time.Duration) *SleepingIdle {
	return &SleepingIdle{period: period, sleep: time.Sleep}
}

// Period returns the sleep applied after an empty poll.
func (s *SleepingIdle) Period() time.Duration { return s.period }

func (s *SleepingIdle) Idle(workCount int) {
	if workCount > 0 {
		return
	}
	s.sleep(s.period)
}

func (s *SleepingIdle) Reset()       {}
func (s *SleepingIdle) Name() string { return "sleeping" }

// BackoffConfig tunes BackoffIdle.
type BackoffConfig struct {
	MaxSpins  int
	MaxYields int
	MinPark   time.Duration
	MaxPark   time.Duration
}

// DefaultBackoff mirrors the event loop defaults: short spin, a few
// yields, then parking that doubles up to one millisecond.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		MaxSpins:  10,
		MaxYields: 5,
		MinPark:   time.Microsecond,
		MaxPark:   time.Millisecond,
	}
}

const (
	backoffNotIdle = iota
	backoffSpinning
	backoffYielding
	backoffParking
)

// BackoffIdle escalates spin -> yield -> park after sustained silence and
// resets on any delivered work.
type BackoffIdle struct {
	cfg    BackoffConfig
	state  int
	spins  int
	yields int
	park   time.Duration
	sleep  func(time.Duration)
}

// NewBackoffIdle creates an adaptive strategy.
func NewBackoffIdle(cfg BackoffConfig) *BackoffIdle {
	if cfg.MinPark <= 0 {
		cfg.MinPark = time.Microsecond
	}
	if cfg.MaxPark < cfg.MinPark {
		cfg.MaxPark = cfg.MinPark
	}
	return &BackoffIdle{cfg: cfg, park: cfg.MinPark, sleep: time.Sleep}
}

func (b *BackoffIdle) Idle(workCount int) {
	if workCount > 0 {
		b.Reset()
		return
	}
	switch b.state {
	case backoffNotIdle:
		b.state = backoffSpinning
		b.spins++
	case backoffSpinning:
		b.spins++
		if b.spins > b.cfg.MaxSpins {
			b.state = backoffYielding
			b.yields = 0
		}
	case backoffYielding:
		b.yields++
		if b.yields > b.cfg.MaxYields {
			b.state = backoffParking
			b.park = b.cfg.MinPark
		} else {
			runtime.Gosched()
		}
	case backoffParking:
		b.sleep(b.park)
		next := b.park * 2
		if next > b.cfg.MaxPark {
			next = b.cfg.MaxPark
		}
		b.park = next
	}
}

func (b *BackoffIdle) Reset() {
	b.state = backoffNotIdle
	b.spins = 0
	b.yields = 0
	b.park = b.cfg.MinPark
}

func (b *BackoffIdle) Name() string { return "backoff" }
