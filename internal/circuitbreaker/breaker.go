// Package circuitbreaker provides a three-state breaker used to wrap the
// reasoning and search HTTP clients. A run of consecutive failures opens the
// breaker; after a cooldown a limited number of probe calls decide whether it
// closes again.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

type State int

const (
	Closed State = iota
	HalfOpen
	Open
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case HalfOpen:
		return "half-open"
	case Open:
		return "open"
	}
	return "unknown"
}

var (
	// ErrOpen is returned without invoking the wrapped call while the
	// breaker is open.
	ErrOpen = errors.New("circuit breaker open")
	// ErrProbeLimit is returned when the half-open probe budget is spent.
	ErrProbeLimit = errors.New("circuit breaker probe limit reached")
)

type Config struct {
	// FailureThreshold consecutive failures in Closed trip the breaker.
	FailureThreshold uint32
	// SuccessThreshold consecutive probe successes in HalfOpen close it.
	SuccessThreshold uint32
	// ProbeLimit bounds in-flight calls while half-open.
	ProbeLimit uint32
	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration
	// ResetInterval clears the failure window while closed. Zero disables it.
	ResetInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		ProbeLimit:       3,
		Cooldown:         15 * time.Second,
		ResetInterval:    60 * time.Second,
	}
}

type window struct {
	inFlight      uint32
	successes     uint32
	failures      uint32
	consecutiveOK uint32
	consecutiveKO uint32
}

// Breaker tracks call outcomes for one named downstream dependency.
type Breaker struct {
	name   string
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	state    State
	epoch    uint64
	win      window
	deadline time.Time
}

func New(name string, cfg Config, logger *zap.Logger) *Breaker {
	b := &Breaker{
		name:   name,
		cfg:    cfg,
		logger: logger,
		state:  Closed,
	}
	if cfg.ResetInterval > 0 {
		b.deadline = time.Now().Add(cfg.ResetInterval)
	}
	return b
}

// Do runs fn if the breaker admits the call and records its outcome.
// Context cancellation is counted as a failure of the downstream call.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	epoch, err := b.admit(time.Now())
	if err != nil {
		return err
	}
	err = fn(ctx)
	b.settle(epoch, err == nil, time.Now())
	return err
}

// State reports the breaker state, applying any due transition.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, _ := b.observe(time.Now())
	return s
}

func (b *Breaker) admit(now time.Time) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, epoch := b.observe(now)
	switch {
	case state == Open:
		return epoch, ErrOpen
	case state == HalfOpen && b.win.inFlight >= b.cfg.ProbeLimit:
		return epoch, ErrProbeLimit
	}
	b.win.inFlight++
	return epoch, nil
}

func (b *Breaker) settle(epoch uint64, ok bool, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, current := b.observe(now)
	if current != epoch {
		// The breaker moved on while this call was in flight.
		return
	}
	if b.win.inFlight > 0 {
		b.win.inFlight--
	}

	if ok {
		b.win.successes++
		b.win.consecutiveOK++
		b.win.consecutiveKO = 0
		if state == HalfOpen && b.win.consecutiveOK >= b.cfg.SuccessThreshold {
			b.transition(Closed, now)
		}
		return
	}

	b.win.failures++
	b.win.consecutiveKO++
	b.win.consecutiveOK = 0
	switch state {
	case Closed:
		if b.win.consecutiveKO >= b.cfg.FailureThreshold {
			b.transition(Open, now)
		}
	case HalfOpen:
		// A single failed probe re-opens.
		b.transition(Open, now)
	}
}

// observe applies time-driven transitions and returns state plus epoch.
// Caller must hold the mutex.
func (b *Breaker) observe(now time.Time) (State, uint64) {
	switch b.state {
	case Closed:
		if !b.deadline.IsZero() && now.After(b.deadline) {
			b.reset(now)
		}
	case Open:
		if now.After(b.deadline) {
			b.transition(HalfOpen, now)
		}
	}
	return b.state, b.epoch
}

func (b *Breaker) transition(to State, now time.Time) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.reset(now)
	b.logger.Info("circuit breaker state change",
		zap.String("breaker", b.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
}

func (b *Breaker) reset(now time.Time) {
	b.epoch++
	b.win = window{}
	switch b.state {
	case Closed:
		if b.cfg.ResetInterval > 0 {
			b.deadline = now.Add(b.cfg.ResetInterval)
		} else {
			b.deadline = time.Time{}
		}
	case Open:
		b.deadline = now.Add(b.cfg.Cooldown)
	default:
		b.deadline = time.Time{}
	}
}
