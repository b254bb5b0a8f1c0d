// Package countdown drives the time-remaining display of one auction.
package countdown

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/bidwatch/go/internal/clock"
)

// DefaultInterval is the tick cadence.
const DefaultInterval = time.Second

// State is the scheduler lifecycle. RUNNING -> ENDED is terminal; Stopped means
// it was cancelled before the end was observed.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateEnded
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateEnded:
		return "ENDED"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Tick is one evaluation of the countdown.
type Tick struct {
	Remaining  time.Duration
	Text       string
	Ended      bool
	EndingSoon bool
}

// Options configures a Scheduler. OnTick receives every evaluation; OnEnded is
// called exactly once, on the tick that first observes now >= end.
type Options struct {
	Clock    clock.Clock
	Interval time.Duration
	OnTick   func(Tick)
	OnEnded  func()
}

// Scheduler evaluates end - now on a fixed cadence until the end is observed,
// then stops its ticker for good. One Scheduler serves one snapshot; a reloaded
// snapshot gets a fresh Scheduler.
type Scheduler struct {
	end  time.Time
	opts Options

	mu     sync.Mutex
	state  State
	last   Tick
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a scheduler counting down to end.
func New(end time.Time, opts Options) *Scheduler {
	opts.Clock = clock.OrDefault(opts.Clock)
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Scheduler{
		end:  end,
		opts: opts,
	}
}

// Evaluate computes the tick for end at now without touching scheduler state.
func Evaluate(end, now time.Time) Tick {
	remaining := end.Sub(now)
	if remaining <= 0 {
		return Tick{Text: EndedText, Ended: true}
	}
	return Tick{
		Remaining:  remaining,
		Text:       Format(remaining),
		EndingSoon: remaining <= EndingSoonWindow,
	}
}

// Start evaluates immediately and then on every interval. Calling Start more
// than once has no effect.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return
	}
	s.state = StateRunning
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	if s.evaluate() {
		close(s.done)
		return
	}

	ticker := s.opts.Clock.NewTicker(s.opts.Interval)
	go s.run(ctx, ticker)
}

func (s *Scheduler) run(ctx context.Context, ticker clockwork.Ticker) {
	defer close(s.done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if ctx.Err() != nil {
				return
			}
			if s.evaluate() {
				log.Debug().Time("end_time", s.end).Msg("countdown reached end, ticker stopped")
				return
			}
		}
	}
}

// evaluate publishes one tick and reports whether the end has been reached.
func (s *Scheduler) evaluate() bool {
	tick := Evaluate(s.end, s.opts.Clock.Now())

	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return true
	}
	s.last = tick
	if tick.Ended {
		s.state = StateEnded
	}
	s.mu.Unlock()

	if s.opts.OnTick != nil {
		s.opts.OnTick(tick)
	}
	if tick.Ended && s.opts.OnEnded != nil {
		s.opts.OnEnded()
	}
	return tick.Ended
}

// Stop cancels the periodic trigger and waits for the tick loop to exit. After
// Stop returns no callback runs. It is safe to call repeatedly and on a
// scheduler that was never started. It must not be called from OnTick or OnEnded.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state == StateRunning {
		s.state = StateStopped
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// State returns the lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ended reports whether the end has been observed. Once true it stays true.
func (s *Scheduler) Ended() bool {
	return s.State() == StateEnded
}

// Last returns the most recent tick.
func (s *Scheduler) Last() Tick {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
