// Package workload provides the work functions evaluated by workers. Each one
// squares its input after an artificial delay whose length models how fast the
// worker's hardware is, so scheduling policies can be compared.
package workload

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ahrav/taskfarm/internal/domain/farm"
)

// Profile selects how per-call latency depends on the worker identity.
type Profile string

const (
	// ProfileUniform gives every worker the fast delay.
	ProfileUniform Profile = "uniform"
	// ProfileFirstSlow makes worker 1 slow and everyone else fast.
	ProfileFirstSlow Profile = "first-slow"
	// ProfileFirstThreeSlow makes workers 1..3 slow.
	ProfileFirstThreeSlow Profile = "first-three-slow"
	// ProfileEveryThirdSlow makes every worker whose id is a multiple of 3 slow.
	ProfileEveryThirdSlow Profile = "every-third-slow"
	// ProfileLowerHalfSlow makes workers with id below processes/2 slow.
	ProfileLowerHalfSlow Profile = "lower-half-slow"
	// ProfileRandom draws every delay from Distribution, ignoring identity.
	ProfileRandom Profile = "random"
)

// ParseProfile converts a config string to a Profile. Empty means first-slow.
func ParseProfile(s string) (Profile, error) {
	p := Profile(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case "":
		return ProfileFirstSlow, nil
	case ProfileUniform, ProfileFirstSlow, ProfileFirstThreeSlow,
		ProfileEveryThirdSlow, ProfileLowerHalfSlow, ProfileRandom:
		return p, nil
	default:
		return "", fmt.Errorf("unknown workload profile %q", s)
	}
}

// Config describes a work function.
type Config struct {
	Profile   Profile
	SlowDelay time.Duration
	FastDelay time.Duration
	// Processes is the total participant count, dispatcher included. Only the
	// lower-half profile needs it.
	Processes    int
	Distribution Distribution
}

// DelayFunc returns how long worker should take for one call.
type DelayFunc func(worker farm.WorkerID) time.Duration

// New builds the work function described by cfg.
func New(cfg Config) (farm.WorkFunc, error) {
	delay, err := NewDelayFunc(cfg)
	if err != nil {
		return nil, err
	}
	return WithDelay(delay, Square), nil
}

// NewDelayFunc builds the latency model for cfg.
func NewDelayFunc(cfg Config) (DelayFunc, error) {
	slow, fast := cfg.SlowDelay, cfg.FastDelay
	pick := func(isSlow bool) time.Duration {
		if isSlow {
			return slow
		}
		return fast
	}

	switch cfg.Profile {
	case ProfileUniform:
		return func(farm.WorkerID) time.Duration { return fast }, nil
	case "", ProfileFirstSlow:
		return func(id farm.WorkerID) time.Duration { return pick(id == 1) }, nil
	case ProfileFirstThreeSlow:
		return func(id farm.WorkerID) time.Duration { return pick(id <= 3) }, nil
	case ProfileEveryThirdSlow:
		return func(id farm.WorkerID) time.Duration { return pick(id%3 == 0) }, nil
	case ProfileLowerHalfSlow:
		if cfg.Processes < 2 {
			return nil, fmt.Errorf("%w: lower-half profile needs the process count", farm.ErrPrecondition)
		}
		half := farm.WorkerID(cfg.Processes / 2)
		return func(id farm.WorkerID) time.Duration { return pick(id < half) }, nil
	case ProfileRandom:
		sampler, err := NewSampler(cfg.Distribution)
		if err != nil {
			return nil, err
		}
		return func(farm.WorkerID) time.Duration { return sampler.Sample() }, nil
	default:
		return nil, fmt.Errorf("unknown workload profile %q", cfg.Profile)
	}
}

// Square is the evaluated function: x*x.
func Square(_ context.Context, x float64, _ farm.WorkerID) (float64, error) { return x * x, nil }

// WithDelay wraps fn so every call first waits for delay(worker). The wait
// ends early if ctx is cancelled.
func WithDelay(delay DelayFunc, fn farm.WorkFunc) farm.WorkFunc {
	return func(ctx context.Context, x float64, worker farm.WorkerID) (float64, error) {
		if err := sleep(ctx, delay(worker)); err != nil {
			return 0, err
		}
		return fn(ctx, x, worker)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
