package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FailureClass buckets a playback failure for remediation purposes.
type FailureClass string

const (
	ClassConnection  FailureClass = "connection"
	ClassSource      FailureClass = "source"
	ClassNetwork     FailureClass = "network"
	ClassRateLimited FailureClass = "rate_limited"
	ClassPermission  FailureClass = "permission"
	ClassUnavailable FailureClass = "unavailable"
	ClassUnknown     FailureClass = "unknown"
)

// Strategy is a single remediation step.
type Strategy string

const (
	StrategyRetry     Strategy = "retry"
	StrategyReconnect Strategy = "reconnect"
	StrategyFallback  Strategy = "fallback"
	StrategySkip      Strategy = "skip"
	StrategyNotify    Strategy = "notify"
)

// strategyPlan maps each failure class to the ordered remediations to
// try. Skip terminates every plan so recovery always lands somewhere.
var strategyPlan = map[FailureClass][]Strategy{
	ClassConnection:  {StrategyReconnect, StrategyRetry, StrategySkip},
	ClassSource:      {StrategyFallback, StrategyRetry, StrategySkip},
	ClassNetwork:     {StrategyRetry, StrategySkip},
	ClassRateLimited: {StrategyRetry, StrategySkip},
	ClassPermission:  {StrategyNotify, StrategySkip},
	ClassUnavailable: {StrategyFallback, StrategySkip},
	ClassUnknown:     {StrategyRetry, StrategySkip},
}

// Actions is the remediation surface the engine hands to recovery.
// Each method returns an error when the remediation itself failed,
// which moves recovery on to the next strategy in the plan.
type Actions interface {
	// Retry replays the failed step for the current track.
	Retry(ctx context.Context) error
	// Reconnect tears down and re-establishes the transport.
	Reconnect(ctx context.Context) error
	// Fallback retries resolution with simpler stream options.
	Fallback(ctx context.Context) error
	// Skip abandons the current track and advances the queue.
	Skip(ctx context.Context) error
	// Notify surfaces the failure to the user without acting on it.
	Notify(ctx context.Context, err error)
}

// Classify maps a typed error to its failure class. Unrecognised
// errors fall through to ClassUnknown.
func Classify(err error) FailureClass {
	var res *ResolutionError
	if errors.As(err, &res) {
		switch res.Kind {
		case ResolutionRateLimited:
			return ClassRateLimited
		case ResolutionPermission:
			return ClassPermission
		case ResolutionUnavailable:
			return ClassUnavailable
		case ResolutionNetwork:
			return ClassNetwork
		default:
			return ClassSource
		}
	}
	var conn *ConnectionError
	if errors.As(err, &conn) {
		return ClassConnection
	}
	var sink *SinkError
	if errors.As(err, &sink) {
		return ClassSource
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassNetwork
	}
	return ClassUnknown
}

// Recovery walks the strategy plan for a failure class, bounding
// retries per class and backing off exponentially between them.
// One instance serves one session.
type Recovery struct {
	log         *zap.Logger
	maxAttempts int
	sleep       func(context.Context, time.Duration)

	mu       sync.Mutex
	attempts map[FailureClass]int
}

const defaultMaxAttempts = 3

func NewRecovery(log *zap.Logger) *Recovery {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recovery{
		log:         log,
		maxAttempts: defaultMaxAttempts,
		sleep:       sleepCtx,
		attempts:    make(map[FailureClass]int),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Handle classifies err and runs the class's plan until a strategy
// succeeds. The strategy that resolved the failure is returned; an
// error comes back only when even skipping failed.
func (r *Recovery) Handle(ctx context.Context, err error, actions Actions) (Strategy, error) {
	class := Classify(err)
	r.log.Warn("recovering from playback failure",
		zap.String("class", string(class)),
		zap.Error(err))

	for _, strategy := range strategyPlan[class] {
		if cerr := ctx.Err(); cerr != nil {
			return "", cerr
		}
		switch strategy {
		case StrategyRetry:
			attempt := r.bumpAttempt(class)
			if attempt > r.maxAttempts {
				r.log.Warn("retry budget exhausted",
					zap.String("class", string(class)),
					zap.Int("max_attempts", r.maxAttempts))
				continue
			}
			r.sleep(ctx, time.Duration(1<<uint(attempt))*time.Second)
			if rerr := actions.Retry(ctx); rerr != nil {
				r.log.Warn("retry failed", zap.Int("attempt", attempt), zap.Error(rerr))
				continue
			}
			r.resetClass(class)
			return StrategyRetry, nil

		case StrategyReconnect:
			if rerr := actions.Reconnect(ctx); rerr != nil {
				r.log.Warn("reconnect failed", zap.Error(rerr))
				continue
			}
			r.resetClass(class)
			return StrategyReconnect, nil

		case StrategyFallback:
			if rerr := actions.Fallback(ctx); rerr != nil {
				r.log.Warn("fallback failed", zap.Error(rerr))
				continue
			}
			r.resetClass(class)
			return StrategyFallback, nil

		case StrategyNotify:
			actions.Notify(ctx, err)
			// Notify never resolves the failure; carry on to skip.
			continue

		case StrategySkip:
			// Skipping abandons the track rather than recovering it,
			// so the class's retry budget stays spent.
			if serr := actions.Skip(ctx); serr != nil {
				return StrategySkip, fmt.Errorf("skip after %s failure: %w", class, serr)
			}
			return StrategySkip, nil
		}
	}
	return "", fmt.Errorf("no remediation for %s failure: %w", class, err)
}

// NoteSuccess clears every attempt counter; called when a track plays
// to completion without incident.
func (r *Recovery) NoteSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = make(map[FailureClass]int)
}

func (r *Recovery) bumpAttempt(class FailureClass) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[class]++
	return r.attempts[class]
}

func (r *Recovery) resetClass(class FailureClass) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attempts, class)
}
