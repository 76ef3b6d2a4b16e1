// Package probe establishes worker readiness. A worker process is
// considered to have completed startup once its configured probe
// satisfies the success threshold; the process runtime translates that
// transition into the acknowledgment published to the state table.
package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Paintersrp/warden/internal/config"
)

// Status captures the readiness condition surfaced by a probe watcher.
type Status string

const (
	// StatusUnknown is used internally to track transitions and is not
	// emitted on the public channel.
	StatusUnknown Status = "unknown"
	// StatusReady indicates that the probe has satisfied the configured
	// success threshold.
	StatusReady Status = "ready"
	// StatusUnready indicates that the probe has exceeded the configured
	// failure threshold.
	StatusUnready Status = "unready"
)

// Event describes a readiness state transition emitted by Watch.
type Event struct {
	Status Status
	Reason string
	Err    error
	At     time.Time
}

// Prober defines the behaviour required by the Watch loop.
type Prober interface {
	Probe(ctx context.Context) error
}

// New constructs an implementation of Prober for the supplied
// specification. When several probes are configured any single success
// is sufficient.
func New(spec *config.ProbeSpec) (Prober, error) {
	if spec == nil {
		return nil, nil
	}
	var probes []Prober
	if spec.HTTP != nil {
		probes = append(probes, newHTTPProber(spec.HTTP))
	}
	if spec.TCP != nil {
		probes = append(probes, newTCPProber(spec.TCP))
	}
	if spec.Command != nil {
		prober, err := newCommandProber(spec.Command)
		if err != nil {
			return nil, err
		}
		probes = append(probes, prober)
	}
	if len(probes) == 0 {
		return nil, errors.New("probe: missing configuration")
	}
	if len(probes) == 1 {
		return probes[0], nil
	}
	return anyProber(probes), nil
}

// Watch continuously executes the provided prober until the context is
// cancelled. Transitions between ready and unready states are emitted on
// the returned channel. The channel is closed once the context is
// cancelled.
func Watch(ctx context.Context, prober Prober, spec *config.ProbeSpec, nowFn func() time.Time) <-chan Event {
	events := make(chan Event, 1)
	if ctx == nil {
		close(events)
		return events
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	go func() {
		defer close(events)
		if prober == nil || spec == nil {
			return
		}

		successNeeded := spec.SuccessThreshold
		if successNeeded <= 0 {
			successNeeded = 1
		}
		failureAllowed := spec.FailureThreshold
		if failureAllowed <= 0 {
			failureAllowed = 1
		}

		interval := spec.Interval.Duration
		timeout := probeTimeout(spec)

		if gp := spec.GracePeriod.Duration; gp > 0 {
			timer := time.NewTimer(gp)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
		}

		successes := 0
		failures := 0
		status := StatusUnknown

		for {
			attemptCtx := ctx
			cancel := func() {}
			if timeout > 0 {
				attemptCtx, cancel = context.WithTimeout(ctx, timeout)
			}

			err := prober.Probe(attemptCtx)
			cancel()

			if ctx.Err() != nil {
				return
			}

			if err == nil {
				successes++
				failures = 0
				if successes >= successNeeded && status != StatusReady {
					status = StatusReady
					if !sendEvent(ctx, events, Event{Status: StatusReady, At: nowFn()}) {
						return
					}
				}
			} else {
				if attemptCtx.Err() == context.DeadlineExceeded && errors.Is(err, context.DeadlineExceeded) {
					err = fmt.Errorf("timeout after %s", timeout)
				}

				successes = 0
				failures++
				if failures >= failureAllowed && status != StatusUnready {
					status = StatusUnready
					if !sendEvent(ctx, events, Event{Status: StatusUnready, Reason: err.Error(), Err: err, At: nowFn()}) {
						return
					}
				}
			}

			if interval <= 0 {
				select {
				case <-ctx.Done():
					return
				default:
				}
				continue
			}

			timer := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}()
	return events
}

func sendEvent(ctx context.Context, events chan<- Event, event Event) bool {
	select {
	case <-ctx.Done():
		return false
	case events <- event:
		return true
	}
}

func probeTimeout(spec *config.ProbeSpec) time.Duration {
	if spec.Command != nil {
		if dur := spec.Command.Timeout.Duration; dur > 0 {
			return dur
		}
	}
	return spec.Timeout.Duration
}

// anyProber fans the probes out concurrently and reports success as soon
// as one of them succeeds.
type anyProber []Prober

func (a anyProber) Probe(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan error, len(a))
	for _, prober := range a {
		go func(p Prober) {
			results <- p.Probe(ctx)
		}(prober)
	}

	var errs []error
	for i := 0; i < len(a); i++ {
		select {
		case <-ctx.Done():
			if len(errs) == 0 {
				return ctx.Err()
			}
		case err := <-results:
			if err == nil {
				cancel()
				return nil
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
