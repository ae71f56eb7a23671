// Package picker drives the remote picker session protocol: a session
// is opened, the user picks media in an external window, and the client
// polls session status until the selection is finalized or the session
// is given up. The polling loop is an explicit state machine with an
// injected clock, so the abandonment and timeout thresholds are
// testable without real timers.
package picker

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// State is the session protocol state.
type State string

const (
	StateCreated State = "created"
	StatePolling State = "polling"

	// Terminal states. None of them is an error: abandonment and
	// timeout are surfaced to the user as informational notices.
	StateResolved  State = "resolved"
	StateAbandoned State = "abandoned"
	StateTimedOut  State = "timed_out"
)

// Polling thresholds.
const (
	// DefaultInterval is the fixed delay between status polls.
	DefaultInterval = 1 * time.Second
	// DefaultMaxPolls bounds total polls regardless of window state
	// (30 minutes at the default interval).
	DefaultMaxPolls = 1800
	// DefaultClosedDebounce is how many consecutive closed-window
	// polls are tolerated before the session counts as abandoned.
	DefaultClosedDebounce = 15
)

// StatusFunc reports whether the remote session has its selection
// finalized. Errors are treated as transient: picker backends can be
// briefly unavailable without losing the user's in-progress selection.
type StatusFunc func(ctx context.Context) (mediaItemsSet bool, err error)

// WindowProbe reports whether the external picker window has been
// detected closed. Window management itself is the embedding UI's
// concern; the poller only consumes the observation.
type WindowProbe func() bool

// Poller runs the polling phase of one picker session.
type Poller struct {
	status         StatusFunc
	windowClosed   WindowProbe
	interval       time.Duration
	maxPolls       int
	closedDebounce int
	logger         *slog.Logger

	// sleep waits between polls. Tests override this to avoid real
	// delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPoller creates a Poller with the default thresholds. windowClosed
// may be nil when no window observation is available (headless use);
// the session then only ends by resolution or the poll ceiling.
func NewPoller(status StatusFunc, windowClosed WindowProbe, logger *slog.Logger) *Poller {
	if windowClosed == nil {
		windowClosed = func() bool { return false }
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Poller{
		status:         status,
		windowClosed:   windowClosed,
		interval:       DefaultInterval,
		maxPolls:       DefaultMaxPolls,
		closedDebounce: DefaultClosedDebounce,
		logger:         logger,
		sleep:          sleepCtx,
	}
}

// Wait polls until a terminal state is reached and returns it.
// Transient status errors never terminate the session — only the
// closed-window debounce, the poll ceiling, resolution, or ctx
// cancellation do.
func (p *Poller) Wait(ctx context.Context) (State, error) {
	closedCount := 0

	for poll := 1; poll <= p.maxPolls; poll++ {
		if err := p.sleep(ctx, p.interval); err != nil {
			return StatePolling, fmt.Errorf("picker: polling canceled: %w", err)
		}

		set, err := p.status(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return StatePolling, fmt.Errorf("picker: polling canceled: %w", ctx.Err())
			}

			p.logger.Warn("status poll failed, continuing",
				slog.Int("poll", poll),
				slog.String("error", err.Error()),
			)
		} else if set {
			p.logger.Info("selection finalized",
				slog.Int("polls", poll),
			)

			return StateResolved, nil
		}

		if p.windowClosed() {
			closedCount++
			if closedCount > p.closedDebounce {
				p.logger.Info("picker window closed without selection",
					slog.Int("polls", poll),
				)

				return StateAbandoned, nil
			}
		} else {
			closedCount = 0
		}
	}

	p.logger.Info("picker polling reached its ceiling",
		slog.Int("max_polls", p.maxPolls),
	)

	return StateTimedOut, nil
}

// sleepCtx waits for d or until ctx is canceled. Default sleep for
// Poller.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
