// Package polling drives a remote generation to a terminal status.
package polling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/models"
)

// Status is the remote-reported state of a generation.
type Status string

const (
	StatusInProgress Status = "in-progress"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

var (
	ErrGenerationFailed = errors.New("generation failed")
	ErrUnknownStatus    = errors.New("unknown generation status")
	ErrTimeout          = errors.New("generation timed out")
	ErrCancelled        = errors.New("polling cancelled")
	ErrFetch            = errors.New("failed to fetch generation status")
)

// Chat-visible diagnostics, one per terminal non-ready outcome.
const (
	MessageFailed        = "Code generation failed."
	MessageUnknownStatus = "Code generation returned an unexpected status: %q."
	MessageTimeout       = "Code generation timed out without producing files."
	MessageFetchFailed   = "Could not retrieve the code generation status."
)

// Result is one status observation. Files is set only when Status is ready.
type Result struct {
	Status Status        `json:"status"`
	Files  []models.File `json:"result,omitempty"`
}

// FetchFunc performs one status query.
type FetchFunc func(ctx context.Context) (Result, error)

// DelayFunc waits for d, returning early if ctx ends or done fires.
type DelayFunc func(ctx context.Context, d time.Duration, done <-chan struct{})

// NotifyFunc appends a diagnostic to the visible conversation.
type NotifyFunc func(message string)

// SleepDelay is the wall-clock DelayFunc.
func SleepDelay(ctx context.Context, d time.Duration, done <-chan struct{}) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-done:
	}
}

// Poller repeats a status fetch until the generation settles.
type Poller struct {
	MaxAttempts int
	Interval    time.Duration
	Delay       DelayFunc
	logger      *zap.Logger
}

// New creates a poller with the wall-clock delay
func New(maxAttempts int, interval time.Duration, logger *zap.Logger) *Poller {
	if maxAttempts <= 0 {
		maxAttempts = 60
	}
	return &Poller{
		MaxAttempts: maxAttempts,
		Interval:    interval,
		Delay:       SleepDelay,
		logger:      logger.Named("poller"),
	}
}

// PollUntilDone fetches status up to MaxAttempts times, waiting Interval between
// in-progress observations. Ready returns the files at once. Failed, unknown
// statuses, fetch errors and exhaustion each emit one diagnostic through notify
// and return a wrapped sentinel error. A signaled token stops the loop before
// the next attempt without a diagnostic.
func (p *Poller) PollUntilDone(ctx context.Context, fetch FetchFunc, token *CancelToken, notify NotifyFunc) ([]models.File, error) {
	if notify == nil {
		notify = func(string) {}
	}

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if token.Cancelled() || ctx.Err() != nil {
			p.logger.Info("polling cancelled", zap.Int("attempt", attempt))
			return nil, ErrCancelled
		}

		result, err := fetch(ctx)
		if err != nil {
			p.logger.Error("status fetch failed", zap.Int("attempt", attempt), zap.Error(err))
			notify(MessageFetchFailed)
			return nil, fmt.Errorf("%w: %v", ErrFetch, err)
		}

		switch result.Status {
		case StatusReady:
			p.logger.Debug("generation ready", zap.Int("attempt", attempt), zap.Int("files", len(result.Files)))
			if result.Files == nil {
				return []models.File{}, nil
			}
			return result.Files, nil

		case StatusInProgress:
			if attempt < p.MaxAttempts {
				p.Delay(ctx, p.Interval, token.Done())
			}

		case StatusFailed:
			p.logger.Warn("generation reported failure", zap.Int("attempt", attempt))
			notify(MessageFailed)
			return nil, ErrGenerationFailed

		default:
			p.logger.Warn("unrecognized generation status", zap.String("status", string(result.Status)))
			notify(fmt.Sprintf(MessageUnknownStatus, result.Status))
			return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, result.Status)
		}
	}

	p.logger.Warn("generation timed out", zap.Int("attempts", p.MaxAttempts), zap.Duration("interval", p.Interval))
	notify(MessageTimeout)
	return nil, ErrTimeout
}
