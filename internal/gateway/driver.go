package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/models"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/session"
)

// Driver owns the current state of every session and runs their turns one at
// a time per session, in the background.
type Driver struct {
	conv   *session.Conversation
	store  *Store
	logger *zap.Logger
	tracer trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDriver creates a driver whose sessions all start from conv.
func NewDriver(conv *session.Conversation, store *Store, logger *zap.Logger) *Driver {
	ctx, cancel := context.WithCancel(context.Background())
	return &Driver{
		conv:   conv,
		store:  store,
		logger: logger,
		tracer: otel.Tracer("session-driver"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start creates a session for task and runs its first Refinement turn.
func (d *Driver) Start(userID, task string, files []models.File) *Session {
	s := newSession(uuid.NewString(), userID, task, files, session.NewRefinement(d.conv))
	d.store.Put(s)

	d.logger.Info("session created",
		zap.String("session_id", s.ID),
		zap.String("user_id", userID),
		zap.Int("files", len(files)),
	)

	s.Append(models.UserMessage(task))
	// a fresh session cannot be busy
	_ = d.submit(s, "", nil)
	return s
}

// Send runs one turn with message. files, when non-nil, replaces the
// session's file snapshot first.
func (d *Driver) Send(s *Session, message string, files []models.File) error {
	return d.submit(s, message, files)
}

func (d *Driver) submit(s *Session, message string, files []models.File) error {
	state, action, err := s.beginTurn(message, files)
	if err != nil {
		return err
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(s, state, action)
	}()
	return nil
}

func (d *Driver) run(s *Session, state session.State, action session.Action) {
	ctx, span := d.tracer.Start(d.ctx, "session.interact")
	defer span.End()

	span.SetAttributes(
		attribute.String("session.id", s.ID),
		attribute.String("session.state", string(state.Kind())),
	)

	start := time.Now()
	result := state.Interact(ctx, action)
	s.endTurn(result)

	span.SetAttributes(attribute.String("session.next_state", string(result.Next.Kind())))
	d.logger.Info("session turn finished",
		zap.String("session_id", s.ID),
		zap.String("state", string(state.Kind())),
		zap.String("next_state", string(result.Next.Kind())),
		zap.Int("interactions", len(result.Interactions)),
		zap.Duration("elapsed", time.Since(start)),
	)
}

// Wait blocks until every running turn has returned.
func (d *Driver) Wait() {
	d.wg.Wait()
}

// Shutdown stops polling in every running turn and waits for them, bounded by ctx.
func (d *Driver) Shutdown(ctx context.Context) error {
	d.cancel()
	d.store.Close()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
