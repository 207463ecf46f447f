// Package services sequences backend calls for the signed-in user and keeps
// their state.AppState in step. Every operation takes the caller's state
// explicitly and touches it only after the backend call succeeded.
package services

import (
	"context"
	"fmt"
	"math/rand/v2"

	"metas/internal/amqp"
	"metas/internal/backend"
	"metas/internal/core"
	"metas/internal/draw"
	"metas/internal/log"
	"metas/internal/metrics"
)

// Publisher hands ledger events to the broker. *amqp.Client satisfies it.
type Publisher interface {
	Publish(ctx context.Context, ev amqp.LedgerEvent) error
}

type options struct {
	publisher Publisher
	logger    *log.Logger
	rng       *rand.Rand
	frames    int
}

// Option configures the services bundle.
type Option func(*options)

// WithPublisher enables event publishing. Without it events are dropped.
func WithPublisher(p Publisher) Option {
	return func(o *options) { o.publisher = p }
}

func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRand seeds the spin animation.
func WithRand(rng *rand.Rand) Option {
	return func(o *options) { o.rng = rng }
}

// WithFrames sets how many values a draw animation carries.
func WithFrames(n int) Option {
	return func(o *options) { o.frames = n }
}

// Services bundles the operation families exposed to users.
type Services struct {
	Pool        *PoolService
	Ledger      *LedgerService
	Goals       *GoalService
	Invitations *InvitationService
	Profile     *ProfileService
}

// New wires every service around one backend.
func New(b backend.Backend, opts ...Option) *Services {
	o := options{frames: draw.DefaultFrames}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.New(log.DefaultConfig())
	}
	base := &base{
		backend:    b,
		publisher:  o.publisher,
		logger:     o.logger,
		structured: log.NewStructuredLogger(o.logger),
	}
	pool := &PoolService{base: base.named(log.ComponentPool), rng: o.rng, frames: o.frames}
	return &Services{
		Pool:        pool,
		Ledger:      &LedgerService{base: base.named(log.ComponentLedger), pool: pool},
		Goals:       &GoalService{base: base.named(log.ComponentGoals)},
		Invitations: &InvitationService{base: base.named(log.ComponentInvitations)},
		Profile:     &ProfileService{base: base.named(log.ComponentProfile)},
	}
}

type base struct {
	backend    backend.Backend
	publisher  Publisher
	logger     *log.Logger
	structured *log.StructuredLogger
}

func (b *base) named(component string) *base {
	cp := *b
	cp.logger = b.logger.WithComponent(component)
	return &cp
}

// memberGoal loads goalID for u and checks that u takes part in it.
func (b *base) memberGoal(ctx context.Context, u core.User, goalID string) (core.Goal, error) {
	g, err := b.backend.GetGoal(ctx, goalID)
	if err != nil {
		return core.Goal{}, err
	}
	if err := checkMember(g, u.ID); err != nil {
		return core.Goal{}, err
	}
	return g, nil
}

// ownedGoal loads goalID and checks that u owns it.
func (b *base) ownedGoal(ctx context.Context, u core.User, goalID string) (core.Goal, error) {
	g, err := b.backend.GetGoal(ctx, goalID)
	if err != nil {
		return core.Goal{}, err
	}
	if !g.IsOwner(u.ID) {
		return core.Goal{}, fmt.Errorf("goal %s is owned by someone else: %w", goalID, core.ErrForbidden)
	}
	return g, nil
}

func checkMember(g core.Goal, userID string) error {
	if g.IsOwner(userID) || g.HasParticipant(userID) {
		return nil
	}
	return fmt.Errorf("not a participant of goal %s: %w", g.ID, core.ErrForbidden)
}

// publish sends ev and never fails the caller: the change is already stored
// and the worker reconciles on its schedule.
func (b *base) publish(ctx context.Context, ev amqp.LedgerEvent) {
	if b.publisher == nil {
		b.logger.DebugContext(ctx, "No publisher configured, skipping ledger event",
			log.FieldEventType, ev.Type, log.FieldGoalID, ev.GoalID)
		return
	}
	if err := b.publisher.Publish(ctx, ev); err != nil {
		metrics.EventsPublished.WithLabelValues(string(ev.Type), "error").Inc()
		b.logger.ErrorContext(ctx, "Failed to publish ledger event",
			log.FieldEventType, ev.Type, log.FieldGoalID, ev.GoalID, log.FieldError, err)
		return
	}
	metrics.EventsPublished.WithLabelValues(string(ev.Type), "ok").Inc()
}
