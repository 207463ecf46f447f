package services_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"metas/internal/amqp"
	"metas/internal/backend"
	"metas/internal/backend/memory"
	"metas/internal/core"
	"metas/internal/log"
	"metas/internal/services"
	"metas/internal/state"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []amqp.LedgerEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev amqp.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []amqp.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.EventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	ctx     context.Context
	backend backend.Backend
	svc     *services.Services
	pub     *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, memory.New())
}

func newFixtureWith(t *testing.T, b backend.Backend) *fixture {
	t.Helper()
	pub := &recordingPublisher{}
	return &fixture{
		ctx:     context.Background(),
		backend: b,
		pub:     pub,
		svc: services.New(b,
			services.WithPublisher(pub),
			services.WithLogger(log.Discard()),
			services.WithFrames(8)),
	}
}

// session signs a user in on a fresh state.
func (f *fixture) session(t *testing.T, id string) *state.AppState {
	t.Helper()
	st := state.New()
	_, err := f.svc.Profile.SignIn(f.ctx, st, core.User{ID: id, Email: id + "@example.com"})
	require.NoError(t, err)
	return st
}

func (f *fixture) goal(t *testing.T, st *state.AppState, slots int) core.Goal {
	t.Helper()
	g, err := f.svc.Goals.Create(f.ctx, st, core.GoalInput{Title: "Trip", SlotCount: slots})
	require.NoError(t, err)
	return g
}

func (f *fixture) submit(t *testing.T, st *state.AppState, goalID string, slot int) core.Proof {
	t.Helper()
	p, err := f.svc.Ledger.SubmitProof(f.ctx, st, upload(goalID, slot))
	require.NoError(t, err)
	return p
}

// join invites userID to goalID and accepts on their behalf.
func (f *fixture) join(t *testing.T, owner, member *state.AppState, goalID string) {
	t.Helper()
	u, ok := member.User()
	require.True(t, ok)
	inv, err := f.svc.Invitations.Invite(f.ctx, owner, goalID, u.Email)
	require.NoError(t, err)
	_, err = f.svc.Invitations.Accept(f.ctx, member, inv.ID)
	require.NoError(t, err)
}

func upload(goalID string, slot int) core.ProofUpload {
	return core.ProofUpload{
		GoalID:      goalID,
		Slot:        slot,
		FileName:    "receipt.png",
		ContentType: "image/png",
		Body:        strings.NewReader("png"),
	}
}

var errBroker = errors.New("broker down")
