package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/helpdesk-hub/ticket-service/internal/domain"
	"github.com/helpdesk-hub/ticket-service/internal/observability"
	"github.com/helpdesk-hub/ticket-service/internal/repository"
	"github.com/helpdesk-hub/ticket-service/internal/sla"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store     repository.Store
	mem       *repository.MemoryStore
	clock     *testClock
	metrics   *observability.Metrics
	tickets   *TicketService
	subs      *SubTicketService
	approvals *ApprovalService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := repository.NewMemoryStore()
	return newFixtureWithStore(t, mem, mem)
}

func newFixtureWithStore(t *testing.T, store repository.Store, mem *repository.MemoryStore) *fixture {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)}
	metrics := observability.NewMetrics()
	deps := Dependencies{
		Store:      store,
		SLA:        sla.NewCalculator(nil),
		Logger:     zaptest.NewLogger(t),
		Metrics:    metrics,
		Clock:      clock.Now,
		MaxRetries: 3,
		CodePrefix: "HD",
	}
	return &fixture{
		store:     store,
		mem:       mem,
		clock:     clock,
		metrics:   metrics,
		tickets:   NewTicketService(deps),
		subs:      NewSubTicketService(deps),
		approvals: NewApprovalService(deps),
	}
}

func (f *fixture) createTicket(t *testing.T, priority string) *domain.Ticket {
	t.Helper()
	ticket, err := f.tickets.CreateTicket(context.Background(), CreateTicketInput{
		Title:       "VPN drops every hour",
		Description: "since the last client update",
		RequestorID: "requestor-1",
		Priority:    priority,
		Category:    "network",
	}, Actor{})
	require.NoError(t, err)
	return ticket
}

func (f *fixture) act(t *testing.T, id string, action domain.TicketAction) *domain.Ticket {
	t.Helper()
	f.clock.Advance(time.Minute)
	ticket, err := f.tickets.ApplyAction(context.Background(), id, ActionRequest{Action: action}, NewActor("agent-1", ""))
	require.NoError(t, err)
	return ticket
}

func (f *fixture) history(t *testing.T, subject, id string) []domain.AuditLog {
	t.Helper()
	logs, err := f.store.Audit().History(context.Background(), repository.AuditFilter{
		ModelName: subject,
		ObjectID:  id,
		Limit:     200,
	})
	require.NoError(t, err)
	return logs
}

func (f *fixture) outboxSize(t *testing.T) int {
	t.Helper()
	pending, err := f.store.Outbox().ClaimBatch(context.Background(), 1000, 100)
	require.NoError(t, err)
	return len(pending)
}

// flakyStore reports a concurrent modification for the first failures units
// of work.
type flakyStore struct {
	*repository.MemoryStore
	mu       sync.Mutex
	failures int
	calls    int
}

func (s *flakyStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Repositories) error) error {
	s.mu.Lock()
	s.calls++
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()
	if fail {
		return repository.ErrConcurrentModification
	}
	return s.MemoryStore.WithinTx(ctx, fn)
}

// brokenAuditStore fails every audit append made inside a unit of work.
type brokenAuditStore struct {
	*repository.MemoryStore
}

var errAuditDown = errors.New("audit store unavailable")

func (s brokenAuditStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Repositories) error) error {
	return s.MemoryStore.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		return fn(ctx, brokenAuditRepos{tx})
	})
}

type brokenAuditRepos struct {
	repository.Repositories
}

func (r brokenAuditRepos) Audit() repository.AuditRepository {
	return brokenAudit{r.Repositories.Audit()}
}

type brokenAudit struct {
	repository.AuditRepository
}

func (brokenAudit) Append(context.Context, *domain.AuditLog) error { return errAuditDown }
