package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/helpdesk-hub/ticket-service/internal/domain"
)

// MemoryStore is a Store kept in process memory. Transactions are serialized
// by a single mutex and write in place, keeping an undo log so a failed unit of
// work leaves no trace. Published outbox rows are dropped. It backs the service
// when no database is configured and in tests.
type MemoryStore struct {
	mu   sync.Mutex
	data *memData
}

type memData struct {
	tickets   map[string]domain.Ticket
	subs      map[string]domain.SubTicket
	approvals map[string]domain.Approval
	audit     []domain.AuditLog
	outbox    []domain.OutboxEvent
	counters  map[string]int
	seq       int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: &memData{
		tickets:   map[string]domain.Ticket{},
		subs:      map[string]domain.SubTicket{},
		approvals: map[string]domain.Approval{},
		counters:  map[string]int{},
	}}
}

// memTx collects the undo steps of one unit of work.
type memTx struct {
	undo []func()
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// WithinTx runs fn under the store lock and reverts its writes unless it
// succeeds.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{}
	committed := false
	defer func() {
		if !committed {
			tx.rollback()
		}
	}()
	if err := fn(ctx, memRepos{store: s, tx: tx}); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Tickets() TicketRepository       { return memRepos{store: s}.Tickets() }
func (s *MemoryStore) SubTickets() SubTicketRepository { return memRepos{store: s}.SubTickets() }
func (s *MemoryStore) Approvals() ApprovalRepository   { return memRepos{store: s}.Approvals() }
func (s *MemoryStore) Audit() AuditRepository          { return memRepos{store: s}.Audit() }
func (s *MemoryStore) Outbox() OutboxRepository        { return memRepos{store: s}.Outbox() }
func (s *MemoryStore) Codes() CodeRepository           { return memRepos{store: s}.Codes() }

// memRepos runs inside a transaction when tx is set (the store lock is already
// held) and takes the lock per call otherwise.
type memRepos struct {
	store *MemoryStore
	tx    *memTx
}

func (r memRepos) with(fn func(d *memData) error) error {
	if r.tx != nil {
		return fn(r.store.data)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return fn(r.store.data)
}

// onRollback registers an undo step. Writes outside a transaction are final.
func (r memRepos) onRollback(fn func()) {
	if r.tx != nil {
		r.tx.undo = append(r.tx.undo, fn)
	}
}

// put stores v under k and registers the step that restores the old entry.
func put[K comparable, V any](r memRepos, m map[K]V, k K, v V) {
	prev, existed := m[k]
	r.onRollback(func() {
		if existed {
			m[k] = prev
		} else {
			delete(m, k)
		}
	})
	m[k] = v
}

func (r memRepos) Tickets() TicketRepository       { return memTickets{r} }
func (r memRepos) SubTickets() SubTicketRepository { return memSubTickets{r} }
func (r memRepos) Approvals() ApprovalRepository   { return memApprovals{r} }
func (r memRepos) Audit() AuditRepository          { return memAudit{r} }
func (r memRepos) Outbox() OutboxRepository        { return memOutbox{r} }
func (r memRepos) Codes() CodeRepository           { return memCodes{r} }

type memTickets struct{ memRepos }

func (r memTickets) Create(_ context.Context, t *domain.Ticket) error {
	return r.with(func(d *memData) error {
		put(r.memRepos, d.tickets, t.ID, cloneTicket(*t))
		return nil
	})
}

func (r memTickets) Update(_ context.Context, t *domain.Ticket, expectedUpdatedAt time.Time) error {
	return r.with(func(d *memData) error {
		current, ok := d.tickets[t.ID]
		if !ok || !current.UpdatedAt.Equal(expectedUpdatedAt) {
			return ErrConcurrentModification
		}
		put(r.memRepos, d.tickets, t.ID, cloneTicket(*t))
		return nil
	})
}

func (r memTickets) Get(_ context.Context, id string, includeDeleted bool) (*domain.Ticket, error) {
	var out *domain.Ticket
	err := r.with(func(d *memData) error {
		t, ok := d.tickets[id]
		if !ok || (t.IsDeleted && !includeDeleted) {
			return ErrNotFound
		}
		c := cloneTicket(t)
		out = &c
		return nil
	})
	return out, err
}

func (r memTickets) GetForUpdate(ctx context.Context, id string, includeDeleted bool) (*domain.Ticket, error) {
	return r.Get(ctx, id, includeDeleted)
}

func (r memTickets) List(_ context.Context, f TicketFilter) ([]domain.Ticket, error) {
	var out []domain.Ticket
	err := r.with(func(d *memData) error {
		for _, t := range d.tickets {
			if matchTicket(t, f) {
				out = append(out, cloneTicket(t))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	limit, offset := listBounds(f.Limit, f.Offset)
	return paginate(out, limit, offset), err
}

func matchTicket(t domain.Ticket, f TicketFilter) bool {
	if t.IsDeleted && !f.IncludeDeleted {
		return false
	}
	if f.RequestorID != nil && t.RequestorID != *f.RequestorID {
		return false
	}
	if f.DepartmentID != nil && (t.DepartmentID == nil || *t.DepartmentID != *f.DepartmentID) {
		return false
	}
	if f.AssigneeID != nil && (t.AssigneeID == nil || *t.AssigneeID != *f.AssigneeID) {
		return false
	}
	if len(f.Statuses) > 0 && !contains(f.Statuses, t.Status) {
		return false
	}
	if len(f.Priorities) > 0 && !contains(f.Priorities, t.Priority) {
		return false
	}
	if f.CreatedFrom != nil && t.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && t.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	if f.SearchTerm != nil {
		term := strings.ToLower(strings.TrimSpace(*f.SearchTerm))
		code := ""
		if t.Code != nil {
			code = *t.Code
		}
		if term != "" && !strings.Contains(strings.ToLower(t.Title+"\x00"+t.Description+"\x00"+code), term) {
			return false
		}
	}
	return true
}

type memSubTickets struct{ memRepos }

func (r memSubTickets) Create(_ context.Context, s *domain.SubTicket) error {
	return r.with(func(d *memData) error {
		if _, ok := d.tickets[s.ParentTicketID]; !ok {
			return ErrNotFound
		}
		put(r.memRepos, d.subs, s.ID, cloneSubTicket(*s))
		return nil
	})
}

func (r memSubTickets) Update(_ context.Context, s *domain.SubTicket, expectedUpdatedAt time.Time) error {
	return r.with(func(d *memData) error {
		current, ok := d.subs[s.ID]
		if !ok || !current.UpdatedAt.Equal(expectedUpdatedAt) {
			return ErrConcurrentModification
		}
		put(r.memRepos, d.subs, s.ID, cloneSubTicket(*s))
		return nil
	})
}

func (r memSubTickets) Get(_ context.Context, id string, includeDeleted bool) (*domain.SubTicket, error) {
	var out *domain.SubTicket
	err := r.with(func(d *memData) error {
		s, ok := d.subs[id]
		if !ok || (!includeDeleted && !subVisible(d, s)) {
			return ErrNotFound
		}
		c := cloneSubTicket(s)
		out = &c
		return nil
	})
	return out, err
}

func (r memSubTickets) GetForUpdate(ctx context.Context, id string, includeDeleted bool) (*domain.SubTicket, error) {
	return r.Get(ctx, id, includeDeleted)
}

func (r memSubTickets) ListByParent(_ context.Context, parentID string, includeDeleted bool) ([]domain.SubTicket, error) {
	var out []domain.SubTicket
	err := r.with(func(d *memData) error {
		for _, s := range d.subs {
			if s.ParentTicketID == parentID && (includeDeleted || subVisible(d, s)) {
				out = append(out, cloneSubTicket(s))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func subVisible(d *memData, s domain.SubTicket) bool {
	parent, ok := d.tickets[s.ParentTicketID]
	return !s.IsDeleted && ok && !parent.IsDeleted
}

type memApprovals struct{ memRepos }

func (r memApprovals) Create(_ context.Context, a *domain.Approval) error {
	return r.with(func(d *memData) error {
		put(r.memRepos, d.approvals, a.ID, cloneApproval(*a))
		return nil
	})
}

func (r memApprovals) Update(_ context.Context, a *domain.Approval, expectedUpdatedAt time.Time) error {
	return r.with(func(d *memData) error {
		current, ok := d.approvals[a.ID]
		if !ok || !current.UpdatedAt.Equal(expectedUpdatedAt) {
			return ErrConcurrentModification
		}
		put(r.memRepos, d.approvals, a.ID, cloneApproval(*a))
		return nil
	})
}

func (r memApprovals) Get(_ context.Context, id string, includeDeleted bool) (*domain.Approval, error) {
	var out *domain.Approval
	err := r.with(func(d *memData) error {
		a, ok := d.approvals[id]
		if !ok || (a.IsDeleted && !includeDeleted) {
			return ErrNotFound
		}
		c := cloneApproval(a)
		out = &c
		return nil
	})
	return out, err
}

func (r memApprovals) GetForUpdate(ctx context.Context, id string, includeDeleted bool) (*domain.Approval, error) {
	return r.Get(ctx, id, includeDeleted)
}

func (r memApprovals) ListByTicket(_ context.Context, ticketID string, includeDeleted bool) ([]domain.Approval, error) {
	var out []domain.Approval
	err := r.with(func(d *memData) error {
		for _, a := range d.approvals {
			if a.TicketID == ticketID && (includeDeleted || !a.IsDeleted) {
				out = append(out, cloneApproval(a))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

type memAudit struct{ memRepos }

func (r memAudit) Append(_ context.Context, log *domain.AuditLog) error {
	return r.with(func(d *memData) error {
		n, seq := len(d.audit), d.seq
		r.onRollback(func() {
			d.audit = d.audit[:n]
			d.seq = seq
		})
		d.seq++
		log.Sequence = d.seq
		d.audit = append(d.audit, *log)
		return nil
	})
}

func (r memAudit) LatestForSubject(_ context.Context, modelName, objectID string) (*domain.AuditLog, error) {
	var out *domain.AuditLog
	err := r.with(func(d *memData) error {
		for i := len(d.audit) - 1; i >= 0; i-- {
			if d.audit[i].ModelName == modelName && d.audit[i].ObjectID == objectID {
				l := d.audit[i]
				out = &l
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r memAudit) History(ctx context.Context, f AuditFilter) ([]domain.AuditLog, error) {
	logs, err := r.Chain(ctx, f.ModelName, f.ObjectID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(logs, func(i, j int) bool {
		if !logs[i].Timestamp.Equal(logs[j].Timestamp) {
			return logs[i].Timestamp.After(logs[j].Timestamp)
		}
		return logs[i].Sequence > logs[j].Sequence
	})
	limit, offset := pageBounds(f.Limit, f.Offset)
	return paginate(logs, limit, offset), nil
}

func (r memAudit) Chain(_ context.Context, modelName, objectID string) ([]domain.AuditLog, error) {
	var out []domain.AuditLog
	err := r.with(func(d *memData) error {
		for _, l := range d.audit {
			if l.ModelName == modelName && l.ObjectID == objectID {
				out = append(out, l)
			}
		}
		return nil
	})
	return out, err
}

func (r memAudit) Subjects(_ context.Context) ([]Subject, error) {
	seen := map[Subject]struct{}{}
	var out []Subject
	err := r.with(func(d *memData) error {
		for _, l := range d.audit {
			s := Subject{ModelName: l.ModelName, ObjectID: l.ObjectID}
			if _, ok := seen[s]; !ok {
				seen[s] = struct{}{}
				out = append(out, s)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].ModelName != out[j].ModelName {
			return out[i].ModelName < out[j].ModelName
		}
		return out[i].ObjectID < out[j].ObjectID
	})
	return out, err
}

func (r memAudit) ArchiveBefore(_ context.Context, cutoff, archivedAt time.Time) (int64, error) {
	var n int64
	err := r.with(func(d *memData) error {
		for i := range d.audit {
			if d.audit[i].ArchivedAt == nil && d.audit[i].Timestamp.Before(cutoff) {
				r.onRollback(func() { d.audit[i].ArchivedAt = nil })
				at := archivedAt
				d.audit[i].ArchivedAt = &at
				n++
			}
		}
		return nil
	})
	return n, err
}

type memOutbox struct{ memRepos }

func (r memOutbox) Enqueue(_ context.Context, ev *domain.OutboxEvent) error {
	return r.with(func(d *memData) error {
		n := len(d.outbox)
		r.onRollback(func() { d.outbox = d.outbox[:n] })
		d.outbox = append(d.outbox, *ev)
		return nil
	})
}

func (r memOutbox) ClaimBatch(_ context.Context, limit, maxAttempts int) ([]domain.OutboxEvent, error) {
	var out []domain.OutboxEvent
	err := r.with(func(d *memData) error {
		for _, ev := range d.outbox {
			if len(out) >= limit {
				break
			}
			if ev.PublishedAt == nil && ev.Attempts < maxAttempts {
				out = append(out, ev)
			}
		}
		return nil
	})
	return out, err
}

// MarkPublished drops the row; nothing reads published events back.
func (r memOutbox) MarkPublished(_ context.Context, id string, _ time.Time) error {
	return r.with(func(d *memData) error {
		for i := range d.outbox {
			if d.outbox[i].ID == id {
				row := d.outbox[i]
				r.onRollback(func() {
					d.outbox = append(d.outbox[:i], append([]domain.OutboxEvent{row}, d.outbox[i:]...)...)
				})
				d.outbox = append(d.outbox[:i:i], d.outbox[i+1:]...)
				return nil
			}
		}
		return ErrNotFound
	})
}

func (r memOutbox) MarkFailed(_ context.Context, id string, reason string) error {
	return r.with(func(d *memData) error {
		for i := range d.outbox {
			if d.outbox[i].ID == id {
				prev := d.outbox[i]
				r.onRollback(func() { d.outbox[i] = prev })
				d.outbox[i].Attempts++
				d.outbox[i].LastError = reason
				return nil
			}
		}
		return ErrNotFound
	})
}

type memCodes struct{ memRepos }

func (r memCodes) Next(_ context.Context, prefix string, year int) (int, error) {
	var n int
	err := r.with(func(d *memData) error {
		key := FormatCode(prefix, year, 0)
		n = d.counters[key] + 1
		put(r.memRepos, d.counters, key, n)
		return nil
	})
	return n, err
}

func cloneTicket(t domain.Ticket) domain.Ticket {
	t.Code = cloneString(t.Code)
	t.DepartmentID = cloneString(t.DepartmentID)
	t.AssigneeID = cloneString(t.AssigneeID)
	t.DueAt = cloneTime(t.DueAt)
	t.AcknowledgedAt = cloneTime(t.AcknowledgedAt)
	t.DeletedAt = cloneTime(t.DeletedAt)
	return t
}

func cloneSubTicket(s domain.SubTicket) domain.SubTicket {
	s.AssigneeID = cloneString(s.AssigneeID)
	s.DeletedAt = cloneTime(s.DeletedAt)
	return s
}

func cloneApproval(a domain.Approval) domain.Approval {
	docs := make(map[string]any, len(a.Documents))
	for k, v := range a.Documents {
		docs[k] = v
	}
	a.Documents = docs
	a.DeletedAt = cloneTime(a.DeletedAt)
	return a
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func contains[T comparable](items []T, v T) bool {
	for _, item := range items {
		if item == v {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
