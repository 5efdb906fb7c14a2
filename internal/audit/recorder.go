package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/helpdesk-hub/ticket-service/internal/domain"
)

// DefaultRetention is how long entries stay live before archival.
const DefaultRetention = 7 * 365 * 24 * time.Hour

// Store is the append-only sink the recorder writes through. Append must
// assign Sequence. LatestForSubject returns nil when the subject has no
// entries yet.
type Store interface {
	Append(ctx context.Context, log *domain.AuditLog) error
	LatestForSubject(ctx context.Context, modelName, objectID string) (*domain.AuditLog, error)
}

// Entry describes one mutation to record.
type Entry struct {
	ActorID     *string
	Action      domain.AuditActionType
	Category    domain.AuditCategory
	SubjectType string
	SubjectID   string
	Before      map[string]any
	After       map[string]any
	Reason      string
	IPAddress   *string
}

// Recorder turns entries into chained audit records.
type Recorder struct {
	now func() time.Time
}

// NewRecorder builds a recorder. A nil clock uses time.Now.
func NewRecorder(clock func() time.Time) *Recorder {
	if clock == nil {
		clock = time.Now
	}
	return &Recorder{now: clock}
}

// Record appends exactly one record. An entry without changes is still
// written.
func (r *Recorder) Record(ctx context.Context, store Store, e Entry) (*domain.AuditLog, error) {
	if e.SubjectType == "" || e.SubjectID == "" {
		return nil, fmt.Errorf("audit: subject is required")
	}
	before := e.Before
	if before == nil {
		before = map[string]any{}
	}
	after := e.After
	if after == nil {
		after = map[string]any{}
	}

	log := &domain.AuditLog{
		ID:            uuid.NewString(),
		ActionType:    e.Action,
		Category:      e.Category,
		ModelName:     e.SubjectType,
		ObjectID:      e.SubjectID,
		OldState:      before,
		NewState:      after,
		Changes:       Diff(before, after),
		PerformedByID: e.ActorID,
		Reason:        e.Reason,
		IPAddress:     e.IPAddress,
		// timestamptz keeps microseconds; truncate so the checksum survives a round trip
		Timestamp: r.now().UTC().Truncate(time.Microsecond),
	}

	prev, err := store.LatestForSubject(ctx, e.SubjectType, e.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("audit: load chain head: %w", err)
	}
	head := GenesisChecksum
	if prev != nil {
		head = prev.Checksum
	}
	if log.Checksum, err = Checksum(head, log); err != nil {
		return nil, err
	}
	if err := store.Append(ctx, log); err != nil {
		return nil, fmt.Errorf("audit: append: %w", err)
	}
	return log, nil
}

// RetentionCutoff returns the timestamp before which entries are archived.
func RetentionCutoff(now time.Time, retention time.Duration) time.Time {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return now.Add(-retention)
}
