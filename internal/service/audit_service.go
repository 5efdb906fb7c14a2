package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/helpdesk-hub/ticket-service/internal/audit"
	"github.com/helpdesk-hub/ticket-service/internal/repository"
)

// AuditService runs maintenance over the audit trail.
type AuditService struct {
	store  repository.Store
	logger *zap.Logger
	clock  func() time.Time
}

// NewAuditService constructs the service.
func NewAuditService(store repository.Store, logger *zap.Logger, clock func() time.Time) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = time.Now
	}
	return &AuditService{store: store, logger: logger, clock: clock}
}

// ArchiveExpired marks entries older than retention as archived and returns
// how many were marked. Entries are never removed.
func (s *AuditService) ArchiveExpired(ctx context.Context, retention time.Duration) (int64, error) {
	now := s.clock().UTC().Truncate(time.Microsecond)
	cutoff := audit.RetentionCutoff(now, retention)

	var archived int64
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		n, err := tx.Audit().ArchiveBefore(ctx, cutoff, now)
		archived = n
		return err
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("audit entries archived", zap.Int64("count", archived), zap.Time("cutoff", cutoff))
	return archived, nil
}

// BrokenChain names a subject whose checksums no longer verify.
type BrokenChain struct {
	Subject repository.Subject
	Index   int
	EntryID string
	Err     error
}

// VerifyReport summarises a chain verification run.
type VerifyReport struct {
	Subjects int
	Entries  int
	Broken   []BrokenChain
}

// OK reports whether every chain verified.
func (r VerifyReport) OK() bool { return len(r.Broken) == 0 }

// Verify recomputes the checksum chain of every audited subject.
func (s *AuditService) Verify(ctx context.Context) (VerifyReport, error) {
	var report VerifyReport
	subjects, err := s.store.Audit().Subjects(ctx)
	if err != nil {
		return report, err
	}
	for _, subject := range subjects {
		logs, err := s.store.Audit().Chain(ctx, subject.ModelName, subject.ObjectID)
		if err != nil {
			return report, err
		}
		report.Subjects++
		report.Entries += len(logs)

		if err := audit.VerifyChain(logs); err != nil {
			broken := BrokenChain{Subject: subject, Err: err}
			var chainErr *audit.ChainError
			if errors.As(err, &chainErr) {
				broken.Index = chainErr.Index
				broken.EntryID = chainErr.ID
			}
			report.Broken = append(report.Broken, broken)
			s.logger.Warn("audit chain broken",
				zap.String("model_name", subject.ModelName),
				zap.String("object_id", subject.ObjectID),
				zap.Error(err))
		}
	}
	return report, nil
}
