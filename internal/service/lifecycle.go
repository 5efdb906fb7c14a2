package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/helpdesk-hub/ticket-service/internal/audit"
	"github.com/helpdesk-hub/ticket-service/internal/domain"
	"github.com/helpdesk-hub/ticket-service/internal/events"
	"github.com/helpdesk-hub/ticket-service/internal/observability"
	"github.com/helpdesk-hub/ticket-service/internal/repository"
	"github.com/helpdesk-hub/ticket-service/internal/sla"
	"github.com/helpdesk-hub/ticket-service/internal/workflow"
	apperrors "github.com/helpdesk-hub/ticket-service/pkg/util/errorutil"
)

// Dependencies bundles what the lifecycle services share.
type Dependencies struct {
	Store    repository.Store
	SLA      *sla.Calculator
	Recorder *audit.Recorder
	Logger   *zap.Logger
	Metrics  *observability.Metrics
	Tracer   trace.Tracer
	// Clock defaults to time.Now.
	Clock func() time.Time
	// MaxRetries bounds how often a unit of work is repeated after a
	// concurrent modification.
	MaxRetries int
	CodePrefix string
}

// Actor identifies who performs an operation. A nil ID falls back to the
// subject's requestor.
type Actor struct {
	ID        *string
	IPAddress *string
}

// NewActor builds an actor from optional identity strings.
func NewActor(id, ip string) Actor {
	var a Actor
	if strings.TrimSpace(id) != "" {
		a.ID = &id
	}
	if strings.TrimSpace(ip) != "" {
		a.IPAddress = &ip
	}
	return a
}

func (a Actor) or(fallback string) *string {
	if a.ID != nil {
		return a.ID
	}
	if fallback == "" {
		return nil
	}
	return &fallback
}

// Page selects a window of a list. The zero Page selects all of it.
type Page struct {
	Limit  int
	Offset int
}

// lifecycle is the coordinator shared by the ticket, sub-ticket and approval
// services: one atomic unit per call, retried on concurrent modification.
type lifecycle struct {
	store      repository.Store
	sla        *sla.Calculator
	recorder   *audit.Recorder
	logger     *zap.Logger
	metrics    *observability.Metrics
	tracer     trace.Tracer
	clock      func() time.Time
	maxRetries int
	codePrefix string
}

func newLifecycle(deps Dependencies) *lifecycle {
	l := &lifecycle{
		store:      deps.Store,
		sla:        deps.SLA,
		recorder:   deps.Recorder,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		tracer:     deps.Tracer,
		clock:      deps.Clock,
		maxRetries: deps.MaxRetries,
		codePrefix: deps.CodePrefix,
	}
	if l.sla == nil {
		l.sla = sla.NewCalculator(nil)
	}
	if l.clock == nil {
		l.clock = time.Now
	}
	if l.recorder == nil {
		l.recorder = audit.NewRecorder(l.clock)
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	if l.tracer == nil {
		l.tracer = observability.Tracer()
	}
	if l.maxRetries < 0 {
		l.maxRetries = 0
	}
	if l.codePrefix == "" {
		l.codePrefix = "HD"
	}
	return l
}

// now is truncated to the precision the store keeps so optimistic checks
// compare equal after a round trip.
func (l *lifecycle) now() time.Time {
	return l.clock().UTC().Truncate(time.Microsecond)
}

func (l *lifecycle) env(ctx context.Context, tx repository.Repositories, now time.Time) domain.TransitionEnv {
	return domain.TransitionEnv{
		Now: now,
		SLA: l.sla,
		NextCode: func() (string, error) {
			n, err := tx.Codes().Next(ctx, l.codePrefix, now.Year())
			if err != nil {
				return "", err
			}
			return repository.FormatCode(l.codePrefix, now.Year(), n), nil
		},
	}
}

// run executes fn in a transaction, repeating it while the store reports a
// concurrent modification, and maps the final error for callers.
func (l *lifecycle) run(ctx context.Context, subject, op string, fn func(ctx context.Context, tx repository.Repositories) error) error {
	ctx, span := l.tracer.Start(ctx, subject+"."+op)
	defer span.End()
	span.SetAttributes(attribute.String("lifecycle.subject", subject), attribute.String("lifecycle.op", op))

	var err error
	for attempt := 0; attempt <= l.maxRetries; attempt++ {
		err = l.store.WithinTx(ctx, fn)
		if !errors.Is(err, repository.ErrConcurrentModification) {
			break
		}
		l.logger.Warn("concurrent modification",
			zap.String("subject", subject),
			zap.String("op", op),
			zap.Int("attempt", attempt+1))
		span.AddEvent("retry", trace.WithAttributes(attribute.Int("attempt", attempt+1)))
	}

	err = mapError(subject, err)
	outcome := "ok"
	if err != nil {
		outcome = apperrors.ToDomainError(err).Code
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	l.metrics.RecordTransition(subject, op, outcome)
	return err
}

// record appends one audit entry and enqueues its event in the same unit.
func (l *lifecycle) record(ctx context.Context, tx repository.Repositories, entry audit.Entry, event events.Event) error {
	if _, err := l.recorder.Record(ctx, tx.Audit(), entry); err != nil {
		return err
	}
	row, err := event.ToOutbox()
	if err != nil {
		return err
	}
	return tx.Outbox().Enqueue(ctx, row)
}

// history pages a subject's audit trail, newest first.
func (l *lifecycle) history(ctx context.Context, subject, id string, page Page) ([]domain.AuditLog, error) {
	logs, err := l.store.Audit().History(ctx, repository.AuditFilter{
		ModelName: subject,
		ObjectID:  id,
		Limit:     page.Limit,
		Offset:    page.Offset,
	})
	if err != nil {
		return nil, mapError(subject, err)
	}
	return logs, nil
}

func mapError(subject string, err error) error {
	if err == nil {
		return nil
	}
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return err
	}

	var transitionErr *workflow.TransitionError
	if errors.As(err, &transitionErr) {
		details := map[string]any{"action": transitionErr.Action, "from": transitionErr.From}
		switch transitionErr.Kind {
		case workflow.KindInvalidAction:
			return apperrors.WithCause(apperrors.NewInvalidAction(transitionErr.Action), err)
		case workflow.KindGuardFailed:
			return apperrors.WithCause(apperrors.NewGuardFailed(transitionErr.Err.Error(), details), err)
		default:
			return apperrors.WithCause(apperrors.NewInvalidSourceState(
				"action "+transitionErr.Action+" is not allowed from "+transitionErr.From, details), err)
		}
	}

	var fieldErr *domain.FieldError
	if errors.As(err, &fieldErr) {
		return apperrors.WithCause(apperrors.NewValidationError(fieldErr.Error(),
			map[string]any{fieldErr.Field: fieldErr.Message}), err)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.WithCause(apperrors.NewNotFound(subject, nil), err)
	}
	if errors.Is(err, repository.ErrConcurrentModification) {
		return apperrors.WithCause(apperrors.NewConcurrentModification(subject, nil), err)
	}
	return err
}

func notFound(resource, id string) error {
	return apperrors.NewNotFound(resource, map[string]any{"id": id})
}

// lockErr turns a missing row into a NotFound naming the resource.
func lockErr(resource, id string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(resource, id)
	}
	return err
}

func requireReason(reason, field string) error {
	if strings.TrimSpace(reason) == "" {
		return apperrors.NewValidationError(field+" is required", map[string]any{field: "is required"})
	}
	return nil
}
