package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/surgilog/internal/domain/model"
	"github.com/okian/surgilog/internal/domain/types"
	"github.com/okian/surgilog/pkg/logger"
	"github.com/okian/surgilog/pkg/metrics"
)

// Store is the part of the persistence contract the engine needs.
type Store interface {
	// Insert stores a new record at revision 1.
	Insert(ctx context.Context, rec model.Record) (model.Record, error)
	// Load returns the record with id, deleted or not. ErrNotFound if absent.
	Load(ctx context.Context, id string) (model.Record, error)
	// Save writes rec if the stored revision still equals rec.Revision and
	// returns it with the next revision. ErrConflict otherwise.
	Save(ctx context.Context, rec model.Record) (model.Record, error)
}

// TemplateProvider resolves a surgery id to its step and OSAT templates.
type TemplateProvider interface {
	Template(ctx context.Context, surgeryID string) (model.SurgeryTemplate, error)
}

// Engine runs lifecycle transitions against a Store. Each transition loads the
// record, applies one of the Apply functions to a private copy and saves it
// with an optimistic revision check.
type Engine struct {
	store     Store
	templates TemplateProvider
	now       func() time.Time
	newID     func() string
	logger    logger.Logger
}

// New constructs an Engine over store and templates.
func New(store Store, templates TemplateProvider, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		templates: templates,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.Default().Named("lifecycle")
	}
	return e
}

// Create opens a pending record for the calling resident, copying the
// surgery's step and OSAT templates.
func (e *Engine) Create(ctx context.Context, actor types.Actor, req CreateRequest) (rec model.Record, err error) {
	const op = "lifecycle.create"
	start := time.Now()
	defer func() { e.observe(ctx, TransitionCreate, rec.ID, actor, start, err) }()

	if actor.Role != types.RoleResident || actor.ID == "" {
		return model.Record{}, model.WrapKind(op, model.ErrForbidden,
			fmt.Errorf("%s %q may not create records", actor.Role, actor.ID))
	}
	req.normalize()
	if err := validateStruct(op, req); err != nil {
		return model.Record{}, err
	}

	tpl, err := e.templates.Template(ctx, req.SurgeryID)
	if err != nil {
		return model.Record{}, err
	}

	created, err := model.NewRecord(model.NewRecordParams{
		ID:            e.newID(),
		ResidentID:    actor.ID,
		TeacherID:     req.TeacherID,
		PatientID:     req.PatientID,
		Date:          req.Date,
		ResidentsYear: req.ResidentsYear,
		Template:      tpl,
		Now:           e.now(),
	})
	if err != nil {
		return model.Record{}, err
	}

	rec, err = e.store.Insert(ctx, *created)
	if err != nil {
		return model.Record{}, err
	}
	metrics.RecordRecordCreated()
	return rec, nil
}

// Get returns a live record visible to actor.
func (e *Engine) Get(ctx context.Context, actor types.Actor, id string) (model.Record, error) {
	const op = "lifecycle.get"
	rec, err := e.store.Load(ctx, id)
	if err != nil {
		return model.Record{}, err
	}
	if err := checkLive(op, &rec); err != nil {
		return model.Record{}, err
	}
	if !CanView(&rec, actor) {
		return model.Record{}, forbidden(op, &rec, actor)
	}
	return rec, nil
}

// SubmitSelfAssessment applies the resident's self-assessment (pending -> corrected).
func (e *Engine) SubmitSelfAssessment(ctx context.Context, actor types.Actor, req SelfAssessmentRequest) (model.Record, error) {
	return e.transition(ctx, TransitionSelfAssessment, req.RecordID, actor, func(rec *model.Record) error {
		return ApplySelfAssessment(rec, actor, req)
	})
}

// SubmitReview applies the teacher's review (corrected -> reviewed).
func (e *Engine) SubmitReview(ctx context.Context, actor types.Actor, req ReviewRequest) (model.Record, error) {
	return e.transition(ctx, TransitionReview, req.RecordID, actor, func(rec *model.Record) error {
		if err := ApplyReview(rec, actor, req); err != nil {
			return err
		}
		at := e.now()
		rec.ReviewedAt = &at
		return nil
	})
}

// Cancel cancels a pending or corrected record.
func (e *Engine) Cancel(ctx context.Context, actor types.Actor, req CancelRequest) (model.Record, error) {
	return e.transition(ctx, TransitionCancel, req.RecordID, actor, func(rec *model.Record) error {
		if err := ApplyCancel(rec, actor, req); err != nil {
			return err
		}
		at := e.now()
		rec.CanceledAt = &at
		return nil
	})
}

// Delete soft-deletes a record. The record stays in the store.
func (e *Engine) Delete(ctx context.Context, actor types.Actor, req DeleteRequest) (model.Record, error) {
	return e.transition(ctx, TransitionDelete, req.RecordID, actor, func(rec *model.Record) error {
		return ApplyDelete(rec, actor, req)
	})
}

func (e *Engine) transition(ctx context.Context, name, id string, actor types.Actor, apply func(*model.Record) error) (rec model.Record, err error) {
	start := time.Now()
	defer func() { e.observe(ctx, name, id, actor, start, err) }()

	loaded, err := e.store.Load(ctx, id)
	if err != nil {
		return model.Record{}, err
	}
	next := loaded.Clone()
	if err := apply(&next); err != nil {
		return model.Record{}, err
	}
	return e.store.Save(ctx, next)
}

func (e *Engine) observe(ctx context.Context, name, id string, actor types.Actor, start time.Time, err error) {
	metrics.RecordTransitionLatency(name, float64(time.Since(start).Microseconds())/1000)
	fields := []logger.Field{
		logger.String("transition", name),
		logger.String("record_id", id),
		logger.String("actor_id", actor.ID),
		logger.String("actor_role", string(actor.Role)),
	}
	if err == nil {
		metrics.RecordTransition(name, "ok")
		e.logger.Info(ctx, "transition applied", fields...)
		return
	}
	kind := model.KindName(err)
	metrics.RecordTransition(name, kind)
	fields = append(fields, logger.String("kind", kind), logger.Error(err))
	if kind == "internal" {
		e.logger.Error(ctx, "transition failed", fields...)
		return
	}
	e.logger.Warn(ctx, "transition rejected", fields...)
}
