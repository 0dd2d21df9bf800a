// Package lifecycle enforces the fixed transitions of a competency record:
//
//	pending   --self-assessment--> corrected
//	corrected --review-----------> reviewed   (terminal)
//	pending|corrected --cancel---> canceled   (terminal)
//
// Soft delete is available to admins in any state. Reviewed records are never
// reopened.
//
// Every Apply function checks, in order, the revision token, the deleted flag,
// the current status, the actor and finally the payload. Nothing is mutated
// unless all checks pass.
package lifecycle

import (
	"fmt"

	"github.com/okian/surgilog/internal/domain/model"
	"github.com/okian/surgilog/internal/domain/scoring"
	"github.com/okian/surgilog/internal/domain/types"
)

// Transition names, used in logs and metrics.
const (
	TransitionCreate         = "create"
	TransitionSelfAssessment = "self_assessment"
	TransitionReview         = "review"
	TransitionCancel         = "cancel"
	TransitionDelete         = "delete"
)

func checkRevision(op string, rec *model.Record, expected int64) error {
	if expected != 0 && expected != rec.Revision {
		return model.WrapKind(op, model.ErrConflict,
			fmt.Errorf("record %s is at revision %d, request expected %d", rec.ID, rec.Revision, expected))
	}
	return nil
}

func checkLive(op string, rec *model.Record) error {
	if rec.Deleted {
		return model.WrapKind(op, model.ErrNotFound, fmt.Errorf("record %s", rec.ID))
	}
	return nil
}

func checkStatus(op string, rec *model.Record, allowed ...model.Status) error {
	for _, s := range allowed {
		if rec.Status == s {
			return nil
		}
	}
	return model.WrapKind(op, model.ErrInvalidState,
		fmt.Errorf("record %s is %s, want one of %v", rec.ID, rec.Status, allowed))
}

func forbidden(op string, rec *model.Record, actor types.Actor) error {
	return model.WrapKind(op, model.ErrForbidden,
		fmt.Errorf("%s %q may not act on record %s", actor.Role, actor.ID, rec.ID))
}

// ApplySelfAssessment records the resident's own assessment and moves the
// record to corrected.
func ApplySelfAssessment(rec *model.Record, actor types.Actor, req SelfAssessmentRequest) error {
	const op = "lifecycle.self_assessment"

	if err := checkRevision(op, rec, req.ExpectedRevision); err != nil {
		return err
	}
	if err := checkLive(op, rec); err != nil {
		return err
	}
	if err := checkStatus(op, rec, model.StatusPending); err != nil {
		return err
	}
	if !actor.IsResident(rec.ResidentID) {
		return forbidden(op, rec, actor)
	}

	req.RecordID = rec.ID
	req.normalize()
	if err := validateStruct(op, req); err != nil {
		return err
	}

	done := make([]bool, len(rec.Steps))
	seen := make([]bool, len(rec.Steps))
	for _, s := range req.Steps {
		i := rec.StepIndex(s.Name)
		if i < 0 {
			return model.Invalid(op, "unknown step %q", s.Name)
		}
		if seen[i] {
			return model.Invalid(op, "step %q submitted twice", s.Name)
		}
		seen[i], done[i] = true, s.ResidentDone
	}
	if err := requireAll(op, "step", rec.Steps, seen, func(s model.Step) string { return s.Name }); err != nil {
		return err
	}

	for i := range rec.Steps {
		rec.Steps[i].ResidentDone = done[i]
	}
	rec.ResidentJudgment = req.ResidentJudgment
	rec.ResidentComment = req.ResidentComment
	rec.Status = model.StatusCorrected
	rec.Completion = scoring.PercentCompleted(rec.Steps)
	return nil
}

// ApplyReview records the teacher's evaluation and moves the record to reviewed.
func ApplyReview(rec *model.Record, actor types.Actor, req ReviewRequest) error {
	const op = "lifecycle.review"

	if err := checkRevision(op, rec, req.ExpectedRevision); err != nil {
		return err
	}
	if err := checkLive(op, rec); err != nil {
		return err
	}
	if err := checkStatus(op, rec, model.StatusCorrected); err != nil {
		return err
	}
	if !actor.IsTeacher(rec.TeacherID) {
		return forbidden(op, rec, actor)
	}

	req.RecordID = rec.ID
	req.normalize()
	if err := validateStruct(op, req); err != nil {
		return err
	}

	stepIdx := make([]int, len(req.Steps))
	seen := make([]bool, len(rec.Steps))
	for n, s := range req.Steps {
		i := rec.StepIndex(s.Name)
		if i < 0 {
			return model.Invalid(op, "unknown step %q", s.Name)
		}
		if seen[i] {
			return model.Invalid(op, "step %q submitted twice", s.Name)
		}
		switch {
		case s.TeacherDone && s.Score == "":
			return model.Invalid(op, "step %q is done but has no score", s.Name)
		case !s.TeacherDone && s.Score != "":
			return model.Invalid(op, "step %q is not done and cannot be scored", s.Name)
		}
		seen[i], stepIdx[n] = true, i
	}
	if err := requireAll(op, "step", rec.Steps, seen, func(s model.Step) string { return s.Name }); err != nil {
		return err
	}

	osatIdx := make([]int, len(req.Osats))
	seenOsat := make([]bool, len(rec.Osats))
	for n, o := range req.Osats {
		i := rec.OsatIndex(o.Item)
		if i < 0 {
			return model.Invalid(op, "unknown osat item %q", o.Item)
		}
		if seenOsat[i] {
			return model.Invalid(op, "osat item %q submitted twice", o.Item)
		}
		if err := scoring.ValidateOsat(o.Obtained, rec.Osats[i].Scale); err != nil {
			return model.WrapKind(op, model.ErrValidation, fmt.Errorf("osat item %q: %w", o.Item, err))
		}
		seenOsat[i], osatIdx[n] = true, i
	}
	if err := requireAll(op, "osat item", rec.Osats, seenOsat, func(o model.OsatEvaluation) string { return o.Item }); err != nil {
		return err
	}

	for n, s := range req.Steps {
		step := &rec.Steps[stepIdx[n]]
		step.TeacherDone = s.TeacherDone
		if s.TeacherDone {
			step.Score = s.Score
		}
	}
	for n, o := range req.Osats {
		rec.Osats[osatIdx[n]].Obtained = o.Obtained
	}
	rec.TeacherJudgment = req.TeacherJudgment
	rec.SummaryScale = req.SummaryScale
	rec.Feedback = req.Feedback
	rec.Status = model.StatusReviewed
	rec.Completion = scoring.PercentCompleted(rec.Steps)
	return nil
}

// ApplyCancel cancels a pending or corrected record on behalf of an admin or
// the owning resident.
func ApplyCancel(rec *model.Record, actor types.Actor, req CancelRequest) error {
	const op = "lifecycle.cancel"

	if err := checkRevision(op, rec, req.ExpectedRevision); err != nil {
		return err
	}
	if err := checkLive(op, rec); err != nil {
		return err
	}
	if err := checkStatus(op, rec, model.StatusPending, model.StatusCorrected); err != nil {
		return err
	}
	if !actor.IsAdmin() && !actor.IsResident(rec.ResidentID) {
		return forbidden(op, rec, actor)
	}
	rec.Status = model.StatusCanceled
	return nil
}

// ApplyDelete marks the record as deleted. Only admins may delete.
func ApplyDelete(rec *model.Record, actor types.Actor, req DeleteRequest) error {
	const op = "lifecycle.delete"

	if err := checkRevision(op, rec, req.ExpectedRevision); err != nil {
		return err
	}
	if err := checkLive(op, rec); err != nil {
		return err
	}
	if !actor.IsAdmin() {
		return forbidden(op, rec, actor)
	}
	rec.Deleted = true
	return nil
}

// CanView reports whether actor may read rec.
func CanView(rec *model.Record, actor types.Actor) bool {
	return actor.IsAdmin() || actor.IsResident(rec.ResidentID) || actor.IsTeacher(rec.TeacherID)
}

func requireAll[T any](op, what string, items []T, seen []bool, name func(T) string) error {
	for i, ok := range seen {
		if !ok {
			return model.Invalid(op, "%s %q is missing from the submission", what, name(items[i]))
		}
	}
	return nil
}
