package lifecycle

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/okian/surgilog/internal/domain/model"
)

// CreateRequest opens a pending record for the calling resident.
type CreateRequest struct {
	SurgeryID     string    `json:"surgeryId" validate:"required"`
	TeacherID     string    `json:"teacherId" validate:"required"`
	PatientID     string    `json:"patientId" validate:"required"`
	Date          time.Time `json:"date" validate:"required"`
	ResidentsYear int       `json:"residentsYear" validate:"min=1"`
}

func (r *CreateRequest) normalize() {
	r.SurgeryID = strings.TrimSpace(r.SurgeryID)
	r.TeacherID = strings.TrimSpace(r.TeacherID)
	r.PatientID = strings.TrimSpace(r.PatientID)
}

// StepSelfAssessment is the resident's flag for one step, addressed by name.
type StepSelfAssessment struct {
	Name         string `json:"name" validate:"required"`
	ResidentDone bool   `json:"residentDone"`
}

// SelfAssessmentRequest moves a record from pending to corrected.
type SelfAssessmentRequest struct {
	RecordID         string               `json:"-" validate:"required"`
	ExpectedRevision int64                `json:"revision" validate:"gte=0"`
	Steps            []StepSelfAssessment `json:"steps" validate:"dive"`
	ResidentJudgment int                  `json:"residentJudgment" validate:"min=1,max=10"`
	ResidentComment  string               `json:"residentComment" validate:"required"`
}

func (r *SelfAssessmentRequest) normalize() {
	r.RecordID = strings.TrimSpace(r.RecordID)
	r.ResidentComment = strings.TrimSpace(r.ResidentComment)
	for i := range r.Steps {
		r.Steps[i].Name = strings.TrimSpace(r.Steps[i].Name)
	}
}

// StepReview is the teacher's verdict on one step. Score is set only when
// TeacherDone is true.
type StepReview struct {
	Name        string          `json:"name" validate:"required"`
	TeacherDone bool            `json:"teacherDone"`
	Score       model.StepScore `json:"score,omitempty" validate:"omitempty,oneof=a b c n/a"`
}

// OsatScore is the obtained value for one rubric item, addressed by item name.
type OsatScore struct {
	Item     string `json:"item" validate:"required"`
	Obtained int    `json:"obtained"`
}

// ReviewRequest moves a record from corrected to reviewed.
type ReviewRequest struct {
	RecordID         string             `json:"-" validate:"required"`
	ExpectedRevision int64              `json:"revision" validate:"gte=0"`
	Steps            []StepReview       `json:"steps" validate:"dive"`
	Osats            []OsatScore        `json:"osats" validate:"dive"`
	TeacherJudgment  int                `json:"teacherJudgment" validate:"min=1,max=10"`
	SummaryScale     model.SummaryScale `json:"summaryScale" validate:"required,oneof=A B C D E"`
	Feedback         string             `json:"feedback" validate:"required"`
}

func (r *ReviewRequest) normalize() {
	r.RecordID = strings.TrimSpace(r.RecordID)
	r.Feedback = strings.TrimSpace(r.Feedback)
	r.SummaryScale = model.SummaryScale(strings.ToUpper(strings.TrimSpace(string(r.SummaryScale))))
	for i := range r.Steps {
		r.Steps[i].Name = strings.TrimSpace(r.Steps[i].Name)
		r.Steps[i].Score = model.StepScore(strings.ToLower(strings.TrimSpace(string(r.Steps[i].Score))))
	}
	for i := range r.Osats {
		r.Osats[i].Item = strings.TrimSpace(r.Osats[i].Item)
	}
}

// CancelRequest moves a pending or corrected record to canceled.
type CancelRequest struct {
	RecordID         string `json:"-" validate:"required"`
	ExpectedRevision int64  `json:"revision" validate:"gte=0"`
}

// DeleteRequest soft-deletes a record.
type DeleteRequest struct {
	RecordID         string `json:"-" validate:"required"`
	ExpectedRevision int64  `json:"revision" validate:"gte=0"`
}

// structValidator is configured once and only read afterwards.
var structValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// validateStruct runs the struct tags of req and folds any failures into a
// single ErrValidation listing every offending field.
func validateStruct(op string, req any) error {
	err := structValidator.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return model.WrapKind(op, model.ErrValidation, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return model.WrapKind(op, model.ErrValidation, errors.New(strings.Join(msgs, "; ")))
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), strings.SplitN(fe.Namespace(), ".", 2)[0]+".")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
