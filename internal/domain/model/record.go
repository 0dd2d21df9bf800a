// Package model contains the competency record and the value types embedded in it.
package model

import (
	"slices"
	"strings"
	"time"
)

// Status is the lifecycle state of a Record.
type Status string

// Record statuses. Reviewed and Canceled are terminal.
const (
	StatusPending   Status = "pending"
	StatusCorrected Status = "corrected"
	StatusReviewed  Status = "reviewed"
	StatusCanceled  Status = "canceled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCorrected, StatusReviewed, StatusCanceled:
		return true
	}
	return false
}

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusReviewed || s == StatusCanceled
}

// ParseStatus converts a raw value into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", Invalid("model.parse_status", "unknown status %q", raw)
	}
	return s, nil
}

// StepScore is the supervisor's letter for a single step.
type StepScore string

// Step scores. Only B changes the weight of a completed step.
const (
	ScoreA  StepScore = "a"
	ScoreB  StepScore = "b"
	ScoreC  StepScore = "c"
	ScoreNA StepScore = "n/a"
)

// Valid reports whether s is a known step score.
func (s StepScore) Valid() bool {
	switch s {
	case ScoreA, ScoreB, ScoreC, ScoreNA:
		return true
	}
	return false
}

// ParseStepScore converts a raw value into a StepScore.
func ParseStepScore(raw string) (StepScore, error) {
	s := StepScore(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", Invalid("model.parse_step_score", "unknown step score %q", raw)
	}
	return s, nil
}

// SummaryScale is the overall competency letter set by the reviewer.
type SummaryScale string

// Summary scale letters.
const (
	ScaleA SummaryScale = "A"
	ScaleB SummaryScale = "B"
	ScaleC SummaryScale = "C"
	ScaleD SummaryScale = "D"
	ScaleE SummaryScale = "E"
)

// Valid reports whether s is one of A..E.
func (s SummaryScale) Valid() bool {
	switch s {
	case ScaleA, ScaleB, ScaleC, ScaleD, ScaleE:
		return true
	}
	return false
}

// ParseSummaryScale converts a raw value into a SummaryScale.
func ParseSummaryScale(raw string) (SummaryScale, error) {
	s := SummaryScale(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", Invalid("model.parse_summary_scale", "unknown summary scale %q", raw)
	}
	return s, nil
}

// Step is one checklist action of the surgery. Name never changes after creation.
type Step struct {
	Name         string    `json:"name"`
	ResidentDone bool      `json:"residentDone"`
	TeacherDone  bool      `json:"teacherDone"`
	Score        StepScore `json:"score"`
}

// OsatScalePoint is one anchor of an OSAT rubric.
type OsatScalePoint struct {
	Punctuation int    `json:"punctuation"`
	Description string `json:"description,omitempty"`
}

// OsatEvaluation is a rubric item with its scale and the obtained value.
type OsatEvaluation struct {
	Item     string           `json:"item"`
	Scale    []OsatScalePoint `json:"scale"`
	Obtained int              `json:"obtained"`
}

// OsatTemplate is the rubric definition copied into new records.
type OsatTemplate struct {
	Item  string           `json:"item" koanf:"item"`
	Scale []OsatScalePoint `json:"scale" koanf:"scale"`
}

// SurgeryTemplate is what the catalog provides for record creation.
type SurgeryTemplate struct {
	ID     string         `json:"id" koanf:"id"`
	Name   string         `json:"name" koanf:"name"`
	AreaID string         `json:"areaId" koanf:"area_id"`
	Steps  []string       `json:"steps" koanf:"steps"`
	Osats  []OsatTemplate `json:"osats" koanf:"osats"`
}

// Record is one trainee's performance on one surgery, evaluated by one supervisor.
type Record struct {
	ID          string `json:"id"`
	ResidentID  string `json:"residentId"`
	TeacherID   string `json:"teacherId"`
	SurgeryID   string `json:"surgeryId"`
	SurgeryName string `json:"surgeryName"`
	AreaID      string `json:"areaId"`

	PatientID     string    `json:"patientId"`
	Date          time.Time `json:"date"`
	Status        Status    `json:"status"`
	ResidentsYear int       `json:"residentsYear"`

	Steps []Step           `json:"steps"`
	Osats []OsatEvaluation `json:"osats"`

	ResidentJudgment int          `json:"residentJudgment"`
	TeacherJudgment  int          `json:"teacherJudgment"`
	SummaryScale     SummaryScale `json:"summaryScale"`
	ResidentComment  string       `json:"residentComment"`
	Feedback         string       `json:"feedback"`

	// Completion is the percent of steps completed, recomputed on every transition.
	Completion int `json:"completion"`

	Deleted    bool       `json:"deleted"`
	Revision   int64      `json:"revision"`
	ReviewedAt *time.Time `json:"reviewedAt,omitempty"`
	CanceledAt *time.Time `json:"canceledAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Clone returns a deep copy so callers never share step or OSAT slices.
func (r Record) Clone() Record {
	out := r
	if r.Steps != nil {
		out.Steps = make([]Step, len(r.Steps))
		copy(out.Steps, r.Steps)
	}
	if r.Osats != nil {
		out.Osats = make([]OsatEvaluation, len(r.Osats))
		for i, o := range r.Osats {
			out.Osats[i] = o
			if o.Scale != nil {
				out.Osats[i].Scale = make([]OsatScalePoint, len(o.Scale))
				copy(out.Osats[i].Scale, o.Scale)
			}
		}
	}
	if r.ReviewedAt != nil {
		t := *r.ReviewedAt
		out.ReviewedAt = &t
	}
	if r.CanceledAt != nil {
		t := *r.CanceledAt
		out.CanceledAt = &t
	}
	return out
}

// StepIndex returns the position of the step called name, or -1.
func (r *Record) StepIndex(name string) int {
	for i := range r.Steps {
		if r.Steps[i].Name == name {
			return i
		}
	}
	return -1
}

// OsatIndex returns the position of the OSAT item called item, or -1.
func (r *Record) OsatIndex(item string) int {
	for i := range r.Osats {
		if r.Osats[i].Item == item {
			return i
		}
	}
	return -1
}

// NewRecordParams are the inputs of NewRecord.
type NewRecordParams struct {
	ID            string
	ResidentID    string
	TeacherID     string
	PatientID     string
	Date          time.Time
	ResidentsYear int
	Template      SurgeryTemplate
	// Now bounds Date; the zero value skips the future-date check.
	Now time.Time
}

// NewRecord builds a pending Record from a surgery template, rejecting
// structurally invalid input with ErrValidation.
func NewRecord(p NewRecordParams) (*Record, error) {
	const op = "model.new_record"

	patient := strings.TrimSpace(p.PatientID)
	switch {
	case strings.TrimSpace(p.ID) == "":
		return nil, Invalid(op, "missing id")
	case strings.TrimSpace(p.ResidentID) == "":
		return nil, Invalid(op, "missing resident")
	case strings.TrimSpace(p.TeacherID) == "":
		return nil, Invalid(op, "missing teacher")
	case strings.TrimSpace(p.Template.ID) == "":
		return nil, Invalid(op, "missing surgery")
	case patient == "":
		return nil, Invalid(op, "missing patient id")
	case p.Date.IsZero():
		return nil, Invalid(op, "missing date")
	case p.ResidentsYear < 1:
		return nil, Invalid(op, "residents year must be positive, got %d", p.ResidentsYear)
	}
	if !p.Now.IsZero() && p.Date.After(p.Now) {
		return nil, Invalid(op, "date %s is in the future", p.Date.Format(time.RFC3339))
	}

	steps, err := stepsFromTemplate(op, p.Template.Steps)
	if err != nil {
		return nil, err
	}
	osats, err := osatsFromTemplate(op, p.Template.Osats)
	if err != nil {
		return nil, err
	}

	return &Record{
		ID:            p.ID,
		ResidentID:    p.ResidentID,
		TeacherID:     p.TeacherID,
		SurgeryID:     p.Template.ID,
		SurgeryName:   strings.TrimSpace(p.Template.Name),
		AreaID:        p.Template.AreaID,
		PatientID:     patient,
		Date:          p.Date,
		Status:        StatusPending,
		ResidentsYear: p.ResidentsYear,
		Steps:         steps,
		Osats:         osats,
		SummaryScale:  ScaleA,
	}, nil
}

func stepsFromTemplate(op string, names []string) ([]Step, error) {
	steps := make([]Step, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for i, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			return nil, Invalid(op, "step %d has no name", i)
		}
		if _, dup := seen[name]; dup {
			return nil, Invalid(op, "duplicate step %q", name)
		}
		seen[name] = struct{}{}
		steps = append(steps, Step{Name: name, Score: ScoreA})
	}
	return steps, nil
}

func osatsFromTemplate(op string, templates []OsatTemplate) ([]OsatEvaluation, error) {
	osats := make([]OsatEvaluation, 0, len(templates))
	seen := make(map[string]struct{}, len(templates))
	for i, t := range templates {
		item := strings.TrimSpace(t.Item)
		if item == "" {
			return nil, Invalid(op, "osat %d has no item", i)
		}
		if _, dup := seen[item]; dup {
			return nil, Invalid(op, "duplicate osat item %q", item)
		}
		if len(t.Scale) == 0 {
			return nil, Invalid(op, "osat %q has an empty scale", item)
		}
		seen[item] = struct{}{}
		scale := make([]OsatScalePoint, len(t.Scale))
		copy(scale, t.Scale)
		osats = append(osats, OsatEvaluation{Item: item, Scale: scale})
	}
	return osats, nil
}

// Filter selects records from a store. Zero-valued fields do not filter.
type Filter struct {
	Statuses       []Status
	IncludeDeleted bool
	SurgeryID      string
	SurgeryName    string
	ResidentID     string
	TeacherID      string
}

// Match reports whether rec passes the filter.
func (f Filter) Match(rec *Record) bool {
	switch {
	case rec.Deleted && !f.IncludeDeleted:
		return false
	case len(f.Statuses) > 0 && !slices.Contains(f.Statuses, rec.Status):
		return false
	case f.SurgeryID != "" && rec.SurgeryID != f.SurgeryID:
		return false
	case f.SurgeryName != "" && rec.SurgeryName != f.SurgeryName:
		return false
	case f.ResidentID != "" && rec.ResidentID != f.ResidentID:
		return false
	case f.TeacherID != "" && rec.TeacherID != f.TeacherID:
		return false
	}
	return true
}
