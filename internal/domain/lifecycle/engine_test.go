package lifecycle_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/surgilog/internal/adapters/repository"
	"github.com/okian/surgilog/internal/domain/lifecycle"
	"github.com/okian/surgilog/internal/domain/model"
	"github.com/okian/surgilog/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

type fixedTemplates map[string]model.SurgeryTemplate

func (f fixedTemplates) Template(_ context.Context, id string) (model.SurgeryTemplate, error) {
	tpl, ok := f[id]
	if !ok {
		return model.SurgeryTemplate{}, model.WrapKind("test.template", model.ErrNotFound, fmt.Errorf("surgery %s", id))
	}
	return tpl, nil
}

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newEngine() (*lifecycle.Engine, *repository.MemoryStore) {
	store := repository.NewMemoryStore(repository.WithMemoryClock(func() time.Time { return testNow }))
	templates := fixedTemplates{
		"srg-1": {
			ID:    "srg-1",
			Name:  "Phacoemulsification",
			Steps: []string{"s1", "s2"},
			Osats: []model.OsatTemplate{{Item: "o1", Scale: []model.OsatScalePoint{{Punctuation: 1}, {Punctuation: 5}}}},
		},
	}
	var (
		mu sync.Mutex
		n  int
	)
	engine := lifecycle.New(store, templates,
		lifecycle.WithClock(func() time.Time { return testNow }),
		lifecycle.WithIDGenerator(func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("rec-%d", n)
		}),
	)
	return engine, store
}

func createReq() lifecycle.CreateRequest {
	return lifecycle.CreateRequest{
		SurgeryID:     "srg-1",
		TeacherID:     teacher.ID,
		PatientID:     "P-001",
		Date:          testNow.Add(-time.Hour),
		ResidentsYear: 2,
	}
}

func TestEngineCreate(t *testing.T) {
	Convey("Given an engine", t, func() {
		ctx := context.Background()
		engine, _ := newEngine()

		Convey("When a resident creates a record", func() {
			rec, err := engine.Create(ctx, resident, createReq())

			Convey("Then it is pending at revision 1 with the template copied", func() {
				So(err, ShouldBeNil)
				So(rec.ID, ShouldEqual, "rec-1")
				So(rec.Status, ShouldEqual, model.StatusPending)
				So(rec.Revision, ShouldEqual, 1)
				So(rec.ResidentID, ShouldEqual, resident.ID)
				So(rec.SurgeryName, ShouldEqual, "Phacoemulsification")
				So(rec.Steps, ShouldHaveLength, 2)
				So(rec.Osats, ShouldHaveLength, 1)
				So(rec.CreatedAt.Equal(testNow), ShouldBeTrue)
			})
		})

		Convey("When a teacher creates a record", func() {
			_, err := engine.Create(ctx, teacher, createReq())

			Convey("Then it is forbidden", func() {
				So(errors.Is(err, model.ErrForbidden), ShouldBeTrue)
			})
		})

		Convey("When the surgery is unknown", func() {
			req := createReq()
			req.SurgeryID = "srg-404"
			_, err := engine.Create(ctx, resident, req)

			Convey("Then it is not found", func() {
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When the date is in the future", func() {
			req := createReq()
			req.Date = testNow.Add(24 * time.Hour)
			_, err := engine.Create(ctx, resident, req)

			Convey("Then validation fails", func() {
				So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
			})
		})

		Convey("When the patient id is missing", func() {
			req := createReq()
			req.PatientID = " "
			_, err := engine.Create(ctx, resident, req)

			Convey("Then validation fails", func() {
				So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "patientId")
			})
		})
	})
}

func TestEngineLifecycle(t *testing.T) {
	Convey("Given a created record", t, func() {
		ctx := context.Background()
		engine, store := newEngine()
		created, err := engine.Create(ctx, resident, createReq())
		So(err, ShouldBeNil)

		sa := lifecycle.SelfAssessmentRequest{
			RecordID:         created.ID,
			ExpectedRevision: created.Revision,
			Steps: []lifecycle.StepSelfAssessment{
				{Name: "s1", ResidentDone: true},
				{Name: "s2", ResidentDone: true},
			},
			ResidentJudgment: 6,
			ResidentComment:  "ok",
		}

		Convey("When it goes through self-assessment and review", func() {
			corrected, err := engine.SubmitSelfAssessment(ctx, resident, sa)
			So(err, ShouldBeNil)

			reviewed, err := engine.SubmitReview(ctx, teacher, lifecycle.ReviewRequest{
				RecordID:         created.ID,
				ExpectedRevision: corrected.Revision,
				Steps: []lifecycle.StepReview{
					{Name: "s1", TeacherDone: true, Score: model.ScoreA},
					{Name: "s2", TeacherDone: true, Score: model.ScoreA},
				},
				Osats:           []lifecycle.OsatScore{{Item: "o1", Obtained: 5}},
				TeacherJudgment: 9,
				SummaryScale:    model.ScaleA,
				Feedback:        "excellent",
			})

			Convey("Then each step bumps the revision", func() {
				So(err, ShouldBeNil)
				So(corrected.Status, ShouldEqual, model.StatusCorrected)
				So(corrected.Revision, ShouldEqual, 2)
				So(reviewed.Status, ShouldEqual, model.StatusReviewed)
				So(reviewed.Revision, ShouldEqual, 3)
				So(reviewed.Completion, ShouldEqual, 100)
				So(reviewed.ReviewedAt, ShouldNotBeNil)
			})

			Convey("Then the stored record matches", func() {
				stored, err := store.Load(ctx, created.ID)
				So(err, ShouldBeNil)
				So(stored.Status, ShouldEqual, model.StatusReviewed)
				So(stored.Feedback, ShouldEqual, "excellent")
			})
		})

		Convey("When two writers race on the same revision", func() {
			_, err1 := engine.SubmitSelfAssessment(ctx, resident, sa)
			_, err2 := engine.Cancel(ctx, resident, lifecycle.CancelRequest{
				RecordID:         created.ID,
				ExpectedRevision: created.Revision,
			})

			Convey("Then the second one conflicts and the first wins", func() {
				So(err1, ShouldBeNil)
				So(errors.Is(err2, model.ErrConflict), ShouldBeTrue)
				stored, _ := store.Load(ctx, created.ID)
				So(stored.Status, ShouldEqual, model.StatusCorrected)
			})
		})

		Convey("When the resident cancels it", func() {
			canceled, err := engine.Cancel(ctx, resident, lifecycle.CancelRequest{RecordID: created.ID})

			Convey("Then it is canceled with a timestamp", func() {
				So(err, ShouldBeNil)
				So(canceled.Status, ShouldEqual, model.StatusCanceled)
				So(canceled.CanceledAt, ShouldNotBeNil)
			})
		})

		Convey("When an admin deletes it", func() {
			_, err := engine.Delete(ctx, admin, lifecycle.DeleteRequest{RecordID: created.ID})
			So(err, ShouldBeNil)

			Convey("Then reads and transitions report not found", func() {
				_, err := engine.Get(ctx, resident, created.ID)
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)

				sa.ExpectedRevision = 0
				_, err = engine.SubmitSelfAssessment(ctx, resident, sa)
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})

			Convey("Then the record stays in the store", func() {
				stored, err := store.Load(ctx, created.ID)
				So(err, ShouldBeNil)
				So(stored.Deleted, ShouldBeTrue)
			})
		})

		Convey("When an outsider reads it", func() {
			_, err := engine.Get(ctx, types.Actor{ID: "res-9", Role: types.RoleResident}, created.ID)

			Convey("Then it is forbidden", func() {
				So(errors.Is(err, model.ErrForbidden), ShouldBeTrue)
			})
		})

		Convey("When an unknown id is transitioned", func() {
			_, err := engine.Cancel(ctx, admin, lifecycle.CancelRequest{RecordID: "nope"})

			Convey("Then it is not found", func() {
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}
