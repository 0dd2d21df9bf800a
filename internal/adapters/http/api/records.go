package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/surgilog/internal/domain/lifecycle"
	"github.com/okian/surgilog/internal/domain/model"
	"github.com/okian/surgilog/internal/domain/types"
)

// HeaderIdempotencyKey makes POST /records safe to retry.
const HeaderIdempotencyKey = "Idempotency-Key"

// RecordsHandler serves record creation, reads and transitions.
type RecordsHandler struct {
	svc RecordService
}

// NewRecordsHandler creates a new records handler.
func NewRecordsHandler(svc RecordService) *RecordsHandler {
	return &RecordsHandler{svc: svc}
}

// HandleCreate handles POST /records.
func (h *RecordsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	withActor(func(w http.ResponseWriter, r *http.Request, actor types.Actor) {
		var req lifecycle.CreateRequest
		if err := decodeBody(w, r, "api.create_record", &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err)
			return
		}
		key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
		rec, replayed, err := h.svc.CreateRecord(r.Context(), actor, req, key)
		if err != nil {
			writeKindError(w, err)
			return
		}
		status := http.StatusCreated
		if replayed {
			status = http.StatusOK
		}
		w.Header().Set("Location", "/records/"+rec.ID)
		writeRecord(w, status, rec)
	})(w, r)
}

// HandleGet handles GET /records/{id}.
func (h *RecordsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	withActor(func(w http.ResponseWriter, r *http.Request, actor types.Actor) {
		rec, err := h.svc.GetRecord(r.Context(), actor, r.PathValue("id"))
		if err != nil {
			writeKindError(w, err)
			return
		}
		writeRecord(w, http.StatusOK, rec)
	})(w, r)
}

// HandleSelfAssessment handles POST /records/{id}/self-assessment.
func (h *RecordsHandler) HandleSelfAssessment(w http.ResponseWriter, r *http.Request) {
	const op = "api.self_assessment"
	withActor(func(w http.ResponseWriter, r *http.Request, actor types.Actor) {
		var req lifecycle.SelfAssessmentRequest
		if err := decodeBody(w, r, op, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err)
			return
		}
		req.RecordID = r.PathValue("id")
		rev, err := expectedRevision(r, op, req.ExpectedRevision)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err)
			return
		}
		req.ExpectedRevision = rev
		rec, err := h.svc.SubmitSelfAssessment(r.Context(), actor, req)
		respond(w, rec, err)
	})(w, r)
}

// HandleReview handles POST /records/{id}/review.
func (h *RecordsHandler) HandleReview(w http.ResponseWriter, r *http.Request) {
	const op = "api.review"
	withActor(func(w http.ResponseWriter, r *http.Request, actor types.Actor) {
		var req lifecycle.ReviewRequest
		if err := decodeBody(w, r, op, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err)
			return
		}
		req.RecordID = r.PathValue("id")
		rev, err := expectedRevision(r, op, req.ExpectedRevision)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err)
			return
		}
		req.ExpectedRevision = rev
		rec, err := h.svc.SubmitReview(r.Context(), actor, req)
		respond(w, rec, err)
	})(w, r)
}

// HandleCancel handles POST /records/{id}/cancel.
func (h *RecordsHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	const op = "api.cancel"
	withActor(func(w http.ResponseWriter, r *http.Request, actor types.Actor) {
		var req lifecycle.CancelRequest
		if err := decodeBody(w, r, op, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err)
			return
		}
		req.RecordID = r.PathValue("id")
		rev, err := expectedRevision(r, op, req.ExpectedRevision)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err)
			return
		}
		req.ExpectedRevision = rev
		rec, err := h.svc.CancelRecord(r.Context(), actor, req)
		respond(w, rec, err)
	})(w, r)
}

// HandleDelete handles DELETE /records/{id}. The revision may be given in
// If-Match.
func (h *RecordsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete"
	withActor(func(w http.ResponseWriter, r *http.Request, actor types.Actor) {
		rev, err := expectedRevision(r, op, 0)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err)
			return
		}
		_, err = h.svc.DeleteRecord(r.Context(), actor, lifecycle.DeleteRequest{
			RecordID:         r.PathValue("id"),
			ExpectedRevision: rev,
		})
		if err != nil {
			writeKindError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})(w, r)
}

func respond(w http.ResponseWriter, rec model.Record, err error) {
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeRecord(w, http.StatusOK, rec)
}

func writeRecord(w http.ResponseWriter, status int, rec model.Record) {
	w.Header().Set("ETag", etag(rec.Revision))
	writeJSON(w, status, rec)
}

func etag(revision int64) string {
	return `"` + strconv.FormatInt(revision, 10) + `"`
}

// expectedRevision prefers the If-Match header over the body's revision.
func expectedRevision(r *http.Request, op string, fromBody int64) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" {
		return fromBody, nil
	}
	raw = strings.TrimPrefix(raw, "W/")
	rev, err := strconv.ParseInt(strings.Trim(raw, `"`), 10, 64)
	if err != nil || rev < 1 {
		return 0, model.WrapKind(op, ErrBadRequest, fmt.Errorf("invalid If-Match %q", r.Header.Get("If-Match")))
	}
	return rev, nil
}
