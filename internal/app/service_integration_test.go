package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/okian/surgilog/internal/adapters/http/api"
	"github.com/okian/surgilog/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func newHTTPServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc := startedService()
	mux := http.NewServeMux()
	api.NewServer(svc, svc).Register(context.Background(), mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		svc.Stop()
	})
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path, actorID, role, body string, extra ...string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set(api.HeaderActorID, actorID)
	req.Header.Set(api.HeaderActorRole, role)
	for i := 0; i+1 < len(extra); i += 2 {
		req.Header.Set(extra[i], extra[i+1])
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

const createBody = `{"surgeryId":"phaco","teacherId":"tea-1","patientId":"P-9","date":"2026-03-20T08:00:00Z","residentsYear":3}`

const selfAssessmentBody = `{"steps":[{"name":"incision","residentDone":true},{"name":"capsulorhexis","residentDone":true},{"name":"iol","residentDone":true}],"residentJudgment":8,"residentComment":"smooth","revision":%d}`

const reviewBody = `{"steps":[{"name":"incision","teacherDone":true,"score":"a"},{"name":"capsulorhexis","teacherDone":true,"score":"a"},{"name":"iol","teacherDone":true,"score":"b"}],"osats":[{"item":"tissue","obtained":%d}],"teacherJudgment":9,"summaryScale":"b","feedback":"solid"}`

func TestServiceHTTPIntegration(t *testing.T) {
	Convey("Given the API served over HTTP", t, func() {
		srv := newHTTPServer(t)

		resp, rec := call(t, srv, http.MethodPost, "/records", "res-1", "resident", createBody)
		So(resp.StatusCode, ShouldEqual, http.StatusCreated)
		id := rec["id"].(string)

		Convey("When the resident and teacher complete the record", func() {
			resp, rec := call(t, srv, http.MethodPost, "/records/"+id+"/self-assessment", "res-1", "resident",
				fmt.Sprintf(selfAssessmentBody, 1))
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(rec["status"], ShouldEqual, string(model.StatusCorrected))

			resp, rec = call(t, srv, http.MethodPost, "/records/"+id+"/review", "tea-1", "teacher",
				fmt.Sprintf(reviewBody, 5), "If-Match", resp.Header.Get("ETag"))

			Convey("Then the record is reviewed", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(rec["status"], ShouldEqual, string(model.StatusReviewed))
				So(rec["summaryScale"], ShouldEqual, "B")
				So(rec["completion"], ShouldEqual, float64(83))
				So(resp.Header.Get("ETag"), ShouldEqual, `"3"`)
			})

			Convey("Then the dashboard shows it", func() {
				resp, dash := call(t, srv, http.MethodGet, "/analytics/dashboard?surgery=Phacoemulsification", "res-1", "resident", "")
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(dash["trend"], ShouldHaveLength, 1)
				So(dash["distribution"], ShouldHaveLength, 1)
			})
		})

		Convey("When the review carries an out-of-range OSAT", func() {
			call(t, srv, http.MethodPost, "/records/"+id+"/self-assessment", "res-1", "resident",
				fmt.Sprintf(selfAssessmentBody, 0))
			resp, body := call(t, srv, http.MethodPost, "/records/"+id+"/review", "tea-1", "teacher",
				fmt.Sprintf(reviewBody, 6))

			Convey("Then it is rejected as a validation failure", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
				So(body["code"], ShouldEqual, "validation_failed")
			})
		})

		Convey("When a stale revision is sent", func() {
			call(t, srv, http.MethodPost, "/records/"+id+"/self-assessment", "res-1", "resident",
				fmt.Sprintf(selfAssessmentBody, 1))
			resp, body := call(t, srv, http.MethodPost, "/records/"+id+"/cancel", "res-1", "resident", "", "If-Match", `"1"`)

			Convey("Then the write is refused with 412", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusPreconditionFailed)
				So(body["code"], ShouldEqual, "conflict")
			})
		})

		Convey("When many cancels race on the same revision", func() {
			var (
				wg    sync.WaitGroup
				mu    sync.Mutex
				codes = map[int]int{}
			)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					resp, _ := call(t, srv, http.MethodPost, "/records/"+id+"/cancel", "adm-1", "admin", `{"revision":1}`)
					mu.Lock()
					codes[resp.StatusCode]++
					mu.Unlock()
				}()
			}
			wg.Wait()

			Convey("Then exactly one succeeds", func() {
				So(codes[http.StatusOK], ShouldEqual, 1)
				So(codes[http.StatusPreconditionFailed]+codes[http.StatusConflict], ShouldEqual, 7)
			})
		})

		Convey("When the teacher tries to delete", func() {
			resp, _ := call(t, srv, http.MethodDelete, "/records/"+id, "tea-1", "teacher", "")

			Convey("Then it is forbidden", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusForbidden)
			})
		})

		Convey("When an admin deletes it", func() {
			resp, _ := call(t, srv, http.MethodDelete, "/records/"+id, "adm-1", "admin", "")
			So(resp.StatusCode, ShouldEqual, http.StatusNoContent)

			Convey("Then it is gone for everyone", func() {
				resp, _ := call(t, srv, http.MethodGet, "/records/"+id, "adm-1", "admin", "")
				So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}
