package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"fossmate.app/fossmate/common/logger"
	"fossmate.app/fossmate/internal/http/dto"
	"fossmate.app/fossmate/internal/http/handler"
	"fossmate.app/fossmate/internal/model"
)

type fakeMetricStore struct {
	lastFilter model.ReportFilter
	results    []model.DeveloperReport
}

func (f *fakeMetricStore) Create(ctx context.Context, metric *model.DeveloperMetric) error {
	return nil
}

func (f *fakeMetricStore) Report(ctx context.Context, filter model.ReportFilter) ([]model.DeveloperReport, error) {
	f.lastFilter = filter
	return f.results, nil
}

var _ = Describe("ReportsHandler", func() {
	var (
		metrics *fakeMetricStore
		router  *gin.Engine
	)

	BeforeEach(func() {
		metrics = &fakeMetricStore{}
		router = gin.New()
		router.GET("/reports/developer-evaluation", handler.NewReportsHandler(metrics).DeveloperEvaluation)
	})

	It("passes installation and login filters through to the store", func() {
		metrics.results = []model.DeveloperReport{{
			DeveloperLogin:     "devon",
			ReviewCount:        3,
			AvgCorrectness:     logger.Ptr(8.5),
			AvgReadability:     logger.Ptr(8.0),
			AvgMaintainability: logger.Ptr(7.8),
			AvgOverall:         logger.Ptr(8.1),
		}}

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet,
			"/reports/developer-evaluation?days=7&installation_id=42&developer_login=devon", nil)
		router.ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(metrics.lastFilter.InstallationID).To(HaveValue(Equal(int64(42))))
		Expect(metrics.lastFilter.DeveloperLogin).To(Equal("devon"))
		Expect(metrics.lastFilter.Since).To(BeTemporally("~", time.Now().UTC().AddDate(0, 0, -7), time.Minute))

		var resp dto.DeveloperReportResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Days).To(Equal(7))
		Expect(resp.Results).To(HaveLen(1))
		Expect(resp.Results[0].DeveloperLogin).To(Equal("devon"))
		Expect(*resp.Results[0].AvgOverall).To(Equal(8.1))
		Expect(*resp.Results[0].AvgCorrectness).To(Equal(8.5))
	})

	It("defaults to a 30 day window with no filters", func() {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/reports/developer-evaluation", nil)
		router.ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(metrics.lastFilter.InstallationID).To(BeNil())
		Expect(metrics.lastFilter.DeveloperLogin).To(BeEmpty())
		Expect(metrics.lastFilter.Since).To(BeTemporally("~", time.Now().UTC().AddDate(0, 0, -30), time.Minute))
	})

	It("rejects out-of-range day windows", func() {
		for _, query := range []string{"days=0", "days=366", "days=nope"} {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/reports/developer-evaluation?"+query, nil)
			router.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusBadRequest), query)
		}
	})
})
