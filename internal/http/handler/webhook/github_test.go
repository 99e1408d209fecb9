package webhook_test

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"fossmate.app/fossmate/internal/http/dto"
	"fossmate.app/fossmate/internal/http/handler/webhook"
	"fossmate.app/fossmate/internal/ingest"
)

const githubSecret = "webhook-secret"

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

var _ = Describe("GitHubWebhookHandler", func() {
	var (
		events  *fakeEventStore
		ledger  *fakeLedger
		jobs    *fakeQueue
		router  *gin.Engine
		payload []byte
	)

	BeforeEach(func() {
		events = &fakeEventStore{}
		ledger = newFakeLedger()
		jobs = &fakeQueue{}
		service := ingest.NewService(events, ledger, jobs)
		handler := webhook.NewGitHubWebhookHandler(service, githubSecret)

		router = gin.New()
		router.POST("/webhooks/github", handler.HandleEvent)

		payload = []byte(`{
			"action": "opened",
			"pull_request": {"number": 7, "title": "Fix null pointer on login"},
			"repository": {"full_name": "acme/widgets", "name": "widgets", "owner": {"login": "acme"}},
			"sender": {"login": "devon"}
		}`)
	})

	deliver := func(body []byte, mutate func(*http.Request)) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
		req.Header.Set("X-GitHub-Event", "pull_request")
		req.Header.Set("X-GitHub-Delivery", "delivery-1")
		req.Header.Set("X-Hub-Signature-256", sign(githubSecret, body))
		if mutate != nil {
			mutate(req)
		}

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	It("accepts a signed delivery and enqueues processing", func() {
		rec := deliver(payload, nil)
		Expect(rec.Code).To(Equal(http.StatusAccepted))

		var resp dto.WebhookAcceptedResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Status).To(Equal("accepted"))
		Expect(resp.Duplicate).To(BeFalse())
		Expect(resp.DeliveryLogID).NotTo(BeZero())

		Expect(events.created).To(HaveLen(1))
		Expect(jobs.enqueued).To(HaveLen(1))
	})

	It("reports duplicates without re-enqueueing", func() {
		Expect(deliver(payload, nil).Code).To(Equal(http.StatusAccepted))

		rec := deliver(payload, nil)
		Expect(rec.Code).To(Equal(http.StatusAccepted))

		var resp dto.WebhookAcceptedResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Duplicate).To(BeTrue())
		Expect(jobs.enqueued).To(HaveLen(1))
	})

	It("rejects an invalid signature", func() {
		rec := deliver(payload, func(req *http.Request) {
			req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
		})
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		Expect(jobs.enqueued).To(BeEmpty())
	})

	It("rejects a missing signature", func() {
		rec := deliver(payload, func(req *http.Request) {
			req.Header.Del("X-Hub-Signature-256")
		})
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	It("rejects missing event headers", func() {
		rec := deliver(payload, func(req *http.Request) {
			req.Header.Del("X-GitHub-Event")
		})
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("rejects malformed JSON", func() {
		body := []byte("{not json")
		rec := deliver(body, nil)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})
})
