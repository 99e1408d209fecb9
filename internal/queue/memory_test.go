package queue_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"fossmate.app/fossmate/internal/queue"
)

var _ = Describe("MemoryQueue", func() {
	var (
		q   *queue.MemoryQueue
		ctx context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
	})

	AfterEach(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = q.Stop(stopCtx)
	})

	It("delivers jobs to the registered handler", func() {
		q = queue.NewMemoryQueue(1)

		var mu sync.Mutex
		var received []queue.Job
		done := make(chan struct{})

		q.RegisterHandler("echo", func(ctx context.Context, job queue.Job) error {
			mu.Lock()
			received = append(received, job)
			mu.Unlock()
			close(done)
			return nil
		})

		Expect(q.Start(ctx)).To(Succeed())

		jobID, err := q.Enqueue(ctx, "echo", map[string]any{"delivery_log_id": int64(77)})
		Expect(err).NotTo(HaveOccurred())
		Expect(jobID).NotTo(BeEmpty())

		Eventually(done).Should(BeClosed())

		mu.Lock()
		defer mu.Unlock()
		Expect(received).To(HaveLen(1))
		Expect(received[0].ID).To(Equal(jobID))
		id, ok := queue.PayloadInt64(received[0].Payload, "delivery_log_id")
		Expect(ok).To(BeTrue())
		Expect(id).To(Equal(int64(77)))
	})

	It("preserves FIFO order with a single worker", func() {
		q = queue.NewMemoryQueue(1)

		var mu sync.Mutex
		var order []int64
		done := make(chan struct{})

		q.RegisterHandler("ordered", func(ctx context.Context, job queue.Job) error {
			n, _ := queue.PayloadInt64(job.Payload, "n")
			mu.Lock()
			order = append(order, n)
			if len(order) == 5 {
				close(done)
			}
			mu.Unlock()
			return nil
		})

		for i := int64(1); i <= 5; i++ {
			_, err := q.Enqueue(ctx, "ordered", map[string]any{"n": i})
			Expect(err).NotTo(HaveOccurred())
		}

		Expect(q.Start(ctx)).To(Succeed())
		Eventually(done).Should(BeClosed())

		mu.Lock()
		defer mu.Unlock()
		Expect(order).To(Equal([]int64{1, 2, 3, 4, 5}))
	})

	It("drops jobs for unregistered handlers without stalling the worker", func() {
		q = queue.NewMemoryQueue(1)

		done := make(chan struct{})
		q.RegisterHandler("known", func(ctx context.Context, job queue.Job) error {
			close(done)
			return nil
		})

		Expect(q.Start(ctx)).To(Succeed())

		_, err := q.Enqueue(ctx, "unknown", map[string]any{})
		Expect(err).NotTo(HaveOccurred())
		_, err = q.Enqueue(ctx, "known", map[string]any{})
		Expect(err).NotTo(HaveOccurred())

		Eventually(done).Should(BeClosed())
	})

	It("survives a panicking handler", func() {
		q = queue.NewMemoryQueue(1)

		done := make(chan struct{})
		q.RegisterHandler("explode", func(ctx context.Context, job queue.Job) error {
			panic("boom")
		})
		q.RegisterHandler("after", func(ctx context.Context, job queue.Job) error {
			close(done)
			return nil
		})

		Expect(q.Start(ctx)).To(Succeed())

		_, err := q.Enqueue(ctx, "explode", map[string]any{})
		Expect(err).NotTo(HaveOccurred())
		_, err = q.Enqueue(ctx, "after", map[string]any{})
		Expect(err).NotTo(HaveOccurred())

		Eventually(done).Should(BeClosed())
	})

	It("reports backend, worker count and pending depth", func() {
		q = queue.NewMemoryQueue(3)

		_, err := q.Enqueue(ctx, "later", map[string]any{})
		Expect(err).NotTo(HaveOccurred())
		_, err = q.Enqueue(ctx, "later", map[string]any{})
		Expect(err).NotTo(HaveOccurred())

		stats, err := q.Stats(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.Backend).To(Equal("memory"))
		Expect(stats.Workers).To(Equal(3))
		Expect(stats.Pending).To(Equal(int64(2)))

		Expect(q.Start(ctx)).To(Succeed())
	})

	It("stops workers and abandons in-flight work on Stop", func() {
		q = queue.NewMemoryQueue(2)

		started := make(chan struct{})
		q.RegisterHandler("slow", func(ctx context.Context, job queue.Job) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		})

		Expect(q.Start(ctx)).To(Succeed())
		_, err := q.Enqueue(ctx, "slow", map[string]any{})
		Expect(err).NotTo(HaveOccurred())

		Eventually(started).Should(BeClosed())

		stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		Expect(q.Stop(stopCtx)).To(Succeed())
	})
})
