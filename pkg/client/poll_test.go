package client

import (
	"context"
	"net/http"
	"testing"
	"time"

	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/pkg/errors"
)

func TestParseStatus(t *testing.T) {
	RegisterTestingT(t)

	for raw, want := range map[string]Status{
		"pending":     StatusPending,
		"queued":      StatusPending,
		"Running":     StatusRunning,
		"in_progress": StatusRunning,
		"processing":  StatusRunning,
		"completed":   StatusCompleted,
		"failed":      StatusFailed,
		"error":       StatusFailed,
	} {
		status, ok := ParseStatus(raw)
		Expect(ok).To(BeTrue(), raw)
		Expect(status).To(Equal(want), raw)
	}
	_, ok := ParseStatus("")
	Expect(ok).To(BeFalse())
	_, ok = ParseStatus("exploded")
	Expect(ok).To(BeFalse())

	Expect(StatusCompleted.Terminal()).To(BeTrue())
	Expect(StatusTimedOut.Terminal()).To(BeTrue())
	Expect(StatusRunning.Terminal()).To(BeFalse())
}

func TestPollCompleted(t *testing.T) {
	server := ghttp.NewServer()
	defer server.Close()
	c, clock := newTestClient(t, server)

	server.AppendHandlers(
		ghttp.RespondWith(http.StatusOK, `{"generationId":"gen-1","status":"pending"}`),
		ghttp.RespondWith(http.StatusOK, `{"generationId":"gen-1","status":"running"}`),
		ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodGet, "/generations/gen-1"),
			ghttp.RespondWith(http.StatusOK, `{"generationId":"gen-1","status":"completed","exportUrl":"https://cdn.gamma.app/gen-1.pdf","gammaUrl":"https://gamma.app/docs/gen-1"}`),
		),
	)

	recorder := &eventRecorder{}
	job := NewJob("gen-1", clock.Now())
	generation, err := c.Poll(context.Background(), job, WithReporter(recorder))
	Expect(err).ToNot(HaveOccurred())
	Expect(generation.ExportURL).To(Equal("https://cdn.gamma.app/gen-1.pdf"))
	Expect(job.Status).To(Equal(StatusCompleted))
	Expect(job.Result).To(Equal(generation))
	Expect(job.LastObservedAt).To(Equal(job.SubmittedAt.Add(15 * time.Second)))
	Expect(recorder.statuses()).To(Equal([]Status{StatusPending, StatusRunning, StatusCompleted}))
	Expect(recorder.events[2].Poll).To(Equal(3))
	Expect(recorder.events[2].Elapsed).To(Equal(15 * time.Second))

	// a completed job answers from its result without asking the server again
	again, err := c.Poll(context.Background(), job)
	Expect(err).ToNot(HaveOccurred())
	Expect(again).To(Equal(generation))
	Expect(server.ReceivedRequests()).To(HaveLen(3))
}

func TestPollTimesOut(t *testing.T) {
	server := ghttp.NewServer()
	defer server.Close()
	c, clock := newTestClient(t, server, func(cfg *Config) {
		cfg.PollInterval = "5s"
		cfg.MaxWait = "10s"
	})

	server.RouteToHandler(http.MethodGet, "/generations/gen-1",
		ghttp.RespondWith(http.StatusOK, `{"generationId":"gen-1","status":"running"}`))

	job := NewJob("gen-1", clock.Now())
	_, err := c.Poll(context.Background(), job)
	var timeoutErr *TimeoutError
	Expect(errors.As(err, &timeoutErr)).To(BeTrue())
	Expect(timeoutErr.GenerationID).To(Equal("gen-1"))
	Expect(timeoutErr.Elapsed).To(Equal(10 * time.Second))
	Expect(timeoutErr.LastStatus).To(Equal(StatusRunning))
	Expect(job.Status).To(Equal(StatusTimedOut))
	Expect(server.ReceivedRequests()).To(HaveLen(1))

	_, err = c.Poll(context.Background(), job)
	Expect(err).To(MatchError(ContainSubstring("already timed_out")))
}

func TestPollJobFailed(t *testing.T) {
	server := ghttp.NewServer()
	defer server.Close()
	c, clock := newTestClient(t, server)

	server.AppendHandlers(
		ghttp.RespondWith(http.StatusOK, `{"generationId":"gen-1","status":"running"}`),
		ghttp.RespondWith(http.StatusOK, `{"generationId":"gen-1","status":"failed","error":"policy violation"}`),
	)

	job := NewJob("gen-1", clock.Now())
	_, err := c.Poll(context.Background(), job)
	var failedErr *JobFailedError
	Expect(errors.As(err, &failedErr)).To(BeTrue())
	Expect(failedErr.Detail).To(Equal("policy violation"))
	Expect(failedErr.Payload.Status).To(Equal("failed"))
	Expect(job.Status).To(Equal(StatusFailed))

	var timeoutErr *TimeoutError
	Expect(errors.As(err, &timeoutErr)).To(BeFalse())
}

func TestPollJobFailedWithErrorObject(t *testing.T) {
	server := ghttp.NewServer()
	defer server.Close()
	c, clock := newTestClient(t, server)

	server.AppendHandlers(
		ghttp.RespondWith(http.StatusOK, `{"generationId":"gen-1","status":"error","error":{"message":"not enough credits","statusCode":402}}`),
	)

	_, err := c.Poll(context.Background(), NewJob("gen-1", clock.Now()))
	var failedErr *JobFailedError
	Expect(errors.As(err, &failedErr)).To(BeTrue())
	Expect(failedErr.Detail).To(Equal("not enough credits"))
}

func TestPollRetriesTransientFailures(t *testing.T) {
	server := ghttp.NewServer()
	defer server.Close()
	c, clock := newTestClient(t, server)

	server.AppendHandlers(
		ghttp.RespondWith(http.StatusServiceUnavailable, "busy"),
		ghttp.RespondWith(http.StatusBadGateway, "upstream"),
		ghttp.RespondWith(http.StatusOK, `{"generationId":"gen-1","status":"completed","exportUrl":"https://cdn.gamma.app/gen-1.pdf"}`),
	)

	job := NewJob("gen-1", clock.Now())
	generation, err := c.Poll(context.Background(), job)
	Expect(err).ToNot(HaveOccurred())
	Expect(generation.Status).To(Equal("completed"))
	Expect(server.ReceivedRequests()).To(HaveLen(3))
}

func TestPollGivesUpAfterRetries(t *testing.T) {
	server := ghttp.NewServer()
	defer server.Close()
	c, clock := newTestClient(t, server)

	server.RouteToHandler(http.MethodGet, "/generations/gen-1", ghttp.RespondWith(http.StatusInternalServerError, "boom"))

	started := clock.Now()
	_, err := c.Poll(context.Background(), NewJob("gen-1", started))
	var pollErr *PollError
	Expect(errors.As(err, &pollErr)).To(BeTrue())
	Expect(pollErr.StatusCode).To(Equal(http.StatusInternalServerError))
	Expect(pollErr.Retryable).To(BeTrue())
	Expect(server.ReceivedRequests()).To(HaveLen(3))
	// one poll interval, then 10ms and 20ms between the attempts and no wait after the last one
	Expect(clock.Since(started)).To(Equal(5*time.Second + 30*time.Millisecond))
}

func TestPollNotFoundIsFatal(t *testing.T) {
	server := ghttp.NewServer()
	defer server.Close()
	c, clock := newTestClient(t, server)

	server.AppendHandlers(ghttp.RespondWith(http.StatusNotFound, `{"message":"generation not found"}`))

	_, err := c.Poll(context.Background(), NewJob("gen-1", clock.Now()))
	var pollErr *PollError
	Expect(errors.As(err, &pollErr)).To(BeTrue())
	Expect(pollErr.StatusCode).To(Equal(http.StatusNotFound))
	Expect(pollErr.Retryable).To(BeFalse())
	Expect(server.ReceivedRequests()).To(HaveLen(1))
}

func TestPollUnknownStatus(t *testing.T) {
	server := ghttp.NewServer()
	defer server.Close()
	c, clock := newTestClient(t, server)

	server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `{"generationId":"gen-1","status":"exploded"}`))

	_, err := c.Poll(context.Background(), NewJob("gen-1", clock.Now()))
	var pollErr *PollError
	Expect(errors.As(err, &pollErr)).To(BeTrue())
	Expect(pollErr.Error()).To(ContainSubstring(`unknown generation status "exploded"`))
}

func TestPollMalformedBodyIsFatal(t *testing.T) {
	server := ghttp.NewServer()
	defer server.Close()
	c, clock := newTestClient(t, server)

	server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `<html>`))

	_, err := c.Poll(context.Background(), NewJob("gen-1", clock.Now()))
	var pollErr *PollError
	Expect(errors.As(err, &pollErr)).To(BeTrue())
	Expect(pollErr.Retryable).To(BeFalse())
	Expect(server.ReceivedRequests()).To(HaveLen(1))
}

func TestPollIgnoresStatusRegression(t *testing.T) {
	server := ghttp.NewServer()
	defer server.Close()
	c, clock := newTestClient(t, server)

	server.AppendHandlers(
		ghttp.RespondWith(http.StatusOK, `{"generationId":"gen-1","status":"running"}`),
		ghttp.RespondWith(http.StatusOK, `{"generationId":"gen-1","status":"pending"}`),
		ghttp.RespondWith(http.StatusOK, `{"generationId":"gen-1","status":"completed","exportUrl":"https://cdn.gamma.app/gen-1.pdf"}`),
	)

	recorder := &eventRecorder{}
	_, err := c.Poll(context.Background(), NewJob("gen-1", clock.Now()), WithReporter(recorder))
	Expect(err).ToNot(HaveOccurred())
	Expect(recorder.statuses()).To(Equal([]Status{StatusRunning, StatusRunning, StatusCompleted}))
}

func TestPollCancelled(t *testing.T) {
	server := ghttp.NewServer()
	defer server.Close()
	c, clock := newTestClient(t, server)
	clock.block = true

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	job := NewJob("gen-1", clock.Now())
	_, err := c.Poll(ctx, job)
	var cancelledErr *CancelledError
	Expect(errors.As(err, &cancelledErr)).To(BeTrue())
	Expect(errors.Is(err, context.Canceled)).To(BeTrue())
	Expect(cancelledErr.LastStatus).To(Equal(StatusPending))
	Expect(job.Status).To(Equal(StatusCancelled))

	var timeoutErr *TimeoutError
	Expect(errors.As(err, &timeoutErr)).To(BeFalse())
	Expect(server.ReceivedRequests()).To(BeEmpty())
}

func TestPollCancelledDuringRequest(t *testing.T) {
	server := ghttp.NewServer()
	defer server.Close()
	c, clock := newTestClient(t, server)

	server.RouteToHandler(http.MethodGet, "/generations/gen-1", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	job := NewJob("gen-1", clock.Now())
	_, err := c.Poll(ctx, job)
	var cancelledErr *CancelledError
	Expect(errors.As(err, &cancelledErr)).To(BeTrue())
	Expect(errors.Is(err, context.Canceled)).To(BeTrue())
	Expect(cancelledErr.LastStatus).To(Equal(StatusPending))
	Expect(job.Status).To(Equal(StatusCancelled))

	var pollErr *PollError
	Expect(errors.As(err, &pollErr)).To(BeFalse())
	Expect(server.ReceivedRequests()).To(HaveLen(1))
}

func TestPollWithRealClock(t *testing.T) {
	server := ghttp.NewServer()
	defer server.Close()
	c, _ := newTestClient(t, server, func(cfg *Config) {
		cfg.PollInterval = "20ms"
		cfg.MaxWait = "5s"
	})
	c.clock = realClock{}

	server.AppendHandlers(
		ghttp.RespondWith(http.StatusOK, `{"generationId":"gen-1","status":"running"}`),
		ghttp.RespondWith(http.StatusOK, `{"generationId":"gen-1","status":"completed","exportUrl":"https://cdn.gamma.app/gen-1.pdf"}`),
	)

	started := time.Now()
	_, err := c.Poll(context.Background(), NewJob("gen-1", started))
	Expect(err).ToNot(HaveOccurred())
	Expect(time.Since(started)).To(BeNumerically(">=", 40*time.Millisecond))
}
