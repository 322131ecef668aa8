package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/pkg/errors"
)

func TestSubmit(t *testing.T) {
	server := ghttp.NewServer()
	defer server.Close()
	c, clock := newTestClient(t, server)

	var body map[string]any
	server.AppendHandlers(ghttp.CombineHandlers(
		ghttp.VerifyRequest(http.MethodPost, "/generations"),
		ghttp.VerifyHeaderKV("X-API-KEY", "test-key"),
		ghttp.VerifyContentType("application/json"),
		func(w http.ResponseWriter, r *http.Request) {
			data, err := io.ReadAll(r.Body)
			Expect(err).ToNot(HaveOccurred())
			Expect(json.Unmarshal(data, &body)).To(Succeed())
		},
		ghttp.RespondWith(http.StatusCreated, `{"generationId":"gen-1"}`),
	))

	req, err := c.BuildRequest(Input{InputText: "# Quarterly review", NumberOfSlides: 5})
	Expect(err).ToNot(HaveOccurred())
	submittedAt := clock.Now()
	job, err := c.Submit(context.Background(), req)
	Expect(err).ToNot(HaveOccurred())
	Expect(job.ID).To(Equal("gen-1"))
	Expect(job.Status).To(Equal(StatusPending))
	Expect(job.SubmittedAt).To(Equal(submittedAt))
	Expect(body).To(HaveKeyWithValue("inputText", "# Quarterly review"))
	Expect(body).To(HaveKeyWithValue("numCards", BeNumerically("==", 6)))
	Expect(body).To(HaveKeyWithValue("exportAs", "pdf"))
}

func TestSubmitAcceptsLegacyIdentifier(t *testing.T) {
	server := ghttp.NewServer()
	defer server.Close()
	c, _ := newTestClient(t, server)

	server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `{"id":"legacy-1"}`))

	job, err := c.Submit(context.Background(), newRequest("text"))
	Expect(err).ToNot(HaveOccurred())
	Expect(job.ID).To(Equal("legacy-1"))
}

func TestSubmitRejected(t *testing.T) {
	server := ghttp.NewServer()
	defer server.Close()
	c, _ := newTestClient(t, server)

	server.AppendHandlers(ghttp.RespondWith(http.StatusUnauthorized, `{"message":"invalid api key"}`))

	_, err := c.CreatePresentation(context.Background(), Input{InputText: "text", NumberOfSlides: 3})
	var subErr *SubmissionError
	Expect(errors.As(err, &subErr)).To(BeTrue())
	Expect(subErr.StatusCode).To(Equal(http.StatusUnauthorized))
	Expect(subErr.Body).To(ContainSubstring("invalid api key"))
	Expect(subErr.Retryable).To(BeFalse())
	// never polled
	Expect(server.ReceivedRequests()).To(HaveLen(1))
}

func TestSubmitIsNotRetried(t *testing.T) {
	server := ghttp.NewServer()
	defer server.Close()
	c, _ := newTestClient(t, server)

	server.AppendHandlers(ghttp.RespondWith(http.StatusServiceUnavailable, "busy"))

	_, err := c.Submit(context.Background(), newRequest("text"))
	var subErr *SubmissionError
	Expect(errors.As(err, &subErr)).To(BeTrue())
	Expect(subErr.StatusCode).To(Equal(http.StatusServiceUnavailable))
	Expect(subErr.Retryable).To(BeTrue())
	Expect(server.ReceivedRequests()).To(HaveLen(1))
}

func TestSubmitMalformedResponse(t *testing.T) {
	server := ghttp.NewServer()
	defer server.Close()
	c, _ := newTestClient(t, server)

	server.AppendHandlers(
		ghttp.RespondWith(http.StatusOK, `{}`),
		ghttp.RespondWith(http.StatusOK, `not json`),
	)

	_, err := c.Submit(context.Background(), newRequest("text"))
	var subErr *SubmissionError
	Expect(errors.As(err, &subErr)).To(BeTrue())
	Expect(subErr.Error()).To(ContainSubstring("no generation id"))

	_, err = c.Submit(context.Background(), newRequest("text"))
	Expect(errors.As(err, &subErr)).To(BeTrue())
	Expect(subErr.Cause).To(HaveOccurred())
}

func TestSubmitRequiresInput(t *testing.T) {
	server := ghttp.NewServer()
	defer server.Close()
	c, _ := newTestClient(t, server)

	_, err := c.Submit(context.Background(), newRequest("  "))
	var subErr *SubmissionError
	Expect(errors.As(err, &subErr)).To(BeTrue())
	Expect(server.ReceivedRequests()).To(BeEmpty())
}

func TestStatus(t *testing.T) {
	server := ghttp.NewServer()
	defer server.Close()
	c, _ := newTestClient(t, server)

	server.AppendHandlers(
		ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodGet, "/generations/gen-1"),
			ghttp.VerifyHeaderKV("X-API-KEY", "test-key"),
			ghttp.VerifyHeaderKV("Accept", "application/json"),
			ghttp.RespondWith(http.StatusOK, `{"generationId":"gen-1","status":"running"}`),
		),
		ghttp.RespondWith(http.StatusBadGateway, "upstream"),
	)

	generation, err := c.Status(context.Background(), "gen-1")
	Expect(err).ToNot(HaveOccurred())
	Expect(generation.Status).To(Equal("running"))
	Expect(string(generation.Raw)).To(ContainSubstring(`"running"`))

	_, err = c.Status(context.Background(), "gen-1")
	var pollErr *PollError
	Expect(errors.As(err, &pollErr)).To(BeTrue())
	Expect(pollErr.StatusCode).To(Equal(http.StatusBadGateway))
	Expect(pollErr.Retryable).To(BeTrue())
	Expect(server.ReceivedRequests()).To(HaveLen(2))
}
