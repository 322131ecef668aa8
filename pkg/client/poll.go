package client

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/integrail/gamma-client/pkg/client/dto"
	"github.com/integrail/gamma-client/pkg/metrics"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
	StatusCancelled Status = "cancelled"
)

// ParseStatus maps a status reported by the API onto the job state lattice.
func ParseStatus(raw string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending", "queued":
		return StatusPending, true
	case "running", "processing", "in_progress":
		return StatusRunning, true
	case "completed":
		return StatusCompleted, true
	case "failed", "error":
		return StatusFailed, true
	default:
		return "", false
	}
}

func (s Status) Terminal() bool {
	return s.rank() == 2
}

func (s Status) rank() int {
	switch s {
	case StatusPending, "":
		return 0
	case StatusRunning:
		return 1
	default:
		return 2
	}
}

// Job is the client side view of one remote generation. It belongs to the call that created it.
type Job struct {
	ID             string
	Status         Status
	SubmittedAt    time.Time
	LastObservedAt time.Time
	Result         *dto.Generation
}

// NewJob resumes tracking of an already submitted generation. The wait budget starts at submittedAt.
func NewJob(generationID string, submittedAt time.Time) *Job {
	return &Job{
		ID:             generationID,
		Status:         StatusPending,
		SubmittedAt:    submittedAt,
		LastObservedAt: submittedAt,
	}
}

// Poll waits for job to reach a terminal state. It sleeps a full poll interval before every
// status query and gives up with TimeoutError once max wait has elapsed since submission.
func (o *gammaClient) Poll(ctx context.Context, job *Job, opts ...CallOption) (*dto.Generation, error) {
	call := newCallOptions(opts)
	ctx, span := tracer.Start(ctx, "gamma_poll")
	defer span.End()
	span.SetAttributes(attribute.String("gamma.generation_id", job.ID))

	if job.Status.Terminal() {
		if job.Status == StatusCompleted && job.Result != nil {
			return job.Result, nil
		}
		return nil, errors.Errorf("generation %q is already %s", job.ID, job.Status)
	}

	log := o.log.With().Str("generation_id", job.ID).Str("title", call.title).Logger()
	log.Info().Dur("max_wait", o.settings.maxWait).Msg("polling started")

	for polls := 1; ; polls++ {
		if err := sleep(ctx, o.clock, o.settings.pollInterval); err != nil {
			return nil, o.cancelled(job, err, call)
		}
		elapsed := o.clock.Since(job.SubmittedAt)
		if elapsed >= o.settings.maxWait {
			return nil, o.timedOut(job, elapsed, call)
		}

		generation, err := o.queryWithRetry(ctx, job.ID, log)
		if err != nil {
			if ctx.Err() != nil {
				return nil, o.cancelled(job, ctx.Err(), call)
			}
			span.RecordError(err)
			o.finish(job, "poll_error")
			log.Error().Err(err).Int("poll", polls).Msg("status query failed")
			return nil, err
		}

		status, ok := ParseStatus(generation.Status)
		if !ok {
			o.finish(job, "poll_error")
			return nil, &PollError{GenerationID: job.ID, Body: string(generation.Raw),
				Cause: errors.Errorf("unknown generation status %q", generation.Status)}
		}
		job.LastObservedAt = o.clock.Now()
		elapsed = o.clock.Since(job.SubmittedAt)

		if status.rank() < job.Status.rank() {
			log.Warn().Str("status", string(status)).Str("last_status", string(job.Status)).Msg("ignoring status regression")
		} else {
			job.Status = status
		}
		call.report(Event{GenerationID: job.ID, Status: job.Status, Elapsed: elapsed, Poll: polls})
		log.Info().Str("status", string(job.Status)).Dur("elapsed", elapsed).Msg("GET /generations/{id}")

		switch job.Status {
		case StatusCompleted:
			job.Result = generation
			o.finish(job, "completed")
			span.SetAttributes(attribute.String("gamma.status", string(job.Status)))
			return generation, nil
		case StatusFailed:
			o.finish(job, "failed")
			detail := generation.Error.String()
			if detail == "" {
				detail = "generation failed without detail"
			}
			return nil, &JobFailedError{GenerationID: job.ID, Detail: detail, Payload: generation}
		}

		// a request still in flight at the deadline is allowed to finish, then the budget applies
		if elapsed >= o.settings.maxWait {
			return nil, o.timedOut(job, elapsed, call)
		}
	}
}

// queryWithRetry issues a status query, retrying transient faults. Non-retryable failures abort
// on the first attempt.
func (o *gammaClient) queryWithRetry(ctx context.Context, generationID string, log zerolog.Logger) (*dto.Generation, error) {
	generation, err := withRetry(ctx, o, log, "status", func() (*dto.Generation, error) {
		res, err := o.queryStatus(ctx, generationID)
		if err != nil {
			metrics.RecordPoll("error")
			return nil, err
		}
		metrics.RecordPoll(res.Status)
		return res, nil
	})
	if err != nil {
		return nil, o.pollError(generationID, err)
	}
	if generation == nil {
		return nil, &PollError{GenerationID: generationID, Cause: errors.New("empty status response")}
	}
	return generation, nil
}

func (o *gammaClient) timedOut(job *Job, elapsed time.Duration, call *callOptions) error {
	last := job.Status
	job.Status = StatusTimedOut
	o.finish(job, "timed_out")
	call.report(Event{GenerationID: job.ID, Status: StatusTimedOut, Elapsed: elapsed})
	o.log.Warn().Str("generation_id", job.ID).Dur("elapsed", elapsed).Str("last_status", string(last)).Msg("generation timed out")
	return &TimeoutError{GenerationID: job.ID, Elapsed: elapsed, MaxWait: o.settings.maxWait, LastStatus: last}
}

func (o *gammaClient) cancelled(job *Job, cause error, call *callOptions) error {
	last := job.Status
	job.Status = StatusCancelled
	o.finish(job, "cancelled")
	call.report(Event{GenerationID: job.ID, Status: StatusCancelled, Elapsed: o.clock.Since(job.SubmittedAt)})
	return &CancelledError{GenerationID: job.ID, LastStatus: last, Cause: cause}
}

func (o *gammaClient) finish(job *Job, outcome string) {
	metrics.RecordJob(outcome, o.clock.Since(job.SubmittedAt).Seconds())
}
