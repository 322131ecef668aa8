package client

import (
	"context"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/integrail/gamma-client/pkg/client/dto"
)

// Input is the per-call payload of a presentation generation.
type Input struct {
	InputText      string
	NumberOfSlides int
	// Title only labels log lines and progress output, it is not sent.
	Title     string
	Overrides Overrides
}

// Overrides replace the configured defaults for a single call. Nil means keep the default.
type Overrides struct {
	TextMode               *string
	Format                 *string
	ThemeName              *string
	CardSplit              *string
	ExportAs               *string
	TextAmount             *string
	TextTone               *string
	TextAudience           *string
	TextLanguage           *string
	ImageSource            *string
	ImageStyle             *string
	CardDimensions         *string
	WorkspaceAccess        *string
	ExternalAccess         *string
	AdditionalInstructions *string
	Extra                  map[string]string
}

// Event is one observation of a job published to a Reporter.
type Event struct {
	GenerationID string
	Status       Status
	Elapsed      time.Duration
	Poll         int
}

type Reporter interface {
	Report(evt Event)
}

type ReporterFunc func(evt Event)

func (f ReporterFunc) Report(evt Event) {
	f(evt)
}

type CallOption func(c *callOptions)

type callOptions struct {
	title    string
	reporter Reporter
}

func WithTitle(title string) CallOption {
	return func(c *callOptions) {
		c.title = title
	}
}

func WithReporter(reporter Reporter) CallOption {
	return func(c *callOptions) {
		c.reporter = reporter
	}
}

func newCallOptions(opts []CallOption) *callOptions {
	c := &callOptions{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *callOptions) report(evt Event) {
	if c == nil || c.reporter == nil {
		return
	}
	c.reporter.Report(evt)
}

// BuildRequest merges in onto the configured defaults. The card count is the requested amount
// of slides plus the configured offset for the title card.
func (o *gammaClient) BuildRequest(in Input) (dto.GenerationRequest, error) {
	if strings.TrimSpace(in.InputText) == "" {
		return dto.GenerationRequest{}, &SubmissionError{Body: "input text is required"}
	}
	if in.NumberOfSlides < 0 {
		return dto.GenerationRequest{}, &SubmissionError{Body: "number of slides must not be negative"}
	}
	def := o.settings.defaults
	ov := in.Overrides
	pick := func(override *string, fallback string) string {
		if override == nil || strings.TrimSpace(*override) == "" {
			return fallback
		}
		return *override
	}

	exportAs := pick(ov.ExportAs, o.settings.ExportAs())
	if !lo.Contains(exportFormats, exportAs) {
		return dto.GenerationRequest{}, &SubmissionError{Body: "unsupported export format " + exportAs}
	}
	textMode := pick(ov.TextMode, def.TextMode)
	if textMode != "" && !lo.Contains(textModes, textMode) {
		return dto.GenerationRequest{}, &SubmissionError{Body: "unsupported text mode " + textMode}
	}

	req := dto.GenerationRequest{
		InputText:              in.InputText,
		TextMode:               textMode,
		Format:                 pick(ov.Format, def.Format),
		ThemeName:              pick(ov.ThemeName, def.ThemeName),
		CardSplit:              pick(ov.CardSplit, def.CardSplit),
		AdditionalInstructions: pick(ov.AdditionalInstructions, def.AdditionalInstructions),
		ExportAs:               exportAs,
		TextOptions: &dto.TextOptions{
			Amount:   pick(ov.TextAmount, def.TextAmount),
			Tone:     pick(ov.TextTone, def.TextTone),
			Audience: pick(ov.TextAudience, def.TextAudience),
			Language: pick(ov.TextLanguage, def.TextLanguage),
		},
		ImageOptions: &dto.ImageOptions{
			Source: pick(ov.ImageSource, def.ImageSource),
			Style:  pick(ov.ImageStyle, def.ImageStyle),
		},
		CardOptions: &dto.CardOptions{
			Dimensions: pick(ov.CardDimensions, def.CardDimensions),
		},
	}
	if in.NumberOfSlides > 0 {
		req.NumCards = in.NumberOfSlides + def.NumCardsOffset
	}
	if workspace, external := pick(ov.WorkspaceAccess, def.WorkspaceAccess), pick(ov.ExternalAccess, def.ExternalAccess); workspace != "" || external != "" {
		req.SharingOptions = &dto.SharingOptions{WorkspaceAccess: workspace, ExternalAccess: external}
	}
	if extra := lo.Assign(o.settings.extra, ov.Extra); len(extra) > 0 {
		req.Extra = lo.MapValues(extra, func(v string, _ string) any { return v })
	}
	return req, nil
}

// CreatePresentation runs the whole life-cycle of one generation: build, submit, poll and fetch.
func (o *gammaClient) CreatePresentation(ctx context.Context, in Input, opts ...CallOption) (*ArtifactResult, error) {
	call := newCallOptions(opts)
	if call.title == "" && in.Title != "" {
		opts = append(opts, WithTitle(in.Title))
	}

	req, err := o.BuildRequest(in)
	if err != nil {
		return nil, err
	}
	job, err := o.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	call.report(Event{GenerationID: job.ID, Status: job.Status})

	completed, err := o.Poll(ctx, job, opts...)
	if err != nil {
		return nil, err
	}
	return o.Fetch(ctx, completed)
}
