package dto

import (
	"encoding/json"
	"strings"

	"github.com/samber/lo"
)

type GenerationRequest struct {
	InputText              string          `json:"inputText" yaml:"inputText" required:"true"`                               // content to turn into a presentation (required)
	TextMode               string          `json:"textMode,omitempty" yaml:"textMode,omitempty"`                             // generate, condense or preserve
	Format                 string          `json:"format,omitempty" yaml:"format,omitempty"`                                 // output kind (default: presentation)
	ThemeName              string          `json:"themeName,omitempty" yaml:"themeName,omitempty"`                           // theme to render with
	NumCards               int             `json:"numCards,omitempty" yaml:"numCards,omitempty"`                             // amount of cards (slides) to produce
	CardSplit              string          `json:"cardSplit,omitempty" yaml:"cardSplit,omitempty"`                           // how content is split across cards (default: auto)
	AdditionalInstructions string          `json:"additionalInstructions,omitempty" yaml:"additionalInstructions,omitempty"` // free-form instructions for the generator
	ExportAs               string          `json:"exportAs,omitempty" yaml:"exportAs,omitempty"`                             // pdf or pptx
	TextOptions            *TextOptions    `json:"textOptions,omitempty" yaml:"textOptions,omitempty"`                       // text generation options
	ImageOptions           *ImageOptions   `json:"imageOptions,omitempty" yaml:"imageOptions,omitempty"`                     // image generation options
	CardOptions            *CardOptions    `json:"cardOptions,omitempty" yaml:"cardOptions,omitempty"`                       // card layout options
	SharingOptions         *SharingOptions `json:"sharingOptions,omitempty" yaml:"sharingOptions,omitempty"`                 // access levels of the generated deck
	Extra                  map[string]any  `json:"-" yaml:"extra,omitempty"`                                                 // additional top-level fields passed through as is
}

type TextOptions struct {
	Amount   string `json:"amount,omitempty" yaml:"amount,omitempty"`     // brief, medium or detailed
	Tone     string `json:"tone,omitempty" yaml:"tone,omitempty"`         // free-form tone description
	Audience string `json:"audience,omitempty" yaml:"audience,omitempty"` // target audience
	Language string `json:"language,omitempty" yaml:"language,omitempty"` // language code (default: en)
}

type ImageOptions struct {
	Source string `json:"source,omitempty" yaml:"source,omitempty"` // aiGenerated, stock, ...
	Style  string `json:"style,omitempty" yaml:"style,omitempty"`   // free-form style description
}

type CardOptions struct {
	Dimensions string `json:"dimensions,omitempty" yaml:"dimensions,omitempty"` // 16x9, 4x3, fluid
}

type SharingOptions struct {
	WorkspaceAccess string `json:"workspaceAccess,omitempty" yaml:"workspaceAccess,omitempty"` // noAccess, view, comment, edit, fullAccess
	ExternalAccess  string `json:"externalAccess,omitempty" yaml:"externalAccess,omitempty"`   // noAccess, view, comment, edit
}

// MarshalJSON merges Extra into the top level object. Typed fields win on key clashes.
func (r GenerationRequest) MarshalJSON() ([]byte, error) {
	type plain GenerationRequest
	typed, err := json.Marshal(plain(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return typed, nil
	}
	var fields map[string]any
	if err := json.Unmarshal(typed, &fields); err != nil {
		return nil, err
	}
	return json.Marshal(lo.Assign(r.Extra, fields))
}

type SubmitResponse struct {
	GenerationID string `json:"generationId,omitempty"` // identifier of the created generation
	ID           string `json:"id,omitempty"`           // older responses use id instead of generationId
}

func (r SubmitResponse) Identifier() string {
	return strings.TrimSpace(lo.Ternary(r.GenerationID != "", r.GenerationID, r.ID))
}

type Generation struct {
	GenerationID string           `json:"generationId,omitempty" yaml:"generationId,omitempty"` // identifier of the generation
	ID           string           `json:"id,omitempty" yaml:"id,omitempty"`                     // legacy identifier field
	Status       string           `json:"status" yaml:"status"`                                 // pending, running, completed or failed
	GammaURL     string           `json:"gammaUrl,omitempty" yaml:"gammaUrl,omitempty"`         // link to view the deck remotely
	ExportURL    string           `json:"exportUrl,omitempty" yaml:"exportUrl,omitempty"`       // link to the exported artifact
	PdfURL       string           `json:"pdfUrl,omitempty" yaml:"pdfUrl,omitempty"`             // format specific export link
	PptxURL      string           `json:"pptxUrl,omitempty" yaml:"pptxUrl,omitempty"`           // format specific export link
	Credits      *Credits         `json:"credits,omitempty" yaml:"credits,omitempty"`           // credits charged for the generation
	Error        *GenerationError `json:"error,omitempty" yaml:"error,omitempty"`               // remote error detail when status is failed
	Raw          json.RawMessage  `json:"-" yaml:"-"`                                           // payload exactly as received
}

type Credits struct {
	Deducted  int `json:"deducted" yaml:"deducted"`
	Remaining int `json:"remaining" yaml:"remaining"`
}

func (g *Generation) Identifier() string {
	return lo.Ternary(g.GenerationID != "", g.GenerationID, g.ID)
}

// ArtifactURL returns the export link matching the requested format, preferring exportUrl.
func (g *Generation) ArtifactURL(exportAs string) string {
	if g.ExportURL != "" {
		return g.ExportURL
	}
	switch strings.ToLower(exportAs) {
	case "pptx":
		return lo.Ternary(g.PptxURL != "", g.PptxURL, g.PdfURL)
	default:
		return lo.Ternary(g.PdfURL != "", g.PdfURL, g.PptxURL)
	}
}

// GenerationError is reported either as a plain string or as {"message": ..., "statusCode": ...}.
type GenerationError struct {
	Message    string `json:"message" yaml:"message"`
	StatusCode int    `json:"statusCode,omitempty" yaml:"statusCode,omitempty"`
}

func (e *GenerationError) UnmarshalJSON(data []byte) error {
	var msg string
	if err := json.Unmarshal(data, &msg); err == nil {
		e.Message = msg
		return nil
	}
	type plain GenerationError
	var obj plain
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = GenerationError(obj)
	return nil
}

func (e *GenerationError) String() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// ParseGeneration decodes a status payload and keeps the raw bytes for inspection.
func ParseGeneration(body []byte) (*Generation, error) {
	var g Generation
	if err := json.Unmarshal(body, &g); err != nil {
		return nil, err
	}
	g.Raw = append(json.RawMessage(nil), body...)
	return &g, nil
}
